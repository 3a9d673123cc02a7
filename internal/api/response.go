package api

import (
	"encoding/json"
	"net/http"
)

// errorBody is the wire shape for all error responses
type errorBody struct {
	Error string `json:"error"`
}

// writeJSON sends a JSON response. Detection results go over the wire
// as-is, without an envelope, so existing clients keep working.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError sends an error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, message)
}

func internalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, message)
}
