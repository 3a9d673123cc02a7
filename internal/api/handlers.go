// Package api provides HTTP API handlers and WebSocket support
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-vision/aegis/internal/detection"
	"github.com/aegis-vision/aegis/internal/frame"
	"github.com/aegis-vision/aegis/internal/incident"
)

// Frames arrive as raw image bytes in the request body
const maxFrameBytes = 20 << 20

// Detector runs the detection pipeline on a decoded frame
type Detector interface {
	Run(ctx context.Context, f *frame.Frame) (*detection.Result, error)
}

// IncidentService defines the interface for incident log queries
type IncidentService interface {
	List(ctx context.Context, opts incident.ListOptions) ([]*incident.Incident, int, error)
	GetStats(ctx context.Context) (*incident.Stats, error)
}

// Server holds the HTTP handlers for the detection endpoint and the
// incident log
type Server struct {
	detector  Detector
	registry  *detection.Registry
	incidents IncidentService
	hub       *Hub
	logger    *slog.Logger
}

// NewServer creates a new API server. hub may be nil when incident
// streaming is disabled.
func NewServer(detector Detector, registry *detection.Registry, incidents IncidentService, hub *Hub) *Server {
	return &Server{
		detector:  detector,
		registry:  registry,
		incidents: incidents,
		hub:       hub,
		logger:    slog.Default().With("component", "api"),
	}
}

// Routes returns the HTTP routes
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/detect", s.Detect)
	r.Get("/health", s.Health)

	r.Route("/api/v1/incidents", func(r chi.Router) {
		r.Get("/", s.ListIncidents)
		r.Get("/stats", s.GetIncidentStats)
		if s.hub != nil {
			r.Get("/stream", s.hub.HandleWebSocket)
		}
	})

	return r
}

// Detect accepts raw image bytes and returns the aggregated detection
// result for the frame
func (s *Server) Detect(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxFrameBytes))
	if err != nil {
		badRequest(w, "failed to read request body")
		return
	}

	f, err := frame.Decode(data)
	if err != nil {
		// Decode detail stays server-side; clients get the stable message
		if errors.Is(err, frame.ErrEmptyInput) {
			badRequest(w, frame.ErrEmptyInput.Error())
		} else {
			badRequest(w, frame.ErrUndecodable.Error())
		}
		return
	}

	result, err := s.detector.Run(r.Context(), f)
	if err != nil {
		s.logger.Error("Detection failed", "error", err)
		internalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// healthResponse reports service liveness and which models are loaded
type healthResponse struct {
	Status    string `json:"status"`
	Device    string `json:"device"`
	Weapons   bool   `json:"weapons_model"`
	Plate     bool   `json:"plate_model"`
	Behaviour bool   `json:"behaviour_model"`
}

// Health reports liveness and model availability. Always succeeds once
// the server is up, whatever subset of models loaded.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	status := s.registry.GetStatus()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Device:    status.Device,
		Weapons:   status.Weapons,
		Plate:     status.Plate,
		Behaviour: status.Behaviour,
	})
}

// ListIncidents lists logged incidents with filtering
func (s *Server) ListIncidents(w http.ResponseWriter, r *http.Request) {
	opts := incident.ListOptions{
		Limit:  50,
		Offset: 0,
	}

	if v := r.URL.Query().Get("category"); v != "" {
		opts.Category = incident.Category(v)
	}
	if v := r.URL.Query().Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.StartTime = t
		}
	}
	if v := r.URL.Query().Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.EndTime = t
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			opts.Limit = limit
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil && offset >= 0 {
			opts.Offset = offset
		}
	}

	incidents, total, err := s.incidents.List(r.Context(), opts)
	if err != nil {
		internalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"incidents": incidents,
		"total":     total,
	})
}

// GetIncidentStats returns incident log statistics
func (s *Server) GetIncidentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.incidents.GetStats(r.Context())
	if err != nil {
		internalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
