package detection

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"time"

	"github.com/aegis-vision/aegis/internal/frame"
)

// RuntimeClient is an HTTP client for the external inference runtime.
// The runtime hosts the actual models; this service only orchestrates.
type RuntimeClient struct {
	httpClient *http.Client
	baseURL    string
	device     string
	logger     *slog.Logger
}

// RuntimeConfig holds runtime client configuration
type RuntimeConfig struct {
	Address string
	Device  string
	Timeout time.Duration
}

// NewRuntimeClient creates a new inference runtime client
func NewRuntimeClient(cfg RuntimeConfig) *RuntimeClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Device == "" {
		cfg.Device = "cpu"
	}

	return &RuntimeClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    fmt.Sprintf("http://%s", cfg.Address),
		device:     cfg.Device,
		logger:     slog.Default().With("component", "runtime_client"),
	}
}

// Device returns the compute device the runtime was configured with
func (c *RuntimeClient) Device() string {
	return c.device
}

// post sends a JSON request and decodes the JSON response into out
func (c *RuntimeClient) post(ctx context.Context, path string, body, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("runtime request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// LoadDetector registers a model file with the runtime and returns a
// detector bound to it
func (c *RuntimeClient) LoadDetector(ctx context.Context, path string) (ObjectDetector, error) {
	var result struct {
		Success bool   `json:"success"`
		ModelID string `json:"model_id"`
		Error   string `json:"error"`
	}

	body := map[string]interface{}{
		"path":   path,
		"device": c.device,
	}
	if err := c.post(ctx, "/load", body, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("failed to load model: %s", result.Error)
	}

	c.logger.Info("Model loaded", "path", path, "model_id", result.ModelID)

	return &runtimeDetector{client: c, modelID: result.ModelID}, nil
}

// LoadExtractor initializes the runtime's text extraction engine
func (c *RuntimeClient) LoadExtractor(ctx context.Context, langs string) (TextExtractor, error) {
	var result struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}

	if err := c.post(ctx, "/ocr/load", map[string]string{"langs": langs}, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("failed to load text extractor: %s", result.Error)
	}

	c.logger.Info("Text extractor loaded", "langs", langs)

	return &runtimeExtractor{client: c}, nil
}

// runtimeDetector runs inference for one loaded model
type runtimeDetector struct {
	client  *RuntimeClient
	modelID string
}

// Detect sends the frame's raw bytes through the runtime
func (d *runtimeDetector) Detect(ctx context.Context, f *frame.Frame) ([]RawDetection, error) {
	var result struct {
		Success    bool   `json:"success"`
		Error      string `json:"error"`
		Detections []struct {
			Label      string     `json:"label"`
			Confidence float64    `json:"confidence"`
			Box        [4]float64 `json:"box"`
		} `json:"detections"`
	}

	body := map[string]interface{}{
		"model_id":   d.modelID,
		"device":     d.client.device,
		"image_data": base64.StdEncoding.EncodeToString(f.Data),
	}
	if err := d.client.post(ctx, "/detect", body, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("detection failed: %s", result.Error)
	}

	detections := make([]RawDetection, 0, len(result.Detections))
	for _, det := range result.Detections {
		detections = append(detections, RawDetection{
			Label:      det.Label,
			Confidence: det.Confidence,
			Box:        Box(det.Box),
		})
	}
	return detections, nil
}

// runtimeExtractor reads text from image crops via the runtime
type runtimeExtractor struct {
	client *RuntimeClient
}

// ExtractText ships the crop as JPEG and returns the top result text
func (e *runtimeExtractor) ExtractText(ctx context.Context, img image.Image) (string, error) {
	data, err := frame.EncodeJPEG(img, 90)
	if err != nil {
		return "", err
	}

	var result struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Results []struct {
			Text       string  `json:"text"`
			Confidence float64 `json:"confidence"`
		} `json:"results"`
	}

	body := map[string]interface{}{
		"image_data": base64.StdEncoding.EncodeToString(data),
	}
	if err := e.client.post(ctx, "/ocr", body, &result); err != nil {
		return "", err
	}
	if !result.Success {
		return "", fmt.Errorf("text extraction failed: %s", result.Error)
	}
	if len(result.Results) == 0 {
		return "", nil
	}
	return result.Results[0].Text, nil
}
