package detection

import (
	"context"
	"log/slog"
	"os"

	"github.com/aegis-vision/aegis/internal/config"
)

// Loader constructs detection capabilities from model resources
type Loader interface {
	LoadDetector(ctx context.Context, path string) (ObjectDetector, error)
	LoadExtractor(ctx context.Context, langs string) (TextExtractor, error)
}

// Registry holds the detector slots and the optional text extractor.
// Each slot loads independently: a missing or unloadable model disables
// only that slot, never the service. Read-only after construction.
type Registry struct {
	weapons   ObjectDetector
	plate     ObjectDetector
	behaviour ObjectDetector
	extractor TextExtractor
	device    string
	logger    *slog.Logger
}

// Status reports which capabilities are currently enabled
type Status struct {
	Device    string `json:"device"`
	Weapons   bool   `json:"weapons_model"`
	Plate     bool   `json:"plate_model"`
	Behaviour bool   `json:"behaviour_model"`
	OCR       bool   `json:"ocr"`
}

// NewRegistry loads the configured detector slots. Never fails: every
// slot that cannot be constructed is disabled with a warning.
func NewRegistry(ctx context.Context, cfg *config.Config, loader Loader) *Registry {
	r := &Registry{
		device: cfg.Runtime.Device,
		logger: slog.Default().With("component", "registry"),
	}

	r.weapons = r.loadSlot(ctx, loader, "weapons", cfg.Models.Weapons)
	r.plate = r.loadSlot(ctx, loader, "plate", cfg.Models.Plate)
	r.behaviour = r.loadSlot(ctx, loader, "behaviour", cfg.Models.Behaviour)

	// Text extraction only matters when plate detection is available
	if cfg.Models.OCR && r.plate != nil {
		extractor, err := loader.LoadExtractor(ctx, cfg.Models.OCRLangs)
		if err != nil {
			r.logger.Warn("Text extraction disabled", "error", err)
		} else {
			r.extractor = extractor
		}
	}

	return r
}

// NewStaticRegistry builds a registry from pre-constructed capabilities.
// Nil arguments leave the corresponding slot disabled.
func NewStaticRegistry(weapons, plate, behaviour ObjectDetector, extractor TextExtractor, device string) *Registry {
	return &Registry{
		weapons:   weapons,
		plate:     plate,
		behaviour: behaviour,
		extractor: extractor,
		device:    device,
		logger:    slog.Default().With("component", "registry"),
	}
}

// loadSlot constructs one detector slot, or nil when disabled
func (r *Registry) loadSlot(ctx context.Context, loader Loader, name, path string) ObjectDetector {
	if _, err := os.Stat(path); err != nil {
		r.logger.Warn("Model not found, slot disabled", "slot", name, "path", path)
		return nil
	}

	detector, err := loader.LoadDetector(ctx, path)
	if err != nil {
		r.logger.Warn("Failed to load model, slot disabled", "slot", name, "path", path, "error", err)
		return nil
	}

	r.logger.Info("Detector slot enabled", "slot", name, "path", path)
	return detector
}

// Weapons returns the weapon detector, or nil when disabled
func (r *Registry) Weapons() ObjectDetector { return r.weapons }

// Plate returns the plate detector, or nil when disabled
func (r *Registry) Plate() ObjectDetector { return r.plate }

// Behaviour returns the behaviour detector, or nil when disabled
func (r *Registry) Behaviour() ObjectDetector { return r.behaviour }

// Extractor returns the text extractor, or nil when disabled
func (r *Registry) Extractor() TextExtractor { return r.extractor }

// Device returns the configured compute device
func (r *Registry) Device() string { return r.device }

// GetStatus returns the capability status for the health probe
func (r *Registry) GetStatus() Status {
	return Status{
		Device:    r.device,
		Weapons:   r.weapons != nil,
		Plate:     r.plate != nil,
		Behaviour: r.behaviour != nil,
		OCR:       r.extractor != nil,
	}
}
