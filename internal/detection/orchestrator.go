package detection

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aegis-vision/aegis/internal/bus"
	"github.com/aegis-vision/aegis/internal/config"
	"github.com/aegis-vision/aegis/internal/frame"
	"github.com/aegis-vision/aegis/internal/incident"
)

// IncidentSink records qualifying findings. Recording is best-effort:
// a sink failure never fails the detection request.
type IncidentSink interface {
	Record(ctx context.Context, inc *incident.Incident) error
}

// Publisher broadcasts completed results; nil disables broadcasting
type Publisher interface {
	Publish(subject string, data interface{}) error
}

// Orchestrator runs a decoded frame through every enabled detector
// slot and aggregates the findings into one result
type Orchestrator struct {
	registry  *Registry
	incidents IncidentSink
	publisher Publisher
	cfg       *config.Config
	logger    *slog.Logger
}

// NewOrchestrator creates a new detection orchestrator. publisher may
// be nil.
func NewOrchestrator(cfg *config.Config, registry *Registry, incidents IncidentSink, publisher Publisher) *Orchestrator {
	return &Orchestrator{
		registry:  registry,
		incidents: incidents,
		publisher: publisher,
		cfg:       cfg,
		logger:    slog.Default().With("component", "orchestrator"),
	}
}

// Run executes the weapon, plate and behaviour passes over one frame.
// A disabled slot contributes nothing; a failing enabled detector
// aborts the request.
func (o *Orchestrator) Run(ctx context.Context, f *frame.Frame) (*Result, error) {
	weaponThr, plateThr, behaviourThr := o.cfg.Thresholds()

	result := &Result{
		WeaponType: UnknownWeaponType,
		Weapons:    []Finding{},
		Suspicious: []Finding{},
	}

	if err := o.weaponPass(ctx, f, weaponThr, result); err != nil {
		return nil, err
	}
	if err := o.platePass(ctx, f, plateThr, result); err != nil {
		return nil, err
	}
	if err := o.behaviourPass(ctx, f, behaviourThr, result); err != nil {
		return nil, err
	}

	if o.publisher != nil {
		if err := o.publisher.Publish(bus.SubjectDetectionCompleted, result); err != nil {
			o.logger.Warn("Failed to publish result", "error", err)
		}
	}

	return result, nil
}

// weaponPass collects every weapon finding above threshold and tracks
// the running maximum for the top-level confidence and weaponType.
func (o *Orchestrator) weaponPass(ctx context.Context, f *frame.Frame, threshold float64, result *Result) error {
	detector := o.registry.Weapons()
	if detector == nil {
		return nil
	}

	raw, err := detector.Detect(ctx, f)
	if err != nil {
		return fmt.Errorf("weapon detection failed: %w", err)
	}

	for _, d := range raw {
		if d.Confidence < threshold {
			continue
		}

		result.Detected = true
		if d.Confidence > result.Confidence {
			result.Confidence = d.Confidence
			result.WeaponType = d.Label
		}

		result.Weapons = append(result.Weapons, Finding{
			Label:      d.Label,
			Confidence: d.Confidence,
			Box:        d.Box,
		})
		o.record(ctx, incident.CategoryWeapon, d.Label, d.Confidence, d.Box)
	}

	return nil
}

// platePass keeps the single best candidate above threshold. Text
// extraction runs per qualifying box; failures fall back to the
// sentinel text and are never surfaced.
func (o *Orchestrator) platePass(ctx context.Context, f *frame.Frame, threshold float64, result *Result) error {
	detector := o.registry.Plate()
	if detector == nil {
		return nil
	}

	raw, err := detector.Detect(ctx, f)
	if err != nil {
		return fmt.Errorf("plate detection failed: %w", err)
	}

	var best *PlateFinding
	for _, d := range raw {
		if d.Confidence < threshold {
			continue
		}

		box := d.Box.Trunc()
		text := o.extractPlateText(ctx, f, box)

		// Strict greater-than: first-seen wins on exact ties
		if best == nil || d.Confidence > best.Confidence {
			best = &PlateFinding{Text: text, Confidence: d.Confidence, Box: box}
		}
	}

	if best != nil {
		result.Plate = best
		o.record(ctx, incident.CategoryPlate, best.Text, best.Confidence, best.Box)
	}

	return nil
}

// extractPlateText crops the plate region and runs text extraction.
// Any failure, empty crop or empty result yields the sentinel text.
func (o *Orchestrator) extractPlateText(ctx context.Context, f *frame.Frame, box Box) string {
	crop := f.Crop(box.Rect())
	if crop == nil {
		return PlateTextSentinel
	}

	extractor := o.registry.Extractor()
	if extractor == nil {
		return PlateTextSentinel
	}

	text, err := extractor.ExtractText(ctx, crop)
	if err != nil {
		o.logger.Debug("Text extraction failed", "error", err)
		return PlateTextSentinel
	}
	if text == "" {
		return PlateTextSentinel
	}
	return text
}

// behaviourPass collects suspicious findings above threshold, skipping
// detections whose case-folded label is "normal".
func (o *Orchestrator) behaviourPass(ctx context.Context, f *frame.Frame, threshold float64, result *Result) error {
	detector := o.registry.Behaviour()
	if detector == nil {
		return nil
	}

	raw, err := detector.Detect(ctx, f)
	if err != nil {
		return fmt.Errorf("behaviour detection failed: %w", err)
	}

	for _, d := range raw {
		if d.Confidence < threshold {
			continue
		}

		label := strings.ToLower(d.Label)
		if label == normalLabel {
			continue
		}

		result.Suspicious = append(result.Suspicious, Finding{
			Label:      label,
			Confidence: d.Confidence,
			Box:        d.Box,
		})
		o.record(ctx, incident.CategoryBehaviour, label, d.Confidence, d.Box)
	}

	return nil
}

// record appends one incident row, fire-and-forget
func (o *Orchestrator) record(ctx context.Context, category incident.Category, label string, confidence float64, box Box) {
	inc := &incident.Incident{
		Timestamp:  time.Now(),
		Category:   category,
		Label:      label,
		Confidence: confidence,
		Box:        [4]float64(box),
	}
	if err := o.incidents.Record(ctx, inc); err != nil {
		o.logger.Warn("Failed to record incident", "category", category, "label", label, "error", err)
	}
}
