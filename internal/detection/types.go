// Package detection provides the detection orchestration pipeline:
// per-category confidence gating, candidate selection and result
// aggregation across the weapon, plate and behaviour detectors.
package detection

import (
	"context"
	"image"
	"math"

	"github.com/aegis-vision/aegis/internal/frame"
)

// Sentinel values used in aggregated results
const (
	// UnknownWeaponType fills weaponType when no weapon passed threshold.
	UnknownWeaponType = "unknown"

	// PlateTextSentinel fills the plate text when extraction is
	// unavailable, fails, or returns nothing.
	PlateTextSentinel = "DETECTED"

	// normalLabel marks benign behaviour detections; excluded from results.
	normalLabel = "normal"
)

// Box is a bounding box in pixel coordinates: x1, y1, x2, y2 with
// x1 < x2 and y1 < y2. Marshals as a JSON array.
type Box [4]float64

// Rect converts the box to an image rectangle
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(b[0]), int(b[1]), int(b[2]), int(b[3]))
}

// Trunc returns the box with coordinates truncated to integer pixels
func (b Box) Trunc() Box {
	return Box{math.Trunc(b[0]), math.Trunc(b[1]), math.Trunc(b[2]), math.Trunc(b[3])}
}

// RawDetection is a single detection as produced by a detector slot,
// before any threshold gating. Immutable, scoped to one request.
type RawDetection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Finding is a detection that passed its category threshold
type Finding struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// PlateFinding is the single best license-plate candidate of a request
type PlateFinding struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Result is the aggregated response for one frame.
// Weapons and Suspicious are never nil so they marshal as [].
type Result struct {
	Detected   bool          `json:"detected"`
	Confidence float64       `json:"confidence"`
	WeaponType string        `json:"weaponType"`
	Weapons    []Finding     `json:"boundingBoxes"`
	Plate      *PlateFinding `json:"plate"`
	Suspicious []Finding     `json:"suspicious"`
}

// ObjectDetector is a single detection capability: given a frame it
// returns raw detections. Implementations must be safe for concurrent
// use after construction.
type ObjectDetector interface {
	Detect(ctx context.Context, f *frame.Frame) ([]RawDetection, error)
}

// TextExtractor reads text from a cropped image region. An empty
// string with nil error means no legible text was found.
type TextExtractor interface {
	ExtractText(ctx context.Context, img image.Image) (string, error)
}
