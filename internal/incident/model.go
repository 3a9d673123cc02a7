// Package incident provides the durable append-only incident log
package incident

import (
	"time"
)

// Category classifies an incident by the detector that produced it
type Category string

const (
	CategoryWeapon    Category = "WEAPON"
	CategoryPlate     Category = "PLATE"
	CategoryBehaviour Category = "BEHAVIOUR"
)

// Incident is one qualifying finding. Rows are appended once and never
// updated or deleted by this service.
type Incident struct {
	ID         string     `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	Category   Category   `json:"category"`
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"box"` // x1, y1, x2, y2 in pixel coordinates
	CreatedAt  time.Time  `json:"created_at"`
}

// ListOptions represents filters for querying incidents
type ListOptions struct {
	Category  Category  `json:"category,omitempty"`
	StartTime time.Time `json:"start_time,omitempty"`
	EndTime   time.Time `json:"end_time,omitempty"`
	Limit     int       `json:"limit,omitempty"`
	Offset    int       `json:"offset,omitempty"`
}

// Stats summarizes the incident log
type Stats struct {
	Total      int `json:"total"`
	Today      int `json:"today"`
	ByCategory map[Category]int `json:"by_category"`
}
