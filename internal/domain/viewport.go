package domain

import (
	"math"
	"strings"
)

// ViewportSpec is the map placement finalized by the user in the editor.
type ViewportSpec struct {
	Latitude    float64 `json:"lat"`
	Longitude   float64 `json:"lng"`
	Zoom        int     `json:"zoom"`
	SearchLabel string  `json:"search_label,omitempty"`
}

// Validate checks coordinate ranges. The zoom range of the active tile source
// is checked later by the coordinate mapper.
func (v ViewportSpec) Validate() error {
	if math.IsNaN(v.Latitude) || v.Latitude < -90 || v.Latitude > 90 {
		return Invalid(StageValidate, "latitude %v out of range [-90,90]", v.Latitude)
	}
	if math.IsNaN(v.Longitude) || v.Longitude < -180 || v.Longitude > 180 {
		return Invalid(StageValidate, "longitude %v out of range [-180,180]", v.Longitude)
	}
	if v.Zoom <= 0 {
		return Invalid(StageValidate, "zoom must be a positive integer, got %d", v.Zoom)
	}
	return nil
}

// Label returns the trimmed search label.
func (v ViewportSpec) Label() string {
	return strings.TrimSpace(v.SearchLabel)
}
