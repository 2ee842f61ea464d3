package domain

import (
	"strconv"
	"strings"
)

// Size is a product size tier.
type Size string

const (
	SizeCompact  Size = "compact"
	SizeStandard Size = "standard"
	SizeLarge    Size = "large"
)

// Shape is the outline of the engraved area.
type Shape string

const (
	ShapeRectangle Shape = "rectangle"
	ShapeCircle    Shape = "circle"
)

// MaterialMetal is the material that carries a price premium.
const MaterialMetal = "metal"

// Orientation of the physical print.
type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
)

// ProductConfig is the product selection for one export.
type ProductConfig struct {
	Shape       string `json:"shape"`
	Size        string `json:"size"`
	Material    string `json:"material"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

// NormalizeSize sanitizes free-form size input. Unknown values are returned
// lowercased and ok is false.
func NormalizeSize(size string) (Size, bool) {
	s := Size(strings.ToLower(strings.TrimSpace(size)))
	switch s {
	case SizeCompact, SizeStandard, SizeLarge:
		return s, true
	default:
		return s, false
	}
}

// SizeTier returns the normalized size tier.
func (p ProductConfig) SizeTier() (Size, bool) {
	return NormalizeSize(p.Size)
}

// ShapeKind returns the engraved outline, rectangle when unset.
func (p ProductConfig) ShapeKind() Shape {
	switch Shape(strings.ToLower(strings.TrimSpace(p.Shape))) {
	case ShapeCircle, "round", "oval":
		return ShapeCircle
	default:
		return ShapeRectangle
	}
}

// IsMetal reports whether the material is metal.
func (p ProductConfig) IsMetal() bool {
	return strings.EqualFold(strings.TrimSpace(p.Material), MaterialMetal)
}

// Orientation derives portrait or landscape from AspectRatio. Ratios are
// written "W:H"; anything unparseable is portrait.
func (p ProductConfig) Orientation() Orientation {
	ratio := strings.ToLower(strings.TrimSpace(p.AspectRatio))
	switch ratio {
	case "", string(OrientationPortrait):
		return OrientationPortrait
	case string(OrientationLandscape):
		return OrientationLandscape
	}
	parts := strings.Split(ratio, ":")
	if len(parts) != 2 {
		return OrientationPortrait
	}
	w, errW := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	h, errH := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return OrientationPortrait
	}
	if w > h {
		return OrientationLandscape
	}
	return OrientationPortrait
}

// Validate checks the fields the export pipeline depends on.
func (p ProductConfig) Validate() error {
	if _, ok := p.SizeTier(); !ok {
		return Invalid(StageValidate, "unknown size %q", p.Size)
	}
	switch Shape(strings.ToLower(strings.TrimSpace(p.Shape))) {
	case "", ShapeRectangle, ShapeCircle, "round", "oval", "square":
	default:
		return Invalid(StageValidate, "unknown shape %q", p.Shape)
	}
	return nil
}
