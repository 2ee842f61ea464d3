package cart

import (
	"encoding/json"
	"strings"

	"mapengrave/internal/domain"
	"mapengrave/internal/providers/commerce"
)

// Line attribute keys. Keys starting with an underscore are hidden from
// shoppers by the storefront.
const (
	AttrLocation       = "Location"
	AttrSize           = "Size"
	AttrMaterial       = "Material"
	AttrShape          = "Shape"
	AttrCustomizations = "Customizations"
	AttrPrice          = "_price"
	AttrExportID       = "_export_id"
)

// Summary is the compact form of a customization list stored on cart lines.
type Summary struct {
	Texts   []string `json:"texts,omitempty"`
	Icons   []string `json:"icons,omitempty"`
	Compass string   `json:"compass,omitempty"`
}

// Summarize condenses items to what a reviewer needs to reconstruct intent.
func Summarize(items domain.Customizations) Summary {
	var s Summary
	for _, item := range items {
		switch v := item.(type) {
		case domain.TextItem:
			s.Texts = append(s.Texts, strings.ReplaceAll(v.NormalizedContent(), "\n", " / "))
		case domain.IconItem:
			s.Icons = append(s.Icons, strings.ToLower(v.Type))
		case domain.CompassItem:
			s.Compass = strings.ToLower(v.Type)
			if s.Compass == "" {
				s.Compass = domain.CompassClassic
			}
		}
	}
	return s
}

// Attributes builds the line attributes for req. Empty values are omitted;
// the price is always present.
func Attributes(req Request) []commerce.Attribute {
	size, _ := req.Product.SizeTier()
	summary, _ := json.Marshal(Summarize(req.Customizations))
	pairs := []commerce.Attribute{
		{Key: AttrLocation, Value: strings.TrimSpace(req.Location)},
		{Key: AttrSize, Value: string(size)},
		{Key: AttrMaterial, Value: strings.TrimSpace(req.Product.Material)},
		{Key: AttrShape, Value: string(req.Product.ShapeKind())},
		{Key: AttrCustomizations, Value: string(summary)},
		{Key: AttrPrice, Value: req.Quote.String()},
		{Key: AttrExportID, Value: req.ExportID},
	}
	out := pairs[:0]
	for _, p := range pairs {
		if p.Value != "" && p.Value != "{}" {
			out = append(out, p)
		}
	}
	return out
}
