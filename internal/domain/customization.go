package domain

import (
	"encoding/json"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ItemKind discriminates customization items in their JSON form.
type ItemKind string

const (
	KindText    ItemKind = "text"
	KindIcon    ItemKind = "icon"
	KindCompass ItemKind = "compass"
)

// Icon types understood by the overlay renderer.
const (
	IconHeart  = "heart"
	IconStar   = "star"
	IconPin    = "pin"
	IconCircle = "circle"
	IconSquare = "square"
)

// Compass types understood by the overlay renderer.
const (
	CompassClassic = "classic"
	CompassArrow   = "arrow"
)

// MaxItemSize bounds font, icon and compass sizes, in editor pixels.
const MaxItemSize = 600

// CompassID is the id reported for the compass, which carries none of its own.
const CompassID = "compass"

// Item is one entry of a customization list.
type Item interface {
	Kind() ItemKind
	ItemID() string
	Anchor() (x, y float64)
}

// TextItem is freeform text anchored at a percentage position.
type TextItem struct {
	ID         string  `json:"id"`
	Content    string  `json:"content"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	FontSize   float64 `json:"font_size"`
	FontFamily string  `json:"font_family,omitempty"`
	Color      string  `json:"color,omitempty"`
}

func (t TextItem) Kind() ItemKind             { return KindText }
func (t TextItem) ItemID() string             { return t.ID }
func (t TextItem) Anchor() (float64, float64) { return t.X, t.Y }

// NormalizedContent returns the NFC form of the content with CRLF folded to LF.
func (t TextItem) NormalizedContent() string {
	content := strings.ReplaceAll(t.Content, "\r\n", "\n")
	return norm.NFC.String(content)
}

// IconItem is a predefined glyph centered at its anchor.
type IconItem struct {
	ID   string  `json:"id"`
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Size float64 `json:"size"`
}

func (i IconItem) Kind() ItemKind             { return KindIcon }
func (i IconItem) ItemID() string             { return i.ID }
func (i IconItem) Anchor() (float64, float64) { return i.X, i.Y }

// CompassItem is the optional compass rose.
type CompassItem struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Size float64 `json:"size"`
}

func (c CompassItem) Kind() ItemKind             { return KindCompass }
func (c CompassItem) ItemID() string             { return CompassID }
func (c CompassItem) Anchor() (float64, float64) { return c.X, c.Y }

// Customizations is the ordered customization list of one export. Later
// entries paint over earlier ones.
type Customizations []Item

// Counts returns the number of text and icon items and whether a compass is present.
func (c Customizations) Counts() (texts, icons int, compass bool) {
	for _, item := range c {
		switch item.Kind() {
		case KindText:
			texts++
		case KindIcon:
			icons++
		case KindCompass:
			compass = true
		}
	}
	return texts, icons, compass
}

// Validate checks ids, anchors, sizes and types of every item.
func (c Customizations) Validate() error {
	seen := make(map[string]struct{}, len(c))
	compasses := 0
	for idx, item := range c {
		if item == nil {
			return Invalid(StageValidate, "customization %d is empty", idx)
		}
		id := item.ItemID()
		if strings.TrimSpace(id) == "" {
			return Invalid(StageValidate, "customization %d has no id", idx)
		}
		if _, dup := seen[id]; dup {
			return Invalid(StageValidate, "duplicate customization id %q", id)
		}
		seen[id] = struct{}{}
		x, y := item.Anchor()
		if !inPercentRange(x) || !inPercentRange(y) {
			return Invalid(StageValidate, "customization %q anchor (%v,%v) outside 0-100", id, x, y)
		}
		switch v := item.(type) {
		case TextItem:
			if strings.TrimSpace(v.Content) == "" {
				return Invalid(StageValidate, "text %q has no content", id)
			}
			if !validSize(v.FontSize) {
				return Invalid(StageValidate, "text %q font size must be in (0,%d]", id, MaxItemSize)
			}
			if _, err := ParseColor(v.Color); err != nil {
				return Invalid(StageValidate, "text %q: %v", id, err)
			}
		case IconItem:
			if !validSize(v.Size) {
				return Invalid(StageValidate, "icon %q size must be in (0,%d]", id, MaxItemSize)
			}
			if !KnownIcon(v.Type) {
				return Invalid(StageValidate, "icon %q has unknown type %q", id, v.Type)
			}
		case CompassItem:
			compasses++
			if !validSize(v.Size) {
				return Invalid(StageValidate, "compass size must be in (0,%d]", MaxItemSize)
			}
			if !KnownCompass(v.Type) {
				return Invalid(StageValidate, "unknown compass type %q", v.Type)
			}
		default:
			return Invalid(StageValidate, "customization %q has unsupported kind %q", id, item.Kind())
		}
	}
	if compasses > 1 {
		return Invalid(StageValidate, "at most one compass is allowed, got %d", compasses)
	}
	return nil
}

func validSize(v float64) bool {
	return v > 0 && v <= MaxItemSize
}

func inPercentRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 100
}

// KnownIcon reports whether the overlay renderer can draw iconType.
func KnownIcon(iconType string) bool {
	switch strings.ToLower(strings.TrimSpace(iconType)) {
	case IconHeart, IconStar, IconPin, IconCircle, IconSquare:
		return true
	}
	return false
}

// KnownCompass reports whether the overlay renderer can draw compassType. An
// empty type selects the classic rose.
func KnownCompass(compassType string) bool {
	switch strings.ToLower(strings.TrimSpace(compassType)) {
	case "", CompassClassic, CompassArrow:
		return true
	}
	return false
}

// ParseColor parses "#RGB" or "#RRGGBB". An empty string is black.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(s) {
	case 0:
		return color.RGBA{A: 255}, nil
	case 3:
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	case 6:
	default:
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

type itemEnvelope struct {
	Kind ItemKind `json:"kind"`
}

// UnmarshalJSON decodes a list of objects discriminated by "kind".
func (c *Customizations) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	items := make(Customizations, 0, len(raws))
	for idx, raw := range raws {
		var env itemEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("customization %d: %w", idx, err)
		}
		switch ItemKind(strings.ToLower(string(env.Kind))) {
		case KindText:
			var t TextItem
			if err := json.Unmarshal(raw, &t); err != nil {
				return fmt.Errorf("customization %d: %w", idx, err)
			}
			items = append(items, t)
		case KindIcon:
			var i IconItem
			if err := json.Unmarshal(raw, &i); err != nil {
				return fmt.Errorf("customization %d: %w", idx, err)
			}
			items = append(items, i)
		case KindCompass:
			var cp CompassItem
			if err := json.Unmarshal(raw, &cp); err != nil {
				return fmt.Errorf("customization %d: %w", idx, err)
			}
			items = append(items, cp)
		default:
			return fmt.Errorf("customization %d: unknown kind %q", idx, env.Kind)
		}
	}
	*c = items
	return nil
}

// MarshalJSON encodes the list with a "kind" field on each object.
func (c Customizations) MarshalJSON() ([]byte, error) {
	out := make([]any, 0, len(c))
	for _, item := range c {
		switch v := item.(type) {
		case TextItem:
			out = append(out, struct {
				Kind ItemKind `json:"kind"`
				TextItem
			}{KindText, v})
		case IconItem:
			out = append(out, struct {
				Kind ItemKind `json:"kind"`
				IconItem
			}{KindIcon, v})
		case CompassItem:
			out = append(out, struct {
				Kind ItemKind `json:"kind"`
				CompassItem
			}{KindCompass, v})
		default:
			return nil, fmt.Errorf("unsupported customization %T", item)
		}
	}
	return json.Marshal(out)
}
