package overlay

import (
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// Font keys selected from the free-form family hint.
const (
	FontRegular = "regular"
	FontBold    = "bold"
	FontItalic  = "italic"
	FontMono    = "mono"
)

var (
	fontsOnce sync.Once
	fontsData map[string]*opentype.Font
)

func loadFonts() map[string]*opentype.Font {
	fontsOnce.Do(func() {
		sources := map[string][]byte{
			FontRegular: goregular.TTF,
			FontBold:    gobold.TTF,
			FontItalic:  goitalic.TTF,
			FontMono:    gomono.TTF,
		}
		fontsData = make(map[string]*opentype.Font, len(sources))
		for key, ttf := range sources {
			if f, err := opentype.Parse(ttf); err == nil {
				fontsData[key] = f
			}
		}
	})
	return fontsData
}

// FamilyKey maps a family hint such as "Courier New" or "Playfair Bold" to
// one of the bundled Go fonts.
func FamilyKey(family string) string {
	f := strings.ToLower(family)
	switch {
	case containsAny(f, "mono", "courier", "code", "console", "typewriter"):
		return FontMono
	case containsAny(f, "bold", "black", "heavy", "impact"):
		return FontBold
	case containsAny(f, "italic", "oblique", "script", "cursive", "hand"):
		return FontItalic
	default:
		return FontRegular
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// faceCache hands out faces for a single render. opentype faces keep
// internal buffers and must not be shared between goroutines.
type faceCache struct {
	faces map[faceKey]font.Face
}

type faceKey struct {
	family string
	px     float64
}

func newFaceCache() *faceCache {
	return &faceCache{faces: make(map[faceKey]font.Face)}
}

// face returns the bundled font for family at px pixels, falling back to
// basicfont.Face7x13 when the font cannot be instantiated.
func (c *faceCache) face(family string, px float64) font.Face {
	key := faceKey{family: FamilyKey(family), px: px}
	if f, ok := c.faces[key]; ok {
		return f
	}
	var face font.Face = basicfont.Face7x13
	if otf := loadFonts()[key.family]; otf != nil {
		f, err := opentype.NewFace(otf, &opentype.FaceOptions{
			Size:    px,
			DPI:     72,
			Hinting: font.HintingNone,
		})
		if err == nil {
			face = f
		}
	}
	c.faces[key] = face
	return face
}

func (c *faceCache) close() {
	for _, f := range c.faces {
		_ = f.Close()
	}
}
