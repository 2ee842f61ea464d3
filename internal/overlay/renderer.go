// Package overlay paints text, icon and compass customizations onto the base
// map and records every painted pixel in an overlay mask.
package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"mapengrave/internal/domain"
	"mapengrave/internal/geo"
	"mapengrave/internal/infra"
)

// DefaultEditorWidth is the width in pixels of the editor canvas that font
// and icon sizes are expressed against.
const DefaultEditorWidth = 600

// Options configures a Renderer.
type Options struct {
	EditorWidth float64
	Logger      *infra.Logger
}

// Renderer draws customizations. It is safe for concurrent use.
type Renderer struct {
	editorWidth float64
	logger      *infra.Logger
}

// NewRenderer applies defaults to opts.
func NewRenderer(opts Options) *Renderer {
	width := opts.EditorWidth
	if width <= 0 {
		width = DefaultEditorWidth
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Renderer{editorWidth: width, logger: logger}
}

// Render paints items onto canvas in list order at positions given by m and
// returns the overlay mask: 255 wherever any item left coverage, 0 elsewhere.
// Colors painted onto canvas are hints; the mask is authoritative.
func (r *Renderer) Render(canvas *image.RGBA, m *geo.Mapper, items domain.Customizations) (*image.Alpha, error) {
	if canvas == nil || m == nil {
		return nil, domain.Invalid(domain.StageOverlay, "canvas and mapper are required")
	}
	w, h := m.Size()
	if canvas.Bounds() != image.Rect(0, 0, w, h) {
		return nil, domain.Invalid(domain.StageOverlay, "canvas %v does not match mapper size %dx%d", canvas.Bounds(), w, h)
	}
	if err := items.Validate(); err != nil {
		return nil, err
	}

	mask := image.NewAlpha(canvas.Bounds())
	faces := newFaceCache()
	defer faces.close()
	scale := float64(w) / r.editorWidth

	for _, item := range items {
		var (
			layer *image.Alpha
			ink   color.Color = color.Black
		)
		switch v := item.(type) {
		case domain.TextItem:
			cx, cy := m.PercentToPixelF(v.X, v.Y)
			face := faces.face(v.FontFamily, math.Max(1, v.FontSize*scale))
			layer = rasterizeText(face, v.NormalizedContent(), cx, cy, canvas.Bounds())
			ink, _ = domain.ParseColor(v.Color)
		case domain.IconItem:
			cx, cy := m.PercentToPixelF(v.X, v.Y)
			iconType := v.Type
			layer = rasterizeShape(cx, cy, v.Size*scale, canvas.Bounds(), func(p pen) { drawIcon(p, iconType) })
		case domain.CompassItem:
			cx, cy := m.PercentToPixelF(v.X, v.Y)
			compassType := v.Type
			layer = rasterizeShape(cx, cy, v.Size*scale, canvas.Bounds(), func(p pen) { drawCompass(p, compassType) })
		}
		if layer == nil {
			continue
		}
		area := layer.Bounds().Intersect(canvas.Bounds())
		if area.Empty() {
			continue
		}
		draw.DrawMask(canvas, area, image.NewUniform(ink), image.Point{}, layer, area.Min, draw.Over)
		markCoverage(mask, layer, area)
	}

	r.logger.Debug().Int("items", len(items)).Float64("scale", scale).Msg("overlay rendered")
	return mask, nil
}

func markCoverage(mask, layer *image.Alpha, area image.Rectangle) {
	for y := area.Min.Y; y < area.Max.Y; y++ {
		lrow := layer.PixOffset(area.Min.X, y)
		mrow := mask.PixOffset(area.Min.X, y)
		for x := 0; x < area.Dx(); x++ {
			if layer.Pix[lrow+x] > 0 {
				mask.Pix[mrow+x] = 0xff
			}
		}
	}
}

// rasterizeText lays out content one line per row, each line centred
// horizontally and the block centred vertically on (cx, cy). Coverage outside
// clip is dropped.
func rasterizeText(face font.Face, content string, cx, cy float64, clip image.Rectangle) *image.Alpha {
	lines := strings.Split(content, "\n")
	metrics := face.Metrics()
	lineHeight := float64(metrics.Height) / 64
	ascent := float64(metrics.Ascent) / 64
	top := cy - lineHeight*float64(len(lines))/2

	dots := make([]fixed.Point26_6, len(lines))
	var bounds image.Rectangle
	for i, line := range lines {
		advance := float64(font.MeasureString(face, line)) / 64
		dot := fixed.Point26_6{
			X: fixed.Int26_6(math.Round((cx - advance/2) * 64)),
			Y: fixed.Int26_6(math.Round((top + float64(i)*lineHeight + ascent) * 64)),
		}
		dots[i] = dot
		lb, _ := font.BoundString(face, line)
		rect := image.Rect(
			(dot.X+lb.Min.X).Floor(), (dot.Y+lb.Min.Y).Floor(),
			(dot.X+lb.Max.X).Ceil(), (dot.Y+lb.Max.Y).Ceil(),
		)
		bounds = bounds.Union(rect)
	}
	bounds = bounds.Inset(-1).Intersect(clip)
	if bounds.Empty() {
		return nil
	}
	layer := image.NewAlpha(bounds)
	d := &font.Drawer{Dst: layer, Src: image.Opaque, Face: face}
	for i, line := range lines {
		d.Dot = dots[i]
		d.DrawString(line)
	}
	return layer
}
