// Package geo maps a viewport onto a pixel canvas. The same Mapper is used to
// request tiles and to place overlays, so both agree on every coordinate.
package geo

import (
	"fmt"
	"image"
	"math"

	"mapengrave/internal/domain"
)

const (
	// ReferenceZoom is the zoom at which the viewport spans ReferenceSpanDeg.
	ReferenceZoom = 12
	// ReferenceSpanDeg is the longitude span in degrees at ReferenceZoom.
	ReferenceSpanDeg = 0.25
	// TileSize is the edge of a slippy map tile in pixels.
	TileSize = 256
	// MaxLatitude is the Web Mercator latitude limit.
	MaxLatitude = 85.05112878
)

// BBox is a geographic bounding box in degrees.
type BBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// ZoomRange is the inclusive zoom range of a tile source.
type ZoomRange struct {
	Min int
	Max int
}

// Contains reports whether z lies in the range.
func (r ZoomRange) Contains(z int) bool {
	return z >= r.Min && z <= r.Max
}

// Rect is a rectangle in world pixel space at a zoom level.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// Dx returns the width of the rectangle.
func (r Rect) Dx() float64 { return r.MaxX - r.MinX }

// Dy returns the height of the rectangle.
func (r Rect) Dy() float64 { return r.MaxY - r.MinY }

// SpanForZoom returns the longitude span of the viewport at zoom.
func SpanForZoom(zoom int) float64 {
	span := ReferenceSpanDeg / math.Pow(2, float64(zoom-ReferenceZoom))
	return math.Min(span, 360)
}

// WorldSize returns the edge of the world in pixels at zoom.
func WorldSize(zoom int) float64 {
	return TileSize * math.Pow(2, float64(zoom))
}

// MercatorX returns the normalized [0,1] Web Mercator x of lng.
func MercatorX(lng float64) float64 {
	return (lng + 180) / 360
}

// MercatorY returns the normalized [0,1] Web Mercator y of lat, north at 0.
func MercatorY(lat float64) float64 {
	lat = math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))
	sin := math.Sin(lat * math.Pi / 180)
	return 0.5 - math.Log((1+sin)/(1-sin))/(4*math.Pi)
}

// InverseMercatorX converts a normalized x back to longitude.
func InverseMercatorX(x float64) float64 {
	return x*360 - 180
}

// InverseMercatorY converts a normalized y back to latitude.
func InverseMercatorY(y float64) float64 {
	n := math.Pi * (1 - 2*y)
	return math.Atan(math.Sinh(n)) * 180 / math.Pi
}

// Mapper converts between geographic, world pixel, canvas pixel and
// percentage coordinates for one viewport and canvas size.
type Mapper struct {
	viewport domain.ViewportSpec
	width    int
	height   int
	world    Rect
	// canvas pixels per world pixel
	scale float64
}

// NewMapper sizes the viewport for a width x height canvas. The longitude
// span follows SpanForZoom and the latitude span is derived through Web
// Mercator so the map keeps the canvas aspect ratio.
func NewMapper(v domain.ViewportSpec, width, height int, zr ZoomRange) (*Mapper, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, domain.Invalid(domain.StageMapper, "canvas size %dx%d must be positive", width, height)
	}
	if !zr.Contains(v.Zoom) {
		return nil, domain.NewStageError(domain.ErrUnsupportedZoom, domain.StageMapper,
			fmt.Errorf("zoom %d outside supported range [%d,%d]", v.Zoom, zr.Min, zr.Max))
	}

	worldSize := WorldSize(v.Zoom)
	spanPx := SpanForZoom(v.Zoom) / 360 * worldSize
	scale := float64(width) / spanPx
	heightPx := float64(height) / scale

	cx := MercatorX(v.Longitude) * worldSize
	cy := MercatorY(v.Latitude) * worldSize
	world := Rect{
		MinX: cx - spanPx/2,
		MaxX: cx + spanPx/2,
		MinY: cy - heightPx/2,
		MaxY: cy + heightPx/2,
	}
	return &Mapper{viewport: v, width: width, height: height, world: world, scale: scale}, nil
}

// Zoom returns the zoom level tiles are fetched at.
func (m *Mapper) Zoom() int { return m.viewport.Zoom }

// Size returns the canvas size in pixels.
func (m *Mapper) Size() (int, int) { return m.width, m.height }

// Viewport returns the viewport the mapper was built for.
func (m *Mapper) Viewport() domain.ViewportSpec { return m.viewport }

// WorldPixelBounds returns the canvas rectangle in world pixels at Zoom.
func (m *Mapper) WorldPixelBounds() Rect { return m.world }

// Scale returns canvas pixels per world pixel.
func (m *Mapper) Scale() float64 { return m.scale }

// BBox returns the geographic bounds of the canvas. Longitudes are not
// wrapped, so a viewport crossing the antimeridian reports East > 180.
func (m *Mapper) BBox() BBox {
	ws := WorldSize(m.viewport.Zoom)
	return BBox{
		West:  InverseMercatorX(m.world.MinX / ws),
		East:  InverseMercatorX(m.world.MaxX / ws),
		North: InverseMercatorY(m.world.MinY / ws),
		South: InverseMercatorY(m.world.MaxY / ws),
	}
}

// PercentToPixel maps a percentage anchor to a pixel inside the canvas.
func (m *Mapper) PercentToPixel(xPct, yPct float64) image.Point {
	return image.Point{
		X: clampRound(xPct/100*float64(m.width), m.width-1),
		Y: clampRound(yPct/100*float64(m.height), m.height-1),
	}
}

// PixelToPercent is the inverse of PercentToPixel, accurate to one pixel.
func (m *Mapper) PixelToPercent(p image.Point) (float64, float64) {
	return float64(p.X) / float64(m.width) * 100, float64(p.Y) / float64(m.height) * 100
}

// PercentToPixelF is PercentToPixel without rounding or clamping.
func (m *Mapper) PercentToPixelF(xPct, yPct float64) (float64, float64) {
	return xPct / 100 * float64(m.width), yPct / 100 * float64(m.height)
}

// LatLngToPixel returns the canvas position of a geographic point. Points
// outside the viewport map outside the canvas.
func (m *Mapper) LatLngToPixel(lat, lng float64) (float64, float64) {
	ws := WorldSize(m.viewport.Zoom)
	wx := MercatorX(lng) * ws
	wy := MercatorY(lat) * ws
	return (wx - m.world.MinX) * m.scale, (wy - m.world.MinY) * m.scale
}

// PixelToLatLng returns the geographic point under a canvas position.
func (m *Mapper) PixelToLatLng(x, y float64) (float64, float64) {
	ws := WorldSize(m.viewport.Zoom)
	wx := m.world.MinX + x/m.scale
	wy := m.world.MinY + y/m.scale
	return InverseMercatorY(wy / ws), InverseMercatorX(wx / ws)
}

func clampRound(v float64, hi int) int {
	n := int(math.Round(v))
	if n < 0 {
		return 0
	}
	if n > hi {
		return hi
	}
	return n
}
