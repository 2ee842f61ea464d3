package overlay

import (
	"image"
	"math"
	"strings"

	"golang.org/x/image/vector"

	"mapengrave/internal/domain"
)

// Bézier control distance for a quarter circle.
const kappa = 0.5522847498

// pen draws unit shapes, coordinates in [-0.5, 0.5], scaled by s around (cx, cy).
type pen struct {
	z      *vector.Rasterizer
	cx, cy float32
	s      float32
}

func (p pen) pt(x, y float32) (float32, float32) {
	return p.cx + x*p.s, p.cy + y*p.s
}

func (p pen) move(x, y float32) { p.z.MoveTo(p.pt(x, y)) }

func (p pen) line(x, y float32) { p.z.LineTo(p.pt(x, y)) }

func (p pen) cube(x1, y1, x2, y2, x, y float32) {
	ax, ay := p.pt(x1, y1)
	bx, by := p.pt(x2, y2)
	cx, cy := p.pt(x, y)
	p.z.CubeTo(ax, ay, bx, by, cx, cy)
}

// circle adds a closed circle. Winding matters: a counter-clockwise circle
// inside a clockwise shape cuts a hole.
func (p pen) circle(x, y, r float32, clockwise bool) {
	k := r * kappa
	if clockwise {
		p.move(x+r, y)
		p.cube(x+r, y+k, x+k, y+r, x, y+r)
		p.cube(x-k, y+r, x-r, y+k, x-r, y)
		p.cube(x-r, y-k, x-k, y-r, x, y-r)
		p.cube(x+k, y-r, x+r, y-k, x+r, y)
	} else {
		p.move(x+r, y)
		p.cube(x+r, y-k, x+k, y-r, x, y-r)
		p.cube(x-k, y-r, x-r, y-k, x-r, y)
		p.cube(x-r, y+k, x-k, y+r, x, y+r)
		p.cube(x+k, y+r, x+r, y+k, x+r, y)
	}
	p.z.ClosePath()
}

func (p pen) polygon(pts ...[2]float32) {
	if len(pts) == 0 {
		return
	}
	p.move(pts[0][0], pts[0][1])
	for _, pt := range pts[1:] {
		p.line(pt[0], pt[1])
	}
	p.z.ClosePath()
}

func drawIcon(p pen, iconType string) {
	switch strings.ToLower(strings.TrimSpace(iconType)) {
	case domain.IconHeart:
		p.move(0, 0.45)
		p.cube(-0.1, 0.3, -0.5, 0.1, -0.5, -0.15)
		p.cube(-0.5, -0.45, -0.1, -0.5, 0, -0.25)
		p.cube(0.1, -0.5, 0.5, -0.45, 0.5, -0.15)
		p.cube(0.5, 0.1, 0.1, 0.3, 0, 0.45)
		p.z.ClosePath()
	case domain.IconStar:
		p.polygon(starPoints(5, 0.5, 0.2)...)
	case domain.IconPin:
		p.move(0, 0.5)
		p.cube(-0.15, 0.3, -0.32, 0.1, -0.32, -0.15)
		p.cube(-0.32, -0.33, -0.18, -0.47, 0, -0.47)
		p.cube(0.18, -0.47, 0.32, -0.33, 0.32, -0.15)
		p.cube(0.32, 0.1, 0.15, 0.3, 0, 0.5)
		p.z.ClosePath()
		p.circle(0, -0.15, 0.12, false)
	case domain.IconCircle:
		p.circle(0, 0, 0.5, true)
	case domain.IconSquare:
		p.polygon([2]float32{-0.5, -0.5}, [2]float32{0.5, -0.5}, [2]float32{0.5, 0.5}, [2]float32{-0.5, 0.5})
	}
}

func drawCompass(p pen, compassType string) {
	switch strings.ToLower(strings.TrimSpace(compassType)) {
	case domain.CompassArrow:
		p.polygon([2]float32{0, -0.5}, [2]float32{0.3, 0.45}, [2]float32{0, 0.25}, [2]float32{-0.3, 0.45})
	default:
		p.circle(0, 0, 0.5, true)
		p.circle(0, 0, 0.45, false)
		p.polygon(starPoints(4, 0.42, 0.09)...)
	}
}

// starPoints returns a star with n tips, the first pointing north.
func starPoints(n int, outer, inner float64) [][2]float32 {
	pts := make([][2]float32, 0, 2*n)
	for i := 0; i < 2*n; i++ {
		r := outer
		if i%2 == 1 {
			r = inner
		}
		a := -math.Pi/2 + float64(i)*math.Pi/float64(n)
		pts = append(pts, [2]float32{float32(r * math.Cos(a)), float32(r * math.Sin(a))})
	}
	return pts
}

// rasterizeShape renders a unit shape of side px pixels centred on (cx, cy)
// in canvas coordinates and returns its coverage inside clip. It returns nil
// when the shape misses clip.
func rasterizeShape(cx, cy, px float64, clip image.Rectangle, draw func(pen)) *image.Alpha {
	half := px/2 + 1
	r := image.Rect(
		int(math.Floor(cx-half)), int(math.Floor(cy-half)),
		int(math.Ceil(cx+half)), int(math.Ceil(cy+half)),
	).Intersect(clip)
	if r.Empty() {
		return nil
	}
	layer := image.NewAlpha(r)
	z := vector.NewRasterizer(r.Dx(), r.Dy())
	draw(pen{
		z:  z,
		cx: float32(cx - float64(r.Min.X)),
		cy: float32(cy - float64(r.Min.Y)),
		s:  float32(px),
	})
	z.Draw(layer, r, image.Opaque, image.Point{})
	return layer
}
