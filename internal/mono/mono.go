// Package mono reduces the composited canvas to the two engraving levels.
//
// Classification is a pure function of the source pixel, the overlay mask
// and the product shape, applied with this precedence:
//
//  1. outside the shape outline: white (not engraved)
//  2. overlay pixel: white
//  3. water: black (engraved)
//  4. anything else: white
//
// Water detection targets the OpenStreetMap Carto palette, where water is
// #AAD3DF: hue within [WaterHueMin, WaterHueMax] degrees, saturation at
// least WaterMinSaturation, and the blue channel at or above Threshold.
package mono

import (
	"fmt"
	"image"

	"mapengrave/internal/domain"
	"mapengrave/pkg/colorutil"
)

const (
	// Threshold is the fixed cut applied to the blue channel.
	Threshold = 128
	// WaterHueMin and WaterHueMax bound water hues in degrees.
	WaterHueMin = 170
	WaterHueMax = 250
	// WaterMinSaturation is the minimum HSV saturation (0-255) of water.
	WaterMinSaturation = 30

	Black uint8 = 0
	White uint8 = 255
)

// IsWater classifies one opaque RGB pixel.
func IsWater(r, g, b uint8) bool {
	if b < Threshold {
		return false
	}
	h, s, _ := colorutil.RGBToHSV(float64(r), float64(g), float64(b))
	return s >= WaterMinSaturation && h >= WaterHueMin && h <= WaterHueMax
}

// Convert classifies every pixel of src. overlay may be nil; when present it
// must cover src's bounds. The result has src's bounds translated to the
// origin and holds only Black and White.
func Convert(src *image.RGBA, overlay *image.Alpha, shape domain.Shape) (*image.Gray, error) {
	if src == nil {
		return nil, domain.Invalid(domain.StageMonochrome, "source canvas is required")
	}
	b := src.Bounds()
	if overlay != nil && !b.In(overlay.Bounds()) {
		return nil, domain.Invalid(domain.StageMonochrome, "overlay %v does not cover canvas %v", overlay.Bounds(), b)
	}
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	inside := shapeMask(shape, w, h)

	for y := 0; y < h; y++ {
		srow := src.PixOffset(b.Min.X, b.Min.Y+y)
		orow := 0
		if overlay != nil {
			orow = overlay.PixOffset(b.Min.X, b.Min.Y+y)
		}
		drow := out.PixOffset(0, y)
		for x := 0; x < w; x++ {
			v := White
			switch {
			case !inside(x, y), overlay != nil && overlay.Pix[orow+x] > 0:
				// white
			default:
				i := srow + 4*x
				if IsWater(src.Pix[i], src.Pix[i+1], src.Pix[i+2]) {
					v = Black
				}
			}
			out.Pix[drow+x] = v
		}
	}
	if err := VerifyBilevel(out); err != nil {
		return nil, err
	}
	return out, nil
}

// shapeMask reports whether pixel (x, y) lies inside the engraved outline.
// Circles use the ellipse inscribed in the canvas, tested at pixel centres.
func shapeMask(shape domain.Shape, w, h int) func(x, y int) bool {
	if shape != domain.ShapeCircle {
		return func(int, int) bool { return true }
	}
	rx, ry := float64(w)/2, float64(h)/2
	return func(x, y int) bool {
		dx := (float64(x) + 0.5 - rx) / rx
		dy := (float64(y) + 0.5 - ry) / ry
		return dx*dx+dy*dy <= 1
	}
}

// VerifyBilevel fails unless every pixel of img is Black or White.
func VerifyBilevel(img *image.Gray) error {
	if img == nil {
		return domain.Invalid(domain.StageMonochrome, "bitmap is nil")
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.PixOffset(b.Min.X, y)
		for x := 0; x < b.Dx(); x++ {
			if v := img.Pix[row+x]; v != Black && v != White {
				return domain.NewStageError(domain.ErrNotBilevel, domain.StageMonochrome,
					fmt.Errorf("pixel (%d,%d) has intermediate value %d", b.Min.X+x, y, v))
			}
		}
	}
	return nil
}

// Engraved returns the share of black pixels in img.
func Engraved(img *image.Gray) float64 {
	if img == nil || len(img.Pix) == 0 {
		return 0
	}
	b := img.Bounds()
	black := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.PixOffset(b.Min.X, y)
		for x := 0; x < b.Dx(); x++ {
			if img.Pix[row+x] == Black {
				black++
			}
		}
	}
	return float64(black) / float64(b.Dx()*b.Dy())
}
