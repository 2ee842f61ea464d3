// Package colorutil provides small color helpers shared by the raster stages.
package colorutil

import (
	"image/color"
	"math"
)

// RGBToHSV converts RGB (0-255) to HSV with H in degrees 0-360 and S, V in 0-255.
func RGBToHSV(r, g, b float64) (h, s, v float64) {
	r /= 255.0
	g /= 255.0
	b /= 255.0

	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	diff := maxC - minC

	v = maxC * 255.0

	if maxC == 0 {
		s = 0
	} else {
		s = (diff / maxC) * 255.0
	}

	switch {
	case diff == 0:
		h = 0
	case maxC == r:
		h = 60 * math.Mod((g-b)/diff, 6)
	case maxC == g:
		h = 60 * ((b-r)/diff + 2)
	default:
		h = 60 * ((r-g)/diff + 4)
	}
	if h < 0 {
		h += 360
	}
	return h, s, v
}

// ParseHex parses "#RRGGBB" and panics on malformed input. It is meant for
// package level palette literals.
func ParseHex(s string) color.RGBA {
	if len(s) != 7 || s[0] != '#' {
		panic("colorutil: bad hex color " + s)
	}
	return color.RGBA{R: hexByte(s[1:3]), G: hexByte(s[3:5]), B: hexByte(s[5:7]), A: 255}
}

func hexByte(s string) uint8 {
	return hexNibble(s[0])<<4 | hexNibble(s[1])
}

func hexNibble(c byte) uint8 {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	panic("colorutil: bad hex digit " + string(c))
}
