// Package dimension resolves product sizes to exact pixel grids and scales
// two-level bitmaps from the working resolution to print resolution.
package dimension

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"

	"mapengrave/internal/catalog"
	"mapengrave/internal/domain"
	"mapengrave/internal/mono"
)

const (
	DefaultBaseDPI   = 100
	DefaultTargetDPI = 300
)

// Dimensions is the resolved pixel grid of one product.
type Dimensions struct {
	Size        domain.Size
	Orientation domain.Orientation
	WidthIn     float64
	HeightIn    float64

	// Working canvas at BaseDPI.
	BaseWidth  int
	BaseHeight int
	BaseDPI    int

	// Print bitmap at DPI.
	Width  int
	Height int
	DPI    int
}

// Factor returns the integer scale factor from base to print resolution.
func (d Dimensions) Factor() int { return d.DPI / d.BaseDPI }

// Scaler maps size tiers to pixels using the catalog's physical sizes.
type Scaler struct {
	cat       *catalog.Catalog
	baseDPI   int
	targetDPI int
}

// NewScaler checks that targetDPI is an integer multiple of baseDPI. Zero
// values select the defaults and a nil catalog the built-in one.
func NewScaler(cat *catalog.Catalog, baseDPI, targetDPI int) (*Scaler, error) {
	if cat == nil {
		cat = catalog.Default()
	}
	if baseDPI == 0 {
		baseDPI = DefaultBaseDPI
	}
	if targetDPI == 0 {
		targetDPI = DefaultTargetDPI
	}
	if baseDPI < 0 || targetDPI < baseDPI || targetDPI%baseDPI != 0 {
		return nil, domain.Invalid(domain.StageScale, "target dpi %d is not an integer multiple of base dpi %d", targetDPI, baseDPI)
	}
	return &Scaler{cat: cat, baseDPI: baseDPI, targetDPI: targetDPI}, nil
}

// Resolve returns the pixel grid for product. Unknown sizes are rejected;
// landscape orientation swaps the physical width and height.
func (s *Scaler) Resolve(product domain.ProductConfig) (Dimensions, error) {
	size, ok := product.SizeTier()
	if !ok {
		return Dimensions{}, domain.Invalid(domain.StageScale, "unknown size %q", product.Size)
	}
	tier, ok := s.cat.Tier(size)
	if !ok {
		return Dimensions{}, domain.Invalid(domain.StageScale, "size %q missing from catalog", size)
	}
	wIn, hIn := tier.Physical.WidthIn, tier.Physical.HeightIn
	orientation := product.Orientation()
	if orientation == domain.OrientationLandscape {
		wIn, hIn = hIn, wIn
	}
	baseW := int(math.Round(wIn * float64(s.baseDPI)))
	baseH := int(math.Round(hIn * float64(s.baseDPI)))
	factor := s.targetDPI / s.baseDPI
	return Dimensions{
		Size:        size,
		Orientation: orientation,
		WidthIn:     wIn,
		HeightIn:    hIn,
		BaseWidth:   baseW,
		BaseHeight:  baseH,
		BaseDPI:     s.baseDPI,
		Width:       baseW * factor,
		Height:      baseH * factor,
		DPI:         s.targetDPI,
	}, nil
}

// Scale resamples a two-level working bitmap to print size with nearest
// neighbour, which can only repeat existing values, and re-verifies the result.
func (s *Scaler) Scale(src *image.Gray, d Dimensions) (*image.Gray, error) {
	if src == nil {
		return nil, domain.Invalid(domain.StageScale, "bitmap is required")
	}
	if b := src.Bounds(); b.Dx() != d.BaseWidth || b.Dy() != d.BaseHeight {
		return nil, domain.Invalid(domain.StageScale, "bitmap %dx%d does not match working size %dx%d", b.Dx(), b.Dy(), d.BaseWidth, d.BaseHeight)
	}
	dst := image.NewGray(image.Rect(0, 0, d.Width, d.Height))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	if err := mono.VerifyBilevel(dst); err != nil {
		return nil, domain.NewStageError(domain.ErrNotBilevel, domain.StageScale, err)
	}
	return dst, nil
}
