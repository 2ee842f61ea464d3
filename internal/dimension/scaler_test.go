package dimension

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapengrave/internal/domain"
	"mapengrave/internal/mono"
)

func TestResolveTiers(t *testing.T) {
	s, err := NewScaler(nil, 0, 0)
	require.NoError(t, err)

	cases := []struct {
		product       domain.ProductConfig
		width, height int
	}{
		{domain.ProductConfig{Size: "compact"}, 1500, 2100},
		{domain.ProductConfig{Size: "standard"}, 2400, 3000},
		{domain.ProductConfig{Size: "large"}, 3300, 4200},
		{domain.ProductConfig{Size: "standard", AspectRatio: "4:3"}, 3000, 2400},
		{domain.ProductConfig{Size: "LARGE", AspectRatio: "landscape"}, 4200, 3300},
		{domain.ProductConfig{Size: "compact", AspectRatio: "1:1"}, 1500, 2100},
	}
	for _, tc := range cases {
		d, err := s.Resolve(tc.product)
		require.NoError(t, err)
		assert.Equalf(t, tc.width, d.Width, "%+v", tc.product)
		assert.Equalf(t, tc.height, d.Height, "%+v", tc.product)
		assert.Equal(t, 300, d.DPI)
		assert.Equal(t, 3, d.Factor())
		assert.Equal(t, d.Width, d.BaseWidth*3)
	}
}

func TestResolveIsStablePerTier(t *testing.T) {
	s, err := NewScaler(nil, 0, 0)
	require.NoError(t, err)
	first, err := s.Resolve(domain.ProductConfig{Size: "standard", Shape: "circle", Material: "oak"})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		d, err := s.Resolve(domain.ProductConfig{Size: "standard", Shape: "rectangle", Material: "metal"})
		require.NoError(t, err)
		assert.Equal(t, first, d)
	}
}

func TestResolveRejectsUnknownSize(t *testing.T) {
	s, _ := NewScaler(nil, 0, 0)
	_, err := s.Resolve(domain.ProductConfig{Size: "poster"})
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
}

func TestNewScalerRejectsFractionalFactor(t *testing.T) {
	_, err := NewScaler(nil, 96, 300)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
}

func TestScaleKeepsTwoLevels(t *testing.T) {
	s, err := NewScaler(nil, 0, 0)
	require.NoError(t, err)
	d, err := s.Resolve(domain.ProductConfig{Size: "compact"})
	require.NoError(t, err)

	src := image.NewGray(image.Rect(0, 0, d.BaseWidth, d.BaseHeight))
	for y := 0; y < d.BaseHeight; y++ {
		for x := 0; x < d.BaseWidth; x++ {
			v := mono.White
			if (x/7+y/5)%2 == 0 {
				v = mono.Black
			}
			src.SetGray(x, y, color.Gray{Y: v})
		}
	}
	out, err := s.Scale(src, d)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, d.Width, d.Height), out.Bounds())
	require.NoError(t, mono.VerifyBilevel(out))
	// Each working pixel becomes a 3x3 block.
	for _, p := range []image.Point{{0, 0}, {10, 4}, {499, 699}} {
		want := src.GrayAt(p.X, p.Y).Y
		for dy := 0; dy < 3; dy++ {
			for dx := 0; dx < 3; dx++ {
				assert.Equal(t, want, out.GrayAt(p.X*3+dx, p.Y*3+dy).Y)
			}
		}
	}

	_, err = s.Scale(image.NewGray(image.Rect(0, 0, 10, 10)), d)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
}
