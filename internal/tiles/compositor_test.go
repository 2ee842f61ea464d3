package tiles

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mapengrave/internal/domain"
	"mapengrave/internal/geo"
	"mapengrave/internal/providers/tile"
)

var parisViewport = domain.ViewportSpec{Latitude: 48.8566, Longitude: 2.3522, Zoom: 12}

type stubSource struct {
	mu     sync.Mutex
	calls  map[tile.Request]int
	total  atomic.Int64
	fetch  func(ctx context.Context, req tile.Request, attempt int) ([]byte, error)
	zoom   geo.ZoomRange
	scheme tile.Scheme
}

func newStubSource(fetch func(ctx context.Context, req tile.Request, attempt int) ([]byte, error)) *stubSource {
	return &stubSource{calls: map[tile.Request]int{}, fetch: fetch, zoom: geo.ZoomRange{Min: 0, Max: 19}, scheme: tile.SchemeXYZ}
}

func (s *stubSource) Name() string             { return "stub" }
func (s *stubSource) Scheme() tile.Scheme      { return s.scheme }
func (s *stubSource) ZoomRange() geo.ZoomRange { return s.zoom }

func (s *stubSource) FetchTile(ctx context.Context, req tile.Request) ([]byte, error) {
	s.mu.Lock()
	s.calls[req]++
	attempt := s.calls[req]
	s.mu.Unlock()
	s.total.Add(1)
	return s.fetch(ctx, req, attempt)
}

func (s *stubSource) maxCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := 0
	for _, n := range s.calls {
		out = max(out, n)
	}
	return out
}

func solidPNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, geo.TileSize, geo.TileSize))
	for y := 0; y < geo.TileSize; y++ {
		for x := 0; x < geo.TileSize; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func newMapper(t *testing.T, w, h int) *geo.Mapper {
	t.Helper()
	m, err := geo.NewMapper(parisViewport, w, h, geo.ZoomRange{Min: 0, Max: 19})
	if err != nil {
		t.Fatalf("mapper: %v", err)
	}
	return m
}

func TestCoveringRangeIsMinimal(t *testing.T) {
	m := newMapper(t, 800, 1000)
	r := CoveringRange(m)
	wb := m.WorldPixelBounds()
	if float64(r.MinX*geo.TileSize) > wb.MinX || float64((r.MaxX+1)*geo.TileSize) < wb.MaxX {
		t.Fatalf("columns %d..%d do not cover %v..%v", r.MinX, r.MaxX, wb.MinX, wb.MaxX)
	}
	if float64((r.MinX+1)*geo.TileSize) <= wb.MinX || float64(r.MaxX*geo.TileSize) >= wb.MaxX {
		t.Fatalf("columns %d..%d are not minimal", r.MinX, r.MaxX)
	}
	if float64(r.MinY*geo.TileSize) > wb.MinY || float64((r.MaxY+1)*geo.TileSize) < wb.MaxY {
		t.Fatalf("rows %d..%d do not cover %v..%v", r.MinY, r.MaxY, wb.MinY, wb.MaxY)
	}
}

func TestComposeUniformTilesHasNoSeams(t *testing.T) {
	water := color.RGBA{R: 0xAA, G: 0xD3, B: 0xDF, A: 0xFF}
	data := solidPNG(t, water)
	src := newStubSource(func(context.Context, tile.Request, int) ([]byte, error) { return data, nil })
	c, err := New(Options{Source: src})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	m := newMapper(t, 400, 500)
	canvas, err := c.Compose(context.Background(), m)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if canvas.Bounds() != image.Rect(0, 0, 400, 500) {
		t.Fatalf("canvas bounds = %v", canvas.Bounds())
	}
	for y := 0; y < 500; y++ {
		for x := 0; x < 400; x++ {
			if got := canvas.RGBAAt(x, y); got != water {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, water)
			}
		}
	}
	if int(src.total.Load()) != CoveringRange(m).Count() {
		t.Fatalf("fetched %d tiles, want %d", src.total.Load(), CoveringRange(m).Count())
	}
}

func TestComposeRetriesTransientFailures(t *testing.T) {
	data := solidPNG(t, color.White)
	src := newStubSource(func(_ context.Context, _ tile.Request, attempt int) ([]byte, error) {
		if attempt < 3 {
			return nil, &tile.StatusError{StatusCode: 503, URL: "stub"}
		}
		return data, nil
	})
	c, _ := New(Options{Source: src, Retries: 3, Backoff: time.Millisecond})
	if _, err := c.Compose(context.Background(), newMapper(t, 200, 200)); err != nil {
		t.Fatalf("compose: %v", err)
	}
	if got := src.maxCalls(); got != 3 {
		t.Fatalf("max attempts per tile = %d, want 3", got)
	}
}

func TestComposeFailsWhenTileSourceAlwaysTimesOut(t *testing.T) {
	src := newStubSource(func(ctx context.Context, _ tile.Request, _ int) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	c, _ := New(Options{
		Source:       src,
		Retries:      2,
		Backoff:      time.Millisecond,
		FetchTimeout: 5 * time.Millisecond,
		Concurrency:  1,
	})
	canvas, err := c.Compose(context.Background(), newMapper(t, 200, 200))
	if canvas != nil {
		t.Fatalf("expected no canvas on failure")
	}
	if !errors.Is(err, domain.ErrTileFetchFailed) {
		t.Fatalf("expected ErrTileFetchFailed, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected timeout cause, got %v", err)
	}
	if stage, _ := domain.StageOf(err); stage != domain.StageTiles {
		t.Fatalf("stage = %q, want tiles", stage)
	}
	if got := src.maxCalls(); got != 3 {
		t.Fatalf("attempts on failing tile = %d, want retries+1 = 3", got)
	}
	// Concurrency 1 means the first tile exhausts its budget and cancels the rest.
	if got := src.total.Load(); got != 3 {
		t.Fatalf("total fetches = %d, want 3", got)
	}
}

func TestComposeDoesNotRetryPermanentErrors(t *testing.T) {
	src := newStubSource(func(context.Context, tile.Request, int) ([]byte, error) {
		return nil, &tile.StatusError{StatusCode: 404, URL: "stub"}
	})
	c, _ := New(Options{Source: src, Retries: 3, Backoff: time.Millisecond})
	_, err := c.Compose(context.Background(), newMapper(t, 200, 200))
	if !errors.Is(err, domain.ErrTileFetchFailed) {
		t.Fatalf("expected ErrTileFetchFailed, got %v", err)
	}
	if got := src.maxCalls(); got != 1 {
		t.Fatalf("permanent error retried: %d attempts", got)
	}
}

func TestComposeGuards(t *testing.T) {
	src := newStubSource(func(context.Context, tile.Request, int) ([]byte, error) { return nil, nil })
	c, _ := New(Options{Source: src, MaxTiles: 2})
	_, err := c.Compose(context.Background(), newMapper(t, 800, 1000))
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for tile limit, got %v", err)
	}

	src.zoom = geo.ZoomRange{Min: 0, Max: 10}
	_, err = c.Compose(context.Background(), newMapper(t, 100, 100))
	if !errors.Is(err, domain.ErrUnsupportedZoom) {
		t.Fatalf("expected ErrUnsupportedZoom, got %v", err)
	}
	if src.total.Load() != 0 {
		t.Fatalf("guards must fail before fetching")
	}

	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error without source")
	}
}

func TestComposeSyntheticSourceTranslatesScheme(t *testing.T) {
	c, _ := New(Options{Source: tile.NewSynthetic(tile.SyntheticOptions{})})
	canvas, err := c.Compose(context.Background(), newMapper(t, 300, 300))
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	var water int
	for i := 0; i < len(canvas.Pix); i += 4 {
		if canvas.Pix[i] == tile.WaterColor.R && canvas.Pix[i+1] == tile.WaterColor.G && canvas.Pix[i+2] == tile.WaterColor.B {
			water++
		}
	}
	if water == 0 {
		t.Fatalf("expected water on the synthetic base map")
	}
}
