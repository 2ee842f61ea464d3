package export

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"mapengrave/internal/dimension"
	"mapengrave/internal/domain"
	"mapengrave/internal/encode"
	"mapengrave/internal/geo"
	"mapengrave/internal/pricing"
	"mapengrave/internal/providers/tile"
	"mapengrave/internal/tiles"
)

const parisJSON = `{
	"order_number": "#1001",
	"viewport": {"lat": 48.8566, "lng": 2.3522, "zoom": 12, "search_label": "Paris, France"},
	"product": {"shape": "rectangle", "size": "standard", "material": "oak", "aspect_ratio": "4:5"},
	"customizations": [
		{"kind": "text", "id": "t1", "content": "Paris", "x": 50, "y": 80, "font_size": 32, "color": "#000"},
		{"kind": "icon", "id": "i1", "type": "heart", "x": 50, "y": 50, "size": 40}
	]
}`

func parisRequest(t *testing.T) Request {
	t.Helper()
	var req Request
	if err := json.Unmarshal([]byte(parisJSON), &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	return req
}

func newPipeline(t *testing.T, src tile.Source, env encode.Envelope) *Pipeline {
	t.Helper()
	comp, err := tiles.New(tiles.Options{Source: src, Retries: -1})
	if err != nil {
		t.Fatalf("compositor: %v", err)
	}
	scaler, err := dimension.NewScaler(nil, 0, 0)
	if err != nil {
		t.Fatalf("scaler: %v", err)
	}
	enc, err := encode.New(encode.Options{Envelope: env})
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}
	p, err := New(Options{Compositor: comp, Scaler: scaler, Encoder: enc, NewID: func() string { return "exp-test" }})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	return p
}

func TestRunParisEndToEnd(t *testing.T) {
	ctx := context.Background()
	req := parisRequest(t)
	src := tile.NewSynthetic(tile.SyntheticOptions{})

	p := newPipeline(t, src, encode.Envelope{})
	env := p.encoder.Envelope()
	if env.MinBytes != encode.DefaultMinBytes || env.MaxBytes != encode.DefaultMaxBytes {
		t.Fatalf("pipeline envelope = %+v, want the defaults", env)
	}

	res, err := p.Run(ctx, req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !env.Contains(len(res.Data)) || res.Bytes != len(res.Data) {
		t.Fatalf("size %d (%d) outside [%d,%d]", len(res.Data), res.Bytes, env.MinBytes, env.MaxBytes)
	}
	if res.Filename != "Order1001_Map.jpg" {
		t.Fatalf("filename = %q", res.Filename)
	}
	if res.MIME != "image/jpeg" || res.ExportID != "exp-test" {
		t.Fatalf("unexpected identity %q %q", res.MIME, res.ExportID)
	}
	if res.Width != 2400 || res.Height != 3000 || res.DPI != 300 {
		t.Fatalf("got %dx%d @%d, want 2400x3000 @300", res.Width, res.Height, res.DPI)
	}
	x, y, err := encode.ReadDPI(res.Data)
	if err != nil || x != 300 || y != 300 {
		t.Fatalf("embedded dpi = %d,%d (%v)", x, y, err)
	}
	if res.Engraved <= 0 || res.Engraved >= 1 {
		t.Fatalf("engraved share = %v, want water and land", res.Engraved)
	}
	if b := res.BBox; !(b.West < 2.3522 && 2.3522 < b.East && b.South < 48.8566 && 48.8566 < b.North) {
		t.Fatalf("bbox %+v does not contain Paris", b)
	}

	quote := pricing.NewEngine(nil).Quote(req.Product, req.Customizations)
	if quote.String() != "72.99" {
		t.Fatalf("price = %s, want 72.99", quote)
	}
}

func TestRunSameTierSameDimensions(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, tile.NewSynthetic(tile.SyntheticOptions{}), encode.Envelope{MinBytes: 1, MaxBytes: 1 << 30})
	a := parisRequest(t)
	a.Product.Size = "compact"
	b := a
	b.Viewport = domain.ViewportSpec{Latitude: 40.7128, Longitude: -74.006, Zoom: 12}
	b.Product.Material = "metal"

	ra, err := p.Run(ctx, a)
	if err != nil {
		t.Fatalf("run a: %v", err)
	}
	rb, err := p.Run(ctx, b)
	if err != nil {
		t.Fatalf("run b: %v", err)
	}
	if ra.Width != rb.Width || ra.Height != rb.Height {
		t.Fatalf("%dx%d != %dx%d", ra.Width, ra.Height, rb.Width, rb.Height)
	}
	if ra.Width != 1500 || ra.Height != 2100 {
		t.Fatalf("compact = %dx%d", ra.Width, ra.Height)
	}
}

type brokenSource struct {
	calls atomic.Int32
}

func (s *brokenSource) Name() string             { return "broken" }
func (s *brokenSource) Scheme() tile.Scheme      { return tile.SchemeXYZ }
func (s *brokenSource) ZoomRange() geo.ZoomRange { return geo.ZoomRange{Min: 0, Max: 19} }

func (s *brokenSource) FetchTile(ctx context.Context, req tile.Request) ([]byte, error) {
	s.calls.Add(1)
	return nil, &tile.StatusError{StatusCode: 503, URL: "broken://" + req.String()}
}

func TestRunTileFailureAbortsWithoutArtifact(t *testing.T) {
	src := &brokenSource{}
	res, err := newPipeline(t, src, encode.Envelope{MinBytes: 1, MaxBytes: 1 << 30}).Run(context.Background(), parisRequest(t))
	if res != nil {
		t.Fatalf("expected no result, got %+v", res)
	}
	if !errors.Is(err, domain.ErrTileFetchFailed) {
		t.Fatalf("err = %v, want tile fetch failed", err)
	}
	if stage, _ := domain.StageOf(err); stage != domain.StageTiles {
		t.Fatalf("stage = %q", stage)
	}
	if src.calls.Load() == 0 {
		t.Fatalf("source never called")
	}
}

func TestRunRejectsBeforeFetching(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Request)
		kind   error
		stage  domain.Stage
	}{
		"missing order number":  {func(r *Request) { r.OrderNumber = " # " }, domain.ErrInvalidConfig, domain.StageValidate},
		"latitude out of range": {func(r *Request) { r.Viewport.Latitude = 91 }, domain.ErrInvalidConfig, domain.StageValidate},
		"unknown size":          {func(r *Request) { r.Product.Size = "poster" }, domain.ErrInvalidConfig, domain.StageValidate},
		"zoom beyond source":    {func(r *Request) { r.Viewport.Zoom = 22 }, domain.ErrUnsupportedZoom, domain.StageMapper},
		"duplicate ids": {func(r *Request) {
			r.Customizations = append(r.Customizations, domain.TextItem{ID: "t1", Content: "again", X: 1, Y: 1, FontSize: 10})
		}, domain.ErrInvalidConfig, domain.StageValidate},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			src := &brokenSource{}
			req := parisRequest(t)
			tc.mutate(&req)
			_, err := newPipeline(t, src, encode.Envelope{MinBytes: 1, MaxBytes: 1 << 30}).Run(context.Background(), req)
			if !errors.Is(err, tc.kind) {
				t.Fatalf("err = %v, want %v", err, tc.kind)
			}
			if stage, _ := domain.StageOf(err); stage != tc.stage {
				t.Fatalf("stage = %q, want %q", stage, tc.stage)
			}
			if n := src.calls.Load(); n != 0 {
				t.Fatalf("fetched %d tiles before failing", n)
			}
		})
	}
}

func TestRunEnvelopeUnreachable(t *testing.T) {
	req := parisRequest(t)
	req.Product.Size = "compact"
	p := newPipeline(t, tile.NewSynthetic(tile.SyntheticOptions{}), encode.Envelope{MinBytes: 1 << 40, MaxBytes: 1 << 41})
	res, err := p.Run(context.Background(), req)
	if res != nil || !errors.Is(err, domain.ErrSizeEnvelopeUnreachable) {
		t.Fatalf("res=%v err=%v", res, err)
	}
	if stage, _ := domain.StageOf(err); stage != domain.StageEncode {
		t.Fatalf("stage = %q", stage)
	}
}

func TestFilename(t *testing.T) {
	cases := map[string]string{
		"1001":        "Order1001_Map.jpg",
		"#1001":       "Order1001_Map.jpg",
		" A-12_b ":    "OrderA-12_b_Map.jpg",
		"../etc/9 9":  "Orderetc99_Map.jpg",
		"Ünïcode#42x": "Orderncode42x_Map.jpg",
	}
	for in, want := range cases {
		got, err := Filename(in)
		if err != nil {
			t.Fatalf("Filename(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("Filename(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := Filename("###"); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
}
