package tile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mapengrave/internal/geo"
)

func TestRequestInFlipsRowsBetweenSchemes(t *testing.T) {
	req := Request{Scheme: SchemeXYZ, Z: 3, X: 2, Y: 1}
	tms := req.In(SchemeTMS)
	if tms.Y != 6 || tms.Scheme != SchemeTMS {
		t.Fatalf("tms request = %+v, want y=6", tms)
	}
	if back := tms.In(SchemeXYZ); back != req {
		t.Fatalf("round trip = %+v, want %+v", back, req)
	}
	if same := req.In(SchemeXYZ); same != req {
		t.Fatalf("same scheme changed request: %+v", same)
	}
}

func TestIsPermanent(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&StatusError{StatusCode: 404}, true},
		{&StatusError{StatusCode: 403}, true},
		{&StatusError{StatusCode: 429}, false},
		{&StatusError{StatusCode: 408}, false},
		{&StatusError{StatusCode: 503}, false},
		{fmt.Errorf("wrapped: %w", &StatusError{StatusCode: 400}), true},
		{context.DeadlineExceeded, false},
		{errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsPermanent(tc.err); got != tc.want {
			t.Fatalf("IsPermanent(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestNewRegistry(t *testing.T) {
	src, err := New("", Options{})
	if err != nil || src.Name() != "synthetic" {
		t.Fatalf("default provider = %v, %v", src, err)
	}
	src, err = New("OSM-HOT", Options{})
	if err != nil {
		t.Fatalf("osm-hot: %v", err)
	}
	if src.ZoomRange() != (geo.ZoomRange{Min: 0, Max: 19}) {
		t.Fatalf("osm-hot zoom range = %+v", src.ZoomRange())
	}
	if _, err := New("custom", Options{}); err == nil {
		t.Fatalf("expected error for custom provider without template")
	}
	if _, err := New("nope", Options{}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	names := strings.Join(Names(), ",")
	if names != "carto-voyager,custom,osm,osm-hot,synthetic" {
		t.Fatalf("Names() = %s", names)
	}
}

func TestHTTPSourceURL(t *testing.T) {
	src, err := NewHTTPSource(Options{
		URLTemplate: "https://{s}.tiles.test/{z}/{x}/{y}.png",
		Subdomains:  []string{"a", "b"},
		Scheme:      SchemeTMS,
	})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	got := src.URL(Request{Scheme: SchemeXYZ, Z: 2, X: 1, Y: 0})
	if got != "https://a.tiles.test/2/1/3.png" {
		t.Fatalf("url = %s", got)
	}

	if _, err := NewHTTPSource(Options{URLTemplate: "https://tiles.test/{z}/{x}.png"}); err == nil {
		t.Fatalf("expected error for template without {y}")
	}
	if _, err := NewHTTPSource(Options{URLTemplate: "https://{s}.t/{z}/{x}/{y}"}); err == nil {
		t.Fatalf("expected error for {s} without subdomains")
	}
}

func TestHTTPSourceFetchTile(t *testing.T) {
	var gotAgent, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		gotPath = r.URL.Path
		if strings.HasPrefix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("tile-bytes"))
	}))
	defer srv.Close()

	src, err := NewHTTPSource(Options{URLTemplate: srv.URL + "/{z}/{x}/{y}.png", UserAgent: "engrave-test"})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	data, err := src.FetchTile(context.Background(), Request{Z: 12, X: 2074, Y: 1409})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(data) != "tile-bytes" {
		t.Fatalf("body = %q", data)
	}
	if gotAgent != "engrave-test" {
		t.Fatalf("user agent = %q", gotAgent)
	}
	if gotPath != "/12/2074/1409.png" {
		t.Fatalf("path = %q", gotPath)
	}

	missing, _ := NewHTTPSource(Options{URLTemplate: srv.URL + "/missing/{z}/{x}/{y}.png"})
	_, err = missing.FetchTile(context.Background(), Request{Z: 1, X: 0, Y: 0})
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 status error, got %v", err)
	}
	if !IsPermanent(err) {
		t.Fatalf("404 should be permanent")
	}
}

func TestSyntheticSourceIsDeterministicAndDecodes(t *testing.T) {
	src := NewSynthetic(SyntheticOptions{})
	req := Request{Z: 12, X: 2074, Y: 1409}
	a, err := src.FetchTile(context.Background(), req)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	b, _ := src.FetchTile(context.Background(), req)
	if !bytes.Equal(a, b) {
		t.Fatalf("synthetic tiles differ between calls")
	}
	img, err := png.Decode(bytes.NewReader(a))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != geo.TileSize || img.Bounds().Dy() != geo.TileSize {
		t.Fatalf("tile bounds = %v", img.Bounds())
	}

	if _, err := src.FetchTile(context.Background(), Request{Z: 2, X: 0, Y: 9}); !IsPermanent(err) {
		t.Fatalf("row outside world should be permanent, got %v", err)
	}
}

func TestSyntheticMapHasWaterAndLand(t *testing.T) {
	var water, land int
	for x := 2074; x <= 2076; x++ {
		img := RenderSynthetic(12, x, 1409)
		for i := 0; i < len(img.Pix); i += 4 {
			switch {
			case img.Pix[i] == WaterColor.R && img.Pix[i+1] == WaterColor.G && img.Pix[i+2] == WaterColor.B:
				water++
			case img.Pix[i] == LandColor.R && img.Pix[i+1] == LandColor.G && img.Pix[i+2] == LandColor.B:
				land++
			}
		}
	}
	if water == 0 || land == 0 {
		t.Fatalf("expected both water and land, got water=%d land=%d", water, land)
	}
}
