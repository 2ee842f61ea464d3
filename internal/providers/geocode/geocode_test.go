package geocode

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"mapengrave/internal/domain"
	"mapengrave/internal/infra"
)

type countingGeocoder struct {
	calls int
	place Place
	err   error
}

func (c *countingGeocoder) ReverseGeocode(context.Context, float64, float64) (Place, error) {
	c.calls++
	return c.place, c.err
}

func TestNominatimReverseGeocode(t *testing.T) {
	var gotQuery, gotAgent, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAgent = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		_, _ = w.Write([]byte(`{"display_name":"Paris, Île-de-France, France","address":{"city":"Paris","country":"France","country_code":"fr"}}`))
	}))
	defer srv.Close()

	n := NewNominatim(Options{BaseURL: srv.URL + "/", UserAgent: "engrave-test", Language: "fr"})
	place, err := n.ReverseGeocode(context.Background(), 48.8566, 2.3522)
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if place.Label() != "Paris, France" || place.CountryCode != "FR" {
		t.Fatalf("place = %+v", place)
	}
	if !strings.Contains(gotQuery, "lat=48.856600") || !strings.Contains(gotQuery, "lon=2.352200") {
		t.Fatalf("query = %s", gotQuery)
	}
	if gotAgent != "engrave-test" || gotLang != "fr" {
		t.Fatalf("headers agent=%q lang=%q", gotAgent, gotLang)
	}
}

func TestNominatimFallsBackToTown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"address":{"town":"Honfleur","country":"France"}}`))
	}))
	defer srv.Close()
	place, err := NewNominatim(Options{BaseURL: srv.URL}).ReverseGeocode(context.Background(), 49.41, 0.23)
	if err != nil || place.City != "Honfleur" {
		t.Fatalf("place = %+v, err = %v", place, err)
	}
}

func TestNominatimErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("lat") == "0.000000" {
			_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	n := NewNominatim(Options{BaseURL: srv.URL})
	if _, err := n.ReverseGeocode(context.Background(), 0, 0); err == nil {
		t.Fatalf("expected error for nominatim error payload")
	}
	if _, err := n.ReverseGeocode(context.Background(), 1, 1); err == nil {
		t.Fatalf("expected error for 503")
	}
}

func TestLabelPrefersSearchLabel(t *testing.T) {
	g := &countingGeocoder{place: Place{City: "Lyon", Country: "France"}}
	got := Label(context.Background(), g, domain.ViewportSpec{SearchLabel: " Eiffel Tower "}, nil)
	if got != "Eiffel Tower" || g.calls != 0 {
		t.Fatalf("label = %q after %d calls", got, g.calls)
	}
	got = Label(context.Background(), g, domain.ViewportSpec{Latitude: 45.76, Longitude: 4.84}, nil)
	if got != "Lyon, France" || g.calls != 1 {
		t.Fatalf("label = %q after %d calls", got, g.calls)
	}
}

func TestLabelDegradesOnFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := infra.Logger(zerolog.New(&buf))
	got := Label(context.Background(), Static{}, domain.ViewportSpec{Latitude: 1, Longitude: 1}, &logger)
	if got != "" {
		t.Fatalf("label = %q, want empty", got)
	}
	if !strings.Contains(buf.String(), "geocode unavailable") {
		t.Fatalf("expected warning log, got %s", buf.String())
	}
	if Label(context.Background(), nil, domain.ViewportSpec{}, nil) != "" {
		t.Fatalf("nil geocoder must yield empty label")
	}
}

func TestNewSelectsProvider(t *testing.T) {
	if g, err := New("", Options{}); err != nil {
		t.Fatalf("default: %v", err)
	} else if _, ok := g.(Static); !ok {
		t.Fatalf("default provider = %T", g)
	}
	if g, err := New("Nominatim", Options{}); err != nil {
		t.Fatalf("nominatim: %v", err)
	} else if _, ok := g.(*Nominatim); !ok {
		t.Fatalf("nominatim provider = %T", g)
	}
	if _, err := New("google", Options{}); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}
