// Package geocode resolves coordinates to human readable place labels.
package geocode

import (
	"context"
	"fmt"
	"strings"

	"mapengrave/internal/domain"
	"mapengrave/internal/infra"
)

// Place is the result of a reverse lookup.
type Place struct {
	City        string `json:"city"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	DisplayName string `json:"display_name,omitempty"`
}

// Label formats the place as "City, Country", dropping empty parts.
func (p Place) Label() string {
	parts := make([]string, 0, 2)
	for _, s := range []string{p.City, p.Country} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// ReverseGeocoder looks up the place at a coordinate.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (Place, error)
}

// New selects a geocoder by provider name: "nominatim", or "static" / ""
// for the offline geocoder.
func New(provider string, opts Options) (ReverseGeocoder, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "static", "none":
		return Static{}, nil
	case "nominatim":
		return NewNominatim(opts), nil
	default:
		return nil, fmt.Errorf("geocode: unknown provider %q", provider)
	}
}

// Label returns the location label for v. A search label chosen by the user
// wins; otherwise g is asked. Lookup failures are logged as
// ErrGeocodeUnavailable and degrade to an empty label.
func Label(ctx context.Context, g ReverseGeocoder, v domain.ViewportSpec, logger *infra.Logger) string {
	if label := v.Label(); label != "" {
		return label
	}
	if g == nil {
		return ""
	}
	place, err := g.ReverseGeocode(ctx, v.Latitude, v.Longitude)
	if err != nil {
		if logger != nil {
			werr := domain.NewStageError(domain.ErrGeocodeUnavailable, domain.StageGeocode, err)
			logger.Warn().Err(werr).Float64("lat", v.Latitude).Float64("lng", v.Longitude).Msg("location label unavailable")
		}
		return ""
	}
	return place.Label()
}

// Static answers every lookup with a fixed place, or fails with
// ErrGeocodeUnavailable when Place is empty.
type Static struct {
	Place Place
}

func (s Static) ReverseGeocode(ctx context.Context, lat, lng float64) (Place, error) {
	if err := ctx.Err(); err != nil {
		return Place{}, err
	}
	if s.Place == (Place{}) {
		return Place{}, domain.ErrGeocodeUnavailable
	}
	return s.Place, nil
}

var _ ReverseGeocoder = Static{}
