// Package tile provides raster map tile sources for the compositor.
package tile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"mapengrave/internal/geo"
)

// Scheme is the row numbering convention of a tile source.
type Scheme string

const (
	// SchemeXYZ numbers rows from the north (slippy map / Google scheme).
	SchemeXYZ Scheme = "xyz"
	// SchemeTMS numbers rows from the south.
	SchemeTMS Scheme = "tms"
)

// ParseScheme parses a scheme name, defaulting to xyz.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(s))) {
	case "", SchemeXYZ:
		return SchemeXYZ, nil
	case SchemeTMS:
		return SchemeTMS, nil
	default:
		return "", fmt.Errorf("tile: unknown scheme %q", s)
	}
}

// Request addresses one tile. Y is expressed in Scheme.
type Request struct {
	Scheme Scheme
	Z      int
	X      int
	Y      int
}

// In returns the same tile addressed in scheme s.
func (r Request) In(s Scheme) Request {
	from, to := r.Scheme, s
	if from == "" {
		from = SchemeXYZ
	}
	if to == "" {
		to = SchemeXYZ
	}
	if from != to {
		r.Y = (1 << uint(r.Z)) - 1 - r.Y
	}
	r.Scheme = to
	return r
}

func (r Request) String() string {
	return fmt.Sprintf("%s/%d/%d/%d", r.Scheme, r.Z, r.X, r.Y)
}

// Source fetches encoded raster tiles (PNG, JPEG or WebP).
type Source interface {
	Name() string
	Scheme() Scheme
	ZoomRange() geo.ZoomRange
	FetchTile(ctx context.Context, req Request) ([]byte, error)
}

// StatusError reports a non-200 answer from a tile server.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tile: %s returned %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsPermanent reports whether retrying err cannot succeed: client errors
// other than 408 and 429.
func IsPermanent(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	if se.StatusCode == http.StatusTooManyRequests || se.StatusCode == http.StatusRequestTimeout {
		return false
	}
	return se.StatusCode >= 400 && se.StatusCode < 500
}

type preset struct {
	template   string
	subdomains []string
	scheme     Scheme
	zoom       geo.ZoomRange
}

var presets = map[string]preset{
	"osm": {
		template: "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
		scheme:   SchemeXYZ,
		zoom:     geo.ZoomRange{Min: 0, Max: 19},
	},
	"osm-hot": {
		template:   "https://{s}.tile.openstreetmap.fr/hot/{z}/{x}/{y}.png",
		subdomains: []string{"a", "b", "c"},
		scheme:     SchemeXYZ,
		zoom:       geo.ZoomRange{Min: 0, Max: 19},
	},
	"carto-voyager": {
		template:   "https://{s}.basemaps.cartocdn.com/rastertiles/voyager/{z}/{x}/{y}.png",
		subdomains: []string{"a", "b", "c", "d"},
		scheme:     SchemeXYZ,
		zoom:       geo.ZoomRange{Min: 0, Max: 20},
	},
}

// Names lists the providers New understands.
func Names() []string {
	out := []string{"synthetic", "custom"}
	for name := range presets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New builds the source registered under name. "custom" requires
// opts.URLTemplate; presets fill template, subdomains and zoom range unless
// opts overrides them.
func New(name string, opts Options) (Source, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "", "synthetic":
		return NewSynthetic(SyntheticOptions{Zoom: opts.Zoom}), nil
	case "custom":
		if strings.TrimSpace(opts.URLTemplate) == "" {
			return nil, errors.New("tile: custom provider needs a url template")
		}
		if opts.Name == "" {
			opts.Name = name
		}
		return NewHTTPSource(opts)
	}
	p, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("tile: unknown provider %q", name)
	}
	opts.Name = name
	if opts.URLTemplate == "" {
		opts.URLTemplate = p.template
		opts.Subdomains = p.subdomains
		opts.Scheme = p.scheme
	}
	if opts.Zoom == (geo.ZoomRange{}) {
		opts.Zoom = p.zoom
	}
	return NewHTTPSource(opts)
}
