package tile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mapengrave/internal/geo"
	"mapengrave/internal/infra"
)

const maxTileBytes = 8 << 20

// DefaultUserAgent identifies the service to public tile servers, whose usage
// policies require a descriptive agent.
const DefaultUserAgent = "mapengrave/1.0 (+https://github.com/mapengrave)"

// Options configures an HTTP tile source.
type Options struct {
	Name        string
	URLTemplate string
	Subdomains  []string
	Scheme      Scheme
	Zoom        geo.ZoomRange
	UserAgent   string
	HTTPClient  *http.Client
	Timeout     time.Duration
	Logger      *infra.Logger
}

// HTTPSource fetches tiles from a URL template with {z}, {x}, {y} and
// optional {s} placeholders.
type HTTPSource struct {
	name       string
	template   string
	subdomains []string
	scheme     Scheme
	zoom       geo.ZoomRange
	userAgent  string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewHTTPSource validates the template and applies defaults.
func NewHTTPSource(opts Options) (*HTTPSource, error) {
	template := strings.TrimSpace(opts.URLTemplate)
	for _, ph := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(template, ph) {
			return nil, fmt.Errorf("tile: url template %q lacks %s", template, ph)
		}
	}
	if strings.Contains(template, "{s}") && len(opts.Subdomains) == 0 {
		return nil, fmt.Errorf("tile: url template %q uses {s} without subdomains", template)
	}
	scheme := opts.Scheme
	if scheme == "" {
		scheme = SchemeXYZ
	}
	zoom := opts.Zoom
	if zoom == (geo.ZoomRange{}) {
		zoom = geo.ZoomRange{Min: 0, Max: 19}
	}
	if zoom.Min < 0 || zoom.Max < zoom.Min {
		return nil, fmt.Errorf("tile: invalid zoom range [%d,%d]", zoom.Min, zoom.Max)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = "custom"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &HTTPSource{
		name:       name,
		template:   template,
		subdomains: append([]string(nil), opts.Subdomains...),
		scheme:     scheme,
		zoom:       zoom,
		userAgent:  userAgent,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

func (s *HTTPSource) Name() string             { return s.name }
func (s *HTTPSource) Scheme() Scheme           { return s.scheme }
func (s *HTTPSource) ZoomRange() geo.ZoomRange { return s.zoom }

// URL expands the template for req.
func (s *HTTPSource) URL(req Request) string {
	req = req.In(s.scheme)
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(req.Z),
		"{x}", strconv.Itoa(req.X),
		"{y}", strconv.Itoa(req.Y),
	)
	out := r.Replace(s.template)
	if len(s.subdomains) > 0 {
		sub := s.subdomains[(req.X+req.Y)%len(s.subdomains)]
		out = strings.ReplaceAll(out, "{s}", sub)
	}
	return out
}

// FetchTile downloads one tile.
func (s *HTTPSource) FetchTile(ctx context.Context, req Request) ([]byte, error) {
	url := s.URL(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("tile: build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", s.userAgent)
	httpReq.Header.Set("Accept", "image/png,image/jpeg,image/webp;q=0.9,*/*;q=0.5")

	start := time.Now()
	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tile: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("tile: read body: %w", err)
	}
	if len(data) > maxTileBytes {
		return nil, fmt.Errorf("tile: %s exceeds %d bytes", url, maxTileBytes)
	}
	s.logger.Debug().
		Str("provider", s.name).
		Str("tile", req.String()).
		Int("bytes", len(data)).
		Dur("took", time.Since(start)).
		Msg("tile fetched")
	return data, nil
}

var _ Source = (*HTTPSource)(nil)
