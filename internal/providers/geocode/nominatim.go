package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mapengrave/internal/infra"
)

// Options configures the Nominatim client.
type Options struct {
	BaseURL        string
	UserAgent      string
	Language       string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Logger         *infra.Logger
}

// Nominatim calls the OpenStreetMap Nominatim reverse endpoint.
type Nominatim struct {
	baseURL    string
	userAgent  string
	language   string
	httpClient *http.Client
	logger     *infra.Logger
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
	Address     struct {
		City         string `json:"city"`
		Town         string `json:"town"`
		Village      string `json:"village"`
		Municipality string `json:"municipality"`
		County       string `json:"county"`
		State        string `json:"state"`
		Country      string `json:"country"`
		CountryCode  string `json:"country_code"`
	} `json:"address"`
}

// NewNominatim applies defaults to opts.
func NewNominatim(opts Options) *Nominatim {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = "mapengrave/1.0"
	}
	language := strings.TrimSpace(opts.Language)
	if language == "" {
		language = "en"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Nominatim{
		baseURL:    baseURL,
		userAgent:  userAgent,
		language:   language,
		httpClient: httpClient,
		logger:     logger,
	}
}

// ReverseGeocode resolves lat/lng at city granularity.
func (n *Nominatim) ReverseGeocode(ctx context.Context, lat, lng float64) (Place, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', 6, 64))
	q.Set("zoom", "10")
	q.Set("addressdetails", "1")
	endpoint := n.baseURL + "/reverse?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Place{}, fmt.Errorf("geocode: build request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", n.language)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return Place{}, fmt.Errorf("geocode: http request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Place{}, fmt.Errorf("geocode: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Place{}, fmt.Errorf("geocode: nominatim status %d", resp.StatusCode)
	}
	var decoded reverseResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Place{}, fmt.Errorf("geocode: decode response: %w", err)
	}
	if decoded.Error != "" {
		return Place{}, fmt.Errorf("geocode: nominatim: %s", decoded.Error)
	}
	a := decoded.Address
	place := Place{
		City:        firstNonEmpty(a.City, a.Town, a.Village, a.Municipality, a.County, a.State),
		Country:     a.Country,
		CountryCode: strings.ToUpper(a.CountryCode),
		DisplayName: decoded.DisplayName,
	}
	n.logger.Debug().Str("label", place.Label()).Msg("reverse geocoded")
	return place, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

var _ ReverseGeocoder = (*Nominatim)(nil)
