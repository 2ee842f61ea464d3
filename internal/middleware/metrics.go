package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"mapengrave/internal/domain"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	tileFetches  *prometheus.CounterVec
	tileDuration *prometheus.HistogramVec
	exports      *prometheus.CounterVec
	exportTime   prometheus.Histogram
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_ms",
				Help:    "Duration of HTTP requests in ms",
				Buckets: []float64{5, 25, 100, 400, 1600, 6400, 25600},
			},
			[]string{"method", "route"},
		),
		tileFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tile_fetches_total",
				Help: "Tile fetch attempts by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		tileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tile_fetch_duration_ms",
				Help:    "Duration of tile fetch attempts in ms",
				Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 10000},
			},
			[]string{"provider"},
		),
		exports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exports_total",
				Help: "Export runs by result code",
			},
			[]string{"code"},
		),
		exportTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "export_duration_seconds",
				Help:    "Duration of successful export runs",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
			},
		),
	}
	reg.MustRegister(m.httpRequests, m.httpDuration, m.tileFetches, m.tileDuration, m.exports, m.exportTime)
	return m
}

// Handler records request counts and latencies by chi route pattern.
func (m *Metrics) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// ObserveTileFetch implements tiles.FetchObserver.
func (m *Metrics) ObserveTileFetch(provider string, err error, took time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		var se interface{ Timeout() bool }
		if errors.As(err, &se) && se.Timeout() {
			outcome = "timeout"
		}
	}
	m.tileFetches.WithLabelValues(provider, outcome).Inc()
	m.tileDuration.WithLabelValues(provider).Observe(float64(took.Milliseconds()))
}

// ObserveExport counts an export run; err nil counts as "ok".
func (m *Metrics) ObserveExport(err error, took time.Duration) {
	if err != nil {
		m.exports.WithLabelValues(domain.Code(err)).Inc()
		return
	}
	m.exports.WithLabelValues("ok").Inc()
	m.exportTime.Observe(took.Seconds())
}
