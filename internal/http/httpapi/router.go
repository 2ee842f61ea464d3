package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"mapengrave/internal/http/handlers"
	"mapengrave/internal/middleware"
)

// Options configures the middleware chain around the handlers.
type Options struct {
	Logger         zerolog.Logger
	Metrics        *middleware.Metrics
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	RatePerMinute  int
	DefaultLocale  string
	CountryLookup  middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
	)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Handler)
	}
	r.Use(
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	// Health
	r.Get("/v1/healthz", app.Health)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RatePerMinute, time.Minute))

		r.Post("/v1/quotes", app.Quotes)
		r.Route("/v1/exports", func(r chi.Router) {
			r.Post("/", app.ExportsCreate)
			r.Get("/{id}", app.ExportGet)
			r.Get("/{id}/file", app.ExportFile)
		})
		r.Post("/v1/cart/lines", app.CartLines)
		r.Post("/v1/orders", app.OrdersCreate)
		r.Get("/v1/orders/{number}/exports", app.OrderExports)
	})

	return r
}
