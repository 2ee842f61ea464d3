package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mapengrave/internal/adapter/cache"
	"mapengrave/internal/adapter/repo"
	"mapengrave/internal/bootstrap"
	"mapengrave/internal/cart"
	"mapengrave/internal/domain"
	"mapengrave/internal/http/handlers"
	httpapi "mapengrave/internal/http/httpapi"
	"mapengrave/internal/infra"
	"mapengrave/internal/infra/credentials"
	"mapengrave/internal/infra/geoip"
	"mapengrave/internal/middleware"
	"mapengrave/internal/order"
	"mapengrave/internal/pricing"
	"mapengrave/internal/providers/commerce"
	"mapengrave/internal/storage"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg)
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := middleware.NewMetrics(reg)

	cat, err := bootstrap.Catalog(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load catalog")
	}
	exporter, err := bootstrap.Exporter(cfg, cat, metrics, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build export pipeline")
	}
	geocoder, err := bootstrap.Geocoder(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build geocoder")
	}
	files, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare storage")
	}

	// Optional PostgreSQL: export log and stored storefront token.
	var (
		exportLog domain.ExportLog
		tokens    order.TokenSource
	)
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		runner := infra.NewSQLRunner(pool, logger)
		exportLog = repo.NewExportLog(runner)
		tokens = credentials.NewStore(runner)
	}

	// Optional Redis for idempotency keys shared between instances.
	var idem cart.IdempotencyStore = cart.NewMemoryIdempotency(cfg.IdempotencyTTL)
	if cfg.RedisURL != "" {
		rdb, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()
		idem = cache.NewRedisIdempotencyStore(rdb, cfg.IdempotencyTTL)
	}

	var (
		backend commerce.Backend
		stores  order.StoreResolver
	)
	if cfg.StorefrontConfigured() {
		backend = commerce.NewStorefront(commerce.StorefrontOptions{Logger: &logger})
		stores = order.ConfiguredStore{
			Base: commerce.StoreConfig{
				Domain:      cfg.StorefrontDomain,
				AccessToken: cfg.StorefrontToken,
				VariantID:   cfg.StorefrontVariantID,
				APIVersion:  cfg.StorefrontAPIVersion,
			},
			Tokens: tokens,
		}
	} else {
		logger.Warn().Msg("no storefront configured, carts are kept in memory")
		backend = bootstrap.LocalCommerce(cat)
		stores = order.ConfiguredStore{Base: bootstrap.LocalStore}
	}
	reconciler := cart.NewReconciler(backend, cart.Options{Idempotency: idem, Logger: &logger})

	engine := pricing.NewEngine(cat)
	orders, err := order.NewService(order.Options{
		Exporter:   exporter,
		Pricing:    engine,
		Geocoder:   geocoder,
		Reconciler: reconciler,
		Stores:     stores,
		Artifacts:  files,
		ExportLog:  exportLog,
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build order service")
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()
	var lookup middleware.CountryLookup
	if resolver != nil {
		lookup = resolver.CountryCode
	}

	app := &handlers.App{
		Orders:    orders,
		Exports:   exporter,
		Pricing:   engine,
		Carts:     reconciler,
		Stores:    stores,
		ExportLog: exportLog,
		Artifacts: files,
		Metrics:   metrics,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:         logger,
		Metrics:        metrics,
		Gatherer:       reg,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RatePerMinute:  cfg.RateLimitPerMin,
		DefaultLocale:  cfg.DefaultLocale,
		CountryLookup:  lookup,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("port", cfg.Port).Str("tiles", cfg.TileProvider).Bool("storefront", cfg.StorefrontConfigured()).Msg("API listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
