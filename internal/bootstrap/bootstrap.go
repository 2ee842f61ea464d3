// Package bootstrap assembles the export pipeline and its providers from
// configuration for the binaries under cmd/.
package bootstrap

import (
	"fmt"
	"strings"

	"mapengrave/internal/catalog"
	"mapengrave/internal/dimension"
	"mapengrave/internal/encode"
	"mapengrave/internal/export"
	"mapengrave/internal/infra"
	"mapengrave/internal/overlay"
	"mapengrave/internal/providers/commerce"
	"mapengrave/internal/providers/geocode"
	"mapengrave/internal/providers/tile"
	"mapengrave/internal/tiles"
)

// Catalog loads CATALOG_PATH, or the embedded catalog when it is unset.
func Catalog(cfg *infra.Config) (*catalog.Catalog, error) {
	if strings.TrimSpace(cfg.CatalogPath) == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return cat, nil
}

// LocalStore addresses the in-process cart used when no storefront is configured.
var LocalStore = commerce.StoreConfig{Domain: "local", AccessToken: "local", VariantID: "local-engraved-map"}

// LocalCommerce returns an in-memory backend that sells LocalStore's variant
// at the base price of the catalog's fallback tier.
func LocalCommerce(cat *catalog.Catalog) *commerce.Memory {
	if cat == nil {
		cat = catalog.Default()
	}
	tier, _ := cat.Tier(cat.FallbackSize)
	return commerce.NewMemory(cat.Currency, commerce.Product{
		ID:     "local-engraved-map-product",
		Title:  "Engraved map",
		Handle: "engraved-map",
		Variants: []commerce.Variant{{
			ID:               LocalStore.VariantID,
			Title:            "Engraved map",
			AvailableForSale: true,
			Price:            commerce.Money{Amount: tier.BasePrice, CurrencyCode: cat.Currency},
		}},
	})
}

// Exporter wires tile source, compositor, renderer, scaler and encoder into a
// pipeline. observer may be nil.
func Exporter(cfg *infra.Config, cat *catalog.Catalog, observer tiles.FetchObserver, logger *infra.Logger) (*export.Pipeline, error) {
	scheme, err := tile.ParseScheme(cfg.TileScheme)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	src, err := tile.New(cfg.TileProvider, tile.Options{
		URLTemplate: cfg.TileURLTemplate,
		Scheme:      scheme,
		UserAgent:   cfg.TileUserAgent,
		Timeout:     cfg.TileTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: tile source: %w", err)
	}
	compositor, err := tiles.New(tiles.Options{
		Source:        src,
		Concurrency:   cfg.TileConcurrency,
		Retries:       cfg.TileRetries,
		Backoff:       cfg.TileBackoff,
		FetchTimeout:  cfg.TileTimeout,
		RatePerSecond: cfg.TileRatePerSecond,
		Observer:      observer,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: compositor: %w", err)
	}
	scaler, err := dimension.NewScaler(cat, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: scaler: %w", err)
	}
	encoder, err := encode.New(encode.Options{
		Envelope:      encode.Envelope{MinBytes: cfg.ExportMinBytes, MaxBytes: cfg.ExportMaxBytes},
		MaxIterations: cfg.ExportMaxIterations,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: encoder: %w", err)
	}
	return export.New(export.Options{
		Compositor: compositor,
		Renderer:   overlay.NewRenderer(overlay.Options{EditorWidth: cfg.EditorWidth, Logger: logger}),
		Scaler:     scaler,
		Encoder:    encoder,
		Logger:     logger,
	})
}

// Geocoder selects the reverse geocoder named by GEOCODER_PROVIDER.
func Geocoder(cfg *infra.Config, logger *infra.Logger) (geocode.ReverseGeocoder, error) {
	g, err := geocode.New(cfg.GeocoderProvider, geocode.Options{
		BaseURL:   cfg.GeocoderBaseURL,
		UserAgent: cfg.TileUserAgent,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return g, nil
}
