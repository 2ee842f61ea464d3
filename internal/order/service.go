// Package order submits an engraved map order: it exports the print file,
// prices it, resolves the location label and adds the line to the cart once
// the file exists.
package order

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"mapengrave/internal/cart"
	"mapengrave/internal/domain"
	"mapengrave/internal/export"
	"mapengrave/internal/infra"
	"mapengrave/internal/pricing"
	"mapengrave/internal/providers/geocode"
	"mapengrave/internal/storage"
)

// Exporter produces the print file.
type Exporter interface {
	Run(ctx context.Context, req export.Request) (*export.Result, error)
}

// ArtifactStore persists print files.
type ArtifactStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// Request is an order submission. The export fields are inlined in JSON.
type Request struct {
	export.Request
	CartID         string `json:"cart_id,omitempty"`
	Quantity       int    `json:"quantity,omitempty"`
	IdempotencyKey string `json:"-"`
}

// Result is the outcome of a successful submission.
type Result struct {
	Export     *export.Result `json:"export"`
	StorageKey string         `json:"storage_key,omitempty"`
	Quote      pricing.Quote  `json:"quote"`
	Label      string         `json:"label"`
	Cart       *cart.Result   `json:"cart,omitempty"`
}

// Options wires the service. Exporter and Pricing are required; without a
// Reconciler and Stores the cart step is skipped.
type Options struct {
	Exporter   Exporter
	Pricing    *pricing.Engine
	Geocoder   geocode.ReverseGeocoder
	Reconciler *cart.Reconciler
	Stores     StoreResolver
	Artifacts  ArtifactStore
	ExportLog  domain.ExportLog
	Logger     *infra.Logger
	Now        func() time.Time
}

type Service struct {
	exporter   Exporter
	pricing    *pricing.Engine
	geocoder   geocode.ReverseGeocoder
	reconciler *cart.Reconciler
	stores     StoreResolver
	artifacts  ArtifactStore
	exportLog  domain.ExportLog
	logger     *infra.Logger
	now        func() time.Time
}

func NewService(opts Options) (*Service, error) {
	if opts.Exporter == nil {
		return nil, errors.New("order: exporter is required")
	}
	if opts.Pricing == nil {
		return nil, errors.New("order: pricing engine is required")
	}
	if (opts.Reconciler == nil) != (opts.Stores == nil) {
		return nil, errors.New("order: reconciler and store resolver go together")
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		exporter:   opts.Exporter,
		pricing:    opts.Pricing,
		geocoder:   opts.Geocoder,
		reconciler: opts.Reconciler,
		stores:     opts.Stores,
		artifacts:  opts.Artifacts,
		exportLog:  opts.ExportLog,
		logger:     logger,
		now:        now,
	}, nil
}

// CartEnabled reports whether submissions reach a cart.
func (s *Service) CartEnabled() bool { return s.reconciler != nil }

// Quote prices a configuration without exporting it.
func (s *Service) Quote(product domain.ProductConfig, items domain.Customizations) pricing.Quote {
	return s.pricing.Quote(product, items)
}

// Submit runs the export, pricing and label lookup concurrently. The cart is
// mutated only after the export succeeded, so a failed export never leaves a
// cart line behind.
func (s *Service) Submit(ctx context.Context, req Request) (*Result, error) {
	if err := req.Request.Validate(); err != nil {
		return nil, err
	}

	var (
		exp   *export.Result
		label string
		quote pricing.Quote
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := s.exporter.Run(gctx, req.Request)
		if err != nil {
			return err
		}
		exp = res
		return nil
	})
	g.Go(func() error {
		label = geocode.Label(gctx, s.geocoder, req.Viewport, s.logger)
		return nil
	})
	g.Go(func() error {
		quote = s.pricing.Quote(req.Product, req.Customizations)
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn().Err(err).Str("order_number", req.OrderNumber).Str("code", domain.Code(err)).Msg("export failed")
		return nil, err
	}

	out := &Result{Export: exp, Quote: quote, Label: label}
	log := s.logger.With().Str("export_id", exp.ExportID).Str("order_number", req.OrderNumber).Logger()

	if s.artifacts != nil {
		key, err := s.artifacts.Write(ctx, storage.ExportKey(s.now(), exp.ExportID, exp.Filename), exp.Data)
		if err != nil {
			return nil, fmt.Errorf("order: store artifact: %w", err)
		}
		out.StorageKey = key
	}
	s.record(ctx, &log, req, out)

	if s.reconciler == nil {
		return out, nil
	}
	store, err := s.stores.StoreConfig(ctx)
	if err != nil {
		s.markFailed(ctx, &log, exp.ExportID, err)
		return nil, domain.NewStageError(domain.ErrCartOperationFailed, domain.StageCart, err)
	}
	cartRes, err := s.reconciler.AddToCart(ctx, store, cart.Request{
		CartID:         req.CartID,
		Quantity:       req.Quantity,
		Product:        req.Product,
		Customizations: req.Customizations,
		Location:       label,
		ExportID:       exp.ExportID,
		Quote:          quote,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		s.markFailed(ctx, &log, exp.ExportID, err)
		return nil, err
	}
	out.Cart = cartRes
	if s.exportLog != nil {
		if err := s.exportLog.MarkCarted(ctx, exp.ExportID, cartRes.Cart.ID); err != nil {
			log.Warn().Err(err).Msg("export log update failed")
		}
	}
	return out, nil
}

func (s *Service) record(ctx context.Context, log *zerolog.Logger, req Request, out *Result) {
	if s.exportLog == nil {
		return
	}
	size, _ := req.Product.SizeTier()
	rec := &domain.ExportRecord{
		ID:          out.Export.ExportID,
		OrderNumber: req.OrderNumber,
		Filename:    out.Export.Filename,
		StorageKey:  out.StorageKey,
		Bytes:       out.Export.Bytes,
		Width:       out.Export.Width,
		Height:      out.Export.Height,
		DPI:         out.Export.DPI,
		Quality:     out.Export.Quality,
		Size:        size,
		Material:    req.Product.Material,
		Shape:       req.Product.ShapeKind(),
		Label:       out.Label,
		Price:       out.Quote.String(),
		Currency:    out.Quote.Currency,
		Status:      domain.ExportStatusExported,
	}
	if err := s.exportLog.Record(ctx, rec); err != nil {
		log.Warn().Err(err).Msg("export log write failed")
	}
}

func (s *Service) markFailed(ctx context.Context, log *zerolog.Logger, exportID string, cause error) {
	log.Error().Err(cause).Msg("cart step failed after export")
	if s.exportLog == nil {
		return
	}
	if err := s.exportLog.MarkFailed(ctx, exportID, cause.Error()); err != nil {
		log.Warn().Err(err).Msg("export log update failed")
	}
}
