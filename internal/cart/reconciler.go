// Package cart reconciles an engraved map order into a remote cart: it
// creates the cart on first use and merges later additions into the line
// that already holds the merchandise.
package cart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"mapengrave/internal/domain"
	"mapengrave/internal/infra"
	"mapengrave/internal/pricing"
	"mapengrave/internal/providers/commerce"
)

// ErrDuplicate reports a request whose idempotency key is held by another
// in-flight request.
var ErrDuplicate = errors.New("cart: duplicate idempotency key")

// ErrVariantUnavailable reports a configured variant that exists but is not for sale.
var ErrVariantUnavailable = errors.New("cart: variant not available")

// Outcome of a reconciliation.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeMerged  Outcome = "merged"
)

// IdempotencyStore remembers which cart an idempotency key produced.
// Release drops a lock whose request failed so the caller may retry.
type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Release(ctx context.Context, scope, key string) error
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
}

// Request describes one add-to-cart call.
type Request struct {
	CartID         string
	Quantity       int
	Product        domain.ProductConfig
	Customizations domain.Customizations
	Location       string
	ExportID       string
	Quote          pricing.Quote
	IdempotencyKey string
}

// Result is the remote cart after reconciliation. The cart's totals come
// from the remote store and are authoritative; Quote is the local price
// stamped on the line.
type Result struct {
	Cart     *commerce.Cart `json:"cart"`
	Outcome  Outcome        `json:"outcome"`
	Quote    pricing.Quote  `json:"quote"`
	Replayed bool           `json:"replayed,omitempty"`
}

// Options configures a Reconciler.
type Options struct {
	Idempotency IdempotencyStore
	Logger      *infra.Logger
}

// Reconciler applies add-to-cart requests. It keeps no cart state between calls.
type Reconciler struct {
	backend commerce.Backend
	idem    IdempotencyStore
	logger  *infra.Logger
}

// NewReconciler wires a reconciler to backend.
func NewReconciler(backend commerce.Backend, opts Options) *Reconciler {
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Reconciler{backend: backend, idem: opts.Idempotency, logger: logger}
}

// AddToCart creates a cart holding one line for store.VariantID when
// req.CartID is empty or unknown; otherwise it increments the quantity of
// the line already holding the variant, or adds the line. The variant must
// exist and be for sale. Backend errors fail with ErrCartOperationFailed and
// are not retried; a failed request releases its idempotency key.
func (r *Reconciler) AddToCart(ctx context.Context, store commerce.StoreConfig, req Request) (*Result, error) {
	if err := store.Validate(); err != nil {
		return nil, domain.NewStageError(domain.ErrInvalidConfig, domain.StageCart, err)
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 0 {
		return nil, domain.Invalid(domain.StageCart, "quantity must be positive, got %d", req.Quantity)
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	scope := store.Domain
	if r.idem == nil || key == "" {
		return r.reconcile(ctx, store, req)
	}

	cartID, ok, err := r.idem.Recall(ctx, scope, key)
	if err != nil {
		r.logger.Warn().Err(err).Str("scope", scope).Msg("idempotency recall failed")
	}
	if ok {
		return r.replay(ctx, store, cartID, req.Quote)
	}
	locked, err := r.idem.TryLock(ctx, scope, key)
	if err != nil {
		return nil, domain.NewStageError(domain.ErrCartOperationFailed, domain.StageCart, fmt.Errorf("idempotency lock: %w", err))
	}
	if !locked {
		return nil, domain.NewStageError(domain.ErrCartOperationFailed, domain.StageCart, ErrDuplicate)
	}

	res, err := r.reconcile(ctx, store, req)
	if err != nil {
		if rerr := r.idem.Release(context.WithoutCancel(ctx), scope, key); rerr != nil {
			r.logger.Warn().Err(rerr).Str("scope", scope).Msg("idempotency release failed")
		}
		return nil, err
	}
	if err := r.idem.Remember(ctx, scope, key, res.Cart.ID); err != nil {
		r.logger.Warn().Err(err).Str("cart_id", res.Cart.ID).Msg("idempotency remember failed")
	}
	return res, nil
}

func (r *Reconciler) reconcile(ctx context.Context, store commerce.StoreConfig, req Request) (*Result, error) {
	variant, err := r.backend.GetVariant(ctx, store, store.VariantID)
	if err != nil {
		return nil, failed("get variant", err)
	}
	if variant == nil || !variant.AvailableForSale {
		return nil, failed("get variant", fmt.Errorf("%w: %s is not for sale", ErrVariantUnavailable, store.VariantID))
	}

	attrs := Attributes(req)
	var existing *commerce.Cart
	if cartID := strings.TrimSpace(req.CartID); cartID != "" {
		c, err := r.backend.GetCart(ctx, store, cartID)
		if err != nil {
			return nil, failed("get cart", err)
		}
		existing = c
	}

	var (
		cart    *commerce.Cart
		outcome Outcome
	)
	if existing == nil {
		outcome = OutcomeCreated
		cart, err = r.backend.MutateCart(ctx, store, "", []commerce.LineInput{{
			MerchandiseID: store.VariantID,
			Quantity:      req.Quantity,
			Attributes:    attrs,
		}})
	} else {
		outcome = OutcomeMerged
		line := commerce.LineInput{MerchandiseID: store.VariantID, Quantity: req.Quantity, Attributes: attrs}
		if current, ok := existing.LineByMerchandise(store.VariantID); ok {
			line.ID = current.ID
			line.Quantity = current.Quantity + req.Quantity
		}
		cart, err = r.backend.MutateCart(ctx, store, existing.ID, []commerce.LineInput{line})
	}
	if err != nil {
		return nil, failed("mutate cart", err)
	}
	if cart == nil {
		return nil, failed("mutate cart", errors.New("backend returned no cart"))
	}

	r.logger.Info().
		Str("cart_id", cart.ID).
		Str("outcome", string(outcome)).
		Str("export_id", req.ExportID).
		Str("price", req.Quote.String()).
		Msg("cart reconciled")
	return &Result{Cart: cart, Outcome: outcome, Quote: req.Quote}, nil
}

func (r *Reconciler) replay(ctx context.Context, store commerce.StoreConfig, cartID string, quote pricing.Quote) (*Result, error) {
	cart, err := r.backend.GetCart(ctx, store, cartID)
	if err != nil {
		return nil, failed("get cart", err)
	}
	if cart == nil {
		return nil, failed("get cart", fmt.Errorf("remembered cart %s no longer exists", cartID))
	}
	return &Result{Cart: cart, Outcome: OutcomeMerged, Quote: quote, Replayed: true}, nil
}

func failed(action string, err error) error {
	return domain.NewStageError(domain.ErrCartOperationFailed, domain.StageCart, fmt.Errorf("%s: %w", action, err))
}
