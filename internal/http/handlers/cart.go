package handlers

import (
	"net/http"
	"strings"

	"mapengrave/internal/cart"
	"mapengrave/internal/domain"
)

type cartLineRequest struct {
	CartID         string                `json:"cart_id"`
	Quantity       int                   `json:"quantity"`
	ExportID       string                `json:"export_id"`
	Location       string                `json:"location"`
	Product        domain.ProductConfig  `json:"product"`
	Customizations domain.Customizations `json:"customizations"`
}

// CartLines adds an already exported map to a cart. Repeating a request
// with the same Idempotency-Key replays the first result.
func (a *App) CartLines(w http.ResponseWriter, r *http.Request) {
	if a.Carts == nil {
		a.error(w, http.StatusServiceUnavailable, "cart_disabled", "no storefront is configured")
		return
	}
	var req cartLineRequest
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ExportID) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "export_id is required")
		return
	}
	store, err := a.Stores.StoreConfig(r.Context())
	if err != nil {
		a.fail(w, r, domain.NewStageError(domain.ErrCartOperationFailed, domain.StageCart, err))
		return
	}
	res, err := a.Carts.AddToCart(r.Context(), store, cart.Request{
		CartID:         req.CartID,
		Quantity:       req.Quantity,
		Product:        req.Product,
		Customizations: req.Customizations,
		Location:       strings.TrimSpace(req.Location),
		ExportID:       req.ExportID,
		Quote:          a.Pricing.Quote(req.Product, req.Customizations),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if a.ExportLog != nil {
		if err := a.ExportLog.MarkCarted(r.Context(), req.ExportID, res.Cart.ID); err != nil {
			requestLogger(r).Warn().Err(err).Str("export_id", req.ExportID).Msg("export log update failed")
		}
	}
	status := http.StatusOK
	if res.Outcome == cart.OutcomeCreated && !res.Replayed {
		status = http.StatusCreated
	}
	a.json(w, status, res)
}
