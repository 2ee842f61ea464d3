package handlers

import (
	"net/http"
	"time"

	"mapengrave/internal/domain"
	"mapengrave/internal/order"
)

// OrdersCreate exports the map and, when a storefront is configured, adds it
// to the cart in one call.
func (a *App) OrdersCreate(w http.ResponseWriter, r *http.Request) {
	var req order.Request
	if !a.decode(w, r, &req) {
		return
	}
	req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	start := time.Now()
	res, err := a.Orders.Submit(r.Context(), req)
	exportErr := err
	if stage, ok := domain.StageOf(err); ok && stage == domain.StageCart {
		exportErr = nil
	}
	a.observe(exportErr, time.Since(start))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("X-Export-ID", res.Export.ExportID)
	a.json(w, http.StatusCreated, res)
}
