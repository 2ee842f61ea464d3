package handlers

import (
	"net/http"

	"mapengrave/internal/domain"
	"mapengrave/internal/middleware"
	"mapengrave/internal/pricing"
)

type quoteRequest struct {
	Product        domain.ProductConfig  `json:"product"`
	Customizations domain.Customizations `json:"customizations"`
}

type quoteResponse struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Display  string `json:"display"`
	Locale   string `json:"locale"`
}

// Quotes prices a configuration for display while the user edits it.
func (a *App) Quotes(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !a.decode(w, r, &req) {
		return
	}
	q := a.Pricing.Quote(req.Product, req.Customizations)
	tag := middleware.LanguageTag(r.Context())
	a.json(w, http.StatusOK, quoteResponse{
		Amount:   q.String(),
		Currency: q.Currency,
		Display:  pricing.Format(q, tag),
		Locale:   tag.String(),
	})
}
