package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"mapengrave/internal/cart"
	"mapengrave/internal/domain"
	"mapengrave/internal/order"
	"mapengrave/internal/pricing"
)

const maxBodyBytes = 1 << 20

// ExportObserver records export outcomes, see middleware.Metrics.
type ExportObserver interface {
	ObserveExport(err error, took time.Duration)
}

// ArtifactReader reads stored print files back.
type ArtifactReader interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

// App carries the collaborators of the HTTP handlers. Carts, Stores,
// ExportLog, Artifacts and Metrics are optional.
type App struct {
	Orders    *order.Service
	Exports   order.Exporter
	Pricing   *pricing.Engine
	Carts     *cart.Reconciler
	Stores    order.StoreResolver
	ExportLog domain.ExportLog
	Artifacts ArtifactReader
	Metrics   ExportObserver
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]errorBody{"error": {Code: errCode, Message: message}})
}

// fail maps err onto a status and writes the error envelope.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Code: domain.Code(err), Message: "internal error"}
	if errors.Is(err, cart.ErrDuplicate) {
		body.Code = "duplicate_request"
	}
	var se *domain.StageError
	if errors.As(err, &se) {
		body.Stage = string(se.Stage)
		body.Message = se.Cause()
	} else if status < http.StatusInternalServerError {
		body.Message = err.Error()
	}
	log := requestLogger(r)
	evt := log.Warn()
	if status >= http.StatusInternalServerError {
		evt = log.Error()
	}
	evt.Err(err).Str("code", body.Code).Str("stage", body.Stage).Msg("request failed")
	a.json(w, status, map[string]errorBody{"error": body})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, cart.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidConfig), errors.Is(err, domain.ErrUnsupportedZoom):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSizeEnvelopeUnreachable), errors.Is(err, domain.ErrNotBilevel):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrTileFetchFailed), errors.Is(err, domain.ErrCartOperationFailed), errors.Is(err, domain.ErrGeocodeUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload: "+err.Error())
		return false
	}
	return true
}

func (a *App) observe(err error, took time.Duration) {
	if a.Metrics != nil {
		a.Metrics.ObserveExport(err, took)
	}
}

func requestLogger(r *http.Request) *zerolog.Logger {
	return zerolog.Ctx(r.Context())
}
