package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig           = errors.New("invalid config")
	ErrTileFetchFailed         = errors.New("tile fetch failed")
	ErrUnsupportedZoom         = errors.New("unsupported zoom")
	ErrSizeEnvelopeUnreachable = errors.New("size envelope unreachable")
	ErrCartOperationFailed     = errors.New("cart operation failed")
	ErrGeocodeUnavailable      = errors.New("geocode unavailable")
	ErrNotBilevel              = errors.New("bitmap not bilevel")

	ErrNotFound = errors.New("not found")
)

// Stage names the step of an export or order that produced an error.
type Stage string

const (
	StageValidate   Stage = "validate"
	StageMapper     Stage = "mapper"
	StageTiles      Stage = "tiles"
	StageOverlay    Stage = "overlay"
	StageMonochrome Stage = "monochrome"
	StageScale      Stage = "scale"
	StageEncode     Stage = "encode"
	StagePricing    Stage = "pricing"
	StageCart       Stage = "cart"
	StageGeocode    Stage = "geocode"
)

// StageError ties a failure to its kind (one of the Err* sentinels) and the
// stage it happened in. errors.Is matches both the kind and the cause.
type StageError struct {
	Kind  error
	Stage Stage
	Err   error
}

// NewStageError wraps err with kind and stage.
func NewStageError(kind error, stage Stage, err error) *StageError {
	return &StageError{Kind: kind, Stage: stage, Err: err}
}

// Invalid is shorthand for an ErrInvalidConfig stage error with a formatted cause.
func Invalid(stage Stage, format string, args ...any) *StageError {
	return &StageError{Kind: ErrInvalidConfig, Stage: stage, Err: fmt.Errorf(format, args...)}
}

func (e *StageError) Error() string {
	switch {
	case e.Kind == nil:
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Cause returns the human readable cause without kind or stage prefixes.
func (e *StageError) Cause() string {
	if e.Err == nil {
		if e.Kind == nil {
			return ""
		}
		return e.Kind.Error()
	}
	return e.Err.Error()
}

var codes = []struct {
	kind error
	code string
}{
	{ErrInvalidConfig, "invalid_config"},
	{ErrUnsupportedZoom, "unsupported_zoom"},
	{ErrTileFetchFailed, "tile_fetch_failed"},
	{ErrSizeEnvelopeUnreachable, "size_envelope_unreachable"},
	{ErrCartOperationFailed, "cart_operation_failed"},
	{ErrGeocodeUnavailable, "geocode_unavailable"},
	{ErrNotBilevel, "not_bilevel"},
	{ErrNotFound, "not_found"},
}

// Code returns a stable machine readable code for err, or "internal" when err
// does not carry one of the known kinds.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}
	return "internal"
}

// StageOf extracts the stage recorded on err, if any.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
