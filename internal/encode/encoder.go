// Package encode serializes print bitmaps to JPEG whose byte length falls
// inside a configured envelope.
package encode

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"github.com/rs/zerolog"

	"mapengrave/internal/domain"
	"mapengrave/internal/infra"
	"mapengrave/internal/mono"
)

// MIMEType of every encoded artifact.
const MIMEType = "image/jpeg"

// Extension of every encoded artifact.
const Extension = "jpg"

const (
	DefaultMinBytes      = 64 << 10
	DefaultMaxBytes      = 10 << 20
	DefaultMinQuality    = 5
	DefaultMaxQuality    = 100
	DefaultMaxIterations = 10
)

// Envelope is the closed interval of acceptable byte lengths.
type Envelope struct {
	MinBytes int
	MaxBytes int
}

// Contains reports whether n lies in the envelope.
func (e Envelope) Contains(n int) bool { return n >= e.MinBytes && n <= e.MaxBytes }

// Target is the midpoint the quality search aims for.
func (e Envelope) Target() int { return e.MinBytes + (e.MaxBytes-e.MinBytes)/2 }

// Options configures an Encoder. Zero values select the defaults.
type Options struct {
	Envelope      Envelope
	MinQuality    int
	MaxQuality    int
	MaxIterations int
	Logger        *infra.Logger
}

// Encoder runs the bounded quality search. It is safe for concurrent use.
type Encoder struct {
	envelope      Envelope
	minQuality    int
	maxQuality    int
	maxIterations int
	logger        *infra.Logger
}

// Result is an encoded artifact.
type Result struct {
	Data       []byte
	Quality    int
	Iterations int
	DPI        int
	Width      int
	Height     int
}

// New validates opts.
func New(opts Options) (*Encoder, error) {
	e := &Encoder{
		envelope:      opts.Envelope,
		minQuality:    opts.MinQuality,
		maxQuality:    opts.MaxQuality,
		maxIterations: opts.MaxIterations,
		logger:        opts.Logger,
	}
	if e.envelope == (Envelope{}) {
		e.envelope = Envelope{MinBytes: DefaultMinBytes, MaxBytes: DefaultMaxBytes}
	}
	if e.minQuality == 0 {
		e.minQuality = DefaultMinQuality
	}
	if e.maxQuality == 0 {
		e.maxQuality = DefaultMaxQuality
	}
	if e.maxIterations <= 0 {
		e.maxIterations = DefaultMaxIterations
	}
	if e.envelope.MinBytes < 0 || e.envelope.MaxBytes < e.envelope.MinBytes {
		return nil, domain.Invalid(domain.StageEncode, "invalid size envelope [%d,%d]", e.envelope.MinBytes, e.envelope.MaxBytes)
	}
	if e.minQuality < 1 || e.maxQuality > 100 || e.minQuality > e.maxQuality {
		return nil, domain.Invalid(domain.StageEncode, "invalid quality range [%d,%d]", e.minQuality, e.maxQuality)
	}
	if e.logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		e.logger = &l
	}
	return e, nil
}

// Envelope returns the configured envelope.
func (e *Encoder) Envelope() Envelope { return e.envelope }

// Encode binary-searches the JPEG quality for the in-envelope encoding
// closest to the envelope midpoint. Sizes are measured with the DPI segment
// in place. When no trial lands in the envelope it fails with
// ErrSizeEnvelopeUnreachable and returns no data.
func (e *Encoder) Encode(ctx context.Context, img *image.Gray, dpi int) (*Result, error) {
	if err := mono.VerifyBilevel(img); err != nil {
		return nil, domain.NewStageError(domain.ErrNotBilevel, domain.StageEncode, err)
	}
	target := e.envelope.Target()
	lo, hi := e.minQuality, e.maxQuality
	var (
		best       []byte
		bestQ      int
		iterations int
	)
	smallest, largest := -1, -1
	for iterations < e.maxIterations && lo <= hi {
		if err := ctx.Err(); err != nil {
			return nil, domain.NewStageError(nil, domain.StageEncode, err)
		}
		q := lo + (hi-lo)/2
		data, err := e.encodeAt(img, q, dpi)
		if err != nil {
			return nil, domain.NewStageError(nil, domain.StageEncode, err)
		}
		iterations++
		n := len(data)
		if smallest < 0 || n < smallest {
			smallest = n
		}
		largest = max(largest, n)
		e.logger.Debug().Int("quality", q).Int("bytes", n).Int("target", target).Msg("encode trial")

		if e.envelope.Contains(n) && (best == nil || abs(n-target) < abs(len(best)-target)) {
			best, bestQ = data, q
		}
		switch {
		case n < target:
			lo = q + 1
		case n > target:
			hi = q - 1
		default:
			lo = hi + 1
		}
	}
	if best == nil {
		return nil, domain.NewStageError(domain.ErrSizeEnvelopeUnreachable, domain.StageEncode,
			fmt.Errorf("%d trial(s) produced %d..%d bytes, envelope is [%d,%d]",
				iterations, smallest, largest, e.envelope.MinBytes, e.envelope.MaxBytes))
	}
	b := img.Bounds()
	return &Result{
		Data:       best,
		Quality:    bestQ,
		Iterations: iterations,
		DPI:        dpi,
		Width:      b.Dx(),
		Height:     b.Dy(),
	}, nil
}

func (e *Encoder) encodeAt(img *image.Gray, quality, dpi int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode: jpeg at quality %d: %w", quality, err)
	}
	return WithDPI(buf.Bytes(), dpi)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
