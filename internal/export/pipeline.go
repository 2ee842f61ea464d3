// Package export runs the engraving pipeline: it maps the viewport, composes
// the base map, paints customizations, converts to two levels, scales to
// print resolution and encodes within the size envelope.
package export

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mapengrave/internal/dimension"
	"mapengrave/internal/domain"
	"mapengrave/internal/encode"
	"mapengrave/internal/geo"
	"mapengrave/internal/infra"
	"mapengrave/internal/mono"
	"mapengrave/internal/overlay"
	"mapengrave/internal/tiles"
)

// Request is one export. OrderNumber names the artifact and is required.
type Request struct {
	OrderNumber    string                `json:"order_number"`
	Viewport       domain.ViewportSpec   `json:"viewport"`
	Product        domain.ProductConfig  `json:"product"`
	Customizations domain.Customizations `json:"customizations"`
}

// Validate checks the request before any work is done.
func (r Request) Validate() error {
	if _, err := Filename(r.OrderNumber); err != nil {
		return err
	}
	if err := r.Viewport.Validate(); err != nil {
		return err
	}
	if err := r.Product.Validate(); err != nil {
		return err
	}
	return r.Customizations.Validate()
}

// Result is the finished print file.
type Result struct {
	ExportID    string             `json:"export_id"`
	Filename    string             `json:"filename"`
	MIME        string             `json:"mime"`
	Data        []byte             `json:"-"`
	Width       int                `json:"width"`
	Height      int                `json:"height"`
	DPI         int                `json:"dpi"`
	Quality     int                `json:"quality"`
	Bytes       int                `json:"bytes"`
	Size        domain.Size        `json:"size"`
	Orientation domain.Orientation `json:"orientation"`
	BBox        geo.BBox           `json:"bbox"`
	Engraved    float64            `json:"engraved"`
	Took        time.Duration      `json:"took"`
}

// Options wires the pipeline stages.
type Options struct {
	Compositor *tiles.Compositor
	Renderer   *overlay.Renderer
	Scaler     *dimension.Scaler
	Encoder    *encode.Encoder
	Logger     *infra.Logger

	// NewID overrides export id generation.
	NewID func() string
}

// Pipeline is safe for concurrent use; every Run is independent.
type Pipeline struct {
	compositor *tiles.Compositor
	renderer   *overlay.Renderer
	scaler     *dimension.Scaler
	encoder    *encode.Encoder
	logger     *infra.Logger
	newID      func() string
}

// New validates opts. Compositor, Scaler and Encoder are required; a default
// renderer is used when none is given.
func New(opts Options) (*Pipeline, error) {
	if opts.Compositor == nil {
		return nil, fmt.Errorf("export: compositor is required")
	}
	if opts.Scaler == nil {
		return nil, fmt.Errorf("export: scaler is required")
	}
	if opts.Encoder == nil {
		return nil, fmt.Errorf("export: encoder is required")
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	renderer := opts.Renderer
	if renderer == nil {
		renderer = overlay.NewRenderer(overlay.Options{Logger: logger})
	}
	newID := opts.NewID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}
	return &Pipeline{
		compositor: opts.Compositor,
		renderer:   renderer,
		scaler:     opts.Scaler,
		encoder:    opts.Encoder,
		logger:     logger,
		newID:      newID,
	}, nil
}

// Run executes every stage in order and stops at the first failure, which
// carries its kind and stage. No partial artifact is ever returned.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	filename, _ := Filename(req.OrderNumber)
	id := p.newID()
	log := p.logger.With().Str("export_id", id).Logger()

	stage := func(name domain.Stage, began time.Time) {
		log.Debug().Str("stage", string(name)).Dur("took", time.Since(began)).Msg("export stage done")
	}

	t := time.Now()
	dims, err := p.scaler.Resolve(req.Product)
	if err != nil {
		return nil, err
	}
	mapper, err := geo.NewMapper(req.Viewport, dims.BaseWidth, dims.BaseHeight, p.compositor.Source().ZoomRange())
	if err != nil {
		return nil, err
	}
	stage(domain.StageMapper, t)

	t = time.Now()
	canvas, err := p.compositor.Compose(ctx, mapper)
	if err != nil {
		return nil, err
	}
	stage(domain.StageTiles, t)

	t = time.Now()
	mask, err := p.renderer.Render(canvas, mapper, req.Customizations)
	if err != nil {
		return nil, err
	}
	stage(domain.StageOverlay, t)

	t = time.Now()
	bilevel, err := mono.Convert(canvas, mask, req.Product.ShapeKind())
	if err != nil {
		return nil, err
	}
	stage(domain.StageMonochrome, t)

	t = time.Now()
	scaled, err := p.scaler.Scale(bilevel, dims)
	if err != nil {
		return nil, err
	}
	stage(domain.StageScale, t)

	t = time.Now()
	enc, err := p.encoder.Encode(ctx, scaled, dims.DPI)
	if err != nil {
		return nil, err
	}
	stage(domain.StageEncode, t)

	res := &Result{
		ExportID:    id,
		Filename:    filename,
		MIME:        encode.MIMEType,
		Data:        enc.Data,
		Width:       enc.Width,
		Height:      enc.Height,
		DPI:         enc.DPI,
		Quality:     enc.Quality,
		Bytes:       len(enc.Data),
		Size:        dims.Size,
		Orientation: dims.Orientation,
		BBox:        mapper.BBox(),
		Engraved:    mono.Engraved(bilevel),
		Took:        time.Since(start),
	}
	log.Info().
		Str("filename", res.Filename).
		Int("width", res.Width).
		Int("height", res.Height).
		Int("bytes", res.Bytes).
		Int("quality", res.Quality).
		Dur("took", res.Took).
		Msg("export completed")
	return res, nil
}

var unsafeOrderChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Filename returns the artifact name for orderNumber, Order<n>_Map.jpg.
// Characters outside [A-Za-z0-9_-] are dropped; an order number with
// nothing left is rejected.
func Filename(orderNumber string) (string, error) {
	n := strings.TrimPrefix(strings.TrimSpace(orderNumber), "#")
	n = unsafeOrderChars.ReplaceAllString(n, "")
	if n == "" {
		return "", domain.Invalid(domain.StageValidate, "order number %q is empty after sanitising", orderNumber)
	}
	return "Order" + n + "_Map." + encode.Extension, nil
}
