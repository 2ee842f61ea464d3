// Package tiles assembles the base map canvas for a viewport from a tile
// source: minimal covering tile set, concurrent fetch with bounded retries,
// seamless mosaic, exact crop and resample onto the canvas.
package tiles

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"time"

	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"mapengrave/internal/domain"
	"mapengrave/internal/geo"
	"mapengrave/internal/infra"
	"mapengrave/internal/providers/tile"
)

// FetchObserver receives the outcome of every tile fetch attempt.
type FetchObserver interface {
	ObserveTileFetch(provider string, err error, took time.Duration)
}

// Options configures a Compositor. Zero values select the defaults.
type Options struct {
	Source        tile.Source
	Concurrency   int
	Retries       int
	Backoff       time.Duration
	MaxBackoff    time.Duration
	FetchTimeout  time.Duration
	RatePerSecond float64
	MaxTiles      int
	Observer      FetchObserver
	Logger        *infra.Logger
}

const (
	DefaultConcurrency  = 8
	DefaultRetries      = 3
	DefaultBackoff      = 200 * time.Millisecond
	DefaultMaxBackoff   = 2 * time.Second
	DefaultFetchTimeout = 10 * time.Second
	DefaultMaxTiles     = 64
)

// Compositor renders base map canvases. It is safe for concurrent use.
type Compositor struct {
	src          tile.Source
	concurrency  int
	retries      int
	backoff      time.Duration
	maxBackoff   time.Duration
	fetchTimeout time.Duration
	maxTiles     int
	limiter      *rate.Limiter
	observer     FetchObserver
	logger       *infra.Logger
}

// New validates opts and applies defaults. A negative Retries disables retries.
func New(opts Options) (*Compositor, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("tiles: source is required")
	}
	c := &Compositor{
		src:          opts.Source,
		concurrency:  opts.Concurrency,
		retries:      opts.Retries,
		backoff:      opts.Backoff,
		maxBackoff:   opts.MaxBackoff,
		fetchTimeout: opts.FetchTimeout,
		maxTiles:     opts.MaxTiles,
		observer:     opts.Observer,
		logger:       opts.Logger,
	}
	if c.concurrency <= 0 {
		c.concurrency = DefaultConcurrency
	}
	switch {
	case c.retries == 0:
		c.retries = DefaultRetries
	case c.retries < 0:
		c.retries = 0
	}
	if c.backoff <= 0 {
		c.backoff = DefaultBackoff
	}
	if c.maxBackoff < c.backoff {
		c.maxBackoff = max(DefaultMaxBackoff, c.backoff)
	}
	if c.fetchTimeout <= 0 {
		c.fetchTimeout = DefaultFetchTimeout
	}
	if c.maxTiles <= 0 {
		c.maxTiles = DefaultMaxTiles
	}
	if opts.RatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), c.concurrency)
	}
	if c.logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		c.logger = &l
	}
	return c, nil
}

// Source returns the tile source in use.
func (c *Compositor) Source() tile.Source { return c.src }

// TileRange is an inclusive range of tile columns and rows at one zoom.
// Columns may fall outside [0, 2^z) and wrap around the antimeridian.
type TileRange struct {
	Zoom       int
	MinX, MaxX int
	MinY, MaxY int
}

// Count returns the number of tiles in the range.
func (r TileRange) Count() int {
	if r.MaxX < r.MinX || r.MaxY < r.MinY {
		return 0
	}
	return (r.MaxX - r.MinX + 1) * (r.MaxY - r.MinY + 1)
}

// CoveringRange returns the minimal tile range covering the mapper's canvas.
// Rows are clamped to the world.
func CoveringRange(m *geo.Mapper) TileRange {
	const eps = 1e-9
	z := m.Zoom()
	n := 1 << uint(z)
	wb := m.WorldPixelBounds()
	r := TileRange{
		Zoom: z,
		MinX: int(math.Floor(wb.MinX / geo.TileSize)),
		MaxX: int(math.Floor((wb.MaxX - eps) / geo.TileSize)),
		MinY: int(math.Floor(wb.MinY / geo.TileSize)),
		MaxY: int(math.Floor((wb.MaxY - eps) / geo.TileSize)),
	}
	r.MinY = max(r.MinY, 0)
	r.MaxY = min(r.MaxY, n-1)
	return r
}

// Compose fetches the covering tiles and returns a canvas of exactly the
// mapper's size. Any tile that stays unavailable after its retry budget
// fails the whole composition; no partial canvas is returned.
func (c *Compositor) Compose(ctx context.Context, m *geo.Mapper) (*image.RGBA, error) {
	if m == nil {
		return nil, domain.Invalid(domain.StageTiles, "mapper is required")
	}
	if zr := c.src.ZoomRange(); !zr.Contains(m.Zoom()) {
		return nil, domain.NewStageError(domain.ErrUnsupportedZoom, domain.StageTiles,
			fmt.Errorf("zoom %d outside %s range [%d,%d]", m.Zoom(), c.src.Name(), zr.Min, zr.Max))
	}
	tr := CoveringRange(m)
	if tr.Count() > c.maxTiles {
		return nil, domain.Invalid(domain.StageTiles, "viewport needs %d tiles, limit is %d", tr.Count(), c.maxTiles)
	}

	start := time.Now()
	cols, rows := tr.MaxX-tr.MinX+1, tr.MaxY-tr.MinY+1
	mosaic := image.NewRGBA(image.Rect(0, 0, cols*geo.TileSize, rows*geo.TileSize))
	draw.Draw(mosaic, mosaic.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	n := 1 << uint(tr.Zoom)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for ty := tr.MinY; ty <= tr.MaxY; ty++ {
		for tx := tr.MinX; tx <= tr.MaxX; tx++ {
			req := tile.Request{Scheme: tile.SchemeXYZ, Z: tr.Zoom, X: ((tx % n) + n) % n, Y: ty}
			cell := image.Rect(0, 0, geo.TileSize, geo.TileSize).
				Add(image.Pt((tx-tr.MinX)*geo.TileSize, (ty-tr.MinY)*geo.TileSize))
			g.Go(func() error {
				img, err := c.fetch(gctx, req)
				if err != nil {
					return err
				}
				// Cells are disjoint, so concurrent writes never overlap.
				placeTile(mosaic, cell, img)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, domain.NewStageError(domain.ErrTileFetchFailed, domain.StageTiles, err)
	}

	w, h := m.Size()
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	wb := m.WorldPixelBounds()
	scale := m.Scale()
	offX := wb.MinX - float64(tr.MinX*geo.TileSize)
	offY := wb.MinY - float64(tr.MinY*geo.TileSize)
	s2d := f64.Aff3{
		scale, 0, -offX * scale,
		0, scale, -offY * scale,
	}
	xdraw.ApproxBiLinear.Transform(canvas, s2d, mosaic, mosaic.Bounds(), xdraw.Src, nil)

	c.logger.Debug().
		Str("provider", c.src.Name()).
		Int("zoom", tr.Zoom).
		Int("tiles", tr.Count()).
		Dur("took", time.Since(start)).
		Msg("base map composed")
	return canvas, nil
}

func (c *Compositor) fetch(ctx context.Context, req tile.Request) (image.Image, error) {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= c.retries; attempt++ {
		if ctx.Err() != nil {
			break
		}
		if attempt > 0 {
			if err := sleep(ctx, c.backoffFor(attempt)); err != nil {
				break
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				break
			}
		}
		attempts++
		img, err := c.fetchOnce(ctx, req)
		if err == nil {
			return img, nil
		}
		lastErr = err
		c.logger.Debug().Err(err).Str("tile", req.String()).Int("attempt", attempts).Msg("tile fetch failed")
		if tile.IsPermanent(err) || ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return nil, fmt.Errorf("tile %s unavailable after %d attempt(s): %w", req, attempts, lastErr)
}

func (c *Compositor) fetchOnce(ctx context.Context, req tile.Request) (image.Image, error) {
	actx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()
	start := time.Now()
	data, err := c.src.FetchTile(actx, req.In(c.src.Scheme()))
	var img image.Image
	if err == nil {
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			err = fmt.Errorf("decode: %w", err)
		}
	}
	if c.observer != nil {
		c.observer.ObserveTileFetch(c.src.Name(), err, time.Since(start))
	}
	return img, err
}

func (c *Compositor) backoffFor(attempt int) time.Duration {
	d := c.backoff << uint(attempt-1)
	if d <= 0 || d > c.maxBackoff {
		d = c.maxBackoff
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// placeTile draws img into cell, rescaling tiles that are not TileSize
// square (for example 512px high density tiles).
func placeTile(dst *image.RGBA, cell image.Rectangle, img image.Image) {
	b := img.Bounds()
	if b.Dx() == cell.Dx() && b.Dy() == cell.Dy() {
		draw.Draw(dst, cell, img, b.Min, draw.Src)
		return
	}
	xdraw.ApproxBiLinear.Scale(dst, cell, img, b, xdraw.Src, nil)
}
