// Package pipeline turns a frame index into a display-ready frame: fetch the
// named raster, decode it, resolve its bounds, and composite it to RGBA.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/couchcryptid/storm-raster-viewer/internal/composite"
	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
	"github.com/couchcryptid/storm-raster-viewer/internal/observability"
	"github.com/couchcryptid/storm-raster-viewer/internal/raster"
	"github.com/karlseguin/ccache/v3"
	"golang.org/x/sync/singleflight"
)

// Fetcher retrieves raster bytes by file name.
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// BoundsResolver reduces a frame's georeferencing to target-CRS bounds.
type BoundsResolver interface {
	ResolveBounds(g domain.Georef) (domain.Bounds, error)
}

// Options tunes a FrameLoader.
type Options struct {
	Composite composite.Options

	// Fallback georeferencing for rasters that embed none.
	Fallback domain.Georef
	// SourceCRS applies to embedded affine grids that carry no CRS.
	SourceCRS string
	// TargetCRS is the display CRS all bounds are resolved into.
	TargetCRS string

	// Retries is the number of extra fetch attempts after a transport error.
	Retries      int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration

	CacheSize int
	CacheTTL  time.Duration
}

// FrameLoader produces DisplayFrames. Results are cached by file name and
// concurrent loads of the same frame share one fetch.
type FrameLoader struct {
	src      Fetcher
	namer    domain.Namer
	resolver BoundsResolver
	opts     Options
	logger   *slog.Logger
	metrics  *observability.Metrics

	cache    *ccache.Cache[domain.DisplayFrame]
	inflight singleflight.Group
}

// NewFrameLoader creates a FrameLoader with the given stages and observability.
func NewFrameLoader(src Fetcher, namer domain.Namer, resolver BoundsResolver, opts Options, logger *slog.Logger, metrics *observability.Metrics) *FrameLoader {
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 200 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 5 * time.Second
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 32
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	return &FrameLoader{
		src:      src,
		namer:    namer,
		resolver: resolver,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
		cache:    ccache.New(ccache.Configure[domain.DisplayFrame]().MaxSize(int64(opts.CacheSize))),
	}
}

// Close stops the cache's background worker.
func (l *FrameLoader) Close() {
	l.cache.Stop()
}

// Name returns the file name of frame i.
func (l *FrameLoader) Name(i int) string {
	return l.namer.Name(i)
}

// Load fetches, decodes, and composites frame i. The returned bitmap is
// shared with the cache and must not be modified.
func (l *FrameLoader) Load(ctx context.Context, i int) (domain.DisplayFrame, error) {
	name := l.namer.Name(i)

	if item := l.cache.Get(name); item != nil && !item.Expired() {
		l.metrics.FrameCache.WithLabelValues("hit").Inc()
		return item.Value(), nil
	}
	l.metrics.FrameCache.WithLabelValues("miss").Inc()

	v, err, _ := l.inflight.Do(name, func() (any, error) {
		frame, err := l.build(ctx, i, name)
		if err != nil {
			return domain.DisplayFrame{}, err
		}
		l.cache.Set(name, frame, l.opts.CacheTTL)
		return frame, nil
	})
	if err != nil {
		return domain.DisplayFrame{}, fmt.Errorf("load frame %d: %w", i, err)
	}
	return v.(domain.DisplayFrame), nil
}

func (l *FrameLoader) build(ctx context.Context, i int, name string) (domain.DisplayFrame, error) {
	data, err := l.fetch(ctx, name)
	if err != nil {
		return domain.DisplayFrame{}, err
	}

	start := time.Now()
	rf, err := raster.Decode(data)
	l.metrics.DecodeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.DisplayFrame{}, err
	}
	rf.Index = i
	rf.Georef = l.georef(rf.Georef)

	start = time.Now()
	bounds, err := l.resolver.ResolveBounds(rf.Georef)
	if err != nil {
		return domain.DisplayFrame{}, err
	}
	bm, err := composite.Composite(rf, bounds, l.opts.Composite)
	l.metrics.CompositeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.DisplayFrame{}, err
	}

	l.logger.Debug("frame built", "index", i, "name", name, "width", bm.Width, "height", bm.Height)
	return domain.DisplayFrame{
		Index:  i,
		Name:   name,
		Time:   l.namer.Time(i),
		Bitmap: bm,
	}, nil
}

// georef fills in configured defaults for whatever the raster did not embed.
func (l *FrameLoader) georef(g domain.Georef) domain.Georef {
	if g.Empty() {
		g = l.opts.Fallback
	}
	if g.Affine != nil && g.CRS == nil && l.opts.SourceCRS != "" {
		g.CRS = &domain.CRSPair{Source: l.opts.SourceCRS, Target: l.opts.TargetCRS}
	}
	if g.CRS != nil && l.opts.TargetCRS != "" && g.CRS.Target != l.opts.TargetCRS {
		crs := *g.CRS
		crs.Target = l.opts.TargetCRS
		g.CRS = &crs
	}
	return g
}

// fetch retrieves name with exponential backoff. Missing files are not
// retried.
func (l *FrameLoader) fetch(ctx context.Context, name string) ([]byte, error) {
	backoff := l.opts.RetryBackoff
	for attempt := 0; ; attempt++ {
		start := time.Now()
		data, err := l.src.Fetch(ctx, name)
		l.metrics.FetchDuration.WithLabelValues("raster").Observe(time.Since(start).Seconds())
		if err == nil {
			return data, nil
		}
		if domain.IsNotFound(err) || attempt >= l.opts.Retries || ctx.Err() != nil {
			return nil, err
		}

		l.logger.Warn("fetch failed, retrying", "name", name, "attempt", attempt+1, "backoff", backoff, "error", err)
		l.metrics.FetchRetries.Inc()
		if !retry.SleepWithContext(ctx, backoff) {
			return nil, err
		}
		backoff = retry.NextBackoff(backoff, l.opts.MaxBackoff)
	}
}
