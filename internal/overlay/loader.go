package overlay

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-raster-viewer/internal/observability"
	"github.com/paulmach/orb/geojson"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// Fetcher retrieves a named document.
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// Invalidator is implemented by caching fetchers that can drop a document.
type Invalidator interface {
	Invalidate(name string)
}

// Layer names one overlay document and the tag its features receive.
type Layer struct {
	Tag  string
	Name string
}

// Loader fetches all overlay layers concurrently, merges them, and publishes
// the result as an immutable snapshot.
type Loader struct {
	fetcher Fetcher
	layers  []Layer
	logger  *slog.Logger
	metrics *observability.Metrics

	current atomic.Pointer[geojson.FeatureCollection]
}

// NewLoader creates a Loader for the given layers, merged in slice order.
func NewLoader(f Fetcher, layers []Layer, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	return &Loader{fetcher: f, layers: layers, logger: logger, metrics: metrics}
}

// Load fetches and merges every layer. On any failure the previous snapshot
// is kept and the error returned.
func (l *Loader) Load(ctx context.Context) (*geojson.FeatureCollection, error) {
	docs := make([][]byte, len(l.layers))

	g, gctx := errgroup.WithContext(ctx)
	for i, layer := range l.layers {
		g.Go(func() error {
			start := time.Now()
			data, err := l.fetcher.Fetch(gctx, layer.Name)
			l.metrics.FetchDuration.WithLabelValues("overlay").Observe(time.Since(start).Seconds())
			if err != nil {
				return fmt.Errorf("overlay %s: %w", layer.Tag, err)
			}
			docs[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		l.fail(err)
		return nil, err
	}

	sources := make([]Source, len(l.layers))
	for i, layer := range l.layers {
		fc, err := Parse(docs[i], i, layer.Tag)
		if err != nil {
			l.fail(err)
			return nil, err
		}
		sources[i] = Source{Tag: layer.Tag, Collection: fc}
	}

	merged, err := Merge(sources)
	if err != nil {
		l.fail(err)
		return nil, err
	}

	l.current.Store(merged)
	l.metrics.OverlayFeatures.Set(float64(len(merged.Features)))
	l.metrics.OverlayRefreshes.WithLabelValues("success").Inc()
	l.logger.Info("overlay loaded", "layers", len(l.layers), "features", len(merged.Features))
	return merged, nil
}

// Refresh drops any cached copy of the layer documents, then loads them.
func (l *Loader) Refresh(ctx context.Context) (*geojson.FeatureCollection, error) {
	if inv, ok := l.fetcher.(Invalidator); ok {
		for _, layer := range l.layers {
			inv.Invalidate(layer.Name)
		}
	}
	return l.Load(ctx)
}

func (l *Loader) fail(err error) {
	l.metrics.OverlayRefreshes.WithLabelValues("error").Inc()
	l.logger.Warn("overlay load failed, line layer unchanged", "error", err)
}

// Current returns the latest merged overlay, or nil if none has loaded. The
// returned collection must not be modified.
func (l *Loader) Current() *geojson.FeatureCollection {
	return l.current.Load()
}

// Schedule reloads the overlay on a cron spec (e.g. "@every 1h") until ctx is
// done or the returned stop function is called.
func (l *Loader) Schedule(ctx context.Context, spec string) (stop func(), err error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		_, _ = l.Refresh(ctx)
	}); err != nil {
		return nil, fmt.Errorf("schedule overlay refresh %q: %w", spec, err)
	}
	c.Start()
	l.logger.Info("overlay refresh scheduled", "spec", spec)

	done := make(chan struct{})
	var stopped atomic.Bool
	stop = func() {
		if stopped.CompareAndSwap(false, true) {
			close(done)
			<-c.Stop().Done()
		}
	}
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()
	return stop, nil
}
