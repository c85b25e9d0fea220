// Package observability holds the Prometheus metrics of the viewer.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "raster_viewer"

// Metrics holds the Prometheus counters, histograms, and gauges for the viewer.
type Metrics struct {
	// Playback metrics.
	FramesRequested  prometheus.Counter
	FramesApplied    prometheus.Counter
	FramesSuperseded prometheus.Counter
	FramesFailed     prometheus.Counter
	PlaybackRunning  prometheus.Gauge
	CurrentFrame     prometheus.Gauge

	// Frame pipeline metrics.
	FetchDuration     *prometheus.HistogramVec // labels: kind={raster,overlay}
	FetchRetries      prometheus.Counter
	DecodeDuration    prometheus.Histogram
	CompositeDuration prometheus.Histogram
	FrameCache        *prometheus.CounterVec // labels: result={hit,miss}

	// Overlay metrics.
	OverlayFeatures  prometheus.Gauge
	OverlayRefreshes *prometheus.CounterVec // labels: outcome={success,error}

	// Event publishing.
	EventsPublished *prometheus.CounterVec // labels: outcome={success,error,dropped}
}

var (
	fetchBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	stageBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}
)

// NewMetrics creates and registers all viewer metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.FramesRequested,
		m.FramesApplied,
		m.FramesSuperseded,
		m.FramesFailed,
		m.PlaybackRunning,
		m.CurrentFrame,
		m.FetchDuration,
		m.FetchRetries,
		m.DecodeDuration,
		m.CompositeDuration,
		m.FrameCache,
		m.OverlayFeatures,
		m.OverlayRefreshes,
		m.EventsPublished,
	)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		FramesRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_requested_total",
			Help:      help("Frame loads issued by the player."),
		}),
		FramesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_applied_total",
			Help:      help("Frame loads whose result reached the display state."),
		}),
		FramesSuperseded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_superseded_total",
			Help:      help("Frame loads discarded because a newer request arrived first."),
		}),
		FramesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_failed_total",
			Help:      help("Frame loads that failed to fetch, decode, or composite."),
		}),
		PlaybackRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_running",
			Help:      help("1 while the player is auto-advancing, 0 when paused."),
		}),
		CurrentFrame: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_frame_index",
			Help:      help("Index of the frame currently requested by the player."),
		}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      help("Source fetch duration by document kind."),
			Buckets:   fetchBuckets,
		}, []string{"kind"}),
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      help("Raster fetch attempts retried after a transport error."),
		}),
		DecodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_duration_seconds",
			Help:      help("GeoTIFF decode duration."),
			Buckets:   stageBuckets,
		}),
		CompositeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "composite_duration_seconds",
			Help:      help("Bounds resolution plus RGBA compositing duration."),
			Buckets:   stageBuckets,
		}),
		FrameCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_cache_total",
			Help:      help("Composited frame cache lookups by result."),
		}, []string{"result"}),
		OverlayFeatures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "overlay_features",
			Help:      help("Features in the current merged overlay."),
		}),
		OverlayRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overlay_refreshes_total",
			Help:      help("Overlay load attempts by outcome."),
		}, []string{"outcome"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      help("Frame-applied events handed to the broker by outcome."),
		}, []string{"outcome"}),
	}
}
