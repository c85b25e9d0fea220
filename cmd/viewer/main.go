package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/storm-raster-viewer/internal/adapter/api"
	httpadapter "github.com/couchcryptid/storm-raster-viewer/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/storm-raster-viewer/internal/adapter/kafka"
	"github.com/couchcryptid/storm-raster-viewer/internal/adapter/source"
	"github.com/couchcryptid/storm-raster-viewer/internal/composite"
	"github.com/couchcryptid/storm-raster-viewer/internal/config"
	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
	"github.com/couchcryptid/storm-raster-viewer/internal/geo"
	"github.com/couchcryptid/storm-raster-viewer/internal/mapview"
	"github.com/couchcryptid/storm-raster-viewer/internal/observability"
	"github.com/couchcryptid/storm-raster-viewer/internal/overlay"
	"github.com/couchcryptid/storm-raster-viewer/internal/pipeline"
	"github.com/couchcryptid/storm-raster-viewer/internal/player"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// Documents other than frames change rarely; the cache spares repeated
// fetches when overlays are refreshed.
const (
	documentCacheSize = 64
	documentCacheTTL  = 5 * time.Minute
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var raw source.Fetcher
	if cfg.RasterSource == config.SourceHTTP {
		raw = source.NewHTTP(cfg.RasterBase, cfg.FetchTimeout, logger)
	} else {
		raw = source.NewFile(cfg.RasterBase)
	}
	documents := source.NewCached(raw, documentCacheSize, documentCacheTTL)

	transformer := geo.NewTransformer(geo.NewProjProvider(nil))

	loader := pipeline.NewFrameLoader(raw, cfg.Namer(), transformer, pipeline.Options{
		Composite: composite.Options{
			MaskBackground:      cfg.MaskBackground,
			BackgroundThreshold: cfg.BackgroundThreshold,
		},
		Fallback:  domain.Georef{Bounds: cfg.RasterBounds},
		SourceCRS: cfg.SourceCRS,
		TargetCRS: cfg.TargetCRS,
		Retries:   cfg.FetchRetries,
		CacheSize: cfg.FrameCacheSize,
	}, logger, metrics)

	p, err := player.New(loader, cfg.FrameCount,
		player.WithInterval(cfg.PlaybackInterval),
		player.WithLogger(logger),
		player.WithMetrics(metrics),
	)
	if err != nil {
		logger.Error("failed to create player", "error", err)
		os.Exit(1)
	}

	// Publish applied frames (feature-flagged via KAFKA_ENABLED).
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger, metrics)
		p.Subscribe(func(e player.Event) {
			if e.Kind == player.EventFrameApplied {
				writer.Publish(kafkaadapter.NewFrameEvent(*e.Frame))
			}
		})
		logger.Info("frame events enabled", "topic", cfg.KafkaFrameTopic)
	}

	// Overlays are optional: on failure the line layer is left out.
	var overlaySource api.OverlaySource
	stopRefresh := func() {}
	if layers := overlayLayers(cfg); len(layers) > 0 {
		ol := overlay.NewLoader(documents, layers, logger, metrics)
		if _, err := ol.Load(ctx); err != nil {
			logger.Warn("overlay unavailable, line layer omitted", "error", err)
		}
		if cfg.OverlayRefresh != "" {
			if stopRefresh, err = ol.Schedule(ctx, cfg.OverlayRefresh); err != nil {
				logger.Error("failed to schedule overlay refresh", "error", err)
				os.Exit(1)
			}
		}
		overlaySource = ol
	}

	points, err := loadHeatmapPoints(ctx, cfg, documents, transformer)
	if err != nil {
		logger.Warn("heatmap unavailable, density layer omitted", "error", err)
	} else if len(points) > 0 {
		logger.Info("heatmap points loaded", "count", len(points))
	}

	view, err := mapview.NewView(mapview.Viewport{
		Lon:     cfg.MapCenter[0],
		Lat:     cfg.MapCenter[1],
		Zoom:    cfg.MapZoom,
		MinZoom: mapview.DefaultViewport().MinZoom,
		MaxZoom: mapview.DefaultViewport().MaxZoom,
	}, logger)
	if err != nil {
		logger.Error("invalid map viewport", "error", err)
		os.Exit(1)
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Deps{
		Player:  p,
		View:    view,
		Overlay: overlaySource,
		Points:  points,
		Density: cfg.HeatmapStyle(),
		Logger:  logger,
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, router, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start playback.
	if err := p.Start(ctx); err != nil {
		logger.Error("failed to start player", "error", err)
		os.Exit(1)
	}
	if cfg.Autoplay {
		if err := p.Play(); err != nil {
			logger.Error("failed to start autoplay", "error", err)
		}
	}
	logger.Info("viewer started", "frames", cfg.FrameCount, "first", loader.Name(0), "autoplay", cfg.Autoplay)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	stopRefresh()
	p.Dispose()
	view.Close()
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	loader.Close()
	documents.Close()

	logger.Info("shutdown complete")
}

func overlayLayers(cfg *config.Config) []overlay.Layer {
	var layers []overlay.Layer
	if cfg.OverlayBoundary != "" {
		layers = append(layers, overlay.Layer{Tag: overlay.TagBoundary, Name: cfg.OverlayBoundary})
	}
	if cfg.OverlayCoastline != "" {
		layers = append(layers, overlay.Layer{Tag: overlay.TagCoastline, Name: cfg.OverlayCoastline})
	}
	return layers
}
