// Package api serves the viewer's HTTP API: playback control, the current
// frame as PNG, the layer list for the map widget, and the viewport.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
	"github.com/couchcryptid/storm-raster-viewer/internal/heatmap"
	"github.com/couchcryptid/storm-raster-viewer/internal/mapview"
	"github.com/couchcryptid/storm-raster-viewer/internal/player"
	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb/geojson"
)

// Player is the playback surface the API drives.
type Player interface {
	State() player.State
	Current() (domain.DisplayFrame, bool)
	SetIndex(i int) error
	Play() error
	Pause() error
	Toggle() error
}

// OverlaySource returns the merged overlay, or nil when none is loaded.
type OverlaySource interface {
	Current() *geojson.FeatureCollection
}

// OverlayRefresher is an OverlaySource that can refetch and reload on demand.
type OverlayRefresher interface {
	Refresh(ctx context.Context) (*geojson.FeatureCollection, error)
}

// Deps are the components behind the API. Overlay and Points may be empty;
// their layers are then left out.
type Deps struct {
	Player       Player
	View         *mapview.View
	Overlay      OverlaySource
	Points       []domain.WeightedPoint
	Density      heatmap.Style
	LineStyles   map[string]mapview.LineStyle
	FrameOpacity float64
	Logger       *slog.Logger
}

type handler struct {
	Deps
}

// NewRouter builds the gin engine serving /api/v1.
func NewRouter(d Deps) *gin.Engine {
	h := &handler{Deps: d}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(d.Logger), cors())

	v1 := r.Group("/api/v1")
	{
		playback := v1.Group("/player")
		{
			playback.GET("", h.getPlayer)
			playback.POST("/play", h.play)
			playback.POST("/pause", h.pause)
			playback.POST("/toggle", h.toggle)
			playback.PUT("/index", h.setIndex)
		}

		frames := v1.Group("/frames")
		{
			frames.GET("/current", h.currentFrame)
			frames.GET("/current.png", h.currentFramePNG)
		}

		v1.GET("/layers", h.layers)
		v1.GET("/overlay", h.overlay)
		v1.POST("/overlay/refresh", h.refreshOverlay)
		v1.GET("/heatmap/points", h.heatmapPoints)
		v1.GET("/heatmap.png", h.heatmapPNG)
		v1.GET("/viewport", h.getViewport)
		v1.PUT("/viewport", h.putViewport)
	}
	return r
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("api request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func abortWithError(c *gin.Context, status int, message string, err error) {
	resp := errorResponse{Code: status, Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	c.AbortWithStatusJSON(status, resp)
}
