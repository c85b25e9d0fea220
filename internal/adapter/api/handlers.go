package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/storm-raster-viewer/internal/composite"
	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
	"github.com/couchcryptid/storm-raster-viewer/internal/heatmap"
	"github.com/couchcryptid/storm-raster-viewer/internal/mapview"
	"github.com/couchcryptid/storm-raster-viewer/internal/player"
	"github.com/gin-gonic/gin"
)

const (
	framePNGPath   = "/api/v1/frames/current.png"
	heatmapPNGPath = "/api/v1/heatmap.png"

	defaultHeatmapSize = 512
	maxHeatmapSize     = 4096
)

func (h *handler) getPlayer(c *gin.Context) {
	c.JSON(http.StatusOK, h.Player.State())
}

func (h *handler) play(c *gin.Context)   { h.control(c, h.Player.Play) }
func (h *handler) pause(c *gin.Context)  { h.control(c, h.Player.Pause) }
func (h *handler) toggle(c *gin.Context) { h.control(c, h.Player.Toggle) }

func (h *handler) control(c *gin.Context, op func() error) {
	if err := op(); err != nil {
		h.playerError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Player.State())
}

type indexRequest struct {
	Index *int `json:"index" binding:"required"`
}

func (h *handler) setIndex(c *gin.Context) {
	var req indexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.Player.SetIndex(*req.Index); err != nil {
		h.playerError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, h.Player.State())
}

func (h *handler) playerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrIndexOutOfRange):
		abortWithError(c, http.StatusBadRequest, "frame index out of range", err)
	case errors.Is(err, player.ErrDisposed):
		abortWithError(c, http.StatusConflict, "player disposed", err)
	default:
		abortWithError(c, http.StatusInternalServerError, "playback error", err)
	}
}

type frameResponse struct {
	Index     int           `json:"index"`
	Name      string        `json:"name"`
	Time      time.Time     `json:"time"`
	Bounds    domain.Bounds `json:"bounds"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	AppliedAt time.Time     `json:"applied_at"`
	ImageURL  string        `json:"image_url"`
}

func (h *handler) currentFrame(c *gin.Context) {
	frame, ok := h.Player.Current()
	if !ok {
		abortWithError(c, http.StatusNotFound, "no frame displayed yet", nil)
		return
	}
	c.JSON(http.StatusOK, frameResponse{
		Index:     frame.Index,
		Name:      frame.Name,
		Time:      frame.Time,
		Bounds:    frame.Bitmap.Bounds,
		Width:     frame.Bitmap.Width,
		Height:    frame.Bitmap.Height,
		AppliedAt: frame.AppliedAt,
		ImageURL:  framePNGURL(frame.Index),
	})
}

func (h *handler) currentFramePNG(c *gin.Context) {
	frame, ok := h.Player.Current()
	if !ok {
		abortWithError(c, http.StatusNotFound, "no frame displayed yet", nil)
		return
	}
	var buf bytes.Buffer
	if err := composite.EncodePNG(&buf, frame.Bitmap); err != nil {
		abortWithError(c, http.StatusInternalServerError, "encode frame", err)
		return
	}
	c.Header("X-Frame-Index", strconv.Itoa(frame.Index))
	c.Header("X-Frame-Name", frame.Name)
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// framePNGURL appends the index so widgets reload the image on every frame.
func framePNGURL(i int) string {
	return framePNGPath + "?i=" + strconv.Itoa(i)
}

func (h *handler) layers(c *gin.Context) {
	in := mapview.SceneInput{
		Viewport:     h.View.Viewport(),
		FrameOpacity: h.FrameOpacity,
		LineStyles:   h.LineStyles,
		Points:       h.Points,
		Density:      h.Density,
		DensityURL:   heatmapPNGPath,
	}
	if frame, ok := h.Player.Current(); ok {
		in.Frame = &frame
		in.FrameURL = framePNGURL(frame.Index)
	}
	if h.Overlay != nil {
		in.Overlay = h.Overlay.Current()
	}
	c.JSON(http.StatusOK, mapview.BuildScene(in))
}

func (h *handler) overlay(c *gin.Context) {
	if h.Overlay == nil {
		abortWithError(c, http.StatusNotFound, "overlay not configured", nil)
		return
	}
	fc := h.Overlay.Current()
	if fc == nil {
		abortWithError(c, http.StatusNotFound, "overlay not loaded", nil)
		return
	}
	c.JSON(http.StatusOK, fc)
}

// refreshOverlay reloads both overlay layers. On failure the previous
// overlay stays in place.
func (h *handler) refreshOverlay(c *gin.Context) {
	r, ok := h.Overlay.(OverlayRefresher)
	if !ok {
		abortWithError(c, http.StatusNotImplemented, "overlay refresh not supported", nil)
		return
	}
	fc, err := r.Refresh(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusBadGateway, "overlay refresh failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"features": len(fc.Features)})
}

func (h *handler) heatmapPoints(c *gin.Context) {
	points := h.Points
	if points == nil {
		points = []domain.WeightedPoint{}
	}
	c.JSON(http.StatusOK, points)
}

// heatmapPNG renders the density layer. The extent comes from the bbox query
// parameter (west,south,east,north), then the viewport bounds, then the
// extent of the weighted points.
func (h *handler) heatmapPNG(c *gin.Context) {
	if len(h.Points) == 0 {
		abortWithError(c, http.StatusNotFound, "no heatmap points", nil)
		return
	}

	canvas := heatmap.Canvas{}
	var err error
	if canvas.Width, err = sizeParam(c, "width"); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid width", err)
		return
	}
	if canvas.Height, err = sizeParam(c, "height"); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid height", err)
		return
	}

	switch bbox := c.Query("bbox"); {
	case bbox != "":
		if canvas.Bounds, err = parseBBox(bbox); err != nil {
			abortWithError(c, http.StatusBadRequest, "invalid bbox", err)
			return
		}
	case h.View.Viewport().Bounds != nil:
		canvas.Bounds = *h.View.Viewport().Bounds
	default:
		b, ok := heatmap.Extent(h.Points)
		if !ok || !b.Valid() {
			abortWithError(c, http.StatusUnprocessableEntity, "heatmap extent is empty", nil)
			return
		}
		canvas.Bounds = b
	}

	bm, err := heatmap.Render(h.Points, h.Density, canvas)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "render heatmap", err)
		return
	}
	var buf bytes.Buffer
	if err := composite.EncodePNG(&buf, bm); err != nil {
		abortWithError(c, http.StatusInternalServerError, "encode heatmap", err)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func sizeParam(c *gin.Context, key string) (int, error) {
	s := c.Query(key)
	if s == "" {
		return defaultHeatmapSize, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 || n > maxHeatmapSize {
		return 0, fmt.Errorf("%s must be in [1, %d]", key, maxHeatmapSize)
	}
	return n, nil
}

func parseBBox(s string) (domain.Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return domain.Bounds{}, fmt.Errorf("want 4 values, got %d", len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.Bounds{}, err
		}
		v[i] = f
	}
	b := domain.Bounds{West: v[0], South: v[1], East: v[2], North: v[3]}
	if !b.Valid() {
		return domain.Bounds{}, errors.New("bounds are inverted or empty")
	}
	return b, nil
}

func (h *handler) getViewport(c *gin.Context) {
	c.JSON(http.StatusOK, h.View.Viewport())
}

func (h *handler) putViewport(c *gin.Context) {
	var vp mapview.Viewport
	if err := c.ShouldBindJSON(&vp); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body", err)
		return
	}
	applied, err := h.View.Move(vp)
	if err != nil {
		if errors.Is(err, mapview.ErrClosed) {
			abortWithError(c, http.StatusConflict, "map view closed", err)
			return
		}
		abortWithError(c, http.StatusBadRequest, "invalid viewport", err)
		return
	}
	c.JSON(http.StatusOK, applied)
}
