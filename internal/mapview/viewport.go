// Package mapview describes what the map widget draws: the viewport it shows
// and the ordered layer list built from the current frame, the merged overlay,
// and the density points. The widget itself is an external collaborator.
package mapview

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
)

// ErrClosed is returned by Move on a closed View.
var ErrClosed = errors.New("map view closed")

// Viewport is the camera state of the map widget.
type Viewport struct {
	Lon     float64        `json:"lon"`
	Lat     float64        `json:"lat"`
	Zoom    float64        `json:"zoom"`
	Bounds  *domain.Bounds `json:"bounds,omitempty"`
	MinZoom float64        `json:"min_zoom"`
	MaxZoom float64        `json:"max_zoom"`
}

// DefaultViewport centers on the Korean peninsula.
func DefaultViewport() Viewport {
	return Viewport{Lon: 127.5, Lat: 38.0, Zoom: 5.5, MinZoom: 0, MaxZoom: 20}
}

// Validate checks the viewport is displayable.
func (v Viewport) Validate() error {
	switch {
	case math.IsNaN(v.Lon) || v.Lon < -180 || v.Lon > 180:
		return fmt.Errorf("viewport: longitude %v out of range", v.Lon)
	case math.IsNaN(v.Lat) || v.Lat < -90 || v.Lat > 90:
		return fmt.Errorf("viewport: latitude %v out of range", v.Lat)
	case math.IsNaN(v.Zoom):
		return errors.New("viewport: zoom is NaN")
	case v.MinZoom > v.MaxZoom:
		return fmt.Errorf("viewport: min zoom %v above max zoom %v", v.MinZoom, v.MaxZoom)
	case v.Bounds != nil && !v.Bounds.Valid():
		return errors.New("viewport: invalid bounds")
	}
	return nil
}

func (v Viewport) clamped() Viewport {
	v.Zoom = math.Max(v.MinZoom, math.Min(v.MaxZoom, v.Zoom))
	return v
}

// View owns the viewport of one map instance. Create it when the view mounts
// and Close it when the view goes away.
type View struct {
	logger *slog.Logger

	mu          sync.Mutex
	viewport    Viewport
	closed      bool
	subscribers map[int]func(Viewport)
	nextID      int
}

// NewView creates a View at the given initial viewport.
func NewView(initial Viewport, logger *slog.Logger) (*View, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &View{
		logger:      logger,
		viewport:    initial.clamped(),
		subscribers: make(map[int]func(Viewport)),
	}, nil
}

// Viewport returns the current viewport.
func (v *View) Viewport() Viewport {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.viewport
}

// Move applies a viewport-change event from the widget. The zoom is clamped
// to the viewport's own limits. Zoom limits left at zero keep the current
// ones. Subscribers see the applied viewport.
func (v *View) Move(next Viewport) (Viewport, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return Viewport{}, ErrClosed
	}
	if next.MinZoom == 0 && next.MaxZoom == 0 {
		next.MinZoom, next.MaxZoom = v.viewport.MinZoom, v.viewport.MaxZoom
	}
	if err := next.Validate(); err != nil {
		return Viewport{}, err
	}
	v.viewport = next.clamped()
	v.logger.Debug("viewport moved", "lon", v.viewport.Lon, "lat", v.viewport.Lat, "zoom", v.viewport.Zoom)
	for id := 0; id < v.nextID; id++ {
		if fn, ok := v.subscribers[id]; ok {
			fn(v.viewport)
		}
	}
	return v.viewport, nil
}

// Subscribe registers fn for viewport changes and returns a function that
// removes it. fn runs under the view's lock and must not call back into it.
func (v *View) Subscribe(fn func(Viewport)) (unsubscribe func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return func() {}
	}
	id := v.nextID
	v.nextID++
	v.subscribers[id] = fn
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.subscribers, id)
	}
}

// Close releases the view. Later moves fail with ErrClosed.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.subscribers = nil
}
