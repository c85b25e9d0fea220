package mapview

import (
	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
	"github.com/couchcryptid/storm-raster-viewer/internal/heatmap"
	"github.com/couchcryptid/storm-raster-viewer/internal/overlay"
	"github.com/paulmach/orb/geojson"
)

// LayerType discriminates layer descriptors.
type LayerType string

const (
	LayerBitmap  LayerType = "bitmap"
	LayerDensity LayerType = "density"
	LayerLine    LayerType = "line"
)

// Layer is a descriptor the map widget can draw.
type Layer interface {
	LayerType() LayerType
}

// BitmapLayer is a georeferenced image.
type BitmapLayer struct {
	ID         string     `json:"id"`
	Type       LayerType  `json:"type"`
	ImageURL   string     `json:"image_url"`
	Bounds     [4]float64 `json:"bounds"`
	Opacity    float64    `json:"opacity"`
	FrameIndex int        `json:"frame_index"`
	FrameName  string     `json:"frame_name"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
}

func (BitmapLayer) LayerType() LayerType { return LayerBitmap }

// LineStyle is the stroke for one lineType value.
type LineStyle struct {
	Color [4]uint8 `json:"color"`
	Width float64  `json:"width"`
}

// DefaultLineStyles strokes boundaries gray and coastlines black.
func DefaultLineStyles() map[string]LineStyle {
	return map[string]LineStyle{
		overlay.TagBoundary:  {Color: [4]uint8{80, 80, 80, 255}, Width: 1},
		overlay.TagCoastline: {Color: [4]uint8{0, 0, 0, 255}, Width: 1.5},
	}
}

// LineLayer draws the merged overlay, styled by each feature's lineType.
type LineLayer struct {
	ID       string                     `json:"id"`
	Type     LayerType                  `json:"type"`
	Data     *geojson.FeatureCollection `json:"data"`
	StyleKey string                     `json:"style_key"`
	Styles   map[string]LineStyle       `json:"styles"`
}

func (LineLayer) LayerType() LayerType { return LayerLine }

// DensityLayer is a heatmap over weighted points.
type DensityLayer struct {
	ID        string                 `json:"id"`
	Type      LayerType              `json:"type"`
	ImageURL  string                 `json:"image_url,omitempty"`
	Points    []domain.WeightedPoint `json:"points"`
	Radius    float64                `json:"radius"`
	Intensity float64                `json:"intensity"`
	Threshold float64                `json:"threshold"`
	Opacity   float64                `json:"opacity"`
	Ramp      heatmap.Ramp           `json:"ramp"`
}

func (DensityLayer) LayerType() LayerType { return LayerDensity }

// SceneInput is everything a scene can be built from. Nil or empty inputs
// leave their layer out.
type SceneInput struct {
	Viewport Viewport

	Frame        *domain.DisplayFrame
	FrameURL     string
	FrameOpacity float64

	Overlay    *geojson.FeatureCollection
	LineStyles map[string]LineStyle

	Points     []domain.WeightedPoint
	Density    heatmap.Style
	DensityURL string
}

// Scene is the viewport plus layers in draw order.
type Scene struct {
	Viewport Viewport `json:"viewport"`
	Layers   []Layer  `json:"layers"`
}

// BuildScene assembles the layer list: the frame bitmap at the bottom, the
// density field above it, and the overlay lines on top.
func BuildScene(in SceneInput) Scene {
	scene := Scene{Viewport: in.Viewport, Layers: []Layer{}}

	if in.Frame != nil {
		opacity := in.FrameOpacity
		if opacity <= 0 {
			opacity = 1
		}
		scene.Layers = append(scene.Layers, BitmapLayer{
			ID:         "raster-frame",
			Type:       LayerBitmap,
			ImageURL:   in.FrameURL,
			Bounds:     in.Frame.Bitmap.Bounds.Array(),
			Opacity:    opacity,
			FrameIndex: in.Frame.Index,
			FrameName:  in.Frame.Name,
			Width:      in.Frame.Bitmap.Width,
			Height:     in.Frame.Bitmap.Height,
		})
	}

	if len(in.Points) > 0 {
		scene.Layers = append(scene.Layers, DensityLayer{
			ID:        "heatmap",
			Type:      LayerDensity,
			ImageURL:  in.DensityURL,
			Points:    in.Points,
			Radius:    in.Density.Radius,
			Intensity: in.Density.Intensity,
			Threshold: in.Density.Threshold,
			Opacity:   in.Density.Opacity,
			Ramp:      in.Density.Ramp,
		})
	}

	if in.Overlay != nil && len(in.Overlay.Features) > 0 {
		styles := in.LineStyles
		if styles == nil {
			styles = DefaultLineStyles()
		}
		scene.Layers = append(scene.Layers, LineLayer{
			ID:       "overlay-lines",
			Type:     LayerLine,
			Data:     in.Overlay,
			StyleKey: overlay.LineTypeKey,
			Styles:   styles,
		})
	}
	return scene
}
