package heatmap

import (
	"fmt"

	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
	"github.com/couchcryptid/storm-raster-viewer/internal/geo"
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// NoFill disables fill-value skipping in FromGrid.
const NoFill = -1

// DefaultFill is the fill value of the cloud-mask product.
const DefaultFill = 255

// Sample is an unweighted categorical observation.
type Sample struct {
	Lon      float64 `json:"lon"`
	Lat      float64 `json:"lat"`
	Category int     `json:"category"`
}

// FromPoints assigns weights to samples, preserving their order. Samples with
// unrecognized categories are kept with weight 0 and contribute nothing to a
// rendered field.
func FromPoints(samples []Sample, weight WeightFunc) []domain.WeightedPoint {
	out := make([]domain.WeightedPoint, len(samples))
	for i, s := range samples {
		out[i] = domain.WeightedPoint{Lon: s.Lon, Lat: s.Lat, Category: s.Category, Weight: weight(s.Category)}
	}
	return out
}

// DefaultCategoryProperty is the feature property holding a point's category.
const DefaultCategoryProperty = "cloud_status"

// SamplesFromGeoJSON extracts categorical samples from the Point features of
// fc, in feature order. Null features, features that are not points, and
// features without a numeric category property are skipped.
func SamplesFromGeoJSON(fc *geojson.FeatureCollection, property string) ([]Sample, error) {
	if fc == nil {
		return nil, fmt.Errorf("heatmap points: nil feature collection")
	}
	out := make([]Sample, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		v, ok := f.Properties[property].(float64)
		if !ok {
			continue
		}
		out = append(out, Sample{Lon: pt.Lon(), Lat: pt.Lat(), Category: int(v)})
	}
	return out, nil
}

// GridOptions controls how a categorical raster is sampled.
type GridOptions struct {
	// Fill is skipped entirely. NoFill keeps every pixel.
	Fill int
	// Stride samples every Stride-th row and column. Values below 2 keep all.
	Stride int
}

// FromGrid builds weighted points from a single-band categorical raster and
// the per-pixel target coordinates returned by geo.Transformer.ProjectGrid.
// Points are emitted in row-major order from the top row down.
func FromGrid(frame domain.RasterFrame, coords []geo.Point, opts GridOptions, weight WeightFunc) ([]domain.WeightedPoint, error) {
	if frame.Bands != 1 {
		return nil, fmt.Errorf("heatmap grid: want 1 band, got %d", frame.Bands)
	}
	n := frame.Width * frame.Height
	if len(frame.Samples) != n {
		return nil, &domain.CompositeError{Kind: domain.SizeMismatch, Expected: n, Actual: len(frame.Samples)}
	}
	if len(coords) != n {
		return nil, fmt.Errorf("heatmap grid: %d coordinates for %d pixels", len(coords), n)
	}
	stride := opts.Stride
	if stride < 2 {
		stride = 1
	}

	var out []domain.WeightedPoint
	for row := 0; row < frame.Height; row += stride {
		for col := 0; col < frame.Width; col += stride {
			i := row*frame.Width + col
			cat := int(frame.Samples[i])
			if opts.Fill != NoFill && cat == opts.Fill {
				continue
			}
			out = append(out, domain.WeightedPoint{
				Lon:      coords[i].X,
				Lat:      coords[i].Y,
				Category: cat,
				Weight:   weight(cat),
			})
		}
	}
	return out, nil
}

// Extent returns the bounding box of the points that carry weight, and false
// if there are none.
func Extent(points []domain.WeightedPoint) (domain.Bounds, bool) {
	rect := s2.EmptyRect()
	for _, p := range points {
		if p.Weight <= 0 {
			continue
		}
		rect = rect.AddPoint(s2.LatLngFromDegrees(p.Lat, p.Lon))
	}
	if rect.IsEmpty() {
		return domain.Bounds{}, false
	}
	lo, hi := rect.Lo(), rect.Hi()
	return domain.Bounds{
		West:  lo.Lng.Degrees(),
		South: lo.Lat.Degrees(),
		East:  hi.Lng.Degrees(),
		North: hi.Lat.Degrees(),
	}, true
}
