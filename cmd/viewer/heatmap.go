package main

import (
	"context"
	"fmt"

	"github.com/couchcryptid/storm-raster-viewer/internal/adapter/source"
	"github.com/couchcryptid/storm-raster-viewer/internal/config"
	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
	"github.com/couchcryptid/storm-raster-viewer/internal/geo"
	"github.com/couchcryptid/storm-raster-viewer/internal/heatmap"
	"github.com/couchcryptid/storm-raster-viewer/internal/raster"
	"github.com/paulmach/orb/geojson"
)

// loadHeatmapPoints builds the density layer input from HEATMAP_RASTER
// and/or HEATMAP_POINTS. Raster points come first.
func loadHeatmapPoints(ctx context.Context, cfg *config.Config, src source.Fetcher, tr *geo.Transformer) ([]domain.WeightedPoint, error) {
	var points []domain.WeightedPoint

	if cfg.HeatmapRaster != "" {
		data, err := src.Fetch(ctx, cfg.HeatmapRaster)
		if err != nil {
			return nil, err
		}
		frame, err := raster.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("heatmap raster %s: %w", cfg.HeatmapRaster, err)
		}
		g := frame.Georef
		if g.Empty() {
			g.Bounds = cfg.RasterBounds
		}
		if g.Affine != nil && g.CRS == nil {
			g.CRS = &domain.CRSPair{Source: cfg.SourceCRS, Target: cfg.TargetCRS}
		}
		coords, err := tr.PixelCenters(g, frame.Width, frame.Height)
		if err != nil {
			return nil, fmt.Errorf("heatmap raster %s: %w", cfg.HeatmapRaster, err)
		}
		grid, err := heatmap.FromGrid(frame, coords, heatmap.GridOptions{Fill: heatmap.DefaultFill}, cfg.HeatmapWeights.Weight)
		if err != nil {
			return nil, fmt.Errorf("heatmap raster %s: %w", cfg.HeatmapRaster, err)
		}
		points = append(points, grid...)
	}

	if cfg.HeatmapPoints != "" {
		data, err := src.Fetch(ctx, cfg.HeatmapPoints)
		if err != nil {
			return nil, err
		}
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("heatmap points %s: %w", cfg.HeatmapPoints, err)
		}
		samples, err := heatmap.SamplesFromGeoJSON(fc, heatmap.DefaultCategoryProperty)
		if err != nil {
			return nil, err
		}
		points = append(points, heatmap.FromPoints(samples, cfg.HeatmapWeights.Weight)...)
	}
	return points, nil
}
