// Command genframes writes a synthetic day of raster frames plus overlay and
// cloud-mask fixtures, for running the viewer without real satellite data.
// Frames use the same naming template the viewer reads.
//
// Usage:
//
//	go run ./cmd/genframes -out data -date 20240707
//	go run ./cmd/genframes -out data -projected   # GK-2A LCC affine grids
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/storm-raster-viewer/internal/composite"
	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
	"github.com/couchcryptid/storm-raster-viewer/internal/geo"
	"github.com/couchcryptid/storm-raster-viewer/internal/heatmap"
	"github.com/couchcryptid/storm-raster-viewer/internal/overlay"
	"github.com/couchcryptid/storm-raster-viewer/internal/raster"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Extent of the synthetic scene around the Korean peninsula.
var sceneBounds = domain.Bounds{West: 120, South: 30, East: 135, North: 45}

// Projected grid centered on the GK-2A LCC origin, 2 km pixels.
const projectedPixelSize = 2000.0

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data", "output directory")
	date := flag.String("date", "20240707", "frame date (YYYYMMDD)")
	count := flag.Int("count", 144, "number of frames")
	step := flag.Duration("step", domain.DefaultStep, "time between frames")
	size := flag.Int("size", 256, "frame width and height in pixels")
	prefix := flag.String("prefix", "swrad_", "frame file name prefix")
	suffix := flag.String("suffix", "_jet.tif", "frame file name suffix")
	projected := flag.Bool("projected", false, "write GK-2A LCC affine grids instead of geographic bounds")
	deflate := flag.Bool("deflate", true, "deflate-compress frames")
	flag.Parse()

	day, err := time.Parse("20060102", *date)
	if err != nil {
		return fmt.Errorf("invalid -date: %w", err)
	}
	if *count < 1 || *size < 2 {
		flag.Usage()
		return fmt.Errorf("-count must be positive and -size at least 2")
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}

	namer := domain.Namer{Prefix: *prefix, Suffix: *suffix, Date: day, Step: *step}
	georef := frameGeoref(*size, *projected)

	for i := range *count {
		field := syntheticField(*size, float64(i)/float64(*count))
		frame := domain.RasterFrame{
			Index:   i,
			Width:   *size,
			Height:  *size,
			Bands:   4,
			Samples: composite.Colorize(field),
			Georef:  georef,
		}
		if err := writeRaster(filepath.Join(*out, namer.Name(i)), frame, *deflate); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	log.Printf("wrote %d frames: %s .. %s", *count, namer.Name(0), namer.Name(*count-1))

	mask := cloudMask(*size, georef)
	if err := writeRaster(filepath.Join(*out, "cloudmask.tif"), mask, *deflate); err != nil {
		return fmt.Errorf("cloud mask: %w", err)
	}
	log.Printf("wrote cloud mask: cloudmask.tif")

	if err := writeCloudPoints(filepath.Join(*out, "cloud_points.geojson")); err != nil {
		return fmt.Errorf("cloud points: %w", err)
	}

	for tag, fc := range overlays() {
		path := filepath.Join(*out, tag+".geojson")
		if err := writeJSON(path, fc); err != nil {
			return fmt.Errorf("overlay %s: %w", tag, err)
		}
		log.Printf("wrote overlay: %s (%d features)", path, len(fc.Features))
	}
	return nil
}

func frameGeoref(size int, projected bool) domain.Georef {
	if !projected {
		b := sceneBounds
		return domain.Georef{Bounds: &b}
	}
	half := float64(size-1) / 2 * projectedPixelSize
	return domain.Georef{
		Affine: &domain.Affine{
			OriginEasting:  -half,
			OriginNorthing: -half,
			PixelSize:      projectedPixelSize,
			Width:          size,
			Height:         size,
		},
		CRS: &domain.CRSPair{Source: geo.GK2ALCC, Target: geo.WGS84},
	}
}

// syntheticField is a pair of Gaussian cells drifting east over the day.
// Pixels far from both cells are NaN, which colorizes as transparent.
func syntheticField(size int, t float64) []float64 {
	cells := []struct{ x, y, r, peak float64 }{
		{0.15 + 0.7*t, 0.35, 0.18, 1.0},
		{0.8 - 0.5*t, 0.65 + 0.1*math.Sin(2*math.Pi*t), 0.12, 0.7},
	}
	out := make([]float64, size*size)
	for row := range size {
		for col := range size {
			x := (float64(col) + 0.5) / float64(size)
			y := (float64(row) + 0.5) / float64(size)
			v := 0.0
			for _, c := range cells {
				d2 := (x-c.x)*(x-c.x) + (y-c.y)*(y-c.y)
				v += c.peak * math.Exp(-d2/(2*c.r*c.r))
			}
			if v < 0.05 {
				v = math.NaN()
			}
			out[row*size+col] = v
		}
	}
	return out
}

// cloudMask is a single-band categorical raster: 0 cloudy, 1 probably
// cloudy, 2 clear, 255 outside the disk.
func cloudMask(size int, georef domain.Georef) domain.RasterFrame {
	samples := make([]uint8, size*size)
	field := syntheticField(size, 0.5)
	for i, v := range field {
		row, col := i/size, i%size
		dx := float64(col)/float64(size) - 0.5
		dy := float64(row)/float64(size) - 0.5
		switch {
		case dx*dx+dy*dy > 0.24:
			samples[i] = heatmap.DefaultFill
		case math.IsNaN(v) || v < 0.2:
			samples[i] = 2
		case v < 0.5:
			samples[i] = 1
		}
	}
	return domain.RasterFrame{Width: size, Height: size, Bands: 1, Samples: samples, Georef: georef}
}

func writeCloudPoints(path string) error {
	fc := geojson.NewFeatureCollection()
	for i := range 40 {
		lon := 124 + float64(i%8)
		lat := 33 + float64(i/8)*1.5
		f := geojson.NewFeature(orb.Point{lon, lat})
		f.Properties[heatmap.DefaultCategoryProperty] = i % 3
		fc.Append(f)
	}
	return writeJSON(path, fc)
}

// overlays returns a coarse peninsula outline and an inland boundary.
func overlays() map[string]*geojson.FeatureCollection {
	coast := geojson.NewFeatureCollection()
	coast.Append(geojson.NewFeature(orb.LineString{
		{126.1, 34.3}, {126.5, 35.5}, {126.6, 36.9}, {126.1, 37.7}, {125.2, 38.0},
		{125.1, 39.6}, {124.4, 40.0},
	}))
	coast.Append(geojson.NewFeature(orb.LineString{
		{126.1, 34.3}, {127.5, 34.6}, {128.6, 34.9}, {129.3, 35.3}, {129.5, 36.0},
		{129.4, 37.1}, {128.6, 38.4}, {127.5, 39.7}, {129.7, 41.0}, {130.6, 42.4},
	}))

	boundary := geojson.NewFeatureCollection()
	boundary.Append(geojson.NewFeature(orb.LineString{
		{126.1, 37.7}, {126.7, 37.9}, {127.1, 38.3}, {128.0, 38.3}, {128.4, 38.6},
	}))
	boundary.Append(geojson.NewFeature(orb.LineString{
		{124.4, 40.0}, {126.0, 41.0}, {128.1, 41.4}, {129.7, 42.4}, {130.6, 42.4},
	}))

	return map[string]*geojson.FeatureCollection{
		overlay.TagCoastline: coast,
		overlay.TagBoundary:  boundary,
	}
}

func writeRaster(path string, frame domain.RasterFrame, deflate bool) error {
	var buf bytes.Buffer
	if err := raster.Encode(&buf, frame, raster.EncodeOptions{Deflate: deflate}); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
