package domain

import (
	"math"
	"time"
)

// Bounds is an axis-aligned geographic extent in the target CRS.
type Bounds struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Valid reports whether the bounds are finite and non-inverted.
func (b Bounds) Valid() bool {
	for _, v := range b.Array() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.West < b.East && b.South < b.North
}

// Array returns the bounds in [west, south, east, north] order, the layout
// bitmap layers expect.
func (b Bounds) Array() [4]float64 {
	return [4]float64{b.West, b.South, b.East, b.North}
}

// Affine describes a north-up grid in a projected CRS. The origin is the
// lower-left pixel center; row 0 is the top row of the image.
type Affine struct {
	OriginEasting  float64 `json:"origin_easting"`
	OriginNorthing float64 `json:"origin_northing"`
	PixelSize      float64 `json:"pixel_size"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
}

// CRSPair names the source and target coordinate reference systems.
type CRSPair struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Georef holds the georeferencing embedded in (or supplied for) a raster.
// Exactly one of Bounds or Affine is set.
type Georef struct {
	Bounds *Bounds  `json:"bounds,omitempty"`
	Affine *Affine  `json:"affine,omitempty"`
	CRS    *CRSPair `json:"crs,omitempty"`
}

// Empty reports whether no georeferencing is present.
func (g Georef) Empty() bool {
	return g.Bounds == nil && g.Affine == nil
}

// RasterFrame is a decoded, band-interleaved raster.
// len(Samples) == Width*Height*Bands.
type RasterFrame struct {
	Index   int
	Width   int
	Height  int
	Bands   int
	Samples []uint8
	Georef  Georef
}

// CompositedBitmap is an RGBA buffer ready for display.
// len(Pix) == Width*Height*4.
type CompositedBitmap struct {
	Width  int
	Height int
	Pix    []uint8
	Bounds Bounds
}

// DisplayFrame is what the player hands to the display layer once a frame's
// load has completed and passed the superseding check.
type DisplayFrame struct {
	Index     int
	Name      string
	Time      time.Time
	Bitmap    CompositedBitmap
	AppliedAt time.Time
}

// WeightedPoint is a heatmap input sample.
type WeightedPoint struct {
	Lon      float64 `json:"lon"`
	Lat      float64 `json:"lat"`
	Category int     `json:"category"`
	Weight   float64 `json:"weight"`
}
