package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
)

// ErrNoGeoref is returned when a frame carries neither bounds nor an affine.
var ErrNoGeoref = errors.New("frame has no georeferencing")

// edgeSamples is the number of points sampled along each edge of a projected
// grid when computing its envelope in the target CRS.
const edgeSamples = 32

// Point is a coordinate pair: easting/northing in a projected CRS or
// longitude/latitude in a geographic one.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Transformer orchestrates grid traversal and reprojection.
type Transformer struct {
	provider Provider
}

// NewTransformer creates a Transformer that reprojects with p.
func NewTransformer(p Provider) *Transformer {
	return &Transformer{provider: p}
}

// GridToProjected returns the projected coordinate of the center of pixel
// (row, col). Row 0 is the top of the image, so northing decreases as row
// grows.
func GridToProjected(row, col int, a domain.Affine) (easting, northing float64) {
	easting = a.OriginEasting + float64(col)*a.PixelSize
	northing = a.OriginNorthing + float64(a.Height-1-row)*a.PixelSize
	return easting, northing
}

func (t *Transformer) forward(source, target string) (ForwardFunc, error) {
	if source == target || source == "" || target == "" {
		return func(x, y float64) (float64, float64, error) { return x, y, nil }, nil
	}
	return t.provider.Forward(source, target)
}

func apply(fn ForwardFunc, p Point, source, target string) (Point, error) {
	x, y, err := fn(p.X, p.Y)
	if err != nil {
		return Point{}, &domain.TransformError{Kind: domain.NonInvertible, Source: source, Target: target, Err: err}
	}
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return Point{}, &domain.TransformError{
			Kind: domain.NonInvertible, Source: source, Target: target,
			Err: fmt.Errorf("(%g, %g) has no finite image", p.X, p.Y),
		}
	}
	return Point{X: x, Y: y}, nil
}

// ToTarget reprojects a single point. Identical CRS identifiers are a no-op.
func (t *Transformer) ToTarget(p Point, source, target string) (Point, error) {
	fn, err := t.forward(source, target)
	if err != nil {
		return Point{}, err
	}
	return apply(fn, p, source, target)
}

// ProjectGrid reprojects the center of every pixel of the grid. The result
// is row-major from the top row down, so index row*width+col matches the
// sample order of the source raster.
func (t *Transformer) ProjectGrid(a domain.Affine, crs domain.CRSPair) ([]Point, error) {
	if a.Width <= 0 || a.Height <= 0 {
		return nil, fmt.Errorf("project grid: invalid size %dx%d", a.Width, a.Height)
	}
	fn, err := t.forward(crs.Source, crs.Target)
	if err != nil {
		return nil, err
	}

	out := make([]Point, 0, a.Width*a.Height)
	for row := 0; row < a.Height; row++ {
		for col := 0; col < a.Width; col++ {
			e, n := GridToProjected(row, col, a)
			p, err := apply(fn, Point{X: e, Y: n}, crs.Source, crs.Target)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
	}
	return out, nil
}

// PixelCenters returns the target-CRS center of every pixel of a width x
// height raster, in the same order as ProjectGrid. Bounds are divided evenly;
// an affine grid is reprojected pixel by pixel.
func (t *Transformer) PixelCenters(g domain.Georef, width, height int) ([]Point, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("pixel centers: invalid size %dx%d", width, height)
	}
	switch {
	case g.Bounds != nil:
		b := *g.Bounds
		dx := (b.East - b.West) / float64(width)
		dy := (b.North - b.South) / float64(height)
		out := make([]Point, 0, width*height)
		for row := 0; row < height; row++ {
			y := b.North - (float64(row)+0.5)*dy
			for col := 0; col < width; col++ {
				out = append(out, Point{X: b.West + (float64(col)+0.5)*dx, Y: y})
			}
		}
		return out, nil
	case g.Affine != nil:
		a := *g.Affine
		a.Width, a.Height = width, height
		var crs domain.CRSPair
		if g.CRS != nil {
			crs = *g.CRS
		}
		return t.ProjectGrid(a, crs)
	}
	return nil, ErrNoGeoref
}

// ResolveBounds returns the target-CRS bounds of a frame's georeferencing.
// Explicit bounds are returned as is. An affine grid is reduced to the
// envelope of its reprojected outline, taken at the outer pixel edges. An
// affine without a CRS pair is assumed to already be in the target CRS.
func (t *Transformer) ResolveBounds(g domain.Georef) (domain.Bounds, error) {
	switch {
	case g.Bounds != nil:
		return *g.Bounds, nil
	case g.Affine == nil:
		return domain.Bounds{}, ErrNoGeoref
	}

	a := *g.Affine
	var crs domain.CRSPair
	if g.CRS != nil {
		crs = *g.CRS
	}
	fn, err := t.forward(crs.Source, crs.Target)
	if err != nil {
		return domain.Bounds{}, err
	}

	half := a.PixelSize / 2
	west := a.OriginEasting - half
	south := a.OriginNorthing - half
	east := a.OriginEasting + float64(a.Width-1)*a.PixelSize + half
	north := a.OriginNorthing + float64(a.Height-1)*a.PixelSize + half

	b := domain.Bounds{West: math.Inf(1), South: math.Inf(1), East: math.Inf(-1), North: math.Inf(-1)}
	extend := func(x, y float64) error {
		p, err := apply(fn, Point{X: x, Y: y}, crs.Source, crs.Target)
		if err != nil {
			return err
		}
		b.West = math.Min(b.West, p.X)
		b.East = math.Max(b.East, p.X)
		b.South = math.Min(b.South, p.Y)
		b.North = math.Max(b.North, p.Y)
		return nil
	}

	for i := 0; i <= edgeSamples; i++ {
		f := float64(i) / edgeSamples
		x := west + f*(east-west)
		y := south + f*(north-south)
		for _, pt := range [][2]float64{{x, south}, {x, north}, {west, y}, {east, y}} {
			if err := extend(pt[0], pt[1]); err != nil {
				return domain.Bounds{}, err
			}
		}
	}
	return b, nil
}
