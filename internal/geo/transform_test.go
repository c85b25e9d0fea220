package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shiftProvider translates by a fixed offset so results are easy to predict.
type shiftProvider struct {
	dx, dy float64
	calls  []Point
	fail   error
}

func (s *shiftProvider) Forward(source, target string) (ForwardFunc, error) {
	if source == "EPSG:0" {
		return nil, &domain.TransformError{Kind: domain.UnknownCRS, Source: source, Target: target}
	}
	return func(x, y float64) (float64, float64, error) {
		s.calls = append(s.calls, Point{X: x, Y: y})
		if s.fail != nil {
			return 0, 0, s.fail
		}
		return x + s.dx, y + s.dy, nil
	}, nil
}

var testAffine = domain.Affine{OriginEasting: 1000, OriginNorthing: 5000, PixelSize: 10, Width: 3, Height: 4}

func TestGridToProjected(t *testing.T) {
	e, n := GridToProjected(0, 0, testAffine)
	assert.Equal(t, 1000.0, e)
	assert.Equal(t, 5030.0, n)

	e, n = GridToProjected(3, 2, testAffine)
	assert.Equal(t, 1020.0, e)
	assert.Equal(t, 5000.0, n)
}

func TestGridToProjected_Monotonic(t *testing.T) {
	for row := 1; row < testAffine.Height; row++ {
		_, prev := GridToProjected(row-1, 0, testAffine)
		_, cur := GridToProjected(row, 0, testAffine)
		assert.Less(t, cur, prev, "northing must decrease with row")
	}
	for col := 1; col < testAffine.Width; col++ {
		prev, _ := GridToProjected(0, col-1, testAffine)
		cur, _ := GridToProjected(0, col, testAffine)
		assert.Greater(t, cur, prev, "easting must increase with col")
	}
}

func TestProjectGrid_RowMajorTopDown(t *testing.T) {
	p := &shiftProvider{dx: 1, dy: 2}
	tr := NewTransformer(p)

	pts, err := tr.ProjectGrid(testAffine, domain.CRSPair{Source: "A", Target: "B"})
	require.NoError(t, err)
	require.Len(t, pts, 12)

	for row := 0; row < testAffine.Height; row++ {
		for col := 0; col < testAffine.Width; col++ {
			e, n := GridToProjected(row, col, testAffine)
			assert.Equal(t, Point{X: e + 1, Y: n + 2}, pts[row*testAffine.Width+col])
		}
	}
	// Provider calls happen in the same order.
	assert.Equal(t, Point{X: 1000, Y: 5030}, p.calls[0])
	assert.Equal(t, Point{X: 1020, Y: 5000}, p.calls[11])
}

func TestProjectGrid_NonInvertible(t *testing.T) {
	tr := NewTransformer(&shiftProvider{fail: errors.New("outside domain")})

	_, err := tr.ProjectGrid(testAffine, domain.CRSPair{Source: "A", Target: "B"})
	var te *domain.TransformError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, domain.NonInvertible, te.Kind)
}

func TestToTarget_UnknownCRS(t *testing.T) {
	tr := NewTransformer(&shiftProvider{})

	_, err := tr.ToTarget(Point{}, "EPSG:0", WGS84)
	var te *domain.TransformError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, domain.UnknownCRS, te.Kind)
}

func TestToTarget_SameCRSIsIdentity(t *testing.T) {
	p := &shiftProvider{dx: 100}
	tr := NewTransformer(p)

	got, err := tr.ToTarget(Point{X: 1, Y: 2}, WGS84, WGS84)
	require.NoError(t, err)
	assert.Equal(t, Point{X: 1, Y: 2}, got)
	assert.Empty(t, p.calls)
}

func TestResolveBounds(t *testing.T) {
	tr := NewTransformer(&shiftProvider{dx: 1, dy: 1})

	t.Run("explicit bounds", func(t *testing.T) {
		want := domain.Bounds{West: 1, South: 2, East: 3, North: 4}
		got, err := tr.ResolveBounds(domain.Georef{Bounds: &want})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("affine envelope", func(t *testing.T) {
		a := testAffine
		got, err := tr.ResolveBounds(domain.Georef{Affine: &a, CRS: &domain.CRSPair{Source: "A", Target: "B"}})
		require.NoError(t, err)
		assert.InDelta(t, 996, got.West, 1e-9)
		assert.InDelta(t, 1026, got.East, 1e-9)
		assert.InDelta(t, 4996, got.South, 1e-9)
		assert.InDelta(t, 5036, got.North, 1e-9)
	})

	t.Run("affine without crs", func(t *testing.T) {
		a := testAffine
		got, err := tr.ResolveBounds(domain.Georef{Affine: &a})
		require.NoError(t, err)
		assert.InDelta(t, 995, got.West, 1e-9)
		assert.InDelta(t, 5035, got.North, 1e-9)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := tr.ResolveBounds(domain.Georef{})
		assert.ErrorIs(t, err, ErrNoGeoref)
	})
}

func TestProjProvider_GK2A(t *testing.T) {
	tr := NewTransformer(NewProjProvider(nil))

	// The LCC false origin maps back to the projection center.
	p, err := tr.ToTarget(Point{X: 0, Y: 0}, GK2ALCC, WGS84)
	require.NoError(t, err)
	assert.InDelta(t, 126, p.X, 1e-6)
	assert.InDelta(t, 38, p.Y, 1e-6)

	// Points east and north of the origin land east and north of it.
	p, err = tr.ToTarget(Point{X: 100000, Y: 100000}, GK2ALCC, WGS84)
	require.NoError(t, err)
	assert.Greater(t, p.X, 126.0)
	assert.Greater(t, p.Y, 38.0)
}

func TestProjProvider_RawProjString(t *testing.T) {
	tr := NewTransformer(NewProjProvider(nil))

	p, err := tr.ToTarget(Point{X: 0, Y: 0}, Registry[GK2ALCC], "epsg:4326")
	require.NoError(t, err)
	assert.InDelta(t, 126, p.X, 1e-6)
}

func TestProjProvider_WebMercator(t *testing.T) {
	tr := NewTransformer(NewProjProvider(nil))

	p, err := tr.ToTarget(Point{X: 180, Y: 0}, WGS84, WebMercator)
	require.NoError(t, err)
	assert.InDelta(t, 20037508.34, p.X, 0.01)
	assert.InDelta(t, 0, p.Y, 1e-6)
}

func TestProjProvider_Unknown(t *testing.T) {
	prov := NewProjProvider(map[string]string{"custom:grid": Registry[GK2ALCC]})

	_, err := prov.Forward("EPSG:9999", WGS84)
	var te *domain.TransformError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, domain.UnknownCRS, te.Kind)

	fn, err := prov.Forward("CUSTOM:GRID", WGS84)
	require.NoError(t, err)
	x, y, err := fn(0, 0)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(x) || math.IsNaN(y))
}

func TestPixelCenters(t *testing.T) {
	tr := NewTransformer(&shiftProvider{dx: 1, dy: 2})

	t.Run("bounds", func(t *testing.T) {
		b := domain.Bounds{West: 0, South: 0, East: 4, North: 2}
		pts, err := tr.PixelCenters(domain.Georef{Bounds: &b}, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, []Point{{X: 1, Y: 1.5}, {X: 3, Y: 1.5}, {X: 1, Y: 0.5}, {X: 3, Y: 0.5}}, pts)
	})

	t.Run("affine", func(t *testing.T) {
		a := testAffine
		pts, err := tr.PixelCenters(domain.Georef{Affine: &a, CRS: &domain.CRSPair{Source: "A", Target: "B"}}, 3, 4)
		require.NoError(t, err)
		require.Len(t, pts, 12)
		assert.Equal(t, Point{X: 1001, Y: 5032}, pts[0])
	})

	t.Run("no georef", func(t *testing.T) {
		_, err := tr.PixelCenters(domain.Georef{}, 2, 2)
		require.ErrorIs(t, err, ErrNoGeoref)
	})

	t.Run("empty", func(t *testing.T) {
		b := domain.Bounds{West: 0, South: 0, East: 1, North: 1}
		_, err := tr.PixelCenters(domain.Georef{Bounds: &b}, 0, 2)
		require.Error(t, err)
	})
}
