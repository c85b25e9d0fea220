package composite

import (
	"bytes"
	"image/png"
	"math"
	"testing"

	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBounds = domain.Bounds{West: 120, South: 30, East: 135, North: 45}

func TestComposite_BackgroundRule(t *testing.T) {
	frame := domain.RasterFrame{Width: 4, Height: 1, Bands: 3, Samples: []uint8{
		0, 0, 0,
		1, 1, 1,
		2, 0, 0,
		1, 1, 2,
	}}

	bm, err := Composite(frame, testBounds, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []uint8{
		0, 0, 0, 0,
		1, 1, 1, 0,
		2, 0, 0, 255,
		1, 1, 2, 255,
	}, bm.Pix)
	assert.Equal(t, testBounds, bm.Bounds)
}

func TestComposite_MaskDisabled(t *testing.T) {
	frame := domain.RasterFrame{Width: 1, Height: 1, Bands: 3, Samples: []uint8{0, 0, 0}}

	bm, err := Composite(frame, testBounds, Options{MaskBackground: false})
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 0, 0, 255}, bm.Pix)
}

func TestComposite_CustomThreshold(t *testing.T) {
	frame := domain.RasterFrame{Width: 2, Height: 1, Bands: 3, Samples: []uint8{10, 10, 10, 11, 0, 0}}

	bm, err := Composite(frame, testBounds, Options{MaskBackground: true, BackgroundThreshold: 10})
	require.NoError(t, err)
	assert.Equal(t, uint8(0), bm.Pix[3])
	assert.Equal(t, uint8(255), bm.Pix[7])
}

func TestComposite_RGBAPassthrough(t *testing.T) {
	frame := domain.RasterFrame{Width: 2, Height: 1, Bands: 4, Samples: []uint8{
		200, 100, 50, 128,
		0, 0, 0, 255,
	}}

	bm, err := Composite(frame, testBounds, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []uint8{200, 100, 50, 128, 0, 0, 0, 0}, bm.Pix)
}

func TestComposite_SizeInvariant(t *testing.T) {
	for _, dims := range [][2]int{{1, 1}, {3, 7}, {16, 9}, {900, 1}} {
		w, h := dims[0], dims[1]
		frame := domain.RasterFrame{Width: w, Height: h, Bands: 3, Samples: make([]uint8, w*h*3)}
		bm, err := Composite(frame, testBounds, DefaultOptions())
		require.NoError(t, err)
		assert.Len(t, bm.Pix, w*h*4)
	}
}

func TestComposite_SizeMismatch(t *testing.T) {
	cases := map[string]domain.RasterFrame{
		"short buffer":  {Width: 2, Height: 2, Bands: 3, Samples: make([]uint8, 11)},
		"long buffer":   {Width: 2, Height: 2, Bands: 3, Samples: make([]uint8, 13)},
		"two bands":     {Width: 2, Height: 2, Bands: 2, Samples: make([]uint8, 8)},
		"zero width":    {Width: 0, Height: 2, Bands: 3},
		"rgba too long": {Width: 1, Height: 1, Bands: 4, Samples: make([]uint8, 5)},
		"size overflow": {Width: 1 << 31, Height: 1 << 31, Bands: 4},
	}
	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			bm, err := Composite(frame, testBounds, DefaultOptions())
			var ce *domain.CompositeError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, domain.SizeMismatch, ce.Kind)
			assert.Nil(t, bm.Pix)
		})
	}
}

func TestJet(t *testing.T) {
	r, g, b := Jet(0)
	assert.Equal(t, [3]uint8{0, 0, 127}, [3]uint8{r, g, b})

	r, g, b = Jet(1)
	assert.Equal(t, [3]uint8{127, 0, 0}, [3]uint8{r, g, b})

	r, g, b = Jet(0.5)
	assert.Equal(t, uint8(255), g)
	assert.Greater(t, r, uint8(0))
	assert.Greater(t, b, uint8(0))

	// Clamped.
	r2, g2, b2 := Jet(7)
	assert.Equal(t, [3]uint8{127, 0, 0}, [3]uint8{r2, g2, b2})
}

func TestRange_Fallbacks(t *testing.T) {
	nan := math.NaN()

	lo, hi := Range([]float64{nan, nan})
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 1.0, hi)

	lo, hi = Range([]float64{5, 5, nan})
	assert.Equal(t, 5.0, lo)
	assert.Equal(t, 6.0, hi)

	lo, hi = Range([]float64{3, math.Inf(1), -2})
	assert.Equal(t, -2.0, lo)
	assert.Equal(t, 3.0, hi)
}

func TestColorize_NaNTransparent(t *testing.T) {
	out := Colorize([]float64{0, math.NaN(), 10})
	require.Len(t, out, 12)

	assert.Equal(t, []uint8{0, 0, 127, 255}, out[0:4])
	assert.Equal(t, []uint8{0, 0, 0, 0}, out[4:8])
	assert.Equal(t, []uint8{127, 0, 0, 255}, out[8:12])
}

func TestEncodePNG(t *testing.T) {
	frame := domain.RasterFrame{Width: 2, Height: 2, Bands: 3, Samples: []uint8{
		0, 0, 0, 255, 0, 0,
		0, 255, 0, 0, 0, 255,
	}}
	bm, err := Composite(frame, testBounds, DefaultOptions())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, bm))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())

	_, _, _, a := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0), a)
	r, _, _, a := img.At(1, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), a)
}
