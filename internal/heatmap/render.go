package heatmap

import (
	"errors"
	"math"

	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Style configures the density layer.
type Style struct {
	// Radius is the kernel radius in output pixels.
	Radius float64 `json:"radius"`
	// Intensity scales every point's contribution.
	Intensity float64 `json:"intensity"`
	// Threshold is the minimum normalized density that is drawn.
	Threshold float64 `json:"threshold"`
	Opacity   float64 `json:"opacity"`
	Ramp      Ramp    `json:"ramp"`
}

// DefaultStyle is the cloud-mask density style.
func DefaultStyle() Style {
	return Style{Radius: 40, Intensity: 1.2, Threshold: 0.2, Opacity: 0.95, Ramp: DefaultRamp}
}

// Canvas is the output raster: geographic bounds sampled at Width x Height
// in web mercator.
type Canvas struct {
	Bounds domain.Bounds
	Width  int
	Height int
}

// Render rasterizes points into an RGBA density image over the canvas.
//
// Each point adds a quartic kernel of the configured radius scaled by its
// weight and the intensity. The accumulated field is normalized by its peak,
// values below Threshold are left transparent, and the rest are colored from
// the ramp with alpha scaled by Opacity. Accumulation follows input order, so
// identical inputs produce identical bytes.
func Render(points []domain.WeightedPoint, style Style, canvas Canvas) (domain.CompositedBitmap, error) {
	if canvas.Width <= 0 || canvas.Height <= 0 {
		return domain.CompositedBitmap{}, errors.New("render heatmap: empty canvas")
	}
	if !canvas.Bounds.Valid() {
		return domain.CompositedBitmap{}, errors.New("render heatmap: invalid bounds")
	}
	if style.Radius <= 0 {
		return domain.CompositedBitmap{}, errors.New("render heatmap: radius must be positive")
	}

	lo := project.WGS84.ToMercator(orb.Point{canvas.Bounds.West, canvas.Bounds.South})
	hi := project.WGS84.ToMercator(orb.Point{canvas.Bounds.East, canvas.Bounds.North})
	sx := float64(canvas.Width) / (hi[0] - lo[0])
	sy := float64(canvas.Height) / (hi[1] - lo[1])

	w, h := canvas.Width, canvas.Height
	density := make([]float64, w*h)
	r := style.Radius
	r2 := r * r

	for _, p := range points {
		if p.Weight <= 0 {
			continue
		}
		m := project.WGS84.ToMercator(orb.Point{p.Lon, p.Lat})
		px := (m[0] - lo[0]) * sx
		py := (hi[1] - m[1]) * sy
		amount := p.Weight * style.Intensity

		x0 := int(math.Max(0, math.Floor(px-r)))
		x1 := int(math.Min(float64(w-1), math.Ceil(px+r)))
		y0 := int(math.Max(0, math.Floor(py-r)))
		y1 := int(math.Min(float64(h-1), math.Ceil(py+r)))
		for y := y0; y <= y1; y++ {
			dy := float64(y) + 0.5 - py
			for x := x0; x <= x1; x++ {
				dx := float64(x) + 0.5 - px
				d2 := dx*dx + dy*dy
				if d2 >= r2 {
					continue
				}
				k := 1 - d2/r2
				density[y*w+x] += amount * k * k
			}
		}
	}

	peak := 0.0
	for _, d := range density {
		peak = math.Max(peak, d)
	}

	pix := make([]uint8, w*h*4)
	if peak > 0 {
		opacity := math.Max(0, math.Min(1, style.Opacity))
		for i, d := range density {
			t := d / peak
			if d <= 0 || t < style.Threshold {
				continue
			}
			c := style.Ramp.At(t)
			pix[i*4] = c[0]
			pix[i*4+1] = c[1]
			pix[i*4+2] = c[2]
			pix[i*4+3] = uint8(math.Round(float64(c[3]) * opacity))
		}
	}

	return domain.CompositedBitmap{Width: w, Height: h, Pix: pix, Bounds: canvas.Bounds}, nil
}
