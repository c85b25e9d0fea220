package composite

import (
	"math"
)

// stop is one breakpoint of a piecewise-linear color channel.
type stop struct {
	x, y float64
}

// Jet channel breakpoints, matching the classic MATLAB/matplotlib "jet" map.
var (
	jetRed   = []stop{{0, 0}, {0.35, 0}, {0.66, 1}, {0.89, 1}, {1, 0.5}}
	jetGreen = []stop{{0, 0}, {0.125, 0}, {0.375, 1}, {0.64, 1}, {0.91, 0}, {1, 0}}
	jetBlue  = []stop{{0, 0.5}, {0.11, 1}, {0.34, 1}, {0.65, 0}, {1, 0}}
)

func channel(stops []stop, x float64) float64 {
	if x <= stops[0].x {
		return stops[0].y
	}
	for i := 1; i < len(stops); i++ {
		if x <= stops[i].x {
			lo, hi := stops[i-1], stops[i]
			t := (x - lo.x) / (hi.x - lo.x)
			return lo.y + t*(hi.y-lo.y)
		}
	}
	return stops[len(stops)-1].y
}

// Jet returns the 8-bit jet color for a normalized value in [0,1]. Values
// outside the range are clamped.
func Jet(x float64) (r, g, b uint8) {
	x = math.Max(0, math.Min(1, x))
	return uint8(channel(jetRed, x) * 255), uint8(channel(jetGreen, x) * 255), uint8(channel(jetBlue, x) * 255)
}

// Range returns the finite min and max of values, ignoring NaN and Inf. An
// empty or all-NaN field yields (0, 1); a flat field yields (v, v+1).
func Range(values []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 0) {
		lo = 0
	}
	if math.IsInf(hi, 0) {
		hi = 1
	}
	if lo == hi {
		hi = lo + 1
	}
	return lo, hi
}

// Colorize maps a scalar field onto the jet colormap and returns interleaved
// RGBA samples. Values are normalized by the field's own finite range. NaN
// samples become fully transparent black.
func Colorize(values []float64) []uint8 {
	lo, hi := Range(values)
	out := make([]uint8, len(values)*4)
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		r, g, b := Jet((v - lo) / (hi - lo))
		out[i*4], out[i*4+1], out[i*4+2], out[i*4+3] = r, g, b, 255
	}
	return out
}
