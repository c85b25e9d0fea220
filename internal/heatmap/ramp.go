package heatmap

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Ramp is an ordered list of RGBA stops spread evenly over [0,1]. Stop 0 is
// the lowest density.
type Ramp [][4]uint8

// DefaultRamp runs from pale to deep blue.
var DefaultRamp = Ramp{
	{204, 229, 255, 255},
	{153, 204, 255, 255},
	{102, 178, 255, 255},
	{51, 153, 255, 255},
	{0, 128, 255, 255},
	{0, 102, 204, 255},
}

// At returns the color for normalized density t, linearly interpolated
// between the two nearest stops.
func (r Ramp) At(t float64) [4]uint8 {
	switch len(r) {
	case 0:
		return [4]uint8{}
	case 1:
		return r[0]
	}
	if math.IsNaN(t) || t <= 0 {
		return r[0]
	}
	if t >= 1 {
		return r[len(r)-1]
	}

	pos := t * float64(len(r)-1)
	i := int(pos)
	frac := pos - float64(i)
	lo, hi := r[i], r[i+1]

	var c [4]uint8
	for k := range c {
		c[k] = uint8(math.Round(float64(lo[k]) + frac*(float64(hi[k])-float64(lo[k]))))
	}
	return c
}

// ParseRamp parses stops written as "r,g,b,a" groups separated by ";", e.g.
// "204,229,255,255;0,102,204,255". Alpha may be omitted and defaults to 255.
func ParseRamp(s string) (Ramp, error) {
	var r Ramp
	for _, group := range strings.Split(s, ";") {
		group = strings.TrimSpace(group)
		if group == "" {
			continue
		}
		parts := strings.Split(group, ",")
		if len(parts) != 3 && len(parts) != 4 {
			return nil, fmt.Errorf("ramp stop %q: expected 3 or 4 components", group)
		}
		stop := [4]uint8{0, 0, 0, 255}
		for i, p := range parts {
			v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
			if err != nil {
				return nil, fmt.Errorf("ramp stop %q: %w", group, err)
			}
			stop[i] = uint8(v)
		}
		r = append(r, stop)
	}
	if len(r) < 2 {
		return nil, fmt.Errorf("ramp %q: need at least 2 stops", s)
	}
	return r, nil
}
