// Package heatmap turns categorical samples into weighted points and renders
// them as a density field.
package heatmap

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// WeightFunc maps a category code to a weight in [0,1].
type WeightFunc func(category int) float64

// WeightTable is a categorical weight lookup. Codes not in the table weigh 0.
type WeightTable map[int]float64

// DefaultWeights treats high-confidence cloud as full weight and
// low-confidence cloud as half.
var DefaultWeights = WeightTable{0: 1.0, 1: 0.5}

// Weight implements WeightFunc.
func (t WeightTable) Weight(category int) float64 {
	return t[category]
}

// String formats the table in ParseWeights syntax with codes in ascending
// order.
func (t WeightTable) String() string {
	codes := make([]int, 0, len(t))
	for c := range t {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = strconv.Itoa(c) + ":" + strconv.FormatFloat(t[c], 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// ParseWeights parses "code:weight" pairs separated by commas, e.g.
// "0:1.0,1:0.5". Weights must lie in [0,1].
func ParseWeights(s string) (WeightTable, error) {
	t := WeightTable{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, weight, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("weight %q: expected code:weight", part)
		}
		c, err := strconv.Atoi(strings.TrimSpace(code))
		if err != nil {
			return nil, fmt.Errorf("weight %q: invalid code: %w", part, err)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(weight), 64)
		if err != nil {
			return nil, fmt.Errorf("weight %q: invalid weight: %w", part, err)
		}
		if w < 0 || w > 1 {
			return nil, fmt.Errorf("weight %q: must be between 0 and 1", part)
		}
		if _, dup := t[c]; dup {
			return nil, fmt.Errorf("weight %q: duplicate code %d", part, c)
		}
		t[c] = w
	}
	if len(t) == 0 {
		return nil, fmt.Errorf("no weights in %q", s)
	}
	return t, nil
}
