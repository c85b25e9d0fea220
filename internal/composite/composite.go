// Package composite turns decoded raster samples into display-ready RGBA
// bitmaps.
package composite

import (
	"math"

	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
)

// DefaultBackgroundThreshold is the per-band value at or below which a pixel
// counts as background.
const DefaultBackgroundThreshold uint8 = 1

// Options configures the background transparency rule.
type Options struct {
	// MaskBackground makes near-black pixels fully transparent. When false the
	// bitmap is opaque (or keeps the frame's own alpha band).
	MaskBackground bool
	// BackgroundThreshold is the inclusive upper bound for every color band of
	// a background pixel.
	BackgroundThreshold uint8
}

// DefaultOptions masks pixels whose bands are all <= 1.
func DefaultOptions() Options {
	return Options{MaskBackground: true, BackgroundThreshold: DefaultBackgroundThreshold}
}

// Composite converts a band-interleaved frame into an RGBA bitmap carrying
// bounds. 3-band frames get alpha 255, 4-band frames keep their alpha, and
// single-band frames are rendered as gray. The background rule then clears
// alpha on near-black pixels.
//
// The sample buffer must hold exactly width*height*bands values, otherwise a
// SizeMismatch CompositeError is returned and no bitmap is produced.
func Composite(frame domain.RasterFrame, bounds domain.Bounds, opts Options) (domain.CompositedBitmap, error) {
	bands := frame.Bands
	switch bands {
	case 1, 3, 4:
	default:
		// Unknown layouts are measured against the RGB size they should have had.
		bands = 3
	}
	if frame.Width <= 0 || frame.Height <= 0 || frame.Width > math.MaxInt/4/frame.Height {
		return domain.CompositedBitmap{}, &domain.CompositeError{
			Kind:   domain.SizeMismatch,
			Actual: len(frame.Samples),
		}
	}
	n := frame.Width * frame.Height
	if frame.Bands != bands || len(frame.Samples) != n*bands {
		return domain.CompositedBitmap{}, &domain.CompositeError{
			Kind:     domain.SizeMismatch,
			Expected: n * bands,
			Actual:   len(frame.Samples),
		}
	}

	pix := make([]uint8, n*4)
	src := frame.Samples
	for i := 0; i < n; i++ {
		var r, g, b, a uint8
		switch bands {
		case 1:
			v := src[i]
			r, g, b, a = v, v, v, 255
		case 3:
			r, g, b, a = src[i*3], src[i*3+1], src[i*3+2], 255
		case 4:
			r, g, b, a = src[i*4], src[i*4+1], src[i*4+2], src[i*4+3]
		}
		if opts.MaskBackground && isBackground(r, g, b, opts.BackgroundThreshold) {
			a = 0
		}
		o := pix[i*4 : i*4+4 : i*4+4]
		o[0], o[1], o[2], o[3] = r, g, b, a
	}

	return domain.CompositedBitmap{
		Width:  frame.Width,
		Height: frame.Height,
		Pix:    pix,
		Bounds: bounds,
	}, nil
}

func isBackground(r, g, b, threshold uint8) bool {
	return r <= threshold && g <= threshold && b <= threshold
}
