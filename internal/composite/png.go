package composite

import (
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
)

// Image wraps a bitmap as a non-premultiplied image without copying.
func Image(bm domain.CompositedBitmap) *image.NRGBA {
	return &image.NRGBA{
		Pix:    bm.Pix,
		Stride: bm.Width * 4,
		Rect:   image.Rect(0, 0, bm.Width, bm.Height),
	}
}

// EncodePNG writes the bitmap as a PNG with its alpha channel intact.
func EncodePNG(w io.Writer, bm domain.CompositedBitmap) error {
	if len(bm.Pix) != bm.Width*bm.Height*4 {
		return &domain.CompositeError{Kind: domain.SizeMismatch, Expected: bm.Width * bm.Height * 4, Actual: len(bm.Pix)}
	}
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(w, Image(bm)); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}
