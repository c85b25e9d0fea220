// Package raster decodes and encodes the GeoTIFF subset used for weather
// frames: classic (non-Big) TIFF, 8-bit chunky strips with 1, 3, or 4 samples
// per pixel, and the GeoTIFF model tags needed to georeference them.
package raster

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Tag is a TIFF field identifier.
type Tag uint16

const (
	tagImageWidth                Tag = 256
	tagImageLength               Tag = 257
	tagBitsPerSample             Tag = 258
	tagCompression               Tag = 259
	tagPhotometricInterpretation Tag = 262
	tagStripOffsets              Tag = 273
	tagSamplesPerPixel           Tag = 277
	tagRowsPerStrip              Tag = 278
	tagStripByteCounts           Tag = 279
	tagPlanarConfiguration       Tag = 284
	tagPredictor                 Tag = 317
	tagTileWidth                 Tag = 322
	tagExtraSamples              Tag = 338
	tagSampleFormat              Tag = 339

	tagModelPixelScale Tag = 33550
	tagModelTiepoint   Tag = 33922
	tagGeoKeyDirectory Tag = 34735
	tagGeoDoubleParams Tag = 34736
	tagGeoASCIIParams  Tag = 34737
)

// GeoKey identifiers stored in the GeoKeyDirectory.
const (
	keyModelType        = 1024
	keyRasterType       = 1025
	keyGeographicType   = 2048
	keyProjectedCSType  = 3072
	keyPCSCitation      = 3073
	modelTypeProjected  = 1
	modelTypeGeographic = 2
	rasterPixelIsArea   = 1
	userDefined         = 32767
	epsgWGS84           = 4326
)

const (
	compressionNone     = 1
	compressionLZW      = 5
	compressionDeflate  = 8
	compressionDeflate2 = 32946

	predictorNone       = 1
	predictorHorizontal = 2

	photometricMinIsBlack = 1
	photometricRGB        = 2
)

const (
	littleEndian   = 0x4949 // "II"
	bigEndian      = 0x4D4D // "MM"
	tiffIdentifier = 42
	bigTIFFMagic   = 43
)

// fieldType is the TIFF data type of a field.
type fieldType uint16

const (
	typeByte      fieldType = 1
	typeASCII     fieldType = 2
	typeShort     fieldType = 3
	typeLong      fieldType = 4
	typeRational  fieldType = 5
	typeSByte     fieldType = 6
	typeUndefined fieldType = 7
	typeSShort    fieldType = 8
	typeSLong     fieldType = 9
	typeSRational fieldType = 10
	typeFloat     fieldType = 11
	typeDouble    fieldType = 12
)

// size returns the width of one value in bytes, or 0 for unknown types.
func (f fieldType) size() int {
	switch f {
	case typeByte, typeASCII, typeSByte, typeUndefined:
		return 1
	case typeShort, typeSShort:
		return 2
	case typeLong, typeSLong, typeFloat:
		return 4
	case typeRational, typeSRational, typeDouble:
		return 8
	default:
		return 0
	}
}

// field is one parsed IFD entry with its raw value bytes.
type field struct {
	typ   fieldType
	count int
	raw   []byte
}

// uints returns the field as unsigned integers. Only integral types are
// accepted.
func (f field) uints(bo binary.ByteOrder) ([]uint64, error) {
	out := make([]uint64, f.count)
	for i := range out {
		switch f.typ {
		case typeByte, typeUndefined:
			out[i] = uint64(f.raw[i])
		case typeShort:
			out[i] = uint64(bo.Uint16(f.raw[i*2:]))
		case typeLong:
			out[i] = uint64(bo.Uint32(f.raw[i*4:]))
		default:
			return nil, fmt.Errorf("field type %d is not an unsigned integer", f.typ)
		}
	}
	return out, nil
}

// floats returns the field as float64 values.
func (f field) floats(bo binary.ByteOrder) ([]float64, error) {
	out := make([]float64, f.count)
	for i := range out {
		switch f.typ {
		case typeDouble:
			out[i] = math.Float64frombits(bo.Uint64(f.raw[i*8:]))
		case typeFloat:
			out[i] = float64(math.Float32frombits(bo.Uint32(f.raw[i*4:])))
		case typeShort:
			out[i] = float64(bo.Uint16(f.raw[i*2:]))
		case typeLong:
			out[i] = float64(bo.Uint32(f.raw[i*4:]))
		default:
			return nil, fmt.Errorf("field type %d is not numeric", f.typ)
		}
	}
	return out, nil
}

func (f field) ascii() string {
	s := string(f.raw)
	for len(s) > 0 && s[len(s)-1] == 0 {
		s = s[:len(s)-1]
	}
	return s
}
