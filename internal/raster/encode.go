package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
)

// EncodeOptions controls how a frame is written.
type EncodeOptions struct {
	// Deflate compresses the single strip with zlib.
	Deflate bool
}

type entry struct {
	tag   Tag
	typ   fieldType
	count int
	data  []byte
}

// Encode writes frame as a little-endian, single-strip GeoTIFF that Decode
// reads back losslessly. Bounds are written as a geographic model, Affine
// grids as a projected model with the source CRS in the GeoKeyDirectory.
func Encode(w io.Writer, frame domain.RasterFrame, opts EncodeOptions) error {
	switch frame.Bands {
	case 1, 3, 4:
	default:
		return fmt.Errorf("encode raster: unsupported band count %d", frame.Bands)
	}
	want := frame.Width * frame.Height * frame.Bands
	if frame.Width <= 0 || frame.Height <= 0 || len(frame.Samples) != want {
		return fmt.Errorf("encode raster: %dx%dx%d frame has %d samples", frame.Width, frame.Height, frame.Bands, len(frame.Samples))
	}

	pixels := frame.Samples
	compression := uint16(compressionNone)
	if opts.Deflate {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(frame.Samples); err != nil {
			return fmt.Errorf("encode raster: deflate: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("encode raster: deflate: %w", err)
		}
		pixels = buf.Bytes()
		compression = compressionDeflate
	}

	bo := binary.LittleEndian
	photometric := uint16(photometricRGB)
	if frame.Bands == 1 {
		photometric = photometricMinIsBlack
	}
	bits := make([]uint16, frame.Bands)
	for i := range bits {
		bits[i] = 8
	}

	entries := []entry{
		longEntry(bo, tagImageWidth, uint32(frame.Width)),
		longEntry(bo, tagImageLength, uint32(frame.Height)),
		shortEntry(bo, tagBitsPerSample, bits...),
		shortEntry(bo, tagCompression, compression),
		shortEntry(bo, tagPhotometricInterpretation, photometric),
		longEntry(bo, tagStripOffsets, 8),
		shortEntry(bo, tagSamplesPerPixel, uint16(frame.Bands)),
		longEntry(bo, tagRowsPerStrip, uint32(frame.Height)),
		longEntry(bo, tagStripByteCounts, uint32(len(pixels))),
		shortEntry(bo, tagPlanarConfiguration, 1),
	}
	if frame.Bands == 4 {
		// Unassociated alpha.
		entries = append(entries, shortEntry(bo, tagExtraSamples, 2))
	}
	geo, err := geoEntries(bo, frame)
	if err != nil {
		return err
	}
	entries = append(entries, geo...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	var out bytes.Buffer
	out.Write([]byte{'I', 'I'})
	_ = binary.Write(&out, bo, uint16(tiffIdentifier))
	_ = binary.Write(&out, bo, uint32(0)) // IFD offset, patched below
	out.Write(pixels)
	pad(&out)

	offsets := make([]uint32, len(entries))
	for i, e := range entries {
		if len(e.data) <= 4 {
			continue
		}
		offsets[i] = uint32(out.Len())
		out.Write(e.data)
		pad(&out)
	}

	ifdOffset := uint32(out.Len())
	_ = binary.Write(&out, bo, uint16(len(entries)))
	for i, e := range entries {
		_ = binary.Write(&out, bo, uint16(e.tag))
		_ = binary.Write(&out, bo, uint16(e.typ))
		_ = binary.Write(&out, bo, uint32(e.count))
		if len(e.data) <= 4 {
			var inline [4]byte
			copy(inline[:], e.data)
			out.Write(inline[:])
		} else {
			_ = binary.Write(&out, bo, offsets[i])
		}
	}
	_ = binary.Write(&out, bo, uint32(0)) // no next IFD

	b := out.Bytes()
	bo.PutUint32(b[4:8], ifdOffset)
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("encode raster: write: %w", err)
	}
	return nil
}

func pad(buf *bytes.Buffer) {
	if buf.Len()%2 != 0 {
		buf.WriteByte(0)
	}
}

func shortEntry(bo binary.ByteOrder, tag Tag, vals ...uint16) entry {
	data := make([]byte, 2*len(vals))
	for i, v := range vals {
		bo.PutUint16(data[i*2:], v)
	}
	return entry{tag: tag, typ: typeShort, count: len(vals), data: data}
}

func longEntry(bo binary.ByteOrder, tag Tag, vals ...uint32) entry {
	data := make([]byte, 4*len(vals))
	for i, v := range vals {
		bo.PutUint32(data[i*4:], v)
	}
	return entry{tag: tag, typ: typeLong, count: len(vals), data: data}
}

func doubleEntry(bo binary.ByteOrder, tag Tag, vals ...float64) entry {
	data := make([]byte, 8*len(vals))
	for i, v := range vals {
		bo.PutUint64(data[i*8:], math.Float64bits(v))
	}
	return entry{tag: tag, typ: typeDouble, count: len(vals), data: data}
}

func asciiEntry(tag Tag, s string) entry {
	data := append([]byte(s), 0)
	return entry{tag: tag, typ: typeASCII, count: len(data), data: data}
}

func geoEntries(bo binary.ByteOrder, frame domain.RasterFrame) ([]entry, error) {
	g := frame.Georef
	switch {
	case g.Bounds != nil:
		b := g.Bounds
		sx := (b.East - b.West) / float64(frame.Width)
		sy := (b.North - b.South) / float64(frame.Height)
		keys := []uint16{
			1, 1, 0, 3,
			keyModelType, 0, 1, modelTypeGeographic,
			keyRasterType, 0, 1, rasterPixelIsArea,
			keyGeographicType, 0, 1, epsgWGS84,
		}
		return []entry{
			doubleEntry(bo, tagModelPixelScale, sx, sy, 0),
			doubleEntry(bo, tagModelTiepoint, 0, 0, 0, b.West, b.North, 0),
			shortEntry(bo, tagGeoKeyDirectory, keys...),
		}, nil

	case g.Affine != nil:
		a := g.Affine
		ps := a.PixelSize
		ulx := a.OriginEasting - ps/2
		uly := a.OriginNorthing + ps/2 + float64(frame.Height-1)*ps

		entries := []entry{
			doubleEntry(bo, tagModelPixelScale, ps, ps, 0),
			doubleEntry(bo, tagModelTiepoint, 0, 0, 0, ulx, uly, 0),
		}

		src := ""
		if g.CRS != nil {
			src = g.CRS.Source
		}
		keys := []uint16{
			1, 1, 0, 2,
			keyModelType, 0, 1, modelTypeProjected,
			keyRasterType, 0, 1, rasterPixelIsArea,
		}
		switch {
		case strings.HasPrefix(src, "EPSG:"):
			code, err := strconv.Atoi(strings.TrimPrefix(src, "EPSG:"))
			if err != nil || code <= 0 || code >= userDefined {
				return nil, fmt.Errorf("encode raster: invalid EPSG code %q", src)
			}
			keys = append(keys, keyProjectedCSType, 0, 1, uint16(code))
			keys[3] = 3
		case strings.HasPrefix(src, "+proj="):
			citation := src + "|"
			keys = append(keys,
				keyProjectedCSType, 0, 1, userDefined,
				keyPCSCitation, uint16(tagGeoASCIIParams), uint16(len(citation)), 0,
			)
			keys[3] = 4
			entries = append(entries, asciiEntry(tagGeoASCIIParams, citation))
		case src != "":
			return nil, fmt.Errorf("encode raster: cannot embed CRS %q", src)
		}
		entries = append(entries, shortEntry(bo, tagGeoKeyDirectory, keys...))
		return entries, nil
	}
	return nil, nil
}
