package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
	"golang.org/x/image/tiff/lzw"
)

// maxSamples caps the decoded buffer so a corrupt header cannot request an
// unbounded allocation.
const maxSamples = 1 << 28

// TargetCRS is the display CRS assumed for embedded georeferencing.
const TargetCRS = "EPSG:4326"

// Decode parses a GeoTIFF byte stream into a RasterFrame. The returned frame
// owns its sample buffer; data is not retained.
//
// Embedded georeferencing is returned as Bounds when the model CRS is
// geographic, or as an Affine plus source CRS when it is projected. A stream
// with no model tags yields an empty Georef and the caller must supply one.
func Decode(data []byte) (domain.RasterFrame, error) {
	bo, ifdOffset, err := readHeader(data)
	if err != nil {
		return domain.RasterFrame{}, err
	}

	fields, err := readIFD(data, bo, ifdOffset)
	if err != nil {
		return domain.RasterFrame{}, err
	}

	layout, err := parseLayout(fields, bo)
	if err != nil {
		return domain.RasterFrame{}, err
	}

	samples, err := readStrips(data, layout)
	if err != nil {
		return domain.RasterFrame{}, err
	}

	georef, err := parseGeoref(fields, bo, layout.width, layout.height)
	if err != nil {
		return domain.RasterFrame{}, err
	}

	return domain.RasterFrame{
		Width:   layout.width,
		Height:  layout.height,
		Bands:   layout.samplesPerPixel,
		Samples: samples,
		Georef:  georef,
	}, nil
}

func malformed(format string, args ...any) *domain.DecodeError {
	return &domain.DecodeError{Kind: domain.MalformedHeader, Msg: fmt.Sprintf(format, args...)}
}

func truncated(format string, args ...any) *domain.DecodeError {
	return &domain.DecodeError{Kind: domain.TruncatedData, Msg: fmt.Sprintf(format, args...)}
}

func unsupported(format string, args ...any) *domain.DecodeError {
	return &domain.DecodeError{Kind: domain.UnsupportedBandLayout, Msg: fmt.Sprintf(format, args...)}
}

// readHeader validates the 8-byte TIFF header and returns the byte order and
// the offset of the first IFD.
func readHeader(data []byte) (binary.ByteOrder, uint32, error) {
	if len(data) < 8 {
		return nil, 0, malformed("header needs 8 bytes, got %d", len(data))
	}

	var bo binary.ByteOrder
	switch binary.BigEndian.Uint16(data[0:2]) {
	case littleEndian:
		bo = binary.LittleEndian
	case bigEndian:
		bo = binary.BigEndian
	default:
		return nil, 0, malformed("invalid byte order mark %q", data[0:2])
	}

	switch id := bo.Uint16(data[2:4]); id {
	case tiffIdentifier:
	case bigTIFFMagic:
		return nil, 0, malformed("BigTIFF is not supported")
	default:
		return nil, 0, malformed("invalid tiff identifier %d", id)
	}

	offset := bo.Uint32(data[4:8])
	if offset < 8 {
		return nil, 0, malformed("invalid IFD offset %d", offset)
	}
	return bo, offset, nil
}

// readIFD parses the first image file directory. Overviews and subsequent
// IFDs are ignored.
func readIFD(data []byte, bo binary.ByteOrder, offset uint32) (map[Tag]field, error) {
	start := int(offset)
	if start+2 > len(data) {
		return nil, truncated("IFD offset %d beyond end of data (%d bytes)", offset, len(data))
	}
	n := int(bo.Uint16(data[start:]))
	if n == 0 {
		return nil, malformed("empty IFD")
	}
	end := start + 2 + n*12
	if end > len(data) {
		return nil, truncated("IFD with %d entries exceeds data", n)
	}

	fields := make(map[Tag]field, n)
	for i := 0; i < n; i++ {
		e := data[start+2+i*12 : start+2+(i+1)*12]
		tag := Tag(bo.Uint16(e[0:2]))
		typ := fieldType(bo.Uint16(e[2:4]))
		count := int(bo.Uint32(e[4:8]))

		size := typ.size()
		if size == 0 {
			// Unknown field types are skipped per the TIFF spec.
			continue
		}
		total := size * count
		if count < 0 || total < 0 {
			return nil, malformed("tag %d has invalid count %d", tag, count)
		}

		var raw []byte
		if total <= 4 {
			raw = e[8 : 8+total]
		} else {
			valueOffset := int(bo.Uint32(e[8:12]))
			if valueOffset < 0 || valueOffset+total > len(data) {
				return nil, truncated("tag %d value at %d+%d exceeds data", tag, valueOffset, total)
			}
			raw = data[valueOffset : valueOffset+total]
		}
		fields[tag] = field{typ: typ, count: count, raw: raw}
	}
	return fields, nil
}

// layout is the image structure extracted from the IFD.
type layout struct {
	width           int
	height          int
	samplesPerPixel int
	compression     int
	predictor       int
	stripOffsets    []uint64
	stripByteCounts []uint64
}

func (l layout) sampleCount() int {
	return l.width * l.height * l.samplesPerPixel
}

func firstUint(fields map[Tag]field, bo binary.ByteOrder, tag Tag, def uint64) (uint64, error) {
	f, ok := fields[tag]
	if !ok || f.count == 0 {
		return def, nil
	}
	vals, err := f.uints(bo)
	if err != nil {
		return 0, malformed("tag %d: %v", tag, err)
	}
	return vals[0], nil
}

func parseLayout(fields map[Tag]field, bo binary.ByteOrder) (layout, error) {
	var l layout

	if _, ok := fields[tagImageWidth]; !ok {
		return l, malformed("missing ImageWidth")
	}
	if _, ok := fields[tagImageLength]; !ok {
		return l, malformed("missing ImageLength")
	}
	w, err := firstUint(fields, bo, tagImageWidth, 0)
	if err != nil {
		return l, err
	}
	h, err := firstUint(fields, bo, tagImageLength, 0)
	if err != nil {
		return l, err
	}
	if w == 0 || h == 0 {
		return l, malformed("invalid dimensions %dx%d", w, h)
	}

	spp, err := firstUint(fields, bo, tagSamplesPerPixel, 1)
	if err != nil {
		return l, err
	}
	switch spp {
	case 1, 3, 4:
	default:
		return l, unsupported("%d samples per pixel", spp)
	}
	if w > maxSamples || h > maxSamples || w*h > maxSamples/spp {
		return l, malformed("image %dx%dx%d exceeds sample limit", w, h, spp)
	}

	if f, ok := fields[tagBitsPerSample]; ok {
		bits, err := f.uints(bo)
		if err != nil {
			return l, malformed("BitsPerSample: %v", err)
		}
		for _, b := range bits {
			if b != 8 {
				return l, unsupported("%d bits per sample", b)
			}
		}
	}

	planar, err := firstUint(fields, bo, tagPlanarConfiguration, 1)
	if err != nil {
		return l, err
	}
	if planar != 1 {
		return l, unsupported("planar configuration %d", planar)
	}
	if _, tiled := fields[tagTileWidth]; tiled {
		return l, unsupported("tiled layout")
	}

	format, err := firstUint(fields, bo, tagSampleFormat, 1)
	if err != nil {
		return l, err
	}
	if format != 1 {
		return l, unsupported("sample format %d", format)
	}

	compression, err := firstUint(fields, bo, tagCompression, compressionNone)
	if err != nil {
		return l, err
	}
	switch compression {
	case compressionNone, compressionLZW, compressionDeflate, compressionDeflate2:
	default:
		return l, malformed("unsupported compression %d", compression)
	}

	predictor, err := firstUint(fields, bo, tagPredictor, predictorNone)
	if err != nil {
		return l, err
	}
	if predictor != predictorNone && predictor != predictorHorizontal {
		return l, malformed("unsupported predictor %d", predictor)
	}

	offsets, ok := fields[tagStripOffsets]
	if !ok {
		return l, malformed("missing StripOffsets")
	}
	counts, ok := fields[tagStripByteCounts]
	if !ok {
		return l, malformed("missing StripByteCounts")
	}
	l.stripOffsets, err = offsets.uints(bo)
	if err != nil {
		return l, malformed("StripOffsets: %v", err)
	}
	l.stripByteCounts, err = counts.uints(bo)
	if err != nil {
		return l, malformed("StripByteCounts: %v", err)
	}
	if len(l.stripOffsets) != len(l.stripByteCounts) {
		return l, malformed("%d strip offsets but %d byte counts", len(l.stripOffsets), len(l.stripByteCounts))
	}

	l.width = int(w)
	l.height = int(h)
	l.samplesPerPixel = int(spp)
	l.compression = int(compression)
	l.predictor = int(predictor)
	return l, nil
}

// readStrips reads, decompresses, and concatenates all strips, returning
// exactly width*height*samplesPerPixel samples.
func readStrips(data []byte, l layout) ([]uint8, error) {
	want := l.sampleCount()
	out := make([]uint8, 0, want)

	for i, off := range l.stripOffsets {
		n := l.stripByteCounts[i]
		if off+n > uint64(len(data)) {
			return nil, truncated("strip %d at %d+%d exceeds data (%d bytes)", i, off, n, len(data))
		}
		chunk, err := decompress(data[off:off+n], l.compression)
		if err != nil {
			return nil, &domain.DecodeError{Kind: domain.TruncatedData, Msg: fmt.Sprintf("strip %d", i), Err: err}
		}
		out = append(out, chunk...)
		if len(out) >= want {
			break
		}
	}

	if len(out) < want {
		return nil, truncated("got %d samples, want %d", len(out), want)
	}
	out = out[:want]

	if l.predictor == predictorHorizontal {
		undoHorizontalPredictor(out, l.width, l.height, l.samplesPerPixel)
	}
	return out, nil
}

func decompress(chunk []byte, compression int) ([]byte, error) {
	switch compression {
	case compressionNone:
		return chunk, nil
	case compressionLZW:
		r := lzw.NewReader(bytes.NewReader(chunk), lzw.MSB, 8)
		defer r.Close()
		return io.ReadAll(r)
	case compressionDeflate, compressionDeflate2:
		z, err := zlib.NewReader(bytes.NewReader(chunk))
		if err != nil {
			return nil, fmt.Errorf("open zlib stream: %w", err)
		}
		defer z.Close()
		return io.ReadAll(z)
	default:
		return nil, fmt.Errorf("unsupported compression %d", compression)
	}
}

// undoHorizontalPredictor reverses TIFF predictor 2 for 8-bit chunky data.
func undoHorizontalPredictor(pix []uint8, width, height, spp int) {
	stride := width * spp
	for y := 0; y < height; y++ {
		row := pix[y*stride : (y+1)*stride]
		for x := spp; x < stride; x++ {
			row[x] += row[x-spp]
		}
	}
}

// parseGeoref reads the GeoTIFF model tags. Missing tags are not an error.
func parseGeoref(fields map[Tag]field, bo binary.ByteOrder, width, height int) (domain.Georef, error) {
	scaleField, hasScale := fields[tagModelPixelScale]
	tieField, hasTie := fields[tagModelTiepoint]
	if !hasScale || !hasTie {
		return domain.Georef{}, nil
	}

	scale, err := scaleField.floats(bo)
	if err != nil || len(scale) < 2 {
		return domain.Georef{}, malformed("invalid ModelPixelScale")
	}
	tie, err := tieField.floats(bo)
	if err != nil || len(tie) < 6 {
		return domain.Georef{}, malformed("invalid ModelTiepoint")
	}
	sx, sy := scale[0], scale[1]
	if sx <= 0 || sy <= 0 {
		return domain.Georef{}, malformed("non-positive pixel scale (%g, %g)", sx, sy)
	}

	// Upper-left corner of pixel (0,0).
	ulx := tie[3] - tie[0]*sx
	uly := tie[4] + tie[1]*sy

	keys := parseGeoKeys(fields, bo)

	if keys.modelType == modelTypeGeographic || keys.epsg == epsgWGS84 {
		return domain.Georef{Bounds: &domain.Bounds{
			West:  ulx,
			South: uly - float64(height)*sy,
			East:  ulx + float64(width)*sx,
			North: uly,
		}}, nil
	}

	if sx != sy {
		return domain.Georef{}, malformed("non-square pixels (%g, %g)", sx, sy)
	}

	affine := &domain.Affine{
		OriginEasting:  ulx + sx/2,
		OriginNorthing: uly - sy/2 - float64(height-1)*sy,
		PixelSize:      sx,
		Width:          width,
		Height:         height,
	}

	georef := domain.Georef{Affine: affine}
	if src := keys.sourceCRS(); src != "" {
		georef.CRS = &domain.CRSPair{Source: src, Target: TargetCRS}
	}
	return georef, nil
}

type geoKeys struct {
	modelType int
	epsg      int
	citation  string
}

func (k geoKeys) sourceCRS() string {
	switch {
	case k.epsg != 0 && k.epsg != userDefined:
		return "EPSG:" + strconv.Itoa(k.epsg)
	case strings.HasPrefix(k.citation, "+proj="):
		return k.citation
	default:
		return ""
	}
}

func parseGeoKeys(fields map[Tag]field, bo binary.ByteOrder) geoKeys {
	var k geoKeys
	dirField, ok := fields[tagGeoKeyDirectory]
	if !ok {
		return k
	}
	dir, err := dirField.uints(bo)
	if err != nil || len(dir) < 4 {
		return k
	}
	ascii := ""
	if f, ok := fields[tagGeoASCIIParams]; ok {
		ascii = f.ascii()
	}

	n := int(dir[3])
	for i := 0; i < n && 4+i*4+3 < len(dir); i++ {
		id, loc, count, value := dir[4+i*4], dir[4+i*4+1], dir[4+i*4+2], dir[4+i*4+3]
		switch {
		case id == keyModelType && loc == 0:
			k.modelType = int(value)
		case id == keyGeographicType && loc == 0:
			if k.epsg == 0 {
				k.epsg = int(value)
			}
		case id == keyProjectedCSType && loc == 0:
			k.epsg = int(value)
		case id == keyPCSCitation && Tag(loc) == tagGeoASCIIParams:
			start, end := int(value), int(value+count)
			if end > len(ascii) {
				end = len(ascii)
			}
			if start < end {
				k.citation = strings.TrimRight(ascii[start:end], "|\x00")
			}
		}
	}
	return k
}
