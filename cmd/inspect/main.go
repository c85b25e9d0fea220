// Command inspect checks a directory of raster frames and overlays before it
// is served: every frame named by the template must exist, decode, resolve
// to bounds, and composite; frame sizes and bounds must agree; and overlay
// documents must merge.
//
// Usage:
//
//	go run ./cmd/inspect -dir data -date 20240707 \
//	  -boundary boundary.geojson -coastline coastline.geojson
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/couchcryptid/storm-raster-viewer/internal/adapter/source"
	"github.com/couchcryptid/storm-raster-viewer/internal/composite"
	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
	"github.com/couchcryptid/storm-raster-viewer/internal/geo"
	"github.com/couchcryptid/storm-raster-viewer/internal/overlay"
	"github.com/couchcryptid/storm-raster-viewer/internal/raster"
)

// phase tracks pass/fail for an inspection phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type options struct {
	dir       string
	namer     domain.Namer
	count     int
	sourceCRS string
	fallback  *domain.Bounds
	boundary  string
	coastline string
}

func main() {
	dir := flag.String("dir", "data", "directory containing frames and overlays")
	date := flag.String("date", "", "frame date (YYYYMMDD)")
	count := flag.Int("count", 144, "number of frames")
	step := flag.Duration("step", domain.DefaultStep, "time between frames")
	prefix := flag.String("prefix", "swrad_", "frame file name prefix")
	suffix := flag.String("suffix", "_jet.tif", "frame file name suffix")
	sourceCRS := flag.String("source-crs", "", "CRS of affine frames that embed none")
	bounds := flag.String("bounds", "", "fallback bounds west,south,east,north")
	boundary := flag.String("boundary", "", "boundary overlay file name")
	coastline := flag.String("coastline", "", "coastline overlay file name")
	flag.Parse()

	day, err := time.Parse("20060102", *date)
	if err != nil || *count < 1 {
		flag.Usage()
		os.Exit(1)
	}

	opts := options{
		dir:       *dir,
		namer:     domain.Namer{Prefix: *prefix, Suffix: *suffix, Date: day, Step: *step},
		count:     *count,
		sourceCRS: *sourceCRS,
		boundary:  *boundary,
		coastline: *coastline,
	}
	if *bounds != "" {
		var b domain.Bounds
		if _, err := fmt.Sscanf(*bounds, "%g,%g,%g,%g", &b.West, &b.South, &b.East, &b.North); err != nil || !b.Valid() {
			fmt.Fprintf(os.Stderr, "invalid -bounds %q\n", *bounds)
			os.Exit(1)
		}
		opts.fallback = &b
	}

	os.Exit(run(context.Background(), opts))
}

func run(ctx context.Context, opts options) int {
	fmt.Println("=== Raster Frame Inspection ===")
	fmt.Println()

	src := source.NewFile(opts.dir)
	tr := geo.NewTransformer(geo.NewProjProvider(nil))

	frames := inspectFrames(ctx, src, tr, opts)
	phases := append(frames, inspectOverlays(ctx, src, opts))

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll checks passed.")
		return 0
	}
	fmt.Println("\nInspection FAILED.")
	return 1
}

func inspectFrames(ctx context.Context, src *source.File, tr *geo.Transformer, opts options) []*phase {
	present := &phase{name: "Frames present"}
	decoded := &phase{name: "Frames decode"}
	georef := &phase{name: "Frames georeferenced"}
	consistent := &phase{name: "Frame size and bounds consistent"}
	composited := &phase{name: "Frames composite"}

	var first *domain.CompositedBitmap
	transparent, total := 0, 0

	for i := range opts.count {
		name := opts.namer.Name(i)
		data, err := src.Fetch(ctx, name)
		if err != nil {
			present.errorf("%s: %v", name, err)
			continue
		}

		rf, err := raster.Decode(data)
		if err != nil {
			var de *domain.DecodeError
			if errors.As(err, &de) {
				decoded.errorf("%s: %s", name, de.Kind)
			} else {
				decoded.errorf("%s: %v", name, err)
			}
			continue
		}

		g := rf.Georef
		if g.Empty() && opts.fallback != nil {
			g.Bounds = opts.fallback
		}
		if g.Affine != nil && g.CRS == nil && opts.sourceCRS != "" {
			g.CRS = &domain.CRSPair{Source: opts.sourceCRS, Target: geo.WGS84}
		}
		bounds, err := tr.ResolveBounds(g)
		if err != nil {
			georef.errorf("%s: %v", name, err)
			continue
		}

		bm, err := composite.Composite(rf, bounds, composite.DefaultOptions())
		if err != nil {
			composited.errorf("%s: %v", name, err)
			continue
		}
		for p := 3; p < len(bm.Pix); p += 4 {
			if bm.Pix[p] == 0 {
				transparent++
			}
		}
		total += bm.Width * bm.Height

		if first == nil {
			first = &bm
			fmt.Printf("First frame %s: %dx%d, %d bands, bounds %.4f,%.4f,%.4f,%.4f\n",
				name, rf.Width, rf.Height, rf.Bands, bounds.West, bounds.South, bounds.East, bounds.North)
			continue
		}
		if bm.Width != first.Width || bm.Height != first.Height {
			consistent.errorf("%s: size %dx%d differs from %dx%d", name, bm.Width, bm.Height, first.Width, first.Height)
		}
		if bm.Bounds != first.Bounds {
			consistent.errorf("%s: bounds %+v differ from %+v", name, bm.Bounds, first.Bounds)
		}
	}

	if total > 0 {
		fmt.Printf("Transparent pixels: %.1f%%\n\n", 100*float64(transparent)/float64(total))
	}
	return []*phase{present, decoded, georef, consistent, composited}
}

func inspectOverlays(ctx context.Context, src *source.File, opts options) *phase {
	p := &phase{name: "Overlays merge"}

	var sources []overlay.Source
	for i, layer := range []overlay.Layer{
		{Tag: overlay.TagBoundary, Name: opts.boundary},
		{Tag: overlay.TagCoastline, Name: opts.coastline},
	} {
		if layer.Name == "" {
			continue
		}
		data, err := src.Fetch(ctx, layer.Name)
		if err != nil {
			p.errorf("%s: %v", layer.Tag, err)
			continue
		}
		fc, err := overlay.Parse(data, i, layer.Tag)
		if err != nil {
			p.errorf("%s: %v", layer.Tag, err)
			continue
		}
		sources = append(sources, overlay.Source{Tag: layer.Tag, Collection: fc})
	}
	if len(sources) == 0 {
		return p
	}

	merged, err := overlay.Merge(sources)
	if err != nil {
		p.errorf("merge: %v", err)
		return p
	}
	fmt.Printf("Overlay: %d features from %d layers\n\n", len(merged.Features), len(sources))
	return p
}
