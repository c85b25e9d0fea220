// Package geo maps raster grid coordinates into the display CRS.
//
// Projection math is delegated to a [Provider]. The package only walks the
// grid and applies the provider's forward function in a fixed order.
package geo

import (
	"strings"
	"sync"

	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
	"github.com/ctessum/geom/proj"
)

// Well-known CRS identifiers.
const (
	WGS84       = "EPSG:4326"
	WebMercator = "EPSG:3857"
	Korea2000   = "EPSG:5181"
	GK2ALCC     = "GK2A:LCC"
)

// Registry maps CRS identifiers to proj4 definitions.
var Registry = map[string]string{
	WGS84:       "+proj=longlat +datum=WGS84 +no_defs",
	WebMercator: "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs",
	Korea2000:   "+proj=tmerc +lat_0=38 +lon_0=127 +k=1 +x_0=200000 +y_0=500000 +ellps=GRS80 +units=m +no_defs",
	GK2ALCC:     "+proj=lcc +lat_1=30 +lat_2=60 +lat_0=38 +lon_0=126 +ellps=WGS84 +units=m +no_defs",
}

// ForwardFunc transforms one coordinate pair from a source to a target CRS.
type ForwardFunc func(x, y float64) (float64, float64, error)

// Provider resolves a CRS pair into a forward transform.
type Provider interface {
	Forward(source, target string) (ForwardFunc, error)
}

// ProjProvider is a Provider backed by proj4 definitions. Resolved transforms
// are cached per CRS pair.
type ProjProvider struct {
	registry map[string]string

	mu    sync.Mutex
	cache map[domain.CRSPair]ForwardFunc
}

// NewProjProvider returns a provider that knows the built-in registry plus
// extra, which may override entries. Identifiers starting with "+proj=" are
// always accepted as literal definitions.
func NewProjProvider(extra map[string]string) *ProjProvider {
	reg := make(map[string]string, len(Registry)+len(extra))
	for k, v := range Registry {
		reg[k] = v
	}
	for k, v := range extra {
		reg[strings.ToUpper(k)] = v
	}
	return &ProjProvider{registry: reg, cache: make(map[domain.CRSPair]ForwardFunc)}
}

func (p *ProjProvider) definition(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "+proj=") {
		return id, true
	}
	def, ok := p.registry[strings.ToUpper(id)]
	return def, ok
}

// Forward implements Provider.
func (p *ProjProvider) Forward(source, target string) (ForwardFunc, error) {
	key := domain.CRSPair{Source: source, Target: target}

	p.mu.Lock()
	defer p.mu.Unlock()
	if fn, ok := p.cache[key]; ok {
		return fn, nil
	}

	srcDef, ok := p.definition(source)
	if !ok {
		return nil, &domain.TransformError{Kind: domain.UnknownCRS, Source: source, Target: target}
	}
	dstDef, ok := p.definition(target)
	if !ok {
		return nil, &domain.TransformError{Kind: domain.UnknownCRS, Source: source, Target: target}
	}

	srcSR, err := proj.Parse(srcDef)
	if err != nil {
		return nil, &domain.TransformError{Kind: domain.UnknownCRS, Source: source, Target: target, Err: err}
	}
	dstSR, err := proj.Parse(dstDef)
	if err != nil {
		return nil, &domain.TransformError{Kind: domain.UnknownCRS, Source: source, Target: target, Err: err}
	}
	trans, err := srcSR.NewTransform(dstSR)
	if err != nil {
		return nil, &domain.TransformError{Kind: domain.NonInvertible, Source: source, Target: target, Err: err}
	}

	fn := ForwardFunc(trans)
	p.cache[key] = fn
	return fn, nil
}
