// Package overlay merges independently fetched vector layers into a single
// tagged FeatureCollection for line rendering.
package overlay

import (
	"encoding/json"
	"fmt"

	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
	"github.com/paulmach/orb/geojson"
)

// LineTypeKey is the property that carries a feature's source tag.
const LineTypeKey = "lineType"

// Tags for the two standard overlay sources.
const (
	TagBoundary  = "boundary"
	TagCoastline = "coastline"
)

// Source is one input collection and the tag stamped onto its features.
type Source struct {
	Tag        string
	Collection *geojson.FeatureCollection
}

// Parse decodes a GeoJSON document and checks that it is a FeatureCollection
// with a features member. position and tag are only used for error reporting.
func Parse(data []byte, position int, tag string) (*geojson.FeatureCollection, error) {
	var head struct {
		Type     string          `json:"type"`
		Features json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, invalid(position, tag, err.Error())
	}
	if head.Type != "FeatureCollection" {
		return nil, invalid(position, tag, fmt.Sprintf("type is %q", head.Type))
	}
	if len(head.Features) == 0 || string(head.Features) == "null" {
		return nil, invalid(position, tag, "missing features")
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, invalid(position, tag, err.Error())
	}
	return fc, nil
}

func invalid(position int, tag, msg string) *domain.MergeError {
	return &domain.MergeError{Kind: domain.InvalidFeatureCollection, Position: position, Tag: tag, Msg: msg}
}

// Merge concatenates the features of every source in order, stamping each
// with its source's tag under LineTypeKey. Input features are not modified:
// each output feature is a shallow copy with its own property map, sharing
// the original geometry.
func Merge(sources []Source) (*geojson.FeatureCollection, error) {
	total := 0
	for i, s := range sources {
		if s.Collection == nil {
			return nil, invalid(i, s.Tag, "nil collection")
		}
		if s.Collection.Type != "FeatureCollection" {
			return nil, invalid(i, s.Tag, fmt.Sprintf("type is %q", s.Collection.Type))
		}
		total += len(s.Collection.Features)
	}

	out := geojson.NewFeatureCollection()
	out.Features = make([]*geojson.Feature, 0, total)
	for _, s := range sources {
		for _, f := range s.Collection.Features {
			if f == nil {
				continue
			}
			tagged := *f
			tagged.Properties = f.Properties.Clone()
			if tagged.Properties == nil {
				tagged.Properties = geojson.Properties{}
			}
			tagged.Properties[LineTypeKey] = s.Tag
			out.Features = append(out.Features, &tagged)
		}
	}
	return out, nil
}
