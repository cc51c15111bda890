package geometry

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Decode parses a TopoJSON topology or a GeoJSON FeatureCollection/Feature
// into a Collection of polygonal features. Files without a single usable
// polygon are reported as ErrMalformed.
func Decode(key string, data []byte) (*Collection, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
	}

	var (
		features []Feature
		err      error
	)
	switch head.Type {
	case "Topology":
		features, err = decodeTopology(data)
	case "FeatureCollection":
		var fc *geojson.FeatureCollection
		fc, err = geojson.UnmarshalFeatureCollection(data)
		if err == nil {
			features = fromGeoJSON(fc.Features)
		}
	case "Feature":
		var f *geojson.Feature
		f, err = geojson.UnmarshalFeature(data)
		if err == nil {
			features = fromGeoJSON([]*geojson.Feature{f})
		}
	default:
		err = fmt.Errorf("unsupported document type %q", head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
	}

	features = keepPolygonal(features)
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: %s: no polygon features", ErrMalformed, key)
	}
	sortFeatures(features)

	c := &Collection{Key: key, Features: features, Bound: features[0].Bound}
	for _, f := range features[1:] {
		c.Bound = c.Bound.Union(f.Bound)
	}
	return c, nil
}

func fromGeoJSON(in []*geojson.Feature) []Feature {
	out := make([]Feature, 0, len(in))
	for _, f := range in {
		if f == nil {
			continue
		}
		out = append(out, Feature{
			ID:         idString(f.ID),
			Geometry:   f.Geometry,
			Properties: f.Properties,
		})
	}
	return out
}

// keepPolygonal drops non-polygonal geometry, flattens collections into
// multipolygons, fills missing IDs with the file position and computes bounds.
func keepPolygonal(in []Feature) []Feature {
	out := in[:0]
	for i, f := range in {
		g := polygonal(f.Geometry)
		if g == nil {
			continue
		}
		f.Geometry = g
		f.Bound = g.Bound()
		if f.ID == "" {
			f.ID = strconv.Itoa(i)
		}
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		out = append(out, f)
	}
	return out
}

func polygonal(g orb.Geometry) orb.Geometry {
	var polys orb.MultiPolygon
	collect(g, &polys)
	switch len(polys) {
	case 0:
		return nil
	case 1:
		if _, ok := g.(orb.Polygon); ok {
			return polys[0]
		}
	}
	return polys
}

func collect(g orb.Geometry, into *orb.MultiPolygon) {
	switch v := g.(type) {
	case orb.Polygon:
		if usable(v) {
			*into = append(*into, v)
		}
	case orb.MultiPolygon:
		for _, p := range v {
			if usable(p) {
				*into = append(*into, p)
			}
		}
	case orb.Collection:
		for _, c := range v {
			collect(c, into)
		}
	}
}

func usable(p orb.Polygon) bool {
	return len(p) > 0 && len(p[0]) >= 3
}

// sortFeatures orders by ID, comparing numerically when both IDs are
// integers so "2" sorts before "10".
func sortFeatures(fs []Feature) {
	sort.SliceStable(fs, func(i, j int) bool {
		return lessID(fs[i].ID, fs[j].ID)
	})
}

func lessID(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	}
	return a < b
}

func idString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	}
	return fmt.Sprint(v)
}
