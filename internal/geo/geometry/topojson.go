package geometry

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type topology struct {
	Type      string                  `json:"type"`
	Transform *topoTransform          `json:"transform"`
	Arcs      [][][]float64           `json:"arcs"`
	Objects   map[string]topoGeometry `json:"objects"`
}

type topoTransform struct {
	Scale     [2]float64 `json:"scale"`
	Translate [2]float64 `json:"translate"`
}

type topoGeometry struct {
	Type       string          `json:"type"`
	ID         any             `json:"id"`
	Properties map[string]any  `json:"properties"`
	Arcs       json.RawMessage `json:"arcs"`
	Geometries []topoGeometry  `json:"geometries"`
}

// decodeTopology flattens every object of a topology (including nested
// GeometryCollections) into features. Objects are visited in name order.
func decodeTopology(data []byte) ([]Feature, error) {
	var t topology
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	if len(t.Objects) == 0 {
		return nil, fmt.Errorf("topology has no objects")
	}

	arcs := t.absoluteArcs()

	names := make([]string, 0, len(t.Objects))
	for name := range t.Objects {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Feature
	for _, name := range names {
		if err := flattenTopo(t.Objects[name], arcs, &out); err != nil {
			return nil, fmt.Errorf("object %q: %w", name, err)
		}
	}
	return out, nil
}

// absoluteArcs undoes quantisation and delta encoding when a transform is
// present.
func (t *topology) absoluteArcs() [][]orb.Point {
	out := make([][]orb.Point, len(t.Arcs))
	for i, arc := range t.Arcs {
		pts := make([]orb.Point, 0, len(arc))
		var x, y float64
		for _, p := range arc {
			if len(p) < 2 {
				continue
			}
			if t.Transform == nil {
				pts = append(pts, orb.Point{p[0], p[1]})
				continue
			}
			x += p[0]
			y += p[1]
			pts = append(pts, orb.Point{
				x*t.Transform.Scale[0] + t.Transform.Translate[0],
				y*t.Transform.Scale[1] + t.Transform.Translate[1],
			})
		}
		out[i] = pts
	}
	return out
}

func flattenTopo(g topoGeometry, arcs [][]orb.Point, out *[]Feature) error {
	switch g.Type {
	case "GeometryCollection":
		for _, child := range g.Geometries {
			if err := flattenTopo(child, arcs, out); err != nil {
				return err
			}
		}
		return nil
	case "Polygon":
		var rings [][]int
		if err := json.Unmarshal(g.Arcs, &rings); err != nil {
			return err
		}
		poly, err := topoPolygon(rings, arcs)
		if err != nil {
			return err
		}
		*out = append(*out, topoFeature(g, poly))
	case "MultiPolygon":
		var polys [][][]int
		if err := json.Unmarshal(g.Arcs, &polys); err != nil {
			return err
		}
		mp := make(orb.MultiPolygon, 0, len(polys))
		for _, rings := range polys {
			poly, err := topoPolygon(rings, arcs)
			if err != nil {
				return err
			}
			mp = append(mp, poly)
		}
		*out = append(*out, topoFeature(g, mp))
	}
	// points and lines carry no area
	return nil
}

func topoFeature(g topoGeometry, geom orb.Geometry) Feature {
	return Feature{
		ID:         idString(g.ID),
		Geometry:   geom,
		Properties: geojson.Properties(g.Properties),
	}
}

func topoPolygon(rings [][]int, arcs [][]orb.Point) (orb.Polygon, error) {
	poly := make(orb.Polygon, 0, len(rings))
	for _, idx := range rings {
		ring, err := topoRing(idx, arcs)
		if err != nil {
			return nil, err
		}
		poly = append(poly, ring)
	}
	return poly, nil
}

// topoRing stitches arcs together. A negative index ~i means arc i reversed;
// consecutive arcs share their joining point, which is kept once.
func topoRing(idx []int, arcs [][]orb.Point) (orb.Ring, error) {
	var ring orb.Ring
	for k, i := range idx {
		reversed := i < 0
		if reversed {
			i = ^i
		}
		if i >= len(arcs) {
			return nil, fmt.Errorf("arc index %d out of range (%d arcs)", i, len(arcs))
		}
		arc := arcs[i]
		pts := make([]orb.Point, len(arc))
		for j, p := range arc {
			if reversed {
				pts[len(arc)-1-j] = p
			} else {
				pts[j] = p
			}
		}
		if k > 0 && len(pts) > 0 {
			pts = pts[1:]
		}
		ring = append(ring, pts...)
	}
	return ring, nil
}
