package geometry

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoSquares is a topology with two 10x10 squares sharing the edge x=10.
// The right square walks the shared arc backwards (~0 == -1).
const twoSquares = `{
  "type": "Topology",
  "arcs": [
    [[10,0],[10,10]],
    [[10,10],[0,10],[0,0],[10,0]],
    [[10,0],[20,0],[20,10],[10,10]]
  ],
  "objects": {
    "regions": {
      "type": "GeometryCollection",
      "geometries": [
        {"type": "Polygon", "id": "B", "arcs": [[2,-1]], "properties": {"ID_1": 2, "NAME_1": "East"}},
        {"type": "Polygon", "id": "A", "arcs": [[0,1]], "properties": {"ID_1": 1, "NAME_1": "West"}},
        {"type": "Point", "coordinates": [1,1]}
      ]
    }
  }
}`

func TestDecodeTopology_StitchesSharedArcs(t *testing.T) {
	c, err := Decode("XYZ", []byte(twoSquares))
	require.NoError(t, err)
	require.Len(t, c.Features, 2)

	assert.Equal(t, "A", c.Features[0].ID)
	assert.Equal(t, "B", c.Features[1].ID)

	west := c.Features[0].Geometry.(orb.Polygon)
	assert.Equal(t, orb.Ring{{10, 0}, {10, 10}, {0, 10}, {0, 0}, {10, 0}}, west[0])

	east := c.Features[1].Geometry.(orb.Polygon)
	assert.Equal(t, orb.Ring{{10, 0}, {20, 0}, {20, 10}, {10, 10}, {10, 0}}, east[0])

	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{20, 10}}, c.Bound)
}

func TestDecodeTopology_AppliesQuantizedTransform(t *testing.T) {
	doc := `{
	  "type": "Topology",
	  "transform": {"scale": [0.5, 0.25], "translate": [100, 50]},
	  "arcs": [[[0,0],[4,0],[0,4],[-4,0],[0,-4]]],
	  "objects": {"land": {"type": "MultiPolygon", "arcs": [[[0]]], "properties": {"ISO_A3": "AAA"}}}
	}`
	c, err := Decode("@world", []byte(doc))
	require.NoError(t, err)
	require.Len(t, c.Features, 1)

	mp := c.Features[0].Geometry.(orb.MultiPolygon)
	assert.Equal(t, orb.Ring{{100, 50}, {102, 50}, {102, 51}, {100, 51}, {100, 50}}, mp[0][0])
	assert.Equal(t, "AAA", c.Features[0].Properties["ISO_A3"])
}

func TestDecodeTopology_BadArcIndexIsMalformed(t *testing.T) {
	doc := `{"type":"Topology","arcs":[],"objects":{"x":{"type":"Polygon","arcs":[[3]]}}}`
	_, err := Decode("XYZ", []byte(doc))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecode_GeoJSONSortsNumericIDs(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
	  {"type":"Feature","id":10,"properties":{"ID_1":"10"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}},
	  {"type":"Feature","id":2,"properties":{"ID_1":"2"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}},
	  {"type":"Feature","id":3,"properties":{},"geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]}}
	]}`
	c, err := Decode("XYZ", []byte(doc))
	require.NoError(t, err)
	require.Len(t, c.Features, 2)
	assert.Equal(t, "2", c.Features[0].ID)
	assert.Equal(t, "10", c.Features[1].ID)
}

func TestDecode_EmptyCollectionIsMalformed(t *testing.T) {
	_, err := Decode("XYZ", []byte(`{"type":"FeatureCollection","features":[]}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.True(t, errors.Is(err, ErrNotFound), "malformed files must read as not found")
}

func TestDecode_GarbageIsMalformed(t *testing.T) {
	_, err := Decode("XYZ", []byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode("XYZ", []byte(`{"type":"Point","coordinates":[0,0]}`))
	assert.ErrorIs(t, err, ErrMalformed)
}
