package locate

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/EmpoweredVote/EV-Globe/internal/geo/geometry"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// square renders a GeoJSON feature covering [minLon,maxLon]x[minLat,maxLat].
func square(id int, minLon, minLat, maxLon, maxLat float64, props map[string]any) string {
	p, _ := json.Marshal(props)
	return fmt.Sprintf(`{"type":"Feature","id":%d,"properties":%s,"geometry":{"type":"Polygon","coordinates":[[[%g,%g],[%g,%g],[%g,%g],[%g,%g],[%g,%g]]]}}`,
		id, p, minLon, minLat, maxLon, minLat, maxLon, maxLat, minLon, maxLat, minLon, minLat)
}

func collection(features ...string) []byte {
	return []byte(`{"type":"FeatureCollection","features":[` + strings.Join(features, ",") + `]}`)
}

func fixtureStore() *geometry.Store {
	files := fstest.MapFS{
		"maps/world.json": {Data: collection(
			square(1, 0, 0, 10, 10, map[string]any{"ISO_A3": "-99", "ADM0_A3": "AAA"}),
			square(2, 10, 0, 20, 10, map[string]any{"iso_a3": "bbb"}),
			square(3, 0, 0, 20, 10, map[string]any{"ISO_A3": "CCC"}),
			square(4, 30, 0, 40, 10, map[string]any{"NAME": "Nowhere"}),
		)},
		"geojson/AAA/AAA.geojson": {Data: collection(
			square(1, 0, 0, 5, 10, map[string]any{"ID_1": 1, "NAME_1": "West"}),
			square(2, 5, 0, 10, 10, map[string]any{"GID_1": "AAA.2_1", "NAME_1": "East"}),
		)},
		"geojson/AAA/AAA.1.geojson": {Data: collection(
			square(1, 0, 0, 5, 5, map[string]any{"ID_2": "1.1", "NAME_2": "South West"}),
			square(2, 0, 5, 5, 10, map[string]any{"id_2": 3, "NAME_2": "North West"}),
		)},
		"geojson/CCC/CCC.geojson": {Data: collection(
			square(1, 0, 0, 1, 1, map[string]any{"NAME_1": "No code"}),
		)},
	}
	return geometry.NewStore(geometry.FSSource{FS: files, World: "maps/world.json", CountryDir: "geojson"})
}

func TestChain_Precedence(t *testing.T) {
	c := ChainOf("ISO_A3", "ADM0_A3", "ISO_A3_EH")

	v, ok := c.Extract(geojson.Properties{"ISO_A3": "ESP", "ADM0_A3": "XXX"})
	require.True(t, ok)
	assert.Equal(t, "ESP", v)

	v, ok = c.Extract(geojson.Properties{"ISO_A3": "-99", "adm0_a3": "FRA"})
	require.True(t, ok)
	assert.Equal(t, "FRA", v)

	v, ok = c.Extract(geojson.Properties{"Iso_A3_Eh": " NOR "})
	require.True(t, ok)
	assert.Equal(t, "NOR", v)

	_, ok = c.Extract(geojson.Properties{"ISO_A3": "", "NAME": "x"})
	assert.False(t, ok)
}

func TestField_FormatsNumbers(t *testing.T) {
	v, ok := Field("ID_1")(geojson.Properties{"ID_1": float64(12)})
	require.True(t, ok)
	assert.Equal(t, "12", v)

	v, ok = Field("id_1")(geojson.Properties{"ID_1": 7.5})
	require.True(t, ok)
	assert.Equal(t, "7.5", v)

	_, ok = Field("ID_1")(geojson.Properties{"ID_1": true})
	assert.False(t, ok)
}

func TestCountryLocator_FirstMatchWins(t *testing.T) {
	l := NewCountryLocator(fixtureStore(), DefaultFields())

	code, err := l.Locate(5, 5)
	require.NoError(t, err)
	assert.Equal(t, "AAA", code)

	code, err = l.Locate(5, 15)
	require.NoError(t, err)
	assert.Equal(t, "BBB", code)
}

func TestCountryLocator_NoCountry(t *testing.T) {
	l := NewCountryLocator(fixtureStore(), DefaultFields())

	_, err := l.Locate(-45, -100)
	assert.ErrorIs(t, err, ErrNoCountry)

	// inside a polygon that carries no code
	_, err = l.Locate(5, 35)
	assert.ErrorIs(t, err, ErrNoCountry)
}

func TestCountryLocator_MissingWorld(t *testing.T) {
	store := geometry.NewStore(geometry.FSSource{FS: fstest.MapFS{}, World: "maps/world.json"})
	l := NewCountryLocator(store, DefaultFields())

	_, err := l.Locate(5, 5)
	assert.ErrorIs(t, err, geometry.ErrMissingFile)
}

func TestSubdivisionMatcher_Match(t *testing.T) {
	m := NewSubdivisionMatcher(fixtureStore(), DefaultFields())

	got, err := m.Match("aaa", 5, 2)
	require.NoError(t, err)
	assert.Equal(t, "1", got.Local)
	assert.Equal(t, "West", got.Name)

	got, err = m.Match("AAA", 5, 7)
	require.NoError(t, err)
	assert.Equal(t, "2", got.Local)
	assert.Equal(t, "AAA.2_1", got.Raw)
	assert.Equal(t, "East", got.Name)
}

func TestSubdivisionMatcher_Failures(t *testing.T) {
	m := NewSubdivisionMatcher(fixtureStore(), DefaultFields())

	_, err := m.Match("BBB", 5, 15)
	assert.ErrorIs(t, err, geometry.ErrMissingFile)

	_, err = m.Match("AAA", 50, 50)
	assert.ErrorIs(t, err, ErrNoEnclosingPolygon)

	// the only containing polygon has no id
	_, err = m.Match("CCC", 0.5, 0.5)
	assert.ErrorIs(t, err, ErrNoEnclosingPolygon)
}

func TestSubdivisionMatcher_MatchRegion(t *testing.T) {
	m := NewSubdivisionMatcher(fixtureStore(), DefaultFields())

	got, err := m.MatchRegion("AAA.1", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, "1.1", got.Local)
	assert.Equal(t, "South West", got.Name)

	got, err = m.MatchRegion("AAA.1", 7, 2)
	require.NoError(t, err)
	assert.Equal(t, "3", got.Local)

	_, err = m.MatchRegion("AAA.2", 7, 7)
	assert.ErrorIs(t, err, geometry.ErrNotFound)
}
