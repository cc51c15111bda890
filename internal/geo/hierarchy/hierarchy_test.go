package hierarchy

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHID(t *testing.T) {
	h, err := ParseHID("esp.1.2")
	require.NoError(t, err)
	assert.Equal(t, "ESP", h.Country)
	assert.Equal(t, 3, h.Level())
	assert.Equal(t, "ESP.1.2", h.String())

	p, ok := h.Parent()
	require.True(t, ok)
	assert.Equal(t, "ESP.1", p.String())
	assert.Equal(t, "ESP.1.7", p.Child("7").String())

	_, ok = HID{Country: "ESP"}.Parent()
	assert.False(t, ok)

	for _, bad := range []string{"", "ES", "ES1.2", "ESP..2", "ESP.1."} {
		_, err := ParseHID(bad)
		assert.ErrorIs(t, err, ErrInvalidHID, bad)
	}
}

func TestLocalCode(t *testing.T) {
	cases := map[string]string{
		"1":         "1",
		" 12 ":      "12",
		"ESP.1_1":   "1",
		"esp.1.2_1": "1.2",
		"1.2":       "1.2",
		"FRA.3_1":   "FRA.3",
		"":          "",
	}
	for raw, want := range cases {
		assert.Equal(t, want, LocalCode("ESP", raw), raw)
	}
}

func TestChildOf(t *testing.T) {
	assert.Equal(t, "ESP.1.4", ChildOf("ESP.1", "4"))
	assert.Equal(t, "ESP.1.4", ChildOf("ESP.1", "1.4"))
	assert.Equal(t, "ESP.1", ParentOf("ESP.1.4"))
	assert.Equal(t, "", ParentOf("ESP"))
	assert.Equal(t, "ESP", CountryOf("esp.1.4"))
}

func TestFold(t *testing.T) {
	assert.Equal(t, "ile-de-france", Fold("Île-de-France"))
	assert.Equal(t, "comunidad de madrid", Fold("  Comunidad   de  Madrid "))
	assert.Equal(t, "sao paulo", Fold("São Paulo"))
}

// ladderStore returns a repository over a small tree where XYZ.1 has a
// level-2 row, XYZ.2 only has level-3 children, and XYZ.3 is stored at the
// wrong level.
func ladderStore() *Repository {
	return NewRepository(NewMemoryStore(
		Subdivision{ID: 1, HierarchicalID: "XYZ", Name: "Xyzland"},
		Subdivision{ID: 2, HierarchicalID: "XYZ.1", Name: "One"},
		Subdivision{ID: 3, HierarchicalID: "XYZ.1.1", Name: "One-One"},
		Subdivision{ID: 5, HierarchicalID: "XYZ.2.9", Name: "Two-Nine"},
		Subdivision{ID: 4, HierarchicalID: "XYZ.2.1", Name: "Two-One"},
		Subdivision{ID: 6, HierarchicalID: "XYZ.3", Level: 4, Name: "Three"},
	))
}

func TestResolveByExtractedID_ExactLevelFirst(t *testing.T) {
	m, err := ladderStore().ResolveByExtractedID(context.Background(), "xyz", "1")
	require.NoError(t, err)
	assert.Equal(t, TierExactLevel, m.Tier)
	assert.Equal(t, uint(2), m.Subdivision.ID)
}

func TestResolveByExtractedID_DeeperLevelPicksLowestID(t *testing.T) {
	m, err := ladderStore().ResolveByExtractedID(context.Background(), "XYZ", "2")
	require.NoError(t, err)
	assert.Equal(t, TierDeeperLevel, m.Tier)
	assert.Equal(t, "XYZ.2.1", m.Subdivision.HierarchicalID)
}

func TestResolveByExtractedID_AnyLevel(t *testing.T) {
	m, err := ladderStore().ResolveByExtractedID(context.Background(), "XYZ", "3")
	require.NoError(t, err)
	assert.Equal(t, TierAnyLevel, m.Tier)
	assert.Equal(t, uint(6), m.Subdivision.ID)
}

func TestResolveByExtractedID_NotFound(t *testing.T) {
	repo := ladderStore()
	for _, id := range []string{"8", "", "1.9"} {
		m, err := repo.ResolveByExtractedID(context.Background(), "XYZ", id)
		require.NoError(t, err)
		assert.False(t, m.Found(), id)
		assert.Nil(t, m.Subdivision)
	}
}

func TestNearestByCentroid_TiesGoToLowestID(t *testing.T) {
	repo := NewRepository(NewMemoryStore(
		Subdivision{ID: 9, HierarchicalID: "AAA.1", CentroidLat: 1, CentroidLon: 0},
		Subdivision{ID: 3, HierarchicalID: "BBB.1", CentroidLat: -1, CentroidLon: 0},
		Subdivision{ID: 4, HierarchicalID: "BBB.2", CentroidLat: 5, CentroidLon: 5},
	))

	row, err := repo.NearestByCentroid(context.Background(), 0, 0, "")
	require.NoError(t, err)
	assert.Equal(t, uint(3), row.ID)

	row, err = repo.NearestByCentroid(context.Background(), 0, 0, "aaa")
	require.NoError(t, err)
	assert.Equal(t, uint(9), row.ID)

	_, err = repo.NearestByCentroid(context.Background(), 0, 0, "ZZZ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNearest_Filters(t *testing.T) {
	store := NewMemoryStore(
		Subdivision{HierarchicalID: "AAA", CentroidLat: 0, CentroidLon: 0},
		Subdivision{HierarchicalID: "AAA.1", CentroidLat: 0.1, CentroidLon: 0},
		Subdivision{HierarchicalID: "AAA.1.1", CentroidLat: 3, CentroidLon: 3},
		Subdivision{HierarchicalID: "AAA.2", CentroidLat: 2, CentroidLon: 2},
	)
	_, err := store.MarkLowestLevels(context.Background())
	require.NoError(t, err)
	repo := NewRepository(store)

	row, err := repo.Nearest(context.Background(), CentroidQuery{LowestOnly: true})
	require.NoError(t, err)
	assert.Equal(t, "AAA.2", row.HierarchicalID)

	row, err = repo.Nearest(context.Background(), CentroidQuery{Prefix: "AAA.1."})
	require.NoError(t, err)
	assert.Equal(t, "AAA.1.1", row.HierarchicalID)

	row, err = repo.Nearest(context.Background(), CentroidQuery{Level: 1})
	require.NoError(t, err)
	assert.Equal(t, "AAA", row.HierarchicalID)
}

func TestMarkLowestLevels(t *testing.T) {
	store := NewMemoryStore(
		Subdivision{HierarchicalID: "AAA", IsLowestLevel: true},
		Subdivision{HierarchicalID: "AAA.1"},
		Subdivision{HierarchicalID: "AAA.1.1"},
		Subdivision{HierarchicalID: "AAA.2"},
	)
	repo := NewRepository(store)

	changed, err := repo.MarkLowestLevels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), changed)

	low, err := repo.IsLowest(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, low)

	low, err = repo.IsLowest(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, low)

	low, err = repo.IsLowest(context.Background(), 99)
	require.NoError(t, err)
	assert.False(t, low)

	changed, err = repo.MarkLowestLevels(context.Background())
	require.NoError(t, err)
	assert.Zero(t, changed)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []LevelStats{
		{Level: 1, Total: 1, Lowest: 0},
		{Level: 2, Total: 2, Lowest: 1},
		{Level: 3, Total: 1, Lowest: 1},
	}, stats)
}

func TestSearch_FoldsAccents(t *testing.T) {
	repo := NewRepository(NewMemoryStore(
		Subdivision{HierarchicalID: "FRA.8", Name: "Île-de-France"},
		Subdivision{HierarchicalID: "FRA", Name: "France"},
		Subdivision{HierarchicalID: "ESP.1", Name: "Andalucía", NameVariants: []string{"Andalusia"}},
	))

	rows, err := repo.Search(context.Background(), "ile", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "FRA.8", rows[0].HierarchicalID)

	rows, err = repo.Search(context.Background(), "FRANCE", 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "FRA", rows[0].HierarchicalID)

	rows, err = repo.Search(context.Background(), "andalusia", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = repo.Search(context.Background(), "  ", 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestLoadSnapshot(t *testing.T) {
	store, err := LoadSnapshot(strings.NewReader(`[
	  {"id": 7, "hierarchical_id": "ESP.13", "name": "Madrid", "centroid_lat": 40.4, "centroid_lon": -3.7, "is_lowest_level": true}
	]`))
	require.NoError(t, err)

	row, err := store.FindExact(context.Background(), "ESP.13", 2)
	require.NoError(t, err)
	assert.Equal(t, uint(7), row.ID)
	assert.Equal(t, "ESP", row.CountryCode)
	assert.Equal(t, "ESP", row.ParentHierarchicalID)
}

func TestDerive(t *testing.T) {
	s := Subdivision{HierarchicalID: " esp.13.2 ", Name: "Móstoles"}
	s.Derive()
	assert.Equal(t, "ESP.13.2", s.HierarchicalID)
	assert.Equal(t, "ESP", s.CountryCode)
	assert.Equal(t, 3, s.Level)
	assert.Equal(t, "ESP.13", s.ParentHierarchicalID)
	assert.Equal(t, "mostoles", s.SearchKey)
}
