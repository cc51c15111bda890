package reconcile_test

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"testing"

	"github.com/EmpoweredVote/EV-Globe/internal/db"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/hierarchy"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/reconcile"
	"github.com/EmpoweredVote/EV-Globe/internal/votes"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dbAvailable tracks whether the database connection was established.
var dbAvailable bool

func TestMain(m *testing.M) {
	// Load .env.local relative to the module root (three directories up).
	_ = godotenv.Load("../../../.env.local")

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		// No database available; DB-backed tests skip themselves.
		os.Exit(m.Run())
	}

	db.Connect(databaseURL)
	if err := db.Migrate(db.DB, "geo", &hierarchy.Subdivision{}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := db.Migrate(db.DB, "polls", &votes.Vote{}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	dbAvailable = true

	os.Exit(m.Run())
}

// seedTree inserts a throwaway country with one region and two sub-regions
// and registers cleanup. It returns the rows by hierarchical id.
func seedTree(t *testing.T) (string, map[string]hierarchy.Subdivision) {
	t.Helper()
	if !dbAvailable {
		t.Skip("skipping integration test (requires DATABASE_URL)")
	}

	iso := fmt.Sprintf("Q%c%c", 'A'+rand.Intn(26), 'A'+rand.Intn(26))
	db.DB.Where("country_code = ?", iso).Delete(&hierarchy.Subdivision{})

	rows := []hierarchy.Subdivision{
		{HierarchicalID: iso, Name: "Test " + iso, CentroidLat: 5, CentroidLon: 5},
		{HierarchicalID: iso + ".1", Name: "Region", CentroidLat: 5, CentroidLon: 5},
		{HierarchicalID: iso + ".1.1", Name: "West", CentroidLat: 5, CentroidLon: 2.5, IsLowestLevel: true},
		{HierarchicalID: iso + ".1.2", Name: "East", CentroidLat: 5, CentroidLon: 7.5, IsLowestLevel: true},
	}
	require.NoError(t, db.DB.Create(&rows).Error)
	t.Cleanup(func() {
		db.DB.Where("country_code = ?", iso).Delete(&hierarchy.Subdivision{})
	})

	out := map[string]hierarchy.Subdivision{}
	for _, r := range rows {
		out[r.HierarchicalID] = r
	}
	return iso, out
}

func seedVotes(t *testing.T, pollID uint, subdivisionID *uint, n int) []votes.Vote {
	t.Helper()
	vs := make([]votes.Vote, n)
	for i := range vs {
		vs[i] = votes.Vote{
			PollID:        pollID,
			UserID:        fmt.Sprintf("it-user-%d", i),
			OptionID:      1,
			Latitude:      5,
			Longitude:     2,
			SubdivisionID: subdivisionID,
		}
	}
	require.NoError(t, db.DB.Create(&vs).Error)
	t.Cleanup(func() {
		db.DB.Where("poll_id = ?", pollID).Delete(&votes.Vote{})
	})
	return vs
}

func TestGormVoteStore_WrongLevelRoundTrip(t *testing.T) {
	iso, tree := seedTree(t)
	pollID := uint(900000 + rand.Intn(99999))
	region := tree[iso+".1"].ID
	seedVotes(t, pollID, &region, 3)

	store := reconcile.NewGormVoteStore(db.DB)
	ctx := context.Background()
	f := reconcile.Filter{Mode: reconcile.ModeWrongLevel, PollID: pollID}

	n, err := store.WrongLevelCount(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	recs, err := store.NextChunk(ctx, f, 0, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 2, recs[0].CurrentLevel)
	assert.False(t, recs[0].CurrentLowest)
	assert.Less(t, recs[0].ID, recs[1].ID)

	all, err := store.NextChunk(ctx, f, 0, 10)
	require.NoError(t, err)
	updates := make([]reconcile.Update, 0, len(all))
	for _, r := range all {
		updates = append(updates, reconcile.Update{VoteID: r.ID, SubdivisionID: tree[iso+".1.1"].ID})
	}

	written, err := store.ApplyUpdates(ctx, updates)
	require.NoError(t, err)
	assert.Equal(t, int64(3), written)

	written, err = store.ApplyUpdates(ctx, updates)
	require.NoError(t, err)
	assert.Zero(t, written)

	n, err = store.WrongLevelCount(ctx, f)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGormVoteStore_UnresolvedFilters(t *testing.T) {
	seedTree(t)
	pollID := uint(900000 + rand.Intn(99999))
	seedVotes(t, pollID, nil, 2)

	store := reconcile.NewGormVoteStore(db.DB)
	recs, err := store.NextChunk(context.Background(), reconcile.Filter{Mode: reconcile.ModeUnresolved, PollID: pollID}, 0, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Nil(t, recs[0].SubdivisionID)
	assert.Zero(t, recs[0].CurrentLevel)
}

func TestGormStore_LadderAndNearest(t *testing.T) {
	iso, tree := seedTree(t)
	repo := hierarchy.NewRepository(hierarchy.NewGormStore(db.DB))
	ctx := context.Background()

	m, err := repo.ResolveByExtractedID(ctx, iso, "1")
	require.NoError(t, err)
	require.True(t, m.Found())
	assert.Equal(t, hierarchy.TierExactLevel, m.Tier)
	assert.Equal(t, tree[iso+".1"].ID, m.Subdivision.ID)

	row, err := repo.Nearest(ctx, hierarchy.CentroidQuery{Lat: 5, Lon: 8, Prefix: iso + ".", LowestOnly: true})
	require.NoError(t, err)
	assert.Equal(t, iso+".1.2", row.HierarchicalID)

	lowest, err := repo.IsLowest(ctx, tree[iso+".1.1"].ID)
	require.NoError(t, err)
	assert.True(t, lowest)
}
