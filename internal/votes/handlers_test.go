package votes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/EmpoweredVote/EV-Globe/internal/geo/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	res   resolver.Result
	calls int
}

func (f *fakeResolver) Resolve(context.Context, float64, float64) resolver.Result {
	f.calls++
	return f.res
}

type fakeStore struct {
	saved      []Vote
	tally      []SubdivisionTally
	unresolved int64
	country    string
	err        error
}

func (f *fakeStore) Upsert(_ context.Context, v *Vote) error {
	if f.err != nil {
		return f.err
	}
	v.ID = uint(len(f.saved) + 1)
	f.saved = append(f.saved, *v)
	return nil
}

func (f *fakeStore) Tally(_ context.Context, _ uint, country string) ([]SubdivisionTally, int64, error) {
	f.country = country
	return f.tally, f.unresolved, f.err
}

func found(id uint) resolver.Result {
	name, level, method := "Madrid", 2, resolver.MethodPolygon
	return resolver.Result{Found: true, SubdivisionID: &id, SubdivisionName: &name, Level: &level, Method: &method, IsLowestLevel: true}
}

func post(t *testing.T, h http.Handler, target, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCastVote_LinksSubdivision(t *testing.T) {
	store := &fakeStore{}
	res := &fakeResolver{res: found(5)}
	h := NewHandler(store, res).Routes()

	rec := post(t, h, "/7/votes", "user-1", `{"option_id": 2, "latitude": 40.4, "longitude": -3.7}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Len(t, store.saved, 1)
	v := store.saved[0]
	assert.Equal(t, uint(7), v.PollID)
	assert.Equal(t, "user-1", v.UserID)
	require.NotNil(t, v.SubdivisionID)
	assert.Equal(t, uint(5), *v.SubdivisionID)

	var got castVoteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Location.Found)
}

func TestCastVote_UnresolvedStoredWithoutLink(t *testing.T) {
	store := &fakeStore{}
	h := NewHandler(store, &fakeResolver{res: resolver.Result{Reason: resolver.FailureNoCountry}}).Routes()

	rec := post(t, h, "/7/votes", "user-1", `{"option_id": 1, "latitude": 0, "longitude": 0}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, store.saved, 1)
	assert.Nil(t, store.saved[0].SubdivisionID)
	assert.Contains(t, rec.Body.String(), `"subdivision_id":null`)
}

func TestCastVote_Validation(t *testing.T) {
	res := &fakeResolver{res: found(1)}
	h := NewHandler(&fakeStore{}, res).Routes()

	cases := map[string]struct {
		target, user, body string
		want               int
	}{
		"no user":      {"/7/votes", "", `{"option_id":1,"latitude":1,"longitude":1}`, http.StatusUnauthorized},
		"bad poll":     {"/abc/votes", "u", `{"option_id":1,"latitude":1,"longitude":1}`, http.StatusBadRequest},
		"no option":    {"/7/votes", "u", `{"latitude":1,"longitude":1}`, http.StatusBadRequest},
		"no coords":    {"/7/votes", "u", `{"option_id":1}`, http.StatusBadRequest},
		"out of range": {"/7/votes", "u", `{"option_id":1,"latitude":91,"longitude":1}`, http.StatusBadRequest},
		"invalid json": {"/7/votes", "u", `{`, http.StatusBadRequest},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			rec := post(t, h, c.target, c.user, c.body)
			assert.Equal(t, c.want, rec.Code)
		})
	}
	assert.Zero(t, res.calls)
}

func TestCastVote_StoreError(t *testing.T) {
	h := NewHandler(&fakeStore{err: errors.New("db down")}, &fakeResolver{res: found(1)}).Routes()

	rec := post(t, h, "/7/votes", "u", `{"option_id":1,"latitude":1,"longitude":1}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBySubdivision(t *testing.T) {
	store := &fakeStore{
		tally: []SubdivisionTally{
			{SubdivisionID: 5, HierarchicalID: "ESP.13", Name: "Madrid", Level: 2, OptionID: 1, Votes: 12},
		},
		unresolved: 3,
	}
	h := NewHandler(store, &fakeResolver{}).Routes()

	req := httptest.NewRequest(http.MethodGet, "/7/votes/by-subdivision?country=esp", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "esp", store.country)
	assert.JSONEq(t, `{
		"poll_id": 7,
		"unresolved": 3,
		"subdivisions": [
			{"subdivision_id": 5, "hierarchical_id": "ESP.13", "name": "Madrid", "level": 2, "option_id": 1, "votes": 12}
		]
	}`, rec.Body.String())
}

func TestBySubdivision_Empty(t *testing.T) {
	h := NewHandler(&fakeStore{}, &fakeResolver{}).Routes()

	req := httptest.NewRequest(http.MethodGet, "/7/votes/by-subdivision", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"subdivisions":[]`)
}
