package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("subdivision not found")

// CentroidQuery narrows a nearest-centroid search. Zero values mean "any".
type CentroidQuery struct {
	Lat, Lon   float64
	Country    string
	Level      int
	Prefix     string
	LowestOnly bool
}

// Store is the storage behind a Repository. Lookups return ErrNotFound when
// nothing matches; when several rows match, the lowest id wins.
type Store interface {
	FindExact(ctx context.Context, hid string, level int) (*Subdivision, error)
	FindFirstByPrefix(ctx context.Context, prefix string, level int) (*Subdivision, error)
	Nearest(ctx context.Context, q CentroidQuery) (*Subdivision, error)
	GetByID(ctx context.Context, id uint) (*Subdivision, error)
	Search(ctx context.Context, query string, limit int) ([]Subdivision, error)
	MarkLowestLevels(ctx context.Context) (int64, error)
	Stats(ctx context.Context) ([]LevelStats, error)
}

// Tier says which rung of the lookup ladder produced a match.
type Tier int

const (
	TierNotFound Tier = iota
	TierExactLevel
	TierDeeperLevel
	TierAnyLevel
)

func (t Tier) String() string {
	switch t {
	case TierExactLevel:
		return "exact_level"
	case TierDeeperLevel:
		return "deeper_level"
	case TierAnyLevel:
		return "any_level"
	}
	return "not_found"
}

// Match is the outcome of ResolveByExtractedID. Subdivision is nil exactly
// when Tier is TierNotFound.
type Match struct {
	Tier        Tier
	Subdivision *Subdivision
}

func (m Match) Found() bool { return m.Tier != TierNotFound && m.Subdivision != nil }

type Repository struct {
	store Store
}

func NewRepository(store Store) *Repository {
	return &Repository{store: store}
}

// ResolveByExtractedID maps a country code plus the local code read from a
// region polygon onto a row. With hid = "CC.extracted" at level L it tries,
// in order: the row at level L, the first row at level L+1 under hid, and
// the row with that hid at any level.
func (r *Repository) ResolveByExtractedID(ctx context.Context, country, extracted string) (Match, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	extracted = strings.TrimSpace(extracted)
	if country == "" || extracted == "" {
		return Match{Tier: TierNotFound}, nil
	}

	hid := Join(country, extracted)
	level := LevelOf(hid)

	steps := []struct {
		tier Tier
		find func() (*Subdivision, error)
	}{
		{TierExactLevel, func() (*Subdivision, error) { return r.store.FindExact(ctx, hid, level) }},
		{TierDeeperLevel, func() (*Subdivision, error) { return r.store.FindFirstByPrefix(ctx, hid+".", level+1) }},
		{TierAnyLevel, func() (*Subdivision, error) { return r.store.FindExact(ctx, hid, 0) }},
	}
	for _, step := range steps {
		row, err := step.find()
		if err == nil {
			return Match{Tier: step.tier, Subdivision: row}, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Match{Tier: TierNotFound}, fmt.Errorf("resolve %s (%s): %w", hid, step.tier, err)
		}
	}
	return Match{Tier: TierNotFound}, nil
}

// NearestByCentroid returns the row whose centroid is closest to the point by
// squared distance in degrees, optionally limited to one country. Ties go to
// the lowest id.
func (r *Repository) NearestByCentroid(ctx context.Context, lat, lon float64, country string) (*Subdivision, error) {
	return r.Nearest(ctx, CentroidQuery{Lat: lat, Lon: lon, Country: country})
}

func (r *Repository) Nearest(ctx context.Context, q CentroidQuery) (*Subdivision, error) {
	q.Country = strings.ToUpper(strings.TrimSpace(q.Country))
	return r.store.Nearest(ctx, q)
}

// FindByHID returns the row with exactly this hierarchical id.
func (r *Repository) FindByHID(ctx context.Context, hid string) (*Subdivision, error) {
	return r.store.FindExact(ctx, hid, 0)
}

func (r *Repository) Get(ctx context.Context, id uint) (*Subdivision, error) {
	return r.store.GetByID(ctx, id)
}

// IsLowest reports whether the subdivision exists and has no children.
func (r *Repository) IsLowest(ctx context.Context, id uint) (bool, error) {
	row, err := r.store.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return row.IsLowestLevel, nil
}

func (r *Repository) Search(ctx context.Context, query string, limit int) ([]Subdivision, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return r.store.Search(ctx, query, limit)
}

// MarkLowestLevels recomputes IsLowestLevel for every row and returns the
// number of rows whose flag changed.
func (r *Repository) MarkLowestLevels(ctx context.Context) (int64, error) {
	return r.store.MarkLowestLevels(ctx)
}

func (r *Repository) Stats(ctx context.Context) ([]LevelStats, error) {
	return r.store.Stats(ctx)
}
