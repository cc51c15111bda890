package resolver

import (
	"context"
	"errors"

	"github.com/EmpoweredVote/EV-Globe/internal/geo/hierarchy"
)

// CentroidFallback approximates a subdivision by nearest centroid when no
// polygon settles the point.
type CentroidFallback struct {
	repo *hierarchy.Repository
}

func NewCentroidFallback(repo *hierarchy.Repository) *CentroidFallback {
	return &CentroidFallback{repo: repo}
}

// Approximate searches inside one country first: country when known,
// otherwise the country of the nearest level-1 row. Within a scope it prefers
// lowest-level rows. It returns hierarchy.ErrNotFound only when the table is
// empty.
func (f *CentroidFallback) Approximate(ctx context.Context, lat, lon float64, country string) (*hierarchy.Subdivision, error) {
	if country == "" {
		top, err := f.repo.Nearest(ctx, hierarchy.CentroidQuery{Lat: lat, Lon: lon, Level: 1})
		switch {
		case err == nil:
			country = top.CountryCode
		case !errors.Is(err, hierarchy.ErrNotFound):
			return nil, err
		}
	}

	var queries []hierarchy.CentroidQuery
	if country != "" {
		queries = append(queries,
			hierarchy.CentroidQuery{Lat: lat, Lon: lon, Country: country, LowestOnly: true},
			hierarchy.CentroidQuery{Lat: lat, Lon: lon, Country: country},
		)
	}
	queries = append(queries,
		hierarchy.CentroidQuery{Lat: lat, Lon: lon, LowestOnly: true},
		hierarchy.CentroidQuery{Lat: lat, Lon: lon},
	)

	for _, q := range queries {
		row, err := f.repo.Nearest(ctx, q)
		if err == nil {
			return row, nil
		}
		if !errors.Is(err, hierarchy.ErrNotFound) {
			return nil, err
		}
	}
	return nil, hierarchy.ErrNotFound
}
