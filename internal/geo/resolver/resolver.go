package resolver

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/EmpoweredVote/EV-Globe/internal/geo/geometry"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/hierarchy"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/locate"
	"github.com/EmpoweredVote/EV-Globe/internal/metrics"
)

// Geometry is the part of geometry.Store the resolver uses.
type Geometry interface {
	geometry.Loader
	Invalidate(key string)
}

type Options struct {
	Fields locate.Fields
	// RefineToLowest moves polygon matches on non-lowest rows down to a
	// lowest-level descendant: by the region's sub-region file when there is
	// one, else by nearest centroid among the descendants.
	RefineToLowest bool
	Cache          ResultCache
}

func DefaultOptions() Options {
	return Options{Fields: locate.DefaultFields(), RefineToLowest: true}
}

// Resolver turns coordinates into a subdivision. It is safe for concurrent
// use.
type Resolver struct {
	geo       Geometry
	countries *locate.CountryLocator
	matcher   *locate.SubdivisionMatcher
	repo      *hierarchy.Repository
	fallback  *CentroidFallback
	cache     ResultCache
	refine    bool
}

func New(geo Geometry, repo *hierarchy.Repository, opts Options) *Resolver {
	return &Resolver{
		geo:       geo,
		countries: locate.NewCountryLocator(geo, opts.Fields),
		matcher:   locate.NewSubdivisionMatcher(geo, opts.Fields),
		repo:      repo,
		fallback:  NewCentroidFallback(repo),
		cache:     opts.Cache,
		refine:    opts.RefineToLowest,
	}
}

// Resolve never fails: every problem ends up as Found=false with a Reason,
// or as a centroid result.
func (r *Resolver) Resolve(ctx context.Context, lat, lon float64) (res Result) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			log.Printf("[resolver] panic resolving (%f, %f): %v", lat, lon, p)
			res = unresolved(FailureInternal)
		}
		observe(res, start)
	}()

	if !ValidCoordinates(lat, lon) {
		return unresolved(FailureInvalidCoordinates)
	}

	key := CacheKey(lat, lon)
	if r.cache != nil {
		if hit, ok := r.cache.Get(ctx, key); ok {
			return hit
		}
	}

	res = r.resolve(ctx, lat, lon)
	if r.cache != nil && res.Reason != FailureHierarchyUnavailable && res.Reason != FailureInternal {
		r.cache.Set(ctx, key, res)
	}
	return res
}

func (r *Resolver) resolve(ctx context.Context, lat, lon float64) Result {
	country, err := r.countries.Locate(lat, lon)
	if err != nil {
		return r.approximate(ctx, lat, lon, "", classify(err))
	}

	ext, err := r.matcher.Match(country, lat, lon)
	if err != nil {
		return r.approximate(ctx, lat, lon, country, classify(err))
	}

	m, err := r.repo.ResolveByExtractedID(ctx, country, ext.Local)
	if err != nil {
		log.Printf("[resolver] Hierarchy lookup failed for %s.%s: %v", country, ext.Local, err)
		return r.approximate(ctx, lat, lon, country, FailureHierarchyUnavailable)
	}
	if !m.Found() {
		log.Printf("[resolver] No subdivision for %s polygon %q (raw %q)", country, ext.Local, ext.Raw)
		return r.approximate(ctx, lat, lon, country, FailureHierarchyMismatch)
	}

	row, method := m.Subdivision, MethodPolygon
	if r.refine {
		switch {
		case m.Tier == hierarchy.TierDeeperLevel:
			// the ladder picked an arbitrary child; choose the right one
			row, method = r.refineUnder(ctx, hierarchy.Join(country, ext.Local), row, lat, lon)
		case !row.IsLowestLevel:
			row, method = r.refineUnder(ctx, row.HierarchicalID, row, lat, lon)
		}
	}

	res := resolved(row, method)
	res.Tier = m.Tier
	return res
}

// refineUnder picks a lowest-level row below parent. When nothing better is
// found the current row is kept as a polygon result.
func (r *Resolver) refineUnder(ctx context.Context, parent string, current *hierarchy.Subdivision, lat, lon float64) (*hierarchy.Subdivision, Method) {
	if ext, err := r.matcher.MatchRegion(parent, lat, lon); err == nil {
		child, err := r.repo.FindByHID(ctx, hierarchy.ChildOf(parent, ext.Local))
		if err == nil {
			return child, MethodPolygon
		}
	}

	child, err := r.repo.Nearest(ctx, hierarchy.CentroidQuery{
		Lat: lat, Lon: lon, Prefix: parent + ".", LowestOnly: true,
	})
	if err == nil && child.ID != current.ID {
		return child, MethodCentroid
	}
	return current, MethodPolygon
}

func (r *Resolver) approximate(ctx context.Context, lat, lon float64, country string, reason Failure) Result {
	row, err := r.fallback.Approximate(ctx, lat, lon, country)
	switch {
	case err == nil:
		res := resolved(row, MethodCentroid)
		res.Reason = reason
		return res
	case errors.Is(err, hierarchy.ErrNotFound):
		log.Printf("[resolver] Subdivision table is empty; (%f, %f) stays unresolved", lat, lon)
		return unresolved(reason)
	default:
		log.Printf("[resolver] Centroid fallback failed for (%f, %f): %v", lat, lon, err)
		return unresolved(FailureHierarchyUnavailable)
	}
}

// InvalidateGeometry drops a cached boundary file (geometry.WorldKey, a
// country code or a region id) and every cached result.
func (r *Resolver) InvalidateGeometry(ctx context.Context, key string) {
	r.geo.Invalidate(key)
	if r.cache != nil {
		r.cache.Flush(ctx)
	}
	log.Printf("[resolver] Invalidated geometry %s", key)
}

// FlushCache drops every cached result, e.g. after lowest-level flags change.
func (r *Resolver) FlushCache(ctx context.Context) {
	if r.cache != nil {
		r.cache.Flush(ctx)
	}
}

func (r *Resolver) Repository() *hierarchy.Repository {
	return r.repo
}

func observe(res Result, start time.Time) {
	metrics.ResolveDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000)
	if res.Found {
		metrics.ResolutionsTotal.WithLabelValues(res.MethodString()).Inc()
		return
	}
	metrics.UnresolvedTotal.WithLabelValues(string(res.Reason)).Inc()
}
