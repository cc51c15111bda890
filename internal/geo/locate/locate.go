package locate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/EmpoweredVote/EV-Globe/internal/geo/geometry"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/hierarchy"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

var (
	ErrNoCountry          = errors.New("point is not inside any country")
	ErrNoEnclosingPolygon = errors.New("no region polygon contains the point")
)

// Contains tests the point against the feature's bounding box first and only
// then runs the polygon test.
func Contains(f *geometry.Feature, pt orb.Point) bool {
	if !f.Bound.Contains(pt) {
		return false
	}
	switch g := f.Geometry.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, pt)
	}
	return false
}

// CountryLocator finds the country whose outline contains a point.
type CountryLocator struct {
	geo  geometry.Loader
	code Chain
}

func NewCountryLocator(geo geometry.Loader, fields Fields) *CountryLocator {
	return &CountryLocator{geo: geo, code: ChainOf(fields.Country...)}
}

// Locate returns the ISO3 code of the first world feature containing the
// point that carries a usable code. Errors wrap geometry.ErrNotFound when the
// world file is unusable, or ErrNoCountry.
func (l *CountryLocator) Locate(lat, lon float64) (string, error) {
	world, err := l.geo.LoadWorld()
	if err != nil {
		return "", err
	}
	pt := orb.Point{lon, lat}
	if !world.Bound.Contains(pt) {
		return "", ErrNoCountry
	}
	for i := range world.Features {
		f := &world.Features[i]
		if !Contains(f, pt) {
			continue
		}
		if code, ok := l.code.Extract(f.Properties); ok {
			return strings.ToUpper(code), nil
		}
	}
	return "", ErrNoCountry
}

// Extracted is what a region polygon says about itself.
type Extracted struct {
	// Local is Raw normalised to the part of a hierarchical id below the
	// country, e.g. "1" or "1.2".
	Local     string
	Raw       string
	Name      string
	FeatureID string
}

// SubdivisionMatcher finds the region polygon containing a point inside a
// known country. It never touches the database.
type SubdivisionMatcher struct {
	geo        geometry.Loader
	regionID   Chain
	regionName Chain
	subID      Chain
	subName    Chain
}

func NewSubdivisionMatcher(geo geometry.Loader, fields Fields) *SubdivisionMatcher {
	return &SubdivisionMatcher{
		geo:        geo,
		regionID:   ChainOf(fields.Region.ID...),
		regionName: ChainOf(fields.Region.Name...),
		subID:      ChainOf(fields.SubRegion.ID...),
		subName:    ChainOf(fields.SubRegion.Name...),
	}
}

// Match reads the country's region file and returns the code of the first
// polygon containing the point.
func (m *SubdivisionMatcher) Match(country string, lat, lon float64) (Extracted, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	coll, err := m.geo.LoadCountry(country)
	if err != nil {
		return Extracted{}, err
	}
	return m.first(coll, country, m.regionID, m.regionName, lat, lon)
}

// MatchRegion does the same against the sub-region file of one region,
// keyed by the region's hierarchical id.
func (m *SubdivisionMatcher) MatchRegion(parentHID string, lat, lon float64) (Extracted, error) {
	coll, err := m.geo.LoadRegion(parentHID)
	if err != nil {
		return Extracted{}, err
	}
	return m.first(coll, hierarchy.CountryOf(parentHID), m.subID, m.subName, lat, lon)
}

func (m *SubdivisionMatcher) first(coll *geometry.Collection, country string, id, name Chain, lat, lon float64) (Extracted, error) {
	pt := orb.Point{lon, lat}
	if !coll.Bound.Contains(pt) {
		return Extracted{}, fmt.Errorf("%s: %w", coll.Key, ErrNoEnclosingPolygon)
	}
	for i := range coll.Features {
		f := &coll.Features[i]
		if !Contains(f, pt) {
			continue
		}
		raw, ok := id.Extract(f.Properties)
		if !ok {
			continue
		}
		out := Extracted{
			Local:     hierarchy.LocalCode(country, raw),
			Raw:       raw,
			FeatureID: f.ID,
		}
		out.Name, _ = name.Extract(f.Properties)
		return out, nil
	}
	return Extracted{}, fmt.Errorf("%s: %w", coll.Key, ErrNoEnclosingPolygon)
}
