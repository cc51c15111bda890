// Package seed turns a boundary bundle into subdivision rows.
package seed

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/EmpoweredVote/EV-Globe/internal/geo/geometry"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/hierarchy"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/locate"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Problem is a boundary file or feature that could not be turned into a row.
type Problem struct {
	Key    string
	Detail string
}

func (p Problem) String() string { return p.Key + ": " + p.Detail }

type Builder struct {
	src    geometry.FSSource
	geo    *geometry.Store
	fields locate.Fields

	rows     map[string]hierarchy.Subdivision
	problems []Problem
}

func NewBuilder(src geometry.FSSource, fields locate.Fields) *Builder {
	return &Builder{
		src:    src,
		geo:    geometry.NewStore(src, geometry.WithMaxEntries(8)),
		fields: fields,
	}
}

// Build reads the world file, then the region and sub-region files of each
// country. An empty countries list means every country in the world file.
// Rows come back sorted by hierarchical id; the first feature wins when two
// share an id.
func (b *Builder) Build(countries []string) ([]hierarchy.Subdivision, []Problem, error) {
	b.rows = map[string]hierarchy.Subdivision{}
	b.problems = nil

	world, err := b.geo.LoadWorld()
	if err != nil {
		return nil, nil, fmt.Errorf("load world file: %w", err)
	}

	want := map[string]bool{}
	for _, c := range countries {
		want[strings.ToUpper(strings.TrimSpace(c))] = true
	}

	code, name := locate.ChainOf(b.fields.Country...), locate.ChainOf(b.fields.CountryName...)
	var selected []string
	for i := range world.Features {
		f := &world.Features[i]
		iso, ok := code.Extract(f.Properties)
		if !ok {
			continue
		}
		iso = strings.ToUpper(iso)
		if len(want) > 0 && !want[iso] {
			continue
		}
		if _, seen := b.rows[iso]; seen {
			continue
		}
		label, _ := name.Extract(f.Properties)
		b.add(iso, label, f.Geometry)
		selected = append(selected, iso)
	}
	for c := range want {
		if _, ok := b.rows[c]; !ok {
			b.problem(c, "not in world file")
		}
	}

	for _, iso := range selected {
		b.country(iso)
	}

	out := make([]hierarchy.Subdivision, 0, len(b.rows))
	for _, r := range b.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HierarchicalID < out[j].HierarchicalID })
	return out, b.problems, nil
}

func (b *Builder) country(iso string) {
	coll, err := b.geo.LoadCountry(iso)
	if err != nil {
		b.loadProblem(iso, err)
		return
	}
	id, name := locate.ChainOf(b.fields.Region.ID...), locate.ChainOf(b.fields.Region.Name...)
	for i := range coll.Features {
		f := &coll.Features[i]
		raw, ok := id.Extract(f.Properties)
		if !ok {
			b.problem(iso, fmt.Sprintf("feature %s has no region id", f.ID))
			continue
		}
		label, _ := name.Extract(f.Properties)
		b.add(hierarchy.Join(iso, hierarchy.LocalCode(iso, raw)), label, f.Geometry)
	}

	regions, err := b.src.Regions(iso)
	if err != nil {
		b.problem(iso, err.Error())
		return
	}
	for _, key := range regions {
		b.region(key)
	}
}

func (b *Builder) region(key string) {
	coll, err := b.geo.LoadRegion(key)
	if err != nil {
		b.loadProblem(key, err)
		return
	}
	iso := hierarchy.CountryOf(key)
	id, name := locate.ChainOf(b.fields.SubRegion.ID...), locate.ChainOf(b.fields.SubRegion.Name...)
	for i := range coll.Features {
		f := &coll.Features[i]
		raw, ok := id.Extract(f.Properties)
		if !ok {
			b.problem(key, fmt.Sprintf("feature %s has no sub-region id", f.ID))
			continue
		}
		label, _ := name.Extract(f.Properties)
		b.add(hierarchy.ChildOf(key, hierarchy.LocalCode(iso, raw)), label, f.Geometry)
	}
}

func (b *Builder) add(hid, name string, g orb.Geometry) {
	if _, dup := b.rows[hid]; dup {
		return
	}
	if name == "" {
		name = hid
	}
	row := hierarchy.Subdivision{HierarchicalID: hid, Name: name}
	if g != nil {
		c, _ := planar.CentroidArea(g)
		row.CentroidLon, row.CentroidLat = c.Lon(), c.Lat()
	}
	row.Derive()
	b.rows[row.HierarchicalID] = row
}

func (b *Builder) loadProblem(key string, err error) {
	if errors.Is(err, geometry.ErrMissingFile) {
		// countries without a region file stay level 1
		return
	}
	b.problem(key, err.Error())
}

func (b *Builder) problem(key, detail string) {
	log.Printf("[seed] %s: %s", key, detail)
	b.problems = append(b.problems, Problem{Key: key, Detail: detail})
}

// MarkLowest sets IsLowestLevel on rows without children in the set.
func MarkLowest(rows []hierarchy.Subdivision) {
	parents := map[string]bool{}
	for _, r := range rows {
		if r.ParentHierarchicalID != "" {
			parents[r.ParentHierarchicalID] = true
		}
	}
	for i := range rows {
		rows[i].IsLowestLevel = !parents[rows[i].HierarchicalID]
	}
}
