package hierarchy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps the hierarchy in a slice. It backs offline runs of the
// CLI from a JSON snapshot and the package tests.
type MemoryStore struct {
	mu     sync.RWMutex
	rows   []Subdivision
	nextID uint
}

// NewMemoryStore copies rows in. Rows without an ID get the next free one;
// empty CountryCode, Level and ParentHierarchicalID are derived from the
// hierarchical id.
func NewMemoryStore(rows ...Subdivision) *MemoryStore {
	s := &MemoryStore{}
	s.Add(rows...)
	return s
}

// LoadSnapshot reads a JSON array of subdivisions.
func LoadSnapshot(r io.Reader) (*MemoryStore, error) {
	var rows []Subdivision
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode hierarchy snapshot: %w", err)
	}
	return NewMemoryStore(rows...), nil
}

func (s *MemoryStore) Add(rows ...Subdivision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		if row.ID == 0 {
			s.nextID++
			row.ID = s.nextID
		} else if row.ID > s.nextID {
			s.nextID = row.ID
		}
		fillMissing(&row)
		s.rows = append(s.rows, row)
	}
	sort.Slice(s.rows, func(i, j int) bool { return s.rows[i].ID < s.rows[j].ID })
}

func fillMissing(row *Subdivision) {
	h, err := ParseHID(row.HierarchicalID)
	if err != nil {
		return
	}
	if row.CountryCode == "" {
		row.CountryCode = h.Country
	}
	if row.Level == 0 {
		row.Level = h.Level()
	}
	if p, ok := h.Parent(); ok && row.ParentHierarchicalID == "" {
		row.ParentHierarchicalID = p.String()
	}
	if row.SearchKey == "" {
		name := *row
		name.Derive()
		row.SearchKey = name.SearchKey
	}
}

func (s *MemoryStore) FindExact(_ context.Context, hid string, level int) (*Subdivision, error) {
	return s.first(func(r *Subdivision) bool {
		return r.HierarchicalID == hid && (level == 0 || r.Level == level)
	})
}

func (s *MemoryStore) FindFirstByPrefix(_ context.Context, prefix string, level int) (*Subdivision, error) {
	return s.first(func(r *Subdivision) bool {
		return r.Level == level && strings.HasPrefix(r.HierarchicalID, prefix)
	})
}

func (s *MemoryStore) GetByID(_ context.Context, id uint) (*Subdivision, error) {
	return s.first(func(r *Subdivision) bool { return r.ID == id })
}

func (s *MemoryStore) Nearest(_ context.Context, q CentroidQuery) (*Subdivision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best     *Subdivision
		bestDist float64
	)
	for i := range s.rows {
		r := &s.rows[i]
		if q.Country != "" && r.CountryCode != q.Country {
			continue
		}
		if q.Level > 0 && r.Level != q.Level {
			continue
		}
		if q.Prefix != "" && !strings.HasPrefix(r.HierarchicalID, q.Prefix) {
			continue
		}
		if q.LowestOnly && !r.IsLowestLevel {
			continue
		}
		dLat, dLon := r.CentroidLat-q.Lat, r.CentroidLon-q.Lon
		d := dLat*dLat + dLon*dLon
		// rows are in id order, so strict < keeps the lowest id on ties
		if best == nil || d < bestDist {
			best, bestDist = r, d
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	out := *best
	return &out, nil
}

func (s *MemoryStore) Search(_ context.Context, query string, limit int) ([]Subdivision, error) {
	needle := Fold(query)
	s.mu.RLock()
	var out []Subdivision
	for _, r := range s.rows {
		if strings.Contains(r.SearchKey, needle) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkLowestLevels(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parents := make(map[string]bool, len(s.rows))
	for _, r := range s.rows {
		if r.ParentHierarchicalID != "" {
			parents[r.ParentHierarchicalID] = true
		}
	}
	var changed int64
	for i := range s.rows {
		lowest := !parents[s.rows[i].HierarchicalID]
		if s.rows[i].IsLowestLevel != lowest {
			s.rows[i].IsLowestLevel = lowest
			changed++
		}
	}
	return changed, nil
}

func (s *MemoryStore) Stats(_ context.Context) ([]LevelStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byLevel := map[int]*LevelStats{}
	for _, r := range s.rows {
		st, ok := byLevel[r.Level]
		if !ok {
			st = &LevelStats{Level: r.Level}
			byLevel[r.Level] = st
		}
		st.Total++
		if r.IsLowestLevel {
			st.Lowest++
		}
	}
	out := make([]LevelStats, 0, len(byLevel))
	for _, st := range byLevel {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

func (s *MemoryStore) first(match func(*Subdivision) bool) (*Subdivision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.rows {
		if match(&s.rows[i]) {
			out := s.rows[i]
			return &out, nil
		}
	}
	return nil, ErrNotFound
}
