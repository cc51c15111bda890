package hierarchy

import (
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Subdivision is one node of the country -> region -> sub-region tree.
type Subdivision struct {
	ID                   uint           `gorm:"primaryKey" json:"id"`
	HierarchicalID       string         `gorm:"size:64;uniqueIndex;not null" json:"hierarchical_id"`
	CountryCode          string         `gorm:"size:3;index;not null" json:"country_code"`
	Level                int            `gorm:"index;not null" json:"level"`
	ParentHierarchicalID string         `gorm:"size:64;index" json:"parent_hierarchical_id,omitempty"`
	Name                 string         `gorm:"not null" json:"name"`
	NameLocal            string         `json:"name_local,omitempty"`
	NameVariants         pq.StringArray `gorm:"type:text[]" json:"name_variants,omitempty"`
	SearchKey            string         `gorm:"index" json:"-"`
	CentroidLat          float64        `json:"centroid_lat"`
	CentroidLon          float64        `json:"centroid_lon"`
	IsLowestLevel        bool           `gorm:"index;not null;default:false" json:"is_lowest_level"`
	CreatedAt            time.Time      `json:"-"`
	UpdatedAt            time.Time      `json:"-"`
}

func (Subdivision) TableName() string {
	return "geo.subdivisions"
}

// Derive fills the columns that follow from HierarchicalID and the names.
func (s *Subdivision) Derive() {
	s.HierarchicalID = strings.TrimSpace(s.HierarchicalID)
	if h, err := ParseHID(s.HierarchicalID); err == nil {
		s.HierarchicalID = h.String()
		s.CountryCode = h.Country
		s.Level = h.Level()
		if p, ok := h.Parent(); ok {
			s.ParentHierarchicalID = p.String()
		} else {
			s.ParentHierarchicalID = ""
		}
	}

	keys := []string{Fold(s.Name)}
	if s.NameLocal != "" {
		keys = append(keys, Fold(s.NameLocal))
	}
	for _, v := range s.NameVariants {
		keys = append(keys, Fold(v))
	}
	s.SearchKey = strings.Join(keys, "|")
}

func (s *Subdivision) BeforeSave(tx *gorm.DB) error {
	s.Derive()
	return nil
}

// LevelStats is the per-level row count reported by Stats.
type LevelStats struct {
	Level  int   `json:"level"`
	Total  int64 `json:"total"`
	Lowest int64 `json:"lowest"`
}
