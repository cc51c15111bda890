package votes

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists votes. A user has at most one vote per poll; casting again
// replaces it.
type Store interface {
	Upsert(ctx context.Context, v *Vote) error
	Tally(ctx context.Context, pollID uint, country string) ([]SubdivisionTally, int64, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Upsert(ctx context.Context, v *Vote) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "poll_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"option_id", "latitude", "longitude", "subdivision_id", "updated_at"}),
	}).Create(v).Error
}

// Tally counts votes per subdivision and option. The second value is the
// number of votes not linked to any subdivision.
func (s *GormStore) Tally(ctx context.Context, pollID uint, country string) ([]SubdivisionTally, int64, error) {
	db := s.db.WithContext(ctx)

	q := db.Table("polls.votes AS v").
		Select("s.id AS subdivision_id, s.hierarchical_id, s.name, s.level, v.option_id, COUNT(*) AS votes").
		Joins("JOIN geo.subdivisions AS s ON s.id = v.subdivision_id").
		Where("v.poll_id = ?", pollID)
	if country != "" {
		q = q.Where("s.country_code = ?", strings.ToUpper(country))
	}

	var rows []SubdivisionTally
	err := q.Group("s.id, s.hierarchical_id, s.name, s.level, v.option_id").
		Order("s.hierarchical_id, v.option_id").
		Scan(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	var unresolved int64
	err = db.Model(&Vote{}).
		Where("poll_id = ? AND subdivision_id IS NULL", pollID).
		Count(&unresolved).Error
	return rows, unresolved, err
}
