package hierarchy

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore reads geo.subdivisions through gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FindExact(ctx context.Context, hid string, level int) (*Subdivision, error) {
	q := s.db.WithContext(ctx).Where("hierarchical_id = ?", hid)
	if level > 0 {
		q = q.Where("level = ?", level)
	}
	var row Subdivision
	if err := q.Order("id").Take(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}

func (s *GormStore) FindFirstByPrefix(ctx context.Context, prefix string, level int) (*Subdivision, error) {
	var row Subdivision
	err := s.db.WithContext(ctx).
		Where("hierarchical_id LIKE ? AND level = ?", escapeLike(prefix)+"%", level).
		Order("id").
		Take(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}

func (s *GormStore) Nearest(ctx context.Context, q CentroidQuery) (*Subdivision, error) {
	tx := s.db.WithContext(ctx).Model(&Subdivision{})
	if q.Country != "" {
		tx = tx.Where("country_code = ?", q.Country)
	}
	if q.Level > 0 {
		tx = tx.Where("level = ?", q.Level)
	}
	if q.Prefix != "" {
		tx = tx.Where("hierarchical_id LIKE ?", escapeLike(q.Prefix)+"%")
	}
	if q.LowestOnly {
		tx = tx.Where("is_lowest_level = ?", true)
	}

	// Squared degrees: the ranking only has to be stable, not geodesic.
	var row Subdivision
	err := tx.Clauses(clause.OrderBy{Expression: clause.Expr{
		SQL:                "(centroid_lat - ?) * (centroid_lat - ?) + (centroid_lon - ?) * (centroid_lon - ?), id",
		Vars:               []interface{}{q.Lat, q.Lat, q.Lon, q.Lon},
		WithoutParentheses: true,
	}}).Take(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}

func (s *GormStore) GetByID(ctx context.Context, id uint) (*Subdivision, error) {
	var row Subdivision
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}

func (s *GormStore) Search(ctx context.Context, query string, limit int) ([]Subdivision, error) {
	var rows []Subdivision
	err := s.db.WithContext(ctx).
		Where("search_key LIKE ?", "%"+escapeLike(Fold(query))+"%").
		Order("level, name, id").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) MarkLowestLevels(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Exec(`
		UPDATE geo.subdivisions AS s
		SET is_lowest_level = x.lowest, updated_at = now()
		FROM (
			SELECT p.id, NOT EXISTS (
				SELECT 1 FROM geo.subdivisions c
				WHERE c.parent_hierarchical_id = p.hierarchical_id
			) AS lowest
			FROM geo.subdivisions p
		) AS x
		WHERE s.id = x.id AND s.is_lowest_level IS DISTINCT FROM x.lowest
	`)
	return res.RowsAffected, res.Error
}

func (s *GormStore) Stats(ctx context.Context) ([]LevelStats, error) {
	var out []LevelStats
	err := s.db.WithContext(ctx).
		Model(&Subdivision{}).
		Select("level, COUNT(*) AS total, COUNT(*) FILTER (WHERE is_lowest_level) AS lowest").
		Group("level").
		Order("level").
		Scan(&out).Error
	return out, err
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
