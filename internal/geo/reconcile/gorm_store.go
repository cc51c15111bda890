package reconcile

import (
	"context"
	"strings"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// GormVoteStore reads polls.votes joined with geo.subdivisions.
type GormVoteStore struct {
	db *gorm.DB
}

func NewGormVoteStore(db *gorm.DB) *GormVoteStore {
	return &GormVoteStore{db: db}
}

func (s *GormVoteStore) scoped(ctx context.Context, f Filter) *gorm.DB {
	q := s.db.WithContext(ctx).
		Table("polls.votes AS v").
		Joins("LEFT JOIN geo.subdivisions AS s ON s.id = v.subdivision_id")

	switch f.Mode {
	case ModeUnresolved:
		q = q.Where("v.subdivision_id IS NULL")
	case ModeWrongLevel:
		q = q.Where("v.subdivision_id IS NOT NULL AND (s.id IS NULL OR s.is_lowest_level = false)")
	}
	if f.Country != "" {
		q = q.Where("s.country_code = ?", strings.ToUpper(f.Country))
	}
	if f.PollID != 0 {
		q = q.Where("v.poll_id = ?", f.PollID)
	}
	if f.SkipZeroCoordinates {
		q = q.Where("NOT (v.latitude = 0 AND v.longitude = 0)")
	}
	return q
}

func (s *GormVoteStore) NextChunk(ctx context.Context, f Filter, afterID uint, limit int) ([]Record, error) {
	var recs []Record
	err := s.scoped(ctx, f).
		Select(`v.id, v.latitude, v.longitude, v.subdivision_id,
			COALESCE(s.level, 0) AS current_level,
			COALESCE(s.is_lowest_level, false) AS current_lowest`).
		Where("v.id > ?", afterID).
		Order("v.id").
		Limit(limit).
		Scan(&recs).Error
	return recs, err
}

func (s *GormVoteStore) ApplyUpdates(ctx context.Context, updates []Update) (int64, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	ids := make([]int64, len(updates))
	subs := make([]int64, len(updates))
	for i, u := range updates {
		ids[i] = int64(u.VoteID)
		subs[i] = int64(u.SubdivisionID)
	}

	res := s.db.WithContext(ctx).Exec(`
		UPDATE polls.votes AS v
		SET subdivision_id = u.subdivision_id, updated_at = now()
		FROM (
			SELECT unnest(?::bigint[]) AS id, unnest(?::bigint[]) AS subdivision_id
		) AS u
		WHERE v.id = u.id AND v.subdivision_id IS DISTINCT FROM u.subdivision_id
	`, pq.Array(ids), pq.Array(subs))
	return res.RowsAffected, res.Error
}

func (s *GormVoteStore) WrongLevelCount(ctx context.Context, f Filter) (int64, error) {
	f.Mode = ModeWrongLevel
	var n int64
	err := s.scoped(ctx, f).Count(&n).Error
	return n, err
}

func (s *GormVoteStore) Integrity(ctx context.Context, top int) (IntegrityReport, error) {
	var rep IntegrityReport
	db := s.db.WithContext(ctx)

	counts := []struct {
		dst *int64
		sql string
	}{
		{&rep.TotalVotes, `SELECT COUNT(*) FROM polls.votes`},
		{&rep.UnresolvedVotes, `SELECT COUNT(*) FROM polls.votes WHERE subdivision_id IS NULL`},
		{&rep.WrongLevelVotes, `
			SELECT COUNT(*) FROM polls.votes v
			JOIN geo.subdivisions s ON s.id = v.subdivision_id
			WHERE s.is_lowest_level = false`},
		{&rep.DanglingVotes, `
			SELECT COUNT(*) FROM polls.votes v
			LEFT JOIN geo.subdivisions s ON s.id = v.subdivision_id
			WHERE v.subdivision_id IS NOT NULL AND s.id IS NULL`},
		{&rep.LowestWithoutVotes, `
			SELECT COUNT(*) FROM geo.subdivisions s
			WHERE s.is_lowest_level
			  AND NOT EXISTS (SELECT 1 FROM polls.votes v WHERE v.subdivision_id = s.id)`},
	}
	for _, c := range counts {
		if err := db.Raw(c.sql).Scan(c.dst).Error; err != nil {
			return rep, err
		}
	}

	if err := db.Raw(`
		SELECT s.level, COUNT(*) AS votes
		FROM polls.votes v
		JOIN geo.subdivisions s ON s.id = v.subdivision_id
		GROUP BY s.level
		ORDER BY s.level
	`).Scan(&rep.VotesByLevel).Error; err != nil {
		return rep, err
	}

	if top <= 0 {
		top = 20
	}
	err := db.Raw(`
		SELECT s.id AS subdivision_id, s.hierarchical_id, s.name, s.level, COUNT(*) AS votes
		FROM polls.votes v
		JOIN geo.subdivisions s ON s.id = v.subdivision_id
		WHERE s.is_lowest_level = false
		GROUP BY s.id, s.hierarchical_id, s.name, s.level
		ORDER BY votes DESC, s.id
		LIMIT ?
	`, top).Scan(&rep.TopWrongLevel).Error
	return rep, err
}
