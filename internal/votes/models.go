package votes

import "time"

// Vote is one user's answer to a poll, pinned to the subdivision it was cast
// from. SubdivisionID stays nil until the location resolves.
type Vote struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	PollID        uint      `gorm:"not null;uniqueIndex:idx_votes_poll_user" json:"poll_id"`
	UserID        string    `gorm:"size:64;not null;uniqueIndex:idx_votes_poll_user" json:"user_id"`
	OptionID      uint      `gorm:"not null" json:"option_id"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	SubdivisionID *uint     `gorm:"index" json:"subdivision_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Vote) TableName() string {
	return "polls.votes"
}

// SubdivisionTally is one row of the per-subdivision aggregation.
type SubdivisionTally struct {
	SubdivisionID  uint   `json:"subdivision_id"`
	HierarchicalID string `json:"hierarchical_id"`
	Name           string `json:"name"`
	Level          int    `json:"level"`
	OptionID       uint   `json:"option_id"`
	Votes          int64  `json:"votes"`
}
