package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/EmpoweredVote/EV-Globe/internal/geo/resolver"
)

// Mode selects which votes a run looks at.
type Mode string

const (
	ModeUnresolved Mode = "unresolved"
	ModeWrongLevel Mode = "wrong-level"
	ModeAll        Mode = "all"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeUnresolved, ModeWrongLevel, ModeAll:
		return m, nil
	case "":
		return ModeUnresolved, nil
	}
	return "", fmt.Errorf("unknown mode %q (want unresolved, wrong-level or all)", s)
}

// Filter narrows a run. Country only applies to votes that already point at
// a subdivision.
type Filter struct {
	Mode                Mode   `json:"mode"`
	Country             string `json:"country,omitempty"`
	PollID              uint   `json:"poll_id,omitempty"`
	SkipZeroCoordinates bool   `json:"skip_zero_coordinates"`
	MaxRecords          int    `json:"max_records,omitempty"`
}

// Record is a vote as seen by reconciliation, joined with its current
// subdivision. CurrentLevel is 0 and CurrentLowest false when the vote is
// unlinked or its subdivision no longer exists.
type Record struct {
	ID            uint
	Latitude      float64
	Longitude     float64
	SubdivisionID *uint
	CurrentLevel  int
	CurrentLowest bool
}

type Update struct {
	VoteID        uint
	SubdivisionID uint
}

// VoteStore is the vote table behind a Reconciler.
type VoteStore interface {
	// NextChunk returns up to limit records with ID > afterID in ID order.
	NextChunk(ctx context.Context, f Filter, afterID uint, limit int) ([]Record, error)
	// ApplyUpdates writes all updates at once and skips rows that already
	// hold the target value. It returns the number of rows changed.
	ApplyUpdates(ctx context.Context, updates []Update) (int64, error)
	// WrongLevelCount counts linked votes whose subdivision is missing or
	// not lowest-level.
	WrongLevelCount(ctx context.Context, f Filter) (int64, error)
	Integrity(ctx context.Context, top int) (IntegrityReport, error)
}

// Resolver is satisfied by *resolver.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, lat, lon float64) resolver.Result
}

// Report summarises a run. LastID is the resume point: every vote with a
// smaller or equal ID in the filter has been processed and written.
type Report struct {
	Mode                Mode           `json:"mode"`
	DryRun              bool           `json:"dry_run"`
	Scanned             int            `json:"scanned"`
	Resolved            int            `json:"resolved"`
	StillUnresolved     int            `json:"still_unresolved"`
	CorrectedWrongLevel int            `json:"corrected_wrong_level"`
	StillWrongLevel     int            `json:"still_wrong_level"`
	Reassigned          int            `json:"reassigned"`
	Unchanged           int            `json:"unchanged"`
	Written             int64          `json:"written"`
	ByMethod            map[string]int `json:"by_method"`
	ByFailure           map[string]int `json:"by_failure"`
	Chunks              int            `json:"chunks"`
	LastID              uint           `json:"last_id"`
	Cancelled           bool           `json:"cancelled"`
	StartedAt           time.Time      `json:"started_at"`
	FinishedAt          *time.Time     `json:"finished_at,omitempty"`
}

func newReport(mode Mode, dryRun bool) Report {
	return Report{
		Mode:      mode,
		DryRun:    dryRun,
		ByMethod:  map[string]int{},
		ByFailure: map[string]int{},
		StartedAt: time.Now(),
	}
}

// Clone copies the maps so the result can be read while a run continues.
func (r Report) Clone() Report {
	out := r
	out.ByMethod = make(map[string]int, len(r.ByMethod))
	for k, v := range r.ByMethod {
		out.ByMethod[k] = v
	}
	out.ByFailure = make(map[string]int, len(r.ByFailure))
	for k, v := range r.ByFailure {
		out.ByFailure[k] = v
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		out.FinishedAt = &t
	}
	return out
}

func (r *Report) merge(o Report) {
	r.Scanned += o.Scanned
	r.Resolved += o.Resolved
	r.StillUnresolved += o.StillUnresolved
	r.CorrectedWrongLevel += o.CorrectedWrongLevel
	r.StillWrongLevel += o.StillWrongLevel
	r.Reassigned += o.Reassigned
	r.Unchanged += o.Unchanged
	for k, v := range o.ByMethod {
		r.ByMethod[k] += v
	}
	for k, v := range o.ByFailure {
		r.ByFailure[k] += v
	}
}

// IntegrityReport describes how well votes follow the lowest-level rule.
type IntegrityReport struct {
	TotalVotes         int64              `json:"total_votes"`
	UnresolvedVotes    int64              `json:"unresolved_votes"`
	WrongLevelVotes    int64              `json:"wrong_level_votes"`
	DanglingVotes      int64              `json:"dangling_votes"`
	VotesByLevel       []LevelCount       `json:"votes_by_level"`
	TopWrongLevel      []SubdivisionVotes `json:"top_wrong_level"`
	LowestWithoutVotes int64              `json:"lowest_without_votes"`
}

type LevelCount struct {
	Level int   `json:"level"`
	Votes int64 `json:"votes"`
}

type SubdivisionVotes struct {
	SubdivisionID  uint   `json:"subdivision_id"`
	HierarchicalID string `json:"hierarchical_id"`
	Name           string `json:"name"`
	Level          int    `json:"level"`
	Votes          int64  `json:"votes"`
}
