package reconcile

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"time"

	"github.com/EmpoweredVote/EV-Globe/internal/geo/resolver"
	"github.com/EmpoweredVote/EV-Globe/internal/metrics"
	"golang.org/x/sync/errgroup"
)

const DefaultChunkSize = 500

// Reconciler re-resolves stored votes in chunks and links them to their
// lowest-level subdivision.
type Reconciler struct {
	Resolver  Resolver
	Store     VoteStore
	ChunkSize int
	// Workers bounds concurrent resolutions inside a chunk. Defaults to the
	// number of CPUs.
	Workers int
	DryRun  bool
	// OnChunk receives a snapshot after every committed chunk.
	OnChunk func(Report)
}

func New(res Resolver, store VoteStore) *Reconciler {
	return &Reconciler{Resolver: res, Store: store}
}

// Run processes votes with ID > resumeAfter. Cancelling ctx stops the run
// between chunks; the chunk in flight is still resolved and written, and the
// returned report has Cancelled set with LastID as the next resume point.
// Re-running is safe: writes skip rows that already hold the resolved value.
func (r *Reconciler) Run(ctx context.Context, f Filter, resumeAfter uint) (Report, error) {
	if f.Mode == "" {
		f.Mode = ModeUnresolved
	}
	rep := newReport(f.Mode, r.DryRun)
	rep.LastID = resumeAfter
	chunkSize := r.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	log.Printf("[reconcile] Starting %s run after id %d (chunk=%d workers=%d dry_run=%v)",
		f.Mode, resumeAfter, chunkSize, r.workers(), r.DryRun)

	// work inside a chunk ignores cancellation so a chunk is all or nothing
	work := context.WithoutCancel(ctx)

	after := resumeAfter
	for {
		if ctx.Err() != nil {
			rep.Cancelled = true
			break
		}

		limit := chunkSize
		if f.MaxRecords > 0 {
			remaining := f.MaxRecords - rep.Scanned
			if remaining <= 0 {
				break
			}
			if remaining < limit {
				limit = remaining
			}
		}

		recs, err := r.Store.NextChunk(work, f, after, limit)
		if err != nil {
			return r.finish(rep), fmt.Errorf("load chunk after id %d: %w", after, err)
		}
		if len(recs) == 0 {
			break
		}

		tally, updates := r.processChunk(work, f.Mode, recs)
		if !r.DryRun && len(updates) > 0 {
			n, err := r.Store.ApplyUpdates(work, updates)
			if err != nil {
				return r.finish(rep), fmt.Errorf("write chunk after id %d: %w", after, err)
			}
			rep.Written += n
		}

		rep.merge(tally)
		after = recs[len(recs)-1].ID
		rep.LastID = after
		rep.Chunks++
		if r.OnChunk != nil {
			r.OnChunk(rep.Clone())
		}
		if len(recs) < limit {
			break
		}
	}

	rep = r.finish(rep)
	log.Printf("[reconcile] Done: scanned=%d resolved=%d corrected=%d unresolved=%d still_wrong=%d written=%d last_id=%d cancelled=%v",
		rep.Scanned, rep.Resolved, rep.CorrectedWrongLevel, rep.StillUnresolved, rep.StillWrongLevel, rep.Written, rep.LastID, rep.Cancelled)
	return rep, nil
}

func (r *Reconciler) finish(rep Report) Report {
	now := time.Now()
	rep.FinishedAt = &now
	return rep
}

func (r *Reconciler) workers() int {
	if r.Workers > 0 {
		return r.Workers
	}
	return runtime.NumCPU()
}

func (r *Reconciler) processChunk(ctx context.Context, mode Mode, recs []Record) (Report, []Update) {
	results := make([]resolver.Result, len(recs))

	var g errgroup.Group
	g.SetLimit(r.workers())
	for i := range recs {
		g.Go(func() error {
			results[i] = r.Resolver.Resolve(ctx, recs[i].Latitude, recs[i].Longitude)
			return nil
		})
	}
	_ = g.Wait()

	tally := newReport(mode, r.DryRun)
	var updates []Update
	for i, rec := range recs {
		res := results[i]
		tally.Scanned++
		if res.Found {
			tally.ByMethod[res.MethodString()]++
		}
		if res.Reason != "" {
			tally.ByFailure[string(res.Reason)]++
		}

		out, up := classify(rec, res, mode)
		metrics.ReconcileRecordsTotal.WithLabelValues(string(out)).Inc()
		switch out {
		case outcomeResolved:
			tally.Resolved++
		case outcomeUnresolved:
			tally.StillUnresolved++
		case outcomeCorrected:
			tally.CorrectedWrongLevel++
		case outcomeStillWrong:
			tally.StillWrongLevel++
		case outcomeReassigned:
			tally.Reassigned++
		default:
			tally.Unchanged++
		}
		if up != nil {
			updates = append(updates, *up)
		}
	}
	return tally, updates
}

type outcome string

const (
	outcomeResolved   outcome = "resolved"
	outcomeUnresolved outcome = "unresolved"
	outcomeCorrected  outcome = "corrected_wrong_level"
	outcomeStillWrong outcome = "still_wrong_level"
	outcomeReassigned outcome = "reassigned"
	outcomeUnchanged  outcome = "unchanged"
)

// classify decides what a fresh resolution means for a stored vote. An
// existing lowest-level link is only replaced by a polygon result in ModeAll.
func classify(rec Record, res resolver.Result, mode Mode) (outcome, *Update) {
	linked := rec.SubdivisionID != nil
	wrongLevel := linked && !rec.CurrentLowest

	if !res.Found {
		switch {
		case !linked:
			return outcomeUnresolved, nil
		case wrongLevel:
			return outcomeStillWrong, nil
		}
		return outcomeUnchanged, nil
	}

	target := *res.SubdivisionID
	up := &Update{VoteID: rec.ID, SubdivisionID: target}
	switch {
	case !linked:
		return outcomeResolved, up
	case *rec.SubdivisionID == target:
		if wrongLevel {
			return outcomeStillWrong, nil
		}
		return outcomeUnchanged, nil
	case wrongLevel:
		if res.IsLowestLevel {
			return outcomeCorrected, up
		}
		return outcomeStillWrong, nil
	case mode == ModeAll && res.MethodString() == string(resolver.MethodPolygon):
		return outcomeReassigned, up
	}
	return outcomeUnchanged, nil
}
