package geo

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/EmpoweredVote/EV-Globe/internal/geo/reconcile"
	"github.com/google/uuid"
)

// ReconcileJob tracks a background reconciliation run.
type ReconcileJob struct {
	ID          string           `json:"id"`
	Status      string           `json:"status"` // "running", "completed", "cancelled", "failed"
	Filter      reconcile.Filter `json:"filter"`
	ResumeAfter uint             `json:"resume_after"`
	Report      reconcile.Report `json:"report"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`

	cancel context.CancelFunc
	done   chan struct{}
}

func (j *ReconcileJob) snapshot() ReconcileJob {
	out := *j
	out.Report = j.Report.Clone()
	out.cancel = nil
	out.done = nil
	return out
}

// JobManager runs reconciliations in the background, one goroutine each.
type JobManager struct {
	mu      sync.Mutex
	jobs    map[string]*ReconcileJob
	factory func(dryRun bool) *reconcile.Reconciler
}

func NewJobManager(factory func(dryRun bool) *reconcile.Reconciler) *JobManager {
	return &JobManager{jobs: map[string]*ReconcileJob{}, factory: factory}
}

func (m *JobManager) Start(f reconcile.Filter, resumeAfter uint, dryRun bool) ReconcileJob {
	ctx, cancel := context.WithCancel(context.Background())
	job := &ReconcileJob{
		ID:          uuid.New().String(),
		Status:      "running",
		Filter:      f,
		ResumeAfter: resumeAfter,
		StartedAt:   time.Now(),
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	snap := job.snapshot()
	m.mu.Unlock()

	go m.run(ctx, job, dryRun)
	return snap
}

func (m *JobManager) run(ctx context.Context, job *ReconcileJob, dryRun bool) {
	defer close(job.done)
	defer job.cancel()

	rec := m.factory(dryRun)
	rec.OnChunk = func(rep reconcile.Report) {
		m.mu.Lock()
		job.Report = rep
		m.mu.Unlock()
	}

	log.Printf("[Reconcile] job=%s starting mode=%s resume_after=%d dry_run=%v",
		job.ID, job.Filter.Mode, job.ResumeAfter, dryRun)
	rep, err := rec.Run(ctx, job.Filter, job.ResumeAfter)

	now := time.Now()
	m.mu.Lock()
	job.Report = rep
	job.CompletedAt = &now
	switch {
	case err != nil:
		job.Status = "failed"
		job.Error = err.Error()
	case rep.Cancelled:
		job.Status = "cancelled"
	default:
		job.Status = "completed"
	}
	status := job.Status
	m.mu.Unlock()

	log.Printf("[Reconcile] job=%s %s: scanned=%d written=%d last_id=%d",
		job.ID, status, rep.Scanned, rep.Written, rep.LastID)
}

func (m *JobManager) Get(id string) (ReconcileJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ReconcileJob{}, false
	}
	return job.snapshot(), true
}

// List returns every job, newest first.
func (m *JobManager) List() []ReconcileJob {
	m.mu.Lock()
	out := make([]ReconcileJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, job.snapshot())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Cancel asks a running job to stop after its current chunk.
func (m *JobManager) Cancel(id string) (ReconcileJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ReconcileJob{}, false
	}
	job.cancel()
	return job.snapshot(), true
}

// wait blocks until the job finishes or the timeout passes.
func (m *JobManager) wait(id string, timeout time.Duration) bool {
	m.mu.Lock()
	job, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-job.done:
		return true
	case <-time.After(timeout):
		return false
	}
}
