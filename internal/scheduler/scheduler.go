// Package scheduler turns feeding, sampling, and admin triggers into queued
// recompute jobs and runs them on a bounded worker pool. Duplicate jobs for
// the same (batch, assignments, window) collapse while queued; two jobs on the
// same assignment serialize inside the engine.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/aquatrack/internal/assimilation"
	"github.com/tphakala/aquatrack/internal/conf"
	"github.com/tphakala/aquatrack/internal/datastore"
	"github.com/tphakala/aquatrack/internal/errors"
	"github.com/tphakala/aquatrack/internal/logging"
	"github.com/tphakala/aquatrack/internal/observability"
)

// jobTimeout bounds one batch recompute; on expiry the open transaction rolls
// back and the job is re-enqueued.
const jobTimeout = 10 * time.Minute

// Job is one queued batch recompute.
type Job struct {
	ID            string
	BatchID       uint
	AssignmentIDs []uint
	Start         time.Time
	End           time.Time

	key string
}

// Scheduler owns the job queue and worker pool.
type Scheduler struct {
	engine   *assimilation.Engine
	ds       datastore.Interface
	settings *conf.Settings
	metrics  *observability.Metrics
	log      *slog.Logger

	queue   chan Job
	timeout time.Duration
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending map[string]string // dedup key -> task id of the queued job
}

// New creates a scheduler around the engine. Metrics may be nil.
func New(engine *assimilation.Engine, ds datastore.Interface, settings *conf.Settings, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		engine:   engine,
		ds:       ds,
		settings: settings,
		metrics:  metrics,
		log:      logging.ForService("scheduler"),
		queue:    make(chan Job, settings.Scheduler.QueueSize),
		timeout:  jobTimeout,
		pending:  make(map[string]string),
	}
}

// Start launches the worker pool. Call Stop to drain and shut down.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	workers := s.settings.Scheduler.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	s.log.Info("scheduler started", "workers", workers, "queue_size", cap(s.queue))
}

// Stop cancels running jobs and waits for the workers to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.queue:
			s.run(ctx, job)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	// Clear the dedup slot before running so a trigger firing mid-run queues
	// a fresh job instead of being swallowed.
	s.mu.Lock()
	delete(s.pending, job.key)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.QueueDepth.Dec()
	}

	jobCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Master data may have changed since it was cached; the job re-reads it.
	s.engine.MasterData().Invalidate(job.BatchID)

	result, err := s.engine.RecomputeBatch(jobCtx, job.BatchID, job.Start, job.End, job.AssignmentIDs)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			s.requeue(job)
			return
		}
		s.log.Error("recompute job failed",
			"task_id", job.ID, "batch_id", job.BatchID, "error", err)
		return
	}
	// Per-assignment errors never fail the batch, so a mid-window timeout
	// surfaces through the result rather than the returned error.
	if result.DeadlineExceeded() && ctx.Err() == nil {
		s.requeue(job)
		return
	}
	s.log.Info("recompute job finished",
		"task_id", job.ID,
		"batch_id", job.BatchID,
		"assignments", len(result.Results),
		"rows_created", result.RowsCreated,
		"rows_updated", result.RowsUpdated,
		"failed", len(result.Errors))
}

// requeue puts a timed-out job back on the queue under a fresh task id.
func (s *Scheduler) requeue(job Job) {
	s.log.Warn("recompute job timed out, re-enqueueing",
		"task_id", job.ID, "batch_id", job.BatchID)
	if _, _, err := s.enqueue(job.BatchID, job.AssignmentIDs, job.Start, job.End); err != nil {
		s.log.Error("re-enqueue failed", "task_id", job.ID, "error", err)
	}
}

// EnqueueRecompute queues a batch recompute and returns its task id. When an
// identical job is already waiting, the existing task id is returned and
// deduplicated reports true.
func (s *Scheduler) EnqueueRecompute(batchID uint, assignmentIDs []uint, start, end time.Time) (taskID string, deduplicated bool, err error) {
	return s.enqueue(batchID, assignmentIDs, start, end)
}

func (s *Scheduler) enqueue(batchID uint, assignmentIDs []uint, start, end time.Time) (string, bool, error) {
	// A zero end means today; pin it so the job deduplicates against an
	// explicit end of today.
	if end.IsZero() {
		end = time.Now().UTC().Truncate(24 * time.Hour)
	}
	key := jobKey(batchID, assignmentIDs, start, end)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.pending[key]; ok {
		if s.metrics != nil {
			s.metrics.JobsDeduplicated.Inc()
		}
		s.log.Debug("duplicate recompute collapsed", "task_id", existing, "batch_id", batchID)
		return existing, true, nil
	}

	job := Job{
		ID:            uuid.NewString(),
		BatchID:       batchID,
		AssignmentIDs: assignmentIDs,
		Start:         start,
		End:           end,
		key:           key,
	}

	select {
	case s.queue <- job:
	default:
		return "", false, errors.Newf("recompute queue full, dropping job for batch %d", batchID).
			Component("scheduler").
			Category(errors.CategoryScheduler).
			Context("batch_id", batchID).
			Build()
	}

	s.pending[key] = job.ID
	if s.metrics != nil {
		s.metrics.JobsEnqueued.Inc()
		s.metrics.QueueDepth.Inc()
	}
	s.log.Debug("recompute job enqueued",
		"task_id", job.ID, "batch_id", batchID,
		"start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly))
	return job.ID, false, nil
}

// OnFeedingEventCreated reacts to a new feeding event by recomputing the
// assignment's batch over the rolling window. Errors are logged, never
// returned: creating a feeding event must not fail on downstream assimilation.
func (s *Scheduler) OnFeedingEventCreated(ctx context.Context, assignmentID uint) {
	assignment, err := s.ds.GetAssignment(ctx, assignmentID)
	if err != nil {
		s.log.Warn("feeding hook: assignment lookup failed", "assignment_id", assignmentID, "error", err)
		return
	}
	if !assignment.IsActive() {
		return
	}
	s.enqueueRollingWindow(assignment.BatchID)
}

// OnGrowthSampleCreated reacts to a new growth sample: it advances
// last_weighing_date on the batch's active assignments, then recomputes the
// batch over the rolling window. The anchor detector re-reads samples from
// storage, so the enqueue is the only invalidation needed.
func (s *Scheduler) OnGrowthSampleCreated(ctx context.Context, batchID uint, date string) {
	assignments, err := s.ds.GetActiveAssignmentsForBatch(ctx, batchID)
	if err != nil {
		s.log.Warn("growth sample hook: assignment lookup failed", "batch_id", batchID, "error", err)
		return
	}
	var stale []uint
	for i := range assignments {
		a := &assignments[i]
		if a.LastWeighingDate != nil && *a.LastWeighingDate >= date {
			continue
		}
		stale = append(stale, a.ID)
	}
	if err := s.ds.UpdateLastWeighingDate(ctx, stale, date); err != nil {
		s.log.Warn("growth sample hook: last weighing update failed",
			"batch_id", batchID, "error", err)
	}
	s.enqueueRollingWindow(batchID)
}

func (s *Scheduler) enqueueRollingWindow(batchID uint) {
	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -s.settings.Scheduler.RecomputeWindowDays)
	if _, _, err := s.enqueue(batchID, nil, start, end); err != nil {
		s.log.Warn("rolling window enqueue failed", "batch_id", batchID, "error", err)
	}
}

func jobKey(batchID uint, assignmentIDs []uint, start, end time.Time) string {
	return fmt.Sprintf("%d|%v|%s|%s",
		batchID, assignmentIDs,
		start.Format(time.DateOnly), end.Format(time.DateOnly))
}
