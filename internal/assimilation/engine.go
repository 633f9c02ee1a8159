// Package assimilation reconstructs per-day fish state for batch container
// assignments. It assimilates measured anchor observations (weighings,
// transfers, treatments) with a thermal-growth model between anchors, tagging
// every field of the resulting daily state with its source and a confidence
// score.
package assimilation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tphakala/aquatrack/internal/conf"
	"github.com/tphakala/aquatrack/internal/datastore"
	"github.com/tphakala/aquatrack/internal/errors"
	"github.com/tphakala/aquatrack/internal/logging"
	"github.com/tphakala/aquatrack/internal/masterdata"
	"github.com/tphakala/aquatrack/internal/observability"
)

// Engine runs recomputes for assignments and batches. It is safe for
// concurrent use; two recomputes on the same assignment serialize on a
// per-assignment lock.
type Engine struct {
	ds       datastore.Interface
	master   *masterdata.Resolver
	settings *conf.Settings
	metrics  *observability.Metrics
	log      *slog.Logger
	locks    keyedMutex
}

// New creates an assimilation engine. Metrics may be nil for one-shot CLI
// runs and tests.
func New(ds datastore.Interface, settings *conf.Settings, metrics *observability.Metrics) *Engine {
	return &Engine{
		ds:       ds,
		master:   masterdata.NewResolver(ds),
		settings: settings,
		metrics:  metrics,
		log:      logging.ForService("assimilation"),
	}
}

// MasterData returns the engine's master data resolver so callers can
// invalidate cached models before an admin recompute.
func (e *Engine) MasterData() *masterdata.Resolver {
	return e.master
}

// assignmentContext carries the per-job read-only inputs of one recompute.
type assignmentContext struct {
	assignment *datastore.Assignment
	batch      *datastore.Batch
	container  *datastore.Container
	master     *masterdata.Data
	stageName  string    // current stage of the assignment
	batchStart time.Time // parsed batch start date
}

// dayNumber is 1-based relative to the batch start date.
func (ac *assignmentContext) dayNumber(date time.Time) int {
	return daysBetween(ac.batchStart, date) + 1
}

// buildContext loads and validates everything a recompute needs up front.
func (e *Engine) buildContext(ctx context.Context, assignmentID uint) (*assignmentContext, error) {
	assignment, err := e.ds.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, errors.New(fmt.Errorf("%w: id %d: %w", errors.ErrAssignmentNotFound, assignmentID, err)).
			Component("assimilation").
			Category(errors.CategoryValidation).
			Context("assignment_id", assignmentID).
			Build()
	}

	batch, err := e.ds.GetBatch(ctx, assignment.BatchID)
	if err != nil {
		return nil, errors.New(fmt.Errorf("%w: id %d: %w", errors.ErrBatchNotFound, assignment.BatchID, err)).
			Component("assimilation").
			Category(errors.CategoryValidation).
			Context("batch_id", assignment.BatchID).
			Build()
	}

	container, err := e.ds.GetContainer(ctx, assignment.ContainerID)
	if err != nil {
		return nil, errors.New(err).
			Component("assimilation").
			Category(errors.CategoryDatabase).
			Context("container_id", assignment.ContainerID).
			Build()
	}

	master, err := e.master.ForBatch(ctx, batch)
	if err != nil {
		return nil, errors.New(err).
			Component("assimilation").
			Category(errors.CategoryDatabase).
			Context("batch_id", batch.ID).
			Build()
	}
	if master.TGC == nil {
		return nil, errors.New(fmt.Errorf("%w: batch %d", errors.ErrMissingMasterData, batch.ID)).
			Component("assimilation").
			Category(errors.CategoryMasterData).
			Context("batch_id", batch.ID).
			Build()
	}

	batchStart, err := parseDate(batch.StartDate)
	if err != nil {
		return nil, errors.Newf("batch %d has unparseable start date %q", batch.ID, batch.StartDate).
			Component("assimilation").
			Category(errors.CategoryValidation).
			Build()
	}

	stageName := ""
	if stage, ok := master.StageByID(assignment.LifecycleStageID); ok {
		stageName = stage.Name
	} else if stage, err := e.ds.GetLifecycleStage(ctx, assignment.LifecycleStageID); err == nil {
		stageName = stage.Name
	}

	return &assignmentContext{
		assignment: assignment,
		batch:      batch,
		container:  container,
		master:     master,
		stageName:  stageName,
		batchStart: batchStart,
	}, nil
}

// keyedMutex serializes work per assignment id. Entries are reference
// counted and evicted once the last holder unlocks, so the map does not grow
// with every assignment a long-lived process ever touched.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uint]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the mutex for the given id, creating it on first use, and
// returns the unlock function.
func (k *keyedMutex) lock(id uint) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[uint]*lockEntry)
	}
	e, ok := k.locks[id]
	if !ok {
		e = &lockEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
