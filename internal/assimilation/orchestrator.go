package assimilation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/aquatrack/internal/datastore"
	"github.com/tphakala/aquatrack/internal/errors"
)

// AssignmentError pairs an assignment with the error that stopped its run.
// Err keeps the typed cause for callers; only the message is serialized.
type AssignmentError struct {
	AssignmentID uint   `json:"assignment_id"`
	Message      string `json:"message"`
	Err          error  `json:"-"`
}

// BatchResult aggregates the per-assignment results of a batch recompute.
type BatchResult struct {
	BatchID      uint              `json:"batch_id"`
	StartDate    string            `json:"start_date"`
	EndDate      string            `json:"end_date"`
	RowsCreated  int               `json:"rows_created"`
	RowsUpdated  int               `json:"rows_updated"`
	AnchorsFound int               `json:"anchors_found"`
	Skipped      int               `json:"skipped"`
	Results      []*Result         `json:"results"`
	Errors       []AssignmentError `json:"errors,omitempty"`
}

// DeadlineExceeded reports whether any assignment run was cut short by its
// context deadline. The scheduler re-enqueues such jobs instead of treating
// the partial batch as finished.
func (r *BatchResult) DeadlineExceeded() bool {
	for i := range r.Errors {
		if errors.Is(r.Errors[i].Err, context.DeadlineExceeded) {
			return true
		}
	}
	return false
}

// RecomputeBatch recomputes every assignment of the batch whose lifetime
// overlaps [start, end], or only the listed assignmentIDs when given.
// Assignments run concurrently up to the configured worker limit; one
// assignment failing does not stop the others.
func (e *Engine) RecomputeBatch(ctx context.Context, batchID uint, start, end time.Time, assignmentIDs []uint) (*BatchResult, error) {
	if _, err := e.ds.GetBatch(ctx, batchID); err != nil {
		return nil, errors.New(fmt.Errorf("%w: id %d: %w", errors.ErrBatchNotFound, batchID, err)).
			Component("assimilation").
			Category(errors.CategoryNotFound).
			Context("batch_id", batchID).
			Build()
	}

	if end.IsZero() {
		end = today()
	}
	if start.After(end) {
		return nil, errors.New(fmt.Errorf("%w: start %s after end %s", errors.ErrInvalidWindow, formatDate(start), formatDate(end))).
			Component("assimilation").
			Category(errors.CategoryValidation).
			Context("batch_id", batchID).
			Build()
	}

	assignments, err := e.ds.GetAssignmentsForBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	selected := selectAssignments(assignments, formatDate(start), formatDate(end), assignmentIDs)

	result := &BatchResult{
		BatchID:   batchID,
		StartDate: formatDate(start),
		EndDate:   formatDate(end),
	}
	if len(selected) == 0 {
		e.log.Debug("batch recompute found no overlapping assignments",
			"batch_id", batchID, "start", result.StartDate, "end", result.EndDate)
		return result, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.settings.Scheduler.Workers)

	for _, assignment := range selected {
		id := assignment.ID
		g.Go(func() error {
			r, err := e.RecomputeAssignment(gctx, id, start, end)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, AssignmentError{AssignmentID: id, Message: err.Error(), Err: err})
				return nil
			}
			result.Results = append(result.Results, r)
			result.RowsCreated += r.RowsCreated
			result.RowsUpdated += r.RowsUpdated
			result.AnchorsFound += r.AnchorsFound
			if r.Skipped {
				result.Skipped++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.log.Info("batch recompute completed",
		"batch_id", batchID,
		"start", result.StartDate, "end", result.EndDate,
		"assignments", len(selected),
		"rows_created", result.RowsCreated,
		"rows_updated", result.RowsUpdated,
		"failed", len(result.Errors))
	return result, nil
}

// selectAssignments picks the assignments whose lifetime overlaps the window.
// An assignment overlaps when it began on or before the window end and had not
// departed by the window start. Dates compare lexicographically.
func selectAssignments(assignments []datastore.Assignment, startStr, endStr string, ids []uint) []datastore.Assignment {
	wanted := make(map[uint]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var selected []datastore.Assignment
	for i := range assignments {
		a := &assignments[i]
		if len(wanted) > 0 && !wanted[a.ID] {
			continue
		}
		if a.AssignmentDate > endStr {
			continue
		}
		if a.DepartureDate != nil && *a.DepartureDate <= startStr {
			continue
		}
		selected = append(selected, *a)
	}
	return selected
}
