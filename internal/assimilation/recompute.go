package assimilation

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/aquatrack/internal/datastore"
	"github.com/tphakala/aquatrack/internal/errors"
)

// DayError records a non-fatal failure of a single day inside the loop.
type DayError struct {
	Date    string `json:"date"`
	Message string `json:"message"`
}

// Result summarizes one per-assignment recompute run.
type Result struct {
	AssignmentID uint       `json:"assignment_id"`
	StartDate    string     `json:"start_date"`
	EndDate      string     `json:"end_date"`
	RowsCreated  int        `json:"rows_created"`
	RowsUpdated  int        `json:"rows_updated"`
	AnchorsFound int        `json:"anchors_found"`
	Errors       []DayError `json:"errors,omitempty"`
	Skipped      bool       `json:"skipped"`
}

// RecomputeAssignment reconstructs daily states for one assignment over
// [start, end]. A zero end defaults to today. The window is clamped to the
// batch start, the assignment date, and the day before departure; an empty
// clamped window returns a skipped result.
//
// All upserts run inside a single transaction so readers observe either the
// whole new window or the prior state. Per-day computation errors are
// recorded and the loop continues; only context cancellation and transaction
// failures roll the window back.
func (e *Engine) RecomputeAssignment(ctx context.Context, assignmentID uint, start, end time.Time) (*Result, error) {
	unlock := e.locks.lock(assignmentID)
	defer unlock()

	started := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.RecomputeDuration.Observe(time.Since(started).Seconds())
		}
	}()

	ac, err := e.buildContext(ctx, assignmentID)
	if err != nil {
		e.countRun("failed")
		return nil, err
	}

	if end.IsZero() {
		end = today()
	}
	if start.After(end) {
		e.countRun("failed")
		return nil, errors.New(fmt.Errorf("%w: start %s after end %s", errors.ErrInvalidWindow, formatDate(start), formatDate(end))).
			Component("assimilation").
			Category(errors.CategoryValidation).
			Context("assignment_id", assignmentID).
			Build()
	}

	// Clamp the window to the life of the assignment within the batch.
	start = maxTime(start, ac.batchStart)
	assignmentStart, err := parseDate(ac.assignment.AssignmentDate)
	if err == nil {
		start = maxTime(start, assignmentStart)
	}

	// Ownership transfers on the departure day to the next assignment;
	// computing it here would double-count biomass.
	var departure *time.Time
	if ac.assignment.DepartureDate != nil {
		dep, err := parseDate(*ac.assignment.DepartureDate)
		if err == nil {
			departure = &dep
			if !end.Before(dep) {
				end = addDays(dep, -1)
			}
		}
	}

	result := &Result{
		AssignmentID: assignmentID,
		StartDate:    formatDate(start),
		EndDate:      formatDate(end),
	}

	if start.After(end) {
		result.Skipped = true
		e.countRun("skipped")
		e.log.Debug("recompute skipped, empty window after clamping",
			"assignment_id", assignmentID,
			"start", formatDate(start), "end", formatDate(end))
		return result, nil
	}

	anchors, err := e.detectAnchors(ctx, ac, result.StartDate, result.EndDate)
	if err != nil {
		e.countRun("failed")
		return nil, errors.New(err).
			Component("assimilation").
			Category(errors.CategoryDatabase).
			Context("assignment_id", assignmentID).
			Build()
	}
	result.AnchorsFound = len(anchors)

	// Initial state: the last stored day before the window, else bootstrap.
	var state dayState
	var boot *bootstrapWeight
	previous, err := e.ds.GetLatestDailyStateBefore(ctx, assignmentID, result.StartDate)
	if err != nil {
		e.countRun("failed")
		return nil, err
	}
	if previous != nil {
		state = dayState{
			WeightG:    previous.AvgWeightG,
			Population: previous.Population,
			BiomassKg:  previous.BiomassKg,
			Stage:      previous.LifecycleStage,
		}
	} else {
		bootState, bootProv, err := e.bootstrap(ctx, ac)
		if err != nil {
			e.countRun("failed")
			return nil, err
		}
		state = bootState
		boot = &bootProv
	}

	err = e.ds.Transaction(ctx, func(tx datastore.Interface) error {
		if departure != nil {
			if _, err := tx.DeleteDailyStatesFrom(ctx, assignmentID, formatDate(*departure)); err != nil {
				return err
			}
		}

		for date := start; !date.After(end); date = addDays(date, 1) {
			if err := ctx.Err(); err != nil {
				// Deadline or cancellation rolls back the whole window; the
				// scheduler re-enqueues the job.
				return err
			}

			row, next, err := e.computeDay(ctx, ac, date, state, anchors, boot)
			boot = nil
			if err != nil {
				result.Errors = append(result.Errors, DayError{Date: formatDate(date), Message: err.Error()})
				continue
			}

			created, err := tx.UpsertDailyState(ctx, row)
			if err != nil {
				result.Errors = append(result.Errors, DayError{Date: formatDate(date), Message: err.Error()})
				continue
			}
			if created {
				result.RowsCreated++
			} else {
				result.RowsUpdated++
			}
			state = next
		}
		return nil
	})
	if err != nil {
		e.countRun("failed")
		return nil, errors.New(err).
			Component("assimilation").
			Category(errors.CategoryDatabase).
			Context("assignment_id", assignmentID).
			Build()
	}

	e.countRun("completed")
	if e.metrics != nil {
		e.metrics.RowsCreated.Add(float64(result.RowsCreated))
		e.metrics.RowsUpdated.Add(float64(result.RowsUpdated))
		e.metrics.AnchorsFound.Add(float64(result.AnchorsFound))
		e.metrics.DayErrors.Add(float64(len(result.Errors)))
	}
	e.log.Info("recompute completed",
		"assignment_id", assignmentID,
		"start", result.StartDate, "end", result.EndDate,
		"rows_created", result.RowsCreated,
		"rows_updated", result.RowsUpdated,
		"anchors", result.AnchorsFound,
		"day_errors", len(result.Errors))
	return result, nil
}

func (e *Engine) countRun(outcome string) {
	if e.metrics != nil {
		e.metrics.RecomputeRuns.WithLabelValues(outcome).Inc()
	}
}
