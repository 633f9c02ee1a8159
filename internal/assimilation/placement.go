package assimilation

import (
	"context"
	"time"
)

// resolvePlacements returns fish transferred into the assignment on the date
// via completed transfers.
func (e *Engine) resolvePlacements(ctx context.Context, ac *assignmentContext, date time.Time) (int, error) {
	return e.ds.SumPlacements(ctx, ac.assignment.ID, formatDate(date))
}
