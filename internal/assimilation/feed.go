package assimilation

import (
	"context"
	"time"
)

// feedResult is the resolved feed consumption for one day.
type feedResult struct {
	AmountKg   float64
	Source     string
	Confidence float64
}

// resolveFeed sums recorded feeding events for the container on the date.
func (e *Engine) resolveFeed(ctx context.Context, ac *assignmentContext, date time.Time) (feedResult, error) {
	total, err := e.ds.SumFeed(ctx, ac.container.ID, formatDate(date))
	if err != nil {
		return feedResult{}, err
	}
	if total > 0 {
		return feedResult{AmountKg: total, Source: SourceActual, Confidence: 1.0}, nil
	}
	return feedResult{Source: SourceNone}, nil
}
