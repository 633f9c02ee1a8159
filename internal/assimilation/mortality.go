package assimilation

import (
	"context"
	"math"
	"time"
)

const modelMortalityConfidence = 0.4

// mortalityResult is the resolved mortality for one day.
type mortalityResult struct {
	Count      int
	Source     string
	Confidence float64
}

// resolveMortality prefers recorded mortality events; otherwise it applies the
// mortality model's daily rate to the current population.
func (e *Engine) resolveMortality(ctx context.Context, ac *assignmentContext, date time.Time, population int, stage string) (mortalityResult, error) {
	count, events, err := e.ds.SumMortality(ctx, ac.assignment.ID, formatDate(date))
	if err != nil {
		return mortalityResult{}, err
	}
	if events > 0 {
		return mortalityResult{Count: count, Source: SourceActual, Confidence: 1.0}, nil
	}

	rate, ok := ac.master.DailyMortalityRate(stage)
	if !ok {
		return mortalityResult{Source: SourceModel, Confidence: modelMortalityConfidence}, nil
	}
	modeled := int(math.Round(float64(population) * rate))
	if modeled < 0 {
		modeled = 0
	}
	return mortalityResult{Count: modeled, Source: SourceModel, Confidence: modelMortalityConfidence}, nil
}
