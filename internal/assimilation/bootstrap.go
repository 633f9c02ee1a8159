package assimilation

import (
	"context"
	"math"
)

const fallbackWeightG = 1.0

// dayState is the rolling state carried from one day of the loop to the next.
type dayState struct {
	WeightG    float64
	Population int
	BiomassKg  float64
	Stage      string
}

// bootstrapWeight records where the initial weight came from so the first
// day's row can be provenance-tagged.
type bootstrapWeight struct {
	Source     string
	Confidence float64
}

// ladderRung is one rung of the bootstrap weight ladder. It reports whether
// it could supply an initial weight, plus the provenance of that weight.
type ladderRung func(ctx context.Context) (weight float64, prov bootstrapWeight, ok bool, err error)

// bootstrap produces the initial state for the first day of a window when no
// earlier daily state exists for the assignment.
//
// Transfers override the assignment's own avg weight because the event
// pipeline may pre-populate the destination with a stage minimum rather than
// the true source weight.
func (e *Engine) bootstrap(ctx context.Context, ac *assignmentContext) (dayState, bootstrapWeight, error) {
	transfers, err := e.ds.GetCompletedTransfersTo(ctx, ac.assignment.ID)
	if err != nil {
		return dayState{}, bootstrapWeight{}, err
	}
	isTransferDestination := len(transfers) > 0

	ladder := []ladderRung{
		// Measured weight of the inbound transfer.
		func(ctx context.Context) (float64, bootstrapWeight, bool, error) {
			for i := range transfers {
				if transfers[i].MeasuredAvgWeightG != nil {
					return *transfers[i].MeasuredAvgWeightG, bootstrapWeight{SourceMeasured, transferConfidence}, true, nil
				}
			}
			return 0, bootstrapWeight{}, false, nil
		},
		// Most recent daily state of the source assignment.
		func(ctx context.Context) (float64, bootstrapWeight, bool, error) {
			for i := range transfers {
				state, err := e.ds.GetLatestDailyState(ctx, transfers[i].SourceAssignmentID)
				if err != nil {
					return 0, bootstrapWeight{}, false, err
				}
				if state != nil {
					return state.AvgWeightG, bootstrapWeight{SourceUnchanged, 0.6}, true, nil
				}
			}
			return 0, bootstrapWeight{}, false, nil
		},
		// Source assignment's current avg weight.
		func(ctx context.Context) (float64, bootstrapWeight, bool, error) {
			for i := range transfers {
				source, err := e.ds.GetAssignment(ctx, transfers[i].SourceAssignmentID)
				if err != nil {
					continue
				}
				if source.AvgWeightG != nil && *source.AvgWeightG > 0 {
					return *source.AvgWeightG, bootstrapWeight{SourceUnchanged, 0.5}, true, nil
				}
			}
			return 0, bootstrapWeight{}, false, nil
		},
		// The assignment's own avg weight, unless a transfer populated it.
		func(ctx context.Context) (float64, bootstrapWeight, bool, error) {
			if isTransferDestination {
				return 0, bootstrapWeight{}, false, nil
			}
			if ac.assignment.AvgWeightG != nil && *ac.assignment.AvgWeightG > 0 {
				return *ac.assignment.AvgWeightG, bootstrapWeight{SourceMeasured, 0.7}, true, nil
			}
			return 0, bootstrapWeight{}, false, nil
		},
		// Constraint set minimum for the stage.
		func(ctx context.Context) (float64, bootstrapWeight, bool, error) {
			if constraint, ok := ac.master.ConstraintFor(ac.stageName); ok && constraint.MinWeightG > 0 {
				return constraint.MinWeightG, bootstrapWeight{SourceModel, 0.4}, true, nil
			}
			return 0, bootstrapWeight{}, false, nil
		},
		// Model initial weight.
		func(ctx context.Context) (float64, bootstrapWeight, bool, error) {
			if ac.master.TGC != nil && ac.master.TGC.InitialWeightG != nil && *ac.master.TGC.InitialWeightG > 0 {
				return *ac.master.TGC.InitialWeightG, bootstrapWeight{SourceModel, 0.4}, true, nil
			}
			return 0, bootstrapWeight{}, false, nil
		},
		// Stage expected minimum.
		func(ctx context.Context) (float64, bootstrapWeight, bool, error) {
			if stage, ok := ac.master.StageByName(ac.stageName); ok && stage.ExpectedWeightMinG > 0 {
				return stage.ExpectedWeightMinG, bootstrapWeight{SourceModel, 0.3}, true, nil
			}
			return 0, bootstrapWeight{}, false, nil
		},
	}

	weight := fallbackWeightG
	prov := bootstrapWeight{SourceModel, 0.2}
	for _, rung := range ladder {
		w, p, ok, err := rung(ctx)
		if err != nil {
			return dayState{}, bootstrapWeight{}, err
		}
		if ok {
			weight, prov = w, p
			break
		}
	}

	// A transfer executed on the assignment date delivers the fish through the
	// day-0 placement resolver; starting from the assignment's population
	// would count them twice.
	population := ac.assignment.PopulationCount
	for i := range transfers {
		if transfers[i].ActualExecutionDate != nil && *transfers[i].ActualExecutionDate == ac.assignment.AssignmentDate {
			population = 0
			break
		}
	}

	weight = math.Round(weight*100) / 100
	return dayState{
		WeightG:    weight,
		Population: population,
		BiomassKg:  math.Round(float64(population)*weight/1000*100) / 100,
		Stage:      ac.stageName,
	}, prov, nil
}
