package assimilation

import (
	"context"

	"github.com/tphakala/aquatrack/internal/datastore"
)

// Anchor precedence: lower priority number wins when multiple observations
// fall on the same date.
const (
	priorityGrowthSample = 1
	priorityTransfer     = 2
	priorityVaccination  = 3

	growthSampleConfidence = 1.0
	transferConfidence     = 0.95
	treatmentConfidence    = 0.90
)

// Anchor is a date at which observed data pins the fish weight, overriding
// the growth model. Anchors are derived from storage on every recompute and
// never persisted themselves.
type Anchor struct {
	Type       string // datastore.AnchorGrowthSample, AnchorTransfer, AnchorVaccination
	Date       string
	WeightG    float64
	Confidence float64
	Priority   int
	SourceRef  uint // id of the originating record
}

// detectAnchors scans [start, end] and returns per date the winning anchor.
// Growth samples beat transfers, transfers beat vaccination weighings.
func (e *Engine) detectAnchors(ctx context.Context, ac *assignmentContext, start, end string) (map[string]Anchor, error) {
	anchors := make(map[string]Anchor)

	keep := func(candidate Anchor) {
		existing, ok := anchors[candidate.Date]
		if !ok || candidate.Priority < existing.Priority {
			anchors[candidate.Date] = candidate
		}
	}

	samples, err := e.ds.GetGrowthSamplesInRange(ctx, ac.assignment.ID, start, end)
	if err != nil {
		return nil, err
	}
	for i := range samples {
		keep(Anchor{
			Type:       datastore.AnchorGrowthSample,
			Date:       samples[i].Date,
			WeightG:    samples[i].AvgWeightG,
			Confidence: growthSampleConfidence,
			Priority:   priorityGrowthSample,
			SourceRef:  samples[i].ID,
		})
	}

	// Transfers anchor the source assignment only; the destination receives
	// the measured weight through the bootstrap ladder instead.
	transfers, err := e.ds.GetCompletedTransfersFromInRange(ctx, ac.assignment.ID, start, end)
	if err != nil {
		return nil, err
	}
	for i := range transfers {
		t := &transfers[i]
		if t.MeasuredAvgWeightG == nil || t.ActualExecutionDate == nil {
			continue
		}
		keep(Anchor{
			Type:       datastore.AnchorTransfer,
			Date:       *t.ActualExecutionDate,
			WeightG:    e.adjustForSelectionBias(*t.MeasuredAvgWeightG, t.SelectionMethod),
			Confidence: transferConfidence,
			Priority:   priorityTransfer,
			SourceRef:  t.ID,
		})
	}

	treatments, err := e.ds.GetWeighingTreatmentsInRange(ctx, ac.assignment.ID, start, end)
	if err != nil {
		return nil, err
	}
	for i := range treatments {
		t := &treatments[i]
		if t.SamplingEventID == nil {
			continue
		}
		observations, err := e.ds.GetWeightObservations(ctx, *t.SamplingEventID)
		if err != nil {
			return nil, err
		}
		if len(observations) == 0 {
			continue
		}
		sum := 0.0
		for j := range observations {
			sum += observations[j].WeightG
		}
		keep(Anchor{
			Type:       datastore.AnchorVaccination,
			Date:       t.Date,
			WeightG:    sum / float64(len(observations)),
			Confidence: treatmentConfidence,
			Priority:   priorityVaccination,
			SourceRef:  t.ID,
		})
	}

	return anchors, nil
}

// adjustForSelectionBias corrects measured transfer weights for operators
// picking non-average fish: LARGEST selections overstate the population mean,
// SMALLEST understate it.
func (e *Engine) adjustForSelectionBias(weightG float64, selectionMethod string) float64 {
	switch selectionMethod {
	case datastore.SelectionLargest:
		return weightG * e.settings.Growth.BiasLargest
	case datastore.SelectionSmallest:
		return weightG * e.settings.Growth.BiasSmallest
	default:
		return weightG
	}
}
