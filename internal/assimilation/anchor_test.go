package assimilation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/aquatrack/internal/datastore"
)

func TestAnchorSelectionBias(t *testing.T) {
	tests := []struct {
		name            string
		selectionMethod string
		measured        float64
		want            float64
	}{
		{"largest overstates the mean", datastore.SelectionLargest, 100, 88.00},
		{"smallest understates the mean", datastore.SelectionSmallest, 100, 112.00},
		{"average is unadjusted", datastore.SelectionAverage, 100, 100.00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			w := f.seedSalmonWorld("2024-04-01", 5000, 90)

			dest := datastore.Assignment{
				BatchID:          w.batch.ID,
				ContainerID:      w.container.ID,
				LifecycleStageID: w.stages["parr"].ID,
				AssignmentDate:   "2024-04-10",
				PopulationCount:  1000,
			}
			f.create(&dest)
			f.create(&datastore.TransferAction{
				SourceAssignmentID:  w.assignment.ID,
				DestAssignmentID:    dest.ID,
				ActualExecutionDate: ptr("2024-04-10"),
				Status:              datastore.TransferStatusCompleted,
				SelectionMethod:     tt.selectionMethod,
				MeasuredAvgWeightG:  ptr(tt.measured),
				TransferredCount:    1000,
			})

			ac := &assignmentContext{assignment: &w.assignment}
			anchors, err := f.engine.detectAnchors(context.Background(), ac, "2024-04-01", "2024-04-30")
			require.NoError(t, err)
			require.Len(t, anchors, 1)

			anchor := anchors["2024-04-10"]
			assert.Equal(t, datastore.AnchorTransfer, anchor.Type)
			assert.InDelta(t, tt.want, anchor.WeightG, 0.001)
		})
	}
}

func TestAnchorPriority(t *testing.T) {
	f := newFixture(t)
	w := f.seedSalmonWorld("2024-04-01", 5000, 90)

	// Transfer out and growth sample on the same date: the sample wins.
	dest := datastore.Assignment{
		BatchID:          w.batch.ID,
		ContainerID:      w.container.ID,
		LifecycleStageID: w.stages["parr"].ID,
		AssignmentDate:   "2024-04-10",
		PopulationCount:  1000,
	}
	f.create(&dest)
	f.create(&datastore.TransferAction{
		SourceAssignmentID:  w.assignment.ID,
		DestAssignmentID:    dest.ID,
		ActualExecutionDate: ptr("2024-04-10"),
		Status:              datastore.TransferStatusCompleted,
		SelectionMethod:     datastore.SelectionAverage,
		MeasuredAvgWeightG:  ptr(95.0),
		TransferredCount:    1000,
	})
	f.create(&datastore.GrowthSample{
		AssignmentID: w.assignment.ID,
		Date:         "2024-04-10",
		AvgWeightG:   92,
	})

	ac := &assignmentContext{assignment: &w.assignment}
	anchors, err := f.engine.detectAnchors(context.Background(), ac, "2024-04-01", "2024-04-30")
	require.NoError(t, err)
	require.Len(t, anchors, 1)

	anchor := anchors["2024-04-10"]
	assert.Equal(t, datastore.AnchorGrowthSample, anchor.Type)
	assert.InDelta(t, 92.0, anchor.WeightG, 0.001)
	assert.InDelta(t, 1.0, anchor.Confidence, 0.001)
}

func TestAnchorVaccinationWeighing(t *testing.T) {
	f := newFixture(t)
	w := f.seedSalmonWorld("2024-05-01", 5000, 90)

	sampling := datastore.SamplingEvent{Date: "2024-05-07"}
	f.create(&sampling)
	for _, weight := range []float64{88, 92, 96} {
		f.create(&datastore.WeightObservation{SamplingEventID: sampling.ID, WeightG: weight})
	}
	f.create(&datastore.Treatment{
		AssignmentID:     w.assignment.ID,
		Date:             "2024-05-07",
		Kind:             "vaccination",
		IncludesWeighing: true,
		SamplingEventID:  ptr(sampling.ID),
	})

	ac := &assignmentContext{assignment: &w.assignment}
	anchors, err := f.engine.detectAnchors(context.Background(), ac, "2024-05-01", "2024-05-31")
	require.NoError(t, err)
	require.Len(t, anchors, 1)

	anchor := anchors["2024-05-07"]
	assert.Equal(t, datastore.AnchorVaccination, anchor.Type)
	assert.InDelta(t, 92.0, anchor.WeightG, 0.001)
	assert.InDelta(t, 0.90, anchor.Confidence, 0.001)
}

func TestAnchorIgnoresPendingTransfers(t *testing.T) {
	f := newFixture(t)
	w := f.seedSalmonWorld("2024-04-01", 5000, 90)

	dest := datastore.Assignment{
		BatchID:          w.batch.ID,
		ContainerID:      w.container.ID,
		LifecycleStageID: w.stages["parr"].ID,
		AssignmentDate:   "2024-04-10",
		PopulationCount:  1000,
	}
	f.create(&dest)
	f.create(&datastore.TransferAction{
		SourceAssignmentID: w.assignment.ID,
		DestAssignmentID:   dest.ID,
		Status:             datastore.TransferStatusPending,
		SelectionMethod:    datastore.SelectionAverage,
		MeasuredAvgWeightG: ptr(95.0),
		TransferredCount:   1000,
	})

	ac := &assignmentContext{assignment: &w.assignment}
	anchors, err := f.engine.detectAnchors(context.Background(), ac, "2024-04-01", "2024-04-30")
	require.NoError(t, err)
	assert.Empty(t, anchors)
}
