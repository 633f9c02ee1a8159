package assimilation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/aquatrack/internal/datastore"
)

func TestObservedFCRFromFeed(t *testing.T) {
	f := newFixture(t)
	w := f.seedSalmonWorld("2024-01-01", 10000, 50)
	f.create(&datastore.FeedingEvent{
		AssignmentID: w.assignment.ID,
		ContainerID:  w.container.ID,
		Date:         "2024-01-02",
		AmountKg:     20,
	})

	_, err := f.engine.RecomputeAssignment(context.Background(), w.assignment.ID, date("2024-01-01"), date("2024-01-03"))
	require.NoError(t, err)

	states := f.dailyStates(w.assignment.ID)
	require.Len(t, states, 3)

	// Day 2: weight 50.00 -> 51.36, biomass 500.00 -> 513.60, gain 13.6 kg.
	day2 := states[1]
	assert.InDelta(t, 20.0, day2.FeedKg, 0.001)
	require.NotNil(t, day2.ObservedFCR)
	assert.InDelta(t, 1.471, *day2.ObservedFCR, 0.001)
	assert.Equal(t, SourceObserved, day2.Sources[FieldFCR])
	assert.Equal(t, SourceActual, day2.Sources[FieldFeed])

	// No feed on day 3: FCR attribution falls to the model with no value.
	day3 := states[2]
	assert.Nil(t, day3.ObservedFCR)
	assert.Equal(t, SourceModel, day3.Sources[FieldFCR])
}

func TestObservedFCRCapped(t *testing.T) {
	f := newFixture(t)
	w := f.seedSalmonWorld("2024-01-01", 10000, 50)
	f.create(&datastore.FeedingEvent{
		AssignmentID: w.assignment.ID,
		ContainerID:  w.container.ID,
		Date:         "2024-01-02",
		AmountKg:     500,
	})

	_, err := f.engine.RecomputeAssignment(context.Background(), w.assignment.ID, date("2024-01-01"), date("2024-01-02"))
	require.NoError(t, err)

	states := f.dailyStates(w.assignment.ID)
	require.Len(t, states, 2)
	require.NotNil(t, states[1].ObservedFCR)
	assert.InDelta(t, 10.0, *states[1].ObservedFCR, 0.001)
}

func TestMortalityShrinksPopulation(t *testing.T) {
	f := newFixture(t)
	w := f.seedSalmonWorld("2024-01-01", 10000, 50)
	f.create(&datastore.MortalityEvent{
		AssignmentID: w.assignment.ID,
		Date:         "2024-01-02",
		Count:        150,
	})

	_, err := f.engine.RecomputeAssignment(context.Background(), w.assignment.ID, date("2024-01-01"), date("2024-01-03"))
	require.NoError(t, err)

	states := f.dailyStates(w.assignment.ID)
	require.Len(t, states, 3)
	assert.Equal(t, 10000, states[0].Population)
	assert.Equal(t, 9850, states[1].Population)
	assert.Equal(t, 150, states[1].MortalityCount)
	assert.Equal(t, SourceActual, states[1].Sources[FieldMortality])
	assert.Equal(t, 9850, states[2].Population)
}
