package masterdata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/aquatrack/internal/datastore"
)

func ptr[T any](v T) *T { return &v }

func seedBatch(t *testing.T, store *datastore.SQLiteStore) *datastore.Batch {
	t.Helper()

	for i, name := range []string{"fry", "parr", "smolt"} {
		require.NoError(t, store.DB.Create(&datastore.LifecycleStage{
			Species: "atlantic salmon",
			Name:    name,
			Order:   i + 1,
		}).Error)
	}

	tgc := datastore.TGCModel{
		Name:    "base",
		BaseTGC: 2.75,
		StageOverrides: []datastore.TGCStageOverride{
			{Stage: "Smolt", TGC: 3.1},
		},
		ProfileEntries: []datastore.TemperatureProfileEntry{
			{DayNumber: 90, TempC: 10.0},
			{DayNumber: 1, TempC: 8.0},
		},
	}
	require.NoError(t, store.DB.Create(&tgc).Error)

	mortality := datastore.MortalityModel{
		Name:     "base",
		Rate:     0.7,
		Interval: datastore.IntervalWeekly,
		StageOverrides: []datastore.MortalityStageOverride{
			{Stage: "fry", Rate: 2.1},
		},
	}
	require.NoError(t, store.DB.Create(&mortality).Error)

	set := datastore.ConstraintSet{Name: "limits"}
	require.NoError(t, store.DB.Create(&set).Error)
	require.NoError(t, store.DB.Create(&datastore.StageConstraint{
		ConstraintSetID: set.ID,
		Stage:           "Parr",
		MinWeightG:      10,
		MaxWeightG:      80,
	}).Error)

	run := datastore.ProjectionRun{
		Name:             "baseline",
		TGCModelID:       ptr(tgc.ID),
		MortalityModelID: ptr(mortality.ID),
		ConstraintSetID:  ptr(set.ID),
	}
	require.NoError(t, store.DB.Create(&run).Error)

	batch := datastore.Batch{
		Number:          "B-1",
		Species:         "atlantic salmon",
		StartDate:       "2024-01-01",
		ProjectionRunID: ptr(run.ID),
	}
	require.NoError(t, store.DB.Create(&batch).Error)
	return &batch
}

func TestResolverForBatch(t *testing.T) {
	store := datastore.NewTestStore(t)
	batch := seedBatch(t, store)
	resolver := NewResolver(store)

	data, err := resolver.ForBatch(context.Background(), batch)
	require.NoError(t, err)
	require.NotNil(t, data.TGC)
	require.NotNil(t, data.Mortality)
	assert.Len(t, data.Stages, 3)
	assert.Len(t, data.Constraints, 1)

	// Profile entries are sorted by day regardless of insert order.
	assert.Equal(t, 1, data.TGC.ProfileEntries[0].DayNumber)

	// Cached on second resolve.
	again, err := resolver.ForBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Same(t, data, again)

	resolver.Invalidate(batch.ID)
	fresh, err := resolver.ForBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.NotSame(t, data, fresh)
}

func TestTGCForStage(t *testing.T) {
	store := datastore.NewTestStore(t)
	batch := seedBatch(t, store)
	data, err := NewResolver(store).ForBatch(context.Background(), batch)
	require.NoError(t, err)

	tgc, ok := data.TGCForStage("parr")
	require.True(t, ok)
	assert.InDelta(t, 2.75, tgc, 0.001)

	// Overrides match case-insensitively.
	tgc, ok = data.TGCForStage("SMOLT")
	require.True(t, ok)
	assert.InDelta(t, 3.1, tgc, 0.001)

	_, ok = (&Data{}).TGCForStage("parr")
	assert.False(t, ok)
}

func TestDailyMortalityRate(t *testing.T) {
	store := datastore.NewTestStore(t)
	batch := seedBatch(t, store)
	data, err := NewResolver(store).ForBatch(context.Background(), batch)
	require.NoError(t, err)

	// 0.7 percent per week is 0.1 percent per day.
	rate, ok := data.DailyMortalityRate("parr")
	require.True(t, ok)
	assert.InDelta(t, 0.001, rate, 1e-9)

	rate, ok = data.DailyMortalityRate("fry")
	require.True(t, ok)
	assert.InDelta(t, 0.003, rate, 1e-9)

	_, ok = (&Data{}).DailyMortalityRate("parr")
	assert.False(t, ok)
}

func TestConstraintAndStages(t *testing.T) {
	store := datastore.NewTestStore(t)
	batch := seedBatch(t, store)
	data, err := NewResolver(store).ForBatch(context.Background(), batch)
	require.NoError(t, err)

	constraint, ok := data.ConstraintFor("parr")
	require.True(t, ok)
	assert.InDelta(t, 80.0, constraint.MaxWeightG, 0.001)

	next, ok := data.NextStage("fry")
	require.True(t, ok)
	assert.Equal(t, "parr", next.Name)

	_, ok = data.NextStage("smolt")
	assert.False(t, ok)
}

func TestProfileTemp(t *testing.T) {
	data := &Data{TGC: &datastore.TGCModel{ProfileEntries: []datastore.TemperatureProfileEntry{
		{DayNumber: 1, TempC: 8.0},
		{DayNumber: 90, TempC: 10.0},
	}}}

	temp, ok := data.ProfileTemp(45)
	require.True(t, ok)
	assert.InDelta(t, 8.0, temp, 0.001)

	temp, ok = data.ProfileTemp(90)
	require.True(t, ok)
	assert.InDelta(t, 10.0, temp, 0.001)

	_, ok = data.ProfileTemp(0)
	assert.False(t, ok)

	_, ok = (&Data{}).ProfileTemp(10)
	assert.False(t, ok)
}
