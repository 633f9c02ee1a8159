package assimilation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tphakala/aquatrack/internal/conf"
	"github.com/tphakala/aquatrack/internal/datastore"
)

func ptr[T any](v T) *T { return &v }

// fixture bundles a fresh in-memory store with an engine built on it.
type fixture struct {
	t        *testing.T
	store    *datastore.SQLiteStore
	settings *conf.Settings
	engine   *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := datastore.NewTestStore(t)
	settings := conf.DefaultSettings()
	return &fixture{
		t:        t,
		store:    store,
		settings: settings,
		engine:   New(store, settings, nil),
	}
}

func (f *fixture) create(value any) {
	f.t.Helper()
	require.NoError(f.t, f.store.DB.Create(value).Error)
}

// world is a seeded salmon batch with one assignment in a freshwater tank.
type world struct {
	batch      datastore.Batch
	container  datastore.Container
	assignment datastore.Assignment
	stages     map[string]datastore.LifecycleStage
	tgc        datastore.TGCModel
	run        datastore.ProjectionRun
}

// seedSalmonWorld creates lifecycle stages, a TGC model with a flat 12 degree
// profile, a projection run, a batch starting on startDate, a freshwater
// container, and one parr assignment with the given population and weight.
func (f *fixture) seedSalmonWorld(startDate string, population int, avgWeightG float64) *world {
	f.t.Helper()

	w := &world{stages: make(map[string]datastore.LifecycleStage)}

	stageSpecs := []struct {
		name     string
		order    int
		min, max float64
	}{
		{"fry", 1, 0.2, 10},
		{"parr", 2, 10, 80},
		{"smolt", 3, 60, 250},
		{"post-smolt", 4, 250, 700},
	}
	for _, spec := range stageSpecs {
		stage := datastore.LifecycleStage{
			Species:            "atlantic salmon",
			Name:               spec.name,
			Order:              spec.order,
			ExpectedWeightMinG: spec.min,
			ExpectedWeightMaxG: spec.max,
		}
		f.create(&stage)
		w.stages[spec.name] = stage
	}

	w.tgc = datastore.TGCModel{
		Name:    "salmon base",
		BaseTGC: 2.75,
		ProfileEntries: []datastore.TemperatureProfileEntry{
			{DayNumber: 1, TempC: 12.0},
		},
	}
	f.create(&w.tgc)

	w.run = datastore.ProjectionRun{
		Name:       "baseline",
		TGCModelID: ptr(w.tgc.ID),
	}
	f.create(&w.run)

	w.batch = datastore.Batch{
		Number:          "B-" + startDate,
		Species:         "atlantic salmon",
		StartDate:       startDate,
		ProjectionRunID: ptr(w.run.ID),
	}
	f.create(&w.batch)

	hall := datastore.Hall{Name: "hall 1"}
	f.create(&hall)
	w.container = datastore.Container{Name: "tank 1", HallID: ptr(hall.ID)}
	f.create(&w.container)

	w.assignment = datastore.Assignment{
		BatchID:          w.batch.ID,
		ContainerID:      w.container.ID,
		LifecycleStageID: w.stages["parr"].ID,
		AssignmentDate:   startDate,
		PopulationCount:  population,
		AvgWeightG:       ptr(avgWeightG),
	}
	f.create(&w.assignment)

	return w
}

func (f *fixture) dailyStates(assignmentID uint) []datastore.DailyState {
	f.t.Helper()
	var states []datastore.DailyState
	err := f.store.DB.
		Where("assignment_id = ?", assignmentID).
		Order("date ASC").
		Find(&states).Error
	require.NoError(f.t, err)
	return states
}
