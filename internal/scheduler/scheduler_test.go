package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/aquatrack/internal/assimilation"
	"github.com/tphakala/aquatrack/internal/conf"
	"github.com/tphakala/aquatrack/internal/datastore"
)

func ptr[T any](v T) *T { return &v }

func newTestScheduler(t *testing.T) (*Scheduler, *datastore.SQLiteStore) {
	t.Helper()
	store := datastore.NewTestStore(t)
	settings := conf.DefaultSettings()
	engine := assimilation.New(store, settings, nil)
	return New(engine, store, settings, nil), store
}

func TestEnqueueDeduplicates(t *testing.T) {
	sched, _ := newTestScheduler(t)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	first, dedup, err := sched.EnqueueRecompute(1, nil, start, end)
	require.NoError(t, err)
	assert.False(t, dedup)
	assert.NotEmpty(t, first)

	second, dedup, err := sched.EnqueueRecompute(1, nil, start, end)
	require.NoError(t, err)
	assert.True(t, dedup)
	assert.Equal(t, first, second)

	// A different window is a different job.
	third, dedup, err := sched.EnqueueRecompute(1, nil, start, end.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.False(t, dedup)
	assert.NotEqual(t, first, third)

	// So is an assignment-filtered job on the same window.
	fourth, dedup, err := sched.EnqueueRecompute(1, []uint{7}, start, end)
	require.NoError(t, err)
	assert.False(t, dedup)
	assert.NotEqual(t, first, fourth)
}

func TestEnqueueZeroEndMeansToday(t *testing.T) {
	sched, _ := newTestScheduler(t)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	today := time.Now().UTC().Truncate(24 * time.Hour)

	first, dedup, err := sched.EnqueueRecompute(1, nil, start, time.Time{})
	require.NoError(t, err)
	assert.False(t, dedup)

	// An explicit end of today is the same job.
	second, dedup, err := sched.EnqueueRecompute(1, nil, start, today)
	require.NoError(t, err)
	assert.True(t, dedup)
	assert.Equal(t, first, second)
}

func TestEnqueueQueueFull(t *testing.T) {
	store := datastore.NewTestStore(t)
	settings := conf.DefaultSettings()
	settings.Scheduler.QueueSize = 1
	engine := assimilation.New(store, settings, nil)
	sched := New(engine, store, settings, nil)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	_, _, err := sched.EnqueueRecompute(1, nil, start, end)
	require.NoError(t, err)
	_, _, err = sched.EnqueueRecompute(2, nil, start, end)
	require.Error(t, err)
}

func TestGrowthSampleHookUpdatesWeighingDate(t *testing.T) {
	sched, store := newTestScheduler(t)
	ctx := context.Background()

	batch := datastore.Batch{Number: "B-1", Species: "atlantic salmon", StartDate: "2024-01-01"}
	require.NoError(t, store.DB.Create(&batch).Error)
	container := datastore.Container{Name: "tank 1"}
	require.NoError(t, store.DB.Create(&container).Error)

	active := datastore.Assignment{
		BatchID:        batch.ID,
		ContainerID:    container.ID,
		AssignmentDate: "2024-01-01",
	}
	require.NoError(t, store.DB.Create(&active).Error)
	current := datastore.Assignment{
		BatchID:          batch.ID,
		ContainerID:      container.ID,
		AssignmentDate:   "2024-01-01",
		LastWeighingDate: ptr("2024-06-01"), // newer than the sample, kept
	}
	require.NoError(t, store.DB.Create(&current).Error)
	departed := datastore.Assignment{
		BatchID:        batch.ID,
		ContainerID:    container.ID,
		AssignmentDate: "2024-01-01",
		DepartureDate:  ptr("2024-02-01"),
	}
	require.NoError(t, store.DB.Create(&departed).Error)

	sched.OnGrowthSampleCreated(ctx, batch.ID, "2024-03-15")

	got, err := store.GetAssignment(ctx, active.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastWeighingDate)
	assert.Equal(t, "2024-03-15", *got.LastWeighingDate)

	kept, err := store.GetAssignment(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", *kept.LastWeighingDate)

	untouched, err := store.GetAssignment(ctx, departed.ID)
	require.NoError(t, err)
	assert.Nil(t, untouched.LastWeighingDate)

	// The hook queued exactly one rolling-window job.
	assert.Len(t, sched.queue, 1)
}

func TestFeedingHookSkipsDepartedAssignment(t *testing.T) {
	sched, store := newTestScheduler(t)
	ctx := context.Background()

	batch := datastore.Batch{Number: "B-1", Species: "atlantic salmon", StartDate: "2024-01-01"}
	require.NoError(t, store.DB.Create(&batch).Error)
	container := datastore.Container{Name: "tank 1"}
	require.NoError(t, store.DB.Create(&container).Error)
	departed := datastore.Assignment{
		BatchID:        batch.ID,
		ContainerID:    container.ID,
		AssignmentDate: "2024-01-01",
		DepartureDate:  ptr("2024-02-01"),
	}
	require.NoError(t, store.DB.Create(&departed).Error)

	sched.OnFeedingEventCreated(ctx, departed.ID)
	assert.Empty(t, sched.queue)

	active := datastore.Assignment{
		BatchID:        batch.ID,
		ContainerID:    container.ID,
		AssignmentDate: "2024-01-01",
	}
	require.NoError(t, store.DB.Create(&active).Error)

	sched.OnFeedingEventCreated(ctx, active.ID)
	assert.Len(t, sched.queue, 1)
}

func TestRunRequeuesTimedOutJob(t *testing.T) {
	sched, store := newTestScheduler(t)
	sched.timeout = time.Nanosecond

	batch := datastore.Batch{Number: "B-1", Species: "atlantic salmon", StartDate: "2024-01-01"}
	require.NoError(t, store.DB.Create(&batch).Error)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	taskID, _, err := sched.EnqueueRecompute(batch.ID, nil, start, end)
	require.NoError(t, err)

	job := <-sched.queue
	require.Equal(t, taskID, job.ID)

	sched.run(context.Background(), job)

	// The job expired mid-run and went back on the queue under a fresh id.
	require.Len(t, sched.queue, 1)
	requeued := <-sched.queue
	assert.Equal(t, job.BatchID, requeued.BatchID)
	assert.Equal(t, job.Start, requeued.Start)
	assert.Equal(t, job.End, requeued.End)
	assert.NotEqual(t, job.ID, requeued.ID)
}

func TestRunDropsTimedOutJobOnShutdown(t *testing.T) {
	sched, store := newTestScheduler(t)
	sched.timeout = time.Nanosecond

	batch := datastore.Batch{Number: "B-1", Species: "atlantic salmon", StartDate: "2024-01-01"}
	require.NoError(t, store.DB.Create(&batch).Error)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, _, err := sched.EnqueueRecompute(batch.ID, nil, start, start.AddDate(0, 0, 30))
	require.NoError(t, err)
	job := <-sched.queue

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sched.run(ctx, job)

	// Worker context already cancelled: no re-enqueue.
	assert.Empty(t, sched.queue)
}

func TestStartStopLeavesNoGoroutines(t *testing.T) {
	// The master data cache keeps a janitor goroutine for its lifetime, and the
	// SQLite pool closes in t.Cleanup after this defer runs.
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionCleaner"),
	)

	sched, _ := newTestScheduler(t)
	sched.Start(context.Background())
	sched.Stop()
}
