package httpcontroller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/aquatrack/internal/assimilation"
	"github.com/tphakala/aquatrack/internal/conf"
	"github.com/tphakala/aquatrack/internal/datastore"
	"github.com/tphakala/aquatrack/internal/scheduler"
)

func ptr[T any](v T) *T { return &v }

type testServer struct {
	server *Server
	store  *datastore.SQLiteStore
	sched  *scheduler.Scheduler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := datastore.NewTestStore(t)
	settings := conf.DefaultSettings()
	settings.WebServer.Log.Enabled = false
	engine := assimilation.New(store, settings, nil)
	sched := scheduler.New(engine, store, settings, nil)
	return &testServer{
		server: New(settings, store, engine, sched, nil),
		store:  store,
		sched:  sched,
	}
}

func (ts *testServer) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.server.Echo.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) seedBatch(t *testing.T) (*datastore.Batch, *datastore.Assignment) {
	t.Helper()
	batch := datastore.Batch{Number: "B-1", Species: "atlantic salmon", StartDate: "2024-01-01"}
	require.NoError(t, ts.store.DB.Create(&batch).Error)
	container := datastore.Container{Name: "tank 1"}
	require.NoError(t, ts.store.DB.Create(&container).Error)
	assignment := datastore.Assignment{
		BatchID:         batch.ID,
		ContainerID:     container.ID,
		AssignmentDate:  "2024-01-01",
		PopulationCount: 1000,
	}
	require.NoError(t, ts.store.DB.Create(&assignment).Error)
	return &batch, &assignment
}

func TestRecomputeEndpointAccepts(t *testing.T) {
	ts := newTestServer(t)
	ts.seedBatch(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/recompute",
		`{"batch_id": 1, "start_date": "2024-01-01", "end_date": "2024-01-31"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp RecomputeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.TaskIDs, 1)
	assert.NotEmpty(t, resp.TaskIDs[0])
	assert.False(t, resp.Deduplicated)

	// Firing the same request again collapses onto the queued job.
	rec = ts.request(t, http.MethodPost, "/api/v1/recompute",
		`{"batch_id": 1, "start_date": "2024-01-01", "end_date": "2024-01-31"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var dup RecomputeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dup))
	assert.True(t, dup.Deduplicated)
	assert.Equal(t, resp.TaskIDs, dup.TaskIDs)
}

func TestRecomputeEndpointValidation(t *testing.T) {
	ts := newTestServer(t)
	ts.seedBatch(t)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing batch", `{"start_date": "2024-01-01"}`, "batch_id"},
		{"bad start date", `{"batch_id": 1, "start_date": "01.01.2024"}`, "start_date"},
		{"bad end date", `{"batch_id": 1, "start_date": "2024-01-01", "end_date": "soon"}`, "end_date"},
		{"inverted window", `{"batch_id": 1, "start_date": "2024-02-01", "end_date": "2024-01-01"}`, "end_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.request(t, http.MethodPost, "/api/v1/recompute", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var resp struct {
				Errors map[string]string `json:"errors"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Contains(t, resp.Errors, tt.field)
		})
	}
}

func TestRecomputeEndpointUnknownBatch(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/recompute",
		`{"batch_id": 42, "start_date": "2024-01-01"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDailyStatesEndpoint(t *testing.T) {
	ts := newTestServer(t)
	_, assignment := ts.seedBatch(t)

	require.NoError(t, ts.store.DB.Create(&datastore.DailyState{
		AssignmentID:     assignment.ID,
		Date:             "2024-01-05",
		DayNumber:        5,
		AvgWeightG:       52.31,
		Population:       1000,
		BiomassKg:        52.31,
		FeedKg:           1.2,
		LifecycleStage:   "parr",
		AnchorType:       ptr(datastore.AnchorGrowthSample),
		Sources:          datastore.SourceMap{"weight": "measured"},
		ConfidenceScores: datastore.ConfidenceMap{"weight": 1.0},
	}).Error)

	rec := ts.request(t, http.MethodGet, "/api/v1/assignments/1/daily-states?start=2024-01-01&end=2024-01-31", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []DailyStateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "2024-01-05", rows[0].Date)
	assert.InDelta(t, 52.31, rows[0].AvgWeightG, 0.001)
	assert.Equal(t, "measured", rows[0].Sources["weight"])
	require.NotNil(t, rows[0].AnchorType)
	assert.Equal(t, datastore.AnchorGrowthSample, *rows[0].AnchorType)
	assert.Nil(t, rows[0].TempC)
	assert.Nil(t, rows[0].ObservedFCR)
}

func TestDailyStatesEndpointErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.seedBatch(t)

	rec := ts.request(t, http.MethodGet, "/api/v1/assignments/999/daily-states", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.request(t, http.MethodGet, "/api/v1/assignments/abc/daily-states", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.request(t, http.MethodGet, "/api/v1/assignments/1/daily-states?start=nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeedingEventEndpoint(t *testing.T) {
	ts := newTestServer(t)
	_, assignment := ts.seedBatch(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/events/feeding",
		`{"assignment_id": 1, "container_id": 1, "date": "2024-01-05", "amount_kg": 4.5}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var events []datastore.FeedingEvent
	require.NoError(t, ts.store.DB.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, assignment.ID, events[0].AssignmentID)
	assert.InDelta(t, 4.5, events[0].AmountKg, 0.001)

	rec = ts.request(t, http.MethodPost, "/api/v1/events/feeding",
		`{"assignment_id": 1, "container_id": 1, "date": "2024-01-05", "amount_kg": -1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGrowthSampleEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seedBatch(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/events/growth-sample",
		`{"assignment_id": 1, "batch_id": 1, "date": "2024-01-10", "avg_weight_g": 55.5}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var samples []datastore.GrowthSample
	require.NoError(t, ts.store.DB.Find(&samples).Error)
	require.Len(t, samples, 1)
	assert.InDelta(t, 55.5, samples[0].AvgWeightG, 0.001)

	rec = ts.request(t, http.MethodPost, "/api/v1/events/growth-sample",
		`{"assignment_id": 1, "batch_id": 99, "date": "2024-01-10", "avg_weight_g": 55.5}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.request(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestLogWritesToFile(t *testing.T) {
	store := datastore.NewTestStore(t)
	settings := conf.DefaultSettings()
	settings.WebServer.Log.Enabled = true
	settings.WebServer.Log.Path = filepath.Join(t.TempDir(), "web.log")
	engine := assimilation.New(store, settings, nil)
	sched := scheduler.New(engine, store, settings, nil)
	server := New(settings, store, engine, sched, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	server.Echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, server.Shutdown(context.Background()))

	data, err := os.ReadFile(settings.WebServer.Log.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "/healthz")
	assert.Contains(t, string(data), `"service":"http"`)
}
