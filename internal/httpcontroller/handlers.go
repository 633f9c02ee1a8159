package httpcontroller

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/aquatrack/internal/datastore"
)

// RecomputeRequest is the admin recompute job request.
type RecomputeRequest struct {
	BatchID       uint    `json:"batch_id"`
	StartDate     string  `json:"start_date"`
	EndDate       *string `json:"end_date"`       // nil = today
	AssignmentIDs []uint  `json:"assignment_ids"` // nil = all overlapping
}

// RecomputeResponse acknowledges an accepted recompute request.
type RecomputeResponse struct {
	TaskIDs      []string `json:"task_ids"`
	Deduplicated bool     `json:"deduplicated"`
}

// FeedingEventRequest is the inbound feeding event notification.
type FeedingEventRequest struct {
	AssignmentID uint    `json:"assignment_id"`
	ContainerID  uint    `json:"container_id"`
	Date         string  `json:"date"`
	AmountKg     float64 `json:"amount_kg"`
}

// GrowthSampleRequest is the inbound growth sample notification.
type GrowthSampleRequest struct {
	AssignmentID uint    `json:"assignment_id"`
	BatchID      uint    `json:"batch_id"`
	Date         string  `json:"date"`
	AvgWeightG   float64 `json:"avg_weight_g"`
}

// DailyStateResponse is the stable row contract for daily state queries.
type DailyStateResponse struct {
	AssignmentID     uint               `json:"assignment_id"`
	Date             string             `json:"date"`
	DayNumber        int                `json:"day_number"`
	AvgWeightG       float64            `json:"avg_weight_g"`
	Population       int                `json:"population"`
	BiomassKg        float64            `json:"biomass_kg"`
	TempC            *float64           `json:"temp_c"`
	MortalityCount   int                `json:"mortality_count"`
	FeedKg           float64            `json:"feed_kg"`
	ObservedFCR      *float64           `json:"observed_fcr"`
	AnchorType       *string            `json:"anchor_type"`
	LifecycleStage   string             `json:"lifecycle_stage"`
	Sources          map[string]string  `json:"sources"`
	ConfidenceScores map[string]float64 `json:"confidence_scores"`
}

func fieldErrors(fields map[string]string) map[string]any {
	return map[string]any{"errors": fields}
}

// handleRecompute validates an admin recompute request and enqueues the job,
// returning 202 with the task ids.
func (s *Server) handleRecompute(c echo.Context) error {
	var req RecomputeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, fieldErrors(map[string]string{"body": "invalid JSON"}))
	}

	fields := make(map[string]string)
	if req.BatchID == 0 {
		fields["batch_id"] = "required"
	}
	start, err := time.Parse(time.DateOnly, req.StartDate)
	if err != nil {
		fields["start_date"] = "must be YYYY-MM-DD"
	}
	var end time.Time
	if req.EndDate != nil {
		end, err = time.Parse(time.DateOnly, *req.EndDate)
		if err != nil {
			fields["end_date"] = "must be YYYY-MM-DD"
		} else if !start.IsZero() && start.After(end) {
			fields["end_date"] = "must not precede start_date"
		}
	}
	if len(fields) > 0 {
		return c.JSON(http.StatusBadRequest, fieldErrors(fields))
	}

	if _, err := s.DS.GetBatch(c.Request().Context(), req.BatchID); err != nil {
		return c.JSON(http.StatusNotFound, fieldErrors(map[string]string{"batch_id": "batch not found"}))
	}

	taskID, deduplicated, err := s.Scheduler.EnqueueRecompute(req.BatchID, req.AssignmentIDs, start, end)
	if err != nil {
		s.webLogger.Error("enqueue failed", "batch_id", req.BatchID, "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "recompute queue full"})
	}

	return c.JSON(http.StatusAccepted, RecomputeResponse{
		TaskIDs:      []string{taskID},
		Deduplicated: deduplicated,
	})
}

// handleDailyStates returns the stored daily states of an assignment,
// optionally limited to [start, end].
func (s *Server) handleDailyStates(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, fieldErrors(map[string]string{"id": "must be a positive integer"}))
	}

	ctx := c.Request().Context()
	if _, err := s.DS.GetAssignment(ctx, uint(id)); err != nil {
		return c.JSON(http.StatusNotFound, fieldErrors(map[string]string{"id": "assignment not found"}))
	}

	start := c.QueryParam("start")
	end := c.QueryParam("end")
	fields := make(map[string]string)
	if start != "" {
		if _, err := time.Parse(time.DateOnly, start); err != nil {
			fields["start"] = "must be YYYY-MM-DD"
		}
	} else {
		start = "0000-01-01"
	}
	if end != "" {
		if _, err := time.Parse(time.DateOnly, end); err != nil {
			fields["end"] = "must be YYYY-MM-DD"
		}
	} else {
		end = "9999-12-31"
	}
	if len(fields) > 0 {
		return c.JSON(http.StatusBadRequest, fieldErrors(fields))
	}

	states, err := s.DS.GetDailyStates(ctx, uint(id), start, end)
	if err != nil {
		s.webLogger.Error("daily state query failed", "assignment_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
	}

	rows := make([]DailyStateResponse, 0, len(states))
	for i := range states {
		rows = append(rows, toDailyStateResponse(&states[i]))
	}
	return c.JSON(http.StatusOK, rows)
}

// handleFeedingEvent records a feeding event and triggers the rolling-window
// recompute. Assimilation failures never fail the event write.
func (s *Server) handleFeedingEvent(c echo.Context) error {
	var req FeedingEventRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, fieldErrors(map[string]string{"body": "invalid JSON"}))
	}

	fields := make(map[string]string)
	if req.AssignmentID == 0 {
		fields["assignment_id"] = "required"
	}
	if req.ContainerID == 0 {
		fields["container_id"] = "required"
	}
	if _, err := time.Parse(time.DateOnly, req.Date); err != nil {
		fields["date"] = "must be YYYY-MM-DD"
	}
	if req.AmountKg <= 0 {
		fields["amount_kg"] = "must be positive"
	}
	if len(fields) > 0 {
		return c.JSON(http.StatusBadRequest, fieldErrors(fields))
	}

	ctx := c.Request().Context()
	if _, err := s.DS.GetAssignment(ctx, req.AssignmentID); err != nil {
		return c.JSON(http.StatusNotFound, fieldErrors(map[string]string{"assignment_id": "assignment not found"}))
	}

	event := &datastore.FeedingEvent{
		AssignmentID: req.AssignmentID,
		ContainerID:  req.ContainerID,
		Date:         req.Date,
		AmountKg:     req.AmountKg,
	}
	if err := s.DS.CreateFeedingEvent(ctx, event); err != nil {
		s.webLogger.Error("feeding event write failed", "assignment_id", req.AssignmentID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "write failed"})
	}

	s.Scheduler.OnFeedingEventCreated(ctx, req.AssignmentID)
	return c.JSON(http.StatusCreated, map[string]uint{"id": event.ID})
}

// handleGrowthSample records a growth sample and triggers the rolling-window
// recompute for its batch.
func (s *Server) handleGrowthSample(c echo.Context) error {
	var req GrowthSampleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, fieldErrors(map[string]string{"body": "invalid JSON"}))
	}

	fields := make(map[string]string)
	if req.AssignmentID == 0 {
		fields["assignment_id"] = "required"
	}
	if req.BatchID == 0 {
		fields["batch_id"] = "required"
	}
	if _, err := time.Parse(time.DateOnly, req.Date); err != nil {
		fields["date"] = "must be YYYY-MM-DD"
	}
	if req.AvgWeightG <= 0 {
		fields["avg_weight_g"] = "must be positive"
	}
	if len(fields) > 0 {
		return c.JSON(http.StatusBadRequest, fieldErrors(fields))
	}

	ctx := c.Request().Context()
	if _, err := s.DS.GetBatch(ctx, req.BatchID); err != nil {
		return c.JSON(http.StatusNotFound, fieldErrors(map[string]string{"batch_id": "batch not found"}))
	}

	sample := &datastore.GrowthSample{
		AssignmentID: req.AssignmentID,
		Date:         req.Date,
		AvgWeightG:   req.AvgWeightG,
	}
	if err := s.DS.CreateGrowthSample(ctx, sample); err != nil {
		s.webLogger.Error("growth sample write failed", "assignment_id", req.AssignmentID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "write failed"})
	}

	s.Scheduler.OnGrowthSampleCreated(ctx, req.BatchID, req.Date)
	return c.JSON(http.StatusCreated, map[string]uint{"id": sample.ID})
}

func toDailyStateResponse(s *datastore.DailyState) DailyStateResponse {
	return DailyStateResponse{
		AssignmentID:     s.AssignmentID,
		Date:             s.Date,
		DayNumber:        s.DayNumber,
		AvgWeightG:       s.AvgWeightG,
		Population:       s.Population,
		BiomassKg:        s.BiomassKg,
		TempC:            s.TempC,
		MortalityCount:   s.MortalityCount,
		FeedKg:           s.FeedKg,
		ObservedFCR:      s.ObservedFCR,
		AnchorType:       s.AnchorType,
		LifecycleStage:   s.LifecycleStage,
		Sources:          s.Sources,
		ConfidenceScores: s.ConfidenceScores,
	}
}
