// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tphakala/aquatrack/internal/conf"
	"gorm.io/gorm"
)

// Interface abstracts the underlying database implementation and defines the
// operations the assimilation core needs. All read methods take a context so
// recompute jobs can be cancelled mid-query.
type Interface interface {
	Open() error
	Close() error

	// Master data
	GetBatch(ctx context.Context, id uint) (*Batch, error)
	GetAssignment(ctx context.Context, id uint) (*Assignment, error)
	GetAssignmentsForBatch(ctx context.Context, batchID uint) ([]Assignment, error)
	GetActiveAssignmentsForBatch(ctx context.Context, batchID uint) ([]Assignment, error)
	UpdateLastWeighingDate(ctx context.Context, assignmentIDs []uint, date string) error
	GetContainer(ctx context.Context, id uint) (*Container, error)
	GetLifecycleStage(ctx context.Context, id uint) (*LifecycleStage, error)
	GetLifecycleStages(ctx context.Context, species string) ([]LifecycleStage, error)
	GetProjectionRun(ctx context.Context, id uint) (*ProjectionRun, error)
	GetTGCModel(ctx context.Context, id uint) (*TGCModel, error)
	GetMortalityModel(ctx context.Context, id uint) (*MortalityModel, error)
	GetStageConstraints(ctx context.Context, constraintSetID uint) ([]StageConstraint, error)

	// Observations
	GetReadingsOnDate(ctx context.Context, containerID uint, date string) ([]EnvironmentalReading, error)
	GetNearestReadingBefore(ctx context.Context, containerID uint, date string, maxDays int) (*EnvironmentalReading, error)
	GetNearestReadingAfter(ctx context.Context, containerID uint, date string, maxDays int) (*EnvironmentalReading, error)
	SumMortality(ctx context.Context, assignmentID uint, date string) (count, events int, err error)
	SumFeed(ctx context.Context, containerID uint, date string) (float64, error)
	SumPlacements(ctx context.Context, assignmentID uint, date string) (int, error)
	GetGrowthSamplesInRange(ctx context.Context, assignmentID uint, start, end string) ([]GrowthSample, error)
	GetCompletedTransfersFromInRange(ctx context.Context, assignmentID uint, start, end string) ([]TransferAction, error)
	GetCompletedTransfersTo(ctx context.Context, assignmentID uint) ([]TransferAction, error)
	GetWeighingTreatmentsInRange(ctx context.Context, assignmentID uint, start, end string) ([]Treatment, error)
	GetWeightObservations(ctx context.Context, samplingEventID uint) ([]WeightObservation, error)
	CreateFeedingEvent(ctx context.Context, event *FeedingEvent) error
	CreateGrowthSample(ctx context.Context, sample *GrowthSample) error

	// Daily state
	GetDailyState(ctx context.Context, assignmentID uint, date string) (*DailyState, error)
	GetLatestDailyStateBefore(ctx context.Context, assignmentID uint, date string) (*DailyState, error)
	GetLatestDailyState(ctx context.Context, assignmentID uint) (*DailyState, error)
	GetDailyStates(ctx context.Context, assignmentID uint, start, end string) ([]DailyState, error)
	UpsertDailyState(ctx context.Context, state *DailyState) (created bool, err error)
	DeleteDailyStatesFrom(ctx context.Context, assignmentID uint, date string) (int64, error)

	// Transaction runs fn inside a single database transaction. The Interface
	// passed to fn routes all operations through that transaction.
	Transaction(ctx context.Context, fn func(Interface) error) error
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new store instance based on the provided configuration.
// Returns nil when no database backend is enabled.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{Settings: settings}
	default:
		return nil
	}
}

// Open is provided by the concrete SQLite and MySQL stores.
func (ds *DataStore) Open() error {
	return errors.New("datastore: Open called on abstract store, use SQLiteStore or MySQLStore")
}

// Close closes the underlying database connection.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return fmt.Errorf("getting underlying database connection: %w", err)
	}
	return sqlDB.Close()
}

// Transaction runs fn inside a single transaction. On error the whole
// transaction rolls back; partial progress is never visible to readers.
func (ds *DataStore) Transaction(ctx context.Context, fn func(Interface) error) error {
	return ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&DataStore{DB: tx})
	})
}

// --- Master data ---

// GetBatch retrieves a batch by its ID.
func (ds *DataStore) GetBatch(ctx context.Context, id uint) (*Batch, error) {
	var batch Batch
	if err := ds.DB.WithContext(ctx).First(&batch, id).Error; err != nil {
		return nil, fmt.Errorf("getting batch %d: %w", id, err)
	}
	return &batch, nil
}

// GetAssignment retrieves an assignment by its ID.
func (ds *DataStore) GetAssignment(ctx context.Context, id uint) (*Assignment, error) {
	var assignment Assignment
	if err := ds.DB.WithContext(ctx).First(&assignment, id).Error; err != nil {
		return nil, fmt.Errorf("getting assignment %d: %w", id, err)
	}
	return &assignment, nil
}

// GetAssignmentsForBatch returns all assignments of a batch ordered by assignment date.
func (ds *DataStore) GetAssignmentsForBatch(ctx context.Context, batchID uint) ([]Assignment, error) {
	var assignments []Assignment
	err := ds.DB.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("assignment_date ASC, id ASC").
		Find(&assignments).Error
	if err != nil {
		return nil, fmt.Errorf("getting assignments for batch %d: %w", batchID, err)
	}
	return assignments, nil
}

// GetActiveAssignmentsForBatch returns assignments of a batch without a departure date.
func (ds *DataStore) GetActiveAssignmentsForBatch(ctx context.Context, batchID uint) ([]Assignment, error) {
	var assignments []Assignment
	err := ds.DB.WithContext(ctx).
		Where("batch_id = ? AND departure_date IS NULL", batchID).
		Order("assignment_date ASC, id ASC").
		Find(&assignments).Error
	if err != nil {
		return nil, fmt.Errorf("getting active assignments for batch %d: %w", batchID, err)
	}
	return assignments, nil
}

// UpdateLastWeighingDate stamps the given assignments with a weighing date.
func (ds *DataStore) UpdateLastWeighingDate(ctx context.Context, assignmentIDs []uint, date string) error {
	if len(assignmentIDs) == 0 {
		return nil
	}
	err := ds.DB.WithContext(ctx).
		Model(&Assignment{}).
		Where("id IN ?", assignmentIDs).
		Update("last_weighing_date", date).Error
	if err != nil {
		return fmt.Errorf("updating last weighing date: %w", err)
	}
	return nil
}

// GetContainer retrieves a container by its ID.
func (ds *DataStore) GetContainer(ctx context.Context, id uint) (*Container, error) {
	var container Container
	if err := ds.DB.WithContext(ctx).First(&container, id).Error; err != nil {
		return nil, fmt.Errorf("getting container %d: %w", id, err)
	}
	return &container, nil
}

// GetLifecycleStage retrieves a lifecycle stage by its ID.
func (ds *DataStore) GetLifecycleStage(ctx context.Context, id uint) (*LifecycleStage, error) {
	var stage LifecycleStage
	if err := ds.DB.WithContext(ctx).First(&stage, id).Error; err != nil {
		return nil, fmt.Errorf("getting lifecycle stage %d: %w", id, err)
	}
	return &stage, nil
}

// GetLifecycleStages returns the ordered stages of a species.
func (ds *DataStore) GetLifecycleStages(ctx context.Context, species string) ([]LifecycleStage, error) {
	var stages []LifecycleStage
	err := ds.DB.WithContext(ctx).
		Where("species = ?", species).
		Order("stage_order ASC").
		Find(&stages).Error
	if err != nil {
		return nil, fmt.Errorf("getting lifecycle stages for species %q: %w", species, err)
	}
	return stages, nil
}

// GetProjectionRun retrieves a projection run by its ID.
func (ds *DataStore) GetProjectionRun(ctx context.Context, id uint) (*ProjectionRun, error) {
	var run ProjectionRun
	if err := ds.DB.WithContext(ctx).First(&run, id).Error; err != nil {
		return nil, fmt.Errorf("getting projection run %d: %w", id, err)
	}
	return &run, nil
}

// GetTGCModel retrieves a TGC model with its stage overrides and temperature profile.
func (ds *DataStore) GetTGCModel(ctx context.Context, id uint) (*TGCModel, error) {
	var model TGCModel
	err := ds.DB.WithContext(ctx).
		Preload("StageOverrides").
		Preload("ProfileEntries").
		First(&model, id).Error
	if err != nil {
		return nil, fmt.Errorf("getting TGC model %d: %w", id, err)
	}
	return &model, nil
}

// GetMortalityModel retrieves a mortality model with its stage overrides.
func (ds *DataStore) GetMortalityModel(ctx context.Context, id uint) (*MortalityModel, error) {
	var model MortalityModel
	err := ds.DB.WithContext(ctx).
		Preload("StageOverrides").
		First(&model, id).Error
	if err != nil {
		return nil, fmt.Errorf("getting mortality model %d: %w", id, err)
	}
	return &model, nil
}

// GetStageConstraints returns the constraints of a constraint set.
func (ds *DataStore) GetStageConstraints(ctx context.Context, constraintSetID uint) ([]StageConstraint, error) {
	var constraints []StageConstraint
	err := ds.DB.WithContext(ctx).
		Where("constraint_set_id = ?", constraintSetID).
		Find(&constraints).Error
	if err != nil {
		return nil, fmt.Errorf("getting stage constraints for set %d: %w", constraintSetID, err)
	}
	return constraints, nil
}

// --- Observations ---

// dayBounds returns the UTC start of the given date and the start of the next day.
func dayBounds(date string) (start, end time.Time, err error) {
	start, err = time.Parse(time.DateOnly, date)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing date %q: %w", date, err)
	}
	return start, start.AddDate(0, 0, 1), nil
}

// GetReadingsOnDate returns temperature readings whose timestamp falls on the date.
func (ds *DataStore) GetReadingsOnDate(ctx context.Context, containerID uint, date string) ([]EnvironmentalReading, error) {
	start, end, err := dayBounds(date)
	if err != nil {
		return nil, err
	}
	var readings []EnvironmentalReading
	err = ds.DB.WithContext(ctx).
		Where("container_id = ? AND parameter = ? AND timestamp >= ? AND timestamp < ?",
			containerID, ParameterTemperature, start, end).
		Find(&readings).Error
	if err != nil {
		return nil, fmt.Errorf("getting readings for container %d on %s: %w", containerID, date, err)
	}
	return readings, nil
}

// GetNearestReadingBefore returns the newest temperature reading strictly before
// the date, no older than maxDays. Returns nil when none exists.
func (ds *DataStore) GetNearestReadingBefore(ctx context.Context, containerID uint, date string, maxDays int) (*EnvironmentalReading, error) {
	start, _, err := dayBounds(date)
	if err != nil {
		return nil, err
	}
	earliest := start.AddDate(0, 0, -maxDays)
	var reading EnvironmentalReading
	err = ds.DB.WithContext(ctx).
		Where("container_id = ? AND parameter = ? AND timestamp < ? AND timestamp >= ?",
			containerID, ParameterTemperature, start, earliest).
		Order("timestamp DESC").
		First(&reading).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting nearest reading before %s for container %d: %w", date, containerID, err)
	}
	return &reading, nil
}

// GetNearestReadingAfter returns the oldest temperature reading strictly after
// the date, no further ahead than maxDays. Returns nil when none exists.
func (ds *DataStore) GetNearestReadingAfter(ctx context.Context, containerID uint, date string, maxDays int) (*EnvironmentalReading, error) {
	_, end, err := dayBounds(date)
	if err != nil {
		return nil, err
	}
	latest := end.AddDate(0, 0, maxDays)
	var reading EnvironmentalReading
	err = ds.DB.WithContext(ctx).
		Where("container_id = ? AND parameter = ? AND timestamp >= ? AND timestamp < ?",
			containerID, ParameterTemperature, end, latest).
		Order("timestamp ASC").
		First(&reading).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting nearest reading after %s for container %d: %w", date, containerID, err)
	}
	return &reading, nil
}

// SumMortality returns the summed mortality count for an assignment on a date
// and the number of recorded events contributing to it.
func (ds *DataStore) SumMortality(ctx context.Context, assignmentID uint, date string) (count, events int, err error) {
	var result struct {
		Total  int
		Events int
	}
	err = ds.DB.WithContext(ctx).
		Model(&MortalityEvent{}).
		Select("COALESCE(SUM(count), 0) AS total, COUNT(*) AS events").
		Where("assignment_id = ? AND date = ?", assignmentID, date).
		Scan(&result).Error
	if err != nil {
		return 0, 0, fmt.Errorf("summing mortality for assignment %d on %s: %w", assignmentID, date, err)
	}
	return result.Total, result.Events, nil
}

// SumFeed returns the total feed dispensed to a container on a date.
func (ds *DataStore) SumFeed(ctx context.Context, containerID uint, date string) (float64, error) {
	var total float64
	err := ds.DB.WithContext(ctx).
		Model(&FeedingEvent{}).
		Select("COALESCE(SUM(amount_kg), 0)").
		Where("container_id = ? AND date = ?", containerID, date).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("summing feed for container %d on %s: %w", containerID, date, err)
	}
	return total, nil
}

// SumPlacements returns fish transferred into an assignment on a date via
// completed transfers.
func (ds *DataStore) SumPlacements(ctx context.Context, assignmentID uint, date string) (int, error) {
	var total int
	err := ds.DB.WithContext(ctx).
		Model(&TransferAction{}).
		Select("COALESCE(SUM(transferred_count), 0)").
		Where("dest_assignment_id = ? AND status = ? AND actual_execution_date = ?",
			assignmentID, TransferStatusCompleted, date).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("summing placements for assignment %d on %s: %w", assignmentID, date, err)
	}
	return total, nil
}

// GetGrowthSamplesInRange returns growth samples for an assignment within [start, end].
func (ds *DataStore) GetGrowthSamplesInRange(ctx context.Context, assignmentID uint, start, end string) ([]GrowthSample, error) {
	var samples []GrowthSample
	err := ds.DB.WithContext(ctx).
		Where("assignment_id = ? AND date >= ? AND date <= ?", assignmentID, start, end).
		Order("date ASC").
		Find(&samples).Error
	if err != nil {
		return nil, fmt.Errorf("getting growth samples for assignment %d: %w", assignmentID, err)
	}
	return samples, nil
}

// GetCompletedTransfersFromInRange returns completed transfers out of an
// assignment executed within [start, end].
func (ds *DataStore) GetCompletedTransfersFromInRange(ctx context.Context, assignmentID uint, start, end string) ([]TransferAction, error) {
	var transfers []TransferAction
	err := ds.DB.WithContext(ctx).
		Where("source_assignment_id = ? AND status = ? AND actual_execution_date >= ? AND actual_execution_date <= ?",
			assignmentID, TransferStatusCompleted, start, end).
		Order("actual_execution_date ASC").
		Find(&transfers).Error
	if err != nil {
		return nil, fmt.Errorf("getting transfers from assignment %d: %w", assignmentID, err)
	}
	return transfers, nil
}

// GetCompletedTransfersTo returns all completed transfers into an assignment.
func (ds *DataStore) GetCompletedTransfersTo(ctx context.Context, assignmentID uint) ([]TransferAction, error) {
	var transfers []TransferAction
	err := ds.DB.WithContext(ctx).
		Where("dest_assignment_id = ? AND status = ?", assignmentID, TransferStatusCompleted).
		Order("actual_execution_date ASC").
		Find(&transfers).Error
	if err != nil {
		return nil, fmt.Errorf("getting transfers to assignment %d: %w", assignmentID, err)
	}
	return transfers, nil
}

// GetWeighingTreatmentsInRange returns treatments that included weighing for an
// assignment within [start, end].
func (ds *DataStore) GetWeighingTreatmentsInRange(ctx context.Context, assignmentID uint, start, end string) ([]Treatment, error) {
	var treatments []Treatment
	err := ds.DB.WithContext(ctx).
		Where("assignment_id = ? AND includes_weighing = ? AND date >= ? AND date <= ?",
			assignmentID, true, start, end).
		Order("date ASC").
		Find(&treatments).Error
	if err != nil {
		return nil, fmt.Errorf("getting weighing treatments for assignment %d: %w", assignmentID, err)
	}
	return treatments, nil
}

// GetWeightObservations returns the individual weight observations of a sampling event.
func (ds *DataStore) GetWeightObservations(ctx context.Context, samplingEventID uint) ([]WeightObservation, error) {
	var observations []WeightObservation
	err := ds.DB.WithContext(ctx).
		Where("sampling_event_id = ?", samplingEventID).
		Find(&observations).Error
	if err != nil {
		return nil, fmt.Errorf("getting weight observations for sampling event %d: %w", samplingEventID, err)
	}
	return observations, nil
}

// CreateFeedingEvent stores a new feeding event.
func (ds *DataStore) CreateFeedingEvent(ctx context.Context, event *FeedingEvent) error {
	if err := ds.DB.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("creating feeding event: %w", err)
	}
	return nil
}

// CreateGrowthSample stores a new growth sample.
func (ds *DataStore) CreateGrowthSample(ctx context.Context, sample *GrowthSample) error {
	if err := ds.DB.WithContext(ctx).Create(sample).Error; err != nil {
		return fmt.Errorf("creating growth sample: %w", err)
	}
	return nil
}

// --- Daily state ---

// GetDailyState returns the daily state row for (assignment, date).
// Returns nil when no row exists.
func (ds *DataStore) GetDailyState(ctx context.Context, assignmentID uint, date string) (*DailyState, error) {
	var state DailyState
	err := ds.DB.WithContext(ctx).
		Where("assignment_id = ? AND date = ?", assignmentID, date).
		First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting daily state for assignment %d on %s: %w", assignmentID, date, err)
	}
	return &state, nil
}

// GetLatestDailyStateBefore returns the newest daily state strictly before the
// given date. Returns nil when none exists.
func (ds *DataStore) GetLatestDailyStateBefore(ctx context.Context, assignmentID uint, date string) (*DailyState, error) {
	var state DailyState
	err := ds.DB.WithContext(ctx).
		Where("assignment_id = ? AND date < ?", assignmentID, date).
		Order("date DESC").
		First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest daily state before %s for assignment %d: %w", date, assignmentID, err)
	}
	return &state, nil
}

// GetLatestDailyState returns the newest daily state of an assignment.
// Returns nil when none exists.
func (ds *DataStore) GetLatestDailyState(ctx context.Context, assignmentID uint) (*DailyState, error) {
	var state DailyState
	err := ds.DB.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("date DESC").
		First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest daily state for assignment %d: %w", assignmentID, err)
	}
	return &state, nil
}

// GetDailyStates returns daily states for an assignment within [start, end] in
// calendar order.
func (ds *DataStore) GetDailyStates(ctx context.Context, assignmentID uint, start, end string) ([]DailyState, error) {
	var states []DailyState
	err := ds.DB.WithContext(ctx).
		Where("assignment_id = ? AND date >= ? AND date <= ?", assignmentID, start, end).
		Order("date ASC").
		Find(&states).Error
	if err != nil {
		return nil, fmt.Errorf("getting daily states for assignment %d: %w", assignmentID, err)
	}
	return states, nil
}

// UpsertDailyState creates or updates the row keyed by (assignment, date).
// Reports whether a new row was created.
func (ds *DataStore) UpsertDailyState(ctx context.Context, state *DailyState) (created bool, err error) {
	existing, err := ds.GetDailyState(ctx, state.AssignmentID, state.Date)
	if err != nil {
		return false, err
	}
	if existing == nil {
		if err := ds.DB.WithContext(ctx).Create(state).Error; err != nil {
			return false, fmt.Errorf("creating daily state for assignment %d on %s: %w", state.AssignmentID, state.Date, err)
		}
		return true, nil
	}
	state.ID = existing.ID
	state.CreatedAt = existing.CreatedAt
	if err := ds.DB.WithContext(ctx).Save(state).Error; err != nil {
		return false, fmt.Errorf("updating daily state for assignment %d on %s: %w", state.AssignmentID, state.Date, err)
	}
	return false, nil
}

// DeleteDailyStatesFrom removes all rows of an assignment on or after the date.
// Used when a departure date moves earlier than previously computed rows.
func (ds *DataStore) DeleteDailyStatesFrom(ctx context.Context, assignmentID uint, date string) (int64, error) {
	result := ds.DB.WithContext(ctx).
		Where("assignment_id = ? AND date >= ?", assignmentID, date).
		Delete(&DailyState{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting daily states from %s for assignment %d: %w", date, assignmentID, result.Error)
	}
	return result.RowsAffected, nil
}
