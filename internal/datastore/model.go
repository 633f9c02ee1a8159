// model.go this code defines the data model for the application
package datastore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Transfer action status and selection methods
const (
	TransferStatusCompleted = "completed"
	TransferStatusPending   = "pending"
	TransferStatusCancelled = "cancelled"

	SelectionLargest  = "LARGEST"
	SelectionSmallest = "SMALLEST"
	SelectionAverage  = "AVERAGE"
)

// Environmental reading parameter names
const (
	ParameterTemperature = "temperature"
	ParameterOxygen      = "oxygen"
	ParameterSalinity    = "salinity"
)

// Mortality model rate intervals
const (
	IntervalDaily  = "daily"
	IntervalWeekly = "weekly"
)

// Anchor types stored on daily state rows
const (
	AnchorGrowthSample = "growth_sample"
	AnchorTransfer     = "transfer"
	AnchorVaccination  = "vaccination"
)

// Batch represents a cohort of fish tracked through its lifecycle
type Batch struct {
	ID               uint   `gorm:"primaryKey"`
	Number           string `gorm:"uniqueIndex;not null"` // operator-facing batch number
	Species          string `gorm:"index"`
	StartDate        string `gorm:"index"` // YYYY-MM-DD
	LifecycleStageID *uint  // current stage of the batch as a whole
	ProjectionRunID  *uint  // pinned projection supplying TGC/mortality/constraints
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// LifecycleStage is an ordered biological phase for a species
type LifecycleStage struct {
	ID                 uint   `gorm:"primaryKey"`
	Species            string `gorm:"index:idx_stages_species_order"`
	Name               string `gorm:"index"`
	Order              int    `gorm:"column:stage_order;index:idx_stages_species_order"`
	ExpectedWeightMinG float64
	ExpectedWeightMaxG float64
}

// Hall is a freshwater building holding containers
type Hall struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

// Area is a sea site holding containers
type Area struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

// Container is a physical holding unit located under a Hall (freshwater) or an Area (sea)
type Container struct {
	ID     uint `gorm:"primaryKey"`
	Name   string
	HallID *uint `gorm:"index"`
	AreaID *uint `gorm:"index"`
}

// IsFreshwater reports whether the container sits under a hall.
func (c *Container) IsFreshwater() bool {
	return c.HallID != nil
}

// Assignment is the residency of a batch in a container over a date range.
// DepartureDate is exclusive: ownership transfers on the departure day.
type Assignment struct {
	ID               uint    `gorm:"primaryKey"`
	BatchID          uint    `gorm:"index;not null"`
	ContainerID      uint    `gorm:"index;not null"`
	LifecycleStageID uint    `gorm:"index"`
	AssignmentDate   string  `gorm:"index"` // inclusive, YYYY-MM-DD
	DepartureDate    *string `gorm:"index"` // exclusive, YYYY-MM-DD
	PopulationCount  int
	AvgWeightG       *float64
	LastWeighingDate *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsActive reports whether the assignment has no departure date yet.
func (a *Assignment) IsActive() bool {
	return a.DepartureDate == nil
}

// ProjectionRun pins the model set a batch is projected and assimilated with
type ProjectionRun struct {
	ID               uint `gorm:"primaryKey"`
	Name             string
	TGCModelID       *uint
	MortalityModelID *uint
	ConstraintSetID  *uint
	CreatedAt        time.Time
}

// TGCModel holds thermal growth coefficients. Temperature and weight exponents
// are persisted for round-trip compatibility with imported models but the
// canonical cube-root path does not use them.
type TGCModel struct {
	ID             uint `gorm:"primaryKey"`
	Name           string
	BaseTGC        float64 // per 1000 degree-days
	TempExponent   float64
	WeightExponent float64
	InitialWeightG *float64
	StageOverrides []TGCStageOverride        `gorm:"foreignKey:TGCModelID;constraint:OnDelete:CASCADE"`
	ProfileEntries []TemperatureProfileEntry `gorm:"foreignKey:TGCModelID;constraint:OnDelete:CASCADE"`
}

// TGCStageOverride overrides the base TGC for one lifecycle stage
type TGCStageOverride struct {
	ID         uint   `gorm:"primaryKey"`
	TGCModelID uint   `gorm:"index;not null"`
	Stage      string `gorm:"not null"`
	TGC        float64
}

// TemperatureProfileEntry maps a batch day number to an expected temperature,
// used as the last-resort temperature source.
type TemperatureProfileEntry struct {
	ID         uint `gorm:"primaryKey"`
	TGCModelID uint `gorm:"index;not null"`
	DayNumber  int  `gorm:"index"`
	TempC      float64
}

// MortalityModel holds a base mortality rate in percent per interval
type MortalityModel struct {
	ID             uint `gorm:"primaryKey"`
	Name           string
	Rate           float64 // percent per interval
	Interval       string  // daily or weekly
	StageOverrides []MortalityStageOverride `gorm:"foreignKey:MortalityModelID;constraint:OnDelete:CASCADE"`
}

// MortalityStageOverride overrides the mortality rate for one lifecycle stage
type MortalityStageOverride struct {
	ID               uint   `gorm:"primaryKey"`
	MortalityModelID uint   `gorm:"index;not null"`
	Stage            string `gorm:"not null"`
	Rate             float64 // percent per the model's interval
}

// ConstraintSet groups per-stage weight and temperature constraints
type ConstraintSet struct {
	ID          uint `gorm:"primaryKey"`
	Name        string
	Constraints []StageConstraint `gorm:"foreignKey:ConstraintSetID;constraint:OnDelete:CASCADE"`
}

// StageConstraint bounds weight and temperature for one stage
type StageConstraint struct {
	ID                   uint   `gorm:"primaryKey"`
	ConstraintSetID      uint   `gorm:"index;not null"`
	Stage                string `gorm:"not null"`
	MinWeightG           float64
	MaxWeightG           float64
	FreshwaterMaxWeightG *float64
	MinTempC             *float64
	MaxTempC             *float64
}

// GrowthSample is a measured weighing of fish in an assignment
type GrowthSample struct {
	ID           uint   `gorm:"primaryKey"`
	AssignmentID uint   `gorm:"index:idx_samples_assignment_date;not null"`
	Date         string `gorm:"index:idx_samples_assignment_date"` // YYYY-MM-DD
	AvgWeightG   float64
	SampleSize   int
	CreatedAt    time.Time
}

// TransferAction moves fish between assignments
type TransferAction struct {
	ID                  uint    `gorm:"primaryKey"`
	SourceAssignmentID  uint    `gorm:"index;not null"`
	DestAssignmentID    uint    `gorm:"index;not null"`
	ActualExecutionDate *string `gorm:"index"` // YYYY-MM-DD, set when executed
	Status              string  `gorm:"index"`
	SelectionMethod     string
	MeasuredAvgWeightG  *float64
	TransferredCount    int
	CreatedAt           time.Time
}

// MortalityEvent records observed deaths in an assignment on a date
type MortalityEvent struct {
	ID           uint   `gorm:"primaryKey"`
	AssignmentID uint   `gorm:"index:idx_mortality_assignment_date;not null"`
	Date         string `gorm:"index:idx_mortality_assignment_date"`
	Count        int
	CreatedAt    time.Time
}

// FeedingEvent records feed dispensed to a container on a date
type FeedingEvent struct {
	ID           uint   `gorm:"primaryKey"`
	AssignmentID uint   `gorm:"index"`
	ContainerID  uint   `gorm:"index:idx_feeding_container_date;not null"`
	Date         string `gorm:"index:idx_feeding_container_date"`
	AmountKg     float64
	CreatedAt    time.Time
}

// SamplingEvent groups individual weight observations taken during a treatment
type SamplingEvent struct {
	ID   uint   `gorm:"primaryKey"`
	Date string `gorm:"index"`
}

// WeightObservation is one individually weighed fish within a sampling event
type WeightObservation struct {
	ID              uint `gorm:"primaryKey"`
	SamplingEventID uint `gorm:"index;not null"`
	WeightG         float64
}

// Treatment is a handling event (e.g. vaccination) that may include weighing
type Treatment struct {
	ID               uint   `gorm:"primaryKey"`
	AssignmentID     uint   `gorm:"index:idx_treatments_assignment_date;not null"`
	Date             string `gorm:"index:idx_treatments_assignment_date"`
	Kind             string
	IncludesWeighing bool
	SamplingEventID  *uint
	CreatedAt        time.Time
}

// EnvironmentalReading is a timestamped sensor reading for a container
type EnvironmentalReading struct {
	ID          uint      `gorm:"primaryKey"`
	ContainerID uint      `gorm:"index:idx_readings_container_ts;not null"`
	Timestamp   time.Time `gorm:"index:idx_readings_container_ts"`
	Parameter   string    `gorm:"index"`
	Value       float64
}

// SourceMap maps daily-state field names to provenance tags.
// Stored as JSON text so SQLite and MySQL behave identically.
type SourceMap map[string]string

// Value implements driver.Valuer
func (m SourceMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (m *SourceMap) Scan(value any) error {
	return scanJSONMap(value, m)
}

// ConfidenceMap maps daily-state field names to confidence scores in [0,1]
type ConfidenceMap map[string]float64

// Value implements driver.Valuer
func (m ConfidenceMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (m *ConfidenceMap) Scan(value any) error {
	return scanJSONMap(value, m)
}

func scanJSONMap(value, dest any) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported type %T for JSON map column", value)
	}
}

// DailyState is the per-day reconstructed snapshot for one assignment.
// Rows are unique per (assignment, date) and only ever written by the
// range recomputer.
type DailyState struct {
	ID               uint    `gorm:"primaryKey"`
	AssignmentID     uint    `gorm:"uniqueIndex:idx_daily_states_assignment_date;not null"`
	Date             string  `gorm:"uniqueIndex:idx_daily_states_assignment_date;index"` // YYYY-MM-DD
	DayNumber        int     // (date - batch.start_date) + 1
	AvgWeightG       float64 // rounded to 2 decimals
	Population       int
	BiomassKg        float64  // population * avg_weight_g / 1000, 2 decimals
	TempC            *float64 // rounded to 2 decimals, nil when unresolved
	MortalityCount   int
	FeedKg           float64
	ObservedFCR      *float64 // rounded to 3 decimals, nil when unset
	AnchorType       *string
	LifecycleStage   string
	Sources          SourceMap     `gorm:"type:text"`
	ConfidenceScores ConfidenceMap `gorm:"type:text"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
