// Package masterdata resolves and caches the model set a batch is assimilated
// with: TGC model, mortality model, stage constraints, and lifecycle stages.
// Master data is read-only for the duration of a recompute job; admin changes
// are followed by an explicit invalidation and recompute, so cache coherency
// beyond the TTL is not required.
package masterdata

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/tphakala/aquatrack/internal/datastore"
	"github.com/tphakala/aquatrack/internal/logging"
)

const (
	defaultExpiration = 5 * time.Minute
	cleanupInterval   = 10 * time.Minute

	daysPerWeek = 7
	percent     = 100.0
)

// Data is the resolved model set for one batch. TGC, Mortality and
// Constraints may be nil/empty when the batch has no pinned projection;
// the bootstrap ladder decides whether that is fatal.
type Data struct {
	TGC         *datastore.TGCModel
	Mortality   *datastore.MortalityModel
	Constraints map[string]datastore.StageConstraint // lowercased stage name -> constraint
	Stages      []datastore.LifecycleStage           // ordered by stage_order
}

// Resolver loads master data for batches with a read-through cache.
type Resolver struct {
	ds    datastore.Interface
	cache *gocache.Cache
	log   *slog.Logger
}

// NewResolver creates a master data resolver backed by the given store.
func NewResolver(ds datastore.Interface) *Resolver {
	return &Resolver{
		ds:    ds,
		cache: gocache.New(defaultExpiration, cleanupInterval),
		log:   logging.ForService("masterdata"),
	}
}

func cacheKey(batchID uint) string {
	return fmt.Sprintf("batch:%d", batchID)
}

// ForBatch resolves the model set for a batch, serving from cache when possible.
func (r *Resolver) ForBatch(ctx context.Context, batch *datastore.Batch) (*Data, error) {
	key := cacheKey(batch.ID)
	if cached, ok := r.cache.Get(key); ok {
		return cached.(*Data), nil
	}

	data := &Data{
		Constraints: make(map[string]datastore.StageConstraint),
	}

	stages, err := r.ds.GetLifecycleStages(ctx, batch.Species)
	if err != nil {
		return nil, fmt.Errorf("loading lifecycle stages: %w", err)
	}
	data.Stages = stages

	if batch.ProjectionRunID != nil {
		run, err := r.ds.GetProjectionRun(ctx, *batch.ProjectionRunID)
		if err != nil {
			return nil, fmt.Errorf("loading projection run: %w", err)
		}
		if run.TGCModelID != nil {
			data.TGC, err = r.ds.GetTGCModel(ctx, *run.TGCModelID)
			if err != nil {
				return nil, fmt.Errorf("loading TGC model: %w", err)
			}
			sort.Slice(data.TGC.ProfileEntries, func(i, j int) bool {
				return data.TGC.ProfileEntries[i].DayNumber < data.TGC.ProfileEntries[j].DayNumber
			})
		}
		if run.MortalityModelID != nil {
			data.Mortality, err = r.ds.GetMortalityModel(ctx, *run.MortalityModelID)
			if err != nil {
				return nil, fmt.Errorf("loading mortality model: %w", err)
			}
		}
		if run.ConstraintSetID != nil {
			constraints, err := r.ds.GetStageConstraints(ctx, *run.ConstraintSetID)
			if err != nil {
				return nil, fmt.Errorf("loading stage constraints: %w", err)
			}
			for _, c := range constraints {
				data.Constraints[normalizeStage(c.Stage)] = c
			}
		}
	}

	r.cache.Set(key, data, gocache.DefaultExpiration)
	r.log.Debug("master data resolved",
		"batch_id", batch.ID,
		"has_tgc", data.TGC != nil,
		"has_mortality", data.Mortality != nil,
		"constraints", len(data.Constraints),
		"stages", len(data.Stages))
	return data, nil
}

// Invalidate drops the cached model set for a batch. Called before admin
// recomputes so model edits take effect immediately.
func (r *Resolver) Invalidate(batchID uint) {
	r.cache.Delete(cacheKey(batchID))
}

func normalizeStage(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// TGCForStage returns the TGC value for a stage, applying a per-stage override
// when present. Reports false when the batch has no TGC model.
func (d *Data) TGCForStage(stage string) (float64, bool) {
	if d.TGC == nil {
		return 0, false
	}
	normalized := normalizeStage(stage)
	for i := range d.TGC.StageOverrides {
		if normalizeStage(d.TGC.StageOverrides[i].Stage) == normalized {
			return d.TGC.StageOverrides[i].TGC, true
		}
	}
	return d.TGC.BaseTGC, true
}

// DailyMortalityRate returns the daily mortality rate as a fraction for a
// stage, converting weekly rates and applying per-stage overrides.
func (d *Data) DailyMortalityRate(stage string) (float64, bool) {
	if d.Mortality == nil {
		return 0, false
	}
	rate := d.Mortality.Rate
	normalized := normalizeStage(stage)
	for i := range d.Mortality.StageOverrides {
		if normalizeStage(d.Mortality.StageOverrides[i].Stage) == normalized {
			rate = d.Mortality.StageOverrides[i].Rate
			break
		}
	}
	daily := rate / percent
	if d.Mortality.Interval == datastore.IntervalWeekly {
		daily /= daysPerWeek
	}
	return daily, true
}

// ConstraintFor returns the stage constraint for a stage name, if any.
func (d *Data) ConstraintFor(stage string) (datastore.StageConstraint, bool) {
	c, ok := d.Constraints[normalizeStage(stage)]
	return c, ok
}

// StageByName returns the lifecycle stage with the given name.
func (d *Data) StageByName(name string) (datastore.LifecycleStage, bool) {
	normalized := normalizeStage(name)
	for i := range d.Stages {
		if normalizeStage(d.Stages[i].Name) == normalized {
			return d.Stages[i], true
		}
	}
	return datastore.LifecycleStage{}, false
}

// StageByID returns the lifecycle stage with the given ID.
func (d *Data) StageByID(id uint) (datastore.LifecycleStage, bool) {
	for i := range d.Stages {
		if d.Stages[i].ID == id {
			return d.Stages[i], true
		}
	}
	return datastore.LifecycleStage{}, false
}

// NextStage returns the stage following the given one in species order.
func (d *Data) NextStage(current string) (datastore.LifecycleStage, bool) {
	stage, ok := d.StageByName(current)
	if !ok {
		return datastore.LifecycleStage{}, false
	}
	for i := range d.Stages {
		if d.Stages[i].Order > stage.Order {
			return d.Stages[i], true
		}
	}
	return datastore.LifecycleStage{}, false
}

// ProfileTemp returns the profile temperature for a batch day number. Sparse
// profiles resolve to the closest entry at or before the day.
func (d *Data) ProfileTemp(dayNumber int) (float64, bool) {
	if d.TGC == nil || len(d.TGC.ProfileEntries) == 0 {
		return 0, false
	}
	entries := d.TGC.ProfileEntries
	idx := sort.Search(len(entries), func(i int) bool {
		return entries[i].DayNumber > dayNumber
	})
	if idx == 0 {
		return 0, false
	}
	return entries[idx-1].TempC, true
}
