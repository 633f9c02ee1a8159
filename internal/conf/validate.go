package conf

import (
	"errors"
	"fmt"
)

// ValidateSettings checks the loaded settings for values the core cannot
// operate with. Returns a joined error listing every failed field.
func ValidateSettings(settings *Settings) error {
	var errs []error

	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		errs = append(errs, errors.New("output: either sqlite or mysql must be enabled"))
	}
	if settings.Output.SQLite.Enabled && settings.Output.SQLite.Path == "" {
		errs = append(errs, errors.New("output.sqlite.path: must not be empty"))
	}

	if settings.Growth.FreshwaterTempC <= 0 {
		errs = append(errs, fmt.Errorf("growth.freshwatertempc: must be positive, got %g", settings.Growth.FreshwaterTempC))
	}
	if settings.Growth.BiasLargest <= 0 || settings.Growth.BiasLargest > 1 {
		errs = append(errs, fmt.Errorf("growth.biaslargest: must be in (0, 1], got %g", settings.Growth.BiasLargest))
	}
	if settings.Growth.BiasSmallest < 1 {
		errs = append(errs, fmt.Errorf("growth.biassmallest: must be >= 1, got %g", settings.Growth.BiasSmallest))
	}
	if settings.Growth.FCRGainFloorKg < 0 {
		errs = append(errs, fmt.Errorf("growth.fcrgainfloorkg: must not be negative, got %g", settings.Growth.FCRGainFloorKg))
	}
	if settings.Growth.FCRCap <= 0 {
		errs = append(errs, fmt.Errorf("growth.fcrcap: must be positive, got %g", settings.Growth.FCRCap))
	}
	for stage, capG := range settings.Growth.StageCaps {
		if capG <= 0 {
			errs = append(errs, fmt.Errorf("growth.stagecaps[%s]: must be positive, got %g", stage, capG))
		}
	}

	if settings.Scheduler.Workers < 1 {
		errs = append(errs, fmt.Errorf("scheduler.workers: must be at least 1, got %d", settings.Scheduler.Workers))
	}
	if settings.Scheduler.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("scheduler.queuesize: must be at least 1, got %d", settings.Scheduler.QueueSize))
	}
	if settings.Scheduler.RecomputeWindowDays < 1 {
		errs = append(errs, fmt.Errorf("scheduler.recomputewindowdays: must be at least 1, got %d", settings.Scheduler.RecomputeWindowDays))
	}

	return errors.Join(errs...)
}
