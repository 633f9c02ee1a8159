// defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "AquaTrack")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "aquatrack.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 1048576)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "aquatrack.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "aquatrack")
	viper.SetDefault("output.mysql.password", "secret")
	viper.SetDefault("output.mysql.database", "aquatrack")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.log.enabled", true)
	viper.SetDefault("webserver.log.path", "webui.log")
	viper.SetDefault("webserver.log.rotation", RotationDaily)
	viper.SetDefault("webserver.log.maxsize", 1048576)

	// Growth model constants. Stage caps are permissive safety limits,
	// larger than natural transition thresholds.
	viper.SetDefault("growth.freshwatertempc", 12.0)
	viper.SetDefault("growth.stagecaps", map[string]float64{
		"egg&alevin": 1.0,
		"fry":        10.0,
		"parr":       100.0,
		"smolt":      250.0,
		"post-smolt": 700.0,
		"adult":      8000.0,
	})
	viper.SetDefault("growth.biaslargest", 0.88)
	viper.SetDefault("growth.biassmallest", 1.12)
	viper.SetDefault("growth.fcrgainfloorkg", 1.0)
	viper.SetDefault("growth.fcrcap", 10.0)

	viper.SetDefault("scheduler.recomputewindowdays", 30)
	viper.SetDefault("scheduler.workers", 4)
	viper.SetDefault("scheduler.queuesize", 1000)
}

// DefaultSettings returns a Settings populated with defaults only, without
// touching the config file. Used by tests and by one-shot CLI runs.
func DefaultSettings() *Settings {
	return &Settings{
		Main: MainSettings{
			Name: "AquaTrack",
			Log: LogConfig{
				Enabled:  true,
				Path:     "aquatrack.log",
				Rotation: RotationDaily,
				MaxSize:  1048576,
			},
		},
		Output: OutputSettings{
			SQLite: SQLiteSettings{Enabled: true, Path: "aquatrack.db"},
		},
		WebServer: WebServerSettings{Enabled: true, Port: "8080"},
		Growth: GrowthSettings{
			FreshwaterTempC: 12.0,
			StageCaps: map[string]float64{
				"egg&alevin": 1.0,
				"fry":        10.0,
				"parr":       100.0,
				"smolt":      250.0,
				"post-smolt": 700.0,
				"adult":      8000.0,
			},
			BiasLargest:    0.88,
			BiasSmallest:   1.12,
			FCRGainFloorKg: 1.0,
			FCRCap:         10.0,
		},
		Scheduler: SchedulerSettings{
			RecomputeWindowDays: 30,
			Workers:             4,
			QueueSize:           1000,
		},
	}
}
