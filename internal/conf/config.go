// config.go: configuration settings for the growth assimilation core
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Log rotation types
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled  bool         // true to enable this log
	Path     string       // path to log file
	Rotation RotationType // rotation type
	MaxSize  int64        // max size in bytes for size rotation
}

// MainSettings contains general application settings
type MainSettings struct {
	Name string    // name of the node running the core
	Log  LogConfig // main log configuration
}

// SQLiteSettings contains the SQLite database configuration
type SQLiteSettings struct {
	Enabled bool   // true to enable SQLite
	Path    string // path to the database file
}

// MySQLSettings contains the MySQL database configuration
type MySQLSettings struct {
	Enabled  bool   // true to enable MySQL
	Username string // username for MySQL
	Password string // password for MySQL
	Database string // database name
	Host     string // host for MySQL
	Port     string // port for MySQL
}

// OutputSettings selects the persistence backend for daily states
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// WebServerSettings contains the admin HTTP server configuration
type WebServerSettings struct {
	Enabled bool   // true to enable the admin API
	Port    string // port to listen on
	Log     LogConfig
}

// GrowthSettings contains the tunable constants of the growth model.
// Defaults match the values the imported projection models were fitted with.
type GrowthSettings struct {
	FreshwaterTempC float64            // reference temperature for freshwater stages
	StageCaps       map[string]float64 // permissive per-stage weight safety caps, grams
	BiasLargest     float64            // selection-bias factor for LARGEST transfers
	BiasSmallest    float64            // selection-bias factor for SMALLEST transfers
	FCRGainFloorKg  float64            // minimum biomass gain before FCR is computed
	FCRCap          float64            // upper bound on observed FCR
}

// SchedulerSettings controls the recompute job scheduler
type SchedulerSettings struct {
	RecomputeWindowDays int // rolling window for event-triggered recomputes
	Workers             int // number of concurrent recompute workers
	QueueSize           int // job queue buffer size
}

// Settings is the root configuration object
type Settings struct {
	Debug bool // true to enable debug mode

	Main      MainSettings
	Output    OutputSettings
	WebServer WebServerSettings
	Growth    GrowthSettings
	Scheduler SchedulerSettings
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	// Initialize viper and read config
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	// Unmarshal the config into settings
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	// Validate settings
	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the default settings to config.yaml in the given
// directory and re-reads the configuration from it.
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	yamlData, err := yaml.Marshal(DefaultSettings())
	if err != nil {
		return fmt.Errorf("error marshaling default config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, yamlData, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// GetDefaultConfigPaths returns the list of directories searched for config.yaml.
// Order matters: the working directory wins over the user config directory.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}

	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "aquatrack"))
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "aquatrack"))
	}

	return paths, nil
}

// Setting returns the current settings instance, loading defaults on first use.
func Setting() *Settings {
	settingsMutex.RLock()
	if settingsInstance != nil {
		defer settingsMutex.RUnlock()
		return settingsInstance
	}
	settingsMutex.RUnlock()

	once.Do(func() {
		if _, err := Load(); err != nil {
			// Fall back to defaults-only settings so callers never receive nil
			setDefaultConfig()
			settings := &Settings{}
			if err := viper.Unmarshal(settings); err == nil {
				settingsMutex.Lock()
				settingsInstance = settings
				settingsMutex.Unlock()
			}
		}
	})

	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SetTestSettings replaces the settings instance, for use in tests only.
func SetTestSettings(settings *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = settings
}
