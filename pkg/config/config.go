// Package config provides configuration loading and management for lswt.
// It handles loading configuration from YAML files, .env files and
// environment variables and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"lswt/pkg/quality"
	"lswt/pkg/retrieval"
	"lswt/pkg/spatial"
)

var (
	// ErrUnknownSensor is returned when the configured sensor has no profile.
	ErrUnknownSensor = errors.New("config: unknown sensor")

	// ErrInvalid is returned by Validate for any other inconsistent setting.
	ErrInvalid = errors.New("config: invalid configuration")
)

// Environment variables that override the configuration file
const (
	EnvSensor    = "LSWT_SENSOR"
	EnvAlgorithm = "LSWT_ALGORITHM"
	EnvWorkers   = "LSWT_WORKERS"
	EnvTileSize  = "LSWT_TILE_SIZE"
)

// Algorithms a sensor profile may allow
const (
	AllowBoth        = "both"
	AllowSplitWindow = retrieval.SplitWindowName
	AllowMonoWindow  = retrieval.MonoWindowName
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// Sensor selects the sensor profile (AVHRR, SLSTR, TIRS, VIIRS, AATSR)
		Sensor string `yaml:"sensor"`

		// Algorithm is split-window or mono-window
		Algorithm string `yaml:"algorithm"`

		// QualityVariant is standard, legacy or mono
		QualityVariant string `yaml:"qualityVariant"`

		// NumCores specifies how many tiles are processed in parallel
		NumCores int `yaml:"numCores"`

		// TileSize is the edge length in pixels of the processing tiles
		TileSize int `yaml:"tileSize"`

		// Boundary is the border policy of the neighbourhood tests (reflect, zero)
		Boundary string `yaml:"boundary"`

		// MaskBeforeCalculation sets land and cloud pixels to NaN before retrieval
		MaskBeforeCalculation bool `yaml:"maskBeforeCalculation"`

		// Elevation is the surface height in metres used as LUT coordinate
		Elevation float64 `yaml:"elevation"`

		// AcquisitionDate (YYYY-MM-DD) selects the season of the LUT lookup
		AcquisitionDate string `yaml:"acquisitionDate"`
	} `yaml:"processing"`

	// Split-window parameters
	SplitWindow struct {
		retrieval.Coefficients `yaml:",inline"`

		// UseLUT looks coefficients up per pixel instead of using a0..a3
		UseLUT bool `yaml:"useLUT"`

		// LUTFile is a CSV table; empty selects the built-in table
		LUTFile string `yaml:"lutFile"`

		// CoefFile overrides a0..a3 with the first line of a coefficient file
		CoefFile string `yaml:"coefFile"`
	} `yaml:"splitWindow"`

	// Mono-window parameters
	MonoWindow struct {
		A0 float64 `yaml:"a0"`
		A1 float64 `yaml:"a1"`

		// LUTFile is a CSV table with two coefficients per cell
		LUTFile string `yaml:"lutFile"`
	} `yaml:"monoWindow"`

	// Quality test thresholds
	Quality quality.Filter `yaml:"quality"`

	// Sensor profiles by upper-case sensor name
	Sensors map[string]SensorProfile `yaml:"sensors"`

	// Input sources
	Input struct {
		// Bands maps a band role to the GeoTIFF holding it
		Bands map[string]string `yaml:"bands"`

		// Subset restricts processing to a window around a point
		Subset struct {
			Enabled bool    `yaml:"enabled"`
			X       float64 `yaml:"x"`
			Y       float64 `yaml:"y"`
			Padding int     `yaml:"padding"`
		} `yaml:"subset"`

		// Corners are the scene's lower-left and upper-left corner as
		// (lon, lat), used for sensors without a satellite azimuth band
		Corners struct {
			LowerLeft []float64 `yaml:"lowerLeft,omitempty"`
			UpperLeft []float64 `yaml:"upperLeft,omitempty"`
		} `yaml:"corners"`
	} `yaml:"input"`

	// Output parameters
	Output struct {
		// Path of the result GeoTIFF
		Path string `yaml:"path"`

		// Quicklooks determines whether PNG previews are written next to Path
		Quicklooks bool `yaml:"quicklooks"`

		// MetricsFile receives Prometheus metrics in text format when set
		MetricsFile string `yaml:"metricsFile"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.Sensor = "AVHRR"
	cfg.Processing.Algorithm = retrieval.SplitWindowName
	cfg.Processing.QualityVariant = "standard"
	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.TileSize = 512
	cfg.Processing.Boundary = spatial.Reflect.String()
	cfg.Processing.MaskBeforeCalculation = false
	cfg.Processing.Elevation = 400

	// Set default split-window parameters
	cfg.SplitWindow.Coefficients = retrieval.DefaultSplitWindowCoefficients
	cfg.SplitWindow.UseLUT = true

	// Set default mono-window parameters
	cfg.MonoWindow.A0 = 1
	cfg.MonoWindow.A1 = 0

	cfg.Quality = quality.DefaultFilter()
	cfg.Sensors = DefaultSensors()

	// Set default output parameters
	cfg.Output.Path = "lswt.tif"
	cfg.Output.Quicklooks = false
	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
// A .env file next to the configuration is loaded first; environment
// variables then override the file.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadDotEnv(filepath.Join(filepath.Dir(configPath), ".env")); err != nil {
		return nil, err
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads path into the process environment when it exists.
// Variables already set are kept.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error loading env file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(EnvSensor)); v != "" {
		cfg.Processing.Sensor = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAlgorithm)); v != "" {
		cfg.Processing.Algorithm = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvWorkers)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalid, EnvWorkers, v, err)
		}
		cfg.Processing.NumCores = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvTileSize)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalid, EnvTileSize, v, err)
		}
		cfg.Processing.TileSize = n
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Profile returns the profile of the configured sensor.
func (c *Config) Profile() (SensorProfile, error) {
	p, ok := c.Sensors[strings.ToUpper(c.Processing.Sensor)]
	if !ok {
		known := make([]string, 0, len(c.Sensors))
		for name := range c.Sensors {
			known = append(known, name)
		}
		sort.Strings(known)
		return SensorProfile{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownSensor, c.Processing.Sensor, strings.Join(known, ", "))
	}
	return p, nil
}

// Season returns the season index of the acquisition date, or spring when
// no date is configured.
func (c *Config) Season() (int, error) {
	if c.Processing.AcquisitionDate == "" {
		return retrieval.Spring, nil
	}
	t, err := time.Parse(time.DateOnly, c.Processing.AcquisitionDate)
	if err != nil {
		return 0, fmt.Errorf("%w: acquisition date: %v", ErrInvalid, err)
	}
	return retrieval.SeasonOf(t), nil
}

// Validate checks names and numeric ranges.
func (c *Config) Validate() error {
	p, err := c.Profile()
	if err != nil {
		return err
	}

	alg := c.Processing.Algorithm
	if alg != retrieval.SplitWindowName && alg != retrieval.MonoWindowName {
		return fmt.Errorf("%w: unknown algorithm %q", ErrInvalid, alg)
	}
	if !p.Allows(alg) {
		return fmt.Errorf("%w: sensor %s does not support %s", ErrInvalid, c.Processing.Sensor, alg)
	}

	switch c.Processing.QualityVariant {
	case "", "standard", "legacy", "mono":
	default:
		return fmt.Errorf("%w: unknown quality variant %q", ErrInvalid, c.Processing.QualityVariant)
	}
	// The legacy checker needs three thermal bands, mono-window has one
	if c.Processing.QualityVariant == "legacy" && alg == retrieval.MonoWindowName {
		return fmt.Errorf("%w: quality variant legacy requires %s", ErrInvalid, retrieval.SplitWindowName)
	}

	if _, err := spatial.ParseBoundary(c.Processing.Boundary); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("%w: numCores must be at least 1", ErrInvalid)
	}
	if c.Processing.TileSize < 0 {
		return fmt.Errorf("%w: tileSize must not be negative", ErrInvalid)
	}
	if _, err := c.Season(); err != nil {
		return err
	}
	if err := c.Quality.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
