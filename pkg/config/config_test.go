package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lswt/pkg/retrieval"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "AVHRR", cfg.Processing.Sensor)
	assert.Equal(t, retrieval.SplitWindowName, cfg.Processing.Algorithm)
	assert.Equal(t, "reflect", cfg.Processing.Boundary)
	assert.Greater(t, cfg.Processing.NumCores, 0)
	assert.Equal(t, retrieval.DefaultSplitWindowCoefficients, cfg.SplitWindow.Coefficients)
	assert.Equal(t, 268.15, cfg.Quality.LSWTMin)
	assert.Len(t, cfg.Sensors, 5)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Processing.Sensor, cfg.Processing.Sensor)
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "lswt.yaml")
	cfg := DefaultConfig()
	cfg.Processing.Sensor = "SLSTR"
	cfg.Processing.TileSize = 128
	cfg.SplitWindow.A3 = -0.5
	cfg.Quality.LSWTMax = 310
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "SLSTR", loaded.Processing.Sensor)
	assert.Equal(t, 128, loaded.Processing.TileSize)
	assert.Equal(t, -0.5, loaded.SplitWindow.A3)
	assert.Equal(t, 310.0, loaded.Quality.LSWTMax)
	assert.Equal(t, cfg.Quality, loaded.Quality)

	p, err := loaded.Profile()
	require.NoError(t, err)
	assert.Equal(t, 1525.94, p.Irradiance["visible"])
	assert.Equal(t, 6553.5, loaded.Sensors["AVHRR"].Fill())
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))
	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("processing: [unterminated"), 0644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvSensor, "viirs")
	t.Setenv(EnvAlgorithm, retrieval.MonoWindowName)
	t.Setenv(EnvWorkers, "3")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "viirs", cfg.Processing.Sensor)
	assert.Equal(t, retrieval.MonoWindowName, cfg.Processing.Algorithm)
	assert.Equal(t, 3, cfg.Processing.NumCores)
	assert.NoError(t, cfg.Validate())

	t.Setenv(EnvWorkers, "many")
	_, err = LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(EnvTileSize+"=64\n"), 0644))
	t.Cleanup(func() { os.Unsetenv(EnvTileSize) })

	cfg, err := LoadConfig(filepath.Join(dir, "lswt.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Processing.TileSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		err    error
	}{
		{"unknown sensor", func(c *Config) { c.Processing.Sensor = "MODIS" }, ErrUnknownSensor},
		{"unknown algorithm", func(c *Config) { c.Processing.Algorithm = "triple-window" }, ErrInvalid},
		{"sensor without mono-window", func(c *Config) {
			c.Processing.Sensor = "TIRS"
			c.Processing.Algorithm = retrieval.MonoWindowName
		}, ErrInvalid},
		{"sensor without split-window", func(c *Config) { c.Processing.Sensor = "VIIRS" }, ErrInvalid},
		{"unknown variant", func(c *Config) { c.Processing.QualityVariant = "strict" }, ErrInvalid},
		{"legacy variant with mono-window", func(c *Config) {
			c.Processing.Algorithm = retrieval.MonoWindowName
			c.Processing.QualityVariant = "legacy"
		}, ErrInvalid},
		{"unknown boundary", func(c *Config) { c.Processing.Boundary = "wrap" }, ErrInvalid},
		{"no workers", func(c *Config) { c.Processing.NumCores = 0 }, ErrInvalid},
		{"bad date", func(c *Config) { c.Processing.AcquisitionDate = "15.05.2017" }, ErrInvalid},
		{"bad threshold", func(c *Config) { c.Quality.Window = 4 }, ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.err)
		})
	}
}

func TestValidateVariants(t *testing.T) {
	for _, variant := range []string{"standard", "legacy", "mono"} {
		cfg := DefaultConfig()
		cfg.Processing.QualityVariant = variant
		assert.NoError(t, cfg.Validate(), "split-window with %s", variant)
	}
	cfg := DefaultConfig()
	cfg.Processing.Algorithm = retrieval.MonoWindowName
	cfg.Processing.QualityVariant = "mono"
	assert.NoError(t, cfg.Validate())
}

func TestSeason(t *testing.T) {
	cfg := DefaultConfig()
	s, err := cfg.Season()
	require.NoError(t, err)
	assert.Equal(t, retrieval.Spring, s)

	cfg.Processing.AcquisitionDate = "2014-11-12"
	s, err = cfg.Season()
	require.NoError(t, err)
	assert.Equal(t, retrieval.Autumn, s)
}

func TestSensorProfiles(t *testing.T) {
	sensors := DefaultSensors()

	assert.True(t, sensors["AVHRR"].Allows(retrieval.MonoWindowName))
	assert.True(t, sensors["TIRS"].Allows(retrieval.SplitWindowName))
	assert.False(t, sensors["TIRS"].Allows(retrieval.MonoWindowName))
	assert.True(t, sensors["AATSR"].IsElevation("satZenith"))
	assert.False(t, sensors["SLSTR"].IsElevation("satZenith"))
	assert.True(t, math.IsNaN(sensors["SLSTR"].Fill()))
	assert.Equal(t, "btemp_nadir_1200", sensors["AATSR"].Bands["mono"])

	assert.True(t, Thermal("lowest"))
	assert.True(t, Optical("nir"))
	assert.True(t, Angle("relAzimuth"))
	assert.False(t, Angle("landWater"))
}
