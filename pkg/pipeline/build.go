package pipeline

import (
	"fmt"

	"lswt/internal/models"
	"lswt/pkg/config"
	"lswt/pkg/lut"
	"lswt/pkg/quality"
	"lswt/pkg/retrieval"
	"lswt/pkg/spatial"
)

// NewChecker builds the quality checker selected by the configuration.
func NewChecker(cfg *config.Config) (*quality.Engine, error) {
	b, err := spatial.ParseBoundary(cfg.Processing.Boundary)
	if err != nil {
		return nil, err
	}
	return quality.New(cfg.Processing.QualityVariant,
		quality.WithFilter(cfg.Quality),
		quality.WithCloudPolicy(quality.CloudPolicyFor(cfg.Processing.Sensor, cfg.Quality)),
		quality.WithBoundary(b),
	)
}

// NewAlgorithm builds the retrieval algorithm selected by the
// configuration. A split-window coefficient file takes precedence over the
// lookup table.
func NewAlgorithm(cfg *config.Config) (retrieval.Algorithm, error) {
	checker, err := NewChecker(cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.Processing.Algorithm {
	case retrieval.SplitWindowName:
		sw := cfg.SplitWindow
		if sw.CoefFile != "" {
			c, err := retrieval.ReadCoefficientFile(sw.CoefFile)
			if err != nil {
				return nil, err
			}
			return retrieval.NewSplitWindow(c, checker), nil
		}
		if !sw.UseLUT {
			return retrieval.NewSplitWindow(sw.Coefficients, checker), nil
		}
		table := retrieval.DefaultSplitWindowTable()
		if sw.LUTFile != "" {
			if table, err = lut.LoadCSVFile(sw.LUTFile, 4); err != nil {
				return nil, err
			}
		}
		alg, err := retrieval.NewSplitWindowLUT(table, checker)
		if err != nil {
			return nil, err
		}
		return alg, nil

	case retrieval.MonoWindowName:
		mw := cfg.MonoWindow
		if mw.LUTFile == "" {
			return retrieval.NewMonoWindow(mw.A0, mw.A1, checker), nil
		}
		table, err := lut.LoadCSVFile(mw.LUTFile, 2)
		if err != nil {
			return nil, err
		}
		alg, err := retrieval.NewMonoWindowLUT(table, checker)
		if err != nil {
			return nil, err
		}
		return alg, nil
	}
	return nil, fmt.Errorf("%w: unknown algorithm %q", config.ErrInvalid, cfg.Processing.Algorithm)
}

// PrepareScene sets season and elevation from the configuration and
// prepares the scene bands with the configured sensor profile. The bands are
// modified in place.
func PrepareScene(cfg *config.Config, scene *models.Scene) error {
	profile, err := cfg.Profile()
	if err != nil {
		return err
	}
	season, err := cfg.Season()
	if err != nil {
		return err
	}
	scene.Season = float64(season)
	scene.Elevation = cfg.Processing.Elevation

	return Prepare(scene, PrepareOptions{
		Sensor:                cfg.Processing.Sensor,
		Profile:               profile,
		MaskBeforeCalculation: cfg.Processing.MaskBeforeCalculation,
		Filter:                cfg.Quality,
	})
}
