package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"lswt/internal/models"
	"lswt/pkg/config"
	"lswt/pkg/pipeline"
	"lswt/pkg/radiometry"
	"lswt/pkg/raster"
	"lswt/pkg/visualization"
)

// options are the command line overrides of the configuration.
type options struct {
	configPath string
	sensor     string
	algorithm  string
	workers    int
	tileSize   int
	output     string
	metrics    string
	quicklooks bool
	verbose    bool
	minLevel   uint8
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "lswt",
		Short:         "Lake surface water temperature retrieval with quality flagging",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "lswt.yaml", "configuration file")

	process := &cobra.Command{
		Use:   "process",
		Short: "Retrieve LSWT for the configured input bands",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProcess(cmd.Context(), cmd, opts)
		},
	}
	f := process.Flags()
	f.StringVar(&opts.sensor, "sensor", "", "sensor profile (AVHRR, SLSTR, TIRS, VIIRS, AATSR)")
	f.StringVar(&opts.algorithm, "algorithm", "", "split-window or mono-window")
	f.IntVar(&opts.workers, "workers", 0, "tiles processed in parallel")
	f.IntVar(&opts.tileSize, "tile-size", -1, "tile edge length in pixels, 0 for one tile")
	f.StringVarP(&opts.output, "output", "o", "", "result GeoTIFF")
	f.StringVar(&opts.metrics, "metrics-file", "", "write Prometheus metrics to this file")
	f.BoolVar(&opts.quicklooks, "quicklooks", false, "write PNG quicklooks next to the result")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	f.Uint8Var(&opts.minLevel, "min-level", 1, "lowest quality level included in the summary")

	initConfig := &cobra.Command{
		Use:   "init-config",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.CreateDefaultConfigFile(opts.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default configuration written to %s\n", opts.configPath)
			return nil
		},
	}

	flags := &cobra.Command{
		Use:   "flags",
		Short: "Print the quality flag coding of the configured variant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			checker, err := pipeline.NewChecker(cfg)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Quality flags (%s layout):\n", checker.Layout().Name())
			for _, c := range checker.Layout().Describe() {
				fmt.Fprintf(w, "%6d  %-16s %s\n", c.Value, c.Name, c.Description)
			}
			return nil
		},
	}

	root.AddCommand(process, initConfig, flags)
	return root
}

// applyFlags overrides configuration values with the flags that were set.
func applyFlags(cmd *cobra.Command, cfg *config.Config, opts *options) {
	changed := cmd.Flags().Changed
	if changed("sensor") {
		cfg.Processing.Sensor = opts.sensor
	}
	if changed("algorithm") {
		cfg.Processing.Algorithm = opts.algorithm
	}
	if changed("workers") {
		cfg.Processing.NumCores = opts.workers
	}
	if changed("tile-size") {
		cfg.Processing.TileSize = opts.tileSize
	}
	if changed("output") {
		cfg.Output.Path = opts.output
	}
	if changed("metrics-file") {
		cfg.Output.MetricsFile = opts.metrics
	}
	if changed("quicklooks") {
		cfg.Output.Quicklooks = opts.quicklooks
	}
	if changed("verbose") {
		cfg.Output.Verbose = opts.verbose
	}
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func runProcess(ctx context.Context, cmd *cobra.Command, opts *options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Output.Verbose)

	scene, ref, err := loadScene(cfg, logger)
	if err != nil {
		return err
	}
	if err := pipeline.PrepareScene(cfg, scene); err != nil {
		return err
	}

	alg, err := pipeline.NewAlgorithm(cfg)
	if err != nil {
		return err
	}
	checker, err := pipeline.NewChecker(cfg)
	if err != nil {
		return err
	}

	metrics := pipeline.NewMetrics()
	params := pipeline.Params{
		Algorithm: alg,
		NumCores:  cfg.Processing.NumCores,
		TileSize:  cfg.Processing.TileSize,
		MinLevel:  opts.minLevel,
		Logger:    logger,
		Metrics:   metrics,
	}
	if !cfg.Output.Verbose {
		params.Progress = cmd.ErrOrStderr()
	}
	proc, err := pipeline.NewProcessor(params)
	if err != nil {
		return err
	}

	res, err := proc.Process(ctx, scene)
	if err != nil {
		return err
	}

	if err := raster.WriteProduct(cfg.Output.Path, raster.Product{
		LSWT:    res.LSWT,
		Mask:    res.Mask,
		Levels:  res.Levels,
		Codings: checker.Layout().Describe(),
	}, ref); err != nil {
		return err
	}
	logger.Info("result written", "path", cfg.Output.Path)

	if cfg.Output.Quicklooks {
		dir := filepath.Dir(cfg.Output.Path)
		prefix := strings.TrimSuffix(filepath.Base(cfg.Output.Path), filepath.Ext(cfg.Output.Path))
		q := visualization.NewQuicklook(res.LSWT, res.Levels, checker.MaxLevel())
		if err := q.SaveAll(dir, prefix); err != nil {
			return fmt.Errorf("error writing quicklooks: %w", err)
		}
	}

	if cfg.Output.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.Output.MetricsFile, metrics.Registry); err != nil {
			return fmt.Errorf("error writing metrics: %w", err)
		}
	}

	printSummary(cmd.OutOrStdout(), res.Summary)
	return nil
}

// loadScene reads every configured band. With a subset enabled only the
// window around the point of interest is read from each file.
func loadScene(cfg *config.Config, logger *slog.Logger) (*models.Scene, raster.Georef, error) {
	if len(cfg.Input.Bands) == 0 {
		return nil, raster.Georef{}, fmt.Errorf("%w: no input bands configured", config.ErrInvalid)
	}
	roles := make([]string, 0, len(cfg.Input.Bands))
	for role := range cfg.Input.Bands {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	sources := make([]raster.Source, len(roles))
	for i, role := range roles {
		src, err := raster.ParseSource(cfg.Input.Bands[role])
		if err != nil {
			return nil, raster.Georef{}, err
		}
		sources[i] = src
	}

	// The first band's georeference locates the subset for all bands
	var window *models.Window
	if s := cfg.Input.Subset; s.Enabled {
		whole, err := raster.ReadGeoref(sources[0])
		if err != nil {
			return nil, raster.Georef{}, err
		}
		w, err := whole.SubsetWindow(orb.Point{s.X, s.Y}, s.Padding)
		if err != nil {
			return nil, raster.Georef{}, err
		}
		window = &w
		logger.Info("subset", "row", w.Row, "col", w.Col, "rows", w.Rows, "cols", w.Cols)
	}

	grids := make(map[string]*mat.Dense, len(roles))
	var ref raster.Georef
	for i, role := range roles {
		var (
			m   *mat.Dense
			r   raster.Georef
			err error
		)
		if window != nil {
			m, r, err = raster.ReadSubset(sources[i], *window)
		} else {
			m, r, err = raster.ReadBand(sources[i])
		}
		if err != nil {
			return nil, raster.Georef{}, err
		}
		if i == 0 {
			ref = r
		}
		grids[role] = m
		logger.Debug("band read", "role", role, "path", sources[i].Path, "band", sources[i].Band)
	}

	scene := &models.Scene{Rows: ref.Height, Cols: ref.Width}
	known := make(map[string]bool)
	scene.Bands.Each(func(role string, c *models.Channel) {
		known[role] = true
		if m, ok := grids[role]; ok {
			*c = models.NewChannel(m)
		}
	})
	for role := range grids {
		if !known[role] {
			return nil, raster.Georef{}, fmt.Errorf("%w: unknown band role %q", config.ErrInvalid, role)
		}
	}

	// A constant satellite azimuth from the scene corners
	if c := cfg.Input.Corners; !scene.Bands.SatAzimuth.Present() && len(c.LowerLeft) == 2 && len(c.UpperLeft) == 2 {
		az := radiometry.SatelliteAzimuth(orb.Point{c.LowerLeft[0], c.LowerLeft[1]}, orb.Point{c.UpperLeft[0], c.UpperLeft[1]})
		scene.Bands.SatAzimuth = models.NewChannel(models.Filled(scene.Rows, scene.Cols, az))
		logger.Debug("satellite azimuth from corners", "azimuth", az)
	}
	return scene, ref, nil
}

func printSummary(w io.Writer, s pipeline.Summary) {
	fmt.Fprintf(w, "Pixels: %d, valid LSWT: %d, retained (level >= %d): %d\n", s.Pixels, s.Valid, s.MinLevel, s.Retained)
	if s.Retained > 0 {
		fmt.Fprintf(w, "LSWT mean %.2f K, stddev %.2f K, range [%.2f, %.2f] K\n", s.Mean, s.StdDev, s.Min, s.Max)
	}
	levels := make([]int, 0, len(s.Levels))
	for l := range s.Levels {
		levels = append(levels, int(l))
	}
	sort.Ints(levels)
	for _, l := range levels {
		fmt.Fprintf(w, "  level %3d: %d\n", l, s.Levels[uint8(l)])
	}
}
