// Package pipeline runs LSWT retrieval and quality checking over a whole
// scene: the scene is cut into tiles, every tile is processed on a worker
// pool with its own buffers and the results are stitched back together.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/schollz/progressbar/v3"
	"gonum.org/v1/gonum/mat"

	"lswt/internal/models"
	"lswt/pkg/quality"
	"lswt/pkg/retrieval"
)

// Params holds the processing configuration of a Processor.
type Params struct {
	// Algorithm retrieves and classifies each tile. It is shared by all
	// workers and must not hold per-tile state.
	Algorithm retrieval.Algorithm

	// NumCores is the number of tiles processed in parallel
	NumCores int

	// TileSize is the tile edge length in pixels; 0 processes the scene as
	// one tile
	TileSize int

	// MinLevel is the lowest quality level included in the summary
	// statistics
	MinLevel uint8

	// Logger receives progress events; nil selects slog.Default()
	Logger *slog.Logger

	// Metrics is optional
	Metrics *Metrics

	// Progress draws a progress bar on this writer when set
	Progress io.Writer
}

// Result is the stitched output of one scene.
type Result struct {
	LSWT    *mat.Dense
	Mask    *quality.Mask
	Levels  *quality.Levels
	Summary Summary
}

// Processor processes scenes with a fixed algorithm.
type Processor struct {
	params Params
	logger *slog.Logger
}

// NewProcessor creates a processor.
//
// Parameters:
//   - params: algorithm, parallelism and tiling of the processing
//
// Returns:
//   - The processor, or an error when no algorithm is given
func NewProcessor(params Params) (*Processor, error) {
	if params.Algorithm == nil {
		return nil, errors.New("pipeline: no algorithm")
	}
	if params.NumCores < 1 {
		params.NumCores = 1
	}
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{params: params, logger: logger}, nil
}

type tileResult struct {
	lswt   *mat.Dense
	mask   *quality.Mask
	levels *quality.Levels
}

// processTile runs retrieval, quality flags and quality levels on one tile.
func (p *Processor) processTile(t *models.Tile) (*tileResult, error) {
	alg := p.params.Algorithm
	lswt, err := alg.Retrieve(t)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	mask, err := alg.Flags(t, lswt)
	if err != nil {
		return nil, fmt.Errorf("quality flags: %w", err)
	}
	return &tileResult{lswt: lswt, mask: mask, levels: alg.QualityLevels(mask)}, nil
}

// Process runs the pipeline on a prepared scene. Cancelling ctx stops
// scheduling tiles; tiles already running finish and ctx.Err() is
// returned.
func (p *Processor) Process(ctx context.Context, scene *models.Scene) (*Result, error) {
	if err := scene.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	windows := scene.Tiles(p.params.TileSize)
	p.logger.Info("processing scene",
		"algorithm", p.params.Algorithm.Name(),
		"rows", scene.Rows, "cols", scene.Cols,
		"tiles", len(windows), "workers", p.params.NumCores)

	res := &Result{
		LSWT:   mat.NewDense(scene.Rows, scene.Cols, nil),
		Mask:   &quality.Mask{Rows: scene.Rows, Cols: scene.Cols, Flags: make([]quality.Flag, scene.Rows*scene.Cols)},
		Levels: &quality.Levels{Rows: scene.Rows, Cols: scene.Cols, Values: make([]uint8, scene.Rows*scene.Cols)},
	}

	var bar *progressbar.ProgressBar
	if p.params.Progress != nil {
		bar = progressbar.NewOptions(len(windows),
			progressbar.OptionSetWriter(p.params.Progress),
			progressbar.OptionSetDescription("Processing tiles"),
			progressbar.OptionShowCount(),
		)
	}

	var (
		mu       sync.Mutex
		firstErr error
		stopOnce sync.Once
	)
	fail := func(err error) {
		stopOnce.Do(func() {
			mu.Lock()
			firstErr = err
			mu.Unlock()
		})
	}
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	wp := workerpool.New(p.params.NumCores)
	for i, w := range windows {
		if ctx.Err() != nil || failed() {
			break
		}
		i, w := i, w
		wp.Submit(func() {
			if ctx.Err() != nil || failed() {
				return
			}
			tileStart := time.Now()
			out, err := p.processTile(scene.Tile(w))
			if err != nil {
				p.params.Metrics.observeError()
				fail(fmt.Errorf("tile %d at (%d,%d): %w", i, w.Row, w.Col, err))
				return
			}
			d := time.Since(tileStart)
			p.params.Metrics.observeTile(out.levels, d)
			p.logger.Debug("tile done", "tile", i, "row", w.Row, "col", w.Col, "duration", d)

			// Tiles cover disjoint windows of the result
			stitch(res, w, out)

			if bar != nil {
				mu.Lock()
				bar.Add(1)
				mu.Unlock()
			}
		})
	}
	wp.StopWait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.Summary = Summarize(res.LSWT, res.Levels, p.params.MinLevel)
	p.logger.Info("scene done",
		"tiles", len(windows),
		"valid", res.Summary.Valid,
		"retained", res.Summary.Retained,
		"duration", time.Since(start))
	return res, nil
}

// stitch copies a tile result into the scene result.
func stitch(res *Result, w models.Window, out *tileResult) {
	dst := res.LSWT.Slice(w.Row, w.Row+w.Rows, w.Col, w.Col+w.Cols).(*mat.Dense)
	dst.Copy(out.lswt)
	for r := 0; r < w.Rows; r++ {
		base := (w.Row+r)*res.Mask.Cols + w.Col
		copy(res.Mask.Flags[base:base+w.Cols], out.mask.Flags[r*w.Cols:(r+1)*w.Cols])
		copy(res.Levels.Values[base:base+w.Cols], out.levels.Values[r*w.Cols:(r+1)*w.Cols])
	}
}
