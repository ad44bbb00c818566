// Package visualization renders PNG quicklooks of retrieved LSWT and of
// its quality levels.
package visualization

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"lswt/pkg/quality"
)

// legendHeight is the height in pixels of the strip below a saved quicklook.
const legendHeight = 20

// Quicklook renders one scene result.
type Quicklook struct {
	// lswt holds the temperatures in Kelvin, NaN where nothing was retrieved
	lswt *mat.Dense

	// levels and maxLevel drive the quality palette
	levels   *quality.Levels
	maxLevel uint8

	// min and max bound the temperature ramp
	min, max float64
}

// NewQuicklook creates a quicklook. The temperature ramp spans the finite
// LSWT values of the scene.
func NewQuicklook(lswt *mat.Dense, levels *quality.Levels, maxLevel uint8) *Quicklook {
	q := &Quicklook{lswt: lswt, levels: levels, maxLevel: maxLevel, min: math.NaN(), max: math.NaN()}
	var finite []float64
	for _, v := range mat.DenseCopyOf(lswt).RawMatrix().Data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) > 0 {
		q.min, q.max = floats.Min(finite), floats.Max(finite)
	}
	return q
}

// SetRange fixes the temperature ramp to [min, max] Kelvin.
func (q *Quicklook) SetRange(min, max float64) error {
	if !(max > min) {
		return fmt.Errorf("empty temperature range [%g, %g]", min, max)
	}
	q.min, q.max = min, max
	return nil
}

// Range returns the temperature ramp bounds.
func (q *Quicklook) Range() (float64, float64) { return q.min, q.max }

// ramp maps t in [0, 1] from blue over white to red.
func ramp(t float64) (r, g, b float64) {
	t = math.Max(0, math.Min(1, t))
	if t < 0.5 {
		s := t * 2
		return s, s, 1
	}
	s := (1 - t) * 2
	return 1, s, s
}

// levelColor maps a level to red (0) through yellow to green (max).
func levelColor(level, max uint8) (r, g, b float64) {
	if max == 0 {
		return 0, 1, 0
	}
	t := math.Min(1, float64(level)/float64(max))
	if t < 0.5 {
		return 1, t * 2, 0
	}
	return (1 - t) * 2, 1, 0
}

func (q *Quicklook) temperatureContext(height int) *gg.Context {
	rows, cols := q.lswt.Dims()
	dc := gg.NewContext(cols, height)
	span := q.max - q.min
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v := q.lswt.At(y, x)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			t := 0.5
			if span > 0 {
				t = (v - q.min) / span
			}
			dc.SetRGB(ramp(t))
			dc.SetPixel(x, y)
		}
	}
	return dc
}

func (q *Quicklook) levelContext(height int) *gg.Context {
	dc := gg.NewContext(q.levels.Cols, height)
	for y := 0; y < q.levels.Rows; y++ {
		for x := 0; x < q.levels.Cols; x++ {
			dc.SetRGB(levelColor(q.levels.At(y, x), q.maxLevel))
			dc.SetPixel(x, y)
		}
	}
	return dc
}

// Temperature renders LSWT on the temperature ramp. Pixels without a
// finite LSWT are transparent.
func (q *Quicklook) Temperature() image.Image {
	rows, _ := q.lswt.Dims()
	return q.temperatureContext(rows).Image()
}

// Quality renders the quality levels from red (0) to green (max level).
func (q *Quicklook) Quality() image.Image {
	return q.levelContext(q.levels.Rows).Image()
}

// SaveTemperature writes the temperature quicklook with a legend strip
// naming the ramp bounds.
func (q *Quicklook) SaveTemperature(path string) error {
	rows, cols := q.lswt.Dims()
	dc := q.temperatureContext(rows + legendHeight)
	for x := 0; x < cols; x++ {
		dc.SetRGB(ramp(float64(x) / math.Max(1, float64(cols-1))))
		dc.DrawRectangle(float64(x), float64(rows), 1, legendHeight/2)
		dc.Fill()
	}
	dc.SetRGB(0, 0, 0)
	y := float64(rows) + legendHeight*0.75
	dc.DrawStringAnchored(fmt.Sprintf("%.1f K", q.min), 2, y, 0, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.1f K", q.max), float64(cols-2), y, 1, 0.5)
	return save(dc, path)
}

// SaveQuality writes the quality quicklook with a legend strip holding one
// swatch per level.
func (q *Quicklook) SaveQuality(path string) error {
	rows, cols := q.levels.Rows, q.levels.Cols
	dc := q.levelContext(rows + legendHeight)
	n := int(q.maxLevel) + 1
	w := math.Max(1, float64(cols)/float64(n))
	for l := 0; l < n; l++ {
		dc.SetRGB(levelColor(uint8(l), q.maxLevel))
		dc.DrawRectangle(float64(l)*w, float64(rows), w, legendHeight)
		dc.Fill()
	}
	return save(dc, path)
}

// SaveAll writes <prefix>_lswt.png and <prefix>_quality.png into dir.
func (q *Quicklook) SaveAll(dir, prefix string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := q.SaveTemperature(filepath.Join(dir, prefix+"_lswt.png")); err != nil {
		return err
	}
	return q.SaveQuality(filepath.Join(dir, prefix+"_quality.png"))
}

func save(dc *gg.Context, path string) error {
	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}
