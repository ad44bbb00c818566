// Package retrieval turns brightness temperatures into lake surface water
// temperature with the split-window or mono-window equation, and hands the
// result to a quality checker.
package retrieval

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"lswt/internal/models"
	"lswt/pkg/lut"
	"lswt/pkg/quality"
)

// ErrMissingBand is returned when a tile lacks a band the algorithm reads.
var ErrMissingBand = errors.New("retrieval: missing band")

// Algorithm names as used in configuration.
const (
	SplitWindowName = "split-window"
	MonoWindowName  = "mono-window"
)

// Algorithm retrieves LSWT for a tile and classifies the result.
//
// Flags and QualityLevels are separate steps: QualityLevels takes the mask
// returned by Flags, so an Algorithm holds no per-tile state and can serve
// concurrent tiles.
type Algorithm interface {
	Name() string
	Retrieve(t *models.Tile) (*mat.Dense, error)
	Flags(t *models.Tile, lswt *mat.Dense) (*quality.Mask, error)
	QualityLevels(m *quality.Mask) *quality.Levels
}

// Fields are the per-pixel inputs of the retrieval equations. Season and
// Height are only read when coefficients come from a table.
type Fields struct {
	Lower  *mat.Dense
	Upper  *mat.Dense
	Zenith *mat.Dense
	Season *mat.Dense
	Height *mat.Dense
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func sameShape(rows, cols int, grids map[string]*mat.Dense) error {
	for name, g := range grids {
		if g == nil {
			return fmt.Errorf("%w: %s", ErrMissingBand, name)
		}
		r, c := g.Dims()
		if r != rows || c != cols {
			return fmt.Errorf("%w: %s is %dx%d, expected %dx%d", models.ErrShape, name, r, c, rows, cols)
		}
	}
	return nil
}

// tileFields collects the retrieval inputs of a tile. thermal lists the
// bands used as Lower and Upper in that order.
func tileFields(t *models.Tile, thermal ...models.Channel) (Fields, error) {
	var f Fields
	names := []string{"lower", "upper"}
	for i, c := range thermal {
		if !c.Present() {
			return f, fmt.Errorf("%w: %s thermal band", ErrMissingBand, names[i])
		}
	}
	if !t.Bands.SatZenith.Present() {
		return f, fmt.Errorf("%w: satellite zenith", ErrMissingBand)
	}
	f.Lower = thermal[0].Data()
	if len(thermal) > 1 {
		f.Upper = thermal[1].Data()
	}
	f.Zenith = t.Bands.SatZenith.Data()

	rows, cols := f.Lower.Dims()
	f.Season = models.Filled(rows, cols, t.Season)
	if t.Bands.Elevation.Present() {
		f.Height = t.Bands.Elevation.Data()
	} else {
		f.Height = models.Filled(rows, cols, t.Elevation)
	}
	return f, nil
}

// qualityInputs maps the tile bands onto the checker inputs. lower is the
// thermal band tested by the gross IR test.
func qualityInputs(t *models.Tile, lswt *mat.Dense, lower, upper, lowest models.Channel) quality.Inputs {
	return quality.Inputs{
		LSWT:       lswt,
		Visible:    t.Bands.Visible,
		NIR:        t.Bands.NIR,
		Lower:      lower,
		Upper:      upper,
		Lowest:     lowest,
		SatZenith:  t.Bands.SatZenith,
		SunZenith:  t.Bands.SunZenith,
		RelAzimuth: t.Bands.RelAzimuth,
		LandWater:  t.Bands.LandWater,
		CloudMask:  t.Bands.CloudMask,
	}
}

// SplitWindow retrieves LSWT from two thermal bands:
//
//	lswt = a0 + a1*T1 + a2*(T1-T2) + a3*(1 - 1/cos(vza))*(T1-T2)
//
// with T1 the lower and T2 the upper band brightness temperature.
type SplitWindow struct {
	coeffs  Coefficients
	table   *lut.Table
	checker quality.Checker
}

// NewSplitWindow returns a split-window algorithm with fixed coefficients.
func NewSplitWindow(c Coefficients, checker quality.Checker) *SplitWindow {
	return &SplitWindow{coeffs: c, checker: checker}
}

// NewSplitWindowLUT returns a split-window algorithm that looks up its
// coefficients per pixel by (season, height, zenith). The table must hold
// four values per cell.
func NewSplitWindowLUT(t *lut.Table, checker quality.Checker) (*SplitWindow, error) {
	if t == nil || t.Dimensions() != 3 || t.Length() != 4 {
		return nil, fmt.Errorf("%w: split-window table needs 3 dimensions and 4 values per cell", lut.ErrInvalidInput)
	}
	return &SplitWindow{table: t, checker: checker}, nil
}

// Name implements Algorithm.
func (s *SplitWindow) Name() string { return SplitWindowName }

// UsesTable reports whether coefficients come from a lookup table.
func (s *SplitWindow) UsesTable() bool { return s.table != nil }

// Temperature evaluates the split-window equation for one pixel.
func (c Coefficients) Temperature(lower, upper, zenith float64) float64 {
	d := lower - upper
	return c.A0 + c.A1*lower + c.A2*d + c.A3*(1-1/math.Cos(zenith*math.Pi/180))*d
}

// Compute evaluates the equation over a tile. Pixels where either thermal
// input is not finite are NaN and, in table mode, are never looked up.
func (s *SplitWindow) Compute(f Fields) (*mat.Dense, error) {
	if f.Lower == nil {
		return nil, fmt.Errorf("%w: lower", ErrMissingBand)
	}
	rows, cols := f.Lower.Dims()
	grids := map[string]*mat.Dense{"upper": f.Upper, "zenith": f.Zenith}
	if s.table != nil {
		grids["season"] = f.Season
		grids["height"] = f.Height
	}
	if err := sameShape(rows, cols, grids); err != nil {
		return nil, err
	}

	out := mat.NewDense(rows, cols, nil)
	if s.table == nil {
		out.Apply(func(r, c int, _ float64) float64 {
			return s.coeffs.Temperature(f.Lower.At(r, c), f.Upper.At(r, c), f.Zenith.At(r, c))
		}, out)
		return out, nil
	}

	var idx []int
	var season, height, zenith []float64
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if !finite(f.Lower.At(r, c)) || !finite(f.Upper.At(r, c)) {
				out.Set(r, c, math.NaN())
				continue
			}
			idx = append(idx, r*cols+c)
			season = append(season, f.Season.At(r, c))
			height = append(height, f.Height.At(r, c))
			zenith = append(zenith, f.Zenith.At(r, c))
		}
	}
	if len(idx) == 0 {
		return out, nil
	}

	a, err := s.table.Lookup(season, height, zenith)
	if err != nil {
		return nil, err
	}
	for k, i := range idx {
		r, c := i/cols, i%cols
		cf := Coefficients{A0: a[0][k], A1: a[1][k], A2: a[2][k], A3: a[3][k]}
		out.Set(r, c, cf.Temperature(f.Lower.At(r, c), f.Upper.At(r, c), zenith[k]))
	}
	return out, nil
}

// Retrieve implements Algorithm.
func (s *SplitWindow) Retrieve(t *models.Tile) (*mat.Dense, error) {
	f, err := tileFields(t, t.Bands.Lower, t.Bands.Upper)
	if err != nil {
		return nil, err
	}
	return s.Compute(f)
}

// Flags implements Algorithm.
func (s *SplitWindow) Flags(t *models.Tile, lswt *mat.Dense) (*quality.Mask, error) {
	return s.checker.Check(qualityInputs(t, lswt, t.Bands.Lower, t.Bands.Upper, t.Bands.Lowest))
}

// QualityLevels implements Algorithm.
func (s *SplitWindow) QualityLevels(m *quality.Mask) *quality.Levels {
	return s.checker.Reduce(m)
}

// MonoWindow retrieves LSWT from one thermal band as a0*T + a1.
type MonoWindow struct {
	a0, a1  float64
	table   *lut.Table
	checker quality.Checker
}

// NewMonoWindow returns a mono-window algorithm with fixed coefficients.
func NewMonoWindow(a0, a1 float64, checker quality.Checker) *MonoWindow {
	return &MonoWindow{a0: a0, a1: a1, checker: checker}
}

// NewMonoWindowLUT returns a mono-window algorithm that looks up (a0, a1)
// by (season, height, zenith). The table must hold two values per cell.
func NewMonoWindowLUT(t *lut.Table, checker quality.Checker) (*MonoWindow, error) {
	if t == nil || t.Dimensions() != 3 || t.Length() != 2 {
		return nil, fmt.Errorf("%w: mono-window table needs 3 dimensions and 2 values per cell", lut.ErrInvalidInput)
	}
	return &MonoWindow{table: t, checker: checker}, nil
}

// Name implements Algorithm.
func (m *MonoWindow) Name() string { return MonoWindowName }

// UsesTable reports whether coefficients come from a lookup table.
func (m *MonoWindow) UsesTable() bool { return m.table != nil }

// Compute evaluates the equation over f.Lower.
//
// In table mode coefficients are looked up at half resolution: each 2x2
// block of pixels shares the coefficients of its first finite pixel in
// row-major order. Non-finite pixels are NaN and are never looked up.
func (m *MonoWindow) Compute(f Fields) (*mat.Dense, error) {
	if f.Lower == nil {
		return nil, fmt.Errorf("%w: thermal", ErrMissingBand)
	}
	rows, cols := f.Lower.Dims()
	out := mat.NewDense(rows, cols, nil)

	if m.table == nil {
		out.Apply(func(r, c int, _ float64) float64 {
			return m.a0*f.Lower.At(r, c) + m.a1
		}, out)
		return out, nil
	}

	if err := sameShape(rows, cols, map[string]*mat.Dense{
		"zenith": f.Zenith, "season": f.Season, "height": f.Height,
	}); err != nil {
		return nil, err
	}

	// One anchor per 2x2 block that holds at least one finite pixel
	type anchor struct{ r, c int }
	var anchors []anchor
	var season, height, zenith []float64
	for br := 0; br < rows; br += 2 {
		for bc := 0; bc < cols; bc += 2 {
			found := false
			for r := br; r < min(br+2, rows) && !found; r++ {
				for c := bc; c < min(bc+2, cols) && !found; c++ {
					if finite(f.Lower.At(r, c)) {
						anchors = append(anchors, anchor{br, bc})
						season = append(season, f.Season.At(r, c))
						height = append(height, f.Height.At(r, c))
						zenith = append(zenith, f.Zenith.At(r, c))
						found = true
					}
				}
			}
		}
	}

	out.Apply(func(int, int, float64) float64 { return math.NaN() }, out)
	if len(anchors) == 0 {
		return out, nil
	}

	a, err := m.table.Lookup(season, height, zenith)
	if err != nil {
		return nil, err
	}
	for k, an := range anchors {
		for r := an.r; r < min(an.r+2, rows); r++ {
			for c := an.c; c < min(an.c+2, cols); c++ {
				if v := f.Lower.At(r, c); finite(v) {
					out.Set(r, c, a[0][k]*v+a[1][k])
				}
			}
		}
	}
	return out, nil
}

// monoBand returns the band the mono-window equation reads.
func monoBand(t *models.Tile) models.Channel {
	if t.Bands.Mono.Present() {
		return t.Bands.Mono
	}
	return t.Bands.Lower
}

// Retrieve implements Algorithm.
func (m *MonoWindow) Retrieve(t *models.Tile) (*mat.Dense, error) {
	band := monoBand(t)
	if !band.Present() {
		return nil, fmt.Errorf("%w: mono thermal band", ErrMissingBand)
	}
	if m.table == nil {
		return m.Compute(Fields{Lower: band.Data()})
	}
	f, err := tileFields(t, band)
	if err != nil {
		return nil, err
	}
	return m.Compute(f)
}

// Flags implements Algorithm. The mono band stands in for the lower band;
// no upper or lowest band is passed on.
func (m *MonoWindow) Flags(t *models.Tile, lswt *mat.Dense) (*quality.Mask, error) {
	return m.checker.Check(qualityInputs(t, lswt, monoBand(t), models.Channel{}, models.Channel{}))
}

// QualityLevels implements Algorithm.
func (m *MonoWindow) QualityLevels(mask *quality.Mask) *quality.Levels {
	return m.checker.Reduce(mask)
}
