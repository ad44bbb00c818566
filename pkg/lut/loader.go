package lut

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/gocarina/gocsv"
)

// CoefficientRow is one cell of a coefficient table file. The axis columns
// are season, height and zenith; up to four coefficients follow.
type CoefficientRow struct {
	Season float64 `csv:"season"`
	Height float64 `csv:"height"`
	Zenith float64 `csv:"zenith"`
	A0     float64 `csv:"a0"`
	A1     float64 `csv:"a1"`
	A2     float64 `csv:"a2"`
	A3     float64 `csv:"a3"`
}

func (r *CoefficientRow) coefficients() [4]float64 {
	return [4]float64{r.A0, r.A1, r.A2, r.A3}
}

// LoadCSV reads a (season, height, zenith) coefficient table. The axes are
// the sorted distinct values of each axis column; every grid cell must
// appear exactly once, in any order. length selects how many of the a0..a3
// columns are stored per cell.
func LoadCSV(r io.Reader, length int) (*Table, error) {
	if length < 1 || length > 4 {
		return nil, fmt.Errorf("%w: coefficient count %d", ErrInvalidInput, length)
	}

	var rows []*CoefficientRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("error parsing coefficient table: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty coefficient table", ErrInvalidInput)
	}

	seasons := distinct(rows, func(r *CoefficientRow) float64 { return r.Season })
	heights := distinct(rows, func(r *CoefficientRow) float64 { return r.Height })
	zeniths := distinct(rows, func(r *CoefficientRow) float64 { return r.Zenith })
	dims := [][]float64{seasons, heights, zeniths}

	cells := len(seasons) * len(heights) * len(zeniths)
	if len(rows) != cells {
		return nil, fmt.Errorf("%w: %d rows for a %dx%dx%d grid", ErrInvalidInput, len(rows), len(seasons), len(heights), len(zeniths))
	}

	values := make([]float64, cells*length)
	seen := make([]bool, cells)
	for _, row := range rows {
		i := sort.SearchFloat64s(seasons, row.Season)
		j := sort.SearchFloat64s(heights, row.Height)
		k := sort.SearchFloat64s(zeniths, row.Zenith)
		cell := (i*len(heights)+j)*len(zeniths) + k
		if seen[cell] {
			return nil, fmt.Errorf("%w: duplicate cell season=%g height=%g zenith=%g", ErrInvalidInput, row.Season, row.Height, row.Zenith)
		}
		seen[cell] = true
		a := row.coefficients()
		copy(values[cell*length:(cell+1)*length], a[:length])
	}

	return New(values, dims, length)
}

// LoadCSVFile is LoadCSV on a file path.
func LoadCSVFile(path string, length int) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening coefficient table: %w", err)
	}
	defer f.Close()
	return LoadCSV(f, length)
}

func distinct(rows []*CoefficientRow, key func(*CoefficientRow) float64) []float64 {
	set := make(map[float64]struct{})
	for _, r := range rows {
		set[key(r)] = struct{}{}
	}
	out := make([]float64, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}
