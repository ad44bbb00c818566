// Package lut provides an immutable N-dimensional lookup table that maps
// continuous physical coordinates (for example season, surface height and
// view zenith) to one or more stored values.
//
// Coordinates are resolved per axis to the largest grid index whose
// breakpoint does not exceed the coordinate. The value stored at that lower
// corner of the surrounding hyper-cube is returned as is; no multilinear
// blending takes place.
package lut

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInvalidInput is returned for malformed tables and for coordinate
	// vectors that do not match the table dimensionality.
	ErrInvalidInput = errors.New("lut: invalid input")

	// ErrShapeMismatch is returned when parallel coordinate arrays differ in
	// length or shape.
	ErrShapeMismatch = errors.New("lut: coordinate shape mismatch")
)

// Table is an N-dimensional lookup table. It is read-only after New and may
// be shared between goroutines.
type Table struct {
	// values holds the cells in row-major order with length values per cell
	values []float64

	// dims are the strictly increasing breakpoints of each axis
	dims [][]float64

	// length is the number of values returned per coordinate
	length int

	// strides[i] is the flat distance between neighbouring cells on axis i
	strides []int

	// offsets address the 2^n corners of the hyper-cube around a cell
	offsets []int
}

// New builds a table from a flat value buffer and the axis breakpoints.
//
// Parameters:
//   - values: cell values in row-major order, length values per cell
//   - dims: one strictly increasing partition (at least two points) per axis
//   - length: number of values stored per cell, at least 1
//
// Returns:
//   - The table, or ErrInvalidInput if any shape invariant is violated
func New(values []float64, dims [][]float64, length int) (*Table, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("%w: no dimensions", ErrInvalidInput)
	}
	if length < 1 {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidInput, length)
	}

	t := &Table{
		dims:    make([][]float64, len(dims)),
		length:  length,
		strides: make([]int, len(dims)),
	}

	for i, d := range dims {
		if len(d) < 2 {
			return nil, fmt.Errorf("%w: dimension %d has %d points, need at least 2", ErrInvalidInput, i, len(d))
		}
		for j := 1; j < len(d); j++ {
			if !(d[j] > d[j-1]) {
				return nil, fmt.Errorf("%w: dimension %d is not strictly increasing at index %d", ErrInvalidInput, i, j)
			}
		}
		t.dims[i] = append([]float64(nil), d...)
	}

	// Row-major strides with the per-cell length as innermost unit
	stride := length
	for i := len(dims) - 1; i >= 0; i-- {
		t.strides[i] = stride
		stride *= len(dims[i])
	}
	if want := t.strides[0] * len(dims[0]); len(values) != want {
		return nil, fmt.Errorf("%w: got %d values, dimensions require %d", ErrInvalidInput, len(values), want)
	}
	t.values = append([]float64(nil), values...)

	t.offsets = make([]int, 1<<len(dims))
	for i := range dims {
		k := 1 << i
		for j := 0; j < k; j++ {
			t.offsets[k+j] = t.offsets[j] + t.strides[i]
		}
	}

	return t, nil
}

// Dimensions returns the number of axes.
func (t *Table) Dimensions() int { return len(t.dims) }

// Length returns the number of values per cell.
func (t *Table) Length() int { return t.length }

// Axis returns a copy of the breakpoints of axis i.
func (t *Table) Axis(i int) []float64 {
	return append([]float64(nil), t.dims[i]...)
}

// Strides returns a copy of the per-axis flat strides.
func (t *Table) Strides() []int {
	return append([]int(nil), t.strides...)
}

// CornerOffsets returns a copy of the flat offsets of the 2^n hyper-cube
// corners, relative to the lower corner.
func (t *Table) CornerOffsets() []int {
	return append([]int(nil), t.offsets...)
}

// locate returns the lower grid index of c on the partition p and the
// fractional position of c inside [p[lo], p[lo+1]], clamped to [0, 1].
func locate(p []float64, c float64) (int, float64) {
	lo, hi := 0, len(p)-1
	for hi > lo+1 {
		m := (lo + hi) >> 1
		if c < p[m] {
			hi = m
		} else {
			lo = m
		}
	}
	frac := (c - p[lo]) / (p[hi] - p[lo])
	if frac < 0 {
		frac = 0
	} else if frac > 1 {
		frac = 1
	}
	return lo, frac
}

// origin resolves one coordinate per axis to the flat index of the lower
// hyper-cube corner.
func (t *Table) origin(coords []float64) (int, error) {
	if len(coords) == 0 {
		return 0, fmt.Errorf("%w: no coordinates", ErrInvalidInput)
	}
	if len(coords) != len(t.dims) {
		return 0, fmt.Errorf("%w: got %d coordinates for %d dimensions", ErrInvalidInput, len(coords), len(t.dims))
	}
	origin := 0
	for i, c := range coords {
		// The fraction is not blended. Only a coordinate exactly on the
		// last breakpoint resolves to the last cell.
		p := t.dims[i]
		lo, _ := locate(p, c)
		if c == p[len(p)-1] {
			lo = len(p) - 1
		}
		origin += lo * t.strides[i]
	}
	return origin + t.offsets[0], nil
}

// Value returns the length values stored at the lower corner for one
// coordinate per axis.
func (t *Table) Value(coords ...float64) ([]float64, error) {
	o, err := t.origin(coords)
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), t.values[o:o+t.length]...), nil
}

// Scalar is Value for tables of length 1.
func (t *Table) Scalar(coords ...float64) (float64, error) {
	if t.length != 1 {
		return 0, fmt.Errorf("%w: scalar lookup on table of length %d", ErrInvalidInput, t.length)
	}
	o, err := t.origin(coords)
	if err != nil {
		return 0, err
	}
	return t.values[o], nil
}

// Lookup evaluates Value element-wise over parallel coordinate slices, one
// per axis. The result holds length slices, each as long as the inputs.
func (t *Table) Lookup(coords ...[]float64) ([][]float64, error) {
	if len(coords) == 0 {
		return nil, fmt.Errorf("%w: no coordinates", ErrInvalidInput)
	}
	if len(coords) != len(t.dims) {
		return nil, fmt.Errorf("%w: got %d coordinate arrays for %d dimensions", ErrInvalidInput, len(coords), len(t.dims))
	}
	n := len(coords[0])
	for i, c := range coords[1:] {
		if len(c) != n {
			return nil, fmt.Errorf("%w: array %d has %d elements, array 0 has %d", ErrShapeMismatch, i+1, len(c), n)
		}
	}

	out := make([][]float64, t.length)
	for k := range out {
		out[k] = make([]float64, n)
	}
	point := make([]float64, len(coords))
	for e := 0; e < n; e++ {
		for i := range coords {
			point[i] = coords[i][e]
		}
		o, err := t.origin(point)
		if err != nil {
			return nil, err
		}
		for k := 0; k < t.length; k++ {
			out[k][e] = t.values[o+k]
		}
	}
	return out, nil
}

// LookupGrid is Lookup over same-shaped grids. It returns length grids of
// the input shape.
func (t *Table) LookupGrid(coords ...*mat.Dense) ([]*mat.Dense, error) {
	if len(coords) == 0 {
		return nil, fmt.Errorf("%w: no coordinates", ErrInvalidInput)
	}
	rows, cols := coords[0].Dims()
	flat := make([][]float64, len(coords))
	for i, c := range coords {
		r, cc := c.Dims()
		if r != rows || cc != cols {
			return nil, fmt.Errorf("%w: grid %d is %dx%d, grid 0 is %dx%d", ErrShapeMismatch, i, r, cc, rows, cols)
		}
		flat[i] = mat.DenseCopyOf(c).RawMatrix().Data
	}

	res, err := t.Lookup(flat...)
	if err != nil {
		return nil, err
	}
	grids := make([]*mat.Dense, len(res))
	for k, v := range res {
		grids[k] = mat.NewDense(rows, cols, v)
	}
	return grids, nil
}
