// Package spatial provides windowed neighbourhood statistics over 2-D grids:
// box sums, neighbour counts and the local standard deviation used by the
// quality tests.
package spatial

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ErrDimension is returned when the input grid or the window size cannot be
// used for a windowed statistic.
var ErrDimension = errors.New("spatial: invalid dimension")

// Boundary selects how cells outside the grid are treated.
type Boundary int

const (
	// Reflect mirrors the grid about its edge, repeating the edge cell
	// (d c b a | a b c d | d c b a).
	Reflect Boundary = iota

	// Zero treats every cell outside the grid as 0.
	Zero
)

// String returns the configuration name of the boundary policy.
func (b Boundary) String() string {
	switch b {
	case Reflect:
		return "reflect"
	case Zero:
		return "zero"
	default:
		return fmt.Sprintf("Boundary(%d)", int(b))
	}
}

// ParseBoundary converts a configuration name into a Boundary.
func ParseBoundary(name string) (Boundary, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "reflect":
		return Reflect, nil
	case "zero", "constant":
		return Zero, nil
	default:
		return Reflect, fmt.Errorf("unknown boundary policy %q", name)
	}
}

// reflectIndex maps an out-of-range index back into [0, n) by mirroring
// about the edges, with the edge cell repeated.
func reflectIndex(idx, n int) int {
	for idx < 0 || idx >= n {
		if idx < 0 {
			idx = -idx - 1
		} else {
			idx = 2*n - 1 - idx
		}
	}
	return idx
}

func checkWindow(src mat.Matrix, window int) (int, int, error) {
	if src == nil {
		return 0, 0, fmt.Errorf("%w: nil grid", ErrDimension)
	}
	if window <= 0 || window%2 == 0 {
		return 0, 0, fmt.Errorf("%w: window must be a positive odd size, got %d", ErrDimension, window)
	}
	rows, cols := src.Dims()
	if rows == 0 || cols == 0 {
		return 0, 0, fmt.Errorf("%w: empty grid", ErrDimension)
	}
	return rows, cols, nil
}

// WindowSum returns, for every cell, the sum of src over the window×window
// box centred on it. Non-finite values inside a box propagate into that
// box's sum.
func WindowSum(src mat.Matrix, window int, b Boundary) (*mat.Dense, error) {
	rows, cols, err := checkWindow(src, window)
	if err != nil {
		return nil, err
	}
	half := window / 2

	at := func(r, c int) float64 {
		if r < 0 || r >= rows || c < 0 || c >= cols {
			if b == Zero {
				return 0
			}
			r, c = reflectIndex(r, rows), reflectIndex(c, cols)
		}
		return src.At(r, c)
	}

	// Horizontal pass, then vertical pass over the partial sums
	tmp := make([]float64, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			var s float64
			for k := -half; k <= half; k++ {
				s += at(r, c+k)
			}
			tmp[r*cols+c] = s
		}
	}

	out := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			var s float64
			for k := -half; k <= half; k++ {
				rr := r + k
				if rr < 0 || rr >= rows {
					if b == Zero {
						continue
					}
					rr = reflectIndex(rr, rows)
				}
				s += tmp[rr*cols+c]
			}
			out.Set(r, c, s)
		}
	}
	return out, nil
}

// NeighborCount counts, for every cell, the true cells of good inside the
// window×window box centred on it, the cell itself included.
func NeighborCount(good []bool, rows, cols, window int, b Boundary) (*mat.Dense, error) {
	if rows <= 0 || cols <= 0 || len(good) != rows*cols {
		return nil, fmt.Errorf("%w: %d cells for a %dx%d grid", ErrDimension, len(good), rows, cols)
	}
	ind := mat.NewDense(rows, cols, nil)
	for i, g := range good {
		if g {
			ind.Set(i/cols, i%cols, 1)
		}
	}
	return WindowSum(ind, window, b)
}

// WindowedStdDev returns the local sample standard deviation of values over
// the window×window box centred on every cell. Zero cells are treated as
// absent and excluded from the count, so callers zero invalid cells first.
// Boxes with fewer than two present cells yield a non-finite result.
func WindowedStdDev(values mat.Matrix, window int, b Boundary) (*mat.Dense, error) {
	rows, cols, err := checkWindow(values, window)
	if err != nil {
		return nil, err
	}

	sq := mat.NewDense(rows, cols, nil)
	present := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := values.At(r, c)
			sq.Set(r, c, v*v)
			if v != 0 {
				present.Set(r, c, 1)
			}
		}
	}

	sum, err := WindowSum(values, window, b)
	if err != nil {
		return nil, err
	}
	sumSq, err := WindowSum(sq, window, b)
	if err != nil {
		return nil, err
	}
	count, err := WindowSum(present, window, b)
	if err != nil {
		return nil, err
	}

	out := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			s, ss, n := sum.At(r, c), sumSq.At(r, c), count.At(r, c)
			mean := s / n
			variance := (ss - 2*mean*s + n*mean*mean) / (n - 1)
			out.Set(r, c, math.Sqrt(math.Abs(variance)))
		}
	}
	return out, nil
}
