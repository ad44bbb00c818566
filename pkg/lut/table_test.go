package lut

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func ramp(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = float64(i)
	}
	return v
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

// TestValueScalar checks a lookup on an all-ones table
func TestValueScalar(t *testing.T) {
	dims := [][]float64{{1, 2, 3, 4}, {1, 2, 3, 4, 5}, {1, 2, 3}}
	tbl, err := New(ones(60), dims, 1)
	require.NoError(t, err)

	got, err := tbl.Scalar(4, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

// TestValueMultiple checks that a table of length 2 returns both values of a cell
func TestValueMultiple(t *testing.T) {
	dims := [][]float64{{1, 2, 3, 4}, {1, 2, 3, 4, 5}, {1, 2, 3}}
	tbl, err := New(ramp(120), dims, 2)
	require.NoError(t, err)

	got, err := tbl.Value(1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, got)
}

func TestLookupShape(t *testing.T) {
	dims := [][]float64{{1, 2, 3, 4}, {1, 2, 3, 4, 5}, {1, 2, 3}}
	tbl, err := New(ramp(120), dims, 2)
	require.NoError(t, err)

	res, err := tbl.Lookup(
		[]float64{1, 2, 3},
		[]float64{1, 2, 3},
		[]float64{1, 2, 3},
	)
	require.NoError(t, err)
	require.Len(t, res, 2)
	for _, r := range res {
		assert.Len(t, r, 3)
	}
	// Cell (1,1,1) starts at 2*(15+3+1)
	assert.Equal(t, 38.0, res[0][1])
	assert.Equal(t, 39.0, res[1][1])
}

// TestRoundTrip queries every grid coordinate and expects the stored values back
func TestRoundTrip(t *testing.T) {
	dims := [][]float64{{0, 1, 2}, {10, 20, 30, 40}, {-5, 5}}
	for _, length := range []int{1, 3} {
		values := ramp(3 * 4 * 2 * length)
		tbl, err := New(values, dims, length)
		require.NoError(t, err)

		for i, a := range dims[0] {
			for j, b := range dims[1] {
				for k, c := range dims[2] {
					got, err := tbl.Value(a, b, c)
					require.NoError(t, err)
					start := ((i*4+j)*2 + k) * length
					assert.Equal(t, values[start:start+length], got)
				}
			}
		}
	}
}

// TestFloorResolution verifies that the lower corner is returned, never the upper one
func TestFloorResolution(t *testing.T) {
	tbl, err := New([]float64{10, 20, 30, 40}, [][]float64{{0, 1, 2, 3}}, 1)
	require.NoError(t, err)

	tests := []struct {
		name  string
		coord float64
		want  float64
	}{
		{"first breakpoint", 0, 10},
		{"just below second", 0.999999, 10},
		{"second breakpoint", 1, 20},
		{"between", 2.5, 30},
		{"last breakpoint", 3, 40},
		{"below range", -7, 10},
		{"just above last", 3.5, 30},
		{"above range", 99, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tbl.Scalar(tt.coord)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocateFraction(t *testing.T) {
	p := []float64{0, 10, 20}

	lo, frac := locate(p, 15)
	assert.Equal(t, 1, lo)
	assert.InDelta(t, 0.5, frac, 1e-12)

	lo, frac = locate(p, -3)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 0.0, frac)

	lo, frac = locate(p, 40)
	assert.Equal(t, 1, lo)
	assert.Equal(t, 1.0, frac)
}

func TestStridesAndCornerOffsets(t *testing.T) {
	dims := [][]float64{{0, 1, 2}, {0, 1, 2, 3}, {0, 1}}
	tbl, err := New(ramp(24), dims, 1)
	require.NoError(t, err)

	assert.Equal(t, []int{8, 2, 1}, tbl.Strides())
	assert.Equal(t, []int{0, 8, 2, 10, 1, 9, 3, 11}, tbl.CornerOffsets())
	assert.Equal(t, 3, tbl.Dimensions())
	assert.Equal(t, 1, tbl.Length())
	assert.Equal(t, []float64{0, 1, 2, 3}, tbl.Axis(1))
}

func TestNewInvalid(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		dims   [][]float64
		length int
	}{
		{"no dimensions", ramp(4), nil, 1},
		{"zero length", ramp(4), [][]float64{{0, 1, 2, 3}}, 0},
		{"single point axis", ramp(1), [][]float64{{0}}, 1},
		{"not increasing", ramp(3), [][]float64{{0, 2, 1}}, 1},
		{"repeated breakpoint", ramp(3), [][]float64{{0, 1, 1}}, 1},
		{"too few values", ramp(5), [][]float64{{0, 1}, {0, 1, 2}}, 1},
		{"too many values", ramp(7), [][]float64{{0, 1}, {0, 1, 2}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.values, tt.dims, tt.length)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestCoordinateErrors(t *testing.T) {
	tbl, err := New(ramp(6), [][]float64{{0, 1}, {0, 1, 2}}, 1)
	require.NoError(t, err)

	_, err = tbl.Value()
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = tbl.Value(0.5)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = tbl.Value(0.5, 1, 2)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = tbl.Lookup([]float64{0, 1}, []float64{0})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = tbl.LookupGrid(mat.NewDense(1, 2, nil), mat.NewDense(2, 1, nil))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	wide, err := New(ramp(12), [][]float64{{0, 1}, {0, 1, 2}}, 2)
	require.NoError(t, err)
	_, err = wide.Scalar(0, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLookupGrid(t *testing.T) {
	tbl, err := New([]float64{1, 2, 3, 4, 5, 6, 7, 8}, [][]float64{{0, 1}, {0, 1}}, 2)
	require.NoError(t, err)

	a := mat.NewDense(2, 2, []float64{0, 0, 1, 1})
	b := mat.NewDense(2, 2, []float64{0, 1, 0, 1})
	grids, err := tbl.LookupGrid(a, b)
	require.NoError(t, err)
	require.Len(t, grids, 2)

	r, c := grids[0].Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, []float64{1, 3, 5, 7}, grids[0].RawMatrix().Data)
	assert.Equal(t, []float64{2, 4, 6, 8}, grids[1].RawMatrix().Data)
}

func TestValueDoesNotAlias(t *testing.T) {
	tbl, err := New([]float64{1, 2}, [][]float64{{0, 1}}, 1)
	require.NoError(t, err)

	v, err := tbl.Value(0)
	require.NoError(t, err)
	v[0] = math.NaN()

	again, err := tbl.Scalar(0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, again)
}

func TestLoadCSV(t *testing.T) {
	// Rows intentionally out of order
	data := strings.Join([]string{
		"season,height,zenith,a0,a1",
		"1,800,10,6,7",
		"0,400,5,0,1",
		"0,400,10,2,3",
		"0,800,5,4,5",
		"1,400,5,8,9",
		"0,800,10,10,11",
		"1,400,10,12,13",
		"1,800,5,14,15",
	}, "\n")

	tbl, err := LoadCSV(strings.NewReader(data), 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, tbl.Axis(0))
	assert.Equal(t, []float64{400, 800}, tbl.Axis(1))
	assert.Equal(t, []float64{5, 10}, tbl.Axis(2))

	got, err := tbl.Value(1, 800, 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{6, 7}, got)

	got, err = tbl.Value(0, 800, 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5}, got)
}

func TestLoadCSVInvalid(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		length int
	}{
		{"missing cell", "season,height,zenith,a0\n0,400,5,1\n0,400,10,2\n1,400,5,3\n", 1},
		{"duplicate cell", "season,height,zenith,a0\n0,400,5,1\n0,400,5,2\n", 1},
		{"bad length", "season,height,zenith,a0\n0,400,5,1\n", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCSV(strings.NewReader(tt.data), tt.length)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}
