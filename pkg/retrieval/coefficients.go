package retrieval

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"lswt/pkg/lut"
)

// ErrCoefficientFile is returned when a coefficient file holds no usable
// data line.
var ErrCoefficientFile = errors.New("retrieval: invalid coefficient file")

// Coefficients are the regression coefficients of the split-window
// equation. The mono-window equation uses A0 and A1 only.
type Coefficients struct {
	A0 float64 `yaml:"a0"`
	A1 float64 `yaml:"a1"`
	A2 float64 `yaml:"a2"`
	A3 float64 `yaml:"a3"`
}

// ParseCoefficients reads the first data line of a whitespace-separated
// coefficient table. Lines starting with '#' are comments. The coefficients
// are the third to sixth column, after the Julian and calendar date.
func ParseCoefficients(r io.Reader) (Coefficients, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 6 {
			return Coefficients{}, fmt.Errorf("%w: data line has %d columns, need at least 6", ErrCoefficientFile, len(fields))
		}
		var a [4]float64
		for i := range a {
			v, err := strconv.ParseFloat(fields[2+i], 64)
			if err != nil {
				return Coefficients{}, fmt.Errorf("%w: column %d: %v", ErrCoefficientFile, 3+i, err)
			}
			a[i] = v
		}
		return Coefficients{A0: a[0], A1: a[1], A2: a[2], A3: a[3]}, nil
	}
	if err := scanner.Err(); err != nil {
		return Coefficients{}, fmt.Errorf("error reading coefficient file: %w", err)
	}
	return Coefficients{}, fmt.Errorf("%w: no data line", ErrCoefficientFile)
}

// ReadCoefficientFile is ParseCoefficients on a file path.
func ReadCoefficientFile(path string) (Coefficients, error) {
	f, err := os.Open(path)
	if err != nil {
		return Coefficients{}, fmt.Errorf("error opening coefficient file: %w", err)
	}
	defer f.Close()
	return ParseCoefficients(f)
}

// Season indices used as the first LUT coordinate.
const (
	Spring = 0
	Summer = 1
	Autumn = 2
	Winter = 3
)

// SeasonOf returns the season index of an acquisition date. Spring runs
// from March 21 to June 20, summer to September 22, autumn to December 20
// and winter covers the rest of the year.
func SeasonOf(t time.Time) int {
	md := int(t.Month())*100 + t.Day()
	switch {
	case md >= 321 && md <= 620:
		return Spring
	case md >= 621 && md <= 922:
		return Summer
	case md >= 923 && md <= 1220:
		return Autumn
	default:
		return Winter
	}
}

// LUTDimensions returns the axes of the calibration tables: season 0..3,
// surface height 400, 800 and 1000 m and view zenith 5..55 degrees in 5
// degree steps.
func LUTDimensions() [][]float64 {
	zenith := make([]float64, 0, 11)
	for z := 5; z <= 55; z += 5 {
		zenith = append(zenith, float64(z))
	}
	return [][]float64{
		{Spring, Summer, Autumn, Winter},
		{400, 800, 1000},
		zenith,
	}
}

// DefaultSplitWindowCoefficients fill every cell of the default
// split-window table.
var DefaultSplitWindowCoefficients = Coefficients{A0: 3.079654, A1: 0.988938, A2: 1.867209, A3: -0.434251}

// DefaultSplitWindowTable returns the split-window table used when no table
// file is configured.
func DefaultSplitWindowTable() *lut.Table {
	dims := LUTDimensions()
	cells := len(dims[0]) * len(dims[1]) * len(dims[2])
	c := DefaultSplitWindowCoefficients
	values := make([]float64, 0, cells*4)
	for i := 0; i < cells; i++ {
		values = append(values, c.A0, c.A1, c.A2, c.A3)
	}
	t, err := lut.New(values, dims, 4)
	if err != nil {
		panic(err)
	}
	return t
}
