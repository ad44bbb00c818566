package pipeline

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"lswt/pkg/quality"
)

// Summary describes the retrieved LSWT of a scene.
type Summary struct {
	// Pixels is the scene size, Valid the number of finite LSWT values
	Pixels int
	Valid  int

	// Statistics over the finite LSWT values of pixels at or above
	// MinLevel; NaN when there are none
	MinLevel uint8
	Retained int
	Mean     float64
	StdDev   float64
	Min      float64
	Max      float64

	// Levels counts pixels per quality level
	Levels map[uint8]int
}

// Summarize computes the scene summary. Pixels below minLevel are left out
// of the statistics but counted in Levels.
func Summarize(lswt *mat.Dense, levels *quality.Levels, minLevel uint8) Summary {
	rows, cols := lswt.Dims()
	s := Summary{
		Pixels:   rows * cols,
		MinLevel: minLevel,
		Levels:   make(map[uint8]int),
	}

	var kept []float64
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			lvl := levels.At(r, c)
			s.Levels[lvl]++
			v := lswt.At(r, c)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			s.Valid++
			if lvl >= minLevel {
				kept = append(kept, v)
			}
		}
	}

	s.Retained = len(kept)
	if len(kept) == 0 {
		s.Mean, s.StdDev, s.Min, s.Max = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(kept, nil)
	if len(kept) == 1 {
		s.StdDev = 0
	}
	s.Min = floats.Min(kept)
	s.Max = floats.Max(kept)
	return s
}
