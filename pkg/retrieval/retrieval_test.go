package retrieval

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"lswt/internal/models"
	"lswt/pkg/lut"
	"lswt/pkg/quality"
)

func TestTemperature(t *testing.T) {
	c := Coefficients{A0: 0.5, A1: 1, A2: 1.5, A3: 2}
	assert.InDelta(t, -1.499847686457052, c.Temperature(1, 3, 0.5), 1e-12)
}

func TestSplitWindowFixed(t *testing.T) {
	s := NewSplitWindow(Coefficients{A0: 0.5, A1: 1, A2: 1.5, A3: 2}, quality.NewStandard())
	assert.False(t, s.UsesTable())
	out, err := s.Compute(Fields{
		Lower:  mat.NewDense(1, 3, []float64{290, 300, math.NaN()}),
		Upper:  mat.NewDense(1, 3, []float64{289, 301, 290}),
		Zenith: mat.NewDense(1, 3, []float64{0, 0, 0}),
	})
	require.NoError(t, err)
	assert.InDelta(t, 292.0, out.At(0, 0), 1e-9)
	assert.InDelta(t, 299.0, out.At(0, 1), 1e-9)
	assert.True(t, math.IsNaN(out.At(0, 2)))
}

func TestSplitWindowShapeMismatch(t *testing.T) {
	s := NewSplitWindow(DefaultSplitWindowCoefficients, quality.NewStandard())
	_, err := s.Compute(Fields{
		Lower:  models.Filled(2, 2, 290),
		Upper:  models.Filled(2, 3, 289),
		Zenith: models.Filled(2, 2, 0),
	})
	assert.ErrorIs(t, err, models.ErrShape)

	_, err = s.Compute(Fields{Lower: models.Filled(2, 2, 290), Zenith: models.Filled(2, 2, 0)})
	assert.ErrorIs(t, err, ErrMissingBand)
}

func TestSplitWindowLUT(t *testing.T) {
	s, err := NewSplitWindowLUT(DefaultSplitWindowTable(), quality.NewStandard())
	require.NoError(t, err)
	assert.True(t, s.UsesTable())

	lower := mat.NewDense(2, 2, []float64{295, math.NaN(), 290, 300})
	upper := mat.NewDense(2, 2, []float64{294, 294, math.Inf(1), 298})
	zen := mat.NewDense(2, 2, []float64{20, 20, 20, 40})
	out, err := s.Compute(Fields{
		Lower: lower, Upper: upper, Zenith: zen,
		Season: models.Filled(2, 2, Summer),
		Height: models.Filled(2, 2, 600),
	})
	require.NoError(t, err)

	c := DefaultSplitWindowCoefficients
	assert.InDelta(t, c.Temperature(295, 294, 20), out.At(0, 0), 1e-9)
	assert.True(t, math.IsNaN(out.At(0, 1)))
	assert.True(t, math.IsNaN(out.At(1, 0)))
	assert.InDelta(t, c.Temperature(300, 298, 40), out.At(1, 1), 1e-9)
}

func TestSplitWindowLUTAllMissing(t *testing.T) {
	s, err := NewSplitWindowLUT(DefaultSplitWindowTable(), quality.NewStandard())
	require.NoError(t, err)
	out, err := s.Compute(Fields{
		Lower:  models.Filled(2, 2, math.NaN()),
		Upper:  models.Filled(2, 2, 290),
		Zenith: models.Filled(2, 2, 10),
		Season: models.Filled(2, 2, 0),
		Height: models.Filled(2, 2, 400),
	})
	require.NoError(t, err)
	for _, v := range out.RawMatrix().Data {
		assert.True(t, math.IsNaN(v))
	}
}

func TestNewLUTRejectsWrongLength(t *testing.T) {
	_, err := NewSplitWindowLUT(zenithTable(t), quality.NewStandard())
	assert.ErrorIs(t, err, lut.ErrInvalidInput)
	_, err = NewMonoWindowLUT(DefaultSplitWindowTable(), quality.NewMono())
	assert.ErrorIs(t, err, lut.ErrInvalidInput)
	_, err = NewMonoWindowLUT(nil, quality.NewMono())
	assert.ErrorIs(t, err, lut.ErrInvalidInput)
}

// zenithTable returns a mono-window table whose gain equals the zenith
// breakpoint and whose offset is zero.
func zenithTable(t *testing.T) *lut.Table {
	t.Helper()
	dims := LUTDimensions()
	var values []float64
	for range dims[0] {
		for range dims[1] {
			for _, z := range dims[2] {
				values = append(values, z, 0)
			}
		}
	}
	tab, err := lut.New(values, dims, 2)
	require.NoError(t, err)
	return tab
}

func monoFields(lower *mat.Dense) Fields {
	r, c := lower.Dims()
	return Fields{
		Lower:  lower,
		Zenith: mat.NewDense(2, 2, []float64{10, 20, 30, 40}),
		Season: models.Filled(r, c, Spring),
		Height: models.Filled(r, c, 400),
	}
}

func TestMonoWindowFixed(t *testing.T) {
	m := NewMonoWindow(2, 1, quality.NewMono())
	assert.False(t, m.UsesTable())
	out, err := m.Compute(Fields{Lower: mat.NewDense(1, 3, []float64{1, 2, math.NaN()})})
	require.NoError(t, err)
	assert.Equal(t, 3.0, out.At(0, 0))
	assert.Equal(t, 5.0, out.At(0, 1))
	assert.True(t, math.IsNaN(out.At(0, 2)))
}

func TestMonoWindowLUTBlockAnchor(t *testing.T) {
	m, err := NewMonoWindowLUT(zenithTable(t), quality.NewMono())
	require.NoError(t, err)

	t.Run("first pixel anchors the block", func(t *testing.T) {
		out, err := m.Compute(monoFields(models.Filled(2, 2, 1)))
		require.NoError(t, err)
		assert.Equal(t, []float64{10, 10, 10, 10}, out.RawMatrix().Data)
	})

	t.Run("first finite pixel anchors the block", func(t *testing.T) {
		out, err := m.Compute(monoFields(mat.NewDense(2, 2, []float64{math.NaN(), 1, 2, 1})))
		require.NoError(t, err)
		assert.True(t, math.IsNaN(out.At(0, 0)))
		assert.Equal(t, 20.0, out.At(0, 1))
		assert.Equal(t, 40.0, out.At(1, 0))
		assert.Equal(t, 20.0, out.At(1, 1))
	})

	t.Run("no finite pixel", func(t *testing.T) {
		out, err := m.Compute(monoFields(models.Filled(2, 2, math.NaN())))
		require.NoError(t, err)
		for _, v := range out.RawMatrix().Data {
			assert.True(t, math.IsNaN(v))
		}
	})
}

func TestMonoWindowLUTOddShape(t *testing.T) {
	m, err := NewMonoWindowLUT(zenithTable(t), quality.NewMono())
	require.NoError(t, err)
	out, err := m.Compute(Fields{
		Lower:  models.Filled(3, 3, 1),
		Zenith: models.Filled(3, 3, 15),
		Season: models.Filled(3, 3, 0),
		Height: models.Filled(3, 3, 400),
	})
	require.NoError(t, err)
	for _, v := range out.RawMatrix().Data {
		assert.Equal(t, 15.0, v)
	}
}

// Zenith angles past the last LUT breakpoint use the second to last cell
func TestMonoWindowLUTZenithRange(t *testing.T) {
	m, err := NewMonoWindowLUT(zenithTable(t), quality.NewMono())
	require.NoError(t, err)

	tests := []struct {
		zenith float64
		want   float64
	}{
		{5, 5},
		{54.9, 50},
		{55, 55},
		{60, 50},
		{89, 50},
	}
	for _, tt := range tests {
		out, err := m.Compute(Fields{
			Lower:  models.Filled(1, 1, 1),
			Zenith: models.Filled(1, 1, tt.zenith),
			Season: models.Filled(1, 1, Spring),
			Height: models.Filled(1, 1, 400),
		})
		require.NoError(t, err)
		assert.Equal(t, tt.want, out.At(0, 0), "zenith %g", tt.zenith)
	}
}

func cleanTile() *models.Tile {
	p := func(v float64) models.Channel { return models.NewChannel(models.Filled(4, 4, v)) }
	return &models.Tile{
		Window: models.Window{Rows: 4, Cols: 4},
		Bands: models.Bands{
			Lower:      p(295),
			Upper:      p(294),
			Lowest:     p(295),
			Visible:    p(0.3),
			NIR:        p(0.05),
			SatZenith:  p(20),
			SunZenith:  p(40),
			RelAzimuth: p(0),
			LandWater:  p(1),
			CloudMask:  p(0),
		},
		Season:    Summer,
		Elevation: 400,
	}
}

func TestSplitWindowAlgorithm(t *testing.T) {
	var alg Algorithm = NewSplitWindow(DefaultSplitWindowCoefficients, quality.NewStandard())
	assert.Equal(t, SplitWindowName, alg.Name())

	tile := cleanTile()
	lswt, err := alg.Retrieve(tile)
	require.NoError(t, err)
	assert.InDelta(t, 296.7114, lswt.At(2, 3), 1e-3)

	mask, err := alg.Flags(tile, lswt)
	require.NoError(t, err)
	levels := alg.QualityLevels(mask)
	for _, v := range levels.Values {
		assert.Equal(t, uint8(8), v)
	}

	tile.Bands.Upper = models.Channel{}
	_, err = alg.Retrieve(tile)
	assert.ErrorIs(t, err, ErrMissingBand)
}

func TestMonoWindowAlgorithm(t *testing.T) {
	var alg Algorithm = NewMonoWindow(1, 0, quality.NewMono())
	assert.Equal(t, MonoWindowName, alg.Name())

	tile := cleanTile()
	tile.Bands.Mono = models.NewChannel(models.Filled(4, 4, 290))
	lswt, err := alg.Retrieve(tile)
	require.NoError(t, err)
	assert.Equal(t, 290.0, lswt.At(0, 0))

	// Without a mono band the lower band is used
	tile.Bands.Mono = models.Channel{}
	lswt, err = alg.Retrieve(tile)
	require.NoError(t, err)
	assert.Equal(t, 295.0, lswt.At(1, 1))

	mask, err := alg.Flags(tile, lswt)
	require.NoError(t, err)
	for _, v := range alg.QualityLevels(mask).Values {
		assert.Equal(t, uint8(3), v)
	}

	tile.Bands.Lower = models.Channel{}
	_, err = alg.Retrieve(tile)
	assert.ErrorIs(t, err, ErrMissingBand)
}

func TestSeasonOf(t *testing.T) {
	tests := []struct {
		date string
		want int
	}{
		{"2017-05-15", Spring},
		{"2014-11-12", Autumn},
		{"2020-01-01", Winter},
		{"2020-07-01", Summer},
		{"2020-03-21", Spring},
		{"2020-03-20", Winter},
		{"2020-09-22", Summer},
		{"2020-12-21", Winter},
	}
	for _, tt := range tests {
		d, err := time.Parse("2006-01-02", tt.date)
		require.NoError(t, err)
		assert.Equal(t, tt.want, SeasonOf(d), tt.date)
	}
}

func TestParseCoefficients(t *testing.T) {
	src := `# julian   date        a0        a1        a2        a3
# -------------------------------------------------------------

2456789.5  2014-05-14  1.439901  0.995912  1.951689  -0.706211
2456790.5  2014-05-15  9.0       9.0       9.0       9.0
`
	c, err := ParseCoefficients(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, Coefficients{A0: 1.439901, A1: 0.995912, A2: 1.951689, A3: -0.706211}, c)
}

func TestParseCoefficientsInvalid(t *testing.T) {
	for name, src := range map[string]string{
		"empty":       "",
		"only header": "# a0 a1 a2 a3\n",
		"short line":  "1 2 3 4\n",
		"not numeric": "1 2 x 4 5 6\n",
	} {
		_, err := ParseCoefficients(strings.NewReader(src))
		assert.ErrorIs(t, err, ErrCoefficientFile, name)
	}
}

func TestDefaultSplitWindowTable(t *testing.T) {
	tab := DefaultSplitWindowTable()
	assert.Equal(t, 3, tab.Dimensions())
	v, err := tab.Value(Winter, 1000, 55)
	require.NoError(t, err)
	c := DefaultSplitWindowCoefficients
	assert.Equal(t, []float64{c.A0, c.A1, c.A2, c.A3}, v)
}
