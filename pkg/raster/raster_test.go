package raster

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"lswt/internal/models"
	"lswt/pkg/quality"
)

// utm is a 100x80 raster with 30 m pixels.
var utm = Georef{
	GeoTransform: [6]float64{500000, 30, 0, 5200000, 0, -30},
	Width:        100,
	Height:       80,
}

func TestParseSource(t *testing.T) {
	s, err := ParseSource("bt4.tif")
	require.NoError(t, err)
	assert.Equal(t, Source{Path: "bt4.tif", Band: 1}, s)

	s, err = ParseSource("scene.tif#3")
	require.NoError(t, err)
	assert.Equal(t, Source{Path: "scene.tif", Band: 3}, s)

	for _, bad := range []string{"", "#2", "scene.tif#0", "scene.tif#x"} {
		_, err := ParseSource(bad)
		assert.Error(t, err, bad)
	}
}

func TestPixelAndBounds(t *testing.T) {
	row, col := utm.Pixel(orb.Point{500000 + 45, 5200000 - 75})
	assert.Equal(t, 2, row)
	assert.Equal(t, 1, col)

	b := utm.Bounds()
	assert.Equal(t, orb.Point{500000, 5200000 - 2400}, b.Min)
	assert.Equal(t, orb.Point{503000, 5200000}, b.Max)
	assert.True(t, b.Contains(orb.Point{501000, 5199000}))
}

func TestGeorefWindow(t *testing.T) {
	sub := utm.Window(models.Window{Row: 35, Col: 45, Rows: 11, Cols: 11})
	assert.Equal(t, [6]float64{500000 + 45*30, 30, 0, 5200000 - 35*30, 0, -30}, sub.GeoTransform)
	assert.Equal(t, 11, sub.Width)
	assert.Equal(t, 11, sub.Height)
	assert.Equal(t, utm.Projection, sub.Projection)

	// The window's upper-left pixel maps back to its origin
	row, col := sub.Pixel(orb.Point{500000 + 45*30 + 1, 5200000 - 35*30 - 1})
	assert.Equal(t, 0, row)
	assert.Equal(t, 0, col)
}

func TestSubsetWindow(t *testing.T) {
	center := orb.Point{500000 + 50*30 + 1, 5200000 - 40*30 - 1}
	w, err := utm.SubsetWindow(center, 5)
	require.NoError(t, err)
	assert.Equal(t, models.Window{Row: 35, Col: 45, Rows: 11, Cols: 11}, w)

	// Near the upper-left corner the window is clipped
	w, err = utm.SubsetWindow(orb.Point{500001, 5199999}, 3)
	require.NoError(t, err)
	assert.Equal(t, models.Window{Row: 0, Col: 0, Rows: 4, Cols: 4}, w)

	// Near the lower-right corner the row and column limits differ
	w, err = utm.SubsetWindow(orb.Point{502999, 5197601}, 3)
	require.NoError(t, err)
	assert.Equal(t, models.Window{Row: 76, Col: 96, Rows: 4, Cols: 4}, w)

	_, err = utm.SubsetWindow(orb.Point{400000, 5199999}, 3)
	assert.ErrorIs(t, err, ErrOutside)
	_, err = utm.SubsetWindow(center, -1)
	assert.Error(t, err)
	_, err = Georef{}.SubsetWindow(center, 1)
	assert.Error(t, err)
}

func TestFlagDescription(t *testing.T) {
	assert.Equal(t, "quality flags", flagDescription(nil))
	d := flagDescription(quality.MonoLayout.Describe())
	assert.Contains(t, d, "1=")
	assert.Contains(t, d, "32=")
}

func TestWriteAndReadProduct(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping GDAL round trip in short mode")
	}
	path := filepath.Join(t.TempDir(), "lswt.tif")
	lswt := mat.NewDense(2, 3, []float64{290, 291, math.NaN(), 293, 294, 295})
	mask := &quality.Mask{Rows: 2, Cols: 3, Flags: []quality.Flag{0, 1, 4, 0, 512, 0}}
	levels := &quality.Levels{Rows: 2, Cols: 3, Values: []uint8{8, 0, 0, 8, 6, 8}}

	ref := Georef{GeoTransform: [6]float64{10, 0.01, 0, 47, 0, -0.01}}
	require.NoError(t, WriteProduct(path, Product{
		LSWT: lswt, Mask: mask, Levels: levels,
		Codings: quality.StandardLayout.Describe(),
	}, ref))

	got, gotRef, err := ReadBand(Source{Path: path, Band: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, gotRef.Width)
	assert.Equal(t, 2, gotRef.Height)
	assert.InDeltaSlice(t, ref.GeoTransform[:], gotRef.GeoTransform[:], 1e-12)
	assert.Equal(t, 290.0, got.At(0, 0))
	assert.True(t, math.IsNaN(got.At(0, 2)))

	flags, _, err := ReadBand(Source{Path: path, Band: 2})
	require.NoError(t, err)
	assert.Equal(t, 512.0, flags.At(1, 1))

	sub, subRef, err := ReadSubset(Source{Path: path, Band: 3}, models.Window{Row: 1, Col: 1, Rows: 1, Cols: 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{6, 8}, sub.RawMatrix().Data)
	assert.InDeltaSlice(t, []float64{10.01, 0.01, 0, 46.99, 0, -0.01}, subRef.GeoTransform[:], 1e-12)
	assert.Equal(t, 2, subRef.Width)

	_, _, err = ReadSubset(Source{Path: path, Band: 3}, models.Window{Row: 1, Col: 1, Rows: 2, Cols: 2})
	assert.ErrorIs(t, err, models.ErrShape)

	whole, err := ReadGeoref(Source{Path: path, Band: 1})
	require.NoError(t, err)
	assert.Equal(t, gotRef, whole)

	_, _, err = ReadBand(Source{Path: path, Band: 4})
	assert.Error(t, err)
}
