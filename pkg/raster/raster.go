// Package raster reads input bands from and writes LSWT products to
// GeoTIFF files through GDAL.
package raster

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
	"gonum.org/v1/gonum/mat"

	"lswt/internal/models"
	"lswt/pkg/quality"
)

// ErrOutside is returned when a point of interest lies outside the raster.
var ErrOutside = errors.New("raster: point outside raster")

var registerOnce sync.Once

// register makes the GDAL drivers available. It is safe to call repeatedly.
func register() {
	registerOnce.Do(godal.RegisterAll)
}

// Source names one band of a raster file, written as "path" or "path#n"
// with n the 1-based band number.
type Source struct {
	Path string
	Band int
}

// ParseSource parses a band source. Without a band number the first band
// is used.
func ParseSource(s string) (Source, error) {
	path, band, found := strings.Cut(s, "#")
	if path == "" {
		return Source{}, fmt.Errorf("raster: empty source %q", s)
	}
	if !found {
		return Source{Path: path, Band: 1}, nil
	}
	n, err := strconv.Atoi(band)
	if err != nil || n < 1 {
		return Source{}, fmt.Errorf("raster: invalid band number in %q", s)
	}
	return Source{Path: path, Band: n}, nil
}

// Georef is the georeference of a raster.
type Georef struct {
	GeoTransform [6]float64
	Projection   string
	Width        int
	Height       int
}

func errLogger() godal.ErrorHandler {
	return func(ec godal.ErrorCategory, code int, msg string) error {
		if ec == godal.CE_Warning {
			return nil
		}
		return fmt.Errorf("gdal error %d: %s", code, msg)
	}
}

// openBand opens the raster of src and returns its georeference and the
// requested band. The caller closes the dataset.
func openBand(src Source) (*godal.Dataset, godal.Band, Georef, error) {
	register()
	ds, err := godal.Open(src.Path, godal.ErrLogger(errLogger()))
	if err != nil {
		return nil, godal.Band{}, Georef{}, fmt.Errorf("error opening %s: %w", src.Path, err)
	}

	bands := ds.Bands()
	if src.Band > len(bands) {
		ds.Close()
		return nil, godal.Band{}, Georef{}, fmt.Errorf("raster: %s has %d bands, band %d requested", src.Path, len(bands), src.Band)
	}

	st := ds.Structure()
	ref := Georef{Projection: ds.Projection(), Width: st.SizeX, Height: st.SizeY}
	if gt, err := ds.GeoTransform(); err == nil {
		ref.GeoTransform = gt
	}
	return ds, bands[src.Band-1], ref, nil
}

// readWindow reads w from band. Samples equal to the band's nodata value
// become NaN.
func readWindow(band godal.Band, w models.Window) (*mat.Dense, error) {
	data := make([]float64, w.Rows*w.Cols)
	if err := band.Read(w.Col, w.Row, data, w.Cols, w.Rows); err != nil {
		return nil, err
	}
	if nd, ok := band.NoData(); ok {
		for i, v := range data {
			if v == nd {
				data[i] = math.NaN()
			}
		}
	}
	return models.Reshape(data, w.Rows, w.Cols)
}

// ReadGeoref returns the georeference of the raster of src without reading
// any samples.
func ReadGeoref(src Source) (Georef, error) {
	ds, _, ref, err := openBand(src)
	if err != nil {
		return Georef{}, err
	}
	ds.Close()
	return ref, nil
}

// ReadBand reads one band as a grid.
func ReadBand(src Source) (*mat.Dense, Georef, error) {
	ds, band, ref, err := openBand(src)
	if err != nil {
		return nil, Georef{}, err
	}
	defer ds.Close()

	m, err := readWindow(band, models.Window{Rows: ref.Height, Cols: ref.Width})
	if err != nil {
		return nil, Georef{}, fmt.Errorf("error reading band %d of %s: %w", src.Band, src.Path, err)
	}
	return m, ref, nil
}

// ReadSubset reads only the window w of a band and returns it together
// with the georeference of the window.
func ReadSubset(src Source, w models.Window) (*mat.Dense, Georef, error) {
	ds, band, ref, err := openBand(src)
	if err != nil {
		return nil, Georef{}, err
	}
	defer ds.Close()

	if w.Rows <= 0 || w.Cols <= 0 || w.Row < 0 || w.Col < 0 || w.Row+w.Rows > ref.Height || w.Col+w.Cols > ref.Width {
		return nil, Georef{}, fmt.Errorf("%w: window %+v exceeds %dx%d raster", models.ErrShape, w, ref.Height, ref.Width)
	}
	m, err := readWindow(band, w)
	if err != nil {
		return nil, Georef{}, fmt.Errorf("error reading band %d of %s: %w", src.Band, src.Path, err)
	}
	return m, ref.Window(w), nil
}

// Product is the content of a result file.
type Product struct {
	LSWT   *mat.Dense
	Mask   *quality.Mask
	Levels *quality.Levels

	// Codings describe the flag bits in the flag band description
	Codings []quality.Coding
}

// WriteProduct writes a three-band float32 GeoTIFF: LSWT in Kelvin with
// NaN as nodata, then the quality flags and the quality level.
func WriteProduct(path string, p Product, ref Georef) error {
	register()
	rows, cols := p.LSWT.Dims()
	ds, err := godal.Create(godal.GTiff, path, 3, godal.Float32, cols, rows,
		godal.CreationOption("COMPRESS=DEFLATE", "TILED=YES"), godal.ErrLogger(errLogger()))
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}

	if err := writeBands(ds, p, ref); err != nil {
		ds.Close()
		return err
	}
	if err := ds.Close(); err != nil {
		return fmt.Errorf("error closing %s: %w", path, err)
	}
	return nil
}

func writeBands(ds *godal.Dataset, p Product, ref Georef) error {
	if ref.GeoTransform != ([6]float64{}) {
		if err := ds.SetGeoTransform(ref.GeoTransform); err != nil {
			return fmt.Errorf("error setting geotransform: %w", err)
		}
	}
	if ref.Projection != "" {
		if err := ds.SetProjection(ref.Projection); err != nil {
			return fmt.Errorf("error setting projection: %w", err)
		}
	}

	rows, cols := p.LSWT.Dims()
	lswt := make([]float32, rows*cols)
	flags := make([]float32, rows*cols)
	levels := make([]float32, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			i := r*cols + c
			lswt[i] = float32(p.LSWT.At(r, c))
			flags[i] = float32(p.Mask.At(r, c))
			levels[i] = float32(p.Levels.At(r, c))
		}
	}

	bands := ds.Bands()
	contents := []struct {
		data []float32
		desc string
	}{
		{lswt, "lake surface water temperature [K]"},
		{flags, flagDescription(p.Codings)},
		{levels, "quality level"},
	}
	for i, b := range contents {
		if err := bands[i].Write(0, 0, b.data, cols, rows); err != nil {
			return fmt.Errorf("error writing band %d: %w", i+1, err)
		}
		if err := bands[i].SetDescription(b.desc); err != nil {
			return fmt.Errorf("error describing band %d: %w", i+1, err)
		}
	}
	if err := bands[0].SetNoData(math.NaN()); err != nil {
		return fmt.Errorf("error setting nodata: %w", err)
	}
	return nil
}

func flagDescription(codings []quality.Coding) string {
	if len(codings) == 0 {
		return "quality flags"
	}
	parts := make([]string, len(codings))
	for i, c := range codings {
		parts[i] = fmt.Sprintf("%d=%s", c.Value, c.Name)
	}
	return "quality flags: " + strings.Join(parts, ", ")
}
