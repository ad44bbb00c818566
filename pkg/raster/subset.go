package raster

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"lswt/internal/models"
)

// Bounds returns the projected extent of a north-up raster.
func (g Georef) Bounds() orb.Bound {
	gt := g.GeoTransform
	a := orb.Point{gt[0], gt[3]}
	b := orb.Point{gt[0] + gt[1]*float64(g.Width), gt[3] + gt[5]*float64(g.Height)}
	return orb.Bound{Min: a, Max: a}.Extend(b)
}

// Pixel returns the row and column holding the projected point p.
func (g Georef) Pixel(p orb.Point) (row, col int) {
	gt := g.GeoTransform
	col = int(math.Floor((p.X() - gt[0]) / gt[1]))
	row = int(math.Floor((p.Y() - gt[3]) / gt[5]))
	return row, col
}

// Window returns the georeference of the pixel window w.
func (g Georef) Window(w models.Window) Georef {
	gt := g.GeoTransform
	gt[0] += float64(w.Col)*gt[1] + float64(w.Row)*gt[2]
	gt[3] += float64(w.Col)*gt[4] + float64(w.Row)*gt[5]
	return Georef{GeoTransform: gt, Projection: g.Projection, Width: w.Cols, Height: w.Rows}
}

// SubsetWindow returns the pixel window of padding pixels on every side of
// the point of interest, clamped to the raster.
func (g Georef) SubsetWindow(p orb.Point, padding int) (models.Window, error) {
	if g.GeoTransform[1] == 0 || g.GeoTransform[5] == 0 {
		return models.Window{}, fmt.Errorf("raster: degenerate geotransform %v", g.GeoTransform)
	}
	if padding < 0 {
		return models.Window{}, fmt.Errorf("raster: negative padding %d", padding)
	}
	if !g.Bounds().Contains(p) {
		return models.Window{}, fmt.Errorf("%w: %v not in %v", ErrOutside, p, g.Bounds())
	}
	row, col := g.Pixel(p)
	if row < 0 || col < 0 || row >= g.Height || col >= g.Width {
		return models.Window{}, fmt.Errorf("%w: %v maps to pixel (%d,%d) of %dx%d", ErrOutside, p, row, col, g.Height, g.Width)
	}

	r0, r1 := max(row-padding, 0), min(row+padding, g.Height-1)
	c0, c1 := max(col-padding, 0), min(col+padding, g.Width-1)
	return models.Window{Row: r0, Col: c0, Rows: r1 - r0 + 1, Cols: c1 - c0 + 1}, nil
}
