package models

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrShape is returned when flat host data cannot be laid out on the
// requested (height, width) grid.
var ErrShape = errors.New("invalid grid shape")

// Channel is an optional per-pixel input band. The zero value is an
// absent channel.
type Channel struct {
	data *mat.Dense
}

// NewChannel wraps a grid as a present channel. A nil grid yields an
// absent channel.
func NewChannel(data *mat.Dense) Channel {
	return Channel{data: data}
}

// Present reports whether the channel carries data.
func (c Channel) Present() bool {
	return c.data != nil
}

// Data returns the channel grid, or nil when the channel is absent.
func (c Channel) Data() *mat.Dense {
	return c.data
}

// Bands holds every per-pixel input the host can supply for one scene or
// one tile. All present channels share the same shape.
type Bands struct {
	// Thermal brightness temperatures in Kelvin
	Lower  Channel
	Upper  Channel
	Lowest Channel
	Mono   Channel

	// Top-of-atmosphere reflectances (or radiances before conversion)
	Visible Channel
	NIR     Channel

	// Geometry in degrees
	SatZenith  Channel
	SunZenith  Channel
	RelAzimuth Channel
	SatAzimuth Channel
	SunAzimuth Channel

	// Masks
	LandWater Channel
	CloudMask Channel
	Valid     Channel

	// Surface height in metres, used as LUT coordinate when present
	Elevation Channel
}

// Each calls fn for every channel field together with its role name.
// fn may replace the channel by writing through the pointer.
func (b *Bands) Each(fn func(role string, c *Channel)) {
	fn("lower", &b.Lower)
	fn("upper", &b.Upper)
	fn("lowest", &b.Lowest)
	fn("mono", &b.Mono)
	fn("visible", &b.Visible)
	fn("nir", &b.NIR)
	fn("satZenith", &b.SatZenith)
	fn("sunZenith", &b.SunZenith)
	fn("relAzimuth", &b.RelAzimuth)
	fn("satAzimuth", &b.SatAzimuth)
	fn("sunAzimuth", &b.SunAzimuth)
	fn("landWater", &b.LandWater)
	fn("cloudMask", &b.CloudMask)
	fn("valid", &b.Valid)
	fn("elevation", &b.Elevation)
}

// Window is a rectangular pixel block inside a scene.
type Window struct {
	Row, Col   int
	Rows, Cols int
}

// Scene is the full raster handed over by the host.
type Scene struct {
	Rows, Cols int
	Bands      Bands

	// Season index (0 spring, 1 summer, 2 autumn, 3 winter)
	Season float64

	// Elevation is the constant surface height used when no elevation
	// band is present.
	Elevation float64
}

// Tile is one independently processable block of a scene. It owns its
// buffers; nothing in a tile aliases the scene.
type Tile struct {
	Window    Window
	Bands     Bands
	Season    float64
	Elevation float64
}

// Validate checks that every present band matches the scene dimensions.
func (s *Scene) Validate() error {
	if s.Rows <= 0 || s.Cols <= 0 {
		return fmt.Errorf("%w: scene is %dx%d", ErrShape, s.Rows, s.Cols)
	}
	var err error
	s.Bands.Each(func(role string, c *Channel) {
		if err != nil || !c.Present() {
			return
		}
		r, cc := c.Data().Dims()
		if r != s.Rows || cc != s.Cols {
			err = fmt.Errorf("%w: band %s is %dx%d, scene is %dx%d", ErrShape, role, r, cc, s.Rows, s.Cols)
		}
	})
	return err
}

// Tiles splits the scene into windows of at most size×size pixels in
// row-major order.
func (s *Scene) Tiles(size int) []Window {
	if size <= 0 {
		size = max(s.Rows, s.Cols)
	}
	var windows []Window
	for r := 0; r < s.Rows; r += size {
		for c := 0; c < s.Cols; c += size {
			windows = append(windows, Window{
				Row:  r,
				Col:  c,
				Rows: min(size, s.Rows-r),
				Cols: min(size, s.Cols-c),
			})
		}
	}
	return windows
}

// Tile copies the bands under w into a new tile.
func (s *Scene) Tile(w Window) *Tile {
	t := &Tile{Window: w, Season: s.Season, Elevation: s.Elevation}
	t.Bands = s.Bands
	t.Bands.Each(func(_ string, c *Channel) {
		if !c.Present() {
			return
		}
		sub := c.Data().Slice(w.Row, w.Row+w.Rows, w.Col, w.Col+w.Cols)
		*c = NewChannel(mat.DenseCopyOf(sub))
	})
	return t
}

// Reshape lays a flat row-major buffer out as a rows×cols grid. The buffer
// is used directly, not copied.
func Reshape(data []float64, rows, cols int) (*mat.Dense, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrShape, rows, cols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("%w: %d values cannot fill %dx%d", ErrShape, len(data), rows, cols)
	}
	return mat.NewDense(rows, cols, data), nil
}

// Filled returns a rows×cols grid with every cell set to v.
func Filled(rows, cols int, v float64) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = v
	}
	return mat.NewDense(rows, cols, data)
}
