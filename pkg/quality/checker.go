package quality

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"lswt/internal/models"
	"lswt/pkg/spatial"
)

var (
	// ErrShapeMismatch is returned when an input grid does not share the
	// LSWT shape.
	ErrShapeMismatch = errors.New("quality: input shape mismatch")

	// ErrMissingChannel is returned when a test of the layout needs a band
	// that was not supplied.
	ErrMissingChannel = errors.New("quality: missing input channel")
)

// Inputs are the per-pixel grids of one tile. LSWT is required; which of
// the other channels are required depends on the checker layout. Cloud and
// land/water masks are optional everywhere: an absent mask fails its test
// for every pixel.
type Inputs struct {
	LSWT *mat.Dense

	Visible models.Channel
	NIR     models.Channel

	Lower  models.Channel
	Upper  models.Channel
	Lowest models.Channel

	SatZenith  models.Channel
	SunZenith  models.Channel
	RelAzimuth models.Channel

	LandWater models.Channel
	CloudMask models.Channel
}

// Mask is the quality bitmask of one tile in row-major order.
type Mask struct {
	Rows, Cols int
	Flags      []Flag
}

// At returns the bitmask of pixel (r, c).
func (m *Mask) At(r, c int) Flag { return m.Flags[r*m.Cols+c] }

// Dense returns the bitmask as a float grid.
func (m *Mask) Dense() *mat.Dense {
	out := mat.NewDense(m.Rows, m.Cols, nil)
	for i, f := range m.Flags {
		out.Set(i/m.Cols, i%m.Cols, float64(f))
	}
	return out
}

// Levels holds the ordinal quality level of every pixel of a tile.
type Levels struct {
	Rows, Cols int
	Values     []uint8
}

// At returns the level of pixel (r, c).
func (l *Levels) At(r, c int) uint8 { return l.Values[r*l.Cols+c] }

// Dense returns the levels as a float grid.
func (l *Levels) Dense() *mat.Dense {
	out := mat.NewDense(l.Rows, l.Cols, nil)
	for i, v := range l.Values {
		out.Set(i/l.Cols, i%l.Cols, float64(v))
	}
	return out
}

// Checker evaluates a bit layout on a tile and reduces the resulting mask.
// The mask is passed to Reduce explicitly, so one Checker may serve many
// tiles concurrently.
type Checker interface {
	Layout() Layout
	Check(in Inputs) (*Mask, error)
	Reduce(m *Mask) *Levels
}

// Engine is the Checker shared by all variants; the variants differ in
// layout and reducer only.
type Engine struct {
	layout   Layout
	reducer  Reducer
	filter   Filter
	cloud    CloudMaskPolicy
	boundary spatial.Boundary
}

// Option configures an Engine.
type Option func(*Engine)

// WithFilter replaces the default thresholds.
func WithFilter(f Filter) Option {
	return func(e *Engine) { e.filter = f }
}

// WithCloudPolicy selects the cloud mask interpretation.
func WithCloudPolicy(p CloudMaskPolicy) Option {
	return func(e *Engine) {
		if p != nil {
			e.cloud = p
		}
	}
}

// WithBoundary selects the edge policy of the spatial tests.
func WithBoundary(b spatial.Boundary) Option {
	return func(e *Engine) { e.boundary = b }
}

func newEngine(layout Layout, reducer Reducer, opts []Option) *Engine {
	e := &Engine{
		layout:   layout,
		reducer:  reducer,
		filter:   DefaultFilter(),
		cloud:    BinaryCloudMask{},
		boundary: spatial.Reflect,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewStandard returns the checker of the current processor.
func NewStandard(opts ...Option) *Engine {
	return newEngine(StandardLayout, StandardReducer, opts)
}

// NewLegacy returns the checker of the three-band processor.
func NewLegacy(opts ...Option) *Engine {
	return newEngine(LegacyLayout, LegacyReducer, opts)
}

// NewMono returns the reduced mono-window checker.
func NewMono(opts ...Option) *Engine {
	return newEngine(MonoLayout, MonoReducer, opts)
}

// New returns the checker of the named variant.
func New(variant string, opts ...Option) (*Engine, error) {
	switch variant {
	case "", "standard":
		return NewStandard(opts...), nil
	case "legacy":
		return NewLegacy(opts...), nil
	case "mono":
		return NewMono(opts...), nil
	default:
		return nil, fmt.Errorf("unknown quality variant %q", variant)
	}
}

// Layout implements Checker.
func (e *Engine) Layout() Layout { return e.layout }

// Filter returns the thresholds in use.
func (e *Engine) Filter() Filter { return e.filter }

// MaxLevel returns the level of a pixel that passes every test.
func (e *Engine) MaxLevel() uint8 { return e.reducer.MaxLevel() }

// Reduce implements Checker.
func (e *Engine) Reduce(m *Mask) *Levels {
	out := &Levels{Rows: m.Rows, Cols: m.Cols, Values: make([]uint8, len(m.Flags))}
	for i, f := range m.Flags {
		out.Values[i] = e.reducer.Level(f)
	}
	return out
}

// Check implements Checker. Tests run in layout order; each adds its bit to
// every failing pixel.
func (e *Engine) Check(in Inputs) (*Mask, error) {
	ev, err := e.prepare(in)
	if err != nil {
		return nil, err
	}
	for _, b := range e.layout.bits {
		failed, err := e.run(b.Test, ev)
		if err != nil {
			return nil, err
		}
		for i, bad := range failed {
			if bad {
				ev.flags[i] += b.Value
			}
		}
	}
	return &Mask{Rows: ev.rows, Cols: ev.cols, Flags: ev.flags}, nil
}

// evaluation is the working state of one Check call.
type evaluation struct {
	rows, cols int

	lswt                  []float64
	vis, nir              []float64
	lower, upper, lowest  []float64
	satZen, sunZen, relAz []float64
	landWater, cloudMask  []float64

	flags []Flag

	// good is the set of pixels without failures when the neighbourhood
	// tests start; the isolated-pixel and standard deviation tests share it
	good   []bool
	stddev []float64
}

// requirements lists the channels each test reads besides LSWT.
var requirements = map[Test][]string{
	VisibleCloud:   {"nir", "sunZenith"},
	NIRRatio:       {"visible", "nir", "sunZenith"},
	GrossIR:        {"lower", "visible", "sunZenith"},
	ZenithHigh:     {"satZenith"},
	ZenithModerate: {"satZenith"},
	Glint:          {"satZenith", "sunZenith", "relAzimuth"},
	IRCloudNight:   {"lower", "upper", "sunZenith"},
	LowStratus:     {"upper", "lowest"},
}

func (e *Engine) prepare(in Inputs) (*evaluation, error) {
	if in.LSWT == nil {
		return nil, fmt.Errorf("%w: lswt", ErrMissingChannel)
	}
	rows, cols := in.LSWT.Dims()
	ev := &evaluation{rows: rows, cols: cols, lswt: flatten(in.LSWT)}

	channels := map[string]models.Channel{
		"visible":    in.Visible,
		"nir":        in.NIR,
		"lower":      in.Lower,
		"upper":      in.Upper,
		"lowest":     in.Lowest,
		"satZenith":  in.SatZenith,
		"sunZenith":  in.SunZenith,
		"relAzimuth": in.RelAzimuth,
		"landWater":  in.LandWater,
		"cloudMask":  in.CloudMask,
	}
	for _, b := range e.layout.bits {
		for _, role := range requirements[b.Test] {
			if !channels[role].Present() {
				return nil, fmt.Errorf("%w: %s needs %s", ErrMissingChannel, b.Test, role)
			}
		}
	}

	targets := map[string]*[]float64{
		"visible":    &ev.vis,
		"nir":        &ev.nir,
		"lower":      &ev.lower,
		"upper":      &ev.upper,
		"lowest":     &ev.lowest,
		"satZenith":  &ev.satZen,
		"sunZenith":  &ev.sunZen,
		"relAzimuth": &ev.relAz,
		"landWater":  &ev.landWater,
		"cloudMask":  &ev.cloudMask,
	}
	for role, c := range channels {
		if !c.Present() {
			continue
		}
		r, cc := c.Data().Dims()
		if r != rows || cc != cols {
			return nil, fmt.Errorf("%w: %s is %dx%d, lswt is %dx%d", ErrShapeMismatch, role, r, cc, rows, cols)
		}
		*targets[role] = flatten(c.Data())
	}

	ev.flags = make([]Flag, rows*cols)
	return ev, nil
}

// run evaluates one test and reports the failing pixels.
func (e *Engine) run(t Test, ev *evaluation) ([]bool, error) {
	f := e.filter
	n := len(ev.flags)
	out := make([]bool, n)
	each := func(fn func(i int) bool) []bool {
		for i := range out {
			out[i] = fn(i)
		}
		return out
	}

	switch t {
	case CloudMask:
		if ev.cloudMask == nil {
			return each(func(int) bool { return true }), nil
		}
		return each(func(i int) bool { return e.cloud.Cloudy(ev.cloudMask[i]) }), nil

	case VisibleCloud:
		return each(func(i int) bool {
			return ev.nir[i] >= f.NIRCloud && ev.sunZen[i] < f.DaySunZenith
		}), nil

	case NIRRatio:
		// Only applied when the whole tile is in daylight
		if !(nanMax(ev.sunZen) < f.DaySunZenith) {
			return out, nil
		}
		return each(func(i int) bool { return ev.nir[i]/ev.vis[i] > f.RatioLimit }), nil

	case LandWater:
		if ev.landWater == nil {
			return each(func(int) bool { return true }), nil
		}
		return each(func(i int) bool { return ev.landWater[i] == 0 }), nil

	case GrossIR:
		return each(func(i int) bool {
			return (ev.lower[i] <= f.GrossIR || ev.vis[i] < f.VisibleMin) && ev.sunZen[i] < f.DaySunZenith
		}), nil

	case LSWTRange:
		return each(func(i int) bool {
			v := ev.lswt[i]
			return !(v > f.LSWTMin && v < f.LSWTMax)
		}), nil

	case Isolated:
		ev.snapshot()
		count, err := spatial.NeighborCount(ev.good, ev.rows, ev.cols, f.Window, e.boundary)
		if err != nil {
			return nil, err
		}
		raw := count.RawMatrix().Data
		return each(func(i int) bool { return raw[i] < float64(f.MinNeighbors) }), nil

	case StdDevHigh, StdDevModerate:
		sd, err := e.localStdDev(ev)
		if err != nil {
			return nil, err
		}
		limit := f.StdDevHigh
		if t == StdDevModerate {
			limit = f.StdDevModerate
		}
		return each(func(i int) bool {
			return !math.IsNaN(sd[i]) && !math.IsInf(sd[i], 0) && sd[i] > limit
		}), nil

	case ZenithHigh:
		return each(func(i int) bool { return ev.satZen[i] > f.ZenithHigh }), nil

	case ZenithModerate:
		return each(func(i int) bool { return ev.satZen[i] > f.ZenithModerate }), nil

	case Glint:
		return each(func(i int) bool {
			return GlintAngle(ev.satZen[i], ev.sunZen[i], ev.relAz[i]) < f.GlintLimit
		}), nil

	case IRCloudNight:
		return each(func(i int) bool {
			synth := ev.upper[i]*f.SynthSlope - f.SynthOffset
			return math.Abs(synth-ev.lower[i]) >= f.IRCloudLimit && ev.sunZen[i] > f.NightSunZenith
		}), nil

	case LowStratus:
		return each(func(i int) bool {
			return ev.upper[i]-ev.lowest[i] > f.StratusLimit && ev.lowest[i] > f.LowestMin
		}), nil
	}

	return nil, fmt.Errorf("quality: test %s has no implementation", t)
}

// snapshot records the currently good pixels once.
func (ev *evaluation) snapshot() {
	if ev.good != nil {
		return
	}
	ev.good = make([]bool, len(ev.flags))
	for i, f := range ev.flags {
		ev.good[i] = f == 0
	}
}

// localStdDev computes the windowed standard deviation of LSWT with the
// pixels that were bad before the neighbourhood tests set to zero.
func (e *Engine) localStdDev(ev *evaluation) ([]float64, error) {
	if ev.stddev != nil {
		return ev.stddev, nil
	}
	ev.snapshot()
	work := make([]float64, len(ev.lswt))
	for i, v := range ev.lswt {
		if ev.good[i] {
			work[i] = v
		}
	}
	sd, err := spatial.WindowedStdDev(mat.NewDense(ev.rows, ev.cols, work), e.filter.Window, e.boundary)
	if err != nil {
		return nil, err
	}
	ev.stddev = sd.RawMatrix().Data
	return ev.stddev, nil
}

// GlintAngle returns the glint angle in degrees for the given satellite and
// sun zenith angles and relative azimuth, all in degrees.
func GlintAngle(satZenith, sunZenith, relAzimuth float64) float64 {
	sat := satZenith * math.Pi / 180
	sun := sunZenith * math.Pi / 180
	rel := relAzimuth * math.Pi / 180
	g := math.Asin(math.Sin(sat)*math.Sin(sun)*math.Cos(rel) + math.Cos(sat)*math.Cos(sun))
	return g * 180 / math.Pi
}

// nanMax returns the largest non-NaN value, or NaN when there is none.
func nanMax(v []float64) float64 {
	m := math.NaN()
	for _, x := range v {
		if math.IsNaN(x) {
			continue
		}
		if math.IsNaN(m) || x > m {
			m = x
		}
	}
	return m
}

// flatten returns the row-major cells of m. Contiguous grids are returned
// without copying and must not be modified.
func flatten(m *mat.Dense) []float64 {
	raw := m.RawMatrix()
	if raw.Stride == raw.Cols {
		return raw.Data[:raw.Rows*raw.Cols]
	}
	return mat.DenseCopyOf(m).RawMatrix().Data
}
