// Package radiometry converts raw sensor bands into the physical quantities
// the retrieval reads: brightness temperature in Kelvin, top-of-atmosphere
// reflectance and viewing geometry in degrees.
//
// All functions work in place on *mat.Dense grids or on single values and
// keep NaN where the input is NaN.
package radiometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"gonum.org/v1/gonum/mat"
)

const deg = math.Pi / 180

// Scale multiplies every cell of m by factor. A factor of 0 or 1 leaves m
// unchanged.
func Scale(m *mat.Dense, factor float64) {
	if m == nil || factor == 0 || factor == 1 {
		return
	}
	m.Scale(factor, m)
}

// MaskFill replaces every cell equal to fill with NaN. A NaN fill value
// disables masking.
func MaskFill(m *mat.Dense, fill float64) {
	if m == nil || math.IsNaN(fill) {
		return
	}
	m.Apply(func(_, _ int, v float64) float64 {
		if v == fill {
			return math.NaN()
		}
		return v
	}, m)
}

// MaskInvalid sets m to NaN wherever valid is zero or NaN.
func MaskInvalid(m, valid *mat.Dense) {
	if m == nil || valid == nil {
		return
	}
	m.Apply(func(r, c int, v float64) float64 {
		if ok := valid.At(r, c); ok == 0 || math.IsNaN(ok) {
			return math.NaN()
		}
		return v
	}, m)
}

// ElevationToZenith converts elevation angles to zenith angles in place.
func ElevationToZenith(m *mat.Dense) {
	if m == nil {
		return
	}
	m.Apply(func(_, _ int, v float64) float64 { return 90 - v }, m)
}

// RelativeAzimuth returns the absolute azimuth difference folded into
// [0, 180] degrees.
func RelativeAzimuth(satAzimuth, sunAzimuth float64) float64 {
	d := math.Abs(satAzimuth - sunAzimuth)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// RelativeAzimuthGrid applies RelativeAzimuth cell by cell.
func RelativeAzimuthGrid(sat, sun *mat.Dense) *mat.Dense {
	r, c := sat.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, _ float64) float64 {
		return RelativeAzimuth(sat.At(i, j), sun.At(i, j))
	}, out)
	return out
}

// Reflectance converts a radiance L (W m-2 sr-1 um-1) into TOA reflectance
// for a band with solar irradiance e:
//
//	rho = pi * L / (e * cos(sunZenith))
func Reflectance(radiance, irradiance, sunZenith float64) float64 {
	return math.Pi * radiance / (irradiance * math.Cos(sunZenith*deg))
}

// ReflectanceGrid converts a radiance grid in place, using the sun zenith
// grid for the illumination.
func ReflectanceGrid(radiance, sunZenith *mat.Dense, irradiance float64) {
	radiance.Apply(func(r, c int, v float64) float64 {
		return Reflectance(v, irradiance, sunZenith.At(r, c))
	}, radiance)
}

// Calibration holds the per-band rescaling constants of a Landsat metadata
// file.
type Calibration struct {
	// Radiance rescaling: L = RadianceMult*DN + RadianceAdd
	RadianceMult float64 `yaml:"radianceMult"`
	RadianceAdd  float64 `yaml:"radianceAdd"`

	// Reflectance rescaling: rho' = ReflectanceMult*DN + ReflectanceAdd
	ReflectanceMult float64 `yaml:"reflectanceMult"`
	ReflectanceAdd  float64 `yaml:"reflectanceAdd"`

	// Thermal constants
	K1 float64 `yaml:"k1"`
	K2 float64 `yaml:"k2"`
}

// BrightnessTemperature converts a thermal radiance to Kelvin with the
// inverse Planck function K2 / ln(K1/L + 1).
func (c Calibration) BrightnessTemperature(radiance float64) float64 {
	return c.K2 / math.Log(c.K1/radiance+1)
}

// ReflectanceFromRadiance converts radiance back to digital numbers and
// applies the reflectance rescaling, corrected for the sun elevation in
// degrees.
func (c Calibration) ReflectanceFromRadiance(radiance, sunElevation float64) float64 {
	dn := (radiance - c.RadianceAdd) / c.RadianceMult
	return (c.ReflectanceMult*dn + c.ReflectanceAdd) / math.Sin(sunElevation*deg)
}

// BrightnessTemperatureGrid converts a thermal radiance grid to Kelvin in
// place.
func BrightnessTemperatureGrid(radiance *mat.Dense, c Calibration) {
	radiance.Apply(func(_, _ int, v float64) float64 {
		return c.BrightnessTemperature(v)
	}, radiance)
}

// ReflectanceFromRadianceGrid converts a radiance grid to reflectance in
// place. The sun elevation is taken as 90 degrees minus the sun zenith grid.
func ReflectanceFromRadianceGrid(radiance, sunZenith *mat.Dense, c Calibration) {
	radiance.Apply(func(r, col int, v float64) float64 {
		return c.ReflectanceFromRadiance(v, 90-sunZenith.At(r, col))
	}, radiance)
}

// SatelliteAzimuth returns the azimuth in degrees of the along-track
// direction of a scene, from its lower-left to its upper-left corner.
// Negative bearings are shifted by 180 degrees.
func SatelliteAzimuth(lowerLeft, upperLeft orb.Point) float64 {
	az := geo.Bearing(lowerLeft, upperLeft)
	if az < 0 {
		az += 180
	}
	return az
}
