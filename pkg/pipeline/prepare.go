package pipeline

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"lswt/internal/models"
	"lswt/pkg/config"
	"lswt/pkg/quality"
	"lswt/pkg/radiometry"
)

// PrepareOptions control the pre-processing of a scene.
type PrepareOptions struct {
	// Sensor names the profile, used to pick the cloud mask policy
	Sensor  string
	Profile config.SensorProfile

	// MaskBeforeCalculation sets thermal input to NaN over land and cloud
	MaskBeforeCalculation bool

	// Filter supplies the cloud mask threshold
	Filter quality.Filter
}

// Prepare converts raw scene bands into physical units in place: thermal
// radiance calibration, scale factors and fill values first, then
// elevation to zenith and relative azimuth. Optical radiance is converted
// to reflectance once the sun zenith is known, and the valid-pixel mask is
// applied last.
func Prepare(scene *models.Scene, opts PrepareOptions) error {
	if err := scene.Validate(); err != nil {
		return err
	}
	p := opts.Profile
	fill := p.Fill()
	for role := range p.Calibration {
		if !config.Thermal(role) && !config.Optical(role) {
			return fmt.Errorf("calibration given for role %q", role)
		}
		if _, ok := p.Irradiance[role]; ok {
			return fmt.Errorf("role %q has both calibration and irradiance", role)
		}
	}

	// Roles may share a grid, for example lower and mono
	seen := make(map[*mat.Dense]bool)
	scene.Bands.Each(func(role string, c *models.Channel) {
		if !c.Present() || seen[c.Data()] {
			return
		}
		m := c.Data()
		seen[m] = true
		switch {
		case config.Thermal(role):
			if cal, ok := p.Calibration[role]; ok {
				radiometry.BrightnessTemperatureGrid(m, cal)
			}
			radiometry.Scale(m, p.KelvinScale)
		case config.Optical(role):
			radiometry.Scale(m, p.ReflectanceScale)
		case config.Angle(role):
			radiometry.Scale(m, p.DegreeScale)
		default:
			return
		}
		radiometry.MaskFill(m, fill)
		if config.Angle(role) && p.IsElevation(role) {
			radiometry.ElevationToZenith(m)
		}
	})

	b := &scene.Bands
	if !b.RelAzimuth.Present() && b.SatAzimuth.Present() && b.SunAzimuth.Present() {
		b.RelAzimuth = models.NewChannel(radiometry.RelativeAzimuthGrid(b.SatAzimuth.Data(), b.SunAzimuth.Data()))
	}

	for role, irr := range p.Irradiance {
		if !config.Optical(role) {
			return fmt.Errorf("irradiance given for non-optical role %q", role)
		}
		c := opticalChannel(b, role)
		if !c.Present() {
			continue
		}
		if !b.SunZenith.Present() {
			return fmt.Errorf("converting %s radiance: %w", role, quality.ErrMissingChannel)
		}
		radiometry.ReflectanceGrid(c.Data(), b.SunZenith.Data(), irr)
	}

	for role, cal := range p.Calibration {
		if !config.Optical(role) {
			continue
		}
		c := opticalChannel(b, role)
		if !c.Present() {
			continue
		}
		if !b.SunZenith.Present() {
			return fmt.Errorf("calibrating %s radiance: %w", role, quality.ErrMissingChannel)
		}
		radiometry.ReflectanceFromRadianceGrid(c.Data(), b.SunZenith.Data(), cal)
	}

	thermal := []models.Channel{b.Lower, b.Upper, b.Lowest, b.Mono}
	if b.Valid.Present() {
		for _, c := range thermal {
			radiometry.MaskInvalid(c.Data(), b.Valid.Data())
		}
	}

	if opts.MaskBeforeCalculation {
		cloud := quality.CloudPolicyFor(opts.Sensor, opts.Filter)
		for _, c := range thermal {
			if c.Present() {
				maskSurface(c.Data(), b.LandWater, b.CloudMask, cloud)
			}
		}
	}
	return nil
}

func opticalChannel(b *models.Bands, role string) models.Channel {
	if role == "nir" {
		return b.NIR
	}
	return b.Visible
}

// maskSurface sets m to NaN over land and cloudy pixels. Absent masks mask
// nothing.
func maskSurface(m *mat.Dense, landWater, cloudMask models.Channel, cloud quality.CloudMaskPolicy) {
	m.Apply(func(r, c int, v float64) float64 {
		if landWater.Present() && landWater.Data().At(r, c) == 0 {
			return math.NaN()
		}
		if cloudMask.Present() && cloud.Cloudy(cloudMask.Data().At(r, c)) {
			return math.NaN()
		}
		return v
	}, m)
}
