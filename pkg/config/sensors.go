package config

import (
	"math"
	"strings"

	"lswt/pkg/radiometry"
)

// SensorProfile describes how the bands of one sensor map onto the roles
// the retrieval reads and how their raw values are scaled.
type SensorProfile struct {
	// Bands maps a role (lower, upper, lowest, mono, visible, nir,
	// satZenith, sunZenith, relAzimuth, satAzimuth, sunAzimuth) to the
	// sensor's band name
	Bands map[string]string `yaml:"bands"`

	// Scale factors applied to angle, thermal and reflectance bands
	DegreeScale      float64 `yaml:"degreeScale"`
	KelvinScale      float64 `yaml:"kelvinScale"`
	ReflectanceScale float64 `yaml:"reflectanceScale"`

	// Algorithm is both, split-window or mono-window
	Algorithm string `yaml:"algorithm"`

	// FillValue marks missing samples after scaling; nil disables it
	FillValue *float64 `yaml:"fillValue,omitempty"`

	// ElevationAngles lists angle roles delivered as elevation
	ElevationAngles []string `yaml:"elevationAngles,omitempty"`

	// Irradiance holds the solar irradiance of roles delivered as radiance
	Irradiance map[string]float64 `yaml:"irradiance,omitempty"`

	// Calibration holds rescaling constants of roles delivered as
	// radiance: thermal roles are converted to Kelvin, optical roles to
	// reflectance. The defaults of TIRS are the fixed Landsat 8 constants;
	// radiance rescaling differs per scene and belongs in the
	// configuration.
	Calibration map[string]radiometry.Calibration `yaml:"calibration,omitempty"`
}

// Allows reports whether the profile supports the algorithm.
func (p SensorProfile) Allows(algorithm string) bool {
	return p.Algorithm == AllowBoth || p.Algorithm == algorithm
}

// Fill returns the fill value, or NaN when none is set.
func (p SensorProfile) Fill() float64 {
	if p.FillValue == nil {
		return math.NaN()
	}
	return *p.FillValue
}

// IsElevation reports whether the angle role is delivered as elevation.
func (p SensorProfile) IsElevation(role string) bool {
	for _, r := range p.ElevationAngles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Thermal reports whether role is a brightness temperature band.
func Thermal(role string) bool {
	switch role {
	case "lower", "upper", "lowest", "mono":
		return true
	}
	return false
}

// Optical reports whether role is a reflectance band.
func Optical(role string) bool {
	return role == "visible" || role == "nir"
}

// Angle reports whether role is a geometry band in degrees.
func Angle(role string) bool {
	switch role {
	case "satZenith", "sunZenith", "relAzimuth", "satAzimuth", "sunAzimuth":
		return true
	}
	return false
}

// DefaultSensors returns the built-in sensor profiles.
func DefaultSensors() map[string]SensorProfile {
	avhrrFill := 6553.5
	return map[string]SensorProfile{
		"AVHRR": {
			Bands: map[string]string{
				"lower":      "Band_4_BT____[K_x_10]",
				"upper":      "Band_5_BT____[K_x_10]",
				"lowest":     "Band_3B_BT___[K_x_10]",
				"mono":       "Band_4_BT____[K_x_10]",
				"visible":    "Band_1_RTOA__[x_1000]",
				"nir":        "Band_2_RTOA__[x_1000]",
				"satZenith":  "Satellite_Zenith___[°_x_100]",
				"sunZenith":  "Sun_Zenith_________[°_x_100]",
				"relAzimuth": "Relative_Azimuth___[°_x_100]",
			},
			DegreeScale:      0.01,
			KelvinScale:      0.1,
			ReflectanceScale: 0.001,
			Algorithm:        AllowBoth,
			FillValue:        &avhrrFill,
		},
		"SLSTR": {
			Bands: map[string]string{
				"lower":      "S8_BT_in",
				"upper":      "S9_BT_in",
				"lowest":     "S7_BT_in",
				"mono":       "S8_BT_in",
				"visible":    "S2_radiance_an",
				"nir":        "S3_radiance_an",
				"satZenith":  "sat_zenith_tn",
				"sunZenith":  "solar_zenith_tn",
				"sunAzimuth": "solar_azimuth_tn",
				"satAzimuth": "sat_azimuth_tn",
			},
			DegreeScale:      1,
			KelvinScale:      1,
			ReflectanceScale: 1,
			Algorithm:        AllowBoth,
			Irradiance:       map[string]float64{"visible": 1525.94, "nir": 956.17},
		},
		"TIRS": {
			Bands: map[string]string{
				"lower":      "thermal_infrared_(tirs)_1",
				"upper":      "thermal_infrared_(tirs)_2",
				"lowest":     "swir_1",
				"visible":    "red",
				"nir":        "near_infrared",
				"satZenith":  "ROLL_ANGLE",
				"sunZenith":  "SUN_ELEVATION",
				"sunAzimuth": "SUN_AZIMUTH",
			},
			DegreeScale:      1,
			KelvinScale:      1,
			ReflectanceScale: 1,
			Algorithm:        AllowSplitWindow,
			ElevationAngles:  []string{"sunZenith"},
			Calibration: map[string]radiometry.Calibration{
				"lower": {K1: 774.8853, K2: 1321.0789},
				"upper": {K1: 480.8883, K2: 1201.1442},
				"visible": {
					RadianceMult: 9.7e-3, RadianceAdd: -48.5,
					ReflectanceMult: 2e-5, ReflectanceAdd: -0.1,
				},
				"nir": {
					RadianceMult: 5.9e-3, RadianceAdd: -29.7,
					ReflectanceMult: 2e-5, ReflectanceAdd: -0.1,
				},
			},
		},
		"VIIRS": {
			Bands: map[string]string{
				"mono":       "VIIRS-I5-SDR_All.BrightnessTemperature",
				"visible":    "VIIRS-I1-SDR_All.Reflectance",
				"nir":        "VIIRS-I2-SDR_All.Reflectance",
				"satZenith":  "VIIRS-IMG-GEO_All.SatelliteZenithAngle",
				"sunZenith":  "VIIRS-IMG-GEO_All.SolarZenithAngle",
				"sunAzimuth": "VIIRS-IMG-GEO_All.SolarAzimuthAngle",
				"satAzimuth": "VIIRS-IMG-GEO_All.SatelliteAzimuthAngle",
			},
			DegreeScale:      1,
			KelvinScale:      0.01,
			ReflectanceScale: 1,
			Algorithm:        AllowMonoWindow,
		},
		"AATSR": {
			Bands: map[string]string{
				"lower":      "btemp_nadir_1100",
				"upper":      "btemp_nadir_1200",
				"lowest":     "btemp_nadir_0370",
				"mono":       "btemp_nadir_1200",
				"visible":    "reflec_nadir_0670",
				"nir":        "reflec_nadir_0870",
				"satZenith":  "view_elev_nadir",
				"sunZenith":  "sun_elev_nadir",
				"sunAzimuth": "sun_azimuth_nadir",
				"satAzimuth": "view_azimuth_nadir",
			},
			DegreeScale:      1,
			KelvinScale:      1,
			ReflectanceScale: 1,
			Algorithm:        AllowBoth,
			ElevationAngles:  []string{"satZenith", "sunZenith"},
		},
	}
}
