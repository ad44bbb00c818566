package quality

import (
	"fmt"
	"strings"
)

// Filter holds the thresholds of the quality tests. Temperatures are in
// Kelvin, angles in degrees and reflectances dimensionless.
type Filter struct {
	// CloudMaskLimit is the AVHRR cloud product value from which a pixel
	// counts as cloudy
	CloudMaskLimit float64 `yaml:"cloudMaskLimit"`

	// VisibleMin is the minimum valid daytime visible reflectance
	VisibleMin float64 `yaml:"visibleMin"`

	// NIRCloud is the daytime NIR reflectance at or above which a pixel is cloudy
	NIRCloud float64 `yaml:"nirCloud"`

	// RatioLimit is the NIR/VIS reflectance ratio above which a pixel is cloudy
	RatioLimit float64 `yaml:"ratioLimit"`

	// GrossIR is the lower-band brightness temperature at or below which
	// a daytime pixel fails
	GrossIR float64 `yaml:"grossIR"`

	// LSWTMin and LSWTMax bound the valid LSWT range, both exclusive
	LSWTMin float64 `yaml:"lswtMin"`
	LSWTMax float64 `yaml:"lswtMax"`

	ZenithHigh     float64 `yaml:"zenithHigh"`
	ZenithModerate float64 `yaml:"zenithModerate"`
	StdDevHigh     float64 `yaml:"stdDevHigh"`
	StdDevModerate float64 `yaml:"stdDevModerate"`

	// GlintLimit is the glint angle below which a pixel is flagged
	GlintLimit float64 `yaml:"glintLimit"`

	// Nighttime tests of the three-band layout
	IRCloudLimit float64 `yaml:"irCloudLimit"`
	StratusLimit float64 `yaml:"stratusLimit"`
	SynthSlope   float64 `yaml:"synthSlope"`
	SynthOffset  float64 `yaml:"synthOffset"`
	LowestMin    float64 `yaml:"lowestMin"`

	// DaySunZenith is the sun zenith below which a pixel is daytime,
	// NightSunZenith the one above which it is nighttime
	DaySunZenith   float64 `yaml:"daySunZenith"`
	NightSunZenith float64 `yaml:"nightSunZenith"`

	// Window is the neighbourhood size of the spatial tests and
	// MinNeighbors the number of good pixels it must hold
	Window       int `yaml:"window"`
	MinNeighbors int `yaml:"minNeighbors"`
}

// DefaultFilter returns the thresholds of the operational processor.
func DefaultFilter() Filter {
	return Filter{
		CloudMaskLimit: 7,
		VisibleMin:     0.005,
		NIRCloud:       0.1,
		RatioLimit:     1.0,
		GrossIR:        263.15,
		LSWTMin:        268.15,
		LSWTMax:        308.15,
		ZenithHigh:     55,
		ZenithModerate: 45,
		StdDevHigh:     3,
		StdDevModerate: 1.5,
		GlintLimit:     36,
		IRCloudLimit:   1.0,
		StratusLimit:   -0.6,
		SynthSlope:     1.0439,
		SynthOffset:    11.49,
		LowestMin:      100,
		DaySunZenith:   90,
		NightSunZenith: 85,
		Window:         3,
		MinNeighbors:   2,
	}
}

// Validate rejects thresholds that cannot describe a usable filter.
func (f Filter) Validate() error {
	if f.LSWTMin >= f.LSWTMax {
		return fmt.Errorf("lswt range [%g, %g] is empty", f.LSWTMin, f.LSWTMax)
	}
	if f.Window <= 0 || f.Window%2 == 0 {
		return fmt.Errorf("window %d must be a positive odd size", f.Window)
	}
	if f.MinNeighbors < 0 || f.MinNeighbors > f.Window*f.Window {
		return fmt.Errorf("minNeighbors %d does not fit a %dx%d window", f.MinNeighbors, f.Window, f.Window)
	}
	return nil
}

// CloudMaskPolicy interprets one sensor family's cloud mask encoding.
type CloudMaskPolicy interface {
	Cloudy(v float64) bool
}

// AVHRRCloudMask reads the AVHRR cloud product, where 0 is unprocessed and
// values from Limit upwards are cloud.
type AVHRRCloudMask struct {
	Limit float64
}

// Cloudy implements CloudMaskPolicy.
func (m AVHRRCloudMask) Cloudy(v float64) bool {
	return v >= m.Limit || v == 0
}

// BinaryCloudMask treats every nonzero value as cloud.
type BinaryCloudMask struct{}

// Cloudy implements CloudMaskPolicy.
func (BinaryCloudMask) Cloudy(v float64) bool {
	return v != 0
}

// CloudPolicyFor returns the cloud mask interpretation of a sensor.
func CloudPolicyFor(sensor string, f Filter) CloudMaskPolicy {
	if strings.EqualFold(sensor, "AVHRR") {
		return AVHRRCloudMask{Limit: f.CloudMaskLimit}
	}
	return BinaryCloudMask{}
}
