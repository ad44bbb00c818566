// Package quality evaluates per-pixel quality tests on a retrieved LSWT
// tile and folds the resulting bitmask into an ordinal quality level.
//
// Three checker variants are provided. Standard is used by both retrieval
// algorithms. Legacy reproduces the 14-test layout of the three-band
// processor, and Mono is the reduced six-test layout first used for
// mono-window retrievals.
package quality

import (
	"fmt"
	"math/bits"
	"sort"
)

// Flag is a per-pixel quality bitmask. Each set bit denotes one failed test.
type Flag uint16

// Test identifies one quality test independently of its bit position.
type Test int

const (
	CloudMask Test = iota
	VisibleCloud
	NIRRatio
	LandWater
	GrossIR
	LSWTRange
	Isolated
	ZenithHigh
	ZenithModerate
	StdDevHigh
	StdDevModerate
	Glint
	IRCloudNight
	LowStratus
)

var testNames = map[Test]string{
	CloudMask:      "cloud_mask",
	VisibleCloud:   "VIS_cloud",
	NIRRatio:       "NIR_VIS_ratio",
	LandWater:      "land_water_mask",
	GrossIR:        "GROSS_IR_Valid_VIS",
	LSWTRange:      "LSWT_range",
	Isolated:       "Excluded_single_pixels",
	ZenithHigh:     "SZA_gr_55",
	ZenithModerate: "SZA_gr_45",
	StdDevHigh:     "Spatial_STDV_gr_3",
	StdDevModerate: "Spatial_STDV_gr_1.5",
	Glint:          "Glint_Angle_le_36",
	IRCloudNight:   "IR_cloud_night",
	LowStratus:     "Low_stratus_night",
}

var testDescriptions = map[Test]string{
	CloudMask:      "Application of cloud mask",
	VisibleCloud:   "Daytime NIR reflectance above the visible cloud threshold",
	NIRRatio:       "Daytime ratio of NIR and VIS reflectance above threshold",
	LandWater:      "Application of land/water mask",
	GrossIR:        "Daytime brightness temperature or VIS reflectance too low",
	LSWTRange:      "LSWT outside the valid temperature range",
	Isolated:       "Fewer than two valid pixels in the 3x3 neighbourhood",
	ZenithHigh:     "Satellite zenith angle above the upper limit",
	ZenithModerate: "Satellite zenith angle above the lower limit",
	StdDevHigh:     "Spatial standard deviation above the upper limit",
	StdDevModerate: "Spatial standard deviation above the lower limit",
	Glint:          "Glint angle below the sun glint limit",
	IRCloudNight:   "Nighttime synthetic lower band differs from the measured one",
	LowStratus:     "Nighttime upper minus lowest band difference above the stratus limit",
}

// String returns the flag-coding name of the test.
func (t Test) String() string {
	if n, ok := testNames[t]; ok {
		return n
	}
	return fmt.Sprintf("Test(%d)", int(t))
}

// Bit assigns a test to one bit of a variant's bitmask.
type Bit struct {
	Test  Test
	Value Flag
}

// Layout is the ordered bit assignment of one checker variant. Tests are
// evaluated in layout order.
type Layout struct {
	name string
	bits []Bit
}

// NewLayout checks that every value is a single power of two, that no two
// tests share a bit and that no test appears twice.
func NewLayout(name string, assignment ...Bit) (Layout, error) {
	var used Flag
	seen := make(map[Test]bool, len(assignment))
	for _, b := range assignment {
		if bits.OnesCount16(uint16(b.Value)) != 1 {
			return Layout{}, fmt.Errorf("layout %s: %s value %d is not a single bit", name, b.Test, b.Value)
		}
		if used&b.Value != 0 {
			return Layout{}, fmt.Errorf("layout %s: %s reuses bit %d", name, b.Test, b.Value)
		}
		if seen[b.Test] {
			return Layout{}, fmt.Errorf("layout %s: %s assigned twice", name, b.Test)
		}
		used |= b.Value
		seen[b.Test] = true
	}
	return Layout{name: name, bits: append([]Bit(nil), assignment...)}, nil
}

func mustLayout(name string, assignment ...Bit) Layout {
	l, err := NewLayout(name, assignment...)
	if err != nil {
		panic(err)
	}
	return l
}

// Name returns the variant name of the layout.
func (l Layout) Name() string { return l.name }

// Bits returns the bit assignment in evaluation order.
func (l Layout) Bits() []Bit { return append([]Bit(nil), l.bits...) }

// Value returns the bit of test t, or 0 when the layout has no such test.
func (l Layout) Value(t Test) Flag {
	for _, b := range l.bits {
		if b.Test == t {
			return b.Value
		}
	}
	return 0
}

// Has reports whether the layout contains test t.
func (l Layout) Has(t Test) bool { return l.Value(t) != 0 }

// Coding describes one bit of a layout for product metadata.
type Coding struct {
	Name        string
	Value       Flag
	Description string
}

// Describe returns the flag coding of the layout in bit order.
func (l Layout) Describe() []Coding {
	out := make([]Coding, 0, len(l.bits))
	for _, b := range l.bits {
		out = append(out, Coding{Name: b.Test.String(), Value: b.Value, Description: testDescriptions[b.Test]})
	}
	// Sort by value for metadata readers; evaluation order is kept in bits
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// StandardLayout is the bitmask of the current processor. The moderate
// zenith and standard deviation bits are swapped relative to their
// evaluation order.
var StandardLayout = mustLayout("standard",
	Bit{CloudMask, 1},
	Bit{VisibleCloud, 2},
	Bit{NIRRatio, 4},
	Bit{LandWater, 8},
	Bit{GrossIR, 16},
	Bit{LSWTRange, 32},
	Bit{Isolated, 64},
	Bit{ZenithHigh, 128},
	Bit{ZenithModerate, 1024},
	Bit{StdDevHigh, 256},
	Bit{StdDevModerate, 512},
	Bit{Glint, 2048},
)

// LegacyLayout is the bitmask of the three-band processor.
var LegacyLayout = mustLayout("legacy",
	Bit{GrossIR, 1},
	Bit{VisibleCloud, 2},
	Bit{NIRRatio, 4},
	Bit{IRCloudNight, 8},
	Bit{LowStratus, 16},
	Bit{LSWTRange, 32},
	Bit{LandWater, 64},
	Bit{CloudMask, 128},
	Bit{Isolated, 256},
	Bit{StdDevHigh, 512},
	Bit{StdDevModerate, 1024},
	Bit{ZenithHigh, 2048},
	Bit{ZenithModerate, 4096},
	Bit{Glint, 8192},
)

// MonoLayout is the reduced mono-window bitmask.
var MonoLayout = mustLayout("mono",
	Bit{CloudMask, 1},
	Bit{LandWater, 2},
	Bit{LSWTRange, 4},
	Bit{Isolated, 8},
	Bit{StdDevHigh, 16},
	Bit{StdDevModerate, 32},
)
