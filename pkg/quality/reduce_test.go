package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStandardReducerLevels(t *testing.T) {
	tests := []struct {
		flag Flag
		want uint8
	}{
		{0, 8},
		{1024, 7},
		{512, 6},
		{2048, 5},
		{3072, 4},
		{2560, 3},
		{1536, 2},
		{3584, 2},
		{4095, 0},
		{3855, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StandardReducer.Level(tt.flag), "flag %d", tt.flag)
	}
}

// TestStandardReducerLevelOne checks every combination where the high
// standard deviation is the only defect below bit 9
func TestStandardReducerLevelOne(t *testing.T) {
	for _, f := range []Flag{256, 768, 1280, 1792, 2304, 2816, 3328, 3840} {
		assert.Equal(t, uint8(1), StandardReducer.Level(f), "flag %d", f)
	}
	for _, f := range []Flag{3584, 0, 4095} {
		assert.NotEqual(t, uint8(1), StandardReducer.Level(f), "flag %d", f)
	}
}

func TestStandardReducerLevelZero(t *testing.T) {
	for f := Flag(1); f < 256; f++ {
		assert.Equal(t, uint8(0), StandardReducer.Level(f), "flag %d", f)
	}
	assert.NotEqual(t, uint8(0), StandardReducer.Level(256))
	assert.Equal(t, uint8(8), StandardReducer.MaxLevel())
}

func TestLegacyReducerLevels(t *testing.T) {
	tests := []struct {
		name string
		flag Flag
		want uint8
	}{
		{"clean", 0, 64},
		{"early test failed", 1, 1},
		{"isolated", 256, 1},
		{"high zenith", 2048, 4},
		{"moderate zenith", 4096, 4},
		{"glint", 8192, 4},
		{"moderate stddev", 1024, 32},
		{"high stddev passes every stage", 512, 64},
		{"moderate stddev and zenith", 1024 + 4096, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LegacyReducer.Level(tt.flag))
		})
	}
	assert.Equal(t, uint8(64), LegacyReducer.MaxLevel())
}

func TestMonoReducerLevels(t *testing.T) {
	tests := []struct {
		flag Flag
		want uint8
	}{
		{0, 3},
		{32, 2},
		{48, 1},
		{16, 0},
		{1, 0},
		{33, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MonoReducer.Level(tt.flag), "flag %d", tt.flag)
	}
}

func TestEngineReduceKeepsShape(t *testing.T) {
	m := &Mask{Rows: 2, Cols: 3, Flags: []Flag{0, 1024, 512, 2048, 3072, 1}}
	l := NewStandard().Reduce(m)
	assert.Equal(t, 2, l.Rows)
	assert.Equal(t, 3, l.Cols)
	assert.Equal(t, []uint8{8, 7, 6, 5, 4, 0}, l.Values)
}

func TestEngineMaxLevel(t *testing.T) {
	assert.Equal(t, uint8(8), NewStandard().MaxLevel())
	assert.Equal(t, uint8(64), NewLegacy().MaxLevel())
	assert.Equal(t, uint8(3), NewMono().MaxLevel())
}
