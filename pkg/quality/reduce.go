package quality

// Reducer maps a bitmask to an ordinal quality level.
type Reducer interface {
	Level(f Flag) uint8
	MaxLevel() uint8
}

// exact selects all bits, turning a Pattern into an exact match.
const exact Flag = 0xFFFF

// Pattern matches a bitmask when f&Mask == Value.
type Pattern struct {
	Mask  Flag
	Value Flag
	Level uint8
}

// PatternReducer assigns the level of the last matching pattern, or Default
// when no pattern matches.
type PatternReducer struct {
	Patterns []Pattern
	Default  uint8
}

// Level implements Reducer.
func (r PatternReducer) Level(f Flag) uint8 {
	level := r.Default
	for _, p := range r.Patterns {
		if f&p.Mask == p.Value {
			level = p.Level
		}
	}
	return level
}

// MaxLevel implements Reducer.
func (r PatternReducer) MaxLevel() uint8 {
	m := r.Default
	for _, p := range r.Patterns {
		m = max(m, p.Level)
	}
	return m
}

// Stage is one step of a StagedReducer: a pixel reaching it is promoted to
// Level when none of the Clear bits is set.
type Stage struct {
	Clear Flag
	Level uint8
}

// StagedReducer promotes a pixel through its stages in order and stops at
// the first stage whose bits are not clear.
type StagedReducer struct {
	Initial uint8
	Stages  []Stage
}

// Level implements Reducer.
func (r StagedReducer) Level(f Flag) uint8 {
	level := r.Initial
	for _, s := range r.Stages {
		if f&s.Clear != 0 {
			break
		}
		level = s.Level
	}
	return level
}

// MaxLevel implements Reducer.
func (r StagedReducer) MaxLevel() uint8 {
	m := r.Initial
	for _, s := range r.Stages {
		m = max(m, s.Level)
	}
	return m
}

// StandardReducer folds a StandardLayout mask into levels 0 (unusable) to
// 8 (no failed test). Only defects tolerable for some uses get a level
// above 0.
var StandardReducer = PatternReducer{
	Patterns: []Pattern{
		{Mask: 511, Value: 256, Level: 1},
		{Mask: 2047, Value: 1536, Level: 2},
		{Mask: exact, Value: 2560, Level: 3},
		{Mask: exact, Value: 3072, Level: 4},
		{Mask: exact, Value: 2048, Level: 5},
		{Mask: exact, Value: 512, Level: 6},
		{Mask: exact, Value: 1024, Level: 7},
		{Mask: exact, Value: 0, Level: 8},
	},
}

// LegacyReducer folds a LegacyLayout mask. Pixels failing any of the first
// nine tests stay at 1; the others climb through the georeference, zenith,
// glint and standard deviation stages. Each zenith stage tests a three-bit
// window starting at its own bit.
var LegacyReducer = StagedReducer{
	Initial: 1,
	Stages: []Stage{
		{Clear: 511, Level: 4},
		{Clear: 7 << 11, Level: 8},
		{Clear: 7 << 12, Level: 16},
		{Clear: 7 << 13, Level: 32},
		{Clear: 7 << 10, Level: 64},
	},
}

// MonoReducer folds a MonoLayout mask into levels 0 to 3.
var MonoReducer = PatternReducer{
	Patterns: []Pattern{
		{Mask: exact, Value: 48, Level: 1},
		{Mask: exact, Value: 32, Level: 2},
		{Mask: exact, Value: 0, Level: 3},
	},
}
