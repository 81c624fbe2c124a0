// Package stepper drives a four-coil unipolar stepper (28BYJ-48 on a ULN2003
// board) one unit at a time from a logic.Accumulator without ever sleeping.
package stepper

import (
	"fmt"
	"math"
)

// Sequence is a cyclic table of coil patterns. Every row has one level per coil.
type Sequence [][]bool

var (
	// HalfStep is the 8-row half-step sequence for IN1..IN4.
	HalfStep = Sequence{
		{true, false, false, false},
		{true, true, false, false},
		{false, true, false, false},
		{false, true, true, false},
		{false, false, true, false},
		{false, false, true, true},
		{false, false, false, true},
		{true, false, false, true},
	}

	// FullStep is the 4-row single-coil sequence for IN1..IN4.
	FullStep = Sequence{
		{true, false, false, false},
		{false, true, false, false},
		{false, false, true, false},
		{false, false, false, true},
	}
)

// Mode names a built-in sequence.
type Mode string

const (
	ModeHalf Mode = "half"
	ModeFull Mode = "full"
)

// ForMode returns the sequence for m.
func ForMode(m Mode) (Sequence, error) {
	switch m {
	case ModeHalf, "":
		return HalfStep, nil
	case ModeFull:
		return FullStep, nil
	default:
		return nil, fmt.Errorf("unknown step mode %q", m)
	}
}

// validate panics if the table cannot drive width coils.
func (s Sequence) validate(width int) {
	if len(s) == 0 {
		panic("stepper: empty sequence")
	}
	for i, row := range s {
		if len(row) != width {
			panic(fmt.Sprintf("stepper: sequence row %d has %d levels, want %d", i, len(row), width))
		}
	}
}

// AngleToUnits converts degrees to sequence units for a motor with
// unitsPerRev units per revolution. The result truncates toward zero and
// saturates at ±math.MaxInt64 so the sign always follows the angle. NaN
// yields 0.
func AngleToUnits(degrees float64, unitsPerRev int, invert bool) int64 {
	f := degrees * float64(unitsPerRev) / 360.0
	if math.IsNaN(f) {
		return 0
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	var u int64
	switch {
	case f >= math.MaxInt64:
		u = math.MaxInt64
	case f <= -math.MaxInt64:
		u = -math.MaxInt64
	default:
		u = int64(f)
	}
	if invert {
		return -u
	}
	return u
}
