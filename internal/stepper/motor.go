package stepper

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/stepper-keys/internal/clock"
	"github.com/sweeney/stepper-keys/internal/gpio"
	"github.com/sweeney/stepper-keys/internal/logic"
)

// State is the actuation state.
type State string

const (
	StateIdle     State = "IDLE"
	StateStepping State = "STEPPING"
)

// Config holds motor timing and power policy.
type Config struct {
	Sequence        Sequence
	MinInterval     time.Duration // minimum time between two units
	ReleaseWhenIdle bool          // de-energize coils once nothing is pending
}

// Motor consumes units from an Accumulator at a bounded rate.
// Tick must only be called from the main loop.
type Motor struct {
	coils    []gpio.Output
	seq      Sequence
	interval uint64
	release  bool
	acc      *logic.Accumulator

	index    int
	lastStep uint64
	state    State

	steps       uint64
	idleEntries uint64
}

// NewMotor creates a motor. A sequence whose rows do not match the number of
// coils is a configuration bug and panics.
func NewMotor(coils []gpio.Output, acc *logic.Accumulator, cfg Config) *Motor {
	if acc == nil {
		panic("stepper: nil accumulator")
	}
	cfg.Sequence.validate(len(coils))
	return &Motor{
		coils:    coils,
		seq:      cfg.Sequence,
		interval: uint64(cfg.MinInterval.Microseconds()),
		release:  cfg.ReleaseWhenIdle,
		acc:      acc,
		state:    StateIdle,
	}
}

// Result describes what one Tick did.
type Result struct {
	Stepped bool // one unit was performed
	Started bool // IDLE to STEPPING
	Stopped bool // STEPPING to IDLE
}

// Tick advances the motor by at most one unit and never blocks. A coil write
// failure is returned after the unit has been accounted for, so the phase
// stays consistent with the accumulator.
func (m *Motor) Tick(now uint64) (Result, error) {
	var res Result
	if m.state == StateIdle {
		if m.acc.Remaining() == 0 {
			return res, nil
		}
		m.state = StateStepping
		res.Started = true
	}

	if !clock.Elapsed(now, m.lastStep, m.interval) {
		return res, nil
	}

	dir, ok := m.acc.ConsumeOne()
	if !ok {
		// Zeroed by an opposite enqueue between ticks.
		res.Stopped = true
		return res, m.enterIdle()
	}

	n := len(m.seq)
	m.index = ((m.index+int(dir))%n + n) % n
	m.lastStep = now
	m.steps++
	res.Stepped = true
	err := m.writeRow(m.seq[m.index])

	if m.acc.Remaining() == 0 {
		res.Stopped = true
		err = errors.Join(err, m.enterIdle())
	}
	return res, err
}

func (m *Motor) enterIdle() error {
	m.state = StateIdle
	m.idleEntries++
	if m.release {
		return m.Release()
	}
	return nil
}

// Release drives every coil low.
func (m *Motor) Release() error {
	var errs []error
	for i, c := range m.coils {
		if err := c.Write(false); err != nil {
			errs = append(errs, fmt.Errorf("release coil %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Motor) writeRow(row []bool) error {
	var errs []error
	for i, c := range m.coils {
		if err := c.Write(row[i]); err != nil {
			errs = append(errs, fmt.Errorf("write coil %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// State returns the current state.
func (m *Motor) State() State {
	return m.state
}

// Index returns the current sequence index.
func (m *Motor) Index() int {
	return m.index
}

// Steps returns the number of units performed.
func (m *Motor) Steps() uint64 {
	return m.steps
}

// IdleEntries returns the number of STEPPING to IDLE transitions.
func (m *Motor) IdleEntries() uint64 {
	return m.idleEntries
}
