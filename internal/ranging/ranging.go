// Package ranging drives an HC-SR04 style ultrasonic sensor: a periodic
// trigger pulse generated from the main loop and an echo pulse timed by a
// logic.Capture fed from edge events.
package ranging

import (
	"fmt"
	"time"

	"github.com/sweeney/stepper-keys/internal/clock"
	"github.com/sweeney/stepper-keys/internal/gpio"
	"github.com/sweeney/stepper-keys/internal/logic"
)

// CentimetresPerMicrosecond is half the speed of sound (~343 m/s), since the
// echo covers the distance twice.
const CentimetresPerMicrosecond = 0.01715

// Distance converts an echo duration to centimetres.
func Distance(echo time.Duration) float64 {
	return float64(echo.Microseconds()) * CentimetresPerMicrosecond
}

// Config holds trigger timing.
type Config struct {
	Period     time.Duration // time between trigger pulses
	PulseWidth time.Duration // minimum trigger high time
}

// Ranger owns the trigger line and the echo capture.
type Ranger struct {
	trig   gpio.Output
	period uint64
	width  uint64

	capture   logic.Capture
	high      bool
	risenAt   uint64
	lastFire  uint64
	triggered uint64
}

// New creates a Ranger. The trigger line is expected low.
func New(trig gpio.Output, cfg Config) *Ranger {
	if trig == nil {
		panic("ranging: nil trigger output")
	}
	return &Ranger{
		trig:   trig,
		period: uint64(cfg.Period.Microseconds()),
		width:  uint64(cfg.PulseWidth.Microseconds()),
	}
}

// OnEcho records an echo edge. It is a gpio.Handler body and runs on the
// edge-event goroutine.
func (r *Ranger) OnEcho(ev gpio.EdgeEvent) {
	r.capture.OnEdge(ev.Rising, ev.Timestamp)
}

// Tick advances the trigger state machine: raise the line when the period has
// elapsed, lower it on a later tick once the pulse width has passed. It never
// blocks. Main loop only.
func (r *Ranger) Tick(now uint64) error {
	if r.high {
		if !clock.Elapsed(now, r.risenAt, r.width) {
			return nil
		}
		r.high = false
		if err := r.trig.Write(false); err != nil {
			return fmt.Errorf("trigger low: %w", err)
		}
		return nil
	}

	if r.triggered > 0 && !clock.Elapsed(now, r.lastFire, r.period) {
		return nil
	}
	r.lastFire = now
	r.risenAt = now
	r.triggered++
	r.high = true
	if err := r.trig.Write(true); err != nil {
		return fmt.Errorf("trigger high: %w", err)
	}
	return nil
}

// Last returns the most recent echo duration.
func (r *Ranger) Last() (time.Duration, bool) {
	return r.capture.Last()
}

// LastDistance returns the most recent distance in centimetres.
func (r *Ranger) LastDistance() (float64, bool) {
	d, ok := r.capture.Last()
	if !ok {
		return 0, false
	}
	return Distance(d), true
}

// Measurements returns the number of completed echoes.
func (r *Ranger) Measurements() uint64 {
	return r.capture.Completed()
}

// Triggers returns the number of trigger pulses started.
func (r *Ranger) Triggers() uint64 {
	return r.triggered
}
