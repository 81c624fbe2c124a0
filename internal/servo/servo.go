// Package servo converts servo angles and continuous-rotation speeds into
// 50 Hz pulse widths and applies them from the main loop.
package servo

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// Frame is the 50 Hz servo frame.
const Frame = 20 * time.Millisecond

// PWM drives one servo signal line.
type PWM interface {
	// SetPulse sets the high time of each Frame.
	SetPulse(width time.Duration) error
}

// Calibration holds pulse widths for a positional and a continuous servo.
type Calibration struct {
	MinPulse  time.Duration // 0 degrees
	MaxPulse  time.Duration // 180 degrees
	StopPulse time.Duration // continuous servo at rest
	CCWPulse  time.Duration // full speed counter-clockwise
	CWPulse   time.Duration // full speed clockwise
}

// DefaultCalibration matches common SG90/MG996R style servos.
var DefaultCalibration = Calibration{
	MinPulse:  500 * time.Microsecond,
	MaxPulse:  2500 * time.Microsecond,
	StopPulse: 1500 * time.Microsecond,
	CCWPulse:  1000 * time.Microsecond,
	CWPulse:   2000 * time.Microsecond,
}

// AnglePulse returns the pulse width for angle, clamped to [0, 180].
func (c Calibration) AnglePulse(angle float64) time.Duration {
	angle = math.Max(0, math.Min(180, angle))
	span := float64(c.MaxPulse - c.MinPulse)
	return c.MinPulse + time.Duration(span*angle/180)
}

// SpeedPulse returns the pulse width for speed in percent, clamped to
// [-100, 100]. Negative is counter-clockwise, zero stops.
func (c Calibration) SpeedPulse(speed int) time.Duration {
	if speed > 100 {
		speed = 100
	} else if speed < -100 {
		speed = -100
	}
	switch {
	case speed > 0:
		return c.StopPulse + (c.CWPulse-c.StopPulse)*time.Duration(speed)/100
	case speed < 0:
		return c.StopPulse - (c.StopPulse-c.CCWPulse)*time.Duration(-speed)/100
	default:
		return c.StopPulse
	}
}

// Servo holds a requested pulse width that any goroutine may set and that the
// main loop applies on its next Tick.
type Servo struct {
	pwm PWM
	cal Calibration

	// requested and applied are pulse widths in nanoseconds; zero means none.
	requested atomic.Int64
	applied   int64
}

// New creates a Servo on pwm.
func New(pwm PWM, cal Calibration) *Servo {
	if pwm == nil {
		panic("servo: nil pwm")
	}
	return &Servo{pwm: pwm, cal: cal}
}

// SetAngle requests a positional angle in degrees.
func (s *Servo) SetAngle(angle float64) time.Duration {
	p := s.cal.AnglePulse(angle)
	s.requested.Store(int64(p))
	return p
}

// SetSpeed requests a continuous-rotation speed in percent.
func (s *Servo) SetSpeed(speed int) time.Duration {
	p := s.cal.SpeedPulse(speed)
	s.requested.Store(int64(p))
	return p
}

// Tick writes the requested pulse if it changed. Main loop only.
func (s *Servo) Tick() error {
	want := s.requested.Load()
	if want == 0 || want == s.applied {
		return nil
	}
	if err := s.pwm.SetPulse(time.Duration(want)); err != nil {
		return fmt.Errorf("servo pulse %v: %w", time.Duration(want), err)
	}
	s.applied = want
	return nil
}

// Pulse returns the pulse width last written to the line.
func (s *Servo) Pulse() time.Duration {
	return time.Duration(s.applied)
}
