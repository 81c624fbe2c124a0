package servo

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// PeriphPWM drives a servo through a periph.io PWM-capable pin.
type PeriphPWM struct {
	pin gpio.PinOut
}

// NewPeriphPWM initialises the periph host drivers and looks up the pin by
// name, e.g. "GPIO18".
func NewPeriphPWM(name string) (*PeriphPWM, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("periph pin %q not found", name)
	}
	return &PeriphPWM{pin: p}, nil
}

// SetPulse sets the duty cycle for width within a 50 Hz frame.
func (p *PeriphPWM) SetPulse(width time.Duration) error {
	if err := p.pin.PWM(pulseDuty(width), 50*physic.Hertz); err != nil {
		return fmt.Errorf("pwm %s: %w", p.pin, err)
	}
	return nil
}

// Halt stops the PWM output.
func (p *PeriphPWM) Halt() error {
	return p.pin.Halt()
}

func pulseDuty(width time.Duration) gpio.Duty {
	if width <= 0 {
		return 0
	}
	if width >= Frame {
		return gpio.DutyMax
	}
	return gpio.Duty(int64(gpio.DutyMax) * int64(width) / int64(Frame))
}
