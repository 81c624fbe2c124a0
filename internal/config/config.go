// Package config loads the daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/stepper-keys/internal/logic"
	"github.com/sweeney/stepper-keys/internal/stepper"
)

// Config is the full daemon configuration. Calibration lives here, not in code.
type Config struct {
	Chip      string         `yaml:"chip"`
	Loop      time.Duration  `yaml:"loop"`      // main loop period
	Heartbeat time.Duration  `yaml:"heartbeat"` // 0 disables
	Dispatch  DispatchConfig `yaml:"dispatch"`

	Keys    KeysConfig     `yaml:"keys"`
	Stepper StepperConfig  `yaml:"stepper"`
	Latch   *LatchConfig   `yaml:"latch"`
	Ranging *RangingConfig `yaml:"ranging"`
	Servo   *ServoConfig   `yaml:"servo"`

	MQTT   MQTTConfig   `yaml:"mqtt"`
	HTTP   string       `yaml:"http"` // status address, empty disables
	Serial SerialConfig `yaml:"serial"`
}

// DispatchConfig sizes the bottom-half task queue.
type DispatchConfig struct {
	Capacity int `yaml:"capacity"`
}

// KeysConfig describes the command keys.
type KeysConfig struct {
	Pins      []int         `yaml:"pins"`
	Angles    []float64     `yaml:"angles"` // degrees queued per press, parallel to Pins
	Debounce  time.Duration `yaml:"debounce"`
	ActiveLow bool          `yaml:"active_low"`
}

// StepperConfig describes the motor and its calibration.
type StepperConfig struct {
	Pins            []int         `yaml:"pins"` // IN1..IN4
	Mode            stepper.Mode  `yaml:"mode"`
	StepsPerRev     int           `yaml:"steps_per_rev"`
	StepDelay       time.Duration `yaml:"step_delay"`
	ReleaseWhenIdle bool          `yaml:"release_when_idle"`
	DirInvert       bool          `yaml:"dir_invert"`
	MaxPending      int64         `yaml:"max_pending"` // 0 selects the default bound
	SelfTest        int64         `yaml:"self_test"`   // units forward then back at startup, 0 disables
}

// LatchConfig drives an output high when a key is held.
type LatchConfig struct {
	Key       int           `yaml:"key"` // index into Keys.Pins
	Pin       int           `yaml:"pin"`
	LongPress time.Duration `yaml:"long_press"`
}

// RangingConfig describes the ultrasonic sensor.
type RangingConfig struct {
	TrigPin    int           `yaml:"trig_pin"`
	EchoPin    int           `yaml:"echo_pin"`
	Period     time.Duration `yaml:"period"`
	PulseWidth time.Duration `yaml:"pulse_width"`
}

// ServoConfig names the periph.io PWM pin.
type ServoConfig struct {
	Pin     string  `yaml:"pin"`
	Initial float64 `yaml:"initial"` // degrees, applied at startup
}

// MQTTConfig configures telemetry and the command topic.
type MQTTConfig struct {
	Broker    string        `yaml:"broker"` // empty disables
	ClientID  string        `yaml:"client_id"`
	Prefix    string        `yaml:"prefix"`
	Outbox    int           `yaml:"outbox"`    // queued events before dropping
	Backlog   int           `yaml:"backlog"`   // messages held while disconnected
	Heartbeat time.Duration `yaml:"heartbeat"` // status snapshot period, 0 disables
}

// SerialConfig configures the command console.
type SerialConfig struct {
	Port string `yaml:"port"` // empty disables
	Baud int    `yaml:"baud"`
}

// Default returns the configuration of the reference build: four keys on a
// pull-up, a 28BYJ-48 on IN1..IN4 and no optional peripherals.
func Default() Config {
	return Config{
		Chip:      "gpiochip0",
		Loop:      500 * time.Microsecond,
		Heartbeat: time.Second,
		Dispatch:  DispatchConfig{Capacity: 8},
		Keys: KeysConfig{
			Pins:      []int{25, 26, 27, 14},
			Angles:    []float64{90, 180, -90, 360},
			Debounce:  40 * time.Millisecond,
			ActiveLow: true,
		},
		Stepper: StepperConfig{
			Pins:            []int{16, 17, 18, 19},
			Mode:            stepper.ModeHalf,
			StepsPerRev:     4096,
			StepDelay:       1200 * time.Microsecond,
			ReleaseWhenIdle: true,
			MaxPending:      1 << 20,
			SelfTest:        32,
		},
		MQTT: MQTTConfig{
			ClientID:  "stepper-keys",
			Prefix:    "stepper-keys",
			Outbox:    64,
			Backlog:   100,
			Heartbeat: 15 * time.Minute,
		},
		Serial: SerialConfig{Baud: 115200},
	}
}

// Load reads path over the defaults. Fields absent from the file keep their
// default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for wiring mistakes.
func (c Config) Validate() error {
	var errs []error

	if c.Loop <= 0 {
		errs = append(errs, errors.New("loop must be positive"))
	}
	if len(c.Keys.Pins) != len(c.Keys.Angles) {
		errs = append(errs, fmt.Errorf("keys: %d pins but %d angles", len(c.Keys.Pins), len(c.Keys.Angles)))
	}
	if c.Keys.Debounce < 0 {
		errs = append(errs, errors.New("keys: debounce must not be negative"))
	}
	if len(c.Stepper.Pins) != 4 {
		errs = append(errs, fmt.Errorf("stepper: need 4 pins, got %d", len(c.Stepper.Pins)))
	}
	if _, err := stepper.ForMode(c.Stepper.Mode); err != nil {
		errs = append(errs, fmt.Errorf("stepper: %w", err))
	}
	if c.Stepper.StepsPerRev <= 0 {
		errs = append(errs, errors.New("stepper: steps_per_rev must be positive"))
	}
	if c.Stepper.StepDelay <= 0 {
		errs = append(errs, errors.New("stepper: step_delay must be positive"))
	}
	if c.Stepper.MaxPending < 0 || c.Stepper.MaxPending > logic.MaxLimit {
		errs = append(errs, fmt.Errorf("stepper: max_pending must be in 0..%d", logic.MaxLimit))
	}
	if c.Dispatch.Capacity < 0 {
		errs = append(errs, errors.New("dispatch: capacity must not be negative"))
	}
	if c.Latch != nil && (c.Latch.Key < 0 || c.Latch.Key >= len(c.Keys.Pins)) {
		errs = append(errs, fmt.Errorf("latch: key %d out of range", c.Latch.Key))
	}
	if c.Ranging != nil && c.Ranging.Period <= 0 {
		errs = append(errs, errors.New("ranging: period must be positive"))
	}
	if c.MQTT.Outbox < 0 || c.MQTT.Heartbeat < 0 {
		errs = append(errs, errors.New("mqtt: outbox and heartbeat must not be negative"))
	}
	if c.Servo != nil && c.Servo.Pin == "" {
		errs = append(errs, errors.New("servo: pin is required"))
	}

	used := make(map[int]string)
	claim := func(pin int, what string) {
		if prev, ok := used[pin]; ok {
			errs = append(errs, fmt.Errorf("pin %d used by both %s and %s", pin, prev, what))
			return
		}
		used[pin] = what
	}
	for i, p := range c.Keys.Pins {
		claim(p, fmt.Sprintf("key %d", i))
	}
	for i, p := range c.Stepper.Pins {
		claim(p, fmt.Sprintf("coil %d", i))
	}
	if c.Latch != nil {
		claim(c.Latch.Pin, "latch")
	}
	if c.Ranging != nil {
		claim(c.Ranging.TrigPin, "ranging trigger")
		claim(c.Ranging.EchoPin, "ranging echo")
	}

	return errors.Join(errs...)
}
