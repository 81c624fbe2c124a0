//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealChip requests lines from a GPIO character device.
type RealChip struct {
	chip    *gpiocdev.Chip
	inputs  []*gpiocdev.Line
	outputs []*gpiocdev.Line
}

// NewRealChip opens the named chip, e.g. "gpiochip0".
func NewRealChip(name string) (*RealChip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	return &RealChip{chip: chip}, nil
}

// Input requests offset as an input with the given bias.
func (c *RealChip) Input(offset int, pull Pull) (Input, error) {
	opts := append([]gpiocdev.LineReqOption{gpiocdev.AsInput}, biasOption(pull)...)
	l, err := c.chip.RequestLine(offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request input %d: %w", offset, err)
	}
	c.inputs = append(c.inputs, l)
	return &realLine{line: l}, nil
}

// Watch requests offset as an input and forwards kernel edge events to h.
// Event timestamps come from CLOCK_MONOTONIC, the same clock as clock.Real.
func (c *RealChip) Watch(offset int, pull Pull, edge Edge, h Handler) (Input, error) {
	opts := append([]gpiocdev.LineReqOption{gpiocdev.AsInput}, biasOption(pull)...)
	switch edge {
	case EdgeRising:
		opts = append(opts, gpiocdev.WithRisingEdge)
	case EdgeFalling:
		opts = append(opts, gpiocdev.WithFallingEdge)
	case EdgeBoth:
		opts = append(opts, gpiocdev.WithBothEdges)
	default:
		return nil, fmt.Errorf("watch %d: invalid edge %d", offset, edge)
	}
	opts = append(opts, gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
		h(EdgeEvent{
			Offset:    evt.Offset,
			Rising:    evt.Type == gpiocdev.LineEventRisingEdge,
			Timestamp: uint64(evt.Timestamp.Microseconds()),
		})
	}))

	l, err := c.chip.RequestLine(offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request watched input %d: %w", offset, err)
	}
	c.inputs = append(c.inputs, l)
	return &realLine{line: l}, nil
}

// Output requests offset as an output.
func (c *RealChip) Output(offset int, initial bool) (Output, error) {
	l, err := c.chip.RequestLine(offset, gpiocdev.AsOutput(levelValue(initial)))
	if err != nil {
		return nil, fmt.Errorf("request output %d: %w", offset, err)
	}
	c.outputs = append(c.outputs, l)
	return &realLine{line: l}, nil
}

// Close releases GPIO resources.
// Outputs are driven low and every line is reconfigured to input with
// pull-down (matching Pi boot defaults) before closing, so coils are left
// de-energized and external hardware sees a clean state on reboot.
func (c *RealChip) Close() error {
	var errs []error

	for _, l := range c.outputs {
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("release output %d: %w", l.Offset(), err))
		}
	}
	for _, l := range append(c.outputs, c.inputs...) {
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %d: %w", l.Offset(), err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %d: %w", l.Offset(), err))
		}
	}
	c.inputs, c.outputs = nil, nil

	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		c.chip = nil
	}

	return errors.Join(errs...)
}

type realLine struct {
	line *gpiocdev.Line
}

func (r *realLine) Read() (bool, error) {
	v, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read line %d: %w", r.line.Offset(), err)
	}
	return v != 0, nil
}

func (r *realLine) Write(level bool) error {
	if err := r.line.SetValue(levelValue(level)); err != nil {
		return fmt.Errorf("write line %d: %w", r.line.Offset(), err)
	}
	return nil
}

func biasOption(p Pull) []gpiocdev.LineReqOption {
	switch p {
	case PullUp:
		return []gpiocdev.LineReqOption{gpiocdev.WithPullUp}
	case PullDown:
		return []gpiocdev.LineReqOption{gpiocdev.WithPullDown}
	default:
		return nil
	}
}

func levelValue(level bool) int {
	if level {
		return 1
	}
	return 0
}
