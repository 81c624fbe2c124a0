package logic

import (
	"fmt"
	"time"

	"github.com/sweeney/stepper-keys/internal/clock"
)

// Channel tracks debounce state for a single digital input.
//
// The stable level only moves after the raw level has held constant for the
// debounce window since the most recent raw flip. Every flip restarts the
// window, so contact bounce shorter than the window never reaches the stable
// level.
type Channel struct {
	raw        bool
	stable     bool
	lastChange uint64
	window     uint64
	activeLow  bool

	transition    Edge
	hasTransition bool
}

// NewChannel creates a channel whose raw and stable levels both start at
// initial. activeLow marks inputs wired with a pull-up where a press reads low.
func NewChannel(initial bool, window time.Duration, activeLow bool, now uint64) Channel {
	return Channel{
		raw:        initial,
		stable:     initial,
		lastChange: now,
		window:     uint64(window.Microseconds()),
		activeLow:  activeLow,
	}
}

// Observe feeds one raw sample. It returns true when the sample (or the
// passage of time since the last flip) commits a new stable level; the
// resulting Edge is then available from ConsumeTransition.
func (c *Channel) Observe(raw bool, now uint64) bool {
	if raw != c.raw {
		c.raw = raw
		c.lastChange = now
	}

	if c.raw == c.stable || !clock.Elapsed(now, c.lastChange, c.window) {
		return false
	}

	c.stable = c.raw
	// An unconsumed transition is replaced; only the latest edge matters.
	c.transition = Edge{
		Rising:  c.stable,
		Pressed: c.stable != c.activeLow,
		At:      now,
	}
	c.hasTransition = true
	return true
}

// ConsumeTransition returns the pending transition, if any, and clears it.
// Calling it again before the next commit returns false.
func (c *Channel) ConsumeTransition() (Edge, bool) {
	if !c.hasTransition {
		return Edge{}, false
	}
	c.hasTransition = false
	return c.transition, true
}

// Pressed reports whether the stable level is the active level.
func (c *Channel) Pressed() bool {
	return c.stable != c.activeLow
}

// Level returns the stable level.
func (c *Channel) Level() bool {
	return c.stable
}

// Raw returns the last observed raw level.
func (c *Channel) Raw() bool {
	return c.raw
}

// Settling reports whether a raw flip is waiting out the debounce window.
// The main loop keeps sampling settling channels until they commit or revert.
func (c *Channel) Settling() bool {
	return c.raw != c.stable
}

// Bank is a fixed set of channels addressed by id.
type Bank struct {
	channels []Channel
}

// NewBank creates a bank from already-initialised channels. The bank does not
// grow after construction.
func NewBank(channels ...Channel) *Bank {
	b := &Bank{channels: make([]Channel, len(channels))}
	copy(b.channels, channels)
	return b
}

// At returns the channel with the given id. An out-of-range id is a wiring
// bug and panics.
func (b *Bank) At(id int) *Channel {
	if id < 0 || id >= len(b.channels) {
		panic(fmt.Sprintf("logic: channel id %d out of range [0,%d)", id, len(b.channels)))
	}
	return &b.channels[id]
}

// Len returns the number of channels.
func (b *Bank) Len() int {
	return len(b.channels)
}
