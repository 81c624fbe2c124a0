package logic

import (
	"time"

	"github.com/sweeney/stepper-keys/internal/clock"
)

// LongPress fires once per press when a debounced input has been held for at
// least the hold duration.
type LongPress struct {
	hold      uint64
	pressedAt uint64
	holding   bool
	fired     bool
}

// NewLongPress creates a detector for the given hold duration.
func NewLongPress(hold time.Duration) LongPress {
	return LongPress{hold: uint64(hold.Microseconds())}
}

// Update takes the current debounced pressed state and returns true exactly
// once per press, on the first update at or after the hold duration.
func (l *LongPress) Update(pressed bool, now uint64) bool {
	if !pressed {
		l.holding = false
		l.fired = false
		return false
	}
	if !l.holding {
		l.holding = true
		l.pressedAt = now
	}
	if l.fired || !clock.Elapsed(now, l.pressedAt, l.hold) {
		return false
	}
	l.fired = true
	return true
}
