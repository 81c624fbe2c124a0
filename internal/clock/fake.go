package clock

import (
	"sync/atomic"
	"time"
)

// Fake is a manually advanced clock for tests. Safe for concurrent use.
type Fake struct {
	us atomic.Uint64
}

// NewFake creates a Fake clock starting at startUs.
func NewFake(startUs uint64) *Fake {
	f := &Fake{}
	f.us.Store(startUs)
	return f
}

// NowUs returns the current fake time in microseconds.
func (f *Fake) NowUs() uint64 {
	return f.us.Load()
}

// NowMs returns the current fake time in milliseconds.
func (f *Fake) NowMs() uint64 {
	return f.us.Load() / 1_000
}

// Advance moves the clock forward by d and returns the new time in microseconds.
func (f *Fake) Advance(d time.Duration) uint64 {
	return f.us.Add(uint64(d.Microseconds()))
}

// Set jumps the clock to us.
func (f *Fake) Set(us uint64) {
	f.us.Store(us)
}
