package servo

import (
	"sync"
	"time"
)

// FakePWM records pulse widths for test assertions.
type FakePWM struct {
	mu     sync.Mutex
	Pulses []time.Duration

	// Err, if set, will be returned by SetPulse.
	Err error
}

// SetPulse records width.
func (f *FakePWM) SetPulse(width time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Pulses = append(f.Pulses, width)
	return nil
}

// Last returns the most recent pulse, or zero.
func (f *FakePWM) Last() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Pulses) == 0 {
		return 0
	}
	return f.Pulses[len(f.Pulses)-1]
}
