package logic

import (
	"sync/atomic"
	"time"

	"github.com/sweeney/stepper-keys/internal/clock"
)

// Capture records a rising/falling timestamp pair on one line and keeps the
// most recent completed duration.
//
// OnEdge is called from the edge-event goroutine and must be its only
// writer. Last may be called from any goroutine. The zero value is ready to use.
type Capture struct {
	start    atomic.Uint64
	hasStart atomic.Bool
	// last holds the duration in microseconds plus one; zero means none yet.
	last      atomic.Uint64
	completed atomic.Uint64
}

// OnEdge records an edge at now.
//
// A rising edge always starts a new measurement, discarding an incomplete
// one. A falling edge completes the measurement only if a start is recorded;
// an isolated falling edge is ignored.
func (c *Capture) OnEdge(rising bool, now uint64) {
	if rising {
		c.start.Store(now)
		c.hasStart.Store(true)
		return
	}

	if !c.hasStart.Load() {
		return
	}
	c.hasStart.Store(false)

	d := clock.Diff(now, c.start.Load())
	if d < 0 {
		return
	}
	c.last.Store(uint64(d) + 1)
	c.completed.Add(1)
}

// Last returns the most recent completed measurement.
func (c *Capture) Last() (time.Duration, bool) {
	v := c.last.Load()
	if v == 0 {
		return 0, false
	}
	return time.Duration(v-1) * time.Microsecond, true
}

// Completed returns the number of completed measurements.
func (c *Capture) Completed() uint64 {
	return c.completed.Load()
}

// Armed reports whether a rising edge is waiting for its falling half.
func (c *Capture) Armed() bool {
	return c.hasStart.Load()
}
