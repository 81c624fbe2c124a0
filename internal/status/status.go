// Package status provides a thread-safe status tracker for the stepper-keys daemon.
// It is written by the main loop and read by HTTP handlers and MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/stepper-keys/internal/logic"
)

// Machine is the controller state as seen from outside the main loop.
type Machine struct {
	Motor     string // IDLE or STEPPING
	Remaining int64
	Index     int
	Steps     uint64
	Keys      []bool // pressed, per key id
	Latched   bool

	Ranging    bool // ranging configured
	Echo       time.Duration
	EchoValid  bool
	DistanceCm float64

	Servo      bool // servo configured
	ServoPulse time.Duration

	Dispatch DispatchStats
}

// DispatchStats mirrors the key dispatch counters.
type DispatchStats struct {
	Requests  uint64
	Coalesced uint64
	Fallbacks uint64
}

// Config contains daemon configuration for display.
type Config struct {
	LoopUs      int64
	DebounceMs  int64
	StepDelayUs int64
	HeartbeatMs int64
	StepsPerRev int
	Mode        string
	Broker      string
	HTTPAddr    string
	Serial      string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Machine       Machine
	Counts        logic.EventCounts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update replaces the machine state and event counts.
// The Keys slice is copied.
func (t *Tracker) Update(m Machine, counts logic.EventCounts) {
	m.Keys = append([]bool(nil), m.Keys...)
	t.mu.Lock()
	t.snap.Machine = m
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Machine.Keys = append([]bool(nil), s.Machine.Keys...)
	s.Now = t.now()
	return s
}
