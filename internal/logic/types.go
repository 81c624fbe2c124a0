// Package logic contains the pure state machines shared between the edge
// handlers and the main loop. This package has NO external dependencies (no
// GPIO, MQTT, OS, or time.Sleep). Time is always injected as a microsecond
// timestamp from internal/clock.
package logic

import (
	"fmt"
	"time"
)

// Direction is the sign of one actuation unit.
type Direction int8

const (
	Forward Direction = 1
	Reverse Direction = -1
)

// String returns "+" or "-".
func (d Direction) String() string {
	switch d {
	case Forward:
		return "+"
	case Reverse:
		return "-"
	default:
		return fmt.Sprintf("Direction(%d)", int8(d))
	}
}

// Edge is a debounced transition of a Channel.
type Edge struct {
	Rising  bool   // new stable level is high
	Pressed bool   // new stable level is the active level
	At      uint64 // commit time, microseconds
}

// EventType represents a reportable change in the machine.
type EventType string

const (
	EventKeyPress   EventType = "KEY_PRESS"
	EventKeyRelease EventType = "KEY_RELEASE"
	EventLongPress  EventType = "LONG_PRESS"
	EventMotorStart EventType = "MOTOR_START"
	EventMotorIdle  EventType = "MOTOR_IDLE"
)

// Event represents a transition to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Key       int   // key id for key events, -1 otherwise
	Units     int64 // units queued by the event
	Remaining int64 // pending units after the event
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	Presses     int
	Releases    int
	LongPresses int
	Starts      int
	Idles       int
}
