// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/stepper-keys/internal/logic"
)

// Topics holds the topics used under one prefix.
type Topics struct {
	Events  string // key and motor events
	System  string // lifecycle events, also the LWT
	Command string // inbound text commands
	Reply   string // one reply per inbound command
}

// NewTopics returns the topics under prefix.
func NewTopics(prefix string) Topics {
	return Topics{
		Events:  prefix + "/events",
		System:  prefix + "/system",
		Command: prefix + "/command",
		Reply:   prefix + "/reply",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a controller event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Stepper StepperPayload `json:"stepper"`
}

// StepperPayload contains the event details.
type StepperPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Key       *int   `json:"key,omitempty"`
	Units     int64  `json:"units,omitempty"`
	Remaining int64  `json:"remaining"`
}

// FormatPayload creates the JSON payload for a controller event.
// The key is omitted for motor events.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Stepper: StepperPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Units:     event.Units,
			Remaining: event.Remaining,
		},
	}
	if event.Key >= 0 {
		key := event.Key
		payload.Stepper.Key = &key
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
