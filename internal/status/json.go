package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Motor         string       `json:"motor"`
	Remaining     int64        `json:"remaining"`
	Index         int          `json:"index"`
	Steps         uint64       `json:"steps"`
	Keys          []bool       `json:"keys"`
	Latched       bool         `json:"latched"`
	Ranging       *RangingJSON `json:"ranging,omitempty"`
	Servo         *ServoJSON   `json:"servo,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Dispatch      DispatchJSON `json:"dispatch"`
	Config        *ConfigJSON  `json:"config,omitempty"`
}

// RangingJSON reports the last echo.
type RangingJSON struct {
	Valid      bool    `json:"valid"`
	EchoUs     int64   `json:"echo_us"`
	DistanceCm float64 `json:"distance_cm"`
}

// ServoJSON reports the servo pulse.
type ServoJSON struct {
	PulseUs int64 `json:"pulse_us"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	KeyPress   int `json:"key_press"`
	KeyRelease int `json:"key_release"`
	LongPress  int `json:"long_press"`
	MotorStart int `json:"motor_start"`
	MotorIdle  int `json:"motor_idle"`
}

// DispatchJSON is the JSON representation of the dispatch counters.
type DispatchJSON struct {
	Requests  uint64 `json:"requests"`
	Coalesced uint64 `json:"coalesced"`
	Fallbacks uint64 `json:"fallbacks"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	LoopUs      int64  `json:"loop_us"`
	DebounceMs  int64  `json:"debounce_ms"`
	StepDelayUs int64  `json:"step_delay_us"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	StepsPerRev int    `json:"steps_per_rev"`
	Mode        string `json:"mode"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	Serial      string `json:"serial,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	m := snap.Machine
	motor := m.Motor
	if motor == "" {
		motor = "UNKNOWN"
	}
	keys := m.Keys
	if keys == nil {
		keys = []bool{}
	}

	inner := StatusInner{
		Motor:         motor,
		Remaining:     m.Remaining,
		Index:         m.Index,
		Steps:         m.Steps,
		Keys:          keys,
		Latched:       m.Latched,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			KeyPress:   snap.Counts.Presses,
			KeyRelease: snap.Counts.Releases,
			LongPress:  snap.Counts.LongPresses,
			MotorStart: snap.Counts.Starts,
			MotorIdle:  snap.Counts.Idles,
		},
		Dispatch: DispatchJSON{
			Requests:  m.Dispatch.Requests,
			Coalesced: m.Dispatch.Coalesced,
			Fallbacks: m.Dispatch.Fallbacks,
		},
	}
	if m.Ranging {
		inner.Ranging = &RangingJSON{
			Valid:      m.EchoValid,
			EchoUs:     m.Echo.Microseconds(),
			DistanceCm: m.DistanceCm,
		}
	}
	if m.Servo {
		inner.Servo = &ServoJSON{PulseUs: m.ServoPulse.Microseconds()}
	}
	return inner
}

func buildConfig(snap Snapshot, inner *StatusInner) {
	inner.Config = &ConfigJSON{
		LoopUs:      snap.Config.LoopUs,
		DebounceMs:  snap.Config.DebounceMs,
		StepDelayUs: snap.Config.StepDelayUs,
		HeartbeatMs: snap.Config.HeartbeatMs,
		StepsPerRev: snap.Config.StepsPerRev,
		Mode:        snap.Config.Mode,
		Broker:      snap.Config.Broker,
		HTTPAddr:    snap.Config.HTTPAddr,
		Serial:      snap.Config.Serial,
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildConfig(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
// Config is only included in STARTUP events.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	if event == "STARTUP" {
		buildConfig(snap, &inner)
	}

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
