package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/stepper-keys/internal/logic"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{LoopUs: 500, DebounceMs: 40, Broker: "tcp://localhost:1883", HTTPAddr: ":8080"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.LoopUs != 500 {
		t.Errorf("Config.LoopUs: got %d, want 500", snap.Config.LoopUs)
	}
	if snap.Config.HTTPAddr != ":8080" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":8080")
	}
	if snap.Machine.Motor != "" {
		t.Errorf("expected empty motor state initially, got %q", snap.Machine.Motor)
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.Update(Machine{Motor: "STEPPING", Remaining: 512, Index: 3, Keys: []bool{true, false}},
		logic.EventCounts{Presses: 3, Idles: 1})

	snap := tr.Snapshot()
	if snap.Machine.Motor != "STEPPING" {
		t.Errorf("Motor: got %q, want STEPPING", snap.Machine.Motor)
	}
	if snap.Machine.Remaining != 512 {
		t.Errorf("Remaining: got %d, want 512", snap.Machine.Remaining)
	}
	if snap.Machine.Index != 3 {
		t.Errorf("Index: got %d, want 3", snap.Machine.Index)
	}
	if len(snap.Machine.Keys) != 2 || !snap.Machine.Keys[0] {
		t.Errorf("Keys: got %v", snap.Machine.Keys)
	}
	if snap.Counts.Presses != 3 {
		t.Errorf("Counts.Presses: got %d, want 3", snap.Counts.Presses)
	}
	if snap.Counts.Idles != 1 {
		t.Errorf("Counts.Idles: got %d, want 1", snap.Counts.Idles)
	}
}

func TestUpdateCopiesKeys(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	keys := []bool{false, false}
	tr.Update(Machine{Keys: keys}, logic.EventCounts{})

	keys[0] = true
	if tr.Snapshot().Machine.Keys[0] {
		t.Error("tracker should not alias the caller's slice")
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, Config{})
	tr.now = func() time.Time { return start.Add(90 * time.Second) }

	if got := tr.Snapshot().Uptime(); got != 90*time.Second {
		t.Errorf("Uptime: got %v, want 90s", got)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Update(Machine{Keys: []bool{true}}, logic.EventCounts{Presses: 1})

	snap := tr.Snapshot()
	snap.Machine.Keys[0] = false
	snap.Counts.Presses = 99

	again := tr.Snapshot()
	if !again.Machine.Keys[0] {
		t.Error("modifying a snapshot changed the tracker keys")
	}
	if again.Counts.Presses != 1 {
		t.Errorf("modifying a snapshot changed the tracker counts: %d", again.Counts.Presses)
	}
}

func testSnapshot() Snapshot {
	start := time.Date(2026, 2, 2, 22, 0, 0, 0, time.UTC)
	return Snapshot{
		Machine: Machine{
			Motor:      "IDLE",
			Remaining:  -1024,
			Index:      5,
			Steps:      2048,
			Keys:       []bool{false, true, false, false},
			Ranging:    true,
			Echo:       1486 * time.Microsecond,
			EchoValid:  true,
			DistanceCm: 25.4849,
			Dispatch:   DispatchStats{Requests: 10, Coalesced: 4, Fallbacks: 1},
		},
		Counts:        logic.EventCounts{Presses: 2, Releases: 1, Starts: 1, Idles: 1},
		StartTime:     start,
		Now:           start.Add(65 * time.Second),
		MQTTConnected: true,
		Config: Config{
			LoopUs:      500,
			DebounceMs:  40,
			StepDelayUs: 1200,
			HeartbeatMs: 1000,
			StepsPerRev: 4096,
			Mode:        "half",
			Broker:      "tcp://broker:1883",
			HTTPAddr:    ":8080",
		},
	}
}

func TestFormatJSON(t *testing.T) {
	data := FormatJSON(testSnapshot())

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := parsed.Status
	if s.Event != "" || s.Reason != "" {
		t.Errorf("web status should carry no event/reason, got %q/%q", s.Event, s.Reason)
	}
	if s.Motor != "IDLE" {
		t.Errorf("motor: got %q", s.Motor)
	}
	if s.Remaining != -1024 {
		t.Errorf("remaining: got %d", s.Remaining)
	}
	if len(s.Keys) != 4 || !s.Keys[1] {
		t.Errorf("keys: got %v", s.Keys)
	}
	if s.UptimeSeconds != 65 {
		t.Errorf("uptime: got %d, want 65", s.UptimeSeconds)
	}
	if s.Ranging == nil || s.Ranging.EchoUs != 1486 || !s.Ranging.Valid {
		t.Errorf("ranging: got %+v", s.Ranging)
	}
	if s.Servo != nil {
		t.Errorf("servo should be omitted when not configured, got %+v", s.Servo)
	}
	if s.Counts.KeyPress != 2 || s.Counts.MotorIdle != 1 {
		t.Errorf("counts: got %+v", s.Counts)
	}
	if s.Dispatch.Fallbacks != 1 {
		t.Errorf("dispatch fallbacks: got %d", s.Dispatch.Fallbacks)
	}
	if s.Config == nil || s.Config.StepsPerRev != 4096 {
		t.Errorf("config: got %+v", s.Config)
	}
	if !s.MQTT.Connected || s.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("mqtt: got %+v", s.MQTT)
	}
}

func TestFormatJSONUnknownMotor(t *testing.T) {
	data := FormatJSON(Snapshot{})

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Motor != "UNKNOWN" {
		t.Errorf("motor: got %q, want UNKNOWN", parsed.Status.Motor)
	}
	if parsed.Status.Keys == nil {
		t.Error("keys should encode as an empty array, not null")
	}
}

func TestFormatStatusEvent(t *testing.T) {
	data := FormatStatusEvent(testSnapshot(), "STARTUP", "")

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := parsed["status"]
	if s["event"] != "STARTUP" {
		t.Errorf("event: got %v", s["event"])
	}
	if _, ok := s["reason"]; ok {
		t.Error("reason should be omitted when empty")
	}
	if _, ok := s["config"]; !ok {
		t.Error("STARTUP should include config")
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	data := FormatStatusEvent(testSnapshot(), "SHUTDOWN", "SIGTERM")

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := parsed["status"]
	if s["reason"] != "SIGTERM" {
		t.Errorf("reason: got %v", s["reason"])
	}
	if _, ok := s["config"]; ok {
		t.Error("SHUTDOWN should not include config")
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			tr.Update(Machine{Remaining: int64(i), Keys: []bool{i%2 == 0}}, logic.EventCounts{Presses: i})
		}(i)
		go func() {
			defer wg.Done()
			tr.SetMQTTConnected(true)
		}()
		go func() {
			defer wg.Done()
			_ = FormatJSON(tr.Snapshot())
		}()
	}
	wg.Wait()
}
