package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/stepper-keys/internal/command"
	"github.com/sweeney/stepper-keys/internal/logic"
	"github.com/sweeney/stepper-keys/internal/status"
)

// target records commands applied through the HTTP endpoint.
type target struct {
	mu    sync.Mutex
	units int64
	angle float64
}

func (f *target) QueueCommand(u int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.units += u
	return u
}

func (f *target) QueueAngle(d float64) int64 {
	return f.QueueCommand(int64(d * 4096 / 360))
}

func (f *target) Stop() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.units
	f.units = 0
	return -u
}

func (f *target) SetServoAngle(d float64) error {
	f.mu.Lock()
	f.angle = d
	f.mu.Unlock()
	return nil
}

func (f *target) state() (int64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.units, f.angle
}

func (f *target) SetServoSpeed(int) error {
	return errors.New("no servo configured")
}

func newTestServer(t *testing.T, tgt *target) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		LoopUs:      500,
		DebounceMs:  40,
		StepDelayUs: 1200,
		HeartbeatMs: 1000,
		StepsPerRev: 4096,
		Mode:        "half",
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":8080",
	}
	tr := status.NewTracker(start, cfg)
	var cmd command.Target
	if tgt != nil {
		cmd = tgt
	}
	srv := New(":0", tr, cmd)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, tr
}

func getJSON(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.Update(status.Machine{Motor: "STEPPING", Remaining: 700, Keys: []bool{true, false, false, false}},
		logic.EventCounts{Presses: 5, Releases: 4})
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.Motor != "STEPPING" {
		t.Errorf("Motor: got %q, want STEPPING", sj.Status.Motor)
	}
	if sj.Status.Remaining != 700 {
		t.Errorf("Remaining: got %d, want 700", sj.Status.Remaining)
	}
	if len(sj.Status.Keys) != 4 || !sj.Status.Keys[0] {
		t.Errorf("Keys: got %v", sj.Status.Keys)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Counts.KeyPress != 5 || sj.Status.Counts.KeyRelease != 4 {
		t.Errorf("Counts: got %+v", sj.Status.Counts)
	}
	if sj.Status.Config == nil || sj.Status.Config.StepDelayUs != 1200 {
		t.Errorf("Config: got %+v", sj.Status.Config)
	}
}

func TestJSONUnknownBeforeFirstUpdate(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	sj := getJSON(t, ts.URL+"/index.json")
	if sj.Status.Motor != "UNKNOWN" {
		t.Errorf("Motor before first update: got %q, want UNKNOWN", sj.Status.Motor)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.Update(status.Machine{
		Motor:      "IDLE",
		Keys:       []bool{false, true},
		Latched:    true,
		Ranging:    true,
		Echo:       1486 * time.Microsecond,
		EchoValid:  true,
		DistanceCm: 25.48,
	}, logic.EventCounts{})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"Stepper Keys", ">IDLE<", "K1", "pressed", "1486us", "25.5 cm", "Latch"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(string(body), "Servo") {
		t.Error("servo section shown without a servo")
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func postCommand(t *testing.T, url, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(url+"/command", "text/plain", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /command: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, strings.TrimSpace(string(b))
}

func TestCommandEndpoint(t *testing.T) {
	tgt := &target{}
	ts, _ := newTestServer(t, tgt)

	code, reply := postCommand(t, ts.URL, "deg 90")
	if code != 200 || reply != "ok: queued +1024 units for 90 deg" {
		t.Errorf("deg 90: %d %q", code, reply)
	}
	if units, _ := tgt.state(); units != 1024 {
		t.Errorf("units: got %d, want 1024", units)
	}

	code, reply = postCommand(t, ts.URL, "stop")
	if code != 200 || reply != "ok: cancelled -1024 units" {
		t.Errorf("stop: %d %q", code, reply)
	}

	code, _ = postCommand(t, ts.URL, "servo 45")
	if _, angle := tgt.state(); code != 200 || angle != 45 {
		t.Errorf("servo: %d angle %g", code, angle)
	}
}

func TestCommandEndpointErrors(t *testing.T) {
	ts, _ := newTestServer(t, &target{})

	if code, reply := postCommand(t, ts.URL, "jump 3"); code != 400 || !strings.HasPrefix(reply, "error:") {
		t.Errorf("unknown command: %d %q", code, reply)
	}
	if code, _ := postCommand(t, ts.URL, ""); code != 400 {
		t.Errorf("empty command: got %d, want 400", code)
	}
	if code, reply := postCommand(t, ts.URL, "speed 50"); code != 400 || reply != "error: no servo configured" {
		t.Errorf("servo error: %d %q", code, reply)
	}

	resp, err := http.Get(ts.URL + "/command")
	if err != nil {
		t.Fatalf("GET /command: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /command: got %d, want 405", resp.StatusCode)
	}
}

func TestCommandEndpointDisabled(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	if code, _ := postCommand(t, ts.URL, "stop"); code != http.StatusServiceUnavailable {
		t.Errorf("got %d, want 503", code)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t, nil)

	if sj := getJSON(t, ts.URL+"/index.json"); sj.Status.MQTT.Connected {
		t.Error("expected MQTT disconnected initially")
	}

	tr.Update(status.Machine{Motor: "IDLE", Index: 6}, logic.EventCounts{Idles: 1})
	tr.SetMQTTConnected(true)

	sj := getJSON(t, ts.URL+"/index.json")
	if sj.Status.Index != 6 {
		t.Errorf("Index: got %d, want 6", sj.Status.Index)
	}
	if sj.Status.Counts.MotorIdle != 1 {
		t.Errorf("MotorIdle: got %d, want 1", sj.Status.Counts.MotorIdle)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}
