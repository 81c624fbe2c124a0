package stepper

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/stepper-keys/internal/gpio"
	"github.com/sweeney/stepper-keys/internal/logic"
)

const interval = 1200 * time.Microsecond

func newTestMotor(t *testing.T, release bool) (*Motor, *logic.Accumulator, []*gpio.FakeOutput) {
	t.Helper()
	fakes := make([]*gpio.FakeOutput, 4)
	coils := make([]gpio.Output, 4)
	for i := range fakes {
		fakes[i] = gpio.NewFakeOutput(false)
		coils[i] = fakes[i]
	}
	acc := logic.NewAccumulator(0)
	m := NewMotor(coils, acc, Config{
		Sequence:        HalfStep,
		MinInterval:     interval,
		ReleaseWhenIdle: release,
	})
	return m, acc, fakes
}

func levels(fakes []*gpio.FakeOutput) []bool {
	out := make([]bool, len(fakes))
	for i, f := range fakes {
		out[i] = f.Level()
	}
	return out
}

func equalRow(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestIdleTickIsNoop(t *testing.T) {
	m, _, fakes := newTestMotor(t, true)

	res, err := m.Tick(10_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != (Result{}) {
		t.Errorf("expected empty result, got %+v", res)
	}
	if m.State() != StateIdle {
		t.Errorf("state: got %s, want IDLE", m.State())
	}
	for i, f := range fakes {
		if len(f.History()) != 0 {
			t.Errorf("coil %d written while idle", i)
		}
	}
}

func TestDrainToZero(t *testing.T) {
	m, acc, _ := newTestMotor(t, true)
	acc.Enqueue(1024)

	step := uint64(interval.Microseconds())
	now := step
	starts, stops, steps := 0, 0, 0
	for i := 0; i < 1024; i++ {
		res, err := m.Tick(now)
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if res.Started {
			starts++
		}
		if res.Stopped {
			stops++
		}
		if res.Stepped {
			steps++
		}
		if want := int64(1024 - i - 1); acc.Remaining() != want {
			t.Fatalf("tick %d: remaining %d, want %d", i, acc.Remaining(), want)
		}
		now += step
	}

	if steps != 1024 {
		t.Errorf("steps: got %d, want 1024", steps)
	}
	if starts != 1 || stops != 1 {
		t.Errorf("transitions: starts=%d stops=%d, want 1 and 1", starts, stops)
	}
	if m.State() != StateIdle {
		t.Errorf("state: got %s, want IDLE", m.State())
	}
	if m.IdleEntries() != 1 {
		t.Errorf("IdleEntries: got %d, want 1", m.IdleEntries())
	}
	// 1024 is a multiple of 8, so the phase is back where it started.
	if m.Index() != 0 {
		t.Errorf("Index: got %d, want 0", m.Index())
	}
}

func TestTickRespectsMinInterval(t *testing.T) {
	m, acc, _ := newTestMotor(t, false)
	acc.Enqueue(10)

	m.Tick(1200)
	for _, now := range []uint64{1300, 1800, 2399} {
		res, _ := m.Tick(now)
		if res.Stepped {
			t.Errorf("stepped at %dus, only %dus after last step", now, now-1200)
		}
	}
	res, _ := m.Tick(2400)
	if !res.Stepped {
		t.Error("expected step once interval elapsed")
	}
	if acc.Remaining() != 8 {
		t.Errorf("Remaining: got %d, want 8", acc.Remaining())
	}
}

func TestStepDirectionFollowsSign(t *testing.T) {
	m, acc, fakes := newTestMotor(t, false)

	acc.Enqueue(1)
	m.Tick(1200)
	if m.Index() != 1 {
		t.Fatalf("Index after forward step: got %d, want 1", m.Index())
	}
	if !equalRow(levels(fakes), HalfStep[1]) {
		t.Errorf("coils: got %v, want %v", levels(fakes), HalfStep[1])
	}

	acc.Enqueue(-3)
	m.Tick(2400)
	m.Tick(3600)
	m.Tick(4800)
	if m.Index() != 6 {
		t.Errorf("Index after 3 reverse steps: got %d, want 6", m.Index())
	}
	if !equalRow(levels(fakes), HalfStep[6]) {
		t.Errorf("coils: got %v, want %v", levels(fakes), HalfStep[6])
	}
}

func TestReleaseWhenIdle(t *testing.T) {
	m, acc, fakes := newTestMotor(t, true)
	acc.Enqueue(1)

	res, _ := m.Tick(1200)
	if !res.Started || !res.Stepped || !res.Stopped {
		t.Errorf("single unit should start, step and stop in one tick: %+v", res)
	}
	for i, f := range fakes {
		if f.Level() {
			t.Errorf("coil %d still energized after idle", i)
		}
	}
}

func TestHoldWhenReleaseDisabled(t *testing.T) {
	m, acc, fakes := newTestMotor(t, false)
	acc.Enqueue(1)
	m.Tick(1200)

	if !equalRow(levels(fakes), HalfStep[1]) {
		t.Errorf("coils should hold last pattern: got %v", levels(fakes))
	}
}

func TestOppositeEnqueueStops(t *testing.T) {
	m, acc, _ := newTestMotor(t, true)
	acc.Enqueue(100)
	m.Tick(1200)

	acc.Enqueue(-acc.Remaining())
	res, _ := m.Tick(2400)
	if !res.Stopped || res.Stepped {
		t.Errorf("zeroed accumulator should stop without stepping: %+v", res)
	}
	if m.State() != StateIdle {
		t.Errorf("state: got %s, want IDLE", m.State())
	}
}

func TestZeroEnqueueNoTransition(t *testing.T) {
	m, acc, _ := newTestMotor(t, true)
	acc.Enqueue(0)

	res, _ := m.Tick(1200)
	if res != (Result{}) {
		t.Errorf("Enqueue(0) must not start the motor: %+v", res)
	}
}

func TestCoilWriteErrorReported(t *testing.T) {
	m, acc, fakes := newTestMotor(t, false)
	fakes[2].WriteError = errors.New("line busy")
	acc.Enqueue(2)

	res, err := m.Tick(1200)
	if err == nil {
		t.Fatal("expected coil write error")
	}
	if !res.Stepped || acc.Remaining() != 1 {
		t.Errorf("unit must still be accounted: %+v remaining=%d", res, acc.Remaining())
	}
}

func TestMismatchedSequencePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for sequence wider than coil count")
		}
	}()
	coils := []gpio.Output{gpio.NewFakeOutput(false), gpio.NewFakeOutput(false)}
	NewMotor(coils, logic.NewAccumulator(0), Config{Sequence: HalfStep})
}

func TestEmptySequencePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for empty sequence")
		}
	}()
	NewMotor(nil, logic.NewAccumulator(0), Config{})
}
