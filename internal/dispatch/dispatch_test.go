package dispatch

import (
	"sync"
	"testing"
)

type recorder struct {
	calls []int
}

func (r *recorder) handle(id int) {
	r.calls = append(r.calls, id)
}

func TestRequestSchedulesAndProcesses(t *testing.T) {
	sched := NewChanScheduler(4)
	rec := &recorder{}
	q := NewQueue(2, sched, rec.handle)

	q.Request(1)
	if !q.Pending(1) {
		t.Error("expected id 1 pending after request")
	}
	if sched.Len() != 1 {
		t.Fatalf("expected 1 scheduled task, got %d", sched.Len())
	}

	if n := sched.RunPending(); n != 1 {
		t.Errorf("RunPending: got %d, want 1", n)
	}
	if len(rec.calls) != 1 || rec.calls[0] != 1 {
		t.Errorf("handler calls: got %v, want [1]", rec.calls)
	}
	if q.Pending(1) {
		t.Error("expected flag cleared after processing")
	}
}

func TestRequestCoalesces(t *testing.T) {
	sched := NewChanScheduler(4)
	rec := &recorder{}
	q := NewQueue(1, sched, rec.handle)

	q.Request(0)
	q.Request(0)
	q.Request(0)

	if sched.Len() != 1 {
		t.Errorf("expected a single scheduled task, got %d", sched.Len())
	}
	sched.RunPending()
	if len(rec.calls) != 1 {
		t.Errorf("handler calls: got %d, want 1", len(rec.calls))
	}

	st := q.Stats()
	if st.Requests != 3 || st.Coalesced != 2 || st.Fallbacks != 0 {
		t.Errorf("stats: got %+v", st)
	}
}

func TestProcessIdempotent(t *testing.T) {
	sched := NewChanScheduler(4)
	rec := &recorder{}
	q := NewQueue(1, sched, rec.handle)

	q.Request(0)
	if !q.Process(0) {
		t.Error("first Process should run the handler")
	}
	if q.Process(0) {
		t.Error("second Process should be a no-op")
	}

	// The scheduled task now finds the flag clear.
	sched.RunPending()
	if len(rec.calls) != 1 {
		t.Errorf("handler calls: got %d, want 1", len(rec.calls))
	}
}

func TestFallbackWhenSchedulerFull(t *testing.T) {
	const n = 5
	rec := &recorder{}
	q := NewQueue(n, RejectScheduler{}, rec.handle)

	for id := 0; id < n; id++ {
		q.Request(id)
	}
	if st := q.Stats(); st.Fallbacks != n {
		t.Errorf("Fallbacks: got %d, want %d", st.Fallbacks, n)
	}

	// One loop iteration's fallback poll handles every pending flag.
	if got := q.PollPending(); got != n {
		t.Errorf("PollPending: got %d, want %d", got, n)
	}
	if len(rec.calls) != n {
		t.Errorf("handler calls: got %d, want %d", len(rec.calls), n)
	}
	for id := 0; id < n; id++ {
		if q.Pending(id) {
			t.Errorf("id %d still pending", id)
		}
	}
}

func TestNoLostEdgesUnderPressure(t *testing.T) {
	// Scheduler with room for one task: later requests must fall back.
	sched := NewChanScheduler(1)
	rec := &recorder{}
	q := NewQueue(1, sched, rec.handle)

	const iterations = 10
	for i := 0; i < iterations; i++ {
		q.Request(0)
		// Simulate a main loop iteration where the scheduled task is delayed:
		// only the fallback poll runs.
		q.PollPending()
	}

	if len(rec.calls) != iterations {
		t.Errorf("handler calls: got %d, want %d", len(rec.calls), iterations)
	}
	// The stale scheduled task finds nothing to do.
	sched.RunPending()
	if len(rec.calls) != iterations {
		t.Errorf("handler calls after stale task: got %d, want %d", len(rec.calls), iterations)
	}
}

func TestRunPendingBounded(t *testing.T) {
	sched := NewChanScheduler(8)
	count := 0
	var task Task
	task = func() {
		count++
		sched.TrySchedule(task) // reschedules itself
	}
	sched.TrySchedule(task)

	if n := sched.RunPending(); n != 1 {
		t.Errorf("RunPending: got %d, want 1", n)
	}
	if count != 1 {
		t.Errorf("count: got %d, want 1", count)
	}
	if sched.Len() != 1 {
		t.Errorf("rescheduled task should wait for next call, Len=%d", sched.Len())
	}
}

func TestConcurrentRequests(t *testing.T) {
	sched := NewChanScheduler(2)
	var mu sync.Mutex
	processed := 0
	q := NewQueue(4, sched, func(int) {
		mu.Lock()
		processed++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Request(id)
			}
		}(g)
	}
	wg.Wait()

	sched.RunPending()
	q.PollPending()

	for id := 0; id < 4; id++ {
		if q.Pending(id) {
			t.Errorf("id %d still pending after drain", id)
		}
	}
	if processed == 0 {
		t.Error("expected at least one processed request")
	}
}

func TestOutOfRangePanics(t *testing.T) {
	q := NewQueue(1, NewChanScheduler(1), func(int) {})
	defer func() {
		if recover() == nil {
			t.Error("expected panic for out-of-range id")
		}
	}()
	q.Request(3)
}
