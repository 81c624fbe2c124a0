// Package dispatch moves work out of the edge-event goroutine into the main
// loop. Edge handlers only set a per-channel pending flag and try to schedule
// a task; the main loop runs scheduled tasks and, as a fallback, polls every
// pending flag on each iteration so no request is lost when the scheduler is
// full.
package dispatch

import (
	"fmt"
	"sync/atomic"
)

// Task is a unit of deferred work.
type Task func()

// Scheduler queues tasks for later execution on the main loop.
type Scheduler interface {
	// TrySchedule queues task without blocking. It returns false when the
	// scheduler has no capacity.
	TrySchedule(task Task) bool
}

// Handler is the bottom-half processing for one channel.
type Handler func(id int)

// Queue coalesces per-channel requests and hands them to a Scheduler.
type Queue struct {
	pending []atomic.Bool
	tasks   []Task
	sched   Scheduler
	handler Handler

	requests  atomic.Uint64
	coalesced atomic.Uint64
	fallbacks atomic.Uint64
}

// NewQueue creates a queue for n channels. handler runs on the main loop with
// the channel id whose flag was cleared.
func NewQueue(n int, sched Scheduler, handler Handler) *Queue {
	if sched == nil || handler == nil {
		panic("dispatch: nil scheduler or handler")
	}
	q := &Queue{
		pending: make([]atomic.Bool, n),
		tasks:   make([]Task, n),
		sched:   sched,
		handler: handler,
	}
	for id := range q.tasks {
		id := id
		q.tasks[id] = func() { q.Process(id) }
	}
	return q
}

// Request marks id pending and tries to schedule its processing. It never
// blocks and is safe to call from the edge-event goroutine. A request for an
// id that is already pending is coalesced into the outstanding one.
func (q *Queue) Request(id int) {
	q.check(id)
	q.requests.Add(1)

	if !q.pending[id].CompareAndSwap(false, true) {
		q.coalesced.Add(1)
		return
	}
	if !q.sched.TrySchedule(q.tasks[id]) {
		// Flag stays set; PollPending picks it up.
		q.fallbacks.Add(1)
	}
}

// Process clears the pending flag for id and runs the handler. It returns
// false, without calling the handler, if the flag was already clear.
func (q *Queue) Process(id int) bool {
	q.check(id)
	if !q.pending[id].CompareAndSwap(true, false) {
		return false
	}
	q.handler(id)
	return true
}

// PollPending processes every channel whose flag is still set and returns
// how many were processed.
func (q *Queue) PollPending() int {
	n := 0
	for id := range q.pending {
		if q.pending[id].Load() && q.Process(id) {
			n++
		}
	}
	return n
}

// Pending reports whether id has an outstanding request.
func (q *Queue) Pending(id int) bool {
	q.check(id)
	return q.pending[id].Load()
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Requests  uint64 // Request calls
	Coalesced uint64 // requests folded into an outstanding one
	Fallbacks uint64 // requests the scheduler rejected
}

// Stats returns the current counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Requests:  q.requests.Load(),
		Coalesced: q.coalesced.Load(),
		Fallbacks: q.fallbacks.Load(),
	}
}

func (q *Queue) check(id int) {
	if id < 0 || id >= len(q.pending) {
		panic(fmt.Sprintf("dispatch: channel id %d out of range [0,%d)", id, len(q.pending)))
	}
}
