package dispatch

// ChanScheduler is a bounded task queue drained by the main loop.
type ChanScheduler struct {
	tasks chan Task
}

// NewChanScheduler creates a scheduler holding at most capacity tasks.
// A capacity of zero rejects every task, leaving all work to the fallback poll.
func NewChanScheduler(capacity int) *ChanScheduler {
	return &ChanScheduler{tasks: make(chan Task, capacity)}
}

// TrySchedule queues task if there is room.
func (s *ChanScheduler) TrySchedule(task Task) bool {
	select {
	case s.tasks <- task:
		return true
	default:
		return false
	}
}

// RunPending runs the tasks queued at the time of the call and returns how
// many ran. Tasks scheduled while it runs wait for the next call, which keeps
// one loop iteration bounded.
func (s *ChanScheduler) RunPending() int {
	n := len(s.tasks)
	for i := 0; i < n; i++ {
		select {
		case task := <-s.tasks:
			task()
		default:
			return i
		}
	}
	return n
}

// Len returns the number of queued tasks.
func (s *ChanScheduler) Len() int {
	return len(s.tasks)
}

// RejectScheduler refuses every task. Useful to force the fallback path.
type RejectScheduler struct{}

// TrySchedule always returns false.
func (RejectScheduler) TrySchedule(Task) bool { return false }
