package logic

import (
	"math"
	"sync/atomic"
)

// DefaultLimit bounds the pending units when no limit is configured.
// 1<<20 half-steps is 256 revolutions of a 4096 step/rev motor.
const DefaultLimit int64 = 1 << 20

// MaxLimit is the largest accepted bound. Keeping the limit at half the int64
// range means the applied delta, at most 2*limit, always fits.
const MaxLimit int64 = math.MaxInt64 / 2

// Accumulator is a signed count of actuation units still to be performed.
// Positive values step forward, negative values step in reverse.
//
// Enqueue is lock-free and safe from any goroutine. The value is clamped to
// [-limit, limit] so a burst of commands can never overflow.
type Accumulator struct {
	units atomic.Int64
	limit int64
}

// NewAccumulator creates an accumulator with the given bound. A limit <= 0
// selects DefaultLimit.
func NewAccumulator(limit int64) *Accumulator {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return &Accumulator{limit: limit}
}

// Enqueue adds delta and returns the change actually applied, which differs
// from delta only when the result was clamped. Enqueue(0) changes nothing.
func (a *Accumulator) Enqueue(delta int64) int64 {
	if delta == 0 {
		return 0
	}
	for {
		cur := a.units.Load()
		// Compare against the bound before adding so cur+delta is only
		// computed when it stays inside [-limit, limit].
		var next int64
		switch {
		case delta > 0 && cur > a.limit-delta:
			next = a.limit
		case delta < 0 && cur < -a.limit-delta:
			next = -a.limit
		default:
			next = cur + delta
		}
		if next == cur {
			return 0
		}
		if a.units.CompareAndSwap(cur, next) {
			return next - cur
		}
	}
}

// ConsumeOne moves the count one unit toward zero and returns the direction
// of the consumed unit. It returns false when nothing is pending.
func (a *Accumulator) ConsumeOne() (Direction, bool) {
	for {
		cur := a.units.Load()
		if cur == 0 {
			return 0, false
		}
		dir := Forward
		if cur < 0 {
			dir = Reverse
		}
		if a.units.CompareAndSwap(cur, cur-int64(dir)) {
			return dir, true
		}
	}
}

// Cancel zeroes the count and returns the delta that did so. It is the
// only way to stop queued work early.
func (a *Accumulator) Cancel() int64 {
	for {
		cur := a.units.Load()
		if cur == 0 {
			return 0
		}
		if a.units.CompareAndSwap(cur, 0) {
			return -cur
		}
	}
}

// Remaining returns a snapshot of the pending units.
func (a *Accumulator) Remaining() int64 {
	return a.units.Load()
}

// Limit returns the clamp bound.
func (a *Accumulator) Limit() int64 {
	return a.limit
}
