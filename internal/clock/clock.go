// Package clock provides the monotonic timebase shared by the edge handlers
// and the main loop. Timestamps are plain microsecond counters so they can be
// stored in atomics and compared with a wrap-safe difference.
package clock

// Clock supplies monotonic timestamps.
type Clock interface {
	// NowUs returns the current time in microseconds.
	NowUs() uint64

	// NowMs returns the current time in milliseconds.
	NowMs() uint64
}

// Diff returns a-b as a signed value. Unsigned subtraction followed by a
// signed reinterpretation stays correct across counter wraparound as long as
// the true distance fits in 63 bits.
func Diff(a, b uint64) int64 {
	return int64(a - b)
}

// Elapsed reports whether at least interval has passed from since to now.
// A timestamp that appears to be in the future is treated as not elapsed.
func Elapsed(now, since, interval uint64) bool {
	d := Diff(now, since)
	return d >= 0 && uint64(d) >= interval
}
