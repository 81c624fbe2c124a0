//go:build linux

package clock

import "golang.org/x/sys/unix"

// Real reads CLOCK_MONOTONIC, the same clock the GPIO character device uses
// to stamp edge events.
type Real struct{}

// NewReal returns the system monotonic clock.
func NewReal() Real {
	return Real{}
}

// NowUs returns CLOCK_MONOTONIC in microseconds.
func (Real) NowUs() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// CLOCK_MONOTONIC is always available on linux.
		panic("clock: " + err.Error())
	}
	return uint64(ts.Sec)*1_000_000 + uint64(ts.Nsec)/1_000
}

// NowMs returns CLOCK_MONOTONIC in milliseconds.
func (r Real) NowMs() uint64 {
	return r.NowUs() / 1_000
}
