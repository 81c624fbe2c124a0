//go:build !linux

package clock

import "time"

var epoch = time.Now()

// Real is backed by the Go runtime monotonic clock on non-Linux platforms.
type Real struct{}

// NewReal returns the process-relative monotonic clock.
func NewReal() Real {
	return Real{}
}

// NowUs returns microseconds since process start.
func (Real) NowUs() uint64 {
	return uint64(time.Since(epoch).Microseconds())
}

// NowMs returns milliseconds since process start.
func (Real) NowMs() uint64 {
	return uint64(time.Since(epoch).Milliseconds())
}
