//go:build !linux

package gpio

import "errors"

// RealChip is not available on non-Linux platforms.
type RealChip struct{}

// NewRealChip returns an error on non-Linux platforms.
func NewRealChip(name string) (*RealChip, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Input is not implemented on non-Linux platforms.
func (c *RealChip) Input(offset int, pull Pull) (Input, error) {
	return nil, errors.New("gpio: not supported")
}

// Watch is not implemented on non-Linux platforms.
func (c *RealChip) Watch(offset int, pull Pull, edge Edge, h Handler) (Input, error) {
	return nil, errors.New("gpio: not supported")
}

// Output is not implemented on non-Linux platforms.
func (c *RealChip) Output(offset int, initial bool) (Output, error) {
	return nil, errors.New("gpio: not supported")
}

// Close is a no-op on non-Linux platforms.
func (c *RealChip) Close() error {
	return nil
}
