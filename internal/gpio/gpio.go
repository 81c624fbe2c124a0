// Package gpio provides digital input, output and edge-event access with
// hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
//
// Levels are raw electrical levels (true = high). Active-low wiring is
// handled by the debounce layer, not here.
package gpio

// Input reads one digital line.
type Input interface {
	Read() (bool, error)
}

// Output drives one digital line.
type Output interface {
	Write(level bool) error
}

// Pull selects the input bias.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Edge selects which transitions generate events.
type Edge int

const (
	EdgeRising Edge = iota + 1
	EdgeFalling
	EdgeBoth
)

// EdgeEvent is one transition reported by the hardware.
type EdgeEvent struct {
	Offset    int
	Rising    bool
	Timestamp uint64 // CLOCK_MONOTONIC, microseconds
}

// Handler receives edge events. It runs on the event goroutine, concurrently
// with the main loop, and must not block.
type Handler func(EdgeEvent)

// InterruptSource requests input lines that report edges.
type InterruptSource interface {
	// Watch requests offset as an input and delivers the selected edges to h.
	// The returned Input reads the same line.
	Watch(offset int, pull Pull, edge Edge, h Handler) (Input, error)
}

// Chip is a GPIO controller.
type Chip interface {
	InterruptSource

	// Input requests offset as a plain input.
	Input(offset int, pull Pull) (Input, error)

	// Output requests offset as an output driven to initial.
	Output(offset int, initial bool) (Output, error)

	// Close releases all requested lines.
	Close() error
}

// DefaultChip is the GPIO chip used on a Raspberry Pi.
const DefaultChip = "gpiochip0"
