package gpio

import (
	"fmt"
	"sync"
)

// FakeInput is a test double whose level is set by the test.
// Safe for concurrent use.
type FakeInput struct {
	mu    sync.Mutex
	level bool
	reads int

	// ReadError, if set, will be returned by Read().
	ReadError error
}

// NewFakeInput creates a FakeInput at the given level.
func NewFakeInput(level bool) *FakeInput {
	return &FakeInput{level: level}
}

// Read returns the current level.
func (f *FakeInput) Read() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.ReadError != nil {
		return false, f.ReadError
	}
	return f.level, nil
}

// Set changes the level returned by Read.
func (f *FakeInput) Set(level bool) {
	f.mu.Lock()
	f.level = level
	f.mu.Unlock()
}

// SetError changes the error returned by Read.
func (f *FakeInput) SetError(err error) {
	f.mu.Lock()
	f.ReadError = err
	f.mu.Unlock()
}

// Reads returns the number of Read calls.
func (f *FakeInput) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// FakeOutput records every level written.
type FakeOutput struct {
	mu      sync.Mutex
	level   bool
	history []bool

	// WriteError, if set, will be returned by Write().
	WriteError error
}

// NewFakeOutput creates a FakeOutput at the given level.
func NewFakeOutput(level bool) *FakeOutput {
	return &FakeOutput{level: level}
}

// Write records level.
func (f *FakeOutput) Write(level bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.level = level
	f.history = append(f.history, level)
	return nil
}

// Level returns the last written level.
func (f *FakeOutput) Level() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level
}

// History returns a copy of all written levels.
func (f *FakeOutput) History() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.history...)
}

// FakeChip hands out fake lines keyed by offset and lets tests fire edges.
type FakeChip struct {
	mu       sync.Mutex
	inputs   map[int]*FakeInput
	outputs  map[int]*FakeOutput
	handlers map[int]watch

	// Levels sets the initial level of inputs requested later.
	Levels map[int]bool

	// Closed tracks if Close was called.
	Closed bool
}

type watch struct {
	edge    Edge
	handler Handler
}

// NewFakeChip creates an empty FakeChip.
func NewFakeChip() *FakeChip {
	return &FakeChip{
		inputs:   make(map[int]*FakeInput),
		outputs:  make(map[int]*FakeOutput),
		handlers: make(map[int]watch),
		Levels:   make(map[int]bool),
	}
}

// Input returns the FakeInput for offset, creating it on first use.
func (c *FakeChip) Input(offset int, pull Pull) (Input, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputLocked(offset), nil
}

// Watch registers h for offset and returns its FakeInput.
func (c *FakeChip) Watch(offset int, pull Pull, edge Edge, h Handler) (Input, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.handlers[offset]; ok {
		return nil, fmt.Errorf("offset %d already watched", offset)
	}
	c.handlers[offset] = watch{edge: edge, handler: h}
	return c.inputLocked(offset), nil
}

// Output returns the FakeOutput for offset, creating it on first use.
func (c *FakeChip) Output(offset int, initial bool) (Output, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.outputs[offset]
	if !ok {
		o = NewFakeOutput(initial)
		c.outputs[offset] = o
	}
	return o, nil
}

// Close marks the chip as closed.
func (c *FakeChip) Close() error {
	c.mu.Lock()
	c.Closed = true
	c.mu.Unlock()
	return nil
}

// FakeInput returns the input for offset, or nil if never requested.
func (c *FakeChip) FakeInput(offset int) *FakeInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputs[offset]
}

// FakeOutput returns the output for offset, or nil if never requested.
func (c *FakeChip) FakeOutput(offset int) *FakeOutput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputs[offset]
}

// Fire sets the input level for offset and, if the watch selects that edge,
// calls the handler synchronously on the caller's goroutine.
func (c *FakeChip) Fire(offset int, rising bool, ts uint64) {
	c.mu.Lock()
	in := c.inputLocked(offset)
	w, ok := c.handlers[offset]
	c.mu.Unlock()

	in.Set(rising)
	if !ok {
		return
	}
	if w.edge == EdgeRising && !rising || w.edge == EdgeFalling && rising {
		return
	}
	w.handler(EdgeEvent{Offset: offset, Rising: rising, Timestamp: ts})
}

func (c *FakeChip) inputLocked(offset int) *FakeInput {
	in, ok := c.inputs[offset]
	if !ok {
		in = NewFakeInput(c.Levels[offset])
		c.inputs[offset] = in
	}
	return in
}
