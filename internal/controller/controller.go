// Package controller owns every piece of state shared between the GPIO edge
// handlers and the main loop. Edge handlers only touch atomics (pending
// flags, echo capture, the step accumulator); everything else runs inside
// Tick on the main loop goroutine.
package controller

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sweeney/stepper-keys/internal/clock"
	"github.com/sweeney/stepper-keys/internal/config"
	"github.com/sweeney/stepper-keys/internal/dispatch"
	"github.com/sweeney/stepper-keys/internal/gpio"
	"github.com/sweeney/stepper-keys/internal/logic"
	"github.com/sweeney/stepper-keys/internal/ranging"
	"github.com/sweeney/stepper-keys/internal/servo"
	"github.com/sweeney/stepper-keys/internal/status"
	"github.com/sweeney/stepper-keys/internal/stepper"
)

// ErrNoServo is returned by servo commands when no servo is configured.
var ErrNoServo = errors.New("no servo configured")

// EventSink receives events from the main loop. Emit must not block.
type EventSink interface {
	Emit(logic.Event)
}

type key struct {
	pin   int
	in    gpio.Input
	angle float64
}

type latch struct {
	key  int
	out  gpio.Output
	hold logic.LongPress
	on   bool
}

// Controller is the single owner of the key channels, the dispatch queue, the
// accumulator and the actuators.
type Controller struct {
	clk  clock.Clock
	wall func() time.Time
	sink EventSink

	keys     []key
	keyIndex map[int]int     // pin offset -> key id, read-only after New
	edgeAt   []atomic.Uint64 // kernel timestamp of the latest edge per key
	bank     *logic.Bank
	sched    *dispatch.ChanScheduler
	queue    *dispatch.Queue

	acc         *logic.Accumulator
	motor       *stepper.Motor
	stepsPerRev int
	dirInvert   bool
	selfTest    int64
	selfPhase   int

	latch  *latch
	ranger *ranging.Ranger
	servo  *servo.Servo

	heartbeat     uint64
	lastHeartbeat uint64
	lastFallbacks uint64

	now    uint64 // time of the current Tick
	counts logic.EventCounts
}

// Option customises a Controller.
type Option func(*options)

type options struct {
	sink EventSink
	pwm  servo.PWM
	wall func() time.Time
}

// WithEvents sends events to sink.
func WithEvents(sink EventSink) Option {
	return func(o *options) { o.sink = sink }
}

// WithServo attaches a servo on pwm.
func WithServo(pwm servo.PWM) Option {
	return func(o *options) { o.pwm = pwm }
}

// WithWallClock sets the source of event timestamps.
func WithWallClock(now func() time.Time) Option {
	return func(o *options) { o.wall = now }
}

type discard struct{}

func (discard) Emit(logic.Event) {}

// New requests every line described by cfg from chip and returns a controller
// ready for Tick. Edge handlers are live as soon as New returns; the work they
// request is processed by the first Tick.
func New(chip gpio.Chip, clk clock.Clock, cfg config.Config, opts ...Option) (*Controller, error) {
	o := options{sink: discard{}, wall: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	seq, err := stepper.ForMode(cfg.Stepper.Mode)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		clk:         clk,
		wall:        o.wall,
		sink:        o.sink,
		keyIndex:    make(map[int]int, len(cfg.Keys.Pins)),
		edgeAt:      make([]atomic.Uint64, len(cfg.Keys.Pins)),
		sched:       dispatch.NewChanScheduler(cfg.Dispatch.Capacity),
		acc:         logic.NewAccumulator(cfg.Stepper.MaxPending),
		stepsPerRev: cfg.Stepper.StepsPerRev,
		dirInvert:   cfg.Stepper.DirInvert,
		selfTest:    cfg.Stepper.SelfTest,
		heartbeat:   uint64(cfg.Heartbeat.Microseconds()),
	}
	for id, pin := range cfg.Keys.Pins {
		c.keyIndex[pin] = id
	}
	c.queue = dispatch.NewQueue(len(cfg.Keys.Pins), c.sched, c.process)

	pull := gpio.PullDown
	if cfg.Keys.ActiveLow {
		pull = gpio.PullUp
	}
	now := clk.NowUs()
	channels := make([]logic.Channel, len(cfg.Keys.Pins))
	for id, pin := range cfg.Keys.Pins {
		in, err := chip.Watch(pin, pull, gpio.EdgeBoth, c.onKeyEdge)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", id, err)
		}
		level, err := in.Read()
		if err != nil {
			return nil, fmt.Errorf("key %d initial level: %w", id, err)
		}
		c.keys = append(c.keys, key{pin: pin, in: in, angle: cfg.Keys.Angles[id]})
		channels[id] = logic.NewChannel(level, cfg.Keys.Debounce, cfg.Keys.ActiveLow, now)
	}
	c.bank = logic.NewBank(channels...)

	coils := make([]gpio.Output, len(cfg.Stepper.Pins))
	for i, pin := range cfg.Stepper.Pins {
		if coils[i], err = chip.Output(pin, false); err != nil {
			return nil, fmt.Errorf("coil %d: %w", i, err)
		}
	}
	c.motor = stepper.NewMotor(coils, c.acc, stepper.Config{
		Sequence:        seq,
		MinInterval:     cfg.Stepper.StepDelay,
		ReleaseWhenIdle: cfg.Stepper.ReleaseWhenIdle,
	})

	if l := cfg.Latch; l != nil {
		out, err := chip.Output(l.Pin, false)
		if err != nil {
			return nil, fmt.Errorf("latch: %w", err)
		}
		c.latch = &latch{key: l.Key, out: out, hold: logic.NewLongPress(l.LongPress)}
	}

	if r := cfg.Ranging; r != nil {
		trig, err := chip.Output(r.TrigPin, false)
		if err != nil {
			return nil, fmt.Errorf("ranging trigger: %w", err)
		}
		c.ranger = ranging.New(trig, ranging.Config{Period: r.Period, PulseWidth: r.PulseWidth})
		if _, err := chip.Watch(r.EchoPin, gpio.PullNone, gpio.EdgeBoth, c.ranger.OnEcho); err != nil {
			return nil, fmt.Errorf("ranging echo: %w", err)
		}
	}

	if o.pwm != nil {
		c.servo = servo.New(o.pwm, servo.DefaultCalibration)
		if cfg.Servo != nil {
			c.servo.SetAngle(cfg.Servo.Initial)
		}
	}

	if c.selfTest > 0 {
		log.Printf("self test: %+d then %+d units", c.selfTest, -c.selfTest)
		c.acc.Enqueue(c.selfTest)
		c.selfPhase = 1
	}

	return c, nil
}

// onKeyEdge is the single edge handler for every key line. It runs on the
// event goroutine, records when the edge happened and marks the key pending.
func (c *Controller) onKeyEdge(ev gpio.EdgeEvent) {
	id, ok := c.keyIndex[ev.Offset]
	if !ok {
		return
	}
	c.edgeAt[id].Store(ev.Timestamp)
	c.queue.Request(id)
}

// process is the bottom half for a key: re-read the line and feed the
// debounce channel, timed from the edge rather than from this tick.
func (c *Controller) process(id int) {
	at := c.edgeAt[id].Load()
	if at == 0 || clock.Diff(c.now, at) < 0 {
		at = c.now
	}
	c.sample(id, at)
}

func (c *Controller) sample(id int, now uint64) {
	level, err := c.keys[id].in.Read()
	if err != nil {
		log.Printf("key %d read error: %v", id, err)
		return
	}
	ch := c.bank.At(id)
	if !ch.Observe(level, now) {
		return
	}
	edge, ok := ch.ConsumeTransition()
	if !ok {
		return
	}
	c.react(id, edge)
}

func (c *Controller) react(id int, edge logic.Edge) {
	if !edge.Pressed {
		c.counts.Releases++
		c.emit(logic.EventKeyRelease, id, 0)
		return
	}
	c.counts.Presses++
	angle := c.keys[id].angle
	applied := c.QueueAngle(angle)
	log.Printf("key %d pressed: %+g deg -> %+d units (remaining %+d)", id, angle, applied, c.acc.Remaining())
	c.emit(logic.EventKeyPress, id, applied)
}

// Tick runs one main loop iteration. It never blocks.
func (c *Controller) Tick(now uint64) {
	c.now = now

	c.sched.RunPending()
	c.queue.PollPending()

	for id := 0; id < c.bank.Len(); id++ {
		if c.bank.At(id).Settling() {
			c.sample(id, now)
		}
	}

	if fb := c.queue.Stats().Fallbacks; fb != c.lastFallbacks {
		log.Printf("dispatch: scheduler full, %d requests served by fallback poll", fb-c.lastFallbacks)
		c.lastFallbacks = fb
	}

	c.tickLatch(now)
	c.tickMotor(now)

	if c.ranger != nil {
		if err := c.ranger.Tick(now); err != nil {
			log.Printf("ranging: %v", err)
		}
	}
	if c.servo != nil {
		if err := c.servo.Tick(); err != nil {
			log.Printf("servo: %v", err)
		}
	}

	c.tickHeartbeat(now)
}

func (c *Controller) tickLatch(now uint64) {
	if c.latch == nil || c.latch.on {
		return
	}
	if !c.latch.hold.Update(c.bank.At(c.latch.key).Pressed(), now) {
		return
	}
	if err := c.latch.out.Write(true); err != nil {
		log.Printf("latch write error: %v", err)
		return
	}
	c.latch.on = true
	c.counts.LongPresses++
	log.Printf("key %d long press: latch on", c.latch.key)
	c.emit(logic.EventLongPress, c.latch.key, 0)
}

func (c *Controller) tickMotor(now uint64) {
	res, err := c.motor.Tick(now)
	if err != nil {
		log.Printf("stepper: %v", err)
	}
	if res.Started {
		c.counts.Starts++
		c.emit(logic.EventMotorStart, -1, 0)
	}
	if !res.Stopped {
		return
	}
	c.counts.Idles++
	log.Printf("stepper idle at index %d", c.motor.Index())
	c.emit(logic.EventMotorIdle, -1, 0)

	if c.selfPhase == 1 {
		c.acc.Enqueue(-c.selfTest)
		c.selfPhase = 2
	} else if c.selfPhase == 2 {
		log.Printf("self test complete")
		c.selfPhase = 0
	}
}

func (c *Controller) tickHeartbeat(now uint64) {
	if c.heartbeat == 0 || !clock.Elapsed(now, c.lastHeartbeat, c.heartbeat) {
		return
	}
	c.lastHeartbeat = now

	var b strings.Builder
	for id := 0; id < c.bank.Len(); id++ {
		if c.bank.At(id).Raw() {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	log.Printf("heartbeat: rem=%+d idx=%d keys=%s", c.acc.Remaining(), c.motor.Index(), b.String())
}

func (c *Controller) emit(t logic.EventType, id int, units int64) {
	c.sink.Emit(logic.Event{
		Timestamp: c.wall(),
		Type:      t,
		Key:       id,
		Units:     units,
		Remaining: c.acc.Remaining(),
	})
}

// QueueCommand enqueues units and returns the delta actually applied after
// clamping. Safe from any goroutine.
func (c *Controller) QueueCommand(units int64) int64 {
	applied := c.acc.Enqueue(units)
	if applied != units {
		log.Printf("command %+d clamped to %+d (limit %d)", units, applied, c.acc.Limit())
	}
	return applied
}

// QueueAngle converts degrees to units and enqueues them. Safe from any
// goroutine.
func (c *Controller) QueueAngle(degrees float64) int64 {
	return c.QueueCommand(stepper.AngleToUnits(degrees, c.stepsPerRev, c.dirInvert))
}

// Stop cancels all pending units and returns the cancelling delta. Safe
// from any goroutine.
func (c *Controller) Stop() int64 {
	return c.acc.Cancel()
}

// Pending returns the units still to be performed. Safe from any goroutine.
func (c *Controller) Pending() int64 {
	return c.acc.Remaining()
}

// LastMeasurement returns the most recent echo duration. Safe from any
// goroutine.
func (c *Controller) LastMeasurement() (time.Duration, bool) {
	if c.ranger == nil {
		return 0, false
	}
	return c.ranger.Last()
}

// SetServoAngle requests a servo angle, applied on the next Tick. Safe from
// any goroutine.
func (c *Controller) SetServoAngle(degrees float64) error {
	if c.servo == nil {
		return ErrNoServo
	}
	c.servo.SetAngle(degrees)
	return nil
}

// SetServoSpeed requests a continuous servo speed, applied on the next Tick.
// Safe from any goroutine.
func (c *Controller) SetServoSpeed(speed int) error {
	if c.servo == nil {
		return ErrNoServo
	}
	c.servo.SetSpeed(speed)
	return nil
}

// Release de-energizes the coils. Main loop only.
func (c *Controller) Release() error {
	return c.motor.Release()
}

// Counts returns the events emitted since startup. Main loop only.
func (c *Controller) Counts() logic.EventCounts {
	return c.counts
}

// Machine returns the state for the status tracker. Main loop only.
func (c *Controller) Machine() status.Machine {
	m := status.Machine{
		Motor:     string(c.motor.State()),
		Remaining: c.acc.Remaining(),
		Index:     c.motor.Index(),
		Steps:     c.motor.Steps(),
		Keys:      make([]bool, c.bank.Len()),
		Latched:   c.latch != nil && c.latch.on,
	}
	for id := range m.Keys {
		m.Keys[id] = c.bank.At(id).Pressed()
	}
	if c.ranger != nil {
		m.Ranging = true
		m.Echo, m.EchoValid = c.ranger.Last()
		m.DistanceCm, _ = c.ranger.LastDistance()
	}
	if c.servo != nil {
		m.Servo = true
		m.ServoPulse = c.servo.Pulse()
	}
	st := c.queue.Stats()
	m.Dispatch = status.DispatchStats{
		Requests:  st.Requests,
		Coalesced: st.Coalesced,
		Fallbacks: st.Fallbacks,
	}
	return m
}
