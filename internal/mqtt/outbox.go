package mqtt

import (
	"log"
	"sync/atomic"

	"github.com/sweeney/stepper-keys/internal/logic"
)

// Outbox decouples the main loop from the broker. Emit and EmitSystem never
// block: events are queued for a publishing goroutine and dropped when the
// queue is full.
type Outbox struct {
	pub     Publisher
	events  chan logic.Event
	system  chan SystemEvent
	done    chan struct{}
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewOutbox starts a goroutine publishing queued events to pub. System events
// get their own queue of the same size.
func NewOutbox(pub Publisher, size int) *Outbox {
	o := &Outbox{
		pub:    pub,
		events: make(chan logic.Event, size),
		system: make(chan SystemEvent, size),
		done:   make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *Outbox) run() {
	defer close(o.done)
	events, system := o.events, o.system
	for events != nil || system != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := o.pub.Publish(ev); err != nil {
				o.failed.Add(1)
				log.Printf("mqtt publish error: %v", err)
			}
		case ev, ok := <-system:
			if !ok {
				system = nil
				continue
			}
			if err := o.pub.PublishSystem(ev); err != nil {
				o.failed.Add(1)
				log.Printf("failed to publish %s event: %v", ev.Event, err)
			} else {
				log.Printf("published %s event", ev.Event)
			}
		}
	}
}

// Emit queues ev without blocking.
func (o *Outbox) Emit(ev logic.Event) {
	select {
	case o.events <- ev:
	default:
		o.drop()
	}
}

// EmitSystem queues a lifecycle event without blocking.
func (o *Outbox) EmitSystem(ev SystemEvent) {
	select {
	case o.system <- ev:
	default:
		o.drop()
	}
}

func (o *Outbox) drop() {
	if o.dropped.Add(1) == 1 {
		log.Printf("mqtt: outbox full, dropping events")
	}
}

// Dropped returns the number of events dropped because a queue was full.
func (o *Outbox) Dropped() uint64 {
	return o.dropped.Load()
}

// Failed returns the number of events the publisher rejected.
func (o *Outbox) Failed() uint64 {
	return o.failed.Load()
}

// Close publishes everything still queued and stops the goroutine. Emit and
// EmitSystem must not be called after Close.
func (o *Outbox) Close() {
	close(o.events)
	close(o.system)
	<-o.done
}
