package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/stepper-keys/internal/logic"
)

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	Topics   Topics
	Backlog  int // messages held while disconnected

	// OnCommand, if set, receives each payload on Topics.Command; a non-empty
	// return value is published to Topics.Reply. It runs on the paho client
	// goroutine and must not block.
	OnCommand func(line string) string

	// OnConnectionChange, if set, is called with the new connection state.
	OnConnectionChange func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	opts   Options

	mu      sync.Mutex
	backlog *backlog
}

// NewRealPublisher creates a publisher connected to the given broker. The
// broker is told to publish a retained SHUTDOWN/MQTT_DISCONNECT system event
// if the connection drops without a clean Close.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	p := &RealPublisher{
		opts:    opts,
		backlog: newBacklog(opts.Backlog),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(opts.Topics.System, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(co)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		// Stop the background retries.
		p.client.Disconnect(0)
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	log.Printf("mqtt: connected to %s", p.opts.Broker)
	if p.opts.OnCommand != nil {
		c.Subscribe(p.opts.Topics.Command, 1, p.handleCommand)
	}
	if p.opts.OnConnectionChange != nil {
		p.opts.OnConnectionChange(true)
	}

	p.mu.Lock()
	held := p.backlog.drain()
	p.mu.Unlock()
	if len(held) > 0 {
		log.Printf("mqtt: replaying %d messages", len(held))
	}
	for _, m := range held {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	log.Printf("mqtt: connection lost: %v", err)
	if p.opts.OnConnectionChange != nil {
		p.opts.OnConnectionChange(false)
	}
}

func (p *RealPublisher) handleCommand(c paho.Client, msg paho.Message) {
	reply := p.opts.OnCommand(string(msg.Payload()))
	if reply == "" {
		return
	}
	c.Publish(p.opts.Topics.Reply, 0, false, reply)
}

// publish sends now if connected, otherwise holds the message for replay.
func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.backlog.push(message{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Publish sends a controller event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.publish(p.opts.Topics.Events, 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	return p.publish(p.opts.Topics.System, 1, event.Retained, payload)
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
