// Command stepper-keys turns debounced key presses into stepper motor moves,
// with optional ultrasonic ranging, a servo, and MQTT/HTTP/serial control.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sweeney/stepper-keys/internal/clock"
	"github.com/sweeney/stepper-keys/internal/command"
	"github.com/sweeney/stepper-keys/internal/config"
	"github.com/sweeney/stepper-keys/internal/console"
	"github.com/sweeney/stepper-keys/internal/controller"
	"github.com/sweeney/stepper-keys/internal/gpio"
	"github.com/sweeney/stepper-keys/internal/logic"
	"github.com/sweeney/stepper-keys/internal/mqtt"
	"github.com/sweeney/stepper-keys/internal/servo"
	"github.com/sweeney/stepper-keys/internal/status"
	"github.com/sweeney/stepper-keys/internal/web"
)

// statusInterval is how often the main loop refreshes the status tracker.
const statusInterval = 100 * time.Millisecond

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults apply when empty)")
	chip := flag.String("chip", "", "GPIO chip name")
	debounce := flag.Duration("debounce", 0, "Key debounce window")
	stepDelay := flag.Duration("step-delay", 0, "Minimum interval between motor steps")
	selfTest := flag.Int64("self-test", 0, "Units to step forward and back at startup (0 keeps config)")
	broker := flag.String("broker", "", `MQTT broker address ("off" disables)`)
	httpAddr := flag.String("http", "", `HTTP status address ("off" disables)`)
	serialPort := flag.String("serial", "", `Serial console device ("off" disables)`)
	heartbeat := flag.Duration("heartbeat", 0, "Heartbeat log interval")
	printState := flag.Bool("print-state", false, "Print current key levels and exit")

	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("fatal: %v", err)
		}
	}

	// Flags override the file only when given.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "chip":
			cfg.Chip = *chip
		case "debounce":
			cfg.Keys.Debounce = *debounce
		case "step-delay":
			cfg.Stepper.StepDelay = *stepDelay
		case "self-test":
			cfg.Stepper.SelfTest = *selfTest
		case "broker":
			cfg.MQTT.Broker = offOr(*broker)
		case "http":
			cfg.HTTP = offOr(*httpAddr)
		case "serial":
			cfg.Serial.Port = offOr(*serialPort)
		case "heartbeat":
			cfg.Heartbeat = *heartbeat
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := run(cfg, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func offOr(v string) string {
	if v == "off" {
		return ""
	}
	return v
}

func run(cfg config.Config, printState bool) error {
	// Initialize GPIO
	chip, err := gpio.NewRealChip(cfg.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer chip.Close()

	// Print state mode
	if printState {
		line, err := keyLevels(chip, cfg.Keys)
		if err != nil {
			return err
		}
		fmt.Println(line)
		return nil
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), statusConfig(cfg))

	// Commands can arrive from MQTT before the controller exists.
	var ready atomic.Pointer[controller.Controller]
	handle := func(source string) func(string) string {
		return func(line string) string {
			c := ready.Load()
			if c == nil {
				return "error: starting"
			}
			return command.Handle(c, source, line)
		}
	}

	// Initialize MQTT
	var publisher mqtt.Publisher = offline{}
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:             cfg.MQTT.Broker,
			ClientID:           cfg.MQTT.ClientID,
			Topics:             mqtt.NewTopics(cfg.MQTT.Prefix),
			Backlog:            cfg.MQTT.Backlog,
			OnCommand:          handle("mqtt"),
			OnConnectionChange: tracker.SetMQTTConnected,
		})
		if err != nil {
			// Keys and motor still work without a broker.
			log.Printf("mqtt disabled: %v", err)
		} else {
			publisher, mqttStatus = p, p
			tracker.SetMQTTConnected(p.IsConnected())
		}
	}
	defer publisher.Close()

	out := mqtt.NewOutbox(publisher, cfg.MQTT.Outbox)
	defer out.Close()

	opts := []controller.Option{controller.WithEvents(out)}
	if cfg.Servo != nil {
		pwm, err := servo.NewPeriphPWM(cfg.Servo.Pin)
		if err != nil {
			return fmt.Errorf("init servo: %w", err)
		}
		defer pwm.Halt()
		opts = append(opts, controller.WithServo(pwm))
	}

	clk := clock.NewReal()
	ctrl, err := controller.New(chip, clk, cfg, opts...)
	if err != nil {
		return fmt.Errorf("init controller: %w", err)
	}
	ready.Store(ctrl)
	tracker.Update(ctrl.Machine(), ctrl.Counts())

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	out.EmitSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start HTTP status server
	if cfg.HTTP != "" {
		srv := web.New(cfg.HTTP, tracker, ctrl)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP)
	}

	// Start serial console
	if cfg.Serial.Port != "" {
		go console.Run(ctx, cfg.Serial.Port, cfg.Serial.Baud, ctrl)
	}

	log.Printf("started: keys=%v debounce=%v mode=%s step_delay=%v broker=%q loop=%v",
		cfg.Keys.Pins, cfg.Keys.Debounce, cfg.Stepper.Mode, cfg.Stepper.StepDelay, cfg.MQTT.Broker, cfg.Loop)

	ticker := time.NewTicker(cfg.Loop)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(ctrl, out, mqttStatus, tracker, clk, cfg.MQTT.Heartbeat, time.Now, ticker.C, sigCh)
}

// systemSink is the part of mqtt.Outbox the loop needs.
type systemSink interface {
	EmitSystem(mqtt.SystemEvent)
}

func runLoop(ctrl *controller.Controller, out systemSink, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, clk clock.Clock, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	lastStatus := startTime
	lastHeartbeat := startTime

	refresh := func() {
		tracker.Update(ctrl.Machine(), ctrl.Counts())
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			if err := ctrl.Release(); err != nil {
				log.Printf("release coils: %v", err)
			}
			if p := ctrl.Pending(); p != 0 {
				log.Printf("abandoning %+d pending units", p)
			}

			refresh()
			snap := tracker.Snapshot()
			out.EmitSystem(mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
			})
			return nil

		case <-tick:
			ctrl.Tick(clk.NowUs())

			t := now()
			if t.Sub(lastStatus) >= statusInterval {
				lastStatus = t
				refresh()
			}

			if heartbeat > 0 && t.Sub(lastHeartbeat) >= heartbeat {
				lastHeartbeat = t
				refresh()
				snap := tracker.Snapshot()
				out.EmitSystem(mqtt.SystemEvent{
					Timestamp:  t,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
				})
			}
		}
	}
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		LoopUs:      cfg.Loop.Microseconds(),
		DebounceMs:  cfg.Keys.Debounce.Milliseconds(),
		StepDelayUs: cfg.Stepper.StepDelay.Microseconds(),
		HeartbeatMs: cfg.MQTT.Heartbeat.Milliseconds(),
		StepsPerRev: cfg.Stepper.StepsPerRev,
		Mode:        string(cfg.Stepper.Mode),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP,
		Serial:      cfg.Serial.Port,
	}
}

// keyLevels reads every key once and formats it as "K0=released K1=pressed ...".
func keyLevels(chip gpio.Chip, keys config.KeysConfig) (string, error) {
	pull := gpio.PullDown
	if keys.ActiveLow {
		pull = gpio.PullUp
	}
	parts := make([]string, len(keys.Pins))
	for id, pin := range keys.Pins {
		in, err := chip.Input(pin, pull)
		if err != nil {
			return "", fmt.Errorf("key %d: %w", id, err)
		}
		level, err := in.Read()
		if err != nil {
			return "", fmt.Errorf("read key %d: %w", id, err)
		}
		state := "released"
		if level != keys.ActiveLow {
			state = "pressed"
		}
		parts[id] = fmt.Sprintf("K%d=%s", id, state)
	}
	return strings.Join(parts, " "), nil
}

// offline stands in for the broker when MQTT is disabled.
type offline struct{}

func (offline) Publish(logic.Event) error { return nil }

func (offline) PublishSystem(mqtt.SystemEvent) error { return nil }

func (offline) Close() error { return nil }
