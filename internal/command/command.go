// Package command parses the text commands accepted on the serial console,
// the MQTT command topic and the HTTP command endpoint.
//
//	steps <n>     queue n units (signed)
//	deg <n>       queue n degrees (signed)
//	stop          cancel everything pending
//	servo <deg>   set the positional servo angle
//	speed <pct>   set the continuous servo speed, -100..100
package command

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
)

// Kind identifies a command.
type Kind string

const (
	Steps  Kind = "steps"
	Degree Kind = "deg"
	Stop   Kind = "stop"
	Servo  Kind = "servo"
	Speed  Kind = "speed"
)

// Command is one parsed command.
type Command struct {
	Kind  Kind
	Units int64   // steps
	Speed int     // speed
	Value float64 // deg, servo
}

// ErrEmpty is returned for blank input.
var ErrEmpty = errors.New("empty command")

// Parse parses one command line. Keywords are case-insensitive.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, ErrEmpty
	}

	kind := Kind(strings.ToLower(fields[0]))
	switch kind {
	case Stop:
		if len(fields) != 1 {
			return Command{}, fmt.Errorf("stop takes no argument")
		}
		return Command{Kind: Stop}, nil
	case Steps, Degree, Servo, Speed:
	default:
		return Command{}, fmt.Errorf("unknown command %q", fields[0])
	}

	if len(fields) != 2 {
		return Command{}, fmt.Errorf("%s needs exactly one argument", kind)
	}

	switch kind {
	case Steps:
		n, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return Command{}, fmt.Errorf("%s: bad integer %q", kind, fields[1])
		}
		return Command{Kind: kind, Units: n}, nil
	case Speed:
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return Command{}, fmt.Errorf("%s: bad integer %q", kind, fields[1])
		}
		return Command{Kind: kind, Speed: n}, nil
	}

	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Command{}, fmt.Errorf("%s: bad number %q", kind, fields[1])
	}
	return Command{Kind: kind, Value: v}, nil
}

// String formats c in the grammar accepted by Parse.
func (c Command) String() string {
	switch c.Kind {
	case Stop:
		return string(Stop)
	case Steps:
		return fmt.Sprintf("%s %d", c.Kind, c.Units)
	case Speed:
		return fmt.Sprintf("%s %d", c.Kind, c.Speed)
	default:
		return fmt.Sprintf("%s %g", c.Kind, c.Value)
	}
}

// Target receives parsed commands.
type Target interface {
	QueueCommand(units int64) int64
	QueueAngle(degrees float64) int64
	Stop() int64
	SetServoAngle(degrees float64) error
	SetServoSpeed(speed int) error
}

// Apply runs c against t and returns a one-line result for logs and replies.
func Apply(t Target, c Command) (string, error) {
	switch c.Kind {
	case Steps:
		applied := t.QueueCommand(c.Units)
		return fmt.Sprintf("queued %+d units", applied), nil
	case Degree:
		applied := t.QueueAngle(c.Value)
		return fmt.Sprintf("queued %+d units for %g deg", applied, c.Value), nil
	case Stop:
		cancelled := t.Stop()
		return fmt.Sprintf("cancelled %+d units", cancelled), nil
	case Servo:
		if err := t.SetServoAngle(c.Value); err != nil {
			return "", err
		}
		return fmt.Sprintf("servo angle %g", c.Value), nil
	case Speed:
		if err := t.SetServoSpeed(c.Speed); err != nil {
			return "", err
		}
		return fmt.Sprintf("servo speed %d", c.Speed), nil
	default:
		return "", fmt.Errorf("unknown command %q", c.Kind)
	}
}

// Handle parses and applies one line from source and returns the reply sent
// back to the caller. Blank lines return an empty reply.
func Handle(t Target, source, line string) string {
	c, err := Parse(line)
	if errors.Is(err, ErrEmpty) {
		return ""
	}
	if err != nil {
		log.Printf("%s: %v", source, err)
		return "error: " + err.Error()
	}
	msg, err := Apply(t, c)
	if err != nil {
		log.Printf("%s: %s: %v", source, c, err)
		return "error: " + err.Error()
	}
	log.Printf("%s: %s: %s", source, c, msg)
	return "ok: " + msg
}
