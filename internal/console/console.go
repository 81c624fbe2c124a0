// Package console accepts text commands on a serial port, one per line, and
// answers each with a single reply line.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"go.bug.st/serial"

	"github.com/sweeney/stepper-keys/internal/command"
)

const (
	maxLine     = 128
	readTimeout = 200 * time.Millisecond
	retryDelay  = time.Second
)

// Run serves the console on port until ctx is cancelled, reopening the port
// after read errors (e.g. a USB adapter being unplugged).
func Run(ctx context.Context, port string, baud int, t command.Target) {
	for ctx.Err() == nil {
		err := openAndServe(ctx, port, baud, t)
		if ctx.Err() != nil {
			return
		}
		log.Printf("console %s: %v; retrying", port, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
	}
}

func openAndServe(ctx context.Context, port string, baud int, t command.Target) error {
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return fmt.Errorf("open %s: %w", port, err)
	}
	defer p.Close()

	// Reads return empty on timeout so ctx is checked regularly.
	if err := p.SetReadTimeout(readTimeout); err != nil {
		return fmt.Errorf("set read timeout: %w", err)
	}
	log.Printf("console: listening on %s at %d baud", port, baud)
	return Serve(ctx, p, t)
}

// Serve reads command lines from rw and writes one reply per line. Lines end
// in CR, LF or both; overlong lines are truncated. It returns nil on EOF or
// when ctx is cancelled.
func Serve(ctx context.Context, rw io.ReadWriter, t command.Target) error {
	buf := make([]byte, 64)
	line := make([]byte, 0, maxLine)

	for ctx.Err() == nil {
		n, err := rw.Read(buf)
		for _, b := range buf[:n] {
			if b != '\n' && b != '\r' {
				if len(line) < maxLine {
					line = append(line, b)
				}
				continue
			}
			if len(line) == 0 {
				continue
			}
			reply := command.Handle(t, "console", string(line))
			line = line[:0]
			if reply == "" {
				continue
			}
			if _, werr := io.WriteString(rw, reply+"\r\n"); werr != nil {
				return fmt.Errorf("write reply: %w", werr)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
	}
	return nil
}
