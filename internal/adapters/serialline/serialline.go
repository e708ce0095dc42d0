// Package serialline provides adapters for line-oriented serial sensors:
// IMUs emitting ASCII telemetry and GPS receivers emitting NMEA
// sentences. The serial port is abstracted behind a Porter interface so
// the acquisition loop can be tested without hardware.
package serialline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/sensorhub/internal/hub"
	"github.com/banshee-data/sensorhub/internal/monitoring"
)

// Porter is the minimal interface needed for a serial port. The
// abstraction enables unit testing without real serial hardware.
type Porter interface {
	io.Reader
	io.Closer
}

// Opener opens the serial device when the acquisition loop starts.
// Deferring the open to Run keeps construction resource-free.
type Opener func() (Porter, error)

// OpenSerial returns an Opener backed by a real serial port.
func OpenSerial(path string, baud int) Opener {
	return func() (Porter, error) {
		mode := &serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		port, err := serial.Open(path, mode)
		if err != nil {
			return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
		}
		return port, nil
	}
}

// Adapter reads lines from a serial device and publishes each non-blank
// line under the configured payload key ("imu_text" for IMUs, "nmea" for
// GPS receivers).
type Adapter struct {
	sensorID string
	kind     string
	field    string
	open     Opener
}

// NewIMU creates an adapter for a generic ASCII IMU.
func NewIMU(sensorID string, open Opener) *Adapter {
	return &Adapter{sensorID: sensorID, kind: "imu", field: "imu_text", open: open}
}

// NewGPS creates an adapter for an NMEA GPS receiver.
func NewGPS(sensorID string, open Opener) *Adapter {
	return &Adapter{sensorID: sensorID, kind: "gps", field: "nmea", open: open}
}

func (a *Adapter) SensorID() string { return a.sensorID }
func (a *Adapter) Kind() string     { return a.kind }

// Run opens the port, then publishes one sample per non-blank line until
// the context is cancelled. Reads happen on a side goroutine so the
// blocking scanner never delays cancellation.
func (a *Adapter) Run(ctx context.Context, buf *hub.SampleBuffer) error {
	port, err := a.open()
	if err != nil {
		return err
	}
	defer port.Close()

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	go func() {
		defer close(lineChan)
		scan := bufio.NewScanner(port)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErrChan:
			return err
		case line, ok := <-lineChan:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			buf.Publish(map[string]any{a.field: line})
		}
	}
}

// Reconnecting wraps the adapter so a supervisor drives ReconnectRun
// instead of Run: a dropped serial link is reopened with backoff rather
// than ending the acquisition loop.
func (a *Adapter) Reconnecting() hub.Adapter { return reconnectAdapter{a} }

type reconnectAdapter struct {
	*Adapter
}

func (r reconnectAdapter) Run(ctx context.Context, buf *hub.SampleBuffer) error {
	return r.ReconnectRun(ctx, buf)
}

// ReconnectRun wraps Run with retry-on-error for devices that drop their
// serial link. The retry delay doubles up to five seconds.
func (a *Adapter) ReconnectRun(ctx context.Context, buf *hub.SampleBuffer) error {
	backoff := time.Second
	for {
		err := a.Run(ctx, buf)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		monitoring.Logf("[serialline] %s read error: %v; reconnect in %v", a.sensorID, err, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 5*time.Second {
			backoff = 5 * time.Second
		}
	}
}
