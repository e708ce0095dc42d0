// Package sim provides a simulated sensor adapter that publishes a sine
// wave at a fixed rate. It is the reference adapter used for development
// and for exercising the runtime without hardware.
package sim

import (
	"context"
	"math"
	"time"

	"github.com/banshee-data/sensorhub/internal/hub"
	"github.com/banshee-data/sensorhub/internal/timeutil"
)

// DefaultHz is the publish rate used when none is configured.
const DefaultHz = 20.0

// Adapter publishes {value: sin(t), phase: t} at the configured rate.
type Adapter struct {
	sensorID string
	kind     string
	hz       float64
	clock    timeutil.Clock
}

// New creates a simulated adapter. Non-positive rates fall back to
// DefaultHz; an empty kind defaults to "sim".
func New(sensorID, kind string, hz float64) *Adapter {
	if hz <= 0 {
		hz = DefaultHz
	}
	if kind == "" {
		kind = "sim"
	}
	return &Adapter{sensorID: sensorID, kind: kind, hz: hz, clock: timeutil.RealClock{}}
}

// SetClock replaces the adapter's time source. Tests use a
// timeutil.MockClock to drive the publish loop deterministically.
func (a *Adapter) SetClock(clock timeutil.Clock) { a.clock = clock }

func (a *Adapter) SensorID() string { return a.sensorID }
func (a *Adapter) Kind() string     { return a.kind }

// Run publishes one sample per period until the context is cancelled. The
// ticker period doubles as the cancellation poll interval.
func (a *Adapter) Run(ctx context.Context, buf *hub.SampleBuffer) error {
	period := time.Duration(float64(time.Second) / a.hz)
	ticker := a.clock.NewTicker(period)
	defer ticker.Stop()

	t := 0.0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			buf.Publish(map[string]any{
				"value": math.Sin(t),
				"phase": t,
			})
			t += period.Seconds()
		}
	}
}
