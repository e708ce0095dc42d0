// Package capture provides the adapter used for camera-style sensors. The
// vendor capture stack (V4L2, OpenCV, proprietary SDKs) stays outside the
// runtime; it is consumed only through the Source interface, which hands
// the adapter one opaque frame per grab.
package capture

import (
	"context"
	"time"

	"github.com/banshee-data/sensorhub/internal/hub"
	"github.com/banshee-data/sensorhub/internal/monitoring"
	"github.com/banshee-data/sensorhub/internal/timeutil"
)

// Source produces frames for a capture adapter. Grab blocks for at most
// one frame interval and returns the next frame payload; ok is false when
// no frame is available yet. Close releases the device.
type Source interface {
	Grab() (data any, ok bool, err error)
	Close() error
}

// Adapter polls a Source at the configured rate and publishes each
// grabbed frame.
type Adapter struct {
	sensorID string
	kind     string
	hz       float64
	source   Source
	ringSize int
	clock    timeutil.Clock
}

// New creates a capture adapter over the given source. kind is typically
// "camera"; ringSize below one uses the hub default.
func New(sensorID, kind string, hz float64, ringSize int, src Source) *Adapter {
	if hz <= 0 {
		hz = 30.0
	}
	if kind == "" {
		kind = "camera"
	}
	return &Adapter{sensorID: sensorID, kind: kind, hz: hz, source: src, ringSize: ringSize, clock: timeutil.RealClock{}}
}

// SetClock replaces the adapter's time source.
func (a *Adapter) SetClock(clock timeutil.Clock) { a.clock = clock }

func (a *Adapter) SensorID() string { return a.sensorID }
func (a *Adapter) Kind() string     { return a.kind }

// RingSize implements hub.RingSizer when a capacity was configured.
func (a *Adapter) RingSize() int {
	if a.ringSize < 1 {
		return hub.DefaultRingSize
	}
	return a.ringSize
}

// Run grabs one frame per tick and publishes it. Grab errors are
// transient: they are logged and the loop continues on the next tick.
func (a *Adapter) Run(ctx context.Context, buf *hub.SampleBuffer) error {
	defer a.source.Close()

	ticker := a.clock.NewTicker(time.Duration(float64(time.Second) / a.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			data, ok, err := a.source.Grab()
			if err != nil {
				monitoring.Logf("[capture] %s grab failed: %v", a.sensorID, err)
				continue
			}
			if !ok {
				continue
			}
			buf.Publish(data)
		}
	}
}
