// Package hub implements the sensor adapter runtime: per-sensor ring
// buffers, the adapter contract, supervised acquisition loops, and the
// registry that serves pull-based queries to the request layer.
package hub

import (
	"sync"
	"time"

	"github.com/banshee-data/sensorhub/internal/monitoring"
)

// Sample is one timestamped, sensor-tagged unit of published data. The
// timestamp is assigned by the runtime at publish time, not by the
// producer, so per-sensor ordering follows publish order.
type Sample struct {
	SensorID string    `json:"sensor_id"`
	TS       time.Time `json:"ts"`
	Data     any       `json:"data"`
}

// DefaultRingSize is the ring capacity used when a sensor does not
// configure its own.
const DefaultRingSize = 1024

// SampleBuffer is a fixed-capacity ring of the most recent samples for one
// sensor, plus a pointer to the single latest sample. It has exactly one
// writer (the owning adapter's acquisition loop) and any number of
// concurrent readers.
type SampleBuffer struct {
	mu       sync.Mutex
	sensorID string
	samples  []Sample
	capacity int
	head     int // next write position
	size     int
	latest   *Sample
	onSample func(Sample)
}

// NewSampleBuffer creates a ring buffer for the given sensor. Capacities
// below one fall back to DefaultRingSize.
func NewSampleBuffer(sensorID string, capacity int) *SampleBuffer {
	if capacity < 1 {
		capacity = DefaultRingSize
	}
	return &SampleBuffer{
		sensorID: sensorID,
		samples:  make([]Sample, capacity),
		capacity: capacity,
	}
}

// SetOnSample registers a hook invoked after every publish. A panicking
// hook is recovered and never aborts the publish.
func (b *SampleBuffer) SetOnSample(f func(Sample)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onSample = f
}

// Publish wraps data with the sensor id and current UTC time, updates the
// latest pointer and appends to the ring, evicting the oldest entry at
// capacity. It always succeeds.
func (b *SampleBuffer) Publish(data any) {
	s := Sample{
		SensorID: b.sensorID,
		TS:       time.Now().UTC(),
		Data:     data,
	}

	b.mu.Lock()
	b.samples[b.head] = s
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
	b.latest = &s
	hook := b.onSample
	b.mu.Unlock()

	monitoring.SamplesPublished.WithLabelValues(b.sensorID).Inc()

	if hook != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					monitoring.Logf("[SampleBuffer] on-sample hook panicked for sensor=%s: %v", b.sensorID, r)
				}
			}()
			hook(s)
		}()
	}
}

// Latest returns the most recently published sample, or false if nothing
// has been published yet.
func (b *SampleBuffer) Latest() (Sample, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.latest == nil {
		return Sample{}, false
	}
	return *b.latest, true
}

// History returns up to limit of the most recent samples, oldest first, in
// the order they were published. A non-positive limit returns nil.
func (b *SampleBuffer) History(limit int) []Sample {
	if limit <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n := limit
	if n > b.size {
		n = b.size
	}
	if n == 0 {
		return nil
	}

	out := make([]Sample, n)
	for i := 0; i < n; i++ {
		idx := (b.head - n + i + b.capacity) % b.capacity
		out[i] = b.samples[idx]
	}
	return out
}

// Len returns the number of samples currently held in the ring.
func (b *SampleBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Capacity returns the fixed ring capacity.
func (b *SampleBuffer) Capacity() int {
	return b.capacity
}
