package hub

import (
	"context"
)

// Adapter is the unit responsible for acquiring data from one sensor and
// publishing it into its ring buffer. One running instance exists per
// physical or logical sensor.
//
// Run is the acquisition loop. It must check ctx.Done() at least once per
// sampling period so that Stop latency stays bounded, acquire one unit of
// data per iteration, and call buf.Publish. Run returns when the context
// is cancelled or the underlying source is exhausted; any error is logged
// at the supervisor boundary.
type Adapter interface {
	SensorID() string
	Kind() string
	Run(ctx context.Context, buf *SampleBuffer) error
}

// RingSizer is optionally implemented by adapters that need a ring
// capacity other than DefaultRingSize.
type RingSizer interface {
	RingSize() int
}

// SensorInfo identifies one registered sensor to the request layer.
type SensorInfo struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}
