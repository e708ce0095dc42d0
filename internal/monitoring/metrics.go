package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SamplesPublished counts samples published into per-sensor ring buffers.
	SamplesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sensorhub_samples_published_total",
		Help: "Samples published into sensor ring buffers.",
	}, []string{"sensor_id"})

	// AdapterCrashes counts acquisition loops that exited via panic recovery.
	AdapterCrashes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sensorhub_adapter_crashes_total",
		Help: "Adapter acquisition loops terminated by a recovered panic.",
	}, []string{"sensor_id"})

	// BridgeFrames counts NDJSON records classified as frames.
	BridgeFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sensorhub_bridge_frames_total",
		Help: "Bridge records classified as frames and broadcast.",
	})

	// BridgeStats counts NDJSON records routed to the stat/log ring.
	BridgeStats = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sensorhub_bridge_stats_total",
		Help: "Bridge records routed to the stat/log ring.",
	})

	// BroadcastSubscribers tracks the current live subscriber count.
	BroadcastSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sensorhub_broadcast_subscribers",
		Help: "Currently connected broadcast subscribers.",
	})

	// BroadcastEvictions counts subscribers pruned after a failed push.
	BroadcastEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sensorhub_broadcast_evictions_total",
		Help: "Subscribers removed after a failed frame push.",
	})
)
