package hub

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/sensorhub/internal/monitoring"
)

// StopTimeout is how long Stop waits for an acquisition loop to observe
// cancellation before proceeding without it.
const StopTimeout = 2 * time.Second

// SupervisorState tracks the lifecycle of one supervised adapter.
type SupervisorState int

const (
	StateCreated SupervisorState = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s SupervisorState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Supervisor owns the execution context of one Adapter: it spawns the
// acquisition loop on its own goroutine, isolates crashes, and provides
// idempotent start/stop with a bounded stop wait.
//
// A loop that never observes cancellation is detached rather than killed;
// only real OS subprocesses (see the bridge package) get kill escalation.
type Supervisor struct {
	adapter Adapter
	buf     *SampleBuffer

	mu     sync.Mutex
	state  SupervisorState
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSupervisor wraps an adapter with a freshly sized ring buffer.
func NewSupervisor(a Adapter) *Supervisor {
	size := DefaultRingSize
	if rs, ok := a.(RingSizer); ok {
		size = rs.RingSize()
	}
	return &Supervisor{
		adapter: a,
		buf:     NewSampleBuffer(a.SensorID(), size),
		state:   StateCreated,
	}
}

// Adapter returns the supervised adapter.
func (s *Supervisor) Adapter() Adapter { return s.adapter }

// Buffer returns the adapter's sample buffer. The buffer outlives the
// acquisition loop: after a crash or stop it retains whatever was
// published before.
func (s *Supervisor) Buffer() *SampleBuffer { return s.buf }

// State reports the current lifecycle state.
func (s *Supervisor) State() SupervisorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start spawns the acquisition loop. Calling Start while already running
// or mid-Stop is a no-op, so a stop/start cycle never leaves two live
// loops.
func (s *Supervisor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning || s.state == StateStopping {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.state = StateRunning

	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				monitoring.Logf("[Supervisor] %s adapter crashed: %v", s.adapter.SensorID(), r)
				monitoring.AdapterCrashes.WithLabelValues(s.adapter.SensorID()).Inc()
			}
			// A loop detached by a timed-out Stop may exit after a newer
			// loop has been started; only the current generation may move
			// the state machine.
			s.mu.Lock()
			if s.done == done {
				s.state = StateStopped
			}
			s.mu.Unlock()
		}()
		if err := s.adapter.Run(ctx, s.buf); err != nil && err != context.Canceled {
			monitoring.Logf("[Supervisor] %s adapter exited: %v", s.adapter.SensorID(), err)
		}
	}()
}

// Stop signals the acquisition loop to exit and waits up to StopTimeout
// for it to do so. An unresponsive loop is detached; the supervisor still
// transitions to Stopped. Stop is idempotent.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()

	select {
	case <-done:
	case <-time.After(StopTimeout):
		monitoring.Logf("[Supervisor] %s acquisition loop did not stop within %v; detaching", s.adapter.SensorID(), StopTimeout)
	}

	s.mu.Lock()
	if s.done == done {
		s.state = StateStopped
	}
	s.mu.Unlock()
}
