package hub

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// testAdapter is a controllable adapter for supervisor tests. Its Run
// publishes on demand and counts concurrently live loops so tests can
// prove no double-spawn occurs.
type testAdapter struct {
	id            string
	liveLoops     atomic.Int32
	started       atomic.Int32
	panicMsg      string
	ignoreCtx     bool
	wedgeFirstRun bool
}

func (a *testAdapter) SensorID() string { return a.id }
func (a *testAdapter) Kind() string     { return "test" }

func (a *testAdapter) Run(ctx context.Context, buf *SampleBuffer) error {
	run := a.started.Add(1)
	a.liveLoops.Add(1)
	defer a.liveLoops.Add(-1)

	if a.panicMsg != "" {
		buf.Publish("before-crash")
		panic(a.panicMsg)
	}

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if a.ignoreCtx {
				// Simulate a wedged loop that never observes cancellation.
				time.Sleep(10 * time.Second)
			}
			if a.wedgeFirstRun && run == 1 {
				// Outlive the stop timeout, then exit while a successor
				// loop may already be running.
				time.Sleep(StopTimeout + time.Second)
			}
			return ctx.Err()
		case <-ticker.C:
			buf.Publish("tick")
		}
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSupervisorStartStop(t *testing.T) {
	a := &testAdapter{id: "t1"}
	sup := NewSupervisor(a)

	if sup.State() != StateCreated {
		t.Fatalf("initial state = %v, want created", sup.State())
	}

	sup.Start()
	if sup.State() != StateRunning {
		t.Fatalf("state after Start = %v, want running", sup.State())
	}

	waitFor(t, time.Second, func() bool {
		_, ok := sup.Buffer().Latest()
		return ok
	})

	sup.Stop()
	if sup.State() != StateStopped {
		t.Fatalf("state after Stop = %v, want stopped", sup.State())
	}
	waitFor(t, time.Second, func() bool { return a.liveLoops.Load() == 0 })
}

func TestSupervisorStartIsIdempotent(t *testing.T) {
	a := &testAdapter{id: "t1"}
	sup := NewSupervisor(a)
	defer sup.Stop()

	sup.Start()
	sup.Start()
	sup.Start()

	waitFor(t, time.Second, func() bool { return a.started.Load() >= 1 })
	if got := a.started.Load(); got != 1 {
		t.Errorf("Run spawned %d times, want 1", got)
	}
	if got := a.liveLoops.Load(); got != 1 {
		t.Errorf("%d concurrently live loops, want 1", got)
	}
}

func TestSupervisorStopIsIdempotent(t *testing.T) {
	a := &testAdapter{id: "t1"}
	sup := NewSupervisor(a)

	sup.Start()
	sup.Stop()
	sup.Stop() // must not block or panic

	if sup.State() != StateStopped {
		t.Fatalf("state = %v, want stopped", sup.State())
	}
}

func TestSupervisorRestartNeverDoubleSpawns(t *testing.T) {
	a := &testAdapter{id: "t1"}
	sup := NewSupervisor(a)

	for i := 0; i < 3; i++ {
		sup.Start()
		waitFor(t, time.Second, func() bool { return a.liveLoops.Load() == 1 })
		sup.Stop()
		waitFor(t, time.Second, func() bool { return a.liveLoops.Load() == 0 })
	}

	if got := a.started.Load(); got != 3 {
		t.Errorf("Run spawned %d times over 3 cycles, want 3", got)
	}
}

func TestSupervisorCrashIsolation(t *testing.T) {
	crashing := &testAdapter{id: "bad", panicMsg: "sensor exploded"}
	healthy := &testAdapter{id: "good"}

	supBad := NewSupervisor(crashing)
	supGood := NewSupervisor(healthy)
	defer supGood.Stop()

	supBad.Start()
	supGood.Start()

	// The crash degrades only its own supervisor to Stopped.
	waitFor(t, time.Second, func() bool { return supBad.State() == StateStopped })
	if supGood.State() != StateRunning {
		t.Errorf("healthy supervisor state = %v, want running", supGood.State())
	}

	// The buffer retains what was published before the crash.
	latest, ok := supBad.Buffer().Latest()
	if !ok || latest.Data != "before-crash" {
		t.Errorf("pre-crash sample lost: latest=%v ok=%v", latest, ok)
	}
}

func TestSupervisorDetachesUnresponsiveLoop(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the full stop timeout")
	}

	a := &testAdapter{id: "wedged", ignoreCtx: true}
	sup := NewSupervisor(a)
	sup.Start()

	start := time.Now()
	sup.Stop()
	elapsed := time.Since(start)

	if sup.State() != StateStopped {
		t.Errorf("state = %v, want stopped", sup.State())
	}
	if elapsed < StopTimeout {
		t.Errorf("Stop returned in %v, expected to wait the %v timeout", elapsed, StopTimeout)
	}
	if elapsed > StopTimeout+time.Second {
		t.Errorf("Stop took %v, expected to detach shortly after %v", elapsed, StopTimeout)
	}
}

func TestSupervisorControlsLoopStartedAfterDetach(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the full stop timeout")
	}

	a := &testAdapter{id: "t1", wedgeFirstRun: true}
	sup := NewSupervisor(a)

	sup.Start()
	waitFor(t, time.Second, func() bool { return a.liveLoops.Load() == 1 })

	// The first loop outlives the stop timeout, so Stop detaches it.
	sup.Stop()
	if sup.State() != StateStopped {
		t.Fatalf("state after detaching Stop = %v, want stopped", sup.State())
	}
	if a.liveLoops.Load() != 1 {
		t.Fatal("detached loop exited early; scenario void")
	}

	// Restart while the detached loop is still draining.
	sup.Start()
	waitFor(t, time.Second, func() bool { return a.liveLoops.Load() == 2 })

	// The detached loop's exit must not move the state machine: the
	// supervisor stays Running and keeps control of the new loop.
	waitFor(t, StopTimeout+3*time.Second, func() bool { return a.liveLoops.Load() == 1 })
	if got := sup.State(); got != StateRunning {
		t.Fatalf("state after detached loop exit = %v, want running", got)
	}

	sup.Stop()
	waitFor(t, time.Second, func() bool { return a.liveLoops.Load() == 0 })
	if sup.State() != StateStopped {
		t.Errorf("state after final Stop = %v, want stopped", sup.State())
	}
	if got := a.started.Load(); got != 2 {
		t.Errorf("Run spawned %d times, want 2", got)
	}
}

func TestSupervisorCrashedAdapterRestarts(t *testing.T) {
	a := &testAdapter{id: "t1", panicMsg: "boom"}
	sup := NewSupervisor(a)

	sup.Start()
	waitFor(t, time.Second, func() bool { return sup.State() == StateStopped })

	a.panicMsg = ""
	sup.Start()
	defer sup.Stop()
	waitFor(t, time.Second, func() bool { return sup.State() == StateRunning })
}
