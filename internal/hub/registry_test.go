package hub

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestRegistryRegisterAndList(t *testing.T) {
	r := NewRegistry()
	defer r.StopAll()

	if err := r.Register(&testAdapter{id: "b"}); err != nil {
		t.Fatalf("Register(b) failed: %v", err)
	}
	if err := r.Register(&testAdapter{id: "a"}); err != nil {
		t.Fatalf("Register(a) failed: %v", err)
	}

	got := r.List()
	want := []SensorInfo{{ID: "a", Kind: "test"}, {ID: "b", Kind: "test"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistryRejectsDuplicateLiveID(t *testing.T) {
	r := NewRegistry()
	defer r.StopAll()

	if err := r.Register(&testAdapter{id: "dup"}); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := r.Register(&testAdapter{id: "dup"}); err == nil {
		t.Fatal("second Register of live id succeeded, want error")
	}
}

func TestRegistryReplacesStoppedID(t *testing.T) {
	r := NewRegistry()
	defer r.StopAll()

	if err := r.Register(&testAdapter{id: "s"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	sup, _ := r.Supervisor("s")
	sup.Stop()

	if err := r.Register(&testAdapter{id: "s"}); err != nil {
		t.Fatalf("re-Register of stopped id failed: %v", err)
	}
}

func TestRegistryUnknownSensor(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Latest("nope"); ok {
		t.Error("Latest of unknown sensor reported data")
	}
	if hist := r.History("nope", 10); hist != nil {
		t.Errorf("History of unknown sensor = %v, want nil", hist)
	}
	if r.Ready() {
		t.Error("empty registry reported ready")
	}
}

func TestRegistryLatestBeforeFirstSample(t *testing.T) {
	r := NewRegistry()
	defer r.StopAll()

	// An adapter that never publishes: wedge Run on the context only.
	a := &testAdapter{id: "quiet", ignoreCtx: false}
	sup := NewSupervisor(a)
	r.mu.Lock()
	r.supervisors["quiet"] = sup
	r.mu.Unlock()

	if _, ok := r.Latest("quiet"); ok {
		t.Error("Latest reported data for sensor with no samples")
	}
}

func TestRegistryServesPublishedSamples(t *testing.T) {
	r := NewRegistry()
	defer r.StopAll()

	if err := r.Register(&testAdapter{id: "t1"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		_, ok := r.Latest("t1")
		return ok
	})

	if !r.Ready() {
		t.Error("registry not ready after a sample was published")
	}

	hist := r.History("t1", 3)
	if len(hist) == 0 {
		t.Fatal("History empty after publishes")
	}
	// The adapter keeps publishing, so latest is at least as new as the
	// history tail read just before it.
	latest, _ := r.Latest("t1")
	if tail := hist[len(hist)-1]; latest.TS.Before(tail.TS) {
		t.Errorf("latest %v is older than history tail %v", latest.TS, tail.TS)
	}
}

func TestRegistryStopAll(t *testing.T) {
	r := NewRegistry()
	a1 := &testAdapter{id: "x"}
	a2 := &testAdapter{id: "y"}
	r.Register(a1)
	r.Register(a2)

	r.StopAll()

	waitFor(t, time.Second, func() bool {
		return a1.liveLoops.Load() == 0 && a2.liveLoops.Load() == 0
	})
	for _, id := range []string{"x", "y"} {
		sup, _ := r.Supervisor(id)
		if sup.State() != StateStopped {
			t.Errorf("%s state = %v, want stopped", id, sup.State())
		}
	}
}
