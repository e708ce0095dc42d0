package bridge

import (
	"errors"
	"sync"
	"testing"
)

// recordingSink collects pushed payloads; failing makes every push error.
type recordingSink struct {
	mu       sync.Mutex
	payloads [][]byte
	failing  bool
}

func (s *recordingSink) Push(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("write failed")
	}
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func TestFanoutSubscribeUnsubscribe(t *testing.T) {
	f := NewFanout()
	if f.Len() != 0 {
		t.Fatalf("new fanout has %d subscribers", f.Len())
	}

	id1 := f.Subscribe(&recordingSink{})
	id2 := f.Subscribe(&recordingSink{})
	if id1 == id2 {
		t.Error("subscriber ids collide")
	}
	if f.Len() != 2 {
		t.Errorf("Len = %d, want 2", f.Len())
	}

	f.Unsubscribe(id1)
	if f.Len() != 1 {
		t.Errorf("Len after unsubscribe = %d, want 1", f.Len())
	}

	// Unknown ids are ignored.
	f.Unsubscribe("no-such-id")
	if f.Len() != 1 {
		t.Errorf("Len = %d, want 1", f.Len())
	}
}

func TestFanoutBroadcastDelivers(t *testing.T) {
	f := NewFanout()
	a := &recordingSink{}
	b := &recordingSink{}
	f.Subscribe(a)
	f.Subscribe(b)

	f.Broadcast([]byte("frame-1"))
	f.Broadcast([]byte("frame-2"))

	if a.count() != 2 || b.count() != 2 {
		t.Errorf("deliveries = %d/%d, want 2/2", a.count(), b.count())
	}
}

func TestFanoutPrunesFailingSink(t *testing.T) {
	f := NewFanout()
	healthy := &recordingSink{}
	broken := &recordingSink{failing: true}
	f.Subscribe(healthy)
	f.Subscribe(broken)

	f.Broadcast([]byte("frame-1"))

	// The healthy sink got the frame, the broken one was removed.
	if healthy.count() != 1 {
		t.Errorf("healthy sink received %d, want 1", healthy.count())
	}
	if f.Len() != 1 {
		t.Errorf("Len after prune = %d, want 1", f.Len())
	}

	// A later broadcast reaches only the survivor.
	f.Broadcast([]byte("frame-2"))
	if healthy.count() != 2 {
		t.Errorf("healthy sink received %d, want 2", healthy.count())
	}
}

func TestFanoutBroadcastEmptySet(t *testing.T) {
	f := NewFanout()
	f.Broadcast([]byte("nobody home")) // must not panic or block
}

func TestChanSinkEvictsWhenFull(t *testing.T) {
	f := NewFanout()
	sink := NewChanSink(2)
	f.Subscribe(sink)

	// Fill the buffer without draining: the third push fails and the
	// sink is evicted.
	f.Broadcast([]byte("1"))
	f.Broadcast([]byte("2"))
	f.Broadcast([]byte("3"))

	if f.Len() != 0 {
		t.Errorf("Len = %d, want 0 after slow-consumer eviction", f.Len())
	}
	if got := len(sink.C); got != 2 {
		t.Errorf("sink buffered %d frames, want 2", got)
	}
}

func TestChanSinkClosed(t *testing.T) {
	sink := NewChanSink(1)
	sink.Close()
	if err := sink.Push([]byte("x")); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("Push on closed sink = %v, want ErrSinkClosed", err)
	}
	sink.Close() // second close must not panic
}
