package bridge

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/sensorhub/internal/monitoring"
)

// ErrSinkFull is returned by a ChanSink whose buffer is full. The fan-out
// treats it like any other push failure: the sink is pruned.
var ErrSinkFull = errors.New("subscriber channel full")

// ErrSinkClosed is returned by a closed ChanSink.
var ErrSinkClosed = errors.New("subscriber channel closed")

// Sink receives broadcast frames. Push must not block indefinitely; a
// sink that cannot accept a frame returns an error and is removed from
// the live set.
type Sink interface {
	Push(payload []byte) error
}

// Fanout maintains the dynamic set of live subscribers for one bridge and
// pushes each classified frame to all of them, pruning dead subscribers
// inline. There is no per-subscriber queueing here: a slow consumer fails
// a push and is evicted, which keeps the hot ingestion loop insulated
// from subscriber latency.
type Fanout struct {
	mu    sync.Mutex
	sinks map[string]Sink
}

// NewFanout creates an empty fan-out.
func NewFanout() *Fanout {
	return &Fanout{sinks: make(map[string]Sink)}
}

// Subscribe adds a sink to the live set and returns its subscriber id.
func (f *Fanout) Subscribe(s Sink) string {
	id := uuid.NewString()
	f.mu.Lock()
	f.sinks[id] = s
	n := len(f.sinks)
	f.mu.Unlock()
	monitoring.BroadcastSubscribers.Set(float64(n))
	return id
}

// Unsubscribe removes a sink from the live set. Unknown ids are ignored.
func (f *Fanout) Unsubscribe(id string) {
	f.mu.Lock()
	delete(f.sinks, id)
	n := len(f.sinks)
	f.mu.Unlock()
	monitoring.BroadcastSubscribers.Set(float64(n))
}

// Len returns the current subscriber count.
func (f *Fanout) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sinks)
}

// Broadcast pushes payload to every live sink. A failed push marks that
// sink dead; dead sinks are removed after the pass. One sink's failure
// never aborts delivery to the others. An empty set is a fast no-op.
func (f *Fanout) Broadcast(payload []byte) {
	f.mu.Lock()
	if len(f.sinks) == 0 {
		f.mu.Unlock()
		return
	}
	snapshot := make(map[string]Sink, len(f.sinks))
	for id, s := range f.sinks {
		snapshot[id] = s
	}
	f.mu.Unlock()

	var dead []string
	for id, s := range snapshot {
		if err := s.Push(payload); err != nil {
			monitoring.Logf("[Fanout] dropping subscriber %s: %v", id, err)
			dead = append(dead, id)
		}
	}
	if len(dead) == 0 {
		return
	}

	f.mu.Lock()
	for _, id := range dead {
		delete(f.sinks, id)
	}
	n := len(f.sinks)
	f.mu.Unlock()

	monitoring.BroadcastEvictions.Add(float64(len(dead)))
	monitoring.BroadcastSubscribers.Set(float64(n))
}

// ChanSink adapts a channel consumer (SSE tails, tests) to the Sink
// interface. Push never blocks: a full buffer is a push failure, so a
// consumer that stops draining gets evicted instead of stalling the
// broadcast pass.
type ChanSink struct {
	C      chan []byte
	mu     sync.Mutex
	closed bool
}

// NewChanSink creates a sink buffering up to size frames.
func NewChanSink(size int) *ChanSink {
	if size < 1 {
		size = 1
	}
	return &ChanSink{C: make(chan []byte, size)}
}

// Push enqueues the payload without blocking.
func (c *ChanSink) Push(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSinkClosed
	}
	select {
	case c.C <- payload:
		return nil
	default:
		return ErrSinkFull
	}
}

// Close closes the channel. Further pushes fail.
func (c *ChanSink) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.C)
	}
}
