package bridge

import "sync"

// recordRing is a fixed-capacity ring of decoded NDJSON records. The
// ingestion loop is the only writer; the query surface reads snapshots.
type recordRing struct {
	mu       sync.Mutex
	entries  []map[string]any
	capacity int
	head     int
	size     int
}

func newRecordRing(capacity int) *recordRing {
	if capacity < 1 {
		capacity = 1
	}
	return &recordRing{
		entries:  make([]map[string]any, capacity),
		capacity: capacity,
	}
}

func (r *recordRing) append(rec map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.head] = rec
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

func (r *recordRing) latest() (map[string]any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.size == 0 {
		return nil, false
	}
	idx := (r.head - 1 + r.capacity) % r.capacity
	return r.entries[idx], true
}

// recent returns up to n of the most recent records, newest last.
func (r *recordRing) recent(n int) []map[string]any {
	if n <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > r.size {
		n = r.size
	}
	if n == 0 {
		return nil
	}
	out := make([]map[string]any, n)
	for i := 0; i < n; i++ {
		idx := (r.head - n + i + r.capacity) % r.capacity
		out[i] = r.entries[idx]
	}
	return out
}

func (r *recordRing) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
