package hub

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the process-wide catalog of registered sensors. It is an
// explicitly constructed instance owned by whoever owns the request
// layer; there is no package-level singleton.
type Registry struct {
	mu          sync.Mutex
	supervisors map[string]*Supervisor
}

// NewRegistry creates an empty sensor registry.
func NewRegistry() *Registry {
	return &Registry{supervisors: make(map[string]*Supervisor)}
}

// Register adds an adapter under its sensor id and starts its acquisition
// loop. An id already held by a live (non-stopped) supervisor is rejected;
// a stopped entry is replaced.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	if prev, ok := r.supervisors[a.SensorID()]; ok {
		if st := prev.State(); st == StateRunning || st == StateStopping {
			r.mu.Unlock()
			return fmt.Errorf("sensor %q is already registered and %s", a.SensorID(), st)
		}
	}
	sup := NewSupervisor(a)
	r.supervisors[a.SensorID()] = sup
	r.mu.Unlock()

	sup.Start()
	return nil
}

// Supervisor returns the supervisor for a sensor id, if registered.
func (r *Registry) Supervisor(sensorID string) (*Supervisor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sup, ok := r.supervisors[sensorID]
	return sup, ok
}

// List returns the registered sensors sorted by id.
func (r *Registry) List() []SensorInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]SensorInfo, 0, len(r.supervisors))
	for _, sup := range r.supervisors {
		out = append(out, SensorInfo{ID: sup.Adapter().SensorID(), Kind: sup.Adapter().Kind()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Latest returns the most recent sample for a sensor. The second return
// is false for an unknown sensor id or a sensor with no data yet.
func (r *Registry) Latest(sensorID string) (Sample, bool) {
	sup, ok := r.Supervisor(sensorID)
	if !ok {
		return Sample{}, false
	}
	return sup.Buffer().Latest()
}

// History returns up to limit recent samples for a sensor in publish
// order. An unknown sensor id returns nil.
func (r *Registry) History(sensorID string, limit int) []Sample {
	sup, ok := r.Supervisor(sensorID)
	if !ok {
		return nil
	}
	return sup.Buffer().History(limit)
}

// Ready reports whether any registered sensor has published a sample.
func (r *Registry) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sup := range r.supervisors {
		if _, ok := sup.Buffer().Latest(); ok {
			return true
		}
	}
	return false
}

// StopAll stops every supervised adapter. Used during shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	sups := make([]*Supervisor, 0, len(r.supervisors))
	for _, sup := range r.supervisors {
		sups = append(sups, sup)
	}
	r.mu.Unlock()

	for _, sup := range sups {
		sup.Stop()
	}
}
