package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/sensorhub/internal/bridge"
)

// AttachDebugRoutes attaches admin debugging endpoints under /debug/.
// These routes are accessible only over localhost/via Tailscale and are
// not publicly accessible.
func (s *Server) AttachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleSilentFunc("sensors", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		out := map[string]any{"sensors": s.registry.List()}
		if s.bridge != nil {
			out["bridge"] = s.bridge.Info()
		}
		json.NewEncoder(w).Encode(out)
	})

	// Live tail of classified frames as Server-Sent Events, for watching a
	// bridge from a browser without a websocket client.
	debug.HandleSilentFunc("frame-tail", func(w http.ResponseWriter, r *http.Request) {
		if s.bridge == nil {
			http.Error(w, "lidar bridge is not initialized", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		sink := bridge.NewChanSink(32)
		id := s.bridge.Fanout().Subscribe(sink)
		defer s.bridge.Fanout().Unsubscribe(id)
		defer sink.Close()

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case payload, ok := <-sink.C:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
