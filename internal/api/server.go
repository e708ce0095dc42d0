// Package api wires the sensorhub runtime to its HTTP and WebSocket
// consumers: registry queries, bridge control, health, and metrics.
package api

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/sensorhub/internal/bridge"
	"github.com/banshee-data/sensorhub/internal/httputil"
	"github.com/banshee-data/sensorhub/internal/hub"
	"github.com/banshee-data/sensorhub/internal/version"
)

// Server serves the request layer over one registry and, optionally, one
// ingestion bridge.
type Server struct {
	registry *hub.Registry
	bridge   *bridge.Bridge
}

// NewServer creates a Server. bridge may be nil when no bridge-backed
// sensor is configured; the /lidar routes then respond 503.
func NewServer(registry *hub.Registry, b *bridge.Bridge) *Server {
	return &Server{registry: registry, bridge: b}
}

// ServeMux returns the route table for the request layer.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /sensors", s.listSensors)
	mux.HandleFunc("GET /sensors/{id}/latest", s.latestSample)
	mux.HandleFunc("GET /sensors/{id}/history", s.sampleHistory)

	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /ready", s.ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /lidar/info", s.bridgeInfo)
	mux.HandleFunc("GET /lidar/config", s.bridgeConfig)
	mux.HandleFunc("POST /lidar/start", s.bridgeStart)
	mux.HandleFunc("POST /lidar/stop", s.bridgeStop)
	mux.HandleFunc("GET /lidar/points/latest", s.latestFrame)
	mux.HandleFunc("GET /lidar/points/recent", s.recentFrames)
	mux.HandleFunc("/lidar/ws", s.frameStream)

	mux.HandleFunc("/ws", s.session)

	return mux
}

func (s *Server) listSensors(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) latestSample(w http.ResponseWriter, r *http.Request) {
	sample, ok := s.registry.Latest(r.PathValue("id"))
	if !ok {
		httputil.NotFound(w, "sensor or sample not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sample)
}

func (s *Server) sampleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	id := r.PathValue("id")
	samples := s.registry.History(id, limit)
	if samples == nil {
		samples = []hub.Sample{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"sensor_id": id,
		"samples":   samples,
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ready": s.registry.Ready()})
}

// requireBridge answers 503 when no bridge is configured, mirroring the
// not-initialized behaviour of the control surface.
func (s *Server) requireBridge(w http.ResponseWriter) *bridge.Bridge {
	if s.bridge == nil {
		httputil.ServiceUnavailable(w, "lidar bridge is not initialized")
		return nil
	}
	return s.bridge
}

func (s *Server) bridgeInfo(w http.ResponseWriter, r *http.Request) {
	b := s.requireBridge(w)
	if b == nil {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b.Info())
}

func (s *Server) bridgeConfig(w http.ResponseWriter, r *http.Request) {
	b := s.requireBridge(w)
	if b == nil {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b.Config())
}

func (s *Server) bridgeStart(w http.ResponseWriter, r *http.Request) {
	b := s.requireBridge(w)
	if b == nil {
		return
	}
	if err := b.Start(); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true, "bridge_running": true})
}

func (s *Server) bridgeStop(w http.ResponseWriter, r *http.Request) {
	b := s.requireBridge(w)
	if b == nil {
		return
	}
	b.Stop()
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) latestFrame(w http.ResponseWriter, r *http.Request) {
	b := s.requireBridge(w)
	if b == nil {
		return
	}
	frame, ok := b.LatestFrame()
	if !ok {
		httputil.NotFound(w, "No frame yet")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, frame)
}

func (s *Server) recentFrames(w http.ResponseWriter, r *http.Request) {
	b := s.requireBridge(w)
	if b == nil {
		return
	}
	count := 10
	if raw := r.URL.Query().Get("count"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			count = n
		}
	}
	frames := b.RecentFrames(count)
	if frames == nil {
		frames = []map[string]any{}
	}
	httputil.WriteJSON(w, http.StatusOK, frames)
}
