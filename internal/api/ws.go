package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/sensorhub/internal/hub"
	"github.com/banshee-data/sensorhub/internal/monitoring"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The hub is a single-tenant LAN service; origin filtering belongs to
	// whatever fronts it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// sessionRequest is one client message on the /ws session.
type sessionRequest struct {
	Action   string `json:"action"`
	SensorID string `json:"sensor_id"`
}

// session implements the pull-based subscription channel: clients
// subscribe to sensor ids and poll for the latest sample of each.
func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("[api] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	subscriptions := make(map[string]bool)
	for {
		var msg sessionRequest
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Action {
		case "subscribe":
			if _, ok := s.registry.Supervisor(msg.SensorID); ok {
				subscriptions[msg.SensorID] = true
				err = conn.WriteJSON(map[string]string{"type": "subscribed", "sensor_id": msg.SensorID})
			} else {
				err = conn.WriteJSON(map[string]string{"type": "error", "error": "unknown sensor " + msg.SensorID})
			}
		case "poll":
			data := make(map[string]hub.Sample)
			for id := range subscriptions {
				if sample, ok := s.registry.Latest(id); ok {
					data[id] = sample
				}
			}
			err = conn.WriteJSON(map[string]any{"type": "poll-result", "data": data})
		default:
			err = conn.WriteJSON(map[string]string{"type": "error", "error": "unknown action"})
		}
		if err != nil {
			return
		}
	}
}

// wsSink pushes broadcast frames onto one websocket connection. A write
// failure surfaces to the fan-out, which prunes the sink.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Push(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// frameStream subscribes a websocket client to the bridge's frame
// broadcast. Inbound messages are drained as keepalives; the connection
// leaves the live set on disconnect or on the first failed push.
func (s *Server) frameStream(w http.ResponseWriter, r *http.Request) {
	b := s.requireBridge(w)
	if b == nil {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("[api] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	id := b.Fanout().Subscribe(&wsSink{conn: conn})
	defer b.Fanout().Unsubscribe(id)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
