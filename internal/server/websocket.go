package server

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/zap"

	"github.com/ogctl/ogctl/internal/controller"
	"github.com/ogctl/ogctl/internal/logging"
	"github.com/ogctl/ogctl/internal/poller"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Outgoing messages buffered per client before it is dropped
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Snapshot is one status update as sent to websocket clients.
type Snapshot struct {
	Type      string           `json:"type"`
	Seq       uint64           `json:"seq"`
	At        time.Time        `json:"at"`
	Vars      *controller.Vars `json:"vars,omitempty"`
	Door      string           `json:"door,omitempty"`
	Vehicle   string           `json:"vehicle,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorType string           `json:"error_type,omitempty"`
}

func newSnapshot(u poller.Update) *Snapshot {
	snap := &Snapshot{Type: "status", Seq: u.Seq, At: u.StartedAt.Add(u.Elapsed), Vars: u.Vars}
	if u.Vars != nil {
		snap.Door = u.Vars.DoorState()
		snap.Vehicle = u.Vars.VehicleState()
	}
	if u.Err != nil {
		snap.Error = controller.GetShortErrorMessage(u.Err)
		snap.ErrorType = errorType(u.Err)
	}
	return snap
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Hub tracks connected websocket clients.
type Hub struct {
	clients cmap.ConcurrentMap[string, *wsClient]
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: cmap.New[*wsClient]()}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	return h.clients.Count()
}

// Broadcast queues snap for every client. Clients whose buffer is full are
// disconnected.
func (h *Hub) Broadcast(snap *Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		logging.Error("Failed to marshal snapshot", zap.Error(err))
		return
	}
	for item := range h.clients.IterBuffered() {
		h.enqueue(item.Val, data)
	}
}

func (h *Hub) enqueue(c *wsClient, data []byte) {
	select {
	case c.send <- data:
	default:
		logging.Warn("Websocket client too slow, dropping", zap.String("client_id", c.id))
		h.remove(c)
	}
}

func (h *Hub) add(c *wsClient) {
	h.clients.Set(c.id, c)
	logging.Info("Websocket client connected", zap.String("client_id", c.id), zap.Int("clients", h.Count()))
}

func (h *Hub) remove(c *wsClient) {
	if _, ok := h.clients.Pop(c.id); ok {
		close(c.done)
		logging.Info("Websocket client disconnected", zap.String("client_id", c.id), zap.Int("clients", h.Count()))
	}
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	for _, c := range h.clients.Items() {
		h.remove(c)
	}
}

// serveWS upgrades the request and streams snapshots until the peer leaves.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Debug("Websocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}

	c := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	s.hub.add(c)

	if snap := s.Latest(); snap != nil {
		if data, err := json.Marshal(snap); err == nil {
			s.hub.enqueue(c, data)
		}
	}

	go s.writePump(c)
	s.readPump(c)
}

// readPump discards client messages and detects disconnects.
func (s *Server) readPump(c *wsClient) {
	defer s.hub.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug("Websocket read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
	}
}

func (s *Server) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.hub.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.hub.remove(c)
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// RecordSnapshot appends snap to a JSONL file. Failures are logged only.
func RecordSnapshot(path string, snap *Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		logging.Error("Failed to marshal snapshot", zap.Error(err))
		return
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logging.Error("Failed to open record file", zap.String("filename", path), zap.Error(err))
		return
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(data, '\n')); err != nil {
		logging.Error("Failed to write record file", zap.String("filename", path), zap.Error(err))
	}
}
