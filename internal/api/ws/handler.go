package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/bridge"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/installer"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/shared/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in dev
	},
}

// Event is a server-to-client message
type Event struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub manages WebSocket connections and fans events out to all of them.
// It is also the bridge's host: notifications and tab requests from
// scripts are forwarded to connected UIs.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	metrics *monitoring.Metrics
	log     *logging.Logger
}

// NewHub creates a hub. metrics and log may be nil.
func NewHub(metrics *monitoring.Metrics, log *logging.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		metrics: metrics,
		log:     logging.OrNop(log).Component("ws"),
	}
}

// HandleConnection handles WebSocket upgrade and messages
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.register(cl) {
		conn.Close()
		return
	}
	defer h.unregister(cl)

	go h.writePump(cl)
	h.enqueue(cl, Event{Type: "system", Message: "connected"})

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg types.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
		h.recordMessage("in", msg.Type)

		switch msg.Type {
		case "ping":
			h.enqueue(cl, Event{Type: "pong"})
		default:
			h.enqueue(cl, Event{Type: "error", Message: "unknown message type"})
		}
	}
}

func (h *Hub) register(cl *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[cl] = struct{}{}
	if h.metrics != nil {
		h.metrics.IncWSConnections()
	}
	return true
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; !ok {
		return
	}
	delete(h.clients, cl)
	close(cl.send)
	if h.metrics != nil {
		h.metrics.DecWSConnections()
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case data, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) encode(ev Event) ([]byte, bool) {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().Unix()
	}
	data, err := sonic.Marshal(ev)
	if err != nil {
		h.log.Error("Failed to encode event", zap.String("type", ev.Type), zap.Error(err))
		return nil, false
	}
	return data, true
}

func (h *Hub) enqueue(cl *client, ev Event) {
	data, ok := h.encode(ev)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, live := h.clients[cl]; !live {
		return
	}
	select {
	case cl.send <- data:
		h.recordMessage("out", ev.Type)
	default:
	}
}

// Broadcast sends ev to every connected client. Clients whose buffer is
// full miss the event.
func (h *Hub) Broadcast(ev Event) int {
	data, ok := h.encode(ev)
	if !ok {
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for cl := range h.clients {
		select {
		case cl.send <- data:
			sent++
		default:
			h.log.Debug("Dropping event for slow client", zap.String("type", ev.Type))
		}
	}
	if sent > 0 {
		h.recordMessage("out", ev.Type)
	}
	return sent
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// InstallFinished broadcasts the outcome of an install attempt
func (h *Hub) InstallFinished(res installer.Result) {
	data := map[string]any{"outcome": res.Outcome.String()}
	if res.Script != nil {
		data["script_id"] = res.Script.ID
		data["name"] = res.Script.Name
		data["namespace"] = res.Script.Namespace
		data["version"] = res.Script.Version
	}
	if res.Err != nil {
		data["error"] = res.Err.Error()
	}
	h.Broadcast(Event{Type: "install", Data: data})
}

// Notify forwards a script notification to connected clients
func (h *Hub) Notify(_ context.Context, n bridge.Notice) error {
	h.Broadcast(Event{Type: "notification", Data: n})
	return nil
}

// OpenTab asks connected clients to open url
func (h *Hub) OpenTab(_ context.Context, url string, background bool) error {
	h.Broadcast(Event{Type: "open_tab", Data: map[string]any{"url": url, "background": background}})
	return nil
}

// Close disconnects every client and refuses new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for cl := range h.clients {
		delete(h.clients, cl)
		close(cl.send)
		if h.metrics != nil {
			h.metrics.DecWSConnections()
		}
	}
}

func (h *Hub) recordMessage(direction, msgType string) {
	if h.metrics != nil {
		h.metrics.RecordWSMessage(direction, msgType)
	}
}
