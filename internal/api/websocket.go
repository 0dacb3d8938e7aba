package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"grimm.is/pfw/internal/events"
	"grimm.is/pfw/internal/logging"
	"grimm.is/pfw/internal/metrics"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Enforce same-origin policy for WebSocket upgrades
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		// Allow localhost for development/proxying
		if strings.Contains(origin, "://localhost:") || strings.Contains(origin, "://127.0.0.1:") {
			return true
		}

		host := r.Host
		if rest, ok := strings.CutPrefix(origin, "http://"); ok {
			return rest == host
		}
		if rest, ok := strings.CutPrefix(origin, "https://"); ok {
			return rest == host
		}
		return false
	},
}

// wsClient represents a connected WebSocket client
type wsClient struct {
	conn   *websocket.Conn
	events <-chan events.Event
	done   chan struct{}
	once   sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// WSManager streams hub events to websocket clients. Every client has its
// own hub subscription; a client that falls behind loses events rather
// than stalling the API.
type WSManager struct {
	hub     *events.Hub
	logger  *logging.Logger
	metrics *metrics.Registry

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewWSManager creates a manager publishing from hub.
func NewWSManager(hub *events.Hub, logger *logging.Logger, reg *metrics.Registry) *WSManager {
	return &WSManager{
		hub:     hub,
		logger:  logger,
		metrics: reg,
		clients: make(map[*wsClient]struct{}),
	}
}

// Clients returns the number of connected clients.
func (m *WSManager) Clients() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

func (m *WSManager) register(c *wsClient) {
	m.mu.Lock()
	m.clients[c] = struct{}{}
	n := len(m.clients)
	m.mu.Unlock()
	m.metrics.WSClients.Set(float64(n))
}

func (m *WSManager) unregister(c *wsClient) {
	m.mu.Lock()
	delete(m.clients, c)
	n := len(m.clients)
	m.mu.Unlock()
	m.metrics.WSClients.Set(float64(n))
	m.hub.Unsubscribe(c.events)
	c.close()
}

// CloseAll disconnects every client.
func (m *WSManager) CloseAll() {
	m.mu.Lock()
	clients := make([]*wsClient, 0, len(m.clients))
	for c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.Unlock()

	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.close()
	}
}

// HandleRules upgrades the connection and streams rule events until the
// client goes away.
func (m *WSManager) HandleRules(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade failed", "error", err, "request_id", requestID(r))
		return
	}

	c := &wsClient{
		conn:   conn,
		events: m.hub.Subscribe(wsBuffer, events.RuleEventTypes...),
		done:   make(chan struct{}),
	}
	m.register(c)
	m.logger.Debug("websocket client connected", "client", getClientIP(r))

	go m.writePump(c)
	m.readPump(c)
}

// readPump discards client messages and notices disconnects.
func (m *WSManager) readPump(c *wsClient) {
	defer m.unregister(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump sends events and keepalive pings to the client
func (m *WSManager) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case e := <-c.events:
			msg, err := json.Marshal(e)
			if err != nil {
				m.logger.Error("websocket encode failed", "error", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
