package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Loopback-only surface; origin checks add nothing here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsManager pushes status snapshots to connected observers.
type wsManager struct {
	log        *slog.Logger
	clients    map[*wsClient]bool
	clientsMu  sync.Mutex
	broadcastC chan statusSnapshot
	register   chan *wsClient
	unregister chan *wsClient
	shutdown   chan struct{}
	once       sync.Once
}

type wsClient struct {
	mgr  *wsManager
	conn *websocket.Conn
	send chan []byte
}

func newWSManager(log *slog.Logger) *wsManager {
	return &wsManager{
		log:        log,
		clients:    make(map[*wsClient]bool),
		broadcastC: make(chan statusSnapshot, 16),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		shutdown:   make(chan struct{}),
	}
}

func (m *wsManager) run() {
	for {
		select {
		case client := <-m.register:
			m.clientsMu.Lock()
			m.clients[client] = true
			m.clientsMu.Unlock()

		case client := <-m.unregister:
			m.clientsMu.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				close(client.send)
			}
			m.clientsMu.Unlock()

		case snap := <-m.broadcastC:
			m.broadcastSnapshot(snap)

		case <-m.shutdown:
			m.clientsMu.Lock()
			for client := range m.clients {
				close(client.send)
				delete(m.clients, client)
			}
			m.clientsMu.Unlock()
			return
		}
	}
}

func (m *wsManager) broadcast(snap statusSnapshot) {
	select {
	case m.broadcastC <- snap:
	default:
		// A saturated hub drops intermediate snapshots; the latest
		// state always lands via /api/status.
	}
}

func (m *wsManager) broadcastSnapshot(snap statusSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		m.log.Warn("marshal status", "err", err)
		return
	}
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	for client := range m.clients {
		select {
		case client.send <- data:
		default:
			close(client.send)
			delete(m.clients, client)
		}
	}
}

func (m *wsManager) stop() {
	m.once.Do(func() { close(m.shutdown) })
}

func (m *wsManager) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Warn("websocket upgrade", "err", err)
		return
	}
	client := &wsClient{mgr: m, conn: conn, send: make(chan []byte, 16)}
	m.register <- client
	go client.writePump()
	go client.readPump()
}

func (c *wsClient) readPump() {
	defer func() {
		c.mgr.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		// Observers never send; drain so pings and closes process.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
