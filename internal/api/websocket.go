package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"buttonbox/internal/dispatch"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The server only listens on localhost
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client request types
const (
	requestSend    = "send"
	requestProfile = "profile"
)

// WSManager handles WebSocket connections and broadcasting
type WSManager struct {
	server     *Server
	clients    map[*WebSocketClient]bool
	clientsMu  sync.RWMutex
	broadcast  chan dispatch.Event
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	shutdown   chan struct{}
	stopOnce   sync.Once
}

// WebSocketClient is one connected event feed subscriber
type WebSocketClient struct {
	manager *WSManager
	conn    *websocket.Conn
	send    chan []byte
	ip      string
}

type clientRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newWSManager(s *Server) *WSManager {
	return &WSManager{
		server:     s,
		clients:    make(map[*WebSocketClient]bool),
		broadcast:  make(chan dispatch.Event, 256),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		shutdown:   make(chan struct{}),
	}
}

func (m *WSManager) start() {
	for {
		select {
		case client := <-m.register:
			m.clientsMu.Lock()
			m.clients[client] = true
			n := len(m.clients)
			m.clientsMu.Unlock()
			log.Debug().Str("remote", client.ip).Int("clients", n).Msg("WS: client registered")

		case client := <-m.unregister:
			m.clientsMu.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				close(client.send)
			}
			n := len(m.clients)
			m.clientsMu.Unlock()
			log.Debug().Str("remote", client.ip).Int("clients", n).Msg("WS: client unregistered")

		case ev := <-m.broadcast:
			m.broadcastEvent(ev)

		case <-m.shutdown:
			m.clientsMu.Lock()
			for client := range m.clients {
				delete(m.clients, client)
				close(client.send)
			}
			m.clientsMu.Unlock()
			return
		}
	}
}

func (m *WSManager) stop() {
	m.stopOnce.Do(func() { close(m.shutdown) })
}

// Broadcast queues an event for every client. Events are dropped when the hub falls behind.
func (m *WSManager) Broadcast(ev dispatch.Event) {
	select {
	case m.broadcast <- ev:
	default:
		log.Debug().Str("type", ev.Type).Msg("WS: broadcast queue full, dropping event")
	}
}

func (m *WSManager) broadcastEvent(ev dispatch.Event) {
	jsonMsg, err := json.Marshal(ev)
	if err != nil {
		log.Warn().Err(err).Msg("WS: failed to marshal event")
		return
	}

	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	for client := range m.clients {
		select {
		case client.send <- jsonMsg:
		default:
			close(client.send)
			delete(m.clients, client)
		}
	}
}

func (m *WSManager) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WS: failed to upgrade connection")
		return
	}

	client := &WebSocketClient{
		manager: m,
		conn:    conn,
		send:    make(chan []byte, 256),
		ip:      c.Request.RemoteAddr,
	}

	select {
	case m.register <- client:
	case <-m.shutdown:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump pumps messages from the websocket connection to the hub.
func (c *WebSocketClient) readPump() {
	defer func() {
		select {
		case c.manager.unregister <- c:
		case <-c.manager.shutdown:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Msg("WS: read error")
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(50 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage accepts serial monitor lines and profile selections from the client
func (c *WebSocketClient) handleMessage(data []byte) {
	var req clientRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Debug().Err(err).Msg("WS: invalid message format")
		return
	}
	deps := c.manager.server.deps

	var arg string
	if err := json.Unmarshal(req.Data, &arg); err != nil {
		c.reply("error", "data must be a string")
		return
	}

	switch req.Type {
	case requestSend:
		if err := deps.Conn.Enqueue(arg); err != nil {
			c.reply("error", err.Error())
		}
	case requestProfile:
		if err := deps.Dispatcher.SelectProfile(arg); err != nil {
			c.reply("error", err.Error())
		}
	default:
		c.reply("error", "unknown request type "+req.Type)
	}
}

func (c *WebSocketClient) reply(typ string, data interface{}) {
	msg, err := json.Marshal(dispatch.Event{Type: typ, Data: data})
	if err != nil {
		return
	}
	m := c.manager
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	if !m.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
