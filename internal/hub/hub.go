package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ChatMessage is the payload exchanged on the chat demo socket.
type ChatMessage struct {
	Type   string    `json:"type"` // "chat", "join", "leave"
	User   string    `json:"user,omitempty"`
	Text   string    `json:"text,omitempty"`
	SentAt time.Time `json:"sent_at"`
}

// Hub fans chat messages out to every connected client.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]string
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*websocket.Conn]string),
		logger:  logger,
	}
}

func (h *Hub) register(conn *websocket.Conn, user string) {
	h.mu.Lock()
	h.clients[conn] = user
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Chat client connected", zap.String("user", user), zap.Int("total", total))
	h.Broadcast(ChatMessage{Type: "join", User: user, SentAt: time.Now()})
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	user, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		conn.Close()
	}
	total := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.logger.Info("Chat client disconnected", zap.String("user", user), zap.Int("total", total))
		h.Broadcast(ChatMessage{Type: "leave", User: user, SentAt: time.Now()})
	}
}

// Broadcast sends a message to every client, dropping ones that fail.
func (h *Hub) Broadcast(msg ChatMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Warn("Chat broadcast failed", zap.Error(err))
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ServeWS upgrades the request and pumps chat messages until the client
// disconnects.
func (h *Hub) ServeWS() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.Query("user")
		if user == "" {
			user = "anonymous"
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Warn("Websocket upgrade failed", zap.Error(err))
			return
		}

		h.register(conn, user)
		defer h.unregister(conn)

		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.logger.Debug("Chat read ended", zap.Error(err))
				}
				return
			}

			var msg ChatMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				continue
			}
			msg.Type = "chat"
			msg.User = user
			msg.SentAt = time.Now()
			h.Broadcast(msg)
		}
	}
}
