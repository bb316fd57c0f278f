package hub

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func dialTestHub(t *testing.T, server *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?user=" + user
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) ChatMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg ChatMessage
	require.NoError(t, json.Unmarshal(payload, &msg))
	return msg
}

func TestChatBroadcast(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHub(zaptest.NewLogger(t))
	router := gin.New()
	router.GET("/ws", h.ServeWS())
	server := httptest.NewServer(router)
	defer server.Close()

	alice := dialTestHub(t, server, "alice")
	join := readMessage(t, alice)
	assert.Equal(t, "join", join.Type)
	assert.Equal(t, "alice", join.User)

	bob := dialTestHub(t, server, "bob")
	join = readMessage(t, alice)
	assert.Equal(t, "bob", join.User)
	readMessage(t, bob) // bob sees his own join

	require.NoError(t, bob.WriteJSON(ChatMessage{Text: "hello"}))

	msg := readMessage(t, alice)
	assert.Equal(t, "chat", msg.Type)
	assert.Equal(t, "bob", msg.User)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, 2, h.ClientCount())
}

func TestAnonymousUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHub(zaptest.NewLogger(t))
	router := gin.New()
	router.GET("/ws", h.ServeWS())
	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	msg := readMessage(t, conn)
	assert.Equal(t, "anonymous", msg.User)
}
