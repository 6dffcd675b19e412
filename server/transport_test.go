package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeoutConstants(t *testing.T) {
	assert.Less(t, pingPeriod, pongWait, "ping は pong の期限より前に送る")
	assert.Positive(t, writeWait)
}

func TestSendMessageToNonExistentClient(t *testing.T) {
	transport := NewDefaultWebSocketTransport(context.Background(), ":0")
	err := transport.SendMessage("missing", []byte("hello"))
	assert.ErrorContains(t, err, "not found")
	assert.NoError(t, transport.BroadcastMessage([]byte("hello")))
}

// dial は transport に接続したクライアントを返す
func dial(t *testing.T, transport *DefaultWebSocketTransport) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(transport.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func TestWebSocketTransport_Integration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	transport := NewDefaultWebSocketTransport(ctx, ":0")

	connected := make(chan string, 1)
	disconnected := make(chan string, 1)
	var mu sync.Mutex
	var received []string

	transport.SetConnectHandler(func(connID string) error {
		connected <- connID
		return transport.SendMessage(connID, []byte("welcome"))
	})
	transport.SetMessageHandler(func(connID string, message []byte) error {
		mu.Lock()
		received = append(received, string(message))
		mu.Unlock()
		// そのまま返す
		return transport.SendMessage(connID, message)
	})
	transport.SetDisconnectHandler(func(connID string) {
		disconnected <- connID
	})

	conn := dial(t, transport)

	var connID string
	select {
	case connID = <-connected:
		assert.NotEmpty(t, connID)
	case <-time.After(time.Second):
		t.Fatal("connect handler was not called")
	}
	assert.Equal(t, "welcome", readText(t, conn))
	assert.Equal(t, 1, transport.ClientCount())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"test"}`)))
	assert.Equal(t, `{"type":"test"}`, readText(t, conn))

	require.NoError(t, transport.BroadcastMessage([]byte("broadcast")))
	assert.Equal(t, "broadcast", readText(t, conn))

	mu.Lock()
	assert.Equal(t, []string{`{"type":"test"}`}, received)
	mu.Unlock()

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = conn.Close()

	select {
	case id := <-disconnected:
		assert.Equal(t, connID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect handler was not called")
	}
	assert.Zero(t, transport.ClientCount())
}

func TestWebSocketTransport_ConnectHandlerErrorCloses(t *testing.T) {
	transport := NewDefaultWebSocketTransport(context.Background(), ":0")
	transport.SetConnectHandler(func(connID string) error {
		return assert.AnError
	})

	conn := dial(t, transport)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
