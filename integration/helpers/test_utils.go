//go:build integration

package helpers

import (
	"fmt"
	"sync"
	"time"

	"solax-modbus/mqtt"
	"solax-modbus/protocol"

	"github.com/gorilla/websocket"
)

// RecordingBroker はトピックごとの最後のメッセージを保持する
type RecordingBroker struct {
	mu       sync.Mutex
	last     map[string]string
	handlers map[string]mqtt.MessageHandler
}

func (b *RecordingBroker) Publish(topic string, payload []byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		b.last = map[string]string{}
	}
	b.last[topic] = string(payload)
	return nil
}

func (b *RecordingBroker) Subscribe(topic string, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = map[string]mqtt.MessageHandler{}
	}
	b.handlers[topic] = handler
	return nil
}

// Last は topic に最後に発行された payload を返す
func (b *RecordingBroker) Last(topic string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	payload, ok := b.last[topic]
	return payload, ok
}

// Deliver はブローカーからの受信を模倣する
func (b *RecordingBroker) Deliver(filter, topic string, payload []byte) error {
	b.mu.Lock()
	handler, ok := b.handlers[filter]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s は購読されていません", filter)
	}
	return handler(topic, payload)
}

// WebSocketConnection はWebSocket接続のテスト用ラッパー
type WebSocketConnection struct {
	conn *websocket.Conn
}

// NewWebSocketConnection は新しいWebSocket接続を作成する
func NewWebSocketConnection(url string) (*WebSocketConnection, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 5 * time.Second

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("WebSocket接続に失敗: %w", err)
	}
	return &WebSocketConnection{conn: conn}, nil
}

// Send はリクエストを送信する
func (wsc *WebSocketConnection) Send(msgType protocol.MessageType, payload interface{}, requestID string) error {
	data, err := protocol.CreateMessage(msgType, payload, requestID)
	if err != nil {
		return err
	}
	return wsc.conn.WriteMessage(websocket.TextMessage, data)
}

// WaitFor は msgType のメッセージが届くまで他のメッセージを読み捨てる
func (wsc *WebSocketConnection) WaitFor(msgType protocol.MessageType, timeout time.Duration) (*protocol.Message, error) {
	deadline := time.Now().Add(timeout)
	if err := wsc.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	for {
		_, data, err := wsc.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("%s を待っている間にエラー: %w", msgType, err)
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			return nil, err
		}
		if msg.Type == msgType {
			return msg, nil
		}
	}
}

func (wsc *WebSocketConnection) Close() error {
	return wsc.conn.Close()
}
