package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second
	qos                      = 1
)

var ErrNotConnected = errors.New("mqtt: not connected")

// MessageHandler receives the payload published on a subscribed topic.
type MessageHandler func(topic string, payload []byte) error

// Options is the broker connection setup.
type Options struct {
	Broker   string // tcp://host:1883
	Username string
	Password string
	ClientID string // 空なら solax-modbus-<uuid>
	// LWT として登録する offline メッセージ
	WillTopic   string
	WillPayload string
}

// Client wraps a paho client; subscriptions are restored after reconnects.
type Client struct {
	client pahomqtt.Client
	id     string

	subMu         sync.RWMutex
	subscriptions map[string]MessageHandler

	callbackMu sync.RWMutex
	onConnect  func()
}

// NewClient prepares a client. Call Connect to reach the broker.
func NewClient(opts Options) *Client {
	c := &Client{
		id:            opts.ClientID,
		subscriptions: map[string]MessageHandler{},
	}
	if c.id == "" {
		c.id = "solax-modbus-" + uuid.NewString()
	}

	po := pahomqtt.NewClientOptions().AddBroker(opts.Broker).SetClientID(c.id)
	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}
	po.SetCleanSession(true)
	po.SetAutoReconnect(true)
	po.SetConnectTimeout(defaultConnectTimeout)
	po.SetKeepAlive(defaultKeepAlive)
	if opts.WillTopic != "" {
		po.SetWill(opts.WillTopic, opts.WillPayload, qos, true)
	}
	po.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	po.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		slog.Warn("MQTT connection lost", "err", err)
	})

	c.client = pahomqtt.NewClient(po)
	return c
}

func (c *Client) ID() string {
	return c.id
}

// OnConnect registers a callback run after every (re)connection.
func (c *Client) OnConnect(f func()) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onConnect = f
}

func (c *Client) Connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("MQTT ブローカーへの接続がタイムアウトしました")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT ブローカーに接続できませんでした: %w", err)
	}
	return nil
}

func (c *Client) handleConnect() {
	slog.Info("MQTT connected", "clientID", c.id)

	c.subMu.RLock()
	for topic, handler := range c.subscriptions {
		c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	}
	c.subMu.RUnlock()

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		go callback()
	}
}

func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("publish %s: timeout after %v", topic, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	c.subMu.Lock()
	c.subscriptions[topic] = handler
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("subscribe %s: timeout after %v", topic, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			slog.Warn("MQTT handler returned error", "topic", msg.Topic(), "err", err)
		}
	}
}

func (c *Client) Close() {
	if c.client.IsConnected() {
		c.client.Disconnect(defaultDisconnectQuiesce)
	}
}
