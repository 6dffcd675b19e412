package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"solax-modbus/hub"
	"solax-modbus/solax"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
)

// Broker is the MQTT side of the bridge; *Client implements it.
type Broker interface {
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string, handler MessageHandler) error
}

// Setter applies a textual write request; *hub.Hub implements it.
type Setter interface {
	SetString(ctx context.Context, key string, s string) error
}

type BridgeOptions struct {
	TopicPrefix     string // 例: solax
	DiscoveryPrefix string // 例: homeassistant
	NodeID          string
	DeviceName      string
}

// Bridge publishes hub state to MQTT and forwards command topics to the hub.
type Bridge struct {
	broker  Broker
	catalog *solax.Catalog
	setter  Setter
	opts    BridgeOptions
}

func NewBridge(broker Broker, catalog *solax.Catalog, setter Setter, opts BridgeOptions) *Bridge {
	if opts.DeviceName == "" {
		opts.DeviceName = "SolaX Inverter"
	}
	return &Bridge{broker: broker, catalog: catalog, setter: setter, opts: opts}
}

func (b *Bridge) statusTopic() string {
	return b.opts.TopicPrefix + "/status"
}

func (b *Bridge) stateTopic(key string) string {
	return b.opts.TopicPrefix + "/" + key + "/state"
}

func (b *Bridge) commandTopic(key string) string {
	return b.opts.TopicPrefix + "/" + key + "/set"
}

// StatusTopic is the availability topic, also used as the last will.
func (b *Bridge) StatusTopic() string {
	return b.statusTopic()
}

// PublishAvailability publishes the inverter's reachability.
func (b *Bridge) PublishAvailability(online bool) error {
	payload := payloadOffline
	if online {
		payload = payloadOnline
	}
	return b.broker.Publish(b.statusTopic(), []byte(payload), true)
}

// PublishSnapshot publishes every presentable value. Unavailable values and
// unknown codes are skipped so the previous retained state stays.
func (b *Bridge) PublishSnapshot(s hub.Snapshot) error {
	for _, key := range b.catalog.Keys() {
		v, ok := s.Values[key]
		if !ok || !v.OK() {
			continue
		}
		if err := b.broker.Publish(b.stateTopic(key), []byte(v.String()), true); err != nil {
			return err
		}
	}
	return nil
}

// Announce publishes discovery, availability and the latest values. It runs
// after every (re)connection because the last will replaces the status.
func (b *Bridge) Announce(online bool, s hub.Snapshot) error {
	if err := b.PublishDiscovery(); err != nil {
		return err
	}
	if err := b.PublishAvailability(online); err != nil {
		return err
	}
	return b.PublishSnapshot(s)
}

// SubscribeCommands subscribes <prefix>/+/set.
func (b *Bridge) SubscribeCommands(ctx context.Context) error {
	return b.broker.Subscribe(b.commandTopic("+"), func(topic string, payload []byte) error {
		return b.HandleCommand(ctx, topic, payload)
	})
}

// HandleCommand applies one command message.
func (b *Bridge) HandleCommand(ctx context.Context, topic string, payload []byte) error {
	key, ok := strings.CutPrefix(topic, b.opts.TopicPrefix+"/")
	if ok {
		key, ok = strings.CutSuffix(key, "/set")
	}
	if !ok || key == "" || strings.Contains(key, "/") {
		return fmt.Errorf("unexpected command topic %q", topic)
	}
	value := strings.TrimSpace(string(payload))
	slog.Info("MQTT コマンドを受信しました", "key", key, "value", value)
	if err := b.setter.SetString(ctx, key, value); err != nil {
		return fmt.Errorf("%s=%q: %w", key, value, err)
	}
	return nil
}

// Run forwards hub notifications until ctx ends or the channel is closed.
func (b *Bridge) Run(ctx context.Context, notifications <-chan hub.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			var err error
			switch n.Type {
			case hub.SnapshotUpdated:
				err = b.PublishSnapshot(n.Snapshot)
			case hub.InverterOnline:
				err = b.PublishAvailability(true)
			case hub.InverterOffline:
				err = b.PublishAvailability(false)
			}
			if err != nil {
				slog.Warn("MQTT への発行に失敗しました", "type", n.Type, "err", err)
			}
		}
	}
}
