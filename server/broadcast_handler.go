package server

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"solax-modbus/protocol"
)

// BroadcastHandler は inner に書いたうえで、minLevel 以上のログを log_notification として全クライアントに送る。
// With で付けた属性も送信対象に含める
type BroadcastHandler struct {
	inner     slog.Handler
	transport WebSocketTransport
	minLevel  slog.Level
	preset    map[string]interface{}
	prefix    string
}

func NewBroadcastHandler(inner slog.Handler, transport WebSocketTransport, minLevel slog.Level) *BroadcastHandler {
	return &BroadcastHandler{inner: inner, transport: transport, minLevel: minLevel}
}

func (h *BroadcastHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *BroadcastHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}
	if h.transport == nil || r.Level < h.minLevel {
		return nil
	}

	attrs := maps.Clone(h.preset)
	if attrs == nil {
		attrs = make(map[string]interface{}, r.NumAttrs())
	}
	r.Attrs(func(a slog.Attr) bool {
		collectAttr(attrs, h.prefix, a)
		return true
	})

	data, err := protocol.CreateMessage(protocol.MessageTypeLogNotification, protocol.LogNotificationPayload{
		Level:      r.Level.String(),
		Message:    r.Message,
		Time:       r.Time.Format(time.RFC3339),
		Attributes: attrs,
	}, "")
	if err != nil {
		// ここでログを出すと無限ループになる
		return nil
	}
	_ = h.transport.BroadcastMessage(data)
	return nil
}

// derive は inner だけ差し替えた複製を返す
func (h *BroadcastHandler) derive(inner slog.Handler) *BroadcastHandler {
	c := *h
	c.inner = inner
	return &c
}

func (h *BroadcastHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.derive(h.inner.WithAttrs(attrs))
	c.preset = maps.Clone(h.preset)
	if c.preset == nil {
		c.preset = make(map[string]interface{}, len(attrs))
	}
	for _, a := range attrs {
		collectAttr(c.preset, h.prefix, a)
	}
	return c
}

func (h *BroadcastHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.derive(h.inner.WithGroup(name))
	c.prefix = h.prefix + name + "."
	return c
}

// collectAttr はグループを "a.b" 形式のキーに展開して dst に入れる
func collectAttr(dst map[string]interface{}, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range v.Group() {
			collectAttr(dst, p, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	dst[prefix+a.Key] = formatAttributeValue(v)
}

// formatAttributeValue は slog.Value を JSON に載せられる値に変換する
func formatAttributeValue(v slog.Value) interface{} {
	switch v = v.Resolve(); v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		switch a := v.Any().(type) {
		case nil:
			return nil
		case error:
			return a.Error()
		case fmt.Stringer:
			return a.String()
		default:
			return fmt.Sprintf("%+v", a)
		}
	}
	return v.String()
}
