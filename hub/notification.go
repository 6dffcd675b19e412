package hub

import "log/slog"

type NotificationType int

const (
	SnapshotUpdated NotificationType = iota
	InverterOnline
	InverterOffline
)

func (t NotificationType) String() string {
	switch t {
	case SnapshotUpdated:
		return "SnapshotUpdated"
	case InverterOnline:
		return "InverterOnline"
	case InverterOffline:
		return "InverterOffline"
	}
	return "Unknown"
}

// Notification is delivered to every subscriber.
type Notification struct {
	Type     NotificationType
	Snapshot Snapshot // SnapshotUpdated のとき
	Error    error    // InverterOffline のとき
}

// SubscribeNotifications は通知を受け取るチャネルを返します。
// バッファが溢れている間の通知はその購読者には届きませんが、購読は続きます。
func (h *Hub) SubscribeNotifications(buffer int) <-chan Notification {
	ch := make(chan Notification, buffer)
	h.subMu.Lock()
	h.subscribers = append(h.subscribers, ch)
	h.subMu.Unlock()
	return ch
}

func (h *Hub) notify(n Notification) {
	h.subMu.Lock()
	defer h.subMu.Unlock()

	for i, ch := range h.subscribers {
		select {
		case ch <- n:
		default:
			// チャンネルがブロックされている場合は捨てる
			slog.Warn("通知チャネルがブロックされています", "type", n.Type, "subscriber", i)
		}
	}
}

// Close closes every subscriber channel.
func (h *Hub) Close() {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	for _, ch := range h.subscribers {
		close(ch)
	}
	h.subscribers = nil
}
