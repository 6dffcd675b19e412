package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"solax-modbus/solax"
	"solax-modbus/transport"
)

// DefaultOfflineAfter は offline とみなすまでの連続ポーリング失敗回数
const DefaultOfflineAfter = 3

// Device is the register access the hub needs; *transport.Transport implements it.
type Device interface {
	Read(ctx context.Context, plan transport.Plan) (solax.Registers, error)
	Write(ctx context.Context, w solax.RegisterWrite) error
}

type Options struct {
	ScanInterval time.Duration
	OfflineAfter int // 0 のときは DefaultOfflineAfter
}

// Snapshot is the result of one successful poll.
type Snapshot struct {
	Time   time.Time
	Values map[string]solax.Value
}

type availability int

const (
	availabilityUnknown availability = iota
	availabilityOnline
	availabilityOffline
)

// Hub は1台のインバーターに対するセッションです。
// ポーリング、最新値の保持、書き込みと読み返しを担当します。
type Hub struct {
	engine *solax.Engine
	device Device
	plan   transport.Plan
	opts   Options

	pollMu sync.Mutex // Poll を直列化する

	mu       sync.RWMutex
	snapshot Snapshot
	state    availability
	failures int

	subMu       sync.Mutex
	subscribers []chan Notification
}

func New(engine *solax.Engine, device Device, opts Options) *Hub {
	if opts.OfflineAfter <= 0 {
		opts.OfflineAfter = DefaultOfflineAfter
	}
	return &Hub{
		engine: engine,
		device: device,
		plan:   transport.PlanReads(engine.Catalog()),
		opts:   opts,
	}
}

func (h *Hub) Engine() *solax.Engine {
	return h.engine
}

func (h *Hub) Catalog() *solax.Catalog {
	return h.engine.Catalog()
}

// Plan returns the block reads performed by every poll.
func (h *Hub) Plan() transport.Plan {
	return h.plan
}

// Run polls immediately and then every ScanInterval until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	slog.Info("ポーリングを開始します", "interval", h.opts.ScanInterval, "blocks", len(h.plan), "words", h.plan.Words())
	ticker := time.NewTicker(h.opts.ScanInterval)
	defer ticker.Stop()

	for {
		if err := h.Poll(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("ポーリングに失敗しました", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll reads every planned block once, decodes the catalog and notifies
// subscribers.
func (h *Hub) Poll(ctx context.Context) error {
	h.pollMu.Lock()
	defer h.pollMu.Unlock()

	regs, err := h.device.Read(ctx, h.plan)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		h.pollFailed(err)
		return err
	}

	snapshot := Snapshot{Time: time.Now(), Values: h.engine.Decode(regs)}

	h.mu.Lock()
	h.snapshot = snapshot
	h.failures = 0
	cameOnline := h.state != availabilityOnline
	h.state = availabilityOnline
	h.mu.Unlock()

	if cameOnline {
		slog.Info("インバーターが応答しました")
		h.notify(Notification{Type: InverterOnline})
	}
	h.notify(Notification{Type: SnapshotUpdated, Snapshot: snapshot.clone()})
	return nil
}

func (h *Hub) pollFailed(err error) {
	h.mu.Lock()
	h.failures++
	wentOffline := h.failures >= h.opts.OfflineAfter && h.state != availabilityOffline
	if wentOffline {
		h.state = availabilityOffline
	}
	h.mu.Unlock()

	if wentOffline {
		slog.Warn("インバーターが応答しません", "failures", h.opts.OfflineAfter, "err", err)
		h.notify(Notification{Type: InverterOffline, Error: err})
	}
}

// Snapshot returns a copy of the latest successful poll.
func (h *Hub) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshot.clone()
}

// Value returns the latest value of key. Keys not yet polled are Unavailable.
func (h *Hub) Value(key string) solax.Value {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if v, ok := h.snapshot.Values[key]; ok {
		return v
	}
	return solax.Unavailable
}

// Online reports whether the last polls reached the inverter.
func (h *Hub) Online() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state == availabilityOnline
}

// Set validates and writes value, then polls again so subscribers see the
// result. Validation errors are returned unchanged and nothing is written.
func (h *Hub) Set(ctx context.Context, key string, value float64) error {
	w, err := h.engine.Encode(key, value)
	if err != nil {
		return err
	}
	return h.write(ctx, key, w)
}

// SetString is Set for a textual value such as a select label or "25.5A".
func (h *Hub) SetString(ctx context.Context, key string, s string) error {
	w, err := h.engine.EncodeString(key, s)
	if err != nil {
		return err
	}
	return h.write(ctx, key, w)
}

func (h *Hub) write(ctx context.Context, key string, w solax.RegisterWrite) error {
	if err := h.device.Write(ctx, w); err != nil {
		return fmt.Errorf("%s の書き込みに失敗しました: %w", key, err)
	}
	slog.Info("書き込みました", "key", key, "write", w.String())

	// 読み返し。失敗しても書き込み自体は成功している
	if err := h.Poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("書き込み後の読み返しに失敗しました", "key", key, "err", err)
	}
	return nil
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{Time: s.Time, Values: maps.Clone(s.Values)}
}
