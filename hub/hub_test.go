package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"solax-modbus/solax"
	"solax-modbus/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice は書き込みをレジスタに反映するだけのインバーター
type fakeDevice struct {
	mu      sync.Mutex
	regs    solax.Registers
	readErr error
	reads   int
	writes  []solax.RegisterWrite
}

func (d *fakeDevice) Read(ctx context.Context, plan transport.Plan) (solax.Registers, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads++
	if d.readErr != nil {
		return nil, d.readErr
	}
	result := solax.Registers{}
	for _, b := range plan {
		for i := range b.Count {
			a := solax.Address{Table: b.Table, Offset: b.Start + i}
			if w, ok := d.regs[a]; ok {
				result[a] = w
			}
		}
	}
	return result, nil
}

func (d *fakeDevice) Write(ctx context.Context, w solax.RegisterWrite) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes = append(d.writes, w)
	d.regs.Put(w.Address, w.Words...)
	return nil
}

func (d *fakeDevice) setReadErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readErr = err
}

func (d *fakeDevice) counts() (reads, writes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads, len(d.writes)
}

func newTestHub(t *testing.T, cfg solax.ResolverConfig) (*Hub, *fakeDevice) {
	t.Helper()
	_, catalog, err := solax.Resolve(cfg)
	require.NoError(t, err)

	device := &fakeDevice{regs: solax.Registers{}}
	device.regs.Put(solax.Input(0x0A), 1500, 700) // pv_power_1, pv_power_2
	device.regs.Put(solax.Holding(solax.RegBatteryMinimumCapacity), 10)
	device.regs.Put(solax.Holding(solax.RegRunModeSelect), 0)

	h := New(solax.NewEngine(catalog), device, Options{ScanInterval: 10 * time.Millisecond})
	t.Cleanup(h.Close)
	return h, device
}

func receive(t *testing.T, ch <-chan Notification) Notification {
	t.Helper()
	select {
	case n, ok := <-ch:
		require.True(t, ok, "channel closed")
		return n
	case <-time.After(time.Second):
		t.Fatal("notification timeout")
	}
	return Notification{}
}

func TestHub_Poll(t *testing.T) {
	h, _ := newTestHub(t, solax.ResolverConfig{})
	ch := h.SubscribeNotifications(10)

	assert.False(t, h.Online())
	assert.Equal(t, solax.Unavailable, h.Value("pv_total_power"))

	require.NoError(t, h.Poll(context.Background()))
	assert.True(t, h.Online())

	assert.Equal(t, InverterOnline, receive(t, ch).Type)
	n := receive(t, ch)
	assert.Equal(t, SnapshotUpdated, n.Type)
	assert.Equal(t, 2200.0, n.Snapshot.Values["pv_total_power"].Number)
	assert.Equal(t, "Self Use Mode", n.Snapshot.Values["run_mode_select"].Label)

	snapshot := h.Snapshot()
	assert.False(t, snapshot.Time.IsZero())
	assert.Equal(t, 2200.0, h.Value("pv_total_power").Number)
	assert.Equal(t, solax.Unavailable, h.Value("battery_capacity_charge"))

	// コピーを変更しても内部状態は変わらない
	snapshot.Values["pv_total_power"] = solax.Unavailable
	assert.Equal(t, 2200.0, h.Value("pv_total_power").Number)

	// 2回目は online 通知なし
	require.NoError(t, h.Poll(context.Background()))
	assert.Equal(t, SnapshotUpdated, receive(t, ch).Type)
}

func TestHub_SetReadsBack(t *testing.T) {
	h, device := newTestHub(t, solax.ResolverConfig{})
	ctx := context.Background()
	require.NoError(t, h.Poll(ctx))

	require.NoError(t, h.Set(ctx, "battery_minimum_capacity", 30))
	reads, writes := device.counts()
	assert.Equal(t, 2, reads)
	assert.Equal(t, 1, writes)
	assert.Equal(t, 30.0, h.Value("battery_minimum_capacity").Number)

	require.NoError(t, h.SetString(ctx, "run_mode_select", "Feedin Priority"))
	assert.Equal(t, "Feedin Priority", h.Value("run_mode_select").Label)
	assert.Equal(t, []solax.RegisterWrite{
		{Address: solax.Holding(solax.RegBatteryMinimumCapacity), Words: []uint16{30}},
		{Address: solax.Holding(solax.RegRunModeSelect), Words: []uint16{3}},
	}, device.writes)
}

func TestHub_SetRejectsInvalidWithoutIO(t *testing.T) {
	h, device := newTestHub(t, solax.ResolverConfig{})
	ctx := context.Background()

	tests := []struct {
		name string
		set  func() error
	}{
		{name: "範囲外", set: func() error { return h.Set(ctx, "battery_minimum_capacity", 100) }},
		{name: "刻み違反", set: func() error { return h.Set(ctx, "battery_minimum_capacity", 50.5) }},
		{name: "読み出し専用", set: func() error { return h.Set(ctx, "pv_power_1", 1) }},
		{name: "不明なラベル", set: func() error { return h.SetString(ctx, "run_mode_select", "Turbo") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set()
			var verr *solax.ValidationError
			assert.True(t, errors.As(err, &verr), "%v", err)
		})
	}
	reads, writes := device.counts()
	assert.Zero(t, reads)
	assert.Zero(t, writes)
}

func TestHub_OfflineAfterConsecutiveFailures(t *testing.T) {
	h, device := newTestHub(t, solax.ResolverConfig{})
	ch := h.SubscribeNotifications(20)
	ctx := context.Background()

	require.NoError(t, h.Poll(ctx))
	assert.Equal(t, InverterOnline, receive(t, ch).Type)
	assert.Equal(t, SnapshotUpdated, receive(t, ch).Type)

	device.setReadErr(errors.New("timeout"))
	for range DefaultOfflineAfter - 1 {
		assert.Error(t, h.Poll(ctx))
	}
	assert.True(t, h.Online())
	assert.Empty(t, ch)

	assert.Error(t, h.Poll(ctx))
	assert.False(t, h.Online())
	n := receive(t, ch)
	assert.Equal(t, InverterOffline, n.Type)
	assert.EqualError(t, n.Error, "timeout")

	// offline の間は再通知しない
	assert.Error(t, h.Poll(ctx))
	assert.Empty(t, ch)

	// 前回の値は保持する
	assert.Equal(t, 2200.0, h.Value("pv_total_power").Number)

	device.setReadErr(nil)
	require.NoError(t, h.Poll(ctx))
	assert.True(t, h.Online())
	assert.Equal(t, InverterOnline, receive(t, ch).Type)
}

func TestHub_FullSubscriberKeepsReceiving(t *testing.T) {
	h, _ := newTestHub(t, solax.ResolverConfig{})
	slow := h.SubscribeNotifications(2)
	fast := h.SubscribeNotifications(10)

	// 読まないまま3回ポーリングして slow を溢れさせる
	for range 3 {
		require.NoError(t, h.Poll(context.Background()))
	}
	assert.Len(t, fast, 4)
	assert.Len(t, slow, 2)

	// 溢れた分は捨てられるが、購読は続く
	assert.Equal(t, InverterOnline, receive(t, slow).Type)
	assert.Equal(t, SnapshotUpdated, receive(t, slow).Type)

	require.NoError(t, h.Poll(context.Background()))
	assert.Equal(t, SnapshotUpdated, receive(t, slow).Type)
	select {
	case n, ok := <-slow:
		t.Fatalf("unexpected notification %v (open=%v)", n.Type, ok)
	default:
	}
}

func TestHub_Run(t *testing.T) {
	h, device := newTestHub(t, solax.ResolverConfig{})
	ch := h.SubscribeNotifications(100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	snapshots := 0
	for snapshots < 3 {
		if receive(t, ch).Type == SnapshotUpdated {
			snapshots++
		}
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
	reads, _ := device.counts()
	assert.GreaterOrEqual(t, reads, 3)
}
