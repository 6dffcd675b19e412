package influx

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"solax-modbus/hub"
	"solax-modbus/solax"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushed int
}

func (w *fakeWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, p)
}

func (w *fakeWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushed++
}

type row struct {
	key   string
	node  string
	unit  string
	value interface{}
	time  time.Time
}

func rows(t *testing.T, points []*write.Point) []row {
	t.Helper()
	var result []row
	for _, p := range points {
		require.Equal(t, Measurement, p.Name())
		r := row{time: p.Time()}
		for _, tag := range p.TagList() {
			switch tag.Key {
			case "key":
				r.key = tag.Value
			case "node":
				r.node = tag.Value
			case "unit":
				r.unit = tag.Value
			}
		}
		fields := p.FieldList()
		require.Len(t, fields, 1)
		require.Equal(t, "value", fields[0].Key)
		r.value = fields[0].Value
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].key < result[j].key })
	return result
}

func TestSink_WriteSnapshot(t *testing.T) {
	w := &fakeWriter{}
	sink := NewSink(w, "inv1")
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	n := sink.WriteSnapshot(hub.Snapshot{Time: at, Values: map[string]solax.Value{
		"pv_total_power":  {Number: 2200, Integer: true, Unit: "W"},
		"grid_frequency":  {Number: 50.01, Unit: "Hz"},
		"run_mode_select": {Number: 2, Label: "Back Up Mode", Integer: true},
		"run_mode":        {Status: solax.StatusUnknownCode, Number: 42, Integer: true},
		"seriesnumber":    {Text: "XB12345678"},
		"battery_awaken":  solax.Unavailable,
		"feedin_power":    {Number: -1200, Integer: true},
	}})
	assert.Equal(t, 3, n)

	want := []row{
		{key: "feedin_power", node: "inv1", value: -1200.0, time: at},
		{key: "grid_frequency", node: "inv1", unit: "Hz", value: 50.01, time: at},
		{key: "pv_total_power", node: "inv1", unit: "W", value: 2200.0, time: at},
	}
	assert.Equal(t, want, rows(t, w.points))
}

func TestSink_Run(t *testing.T) {
	w := &fakeWriter{}
	sink := NewSink(w, "")

	ch := make(chan hub.Notification, 3)
	ch <- hub.Notification{Type: hub.InverterOnline}
	ch <- hub.Notification{Type: hub.SnapshotUpdated, Snapshot: hub.Snapshot{Values: map[string]solax.Value{
		"house_load": {Number: 800, Integer: true, Unit: "W"},
	}}}
	ch <- hub.Notification{Type: hub.InverterOffline}
	close(ch)

	sink.Run(context.Background(), ch)
	sink.Close()

	got := rows(t, w.points)
	require.Len(t, got, 1)
	assert.Equal(t, "house_load", got[0].key)
	assert.Empty(t, got[0].node)
	assert.False(t, got[0].time.IsZero())
	assert.Equal(t, 1, w.flushed)
}

func TestSink_RunStopsOnCancel(t *testing.T) {
	sink := NewSink(&fakeWriter{}, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		sink.Run(ctx, make(chan hub.Notification))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
