// Package influx は計測値を InfluxDB v2 に書き込みます。
package influx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"solax-modbus/hub"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	Measurement = "solax"

	connectTimeout = 10 * time.Second
)

var ErrConnectionFailed = errors.New("influxdb: connection failed")

// PointWriter is the part of api.WriteAPI the sink uses.
type PointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

type Options struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	Node   string // node タグ
}

// Sink は SnapshotUpdated 通知ごとに数値を書き込みます。書き込みは非同期です。
type Sink struct {
	client influxdb2.Client // テストでは nil
	writer PointWriter
	node   string
}

// Connect pings the server and returns a sink on its non-blocking write API.
func Connect(opts Options) (*Sink, error) {
	client := influxdb2.NewClient(opts.URL, opts.Token)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(opts.Org, opts.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			slog.Warn("InfluxDB への書き込みに失敗しました", "err", err)
		}
	}()

	s := NewSink(writeAPI, opts.Node)
	s.client = client
	return s, nil
}

func NewSink(writer PointWriter, node string) *Sink {
	return &Sink{writer: writer, node: node}
}

// WriteSnapshot writes one point per numeric value. Labels, text and
// unavailable values are not measurements and are skipped.
func (s *Sink) WriteSnapshot(snapshot hub.Snapshot) int {
	at := snapshot.Time
	if at.IsZero() {
		at = time.Now()
	}
	n := 0
	for key, v := range snapshot.Values {
		if !v.Numeric() {
			continue
		}
		tags := map[string]string{"key": key}
		if s.node != "" {
			tags["node"] = s.node
		}
		if v.Unit != "" {
			tags["unit"] = v.Unit
		}
		s.writer.WritePoint(write.NewPoint(Measurement, tags, map[string]interface{}{"value": v.Number}, at))
		n++
	}
	return n
}

// Run writes every snapshot until ctx ends or the channel is closed.
func (s *Sink) Run(ctx context.Context, notifications <-chan hub.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			if n.Type == hub.SnapshotUpdated {
				s.WriteSnapshot(n.Snapshot)
			}
		}
	}
}

// Close flushes pending points.
func (s *Sink) Close() {
	s.writer.Flush()
	if s.client != nil {
		s.client.Close()
	}
}
