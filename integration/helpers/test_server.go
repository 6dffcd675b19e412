//go:build integration

package helpers

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"solax-modbus/hub"
	"solax-modbus/mqtt"
	"solax-modbus/server"
	"solax-modbus/solax"
	"solax-modbus/transport"
)

// FakeInverter は Modbus のレジスタ読み書きをメモリ上で再現する
type FakeInverter struct {
	mu   sync.Mutex
	regs solax.Registers
	down bool
}

func NewFakeInverter() *FakeInverter {
	f := &FakeInverter{regs: solax.Registers{}}
	f.regs.Put(solax.Input(0x0A), 1500, 700) // pv_power_1, pv_power_2
	f.regs.Put(solax.Holding(solax.RegBatteryMinimumCapacity), 10)
	f.regs.Put(solax.Holding(solax.RegRunModeSelect), 0)
	return f
}

// SetDown で全ての要求をタイムアウトさせる
func (f *FakeInverter) SetDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *FakeInverter) Register(a solax.Address) uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[a]
}

func (f *FakeInverter) read(table solax.RegisterTable, address, quantity uint16) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, errors.New("i/o timeout")
	}
	b := make([]byte, 2*int(quantity))
	for i := range quantity {
		binary.BigEndian.PutUint16(b[2*i:], f.regs[solax.Address{Table: table, Offset: address + i}])
	}
	return b, nil
}

func (f *FakeInverter) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	return f.read(solax.HoldingTable, address, quantity)
}

func (f *FakeInverter) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	return f.read(solax.InputTable, address, quantity)
}

func (f *FakeInverter) WriteSingleRegister(address, value uint16) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, errors.New("i/o timeout")
	}
	f.regs.Put(solax.Holding(address), value)
	return binary.BigEndian.AppendUint16(nil, value), nil
}

func (f *FakeInverter) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, errors.New("i/o timeout")
	}
	for i := range quantity {
		f.regs.Put(solax.Holding(address+i), binary.BigEndian.Uint16(value[2*i:]))
	}
	return binary.BigEndian.AppendUint16(nil, quantity), nil
}

// TestServer は hub と WebSocket サーバー、MQTT ブリッジを組み合わせて起動する
type TestServer struct {
	Inverter *FakeInverter
	Hub      *hub.Hub
	Broker   *RecordingBroker
	Port     int

	wsServer *server.WebSocketServer
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewTestServer は新しいテストサーバーを作成する
func NewTestServer(cfg solax.ResolverConfig) (*TestServer, error) {
	port, err := findFreePort()
	if err != nil {
		return nil, fmt.Errorf("利用可能なポートが見つかりません: %w", err)
	}

	_, catalog, err := solax.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	inverter := NewFakeInverter()
	h := hub.New(solax.NewEngine(catalog), transport.New(inverter), hub.Options{ScanInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	return &TestServer{
		Inverter: inverter,
		Hub:      h,
		Broker:   &RecordingBroker{},
		Port:     port,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start はサーバーを起動し、待ち受けを開始するまで待つ
func (ts *TestServer) Start() error {
	wsTransport := server.NewDefaultWebSocketTransport(ts.ctx, fmt.Sprintf("localhost:%d", ts.Port))
	ts.wsServer = server.NewWebSocketServer(ts.ctx, wsTransport, ts.Hub)

	bridge := mqtt.NewBridge(ts.Broker, ts.Hub.Catalog(), ts.Hub, mqtt.BridgeOptions{
		TopicPrefix:     "solax",
		DiscoveryPrefix: "homeassistant",
		NodeID:          "test",
	})
	if err := bridge.Announce(ts.Hub.Online(), ts.Hub.Snapshot()); err != nil {
		return err
	}
	if err := bridge.SubscribeCommands(ts.ctx); err != nil {
		return err
	}

	wsNotifications := ts.Hub.SubscribeNotifications(64)
	mqttNotifications := ts.Hub.SubscribeNotifications(64)
	ts.wg.Add(2)
	go func() {
		defer ts.wg.Done()
		ts.wsServer.Run(wsNotifications)
	}()
	go func() {
		defer ts.wg.Done()
		bridge.Run(ts.ctx, mqttNotifications)
	}()

	ready := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- ts.wsServer.Start(server.StartOptions{Ready: ready})
	}()
	select {
	case <-ready:
		return nil
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("サーバーの起動がタイムアウトしました")
	}
}

// Stop はサーバーを停止する
func (ts *TestServer) Stop() {
	if ts.wsServer != nil {
		_ = ts.wsServer.Stop()
	}
	ts.cancel()
	ts.Hub.Close()
	ts.wg.Wait()
}

// Poll は1回分のポーリングを実行する
func (ts *TestServer) Poll() error {
	return ts.Hub.Poll(ts.ctx)
}

// GetWebSocketURL はWebSocketのURLを返す
func (ts *TestServer) GetWebSocketURL() string {
	return fmt.Sprintf("ws://localhost:%d/ws", ts.Port)
}

func findFreePort() (int, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
