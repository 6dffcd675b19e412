package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"solax-modbus/config"
	"solax-modbus/console"
	"solax-modbus/hub"
	"solax-modbus/influx"
	"solax-modbus/mqtt"
	"solax-modbus/server"
	"solax-modbus/solax"
	"solax-modbus/solax/log"
	"solax-modbus/transport"

	"golang.org/x/term"
)

// 購読チャンネルのバッファ。溢れている間の通知は捨てられる
const notificationBuffer = 64

func main() {
	args, err := config.ParseCommandLineArgs(os.Args[0], os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(args.ConfigFile)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "設定ファイルの読み込みに失敗しました: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyCommandLineArgs(args)

	subsets := solax.BuiltinSubsets
	if cfg.Inverter.CatalogFile != "" {
		subsets, err = solax.LoadCatalogFile(cfg.Inverter.CatalogFile)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "カタログの読み込みに失敗しました: %v\n", err)
			os.Exit(1)
		}
	}

	if args.DumpCatalog != "" {
		if err := dumpCatalog(args.DumpCatalog, subsets); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "カタログの書き出しに失敗しました: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "設定エラー: %v\n", err)
		os.Exit(1)
	}

	if err := log.Setup(cfg.Log.Filename, cfg.Debug); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "ログ設定エラー: %v\n", err)
		os.Exit(1)
	}
	defer log.SetLogger(nil)

	// シグナルハンドリングの設定 (SIGINT, SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log.HandleRotateSignal(ctx)

	if err := run(ctx, cfg, subsets); err != nil {
		slog.Error("終了します", "err", err)
		_, _ = fmt.Fprintf(os.Stderr, "エラー: %v\n", err)
		os.Exit(1)
	}
}

func dumpCatalog(path string, subsets []solax.Subset) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return solax.WriteCatalog(w, subsets)
}

func run(ctx context.Context, cfg *config.Config, subsets []solax.Subset) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	flags, catalog, err := solax.ResolveWith(cfg.ResolverConfig(), subsets)
	if err != nil {
		return err
	}
	slog.Info("カタログを解決しました", "capability", flags.String(), "subsets", catalog.Subsets(), "entities", catalog.Len())

	timeout, _ := cfg.Timeout()
	interval, _ := cfg.ScanInterval()

	device, err := transport.Dial(transport.Options{
		Mode:     cfg.Modbus.Mode,
		Address:  cfg.Modbus.Address,
		UnitID:   byte(cfg.Modbus.UnitID),
		Timeout:  timeout,
		BaudRate: cfg.Modbus.BaudRate,
		DataBits: cfg.Modbus.DataBits,
		Parity:   cfg.Modbus.Parity,
		StopBits: cfg.Modbus.StopBits,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := device.Close(); err != nil {
			slog.Warn("Modbus 接続のクローズに失敗しました", "err", err)
		}
	}()

	h := hub.New(solax.NewEngine(catalog), device, hub.Options{ScanInterval: interval})

	// 購読チャンネルを閉じて各ブリッジの終了を待つ
	var wg sync.WaitGroup
	defer func() {
		cancel()
		h.Close()
		wg.Wait()
	}()

	if cfg.MQTT.Enabled {
		if err := startMQTT(ctx, &wg, cfg, h); err != nil {
			return err
		}
	}

	if cfg.InfluxDB.Enabled {
		sink, err := influx.Connect(influx.Options{
			URL:    cfg.InfluxDB.URL,
			Token:  cfg.InfluxDB.Token,
			Org:    cfg.InfluxDB.Org,
			Bucket: cfg.InfluxDB.Bucket,
			Node:   cfg.MQTT.NodeID,
		})
		if err != nil {
			return err
		}
		notifications := h.SubscribeNotifications(notificationBuffer)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.Run(ctx, notifications)
			sink.Close()
		}()
	}

	if cfg.WebSocket.Enabled {
		ws := startWebSocket(ctx, &wg, cfg, h)
		defer func() {
			if err := ws.Stop(); err != nil {
				slog.Warn("WebSocketサーバーの停止に失敗しました", "err", err)
			}
		}()
	}

	hubDone := make(chan error, 1)
	go func() {
		hubDone <- h.Run(ctx)
	}()

	if cfg.Console.Enabled && term.IsTerminal(int(os.Stdin.Fd())) {
		go func() {
			console.ConsoleProcess(ctx, h)
			cancel()
		}()
	}

	err = <-hubDone
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func startMQTT(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, h *hub.Hub) error {
	client := mqtt.NewClient(mqtt.Options{
		Broker:      cfg.MQTT.Broker,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		ClientID:    cfg.MQTT.ClientID,
		WillTopic:   cfg.MQTT.TopicPrefix + "/status",
		WillPayload: "offline",
	})
	bridge := mqtt.NewBridge(client, h.Catalog(), h, mqtt.BridgeOptions{
		TopicPrefix:     cfg.MQTT.TopicPrefix,
		DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
		NodeID:          cfg.MQTT.NodeID,
	})

	// 再接続のたびに discovery と現在値を出し直す
	client.OnConnect(func() {
		if err := bridge.Announce(h.Online(), h.Snapshot()); err != nil {
			slog.Warn("MQTT への初期発行に失敗しました", "err", err)
		}
	})
	if err := client.Connect(); err != nil {
		return err
	}
	// 購読は再接続時に Client が復元する
	if err := bridge.SubscribeCommands(ctx); err != nil {
		client.Close()
		return err
	}

	notifications := h.SubscribeNotifications(notificationBuffer)
	wg.Add(1)
	go func() {
		defer wg.Done()
		bridge.Run(ctx, notifications)
		if err := bridge.PublishAvailability(false); err != nil {
			slog.Debug("offline の発行に失敗しました", "err", err)
		}
		client.Close()
	}()
	return nil
}

func startWebSocket(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, h *hub.Hub) *server.WebSocketServer {
	wsTransport := server.NewDefaultWebSocketTransport(ctx, cfg.WebSocket.Addr)

	// Warn 以上のログはクライアントにも送る
	slog.SetDefault(slog.New(server.NewBroadcastHandler(slog.Default().Handler(), wsTransport, slog.LevelWarn)))

	ws := server.NewWebSocketServer(ctx, wsTransport, h)
	ready := make(chan struct{})
	go func() {
		if err := ws.Start(server.StartOptions{
			CertFile: cfg.WebSocket.CertFile,
			KeyFile:  cfg.WebSocket.KeyFile,
			Ready:    ready,
		}); err != nil {
			slog.Error("WebSocketサーバーエラー", "err", err)
		}
	}()
	select {
	case <-ready:
		slog.Info("WebSocketサーバーを起動しました", "addr", cfg.WebSocket.Addr)
	case <-time.After(time.Second):
	}

	notifications := h.SubscribeNotifications(notificationBuffer)
	wg.Add(1)
	go func() {
		defer wg.Done()
		ws.Run(notifications)
	}()
	return ws
}
