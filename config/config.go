package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"solax-modbus/solax"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultConfigFile はデフォルトの設定ファイル名
	DefaultConfigFile = "config.toml"

	ModeTCP = "tcp"
	ModeRTU = "rtu"
)

// Config はアプリケーション全体の設定を表す
type Config struct {
	Debug bool `toml:"debug"`
	Log   struct {
		Filename string `toml:"filename"`
	} `toml:"log"`

	// 接続するインバーターの機種 (ケイパビリティ)
	Inverter struct {
		ReadGen2X1  bool   `toml:"read_gen2_x1"`
		ReadGen3X1  bool   `toml:"read_gen3_x1"`
		ReadGen3X3  bool   `toml:"read_gen3_x3"`
		ReadX1EPS   bool   `toml:"read_x1_eps"`
		ReadX3EPS   bool   `toml:"read_x3_eps"`
		CatalogFile string `toml:"catalog_file"` // 空なら組み込みカタログ
	} `toml:"inverter"`

	Modbus struct {
		Mode         string `toml:"mode"`    // "tcp" or "rtu"
		Address      string `toml:"address"` // host:port or serial device
		UnitID       int    `toml:"unit_id"`
		Timeout      string `toml:"timeout"`
		ScanInterval string `toml:"scan_interval"`
		BaudRate     int    `toml:"baud_rate"`
		DataBits     int    `toml:"data_bits"`
		Parity       string `toml:"parity"`
		StopBits     int    `toml:"stop_bits"`
	} `toml:"modbus"`

	MQTT struct {
		Enabled         bool   `toml:"enabled"`
		Broker          string `toml:"broker"`
		Username        string `toml:"username"`
		Password        string `toml:"password"`
		ClientID        string `toml:"client_id"` // 空ならランダム
		TopicPrefix     string `toml:"topic_prefix"`
		DiscoveryPrefix string `toml:"discovery_prefix"`
		NodeID          string `toml:"node_id"`
	} `toml:"mqtt"`

	InfluxDB struct {
		Enabled bool   `toml:"enabled"`
		URL     string `toml:"url"`
		Token   string `toml:"token"`
		Org     string `toml:"org"`
		Bucket  string `toml:"bucket"`
	} `toml:"influxdb"`

	WebSocket struct {
		Enabled  bool   `toml:"enabled"`
		Addr     string `toml:"addr"`
		CertFile string `toml:"cert_file"` // 両方指定すると wss で待ち受ける
		KeyFile  string `toml:"key_file"`
	} `toml:"websocket"`

	Console struct {
		Enabled bool `toml:"enabled"`
	} `toml:"console"`
}

// NewConfig はデフォルト設定を持つConfigを作成する
func NewConfig() *Config {
	cfg := &Config{
		Debug: false,
	}
	cfg.Log.Filename = "solax-modbus.log"
	cfg.Modbus.Mode = ModeTCP
	cfg.Modbus.Address = "192.168.1.100:502"
	cfg.Modbus.UnitID = 1
	cfg.Modbus.Timeout = "3s"
	cfg.Modbus.ScanInterval = "15s"
	cfg.Modbus.BaudRate = 19200
	cfg.Modbus.DataBits = 8
	cfg.Modbus.Parity = "N"
	cfg.Modbus.StopBits = 1
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.TopicPrefix = "solax"
	cfg.MQTT.DiscoveryPrefix = "homeassistant"
	cfg.MQTT.NodeID = "solax"
	cfg.InfluxDB.URL = "http://localhost:8086"
	cfg.InfluxDB.Bucket = "solax"
	cfg.WebSocket.Addr = "localhost:8080"
	cfg.Console.Enabled = true
	return cfg
}

// LoadConfig は設定を読み込む
// 以下の優先順位でロードする:
// 1. 指定されたパスの設定ファイル（指定がある場合）
// 2. カレントディレクトリのデフォルト設定ファイル（存在する場合）
// 3. デフォルト設定
func LoadConfig(configPath string) (*Config, error) {
	config := NewConfig()

	filePath := configPath
	if filePath == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			filePath = DefaultConfigFile
		} else {
			return config, nil
		}
	}

	md, err := toml.DecodeFile(filePath, config)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: 不明な設定項目があります: %v", filePath, undecoded)
	}
	return config, nil
}

// Validate は値の整合性を確認する
func (c *Config) Validate() error {
	if c.Modbus.Mode != ModeTCP && c.Modbus.Mode != ModeRTU {
		return fmt.Errorf("modbus.mode は %q か %q で指定してください: %q", ModeTCP, ModeRTU, c.Modbus.Mode)
	}
	if c.Modbus.Address == "" {
		return fmt.Errorf("modbus.address が指定されていません")
	}
	if c.Modbus.UnitID < 0 || c.Modbus.UnitID > 247 {
		return fmt.Errorf("modbus.unit_id が範囲外です: %d", c.Modbus.UnitID)
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if _, err := c.ScanInterval(); err != nil {
		return err
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker が指定されていません")
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		return fmt.Errorf("influxdb.url と influxdb.bucket を指定してください")
	}
	return nil
}

func parsePositiveDuration(name, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s の形式が不正です: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s は正の値で指定してください: %s", name, s)
	}
	return d, nil
}

// Timeout は1リクエストあたりのタイムアウト
func (c *Config) Timeout() (time.Duration, error) {
	return parsePositiveDuration("modbus.timeout", c.Modbus.Timeout)
}

// ScanInterval はポーリング周期
func (c *Config) ScanInterval() (time.Duration, error) {
	return parsePositiveDuration("modbus.scan_interval", c.Modbus.ScanInterval)
}

// ResolverConfig はカタログ解決に渡す値
func (c *Config) ResolverConfig() solax.ResolverConfig {
	return solax.ResolverConfig{
		ReadGen2X1: c.Inverter.ReadGen2X1,
		ReadGen3X1: c.Inverter.ReadGen3X1,
		ReadGen3X3: c.Inverter.ReadGen3X3,
		ReadX1EPS:  c.Inverter.ReadX1EPS,
		ReadX3EPS:  c.Inverter.ReadX3EPS,
	}
}

// ApplyCommandLineArgs はコマンドライン引数で指定された値を設定に適用する
func (c *Config) ApplyCommandLineArgs(args CommandLineArgs) {
	if args.DebugSpecified {
		c.Debug = args.Debug
	}
	if args.LogFilenameSpecified {
		c.Log.Filename = args.LogFilename
	}
	if args.CatalogFileSpecified {
		c.Inverter.CatalogFile = args.CatalogFile
	}
	// modbus
	if args.ModbusModeSpecified {
		c.Modbus.Mode = args.ModbusMode
	}
	if args.ModbusAddressSpecified {
		c.Modbus.Address = args.ModbusAddress
	}
	if args.UnitIDSpecified {
		c.Modbus.UnitID = args.UnitID
	}
	if args.ScanIntervalSpecified {
		c.Modbus.ScanInterval = args.ScanInterval
	}
	// mqtt
	if args.MQTTEnabledSpecified {
		c.MQTT.Enabled = args.MQTTEnabled
	}
	if args.MQTTBrokerSpecified {
		c.MQTT.Broker = args.MQTTBroker
	}
	// websocket
	if args.WebSocketEnabledSpecified {
		c.WebSocket.Enabled = args.WebSocketEnabled
	}
	if args.WebSocketAddrSpecified {
		c.WebSocket.Addr = args.WebSocketAddr
	}
	if args.ConsoleEnabledSpecified {
		c.Console.Enabled = args.ConsoleEnabled
	}
}

// CommandLineArgs はコマンドライン引数からの値を保持する
type CommandLineArgs struct {
	// 設定ファイル (メタ設定)
	ConfigFile      string
	ConfigSpecified bool

	// カタログを YAML で書き出して終了する
	DumpCatalog string

	Debug          bool
	DebugSpecified bool

	LogFilename          string
	LogFilenameSpecified bool

	CatalogFile          string
	CatalogFileSpecified bool

	// Modbus
	ModbusMode             string
	ModbusModeSpecified    bool
	ModbusAddress          string
	ModbusAddressSpecified bool
	UnitID                 int
	UnitIDSpecified        bool
	ScanInterval           string
	ScanIntervalSpecified  bool

	// MQTT
	MQTTEnabled          bool
	MQTTEnabledSpecified bool
	MQTTBroker           string
	MQTTBrokerSpecified  bool

	// WebSocketサーバー
	WebSocketEnabled          bool
	WebSocketEnabledSpecified bool
	WebSocketAddr             string
	WebSocketAddrSpecified    bool

	ConsoleEnabled          bool
	ConsoleEnabledSpecified bool
}

// ParseCommandLineArgs はコマンドライン引数をパースする
func ParseCommandLineArgs(name string, arguments []string) (CommandLineArgs, error) {
	var args CommandLineArgs
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	fs.StringVar(&args.ConfigFile, "config", "", "TOML設定ファイルのパスを指定する")
	fs.StringVar(&args.DumpCatalog, "dump-catalog", "", "有効なカタログをYAMLで書き出して終了する (- は標準出力)")
	fs.BoolVar(&args.Debug, "debug", false, "デバッグモードを有効にする")
	fs.StringVar(&args.LogFilename, "log", "solax-modbus.log", "ログファイル名を指定する (空なら標準エラー出力)")
	fs.StringVar(&args.CatalogFile, "catalog", "", "YAMLカタログファイルを指定する")

	fs.StringVar(&args.ModbusMode, "mode", ModeTCP, "Modbus の接続方式 (tcp/rtu)")
	fs.StringVar(&args.ModbusAddress, "address", "", "インバーターのアドレス (host:port またはシリアルデバイス)")
	fs.IntVar(&args.UnitID, "unit", 1, "Modbus のユニットID")
	fs.StringVar(&args.ScanInterval, "interval", "15s", "ポーリング周期")

	fs.BoolVar(&args.MQTTEnabled, "mqtt", false, "MQTT への発行を有効にする")
	fs.StringVar(&args.MQTTBroker, "mqtt-broker", "tcp://localhost:1883", "MQTT ブローカーのアドレス")

	fs.BoolVar(&args.WebSocketEnabled, "websocket", false, "WebSocketサーバーを有効にする")
	fs.StringVar(&args.WebSocketAddr, "ws-addr", "localhost:8080", "WebSocketサーバーの待ち受けアドレス")

	fs.BoolVar(&args.ConsoleEnabled, "console", true, "対話コンソールを有効にする")

	if err := fs.Parse(arguments); err != nil {
		return args, err
	}

	// 明示的に指定されたフラグだけを設定ファイルより優先する
	specified := map[string]*bool{
		"config":      &args.ConfigSpecified,
		"debug":       &args.DebugSpecified,
		"log":         &args.LogFilenameSpecified,
		"catalog":     &args.CatalogFileSpecified,
		"mode":        &args.ModbusModeSpecified,
		"address":     &args.ModbusAddressSpecified,
		"unit":        &args.UnitIDSpecified,
		"interval":    &args.ScanIntervalSpecified,
		"mqtt":        &args.MQTTEnabledSpecified,
		"mqtt-broker": &args.MQTTBrokerSpecified,
		"websocket":   &args.WebSocketEnabledSpecified,
		"ws-addr":     &args.WebSocketAddrSpecified,
		"console":     &args.ConsoleEnabledSpecified,
	}
	fs.Visit(func(f *flag.Flag) {
		if p, ok := specified[f.Name]; ok {
			*p = true
		}
	})
	return args, nil
}
