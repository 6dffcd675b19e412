package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"solax-modbus/solax"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
debug = true

[inverter]
read_gen3_x3 = true
read_x3_eps = true

[modbus]
mode = "rtu"
address = "/dev/ttyUSB0"
unit_id = 3
scan_interval = "30s"

[mqtt]
enabled = true
broker = "tcp://broker:1883"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.Debug)
	assert.Equal(t, solax.ResolverConfig{ReadGen3X3: true, ReadX3EPS: true}, cfg.ResolverConfig())
	assert.Equal(t, ModeRTU, cfg.Modbus.Mode)
	assert.Equal(t, 3, cfg.Modbus.UnitID)
	assert.True(t, cfg.MQTT.Enabled)

	// ファイルにない項目はデフォルトのまま
	assert.Equal(t, "solax", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 19200, cfg.Modbus.BaudRate)

	interval, err := cfg.ScanInterval()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, interval)
	timeout, err := cfg.Timeout()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, timeout)
}

func TestLoadConfig_Defaults(t *testing.T) {
	// カレントディレクトリに config.toml がなければデフォルト
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer func() { _ = os.Chdir(wd) }()

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "[modbus\n"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "[modbus]\nspeed = 1\n"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{name: "不明な接続方式", modify: func(c *Config) { c.Modbus.Mode = "udp" }},
		{name: "アドレスなし", modify: func(c *Config) { c.Modbus.Address = "" }},
		{name: "ユニットID範囲外", modify: func(c *Config) { c.Modbus.UnitID = 300 }},
		{name: "不正なタイムアウト", modify: func(c *Config) { c.Modbus.Timeout = "soon" }},
		{name: "ゼロのポーリング周期", modify: func(c *Config) { c.Modbus.ScanInterval = "0s" }},
		{name: "ブローカーなし", modify: func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Broker = "" }},
		{name: "バケットなし", modify: func(c *Config) { c.InfluxDB.Enabled = true; c.InfluxDB.Bucket = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestCommandLineArgs_Override(t *testing.T) {
	path := writeConfig(t, `
[modbus]
address = "10.0.0.5:502"
scan_interval = "30s"

[websocket]
enabled = true
`)
	args, err := ParseCommandLineArgs("solax-modbus", []string{"-config", path, "-interval=5s", "-mqtt", "-console=false"})
	require.NoError(t, err)
	assert.True(t, args.ConfigSpecified)
	assert.True(t, args.ScanIntervalSpecified)
	assert.False(t, args.ModbusAddressSpecified)
	assert.False(t, args.WebSocketEnabledSpecified)

	cfg, err := LoadConfig(args.ConfigFile)
	require.NoError(t, err)
	cfg.ApplyCommandLineArgs(args)

	// 指定されたフラグだけが上書きする
	assert.Equal(t, "5s", cfg.Modbus.ScanInterval)
	assert.True(t, cfg.MQTT.Enabled)
	assert.False(t, cfg.Console.Enabled)
	assert.Equal(t, "10.0.0.5:502", cfg.Modbus.Address)
	assert.True(t, cfg.WebSocket.Enabled)
	assert.Equal(t, 1, cfg.Modbus.UnitID)
}

func TestParseCommandLineArgs_Invalid(t *testing.T) {
	_, err := ParseCommandLineArgs("solax-modbus", []string{"-unit", "abc"})
	assert.Error(t, err)
}
