package console

import (
	"bytes"
	"context"
	"errors"
	"maps"
	"sort"
	"testing"
	"time"

	"solax-modbus/hub"
	"solax-modbus/solax"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInverter は書き込みをそのまま読み返す
type fakeInverter struct {
	engine   *solax.Engine
	regs     solax.Registers
	snapshot hub.Snapshot
	pollErr  error
	polls    int
}

func newFakeInverter(t *testing.T) *fakeInverter {
	t.Helper()
	_, catalog, err := solax.Resolve(solax.ResolverConfig{})
	require.NoError(t, err)
	f := &fakeInverter{engine: solax.NewEngine(catalog), regs: solax.Registers{}}
	f.regs.Put(solax.Input(0x0A), 1500, 700)
	f.regs.Put(solax.Holding(solax.RegBatteryMinimumCapacity), 10)
	f.snapshot = hub.Snapshot{Time: time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local), Values: f.engine.Decode(f.regs)}
	return f
}

func (f *fakeInverter) Catalog() *solax.Catalog { return f.engine.Catalog() }

func (f *fakeInverter) Snapshot() hub.Snapshot {
	return hub.Snapshot{Time: f.snapshot.Time, Values: maps.Clone(f.snapshot.Values)}
}

func (f *fakeInverter) Online() bool { return !f.snapshot.Time.IsZero() }

func (f *fakeInverter) SetString(ctx context.Context, key string, s string) error {
	w, err := f.engine.EncodeString(key, s)
	if err != nil {
		return err
	}
	f.regs.Put(w.Address, w.Words...)
	f.snapshot.Values = f.engine.Decode(f.regs)
	return nil
}

func (f *fakeInverter) Poll(ctx context.Context) error {
	f.polls++
	return f.pollErr
}

func run(t *testing.T, inv Inverter, line string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	p := NewCommandProcessor(context.Background(), inv, &out)
	p.Start()
	defer p.Stop()

	cmd, err := ParseCommand(line)
	require.NoError(t, err)
	require.NotNil(t, cmd)
	err = p.SendCommand(cmd)
	return out.String(), err
}

func TestCommandProcessor(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		contains []string
		excludes []string
	}{
		{
			name:     "list prefix",
			line:     "list pv_",
			contains: []string{"pv_power_1: 1500W\n", "pv_total_power: 2200W\n"},
			excludes: []string{"battery"},
		},
		{
			name:     "list は非表示を出さない",
			line:     "list series",
			excludes: []string{"seriesnumber"},
		},
		{
			name:     "list -all",
			line:     "list series -all",
			contains: []string{"seriesnumber: unavailable\n"},
		},
		{
			name:     "get",
			line:     "get battery_minimum_capacity run_mode",
			contains: []string{"battery_minimum_capacity: 10%\n", "run_mode: unavailable\n"},
		},
		{
			name:     "catalog",
			line:     "catalog run_mode_select",
			contains: []string{"capability: base (subsets: base)", "run_mode_select [select/base] holding:0x001F {0=Self Use Mode, 1=Force Time Use, 2=Back Up Mode, 3=Feedin Priority}"},
		},
		{
			name:     "status",
			line:     "status",
			contains: []string{"inverter: online, last read: 2024-06-01 12:00:00, capability: base"},
		},
		{
			name:     "help",
			line:     "help set",
			contains: []string{"set key value", "Back Up Mode"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, newFakeInverter(t), tt.line)
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestCommandProcessor_Set(t *testing.T) {
	inv := newFakeInverter(t)

	out, err := run(t, inv, "set run_mode_select Back Up Mode")
	require.NoError(t, err)
	assert.Equal(t, "run_mode_select: Back Up Mode\n", out)

	out, err = run(t, inv, "set battery_minimum_capacity 30%")
	require.NoError(t, err)
	assert.Equal(t, "battery_minimum_capacity: 30%\n", out)

	_, err = run(t, inv, "set battery_minimum_capacity 100")
	assert.ErrorIs(t, err, solax.ErrValidation)
	assert.Equal(t, "30", inv.snapshot.Values["battery_minimum_capacity"].String())
}

func TestCommandProcessor_Errors(t *testing.T) {
	inv := newFakeInverter(t)

	_, err := run(t, inv, "get nope")
	assert.ErrorContains(t, err, "nope")

	_, err = run(t, inv, "help nope")
	assert.Error(t, err)

	inv.pollErr = errors.New("timeout")
	_, err = run(t, inv, "refresh")
	assert.EqualError(t, err, "timeout")
	assert.Equal(t, 1, inv.polls)
}

func TestCommandProcessor_StoppedRejectsCommands(t *testing.T) {
	p := NewCommandProcessor(context.Background(), newFakeInverter(t), &bytes.Buffer{})
	p.Start()
	p.Stop()
	assert.Error(t, p.SendCommand(newCommand(CmdStatus)))
}

func complete(dc *dynamicCompleter, line string) []string {
	candidates, _ := dc.Do([]rune(line), len([]rune(line)))
	result := make([]string, 0, len(candidates))
	for _, c := range candidates {
		result = append(result, string(c))
	}
	sort.Strings(result)
	return result
}

func TestDynamicCompleter(t *testing.T) {
	dc := &dynamicCompleter{inverter: newFakeInverter(t)}

	tests := []struct {
		name   string
		line   string
		want   []string
		length int
	}{
		{name: "コマンド名", line: "se", want: []string{"t "}, length: 2},
		{name: "別名も候補", line: "ex", want: []string{"it "}, length: 2},
		{name: "get のキー", line: "get pv_power_", want: []string{"1 ", "2 "}, length: 9},
		{name: "set は書き込めるキーだけ", line: "set run_mode", want: []string{"_select "}, length: 8},
		{name: "set の選択肢", line: "set run_mode_select F", want: []string{"eedin Priority ", "orce Time Use "}, length: 1},
		{name: "数値には選択肢なし", line: "set battery_minimum_capacity ", want: []string{}, length: 0},
		{name: "list のオプション", line: "list -", want: []string{"all "}, length: 1},
		{name: "help はコマンド名", line: "help li", want: []string{"st "}, length: 2},
		{name: "不明なコマンド", line: "foo ", want: []string{}, length: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, complete(dc, tt.line))
			_, length := dc.Do([]rune(tt.line), len([]rune(tt.line)))
			assert.Equal(t, tt.length, length)
		})
	}
}
