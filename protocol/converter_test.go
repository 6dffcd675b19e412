package protocol

import (
	"testing"

	"solax-modbus/solax"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func TestValueToProtocol(t *testing.T) {
	tests := []struct {
		name  string
		value solax.Value
		want  ValueData
	}{
		{
			name:  "整数",
			value: solax.Value{Number: 800, Integer: true, Unit: "W"},
			want:  ValueData{Status: "ok", String: "800", Number: ptr(800), Unit: "W"},
		},
		{
			name:  "小数",
			value: solax.Value{Number: 230.1, Unit: "V"},
			want:  ValueData{Status: "ok", String: "230.1", Number: ptr(230.1), Unit: "V"},
		},
		{
			name:  "ラベル",
			value: solax.Value{Number: 2, Label: "Normal Mode", Integer: true},
			want:  ValueData{Status: "ok", String: "Normal Mode"},
		},
		{
			name:  "文字列",
			value: solax.Value{Text: "07:30"},
			want:  ValueData{Status: "ok", String: "07:30"},
		},
		{
			name:  "未知のコード",
			value: solax.Value{Status: solax.StatusUnknownCode, Number: 7, Integer: true},
			want:  ValueData{Status: "unknown_code", String: "unknown code 7", Number: ptr(7)},
		},
		{
			name:  "読み出せない",
			value: solax.Unavailable,
			want:  ValueData{Status: "unavailable"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ValueToProtocol(tt.value)); diff != "" {
				t.Errorf("ValueToProtocol mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCatalogToProtocol(t *testing.T) {
	_, catalog, err := solax.Resolve(solax.ResolverConfig{ReadGen3X1: true})
	require.NoError(t, err)

	data := CatalogToProtocol(catalog)
	assert.Equal(t, "gen3_x1", data.Capability)
	assert.Equal(t, catalog.Subsets(), data.Subsets)
	require.Len(t, data.Entities, catalog.Len())

	byKey := map[string]Entity{}
	for _, e := range data.Entities {
		byKey[e.Key] = e
	}

	want := Entity{
		Key:      "battery_charge",
		Name:     "Battery Charge",
		Kind:     "number",
		Subset:   "gen3",
		Writable: true,
		Register: "holding:0x0024",
		Unit:     "A",
		Min:      ptr(0),
		Max:      ptr(20),
		Step:     ptr(0.1),
	}
	if diff := cmp.Diff(want, byKey["battery_charge"]); diff != "" {
		t.Errorf("battery_charge mismatch (-want +got):\n%s", diff)
	}

	sel := byKey["run_mode_select"]
	assert.Equal(t, "select", sel.Kind)
	assert.Equal(t, []OptionData{
		{Code: 0, Label: "Self Use Mode"},
		{Code: 1, Label: "Force Time Use"},
		{Code: 2, Label: "Back Up Mode"},
		{Code: 3, Label: "Feedin Priority"},
	}, sel.Options)

	derived := byKey["house_load"]
	assert.True(t, derived.Derived)
	assert.False(t, derived.Writable)
	assert.Empty(t, derived.Register)

	assert.True(t, byKey["seriesnumber"].Hidden)
}
