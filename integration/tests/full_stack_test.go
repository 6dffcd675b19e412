//go:build integration

package tests

import (
	"encoding/json"
	"testing"
	"time"

	"solax-modbus/hub"
	"solax-modbus/integration/helpers"
	"solax-modbus/protocol"
	"solax-modbus/solax"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

func startServer(t *testing.T) *helpers.TestServer {
	t.Helper()
	server, err := helpers.NewTestServer(solax.ResolverConfig{ReadGen3X1: true})
	require.NoError(t, err, "テストサーバーの作成")
	require.NoError(t, server.Start(), "サーバーの起動")
	t.Cleanup(server.Stop)
	return server
}

func connect(t *testing.T, server *helpers.TestServer) *helpers.WebSocketConnection {
	t.Helper()
	conn, err := helpers.NewWebSocketConnection(server.GetWebSocketURL())
	require.NoError(t, err, "WebSocket接続の作成")
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func commandResult(t *testing.T, conn *helpers.WebSocketConnection, requestID string) protocol.CommandResultPayload {
	t.Helper()
	msg, err := conn.WaitFor(protocol.MessageTypeCommandResult, waitTimeout)
	require.NoError(t, err)
	assert.Equal(t, requestID, msg.RequestID)
	var result protocol.CommandResultPayload
	require.NoError(t, protocol.ParsePayload(msg, &result))
	return result
}

func TestFullStack_InitialState(t *testing.T) {
	server := startServer(t)
	require.NoError(t, server.Poll())

	conn := connect(t, server)
	msg, err := conn.WaitFor(protocol.MessageTypeInitialState, waitTimeout)
	require.NoError(t, err, "initial_state の受信")

	var state protocol.InitialStatePayload
	require.NoError(t, protocol.ParsePayload(msg, &state))
	assert.True(t, state.Online)
	require.NotNil(t, state.Time)
	assert.Equal(t, "gen3_x1", state.Catalog.Capability)
	assert.Contains(t, state.Catalog.Subsets, "gen3")

	pv := state.Values["pv_total_power"]
	assert.Equal(t, "ok", pv.Status)
	require.NotNil(t, pv.Number)
	assert.Equal(t, 2200.0, *pv.Number)
	assert.Equal(t, "Self Use Mode", state.Values["run_mode_select"].String)

	// MQTT にも同じ値が出ている
	require.Eventually(t, func() bool {
		payload, ok := server.Broker.Last("solax/pv_total_power/state")
		return ok && payload == "2200"
	}, waitTimeout, 10*time.Millisecond)
}

func TestFullStack_SetValueOverWebSocket(t *testing.T) {
	server := startServer(t)
	require.NoError(t, server.Poll())
	conn := connect(t, server)

	require.NoError(t, conn.Send(protocol.MessageTypeSetValue, protocol.SetValuePayload{Key: "battery_minimum_capacity", Value: "30"}, "set-1"))
	result := commandResult(t, conn, "set-1")
	require.True(t, result.Success, "%+v", result.Error)

	var values map[string]protocol.ValueData
	require.NoError(t, json.Unmarshal(result.Data, &values))
	require.NotNil(t, values["battery_minimum_capacity"].Number)
	assert.Equal(t, 30.0, *values["battery_minimum_capacity"].Number)
	assert.Equal(t, uint16(30), server.Inverter.Register(solax.Holding(solax.RegBatteryMinimumCapacity)))

	// 読み返しは MQTT にも反映される
	require.Eventually(t, func() bool {
		payload, ok := server.Broker.Last("solax/battery_minimum_capacity/state")
		return ok && payload == "30"
	}, waitTimeout, 10*time.Millisecond)
}

func TestFullStack_RejectsInvalidValue(t *testing.T) {
	server := startServer(t)
	require.NoError(t, server.Poll())
	conn := connect(t, server)

	tests := []struct {
		name    string
		payload protocol.SetValuePayload
		code    protocol.ErrorCode
	}{
		{name: "範囲外", payload: protocol.SetValuePayload{Key: "battery_minimum_capacity", Value: "100"}, code: protocol.ErrorCodeValidationFailed},
		{name: "読み出し専用", payload: protocol.SetValuePayload{Key: "pv_power_1", Value: "1"}, code: protocol.ErrorCodeValidationFailed},
		{name: "キーなし", payload: protocol.SetValuePayload{Value: "1"}, code: protocol.ErrorCodeInvalidParameters},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, conn.Send(protocol.MessageTypeSetValue, tt.payload, tt.name))
			result := commandResult(t, conn, tt.name)
			assert.False(t, result.Success)
			require.NotNil(t, result.Error)
			assert.Equal(t, tt.code, result.Error.Code)
		})
	}
	assert.Equal(t, uint16(10), server.Inverter.Register(solax.Holding(solax.RegBatteryMinimumCapacity)))
}

func TestFullStack_CommandOverMQTT(t *testing.T) {
	server := startServer(t)
	require.NoError(t, server.Poll())
	conn := connect(t, server)
	_, err := conn.WaitFor(protocol.MessageTypeInitialState, waitTimeout)
	require.NoError(t, err)

	require.NoError(t, server.Broker.Deliver("solax/+/set", "solax/run_mode_select/set", []byte("Back Up Mode")))
	assert.Equal(t, uint16(2), server.Inverter.Register(solax.Holding(solax.RegRunModeSelect)))

	// WebSocket クライアントには読み返した snapshot が届く
	msg, err := conn.WaitFor(protocol.MessageTypeSnapshot, waitTimeout)
	require.NoError(t, err)
	var snapshot protocol.SnapshotPayload
	require.NoError(t, protocol.ParsePayload(msg, &snapshot))
	assert.Equal(t, "Back Up Mode", snapshot.Values["run_mode_select"].String)

	err = server.Broker.Deliver("solax/+/set", "solax/run_mode_select/set", []byte("Turbo"))
	assert.ErrorIs(t, err, solax.ErrValidation)
	assert.Equal(t, uint16(2), server.Inverter.Register(solax.Holding(solax.RegRunModeSelect)))
}

func TestFullStack_OfflineAndRecovery(t *testing.T) {
	server := startServer(t)
	require.NoError(t, server.Poll())
	conn := connect(t, server)
	_, err := conn.WaitFor(protocol.MessageTypeInitialState, waitTimeout)
	require.NoError(t, err)

	server.Inverter.SetDown(true)
	for range hub.DefaultOfflineAfter {
		assert.Error(t, server.Poll())
	}

	msg, err := conn.WaitFor(protocol.MessageTypeAvailability, waitTimeout)
	require.NoError(t, err)
	var availability protocol.AvailabilityPayload
	require.NoError(t, protocol.ParsePayload(msg, &availability))
	assert.False(t, availability.Online)
	assert.Contains(t, availability.Error, "i/o timeout")

	require.Eventually(t, func() bool {
		payload, _ := server.Broker.Last("solax/status")
		return payload == "offline"
	}, waitTimeout, 10*time.Millisecond)

	// 前回の値は保持される
	assert.Equal(t, 2200.0, server.Hub.Value("pv_total_power").Number)

	server.Inverter.SetDown(false)
	require.NoError(t, server.Poll())
	msg, err = conn.WaitFor(protocol.MessageTypeAvailability, waitTimeout)
	require.NoError(t, err)
	require.NoError(t, protocol.ParsePayload(msg, &availability))
	assert.True(t, availability.Online)

	require.Eventually(t, func() bool {
		payload, _ := server.Broker.Last("solax/status")
		return payload == "online"
	}, waitTimeout, 10*time.Millisecond)
}
