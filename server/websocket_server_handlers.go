package server

import (
	"errors"
	"fmt"
	"log/slog"

	"solax-modbus/protocol"
	"solax-modbus/solax"
)

func (ws *WebSocketServer) handleGetCatalogFromClient(connID string, msg *protocol.Message) error {
	return ws.sendSuccess(connID, msg.RequestID, protocol.CatalogToProtocol(ws.inverter.Catalog()))
}

// handleGetValuesFromClient returns the requested keys from the latest snapshot.
func (ws *WebSocketServer) handleGetValuesFromClient(connID string, msg *protocol.Message) error {
	var payload protocol.GetValuesPayload
	if len(msg.Payload) > 0 && string(msg.Payload) != "null" {
		if err := protocol.ParsePayload(msg, &payload); err != nil {
			return ws.sendError(connID, msg.RequestID, protocol.ErrorCodeInvalidRequestFormat, fmt.Sprintf("Error parsing payload: %v", err))
		}
	}

	catalog := ws.inverter.Catalog()
	keys := payload.Keys
	if len(keys) == 0 {
		keys = catalog.Keys()
	}

	snapshot := ws.inverter.Snapshot()
	values := make(map[string]protocol.ValueData, len(keys))
	for _, key := range keys {
		if _, ok := catalog.Lookup(key); !ok {
			return ws.sendError(connID, msg.RequestID, protocol.ErrorCodeInvalidParameters, fmt.Sprintf("unknown key: %s", key))
		}
		v, ok := snapshot.Values[key]
		if !ok {
			v = solax.Unavailable
		}
		values[key] = protocol.ValueToProtocol(v)
	}
	return ws.sendSuccess(connID, msg.RequestID, values)
}

// handleSetValueFromClient writes one value and answers with the value read back.
func (ws *WebSocketServer) handleSetValueFromClient(connID string, msg *protocol.Message) error {
	var payload protocol.SetValuePayload
	if err := protocol.ParsePayload(msg, &payload); err != nil {
		return ws.sendError(connID, msg.RequestID, protocol.ErrorCodeInvalidRequestFormat, fmt.Sprintf("Error parsing payload: %v", err))
	}
	if payload.Key == "" {
		return ws.sendError(connID, msg.RequestID, protocol.ErrorCodeInvalidParameters, "key is required")
	}

	if err := ws.inverter.SetString(ws.ctx, payload.Key, payload.Value); err != nil {
		code := protocol.ErrorCodeModbusError
		if errors.Is(err, solax.ErrValidation) {
			code = protocol.ErrorCodeValidationFailed
		}
		slog.Info("set_value failed", "key", payload.Key, "value", payload.Value, "err", err)
		return ws.sendError(connID, msg.RequestID, code, err.Error())
	}

	v, ok := ws.inverter.Snapshot().Values[payload.Key]
	if !ok {
		v = solax.Unavailable
	}
	return ws.sendSuccess(connID, msg.RequestID, map[string]protocol.ValueData{payload.Key: protocol.ValueToProtocol(v)})
}

// handleRefreshFromClient polls immediately instead of waiting for the next scan.
func (ws *WebSocketServer) handleRefreshFromClient(connID string, msg *protocol.Message) error {
	if err := ws.inverter.Poll(ws.ctx); err != nil {
		return ws.sendError(connID, msg.RequestID, protocol.ErrorCodeModbusError, err.Error())
	}
	snapshot := ws.inverter.Snapshot()
	return ws.sendSuccess(connID, msg.RequestID, protocol.SnapshotPayload{
		Time:   snapshot.Time,
		Values: protocol.ValuesToProtocol(snapshot.Values),
	})
}
