package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"solax-modbus/hub"
	"solax-modbus/protocol"
	"solax-modbus/solax"
)

// Inverter is the hub as seen by WebSocket clients; *hub.Hub implements it.
type Inverter interface {
	Catalog() *solax.Catalog
	Snapshot() hub.Snapshot
	Online() bool
	SetString(ctx context.Context, key string, s string) error
	Poll(ctx context.Context) error
}

// WebSocketServer implements a WebSocket server for the inverter
type WebSocketServer struct {
	ctx         context.Context
	cancel      context.CancelFunc
	transport   WebSocketTransport
	inverter    Inverter
	startupTime time.Time
}

// NewWebSocketServer creates a new WebSocket server
func NewWebSocketServer(ctx context.Context, transport WebSocketTransport, inverter Inverter) *WebSocketServer {
	serverCtx, cancel := context.WithCancel(ctx)

	ws := &WebSocketServer{
		ctx:         serverCtx,
		cancel:      cancel,
		transport:   transport,
		inverter:    inverter,
		startupTime: time.Now(),
	}

	transport.SetConnectHandler(ws.handleClientConnect)
	transport.SetMessageHandler(ws.handleClientMessage)
	transport.SetDisconnectHandler(ws.handleClientDisconnect)

	return ws
}

// Start starts the WebSocket server
func (ws *WebSocketServer) Start(options StartOptions) error {
	return ws.transport.Start(options)
}

// Stop stops the WebSocket server
func (ws *WebSocketServer) Stop() error {
	ws.cancel()
	return ws.transport.Stop()
}

func (ws *WebSocketServer) handleClientConnect(connID string) error {
	slog.Debug("New WebSocket connection established", "connID", connID)
	return ws.sendInitialStateToClient(connID)
}

func (ws *WebSocketServer) handleClientDisconnect(connID string) {
	slog.Debug("WebSocket connection closed", "connID", connID)
}

// handleClientMessage is called when a message is received from a client
func (ws *WebSocketServer) handleClientMessage(connID string, message []byte) error {
	msg, err := protocol.ParseMessage(message)
	if err != nil {
		slog.Warn("Error parsing message", "err", err)
		return ws.sendMessageToClient(connID, protocol.MessageTypeErrorNotification, protocol.ErrorNotificationPayload{
			Code:    protocol.ErrorCodeInvalidRequestFormat,
			Message: fmt.Sprintf("Error parsing message: %v", err),
		}, "")
	}

	switch msg.Type {
	case protocol.MessageTypeGetCatalog:
		return ws.handleGetCatalogFromClient(connID, msg)
	case protocol.MessageTypeGetValues:
		return ws.handleGetValuesFromClient(connID, msg)
	case protocol.MessageTypeSetValue:
		return ws.handleSetValueFromClient(connID, msg)
	case protocol.MessageTypeRefresh:
		return ws.handleRefreshFromClient(connID, msg)
	default:
		slog.Warn("Unknown message type", "type", msg.Type)
		return ws.sendMessageToClient(connID, protocol.MessageTypeErrorNotification, protocol.ErrorNotificationPayload{
			Code:    protocol.ErrorCodeInvalidRequestFormat,
			Message: fmt.Sprintf("Unknown message type: %s", msg.Type),
		}, msg.RequestID)
	}
}

func (ws *WebSocketServer) sendInitialStateToClient(connID string) error {
	snapshot := ws.inverter.Snapshot()
	payload := protocol.InitialStatePayload{
		Catalog:           protocol.CatalogToProtocol(ws.inverter.Catalog()),
		Online:            ws.inverter.Online(),
		Values:            protocol.ValuesToProtocol(snapshot.Values),
		ServerStartupTime: ws.startupTime,
	}
	if !snapshot.Time.IsZero() {
		payload.Time = &snapshot.Time
	}
	return ws.sendMessageToClient(connID, protocol.MessageTypeInitialState, payload, "")
}

func (ws *WebSocketServer) sendMessageToClient(connID string, msgType protocol.MessageType, payload interface{}, requestID string) error {
	data, err := protocol.CreateMessage(msgType, payload, requestID)
	if err != nil {
		return fmt.Errorf("error creating message: %w", err)
	}
	return ws.transport.SendMessage(connID, data)
}

func (ws *WebSocketServer) broadcastMessageToClients(msgType protocol.MessageType, payload interface{}) error {
	data, err := protocol.CreateMessage(msgType, payload, "")
	if err != nil {
		return err
	}
	return ws.transport.BroadcastMessage(data)
}

// sendSuccess sends a successful command_result carrying data.
func (ws *WebSocketServer) sendSuccess(connID string, requestID string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return ws.sendError(connID, requestID, protocol.ErrorCodeInternalServerError, err.Error())
	}
	return ws.sendMessageToClient(connID, protocol.MessageTypeCommandResult, protocol.CommandResultPayload{
		Success: true,
		Data:    raw,
	}, requestID)
}

func (ws *WebSocketServer) sendError(connID string, requestID string, code protocol.ErrorCode, message string) error {
	return ws.sendMessageToClient(connID, protocol.MessageTypeCommandResult, protocol.CommandResultPayload{
		Success: false,
		Error:   &protocol.Error{Code: code, Message: message},
	}, requestID)
}

// Run broadcasts hub notifications until the server stops or the channel is closed.
func (ws *WebSocketServer) Run(notifications <-chan hub.Notification) {
	for {
		select {
		case <-ws.ctx.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			var err error
			switch n.Type {
			case hub.SnapshotUpdated:
				err = ws.broadcastMessageToClients(protocol.MessageTypeSnapshot, protocol.SnapshotPayload{
					Time:   n.Snapshot.Time,
					Values: protocol.ValuesToProtocol(n.Snapshot.Values),
				})
			case hub.InverterOnline:
				err = ws.broadcastMessageToClients(protocol.MessageTypeAvailability, protocol.AvailabilityPayload{Online: true})
			case hub.InverterOffline:
				payload := protocol.AvailabilityPayload{Online: false}
				if n.Error != nil {
					payload.Error = n.Error.Error()
				}
				err = ws.broadcastMessageToClients(protocol.MessageTypeAvailability, payload)
			}
			if err != nil {
				slog.Debug("broadcast failed", "type", n.Type, "err", err)
			}
		}
	}
}
