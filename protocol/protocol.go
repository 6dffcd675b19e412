package protocol

import (
	"encoding/json"
	"time"
)

// MessageType defines the type of message being sent between client and server
type MessageType string

const (
	// Server -> Client message types
	MessageTypeInitialState      MessageType = "initial_state"
	MessageTypeSnapshot          MessageType = "snapshot"
	MessageTypeAvailability      MessageType = "availability"
	MessageTypeErrorNotification MessageType = "error_notification"
	MessageTypeLogNotification   MessageType = "log_notification"
	MessageTypeCommandResult     MessageType = "command_result"

	// Client -> Server message types
	MessageTypeGetCatalog MessageType = "get_catalog"
	MessageTypeGetValues  MessageType = "get_values"
	MessageTypeSetValue   MessageType = "set_value"
	MessageTypeRefresh    MessageType = "refresh"
)

// ErrorCode defines error codes for error messages
type ErrorCode string

// Client Request Related
const (
	ErrorCodeInvalidRequestFormat ErrorCode = "INVALID_REQUEST_FORMAT"
	ErrorCodeInvalidParameters    ErrorCode = "INVALID_PARAMETERS"
	ErrorCodeValidationFailed     ErrorCode = "VALIDATION_FAILED"
)

// Server/Communication Related
const (
	ErrorCodeModbusError         ErrorCode = "MODBUS_ERROR"
	ErrorCodeInternalServerError ErrorCode = "INTERNAL_SERVER_ERROR"
)

// Message is the base structure for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"requestId,omitempty"`
}

// Error represents an error in the WebSocket protocol
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ValueData は1キーの値です。Number は数値として扱える場合のみ。
type ValueData struct {
	Status string   `json:"status"`           // ok, unavailable, unknown_code
	String string   `json:"string,omitempty"` // 表示用 (単位なし)
	Number *float64 `json:"number,omitempty"`
	Unit   string   `json:"unit,omitempty"`
}

// OptionData is one select/enum choice.
type OptionData struct {
	Code  int    `json:"code"`
	Label string `json:"label"`
}

// Entity はカタログ上の1エンティティの説明です。
type Entity struct {
	Key         string       `json:"key"`
	Name        string       `json:"name"`
	Kind        string       `json:"kind"` // sensor, number, select
	Subset      string       `json:"subset"`
	Writable    bool         `json:"writable,omitempty"`
	Derived     bool         `json:"derived,omitempty"`
	Register    string       `json:"register,omitempty"` // 例: holding:0x0024
	Unit        string       `json:"unit,omitempty"`
	DeviceClass string       `json:"deviceClass,omitempty"`
	Hidden      bool         `json:"hidden,omitempty"`
	Min         *float64     `json:"min,omitempty"`
	Max         *float64     `json:"max,omitempty"`
	Step        *float64     `json:"step,omitempty"`
	Options     []OptionData `json:"options,omitempty"`
}

// CatalogData is the resolved catalog as sent to clients.
type CatalogData struct {
	Capability string   `json:"capability"`
	Subsets    []string `json:"subsets"`
	Entities   []Entity `json:"entities"`
}

type InitialStatePayload struct {
	Catalog           CatalogData          `json:"catalog"`
	Online            bool                 `json:"online"`
	Time              *time.Time           `json:"time,omitempty"` // 最後に読み出した時刻
	Values            map[string]ValueData `json:"values"`
	ServerStartupTime time.Time            `json:"serverStartupTime"`
}

type SnapshotPayload struct {
	Time   time.Time            `json:"time"`
	Values map[string]ValueData `json:"values"`
}

type AvailabilityPayload struct {
	Online bool   `json:"online"`
	Error  string `json:"error,omitempty"`
}

type ErrorNotificationPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

type LogNotificationPayload struct {
	Level      string                 `json:"level"`
	Message    string                 `json:"message"`
	Time       string                 `json:"time"`
	Attributes map[string]interface{} `json:"attributes"`
}

type CommandResultPayload struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// GetValuesPayload は keys が空なら全キー
type GetValuesPayload struct {
	Keys []string `json:"keys,omitempty"`
}

// SetValuePayload は数値でもラベルでも良い文字列を受け付けます。
type SetValuePayload struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// CreateMessage creates a JSON message with the given type and payload
func CreateMessage(msgType MessageType, payload interface{}, requestID string) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	msg := Message{
		Type:      msgType,
		Payload:   payloadBytes,
		RequestID: requestID,
	}

	return json.Marshal(msg)
}

// ParseMessage parses a JSON message into a Message struct
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ParsePayload parses the payload of a message into the given struct
func ParsePayload(msg *Message, payload interface{}) error {
	return json.Unmarshal(msg.Payload, payload)
}
