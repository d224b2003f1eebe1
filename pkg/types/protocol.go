package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sourcegraph/jsonrpc2"
)

const (
	// ProtocolVersion is the MCP protocol revision this server speaks.
	ProtocolVersion = "2024-11-05"

	// JSONRPCVersion is the JSON-RPC version used by MCP
	JSONRPCVersion = "2.0"
)

// ID represents a unique identifier for a request in JSON-RPC.
// It round-trips string and integer ids without coercing one into the
// other. A message whose id is absent is a notification.
type ID = jsonrpc2.ID

// Message represents either a Request, Notification, or Response
type Message struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *ID              `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  *json.RawMessage `json:"params,omitempty"`
	Result  *json.RawMessage `json:"result,omitempty"`
	Error   *ErrorResponse   `json:"error,omitempty"`
}

// ErrorResponse represents a JSON-RPC 2.0 error response
type ErrorResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewError creates a new ErrorResponse with the given code and message
func NewError(code int, message string, data ...interface{}) *ErrorResponse {
	err := &ErrorResponse{
		Code:    code,
		Message: message,
	}
	if len(data) > 0 {
		err.Data = data[0]
	}
	return err
}

// Error implements the error interface.
func (e *ErrorResponse) Error() string {
	return e.Message
}

// Standard JSON-RPC error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// DecodeMessage parses data as a JSON-RPC 2.0 message. It fails on
// malformed JSON, a missing or wrong "jsonrpc" version, and structurally
// invalid messages. Params are carried through opaquely.
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("malformed JSON-RPC payload: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// IsNotification reports whether the message is a notification: it has a
// method and its id is absent.
func (m *Message) IsNotification() bool {
	return m.Method != "" && m.ID == nil
}

// IsRequest reports whether the message is a request expecting a response.
func (m *Message) IsRequest() bool {
	return m.Method != "" && m.ID != nil
}

// Encode serializes the message to its wire form.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// NewRequest creates a request message with the given id and method.
func NewRequest(id ID, method string, params interface{}) (*Message, error) {
	msg := &Message{
		JSONRPC: JSONRPCVersion,
		ID:      &id,
		Method:  method,
	}
	if err := attachParams(msg, params); err != nil {
		return nil, err
	}
	return msg, nil
}

// NewResponse creates a success response carrying the marshaled result.
func NewResponse(id ID, result interface{}) (*Message, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	raw := json.RawMessage(data)
	return &Message{
		JSONRPC: JSONRPCVersion,
		ID:      &id,
		Result:  &raw,
	}, nil
}

// NewErrorResponse creates an error response with the given code and message.
func NewErrorResponse(id ID, code int, message string, data ...interface{}) *Message {
	return &Message{
		JSONRPC: JSONRPCVersion,
		ID:      &id,
		Error:   NewError(code, message, data...),
	}
}

// NewNotification creates a notification message. No response is expected.
func NewNotification(method string, params interface{}) (*Message, error) {
	msg := &Message{
		JSONRPC: JSONRPCVersion,
		Method:  method,
	}
	if err := attachParams(msg, params); err != nil {
		return nil, err
	}
	return msg, nil
}

func attachParams(msg *Message, params interface{}) error {
	if params == nil {
		return nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}
	raw := json.RawMessage(data)
	msg.Params = &raw
	return nil
}

// Validate validates a Message according to the JSON-RPC 2.0 spec
func (m *Message) Validate() error {
	if m.JSONRPC != JSONRPCVersion {
		return errors.New("invalid jsonrpc version")
	}

	// Request or notification must have a method
	if m.Method != "" {
		if m.Result != nil || m.Error != nil {
			return errors.New("request/notification cannot have result or error")
		}
		return nil
	}

	// Response must have either result or error, not both
	if m.Result != nil && m.Error != nil {
		return errors.New("response cannot have both result and error")
	}
	if m.Result == nil && m.Error == nil {
		return errors.New("response must have either result or error")
	}

	return nil
}
