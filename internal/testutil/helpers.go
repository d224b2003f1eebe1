package testutil

import (
	"encoding/json"
	"testing"

	"github.com/mcp-mqtt/mcp-mqtt-go/pkg/types"
)

// Request builds a JSON-RPC request payload for the given id and method.
func Request(t *testing.T, id types.ID, method string, params interface{}) []byte {
	t.Helper()
	msg, err := types.NewRequest(id, method, params)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	return encode(t, msg)
}

// Notification builds a JSON-RPC notification payload.
func Notification(t *testing.T, method string, params interface{}) []byte {
	t.Helper()
	msg, err := types.NewNotification(method, params)
	if err != nil {
		t.Fatalf("Failed to build notification: %v", err)
	}
	return encode(t, msg)
}

// DecodeResponse parses payload as a JSON-RPC message and fails the test
// if it is not a response.
func DecodeResponse(t *testing.T, payload []byte) *types.Message {
	t.Helper()
	msg, err := types.DecodeMessage(payload)
	if err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if msg.Method != "" {
		t.Fatalf("Expected a response, got method %q", msg.Method)
	}
	return msg
}

// UnmarshalResult decodes a response result into v.
func UnmarshalResult(t *testing.T, msg *types.Message, v interface{}) {
	t.Helper()
	if msg.Result == nil {
		t.Fatalf("Response has no result (error: %v)", msg.Error)
	}
	if err := json.Unmarshal(*msg.Result, v); err != nil {
		t.Fatalf("Failed to unmarshal result: %v", err)
	}
}

func encode(t *testing.T, msg *types.Message) []byte {
	t.Helper()
	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("Failed to encode message: %v", err)
	}
	return data
}
