package types_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-mqtt/mcp-mqtt-go/pkg/types"
)

func TestMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		message types.Message
		wantErr bool
	}{
		{
			name: "Valid request",
			message: types.Message{
				JSONRPC: types.JSONRPCVersion,
				ID:      &types.ID{Num: 1},
				Method:  "someMethod",
			},
			wantErr: false,
		},
		{
			name: "Valid notification (no ID)",
			message: types.Message{
				JSONRPC: types.JSONRPCVersion,
				Method:  "notify/something",
			},
			wantErr: false,
		},
		{
			name: "Valid response (result)",
			message: types.Message{
				JSONRPC: types.JSONRPCVersion,
				ID:      &types.ID{Num: 2},
				Result:  jsonPtr(`{"ok":true}`),
			},
			wantErr: false,
		},
		{
			name: "Invalid: wrong jsonrpc version",
			message: types.Message{
				JSONRPC: "1.0",
				ID:      &types.ID{Num: 3},
				Method:  "someMethod",
			},
			wantErr: true,
		},
		{
			name: "Invalid: request with result",
			message: types.Message{
				JSONRPC: types.JSONRPCVersion,
				ID:      &types.ID{Num: 3},
				Method:  "badRequest",
				Result:  jsonPtr(`{"some":"thing"}`),
			},
			wantErr: true,
		},
		{
			name: "Invalid: response with both result and error",
			message: types.Message{
				JSONRPC: types.JSONRPCVersion,
				ID:      &types.ID{Num: 4},
				Result:  jsonPtr(`{"some":"thing"}`),
				Error:   &types.ErrorResponse{Code: types.InternalError, Message: "oops"},
			},
			wantErr: true,
		},
		{
			name: "Invalid: no method, no result, no error, no ID",
			message: types.Message{
				JSONRPC: types.JSONRPCVersion,
			},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.message.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{
			name:    "valid request",
			payload: `{"jsonrpc":"2.0","id":1,"method":"ping"}`,
		},
		{
			name:    "valid notification",
			payload: `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		},
		{
			name:    "malformed JSON",
			payload: `{"jsonrpc":"2.0",`,
			wantErr: true,
		},
		{
			name:    "missing jsonrpc field",
			payload: `{"id":1,"method":"ping"}`,
			wantErr: true,
		},
		{
			name:    "wrong jsonrpc version",
			payload: `{"jsonrpc":"1.0","id":1,"method":"ping"}`,
			wantErr: true,
		},
		{
			name:    "method is not a string",
			payload: `{"jsonrpc":"2.0","id":1,"method":42}`,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := types.DecodeMessage([]byte(tc.payload))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, msg)
		})
	}
}

func TestDecodeMessage_NotificationDetection(t *testing.T) {
	msg, err := types.DecodeMessage([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized","params":{"x":1}}`))
	require.NoError(t, err)
	assert.True(t, msg.IsNotification())
	assert.False(t, msg.IsRequest())

	msg, err = types.DecodeMessage([]byte(`{"jsonrpc":"2.0","id":"req-1","method":"tools/list"}`))
	require.NoError(t, err)
	assert.False(t, msg.IsNotification())
	assert.True(t, msg.IsRequest())
}

func TestResponse_IDRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		id       types.ID
		wantJSON string
	}{
		{
			name:     "integer id stays an integer",
			id:       types.ID{Num: 42},
			wantJSON: `42`,
		},
		{
			name:     "string id stays a string",
			id:       types.ID{Str: "42", IsString: true},
			wantJSON: `"42"`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := types.NewResponse(tc.id, map[string]string{"status": "ok"})
			require.NoError(t, err)

			data, err := resp.Encode()
			require.NoError(t, err)

			var wire map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(data, &wire))
			assert.JSONEq(t, tc.wantJSON, string(wire["id"]))

			decoded, err := types.DecodeMessage(data)
			require.NoError(t, err)
			require.NotNil(t, decoded.ID)
			assert.Equal(t, tc.id, *decoded.ID)
		})
	}
}

func TestNewErrorResponse(t *testing.T) {
	resp := types.NewErrorResponse(types.ID{Num: 7}, types.MethodNotFound, "Method not found: nope")

	data, err := resp.Encode()
	require.NoError(t, err)

	decoded, err := types.DecodeMessage(data)
	require.NoError(t, err)
	require.NotNil(t, decoded.Error)
	assert.Equal(t, types.MethodNotFound, decoded.Error.Code)
	assert.Equal(t, "Method not found: nope", decoded.Error.Message)
	assert.Nil(t, decoded.Result)
}

func jsonPtr(s string) *json.RawMessage {
	rm := json.RawMessage(s)
	return &rm
}
