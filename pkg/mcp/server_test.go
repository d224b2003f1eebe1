package mcp_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-mqtt/mcp-mqtt-go/internal/mock"
	"github.com/mcp-mqtt/mcp-mqtt-go/internal/testutil"
	"github.com/mcp-mqtt/mcp-mqtt-go/pkg/mcp"
	"github.com/mcp-mqtt/mcp-mqtt-go/pkg/methods"
	"github.com/mcp-mqtt/mcp-mqtt-go/pkg/topics"
	"github.com/mcp-mqtt/mcp-mqtt-go/pkg/transport"
	"github.com/mcp-mqtt/mcp-mqtt-go/pkg/types"
)

const (
	testServerID   = "srv-1"
	testServerName = "myapp/tools"
)

var (
	controlTopic  = topics.Control(testServerID, testServerName)
	presenceTopic = topics.ServerPresence(testServerID, testServerName)
)

// DivideInput is the argument type of the divide test tool.
type DivideInput struct {
	A float64 `json:"a" jsonschema:"description=Dividend,required"`
	B float64 `json:"b" jsonschema:"description=Divisor,required"`
}

func divideTool() types.McpTool {
	return types.NewTool(
		"divide",
		"Divides 'a' by 'b'",
		func(ctx context.Context, input DivideInput) (*types.CallToolResult, error) {
			if input.B == 0 {
				return types.NewToolResultError("Division by zero"), nil
			}
			return types.NewToolResultText(fmt.Sprintf("%g", input.A/input.B)), nil
		},
	)
}

func newStartedServer(t *testing.T, opts ...mcp.ServerOption) (*mcp.Server, *mock.Client) {
	t.Helper()

	opts = append([]mcp.ServerOption{
		mcp.WithLogger(testutil.NewTestLogger(t)),
		mcp.WithServerInfo("test-server", "0.1.0"),
		mcp.WithDescription("Server under test", nil),
	}, opts...)

	srv := mcp.NewServer(opts...)
	client := mock.NewClient(testServerID)
	require.True(t, srv.Start(client, mcp.Config{ServerID: testServerID, ServerName: testServerName}))
	return srv, client
}

// initializeClient drives the first half of the handshake for clientID
// and returns the server's initialize response.
func initializeClient(t *testing.T, client *mock.Client, clientID string) *types.Message {
	t.Helper()

	payload := testutil.Request(t, types.ID{Num: 1}, methods.Initialize, types.InitializeParams{
		ProtocolVersion: types.ProtocolVersion,
		ClientInfo:      &types.Implementation{Name: "test-client", Version: "1.2.3"},
	})
	client.Deliver(transport.Message{
		Topic:          controlTopic,
		Payload:        payload,
		UserProperties: map[string]string{transport.PropMQTTClientID: clientID},
	})

	pubs := client.PublicationsTo(topics.RPC(clientID, testServerID, testServerName))
	require.NotEmpty(t, pubs, "no initialize response published")
	return testutil.DecodeResponse(t, pubs[len(pubs)-1].Payload)
}

func rpcDeliver(client *mock.Client, clientID string, payload []byte) {
	client.Deliver(transport.Message{
		Topic:   topics.RPC(clientID, testServerID, testServerName),
		Payload: payload,
	})
}

func lastRPCResponse(t *testing.T, client *mock.Client, clientID string) *types.Message {
	t.Helper()
	pubs := client.PublicationsTo(topics.RPC(clientID, testServerID, testServerName))
	require.NotEmpty(t, pubs, "no response published on RPC topic")
	return testutil.DecodeResponse(t, pubs[len(pubs)-1].Payload)
}

func TestStart_RefusesWhenAlreadyRunning(t *testing.T) {
	srv, client := newStartedServer(t)
	assert.False(t, srv.Start(client, mcp.Config{ServerID: testServerID, ServerName: testServerName}))
}

func TestStart_RefusesDisconnectedTransport(t *testing.T) {
	srv := mcp.NewServer()
	client := mock.NewClient(testServerID)
	client.SetConnected(false)

	assert.False(t, srv.Start(client, mcp.Config{ServerID: testServerID, ServerName: testServerName}))
	assert.Empty(t, client.Publications())
	assert.Empty(t, client.Subscriptions())
}

func TestStart_SubscribesControlAndPublishesPresence(t *testing.T) {
	_, client := newStartedServer(t)

	subs := client.Subscriptions()
	require.Len(t, subs, 1)
	assert.Equal(t, controlTopic, subs[0].Filter)
	assert.False(t, subs[0].NoLocal)

	pubs := client.PublicationsTo(presenceTopic)
	require.Len(t, pubs, 1)
	assert.True(t, pubs[0].Retain)
	assert.Equal(t, transport.ComponentServer, pubs[0].UserProps[transport.PropComponentType])
	assert.Equal(t, testServerID, pubs[0].UserProps[transport.PropMQTTClientID])

	msg, err := types.DecodeMessage(pubs[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, methods.ServerOnline, msg.Method)
	assert.True(t, msg.IsNotification())

	var params types.ServerOnlineParams
	require.NoError(t, json.Unmarshal(*msg.Params, &params))
	assert.Equal(t, "Server under test", params.Description)
}

func TestInitialize_CreatesSessionAndResponds(t *testing.T) {
	srv, client := newStartedServer(t)

	resp := initializeClient(t, client, "c1")
	require.NotNil(t, resp.ID)
	assert.Equal(t, types.ID{Num: 1}, *resp.ID)

	var result types.InitializeResult
	testutil.UnmarshalResult(t, resp, &result)
	assert.Equal(t, types.ProtocolVersion, result.ProtocolVersion)
	assert.Equal(t, "test-server", result.ServerInfo.Name)
	require.NotNil(t, result.Capabilities.Tools)

	assert.Equal(t, []string{"c1"}, srv.ConnectedClients())

	// The server listens on the client's RPC topic with No Local set and
	// on the client's presence topic.
	subs := client.Subscriptions()
	require.Len(t, subs, 3)
	assert.Equal(t, topics.RPC("c1", testServerID, testServerName), subs[1].Filter)
	assert.True(t, subs[1].NoLocal)
	assert.Equal(t, topics.ClientPresence("c1"), subs[2].Filter)
	assert.False(t, subs[2].NoLocal)
}

func TestInitialize_ClientIDFromParamsFallback(t *testing.T) {
	srv, client := newStartedServer(t)

	payload := testutil.Request(t, types.ID{Num: 9}, methods.Initialize, types.InitializeParams{
		MCPClientID: "fallback-client",
	})
	client.Deliver(transport.Message{Topic: controlTopic, Payload: payload})

	assert.Equal(t, []string{"fallback-client"}, srv.ConnectedClients())
}

func TestInitialize_NoClientIDDropped(t *testing.T) {
	srv, client := newStartedServer(t)

	payload := testutil.Request(t, types.ID{Num: 2}, methods.Initialize, types.InitializeParams{})
	client.Deliver(transport.Message{Topic: controlTopic, Payload: payload})

	assert.Empty(t, srv.ConnectedClients())
	// Only the presence publish from Start.
	assert.Len(t, client.Publications(), 1)
}

func TestInitialize_DefaultsProtocolVersion(t *testing.T) {
	srv, client := newStartedServer(t)

	payload := testutil.Request(t, types.ID{Num: 3}, methods.Initialize, types.InitializeParams{})
	client.Deliver(transport.Message{
		Topic:          controlTopic,
		Payload:        payload,
		UserProperties: map[string]string{transport.PropMQTTClientID: "c1"},
	})

	require.Equal(t, []string{"c1"}, srv.ConnectedClients())
	resp := lastRPCResponse(t, client, "c1")
	var result types.InitializeResult
	testutil.UnmarshalResult(t, resp, &result)
	assert.Equal(t, types.ProtocolVersion, result.ProtocolVersion)
}

func TestInitialized_FiresConnectedCallbackOnce(t *testing.T) {
	srv, client := newStartedServer(t)

	var connected []types.Implementation
	srv.OnClientConnected(func(clientID string, info types.Implementation) {
		assert.Equal(t, "c1", clientID)
		connected = append(connected, info)
	})

	initializeClient(t, client, "c1")
	require.Len(t, connected, 0, "callback must not fire before the initialized notification")

	rpcDeliver(client, "c1", testutil.Notification(t, methods.Initialized, nil))
	require.Len(t, connected, 1)
	assert.Equal(t, "test-client", connected[0].Name)
	assert.Equal(t, "1.2.3", connected[0].Version)
}

func TestInitialized_UnknownClientIgnored(t *testing.T) {
	srv, client := newStartedServer(t)

	fired := false
	srv.OnClientConnected(func(string, types.Implementation) { fired = true })

	rpcDeliver(client, "ghost", testutil.Notification(t, methods.Initialized, nil))
	assert.False(t, fired)
}

func TestPing(t *testing.T) {
	_, client := newStartedServer(t)
	initializeClient(t, client, "c1")

	id := types.ID{Str: "ping-1", IsString: true}
	rpcDeliver(client, "c1", testutil.Request(t, id, methods.Ping, nil))

	resp := lastRPCResponse(t, client, "c1")
	require.NotNil(t, resp.ID)
	assert.Equal(t, id, *resp.ID)
	require.NotNil(t, resp.Result)
	assert.JSONEq(t, `{}`, string(*resp.Result))
}

func TestToolsList(t *testing.T) {
	_, client := newStartedServer(t, mcp.WithTools([]types.McpTool{divideTool()}))
	initializeClient(t, client, "c1")

	rpcDeliver(client, "c1", testutil.Request(t, types.ID{Num: 5}, methods.ListTools, nil))

	resp := lastRPCResponse(t, client, "c1")
	var result types.ListToolsResult
	testutil.UnmarshalResult(t, resp, &result)
	require.Len(t, result.Tools, 1)
	assert.Equal(t, "divide", result.Tools[0].Name)
	assert.Contains(t, result.Tools[0].InputSchema.Properties, "a")
}

func TestToolsList_EmptyCatalogue(t *testing.T) {
	_, client := newStartedServer(t)
	initializeClient(t, client, "c1")

	rpcDeliver(client, "c1", testutil.Request(t, types.ID{Num: 6}, methods.ListTools, nil))

	resp := lastRPCResponse(t, client, "c1")
	require.NotNil(t, resp.Result)
	assert.JSONEq(t, `{"tools":[]}`, string(*resp.Result))
}

func TestToolsCall_MissingName(t *testing.T) {
	_, client := newStartedServer(t, mcp.WithTools([]types.McpTool{divideTool()}))
	initializeClient(t, client, "c1")

	rpcDeliver(client, "c1", testutil.Request(t, types.ID{Num: 7}, methods.CallTool, map[string]interface{}{
		"arguments": map[string]interface{}{"a": 1},
	}))

	resp := lastRPCResponse(t, client, "c1")
	require.NotNil(t, resp.Error)
	assert.Equal(t, types.InvalidParams, resp.Error.Code)
}

func TestToolsCall_UnknownToolIsSuccessWithError(t *testing.T) {
	_, client := newStartedServer(t)
	initializeClient(t, client, "c1")

	rpcDeliver(client, "c1", testutil.Request(t, types.ID{Num: 8}, methods.CallTool, types.CallToolParams{
		Name: "missing",
	}))

	resp := lastRPCResponse(t, client, "c1")
	require.Nil(t, resp.Error, "tool-level failure must not be a JSON-RPC error")
	var result types.CallToolResult
	testutil.UnmarshalResult(t, resp, &result)
	assert.True(t, result.IsError)
}

func TestToolsCall_DivideByZero(t *testing.T) {
	_, client := newStartedServer(t, mcp.WithTools([]types.McpTool{divideTool()}))
	initializeClient(t, client, "c1")

	rpcDeliver(client, "c1", testutil.Request(t, types.ID{Num: 9}, methods.CallTool, types.CallToolParams{
		Name:      "divide",
		Arguments: map[string]interface{}{"a": 4, "b": 0},
	}))

	resp := lastRPCResponse(t, client, "c1")
	require.Nil(t, resp.Error)
	var result struct {
		Content []types.TextContent `json:"content"`
		IsError bool                `json:"isError"`
	}
	testutil.UnmarshalResult(t, resp, &result)
	assert.True(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "Division by zero", result.Content[0].Text)
}

func TestToolsCall_Success(t *testing.T) {
	_, client := newStartedServer(t, mcp.WithTools([]types.McpTool{divideTool()}))
	initializeClient(t, client, "c1")

	rpcDeliver(client, "c1", testutil.Request(t, types.ID{Num: 10}, methods.CallTool, types.CallToolParams{
		Name:      "divide",
		Arguments: map[string]interface{}{"a": 4, "b": 2},
	}))

	resp := lastRPCResponse(t, client, "c1")
	var result struct {
		Content []types.TextContent `json:"content"`
		IsError bool                `json:"isError"`
	}
	testutil.UnmarshalResult(t, resp, &result)
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "2", result.Content[0].Text)
}

func TestUnknownMethod_MethodNotFound(t *testing.T) {
	_, client := newStartedServer(t)
	initializeClient(t, client, "c1")

	rpcDeliver(client, "c1", testutil.Request(t, types.ID{Num: 11}, "resources/list", nil))

	resp := lastRPCResponse(t, client, "c1")
	require.NotNil(t, resp.Error)
	assert.Equal(t, types.MethodNotFound, resp.Error.Code)
}

func TestDisconnected_RemovesSessionOnce(t *testing.T) {
	srv, client := newStartedServer(t)

	var disconnects []string
	srv.OnClientDisconnected(func(clientID string) { disconnects = append(disconnects, clientID) })

	initializeClient(t, client, "c1")
	require.Equal(t, []string{"c1"}, srv.ConnectedClients())

	rpcDeliver(client, "c1", testutil.Notification(t, methods.Disconnected, nil))
	assert.Empty(t, srv.ConnectedClients())
	assert.Equal(t, []string{"c1"}, disconnects)
	assert.Contains(t, client.Unsubscribes(), topics.RPC("c1", testServerID, testServerName))
	assert.Contains(t, client.Unsubscribes(), topics.ClientPresence("c1"))

	// Second notification is a no-op: no extra callback.
	rpcDeliver(client, "c1", testutil.Notification(t, methods.Disconnected, nil))
	assert.Equal(t, []string{"c1"}, disconnects)
}

func TestDisconnected_ViaPresenceTopic(t *testing.T) {
	srv, client := newStartedServer(t)

	var disconnects []string
	srv.OnClientDisconnected(func(clientID string) { disconnects = append(disconnects, clientID) })

	initializeClient(t, client, "c1")

	client.Deliver(transport.Message{
		Topic:   topics.ClientPresence("c1"),
		Payload: testutil.Notification(t, methods.Disconnected, nil),
	})

	assert.Empty(t, srv.ConnectedClients())
	assert.Equal(t, []string{"c1"}, disconnects)
}

func TestPresence_EmptyPayloadIsPassive(t *testing.T) {
	srv, client := newStartedServer(t)
	initializeClient(t, client, "c1")

	client.Deliver(transport.Message{Topic: topics.ClientPresence("c1")})

	assert.Equal(t, []string{"c1"}, srv.ConnectedClients())
}

func TestNonMCPTrafficIgnored(t *testing.T) {
	srv, client := newStartedServer(t)

	client.Deliver(transport.Message{Topic: "sensors/room1/temperature", Payload: []byte("21.5")})
	client.Deliver(transport.Message{Topic: "$sys/broker/uptime", Payload: []byte("42")})

	assert.Empty(t, srv.ConnectedClients())
	assert.Len(t, client.Publications(), 1) // presence only
}

func TestMalformedRPCPayloadDropped(t *testing.T) {
	_, client := newStartedServer(t)
	initializeClient(t, client, "c1")
	before := len(client.Publications())

	rpcDeliver(client, "c1", []byte(`{"jsonrpc":"2.0",`))
	rpcDeliver(client, "c1", []byte(`{"id":1,"method":"ping"}`))

	assert.Len(t, client.Publications(), before)
}

func TestStop_BroadcastsAndClears(t *testing.T) {
	srv, client := newStartedServer(t)

	var disconnects []string
	srv.OnClientDisconnected(func(clientID string) { disconnects = append(disconnects, clientID) })

	initializeClient(t, client, "c1")
	srv.Stop()

	// Disconnect notification broadcast on the client's RPC topic.
	pubs := client.PublicationsTo(topics.RPC("c1", testServerID, testServerName))
	last, err := types.DecodeMessage(pubs[len(pubs)-1].Payload)
	require.NoError(t, err)
	assert.Equal(t, methods.Disconnected, last.Method)

	// Retained presence cleared with an empty payload.
	presence := client.PublicationsTo(presenceTopic)
	require.Len(t, presence, 2)
	assert.True(t, presence[1].Retain)
	assert.Empty(t, presence[1].Payload)

	assert.Contains(t, client.Unsubscribes(), controlTopic)
	assert.Contains(t, client.Unsubscribes(), topics.RPC("c1", testServerID, testServerName))
	assert.Contains(t, client.Unsubscribes(), topics.ClientPresence("c1"))

	assert.Equal(t, []string{"c1"}, disconnects)
	assert.Empty(t, srv.ConnectedClients())
	assert.False(t, srv.IsRunning())

	// Idempotent.
	srv.Stop()
	assert.Equal(t, []string{"c1"}, disconnects)
}

func TestStopThenStart_FreshState(t *testing.T) {
	srv, client := newStartedServer(t)

	var disconnects []string
	srv.OnClientDisconnected(func(clientID string) { disconnects = append(disconnects, clientID) })

	initializeClient(t, client, "c1")
	srv.Stop()
	require.Equal(t, []string{"c1"}, disconnects)

	fresh := mock.NewClient(testServerID)
	require.True(t, srv.Start(fresh, mcp.Config{ServerID: testServerID, ServerName: testServerName}))
	assert.True(t, srv.IsRunning())
	assert.Empty(t, srv.ConnectedClients())

	// Presence re-published on the new transport; no stale callbacks.
	assert.Len(t, fresh.PublicationsTo(presenceTopic), 1)
	assert.Equal(t, []string{"c1"}, disconnects)
}

func TestConnectionLost_StopsRunning(t *testing.T) {
	srv, client := newStartedServer(t)
	require.True(t, srv.IsRunning())

	client.LoseConnection("broker gone")
	assert.False(t, srv.IsRunning())
}

func TestMessagesIgnoredAfterStop(t *testing.T) {
	srv, client := newStartedServer(t)
	srv.Stop()
	before := len(client.Publications())

	payload := testutil.Request(t, types.ID{Num: 1}, methods.Initialize, types.InitializeParams{})
	client.Deliver(transport.Message{
		Topic:          controlTopic,
		Payload:        payload,
		UserProperties: map[string]string{transport.PropMQTTClientID: "c1"},
	})

	assert.Empty(t, srv.ConnectedClients())
	assert.Len(t, client.Publications(), before)
}
