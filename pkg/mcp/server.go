// Package mcp implements the server side of the MCP-over-MQTT protocol.
//
// The server is reactive: it owns no goroutines and processes every
// inbound message synchronously on whatever goroutine the transport
// delivers on. It subscribes and publishes only on $mcp-* topics and
// leaves the rest of the MQTT connection to its owner.
package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/mcp-mqtt/mcp-mqtt-go/internal/registry"
	"github.com/mcp-mqtt/mcp-mqtt-go/internal/sessions"
	"github.com/mcp-mqtt/mcp-mqtt-go/pkg/logger"
	"github.com/mcp-mqtt/mcp-mqtt-go/pkg/methods"
	"github.com/mcp-mqtt/mcp-mqtt-go/pkg/topics"
	"github.com/mcp-mqtt/mcp-mqtt-go/pkg/transport"
	"github.com/mcp-mqtt/mcp-mqtt-go/pkg/types"
)

const qosDefault byte = 1

// Config identifies a server instance on the broker. Both fields are used
// verbatim in topic construction; ServerID must not contain '/'.
type Config struct {
	// ServerID is the unique id of this server instance.
	ServerID string

	// ServerName is the hierarchical server name, e.g. "myapp/tools/v1".
	ServerName string
}

// ClientConnectedHandler is fired once per completed initialize handshake.
type ClientConnectedHandler func(clientID string, info types.Implementation)

// ClientDisconnectedHandler is fired once per session removal.
type ClientDisconnectedHandler func(clientID string)

type requestHandler func(clientID string, msg *types.Message)

type notificationHandler func(clientID string)

// Server is the MCP protocol engine bound to an externally managed MQTT
// connection.
type Server struct {
	log             logger.Logger
	info            types.Implementation
	capabilities    types.ServerCapabilities
	protocolVersion string
	online          types.ServerOnlineParams

	registry *registry.Registry
	sessions *sessions.Table

	// Dispatch tables, built once at construction.
	requestHandlers      map[string]requestHandler
	notificationHandlers map[string]notificationHandler

	mu         sync.Mutex
	running    bool
	client     transport.Client
	serverID   string
	serverName string

	onConnected    ClientConnectedHandler
	onDisconnected ClientDisconnectedHandler
}

// ServerOption is a function that configures a Server
type ServerOption func(*Server)

// WithLogger sets a custom logger
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// WithServerInfo sets the server name and version reported to clients
func WithServerInfo(name, version string) ServerOption {
	return func(s *Server) {
		s.info = types.Implementation{Name: name, Version: version}
	}
}

// WithCapabilities overrides the advertised server capabilities
func WithCapabilities(c types.ServerCapabilities) ServerOption {
	return func(s *Server) {
		s.capabilities = c
	}
}

// WithProtocolVersion overrides the advertised protocol version
func WithProtocolVersion(version string) ServerOption {
	return func(s *Server) {
		s.protocolVersion = version
	}
}

// WithDescription sets the human-readable description and optional
// structured metadata published in the retained presence notification.
func WithDescription(description string, meta json.RawMessage) ServerOption {
	return func(s *Server) {
		s.online = types.ServerOnlineParams{Description: description, Meta: meta}
	}
}

// WithTools registers the given tools on the new server
func WithTools(tools []types.McpTool) ServerOption {
	return func(s *Server) {
		for _, t := range tools {
			s.registry.Register(t.GetDefinition(), t.GetHandler())
		}
	}
}

// NewServer creates a new MCP server. It holds no transport until Start.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		log: logger.NewNoopLogger(),
		info: types.Implementation{
			Name:    "mcp-mqtt-go",
			Version: "0.1.0",
		},
		capabilities: types.ServerCapabilities{
			Tools: &types.ToolsServerCapabilities{},
		},
		protocolVersion: types.ProtocolVersion,
		registry:        registry.New(),
		sessions:        sessions.NewTable(),
	}

	s.requestHandlers = map[string]requestHandler{
		methods.Ping:      s.handlePing,
		methods.ListTools: s.handleToolsList,
		methods.CallTool:  s.handleToolsCall,
	}
	s.notificationHandlers = map[string]notificationHandler{
		methods.Initialized:  s.handleInitialized,
		methods.Disconnected: s.handleDisconnected,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start binds the server to an already-connected transport client,
// subscribes the control topic and publishes the retained presence
// notification. It returns false, with no side effects, if the server is
// already running or the transport is not connected.
func (s *Server) Start(client transport.Client, cfg Config) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.log.Logf("Server already running, ignoring Start")
		return false
	}
	if client == nil || !client.IsConnected() {
		s.log.Logf("Transport is not connected")
		return false
	}

	s.client = client
	s.serverID = cfg.ServerID
	s.serverName = cfg.ServerName

	client.SetMessageHandler(s.handleMessage)
	client.SetConnectionLostHandler(func(reason string) {
		s.log.Logf("Connection lost: %s", reason)
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	})

	control := topics.Control(s.serverID, s.serverName)
	if !client.Subscribe(control, qosDefault, false) {
		s.log.Logf("Failed to subscribe control topic: %s", control)
	}

	s.publishPresenceLocked()

	s.running = true
	s.log.Logf("Server started: serverId=%s serverName=%s", s.serverID, s.serverName)
	return true
}

// Stop notifies every tracked client, clears the retained presence
// message, unsubscribes all MCP topics and detaches from the transport.
// Stopping a server that is not running is a no-op. The MQTT connection
// itself is left untouched.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running && s.client == nil {
		s.mu.Unlock()
		return
	}
	client := s.client
	serverID, serverName := s.serverID, s.serverName
	s.running = false
	s.client = nil
	s.mu.Unlock()

	if client == nil {
		return
	}

	ids := s.sessions.Clear()
	props := s.publishProps(serverID)

	notif, err := types.NewNotification(methods.Disconnected, nil)
	if err == nil {
		payload, _ := notif.Encode()
		for _, id := range ids {
			client.Publish(topics.RPC(id, serverID, serverName), payload, qosDefault, false, props)
		}
	}

	// Empty retained payload clears the presence for discovery.
	client.Publish(topics.ServerPresence(serverID, serverName), nil, qosDefault, true, nil)

	client.Unsubscribe(topics.Control(serverID, serverName))
	for _, id := range ids {
		client.Unsubscribe(topics.RPC(id, serverID, serverName))
		client.Unsubscribe(topics.ClientPresence(id))
	}

	if s.onDisconnected != nil {
		for _, id := range ids {
			s.onDisconnected(id)
		}
	}

	s.log.Logf("Server stopped, cleared %d client session(s)", len(ids))
}

// IsRunning reports whether the server is started and its transport
// still connected.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.client != nil && s.client.IsConnected()
}

// ServerID returns the configured server id.
func (s *Server) ServerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverID
}

// ServerName returns the configured server name.
func (s *Server) ServerName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverName
}

// RegisterTool adds a tool to the catalogue. It returns false if a tool
// with the same name is already registered.
func (s *Server) RegisterTool(tool types.Tool, handler types.ToolHandler) bool {
	ok := s.registry.Register(tool, handler)
	if ok {
		s.log.Logf("Tool registered: %s", tool.Name)
	} else {
		s.log.Logf("Tool already registered: %s", tool.Name)
	}
	return ok
}

// AddTool registers a typed tool built with types.NewTool.
func (s *Server) AddTool(tool types.McpTool) bool {
	return s.RegisterTool(tool.GetDefinition(), tool.GetHandler())
}

// UnregisterTool removes a tool from the catalogue.
func (s *Server) UnregisterTool(name string) {
	s.registry.Unregister(name)
	s.log.Logf("Tool unregistered: %s", name)
}

// Tools returns the currently registered tool descriptors.
func (s *Server) Tools() []types.Tool {
	return s.registry.Tools()
}

// ConnectedClients returns the ids of all tracked client sessions.
func (s *Server) ConnectedClients() []string {
	return s.sessions.IDs()
}

// OnClientConnected sets the callback fired when a client completes the
// initialize handshake.
func (s *Server) OnClientConnected(handler ClientConnectedHandler) {
	s.onConnected = handler
}

// OnClientDisconnected sets the callback fired when a client session is
// removed.
func (s *Server) OnClientDisconnected(handler ClientDisconnectedHandler) {
	s.onDisconnected = handler
}

// handleMessage is the single entry point for all inbound transport
// traffic. Non-MCP topics are ignored; this is the only admission filter.
func (s *Server) handleMessage(msg transport.Message) {
	if !topics.IsMCPTopic(msg.Topic) {
		return
	}

	s.mu.Lock()
	running := s.running
	control := topics.Control(s.serverID, s.serverName)
	s.mu.Unlock()
	if !running {
		return
	}

	switch {
	case strings.HasPrefix(msg.Topic, topics.RPCPrefix):
		s.handleRPCMessage(msg.Topic, msg.Payload)
	case msg.Topic == control:
		s.handleControlMessage(msg.Payload, msg.UserProperties)
	case strings.HasPrefix(msg.Topic, topics.ClientPresencePrefix):
		s.handleClientPresence(msg.Topic, msg.Payload)
	default:
		s.log.Logf("Unhandled MCP topic: %s", msg.Topic)
	}
}

// handleControlMessage processes initialize requests on the control topic.
// The client id is taken from the MCP-MQTT-CLIENT-ID user property, with
// a fallback to the mcpClientId params field; a message with no
// resolvable client id is dropped because there is no reply channel.
func (s *Server) handleControlMessage(payload []byte, userProps map[string]string) {
	msg, err := types.DecodeMessage(payload)
	if err != nil {
		s.log.Logf("Invalid control message: %v", err)
		return
	}
	if !msg.IsRequest() || msg.Method != methods.Initialize {
		s.log.Logf("Unhandled control method: %s", msg.Method)
		return
	}

	var params types.InitializeParams
	if msg.Params != nil {
		if err := json.Unmarshal(*msg.Params, &params); err != nil {
			s.log.Logf("Invalid initialize params: %v", err)
			return
		}
	}

	clientID := userProps[transport.PropMQTTClientID]
	if clientID == "" {
		clientID = params.MCPClientID
	}
	if clientID == "" {
		s.log.Logf("Initialize request with no resolvable client id, dropping")
		return
	}

	s.handleInitialize(clientID, msg, &params)
}

// handleRPCMessage processes requests and notifications arriving on a
// per-client RPC topic.
func (s *Server) handleRPCMessage(topic string, payload []byte) {
	clientID, ok := topics.ClientIDFromRPC(topic)
	if !ok {
		s.log.Logf("Malformed RPC topic: %s", topic)
		return
	}
	if len(payload) == 0 {
		s.log.Logf("Empty payload on RPC topic: %s", topic)
		return
	}

	msg, err := types.DecodeMessage(payload)
	if err != nil {
		s.log.Logf("Invalid RPC message from client=%s: %v", clientID, err)
		return
	}

	if msg.IsNotification() {
		if handler, ok := s.notificationHandlers[msg.Method]; ok {
			handler(clientID)
		} else {
			s.log.Logf("Ignoring unknown notification: %s", msg.Method)
		}
		return
	}

	if !msg.IsRequest() {
		// A response on this topic is either an echo or client traffic
		// that is not addressed to us.
		return
	}

	handler, ok := s.requestHandlers[msg.Method]
	if !ok {
		s.log.Logf("Method not found: %s, client=%s", msg.Method, clientID)
		s.sendResponse(clientID, types.NewErrorResponse(*msg.ID, types.MethodNotFound, "Method not found: "+msg.Method))
		return
	}
	handler(clientID, msg)
}

// handleClientPresence reconciles a client departure signalled on the
// presence channel rather than via an explicit RPC notification.
func (s *Server) handleClientPresence(topic string, payload []byte) {
	clientID, ok := topics.ClientIDFromPresence(topic)
	if !ok {
		s.log.Logf("Malformed presence topic: %s", topic)
		return
	}

	if len(payload) == 0 {
		// Passive liveness signal: the client may be offline, nothing to
		// act on yet.
		s.log.Logf("Empty presence payload (client offline?): %s", clientID)
		return
	}

	msg, err := types.DecodeMessage(payload)
	if err != nil {
		s.log.Logf("Invalid presence payload from client=%s: %v", clientID, err)
		return
	}
	if msg.IsNotification() && msg.Method == methods.Disconnected {
		s.log.Logf("Client disconnected via presence: %s", clientID)
		s.handleDisconnected(clientID)
	}
}

// handleInitialize creates or replaces the client session and answers
// with the server identity. The session stays uninitialized until the
// client follows up with notifications/initialized.
func (s *Server) handleInitialize(clientID string, msg *types.Message, params *types.InitializeParams) {
	s.log.Logf("Initializing client session: %s", clientID)

	negotiated := params.ProtocolVersion
	if negotiated == "" {
		negotiated = s.protocolVersion
	}

	session := sessions.Session{
		ClientID:        clientID,
		ProtocolVersion: negotiated,
		Capabilities:    params.Capabilities,
	}
	if params.ClientInfo != nil {
		session.ClientInfo = *params.ClientInfo
	}

	s.mu.Lock()
	client := s.client
	serverID, serverName := s.serverID, s.serverName
	s.mu.Unlock()
	if client == nil {
		return
	}

	// No Local on the RPC topic: the server publishes responses on the
	// same topic it reads requests from.
	client.Subscribe(topics.RPC(clientID, serverID, serverName), qosDefault, true)
	client.Subscribe(topics.ClientPresence(clientID), qosDefault, false)

	s.sessions.Upsert(session)

	result := types.InitializeResult{
		ProtocolVersion: s.protocolVersion,
		Capabilities:    s.capabilities,
		ServerInfo:      s.info,
	}
	resp, err := types.NewResponse(*msg.ID, result)
	if err != nil {
		s.log.Logf("Failed to encode initialize result: %v", err)
		return
	}
	s.sendResponse(clientID, resp)
}

// handleInitialized completes the two-phase handshake.
func (s *Server) handleInitialized(clientID string) {
	info, ok := s.sessions.MarkInitialized(clientID)
	if !ok {
		s.log.Logf("Initialized notification for unknown client: %s", clientID)
		return
	}
	s.log.Logf("Client session initialized: %s (%s v%s)", clientID, info.Name, info.Version)
	if s.onConnected != nil {
		s.onConnected(clientID, info)
	}
}

// handleDisconnected removes the session and its subscriptions. Removal
// is idempotent; the callback fires only on an actual removal.
func (s *Server) handleDisconnected(clientID string) {
	_, ok := s.sessions.Remove(clientID)
	if !ok {
		return
	}
	s.log.Logf("Client disconnected: %s", clientID)

	s.mu.Lock()
	client := s.client
	serverID, serverName := s.serverID, s.serverName
	s.mu.Unlock()
	if client != nil {
		client.Unsubscribe(topics.RPC(clientID, serverID, serverName))
		client.Unsubscribe(topics.ClientPresence(clientID))
	}

	if s.onDisconnected != nil {
		s.onDisconnected(clientID)
	}
}

// handlePing answers with an empty result. No session state is touched.
func (s *Server) handlePing(clientID string, msg *types.Message) {
	resp, err := types.NewResponse(*msg.ID, struct{}{})
	if err != nil {
		return
	}
	s.sendResponse(clientID, resp)
}

// handleToolsList answers with the full tool catalogue. Listing does not
// require an initialized session.
func (s *Server) handleToolsList(clientID string, msg *types.Message) {
	tools := s.registry.Tools()
	if tools == nil {
		tools = []types.Tool{}
	}
	resp, err := types.NewResponse(*msg.ID, types.ListToolsResult{Tools: tools})
	if err != nil {
		s.log.Logf("Failed to encode tools list: %v", err)
		return
	}
	s.sendResponse(clientID, resp)
}

// handleToolsCall invokes a tool. The registry's outcome is always
// wrapped in a JSON-RPC success response; tool-level failure travels in
// the result's isError flag.
func (s *Server) handleToolsCall(clientID string, msg *types.Message) {
	var params types.CallToolParams
	if msg.Params != nil {
		if err := json.Unmarshal(*msg.Params, &params); err != nil {
			s.sendResponse(clientID, types.NewErrorResponse(*msg.ID, types.InvalidParams, "Invalid tools/call parameters"))
			return
		}
	}
	if params.Name == "" {
		s.sendResponse(clientID, types.NewErrorResponse(*msg.ID, types.InvalidParams, "Missing 'name' parameter"))
		return
	}

	arguments := params.Arguments
	if arguments == nil {
		arguments = map[string]interface{}{}
	}

	s.log.Logf("Tool call: tool=%s client=%s", params.Name, clientID)
	result := s.registry.Call(context.Background(), params.Name, arguments)

	resp, err := types.NewResponse(*msg.ID, result)
	if err != nil {
		s.log.Logf("Failed to encode tool result: %v", err)
		return
	}
	s.sendResponse(clientID, resp)
}

// sendResponse publishes a response on the client's RPC topic with the
// server's routing metadata attached.
func (s *Server) sendResponse(clientID string, resp *types.Message) {
	s.mu.Lock()
	client := s.client
	serverID, serverName := s.serverID, s.serverName
	s.mu.Unlock()
	if client == nil {
		return
	}

	payload, err := resp.Encode()
	if err != nil {
		s.log.Logf("Failed to encode response: %v", err)
		return
	}
	topic := topics.RPC(clientID, serverID, serverName)
	if !client.Publish(topic, payload, qosDefault, false, s.publishProps(serverID)) {
		s.log.Logf("Failed to publish response: topic=%s", topic)
	}
}

// publishPresenceLocked publishes the retained online notification.
// Callers must hold s.mu.
func (s *Server) publishPresenceLocked() {
	notif, err := types.NewNotification(methods.ServerOnline, s.online)
	if err != nil {
		s.log.Logf("Failed to encode presence notification: %v", err)
		return
	}
	payload, err := notif.Encode()
	if err != nil {
		return
	}
	topic := topics.ServerPresence(s.serverID, s.serverName)
	if !s.client.Publish(topic, payload, qosDefault, true, s.publishProps(s.serverID)) {
		s.log.Logf("Failed to publish presence: topic=%s", topic)
	}
}

// publishProps is the routing metadata attached to every publish.
func (s *Server) publishProps(serverID string) map[string]string {
	return map[string]string{
		transport.PropComponentType: transport.ComponentServer,
		transport.PropMQTTClientID:  serverID,
	}
}
