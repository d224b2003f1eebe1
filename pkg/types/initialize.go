package types

import "encoding/json"

// Implementation describes the name and version of an MCP implementation
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams carries the parameters of an initialize request.
// Client capabilities are kept opaque; the protocol layer only extracts
// the fields it needs and forwards the rest untouched.
type InitializeParams struct {
	ProtocolVersion string          `json:"protocolVersion,omitempty"`
	ClientInfo      *Implementation `json:"clientInfo,omitempty"`
	Capabilities    json.RawMessage `json:"capabilities,omitempty"`

	// MCPClientID is an extension: clients that cannot attach the
	// MCP-MQTT-CLIENT-ID user property may carry their id in the payload.
	MCPClientID string `json:"mcpClientId,omitempty"`
}

// InitializeResult is the server's reply to an initialize request
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
}

// ServerOnlineParams is the payload of the retained presence notification
// announcing a server on its discovery topic.
type ServerOnlineParams struct {
	Description string          `json:"description"`
	Meta        json.RawMessage `json:"meta,omitempty"`
}
