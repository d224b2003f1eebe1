package types

// ServerCapabilities represents the capabilities a server supports
type ServerCapabilities struct {
	// Experimental features support
	Experimental map[string]interface{} `json:"experimental,omitempty"`

	// Tools capability
	Tools *ToolsServerCapabilities `json:"tools,omitempty"`
}

// ToolsServerCapabilities represents tools-specific server capabilities
type ToolsServerCapabilities struct {
	// Whether the server supports notifications for changes to the tool list
	ListChanged bool `json:"listChanged,omitempty"`
}
