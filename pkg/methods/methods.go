package methods

// Method constants for the MCP-over-MQTT protocol operations
const (
	// Initialization methods
	Initialize  = "initialize"
	Initialized = "notifications/initialized"

	// Session lifecycle
	Disconnected = "notifications/disconnected"

	// Utility methods
	Ping = "ping"

	// Server methods - Tools
	ListTools    = "tools/list"
	CallTool     = "tools/call"
	ToolsChanged = "notifications/tools/list_changed"

	// Service discovery
	ServerOnline = "notifications/server/online"
)
