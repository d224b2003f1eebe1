// Package transport defines the narrow MQTT contract the MCP server
// consumes. The server never owns the MQTT connection: callers connect a
// client with whatever library and options they want, wrap it in the
// Client interface, and hand it to the server. The server only subscribes
// and publishes on $mcp-* topics; the connection stays available for any
// other traffic.
package transport

// MQTT 5 user property keys used for out-of-band routing metadata.
const (
	PropComponentType = "MCP-COMPONENT-TYPE"
	PropMQTTClientID  = "MCP-MQTT-CLIENT-ID"
	PropMeta          = "MCP-META"
	PropServerName    = "MCP-SERVER-NAME"
)

// Component type values carried in PropComponentType.
const (
	ComponentServer = "mcp-server"
	ComponentClient = "mcp-client"
)

// Message is an inbound MQTT publish as delivered to the server.
type Message struct {
	Topic          string
	Payload        []byte
	QoS            byte
	Retained       bool
	UserProperties map[string]string
}

// Handler receives every inbound message of the underlying connection.
// The server filters for MCP topics itself and runs synchronously on the
// delivering goroutine.
type Handler func(msg Message)

// ConnectionLostHandler is invoked when the underlying connection drops.
type ConnectionLostHandler func(reason string)

// Client is the transport contract implemented by the operator around a
// connected MQTT client. All methods report success as a bare boolean;
// retry policy belongs to the implementation, not to the MCP server.
type Client interface {
	// IsConnected reports whether the client is connected to the broker.
	IsConnected() bool

	// Subscribe subscribes to a topic filter. noLocal sets the MQTT 5
	// No Local option so the connection does not receive messages it
	// published itself.
	Subscribe(filter string, qos byte, noLocal bool) bool

	// Unsubscribe removes a subscription.
	Unsubscribe(filter string) bool

	// Publish sends payload on topic with the given QoS, retain flag and
	// MQTT 5 user properties.
	Publish(topic string, payload []byte, qos byte, retain bool, userProps map[string]string) bool

	// ClientID returns the MQTT client id of this connection.
	ClientID() string

	// SetMessageHandler registers the handler invoked for every inbound
	// message. Implementations must deliver all messages; the MCP server
	// ignores non-MCP topics on its own.
	SetMessageHandler(handler Handler)

	// SetConnectionLostHandler registers the handler invoked when the
	// connection to the broker is lost.
	SetConnectionLostHandler(handler ConnectionLostHandler)
}
