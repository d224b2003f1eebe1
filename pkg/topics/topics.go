// Package topics defines the MQTT topic layout of the MCP-over-MQTT
// protocol and the parsers for extracting ids back out of topics.
//
// Topic shapes:
//
//	$mcp-server/{server-id}/{server-name}           control (initialize)
//	$mcp-server/presence/{server-id}/{server-name}  retained server presence
//	$mcp-rpc/{client-id}/{server-id}/{server-name}  per-client RPC channel
//	$mcp-client/presence/{client-id}                client liveness
package topics

import "strings"

// Topic prefixes reserved for MCP traffic. Everything else on the shared
// MQTT connection is ignored by the server.
const (
	ServerPrefix = "$mcp-server/"
	ClientPrefix = "$mcp-client/"
	RPCPrefix    = "$mcp-rpc/"

	ClientPresencePrefix = ClientPrefix + "presence/"
)

// IsMCPTopic reports whether topic belongs to the MCP topic space.
func IsMCPTopic(topic string) bool {
	return strings.HasPrefix(topic, ServerPrefix) ||
		strings.HasPrefix(topic, ClientPrefix) ||
		strings.HasPrefix(topic, RPCPrefix)
}

// Control returns the topic on which a server receives initialize requests.
func Control(serverID, serverName string) string {
	return ServerPrefix + serverID + "/" + serverName
}

// ServerPresence returns the retained presence topic of a server.
func ServerPresence(serverID, serverName string) string {
	return ServerPrefix + "presence/" + serverID + "/" + serverName
}

// RPC returns the bidirectional per-client RPC topic.
func RPC(clientID, serverID, serverName string) string {
	return RPCPrefix + clientID + "/" + serverID + "/" + serverName
}

// ClientPresence returns the liveness topic of a client.
func ClientPresence(clientID string) string {
	return ClientPresencePrefix + clientID
}

// ClientIDFromRPC extracts the client id from an RPC topic. It returns
// false when the topic is not an RPC topic or has no segment after the
// client id.
func ClientIDFromRPC(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, RPCPrefix)
	if !ok {
		return "", false
	}
	id, _, found := strings.Cut(rest, "/")
	if !found || id == "" {
		return "", false
	}
	return id, true
}

// ClientIDFromPresence extracts the client id from a client presence topic.
func ClientIDFromPresence(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, ClientPresencePrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
