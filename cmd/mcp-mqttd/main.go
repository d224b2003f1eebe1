package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/mcp-mqtt/mcp-mqtt-go/pkg/logger"
	"github.com/mcp-mqtt/mcp-mqtt-go/pkg/mcp"
	"github.com/mcp-mqtt/mcp-mqtt-go/pkg/topics"
	"github.com/mcp-mqtt/mcp-mqtt-go/pkg/transport/pahomqtt"
	"github.com/mcp-mqtt/mcp-mqtt-go/pkg/types"
)

// EchoInput defines the input type for the echo tool
type EchoInput struct {
	Value string `json:"value" jsonschema:"description=Input to echo,required"`
}

func main() {
	var (
		brokerURL   = flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
		serverID    = flag.String("server-id", "", "server instance id (random when empty)")
		serverName  = flag.String("server-name", "mcp-mqtt-go/demo", "hierarchical server name")
		description = flag.String("description", "Demo MCP server over MQTT", "service description for discovery")
		username    = flag.String("username", "", "MQTT username")
		password    = flag.String("password", "", "MQTT password")
	)
	flag.Parse()

	if *serverID == "" {
		*serverID = "mcp-server-" + uuid.NewString()
	}

	log := logger.NewStderrLogger("mcp-mqttd")

	echoTool := types.NewTool(
		"echo",
		"Echoes back the input in 'value' argument",
		func(ctx context.Context, input EchoInput) (*types.CallToolResult, error) {
			return types.NewToolResultText("Echo: " + input.Value), nil
		},
	)

	srv := mcp.NewServer(
		mcp.WithLogger(log),
		mcp.WithServerInfo("mcp-mqttd", "0.1.0"),
		mcp.WithDescription(*description, json.RawMessage(`{"tools":["echo"]}`)),
		mcp.WithTools([]types.McpTool{echoTool}),
	)
	srv.OnClientConnected(func(clientID string, info types.Implementation) {
		log.Logf("Client connected: %s (%s v%s)", clientID, info.Name, info.Version)
	})
	srv.OnClientDisconnected(func(clientID string) {
		log.Logf("Client disconnected: %s", clientID)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var opts []pahomqtt.Option
	if *username != "" {
		opts = append(opts, pahomqtt.WithCredentials(*username, *password))
	}
	// A retained empty will clears the presence if the process dies
	// without a clean shutdown.
	opts = append(opts, pahomqtt.WithWill(topics.ServerPresence(*serverID, *serverName), nil, 1, true))

	client, err := pahomqtt.Connect(ctx, *brokerURL, *serverID, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to broker: %v\n", err)
		os.Exit(1)
	}

	if !srv.Start(client, mcp.Config{ServerID: *serverID, ServerName: *serverName}) {
		fmt.Fprintln(os.Stderr, "Failed to start MCP server")
		os.Exit(1)
	}
	log.Logf("Serving on broker %s as %s/%s. Press Ctrl+C to exit.", *brokerURL, *serverID, *serverName)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Logf("Shutting down...")
	srv.Stop()

	disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer disconnectCancel()
	if err := client.Disconnect(disconnectCtx); err != nil {
		log.Logf("Disconnect error: %v", err)
	}
}
