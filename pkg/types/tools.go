package types

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// ToolInputSchema represents the input schema for a tool
type ToolInputSchema struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Required   []string               `json:"required,omitempty"`
}

// Tool represents a tool that can be called by a client
type Tool struct {
	// Name of the tool, unique within a server
	Name string `json:"name"`

	// Optional description
	Description string `json:"description,omitempty"`

	// JSON Schema defining expected parameters
	InputSchema ToolInputSchema `json:"inputSchema"`
}

// ListToolsResult represents the response to a tools/list request
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams carries the parameters of a tools/call request.
type CallToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// TextContent is a text block inside a tool result
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult represents the response from a tool call. Tool-level
// failure is reported through IsError, not through a JSON-RPC error.
type CallToolResult struct {
	Content []interface{} `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// NewToolResultText creates a successful tool result with a single text block.
func NewToolResultText(text string) *CallToolResult {
	return &CallToolResult{
		Content: []interface{}{TextContent{Type: "text", Text: text}},
	}
}

// NewToolResultError creates an error-flagged tool result carrying message.
func NewToolResultError(message string) *CallToolResult {
	return &CallToolResult{
		Content: []interface{}{TextContent{Type: "text", Text: message}},
		IsError: true,
	}
}

// ToolHandler is a function that handles tool invocations
type ToolHandler func(ctx context.Context, arguments map[string]interface{}) (*CallToolResult, error)

// TypedToolHandler is a function that processes a tool's typed input
type TypedToolHandler[T any] func(ctx context.Context, input T) (*CallToolResult, error)

// McpTool defines the interface for a typed MCP tool
type McpTool interface {
	GetName() string
	GetDescription() string
	GetDefinition() Tool
	GetHandler() ToolHandler
}

// TypedTool is a generic implementation of McpTool
type TypedTool[T any] struct {
	name        string
	description string
	handler     TypedToolHandler[T]
}

// NewTool creates a new typed MCP tool
func NewTool[T any](name, description string, handler TypedToolHandler[T]) *TypedTool[T] {
	return &TypedTool[T]{
		name:        name,
		description: description,
		handler:     handler,
	}
}

func (t *TypedTool[T]) GetName() string {
	return t.name
}

func (t *TypedTool[T]) GetDescription() string {
	return t.description
}

func (t *TypedTool[T]) GetDefinition() Tool {
	// Generate JSON schema from the type T
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}

	schema := reflector.Reflect(new(T))

	// Convert the orderedmap to a map[string]interface{}
	props := make(map[string]interface{})
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		props[pair.Key] = pair.Value
	}

	return Tool{
		Name:        t.name,
		Description: t.description,
		InputSchema: ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   schema.Required,
		},
	}
}

func (t *TypedTool[T]) GetHandler() ToolHandler {
	return func(ctx context.Context, arguments map[string]interface{}) (*CallToolResult, error) {
		// Convert the arguments map to the typed input
		inputBytes, err := json.Marshal(arguments)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal arguments: %w", err)
		}

		var input T
		if err := json.Unmarshal(inputBytes, &input); err != nil {
			return nil, fmt.Errorf("failed to unmarshal arguments into input type: %w", err)
		}

		// Call the typed handler
		return t.handler(ctx, input)
	}
}
