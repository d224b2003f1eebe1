// Package registry holds the catalogue of tools a server exposes.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/mcp-mqtt/mcp-mqtt-go/pkg/types"
)

type entry struct {
	tool    types.Tool
	handler types.ToolHandler
}

// Registry is a mutex-guarded name -> (tool, handler) table. Bookkeeping
// is serialized, but handlers run outside the lock so a slow tool never
// blocks registration or listing.
type Registry struct {
	mu      sync.Mutex
	entries map[string]entry
}

func New() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register stores the tool and its handler. It returns false and leaves
// the table untouched when a tool with the same name already exists.
func (r *Registry) Register(tool types.Tool, handler types.ToolHandler) bool {
	if tool.Name == "" || handler == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[tool.Name]; exists {
		return false
	}
	r.entries[tool.Name] = entry{tool: tool, handler: handler}
	return true
}

// Unregister removes the named tool. Unknown names are a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[name]
	return ok
}

// Tools returns a snapshot of the registered tool descriptors, in no
// particular order.
func (r *Registry) Tools() []types.Tool {
	r.mu.Lock()
	defer r.mu.Unlock()
	tools := make([]types.Tool, 0, len(r.entries))
	for _, e := range r.entries {
		tools = append(tools, e.tool)
	}
	return tools
}

// Call invokes the named tool. Every failure mode is reported through the
// returned result's IsError flag; Call never returns an error and never
// lets a handler panic escape.
func (r *Registry) Call(ctx context.Context, name string, arguments map[string]interface{}) *types.CallToolResult {
	r.mu.Lock()
	e, ok := r.entries[name]
	r.mu.Unlock()

	if !ok {
		return types.NewToolResultError("Tool not found: " + name)
	}

	if msg, ok := validateArguments(e.tool.InputSchema, arguments); !ok {
		return types.NewToolResultError(msg)
	}

	return safeCall(ctx, e.handler, arguments)
}

func safeCall(ctx context.Context, handler types.ToolHandler, arguments map[string]interface{}) (result *types.CallToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = types.NewToolResultError(fmt.Sprintf("Tool execution error: %v", rec))
		}
	}()

	res, err := handler(ctx, arguments)
	if err != nil {
		return types.NewToolResultError("Tool execution error: " + err.Error())
	}
	if res == nil {
		return types.NewToolResultError("Tool returned no result")
	}
	return res
}

// validateArguments checks arguments against the tool's input schema.
// Schemas without properties or required fields accept anything.
func validateArguments(schema types.ToolInputSchema, arguments map[string]interface{}) (string, bool) {
	if len(schema.Properties) == 0 && len(schema.Required) == 0 {
		return "", true
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return "Invalid tool schema: " + err.Error(), false
	}
	if arguments == nil {
		arguments = map[string]interface{}{}
	}
	argsJSON, err := json.Marshal(arguments)
	if err != nil {
		return "Invalid arguments: " + err.Error(), false
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(argsJSON),
	)
	if err != nil {
		return "Schema validation error: " + err.Error(), false
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return "Invalid arguments: " + strings.Join(msgs, "; "), false
	}
	return "", true
}
