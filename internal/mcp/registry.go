// Package mcp is the MCP Dispatcher (spec §4.6): a data-driven tool/resource
// registry wired to both stdio and HTTP transports over the official SDK.
// Registration uses a generic Register[P] plus reflection-based schema
// generation; there is no RBAC/scope machinery, since spec §4.7's auth
// model is binary bearer-or-loopback, not a permission tree.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dicklesworthstone/agentmail/internal/mcperr"
	"github.com/dicklesworthstone/agentmail/internal/metrics"
)

// ToolHandler is a function that handles a tool call given raw JSON args.
type ToolHandler func(ctx context.Context, arguments json.RawMessage) (any, error)

// ToolDef describes one registered tool: its schema and metadata as
// surfaced by tools/list.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// Registry holds every registered tool definition and handler, in
// registration order, so tools/list is deterministic.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]*ToolDef
	handlers map[string]ToolHandler
	resolved map[string]*jsonschema.Resolved
	order    []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]*ToolDef),
		handlers: make(map[string]ToolHandler),
		resolved: make(map[string]*jsonschema.Resolved),
	}
}

// Register adds a tool with its typed handler. The input schema is
// auto-generated from P via reflection unless def.InputSchema is already
// set, then compiled with jsonschema-go so every call's arguments are
// validated before the handler ever sees them (spec §4.6: "missing
// required fields or empty required strings fail with InvalidArgument").
func Register[P any](r *Registry, def ToolDef, handler func(ctx context.Context, params P) (any, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if def.InputSchema == nil {
		def.InputSchema = GenerateSchema[P]()
	}

	resolved, err := compileSchema(def.InputSchema)
	if err != nil {
		panic(fmt.Sprintf("mcp: tool %s has an invalid input schema: %v", def.Name, err))
	}

	r.tools[def.Name] = &def
	r.handlers[def.Name] = wrapHandler(handler)
	r.resolved[def.Name] = resolved
	r.order = append(r.order, def.Name)
}

// compileSchema turns a reflected JSON Schema map into a jsonschema-go
// Resolved schema ready for Validate calls.
func compileSchema(raw map[string]any) (*jsonschema.Resolved, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, err
	}
	return schema.Resolve(nil)
}

// validateArgs decodes raw tool-call arguments into a generic value and
// validates them against the tool's compiled schema.
func (r *Registry) validateArgs(name string, args json.RawMessage) error {
	r.mu.RLock()
	resolved, ok := r.resolved[name]
	r.mu.RUnlock()
	if !ok || resolved == nil {
		return nil
	}

	var v any = map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &v); err != nil {
			return mcperr.Invalid("arguments are not valid JSON: %v", err)
		}
	}
	if err := resolved.Validate(v); err != nil {
		return mcperr.Invalid("%v", err)
	}
	return nil
}

// GetTool returns a tool definition by name.
func (r *Registry) GetTool(name string) (*ToolDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// GetAllTools returns every tool definition in registration order.
func (r *Registry) GetAllTools() []*ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*ToolDef, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// CallTool executes a tool by name with raw JSON arguments, validating them
// against the tool's schema first.
func (r *Registry) CallTool(ctx context.Context, name string, args json.RawMessage) (any, error) {
	r.mu.RLock()
	handler, ok := r.handlers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
	if err := r.validateArgs(name, args); err != nil {
		return nil, err
	}
	return handler(ctx, args)
}

// RegisterWithMCPServer registers every tool with the SDK server, wiring
// each handler's result/error into a CallToolResult per spec §4.6's
// envelope shape.
func (r *Registry) RegisterWithMCPServer(server *mcp_sdk.Server) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		def := r.tools[name]
		handler := r.handlers[name]

		tool := &mcp_sdk.Tool{
			Name:        name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		}

		h := handler
		toolName := name
		sdkHandler := func(ctx context.Context, req *mcp_sdk.CallToolRequest) (*mcp_sdk.CallToolResult, error) {
			var args json.RawMessage
			if req.Params != nil {
				args = req.Params.Arguments
			}
			if err := r.validateArgs(toolName, args); err != nil {
				metrics.RecordToolCall(toolName, "error")
				return ErrorResult(err), nil
			}
			result, err := h(ctx, args)
			if err != nil {
				metrics.RecordToolCall(toolName, "error")
				return ErrorResult(err), nil
			}
			metrics.RecordToolCall(toolName, "ok")
			return TextResult(result), nil
		}

		server.AddTool(tool, sdkHandler)
	}
}

// wrapHandler adapts a typed handler into the raw-JSON ToolHandler shape,
// unmarshaling arguments into P before dispatch.
func wrapHandler[P any](handler func(ctx context.Context, params P) (any, error)) ToolHandler {
	return func(ctx context.Context, args json.RawMessage) (any, error) {
		var params P
		if len(args) > 0 {
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, fmt.Errorf("invalid parameters: %w", err)
			}
		}
		return handler(ctx, params)
	}
}

// GenerateSchema builds a JSON Schema object for a Go type via reflection.
func GenerateSchema[P any]() map[string]any {
	var p P
	return typeToSchema(reflect.TypeOf(p))
}

func typeToSchema(t reflect.Type) map[string]any {
	if t == nil {
		return map[string]any{"type": "object"}
	}
	if t.Kind() == reflect.Ptr {
		return typeToSchema(t.Elem())
	}

	switch t.Kind() {
	case reflect.String:
		return map[string]any{"type": "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	case reflect.Slice, reflect.Array:
		return map[string]any{
			"type":  "array",
			"items": typeToSchema(t.Elem()),
		}
	case reflect.Map:
		return map[string]any{
			"type":                 "object",
			"additionalProperties": typeToSchema(t.Elem()),
		}
	case reflect.Struct:
		props := make(map[string]any)
		schema := map[string]any{"type": "object", "properties": props}
		var required []string

		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			jsonTag := field.Tag.Get("json")
			if jsonTag == "-" {
				continue
			}
			name := field.Name
			omitempty := false
			if jsonTag != "" {
				parts := strings.Split(jsonTag, ",")
				if parts[0] != "" {
					name = parts[0]
				}
				for _, opt := range parts[1:] {
					if opt == "omitempty" {
						omitempty = true
					}
				}
			}
			propSchema := typeToSchema(field.Type)
			if desc := field.Tag.Get("description"); desc != "" {
				propSchema["description"] = desc
			}
			if !omitempty && propSchema["type"] == "string" {
				propSchema["minLength"] = 1
			}
			props[name] = propSchema
			if !omitempty {
				required = append(required, name)
			}
		}
		if len(required) > 0 {
			schema["required"] = required
		}
		return schema
	case reflect.Interface:
		return map[string]any{}
	default:
		return map[string]any{"type": "string"}
	}
}
