package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/HanTheDev/tool-gateway/internal/auth"
	"github.com/HanTheDev/tool-gateway/internal/models"
)

// ToolName identifies a registered tool.
type ToolName string

// Policy and downstream failure codes rendered inside tool results.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeTenantMismatch  = "tenant_mismatch"
	CodeNotConnected    = "not_connected"
	CodeRateLimited     = "rate_limited"
	CodeNotFound        = "not_found"
	CodeInvalidInput    = "invalid_input"
	CodeDownstream      = "downstream_error"
	CodeInternal        = "internal_error"
)

// ToolError is a failure the caller can act on. It is returned as a tool
// result with isError set, never as a JSON-RPC error.
type ToolError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
	Status  int    `json:"status,omitempty"`
}

func (e *ToolError) Error() string {
	return e.Code + ": " + e.Message
}

func Fail(code, message, hint string) *ToolError {
	return &ToolError{Code: code, Message: message, Hint: hint}
}

// InvalidParams makes a handler-side argument problem surface as -32602.
type InvalidParams struct {
	Message string
}

func (e *InvalidParams) Error() string { return e.Message }

// handlerFunc is the uniform shape every typed handler is adapted to.
type handlerFunc func(ctx context.Context, caller auth.Caller, args json.RawMessage) (any, error)

// Tool is a registered tool: its descriptor, whether it needs a tenant,
// and its handler. Arguments are validated against the descriptor's input
// schema before the handler runs.
type Tool struct {
	Definition     mcp.Tool
	RequiresTenant bool

	schema *jsonschema.Schema
	handle handlerFunc
}

// Integer narrows a numeric property to whole numbers, so fractional input
// fails schema validation instead of argument decoding.
func Integer() mcp.PropertyOption {
	return func(schema map[string]any) {
		schema["type"] = "integer"
	}
}

func (t *Tool) Name() ToolName {
	return ToolName(t.Definition.Name)
}

// Public builds a tool that runs for anonymous and authenticated callers.
func Public[A any](def mcp.Tool, fn func(ctx context.Context, caller auth.Caller, args A) (any, error)) Tool {
	return Tool{
		Definition: def,
		handle: func(ctx context.Context, caller auth.Caller, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[A](raw)
			if err != nil {
				return nil, err
			}
			return fn(ctx, caller, args)
		},
	}
}

// Private builds a tool that requires an authenticated tenant.
func Private[A any](def mcp.Tool, fn func(ctx context.Context, tenant *models.Tenant, args A) (any, error)) Tool {
	return Tool{
		Definition:     def,
		RequiresTenant: true,
		handle: func(ctx context.Context, caller auth.Caller, raw json.RawMessage) (any, error) {
			tenant, ok := caller.Tenant()
			if !ok {
				return nil, Fail(CodeUnauthenticated, "this tool requires an API key", "send X-API-Key or Authorization: Bearer with a registered key")
			}
			args, err := decodeArgs[A](raw)
			if err != nil {
				return nil, err
			}
			return fn(ctx, tenant, args)
		},
	}
}

func decodeArgs[A any](raw json.RawMessage) (A, error) {
	var args A
	if len(raw) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, &InvalidParams{Message: fmt.Sprintf("invalid arguments: %v", err)}
	}
	return args, nil
}

func (t *Tool) compile() error {
	raw, err := json.Marshal(t.Definition.InputSchema)
	if err != nil {
		return fmt.Errorf("rpc: marshal schema for %s: %w", t.Definition.Name, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("rpc: parse schema for %s: %w", t.Definition.Name, err)
	}

	c := jsonschema.NewCompiler()
	url := t.Definition.Name + ".json"
	if err := c.AddResource(url, doc); err != nil {
		return fmt.Errorf("rpc: add schema for %s: %w", t.Definition.Name, err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return fmt.Errorf("rpc: compile schema for %s: %w", t.Definition.Name, err)
	}
	t.schema = schema
	return nil
}

// validate checks raw arguments against the input schema. Missing
// arguments are treated as an empty object.
func (t *Tool) validate(raw json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage(`{}`)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := t.schema.Validate(doc); err != nil {
		return nil, err
	}
	return raw, nil
}
