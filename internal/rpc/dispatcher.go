package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/HanTheDev/tool-gateway/internal/audit"
	"github.com/HanTheDev/tool-gateway/internal/auth"
	"github.com/HanTheDev/tool-gateway/internal/metrics"
	"github.com/HanTheDev/tool-gateway/internal/models"
)

// Limiter gates tool calls per tenant.
type Limiter interface {
	Allow(ctx context.Context, tenant *models.Tenant) (bool, error)
}

type Config struct {
	Registry     *Registry
	Sink         audit.Sink
	Limiter      Limiter
	Metrics      metrics.Metrics
	Logger       *zap.Logger
	ServerName   string
	Version      string
	Instructions string
}

type Dispatcher struct {
	registry     *Registry
	sink         audit.Sink
	limiter      Limiter
	metrics      metrics.Metrics
	logger       *zap.Logger
	info         mcp.Implementation
	instructions string
	now          func() time.Time
}

func NewDispatcher(cfg Config) *Dispatcher {
	d := &Dispatcher{
		registry:     cfg.Registry,
		sink:         cfg.Sink,
		limiter:      cfg.Limiter,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		info:         mcp.Implementation{Name: cfg.ServerName, Version: cfg.Version},
		instructions: cfg.Instructions,
		now:          time.Now,
	}
	if d.metrics == nil {
		d.metrics = metrics.Noop{}
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	return d
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    map[string]any     `json:"capabilities"`
	ServerInfo      mcp.Implementation `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Dispatch routes one request. It returns nil for notifications.
func (d *Dispatcher) Dispatch(ctx context.Context, caller auth.Caller, req *Request) *Response {
	result, rpcErr := d.route(ctx, caller, req)
	if req.IsNotification() {
		return nil
	}
	if rpcErr != nil {
		return ErrorResponse(req.ID, rpcErr)
	}
	return ResultResponse(req.ID, result)
}

func (d *Dispatcher) route(ctx context.Context, caller auth.Caller, req *Request) (any, *Error) {
	switch req.Method {
	case "initialize":
		return initializeResult{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities: map[string]any{
				"tools":   map[string]any{"listChanged": false},
				"prompts": map[string]any{"listChanged": false},
			},
			ServerInfo:   d.info,
			Instructions: d.instructions,
		}, nil

	case "notifications/initialized", "notifications/cancelled":
		return struct{}{}, nil

	case "ping":
		return struct{}{}, nil

	case "tools/list":
		return map[string]any{"tools": d.registry.Tools()}, nil

	case "tools/call":
		return d.callTool(ctx, caller, req.Params)

	case "prompts/list":
		return map[string]any{"prompts": d.registry.Prompts()}, nil

	case "prompts/get":
		return d.getPrompt(req.Params)

	default:
		return nil, NewError(mcp.METHOD_NOT_FOUND, "method not found: %s", req.Method)
	}
}

// callTool records exactly one usage entry per invocation, whatever the outcome.
func (d *Dispatcher) callTool(ctx context.Context, caller auth.Caller, raw json.RawMessage) (result any, rpcErr *Error) {
	start := d.now()
	var params callParams
	status := models.UsageError
	metricName := "unknown"

	defer func() {
		elapsed := d.now().Sub(start)
		d.sink.RecordUsage(models.UsageLog{
			TenantID:  caller.TenantID(),
			ToolName:  params.Name,
			LatencyMs: elapsed.Milliseconds(),
			Status:    status,
		})
		d.metrics.ObserveToolCall(metricName, string(status), elapsed)
	}()

	if len(raw) == 0 {
		return nil, NewError(mcp.INVALID_PARAMS, "tools/call requires params")
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, NewError(mcp.INVALID_PARAMS, "invalid tools/call params: %v", err)
	}
	if params.Name == "" {
		return nil, NewError(mcp.INVALID_PARAMS, "tools/call requires a tool name")
	}

	tool, err := d.registry.Lookup(params.Name)
	if err != nil {
		return nil, NewError(mcp.METHOD_NOT_FOUND, "unknown tool: %s", params.Name)
	}
	metricName = params.Name

	args, err := tool.validate(params.Arguments)
	if err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return nil, &Error{Code: mcp.INVALID_PARAMS, Message: "invalid arguments for " + params.Name, Data: verr.Error()}
		}
		return nil, NewError(mcp.INVALID_PARAMS, "invalid arguments for %s: %v", params.Name, err)
	}

	if tenant, ok := caller.Tenant(); ok && d.limiter != nil {
		allowed, err := d.limiter.Allow(ctx, tenant)
		if err != nil {
			d.logger.Warn("rate limit check failed, allowing call", zap.String("tenant_id", tenant.ID), zap.Error(err))
		} else if !allowed {
			return toolResult(&ToolError{
				Code:    CodeRateLimited,
				Message: fmt.Sprintf("hourly tool-call limit reached for the %s plan", tenant.Plan),
				Hint:    "wait for the next hour or upgrade the plan",
				Status:  429,
			}, true), nil
		}
	}

	value, err := d.invoke(ctx, tool, caller, args)
	if err != nil {
		var invalid *InvalidParams
		if errors.As(err, &invalid) {
			return nil, NewError(mcp.INVALID_PARAMS, "%s", invalid.Message)
		}
		var toolErr *ToolError
		if !errors.As(err, &toolErr) {
			d.logger.Error("tool failed",
				zap.String("tool", params.Name),
				zap.Stringp("tenant_id", caller.TenantID()),
				zap.Error(err),
			)
			toolErr = &ToolError{Code: CodeInternal, Message: "the tool failed unexpectedly", Hint: "retry later; the failure was logged", Status: 500}
		}
		return toolResult(toolErr, true), nil
	}

	status = models.UsageSuccess
	return toolResult(value, false), nil
}

// invoke runs the handler and converts a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, tool *Tool, caller auth.Caller, args json.RawMessage) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("tool panicked",
				zap.String("tool", string(tool.Name())),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("panic in %s: %v", tool.Name(), rec)
		}
	}()
	return tool.handle(ctx, caller, args)
}

func toolResult(value any, isError bool) *mcp.CallToolResult {
	text, err := json.Marshal(value)
	if err != nil {
		text, _ = json.Marshal(&ToolError{Code: CodeInternal, Message: "result could not be encoded"})
		isError = true
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(text))},
		IsError: isError,
	}
}

func (d *Dispatcher) getPrompt(raw json.RawMessage) (any, *Error) {
	var params mcp.GetPromptParams
	if len(raw) == 0 {
		return nil, NewError(mcp.INVALID_PARAMS, "prompts/get requires params")
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, NewError(mcp.INVALID_PARAMS, "invalid prompts/get params: %v", err)
	}

	prompt, err := d.registry.Prompt(params.Name)
	if err != nil {
		return nil, NewError(mcp.INVALID_PARAMS, "unknown prompt: %s", params.Name)
	}
	for _, arg := range prompt.Definition.Arguments {
		if arg.Required && params.Arguments[arg.Name] == "" {
			return nil, NewError(mcp.INVALID_PARAMS, "prompt %s requires argument %s", params.Name, arg.Name)
		}
	}

	result, err := prompt.Render(params.Arguments)
	if err != nil {
		return nil, NewError(mcp.INTERNAL_ERROR, "render prompt %s: %v", params.Name, err)
	}
	return result, nil
}
