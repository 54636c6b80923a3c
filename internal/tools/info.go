package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HanTheDev/tool-gateway/internal/auth"
	"github.com/HanTheDev/tool-gateway/internal/models"
	"github.com/HanTheDev/tool-gateway/internal/rpc"
)

type serverInfoResult struct {
	Name            string         `json:"name"`
	Version         string         `json:"version"`
	Tools           []rpc.ToolName `json:"tools"`
	Authenticated   bool           `json:"authenticated"`
	TenantID        string         `json:"tenant_id,omitempty"`
	Plan            models.Plan    `json:"plan,omitempty"`
	GitHubConnected bool           `json:"github_connected"`
}

func (ts *toolset) serverInfo() rpc.Tool {
	return rpc.Public(
		mcp.NewTool(string(ServerInfo),
			mcp.WithDescription("Describe this gateway, its tools, and whether the caller is authenticated"),
		),
		func(_ context.Context, caller auth.Caller, _ struct{}) (any, error) {
			result := serverInfoResult{
				Name:    ts.Name,
				Version: ts.Version,
				Tools:   ts.registry.ToolNames(),
			}
			if tenant, ok := caller.Tenant(); ok {
				result.Authenticated = true
				result.TenantID = tenant.ID
				result.Plan = tenant.Plan
				result.GitHubConnected = tenant.Connected()
			}
			return result, nil
		},
	)
}

type usageSummaryResult struct {
	TenantID    string             `json:"tenant_id"`
	TotalCalls  int64              `json:"total_calls"`
	TotalErrors int64              `json:"total_errors"`
	Tools       []models.ToolCount `json:"tools"`
}

func (ts *toolset) usageSummary() rpc.Tool {
	return rpc.Private(
		mcp.NewTool(string(UsageSummary),
			mcp.WithDescription("Summarize the caller's own tool usage by tool"),
		),
		func(ctx context.Context, tenant *models.Tenant, _ struct{}) (any, error) {
			counts, err := ts.Usage.ToolCounts(ctx, tenant.ID)
			if err != nil {
				return nil, err
			}
			result := usageSummaryResult{TenantID: tenant.ID, Tools: counts}
			if result.Tools == nil {
				result.Tools = []models.ToolCount{}
			}
			for _, c := range counts {
				result.TotalCalls += c.Calls
				result.TotalErrors += c.Errors
			}
			return result, nil
		},
	)
}
