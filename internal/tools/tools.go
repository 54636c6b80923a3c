// Package tools defines the gateway's tools and prompts and registers them
// with an rpc.Registry.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/HanTheDev/tool-gateway/internal/audit"
	"github.com/HanTheDev/tool-gateway/internal/cache"
	"github.com/HanTheDev/tool-gateway/internal/github"
	"github.com/HanTheDev/tool-gateway/internal/metrics"
	"github.com/HanTheDev/tool-gateway/internal/models"
	"github.com/HanTheDev/tool-gateway/internal/rpc"
	"github.com/HanTheDev/tool-gateway/internal/vigilis"
)

const (
	ServerInfo        rpc.ToolName = "server_info"
	PushContext       rpc.ToolName = "push_context"
	GetContext        rpc.ToolName = "get_context"
	CacheSet          rpc.ToolName = "cache_set"
	CacheGet          rpc.ToolName = "cache_get"
	VigilisScan       rpc.ToolName = "vigilis_scan"
	UsageSummary      rpc.ToolName = "usage_summary"
	GitHubConnect     rpc.ToolName = "github_connect"
	GitHubListRepos   rpc.ToolName = "github_list_repos"
	GitHubReadFile    rpc.ToolName = "github_read_file"
	GitHubCreateIssue rpc.ToolName = "github_create_issue"
)

const codeNotConfigured = "not_configured"

type ContextStore interface {
	PushContext(ctx context.Context, tenantID, source string, data json.RawMessage) (*models.ContextRecord, error)
	GetContext(ctx context.Context, tenantID, source string) (*models.ContextRecord, error)
	ListContexts(ctx context.Context, tenantID string) ([]*models.ContextRecord, error)
}

type UsageReader interface {
	ToolCounts(ctx context.Context, tenantID string) ([]models.ToolCount, error)
}

type GitHub interface {
	ListRepos(ctx context.Context, token string, perPage int) ([]github.Repo, error)
	GetFile(ctx context.Context, token, repo, path, ref string) (*github.File, error)
	CreateIssue(ctx context.Context, token, repo string, req github.IssueRequest) (*github.Issue, error)
}

type Connector interface {
	Enabled() bool
	AuthorizeURL(ctx context.Context, tenantID string) (string, error)
}

type Deps struct {
	Contexts   ContextStore
	Cache      cache.Store
	Usage      UsageReader
	Classifier *vigilis.Classifier
	Sink       audit.Sink
	Metrics    metrics.Metrics
	GitHub     GitHub
	Connector  Connector
	Name       string
	Version    string
}

type toolset struct {
	Deps
	registry *rpc.Registry
}

// Register adds every tool and prompt to reg.
func Register(reg *rpc.Registry, deps Deps) error {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Noop{}
	}
	ts := &toolset{Deps: deps, registry: reg}

	for _, tool := range []rpc.Tool{
		ts.serverInfo(),
		ts.pushContext(),
		ts.getContext(),
		ts.cacheSet(),
		ts.cacheGet(),
		ts.vigilisScan(),
		ts.usageSummary(),
		ts.githubConnect(),
		ts.githubListRepos(),
		ts.githubReadFile(),
		ts.githubCreateIssue(),
	} {
		if err := reg.Register(tool); err != nil {
			return err
		}
	}
	for _, prompt := range prompts() {
		if err := reg.RegisterPrompt(prompt); err != nil {
			return err
		}
	}
	return nil
}

// checkTenant rejects a tenant id in the arguments that differs from the
// authenticated one. Identity always comes from the credential.
func checkTenant(tenant *models.Tenant, claimed ...string) error {
	for _, id := range claimed {
		if id != "" && id != tenant.ID {
			return rpc.Fail(rpc.CodeTenantMismatch,
				"tenant_id does not match the authenticated API key",
				"omit tenant_id; the tenant is derived from the credential")
		}
	}
	return nil
}

// downstream converts provider failures into tool errors.
func downstream(err error) error {
	var apiErr *github.APIError
	if errors.As(err, &apiErr) {
		return &rpc.ToolError{
			Code:    rpc.CodeDownstream,
			Message: fmt.Sprintf("GitHub returned %d: %s", apiErr.Status, apiErr.Message),
			Hint:    apiErr.Hint,
			Status:  apiErr.Status,
		}
	}
	if errors.Is(err, github.ErrInvalidRepo) {
		return &rpc.ToolError{Code: rpc.CodeInvalidInput, Message: err.Error(), Hint: `pass repo as "owner/name"`, Status: http.StatusBadRequest}
	}
	return err
}
