package tools

import (
	"context"
	"errors"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HanTheDev/tool-gateway/internal/github"
	"github.com/HanTheDev/tool-gateway/internal/models"
	"github.com/HanTheDev/tool-gateway/internal/oauth"
	"github.com/HanTheDev/tool-gateway/internal/rpc"
)

// delegatedToken returns the tenant's own GitHub token or a not_connected failure.
func delegatedToken(tenant *models.Tenant) (string, error) {
	if !tenant.Connected() {
		return "", &rpc.ToolError{
			Code:    rpc.CodeNotConnected,
			Message: "GitHub is not connected for this tenant",
			Hint:    "call github_connect and open the returned authorize_url",
			Status:  http.StatusPreconditionRequired,
		}
	}
	return *tenant.DelegatedToken, nil
}

type connectResult struct {
	Connected    bool   `json:"connected"`
	Username     string `json:"username,omitempty"`
	AuthorizeURL string `json:"authorize_url,omitempty"`
}

func (ts *toolset) githubConnect() rpc.Tool {
	return rpc.Private(
		mcp.NewTool(string(GitHubConnect),
			mcp.WithDescription("Report the GitHub connection and return an authorization link to connect or reconnect"),
		),
		func(ctx context.Context, tenant *models.Tenant, _ struct{}) (any, error) {
			result := connectResult{Connected: tenant.Connected()}
			if result.Connected {
				result.Username = *tenant.DelegatedUsername
			}

			link, err := ts.Connector.AuthorizeURL(ctx, tenant.ID)
			if errors.Is(err, oauth.ErrNotConfigured) {
				if result.Connected {
					return result, nil
				}
				return nil, rpc.Fail(codeNotConfigured, "GitHub integration is not configured on this gateway", "ask the operator to set GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET")
			}
			if err != nil {
				return nil, err
			}
			result.AuthorizeURL = link
			return result, nil
		},
	)
}

type listReposArgs struct {
	PerPage int `json:"per_page"`
}

type listReposResult struct {
	Username string        `json:"username"`
	Repos    []github.Repo `json:"repos"`
	Count    int           `json:"count"`
}

func (ts *toolset) githubListRepos() rpc.Tool {
	return rpc.Private(
		mcp.NewTool(string(GitHubListRepos),
			mcp.WithDescription("List repositories owned by the connected GitHub account"),
			mcp.WithNumber("per_page", rpc.Integer(), mcp.Min(1), mcp.Max(100), mcp.Description("Page size, default 30")),
		),
		func(ctx context.Context, tenant *models.Tenant, args listReposArgs) (any, error) {
			token, err := delegatedToken(tenant)
			if err != nil {
				return nil, err
			}
			repos, err := ts.GitHub.ListRepos(ctx, token, args.PerPage)
			if err != nil {
				return nil, downstream(err)
			}
			if repos == nil {
				repos = []github.Repo{}
			}
			return listReposResult{Username: *tenant.DelegatedUsername, Repos: repos, Count: len(repos)}, nil
		},
	)
}

type readFileArgs struct {
	Repo string `json:"repo"`
	Path string `json:"path"`
	Ref  string `json:"ref"`
}

func (ts *toolset) githubReadFile() rpc.Tool {
	return rpc.Private(
		mcp.NewTool(string(GitHubReadFile),
			mcp.WithDescription("Read a file from a repository using the connected GitHub account"),
			mcp.WithString("repo", mcp.Required(), mcp.Description("Repository as owner/name")),
			mcp.WithString("path", mcp.Required(), mcp.MinLength(1), mcp.Description("File path inside the repository")),
			mcp.WithString("ref", mcp.Description("Branch, tag or commit; default branch when omitted")),
		),
		func(ctx context.Context, tenant *models.Tenant, args readFileArgs) (any, error) {
			token, err := delegatedToken(tenant)
			if err != nil {
				return nil, err
			}
			file, err := ts.GitHub.GetFile(ctx, token, args.Repo, args.Path, args.Ref)
			if err != nil {
				return nil, downstream(err)
			}
			return file, nil
		},
	)
}

type createIssueArgs struct {
	Repo   string   `json:"repo"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels"`
}

func (ts *toolset) githubCreateIssue() rpc.Tool {
	return rpc.Private(
		mcp.NewTool(string(GitHubCreateIssue),
			mcp.WithDescription("Open an issue as the connected GitHub account. Run vigilis_scan on the content first."),
			mcp.WithString("repo", mcp.Required(), mcp.Description("Repository as owner/name")),
			mcp.WithString("title", mcp.Required(), mcp.MinLength(1), mcp.Description("Issue title")),
			mcp.WithString("body", mcp.Description("Issue body in Markdown")),
			mcp.WithArray("labels", mcp.Items(map[string]any{"type": "string"}), mcp.Description("Labels to apply")),
		),
		func(ctx context.Context, tenant *models.Tenant, args createIssueArgs) (any, error) {
			token, err := delegatedToken(tenant)
			if err != nil {
				return nil, err
			}
			issue, err := ts.GitHub.CreateIssue(ctx, token, args.Repo, github.IssueRequest{
				Title:  args.Title,
				Body:   args.Body,
				Labels: args.Labels,
			})
			if err != nil {
				return nil, downstream(err)
			}
			return issue, nil
		},
	)
}
