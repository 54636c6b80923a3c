// Package github is a minimal GitHub REST client that always acts with the
// calling tenant's own delegated token.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultAPIURL = "https://api.github.com"

var ErrInvalidRepo = errors.New("github: repo must be owner/name")

// APIError is a non-2xx response from the provider.
type APIError struct {
	Status  int
	Message string
	Hint    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: %d %s", e.Status, e.Message)
}

type User struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
	Name  string `json:"name,omitempty"`
}

type Repo struct {
	FullName      string    `json:"full_name"`
	Private       bool      `json:"private"`
	Description   string    `json:"description,omitempty"`
	HTMLURL       string    `json:"html_url"`
	DefaultBranch string    `json:"default_branch"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type File struct {
	Path    string `json:"path"`
	SHA     string `json:"sha"`
	Size    int    `json:"size"`
	Content string `json:"content"`
}

type IssueRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body,omitempty"`
	Labels []string `json:"labels,omitempty"`
}

type Issue struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
	State   string `json:"state"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient returns the pooled client used for provider calls.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DisableKeepAlives:   false,
		},
	}
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (c *Client) GetUser(ctx context.Context, token string) (*User, error) {
	var user User
	if err := c.do(ctx, token, http.MethodGet, "/user", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListRepos returns repositories visible to the token's own account.
func (c *Client) ListRepos(ctx context.Context, token string, perPage int) ([]Repo, error) {
	if perPage <= 0 || perPage > 100 {
		perPage = 30
	}
	q := url.Values{}
	q.Set("per_page", fmt.Sprint(perPage))
	q.Set("sort", "updated")
	q.Set("affiliation", "owner")

	var repos []Repo
	if err := c.do(ctx, token, http.MethodGet, "/user/repos?"+q.Encode(), nil, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// GetFile fetches a file and decodes its base64 content.
func (c *Client) GetFile(ctx context.Context, token, repo, path, ref string) (*File, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("/repos/%s/%s/contents/%s", url.PathEscape(owner), url.PathEscape(name), escapePath(path))
	if ref != "" {
		endpoint += "?ref=" + url.QueryEscape(ref)
	}

	var raw struct {
		Path     string `json:"path"`
		SHA      string `json:"sha"`
		Size     int    `json:"size"`
		Type     string `json:"type"`
		Encoding string `json:"encoding"`
		Content  string `json:"content"`
	}
	if err := c.do(ctx, token, http.MethodGet, endpoint, nil, &raw); err != nil {
		return nil, err
	}
	if raw.Type != "" && raw.Type != "file" {
		return nil, &APIError{Status: http.StatusUnprocessableEntity, Message: path + " is a " + raw.Type, Hint: "pass the path of a single file"}
	}

	content := raw.Content
	if raw.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(raw.Content, "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("github: decode content: %w", err)
		}
		content = string(decoded)
	}
	return &File{Path: raw.Path, SHA: raw.SHA, Size: raw.Size, Content: content}, nil
}

func (c *Client) CreateIssue(ctx context.Context, token, repo string, req IssueRequest) (*Issue, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	var issue Issue
	endpoint := fmt.Sprintf("/repos/%s/%s/issues", url.PathEscape(owner), url.PathEscape(name))
	if err := c.do(ctx, token, http.MethodPost, endpoint, req, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

func (c *Client) do(ctx context.Context, token, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("github: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("github: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)
		if payload.Message == "" {
			payload.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: payload.Message, Hint: hintFor(resp.StatusCode)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("github: decode response: %w", err)
	}
	return nil
}

func hintFor(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return "the GitHub authorization was revoked or expired; run github_connect again"
	case status == http.StatusForbidden:
		return "the token lacks access to this resource or the GitHub rate limit was hit"
	case status == http.StatusNotFound:
		return "check the repository and path; private repositories must belong to the connected account"
	case status == http.StatusUnprocessableEntity:
		return "GitHub rejected the request fields"
	case status >= 500:
		return "GitHub is unavailable; retry later"
	default:
		return "inspect the GitHub response message"
	}
}

func splitRepo(repo string) (string, string, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", ErrInvalidRepo
	}
	return owner, name, nil
}

func escapePath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
