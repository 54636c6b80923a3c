// Package gateway is the HTTP façade: it authenticates requests and routes
// them to the dispatcher, the OAuth endpoints, ingestion and admin.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/HanTheDev/tool-gateway/internal/admin"
	"github.com/HanTheDev/tool-gateway/internal/auth"
	"github.com/HanTheDev/tool-gateway/internal/models"
	"github.com/HanTheDev/tool-gateway/internal/oauth"
	"github.com/HanTheDev/tool-gateway/internal/rpc"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type ContextWriter interface {
	PushContext(ctx context.Context, tenantID, source string, data json.RawMessage) (*models.ContextRecord, error)
}

type TenantCreator interface {
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
}

type Delegation interface {
	AuthorizeURL(ctx context.Context, tenantID string) (string, error)
	Callback(ctx context.Context, code, state string) (*models.Tenant, error)
}

type AuthorizationServer interface {
	Metadata() oauth.Metadata
	Authorize(ctx context.Context, req oauth.AuthorizeRequest) (string, error)
	Exchange(ctx context.Context, req oauth.TokenRequest) (*oauth.TokenResponse, error)
}

type Options struct {
	Version       string
	Database      Pinger
	Cache         Pinger
	Authenticator *auth.Authenticator
	Dispatcher    *rpc.Dispatcher
	Contexts      ContextWriter
	Tenants       TenantCreator
	Delegation    Delegation
	Issuer        AuthorizationServer
	Admin         *admin.AdminHandler
	Metrics       http.Handler
	Logger        *zap.Logger
	Heartbeat     time.Duration
	MaxBodyBytes  int64
}

type Server struct {
	opts   Options
	logger *zap.Logger
}

func New(opts Options) *Server {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Server{opts: opts, logger: opts.Logger}
}

// Router builds the full route table.
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()
	router.Use(s.requestLogger, s.recoverer, s.opts.Authenticator.Middleware)

	// Public routes
	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/register", s.handleRegister).Methods("POST")
	router.HandleFunc("/.well-known/oauth-authorization-server", s.handleMetadata).Methods("GET")
	router.HandleFunc("/oauth/authorize", s.handleAuthorize).Methods("GET")
	router.HandleFunc("/oauth/token", s.handleToken).Methods("POST")
	router.HandleFunc("/auth/github/callback", s.handleGitHubCallback).Methods("GET")
	if s.opts.Metrics != nil {
		router.Handle("/metrics", s.opts.Metrics).Methods("GET")
	}

	// JSON-RPC; anonymous callers are allowed and tools decide.
	router.HandleFunc("/mcp", s.handleRPC).Methods("POST")
	router.HandleFunc("/", s.handleRPC).Methods("POST")
	router.HandleFunc("/sse", s.handleSSE).Methods("GET")

	// Tenant routes
	router.Handle("/push", auth.RequireTenant(http.HandlerFunc(s.handlePush))).Methods("POST")
	router.Handle("/auth/github", auth.RequireTenant(http.HandlerFunc(s.handleGitHubAuthorize))).Methods("GET")

	if s.opts.Admin != nil {
		s.opts.Admin.RegisterRoutes(router)
	}
	return router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
