// Package oauth implements both sides of the gateway's OAuth handling: the
// broker that obtains delegated GitHub tokens for tenants, and the issuer
// through which third-party clients obtain gateway credentials.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	githubendpoint "golang.org/x/oauth2/github"

	"github.com/HanTheDev/tool-gateway/internal/auth"
	"github.com/HanTheDev/tool-gateway/internal/cache"
	"github.com/HanTheDev/tool-gateway/internal/github"
	"github.com/HanTheDev/tool-gateway/internal/models"
)

// StateTTL bounds how long an initiated authorization stays redeemable.
const StateTTL = 10 * time.Minute

const providerAudience = "github"

var (
	ErrNotConfigured = errors.New("oauth: github client is not configured")
	ErrExchange      = errors.New("oauth: provider code exchange failed")
)

type TenantStore interface {
	GetTenantByID(ctx context.Context, id string) (*models.Tenant, error)
	SetDelegatedCredential(ctx context.Context, id, username, token string) error
	ClearDelegatedCredential(ctx context.Context, id string) error
}

type IdentityFetcher interface {
	GetUser(ctx context.Context, token string) (*github.User, error)
}

type BrokerConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
	HTTPClient   *http.Client
}

// Broker drives initiate -> code-issued -> exchanged for the delegated
// provider. The state parameter is a signed token carrying the tenant id;
// its nonce is staged in the cache and consumed on callback.
type Broker struct {
	config     *oauth2.Config
	httpClient *http.Client
	signer     *auth.StateSigner
	cache      cache.Store
	tenants    TenantStore
	identity   IdentityFetcher
	logger     *zap.Logger
}

func NewBroker(cfg BrokerConfig, signer *auth.StateSigner, store cache.Store, tenants TenantStore, identity IdentityFetcher, logger *zap.Logger) *Broker {
	endpoint := githubendpoint.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"repo", "read:user"}
	}

	return &Broker{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		httpClient: cfg.HTTPClient,
		signer:     signer,
		cache:      store,
		tenants:    tenants,
		identity:   identity,
		logger:     logger,
	}
}

func (b *Broker) Enabled() bool {
	return b.config.ClientID != "" && b.config.ClientSecret != ""
}

// AuthorizeURL initiates a delegation for tenantID.
func (b *Broker) AuthorizeURL(ctx context.Context, tenantID string) (string, error) {
	if !b.Enabled() {
		return "", ErrNotConfigured
	}

	state, nonce, err := b.signer.Issue(tenantID, providerAudience)
	if err != nil {
		return "", err
	}
	if err := b.cache.Set(ctx, stateKey(nonce), tenantID, StateTTL); err != nil {
		return "", fmt.Errorf("oauth: stage state: %w", err)
	}

	return b.config.AuthCodeURL(state), nil
}

// Callback completes a delegation: it exchanges the provider code, resolves
// the provider identity bound to the token and stores both on the tenant.
// A state can be used once.
func (b *Broker) Callback(ctx context.Context, code, state string) (*models.Tenant, error) {
	if !b.Enabled() {
		return nil, ErrNotConfigured
	}
	if code == "" {
		return nil, fmt.Errorf("%w: missing code", ErrExchange)
	}

	claims, err := b.signer.Validate(state, providerAudience)
	if err != nil {
		return nil, err
	}
	staged, err := b.cache.Take(ctx, stateKey(claims.ID))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, fmt.Errorf("%w: state already used or expired", auth.ErrInvalidState)
		}
		return nil, fmt.Errorf("oauth: consume state: %w", err)
	}
	if staged != claims.TenantID {
		return nil, fmt.Errorf("%w: tenant mismatch", auth.ErrInvalidState)
	}

	if b.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
	}
	token, err := b.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}

	user, err := b.identity.GetUser(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("oauth: fetch identity: %w", err)
	}

	if err := b.tenants.SetDelegatedCredential(ctx, claims.TenantID, user.Login, token.AccessToken); err != nil {
		return nil, fmt.Errorf("oauth: store credential: %w", err)
	}

	b.logger.Info("delegated credential connected",
		zap.String("tenant_id", claims.TenantID),
		zap.String("username", user.Login),
	)
	return b.tenants.GetTenantByID(ctx, claims.TenantID)
}

// Disconnect drops the tenant's delegated credential.
func (b *Broker) Disconnect(ctx context.Context, tenantID string) error {
	if err := b.tenants.ClearDelegatedCredential(ctx, tenantID); err != nil {
		return fmt.Errorf("oauth: disconnect: %w", err)
	}
	b.logger.Info("delegated credential disconnected", zap.String("tenant_id", tenantID))
	return nil
}

func stateKey(nonce string) string {
	return cache.Key("oauth", "state", nonce)
}
