package oauth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HanTheDev/tool-gateway/internal/auth"
	"github.com/HanTheDev/tool-gateway/internal/cache"
	"github.com/HanTheDev/tool-gateway/internal/models"
)

const (
	ChallengeS256  = "S256"
	ChallengePlain = "plain"
)

var (
	// ErrInvalidGrant covers expired, unknown and already-redeemed codes.
	ErrInvalidGrant         = errors.New("oauth: invalid or expired authorization code")
	ErrInvalidRequest       = errors.New("oauth: invalid request")
	ErrUnsupportedGrantType = errors.New("oauth: unsupported grant type")
)

type TenantCreator interface {
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
}

// Metadata is the RFC 8414 authorization server document.
type Metadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}

type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

type TokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
	RedirectURI  string `json:"redirect_uri"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	TenantID    string `json:"tenant_id"`
}

// stagedCode is what the cache holds between authorize and token. The
// tenant it names does not exist until the code is redeemed.
type stagedCode struct {
	TenantID            string `json:"tenant_id"`
	ClientName          string `json:"client_name"`
	RedirectURI         string `json:"redirect_uri"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
}

// Issuer is the gateway acting as an authorization server. Authorize stages
// a single-use code bound to a fresh tenant id; Exchange redeems it, creates
// the tenant and returns its API key.
type Issuer struct {
	publicURL string
	cache     cache.Store
	tenants   TenantCreator
	codeTTL   time.Duration
	logger    *zap.Logger
}

func NewIssuer(publicURL string, store cache.Store, tenants TenantCreator, codeTTL time.Duration, logger *zap.Logger) *Issuer {
	return &Issuer{
		publicURL: strings.TrimRight(publicURL, "/"),
		cache:     store,
		tenants:   tenants,
		codeTTL:   codeTTL,
		logger:    logger,
	}
}

func (i *Issuer) Metadata() Metadata {
	return Metadata{
		Issuer:                            i.publicURL,
		AuthorizationEndpoint:             i.publicURL + "/oauth/authorize",
		TokenEndpoint:                     i.publicURL + "/oauth/token",
		RegistrationEndpoint:              i.publicURL + "/register",
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code"},
		CodeChallengeMethodsSupported:     []string{ChallengeS256, ChallengePlain},
		TokenEndpointAuthMethodsSupported: []string{"none"},
	}
}

// Authorize returns the redirect URI carrying the new code and the caller's state.
func (i *Issuer) Authorize(ctx context.Context, req AuthorizeRequest) (string, error) {
	if req.ResponseType != "code" {
		return "", fmt.Errorf("%w: response_type must be code", ErrInvalidRequest)
	}
	redirect, err := url.Parse(req.RedirectURI)
	if err != nil || redirect.Scheme == "" || (redirect.Host == "" && redirect.Opaque == "" && redirect.Path == "") {
		return "", fmt.Errorf("%w: redirect_uri must be an absolute URI", ErrInvalidRequest)
	}

	method := req.CodeChallengeMethod
	if req.CodeChallenge != "" && method == "" {
		method = ChallengePlain
	}
	if method != "" && method != ChallengeS256 && method != ChallengePlain {
		return "", fmt.Errorf("%w: unsupported code_challenge_method %q", ErrInvalidRequest, method)
	}
	if method != "" && req.CodeChallenge == "" {
		return "", fmt.Errorf("%w: code_challenge_method without code_challenge", ErrInvalidRequest)
	}

	name := req.ClientID
	if name == "" {
		name = "oauth client"
	}
	tenantID := uuid.NewString()

	code, err := auth.RandomToken(32)
	if err != nil {
		return "", err
	}
	staged, err := json.Marshal(stagedCode{
		TenantID:            tenantID,
		ClientName:          name,
		RedirectURI:         req.RedirectURI,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
	})
	if err != nil {
		return "", fmt.Errorf("oauth: encode code: %w", err)
	}
	if err := i.cache.Set(ctx, codeKey(code), string(staged), i.codeTTL); err != nil {
		return "", fmt.Errorf("oauth: stage code: %w", err)
	}

	q := redirect.Query()
	q.Set("code", code)
	if req.State != "" {
		q.Set("state", req.State)
	}
	redirect.RawQuery = q.Encode()

	i.logger.Info("authorization code issued",
		zap.String("tenant_id", tenantID),
		zap.String("client_id", req.ClientID),
	)
	return redirect.String(), nil
}

// Exchange redeems a code at most once and only before it expires.
func (i *Issuer) Exchange(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.GrantType != "authorization_code" {
		return nil, ErrUnsupportedGrantType
	}
	if req.Code == "" {
		return nil, fmt.Errorf("%w: missing code", ErrInvalidRequest)
	}

	raw, err := i.cache.Take(ctx, codeKey(req.Code))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, ErrInvalidGrant
		}
		return nil, fmt.Errorf("oauth: redeem code: %w", err)
	}

	var staged stagedCode
	if err := json.Unmarshal([]byte(raw), &staged); err != nil {
		return nil, fmt.Errorf("%w: corrupt code", ErrInvalidGrant)
	}
	if req.RedirectURI != "" && req.RedirectURI != staged.RedirectURI {
		return nil, fmt.Errorf("%w: redirect_uri mismatch", ErrInvalidGrant)
	}
	if !verifyChallenge(staged.CodeChallengeMethod, staged.CodeChallenge, req.CodeVerifier) {
		return nil, fmt.Errorf("%w: code_verifier mismatch", ErrInvalidGrant)
	}

	tenant, err := auth.NewTenant(staged.ClientName, "", nil)
	if err != nil {
		return nil, err
	}
	tenant.ID = staged.TenantID
	tenant.Email = staged.TenantID + "@oauth.invalid"
	if err := i.tenants.CreateTenant(ctx, tenant); err != nil {
		return nil, fmt.Errorf("oauth: create tenant: %w", err)
	}

	i.logger.Info("authorization code redeemed", zap.String("tenant_id", tenant.ID))
	return &TokenResponse{AccessToken: tenant.APIKey, TokenType: "bearer", TenantID: tenant.ID}, nil
}

func verifyChallenge(method, challenge, verifier string) bool {
	switch method {
	case "":
		return true
	case ChallengePlain:
		return verifier != "" && subtle.ConstantTimeCompare([]byte(challenge), []byte(verifier)) == 1
	case ChallengeS256:
		if verifier == "" {
			return false
		}
		sum := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(computed)) == 1
	}
	return false
}

func codeKey(code string) string {
	return cache.Key("oauth", "code", code)
}
