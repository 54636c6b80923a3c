// Package auth resolves the calling tenant from request credentials.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HanTheDev/tool-gateway/internal/db"
	"github.com/HanTheDev/tool-gateway/internal/models"
)

const (
	HeaderAPIKey      = "X-API-Key"
	HeaderAdminSecret = "X-Admin-Secret"
	apiKeyPrefix      = "kgw_"
)

// Caller is the outcome of authentication: a tenant, or nobody.
// Anonymous callers are legal; tools decide whether they need a tenant.
type Caller struct {
	tenant *models.Tenant
}

func Anonymous() Caller { return Caller{} }

func AsTenant(t *models.Tenant) Caller { return Caller{tenant: t} }

func (c Caller) Tenant() (*models.Tenant, bool) {
	return c.tenant, c.tenant != nil
}

// TenantID is nil for anonymous callers.
func (c Caller) TenantID() *string {
	if c.tenant == nil {
		return nil
	}
	id := c.tenant.ID
	return &id
}

type TenantLookup interface {
	GetTenantByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error)
}

type Authenticator struct {
	tenants TenantLookup
	logger  *zap.Logger
}

func NewAuthenticator(tenants TenantLookup, logger *zap.Logger) *Authenticator {
	return &Authenticator{tenants: tenants, logger: logger}
}

// Authenticate never fails: missing, unknown and inactive keys all resolve
// to an anonymous caller.
func (a *Authenticator) Authenticate(r *http.Request) Caller {
	key := CredentialFromRequest(r)
	if key == "" {
		return Anonymous()
	}

	tenant, err := a.tenants.GetTenantByAPIKey(r.Context(), key)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			a.logger.Warn("tenant lookup failed", zap.Error(err))
		}
		return Anonymous()
	}
	if !tenant.Active() {
		a.logger.Info("inactive tenant presented credential",
			zap.String("tenant_id", tenant.ID),
			zap.String("status", string(tenant.Status)),
		)
		return Anonymous()
	}
	return AsTenant(tenant)
}

// CredentialFromRequest reads X-API-Key, falling back to a bearer token.
func CredentialFromRequest(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); key != "" {
		return key
	}
	authHeader := r.Header.Get("Authorization")
	// RFC 6750: the scheme is case-insensitive.
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

// GenerateAPIKey returns a new random bearer credential.
func GenerateAPIKey() (string, error) {
	bytes := make([]byte, 24)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("auth: generate api key: %w", err)
	}
	return apiKeyPrefix + hex.EncodeToString(bytes), nil
}

// RandomToken returns n random bytes hex encoded.
func RandomToken(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("auth: random token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

var ErrInvalidEmail = errors.New("auth: invalid email address")

// NormalizeEmail accepts a bare address only and returns it lowercased.
// Display-name forms such as "Ana <ana@x.com>" are rejected so that one
// mailbox cannot register twice under different spellings.
func NormalizeEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

// NewTenant builds an active free-plan tenant with a fresh id and API key.
// The caller persists it.
func NewTenant(name, email string, externalUserID *string) (*models.Tenant, error) {
	key, err := GenerateAPIKey()
	if err != nil {
		return nil, err
	}
	return &models.Tenant{
		ID:             uuid.NewString(),
		Name:           strings.TrimSpace(name),
		Email:          strings.ToLower(strings.TrimSpace(email)),
		APIKey:         key,
		Plan:           models.PlanFree,
		Status:         models.StatusActive,
		ExternalUserID: externalUserID,
	}, nil
}
