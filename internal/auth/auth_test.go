package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HanTheDev/tool-gateway/internal/db"
	"github.com/HanTheDev/tool-gateway/internal/models"
)

type stubLookup map[string]*models.Tenant

func (s stubLookup) GetTenantByAPIKey(_ context.Context, key string) (*models.Tenant, error) {
	if key == "explode" {
		return nil, errors.New("connection reset")
	}
	t, ok := s[key]
	if !ok {
		return nil, db.ErrNotFound
	}
	return t, nil
}

func newAuthenticator() *Authenticator {
	return NewAuthenticator(stubLookup{
		"good":      {ID: "t-1", Status: models.StatusActive},
		"suspended": {ID: "t-2", Status: models.StatusSuspended},
	}, zap.NewNop())
}

func TestAuthenticate(t *testing.T) {
	a := newAuthenticator()

	tests := []struct {
		name   string
		header string
		value  string
		want   string
	}{
		{"api key header", HeaderAPIKey, "good", "t-1"},
		{"bearer", "Authorization", "Bearer good", "t-1"},
		{"bearer lowercase scheme", "Authorization", "bearer good", "t-1"},
		{"missing", "", "", ""},
		{"unknown key", HeaderAPIKey, "nope", ""},
		{"inactive tenant", HeaderAPIKey, "suspended", ""},
		{"store failure", HeaderAPIKey, "explode", ""},
		{"basic scheme ignored", "Authorization", "Basic good", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tt.header != "" {
				r.Header.Set(tt.header, tt.value)
			}
			caller := a.Authenticate(r)
			tenant, ok := caller.Tenant()
			if tt.want == "" {
				assert.False(t, ok)
				assert.Nil(t, caller.TenantID())
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, tenant.ID)
			assert.Equal(t, tt.want, *caller.TenantID())
		})
	}
}

func TestMiddlewareThreadsCaller(t *testing.T) {
	a := newAuthenticator()
	var seen Caller
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CallerFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderAPIKey, "good")
	h.ServeHTTP(httptest.NewRecorder(), r)

	tenant, ok := seen.Tenant()
	require.True(t, ok)
	assert.Equal(t, "t-1", tenant.ID)
}

func TestRequireTenant(t *testing.T) {
	h := RequireTenant(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/push", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	r := httptest.NewRequest(http.MethodPost, "/push", nil)
	r = r.WithContext(WithCaller(r.Context(), AsTenant(&models.Tenant{ID: "t-1"})))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireAdmin(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	rec := httptest.NewRecorder()
	RequireAdmin("")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/clients", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	r := httptest.NewRequest(http.MethodGet, "/admin/clients", nil)
	r.Header.Set(HeaderAdminSecret, "wrong")
	rec = httptest.NewRecorder()
	RequireAdmin("right")(ok).ServeHTTP(rec, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	r.Header.Set(HeaderAdminSecret, "right")
	rec = httptest.NewRecorder()
	RequireAdmin("right")(ok).ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStateRoundTrip(t *testing.T) {
	signer := NewStateSigner("secret", time.Minute)

	state, nonce, err := signer.Issue("t-1", "github")
	require.NoError(t, err)
	assert.NotEmpty(t, nonce)

	claims, err := signer.Validate(state, "github")
	require.NoError(t, err)
	assert.Equal(t, "t-1", claims.TenantID)
	assert.Equal(t, nonce, claims.ID)
}

func TestStateRejectsTamperingAndExpiry(t *testing.T) {
	signer := NewStateSigner("secret", time.Minute)
	state, _, err := signer.Issue("t-1", "github")
	require.NoError(t, err)

	_, err = NewStateSigner("other", time.Minute).Validate(state, "github")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = signer.Validate(state, "gitlab")
	assert.ErrorIs(t, err, ErrInvalidState)

	expired, _, err := NewStateSigner("secret", -time.Minute).Issue("t-1", "github")
	require.NoError(t, err)
	_, err = signer.Validate(expired, "github")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = signer.Validate("not-a-jwt", "github")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestGenerateAPIKey(t *testing.T) {
	a, err := GenerateAPIKey()
	require.NoError(t, err)
	b, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "kgw_"))
}

func TestNewTenant(t *testing.T) {
	ext := "user-42"
	tenant, err := NewTenant(" Ana ", "Ana@X.com", &ext)
	require.NoError(t, err)
	assert.Equal(t, "Ana", tenant.Name)
	assert.Equal(t, "ana@x.com", tenant.Email)
	assert.Equal(t, models.PlanFree, tenant.Plan)
	assert.True(t, tenant.Active())
	assert.Len(t, tenant.ID, 36)
	assert.Equal(t, "user-42", *tenant.ExternalUserID)
}

func TestNormalizeEmail(t *testing.T) {
	got, err := NormalizeEmail("  Ana@X.com ")
	require.NoError(t, err)
	assert.Equal(t, "ana@x.com", got)

	for _, raw := range []string{"", "not-an-email", "Ana <ana@x.com>", "<ana@x.com>", "ana@x.com, bob@x.com"} {
		_, err := NormalizeEmail(raw)
		assert.ErrorIs(t, err, ErrInvalidEmail, raw)
	}
}
