package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidState = errors.New("auth: invalid oauth state")

const stateIssuer = "tool-gateway"

// StateClaims is the payload of the OAuth state parameter. It carries the
// tenant id so the provider callback needs no server-side session.
type StateClaims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

type StateSigner struct {
	secret []byte
	ttl    time.Duration
}

func NewStateSigner(secret string, ttl time.Duration) *StateSigner {
	return &StateSigner{secret: []byte(secret), ttl: ttl}
}

// Issue returns a signed state for tenantID and the nonce embedded in it.
func (s *StateSigner) Issue(tenantID, audience string) (string, string, error) {
	now := time.Now()
	nonce := uuid.NewString()
	claims := &StateClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    stateIssuer,
			Audience:  jwt.ClaimStrings{audience},
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("auth: sign state: %w", err)
	}
	return signed, nonce, nil
}

func (s *StateSigner) Validate(state, audience string) (*StateClaims, error) {
	token, err := jwt.ParseWithClaims(state, &StateClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(stateIssuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	claims, ok := token.Claims.(*StateClaims)
	if !ok || !token.Valid || claims.TenantID == "" || claims.ID == "" {
		return nil, ErrInvalidState
	}
	return claims, nil
}
