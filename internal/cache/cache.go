// Package cache is the gateway's ephemeral key/value store. Keys share one
// flat namespace, so callers build them with Key.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrMiss is returned for absent and expired keys alike.
var ErrMiss = errors.New("cache: miss")

type Store interface {
	// Set writes value under key. A ttl of zero never expires.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	// Take atomically reads and deletes key.
	Take(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Key joins a namespace and its parts with ':'.
func Key(namespace string, parts ...string) string {
	return namespace + ":" + strings.Join(parts, ":")
}

// TenantKey scopes a caller-supplied key to one tenant.
func TenantKey(tenantID, key string) string {
	return Key("tenant", tenantID, key)
}
