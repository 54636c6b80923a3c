package tools

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HanTheDev/tool-gateway/internal/cache"
	"github.com/HanTheDev/tool-gateway/internal/models"
	"github.com/HanTheDev/tool-gateway/internal/rpc"
)

// maxTTLSeconds caps cache_set lifetimes at 30 days.
const maxTTLSeconds = 30 * 24 * 60 * 60

type cacheSetArgs struct {
	Key        string `json:"key"`
	Value      string `json:"value"`
	TTLSeconds int    `json:"ttl_seconds"`
}

type cacheSetResult struct {
	OK        bool       `json:"ok"`
	Key       string     `json:"key"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (ts *toolset) cacheSet() rpc.Tool {
	return rpc.Private(
		mcp.NewTool(string(CacheSet),
			mcp.WithDescription("Store a string value in the tenant's cache, optionally expiring after ttl_seconds"),
			mcp.WithString("key", mcp.Required(), mcp.MinLength(1), mcp.Description("Cache key, private to the tenant")),
			mcp.WithString("value", mcp.Required(), mcp.Description("Value to store")),
			mcp.WithNumber("ttl_seconds", rpc.Integer(), mcp.Min(0), mcp.Max(maxTTLSeconds), mcp.Description("Lifetime in seconds; 0 or absent keeps the value until overwritten")),
		),
		func(ctx context.Context, tenant *models.Tenant, args cacheSetArgs) (any, error) {
			ttl := time.Duration(args.TTLSeconds) * time.Second
			if err := ts.Cache.Set(ctx, cache.TenantKey(tenant.ID, args.Key), args.Value, ttl); err != nil {
				return nil, err
			}

			result := cacheSetResult{OK: true, Key: args.Key}
			if ttl > 0 {
				expires := time.Now().UTC().Add(ttl)
				result.ExpiresAt = &expires
			}
			return result, nil
		},
	)
}

type cacheGetArgs struct {
	Key string `json:"key"`
}

type cacheGetResult struct {
	Found bool    `json:"found"`
	Key   string  `json:"key"`
	Value *string `json:"value,omitempty"`
}

func (ts *toolset) cacheGet() rpc.Tool {
	return rpc.Private(
		mcp.NewTool(string(CacheGet),
			mcp.WithDescription("Read a value from the tenant's cache; expired values are reported as not found"),
			mcp.WithString("key", mcp.Required(), mcp.MinLength(1), mcp.Description("Cache key")),
		),
		func(ctx context.Context, tenant *models.Tenant, args cacheGetArgs) (any, error) {
			value, err := ts.Cache.Get(ctx, cache.TenantKey(tenant.ID, args.Key))
			if errors.Is(err, cache.ErrMiss) {
				return cacheGetResult{Found: false, Key: args.Key}, nil
			}
			if err != nil {
				return nil, err
			}
			return cacheGetResult{Found: true, Key: args.Key, Value: &value}, nil
		},
	)
}
