package cache

import (
	"context"
	"errors"
	"time"

	"github.com/HanTheDev/tool-gateway/internal/db"
)

// Table is the subset of *db.DB backing the cache_entries table.
type Table interface {
	CacheSet(ctx context.Context, key, value string, ttl time.Duration) error
	CacheGet(ctx context.Context, key string) (string, error)
	CacheTake(ctx context.Context, key string) (string, error)
	CacheDelete(ctx context.Context, key string) error
}

// PostgresStore keeps entries in the cache_entries table and checks expiry on read.
type PostgresStore struct {
	table Table
}

func NewPostgresStore(table Table) *PostgresStore {
	return &PostgresStore{table: table}
}

func (s *PostgresStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.table.CacheSet(ctx, key, value, ttl)
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	return missOnNotFound(s.table.CacheGet(ctx, key))
}

func (s *PostgresStore) Take(ctx context.Context, key string) (string, error) {
	return missOnNotFound(s.table.CacheTake(ctx, key))
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	return s.table.CacheDelete(ctx, key)
}

func missOnNotFound(value string, err error) (string, error) {
	if errors.Is(err, db.ErrNotFound) {
		return "", ErrMiss
	}
	return value, err
}
