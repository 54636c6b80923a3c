package db

import (
	"context"
	"fmt"
	"time"
)

// Expiry is evaluated on every read. PurgeExpiredCache only reclaims space.

func (db *DB) CacheSet(ctx context.Context, key, value string, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	query := `
        INSERT INTO cache_entries (key, value, expires_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (key) DO UPDATE
        SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
    `
	if _, err := db.Pool.Exec(ctx, query, key, value, expiresAt); err != nil {
		return fmt.Errorf("db: cache set: %w", err)
	}
	return nil
}

func (db *DB) CacheGet(ctx context.Context, key string) (string, error) {
	query := `
        SELECT value FROM cache_entries
        WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())
    `
	var value string
	if err := db.Pool.QueryRow(ctx, query, key).Scan(&value); err != nil {
		return "", translate(err)
	}
	return value, nil
}

// CacheTake deletes the key and returns its value only if it had not expired.
func (db *DB) CacheTake(ctx context.Context, key string) (string, error) {
	query := `
        DELETE FROM cache_entries
        WHERE key = $1
        RETURNING value, (expires_at IS NULL OR expires_at > now())
    `
	var (
		value string
		live  bool
	)
	if err := db.Pool.QueryRow(ctx, query, key).Scan(&value, &live); err != nil {
		return "", translate(err)
	}
	if !live {
		return "", ErrNotFound
	}
	return value, nil
}

func (db *DB) CacheDelete(ctx context.Context, key string) error {
	if _, err := db.Pool.Exec(ctx, `DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("db: cache delete: %w", err)
	}
	return nil
}

// PurgeExpiredCache deletes expired rows and returns how many were removed.
func (db *DB) PurgeExpiredCache(ctx context.Context) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("db: purge cache: %w", err)
	}
	return tag.RowsAffected(), nil
}
