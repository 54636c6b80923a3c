package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HanTheDev/tool-gateway/internal/models"
)

// PushContext replaces the (tenant, source) record in a single statement.
func (db *DB) PushContext(ctx context.Context, tenantID, source string, data json.RawMessage) (*models.ContextRecord, error) {
	query := `
        INSERT INTO context_records (tenant_id, source, data, updated_at)
        VALUES ($1, $2, $3::jsonb, clock_timestamp())
        ON CONFLICT (tenant_id, source) DO UPDATE
        SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
        RETURNING updated_at
    `

	record := &models.ContextRecord{TenantID: tenantID, Source: source, Data: data}
	if err := db.Pool.QueryRow(ctx, query, tenantID, source, string(data)).Scan(&record.UpdatedAt); err != nil {
		return nil, fmt.Errorf("db: push context: %w", translate(err))
	}
	return record, nil
}

func (db *DB) GetContext(ctx context.Context, tenantID, source string) (*models.ContextRecord, error) {
	query := `
        SELECT tenant_id, source, data, updated_at
        FROM context_records
        WHERE tenant_id = $1 AND source = $2
    `

	var (
		record models.ContextRecord
		data   []byte
	)
	err := db.Pool.QueryRow(ctx, query, tenantID, source).Scan(&record.TenantID, &record.Source, &data, &record.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	record.Data = json.RawMessage(data)
	return &record, nil
}

// ListContexts returns every record of the tenant, most recently updated first.
func (db *DB) ListContexts(ctx context.Context, tenantID string) ([]*models.ContextRecord, error) {
	query := `
        SELECT tenant_id, source, data, updated_at
        FROM context_records
        WHERE tenant_id = $1
        ORDER BY updated_at DESC, source
    `

	rows, err := db.Pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("db: list contexts: %w", err)
	}
	defer rows.Close()

	var records []*models.ContextRecord
	for rows.Next() {
		var (
			record models.ContextRecord
			data   []byte
		)
		if err := rows.Scan(&record.TenantID, &record.Source, &data, &record.UpdatedAt); err != nil {
			return nil, fmt.Errorf("db: scan context: %w", err)
		}
		record.Data = json.RawMessage(data)
		records = append(records, &record)
	}
	return records, rows.Err()
}
