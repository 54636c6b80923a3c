package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/HanTheDev/tool-gateway/internal/models"
)

// InsertAudit writes a batch of usage rows and incidents in one round trip.
func (db *DB) InsertAudit(ctx context.Context, usage []models.UsageLog, incidents []models.ThreatIncident) error {
	batch := &pgx.Batch{}
	for _, u := range usage {
		batch.Queue(`
            INSERT INTO usage_logs (tenant_id, tool_name, latency_ms, status, created_at)
            VALUES ($1, $2, $3, $4, $5)`,
			u.TenantID, u.ToolName, u.LatencyMs, u.Status, u.CreatedAt)
	}
	for _, i := range incidents {
		batch.Queue(`
            INSERT INTO threat_incidents (tenant_id, risk_score, pattern_id, category, action_taken, created_at)
            VALUES ($1, $2, $3, $4, $5, $6)`,
			i.TenantID, i.RiskScore, i.PatternID, i.Category, i.ActionTaken, i.CreatedAt)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := db.Pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("db: insert audit: %w", err)
	}
	return nil
}

// ListUsage returns the newest usage rows, optionally for one tenant.
func (db *DB) ListUsage(ctx context.Context, tenantID string, limit int) ([]models.UsageLog, error) {
	query := `
        SELECT id, tenant_id, tool_name, latency_ms, status, created_at
        FROM usage_logs
        WHERE ($1 = '' OR tenant_id = $1)
        ORDER BY created_at DESC, id DESC
        LIMIT $2
    `
	rows, err := db.Pool.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("db: list usage: %w", err)
	}
	defer rows.Close()

	var logs []models.UsageLog
	for rows.Next() {
		var u models.UsageLog
		if err := rows.Scan(&u.ID, &u.TenantID, &u.ToolName, &u.LatencyMs, &u.Status, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("db: scan usage: %w", err)
		}
		logs = append(logs, u)
	}
	return logs, rows.Err()
}

func (db *DB) ListIncidents(ctx context.Context, limit int) ([]models.ThreatIncident, error) {
	query := `
        SELECT id, tenant_id, risk_score, pattern_id, category, action_taken, created_at
        FROM threat_incidents
        ORDER BY created_at DESC, id DESC
        LIMIT $1
    `
	rows, err := db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("db: list incidents: %w", err)
	}
	defer rows.Close()

	var incidents []models.ThreatIncident
	for rows.Next() {
		var i models.ThreatIncident
		if err := rows.Scan(&i.ID, &i.TenantID, &i.RiskScore, &i.PatternID, &i.Category, &i.ActionTaken, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("db: scan incident: %w", err)
		}
		incidents = append(incidents, i)
	}
	return incidents, rows.Err()
}

// ToolCounts aggregates usage by tool, optionally for one tenant.
func (db *DB) ToolCounts(ctx context.Context, tenantID string) ([]models.ToolCount, error) {
	query := `
        SELECT tool_name,
               COUNT(*),
               COUNT(*) FILTER (WHERE status = 'error'),
               COALESCE(AVG(latency_ms), 0)::float8
        FROM usage_logs
        WHERE ($1 = '' OR tenant_id = $1)
        GROUP BY tool_name
        ORDER BY COUNT(*) DESC, tool_name
    `
	rows, err := db.Pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("db: tool counts: %w", err)
	}
	defer rows.Close()

	var counts []models.ToolCount
	for rows.Next() {
		var c models.ToolCount
		if err := rows.Scan(&c.ToolName, &c.Calls, &c.Errors, &c.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("db: scan tool count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (db *DB) GetStats(ctx context.Context) (*models.Stats, error) {
	query := `
        SELECT
            (SELECT COUNT(*) FROM tenants),
            (SELECT COUNT(*) FROM tenants WHERE status = 'active'),
            (SELECT COUNT(*) FROM tenants WHERE delegated_connected),
            (SELECT COUNT(*) FROM context_records),
            (SELECT COUNT(*) FROM usage_logs),
            (SELECT COUNT(*) FROM usage_logs WHERE status = 'error'),
            (SELECT COUNT(*) FROM threat_incidents)
    `
	var stats models.Stats
	err := db.Pool.QueryRow(ctx, query).Scan(
		&stats.Tenants,
		&stats.ActiveTenants,
		&stats.ConnectedTenants,
		&stats.ContextRecords,
		&stats.ToolCalls,
		&stats.ToolErrors,
		&stats.ThreatsBlocked,
	)
	if err != nil {
		return nil, fmt.Errorf("db: stats: %w", err)
	}

	stats.ByTool, err = db.ToolCounts(ctx, "")
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
