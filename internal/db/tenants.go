package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/HanTheDev/tool-gateway/internal/models"
)

const tenantColumns = `id, name, email, api_key, plan, status, external_user_id,
	delegated_username, delegated_token, delegated_connected, created_at, updated_at`

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var tenant models.Tenant
	err := row.Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.Email,
		&tenant.APIKey,
		&tenant.Plan,
		&tenant.Status,
		&tenant.ExternalUserID,
		&tenant.DelegatedUsername,
		&tenant.DelegatedToken,
		&tenant.DelegatedConnected,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	return &tenant, nil
}

func (db *DB) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	query := `
        INSERT INTO tenants (id, name, email, api_key, plan, status, external_user_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING created_at, updated_at
    `

	err := db.Pool.QueryRow(ctx, query,
		tenant.ID,
		tenant.Name,
		tenant.Email,
		tenant.APIKey,
		tenant.Plan,
		tenant.Status,
		tenant.ExternalUserID,
	).Scan(&tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db: create tenant: %w", translate(err))
	}
	return nil
}

func (db *DB) GetTenantByID(ctx context.Context, id string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	return scanTenant(db.Pool.QueryRow(ctx, query, id))
}

func (db *DB) GetTenantByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE api_key = $1`
	return scanTenant(db.Pool.QueryRow(ctx, query, apiKey))
}

func (db *DB) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants ORDER BY created_at DESC`

	rows, err := db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db: list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("db: scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

func (db *DB) UpdateTenantStatus(ctx context.Context, id string, status models.Status) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE tenants SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("db: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) UpdateTenantPlan(ctx context.Context, id string, plan models.Plan) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE tenants SET plan = $2, updated_at = now() WHERE id = $1`, id, plan)
	if err != nil {
		return fmt.Errorf("db: update plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) RotateAPIKey(ctx context.Context, id, apiKey string) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE tenants SET api_key = $2, updated_at = now() WHERE id = $1`, id, apiKey)
	if err != nil {
		return fmt.Errorf("db: rotate api key: %w", translate(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDelegatedCredential stores the username and token together so the
// delegated_pair constraint always holds.
func (db *DB) SetDelegatedCredential(ctx context.Context, id, username, token string) error {
	query := `
        UPDATE tenants
        SET delegated_username = $2, delegated_token = $3, delegated_connected = TRUE, updated_at = now()
        WHERE id = $1
    `
	tag, err := db.Pool.Exec(ctx, query, id, username, token)
	if err != nil {
		return fmt.Errorf("db: set delegated credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) ClearDelegatedCredential(ctx context.Context, id string) error {
	query := `
        UPDATE tenants
        SET delegated_username = NULL, delegated_token = NULL, delegated_connected = FALSE, updated_at = now()
        WHERE id = $1
    `
	tag, err := db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db: clear delegated credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
