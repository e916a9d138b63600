package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// TenantRepo implements dispatch.TenantStore against PostgreSQL.
type TenantRepo struct{ db *sql.DB }

// NewTenantRepo creates a Postgres-backed tenant repository.
func NewTenantRepo(db *sql.DB) *TenantRepo { return &TenantRepo{db: db} }

func (r *TenantRepo) ListSendable(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(timezone,''), blocked, created_at
		FROM tenants
		WHERE blocked = false
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list sendable tenants: %w", err)
	}
	defer rows.Close()

	var out []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Timezone, &t.Blocked, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
