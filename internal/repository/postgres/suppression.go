package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// SuppressionRepo implements dispatch.SuppressionStore against PostgreSQL.
// channel_id is stored as '' for tenant-wide entries so the uniqueness
// constraint covers both scopes.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

func (r *SuppressionRepo) Contains(ctx context.Context, tenantID, channelID, address string, now time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM suppression_entries
			WHERE tenant_id = $1
			  AND address = $2
			  AND (channel_id = '' OR channel_id = $3)
			  AND (expires_at IS NULL OR expires_at > $4)
		)
	`, tenantID, address, channelID, now).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("suppression lookup: %w", err)
	}
	return exists, nil
}

func (r *SuppressionRepo) Add(ctx context.Context, e domain.SuppressionEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO suppression_entries
			(id, tenant_id, channel_id, address, category, added_method, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (tenant_id, channel_id, address) DO NOTHING
	`, e.ID, e.TenantID, e.ChannelID, e.Address, e.Category, e.Method, e.ExpiresAt)
	if err != nil {
		return fmt.Errorf("add suppression entry: %w", err)
	}
	return nil
}
