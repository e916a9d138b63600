package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// VariantRepo implements dispatch.VariantStore against PostgreSQL.
type VariantRepo struct{ db *sql.DB }

// NewVariantRepo creates a Postgres-backed content variant repository.
func NewVariantRepo(db *sql.DB) *VariantRepo { return &VariantRepo{db: db} }

func (r *VariantRepo) ActiveVariants(ctx context.Context, campaignID string) ([]domain.ContentVariant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, type, order_index, active, payload, created_at
		FROM content_variants
		WHERE campaign_id = $1 AND active = true
		ORDER BY order_index, id
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list active variants: %w", err)
	}
	defer rows.Close()

	var out []domain.ContentVariant
	for rows.Next() {
		var v domain.ContentVariant
		var payload []byte
		if err := rows.Scan(&v.ID, &v.CampaignID, &v.Type, &v.OrderIndex,
			&v.Active, &payload, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		if err := v.UnmarshalPayload(payload); err != nil {
			return nil, fmt.Errorf("decode variant %s payload: %w", v.ID, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
