package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/campaign-dispatch/internal/dispatch"
	"github.com/ignite/campaign-dispatch/internal/domain"
)

// ChannelRepo implements dispatch.ChannelStore against PostgreSQL.
type ChannelRepo struct{ db *sql.DB }

// NewChannelRepo creates a Postgres-backed channel repository.
func NewChannelRepo(db *sql.DB) *ChannelRepo { return &ChannelRepo{db: db} }

// Pool queries order by channel creation time so the allocator sees a stable
// channel sequence across passes and processes.

func (r *ChannelRepo) ActivePool(ctx context.Context, campaignID string) ([]domain.Channel, error) {
	return r.pool(ctx, campaignID, true)
}

func (r *ChannelRepo) PoolChannels(ctx context.Context, campaignID string) ([]domain.Channel, error) {
	return r.pool(ctx, campaignID, false)
}

func (r *ChannelRepo) pool(ctx context.Context, campaignID string, activeOnly bool) ([]domain.Channel, error) {
	q := `
		SELECT c.id, c.tenant_id, c.name, c.state, COALESCE(c.proxy_url,''),
		       c.last_seen_at, c.created_at
		FROM channels c
		JOIN campaign_channels cc ON cc.channel_id = c.id
		WHERE cc.campaign_id = $1`
	if activeOnly {
		q += ` AND cc.active = true AND c.state = 'connected'`
	}
	q += ` ORDER BY c.created_at, c.id`

	rows, err := r.db.QueryContext(ctx, q, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list pool channels: %w", err)
	}
	defer rows.Close()

	var out []domain.Channel
	for rows.Next() {
		var c domain.Channel
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.State, &c.ProxyURL,
			&c.LastSeenAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ChannelRepo) ActivateForCampaign(ctx context.Context, campaignID, channelID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_channels SET active = true
		WHERE campaign_id = $1 AND channel_id = $2
	`, campaignID, channelID)
	if err != nil {
		return fmt.Errorf("activate channel for campaign: %w", err)
	}
	return nil
}

func (r *ChannelRepo) DeactivateForCampaign(ctx context.Context, campaignID, channelID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_channels SET active = false
		WHERE campaign_id = $1 AND channel_id = $2
	`, campaignID, channelID)
	if err != nil {
		return fmt.Errorf("deactivate channel for campaign: %w", err)
	}
	return nil
}

func (r *ChannelRepo) MarkConnected(ctx context.Context, channelID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE channels SET state = 'connected', last_seen_at = NOW()
		WHERE id = $1
	`, channelID)
	if err != nil {
		return fmt.Errorf("mark channel connected: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return dispatch.ErrNotFound
	}
	return nil
}

func (r *ChannelRepo) MarkDisconnected(ctx context.Context, channelID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE channels SET state = 'disconnected'
		WHERE id = $1
	`, channelID)
	if err != nil {
		return fmt.Errorf("mark channel disconnected: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return dispatch.ErrNotFound
	}
	return nil
}
