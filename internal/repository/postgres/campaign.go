package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/campaign-dispatch/internal/dispatch"
	"github.com/ignite/campaign-dispatch/internal/domain"
)

const campaignColumns = `
	id, tenant_id, name, status,
	pacing_seconds, pause_after_n, pause_duration_minutes,
	COALESCE(work_start,''), COALESCE(work_end,''),
	total_recipients, sent_count, failed_count, no_capability_count,
	batch_paused_at_count,
	scheduled_at, started_at, completed_at, paused_at,
	COALESCE(pause_reason,''), created_at, updated_at`

// CampaignRepo implements dispatch.CampaignStore against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

func scanCampaign(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := row.Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Status,
		&c.PacingSeconds, &c.PauseAfterN, &c.PauseDurationMin,
		&c.WorkStart, &c.WorkEnd,
		&c.TotalRecipients, &c.SentCount, &c.FailedCount, &c.NoCapabilityCount,
		&c.BatchPausedAt,
		&c.ScheduledAt, &c.StartedAt, &c.CompletedAt, &c.PausedAt,
		&c.PauseReason, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepo) DueCampaigns(ctx context.Context, tenantID string, now time.Time) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE tenant_id = $1
		  AND (status IN ('pending','running','paused')
		       OR (status = 'scheduled' AND (scheduled_at IS NULL OR scheduled_at <= $2)))
		ORDER BY created_at, id
	`, tenantID, now)
	if err != nil {
		return nil, fmt.Errorf("list due campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) Get(ctx context.Context, tenantID, id string) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)

	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, dispatch.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) MarkRunning(ctx context.Context, id string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'running',
		    started_at = COALESCE(started_at, $2),
		    paused_at = NULL,
		    pause_reason = '',
		    updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed','cancelled','failed')
	`, id, now)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return dispatch.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) Pause(ctx context.Context, id string, cause domain.PauseCause, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'paused',
		    paused_at = $2,
		    pause_reason = $3,
		    batch_paused_at_count = CASE WHEN $3 = 'batch_limit' THEN sent_count ELSE batch_paused_at_count END,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'running'
	`, id, now, string(cause))
	if err != nil {
		return fmt.Errorf("pause campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return dispatch.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) Complete(ctx context.Context, id string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'completed', completed_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'running'
	`, id, now)
	if err != nil {
		return fmt.Errorf("complete campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return dispatch.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) Fail(ctx context.Context, id string, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'failed', failure_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed','cancelled')
	`, id, reason)
	if err != nil {
		return fmt.Errorf("fail campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return dispatch.ErrNotFound
	}
	return nil
}
