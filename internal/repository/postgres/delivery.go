package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-dispatch/internal/dispatch"
)

// DeliveryRepo implements dispatch.DeliveryStore against PostgreSQL. The
// counter-moving finalizers run the record update and the campaign counter
// increment in one transaction, so counters never drift from records.
type DeliveryRepo struct{ db *sql.DB }

// NewDeliveryRepo creates a Postgres-backed delivery record repository.
func NewDeliveryRepo(db *sql.DB) *DeliveryRepo { return &DeliveryRepo{db: db} }

func (r *DeliveryRepo) NextBatch(ctx context.Context, campaignID string, limit int) ([]dispatch.RecipientWork, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT rc.id, rc.tenant_id, rc.address, COALESCE(rc.name,''),
		       COALESCE(rc.variables,'{}'), rc.created_at, COALESCE(d.id,'')
		FROM campaign_recipients rc
		LEFT JOIN delivery_records d
		       ON d.campaign_id = rc.campaign_id AND d.recipient_id = rc.id
		WHERE rc.campaign_id = $1
		  AND (d.id IS NULL OR d.status = 'pending')
		ORDER BY rc.created_at, rc.id
		LIMIT $2
	`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("next recipient batch: %w", err)
	}
	defer rows.Close()

	var out []dispatch.RecipientWork
	for rows.Next() {
		var w dispatch.RecipientWork
		var variables []byte
		if err := rows.Scan(&w.Recipient.ID, &w.Recipient.TenantID, &w.Recipient.Address,
			&w.Recipient.Name, &variables, &w.Recipient.CreatedAt, &w.RecordID); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		if len(variables) > 0 {
			if err := json.Unmarshal(variables, &w.Recipient.Variables); err != nil {
				return nil, fmt.Errorf("decode recipient %s variables: %w", w.Recipient.ID, err)
			}
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *DeliveryRepo) LastSendAt(ctx context.Context, campaignID string) (*time.Time, error) {
	var last sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(sent_at) FROM delivery_records
		WHERE campaign_id = $1 AND status = 'sent'
	`, campaignID).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("last send at: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	t := last.Time
	return &t, nil
}

func (r *DeliveryRepo) ClaimPending(ctx context.Context, campaignID, recipientID, channelID, variantID string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO delivery_records
			(id, campaign_id, recipient_id, channel_id, variant_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', NOW())
		ON CONFLICT (campaign_id, recipient_id)
		DO UPDATE SET status = 'pending', channel_id = $4, variant_id = $5, error_message = ''
		RETURNING id
	`, uuid.New().String(), campaignID, recipientID, channelID, variantID).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("claim delivery record: %w", err)
	}
	return id, nil
}

func (r *DeliveryRepo) MarkSent(ctx context.Context, recordID, providerMessageID string, sentAt time.Time) error {
	return r.finalize(ctx, recordID, "sent_count", func(tx *sql.Tx) (string, error) {
		var campaignID string
		err := tx.QueryRowContext(ctx, `
			UPDATE delivery_records
			SET status = 'sent', provider_message_id = $2, sent_at = $3
			WHERE id = $1 AND status = 'pending'
			RETURNING campaign_id
		`, recordID, providerMessageID, sentAt).Scan(&campaignID)
		return campaignID, err
	})
}

func (r *DeliveryRepo) MarkFailed(ctx context.Context, recordID, errText string) error {
	return r.finalize(ctx, recordID, "failed_count", func(tx *sql.Tx) (string, error) {
		var campaignID string
		err := tx.QueryRowContext(ctx, `
			UPDATE delivery_records
			SET status = 'failed', error_message = $2
			WHERE id = $1 AND status = 'pending'
			RETURNING campaign_id
		`, recordID, errText).Scan(&campaignID)
		return campaignID, err
	})
}

func (r *DeliveryRepo) MarkNoCapability(ctx context.Context, recordID, errText string) error {
	return r.finalize(ctx, recordID, "no_capability_count", func(tx *sql.Tx) (string, error) {
		var campaignID string
		err := tx.QueryRowContext(ctx, `
			UPDATE delivery_records
			SET status = 'no_capability', error_message = $2
			WHERE id = $1 AND status = 'pending'
			RETURNING campaign_id
		`, recordID, errText).Scan(&campaignID)
		return campaignID, err
	})
}

// finalize runs the record update and the matching campaign counter bump in
// one transaction. The record update only matches pending rows, so a record
// can be finalized once.
func (r *DeliveryRepo) finalize(ctx context.Context, recordID, counter string, update func(tx *sql.Tx) (string, error)) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finalize: %w", err)
	}
	defer tx.Rollback()

	campaignID, err := update(tx)
	if err == sql.ErrNoRows {
		return dispatch.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("finalize record %s: %w", recordID, err)
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE campaigns SET %s = %s + 1, updated_at = NOW() WHERE id = $1
	`, counter, counter), campaignID)
	if err != nil {
		return fmt.Errorf("bump %s: %w", counter, err)
	}

	return tx.Commit()
}

func (r *DeliveryRepo) ResetPending(ctx context.Context, recordID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE delivery_records
		SET status = 'pending', channel_id = '', error_message = ''
		WHERE id = $1
	`, recordID)
	if err != nil {
		return fmt.Errorf("reset delivery record: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return dispatch.ErrNotFound
	}
	return nil
}
