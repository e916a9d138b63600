package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-dispatch/internal/dispatch"
	"github.com/ignite/campaign-dispatch/internal/domain"
)

func campaignRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "name", "status",
		"pacing_seconds", "pause_after_n", "pause_duration_minutes",
		"work_start", "work_end",
		"total_recipients", "sent_count", "failed_count", "no_capability_count",
		"batch_paused_at_count",
		"scheduled_at", "started_at", "completed_at", "paused_at",
		"pause_reason", "created_at", "updated_at",
	})
}

func TestCampaignRepo_Get(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewCampaignRepo(db)

	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM campaigns").
		WithArgs("camp-1", "ten-1").
		WillReturnRows(campaignRows().AddRow(
			"camp-1", "ten-1", "June promo", "running",
			30, 50, 10,
			"09:00", "18:00",
			100, 12, 1, 2,
			0,
			nil, now, nil, nil,
			"", now, now,
		))

	c, err := repo.Get(context.Background(), "ten-1", "camp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignRunning, c.Status)
	assert.Equal(t, 30, c.PacingSeconds)
	assert.Equal(t, 12, c.SentCount)

	w, ok := c.Window()
	require.True(t, ok)
	assert.True(t, w.Contains(time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)))
}

func TestCampaignRepo_GetNotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewCampaignRepo(db)

	mock.ExpectQuery("FROM campaigns").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "ten-1", "nope")
	assert.ErrorIs(t, err, dispatch.ErrNotFound)
}

func TestCampaignRepo_PauseOnlyHitsRunning(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewCampaignRepo(db)

	now := time.Now()
	mock.ExpectExec("UPDATE campaigns").
		WithArgs("camp-1", now, "batch_limit").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Pause(context.Background(), "camp-1", domain.PauseCauseBatch, now))

	// A campaign no longer running is not paused again.
	mock.ExpectExec("UPDATE campaigns").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Pause(context.Background(), "camp-1", domain.PauseCauseManual, now)
	assert.ErrorIs(t, err, dispatch.ErrNotFound)
}

func TestCampaignRepo_DueCampaignsIncludesPaused(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewCampaignRepo(db)

	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	paused := now.Add(-20 * time.Minute)
	mock.ExpectQuery("FROM campaigns").
		WithArgs("ten-1", now).
		WillReturnRows(campaignRows().
			AddRow("camp-1", "ten-1", "a", "pending", 0, 0, 0, "", "", 10, 0, 0, 0, 0,
				nil, nil, nil, nil, "", now.Add(-2*time.Hour), now).
			AddRow("camp-2", "ten-1", "b", "paused", 0, 100, 15, "", "", 10, 100, 0, 0, 100,
				nil, paused, nil, paused, "batch_limit", now.Add(-time.Hour), now))

	due, err := repo.DueCampaigns(context.Background(), "ten-1", now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "camp-1", due[0].ID)
	assert.Equal(t, domain.CampaignPaused, due[1].Status)
	assert.True(t, due[1].BatchPauseOver(now))
}

func TestCampaignRepo_MarkRunning(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewCampaignRepo(db)

	now := time.Now()
	mock.ExpectExec("UPDATE campaigns").
		WithArgs("camp-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkRunning(context.Background(), "camp-1", now))
	require.NoError(t, mock.ExpectationsWereMet())
}
