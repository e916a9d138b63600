package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CampaignStatus enumerates the lifecycle states of a dispatch campaign.
type CampaignStatus string

const (
	CampaignPending   CampaignStatus = "pending"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
	CampaignFailed    CampaignStatus = "failed"
)

// Campaign is an outbound message campaign scoped to a single tenant.
type Campaign struct {
	ID       string         `json:"id" db:"id"`
	TenantID string         `json:"tenant_id" db:"tenant_id"`
	Name     string         `json:"name" db:"name"`
	Status   CampaignStatus `json:"status" db:"status"`

	// Delivery configuration
	PacingSeconds      int    `json:"pacing_seconds" db:"pacing_seconds"`
	PauseAfterN        int    `json:"pause_after_n" db:"pause_after_n"`
	PauseDurationMin   int    `json:"pause_duration_minutes" db:"pause_duration_minutes"`
	WorkStart          string `json:"work_start" db:"work_start"` // "HH:MM", empty = no window
	WorkEnd            string `json:"work_end" db:"work_end"`

	// Counters (maintained atomically by the dispatcher)
	TotalRecipients   int `json:"total_recipients" db:"total_recipients"`
	SentCount         int `json:"sent_count" db:"sent_count"`
	FailedCount       int `json:"failed_count" db:"failed_count"`
	NoCapabilityCount int `json:"no_capability_count" db:"no_capability_count"`

	// BatchPausedAt records the sent_count at which the last batch pause
	// fired, so one boundary never pauses the campaign twice.
	BatchPausedAt int `json:"batch_paused_at_count" db:"batch_paused_at_count"`

	ScheduledAt *time.Time `json:"scheduled_at" db:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	PausedAt    *time.Time `json:"paused_at" db:"paused_at"`
	PauseReason string     `json:"pause_reason" db:"pause_reason"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignCompleted || c.Status == CampaignCancelled || c.Status == CampaignFailed
}

// IsDue returns true when the campaign should be picked up by the scheduler.
func (c *Campaign) IsDue(now time.Time) bool {
	switch c.Status {
	case CampaignPending, CampaignRunning, CampaignPaused:
		return true
	case CampaignScheduled:
		return c.ScheduledAt == nil || !c.ScheduledAt.After(now)
	}
	return false
}

// AtBatchBoundary reports whether the campaign has just crossed a
// pause_after_n multiple it has not yet paused at.
func (c *Campaign) AtBatchBoundary() bool {
	return c.PauseAfterN > 0 &&
		c.SentCount > 0 &&
		c.SentCount%c.PauseAfterN == 0 &&
		c.BatchPausedAt != c.SentCount
}

// BatchPauseOver reports whether a batch pause has served out its configured
// duration.
func (c *Campaign) BatchPauseOver(now time.Time) bool {
	if c.PausedAt == nil {
		return true
	}
	return !now.Before(c.PausedAt.Add(time.Duration(c.PauseDurationMin) * time.Minute))
}

// Window returns the campaign's operating-hours window, or ok=false when the
// campaign has no window configured and may send at any time of day.
func (c *Campaign) Window() (ScheduleWindow, bool) {
	if c.WorkStart == "" || c.WorkEnd == "" {
		return ScheduleWindow{}, false
	}
	w, err := ParseWindow(c.WorkStart, c.WorkEnd)
	if err != nil {
		return ScheduleWindow{}, false
	}
	return w, true
}

// PauseCause distinguishes why a campaign was auto-paused, which determines
// how it resumes.
type PauseCause string

const (
	PauseCauseHours  PauseCause = "outside_hours"
	PauseCauseBatch  PauseCause = "batch_limit"
	PauseCauseManual PauseCause = "manual"
)

// ScheduleWindow is a daily operating-hours window with minute granularity.
// Bounds are inclusive on both ends. It never spans midnight.
type ScheduleWindow struct {
	StartMinute int // minutes from 00:00
	EndMinute   int
}

// ParseWindow parses "HH:MM" start and end strings into a ScheduleWindow.
func ParseWindow(start, end string) (ScheduleWindow, error) {
	s, err := parseClockMinute(start)
	if err != nil {
		return ScheduleWindow{}, fmt.Errorf("work_start: %w", err)
	}
	e, err := parseClockMinute(end)
	if err != nil {
		return ScheduleWindow{}, fmt.Errorf("work_end: %w", err)
	}
	if e < s {
		return ScheduleWindow{}, fmt.Errorf("window end %q before start %q", end, start)
	}
	return ScheduleWindow{StartMinute: s, EndMinute: e}, nil
}

// Contains reports whether the local time t falls inside the window.
// Comparison is done in integer minutes; both bounds are inclusive.
func (w ScheduleWindow) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	return m >= w.StartMinute && m <= w.EndMinute
}

// NextOpen returns the next local time at or after t at which the window is
// open. If t is already inside the window it is returned unchanged.
func (w ScheduleWindow) NextOpen(t time.Time) time.Time {
	if w.Contains(t) {
		return t
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	open := day.Add(time.Duration(w.StartMinute) * time.Minute)
	if !t.Before(open) {
		open = open.Add(24 * time.Hour)
	}
	return open
}

func parseClockMinute(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}
