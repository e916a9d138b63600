package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// Runner executes one processing pass over a single campaign: lifecycle
// transitions, pool upkeep, and the allocate/filter/pace/send loop. The
// scheduler guarantees at most one pass per tenant at a time, so the runner
// itself holds no cross-campaign state.
type Runner struct {
	campaigns  CampaignStore
	channels   ChannelStore
	variants   VariantStore
	deliveries DeliveryStore
	filters    *FilterChain
	executor   *Executor
	pacer      *Pacer
	health     *HealthMonitor
	clock      Clock

	batchSize int
}

// NewRunner wires a runner. batchSize bounds how many recipients are pulled
// per query; the pass loops until the campaign finishes or is interrupted.
func NewRunner(campaigns CampaignStore, channels ChannelStore, variants VariantStore,
	deliveries DeliveryStore, filters *FilterChain, executor *Executor, pacer *Pacer,
	health *HealthMonitor, clock Clock, batchSize int) *Runner {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Runner{
		campaigns:  campaigns,
		channels:   channels,
		variants:   variants,
		deliveries: deliveries,
		filters:    filters,
		executor:   executor,
		pacer:      pacer,
		health:     health,
		clock:      clock,
		batchSize:  batchSize,
	}
}

// ProcessCampaign runs one pass for the campaign. It returns nil both when
// the pass completed its work and when it stopped early at a checkpoint
// (pause, cancellation, empty pool); the next tick picks the campaign up
// again if there is anything left to do.
func (r *Runner) ProcessCampaign(ctx context.Context, tenant domain.Tenant, campaignID string) error {
	loc := tenant.Location()

	c, err := r.campaigns.Get(ctx, tenant.ID, campaignID)
	if err != nil {
		return fmt.Errorf("load campaign: %w", err)
	}

	switch c.Status {
	case domain.CampaignCompleted, domain.CampaignCancelled, domain.CampaignFailed:
		return nil
	case domain.CampaignPaused:
		if !r.resumable(c, loc) {
			return nil
		}
	case domain.CampaignScheduled:
		if c.ScheduledAt != nil && c.ScheduledAt.After(r.clock.Now()) {
			return nil
		}
	}

	if c.Status != domain.CampaignRunning {
		if err := r.campaigns.MarkRunning(ctx, c.ID, r.clock.Now()); err != nil {
			return fmt.Errorf("mark running: %w", err)
		}
		logger.Info("campaign running",
			"tenant_id", tenant.ID,
			"campaign_id", c.ID,
			"sent_count", c.SentCount)
	}

	for {
		c, err = r.campaigns.Get(ctx, tenant.ID, campaignID)
		if err != nil {
			return fmt.Errorf("reload campaign: %w", err)
		}
		if stop, err := r.checkpoint(ctx, c, loc); stop || err != nil {
			return err
		}

		if _, err := r.health.Sweep(ctx, c.ID); err != nil {
			logger.Warn("health sweep", "campaign_id", c.ID, "error", err.Error())
		}

		pool, err := r.channels.ActivePool(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("load channel pool: %w", err)
		}
		variants, err := r.variants.ActiveVariants(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("load variants: %w", err)
		}
		if len(pool) == 0 || len(variants) == 0 {
			// Nothing to send with. Leave the campaign running; recovered
			// channels or new variants make the next tick productive.
			logger.Warn("campaign has no sendable resources",
				"campaign_id", c.ID,
				"channels", len(pool),
				"variants", len(variants))
			return nil
		}

		batch, err := r.deliveries.NextBatch(ctx, c.ID, r.batchSize)
		if err != nil {
			return fmt.Errorf("load recipient batch: %w", err)
		}
		if len(batch) == 0 {
			if err := r.campaigns.Complete(ctx, c.ID, r.clock.Now()); err != nil {
				return fmt.Errorf("complete campaign: %w", err)
			}
			r.health.Forget(c.ID)
			logger.Info("campaign completed",
				"tenant_id", tenant.ID,
				"campaign_id", c.ID,
				"sent", c.SentCount,
				"failed", c.FailedCount,
				"no_capability", c.NoCapabilityCount)
			return nil
		}

		alloc := NewAllocator(pool, variants)

		rebuild, stop, err := r.processBatch(ctx, tenant, campaignID, loc, alloc, batch)
		if err != nil || stop {
			return err
		}
		if rebuild {
			continue
		}
	}
}

// processBatch walks one batch of recipients. rebuild=true asks the caller
// to refresh pool and variants (a channel dropped out); stop=true ends the
// pass at a checkpoint.
func (r *Runner) processBatch(ctx context.Context, tenant domain.Tenant, campaignID string,
	loc *time.Location, alloc *Allocator, batch []RecipientWork) (rebuild, stop bool, err error) {
	for _, work := range batch {
		c, err := r.campaigns.Get(ctx, tenant.ID, campaignID)
		if err != nil {
			return false, true, fmt.Errorf("reload campaign: %w", err)
		}
		if stopped, err := r.checkpoint(ctx, c, loc); stopped || err != nil {
			return false, true, err
		}

		asgn := alloc.AssignmentFor(c.SentCount)

		verdict, err := r.filters.Apply(ctx, c, work, asgn)
		if err != nil {
			logger.Error("filter chain error, skipping recipient",
				"campaign_id", c.ID,
				"recipient_id", work.Recipient.ID,
				"error", err.Error())
			continue
		}
		if verdict != FilterPass {
			continue
		}

		lastSend, err := r.deliveries.LastSendAt(ctx, c.ID)
		if err != nil {
			return false, true, fmt.Errorf("load last send: %w", err)
		}
		proceed := r.pacer.Wait(ctx, c.PacingSeconds, lastSend, func(ctx context.Context) bool {
			live, err := r.campaigns.Get(ctx, tenant.ID, campaignID)
			if err != nil {
				return false
			}
			return live.Status == domain.CampaignRunning
		})
		if !proceed {
			return false, true, nil
		}

		outcome, err := r.executor.Deliver(ctx, c, work, asgn)
		if err != nil {
			logger.Error("delivery attempt error, skipping recipient",
				"campaign_id", c.ID,
				"recipient_id", work.Recipient.ID,
				"error", err.Error())
			continue
		}
		if outcome == ExecDisconnect {
			return true, false, nil
		}
	}
	return false, false, nil
}

// checkpoint enforces the interruption rules between sends: cancellation and
// manual pause (status alone decides), operating hours, and batch
// boundaries. stop=true ends the current pass.
func (r *Runner) checkpoint(ctx context.Context, c *domain.Campaign, loc *time.Location) (stop bool, err error) {
	if c.Status != domain.CampaignRunning {
		return true, nil
	}

	if w, ok := c.Window(); ok && !w.Contains(r.clock.Now().In(loc)) {
		if err := r.campaigns.Pause(ctx, c.ID, domain.PauseCauseHours, r.clock.Now()); err != nil {
			return true, fmt.Errorf("pause outside hours: %w", err)
		}
		logger.Info("campaign paused outside operating hours",
			"campaign_id", c.ID,
			"work_start", c.WorkStart,
			"work_end", c.WorkEnd)
		return true, nil
	}

	if c.AtBatchBoundary() {
		if err := r.campaigns.Pause(ctx, c.ID, domain.PauseCauseBatch, r.clock.Now()); err != nil {
			return true, fmt.Errorf("pause at batch boundary: %w", err)
		}
		logger.Info("campaign paused at batch boundary",
			"campaign_id", c.ID,
			"sent_count", c.SentCount,
			"pause_minutes", c.PauseDurationMin)
		return true, nil
	}

	return false, nil
}

// resumable reports whether a paused campaign may go back to running now.
// Manual pauses never auto-resume.
func (r *Runner) resumable(c *domain.Campaign, loc *time.Location) bool {
	switch domain.PauseCause(c.PauseReason) {
	case domain.PauseCauseHours:
		w, ok := c.Window()
		if !ok {
			return true
		}
		return w.Contains(r.clock.Now().In(loc))
	case domain.PauseCauseBatch:
		return c.BatchPauseOver(r.clock.Now())
	default:
		return false
	}
}
