package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// ExecOutcome is the result of one delivery attempt after classification.
type ExecOutcome int

const (
	// ExecSent means the provider accepted the message.
	ExecSent ExecOutcome = iota
	// ExecFailed means a hard failure; the record is failed with the raw
	// provider error kept for diagnostics.
	ExecFailed
	// ExecNoCapability means the provider rejected the address itself.
	ExecNoCapability
	// ExecDisconnect means the channel session dropped mid-send; the record
	// went back to pending and the channel left the campaign's pool. The
	// caller must rebuild its pool before continuing.
	ExecDisconnect
)

// Executor performs the provider call for a resolved channel/variant/
// recipient triple and applies the classified side effects: counters,
// suppression writes, and channel failover.
type Executor struct {
	deliveries  DeliveryStore
	suppression SuppressionStore
	channels    ChannelStore
	client      ChannelClient
	renderer    Renderer
	clock       Clock

	// combinedDelay separates the blocks of a combined variant.
	combinedDelay time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
}

// NewExecutor wires the executor's dependencies.
func NewExecutor(deliveries DeliveryStore, suppression SuppressionStore, channels ChannelStore,
	client ChannelClient, renderer Renderer, clock Clock, combinedDelay time.Duration) *Executor {
	if combinedDelay <= 0 {
		combinedDelay = 1500 * time.Millisecond
	}
	return &Executor{
		deliveries:    deliveries,
		suppression:   suppression,
		channels:      channels,
		client:        client,
		renderer:      renderer,
		clock:         clock,
		combinedDelay: combinedDelay,
		sleep:         sleepCtx,
	}
}

// Deliver renders the variant for the recipient, claims the delivery record,
// performs the send, and applies the outcome. Returned errors are
// store-level; provider failures are absorbed into the outcome.
func (e *Executor) Deliver(ctx context.Context, campaign *domain.Campaign, work RecipientWork, asgn Assignment) (ExecOutcome, error) {
	rec := work.Recipient

	recordID, err := e.deliveries.ClaimPending(ctx, campaign.ID, rec.ID, asgn.Channel.ID, asgn.Variant.ID)
	if err != nil {
		return ExecFailed, fmt.Errorf("claim record: %w", err)
	}

	payload, err := e.renderer.RenderPayload(asgn.Variant.Payload, &rec)
	if err != nil {
		if markErr := e.deliveries.MarkFailed(ctx, recordID, "render: "+err.Error()); markErr != nil {
			return ExecFailed, fmt.Errorf("mark render failure: %w", markErr)
		}
		return ExecFailed, nil
	}

	result, sendErr := e.send(ctx, asgn.Channel.ID, rec.Address, payload)

	if sendErr == nil && result.OK {
		if err := e.deliveries.MarkSent(ctx, recordID, result.ProviderMessageID, e.clock.Now()); err != nil {
			return ExecSent, fmt.Errorf("mark sent: %w", err)
		}
		logger.Debug("delivered",
			"campaign_id", campaign.ID,
			"channel_id", asgn.Channel.ID,
			"variant_id", asgn.Variant.ID,
			"address", rec.Address)
		return ExecSent, nil
	}

	errText := result.ErrorText
	if sendErr != nil {
		errText = sendErr.Error()
	}

	switch ClassifyFailure(errText) {
	case FailureNoCapability:
		if err := e.deliveries.MarkNoCapability(ctx, recordID, errText); err != nil {
			return ExecNoCapability, fmt.Errorf("mark no-capability: %w", err)
		}
		if err := e.suppression.Add(ctx, domain.SuppressionEntry{
			TenantID:  campaign.TenantID,
			Address:   rec.Address,
			Category:  domain.SuppressionNoCapability,
			Method:    "automatic",
			CreatedAt: e.clock.Now(),
		}); err != nil {
			return ExecNoCapability, fmt.Errorf("suppress no-capability address: %w", err)
		}
		return ExecNoCapability, nil

	case FailureDisconnect:
		// Not a recipient failure: requeue the record and fail the channel
		// over so the allocator stops assigning it.
		if err := e.deliveries.ResetPending(ctx, recordID); err != nil {
			return ExecDisconnect, fmt.Errorf("requeue record: %w", err)
		}
		if err := e.channels.DeactivateForCampaign(ctx, campaign.ID, asgn.Channel.ID); err != nil {
			return ExecDisconnect, fmt.Errorf("deactivate channel: %w", err)
		}
		logger.Warn("channel failed over after disconnect",
			"campaign_id", campaign.ID,
			"channel_id", asgn.Channel.ID,
			"error", errText)
		return ExecDisconnect, nil

	default:
		if err := e.deliveries.MarkFailed(ctx, recordID, errText); err != nil {
			return ExecFailed, fmt.Errorf("mark failed: %w", err)
		}
		return ExecFailed, nil
	}
}

// send performs one provider call, expanding a combined payload into its
// blocks with an inter-block delay. The first failing block decides the
// overall result.
func (e *Executor) send(ctx context.Context, channelID, address string, payload domain.Payload) (domain.SendResult, error) {
	if len(payload.Combined) == 0 {
		return e.client.Send(ctx, channelID, address, payload)
	}

	var last domain.SendResult
	for i, block := range payload.Combined {
		if i > 0 {
			if err := e.sleep(ctx, e.combinedDelay); err != nil {
				return last, err
			}
		}
		result, err := e.client.Send(ctx, channelID, address, block)
		if err != nil {
			return result, err
		}
		if !result.OK {
			return result, nil
		}
		last = result
	}
	return last, nil
}
