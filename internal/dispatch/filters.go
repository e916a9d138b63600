package dispatch

import (
	"context"
	"fmt"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// FilterVerdict is the outcome of running a recipient through the filter
// chain.
type FilterVerdict int

const (
	// FilterPass lets the recipient proceed to pacing and delivery.
	FilterPass FilterVerdict = iota
	// FilterSuppressed means the address sits on the suppression list; a
	// failed record was written and the recipient is skipped without
	// consuming pacing.
	FilterSuppressed
	// FilterNoCapability means the capability probe confirmed the address
	// cannot receive messages; a no_capability record was written, the
	// address was suppressed, and the recipient is skipped without
	// consuming pacing.
	FilterNoCapability
)

// FilterChain runs the per-recipient checks that precede every send:
// suppression-list lookup first, then a provider capability probe. Either
// filter writes the recipient's terminal delivery record itself; only
// recipients that pass both reach the pacer and executor.
type FilterChain struct {
	deliveries  DeliveryStore
	suppression SuppressionStore
	client      ChannelClient
	clock       Clock
}

// NewFilterChain wires the filter chain's dependencies.
func NewFilterChain(deliveries DeliveryStore, suppression SuppressionStore, client ChannelClient, clock Clock) *FilterChain {
	return &FilterChain{
		deliveries:  deliveries,
		suppression: suppression,
		client:      client,
		clock:       clock,
	}
}

// Apply runs both filters for one recipient under the given assignment.
// Returned errors are store-level problems; the caller logs them and moves
// to the next recipient. A probe transport error is NOT an error here: the
// chain fails open and lets the send proceed, because a flaky probe endpoint
// must not stall a whole campaign.
func (fc *FilterChain) Apply(ctx context.Context, campaign *domain.Campaign, work RecipientWork, asgn Assignment) (FilterVerdict, error) {
	rec := work.Recipient

	suppressed, err := fc.suppression.Contains(ctx, campaign.TenantID, asgn.Channel.ID, rec.Address, fc.clock.Now())
	if err != nil {
		return FilterPass, fmt.Errorf("suppression lookup: %w", err)
	}
	if suppressed {
		recordID, err := fc.deliveries.ClaimPending(ctx, campaign.ID, rec.ID, asgn.Channel.ID, asgn.Variant.ID)
		if err != nil {
			return FilterSuppressed, fmt.Errorf("claim suppressed record: %w", err)
		}
		if err := fc.deliveries.MarkFailed(ctx, recordID, "address on suppression list"); err != nil {
			return FilterSuppressed, fmt.Errorf("mark suppressed record: %w", err)
		}
		return FilterSuppressed, nil
	}

	capability, err := fc.client.ProbeCapability(ctx, asgn.Channel.ID, rec.Address)
	if err != nil {
		// Fail open: a broken probe must not block delivery.
		logger.Warn("capability probe failed, proceeding with send",
			"campaign_id", campaign.ID,
			"channel_id", asgn.Channel.ID,
			"address", rec.Address,
			"error", err.Error())
		return FilterPass, nil
	}
	if !capability.Reachable {
		recordID, err := fc.deliveries.ClaimPending(ctx, campaign.ID, rec.ID, asgn.Channel.ID, asgn.Variant.ID)
		if err != nil {
			return FilterNoCapability, fmt.Errorf("claim no-capability record: %w", err)
		}
		if err := fc.deliveries.MarkNoCapability(ctx, recordID, "address has no messaging capability"); err != nil {
			return FilterNoCapability, fmt.Errorf("mark no-capability record: %w", err)
		}
		if err := fc.suppression.Add(ctx, domain.SuppressionEntry{
			TenantID:  campaign.TenantID,
			Address:   rec.Address,
			Category:  domain.SuppressionNoCapability,
			Method:    "automatic",
			CreatedAt: fc.clock.Now(),
		}); err != nil {
			return FilterNoCapability, fmt.Errorf("add suppression entry: %w", err)
		}
		return FilterNoCapability, nil
	}

	return FilterPass, nil
}
