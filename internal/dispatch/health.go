package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// HealthMonitor probes the connectivity of a campaign's pool channels,
// marking dead ones disconnected and pulling them from the pool. Sweeps are
// rate-limited per campaign so processing passes can call it freely.
type HealthMonitor struct {
	channels ChannelStore
	client   ChannelClient
	clock    Clock
	interval time.Duration

	mu        sync.Mutex
	lastSweep map[string]time.Time
}

// NewHealthMonitor builds a monitor sweeping each campaign at most once per
// interval.
func NewHealthMonitor(channels ChannelStore, client ChannelClient, clock Clock, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &HealthMonitor{
		channels:  channels,
		client:    client,
		clock:     clock,
		interval:  interval,
		lastSweep: make(map[string]time.Time),
	}
}

// Sweep probes every channel attached to the campaign's pool and reconciles
// membership with what the probes report. A channel that reports
// disconnected, or whose probe fails at the network level, is marked
// disconnected globally and deactivated for this campaign; a previously
// removed channel whose probe comes back healthy is reactivated. Returns the
// number of channels removed; a sweep inside the rate-limit window is a
// no-op.
func (h *HealthMonitor) Sweep(ctx context.Context, campaignID string) (int, error) {
	now := h.clock.Now()

	h.mu.Lock()
	if last, ok := h.lastSweep[campaignID]; ok && now.Sub(last) < h.interval {
		h.mu.Unlock()
		return 0, nil
	}
	h.lastSweep[campaignID] = now
	h.mu.Unlock()

	pool, err := h.channels.PoolChannels(ctx, campaignID)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, ch := range pool {
		res, probeErr := h.client.ProbeConnectivity(ctx, ch.ID)
		if probeErr == nil && res.Connected {
			if err := h.channels.MarkConnected(ctx, ch.ID); err != nil {
				return removed, err
			}
			if err := h.channels.ActivateForCampaign(ctx, campaignID, ch.ID); err != nil {
				return removed, err
			}
			continue
		}
		if probeErr != nil {
			logger.Warn("connectivity probe failed",
				"campaign_id", campaignID,
				"channel_id", ch.ID,
				"error", probeErr.Error())
		}
		if err := h.channels.MarkDisconnected(ctx, ch.ID); err != nil {
			return removed, err
		}
		if err := h.channels.DeactivateForCampaign(ctx, campaignID, ch.ID); err != nil {
			return removed, err
		}
		logger.Info("channel removed from pool",
			"campaign_id", campaignID,
			"channel_id", ch.ID)
		removed++
	}
	return removed, nil
}

// Forget drops the rate-limit entry for a finished campaign.
func (h *HealthMonitor) Forget(campaignID string) {
	h.mu.Lock()
	delete(h.lastSweep, campaignID)
	h.mu.Unlock()
}
