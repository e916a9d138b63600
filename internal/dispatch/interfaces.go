package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// ErrNotFound is returned by stores when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// TenantStore lists tenants eligible for dispatching.
type TenantStore interface {
	// ListSendable returns tenants that are not blocked or deleted.
	ListSendable(ctx context.Context) ([]domain.Tenant, error)
}

// CampaignStore reads and mutates campaign lifecycle state. All methods are
// tenant-scoped; implementations must never cross tenant boundaries.
type CampaignStore interface {
	// DueCampaigns returns campaigns in pending/scheduled/running/paused
	// whose schedule has arrived, ordered by creation time. Paused campaigns
	// are included so the runner can evaluate auto-resume at pickup.
	DueCampaigns(ctx context.Context, tenantID string, now time.Time) ([]domain.Campaign, error)
	// Get re-reads the live campaign row. Used before every side-effecting
	// step; campaign status is the single source of truth for cancellation.
	Get(ctx context.Context, tenantID, id string) (*domain.Campaign, error)
	// MarkRunning transitions to running, stamping started_at on first start
	// and clearing paused_at and pause_reason. batch_paused_at_count is kept
	// so a served batch boundary does not fire again.
	MarkRunning(ctx context.Context, id string, now time.Time) error
	// Pause transitions running → paused, recording the cause and timestamp.
	// A batch_limit pause also snapshots sent_count into
	// batch_paused_at_count.
	Pause(ctx context.Context, id string, cause domain.PauseCause, now time.Time) error
	// Complete transitions to completed with completed_at set.
	Complete(ctx context.Context, id string, now time.Time) error
	// Fail transitions to failed, storing the reason.
	Fail(ctx context.Context, id string, reason string) error
}

// ChannelStore manages a campaign's active channel pool and global channel
// connectivity state.
type ChannelStore interface {
	// ActivePool returns channels attached to the campaign, active in its
	// pool, and globally connected.
	ActivePool(ctx context.Context, campaignID string) ([]domain.Channel, error)
	// PoolChannels returns every channel attached to the campaign's pool,
	// active or not. The health monitor probes them all and reconciles.
	PoolChannels(ctx context.Context, campaignID string) ([]domain.Channel, error)
	// ActivateForCampaign re-adds the channel to this campaign's pool.
	// Activating an already-active channel is a no-op.
	ActivateForCampaign(ctx context.Context, campaignID, channelID string) error
	// DeactivateForCampaign removes the channel from this campaign's pool
	// without touching its global state.
	DeactivateForCampaign(ctx context.Context, campaignID, channelID string) error
	// MarkConnected flips the channel's global connectivity state to
	// connected.
	MarkConnected(ctx context.Context, channelID string) error
	// MarkDisconnected flips the channel's global connectivity state to
	// disconnected.
	MarkDisconnected(ctx context.Context, channelID string) error
}

// VariantStore reads a campaign's content variants.
type VariantStore interface {
	// ActiveVariants returns active variants ordered by order_index.
	ActiveVariants(ctx context.Context, campaignID string) ([]domain.ContentVariant, error)
}

// RecipientWork is one unit of pending work: a recipient that has either no
// delivery record for the campaign yet, or a record left in pending.
type RecipientWork struct {
	Recipient domain.Recipient
	RecordID  string // empty when no record exists yet
}

// DeliveryStore manages delivery records and the campaign counters that must
// move atomically with them.
type DeliveryStore interface {
	// NextBatch returns up to limit recipients still owed a send, in stable
	// processing order.
	NextBatch(ctx context.Context, campaignID string, limit int) ([]RecipientWork, error)
	// LastSendAt returns the sent_at of the campaign's most recent sent
	// record, or nil when nothing has been sent. Pacing reads this instead
	// of process memory so restarts cannot shorten the gap.
	LastSendAt(ctx context.Context, campaignID string) (*time.Time, error)
	// ClaimPending creates (or resets) the recipient's delivery record as
	// pending with the given assignment, returning the record id.
	ClaimPending(ctx context.Context, campaignID, recipientID, channelID, variantID string) (string, error)
	// MarkSent finalizes the record as sent and increments sent_count in the
	// same transaction.
	MarkSent(ctx context.Context, recordID, providerMessageID string, sentAt time.Time) error
	// MarkFailed finalizes the record as failed and increments failed_count
	// in the same transaction.
	MarkFailed(ctx context.Context, recordID, errText string) error
	// MarkNoCapability finalizes the record as no_capability and increments
	// no_capability_count in the same transaction.
	MarkNoCapability(ctx context.Context, recordID, errText string) error
	// ResetPending returns the record to pending for retry by another
	// channel, clearing the channel assignment.
	ResetPending(ctx context.Context, recordID string) error
}

// SuppressionStore checks and writes the durable exclusion list.
type SuppressionStore interface {
	// Contains reports whether the address is suppressed for the tenant,
	// either tenant-wide or scoped to the given channel. Expired entries do
	// not count.
	Contains(ctx context.Context, tenantID, channelID, address string, now time.Time) (bool, error)
	// Add inserts a suppression entry. Adding an address that is already
	// suppressed is a no-op, not an error.
	Add(ctx context.Context, e domain.SuppressionEntry) error
}

// ChannelClient is the opaque messaging-provider capability consumed by the
// core. The gateway package provides the production implementation.
type ChannelClient interface {
	ProbeCapability(ctx context.Context, channelID, address string) (domain.CapabilityResult, error)
	Send(ctx context.Context, channelID, address string, payload domain.Payload) (domain.SendResult, error)
	ProbeConnectivity(ctx context.Context, channelID string) (domain.ConnectivityResult, error)
}

// Renderer resolves a variant payload against a recipient's variables.
// template.Service is the production implementation.
type Renderer interface {
	RenderPayload(p domain.Payload, r *domain.Recipient) (domain.Payload, error)
}

// Clock abstracts "now" so pacing and operating-hours logic is testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }
