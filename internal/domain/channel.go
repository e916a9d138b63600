package domain

import "time"

// ChannelState is the global connectivity state of a sending channel.
type ChannelState string

const (
	ChannelConnected    ChannelState = "connected"
	ChannelDisconnected ChannelState = "disconnected"
)

// Channel is a sending identity bound to a tenant. A channel can be globally
// connected yet excluded from an individual campaign's active pool.
type Channel struct {
	ID         string       `json:"id" db:"id"`
	TenantID   string       `json:"tenant_id" db:"tenant_id"`
	Name       string       `json:"name" db:"name"`
	State      ChannelState `json:"state" db:"state"`
	ProxyURL   string       `json:"proxy_url,omitempty" db:"proxy_url"`
	LastSeenAt *time.Time   `json:"last_seen_at" db:"last_seen_at"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
}

// CampaignChannel is the association between a campaign and a channel in its
// active pool. Active=false means the channel is excluded from this campaign
// only; its global state is tracked on Channel.
type CampaignChannel struct {
	CampaignID string `json:"campaign_id" db:"campaign_id"`
	ChannelID  string `json:"channel_id" db:"channel_id"`
	Active     bool   `json:"active" db:"active"`
}

// Tenant is the isolation boundary. Every campaign, channel, recipient, and
// suppression entry belongs to exactly one tenant.
type Tenant struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Timezone  string    `json:"timezone" db:"timezone"`
	Blocked   bool      `json:"blocked" db:"blocked"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Location resolves the tenant's timezone, falling back to UTC when unset or
// unknown. Operating-hours comparisons use tenant-local time.
func (t *Tenant) Location() *time.Location {
	if t.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
