package domain

import "time"

// SuppressionCategory classifies why an address is excluded from sending.
type SuppressionCategory string

const (
	SuppressionManual       SuppressionCategory = "manual"
	SuppressionOptOut       SuppressionCategory = "opt_out"
	SuppressionNoCapability SuppressionCategory = "no_capability"
	SuppressionComplaint    SuppressionCategory = "complaint"
)

// SuppressionEntry excludes an address from all campaigns of a tenant,
// optionally narrowed to a single channel. Entries without an expiry are
// honored indefinitely; expired entries are ignored by lookups.
type SuppressionEntry struct {
	ID        string              `json:"id" db:"id"`
	TenantID  string              `json:"tenant_id" db:"tenant_id"`
	ChannelID string              `json:"channel_id,omitempty" db:"channel_id"` // empty = tenant-wide
	Address   string              `json:"address" db:"address"`
	Category  SuppressionCategory `json:"category" db:"category"`
	Method    string              `json:"added_method" db:"added_method"` // manual | automatic | import
	ExpiresAt *time.Time          `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time           `json:"created_at" db:"created_at"`
}

// Expired reports whether the entry has an expiry in the past.
func (s *SuppressionEntry) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}
