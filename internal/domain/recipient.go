package domain

import "time"

// Recipient is a target address plus substitution variables for one campaign.
type Recipient struct {
	ID        string            `json:"id" db:"id"`
	TenantID  string            `json:"tenant_id" db:"tenant_id"`
	Address   string            `json:"address" db:"address"`
	Name      string            `json:"name" db:"name"`
	Variables map[string]string `json:"variables" db:"variables"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// DeliveryStatus enumerates the lifecycle of a single send attempt.
type DeliveryStatus string

const (
	DeliveryPending      DeliveryStatus = "pending"
	DeliverySent         DeliveryStatus = "sent"
	DeliveryNoCapability DeliveryStatus = "no_capability"
	DeliveryFailed       DeliveryStatus = "failed"
)

// DeliveryRecord is the persisted outcome of one send attempt. A campaign has
// at most one record per recipient; a pending record left by a disconnected
// channel is reset for retry, never duplicated.
type DeliveryRecord struct {
	ID            string         `json:"id" db:"id"`
	CampaignID    string         `json:"campaign_id" db:"campaign_id"`
	RecipientID   string         `json:"recipient_id" db:"recipient_id"`
	ChannelID     string         `json:"channel_id" db:"channel_id"`
	VariantID     string         `json:"variant_id" db:"variant_id"`
	Status        DeliveryStatus `json:"status" db:"status"`
	ErrorMessage  string         `json:"error_message" db:"error_message"`
	ProviderMsgID string         `json:"provider_message_id" db:"provider_message_id"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	SentAt        *time.Time     `json:"sent_at" db:"sent_at"`
}
