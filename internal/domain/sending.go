package domain

import "time"

// SendResult is returned by the channel client after a send attempt.
// OK=false with ErrorText set means the provider rejected the send; the
// failure classifier decides what the rejection means.
type SendResult struct {
	OK                bool      `json:"ok"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	ErrorText         string    `json:"error,omitempty"`
	SentAt            time.Time `json:"sent_at"`
}

// CapabilityResult is the outcome of probing whether an address can receive
// messages on a channel at all.
type CapabilityResult struct {
	Reachable bool `json:"reachable"`
}

// ConnectivityResult is the outcome of probing a channel's live session.
type ConnectivityResult struct {
	Connected bool `json:"connected"`
}
