package dispatch

import (
	"github.com/ignite/campaign-dispatch/internal/domain"
)

// Assignment is one channel x variant combination chosen for a send.
type Assignment struct {
	Channel domain.Channel
	Variant domain.ContentVariant
}

// Allocator rotates sends across a campaign's channel pool and content
// variants. The pool is rebuilt each processing pass; the rotation position
// derives from the campaign's persisted sent_count, so the sequence survives
// restarts and stays deterministic.
type Allocator struct {
	channels []domain.Channel
	variants []domain.ContentVariant
}

// NewAllocator builds an allocator over the given active channels and
// variants. Order matters: callers pass channels and variants in their
// stable store order.
func NewAllocator(channels []domain.Channel, variants []domain.ContentVariant) *Allocator {
	return &Allocator{channels: channels, variants: variants}
}

// Empty reports whether no combination can be produced. A campaign with an
// empty allocator has nothing to do this pass; it is retried next tick.
func (a *Allocator) Empty() bool {
	return len(a.channels) == 0 || len(a.variants) == 0
}

// Combinations returns the size of the full combination set.
func (a *Allocator) Combinations() int {
	return len(a.channels) * len(a.variants)
}

// AssignmentFor returns the combination for the n-th send overall, where n
// is the campaign's total prior send count. Channels advance round-robin;
// each full round shifts the variant offset by one, so a channel cycles
// through a different variant on successive rounds instead of repeating:
//
//	channelIndex = n mod numChannels
//	cycle        = n / numChannels
//	variantIndex = (channelIndex + cycle) mod numVariants
func (a *Allocator) AssignmentFor(n int) Assignment {
	numChannels := len(a.channels)
	numVariants := len(a.variants)

	channelIndex := n % numChannels
	cycle := n / numChannels
	variantIndex := (channelIndex + cycle) % numVariants

	return Assignment{
		Channel: a.channels[channelIndex],
		Variant: a.variants[variantIndex],
	}
}
