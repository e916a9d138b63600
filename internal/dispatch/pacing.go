package dispatch

import (
	"context"
	"time"
)

// Pacer enforces the minimum inter-send gap for a campaign. The last-send
// timestamp comes from the persisted delivery records, never from process
// memory, so the gap holds across restarts and across processes.
type Pacer struct {
	clock Clock
	slice time.Duration
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a pacer that sleeps in bounded slices of the given
// duration, re-checking for cancellation between slices.
func NewPacer(clock Clock, slice time.Duration) *Pacer {
	if slice <= 0 {
		slice = 5 * time.Second
	}
	return &Pacer{
		clock: clock,
		slice: slice,
		sleep: sleepCtx,
	}
}

// Remaining computes how long the campaign must still wait before the next
// send. lastSend is nil before the first send; no wait applies then.
func (p *Pacer) Remaining(pacingSeconds int, lastSend *time.Time) time.Duration {
	if pacingSeconds <= 0 || lastSend == nil {
		return 0
	}
	gap := time.Duration(pacingSeconds) * time.Second
	elapsed := p.clock.Now().Sub(*lastSend)
	if elapsed >= gap {
		return 0
	}
	return gap - elapsed
}

// Wait sleeps out the remaining pacing gap in bounded slices. Between slices
// it calls keepGoing, which re-reads campaign status; a false return aborts
// the wait (and the caller aborts the pass). Returns false when the wait was
// aborted by keepGoing or context cancellation.
func (p *Pacer) Wait(ctx context.Context, pacingSeconds int, lastSend *time.Time, keepGoing func(ctx context.Context) bool) bool {
	remaining := p.Remaining(pacingSeconds, lastSend)
	deadline := p.clock.Now().Add(remaining)

	for remaining > 0 {
		if !keepGoing(ctx) {
			return false
		}

		chunk := remaining
		if chunk > p.slice {
			chunk = p.slice
		}
		if err := p.sleep(ctx, chunk); err != nil {
			return false
		}

		remaining = deadline.Sub(p.clock.Now())
	}
	return keepGoing(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
