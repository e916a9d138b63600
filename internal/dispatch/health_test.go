package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

func healthFixture() (*fakeStore, *fakeClient, *fakeClock, *HealthMonitor) {
	store := newFakeStore()
	client := newFakeClient()
	clock := newFakeClock()
	hm := NewHealthMonitor(store, client, clock, time.Minute)

	store.addCampaign(domain.Campaign{ID: "camp-1", TenantID: "ten-1", Status: domain.CampaignRunning})
	store.addChannel("camp-1", domain.Channel{ID: "ch-1", TenantID: "ten-1"})
	store.addChannel("camp-1", domain.Channel{ID: "ch-2", TenantID: "ten-1"})
	return store, client, clock, hm
}

func TestHealthMonitor_RemovesDeadChannel(t *testing.T) {
	store, client, _, hm := healthFixture()
	client.down["ch-2"] = true

	removed, err := hm.Sweep(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	pool, err := store.ActivePool(context.Background(), "camp-1")
	require.NoError(t, err)
	require.Len(t, pool, 1)
	assert.Equal(t, "ch-1", pool[0].ID)
	assert.Equal(t, domain.ChannelDisconnected, store.channels["ch-2"].State)
}

func TestHealthMonitor_ProbeErrorTreatedAsDead(t *testing.T) {
	store, client, _, hm := healthFixture()
	client.connErr["ch-1"] = errors.New("gateway unreachable")

	removed, err := hm.Sweep(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, domain.ChannelDisconnected, store.channels["ch-1"].State)
}

func TestHealthMonitor_RateLimitsPerCampaign(t *testing.T) {
	store, client, clock, hm := healthFixture()

	_, err := hm.Sweep(context.Background(), "camp-1")
	require.NoError(t, err)

	// A channel dies right after the sweep; within the interval nothing
	// happens.
	client.down["ch-1"] = true
	removed, err := hm.Sweep(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	full, _ := store.ActivePool(context.Background(), "camp-1")
	assert.Len(t, full, 2)

	clock.Advance(61 * time.Second)
	removed, err = hm.Sweep(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestHealthMonitor_ReactivatesRecoveredChannel(t *testing.T) {
	store, client, clock, hm := healthFixture()
	client.down["ch-2"] = true

	_, err := hm.Sweep(context.Background(), "camp-1")
	require.NoError(t, err)
	pool, _ := store.ActivePool(context.Background(), "camp-1")
	require.Len(t, pool, 1)

	// The channel reconnects; the next sweep sees a healthy probe and puts
	// it back in the pool.
	client.mu.Lock()
	delete(client.down, "ch-2")
	client.mu.Unlock()

	clock.Advance(2 * time.Minute)
	removed, err := hm.Sweep(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	pool, _ = store.ActivePool(context.Background(), "camp-1")
	assert.Len(t, pool, 2)
	assert.Equal(t, domain.ChannelConnected, store.channels["ch-2"].State)
}
