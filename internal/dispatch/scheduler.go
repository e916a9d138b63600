package dispatch

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/distlock"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

const (
	// DefaultTickInterval is how often the scheduler looks for due campaigns.
	DefaultTickInterval = 5 * time.Second

	// DefaultTenantLockTTL bounds how long a crashed process can hold a
	// tenant's cross-process pass lock.
	DefaultTenantLockTTL = 5 * time.Minute
)

// CampaignProcessor runs one processing pass for a campaign. Runner is the
// production implementation.
type CampaignProcessor interface {
	ProcessCampaign(ctx context.Context, tenant domain.Tenant, campaignID string) error
}

// Scheduler is the tick loop that drives dispatching. Each tick it lists
// sendable tenants and, for every tenant without a pass already in flight,
// starts one goroutine that works the tenant's due campaigns sequentially.
// A tenant never has two concurrent passes: an in-process marker guards
// within this process, and an optional distributed lock guards across
// processes.
type Scheduler struct {
	tenants   TenantStore
	campaigns CampaignStore
	processor CampaignProcessor
	clock     Clock

	db           *sql.DB
	redisClient  *redis.Client // optional; nil disables cross-process locking entirely when db is also nil
	workerID     string
	tickInterval time.Duration
	lockTTL      time.Duration

	// Stats
	ticks          int64
	passesStarted  int64
	passesFinished int64
	passErrors     int64

	// Control
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
	mu       sync.RWMutex
	inflight map[string]string // tenantID -> campaignID being worked
}

// NewScheduler creates a scheduler. db may be nil when no PostgreSQL
// advisory-lock fallback is wanted.
func NewScheduler(tenants TenantStore, campaigns CampaignStore, processor CampaignProcessor, db *sql.DB) *Scheduler {
	hostname, _ := os.Hostname()
	return &Scheduler{
		tenants:      tenants,
		campaigns:    campaigns,
		processor:    processor,
		clock:        SystemClock{},
		db:           db,
		workerID:     fmt.Sprintf("dispatcher-%s-%d", hostname, time.Now().UnixNano()%10000),
		tickInterval: DefaultTickInterval,
		lockTTL:      DefaultTenantLockTTL,
		inflight:     make(map[string]string),
	}
}

// SetRedisClient enables Redis-backed tenant pass locks. Without it the
// scheduler falls back to PostgreSQL advisory locks when db is set.
func (s *Scheduler) SetRedisClient(client *redis.Client) {
	s.redisClient = client
}

// SetTickInterval overrides the tick interval. Must be called before Start.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	if d > 0 {
		s.tickInterval = d
	}
}

// SetTenantLockTTL overrides the cross-process lock TTL. Must be called
// before Start.
func (s *Scheduler) SetTenantLockTTL(d time.Duration) {
	if d > 0 {
		s.lockTTL = d
	}
}

// SetClock overrides the clock, for tests.
func (s *Scheduler) SetClock(c Clock) {
	s.clock = c
}

// Start begins the tick loop. Calling Start on a running scheduler is an
// error.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	logger.Info("scheduler starting",
		"worker_id", s.workerID,
		"tick_interval", s.tickInterval.String())

	s.wg.Add(1)
	go s.tickLoop()

	return nil
}

// Stop cancels the tick loop and waits for in-flight tenant passes to reach
// their next checkpoint and return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	logger.Info("scheduler stopping", "worker_id", s.workerID)
	s.cancel()
	s.wg.Wait()
	logger.Info("scheduler stopped",
		"worker_id", s.workerID,
		"ticks", atomic.LoadInt64(&s.ticks),
		"passes", atomic.LoadInt64(&s.passesFinished),
		"errors", atomic.LoadInt64(&s.passErrors))
}

// Stats returns a snapshot of scheduler counters for the ops endpoint.
func (s *Scheduler) Stats() map[string]interface{} {
	s.mu.RLock()
	inflight := make(map[string]string, len(s.inflight))
	for k, v := range s.inflight {
		inflight[k] = v
	}
	s.mu.RUnlock()

	return map[string]interface{}{
		"worker_id":       s.workerID,
		"ticks":           atomic.LoadInt64(&s.ticks),
		"passes_started":  atomic.LoadInt64(&s.passesStarted),
		"passes_finished": atomic.LoadInt64(&s.passesFinished),
		"pass_errors":     atomic.LoadInt64(&s.passErrors),
		"tenants_in_flight": inflight,
	}
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	// Run one tick immediately so a restart does not wait a full interval.
	s.tick()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick lists sendable tenants and launches a pass goroutine for each tenant
// that has no pass in flight and at least one due campaign.
func (s *Scheduler) tick() {
	atomic.AddInt64(&s.ticks, 1)

	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	tenants, err := s.tenants.ListSendable(ctx)
	cancel()
	if err != nil {
		logger.Error("list sendable tenants", "error", err.Error())
		return
	}

	for _, tenant := range tenants {
		s.mu.Lock()
		if _, busy := s.inflight[tenant.ID]; busy {
			s.mu.Unlock()
			continue
		}
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
		due, err := s.campaigns.DueCampaigns(ctx, tenant.ID, s.clock.Now())
		cancel()
		if err != nil {
			logger.Error("list due campaigns", "tenant_id", tenant.ID, "error", err.Error())
			continue
		}
		if len(due) == 0 {
			continue
		}

		s.mu.Lock()
		if _, busy := s.inflight[tenant.ID]; busy {
			s.mu.Unlock()
			continue
		}
		s.inflight[tenant.ID] = due[0].ID
		s.mu.Unlock()

		atomic.AddInt64(&s.passesStarted, 1)
		s.wg.Add(1)
		go s.runTenantPass(tenant, due)
	}
}

// runTenantPass works one tenant's due campaigns sequentially. Panics are
// contained to the tenant so one bad campaign cannot take the loop down.
func (s *Scheduler) runTenantPass(tenant domain.Tenant, due []domain.Campaign) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&s.passErrors, 1)
			logger.Error("tenant pass panicked", "tenant_id", tenant.ID, "panic", fmt.Sprint(r))
		}
		s.mu.Lock()
		delete(s.inflight, tenant.ID)
		s.mu.Unlock()
		atomic.AddInt64(&s.passesFinished, 1)
	}()

	lock := s.tenantLock(tenant.ID)
	if lock != nil {
		acquired, err := lock.Acquire(s.ctx)
		if err != nil {
			logger.Warn("tenant lock acquire failed, skipping tenant",
				"tenant_id", tenant.ID, "error", err.Error())
			return
		}
		if !acquired {
			// Another process is working this tenant.
			return
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				logger.Warn("tenant lock release failed", "tenant_id", tenant.ID, "error", err.Error())
			}
		}()
	}

	for _, c := range due {
		if s.ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		s.inflight[tenant.ID] = c.ID
		s.mu.Unlock()

		if err := s.processor.ProcessCampaign(s.ctx, tenant, c.ID); err != nil {
			atomic.AddInt64(&s.passErrors, 1)
			logger.Error("campaign pass failed",
				"tenant_id", tenant.ID,
				"campaign_id", c.ID,
				"error", err.Error())
		}
	}
}

// tenantLock returns the cross-process lock for the tenant, or nil when no
// locking backend is configured.
func (s *Scheduler) tenantLock(tenantID string) distlock.DistLock {
	if s.redisClient == nil && s.db == nil {
		return nil
	}
	return distlock.ForTenant(s.redisClient, s.db, tenantID, s.lockTTL)
}
