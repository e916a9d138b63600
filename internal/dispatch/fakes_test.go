package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// fakeStore is an in-memory implementation of every store interface the
// dispatch package consumes. Tests mutate its maps directly to arrange
// scenarios.
type fakeStore struct {
	mu sync.Mutex

	tenants    []domain.Tenant
	campaigns  map[string]*domain.Campaign
	channels   map[string]*domain.Channel
	pool       map[string]map[string]bool // campaignID -> channelID -> active
	variants   map[string][]domain.ContentVariant
	recipients map[string][]domain.Recipient // campaignID -> recipients in order
	records    map[string]*domain.DeliveryRecord
	recordKeys map[string]string // campaignID+"|"+recipientID -> recordID
	suppressed []domain.SuppressionEntry

	nextID int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		campaigns:  make(map[string]*domain.Campaign),
		channels:   make(map[string]*domain.Channel),
		pool:       make(map[string]map[string]bool),
		variants:   make(map[string][]domain.ContentVariant),
		recipients: make(map[string][]domain.Recipient),
		records:    make(map[string]*domain.DeliveryRecord),
		recordKeys: make(map[string]string),
	}
}

func (s *fakeStore) genID() string {
	s.nextID++
	return fmt.Sprintf("id-%d", s.nextID)
}

// --- seeding helpers ---

func (s *fakeStore) addCampaign(c domain.Campaign) *domain.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := c
	s.campaigns[c.ID] = &cp
	return &cp
}

func (s *fakeStore) addChannel(campaignID string, ch domain.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := ch
	if cp.State == "" {
		cp.State = domain.ChannelConnected
	}
	s.channels[ch.ID] = &cp
	if s.pool[campaignID] == nil {
		s.pool[campaignID] = make(map[string]bool)
	}
	s.pool[campaignID][ch.ID] = true
}

func (s *fakeStore) addVariant(campaignID string, v domain.ContentVariant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.Active = true
	v.OrderIndex = len(s.variants[campaignID])
	s.variants[campaignID] = append(s.variants[campaignID], v)
}

func (s *fakeStore) addRecipient(campaignID string, r domain.Recipient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients[campaignID] = append(s.recipients[campaignID], r)
}

func (s *fakeStore) campaign(id string) domain.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.campaigns[id]
}

func (s *fakeStore) record(campaignID, recipientID string) *domain.DeliveryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.recordKeys[campaignID+"|"+recipientID]
	if !ok {
		return nil
	}
	cp := *s.records[id]
	return &cp
}

func (s *fakeStore) setStatus(id string, st domain.CampaignStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[id].Status = st
}

func (s *fakeStore) isSuppressed(tenantID, address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.suppressed {
		if e.TenantID == tenantID && e.Address == address {
			return true
		}
	}
	return false
}

// --- TenantStore ---

func (s *fakeStore) ListSendable(ctx context.Context) ([]domain.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Tenant
	for _, t := range s.tenants {
		if !t.Blocked {
			out = append(out, t)
		}
	}
	return out, nil
}

// --- CampaignStore ---

func (s *fakeStore) DueCampaigns(ctx context.Context, tenantID string, now time.Time) ([]domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Campaign
	for _, c := range s.campaigns {
		if c.TenantID == tenantID && c.IsDue(now) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) Get(ctx context.Context, tenantID, id string) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeStore) MarkRunning(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.campaigns[id]
	c.Status = domain.CampaignRunning
	if c.StartedAt == nil {
		t := now
		c.StartedAt = &t
	}
	c.PausedAt = nil
	c.PauseReason = ""
	return nil
}

func (s *fakeStore) Pause(ctx context.Context, id string, cause domain.PauseCause, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.campaigns[id]
	c.Status = domain.CampaignPaused
	t := now
	c.PausedAt = &t
	c.PauseReason = string(cause)
	if cause == domain.PauseCauseBatch {
		c.BatchPausedAt = c.SentCount
	}
	return nil
}

func (s *fakeStore) Complete(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.campaigns[id]
	c.Status = domain.CampaignCompleted
	t := now
	c.CompletedAt = &t
	return nil
}

func (s *fakeStore) Fail(ctx context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.campaigns[id]
	c.Status = domain.CampaignFailed
	c.PauseReason = reason
	return nil
}

// --- ChannelStore ---

func (s *fakeStore) ActivePool(ctx context.Context, campaignID string) ([]domain.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poolLocked(campaignID, true), nil
}

func (s *fakeStore) PoolChannels(ctx context.Context, campaignID string) ([]domain.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poolLocked(campaignID, false), nil
}

func (s *fakeStore) poolLocked(campaignID string, activeOnly bool) []domain.Channel {
	var out []domain.Channel
	for chID, active := range s.pool[campaignID] {
		ch := s.channels[chID]
		if activeOnly && (!active || ch.State != domain.ChannelConnected) {
			continue
		}
		out = append(out, *ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *fakeStore) ActivateForCampaign(ctx context.Context, campaignID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool[campaignID] != nil {
		if _, attached := s.pool[campaignID][channelID]; attached {
			s.pool[campaignID][channelID] = true
		}
	}
	return nil
}

func (s *fakeStore) DeactivateForCampaign(ctx context.Context, campaignID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool[campaignID] != nil {
		s.pool[campaignID][channelID] = false
	}
	return nil
}

func (s *fakeStore) MarkConnected(ctx context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.channels[channelID]; ok {
		ch.State = domain.ChannelConnected
	}
	return nil
}

func (s *fakeStore) MarkDisconnected(ctx context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.channels[channelID]; ok {
		ch.State = domain.ChannelDisconnected
	}
	return nil
}

// --- VariantStore ---

func (s *fakeStore) ActiveVariants(ctx context.Context, campaignID string) ([]domain.ContentVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ContentVariant
	for _, v := range s.variants[campaignID] {
		if v.Active {
			out = append(out, v)
		}
	}
	return out, nil
}

// --- DeliveryStore ---

func (s *fakeStore) NextBatch(ctx context.Context, campaignID string, limit int) ([]RecipientWork, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RecipientWork
	for _, r := range s.recipients[campaignID] {
		recID, ok := s.recordKeys[campaignID+"|"+r.ID]
		if ok && s.records[recID].Status != domain.DeliveryPending {
			continue
		}
		w := RecipientWork{Recipient: r}
		if ok {
			w.RecordID = recID
		}
		out = append(out, w)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) LastSendAt(ctx context.Context, campaignID string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *time.Time
	for _, rec := range s.records {
		if rec.CampaignID != campaignID || rec.Status != domain.DeliverySent || rec.SentAt == nil {
			continue
		}
		if last == nil || rec.SentAt.After(*last) {
			t := *rec.SentAt
			last = &t
		}
	}
	return last, nil
}

func (s *fakeStore) ClaimPending(ctx context.Context, campaignID, recipientID, channelID, variantID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := campaignID + "|" + recipientID
	if id, ok := s.recordKeys[key]; ok {
		rec := s.records[id]
		rec.Status = domain.DeliveryPending
		rec.ChannelID = channelID
		rec.VariantID = variantID
		return id, nil
	}
	id := s.genID()
	s.records[id] = &domain.DeliveryRecord{
		ID:          id,
		CampaignID:  campaignID,
		RecipientID: recipientID,
		ChannelID:   channelID,
		VariantID:   variantID,
		Status:      domain.DeliveryPending,
	}
	s.recordKeys[key] = id
	return id, nil
}

func (s *fakeStore) MarkSent(ctx context.Context, recordID, providerMessageID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[recordID]
	rec.Status = domain.DeliverySent
	rec.ProviderMsgID = providerMessageID
	t := sentAt
	rec.SentAt = &t
	s.campaigns[rec.CampaignID].SentCount++
	return nil
}

func (s *fakeStore) MarkFailed(ctx context.Context, recordID, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[recordID]
	rec.Status = domain.DeliveryFailed
	rec.ErrorMessage = errText
	s.campaigns[rec.CampaignID].FailedCount++
	return nil
}

func (s *fakeStore) MarkNoCapability(ctx context.Context, recordID, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[recordID]
	rec.Status = domain.DeliveryNoCapability
	rec.ErrorMessage = errText
	s.campaigns[rec.CampaignID].NoCapabilityCount++
	return nil
}

func (s *fakeStore) ResetPending(ctx context.Context, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[recordID]
	rec.Status = domain.DeliveryPending
	rec.ChannelID = ""
	return nil
}

// --- SuppressionStore ---

func (s *fakeStore) Contains(ctx context.Context, tenantID, channelID, address string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.suppressed {
		if e.TenantID != tenantID || e.Address != address {
			continue
		}
		if e.ChannelID != "" && e.ChannelID != channelID {
			continue
		}
		if e.Expired(now) {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (s *fakeStore) Add(ctx context.Context, e domain.SuppressionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppressed = append(s.suppressed, e)
	return nil
}

// fakeClient scripts provider behavior per address and per channel.
type fakeClient struct {
	mu sync.Mutex

	unreachable map[string]bool   // address -> probe says no capability
	probeErr    error             // capability probe transport error
	rejects     map[string]string // address -> provider rejection text
	sendErr     error             // transport-level send error
	down        map[string]bool   // channelID -> connectivity probe says down
	connErr     map[string]error  // channelID -> connectivity probe error

	// onSend, when set, runs after each send attempt is recorded. Tests use
	// it to mutate state mid-pass (cancel a campaign, clear a rejection).
	onSend func(call sentCall)

	sends []sentCall
}

type sentCall struct {
	ChannelID string
	Address   string
	Payload   domain.Payload
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		unreachable: make(map[string]bool),
		rejects:     make(map[string]string),
		down:        make(map[string]bool),
		connErr:     make(map[string]error),
	}
}

func (c *fakeClient) ProbeCapability(ctx context.Context, channelID, address string) (domain.CapabilityResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.probeErr != nil {
		return domain.CapabilityResult{}, c.probeErr
	}
	return domain.CapabilityResult{Reachable: !c.unreachable[address]}, nil
}

func (c *fakeClient) Send(ctx context.Context, channelID, address string, payload domain.Payload) (domain.SendResult, error) {
	call := sentCall{ChannelID: channelID, Address: address, Payload: payload}

	c.mu.Lock()
	c.sends = append(c.sends, call)
	n := len(c.sends)
	hook := c.onSend
	sendErr := c.sendErr
	text, rejected := c.rejects[address]
	c.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if sendErr != nil {
		return domain.SendResult{}, sendErr
	}
	if rejected {
		return domain.SendResult{OK: false, ErrorText: text}, nil
	}
	return domain.SendResult{OK: true, ProviderMessageID: fmt.Sprintf("msg-%d", n)}, nil
}

func (c *fakeClient) ProbeConnectivity(ctx context.Context, channelID string) (domain.ConnectivityResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connErr[channelID]; err != nil {
		return domain.ConnectivityResult{}, err
	}
	return domain.ConnectivityResult{Connected: !c.down[channelID]}, nil
}

func (c *fakeClient) sentAddresses() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sends))
	for i, s := range c.sends {
		out[i] = s.Address
	}
	return out
}

func (c *fakeClient) clearReject(address string) {
	c.mu.Lock()
	delete(c.rejects, address)
	c.mu.Unlock()
}

// passRenderer returns payloads untouched.
type passRenderer struct{}

func (passRenderer) RenderPayload(p domain.Payload, r *domain.Recipient) (domain.Payload, error) {
	return p, nil
}
