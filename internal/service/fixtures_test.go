package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GTDGit/marketplace_api/internal/models"
	"github.com/GTDGit/marketplace_api/internal/notify"
	"github.com/GTDGit/marketplace_api/internal/repository/memstore"
	"github.com/GTDGit/marketplace_api/internal/utils"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	ch     chan notify.Event
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{ch: make(chan notify.Event, 128)}
}

func (n *recordingNotifier) Publish(_ context.Context, ev notify.Event) error {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
	n.ch <- ev
	return nil
}

// wait returns the next event of the given type or fails after a second.
func (n *recordingNotifier) wait(t *testing.T, eventType string) notify.Event {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case ev := <-n.ch:
			if ev.Type == eventType {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event published", eventType)
			return notify.Event{}
		}
	}
}

type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]int64
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{keys: map[string]int64{}}
}

func (m *memIdempotency) Reserve(_ context.Context, scope, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.keys[scope+":"+key]
	if ok {
		return id, false, nil
	}
	m.keys[scope+":"+key] = 0
	return 0, true, nil
}

func (m *memIdempotency) Bind(_ context.Context, scope, key string, requestID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[scope+":"+key] = requestID
	return nil
}

func (m *memIdempotency) Release(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, scope+":"+key)
	return nil
}

// memBalances mirrors the versioned Redis balance cache. beforeSet runs once
// before the next conditional write.
type memBalances struct {
	mu        sync.Mutex
	entries   map[int64]*models.Balance
	versions  map[int64]int64
	beforeSet func()
}

func newMemBalances() *memBalances {
	return &memBalances{entries: map[int64]*models.Balance{}, versions: map[int64]int64{}}
}

func (m *memBalances) Get(_ context.Context, clientID int64) (*models.Balance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.entries[clientID]
	return b, ok
}

func (m *memBalances) Version(_ context.Context, clientID int64) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[clientID], true
}

func (m *memBalances) Set(_ context.Context, clientID, version int64, b *models.Balance) {
	m.mu.Lock()
	hook := m.beforeSet
	m.beforeSet = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.versions[clientID] == version {
		m.entries[clientID] = b
	}
}

func (m *memBalances) Invalidate(_ context.Context, clientID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[clientID]++
	delete(m.entries, clientID)
}

type memProofStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (m *memProofStorage) Upload(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	if m.err != nil {
		return m.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memProofStorage) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://proofs.example.com/" + key, nil
}

type fixture struct {
	store         *memstore.Store
	notifier      *recordingNotifier
	idempotency   *memIdempotency
	proofs        *memProofStorage
	ledger        *LedgerService
	entitlement   *EntitlementService
	requests      *RequestService
	subscriptions *SubscriptionService
	payments      *PaymentService
	catalog       *CatalogService
	auth          *AuthService
	seq           int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	utils.SetJWTSecret("test-secret", time.Hour)

	store := memstore.New()
	f := &fixture{
		store:       store,
		notifier:    newRecordingNotifier(),
		idempotency: newMemIdempotency(),
		proofs:      &memProofStorage{objects: map[string][]byte{}},
	}
	f.ledger = NewLedgerService(store, nil)
	f.entitlement = NewEntitlementService(store)
	f.requests = NewRequestService(store, f.entitlement, f.ledger, f.notifier, f.idempotency)
	f.subscriptions = NewSubscriptionService(store, f.ledger, nil)
	f.payments = NewPaymentService(store, f.ledger, f.proofs, f.notifier, 1<<20)
	f.catalog = NewCatalogService(store)
	f.auth = NewAuthService(store, f.subscriptions)
	return f
}

func (f *fixture) ctx() context.Context {
	return context.Background()
}

// serviceType seeds a service costing 2 credits with no surcharges.
func (f *fixture) serviceType(t *testing.T, mutate func(st *models.ServiceType)) *models.ServiceType {
	t.Helper()
	f.seq++
	st := &models.ServiceType{
		Name:             fmt.Sprintf("service-%d", f.seq),
		CreditCost:       2,
		MaxFreeRevisions: 3,
		PaidRevisionCost: 1,
		IsActive:         true,
	}
	if mutate != nil {
		mutate(st)
	}
	if err := f.store.Repos().ServiceTypes.Create(f.ctx(), st); err != nil {
		t.Fatalf("create service type: %v", err)
	}
	return st
}

func (f *fixture) pkg(t *testing.T, supportAll bool, serviceTypeIDs ...int64) *models.Package {
	t.Helper()
	f.seq++
	p := &models.Package{
		Name:               fmt.Sprintf("package-%d", f.seq),
		Price:              decimal.RequireFromString("150000"),
		Credits:            20,
		DurationDays:       30,
		SupportAllServices: supportAll,
		ServiceTypeIDs:     serviceTypeIDs,
		IsActive:           true,
	}
	if err := f.store.Repos().Packages.Create(f.ctx(), p); err != nil {
		t.Fatalf("create package: %v", err)
	}
	return p
}

func (f *fixture) freePackage(t *testing.T) *models.Package {
	t.Helper()
	p := &models.Package{
		Name:               "Free",
		Price:              decimal.Zero,
		Credits:            3,
		DurationDays:       30,
		IsFreePackage:      true,
		SupportAllServices: true,
		IsActive:           true,
	}
	if err := f.store.Repos().Packages.Create(f.ctx(), p); err != nil {
		t.Fatalf("create free package: %v", err)
	}
	return p
}

func (f *fixture) user(t *testing.T, role models.UserRole) *models.User {
	t.Helper()
	f.seq++
	u := &models.User{
		Email:    fmt.Sprintf("user-%d@example.com", f.seq),
		Name:     fmt.Sprintf("User %d", f.seq),
		Role:     role,
		IsActive: true,
	}
	if err := f.store.Repos().Users.Create(f.ctx(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// client creates a client holding a live subscription to p with credits.
func (f *fixture) client(t *testing.T, p *models.Package, credits int) (*models.User, *models.ClientSubscription) {
	t.Helper()
	u := f.user(t, models.RoleClient)
	sub := f.subscription(t, u.ID, p, credits, time.Now().Add(30*24*time.Hour))
	return u, sub
}

func (f *fixture) subscription(t *testing.T, clientID int64, p *models.Package, credits int, end time.Time) *models.ClientSubscription {
	t.Helper()
	start := end.Add(-30 * 24 * time.Hour)
	sub := &models.ClientSubscription{
		ClientID:         clientID,
		PackageID:        p.ID,
		RemainingCredits: credits,
		StartDate:        &start,
		EndDate:          &end,
		IsActive:         true,
	}
	if err := f.store.Repos().Subscriptions.Create(f.ctx(), sub); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	return sub
}

func (f *fixture) provider(t *testing.T, serviceTypeIDs ...int64) *models.User {
	t.Helper()
	u := f.user(t, models.RoleProvider)
	if err := f.store.Repos().Users.SetProviderServiceTypes(f.ctx(), u.ID, serviceTypeIDs); err != nil {
		t.Fatalf("set provider service types: %v", err)
	}
	return u
}

func (f *fixture) balance(t *testing.T, subscriptionID int64) int {
	t.Helper()
	sub, err := f.store.Repos().Subscriptions.GetByID(f.ctx(), subscriptionID)
	if err != nil {
		t.Fatalf("load subscription: %v", err)
	}
	return sub.RemainingCredits
}

func (f *fixture) create(t *testing.T, clientID, serviceTypeID int64) *models.Request {
	t.Helper()
	res, err := f.requests.Create(f.ctx(), clientID, CreateRequestInput{Title: "Logo", ServiceTypeID: serviceTypeID})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return res.Request
}

// deliver brings a request to DELIVERED through the provider workflow.
func (f *fixture) deliver(t *testing.T, req *models.Request, providerID int64) *models.Request {
	t.Helper()
	current, err := f.store.Repos().Requests.GetByID(f.ctx(), req.ID)
	if err != nil {
		t.Fatalf("load request: %v", err)
	}
	switch current.Status {
	case models.StatusPending:
		if _, err := f.requests.Claim(f.ctx(), req.ID, providerID); err != nil {
			t.Fatalf("claim: %v", err)
		}
	case models.StatusRevisionRequested:
		if _, err := f.requests.StartRevision(f.ctx(), req.ID, providerID); err != nil {
			t.Fatalf("start revision: %v", err)
		}
	}
	out, err := f.requests.Deliver(f.ctx(), req.ID, providerID, DeliverInput{Message: "Here it is"})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	return out
}

func answer(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal answer: %v", err)
	}
	return b
}

func assertAppError(t *testing.T, err error, want *utils.AppError) *utils.AppError {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %s", err, want.Reason)
	}
	got, _ := utils.AsAppError(err)
	if got.Code != want.Code {
		t.Errorf("code = %s, want %s", got.Code, want.Code)
	}
	return got
}
