// Package memstore is an in-memory repository.Store used by tests. It keeps
// the conditional-update semantics of the SQL store and serializes
// transactions, restoring a snapshot when a transaction fails.
package memstore

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GTDGit/marketplace_api/internal/models"
	"github.com/GTDGit/marketplace_api/internal/repository"
)

// Operation names accepted by FailOn.
const (
	OpRequestCreate = "requests.create"
	OpCommentCreate = "comments.create"
	OpLedgerAppend  = "ledger.append"
)

type dataset struct {
	seq           int64
	users         map[int64]models.User
	providerTypes map[int64]map[int64]bool
	serviceTypes  map[int64]models.ServiceType
	packages      map[int64]models.Package
	subs          map[int64]models.ClientSubscription
	requests      map[int64]models.Request
	comments      []models.RequestComment
	ledger        []models.CreditEntry
	payments      map[int64]models.Payment
}

func newDataset() *dataset {
	return &dataset{
		users:         map[int64]models.User{},
		providerTypes: map[int64]map[int64]bool{},
		serviceTypes:  map[int64]models.ServiceType{},
		packages:      map[int64]models.Package{},
		subs:          map[int64]models.ClientSubscription{},
		requests:      map[int64]models.Request{},
		payments:      map[int64]models.Payment{},
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	c.seq = d.seq
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.providerTypes {
		m := make(map[int64]bool, len(v))
		for id := range v {
			m[id] = true
		}
		c.providerTypes[k] = m
	}
	for k, v := range d.serviceTypes {
		c.serviceTypes[k] = v
	}
	for k, v := range d.packages {
		c.packages[k] = v
	}
	for k, v := range d.subs {
		c.subs[k] = v
	}
	for k, v := range d.requests {
		c.requests[k] = v
	}
	c.comments = append(c.comments, d.comments...)
	c.ledger = append(c.ledger, d.ledger...)
	for k, v := range d.payments {
		c.payments[k] = v
	}
	return c
}

func (d *dataset) nextID() int64 {
	d.seq++
	return d.seq
}

// Store is an in-memory repository.Store.
type Store struct {
	txMu     sync.Mutex
	mu       sync.Mutex
	data     *dataset
	failures map[string]error
	repos    *repository.Repositories
}

// New returns an empty Store.
func New() *Store {
	s := &Store{data: newDataset(), failures: map[string]error{}}
	s.repos = &repository.Repositories{
		Users:         &users{s},
		ServiceTypes:  &serviceTypes{s},
		Packages:      &packages{s},
		Subscriptions: &subscriptions{s},
		Requests:      &requests{s},
		Comments:      &comments{s},
		Ledger:        &ledger{s},
		Payments:      &payments{s},
	}
	return s
}

// Repos implements repository.Store.
func (s *Store) Repos() *repository.Repositories {
	return s.repos
}

// InTx implements repository.Store.
func (s *Store) InTx(ctx context.Context, fn func(r *repository.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(s.repos); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// FailOn makes the named operation return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) failure(op string) error {
	return s.failures[op]
}

// Comments returns every stored comment of a request, for assertions.
func (s *Store) Comments(requestID int64) []models.RequestComment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RequestComment
	for _, c := range s.data.comments {
		if c.RequestID == requestID {
			out = append(out, c)
		}
	}
	return out
}

// Ledger returns every stored credit entry of a client, oldest first.
func (s *Store) Ledger(clientID int64) []models.CreditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CreditEntry
	for _, e := range s.data.ledger {
		if e.ClientID == clientID {
			out = append(out, e)
		}
	}
	return out
}

// RequestCount returns the number of stored requests.
func (s *Store) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.requests)
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

// ---- users ----

type users struct{ s *Store }

func (r *users) Create(ctx context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrDuplicate
		}
	}
	u.ID = r.s.data.nextID()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	r.s.data.users[u.ID] = *u
	return nil
}

func (r *users) GetByID(ctx context.Context, id int64) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.data.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

func (r *users) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.data.users {
		if strings.EqualFold(u.Email, email) {
			u := u
			return &u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *users) UpdateWebhook(ctx context.Context, id int64, url, secret *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.data.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.WebhookURL, u.WebhookSecret = url, secret
	r.s.data.users[id] = u
	return nil
}

func (r *users) ListByRole(ctx context.Context, role models.UserRole) ([]*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.User
	for _, u := range r.s.data.users {
		if u.Role == role && u.IsActive {
			u := u
			out = append(out, &u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *users) SetProviderServiceTypes(ctx context.Context, providerID int64, ids []int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m := make(map[int64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	r.s.data.providerTypes[providerID] = m
	return nil
}

func (r *users) ProviderServes(ctx context.Context, providerID, serviceTypeID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.data.providerTypes[providerID][serviceTypeID], nil
}

func (r *users) ListProviderServiceTypes(ctx context.Context, providerID int64) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []int64
	for id := range r.s.data.providerTypes[providerID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *users) ListProvidersForServiceType(ctx context.Context, serviceTypeID int64) ([]*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.User
	for id, types := range r.s.data.providerTypes {
		u, ok := r.s.data.users[id]
		if !ok || !types[serviceTypeID] || u.Role != models.RoleProvider || !u.IsActive {
			continue
		}
		out = append(out, &u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- service types ----

type serviceTypes struct{ s *Store }

func (r *serviceTypes) Create(ctx context.Context, st *models.ServiceType) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.serviceTypes {
		if existing.Name == st.Name {
			return repository.ErrDuplicate
		}
	}
	st.ID = r.s.data.nextID()
	st.CreatedAt = time.Now()
	st.UpdatedAt = st.CreatedAt
	r.s.data.serviceTypes[st.ID] = *st
	return nil
}

func (r *serviceTypes) Update(ctx context.Context, st *models.ServiceType) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.data.serviceTypes[st.ID]
	if !ok || existing.DeletedAt != nil {
		return sql.ErrNoRows
	}
	for id, other := range r.s.data.serviceTypes {
		if id != st.ID && other.Name == st.Name {
			return repository.ErrDuplicate
		}
	}
	st.CreatedAt = existing.CreatedAt
	st.UpdatedAt = time.Now()
	r.s.data.serviceTypes[st.ID] = *st
	return nil
}

func (r *serviceTypes) GetByID(ctx context.Context, id int64) (*models.ServiceType, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.data.serviceTypes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &st, nil
}

func (r *serviceTypes) List(ctx context.Context, includeUnavailable bool) ([]*models.ServiceType, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.ServiceType
	for _, st := range r.s.data.serviceTypes {
		if !includeUnavailable && !st.IsAvailable() {
			continue
		}
		st := st
		out = append(out, &st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *serviceTypes) SoftDelete(ctx context.Context, id int64, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.data.serviceTypes[id]
	if !ok || st.DeletedAt != nil {
		return sql.ErrNoRows
	}
	st.DeletedAt = &now
	st.IsActive = false
	r.s.data.serviceTypes[id] = st
	return nil
}

// ---- packages ----

type packages struct{ s *Store }

func (r *packages) Create(ctx context.Context, p *models.Package) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p.IsFreePackage {
		for _, existing := range r.s.data.packages {
			if existing.IsFreePackage && existing.DeletedAt == nil {
				return repository.ErrDuplicate
			}
		}
	}
	p.ID = r.s.data.nextID()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	p.ServiceTypeIDs = append([]int64(nil), p.ServiceTypeIDs...)
	r.s.data.packages[p.ID] = *p
	return nil
}

func (r *packages) Update(ctx context.Context, p *models.Package) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.data.packages[p.ID]
	if !ok || existing.DeletedAt != nil {
		return sql.ErrNoRows
	}
	p.IsFreePackage = existing.IsFreePackage
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now()
	p.ServiceTypeIDs = append([]int64(nil), p.ServiceTypeIDs...)
	r.s.data.packages[p.ID] = *p
	return nil
}

func (r *packages) GetByID(ctx context.Context, id int64) (*models.Package, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.data.packages[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (r *packages) GetFree(ctx context.Context) (*models.Package, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.data.packages {
		if p.IsFreePackage && p.DeletedAt == nil {
			p := p
			return &p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *packages) List(ctx context.Context, includeUnavailable bool) ([]*models.Package, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Package
	for _, p := range r.s.data.packages {
		if !includeUnavailable && (!p.IsActive || p.DeletedAt != nil) {
			continue
		}
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Price.Cmp(out[j].Price); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *packages) SoftDelete(ctx context.Context, id int64, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.data.packages[id]
	if !ok || p.DeletedAt != nil || p.IsFreePackage {
		return sql.ErrNoRows
	}
	p.DeletedAt = &now
	p.IsActive = false
	r.s.data.packages[id] = p
	return nil
}

func (r *packages) HasServiceType(ctx context.Context, packageID, serviceTypeID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.data.packages[packageID]
	if !ok {
		return false, nil
	}
	for _, id := range p.ServiceTypeIDs {
		if id == serviceTypeID {
			return true, nil
		}
	}
	return false, nil
}

// ---- subscriptions ----

type subscriptions struct{ s *Store }

func (r *subscriptions) Create(ctx context.Context, sub *models.ClientSubscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sub.IsPending() {
		for _, existing := range r.s.data.subs {
			if existing.ClientID == sub.ClientID && existing.IsPending() {
				return repository.ErrDuplicate
			}
		}
	}
	sub.ID = r.s.data.nextID()
	sub.CreatedAt = time.Now()
	sub.UpdatedAt = sub.CreatedAt
	r.s.data.subs[sub.ID] = *sub
	return nil
}

func (r *subscriptions) GetByID(ctx context.Context, id int64) (*models.ClientSubscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.data.subs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &sub, nil
}

// live must be called with mu held.
func (r *subscriptions) live(clientID int64, now time.Time) (models.ClientSubscription, bool) {
	var best models.ClientSubscription
	found := false
	for _, sub := range r.s.data.subs {
		if sub.ClientID != clientID || !sub.IsLive(now) {
			continue
		}
		if !found || sub.EndDate.After(*best.EndDate) {
			best, found = sub, true
		}
	}
	return best, found
}

func (r *subscriptions) GetLive(ctx context.Context, clientID int64, now time.Time) (*models.ClientSubscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.live(clientID, now)
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &sub, nil
}

func (r *subscriptions) GetPending(ctx context.Context, clientID int64) (*models.ClientSubscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var best *models.ClientSubscription
	for _, sub := range r.s.data.subs {
		if sub.ClientID != clientID || !sub.IsPending() {
			continue
		}
		if best == nil || sub.ID > best.ID {
			sub := sub
			best = &sub
		}
	}
	if best == nil {
		return nil, sql.ErrNoRows
	}
	return best, nil
}

func (r *subscriptions) ListByClient(ctx context.Context, clientID int64) ([]*models.ClientSubscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.ClientSubscription
	for _, sub := range r.s.data.subs {
		if sub.ClientID == clientID {
			sub := sub
			out = append(out, &sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *subscriptions) DebitLive(ctx context.Context, clientID int64, amount int, now time.Time) (*models.ClientSubscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.live(clientID, now)
	if !ok || sub.RemainingCredits < amount {
		return nil, sql.ErrNoRows
	}
	sub.RemainingCredits -= amount
	sub.UpdatedAt = now
	r.s.data.subs[sub.ID] = sub
	return &sub, nil
}

func (r *subscriptions) Credit(ctx context.Context, id int64, amount int) (*models.ClientSubscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.data.subs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	sub.RemainingCredits += amount
	r.s.data.subs[id] = sub
	return &sub, nil
}

func (r *subscriptions) Activate(ctx context.Context, id int64, start, end time.Time, credits int) (*models.ClientSubscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.data.subs[id]
	if !ok || !sub.IsPending() {
		return nil, sql.ErrNoRows
	}
	sub.IsActive = true
	sub.StartDate, sub.EndDate = &start, &end
	sub.RemainingCredits = credits
	r.s.data.subs[id] = sub
	return &sub, nil
}

func (r *subscriptions) DeactivateLive(ctx context.Context, clientID int64, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, sub := range r.s.data.subs {
		if sub.ClientID == clientID && sub.IsLive(now) {
			sub.IsActive = false
			r.s.data.subs[id] = sub
			n++
		}
	}
	return n, nil
}

func (r *subscriptions) Cancel(ctx context.Context, id int64, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.data.subs[id]
	if !ok || sub.CancelledAt != nil {
		return sql.ErrNoRows
	}
	sub.IsActive = false
	sub.CancelledAt = &now
	r.s.data.subs[id] = sub
	return nil
}

func (r *subscriptions) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, sub := range r.s.data.subs {
		if sub.IsActive && sub.EndDate != nil && sub.EndDate.Before(now) {
			sub.IsActive = false
			r.s.data.subs[id] = sub
			n++
		}
	}
	return n, nil
}

// ---- requests ----

type requests struct{ s *Store }

func (r *requests) Create(ctx context.Context, req *models.Request) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure(OpRequestCreate); err != nil {
		return err
	}
	req.ID = r.s.data.nextID()
	req.CreatedAt = time.Now()
	req.UpdatedAt = req.CreatedAt
	r.s.data.requests[req.ID] = *req
	return nil
}

func (r *requests) GetByID(ctx context.Context, id int64) (*models.Request, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.data.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &req, nil
}

func (r *requests) filter(keep func(models.Request) bool, limit, offset int) ([]*models.Request, int) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []*models.Request
	for _, req := range r.s.data.requests {
		if keep(req) {
			req := req
			all = append(all, &req)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return page(all, limit, offset), len(all)
}

func (r *requests) ListByClient(ctx context.Context, clientID int64, limit, offset int) ([]*models.Request, int, error) {
	out, total := r.filter(func(req models.Request) bool { return req.ClientID == clientID }, limit, offset)
	return out, total, nil
}

func (r *requests) ListByProvider(ctx context.Context, providerID int64, limit, offset int) ([]*models.Request, int, error) {
	out, total := r.filter(func(req models.Request) bool {
		return req.ProviderID != nil && *req.ProviderID == providerID
	}, limit, offset)
	return out, total, nil
}

func (r *requests) ListOpen(ctx context.Context, serviceTypeIDs []int64, limit, offset int) ([]*models.Request, int, error) {
	allowed := make(map[int64]bool, len(serviceTypeIDs))
	for _, id := range serviceTypeIDs {
		allowed[id] = true
	}
	out, total := r.filter(func(req models.Request) bool {
		return req.Status == models.StatusPending && req.ProviderID == nil && allowed[req.ServiceTypeID]
	}, limit, offset)
	return out, total, nil
}

func (r *requests) ListStalePending(ctx context.Context, createdBefore time.Time) ([]*models.Request, error) {
	out, _ := r.filter(func(req models.Request) bool {
		return req.Status == models.StatusPending && req.ProviderID == nil && req.CreatedAt.Before(createdBefore)
	}, 0, 0)
	return out, nil
}

func (r *requests) update(id int64, cond func(models.Request) bool, apply func(*models.Request)) (*models.Request, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.data.requests[id]
	if !ok || !cond(req) {
		return nil, sql.ErrNoRows
	}
	apply(&req)
	r.s.data.requests[id] = req
	return &req, nil
}

func (r *requests) Claim(ctx context.Context, id, providerID int64, now time.Time) (*models.Request, error) {
	return r.update(id, func(req models.Request) bool {
		return req.Status == models.StatusPending && req.ProviderID == nil
	}, func(req *models.Request) {
		req.ProviderID = &providerID
		req.Status = models.StatusInProgress
		req.UpdatedAt = now
	})
}

func (r *requests) Transition(ctx context.Context, id int64, from, to models.RequestStatus, now time.Time) (*models.Request, error) {
	return r.update(id, func(req models.Request) bool {
		return req.Status == from
	}, func(req *models.Request) {
		req.Status = to
		switch to {
		case models.StatusDelivered:
			req.DeliveredAt = &now
		case models.StatusCompleted:
			req.CompletedAt = &now
		}
		req.UpdatedAt = now
	})
}

func (r *requests) ApplyRevision(ctx context.Context, id int64, prevCount, nextCount, nextFreeUsed int, now time.Time) (*models.Request, error) {
	return r.update(id, func(req models.Request) bool {
		return req.Status == models.StatusDelivered && req.RevisionCount == prevCount
	}, func(req *models.Request) {
		req.Status = models.StatusRevisionRequested
		req.IsRevision = true
		req.RevisionCount = nextCount
		req.FreeRevisionsUsed = nextFreeUsed
		req.UpdatedAt = now
	})
}

func (r *requests) SetRating(ctx context.Context, id int64, rating int, now time.Time) (*models.Request, error) {
	return r.update(id, func(req models.Request) bool {
		return req.Status == models.StatusCompleted && req.Rating == nil
	}, func(req *models.Request) {
		req.Rating = &rating
		req.RatedAt = &now
		req.UpdatedAt = now
	})
}

// ---- comments ----

type comments struct{ s *Store }

func (r *comments) Create(ctx context.Context, c *models.RequestComment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure(OpCommentCreate); err != nil {
		return err
	}
	c.ID = r.s.data.nextID()
	c.CreatedAt = time.Now()
	r.s.data.comments = append(r.s.data.comments, *c)
	return nil
}

func (r *comments) ListByRequest(ctx context.Context, requestID int64) ([]*models.RequestComment, error) {
	return r.ListByRequestAndKind(ctx, requestID, "")
}

func (r *comments) ListByRequestAndKind(ctx context.Context, requestID int64, kind models.CommentKind) ([]*models.RequestComment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.RequestComment
	for _, c := range r.s.data.comments {
		if c.RequestID == requestID && (kind == "" || c.Kind == kind) {
			c := c
			out = append(out, &c)
		}
	}
	return out, nil
}

// ---- ledger ----

type ledger struct{ s *Store }

func (r *ledger) Append(ctx context.Context, e *models.CreditEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure(OpLedgerAppend); err != nil {
		return err
	}
	e.CreatedAt = time.Now()
	r.s.data.ledger = append(r.s.data.ledger, *e)
	return nil
}

func (r *ledger) BindReference(ctx context.Context, id, reference string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	idx := -1
	for i, e := range r.s.data.ledger {
		if e.Reference != nil && *e.Reference == reference {
			return repository.ErrDuplicate
		}
		if e.ID == id {
			idx = i
		}
	}
	if idx < 0 || r.s.data.ledger[idx].Reference != nil {
		return sql.ErrNoRows
	}
	r.s.data.ledger[idx].Reference = &reference
	return nil
}

func (r *ledger) FindByReference(ctx context.Context, reference string, kind models.CreditEntryKind) (*models.CreditEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.data.ledger {
		if e.Reference != nil && *e.Reference == reference && e.Kind == kind {
			e := e
			return &e, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *ledger) ListByClient(ctx context.Context, clientID int64, limit, offset int) ([]*models.CreditEntry, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []*models.CreditEntry
	for i := len(r.s.data.ledger) - 1; i >= 0; i-- {
		e := r.s.data.ledger[i]
		if e.ClientID == clientID {
			all = append(all, &e)
		}
	}
	return page(all, limit, offset), len(all), nil
}

// ---- payments ----

type payments struct{ s *Store }

func (r *payments) Create(ctx context.Context, p *models.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.payments {
		if existing.SubscriptionID == p.SubscriptionID && existing.Status == models.PaymentPending {
			return repository.ErrDuplicate
		}
	}
	p.ID = r.s.data.nextID()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.s.data.payments[p.ID] = *p
	return nil
}

func (r *payments) GetByID(ctx context.Context, id int64) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.data.payments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (r *payments) GetPendingBySubscription(ctx context.Context, subscriptionID int64) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.data.payments {
		if p.SubscriptionID == subscriptionID && p.Status == models.PaymentPending {
			p := p
			return &p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *payments) List(ctx context.Context, status models.PaymentStatus, limit, offset int) ([]*models.Payment, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []*models.Payment
	for _, p := range r.s.data.payments {
		if status == "" || p.Status == status {
			p := p
			all = append(all, &p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return page(all, limit, offset), len(all), nil
}

func (r *payments) AttachProof(ctx context.Context, id int64, key string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.data.payments[id]
	if !ok || p.ProofKey != nil || p.Status != models.PaymentPending {
		return sql.ErrNoRows
	}
	p.ProofKey = &key
	r.s.data.payments[id] = p
	return nil
}

func (r *payments) Review(ctx context.Context, id int64, status models.PaymentStatus, reviewerID *int64, reason *string, now time.Time) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.data.payments[id]
	if !ok || p.Status != models.PaymentPending {
		return nil, sql.ErrNoRows
	}
	p.Status = status
	p.ReviewedBy = reviewerID
	p.ReviewedAt = &now
	p.RejectionReason = reason
	p.UpdatedAt = now
	r.s.data.payments[id] = p
	return &p, nil
}

var _ repository.Store = (*Store)(nil)
