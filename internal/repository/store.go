package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/marketplace_api/internal/models"
)

// ErrDuplicate is returned when an insert violates a unique constraint.
var ErrDuplicate = errors.New("duplicate key")

// Not-found lookups return sql.ErrNoRows unchanged.

// UserStore persists marketplace accounts.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateWebhook(ctx context.Context, id int64, url, secret *string) error
	ListByRole(ctx context.Context, role models.UserRole) ([]*models.User, error)
	SetProviderServiceTypes(ctx context.Context, providerID int64, serviceTypeIDs []int64) error
	ProviderServes(ctx context.Context, providerID, serviceTypeID int64) (bool, error)
	ListProviderServiceTypes(ctx context.Context, providerID int64) ([]int64, error)
	ListProvidersForServiceType(ctx context.Context, serviceTypeID int64) ([]*models.User, error)
}

// ServiceTypeStore persists the service catalog. Rows are soft-deleted only.
type ServiceTypeStore interface {
	Create(ctx context.Context, st *models.ServiceType) error
	Update(ctx context.Context, st *models.ServiceType) error
	GetByID(ctx context.Context, id int64) (*models.ServiceType, error)
	List(ctx context.Context, includeUnavailable bool) ([]*models.ServiceType, error)
	SoftDelete(ctx context.Context, id int64, now time.Time) error
}

// PackageStore persists credit packages and their service entitlements.
type PackageStore interface {
	Create(ctx context.Context, p *models.Package) error
	Update(ctx context.Context, p *models.Package) error
	GetByID(ctx context.Context, id int64) (*models.Package, error)
	GetFree(ctx context.Context) (*models.Package, error)
	List(ctx context.Context, includeUnavailable bool) ([]*models.Package, error)
	SoftDelete(ctx context.Context, id int64, now time.Time) error
	HasServiceType(ctx context.Context, packageID, serviceTypeID int64) (bool, error)
}

// SubscriptionStore persists client subscriptions. DebitLive and Credit are
// the only statements that change remaining_credits after activation.
type SubscriptionStore interface {
	Create(ctx context.Context, s *models.ClientSubscription) error
	GetByID(ctx context.Context, id int64) (*models.ClientSubscription, error)
	GetLive(ctx context.Context, clientID int64, now time.Time) (*models.ClientSubscription, error)
	GetPending(ctx context.Context, clientID int64) (*models.ClientSubscription, error)
	ListByClient(ctx context.Context, clientID int64) ([]*models.ClientSubscription, error)
	// DebitLive subtracts amount from the client's live subscription only if
	// the balance covers it. Returns sql.ErrNoRows when nothing was debited.
	DebitLive(ctx context.Context, clientID int64, amount int, now time.Time) (*models.ClientSubscription, error)
	Credit(ctx context.Context, subscriptionID int64, amount int) (*models.ClientSubscription, error)
	// Activate turns a pending subscription live. Returns sql.ErrNoRows if it
	// is no longer pending.
	Activate(ctx context.Context, id int64, start, end time.Time, credits int) (*models.ClientSubscription, error)
	DeactivateLive(ctx context.Context, clientID int64, now time.Time) (int64, error)
	Cancel(ctx context.Context, id int64, now time.Time) error
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

// RequestStore persists requests. Status changes are conditional on the
// expected prior status and return sql.ErrNoRows when the condition fails.
type RequestStore interface {
	Create(ctx context.Context, r *models.Request) error
	GetByID(ctx context.Context, id int64) (*models.Request, error)
	ListByClient(ctx context.Context, clientID int64, limit, offset int) ([]*models.Request, int, error)
	ListByProvider(ctx context.Context, providerID int64, limit, offset int) ([]*models.Request, int, error)
	ListOpen(ctx context.Context, serviceTypeIDs []int64, limit, offset int) ([]*models.Request, int, error)
	ListStalePending(ctx context.Context, createdBefore time.Time) ([]*models.Request, error)
	Claim(ctx context.Context, id, providerID int64, now time.Time) (*models.Request, error)
	Transition(ctx context.Context, id int64, from, to models.RequestStatus, now time.Time) (*models.Request, error)
	ApplyRevision(ctx context.Context, id int64, prevCount, nextCount, nextFreeUsed int, now time.Time) (*models.Request, error)
	SetRating(ctx context.Context, id int64, rating int, now time.Time) (*models.Request, error)
}

// CommentStore persists the append-only request log.
type CommentStore interface {
	Create(ctx context.Context, c *models.RequestComment) error
	ListByRequest(ctx context.Context, requestID int64) ([]*models.RequestComment, error)
	ListByRequestAndKind(ctx context.Context, requestID int64, kind models.CommentKind) ([]*models.RequestComment, error)
}

// LedgerStore persists immutable credit entries. The only mutation is
// BindReference, which fills a reference left empty at append time.
type LedgerStore interface {
	Append(ctx context.Context, e *models.CreditEntry) error
	// BindReference sets the reference of an entry that has none. Returns
	// sql.ErrNoRows if the entry is missing or already referenced.
	BindReference(ctx context.Context, id, reference string) error
	FindByReference(ctx context.Context, reference string, kind models.CreditEntryKind) (*models.CreditEntry, error)
	ListByClient(ctx context.Context, clientID int64, limit, offset int) ([]*models.CreditEntry, int, error)
}

// PaymentStore persists manual payments.
type PaymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id int64) (*models.Payment, error)
	GetPendingBySubscription(ctx context.Context, subscriptionID int64) (*models.Payment, error)
	List(ctx context.Context, status models.PaymentStatus, limit, offset int) ([]*models.Payment, int, error)
	// AttachProof stores the proof key once. Returns sql.ErrNoRows if a proof
	// already exists or the payment is no longer pending.
	AttachProof(ctx context.Context, id int64, key string) error
	// Review settles a pending payment. Returns sql.ErrNoRows if it was
	// already reviewed.
	// Review settles a pending payment. reviewerID is nil when nobody
	// reviewed it, as for a client withdrawal.
	Review(ctx context.Context, id int64, status models.PaymentStatus, reviewerID *int64, reason *string, now time.Time) (*models.Payment, error)
}

// Repositories groups the stores bound to one connection or transaction.
type Repositories struct {
	Users         UserStore
	ServiceTypes  ServiceTypeStore
	Packages      PackageStore
	Subscriptions SubscriptionStore
	Requests      RequestStore
	Comments      CommentStore
	Ledger        LedgerStore
	Payments      PaymentStore
}

// Store hands out repositories and runs units of work atomically.
type Store interface {
	Repos() *Repositories
	// InTx runs fn inside a transaction. Any error returned by fn rolls
	// every write back.
	InTx(ctx context.Context, fn func(r *Repositories) error) error
}

// SQLStore is the PostgreSQL Store.
type SQLStore struct {
	db    *sqlx.DB
	repos *Repositories
}

// NewSQLStore creates a Store backed by db.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, repos: bind(db)}
}

func bind(q sqlx.ExtContext) *Repositories {
	return &Repositories{
		Users:         NewUserRepository(q),
		ServiceTypes:  NewServiceTypeRepository(q),
		Packages:      NewPackageRepository(q),
		Subscriptions: NewSubscriptionRepository(q),
		Requests:      NewRequestRepository(q),
		Comments:      NewCommentRepository(q),
		Ledger:        NewLedgerRepository(q),
		Payments:      NewPaymentRepository(q),
	}
}

// Repos returns repositories bound to the connection pool.
func (s *SQLStore) Repos() *Repositories {
	return s.repos
}

// InTx begins a transaction, runs fn and commits when fn returns nil.
func (s *SQLStore) InTx(ctx context.Context, fn func(r *Repositories) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(bind(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func mapInsertErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
