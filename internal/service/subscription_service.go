package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/marketplace_api/internal/models"
	"github.com/GTDGit/marketplace_api/internal/repository"
	"github.com/GTDGit/marketplace_api/internal/utils"
)

// SubscribeResult is a pending subscription and the payment awaiting proof.
type SubscribeResult struct {
	Subscription *models.ClientSubscription `json:"subscription"`
	Payment      *models.Payment            `json:"payment"`
	Package      *models.Package            `json:"package"`
	Message      string                     `json:"message"`
}

// SubscriptionService manages client subscriptions and balance reads.
type SubscriptionService struct {
	store    repository.Store
	ledger   *LedgerService
	balances BalanceCache
	now      func() time.Time
}

// NewSubscriptionService constructs a SubscriptionService. balances may be nil.
func NewSubscriptionService(store repository.Store, ledger *LedgerService, balances BalanceCache) *SubscriptionService {
	return &SubscriptionService{store: store, ledger: ledger, balances: balances, now: time.Now}
}

// GrantFree gives a newly registered client the free package inside the
// registration transaction.
func (s *SubscriptionService) GrantFree(ctx context.Context, r *repository.Repositories, clientID int64) (*models.ClientSubscription, error) {
	pkg, err := r.Packages.GetFree(ctx)
	if err != nil {
		return nil, fmt.Errorf("load free package: %w", err)
	}

	start := s.now()
	end := start.AddDate(0, 0, pkg.DurationDays)
	sub := &models.ClientSubscription{
		ClientID:         clientID,
		PackageID:        pkg.ID,
		RemainingCredits: pkg.Credits,
		StartDate:        &start,
		EndDate:          &end,
		IsActive:         true,
	}
	if err := r.Subscriptions.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create free subscription: %w", err)
	}
	if _, err := s.ledger.RecordGrant(ctx, r, sub, fmt.Sprintf("registration:%d", clientID), "Free package: "+pkg.Name); err != nil {
		return nil, err
	}
	return sub, nil
}

// Subscribe opens a pending subscription to a paid package together with the
// payment the client must prove. Credits are granted on approval only.
func (s *SubscriptionService) Subscribe(ctx context.Context, clientID, packageID int64) (*SubscribeResult, error) {
	repos := s.store.Repos()
	pkg, err := repos.Packages.GetByID(ctx, packageID)
	if err != nil {
		return nil, notFound(err, utils.ErrPackageNotFound)
	}
	if pkg.DeletedAt != nil {
		return nil, utils.ErrPackageNotFound
	}
	if pkg.IsFreePackage {
		return nil, utils.ErrFreePackage
	}
	if !pkg.IsActive {
		return nil, utils.ErrPackageInactive
	}

	if _, err := repos.Subscriptions.GetPending(ctx, clientID); err == nil {
		return nil, utils.ErrPendingSubscription
	} else if !isNoRows(err) {
		return nil, fmt.Errorf("load pending subscription: %w", err)
	}

	sub := &models.ClientSubscription{ClientID: clientID, PackageID: pkg.ID}
	payment := &models.Payment{
		ClientID:  clientID,
		PackageID: pkg.ID,
		Amount:    pkg.Price,
		Status:    models.PaymentPending,
	}
	err = s.store.InTx(ctx, func(r *repository.Repositories) error {
		if err := r.Subscriptions.Create(ctx, sub); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return utils.ErrPendingSubscription
			}
			return fmt.Errorf("create subscription: %w", err)
		}
		payment.SubscriptionID = sub.ID
		if err := r.Payments.Create(ctx, payment); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return utils.ErrPendingSubscription
			}
			return fmt.Errorf("create payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, clientID)

	log.Info().
		Int64("client_id", clientID).
		Int64("subscription_id", sub.ID).
		Int64("payment_id", payment.ID).
		Str("amount", pkg.Price.StringFixed(2)).
		Msg("Subscription pending payment")

	return &SubscribeResult{
		Subscription: sub,
		Payment:      payment,
		Package:      pkg,
		Message:      fmt.Sprintf("Transfer %s and upload the proof to activate %s", pkg.Price.StringFixed(2), pkg.Name),
	}, nil
}

// GetBalance returns the client's current credit view. It never writes.
func (s *SubscriptionService) GetBalance(ctx context.Context, clientID int64) (*models.Balance, error) {
	var (
		version   int64
		cacheable bool
	)
	if s.balances != nil {
		if b, ok := s.balances.Get(ctx, clientID); ok {
			return b, nil
		}
		version, cacheable = s.balances.Version(ctx, clientID)
	}

	repos := s.store.Repos()
	now := s.now()
	b := &models.Balance{}

	live, err := repos.Subscriptions.GetLive(ctx, clientID, now)
	switch {
	case err == nil:
		pkg, err := repos.Packages.GetByID(ctx, live.PackageID)
		if err != nil {
			return nil, fmt.Errorf("load package %d: %w", live.PackageID, err)
		}
		b.HasSubscription = true
		b.SubscriptionID = &live.ID
		b.PackageID = &pkg.ID
		b.PackageName = pkg.Name
		b.RemainingCredits = live.RemainingCredits
		b.StartDate = live.StartDate
		b.EndDate = live.EndDate
		b.Status = live.Status(now)
		b.DaysRemaining = daysUntil(now, *live.EndDate)
	case !isNoRows(err):
		return nil, fmt.Errorf("load live subscription: %w", err)
	}

	pending, err := repos.Subscriptions.GetPending(ctx, clientID)
	switch {
	case err == nil:
		b.PendingSubscriptionID = &pending.ID
		if !b.HasSubscription {
			b.Status = models.SubscriptionPending
		}
	case !isNoRows(err):
		return nil, fmt.Errorf("load pending subscription: %w", err)
	}

	if cacheable {
		s.balances.Set(ctx, clientID, version, b)
	}
	return b, nil
}

// List returns the client's subscriptions, newest first.
func (s *SubscriptionService) List(ctx context.Context, clientID int64) ([]*models.ClientSubscription, error) {
	return s.store.Repos().Subscriptions.ListByClient(ctx, clientID)
}

// Cancel ends a live subscription or withdraws a pending one. Remaining
// credits are forfeited.
func (s *SubscriptionService) Cancel(ctx context.Context, clientID, subscriptionID int64) (*models.ClientSubscription, error) {
	repos := s.store.Repos()
	sub, err := repos.Subscriptions.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, notFound(err, utils.ErrSubscriptionNotFound)
	}
	if sub.ClientID != clientID {
		return nil, utils.ErrSubscriptionNotFound
	}

	now := s.now()
	if !sub.IsPending() && !sub.IsLive(now) {
		return nil, utils.ErrInvalidStatus.WithMessage("Subscription has already ended")
	}
	if sub.IsLive(now) {
		pkg, err := repos.Packages.GetByID(ctx, sub.PackageID)
		if err != nil {
			return nil, fmt.Errorf("load package %d: %w", sub.PackageID, err)
		}
		if pkg.IsFreePackage {
			return nil, utils.ErrFreePackage.WithMessage("The free package cannot be cancelled")
		}
	}

	err = s.store.InTx(ctx, func(r *repository.Repositories) error {
		if err := r.Subscriptions.Cancel(ctx, sub.ID, now); err != nil {
			return notFound(err, utils.ErrInvalidStatus.WithMessage("Subscription has already ended"))
		}
		payment, err := r.Payments.GetPendingBySubscription(ctx, sub.ID)
		if isNoRows(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load pending payment: %w", err)
		}
		reason := "Cancelled by client"
		_, err = r.Payments.Review(ctx, payment.ID, models.PaymentCancelled, nil, &reason, now)
		if err != nil && !isNoRows(err) {
			return fmt.Errorf("close pending payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, clientID)

	log.Info().Int64("client_id", clientID).Int64("subscription_id", sub.ID).Msg("Subscription cancelled")
	return repos.Subscriptions.GetByID(ctx, sub.ID)
}

// Ledger lists the client's credit entries, newest first.
func (s *SubscriptionService) Ledger(ctx context.Context, clientID int64, limit, offset int) ([]*models.CreditEntry, int, error) {
	return s.ledger.History(ctx, clientID, limit, offset)
}

func (s *SubscriptionService) invalidate(ctx context.Context, clientID int64) {
	if s.balances != nil {
		s.balances.Invalidate(ctx, clientID)
	}
}

func daysUntil(now, end time.Time) int {
	if end.Before(now) {
		return 0
	}
	return int(math.Ceil(end.Sub(now).Hours() / 24))
}
