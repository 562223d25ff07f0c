package service

import (
	"context"
	"fmt"
	"time"

	"github.com/GTDGit/marketplace_api/internal/models"
	"github.com/GTDGit/marketplace_api/internal/repository"
	"github.com/GTDGit/marketplace_api/internal/utils"
)

// EntitlementService decides whether a client's plan covers a service.
type EntitlementService struct {
	store repository.Store
	now   func() time.Time
}

// NewEntitlementService constructs an EntitlementService.
func NewEntitlementService(store repository.Store) *EntitlementService {
	return &EntitlementService{store: store, now: time.Now}
}

// CheckAccess returns nil when the client holds a live subscription whose
// package grants serviceTypeID. It only reads.
func (s *EntitlementService) CheckAccess(ctx context.Context, clientID, serviceTypeID int64) error {
	_, err := s.check(ctx, s.store.Repos(), clientID, serviceTypeID)
	return err
}

func (s *EntitlementService) check(ctx context.Context, r *repository.Repositories, clientID, serviceTypeID int64) (*models.ClientSubscription, error) {
	sub, err := r.Subscriptions.GetLive(ctx, clientID, s.now())
	if isNoRows(err) {
		return nil, noLiveSubscription(ctx, r, clientID)
	}
	if err != nil {
		return nil, fmt.Errorf("load live subscription: %w", err)
	}

	pkg, err := r.Packages.GetByID(ctx, sub.PackageID)
	if err != nil {
		return nil, fmt.Errorf("load package %d: %w", sub.PackageID, err)
	}
	if pkg.SupportAllServices {
		return sub, nil
	}

	ok, err := r.Packages.HasServiceType(ctx, pkg.ID, serviceTypeID)
	if err != nil {
		return nil, fmt.Errorf("check package service: %w", err)
	}
	if !ok {
		return nil, utils.ErrServiceNotInPlan.WithMessage(
			fmt.Sprintf("Your %s plan does not include this service. Upgrade your package to use it", pkg.Name))
	}
	return sub, nil
}

// noLiveSubscription builds the refusal for a client without a live
// subscription, pointing out a subscription that awaits verification.
func noLiveSubscription(ctx context.Context, r *repository.Repositories, clientID int64) error {
	pending, err := r.Subscriptions.GetPending(ctx, clientID)
	if err != nil && !isNoRows(err) {
		return fmt.Errorf("load pending subscription: %w", err)
	}
	if pending != nil {
		return utils.ErrNoActiveSubscription.WithMessage(
			"Your subscription is awaiting payment verification. You can create requests once it is approved")
	}
	return utils.ErrNoActiveSubscription
}
