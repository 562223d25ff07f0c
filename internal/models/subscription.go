package models

import "time"

// SubscriptionStatus is derived from the stored flags, never persisted.
type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "pending"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// ClientSubscription binds a client to a package for a time window.
// RemainingCredits is only changed through the credit ledger.
type ClientSubscription struct {
	ID               int64      `db:"id" json:"id"`
	ClientID         int64      `db:"client_id" json:"clientId"`
	PackageID        int64      `db:"package_id" json:"packageId"`
	RemainingCredits int        `db:"remaining_credits" json:"remainingCredits"`
	StartDate        *time.Time `db:"start_date" json:"startDate,omitempty"`
	EndDate          *time.Time `db:"end_date" json:"endDate,omitempty"`
	IsActive         bool       `db:"is_active" json:"isActive"`
	CancelledAt      *time.Time `db:"cancelled_at" json:"cancelledAt,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updatedAt"`
}

// IsLive reports whether the subscription currently grants access and credits.
// An active flag alone is not enough: the end date is authoritative.
func (s *ClientSubscription) IsLive(now time.Time) bool {
	return s.IsActive && s.EndDate != nil && !s.EndDate.Before(now)
}

// IsPending reports whether the subscription awaits payment verification.
func (s *ClientSubscription) IsPending() bool {
	return !s.IsActive && s.CancelledAt == nil && s.StartDate == nil
}

// Status derives the lifecycle state at now.
func (s *ClientSubscription) Status(now time.Time) SubscriptionStatus {
	switch {
	case s.IsLive(now):
		return SubscriptionActive
	case s.IsPending():
		return SubscriptionPending
	case s.CancelledAt != nil:
		return SubscriptionCancelled
	default:
		return SubscriptionExpired
	}
}
