package models

import "time"

// Balance is the client's credit view returned by the balance endpoint.
type Balance struct {
	HasSubscription       bool               `json:"hasSubscription"`
	SubscriptionID        *int64             `json:"subscriptionId,omitempty"`
	PackageID             *int64             `json:"packageId,omitempty"`
	PackageName           string             `json:"packageName,omitempty"`
	RemainingCredits      int                `json:"remainingCredits"`
	StartDate             *time.Time         `json:"startDate,omitempty"`
	EndDate               *time.Time         `json:"endDate,omitempty"`
	DaysRemaining         int                `json:"daysRemaining"`
	Status                SubscriptionStatus `json:"status,omitempty"`
	PendingSubscriptionID *int64             `json:"pendingSubscriptionId,omitempty"`
}
