package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus of a manual bank-transfer payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentApproved  PaymentStatus = "approved"
	PaymentRejected  PaymentStatus = "rejected"
	// PaymentCancelled closes the payment of a subscription the client
	// withdrew before review. It carries no reviewer.
	PaymentCancelled PaymentStatus = "cancelled"
)

// Payment records a client's payment for a pending subscription.
type Payment struct {
	ID              int64           `db:"id" json:"id"`
	ClientID        int64           `db:"client_id" json:"clientId"`
	SubscriptionID  int64           `db:"subscription_id" json:"subscriptionId"`
	PackageID       int64           `db:"package_id" json:"packageId"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	ProofKey        *string         `db:"proof_key" json:"proofKey,omitempty"`
	Status          PaymentStatus   `db:"status" json:"status"`
	ReviewedBy      *int64          `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time      `db:"reviewed_at" json:"reviewedAt,omitempty"`
	RejectionReason *string         `db:"rejection_reason" json:"rejectionReason,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}
