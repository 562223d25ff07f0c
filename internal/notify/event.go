// Package notify fans request lifecycle events out to connected dashboards
// and provider webhooks through an asynq task queue.
package notify

import "time"

// Event types.
const (
	EventRequestCreated    = "request.created"
	EventRequestClaimed    = "request.claimed"
	EventRequestDelivered  = "request.delivered"
	EventRevisionRequested = "request.revision_requested"
	EventRequestCompleted  = "request.completed"
	EventRequestCancelled  = "request.cancelled"
	EventRequestStale      = "request.stale"
	EventCommentAdded      = "request.comment_added"
	EventPaymentSubmitted  = "payment.submitted"
	EventPaymentApproved   = "payment.approved"
	EventPaymentRejected   = "payment.rejected"
)

// Event is a notification addressed to a set of users.
type Event struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Recipients     []int64   `json:"recipients"`
	RequestID      int64     `json:"requestId,omitempty"`
	ServiceTypeID  int64     `json:"serviceTypeId,omitempty"`
	SubscriptionID int64     `json:"subscriptionId,omitempty"`
	PaymentID      int64     `json:"paymentId,omitempty"`
	Status         string    `json:"status,omitempty"`
	Title          string    `json:"title,omitempty"`
	Message        string    `json:"message"`
	OccurredAt     time.Time `json:"occurredAt"`
}
