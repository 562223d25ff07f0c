package models

import "time"

// RequestStatus is the lifecycle state of a service request.
type RequestStatus string

const (
	StatusPending           RequestStatus = "PENDING"
	StatusInProgress        RequestStatus = "IN_PROGRESS"
	StatusDelivered         RequestStatus = "DELIVERED"
	StatusRevisionRequested RequestStatus = "REVISION_REQUESTED"
	StatusCompleted         RequestStatus = "COMPLETED"
	StatusCancelled         RequestStatus = "CANCELLED"
)

var transitions = map[RequestStatus][]RequestStatus{
	StatusPending:           {StatusInProgress, StatusCancelled},
	StatusInProgress:        {StatusDelivered},
	StatusDelivered:         {StatusRevisionRequested, StatusCompleted},
	StatusRevisionRequested: {StatusInProgress, StatusDelivered},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to RequestStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Priority tiers.
const (
	PriorityLow    = 1
	PriorityMedium = 2
	PriorityHigh   = 3
)

// Request is a unit of work. The cost columns are frozen at creation and
// CreditCost always equals the sum of the three components.
type Request struct {
	ID                 int64              `db:"id" json:"id"`
	Title              string             `db:"title" json:"title"`
	Description        string             `db:"description" json:"description"`
	ClientID           int64              `db:"client_id" json:"clientId"`
	ProviderID         *int64             `db:"provider_id" json:"providerId,omitempty"`
	ServiceTypeID      int64              `db:"service_type_id" json:"serviceTypeId"`
	Status             RequestStatus      `db:"status" json:"status"`
	Priority           int                `db:"priority" json:"priority"`
	CreditCost         int                `db:"credit_cost" json:"creditCost"`
	BaseCreditCost     int                `db:"base_credit_cost" json:"baseCreditCost"`
	AttributeCredits   int                `db:"attribute_credits" json:"attributeCredits"`
	PriorityCreditCost int                `db:"priority_credit_cost" json:"priorityCreditCost"`
	AttributeResponses AttributeResponses `db:"attribute_responses" json:"attributeResponses"`
	IsRevision         bool               `db:"is_revision" json:"isRevision"`
	RevisionCount      int                `db:"revision_count" json:"revisionCount"`
	FreeRevisionsUsed  int                `db:"free_revisions_used" json:"freeRevisionsUsed"`
	Rating             *int               `db:"rating" json:"rating,omitempty"`
	RatedAt            *time.Time         `db:"rated_at" json:"ratedAt,omitempty"`
	DeliveredAt        *time.Time         `db:"delivered_at" json:"deliveredAt,omitempty"`
	CompletedAt        *time.Time         `db:"completed_at" json:"completedAt,omitempty"`
	CreatedAt          time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updatedAt"`
}

// CommentKind classifies request log entries.
type CommentKind string

const (
	CommentSystem   CommentKind = "system"
	CommentClient   CommentKind = "client"
	CommentProvider CommentKind = "provider"
	CommentDelivery CommentKind = "delivery"
	// CommentRevision records a DELIVERED -> REVISION_REQUESTED transition.
	CommentRevision CommentKind = "revision"
)

// RequestComment is an append-only log entry on a request.
type RequestComment struct {
	ID             int64       `db:"id" json:"id"`
	RequestID      int64       `db:"request_id" json:"requestId"`
	AuthorID       *int64      `db:"author_id" json:"authorId,omitempty"`
	Kind           CommentKind `db:"kind" json:"kind"`
	Body           string      `db:"body" json:"body"`
	FileURL        *string     `db:"file_url" json:"fileUrl,omitempty"`
	CreditsCharged int         `db:"credits_charged" json:"creditsCharged"`
	// FreeUsedAfter is the free revision counter right after a revision
	// entry was written. Nil on other kinds.
	FreeUsedAfter  *int        `db:"free_used_after" json:"freeUsedAfter,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"createdAt"`
}
