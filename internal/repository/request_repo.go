package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/GTDGit/marketplace_api/internal/models"
)

const requestColumns = `id, title, description, client_id, provider_id, service_type_id, status, priority,
    credit_cost, base_credit_cost, attribute_credits, priority_credit_cost, attribute_responses,
    is_revision, revision_count, free_revisions_used, rating, rated_at, delivered_at, completed_at,
    created_at, updated_at`

// RequestRepository provides data access for requests.
type RequestRepository struct {
	db sqlx.ExtContext
}

// NewRequestRepository creates a new RequestRepository.
func NewRequestRepository(db sqlx.ExtContext) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a request with its frozen cost breakdown.
func (r *RequestRepository) Create(ctx context.Context, req *models.Request) error {
	const q = `
        INSERT INTO requests (
            title, description, client_id, service_type_id, status, priority,
            credit_cost, base_credit_cost, attribute_credits, priority_credit_cost,
            attribute_responses
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, created_at, updated_at`

	return r.db.QueryRowxContext(ctx, q,
		req.Title, req.Description, req.ClientID, req.ServiceTypeID, req.Status, req.Priority,
		req.CreditCost, req.BaseCreditCost, req.AttributeCredits, req.PriorityCreditCost,
		req.AttributeResponses,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
}

func (r *RequestRepository) getOne(ctx context.Context, q string, args ...interface{}) (*models.Request, error) {
	var req models.Request
	if err := sqlx.GetContext(ctx, r.db, &req, q, args...); err != nil {
		return nil, err
	}
	return &req, nil
}

// GetByID finds a request by id.
func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*models.Request, error) {
	return r.getOne(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, id)
}

func (r *RequestRepository) list(ctx context.Context, where string, limit, offset int, args ...interface{}) ([]*models.Request, int, error) {
	var total int
	if err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM requests WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	q := fmt.Sprintf(`SELECT %s FROM requests WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		requestColumns, where, n+1, n+2)
	var out []*models.Request
	if err := sqlx.SelectContext(ctx, r.db, &out, q, append(args, limit, offset)...); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListByClient returns a client's requests.
func (r *RequestRepository) ListByClient(ctx context.Context, clientID int64, limit, offset int) ([]*models.Request, int, error) {
	return r.list(ctx, "client_id = $1", limit, offset, clientID)
}

// ListByProvider returns requests claimed by a provider.
func (r *RequestRepository) ListByProvider(ctx context.Context, providerID int64, limit, offset int) ([]*models.Request, int, error) {
	return r.list(ctx, "provider_id = $1", limit, offset, providerID)
}

// ListOpen returns unclaimed pending requests for the given service types.
func (r *RequestRepository) ListOpen(ctx context.Context, serviceTypeIDs []int64, limit, offset int) ([]*models.Request, int, error) {
	return r.list(ctx, "status = 'PENDING' AND provider_id IS NULL AND service_type_id = ANY($1)",
		limit, offset, pq.Array(serviceTypeIDs))
}

// ListStalePending returns unclaimed requests created before the cutoff.
func (r *RequestRepository) ListStalePending(ctx context.Context, createdBefore time.Time) ([]*models.Request, error) {
	var out []*models.Request
	err := sqlx.SelectContext(ctx, r.db, &out,
		`SELECT `+requestColumns+` FROM requests
         WHERE status = 'PENDING' AND provider_id IS NULL AND created_at < $1
         ORDER BY created_at`, createdBefore)
	return out, err
}

// Claim assigns an unclaimed pending request to a provider.
func (r *RequestRepository) Claim(ctx context.Context, id, providerID int64, now time.Time) (*models.Request, error) {
	return r.getOne(ctx, `
        UPDATE requests SET provider_id = $2, status = 'IN_PROGRESS', updated_at = $3
        WHERE id = $1 AND status = 'PENDING' AND provider_id IS NULL
        RETURNING `+requestColumns, id, providerID, now)
}

// Transition moves a request from one status to another if it is still in
// the expected status.
func (r *RequestRepository) Transition(ctx context.Context, id int64, from, to models.RequestStatus, now time.Time) (*models.Request, error) {
	return r.getOne(ctx, `
        UPDATE requests SET
            status = $3,
            delivered_at = CASE WHEN $3 = 'DELIVERED' THEN $4 ELSE delivered_at END,
            completed_at = CASE WHEN $3 = 'COMPLETED' THEN $4 ELSE completed_at END,
            updated_at = $4
        WHERE id = $1 AND status = $2
        RETURNING `+requestColumns, id, from, to, now)
}

// ApplyRevision moves a delivered request to REVISION_REQUESTED and stores
// the new counters. prevCount guards against a concurrent revision.
func (r *RequestRepository) ApplyRevision(ctx context.Context, id int64, prevCount, nextCount, nextFreeUsed int, now time.Time) (*models.Request, error) {
	return r.getOne(ctx, `
        UPDATE requests SET
            status = 'REVISION_REQUESTED',
            is_revision = true,
            revision_count = $3,
            free_revisions_used = $4,
            updated_at = $5
        WHERE id = $1 AND status = 'DELIVERED' AND revision_count = $2
        RETURNING `+requestColumns, id, prevCount, nextCount, nextFreeUsed, now)
}

// SetRating records a rating once on a completed request.
func (r *RequestRepository) SetRating(ctx context.Context, id int64, rating int, now time.Time) (*models.Request, error) {
	return r.getOne(ctx, `
        UPDATE requests SET rating = $2, rated_at = $3, updated_at = $3
        WHERE id = $1 AND status = 'COMPLETED' AND rating IS NULL
        RETURNING `+requestColumns, id, rating, now)
}
