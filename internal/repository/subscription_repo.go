package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/GTDGit/marketplace_api/internal/models"
)

const subscriptionColumns = `id, client_id, package_id, remaining_credits, start_date, end_date, is_active,
    cancelled_at, created_at, updated_at`

// SubscriptionRepository provides data access for client subscriptions.
type SubscriptionRepository struct {
	db sqlx.ExtContext
}

// NewSubscriptionRepository creates a new SubscriptionRepository.
func NewSubscriptionRepository(db sqlx.ExtContext) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Create inserts a subscription. Pending subscriptions have no dates.
func (r *SubscriptionRepository) Create(ctx context.Context, s *models.ClientSubscription) error {
	const q = `
        INSERT INTO client_subscriptions (client_id, package_id, remaining_credits, start_date, end_date, is_active)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, q,
		s.ClientID, s.PackageID, s.RemainingCredits, s.StartDate, s.EndDate, s.IsActive,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	return mapInsertErr(err)
}

func (r *SubscriptionRepository) getOne(ctx context.Context, q string, args ...interface{}) (*models.ClientSubscription, error) {
	var s models.ClientSubscription
	if err := sqlx.GetContext(ctx, r.db, &s, q, args...); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByID finds a subscription by id.
func (r *SubscriptionRepository) GetByID(ctx context.Context, id int64) (*models.ClientSubscription, error) {
	return r.getOne(ctx, `SELECT `+subscriptionColumns+` FROM client_subscriptions WHERE id = $1`, id)
}

// GetLive returns the client's active, unexpired subscription.
func (r *SubscriptionRepository) GetLive(ctx context.Context, clientID int64, now time.Time) (*models.ClientSubscription, error) {
	return r.getOne(ctx, `SELECT `+subscriptionColumns+` FROM client_subscriptions
        WHERE client_id = $1 AND is_active = true AND end_date >= $2
        ORDER BY end_date DESC LIMIT 1`, clientID, now)
}

// GetPending returns the client's subscription awaiting payment verification.
func (r *SubscriptionRepository) GetPending(ctx context.Context, clientID int64) (*models.ClientSubscription, error) {
	return r.getOne(ctx, `SELECT `+subscriptionColumns+` FROM client_subscriptions
        WHERE client_id = $1 AND is_active = false AND cancelled_at IS NULL AND start_date IS NULL
        ORDER BY created_at DESC LIMIT 1`, clientID)
}

// ListByClient returns all of a client's subscriptions, newest first.
func (r *SubscriptionRepository) ListByClient(ctx context.Context, clientID int64) ([]*models.ClientSubscription, error) {
	var out []*models.ClientSubscription
	err := sqlx.SelectContext(ctx, r.db, &out,
		`SELECT `+subscriptionColumns+` FROM client_subscriptions WHERE client_id = $1 ORDER BY created_at DESC, id DESC`, clientID)
	return out, err
}

// DebitLive is a single conditional update: the row is only touched when it
// is live and the balance covers amount. Concurrent debits serialize on the
// row lock and re-check the condition, so the balance never goes negative.
func (r *SubscriptionRepository) DebitLive(ctx context.Context, clientID int64, amount int, now time.Time) (*models.ClientSubscription, error) {
	return r.getOne(ctx, `
        UPDATE client_subscriptions
        SET remaining_credits = remaining_credits - $2, updated_at = NOW()
        WHERE id = (
            SELECT id FROM client_subscriptions
            WHERE client_id = $1 AND is_active = true AND end_date >= $3
            ORDER BY end_date DESC LIMIT 1
        )
          AND is_active = true AND end_date >= $3
          AND remaining_credits >= $2
        RETURNING `+subscriptionColumns, clientID, amount, now)
}

// Credit adds amount back to a subscription.
func (r *SubscriptionRepository) Credit(ctx context.Context, subscriptionID int64, amount int) (*models.ClientSubscription, error) {
	return r.getOne(ctx, `
        UPDATE client_subscriptions
        SET remaining_credits = remaining_credits + $2, updated_at = NOW()
        WHERE id = $1
        RETURNING `+subscriptionColumns, subscriptionID, amount)
}

// Activate turns a pending subscription live with a fresh window and grant.
func (r *SubscriptionRepository) Activate(ctx context.Context, id int64, start, end time.Time, credits int) (*models.ClientSubscription, error) {
	return r.getOne(ctx, `
        UPDATE client_subscriptions
        SET is_active = true, start_date = $2, end_date = $3, remaining_credits = $4, updated_at = NOW()
        WHERE id = $1 AND is_active = false AND cancelled_at IS NULL AND start_date IS NULL
        RETURNING `+subscriptionColumns, id, start, end, credits)
}

// DeactivateLive deactivates every live subscription of a client.
func (r *SubscriptionRepository) DeactivateLive(ctx context.Context, clientID int64, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
        UPDATE client_subscriptions SET is_active = false, updated_at = NOW()
        WHERE client_id = $1 AND is_active = true AND end_date >= $2`, clientID, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Cancel deactivates a subscription and stamps cancelled_at.
func (r *SubscriptionRepository) Cancel(ctx context.Context, id int64, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE client_subscriptions SET is_active = false, cancelled_at = $2, updated_at = NOW()
        WHERE id = $1 AND cancelled_at IS NULL`, id, now)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// ExpireDue clears the active flag on subscriptions past their end date.
func (r *SubscriptionRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
        UPDATE client_subscriptions SET is_active = false, updated_at = NOW()
        WHERE is_active = true AND end_date < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
