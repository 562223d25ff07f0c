package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/GTDGit/marketplace_api/internal/models"
)

const paymentColumns = `id, client_id, subscription_id, package_id, amount, proof_key, status, reviewed_by,
    reviewed_at, rejection_reason, created_at, updated_at`

// PaymentRepository provides data access for payments.
type PaymentRepository struct {
	db sqlx.ExtContext
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(db sqlx.ExtContext) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a pending payment.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	const q = `INSERT INTO payments (client_id, subscription_id, package_id, amount, status)
              VALUES ($1, $2, $3, $4, $5)
              RETURNING id, created_at, updated_at`
	err := r.db.QueryRowxContext(ctx, q,
		p.ClientID, p.SubscriptionID, p.PackageID, p.Amount, p.Status,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return mapInsertErr(err)
}

func (r *PaymentRepository) getOne(ctx context.Context, q string, args ...interface{}) (*models.Payment, error) {
	var p models.Payment
	if err := sqlx.GetContext(ctx, r.db, &p, q, args...); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByID finds a payment by id.
func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

// GetPendingBySubscription returns the pending payment of a subscription.
func (r *PaymentRepository) GetPendingBySubscription(ctx context.Context, subscriptionID int64) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments
        WHERE subscription_id = $1 AND status = 'pending' LIMIT 1`, subscriptionID)
}

// List returns payments filtered by status (all when empty), newest first.
func (r *PaymentRepository) List(ctx context.Context, status models.PaymentStatus, limit, offset int) ([]*models.Payment, int, error) {
	var total int
	if err := r.db.QueryRowxContext(ctx,
		`SELECT COUNT(*) FROM payments WHERE ($1 = '' OR status = $1)`, status).Scan(&total); err != nil {
		return nil, 0, err
	}
	var out []*models.Payment
	err := sqlx.SelectContext(ctx, r.db, &out,
		`SELECT `+paymentColumns+` FROM payments WHERE ($1 = '' OR status = $1)
         ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, status, limit, offset)
	return out, total, err
}

// AttachProof records the proof object key once.
func (r *PaymentRepository) AttachProof(ctx context.Context, id int64, key string) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE payments SET proof_key = $2, updated_at = NOW()
        WHERE id = $1 AND proof_key IS NULL AND status = 'pending'`, id, key)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// Review settles a pending payment.
func (r *PaymentRepository) Review(ctx context.Context, id int64, status models.PaymentStatus, reviewerID *int64, reason *string, now time.Time) (*models.Payment, error) {
	return r.getOne(ctx, `
        UPDATE payments SET status = $2, reviewed_by = $3, rejection_reason = $4, reviewed_at = $5, updated_at = $5
        WHERE id = $1 AND status = 'pending'
        RETURNING `+paymentColumns, id, status, reviewerID, reason, now)
}
