package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/GTDGit/marketplace_api/internal/models"
)

// LedgerRepository provides append-only access to credit entries.
type LedgerRepository struct {
	db sqlx.ExtContext
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db sqlx.ExtContext) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Append inserts an entry. The caller assigns the ULID.
func (r *LedgerRepository) Append(ctx context.Context, e *models.CreditEntry) error {
	const q = `INSERT INTO credit_entries (id, client_id, subscription_id, delta, balance_after, kind, reference, memo)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
              RETURNING created_at`
	err := r.db.QueryRowxContext(ctx, q,
		e.ID, e.ClientID, e.SubscriptionID, e.Delta, e.BalanceAfter, e.Kind, e.Reference, e.Memo,
	).Scan(&e.CreatedAt)
	return mapInsertErr(err)
}

// BindReference sets the reference of an unreferenced entry.
func (r *LedgerRepository) BindReference(ctx context.Context, id, reference string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE credit_entries SET reference = $2 WHERE id = $1 AND reference IS NULL`, id, reference)
	if err != nil {
		return mapInsertErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindByReference returns the first entry of kind for a reference.
func (r *LedgerRepository) FindByReference(ctx context.Context, reference string, kind models.CreditEntryKind) (*models.CreditEntry, error) {
	var e models.CreditEntry
	err := sqlx.GetContext(ctx, r.db, &e,
		`SELECT id, client_id, subscription_id, delta, balance_after, kind, reference, memo, created_at
         FROM credit_entries WHERE reference = $1 AND kind = $2 ORDER BY id LIMIT 1`, reference, kind)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListByClient returns a client's entries newest first. ULIDs sort by time.
func (r *LedgerRepository) ListByClient(ctx context.Context, clientID int64, limit, offset int) ([]*models.CreditEntry, int, error) {
	var total int
	if err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM credit_entries WHERE client_id = $1`, clientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	var out []*models.CreditEntry
	err := sqlx.SelectContext(ctx, r.db, &out,
		`SELECT id, client_id, subscription_id, delta, balance_after, kind, reference, memo, created_at
         FROM credit_entries WHERE client_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`, clientID, limit, offset)
	return out, total, err
}
