package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/GTDGit/marketplace_api/internal/models"
)

const serviceTypeColumns = `id, name, display_name, description, icon, credit_cost, max_free_revisions,
    paid_revision_cost, reset_free_revisions_on_paid, priority_cost_low, priority_cost_medium,
    priority_cost_high, attributes, is_active, deleted_at, created_at, updated_at`

// ServiceTypeRepository provides data access for the service catalog.
type ServiceTypeRepository struct {
	db sqlx.ExtContext
}

// NewServiceTypeRepository creates a new ServiceTypeRepository.
func NewServiceTypeRepository(db sqlx.ExtContext) *ServiceTypeRepository {
	return &ServiceTypeRepository{db: db}
}

// Create inserts a service type.
func (r *ServiceTypeRepository) Create(ctx context.Context, st *models.ServiceType) error {
	const q = `
        INSERT INTO service_types (
            name, display_name, description, icon, credit_cost, max_free_revisions,
            paid_revision_cost, reset_free_revisions_on_paid, priority_cost_low,
            priority_cost_medium, priority_cost_high, attributes, is_active
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING id, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, q,
		st.Name, st.DisplayName, st.Description, st.Icon, st.CreditCost, st.MaxFreeRevisions,
		st.PaidRevisionCost, st.ResetFreeRevisionsOnPaid, st.PriorityCostLow,
		st.PriorityCostMedium, st.PriorityCostHigh, st.Attributes, st.IsActive,
	).Scan(&st.ID, &st.CreatedAt, &st.UpdatedAt)
	return mapInsertErr(err)
}

// Update overwrites the editable fields of a service type that is not deleted.
func (r *ServiceTypeRepository) Update(ctx context.Context, st *models.ServiceType) error {
	const q = `
        UPDATE service_types SET
            name = $2, display_name = $3, description = $4, icon = $5, credit_cost = $6,
            max_free_revisions = $7, paid_revision_cost = $8, reset_free_revisions_on_paid = $9,
            priority_cost_low = $10, priority_cost_medium = $11, priority_cost_high = $12,
            attributes = $13, is_active = $14, updated_at = NOW()
        WHERE id = $1 AND deleted_at IS NULL
        RETURNING updated_at`

	err := r.db.QueryRowxContext(ctx, q,
		st.ID, st.Name, st.DisplayName, st.Description, st.Icon, st.CreditCost,
		st.MaxFreeRevisions, st.PaidRevisionCost, st.ResetFreeRevisionsOnPaid,
		st.PriorityCostLow, st.PriorityCostMedium, st.PriorityCostHigh,
		st.Attributes, st.IsActive,
	).Scan(&st.UpdatedAt)
	return mapInsertErr(err)
}

// GetByID returns a service type, including soft-deleted ones so that
// historical requests can still be rendered.
func (r *ServiceTypeRepository) GetByID(ctx context.Context, id int64) (*models.ServiceType, error) {
	var st models.ServiceType
	if err := sqlx.GetContext(ctx, r.db, &st, `SELECT `+serviceTypeColumns+` FROM service_types WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &st, nil
}

// List returns service types ordered by name.
func (r *ServiceTypeRepository) List(ctx context.Context, includeUnavailable bool) ([]*models.ServiceType, error) {
	q := `SELECT ` + serviceTypeColumns + ` FROM service_types`
	if !includeUnavailable {
		q += ` WHERE is_active = true AND deleted_at IS NULL`
	}
	q += ` ORDER BY name`

	var out []*models.ServiceType
	err := sqlx.SelectContext(ctx, r.db, &out, q)
	return out, err
}

// SoftDelete marks a service type deleted and inactive.
func (r *ServiceTypeRepository) SoftDelete(ctx context.Context, id int64, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE service_types SET deleted_at = $2, is_active = false, updated_at = NOW()
         WHERE id = $1 AND deleted_at IS NULL`, id, now)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
