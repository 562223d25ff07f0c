package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/GTDGit/marketplace_api/internal/models"
)

const packageColumns = `id, name, description, price, credits, duration_days, features, is_free_package,
    support_all_services, is_active, deleted_at, created_at, updated_at`

// PackageRepository provides data access for packages.
type PackageRepository struct {
	db sqlx.ExtContext
}

// NewPackageRepository creates a new PackageRepository.
func NewPackageRepository(db sqlx.ExtContext) *PackageRepository {
	return &PackageRepository{db: db}
}

// Create inserts a package and its service entitlements.
func (r *PackageRepository) Create(ctx context.Context, p *models.Package) error {
	const q = `
        INSERT INTO packages (name, description, price, credits, duration_days, features,
            is_free_package, support_all_services, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, q,
		p.Name, p.Description, p.Price, p.Credits, p.DurationDays, p.Features,
		p.IsFreePackage, p.SupportAllServices, p.IsActive,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return mapInsertErr(err)
	}
	return r.setServiceTypes(ctx, p.ID, p.ServiceTypeIDs)
}

// Update overwrites a package and replaces its service entitlements.
func (r *PackageRepository) Update(ctx context.Context, p *models.Package) error {
	const q = `
        UPDATE packages SET name = $2, description = $3, price = $4, credits = $5,
            duration_days = $6, features = $7, support_all_services = $8, is_active = $9,
            updated_at = NOW()
        WHERE id = $1 AND deleted_at IS NULL
        RETURNING updated_at`

	err := r.db.QueryRowxContext(ctx, q,
		p.ID, p.Name, p.Description, p.Price, p.Credits, p.DurationDays, p.Features,
		p.SupportAllServices, p.IsActive,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return err
	}
	return r.setServiceTypes(ctx, p.ID, p.ServiceTypeIDs)
}

func (r *PackageRepository) setServiceTypes(ctx context.Context, packageID int64, ids []int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM package_service_types WHERE package_id = $1`, packageID); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO package_service_types (package_id, service_type_id)
         SELECT $1, UNNEST($2::bigint[]) ON CONFLICT DO NOTHING`,
		packageID, pq.Array(ids))
	return err
}

func (r *PackageRepository) loadServiceTypes(ctx context.Context, p *models.Package) error {
	var ids []int64
	if err := sqlx.SelectContext(ctx, r.db, &ids,
		`SELECT service_type_id FROM package_service_types WHERE package_id = $1 ORDER BY service_type_id`, p.ID); err != nil {
		return err
	}
	p.ServiceTypeIDs = ids
	return nil
}

func (r *PackageRepository) getBy(ctx context.Context, where string, args ...interface{}) (*models.Package, error) {
	var p models.Package
	if err := sqlx.GetContext(ctx, r.db, &p, `SELECT `+packageColumns+` FROM packages WHERE `+where+` LIMIT 1`, args...); err != nil {
		return nil, err
	}
	if err := r.loadServiceTypes(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByID finds a package by id, including soft-deleted ones.
func (r *PackageRepository) GetByID(ctx context.Context, id int64) (*models.Package, error) {
	return r.getBy(ctx, "id = $1", id)
}

// GetFree returns the system free package.
func (r *PackageRepository) GetFree(ctx context.Context) (*models.Package, error) {
	return r.getBy(ctx, "is_free_package = true AND deleted_at IS NULL")
}

// List returns packages ordered by price.
func (r *PackageRepository) List(ctx context.Context, includeUnavailable bool) ([]*models.Package, error) {
	q := `SELECT ` + packageColumns + ` FROM packages`
	if !includeUnavailable {
		q += ` WHERE is_active = true AND deleted_at IS NULL`
	}
	q += ` ORDER BY price, id`

	var out []*models.Package
	if err := sqlx.SelectContext(ctx, r.db, &out, q); err != nil {
		return nil, err
	}
	for _, p := range out {
		if err := r.loadServiceTypes(ctx, p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SoftDelete marks a non-free package deleted.
func (r *PackageRepository) SoftDelete(ctx context.Context, id int64, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE packages SET deleted_at = $2, is_active = false, updated_at = NOW()
         WHERE id = $1 AND deleted_at IS NULL AND is_free_package = false`, id, now)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// HasServiceType reports whether a package lists a service type.
func (r *PackageRepository) HasServiceType(ctx context.Context, packageID, serviceTypeID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRowxContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM package_service_types WHERE package_id = $1 AND service_type_id = $2)`,
		packageID, serviceTypeID).Scan(&ok)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return ok, err
}
