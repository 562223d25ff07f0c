package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/GTDGit/marketplace_api/internal/models"
)

const userColumns = `id, email, name, password_hash, role, is_active, webhook_url, webhook_secret, created_at, updated_at`

// UserRepository provides data access for users and provider skills.
type UserRepository struct {
	db sqlx.ExtContext
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db sqlx.ExtContext) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user.
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	const q = `INSERT INTO users (email, name, password_hash, role, is_active, webhook_url, webhook_secret)
              VALUES ($1, $2, $3, $4, $5, $6, $7)
              RETURNING id, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, q,
		u.Email, u.Name, u.PasswordHash, u.Role, u.IsActive, u.WebhookURL, u.WebhookSecret,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	return mapInsertErr(err)
}

// GetByID finds a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	if err := sqlx.GetContext(ctx, r.db, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail finds a user by email, case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := sqlx.GetContext(ctx, r.db, &u, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateWebhook sets or clears a provider's webhook endpoint.
func (r *UserRepository) UpdateWebhook(ctx context.Context, id int64, url, secret *string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET webhook_url = $2, webhook_secret = $3, updated_at = NOW() WHERE id = $1`,
		id, url, secret)
	return err
}

// ListByRole returns active users with role.
func (r *UserRepository) ListByRole(ctx context.Context, role models.UserRole) ([]*models.User, error) {
	var users []*models.User
	err := sqlx.SelectContext(ctx, r.db, &users,
		`SELECT `+userColumns+` FROM users WHERE role = $1 AND is_active = true ORDER BY id`, role)
	return users, err
}

// SetProviderServiceTypes replaces the service types a provider serves.
func (r *UserRepository) SetProviderServiceTypes(ctx context.Context, providerID int64, serviceTypeIDs []int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM provider_service_types WHERE provider_id = $1`, providerID); err != nil {
		return err
	}
	if len(serviceTypeIDs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO provider_service_types (provider_id, service_type_id)
         SELECT $1, UNNEST($2::bigint[]) ON CONFLICT DO NOTHING`,
		providerID, pq.Array(serviceTypeIDs))
	return err
}

// ProviderServes reports whether a provider serves a service type.
func (r *UserRepository) ProviderServes(ctx context.Context, providerID, serviceTypeID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRowxContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM provider_service_types WHERE provider_id = $1 AND service_type_id = $2)`,
		providerID, serviceTypeID).Scan(&ok)
	return ok, err
}

// ListProviderServiceTypes returns the service type ids a provider serves.
func (r *UserRepository) ListProviderServiceTypes(ctx context.Context, providerID int64) ([]int64, error) {
	var ids []int64
	err := sqlx.SelectContext(ctx, r.db, &ids,
		`SELECT service_type_id FROM provider_service_types WHERE provider_id = $1 ORDER BY service_type_id`, providerID)
	return ids, err
}

// ListProvidersForServiceType returns active providers serving a service type.
func (r *UserRepository) ListProvidersForServiceType(ctx context.Context, serviceTypeID int64) ([]*models.User, error) {
	var users []*models.User
	err := sqlx.SelectContext(ctx, r.db, &users,
		`SELECT u.id, u.email, u.name, u.password_hash, u.role, u.is_active, u.webhook_url, u.webhook_secret,
                u.created_at, u.updated_at
         FROM users u
         JOIN provider_service_types pst ON pst.provider_id = u.id
         WHERE pst.service_type_id = $1 AND u.role = 'provider' AND u.is_active = true
         ORDER BY u.id`, serviceTypeID)
	return users, err
}
