package models

import "time"

// UserRole is the marketplace role carried in the JWT.
type UserRole string

const (
	RoleClient   UserRole = "client"
	RoleProvider UserRole = "provider"
	RoleAdmin    UserRole = "admin"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleClient, RoleProvider, RoleAdmin:
		return true
	}
	return false
}

// User is any marketplace account. Providers may register a webhook that
// receives signed request notifications.
type User struct {
	ID            int64     `db:"id" json:"id"`
	Email         string    `db:"email" json:"email"`
	Name          string    `db:"name" json:"name"`
	PasswordHash  string    `db:"password_hash" json:"-"`
	Role          UserRole  `db:"role" json:"role"`
	IsActive      bool      `db:"is_active" json:"isActive"`
	WebhookURL    *string   `db:"webhook_url" json:"webhookUrl,omitempty"`
	WebhookSecret *string   `db:"webhook_secret" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}
