package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/GTDGit/marketplace_api/internal/models"
	"github.com/GTDGit/marketplace_api/internal/repository"
	"github.com/GTDGit/marketplace_api/internal/utils"
)

const minPasswordLength = 8

// RegisterInput is a self-service sign-up.
type RegisterInput struct {
	Email          string          `json:"email" binding:"required,email"`
	Password       string          `json:"password" binding:"required"`
	Name           string          `json:"name" binding:"required,max=100"`
	Role           models.UserRole `json:"role" binding:"omitempty,oneof=client provider"`
	ServiceTypeIDs []int64         `json:"serviceTypeIds" binding:"dive,min=1"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token        string                     `json:"token"`
	User         *models.User               `json:"user"`
	Subscription *models.ClientSubscription `json:"subscription,omitempty"`
}

// WebhookSettings is returned once when a provider registers a webhook.
type WebhookSettings struct {
	URL    string `json:"url"`
	Secret string `json:"secret"`
}

// AuthService registers and authenticates marketplace users.
type AuthService struct {
	store         repository.Store
	subscriptions *SubscriptionService
}

// NewAuthService constructs a new AuthService.
func NewAuthService(store repository.Store, subscriptions *SubscriptionService) *AuthService {
	return &AuthService{store: store, subscriptions: subscriptions}
}

// Register creates a client or provider account. Clients receive the free
// package in the same transaction.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if in.Role == "" {
		in.Role = models.RoleClient
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, utils.ErrInvalidRequest.WithMessage("A valid email is required")
	}
	if len(in.Password) < minPasswordLength {
		return nil, utils.ErrInvalidRequest.WithMessage(fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}
	if in.Name == "" {
		return nil, utils.ErrInvalidRequest.WithMessage("Name is required")
	}
	if in.Role != models.RoleClient && in.Role != models.RoleProvider {
		return nil, utils.ErrRoleNotAllowed.WithMessage("Only client and provider accounts can be registered")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: string(hashed),
		Role:         in.Role,
		IsActive:     true,
	}
	var sub *models.ClientSubscription
	err = s.store.InTx(ctx, func(r *repository.Repositories) error {
		if err := r.Users.Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return utils.ErrEmailTaken
			}
			return fmt.Errorf("create user: %w", err)
		}
		switch user.Role {
		case models.RoleClient:
			var err error
			sub, err = s.subscriptions.GrantFree(ctx, r, user.ID)
			return err
		case models.RoleProvider:
			if err := validateServiceTypes(ctx, r, in.ServiceTypeIDs); err != nil {
				return err
			}
			return r.Users.SetProviderServiceTypes(ctx, user.ID, in.ServiceTypeIDs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	token, err := utils.GenerateJWT(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	log.Info().Int64("user_id", user.ID).Str("role", string(user.Role)).Msg("User registered")
	return &AuthResult{Token: token, User: user, Subscription: sub}, nil
}

// Login verifies credentials and issues a token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	log.Debug().Str("email", email).Msg("Login attempt")

	user, err := s.store.Repos().Users.GetByEmail(ctx, email)
	if isNoRows(err) {
		return nil, utils.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		log.Warn().Str("email", email).Msg("Account is inactive")
		return nil, utils.ErrAccountInactive
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		log.Warn().Str("email", email).Msg("Password verification failed")
		return nil, utils.ErrInvalidCredentials
	}

	token, err := utils.GenerateJWT(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	log.Info().Int64("user_id", user.ID).Msg("Login successful")
	return &AuthResult{Token: token, User: user}, nil
}

// EnsureAdmin creates the bootstrap administrator if the email is unused.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password, name string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := s.store.Repos().Users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !isNoRows(err) {
		return fmt.Errorf("load admin: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	admin := &models.User{
		Email:        email,
		Name:         name,
		PasswordHash: string(hashed),
		Role:         models.RoleAdmin,
		IsActive:     true,
	}
	if err := s.store.Repos().Users.Create(ctx, admin); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		return fmt.Errorf("create admin: %w", err)
	}
	log.Info().Str("email", email).Msg("Bootstrap admin ensured")
	return nil
}

// Me returns the caller's account.
func (s *AuthService) Me(ctx context.Context, userID int64) (*models.User, error) {
	u, err := s.store.Repos().Users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, utils.ErrUserNotFound)
	}
	return u, nil
}

// SetProviderServiceTypes replaces the service types a provider serves.
func (s *AuthService) SetProviderServiceTypes(ctx context.Context, providerID int64, ids []int64) ([]int64, error) {
	err := s.store.InTx(ctx, func(r *repository.Repositories) error {
		if err := validateServiceTypes(ctx, r, ids); err != nil {
			return err
		}
		return r.Users.SetProviderServiceTypes(ctx, providerID, ids)
	})
	if err != nil {
		return nil, err
	}
	return s.store.Repos().Users.ListProviderServiceTypes(ctx, providerID)
}

// SetWebhook registers the provider's notification URL and issues a fresh
// signing secret. An empty URL removes the webhook.
func (s *AuthService) SetWebhook(ctx context.Context, providerID int64, rawURL string) (*WebhookSettings, error) {
	rawURL = strings.TrimSpace(rawURL)
	users := s.store.Repos().Users
	if rawURL == "" {
		if err := users.UpdateWebhook(ctx, providerID, nil, nil); err != nil {
			return nil, notFound(err, utils.ErrUserNotFound)
		}
		return &WebhookSettings{}, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, utils.ErrInvalidRequest.WithMessage("Webhook URL must be an absolute http(s) URL")
	}
	secret, err := utils.GenerateWebhookSecret()
	if err != nil {
		return nil, fmt.Errorf("generate webhook secret: %w", err)
	}
	if err := users.UpdateWebhook(ctx, providerID, &rawURL, &secret); err != nil {
		return nil, notFound(err, utils.ErrUserNotFound)
	}
	log.Info().Int64("provider_id", providerID).Str("url", rawURL).Msg("Provider webhook updated")
	return &WebhookSettings{URL: rawURL, Secret: secret}, nil
}

func validateServiceTypes(ctx context.Context, r *repository.Repositories, ids []int64) error {
	for _, id := range ids {
		st, err := r.ServiceTypes.GetByID(ctx, id)
		if err != nil {
			return notFound(err, utils.ErrServiceTypeNotFound.WithMessage(fmt.Sprintf("Service type %d not found", id)))
		}
		if !st.IsAvailable() {
			return utils.ErrServiceTypeNotFound.WithMessage(fmt.Sprintf("Service type %d is not available", id))
		}
	}
	return nil
}
