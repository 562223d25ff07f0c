package service

import (
	"strings"
	"testing"

	"github.com/GTDGit/marketplace_api/internal/models"
	"github.com/GTDGit/marketplace_api/internal/utils"
)

func TestRegisterClientGrantsFreePackage(t *testing.T) {
	f := newFixture(t)
	free := f.freePackage(t)

	res, err := f.auth.Register(f.ctx(), RegisterInput{
		Email:    "  Ana@Example.com ",
		Password: "correct-horse",
		Name:     "Ana",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.User.Email != "ana@example.com" || res.User.Role != models.RoleClient {
		t.Errorf("user = %+v", res.User)
	}
	if res.Subscription == nil || res.Subscription.PackageID != free.ID || res.Subscription.RemainingCredits != free.Credits {
		t.Fatalf("subscription = %+v", res.Subscription)
	}

	claims, err := utils.ValidateJWT(res.Token)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}
	if claims.UserID != res.User.ID || claims.Role != string(models.RoleClient) {
		t.Errorf("claims = %+v", claims)
	}

	entries := f.store.Ledger(res.User.ID)
	if len(entries) != 1 || entries[0].Kind != models.CreditGrant || entries[0].Delta != free.Credits {
		t.Errorf("ledger = %+v", entries)
	}

	_, err = f.auth.Register(f.ctx(), RegisterInput{Email: "ana@example.com", Password: "another-pass", Name: "Ana Two"})
	assertAppError(t, err, utils.ErrEmailTaken)
}

func TestRegisterWithoutFreePackageRollsBack(t *testing.T) {
	f := newFixture(t)

	if _, err := f.auth.Register(f.ctx(), RegisterInput{Email: "bo@example.com", Password: "correct-horse", Name: "Bo"}); err == nil {
		t.Fatal("expected error without a free package")
	}
	f.freePackage(t)
	if _, err := f.auth.Register(f.ctx(), RegisterInput{Email: "bo@example.com", Password: "correct-horse", Name: "Bo"}); err != nil {
		t.Errorf("Register after seeding: %v", err)
	}
}

func TestRegisterProvider(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType(t, nil)

	res, err := f.auth.Register(f.ctx(), RegisterInput{
		Email:          "dev@example.com",
		Password:       "correct-horse",
		Name:           "Dev",
		Role:           models.RoleProvider,
		ServiceTypeIDs: []int64{st.ID},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.Subscription != nil {
		t.Errorf("provider got subscription %+v", res.Subscription)
	}
	ok, err := f.store.Repos().Users.ProviderServes(f.ctx(), res.User.ID, st.ID)
	if err != nil || !ok {
		t.Errorf("ProviderServes = %v, %v", ok, err)
	}

	_, err = f.auth.Register(f.ctx(), RegisterInput{
		Email:          "dev2@example.com",
		Password:       "correct-horse",
		Name:           "Dev",
		Role:           models.RoleProvider,
		ServiceTypeIDs: []int64{9999},
	})
	assertAppError(t, err, utils.ErrServiceTypeNotFound)
	if _, err := f.store.Repos().Users.GetByEmail(f.ctx(), "dev2@example.com"); err == nil {
		t.Error("provider with unknown service type must not be stored")
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	f.freePackage(t)

	tests := []struct {
		name string
		in   RegisterInput
		want *utils.AppError
	}{
		{"bad email", RegisterInput{Email: "nope", Password: "correct-horse", Name: "X"}, utils.ErrInvalidRequest},
		{"short password", RegisterInput{Email: "x@example.com", Password: "short", Name: "X"}, utils.ErrInvalidRequest},
		{"missing name", RegisterInput{Email: "x@example.com", Password: "correct-horse"}, utils.ErrInvalidRequest},
		{"admin role", RegisterInput{Email: "x@example.com", Password: "correct-horse", Name: "X", Role: models.RoleAdmin}, utils.ErrRoleNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.Register(f.ctx(), tt.in)
			assertAppError(t, err, tt.want)
		})
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.freePackage(t)
	if _, err := f.auth.Register(f.ctx(), RegisterInput{Email: "cy@example.com", Password: "correct-horse", Name: "Cy"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	res, err := f.auth.Login(f.ctx(), "CY@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Token == "" {
		t.Error("expected token")
	}

	_, err = f.auth.Login(f.ctx(), "cy@example.com", "wrong-horse")
	assertAppError(t, err, utils.ErrInvalidCredentials)
	_, err = f.auth.Login(f.ctx(), "nobody@example.com", "correct-horse")
	assertAppError(t, err, utils.ErrInvalidCredentials)
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 2; i++ {
		if err := f.auth.EnsureAdmin(f.ctx(), "root@example.com", "admin-pass", "Root"); err != nil {
			t.Fatalf("EnsureAdmin #%d: %v", i+1, err)
		}
	}
	admins, err := f.store.Repos().Users.ListByRole(f.ctx(), models.RoleAdmin)
	if err != nil {
		t.Fatalf("ListByRole: %v", err)
	}
	if len(admins) != 1 {
		t.Errorf("admins = %d, want 1", len(admins))
	}
	if _, err := f.auth.Login(f.ctx(), "root@example.com", "admin-pass"); err != nil {
		t.Errorf("admin Login: %v", err)
	}
}

func TestSetWebhook(t *testing.T) {
	f := newFixture(t)
	provider := f.provider(t)

	_, err := f.auth.SetWebhook(f.ctx(), provider.ID, "ftp://example.com/hook")
	assertAppError(t, err, utils.ErrInvalidRequest)

	ws, err := f.auth.SetWebhook(f.ctx(), provider.ID, "https://example.com/hook")
	if err != nil {
		t.Fatalf("SetWebhook: %v", err)
	}
	if !strings.HasPrefix(ws.Secret, "mk_whsec_") {
		t.Errorf("secret = %q", ws.Secret)
	}
	u, _ := f.auth.Me(f.ctx(), provider.ID)
	if u.WebhookURL == nil || *u.WebhookURL != ws.URL {
		t.Errorf("webhook url = %v", u.WebhookURL)
	}

	if _, err := f.auth.SetWebhook(f.ctx(), provider.ID, ""); err != nil {
		t.Fatalf("clear webhook: %v", err)
	}
	u, _ = f.auth.Me(f.ctx(), provider.ID)
	if u.WebhookURL != nil {
		t.Errorf("webhook url = %v, want nil", *u.WebhookURL)
	}
}
