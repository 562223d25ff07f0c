package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "marketplace")
	t.Setenv("DB_NAME", "marketplace")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("S3_BUCKET", "")
	t.Setenv("ADMIN_EMAIL", "")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.JWTTTL != 24*time.Hour {
		t.Errorf("JWTTTL = %v, want %v", cfg.JWTTTL, 24*time.Hour)
	}
	if cfg.Worker.StaleRequestAfter != 24*time.Hour {
		t.Errorf("StaleRequestAfter = %v, want %v", cfg.Worker.StaleRequestAfter, 24*time.Hour)
	}
	if cfg.Notify.Concurrency != 5 {
		t.Errorf("Notify.Concurrency = %d, want 5", cfg.Notify.Concurrency)
	}
	if cfg.S3.Enabled() {
		t.Error("S3 should be disabled without a bucket")
	}
	if got := cfg.Redis.Addr(); got != "redis:6379" {
		t.Errorf("Redis.Addr() = %q, want %q", got, "redis:6379")
	}
}

func TestLoadRequiresDatabase(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_HOST", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing DB_HOST")
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing JWT_SECRET")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	setRequired(t)
	t.Setenv("IDEMPOTENCY_TTL", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid IDEMPOTENCY_TTL")
	}
}

func TestParseDurationEnvNegative(t *testing.T) {
	t.Setenv("SOME_INTERVAL", "-1s")
	if _, err := parseDurationEnv("SOME_INTERVAL", "1s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
}

func TestGetEnvIntFallsBack(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	if got := getEnvInt("SOME_INT", 7); got != 7 {
		t.Errorf("getEnvInt = %d, want 7", got)
	}
}

func TestLoadRejectsWeakAdminPassword(t *testing.T) {
	setRequired(t)
	t.Setenv("ADMIN_EMAIL", "root@example.com")
	t.Setenv("ADMIN_PASSWORD", "short")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for short ADMIN_PASSWORD")
	}

	t.Setenv("ADMIN_PASSWORD", "long-enough")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Admin.Name != "Administrator" {
		t.Errorf("Admin.Name = %q, want Administrator", cfg.Admin.Name)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" app.example.com, ,admin.example.com:8443,")
	want := []string{"app.example.com", "admin.example.com:8443"}
	if len(got) != len(want) {
		t.Fatalf("splitList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitList[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
