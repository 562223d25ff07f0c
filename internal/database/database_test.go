package database

import (
	"testing"
	"time"

	appconfig "github.com/GTDGit/marketplace_api/internal/config"
)

func TestDSNEscapesCredentials(t *testing.T) {
	got := DSN(&appconfig.DatabaseConfig{
		Host:     "db",
		Port:     "5432",
		User:     "market place",
		Password: "p@ss/word",
		Name:     "marketplace",
		SSLMode:  "disable",
	})
	want := "postgres://market+place:p%40ss%2Fword@db:5432/marketplace?sslmode=disable"
	if got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{4, 4 * time.Second},
		{5, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestConnectNilConfig(t *testing.T) {
	if _, err := Connect(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}
