package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/marketplace_api/internal/models"
	"github.com/GTDGit/marketplace_api/internal/notify"
	"github.com/GTDGit/marketplace_api/internal/utils"
)

// Notifier publishes lifecycle events. Publish must not block on delivery.
type Notifier interface {
	Publish(ctx context.Context, ev notify.Event) error
}

// IdempotencyStore guards request creation against duplicate submissions.
// Reserve returns reserved=true when the caller owns the key. Otherwise
// requestID is the request already created under the key, or 0 while the
// first submission is still in flight.
type IdempotencyStore interface {
	Reserve(ctx context.Context, scope, key string) (requestID int64, reserved bool, err error)
	Bind(ctx context.Context, scope, key string, requestID int64) error
	Release(ctx context.Context, scope, key string) error
}

// BalanceCache holds short-lived balance views. Version is read before the
// balance is loaded and passed to Set, which drops the write when an
// Invalidate happened in between.
type BalanceCache interface {
	Get(ctx context.Context, clientID int64) (*models.Balance, bool)
	Version(ctx context.Context, clientID int64) (int64, bool)
	Set(ctx context.Context, clientID, version int64, b *models.Balance)
	Invalidate(ctx context.Context, clientID int64)
}

// ProofStorage stores payment proof images.
type ProofStorage interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

const notifyTimeout = 10 * time.Second

// dispatch publishes ev in the background. Failures are logged only.
func dispatch(n Notifier, ev notify.Event) {
	if n == nil || len(ev.Recipients) == 0 {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := n.Publish(ctx, ev); err != nil {
			log.Warn().Err(err).
				Str("event", ev.Type).
				Int64("request_id", ev.RequestID).
				Msg("Failed to publish notification")
		}
	}()
}

// notFound maps sql.ErrNoRows to the given refusal.
func notFound(err error, refusal *utils.AppError) error {
	if errors.Is(err, sql.ErrNoRows) {
		return refusal
	}
	return err
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
