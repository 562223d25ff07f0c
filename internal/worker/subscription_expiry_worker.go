package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/marketplace_api/internal/repository"
)

// SubscriptionExpiryWorker clears the active flag on subscriptions past their
// end date. Entitlement already refuses them by date; this keeps listings and
// reports truthful.
type SubscriptionExpiryWorker struct {
	subs     repository.SubscriptionStore
	interval time.Duration
	now      func() time.Time
}

// NewSubscriptionExpiryWorker constructs a SubscriptionExpiryWorker.
func NewSubscriptionExpiryWorker(subs repository.SubscriptionStore, interval time.Duration) *SubscriptionExpiryWorker {
	return &SubscriptionExpiryWorker{
		subs:     subs,
		interval: interval,
		now:      time.Now,
	}
}

// Start runs one sweep immediately, then every interval until ctx is canceled.
func (w *SubscriptionExpiryWorker) Start(ctx context.Context) {
	log.Info().Dur("interval", w.interval).Msg("Starting subscription expiry worker")

	w.run(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.run(ctx)
		case <-ctx.Done():
			log.Info().Msg("Subscription expiry worker stopped")
			return
		}
	}
}

func (w *SubscriptionExpiryWorker) run(ctx context.Context) int64 {
	n, err := w.subs.ExpireDue(ctx, w.now())
	if err != nil {
		log.Error().Err(err).Msg("Failed to expire subscriptions")
		return 0
	}
	if n > 0 {
		log.Info().Int64("count", n).Msg("Expired subscriptions deactivated")
	}
	return n
}
