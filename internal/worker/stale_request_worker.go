package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/marketplace_api/internal/models"
)

// staleFinder lists unclaimed requests older than age, alerting admins.
type staleFinder interface {
	StaleRequests(ctx context.Context, age time.Duration) ([]*models.Request, error)
}

// StaleRequestWorker periodically reports pending requests no provider has claimed.
type StaleRequestWorker struct {
	requests staleFinder
	interval time.Duration
	age      time.Duration
}

// NewStaleRequestWorker constructs a StaleRequestWorker.
func NewStaleRequestWorker(requests staleFinder, interval, age time.Duration) *StaleRequestWorker {
	return &StaleRequestWorker{
		requests: requests,
		interval: interval,
		age:      age,
	}
}

// Start begins the periodic check until context is canceled.
func (w *StaleRequestWorker) Start(ctx context.Context) {
	log.Info().Dur("interval", w.interval).Dur("age", w.age).Msg("Starting stale request worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.run(ctx)
		case <-ctx.Done():
			log.Info().Msg("Stale request worker stopped")
			return
		}
	}
}

func (w *StaleRequestWorker) run(ctx context.Context) int {
	stale, err := w.requests.StaleRequests(ctx, w.age)
	if err != nil {
		log.Error().Err(err).Msg("Failed to check stale requests")
	}
	for _, req := range stale {
		log.Warn().
			Int64("request_id", req.ID).
			Int64("client_id", req.ClientID).
			Time("created_at", req.CreatedAt).
			Msg("Request still unclaimed")
	}
	return len(stale)
}
