package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/marketplace_api/internal/config"
	"github.com/GTDGit/marketplace_api/internal/models"
)

// LiveSink pushes events to connected dashboards.
type LiveSink interface {
	Deliver(ev Event)
}

// UserLookup loads webhook settings of a recipient.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// Processor consumes the notification queue. A deliver task fans out one
// webhook task per recipient, keyed by event and recipient so a retried
// fan-out never queues the same delivery twice, and then reaches live
// dashboards. A failing endpoint only retries its own delivery.
type Processor struct {
	server   *asynq.Server
	client   *asynq.Client
	tasks    taskEnqueuer
	sink     LiveSink
	users    UserLookup
	sender   *WebhookSender
	queue    string
	maxRetry int
}

// NewProcessor creates a new Processor.
func NewProcessor(redisCfg *config.RedisConfig, cfg config.NotifyConfig, sink LiveSink, users UserLookup) *Processor {
	opt := RedisOpt(redisCfg)
	client := asynq.NewClient(opt)
	p := newProcessor(client, sink, users, NewWebhookSender(cfg.WebhookTimeout), cfg.Queue, cfg.MaxRetry)
	p.client = client
	p.server = asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{cfg.Queue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.Warn().Err(err).
				Str("task", task.Type()).
				Int("retry", retried).
				Int("max_retry", maxRetry).
				Msg("Notification task failed")
		}),
	})
	return p
}

func newProcessor(tasks taskEnqueuer, sink LiveSink, users UserLookup, sender *WebhookSender, queue string, maxRetry int) *Processor {
	return &Processor{
		tasks:    tasks,
		sink:     sink,
		users:    users,
		sender:   sender,
		queue:    queue,
		maxRetry: maxRetry,
	}
}

// Start runs the asynq server until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskDeliver, p.handleDeliver)
	mux.HandleFunc(TaskWebhook, p.handleWebhook)

	log.Info().Str("queue", p.queue).Msg("Notification processor started")
	if err := p.server.Start(mux); err != nil {
		log.Error().Err(err).Msg("Notification processor failed to start")
		return
	}
	<-ctx.Done()
	p.server.Shutdown()
	_ = p.client.Close()
	log.Info().Msg("Notification processor stopped")
}

func (p *Processor) handleDeliver(ctx context.Context, t *asynq.Task) error {
	var ev Event
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return fmt.Errorf("decode event: %v: %w", err, asynq.SkipRetry)
	}

	for _, id := range ev.Recipients {
		u, err := p.users.GetByID(ctx, id)
		if err != nil {
			log.Warn().Err(err).Int64("user_id", id).Str("event", ev.Type).Msg("Skipping webhook for unknown recipient")
			continue
		}
		if u.WebhookURL == nil || *u.WebhookURL == "" {
			continue
		}
		taskID := ""
		if ev.ID != "" {
			taskID = fmt.Sprintf("webhook:%s:%d", ev.ID, id)
		}
		if err := enqueue(ctx, p.tasks, TaskWebhook, WebhookPayload{UserID: id, Event: ev}, p.queue, p.maxRetry, taskID); err != nil {
			return err
		}
	}

	if p.sink != nil {
		p.sink.Deliver(ev)
	}
	return nil
}

func (p *Processor) handleWebhook(ctx context.Context, t *asynq.Task) error {
	var payload WebhookPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode webhook payload: %v: %w", err, asynq.SkipRetry)
	}

	u, err := p.users.GetByID(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("load webhook target %d: %w", payload.UserID, err)
	}
	// The webhook may have been removed since the event was queued.
	if u.WebhookURL == nil || *u.WebhookURL == "" {
		return nil
	}
	secret := ""
	if u.WebhookSecret != nil {
		secret = *u.WebhookSecret
	}

	if err := p.sender.Send(ctx, *u.WebhookURL, secret, payload.Event); err != nil {
		return err
	}
	log.Info().
		Int64("user_id", u.ID).
		Str("event", payload.Event.Type).
		Int64("request_id", payload.Event.RequestID).
		Msg("Webhook delivered")
	return nil
}
