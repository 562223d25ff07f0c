package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/oklog/ulid/v2"

	"github.com/GTDGit/marketplace_api/internal/config"
)

// Task types.
const (
	TaskDeliver = "notify:deliver"
	TaskWebhook = "notify:webhook"
)

// WebhookPayload is the task payload of a single webhook delivery.
type WebhookPayload struct {
	UserID int64 `json:"userId"`
	Event  Event `json:"event"`
}

// taskEnqueuer is satisfied by *asynq.Client.
type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer publishes events onto the notification queue.
type Enqueuer struct {
	client   *asynq.Client
	queue    string
	maxRetry int
}

// NewEnqueuer creates a new Enqueuer.
func NewEnqueuer(redisCfg *config.RedisConfig, cfg config.NotifyConfig) *Enqueuer {
	return &Enqueuer{
		client:   asynq.NewClient(RedisOpt(redisCfg)),
		queue:    cfg.Queue,
		maxRetry: cfg.MaxRetry,
	}
}

// RedisOpt maps the Redis config onto asynq connection options.
func RedisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr(), Password: cfg.Password, DB: cfg.DB}
}

// Publish queues the event for fan-out. Events without recipients are dropped.
func (e *Enqueuer) Publish(ctx context.Context, ev Event) error {
	if len(ev.Recipients) == 0 {
		return nil
	}
	return enqueue(ctx, e.client, TaskDeliver, ev, e.queue, e.maxRetry, "")
}

// Close releases the Redis connection.
func (e *Enqueuer) Close() error {
	return e.client.Close()
}

// enqueue marshals payload onto the queue. Events get an id and timestamp if
// they lack one. A taskID already present in the queue counts as enqueued.
func enqueue(ctx context.Context, c taskEnqueuer, taskType string, payload interface{}, queue string, maxRetry int, taskID string) error {
	if ev, ok := payload.(Event); ok {
		if ev.ID == "" {
			ev.ID = ulid.Make().String()
		}
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = time.Now()
		}
		payload = ev
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", taskType, err)
	}
	opts := []asynq.Option{asynq.Queue(queue)}
	if maxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(maxRetry))
	}
	if taskID != "" {
		opts = append(opts, asynq.TaskID(taskID))
	}
	_, err = c.EnqueueContext(ctx, asynq.NewTask(taskType, b), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
