package alerts

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/hibiken/asynq"
)

// Notifier delivers events after the triggering transaction committed.
// Delivery is best-effort: failures are logged and never reach the caller.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Queue enqueues events as asynq tasks for the worker.
type Queue struct {
	client *asynq.Client
}

func NewQueue(redisAddr string) *Queue {
	return &Queue{client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})}
}

func (q *Queue) Notify(ctx context.Context, ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		slog.ErrorContext(ctx, "encode notification", "type", ev.Type, "err", err)
		return
	}
	task := asynq.NewTask(ev.Type, b)
	info, err := q.client.EnqueueContext(ctx, task, asynq.Queue(QueueName), asynq.MaxRetry(5))
	if err != nil {
		slog.WarnContext(ctx, "enqueue notification failed", "type", ev.Type, "bid_id", ev.BidID, "err", err)
		return
	}
	slog.DebugContext(ctx, "notification enqueued", "type", ev.Type, "task_id", info.ID)
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// LogNotifier only logs events. Used when no Redis is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, ev Event) {
	slog.InfoContext(ctx, "notification", "type", ev.Type, "recipient_id", ev.RecipientID, "bid_id", ev.BidID)
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
