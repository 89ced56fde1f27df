package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/sudo-init-do/umoja/internal/domain"
	"github.com/sudo-init-do/umoja/internal/store"
)

// Worker consumes the notifications queue.
type Worker struct {
	server *asynq.Server
	store  store.Store
	mailer Mailer
}

func NewWorker(redisAddr string, st store.Store, mailer Mailer, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = 5
	}
	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueName: 10},
	})
	return &Worker{server: srv, store: st, mailer: mailer}
}

// Mux routes every notification task type to Handle.
func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for _, t := range []string{TaskBidPlaced, TaskBidAccepted, TaskBidRejected, TaskPaymentPaid, TaskPaymentReleased} {
		mux.HandleFunc(t, w.Handle)
	}
	return mux
}

// Run blocks until the server stops.
func (w *Worker) Run() error {
	return w.server.Run(w.Mux())
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

// Handle resolves the recipient and sends the e-mail. An unknown recipient is
// dropped rather than retried.
func (w *Worker) Handle(ctx context.Context, t *asynq.Task) error {
	var ev Event
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}

	var user *domain.User
	err := w.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		user, err = tx.GetUser(ctx, ev.RecipientID)
		return err
	})
	if domain.KindOf(err) == domain.KindNotFound {
		slog.WarnContext(ctx, "notification recipient missing", "type", ev.Type, "recipient_id", ev.RecipientID)
		return nil
	}
	if err != nil {
		return err
	}

	if !user.EmailNotifications {
		slog.DebugContext(ctx, "notification skipped, recipient opted out", "type", ev.Type, "recipient_id", user.ID)
		return nil
	}

	if err := w.mailer.Send(ctx, Envelope(ev, user.Email, user.Name)); err != nil {
		slog.ErrorContext(ctx, "notification send failed", "type", ev.Type, "to", user.Email, "err", err)
		return err
	}
	slog.InfoContext(ctx, "notification sent", "type", ev.Type, "to", user.Email, "bid_id", ev.BidID)
	return nil
}
