package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/umoja/internal/domain"
	"github.com/sudo-init-do/umoja/internal/store"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []EmailEnvelope
	err  error
}

func (m *captureMailer) Send(_ context.Context, env EmailEnvelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, env)
	return nil
}

func TestEnvelope(t *testing.T) {
	ev := Event{Type: TaskBidRejected, BidID: "b1", Quantity: "50", ProduceType: "maize", Reason: "insufficient inventory"}
	env := Envelope(ev, "otieno@example.com", "Otieno")
	assert.Equal(t, "otieno@example.com", env.To)
	assert.Equal(t, "Your bid was rejected", env.Subject)
	assert.Contains(t, env.Body, "Reason: insufficient inventory.")

	paid := Envelope(Event{Type: TaskPaymentPaid, BidID: "b1", Amount: "1500.00"}, "w@example.com", "Wanjiku")
	assert.Contains(t, paid.Body, "KES 1500.00")

	other := Envelope(Event{Type: "notify:unknown", BidID: "b9"}, "x@example.com", "X")
	assert.Equal(t, "Umoja notification", other.Subject)
}

func TestPlunkSend(t *testing.T) {
	var got plunkSendBody
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPlunk("pk_test", "market@umoja.example", srv.URL)
	err := p.Send(context.Background(), EmailEnvelope{To: "w@example.com", Subject: "Payment received", Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer pk_test", auth)
	assert.Equal(t, "w@example.com", got.To)
	assert.Equal(t, "market@umoja.example", got.From)
}

func TestPlunkSend_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"invalid recipient"}`))
	}))
	defer srv.Close()

	err := NewPlunk("pk_test", "", srv.URL).Send(context.Background(), EmailEnvelope{To: "nobody"})
	assert.ErrorContains(t, err, "status=422")
	assert.ErrorContains(t, err, "invalid recipient")
}

func TestWorkerHandle(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.InTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateUser(ctx, &domain.User{ID: "f1", Name: "Wanjiku", Email: "wanjiku@example.com",
			Role: domain.RoleFarmer, EmailNotifications: true}); err != nil {
			return err
		}
		return tx.CreateUser(ctx, &domain.User{ID: "b1", Name: "Otieno", Email: "otieno@example.com",
			Role: domain.RoleBroker, EmailNotifications: false, SMSNotifications: true})
	}))
	mailer := &captureMailer{}
	w := &Worker{store: st, mailer: mailer}

	task := func(ev Event) *asynq.Task {
		b, err := json.Marshal(ev)
		require.NoError(t, err)
		return asynq.NewTask(ev.Type, b)
	}

	require.NoError(t, w.Handle(ctx, task(Event{Type: TaskBidPlaced, RecipientID: "f1", BidID: "b1", Quantity: "60", ProduceType: "maize", Amount: "2400.00"})))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "wanjiku@example.com", mailer.sent[0].To)
	assert.Equal(t, "New bid on your listing", mailer.sent[0].Subject)

	// Recipients who turned email off are skipped.
	require.NoError(t, w.Handle(ctx, task(Event{Type: TaskBidAccepted, RecipientID: "b1", BidID: "b1"})))
	assert.Len(t, mailer.sent, 1)

	// Unknown recipients are dropped.
	require.NoError(t, w.Handle(ctx, task(Event{Type: TaskBidAccepted, RecipientID: "ghost"})))
	assert.Len(t, mailer.sent, 1)

	err := w.Handle(ctx, asynq.NewTask(TaskBidAccepted, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	mailer.err = errors.New("smtp down")
	err = w.Handle(ctx, task(Event{Type: TaskPaymentPaid, RecipientID: "f1"}))
	assert.ErrorContains(t, err, "smtp down")
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Notify(context.Background(), Event{Type: TaskBidAccepted, BidID: "b1"})
	events := r.Events()
	require.Len(t, events, 1)
	events[0].BidID = "changed"
	assert.Equal(t, "b1", r.Events()[0].BidID)
}
