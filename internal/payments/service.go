// Package payments charges accepted bids through Payhero M-Pesa and
// reconciles the gateway's callbacks.
package payments

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/umoja/internal/alerts"
	"github.com/sudo-init-do/umoja/internal/domain"
	"github.com/sudo-init-do/umoja/internal/metrics"
	"github.com/sudo-init-do/umoja/internal/store"
)

type Service struct {
	store   store.Store
	gateway Gateway
	cfg     GatewayConfig
	notify  alerts.Notifier
	now     func() time.Time
}

func NewService(st store.Store, gw Gateway, cfg GatewayConfig, notify alerts.Notifier) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if notify == nil {
		notify = alerts.LogNotifier{}
	}
	return &Service{store: st, gateway: gw, cfg: cfg, notify: notify, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) timestamp() time.Time { return s.now().UTC() }

func (s *Service) profileMpesaNumber(ctx context.Context, userID string) string {
	var number string
	_ = s.store.InTx(ctx, func(tx store.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err == nil {
			number = u.MpesaNumber
		}
		return err
	})
	return number
}

// Initiate charges the broker's phone for an accepted bid.
//
// The pending payment is reserved first in its own transaction, so two
// concurrent initiations for one bid cannot both reach the gateway. The
// gateway call runs with no transaction open. A pending payment the gateway
// never acknowledged may be retried once the previous call's timeout has
// passed; the retry reuses its reference.
//
// An empty phone falls back to the M-Pesa number on the broker's profile.
func (s *Service) Initiate(ctx context.Context, brokerID, bidID, phone string) (*domain.Payment, error) {
	if strings.TrimSpace(phone) == "" {
		phone = s.profileMpesaNumber(ctx, brokerID)
	}
	msisdn, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}

	var payment *domain.Payment
	var customer string
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		bid, err := tx.GetBid(ctx, bidID, true)
		if err != nil {
			return err
		}
		if bid.BrokerID != brokerID {
			return domain.Unauthorized("bid belongs to another broker")
		}
		if bid.Status != domain.BidAccepted {
			return domain.InvalidState("payment can only be created for accepted bids")
		}
		if bid.TotalPrice.IntPart() < 1 {
			return domain.Validation("bid total is below the minimum chargeable amount")
		}
		if broker, err := tx.GetUser(ctx, brokerID); err == nil {
			customer = broker.Name
		}

		now := s.timestamp()
		existing, err := tx.PaymentsForBid(ctx, bid.ID)
		if err != nil {
			return err
		}
		for i := range existing {
			p := &existing[i]
			if !p.Active() {
				continue
			}
			if p.Status == domain.PaymentPending && p.TransactionID == nil && now.Sub(p.UpdatedAt) > s.cfg.Timeout {
				locked, err := tx.GetPayment(ctx, p.ID, true)
				if err != nil {
					return err
				}
				locked.Phone = msisdn
				locked.UpdatedAt = now
				if err := tx.UpdatePayment(ctx, locked); err != nil {
					return err
				}
				payment = locked
				return nil
			}
			if p.Status == domain.PaymentPending {
				return domain.Conflict("a payment for this bid is already in progress")
			}
			return domain.Conflict("bid already has a %s payment", p.Status)
		}

		payment = &domain.Payment{
			ID:        uuid.New().String(),
			BidID:     bid.ID,
			Amount:    bid.TotalPrice,
			Method:    domain.MethodMpesa,
			Currency:  domain.CurrencyKES,
			Status:    domain.PaymentPending,
			Reference: Reference(bid.ID, now),
			Phone:     msisdn,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.CreatePayment(ctx, payment)
	})
	if err != nil {
		return nil, err
	}
	if customer == "" {
		customer = "Umoja broker"
	}

	result, gwErr := s.gateway.Charge(ctx, ChargeRequest{
		Amount:       payment.Amount.IntPart(),
		Phone:        msisdn,
		Reference:    payment.Reference,
		CustomerName: customer,
	})

	switch {
	case gwErr == nil:
		err = s.store.InTx(ctx, func(tx store.Tx) error {
			p, err := tx.GetPayment(ctx, payment.ID, true)
			if err != nil {
				return err
			}
			// A callback may have landed first and stored the receipt.
			if p.Status == domain.PaymentPending && p.TransactionID == nil {
				checkout := result.CheckoutID
				p.TransactionID = &checkout
				p.UpdatedAt = s.timestamp()
				if err := tx.UpdatePayment(ctx, p); err != nil {
					return err
				}
			}
			payment = p
			return nil
		})
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "payment initiated", "payment_id", payment.ID, "bid_id", bidID,
			"reference", payment.Reference, "amount", payment.Amount.String())
		return payment, nil

	case domain.KindOf(gwErr) == domain.KindGatewayRejected:
		err = s.store.InTx(ctx, func(tx store.Tx) error {
			p, err := tx.GetPayment(ctx, payment.ID, true)
			if err != nil {
				return err
			}
			if p.Status != domain.PaymentPending {
				return nil
			}
			p.Status = domain.PaymentFailed
			p.UpdatedAt = s.timestamp()
			return tx.UpdatePayment(ctx, p)
		})
		if err != nil {
			slog.ErrorContext(ctx, "mark rejected payment failed", "payment_id", payment.ID, "err", err)
		} else {
			metrics.PaymentTransitions.WithLabelValues(domain.PaymentFailed).Inc()
		}
		slog.WarnContext(ctx, "payment rejected by gateway", "payment_id", payment.ID, "bid_id", bidID, "err", gwErr)
		return nil, gwErr

	default:
		slog.WarnContext(ctx, "payment gateway unavailable, payment left pending",
			"payment_id", payment.ID, "bid_id", bidID, "timeout", IsTimeout(gwErr), "err", gwErr)
		return nil, gwErr
	}
}

// WebhookResult is what the callback endpoint reports back.
type WebhookResult struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	PaymentID string `json:"payment_id,omitempty"`
}

// HandleWebhook verifies and applies a gateway callback. Only pending
// payments transition; anything else is acknowledged unchanged so replays
// are harmless.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	switch {
	case s.cfg.WebhookSecret != "":
		if signature == "" || !VerifySignature(s.cfg.WebhookSecret, body, signature) {
			metrics.Webhooks.WithLabelValues("bad_signature").Inc()
			return nil, domain.SignatureInvalid("invalid signature")
		}
	case !s.cfg.AllowUnsigned:
		metrics.Webhooks.WithLabelValues("bad_signature").Inc()
		return nil, domain.SignatureInvalid("webhook secret not configured")
	}

	cb, err := ParseCallback(body)
	if err != nil {
		metrics.Webhooks.WithLabelValues("malformed").Inc()
		return nil, domain.Validation("%v", err)
	}
	outcome := cb.Outcome()

	var (
		payment  *domain.Payment
		changed  bool
		farmerID string
	)
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		found, err := s.resolve(ctx, tx, cb)
		if err != nil || found == nil {
			return err
		}
		payment, err = tx.GetPayment(ctx, found.ID, true)
		if err != nil {
			return err
		}
		if outcome == OutcomeNoChange || payment.Status != domain.PaymentPending {
			return nil
		}

		switch outcome {
		case OutcomePaid:
			payment.Status = domain.PaymentPaid
			if cb.Receipt != "" {
				other, err := tx.PaymentByTransactionID(ctx, cb.Receipt)
				switch {
				case err == nil && other.ID != payment.ID:
					slog.WarnContext(ctx, "receipt already recorded on another payment",
						"receipt", cb.Receipt, "payment_id", payment.ID, "other_payment_id", other.ID)
				case err == nil || domain.KindOf(err) == domain.KindNotFound:
					receipt := cb.Receipt
					payment.TransactionID = &receipt
				default:
					return err
				}
			}
		case OutcomeFailed:
			payment.Status = domain.PaymentFailed
		}
		payment.UpdatedAt = s.timestamp()
		if err := tx.UpdatePayment(ctx, payment); err != nil {
			return err
		}
		changed = true

		bid, err := tx.GetBid(ctx, payment.BidID, false)
		if err != nil {
			return err
		}
		listing, err := tx.GetListing(ctx, bid.ListingID, false)
		if err != nil {
			return err
		}
		farmerID = listing.FarmerID
		return nil
	})
	if err != nil {
		metrics.Webhooks.WithLabelValues("error").Inc()
		return nil, err
	}

	if payment == nil {
		metrics.Webhooks.WithLabelValues("not_found").Inc()
		slog.WarnContext(ctx, "webhook for unknown payment", "reference", cb.Reference, "checkout_id", cb.CheckoutID)
		return &WebhookResult{Status: "not_found", Message: "payment not found"}, nil
	}

	if !changed {
		metrics.Webhooks.WithLabelValues("unchanged").Inc()
		slog.InfoContext(ctx, "webhook acknowledged without change", "payment_id", payment.ID,
			"status", payment.Status, "outcome", outcome.String())
		return &WebhookResult{Status: "ok", Message: "no change", PaymentID: payment.ID}, nil
	}

	metrics.Webhooks.WithLabelValues(outcome.String()).Inc()
	metrics.PaymentTransitions.WithLabelValues(payment.Status).Inc()
	slog.InfoContext(ctx, "payment reconciled", "payment_id", payment.ID, "status", payment.Status,
		"result_desc", cb.ResultDesc)
	if payment.Status == domain.PaymentPaid {
		s.notifyPaid(ctx, payment, farmerID)
	}
	return &WebhookResult{Status: "ok", Message: "webhook processed", PaymentID: payment.ID}, nil
}

// resolve finds the payment a callback refers to, trying the bid id embedded
// in the reference, the stored reference, the receipt, then the checkout id.
// It returns nil without error when nothing matches.
func (s *Service) resolve(ctx context.Context, tx store.Tx, cb *Callback) (*domain.Payment, error) {
	if bidID, ok := BidIDFromReference(cb.Reference); ok {
		if _, err := uuid.Parse(bidID); err == nil {
			list, err := tx.PaymentsForBid(ctx, bidID)
			if err != nil {
				return nil, err
			}
			for i := range list {
				if list[i].Reference == cb.Reference {
					return &list[i], nil
				}
			}
			if len(list) > 0 {
				return &list[0], nil
			}
		}
	}

	lookups := []struct {
		key string
		fn  func(context.Context, string) (*domain.Payment, error)
	}{
		{cb.Reference, tx.PaymentByReference},
		{cb.Receipt, tx.PaymentByTransactionID},
		{cb.CheckoutID, tx.PaymentByTransactionID},
	}
	for _, l := range lookups {
		if l.key == "" {
			continue
		}
		p, err := l.fn(ctx, l.key)
		if err == nil {
			return p, nil
		}
		if domain.KindOf(err) != domain.KindNotFound {
			return nil, err
		}
	}
	return nil, nil
}

// ManualConfirm marks a pending payment paid without the gateway, for when
// the callback is late or lost.
func (s *Service) ManualConfirm(ctx context.Context, brokerID, paymentID, transactionRef string) (*domain.Payment, error) {
	transactionRef = strings.TrimSpace(transactionRef)

	var payment *domain.Payment
	var farmerID string
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetPayment(ctx, paymentID, true)
		if err != nil {
			return err
		}
		bid, err := tx.GetBid(ctx, p.BidID, false)
		if err != nil {
			return err
		}
		if bid.BrokerID != brokerID {
			return domain.Unauthorized("payment belongs to another broker's bid")
		}
		if p.Status != domain.PaymentPending {
			return domain.InvalidState("payment is %s, not pending", p.Status)
		}
		if transactionRef != "" {
			if other, err := tx.PaymentByTransactionID(ctx, transactionRef); err == nil && other.ID != p.ID {
				return domain.Conflict("transaction id already recorded")
			} else if err != nil && domain.KindOf(err) != domain.KindNotFound {
				return err
			}
			p.TransactionID = &transactionRef
			p.Method = domain.MethodManual
		}
		p.Status = domain.PaymentPaid
		p.UpdatedAt = s.timestamp()
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		listing, err := tx.GetListing(ctx, bid.ListingID, false)
		if err != nil {
			return err
		}
		farmerID = listing.FarmerID
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.PaymentTransitions.WithLabelValues(domain.PaymentPaid).Inc()
	slog.InfoContext(ctx, "payment confirmed manually", "payment_id", payment.ID, "broker_id", brokerID)
	s.notifyPaid(ctx, payment, farmerID)
	return payment, nil
}

func (s *Service) notifyPaid(ctx context.Context, p *domain.Payment, farmerID string) {
	s.notify.Notify(ctx, alerts.Event{
		Type:        alerts.TaskPaymentPaid,
		RecipientID: farmerID,
		BidID:       p.BidID,
		PaymentID:   p.ID,
		Amount:      p.Amount.StringFixed(2),
		OccurredAt:  p.UpdatedAt,
	})
}

// History is a party's payments with running totals.
type History struct {
	Payments      []domain.Payment `json:"payments"`
	TotalPaid     decimal.Decimal  `json:"total_paid"`
	TotalReleased decimal.Decimal  `json:"total_released"`
}

// History lists payments for a broker's bids or a farmer's listings. Admins
// see everything.
func (s *Service) History(ctx context.Context, userID, role string) (*History, error) {
	var f store.PaymentFilter
	switch role {
	case domain.RoleBroker:
		f.BrokerID = userID
	case domain.RoleFarmer:
		f.FarmerID = userID
	case domain.RoleAdmin:
	default:
		return nil, domain.Unauthorized("unknown role")
	}

	h := History{Payments: []domain.Payment{}, TotalPaid: decimal.Zero, TotalReleased: decimal.Zero}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		list, err := tx.ListPayments(ctx, f)
		if err != nil {
			return err
		}
		h.Payments = append(h.Payments, list...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, p := range h.Payments {
		switch p.Status {
		case domain.PaymentPaid:
			h.TotalPaid = h.TotalPaid.Add(p.Amount)
		case domain.PaymentReleased:
			h.TotalPaid = h.TotalPaid.Add(p.Amount)
			h.TotalReleased = h.TotalReleased.Add(p.Amount)
		}
	}
	return &h, nil
}

// Get returns one payment to a party of its bid.
func (s *Service) Get(ctx context.Context, userID, role, paymentID string) (*domain.Payment, error) {
	var out *domain.Payment
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetPayment(ctx, paymentID, false)
		if err != nil {
			return err
		}
		bid, err := tx.GetBid(ctx, p.BidID, false)
		if err != nil {
			return err
		}
		listing, err := tx.GetListing(ctx, bid.ListingID, false)
		if err != nil {
			return err
		}
		if role != domain.RoleAdmin && bid.BrokerID != userID && listing.FarmerID != userID {
			return domain.Unauthorized("not a party to this payment")
		}
		out = p
		return nil
	})
	return out, err
}
