package alerts

import (
	"fmt"
	"time"
)

// Task type constants
const (
	TaskBidPlaced       = "notify:bid_placed"
	TaskBidAccepted     = "notify:bid_accepted"
	TaskBidRejected     = "notify:bid_rejected"
	TaskPaymentPaid     = "notify:payment_paid"
	TaskPaymentReleased = "notify:payment_released"
)

// QueueName is the asynq queue every notification is enqueued on.
const QueueName = "notifications"

// Event is the task payload. Amounts travel as decimal strings.
type Event struct {
	Type        string    `json:"type"`
	RecipientID string    `json:"recipient_id"`
	BidID       string    `json:"bid_id"`
	ListingID   string    `json:"listing_id,omitempty"`
	PaymentID   string    `json:"payment_id,omitempty"`
	ProduceType string    `json:"produce_type,omitempty"`
	Quantity    string    `json:"quantity,omitempty"`
	Amount      string    `json:"amount,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Common envelope for email-like notifications
type EmailEnvelope struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Envelope renders the e-mail for ev addressed to the given recipient.
func Envelope(ev Event, to, name string) EmailEnvelope {
	env := EmailEnvelope{To: to}
	switch ev.Type {
	case TaskBidPlaced:
		env.Subject = "New bid on your listing"
		env.Body = fmt.Sprintf("Hi %s, a broker bid for %s %s on your listing. Total KES %s.",
			name, ev.Quantity, ev.ProduceType, ev.Amount)
	case TaskBidAccepted:
		env.Subject = "Your bid was accepted"
		env.Body = fmt.Sprintf("Hi %s, your bid %s for %s %s was accepted. Total KES %s. You can now pay via M-Pesa.",
			name, ev.BidID, ev.Quantity, ev.ProduceType, ev.Amount)
	case TaskBidRejected:
		env.Subject = "Your bid was rejected"
		env.Body = fmt.Sprintf("Hi %s, your bid %s for %s %s was rejected.", name, ev.BidID, ev.Quantity, ev.ProduceType)
		if ev.Reason != "" {
			env.Body += " Reason: " + ev.Reason + "."
		}
	case TaskPaymentPaid:
		env.Subject = "Payment received"
		env.Body = fmt.Sprintf("Hi %s, KES %s for bid %s has been paid and is held until collection.", name, ev.Amount, ev.BidID)
	case TaskPaymentReleased:
		env.Subject = "Payment released"
		env.Body = fmt.Sprintf("Hi %s, the produce for bid %s was collected and KES %s has been released to you.",
			name, ev.BidID, ev.Amount)
	default:
		env.Subject = "Umoja notification"
		env.Body = fmt.Sprintf("Hi %s, there is an update on bid %s.", name, ev.BidID)
	}
	return env
}
