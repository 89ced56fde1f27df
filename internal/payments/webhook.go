package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw callback body.
const SignatureHeader = "X-Payhero-Signature"

// VerifySignature compares the header against the body's HMAC in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// Sign returns the signature a sender computes for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Callback is the part of a gateway callback needed for reconciliation.
type Callback struct {
	Reference     string
	ResultCode    int
	HasResultCode bool
	Status        string
	Receipt       string
	CheckoutID    string
	ResultDesc    string
}

// Outcome of a callback for a pending payment.
type Outcome int

const (
	OutcomeNoChange Outcome = iota
	OutcomePaid
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePaid:
		return "paid"
	case OutcomeFailed:
		return "failed"
	}
	return "no_change"
}

// ParseCallback reads either a nested "response" object or flat fields.
func ParseCallback(body []byte) (*Callback, error) {
	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("malformed callback: %w", err)
	}
	fields := envelope
	if nested, ok := envelope["response"].(map[string]any); ok {
		fields = nested
	}

	cb := &Callback{
		Reference:  first(fields, "ExternalReference", "external_reference", "reference"),
		Status:     strings.ToLower(first(fields, "Status", "status")),
		Receipt:    first(fields, "MpesaReceiptNumber", "mpesa_receipt_number", "receipt_number"),
		CheckoutID: first(fields, "CheckoutRequestID", "checkout_request_id", "transaction_id"),
		ResultDesc: first(fields, "ResultDesc", "result_desc"),
	}
	if code := first(fields, "ResultCode", "result_code"); code != "" {
		n, err := strconv.Atoi(code)
		if err != nil {
			return nil, fmt.Errorf("malformed result code %q", code)
		}
		cb.ResultCode, cb.HasResultCode = n, true
	}
	return cb, nil
}

func first(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := scalar(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// Outcome maps the result code, or the status when no code is present.
func (c *Callback) Outcome() Outcome {
	if c.HasResultCode {
		if c.ResultCode == 0 {
			return OutcomePaid
		}
		return OutcomeFailed
	}
	switch c.Status {
	case "success", "successful", "completed", "paid":
		return OutcomePaid
	case "failed", "cancelled", "canceled":
		return OutcomeFailed
	}
	return OutcomeNoChange
}

const referencePrefix = "BID_"

// Reference builds the external reference for a charge on bidID.
func Reference(bidID string, at time.Time) string {
	return fmt.Sprintf("%s%s_%d", referencePrefix, bidID, at.Unix())
}

// BidIDFromReference extracts the bid id from a BID_<bidId>_<unix> reference.
func BidIDFromReference(ref string) (string, bool) {
	if !strings.HasPrefix(ref, referencePrefix) {
		return "", false
	}
	rest := strings.TrimPrefix(ref, referencePrefix)
	i := strings.LastIndex(rest, "_")
	if i <= 0 {
		return "", false
	}
	if _, err := strconv.ParseInt(rest[i+1:], 10, 64); err != nil {
		return "", false
	}
	return rest[:i], true
}
