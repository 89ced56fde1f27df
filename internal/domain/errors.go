package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for callers and for HTTP mapping.
type Kind string

const (
	KindValidation            Kind = "validation"
	KindInvalidState          Kind = "invalid_state"
	KindUnauthorized          Kind = "unauthorized"
	KindNotFound              Kind = "not_found"
	KindInsufficientInventory Kind = "insufficient_inventory"
	KindConflict              Kind = "conflict"
	KindGatewayUnavailable    Kind = "gateway_unavailable"
	KindGatewayRejected       Kind = "gateway_rejected"
	KindSignatureInvalid      Kind = "signature_invalid"
)

// Error is a per-request failure. Nothing in the core is fatal to the process.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrInvalidState) works
// regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation            = &Error{Kind: KindValidation, Msg: "validation failed"}
	ErrInvalidState          = &Error{Kind: KindInvalidState, Msg: "invalid state"}
	ErrUnauthorized          = &Error{Kind: KindUnauthorized, Msg: "unauthorized"}
	ErrNotFound              = &Error{Kind: KindNotFound, Msg: "not found"}
	ErrInsufficientInventory = &Error{Kind: KindInsufficientInventory, Msg: "insufficient inventory"}
	ErrConflict              = &Error{Kind: KindConflict, Msg: "conflict"}
	ErrGatewayUnavailable    = &Error{Kind: KindGatewayUnavailable, Msg: "payment gateway unavailable"}
	ErrGatewayRejected       = &Error{Kind: KindGatewayRejected, Msg: "payment gateway rejected the request"}
	ErrSignatureInvalid      = &Error{Kind: KindSignatureInvalid, Msg: "invalid signature"}
)

func newErr(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error { return newErr(KindValidation, format, args...) }

func InvalidState(format string, args ...any) error { return newErr(KindInvalidState, format, args...) }

func Unauthorized(format string, args ...any) error { return newErr(KindUnauthorized, format, args...) }

func NotFound(format string, args ...any) error { return newErr(KindNotFound, format, args...) }

func InsufficientInventory(format string, args ...any) error {
	return newErr(KindInsufficientInventory, format, args...)
}

func Conflict(format string, args ...any) error { return newErr(KindConflict, format, args...) }

func GatewayRejected(format string, args ...any) error {
	return newErr(KindGatewayRejected, format, args...)
}

func SignatureInvalid(format string, args ...any) error {
	return newErr(KindSignatureInvalid, format, args...)
}

// GatewayUnavailable wraps a transport failure talking to the gateway.
func GatewayUnavailable(err error) error {
	return &Error{Kind: KindGatewayUnavailable, Msg: "payment gateway unavailable", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" for
// unclassified (internal) errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether the caller may retry the same operation unchanged.
func Retryable(err error) bool {
	return KindOf(err) == KindGatewayUnavailable
}
