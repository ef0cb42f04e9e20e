// Package errs defines the canonical error taxonomy for broker operations.
//
// Every error that crosses the library boundary is an *Error carrying a
// Kind, a human-readable message, the raw vendor error code (when the
// vendor supplied one), and a retryable flag. Vendor adapters translate
// their wire-level error envelopes into these kinds; callers branch on
// Kind (or errors.As) instead of string-matching vendor messages.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error into the canonical taxonomy.
type Kind string

const (
	KindAuthentication     Kind = "authentication"
	KindRateLimit          Kind = "rate_limit"
	KindInsufficientFunds  Kind = "insufficient_funds"
	KindInstrumentNotFound Kind = "instrument_not_found"
	KindUnsupportedFeature Kind = "unsupported_feature"
	KindOrder              Kind = "order"
	KindInvalidOrder       Kind = "invalid_order"
	KindOrderNotFound      Kind = "order_not_found"
	KindBroker             Kind = "broker"
)

// Error is the canonical broker error. BrokerCode holds the vendor's raw
// error code or error type ("TokenException", "AB1013", ...) and is empty
// for errors the library originated itself.
type Error struct {
	Kind       Kind
	Message    string
	BrokerCode string
	Retryable  bool
	cause      error
}

func (e *Error) Error() string {
	if e.BrokerCode != "" {
		return fmt.Sprintf("%s: %s (broker code %s)", e.Kind, e.Message, e.BrokerCode)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Option customizes an Error at construction time.
type Option func(*Error)

// WithCode attaches the vendor's raw error code.
func WithCode(code string) Option {
	return func(e *Error) { e.BrokerCode = code }
}

// WithCause chains the underlying error.
func WithCause(cause error) Option {
	return func(e *Error) { e.cause = cause }
}

// WithRetryable overrides the kind's default retryable flag.
func WithRetryable(retryable bool) Option {
	return func(e *Error) { e.Retryable = retryable }
}

// New builds an *Error of the given kind. Only rate-limit errors are
// retryable by default.
func New(kind Kind, message string, opts ...Option) *Error {
	e := &Error{
		Kind:      kind,
		Message:   message,
		Retryable: kind == KindRateLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func Authentication(message string, opts ...Option) *Error {
	return New(KindAuthentication, message, opts...)
}

func RateLimit(message string, opts ...Option) *Error {
	return New(KindRateLimit, message, opts...)
}

func InsufficientFunds(message string, opts ...Option) *Error {
	return New(KindInsufficientFunds, message, opts...)
}

func InstrumentNotFound(message string, opts ...Option) *Error {
	return New(KindInstrumentNotFound, message, opts...)
}

func UnsupportedFeature(message string, opts ...Option) *Error {
	return New(KindUnsupportedFeature, message, opts...)
}

func Order(message string, opts ...Option) *Error {
	return New(KindOrder, message, opts...)
}

func InvalidOrder(message string, opts ...Option) *Error {
	return New(KindInvalidOrder, message, opts...)
}

func OrderNotFound(message string, opts ...Option) *Error {
	return New(KindOrderNotFound, message, opts...)
}

func Broker(message string, opts ...Option) *Error {
	return New(KindBroker, message, opts...)
}

// IsKind reports whether err (or anything it wraps) is an *Error of the
// given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsRetryable reports whether err is a canonical error marked retryable.
// Unknown error types are not retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// CodeOf returns the raw vendor code carried by err, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.BrokerCode
	}
	return ""
}
