package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the core.
var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrVersionConflict   = errors.New("order version conflict")
	ErrDuplicateOrder    = errors.New("duplicate client order id")
	ErrSessionInvalid    = errors.New("broker session invalid")
	ErrBrokerUnavailable = errors.New("broker unavailable")
)

// ValidationError rejects a request before any broker call. Never retried,
// never persisted.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Message
}

// RejectionError is a broker-side business rejection (insufficient balance,
// market closed, risk limit). A normal outcome, not a system fault.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return "broker rejected: " + e.Reason
}

// AuthError classifies authentication failures. Fatal means bad credentials:
// surfaced immediately, never retried.
type AuthError struct {
	Reason string
	Fatal  bool
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Reason
}

// TransientError wraps a failure likely to succeed on retry (timeout,
// connection reset, 5xx-equivalent broker response).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// InvalidTransitionError is returned by the state machine for an edge
// absent from the transition table. The order is left unchanged.
type InvalidTransitionError struct {
	From  OrderStatus
	Event string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s on %s", e.Event, e.From)
}

// IsTransient reports whether err may be retried by the retry policy.
// Session invalidation counts as transient because the coordinator retries
// with a freshly validated session.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, ErrSessionInvalid)
}

// IsRejection reports whether err is a broker business rejection.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}

// IsFatalAuth reports whether err is a credential failure that no retry
// can fix.
func IsFatalAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Fatal
}
