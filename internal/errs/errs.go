// Package errs defines the error taxonomy shared across the pipeline.
// Every adapter and engine returns one of these kinds rather than an ad
// hoc error or a panic; callers compose with errors.Is and errors.As.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the named error categories.
type Kind string

const (
	// KindTransport covers network/transport failures, retried with backoff.
	KindTransport Kind = "transport_failure"
	// KindAuth covers fatal authentication failures.
	KindAuth Kind = "auth_failure"
	// KindProtocol covers malformed frames / sequence gaps requiring resync.
	KindProtocol Kind = "protocol_failure"
	// KindDataUnavailable covers missing orderbook/odds/live data.
	KindDataUnavailable Kind = "data_unavailable"
	// KindRiskRejection covers a non-fatal RiskGate rejection.
	KindRiskRejection Kind = "risk_rejection"
	// KindInvariantViolation covers a fatal, operation-local invariant break.
	KindInvariantViolation Kind = "invariant_violation"
)

// Error is the typed error value carried through the pipeline.
type Error struct {
	Kind    Kind
	Op      string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is supports errors.Is(err, errs.Transport) style sentinel checks against
// a Kind by comparing Kind fields of two *Error values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newKind(kind Kind) *Error { return &Error{Kind: kind} }

// Sentinel values for errors.Is comparisons against a bare kind, with no
// operation or wrapped cause attached.
var (
	Transport          = newKind(KindTransport)
	Auth                = newKind(KindAuth)
	Protocol            = newKind(KindProtocol)
	DataUnavailable     = newKind(KindDataUnavailable)
	RiskRejectionErr    = newKind(KindRiskRejection)
	InvariantViolation  = newKind(KindInvariantViolation)
)

// New builds an *Error for op, wrapping cause (which may be nil).
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Wrapped: cause}
}

// Is reports whether the first *Error in err's chain carries the given
// Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
