// Package svcerr defines the error taxonomy of spec §7. Each kind wraps
// an underlying cause the way api/utils.httpError wraps one for the
// HTTP layer; here the wrapping additionally carries a Kind so callers
// (including the HTTP dispatch shell) can classify an error without
// string-matching.
package svcerr

import "fmt"

// Kind classifies an error per spec §7.
type Kind int

const (
	Validation Kind = iota
	Authorization
	State
	Invariant
	Proof
	Transport
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "ValidationError"
	case Authorization:
		return "AuthorizationError"
	case State:
		return "StateError"
	case Invariant:
		return "InvariantError"
	case Proof:
		return "ProofError"
	case Transport:
		return "TransportError"
	default:
		return "UnknownError"
	}
}

// Error is a classified, causal error.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

func newf(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, cause: fmt.Errorf(format, args...)}
}

// Validationf builds a ValidationError.
func Validationf(format string, args ...interface{}) error { return newf(Validation, format, args...) }

// Authorizationf builds an AuthorizationError.
func Authorizationf(format string, args ...interface{}) error {
	return newf(Authorization, format, args...)
}

// Statef builds a StateError. Per spec §7 the message should include the
// entity id and current stage; callers are expected to format those into
// format/args themselves.
func Statef(format string, args ...interface{}) error { return newf(State, format, args...) }

// Invariantf builds an InvariantError.
func Invariantf(format string, args ...interface{}) error { return newf(Invariant, format, args...) }

// Prooff builds a ProofError.
func Prooff(format string, args ...interface{}) error { return newf(Proof, format, args...) }

// Transportf builds a TransportError.
func Transportf(format string, args ...interface{}) error { return newf(Transport, format, args...) }

// Is reports whether err is itself an *Error of kind k, as in
// svcerr.Validation.Is(err). It does not unwrap err.
func (k Kind) Is(err error) bool {
	se, ok := err.(*Error)
	return ok && se.Kind == k
}

// Fatal represents spec §7's "Fatal" category: conditions with no
// compensating action, which must halt the handler loudly rather than
// be swallowed. Callers invoke Panic to do so; the HTTP dispatch shell
// recovers it into a 500 plus a loud log line rather than crashing the
// whole process, but direct (non-HTTP) callers — e.g. a timer loop —
// are expected to let it propagate and be logged by the loop itself.
type Fatal struct {
	cause error
}

func (f *Fatal) Error() string { return fmt.Sprintf("FATAL: %s", f.cause) }

// Panic raises a Fatal as a Go panic, per spec §7.
func Panic(format string, args ...interface{}) {
	panic(&Fatal{cause: fmt.Errorf(format, args...)})
}
