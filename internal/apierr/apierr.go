// Package apierr defines the error taxonomy shared by every handle in the
// project model. Application errors (not found, disposed, constraint,
// invalid link target) guarantee the failed call had no effect. Transport
// errors guarantee nothing: the backing service may or may not have applied
// the change, and the caller decides whether to retry.
package apierr

import (
	"errors"
	"fmt"
)

// Sentinel errors for application-level failures.
var (
	// ErrNotFound indicates an identifier that does not resolve to an entity.
	ErrNotFound = errors.New("not found")
	// ErrDisposed indicates an entity whose owning context has been torn down.
	ErrDisposed = errors.New("disposed")
	// ErrConstraint indicates a broken semantic rule (illegal name, duplicate,
	// reserved attribute, missing status, rename of a fixed type).
	ErrConstraint = errors.New("constraint violation")
	// ErrInvalidLinkTarget indicates a link to a non-linkable requirement or
	// to a target outside the requirement's project.
	ErrInvalidLinkTarget = errors.New("invalid link target")
)

// Kind classifies an error for callers that branch on category rather than
// on a specific sentinel.
type Kind int

const (
	KindNone Kind = iota
	KindNotFound
	KindDisposed
	KindConstraint
	KindInvalidLinkTarget
	KindTransport
	KindUnknown
)

var kindNames = [...]string{
	KindNone:              "none",
	KindNotFound:          "not_found",
	KindDisposed:          "disposed",
	KindConstraint:        "constraint_violation",
	KindInvalidLinkTarget: "invalid_link_target",
	KindTransport:         "transport_failure",
	KindUnknown:           "unknown",
}

// String returns the snake_case name used in logs and metric labels.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Retryable reports whether a caller may reasonably retry an operation that
// failed with this kind. Only transport failures qualify.
func (k Kind) Retryable() bool {
	return k == KindTransport
}

// KindOf maps err to its Kind. A nil error is KindNone. Transport wrapping
// wins over any application sentinel it may contain.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case IsTransport(err):
		return KindTransport
	case errors.Is(err, ErrDisposed):
		return KindDisposed
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConstraint):
		return KindConstraint
	case errors.Is(err, ErrInvalidLinkTarget):
		return KindInvalidLinkTarget
	default:
		return KindUnknown
	}
}

// TransportError marks a failure in communication with a backing service.
type TransportError struct {
	Op  string
	err error
}

func (e *TransportError) Error() string {
	if e.Op == "" {
		return "transport failure: " + e.err.Error()
	}
	return e.Op + ": transport failure: " + e.err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.err
}

// NewTransportError wraps err as a transport failure of operation op.
// A nil err yields nil.
func NewTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, err: err}
}

// IsTransport reports whether err is, or wraps, a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// NotFound returns ErrNotFound annotated with what was looked up.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Disposed returns ErrDisposed annotated with the rejected operation.
func Disposed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDisposed, fmt.Sprintf(format, args...))
}

// Constraint returns ErrConstraint annotated with the broken rule.
func Constraint(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConstraint, fmt.Sprintf(format, args...))
}

// InvalidLinkTarget returns ErrInvalidLinkTarget annotated with the reason.
func InvalidLinkTarget(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidLinkTarget, fmt.Sprintf(format, args...))
}
