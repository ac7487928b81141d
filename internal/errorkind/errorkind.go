// Package errorkind defines the closed set of error kinds the Quantum
// Dispatch Core surfaces to its callers (spec §7). Every operation that can
// fail documents which kinds it may produce; callers distinguish failures by
// kind, never by matching on error text.
package errorkind

import (
	"errors"
	"fmt"
)

// Kind is a closed enumeration of the error kinds the dispatch core may
// surface. It satisfies the error interface directly so a bare Kind can be
// returned (or wrapped) from any operation.
type Kind string

const (
	// Overloaded is returned at enqueue time when the queue is at capacity.
	Overloaded Kind = "overloaded"
	// Timeout is returned when a deadline is exceeded at any layer.
	Timeout Kind = "timeout"
	// Unavailable is returned when a backend cannot be reached.
	Unavailable Kind = "unavailable"
	// Protocol is returned when a backend reply is malformed.
	Protocol Kind = "protocol"
	// StoreFailed is returned when file I/O fails during a persist operation.
	StoreFailed Kind = "store_failed"
	// Cancelled is returned when a request is cancelled before completion.
	Cancelled Kind = "cancelled"
	// Degraded is not a failure: it accompanies a successful reply whose
	// metadata records that one or more sub-calls fell back.
	Degraded Kind = "degraded"
)

func (k Kind) Error() string {
	return string(k)
}

// wrapped pairs a Kind with an underlying cause so context survives %w
// wrapping while the Kind remains extractable via Of.
type wrapped struct {
	kind  Kind
	cause error
}

func (w *wrapped) Error() string {
	if w.cause == nil {
		return string(w.kind)
	}
	return fmt.Sprintf("%s: %v", w.kind, w.cause)
}

func (w *wrapped) Unwrap() error { return w.cause }

// Is reports whether target is the same Kind, so errors.Is(err, errorkind.Timeout)
// works whether err is a bare Kind or a Wrap()-ed Kind.
func (w *wrapped) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == w.kind
}

// Wrap produces an error of the given kind that preserves cause for logging
// and unwrapping, while still satisfying errors.Is(err, kind).
func Wrap(kind Kind, cause error) error {
	if cause == nil {
		return kind
	}
	return &wrapped{kind: kind, cause: cause}
}

// Of extracts the Kind from err, looking through wrapping via errors.As/Is.
// It reports ok=false when err carries none of the closed set of kinds.
func Of(err error) (Kind, bool) {
	if err == nil {
		return "", false
	}
	var k Kind
	if errors.As(err, &k) {
		return k, true
	}
	var w *wrapped
	if errors.As(err, &w) {
		return w.kind, true
	}
	return "", false
}
