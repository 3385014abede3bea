// Package failure classifies ingestion errors into a closed set of kinds so
// callers branch on Kind instead of matching messages.
package failure

import (
	"errors"
	"fmt"
)

// Kind 错误类别
type Kind int

const (
	// Unknown is never produced by the pipeline; KindOf returns it for foreign errors.
	Unknown Kind = iota
	// Resolution: the link is not a recognised Drive link.
	Resolution
	// Transport: network, timeout or HTTP status failure. The only retryable kind.
	Transport
	// Validation: HTML instead of a binary, or a download below the size floor.
	Validation
	// Probe: duration or thumbnail extraction failed. Logged, never fatal.
	Probe
	// Missing: the asset row no longer exists.
	Missing
	// Conflict: another run already owns the asset, or it is not PROCESSING.
	Conflict
)

func (k Kind) String() string {
	switch k {
	case Resolution:
		return "resolution"
	case Transport:
		return "transport"
	case Validation:
		return "validation"
	case Probe:
		return "probe"
	case Missing:
		return "missing"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Retryable reports whether the dispatcher may retry a failure of this kind.
func (k Kind) Retryable() bool {
	return k == Transport
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind and the failing operation.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
