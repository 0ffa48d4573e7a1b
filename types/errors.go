package types

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure by how the session reacts to it.
type Kind string

const (
	// KindConfig is a malformed or missing argument rejected before any I/O.
	KindConfig Kind = "config"
	// KindAuth is a failed credential exchange. The session never starts.
	KindAuth Kind = "auth"
	// KindTransport is a connect, send or receive failure on the recognition socket.
	KindTransport Kind = "transport"
	// KindProtocol is an inbound payload that could not be decoded. It is skipped.
	KindProtocol Kind = "protocol"
	// KindRemote is an explicit error message sent by the recognition service.
	KindRemote Kind = "remote"
)

// Error carries a Kind alongside the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Cause lets errors.Cause from pkg/errors see through the wrapper.
func (e *Error) Cause() error { return e.Err }

// E wraps err with a kind and operation name. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a new error of the given kind.
func Errorf(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

// KindOf reports the kind of the outermost *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
