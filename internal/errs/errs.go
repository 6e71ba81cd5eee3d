// Package errs defines the error taxonomy shared by the catalog, the index
// handles, the peer client, and both API surfaces. Every failure that crosses
// a component boundary is tagged with a Kind so the boundaries can map it
// deterministically to an HTTP status.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error.
type Kind uint8

const (
	// NotFound means the named index is unknown locally and remotely.
	NotFound Kind = iota
	// QueryParse means the request body or query tree is invalid.
	QueryParse
	// Engine means the inverted-index library failed an operation.
	Engine
	// DataLoss means a persisted manifest is unreadable.
	DataLoss
	// Exists means index creation collided with an existing name.
	Exists
	// Transport means a peer RPC failed before returning a semantic result.
	Transport
	// Unimplemented means the verb is recognized but not supported.
	Unimplemented
)

var kindNames = map[Kind]string{
	NotFound:      "not_found",
	QueryParse:    "query_parse",
	Engine:        "engine",
	DataLoss:      "data_loss",
	Exists:        "exists",
	Transport:     "transport",
	Unimplemented: "unimplemented",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind is the inverse of Kind.String. Unknown names map to Engine so a
// peer running a newer build still surfaces as an internal failure.
func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	return Engine
}

// severity orders kinds for the executor's all-participants-failed fold:
// internal failures outrank transport failures outrank not-found.
var severity = map[Kind]int{
	Engine:    3,
	DataLoss:  3,
	Transport: 2,
	NotFound:  1,
}

// MoreSevere reports whether a outranks b.
func MoreSevere(a, b Kind) bool {
	return severity[a] > severity[b]
}

// HTTPStatus returns the gateway status code for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case NotFound:
		return http.StatusNotFound
	case QueryParse, Exists:
		return http.StatusBadRequest
	case Unimplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// Error is a kinded error. The zero Kind is NotFound, so always construct
// through New or Wrap.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a kinded error with a formatted message.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags cause with a kind and a context message. A nil cause returns nil.
func Wrap(kind Kind, cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf extracts the kind from err. Untagged errors are Engine failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Engine
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
