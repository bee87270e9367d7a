// Package apperr defines the error taxonomy shared by the transcription
// pipeline, the batch/async orchestration and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindInternal is an uncategorized failure (including recovered panics).
	KindInternal Kind = iota
	// KindInvalidRequest is a malformed or ambiguous request shape.
	KindInvalidRequest
	// KindConfiguration is an unknown provider/model selection or bad setup.
	KindConfiguration
	// KindUnresolvedReference is a file reference absent from the catalog.
	KindUnresolvedReference
	// KindStorage is an object download failure.
	KindStorage
	// KindCapability is an ASR call failure.
	KindCapability
	// KindPersistence is an upsert that exhausted its retries.
	KindPersistence
	// KindStatusUpdate is a failed status write. Always best-effort.
	KindStatusUpdate
	// KindCatalog is a failed metadata catalog query.
	KindCatalog
)

// String returns the label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindInvalidRequest:
		return "invalid_request"
	case KindConfiguration:
		return "configuration"
	case KindUnresolvedReference:
		return "unresolved_reference"
	case KindStorage:
		return "storage"
	case KindCapability:
		return "capability"
	case KindPersistence:
		return "persistence"
	case KindStatusUpdate:
		return "status_update"
	case KindCatalog:
		return "catalog"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind and operation name. If err already carries a
// classification the outer kind wins.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the outermost classification of err, or KindInternal when
// err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
