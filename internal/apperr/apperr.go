// Package apperr defines the error taxonomy shared by the ledger, the
// directory, the aggregator and the transport layer.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindIntegrity
	KindStorage
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindIntegrity:
		return "integrity"
	case KindStorage:
		return "storage"
	case KindExternal:
		return "external_service"
	default:
		return "unknown"
	}
}

// FieldError points at a specific input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// Error is a classified error with the operation that produced it.
type Error struct {
	Kind   Kind
	Op     string
	Err    error
	Fields []FieldError
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString(e.Kind.String())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error. A nil err yields an error carrying only the kind.
func E(kind Kind, op string, err error, fields ...FieldError) error {
	return &Error{Kind: kind, Op: op, Err: err, Fields: fields}
}

// Validation is shorthand for a formatted validation error.
func Validation(op, format string, args ...any) error {
	return E(KindValidation, op, fmt.Errorf(format, args...))
}

// NotFound is shorthand for a formatted not-found error.
func NotFound(op, format string, args ...any) error {
	return E(KindNotFound, op, fmt.Errorf(format, args...))
}

// Conflict is shorthand for a formatted conflict error.
func Conflict(op, format string, args ...any) error {
	return E(KindConflict, op, fmt.Errorf(format, args...))
}

// Storage wraps a backing-store failure.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return E(KindStorage, op, err)
}

// External wraps a notifier or mirror failure.
func External(op string, err error) error {
	if err == nil {
		return nil
	}
	return E(KindExternal, op, err)
}

// KindOf returns the kind of the outermost classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// FieldsOf returns field level details attached to err, if any.
func FieldsOf(err error) []FieldError {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
