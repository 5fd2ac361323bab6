// Package apperr classifies the errors returned by the marketplace services
// so transports can map them to status codes without string matching.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies an error for handling purposes.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindValidation
	KindInvalidInstanceType
	KindConflict
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	case KindInvalidInstanceType:
		return "invalid_instance_type"
	case KindConflict:
		return "conflict"
	case KindIntegrity:
		return "integrity"
	default:
		return "internal"
	}
}

// Sentinels for errors.Is checks against a kind.
var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrValidation          = errors.New("validation failed")
	ErrInvalidInstanceType = errors.New("invalid instance type")
	ErrConflict            = errors.New("conflict")
	ErrIntegrity           = errors.New("integrity fault")
	ErrInternal            = errors.New("internal error")
)

// Error is a classified error. Key is the message key shown to clients;
// Fields holds per-field message keys for validation errors.
type Error struct {
	Kind   Kind
	Key    string
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Key != "" {
		b.WriteString(": ")
		b.WriteString(e.Key)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", k, e.Fields[k])
		}
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return target == sentinel(e.Kind)
}

func sentinel(k Kind) error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindForbidden:
		return ErrForbidden
	case KindValidation:
		return ErrValidation
	case KindInvalidInstanceType:
		return ErrInvalidInstanceType
	case KindConflict:
		return ErrConflict
	case KindIntegrity:
		return ErrIntegrity
	default:
		return ErrInternal
	}
}

func NotFound(key string) error {
	return &Error{Kind: KindNotFound, Key: key}
}

func Forbidden(key string) error {
	return &Error{Kind: KindForbidden, Key: key}
}

// Validation builds a validation error from a field to message-key map.
func Validation(fields map[string]string) error {
	return &Error{Kind: KindValidation, Key: "validation.failed", Fields: fields}
}

// Field is shorthand for a validation error on a single field.
func Field(field, key string) error {
	return Validation(map[string]string{field: key})
}

func InvalidInstanceType(instanceType string) error {
	return &Error{Kind: KindInvalidInstanceType, Key: "domain.review.validation.invalid_instance_type",
		Err: fmt.Errorf("instance type %q", instanceType)}
}

func Conflict(key string) error {
	return &Error{Kind: KindConflict, Key: key}
}

// Integrity reports a dangling reference found while projecting. These are
// data faults and must not be retried.
func Integrity(format string, args ...any) error {
	return &Error{Kind: KindIntegrity, Key: "integrity.dangling_reference", Err: fmt.Errorf(format, args...)}
}

// Internal wraps an unexpected failure of a collaborator.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindInternal, Key: "internal_error", Err: fmt.Errorf("%s: %w", op, err)}
}

// KindOf returns the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// HTTPStatus maps err to the status code transports respond with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindInvalidInstanceType:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
