package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies service failures so handlers can map them to
// transport responses without string matching.
type ErrorKind string

const (
	ErrKindValidation ErrorKind = "validation"  // bad input, nothing mutated
	ErrKindSignature  ErrorKind = "signature"   // signature mismatch, potential security event
	ErrKindNotFound   ErrorKind = "not_found"   // missing record
	ErrKindGateway    ErrorKind = "gateway"     // gateway call failed or returned an unexpected status
	ErrKindForbidden  ErrorKind = "forbidden"   // caller does not own the resource
)

// ServiceError carries a kind alongside the message. Wraps an underlying
// error when there is one.
type ServiceError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func ValidationError(format string, args ...interface{}) error {
	return &ServiceError{Kind: ErrKindValidation, Message: fmt.Sprintf(format, args...)}
}

func SignatureError(format string, args ...interface{}) error {
	return &ServiceError{Kind: ErrKindSignature, Message: fmt.Sprintf(format, args...)}
}

func NotFoundError(format string, args ...interface{}) error {
	return &ServiceError{Kind: ErrKindNotFound, Message: fmt.Sprintf(format, args...)}
}

func ForbiddenError(format string, args ...interface{}) error {
	return &ServiceError{Kind: ErrKindForbidden, Message: fmt.Sprintf(format, args...)}
}

func GatewayError(err error, format string, args ...interface{}) error {
	return &ServiceError{Kind: ErrKindGateway, Message: fmt.Sprintf(format, args...), Err: err}
}

// IsKind reports whether err is a ServiceError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Kind == kind
}

// KindOf returns the error's kind, or empty for non-service errors.
func KindOf(err error) ErrorKind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
