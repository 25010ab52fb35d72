package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeInvalidArgument  ErrorCode = "INVALID_ARGUMENT"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeUnavailable      ErrorCode = "UNAVAILABLE"
	CodeFailedPrecond    ErrorCode = "FAILED_PRECONDITION"
	CodeInternal         ErrorCode = "INTERNAL"
	CodeCanceled         ErrorCode = "CANCELED"
	CodeDeadlineExceeded ErrorCode = "DEADLINE_EXCEEDED"
)

var (
	ErrToolNotFound      = errors.New("tool not found")
	ErrNamespaceNotFound = errors.New("namespace not found")
	ErrInvalidArguments  = errors.New("invalid tool arguments")
	ErrRegistryClosed    = errors.New("registry closed")
	ErrInvalidConfig     = errors.New("invalid config")
	ErrMappingMismatch   = errors.New("name mapping does not match function specs")
)

type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
	Meta    map[string]string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op == "" {
		if msg == "" {
			return string(e.Code)
		}
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func E(code ErrorCode, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Code:    code,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

func Wrap(code ErrorCode, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Op != "" || op == "" {
			return existing
		}
		return &Error{
			Code:    existing.Code,
			Op:      op,
			Message: existing.Message,
			Cause:   existing.Cause,
			Meta:    existing.Meta,
		}
	}
	return E(code, op, "", err)
}

// SchemaError reports a tool whose parameter schema cannot be expressed in
// a provider function-calling format.
type SchemaError struct {
	Tool   ToolKey
	Reason string
	Cause  error
}

func (e *SchemaError) Error() string {
	if e == nil {
		return ""
	}
	reason := e.Reason
	if reason == "" && e.Cause != nil {
		reason = e.Cause.Error()
	}
	return fmt.Sprintf("tool %s: unsupported parameter schema: %s", e.Tool, reason)
}

func (e *SchemaError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// SerializationError reports a tool response that could not be encoded.
type SerializationError struct {
	Kind  string
	Cause error
}

func (e *SerializationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("serialize %s payload: %v", e.Kind, e.Cause)
}

func (e *SerializationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func CodeFrom(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Code != "" {
		return domainErr.Code, true
	}
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		return CodeInvalidArgument, true
	}
	var serializationErr *SerializationError
	if errors.As(err, &serializationErr) {
		return CodeInternal, true
	}
	switch {
	case errors.Is(err, ErrInvalidArguments), errors.Is(err, ErrInvalidConfig):
		return CodeInvalidArgument, true
	case errors.Is(err, ErrToolNotFound), errors.Is(err, ErrNamespaceNotFound):
		return CodeNotFound, true
	case errors.Is(err, ErrRegistryClosed):
		return CodeUnavailable, true
	case errors.Is(err, ErrMappingMismatch):
		return CodeInternal, true
	default:
		return "", false
	}
}
