package models

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine-readable class of a failure.
type ErrorCode string

const (
	CodeProviderUnavailable   ErrorCode = "provider_unavailable"
	CodeFileDeliveryFailed    ErrorCode = "file_delivery_failed"
	CodeValidationFailed      ErrorCode = "validation_failed"
	CodeDispatcherUnavailable ErrorCode = "dispatcher_unavailable"
	CodeUnsupportedVreVariant ErrorCode = "unsupported_vre_variant"
	CodeToolResolutionFailed  ErrorCode = "tool_resolution_failed"
	CodeConsumerUnreachable   ErrorCode = "consumer_unreachable"
)

// Error is a classified failure with optional path context.
type Error struct {
	Code    ErrorCode
	Message string
	Path    string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds an *Error without a cause.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around cause.
func Wrap(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
