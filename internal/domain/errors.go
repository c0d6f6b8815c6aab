package domain

import (
	"errors"
	"fmt"
)

const (
	CodeOK                    = "0"
	CodeInvalidToken          = "952"
	CodeServiceUnavailable    = "1630"
	MessageServiceUnavailable = "The Data API is currently unavailable"

	CodeTimeout           = "ETIMEDOUT"
	CodeCanceled          = "ECANCELED"
	CodeConnectionRefused = "ECONNREFUSED"
	CodeConnectionReset   = "ECONNRESET"
	CodeHostNotFound      = "ENOTFOUND"
	CodeTransport         = "ETRANSPORT"
	CodeClosed            = "ECLOSED"
)

var (
	ErrSecretNotFound  = errors.New("secret not found")
	ErrMissingUsername = errors.New("username is required")
	ErrMissingPassword = errors.New("password is required")

	ErrSchedulerClosed = &ServiceError{Code: CodeClosed, Message: "scheduler closed"}
)

// ServiceError is the {code, message} shape every failed request settles with.
type ServiceError struct {
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("code %s", e.Code)
	}
	return fmt.Sprintf("%s (code %s)", e.Message, e.Code)
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// ServiceUnavailable wraps a malformed or gateway failure into the fixed unavailable error.
func ServiceUnavailable(cause error) *ServiceError {
	return &ServiceError{
		Code:    CodeServiceUnavailable,
		Message: MessageServiceUnavailable,
		Cause:   cause,
	}
}

func IsInvalidToken(err error) bool {
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		return false
	}

	return serviceErr.Code == CodeInvalidToken
}

// ErrorCode returns the service code carried by err, or "" when err is not a ServiceError.
func ErrorCode(err error) string {
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		return ""
	}

	return serviceErr.Code
}
