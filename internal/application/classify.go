package application

import (
	"context"
	"errors"
	"net"
	"syscall"

	"github.com/bnema/sessionpool/internal/domain"
)

// normalizeError gives a failure that produced no response its native code.
// Errors that already carry a service code pass through.
func normalizeError(err error) *domain.ServiceError {
	if err == nil {
		return nil
	}

	var serviceErr *domain.ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}

	return &domain.ServiceError{
		Code:    transportCode(err),
		Message: err.Error(),
		Cause:   err,
	}
}

func transportCode(err error) string {
	var dnsErr *net.DNSError
	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.CodeTimeout
	case errors.Is(err, context.Canceled):
		return domain.CodeCanceled
	case errors.Is(err, syscall.ECONNREFUSED):
		return domain.CodeConnectionRefused
	case errors.Is(err, syscall.ECONNRESET):
		return domain.CodeConnectionReset
	case errors.As(err, &dnsErr):
		return domain.CodeHostNotFound
	case errors.As(err, &netErr) && netErr.Timeout():
		return domain.CodeTimeout
	default:
		return domain.CodeTransport
	}
}
