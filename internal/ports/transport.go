package ports

import (
	"context"

	"github.com/bnema/sessionpool/internal/domain"
)

// Transport performs one network call. It returns an error only when no response was received.
type Transport interface {
	Execute(ctx context.Context, descriptor domain.Descriptor) (domain.RawResponse, error)
}
