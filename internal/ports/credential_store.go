package ports

import (
	"context"

	"github.com/bnema/sessionpool/internal/domain"
)

type CredentialStore interface {
	Exchange(ctx context.Context, credentials domain.BasicCredentials) (domain.Token, error)
}

// TokenRevoker is implemented by credential stores that can end a session server side.
type TokenRevoker interface {
	Revoke(ctx context.Context, token string) error
}
