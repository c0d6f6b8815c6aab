package ports

import (
	"context"

	"github.com/bnema/sessionpool/internal/domain"
)

type SessionRepository interface {
	Load(ctx context.Context, profile string) ([]domain.SessionRecord, error)
	Save(ctx context.Context, profile string, records []domain.SessionRecord) error
}
