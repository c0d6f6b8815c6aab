package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/sessionpool/internal/domain"
	"github.com/bnema/sessionpool/internal/ports"
)

const secretNamespace = "sessionpool"

var ErrEmptySecretRef = errors.New("secret reference is empty")

// Service keeps credentials and cached session tokens between runs.
type Service struct {
	repo  ports.SessionRepository
	store ports.SecretStore
	clock ports.Clock
}

func NewService(repo ports.SessionRepository, store ports.SecretStore, clock ports.Clock) *Service {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &Service{
		repo:  repo,
		store: store,
		clock: clock,
	}
}

// PasswordRef is the default secret key holding a profile's password.
func PasswordRef(profile string) string {
	return secretNamespace + "/" + profile + "/password"
}

func sessionTokenRef(profile, sessionID string) string {
	return secretNamespace + "/" + profile + "/sessions/" + sessionID
}

func (s *Service) SetPassword(ctx context.Context, ref, password string) error {
	if strings.TrimSpace(ref) == "" {
		return ErrEmptySecretRef
	}
	if password == "" {
		return domain.ErrMissingPassword
	}

	if err := s.store.Put(ctx, ref, password); err != nil {
		return fmt.Errorf("store password: %w", err)
	}

	return nil
}

func (s *Service) RemovePassword(ctx context.Context, ref string) error {
	if strings.TrimSpace(ref) == "" {
		return ErrEmptySecretRef
	}

	if err := s.store.Delete(ctx, ref); err != nil {
		return fmt.Errorf("delete password: %w", err)
	}

	return nil
}

// Credentials builds the basic credentials used for the token exchange.
func (s *Service) Credentials(ctx context.Context, username, ref string) (domain.BasicCredentials, error) {
	if strings.TrimSpace(ref) == "" {
		return domain.BasicCredentials{}, ErrEmptySecretRef
	}

	password, err := s.store.Get(ctx, ref)
	if err != nil {
		return domain.BasicCredentials{}, fmt.Errorf("load password: %w", err)
	}

	credentials := domain.BasicCredentials{Username: username, Password: password}
	if err := credentials.Validate(); err != nil {
		return domain.BasicCredentials{}, err
	}

	return credentials, nil
}

// LoadSessions returns the cached sessions that are unexpired and still have a retrievable token.
func (s *Service) LoadSessions(ctx context.Context, profile string) ([]domain.Session, error) {
	records, err := s.repo.Load(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("load cached sessions: %w", err)
	}

	now := s.clock.Now()
	sessions := make([]domain.Session, 0, len(records))
	for _, record := range records {
		if !now.Before(record.Expires) {
			continue
		}

		token, err := s.store.Get(ctx, record.TokenRef)
		if err != nil {
			if errors.Is(err, domain.ErrSecretNotFound) {
				continue
			}
			return nil, fmt.Errorf("load session token %s: %w", record.ID, err)
		}

		sessions = append(sessions, domain.Session{
			ID:      record.ID,
			Token:   token,
			Issued:  record.Issued,
			Expires: record.Expires,
			Used:    record.Used,
		})
	}

	return sessions, nil
}

// SaveSessions replaces the cached sessions of a profile. Tokens go to the secret store first;
// they are rolled back if the repository write fails.
func (s *Service) SaveSessions(ctx context.Context, profile string, sessions []domain.Session) error {
	previous, err := s.repo.Load(ctx, profile)
	if err != nil {
		return fmt.Errorf("load cached sessions: %w", err)
	}

	now := s.clock.Now()
	records := make([]domain.SessionRecord, 0, len(sessions))
	written := make([]string, 0, len(sessions))
	for _, session := range sessions {
		if session.Expired(now) || session.Token == "" {
			continue
		}

		ref := sessionTokenRef(profile, session.ID)
		if err := s.store.Put(ctx, ref, session.Token); err != nil {
			if rollbackErr := s.deleteRefs(ctx, written); rollbackErr != nil {
				return fmt.Errorf("store session token and rollback stored tokens: %w", errors.Join(err, rollbackErr))
			}
			return fmt.Errorf("store session token: %w", err)
		}
		written = append(written, ref)

		records = append(records, domain.SessionRecord{
			ID:       session.ID,
			TokenRef: ref,
			Issued:   session.Issued,
			Expires:  session.Expires,
			Used:     session.Used,
		})
	}

	if err := s.repo.Save(ctx, profile, records); err != nil {
		if rollbackErr := s.deleteRefs(ctx, staleRefs(written, recordRefs(previous))); rollbackErr != nil {
			return fmt.Errorf("save cached sessions and rollback stored tokens: %w", errors.Join(err, rollbackErr))
		}
		return fmt.Errorf("save cached sessions: %w", err)
	}

	kept := make([]string, 0, len(records))
	for _, record := range records {
		kept = append(kept, record.TokenRef)
	}
	if err := s.deleteRefs(ctx, staleRefs(recordRefs(previous), kept)); err != nil {
		return fmt.Errorf("delete stale session tokens: %w", err)
	}

	return nil
}

// ClearSessions forgets every cached session of a profile.
func (s *Service) ClearSessions(ctx context.Context, profile string) error {
	previous, err := s.repo.Load(ctx, profile)
	if err != nil {
		return fmt.Errorf("load cached sessions: %w", err)
	}

	if err := s.repo.Save(ctx, profile, nil); err != nil {
		return fmt.Errorf("save cached sessions: %w", err)
	}

	if err := s.deleteRefs(ctx, recordRefs(previous)); err != nil {
		return fmt.Errorf("delete session tokens: %w", err)
	}

	return nil
}

func (s *Service) deleteRefs(ctx context.Context, refs []string) error {
	var errs error
	for _, ref := range refs {
		if err := s.store.Delete(ctx, ref); err != nil {
			errs = errors.Join(errs, err)
		}
	}

	return errs
}

func recordRefs(records []domain.SessionRecord) []string {
	refs := make([]string, 0, len(records))
	for _, record := range records {
		if record.TokenRef != "" {
			refs = append(refs, record.TokenRef)
		}
	}

	return refs
}

// staleRefs returns the refs in candidates that are not in keep.
func staleRefs(candidates, keep []string) []string {
	kept := make(map[string]struct{}, len(keep))
	for _, ref := range keep {
		kept[ref] = struct{}{}
	}

	stale := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if _, ok := kept[candidate]; !ok {
			stale = append(stale, candidate)
		}
	}

	return stale
}
