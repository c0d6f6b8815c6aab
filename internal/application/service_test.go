package application

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	tomlrepo "github.com/bnema/sessionpool/internal/adapters/repo/toml"
	filestore "github.com/bnema/sessionpool/internal/adapters/secrets/file"
	"github.com/bnema/sessionpool/internal/domain"
	"github.com/bnema/sessionpool/internal/ports/mocks"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestServiceSetPasswordStoresSecret(t *testing.T) {
	repo := mocks.NewMockSessionRepository(t)
	store := mocks.NewMockSecretStore(t)
	service := NewService(repo, store, fixedClock{})

	store.EXPECT().Put(mockAnyContext(), "sessionpool/default/password", "hunter2").Return(nil)

	require.NoError(t, service.SetPassword(context.Background(), PasswordRef("default"), "hunter2"))
}

func TestServiceSetPasswordRejectsEmptyInput(t *testing.T) {
	service := NewService(mocks.NewMockSessionRepository(t), mocks.NewMockSecretStore(t), fixedClock{})

	assert.ErrorIs(t, service.SetPassword(context.Background(), " ", "x"), ErrEmptySecretRef)
	assert.ErrorIs(t, service.SetPassword(context.Background(), "ref", ""), domain.ErrMissingPassword)
}

func TestServiceRemovePasswordWrapsStoreError(t *testing.T) {
	store := mocks.NewMockSecretStore(t)
	service := NewService(mocks.NewMockSessionRepository(t), store, fixedClock{})

	storeErr := errors.New("pass exploded")
	store.EXPECT().Delete(mockAnyContext(), "sessionpool/default/password").Return(storeErr)

	err := service.RemovePassword(context.Background(), PasswordRef("default"))
	require.ErrorIs(t, err, storeErr)
	assert.Contains(t, err.Error(), "delete password")
}

func TestServiceCredentials(t *testing.T) {
	store := mocks.NewMockSecretStore(t)
	service := NewService(mocks.NewMockSessionRepository(t), store, fixedClock{})

	store.EXPECT().Get(mockAnyContext(), "ref").Return("hunter2", nil).Once()

	credentials, err := service.Credentials(context.Background(), "admin", "ref")
	require.NoError(t, err)
	assert.Equal(t, domain.BasicCredentials{Username: "admin", Password: "hunter2"}, credentials)

	store.EXPECT().Get(mockAnyContext(), "missing").Return("", domain.ErrSecretNotFound).Once()
	_, err = service.Credentials(context.Background(), "admin", "missing")
	require.ErrorIs(t, err, domain.ErrSecretNotFound)

	store.EXPECT().Get(mockAnyContext(), "ref").Return("hunter2", nil).Once()
	_, err = service.Credentials(context.Background(), "", "ref")
	require.ErrorIs(t, err, domain.ErrMissingUsername)
}

func TestServiceLoadSessionsSkipsExpiredAndMissingTokens(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := mocks.NewMockSessionRepository(t)
	store := mocks.NewMockSecretStore(t)
	clock := mocks.NewMockClock(t)
	service := NewService(repo, store, clock)

	clock.EXPECT().Now().Return(now).Once()
	repo.EXPECT().Load(mockAnyContext(), "default").Return([]domain.SessionRecord{
		{ID: "live", TokenRef: "sessionpool/default/sessions/live", Issued: now.Add(-time.Minute), Expires: now.Add(14 * time.Minute)},
		{ID: "old", TokenRef: "sessionpool/default/sessions/old", Issued: now.Add(-time.Hour), Expires: now.Add(-time.Minute)},
		{ID: "gone", TokenRef: "sessionpool/default/sessions/gone", Issued: now.Add(-time.Minute), Expires: now.Add(time.Minute)},
	}, nil)
	store.EXPECT().Get(mockAnyContext(), "sessionpool/default/sessions/live").Return("tok-live", nil)
	store.EXPECT().Get(mockAnyContext(), "sessionpool/default/sessions/gone").Return("", domain.ErrSecretNotFound)

	sessions, err := service.LoadSessions(context.Background(), "default")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "live", sessions[0].ID)
	assert.Equal(t, "tok-live", sessions[0].Token)
	assert.False(t, sessions[0].Active)
}

func TestServiceSaveSessionsWritesTokensAndDropsStaleOnes(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := mocks.NewMockSessionRepository(t)
	store := mocks.NewMockSecretStore(t)
	service := NewService(repo, store, fixedClock{now: now})

	live := domain.NewSession("s-1", "tok-1", now.Add(-time.Minute))
	expired := domain.NewSession("s-2", "tok-2", now.Add(-time.Hour))

	repo.EXPECT().Load(mockAnyContext(), "default").Return([]domain.SessionRecord{
		{ID: "s-0", TokenRef: "sessionpool/default/sessions/s-0"},
	}, nil)
	store.EXPECT().Put(mockAnyContext(), "sessionpool/default/sessions/s-1", "tok-1").Return(nil)
	repo.EXPECT().Save(mockAnyContext(), "default", []domain.SessionRecord{
		{ID: "s-1", TokenRef: "sessionpool/default/sessions/s-1", Issued: live.Issued, Expires: live.Expires},
	}).Return(nil)
	store.EXPECT().Delete(mockAnyContext(), "sessionpool/default/sessions/s-0").Return(nil)

	require.NoError(t, service.SaveSessions(context.Background(), "default", []domain.Session{live, expired}))
}

func TestServiceSaveSessionsRollsBackTokensWhenRepositoryFails(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := mocks.NewMockSessionRepository(t)
	store := mocks.NewMockSecretStore(t)
	service := NewService(repo, store, fixedClock{now: now})

	saveErr := errors.New("disk full")
	repo.EXPECT().Load(mockAnyContext(), "default").Return(nil, nil)
	store.EXPECT().Put(mockAnyContext(), "sessionpool/default/sessions/s-1", "tok-1").Return(nil)
	repo.EXPECT().Save(mockAnyContext(), "default", mock.Anything).Return(saveErr)
	store.EXPECT().Delete(mockAnyContext(), "sessionpool/default/sessions/s-1").Return(nil)

	err := service.SaveSessions(context.Background(), "default", []domain.Session{
		domain.NewSession("s-1", "tok-1", now.Add(-time.Minute)),
	})
	require.ErrorIs(t, err, saveErr)
	assert.Contains(t, err.Error(), "save cached sessions")
}

func TestServiceClearSessions(t *testing.T) {
	repo := mocks.NewMockSessionRepository(t)
	store := mocks.NewMockSecretStore(t)
	service := NewService(repo, store, fixedClock{})

	repo.EXPECT().Load(mockAnyContext(), "default").Return([]domain.SessionRecord{
		{ID: "s-1", TokenRef: "sessionpool/default/sessions/s-1"},
	}, nil)
	repo.EXPECT().Save(mockAnyContext(), "default", []domain.SessionRecord(nil)).Return(nil)
	store.EXPECT().Delete(mockAnyContext(), "sessionpool/default/sessions/s-1").Return(nil)

	require.NoError(t, service.ClearSessions(context.Background(), "default"))
}

func TestServiceSessionCacheRoundTripWithFileAdapters(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	dir := t.TempDir()

	cfg := viper.New()
	cfg.Set("paths.sessions", filepath.Join(dir, "sessions.toml"))
	repo, err := tomlrepo.NewSessionRepository(cfg)
	require.NoError(t, err)

	service := NewService(repo, filestore.NewStore(filepath.Join(dir, "secrets")), fixedClock{now: now})

	session := domain.NewSession("s-1", "tok-1", now.Add(-time.Minute))
	require.NoError(t, service.SaveSessions(context.Background(), "default", []domain.Session{session}))

	loaded, err := service.LoadSessions(context.Background(), "default")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "tok-1", loaded[0].Token)
	assert.True(t, session.Expires.Equal(loaded[0].Expires))

	require.NoError(t, service.ClearSessions(context.Background(), "default"))

	loaded, err = service.LoadSessions(context.Background(), "default")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

type fixedClock struct {
	now time.Time
}

func (f fixedClock) Now() time.Time {
	return f.now
}

func mockAnyContext() interface{} {
	return mock.Anything
}
