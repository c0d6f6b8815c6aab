package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bnema/sessionpool/internal/domain"
	"github.com/bnema/sessionpool/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	sessionsPathKey    = "paths.sessions"
	sessionsFileMode   = 0o600
	sessionsDirMode    = 0o700
	sessionsConfigDir  = "sessionpool"
	sessionsConfigFile = "sessions.toml"
	tempFilePattern    = ".sessions-*.toml.tmp"
)

// SessionRepository caches session metadata per profile in a single TOML file.
type SessionRepository struct {
	path string
	mu   *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.SessionRepository = (*SessionRepository)(nil)

// DefaultSessionsPath is ~/.config/sessionpool/sessions.toml.
func DefaultSessionsPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", sessionsConfigDir, sessionsConfigFile), nil
}

func NewSessionRepository(cfg *viper.Viper) (*SessionRepository, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	path := cfg.GetString(sessionsPathKey)
	if path == "" {
		defaultPath, err := DefaultSessionsPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}

	path, err := normalizePath(path)
	if err != nil {
		return nil, err
	}

	return &SessionRepository{path: path, mu: lockForPath(path)}, nil
}

func (r *SessionRepository) Path() string {
	return r.path
}

// Load returns the cached sessions of a profile, or nil when none are cached.
func (r *SessionRepository) Load(ctx context.Context, profile string) ([]domain.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	for _, entry := range file.Profiles {
		if entry.Name != profile {
			continue
		}

		records := make([]domain.SessionRecord, 0, len(entry.Sessions))
		for _, session := range entry.Sessions {
			records = append(records, fromSchema(session))
		}
		return records, nil
	}

	return nil, nil
}

// Save replaces the cached sessions of a profile. An empty slice drops the profile entry.
func (r *SessionRepository) Save(ctx context.Context, profile string, records []domain.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	profiles := file.Profiles[:0]
	for _, entry := range file.Profiles {
		if entry.Name != profile {
			profiles = append(profiles, entry)
		}
	}
	if len(records) > 0 {
		entry := profileSchema{Name: profile, Sessions: make([]sessionSchema, 0, len(records))}
		for _, record := range records {
			entry.Sessions = append(entry.Sessions, toSchema(record))
		}
		profiles = append(profiles, entry)
	}
	file.Profiles = profiles

	if err := ctx.Err(); err != nil {
		return err
	}

	return r.writeSchema(file)
}

func (r *SessionRepository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{Version: currentSchemaVersion}, nil
		}
		return fileSchema{}, fmt.Errorf("read sessions file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode sessions file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func (r *SessionRepository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.path), sessionsDirMode); err != nil {
		return fmt.Errorf("create sessions directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode sessions file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp sessions file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp sessions file: %w", err)
	}

	if err := tempFile.Chmod(sessionsFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp sessions file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp sessions file: %w", err)
	}

	if err := os.Rename(tempName, r.path); err != nil {
		return fmt.Errorf("replace sessions file: %w", err)
	}
	cleanup = false

	return nil
}

func normalizePath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve sessions path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func toSchema(record domain.SessionRecord) sessionSchema {
	return sessionSchema{
		ID:       record.ID,
		TokenRef: record.TokenRef,
		Issued:   formatTime(record.Issued),
		Expires:  formatTime(record.Expires),
		Used:     formatTime(record.Used),
	}
}

func fromSchema(schema sessionSchema) domain.SessionRecord {
	return domain.SessionRecord{
		ID:       schema.ID,
		TokenRef: schema.TokenRef,
		Issued:   parseTime(schema.Issued),
		Expires:  parseTime(schema.Expires),
		Used:     parseTime(schema.Used),
	}
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.UTC().Format(time.RFC3339Nano)
}
