package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, lines ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	dir := Dir()
	assert.Equal(t, DefaultName, cfg.Profile)
	assert.Equal(t, "sessions", cfg.Service.SessionsPath)
	assert.Equal(t, 1, cfg.Scheduler.Concurrency)
	assert.Equal(t, time.Millisecond, cfg.Scheduler.Delay)
	assert.Zero(t, cfg.Scheduler.Timeout)
	assert.Equal(t, 10, cfg.Transport.MaxRedirects)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, filepath.Join(dir, "sessions.toml"), cfg.Paths.Sessions)
	assert.Equal(t, filepath.Join(dir, "secrets"), cfg.Paths.Secrets)
	assert.Error(t, cfg.RequireService())
}

func TestLoadReadsFileAndDurations(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	path := writeConfig(t,
		`profile = "staging"`,
		``,
		`[service]`,
		`base_url = "https://fms.example.com/fmi/data/vLatest/databases/Contacts/"`,
		`username = "admin"`,
		``,
		`[scheduler]`,
		`concurrency = 4`,
		`delay = "5ms"`,
		`timeout = "30s"`,
		``,
		`[transport]`,
		`proxy = "http://proxy.internal:3128"`,
		`max_redirects = 0`,
		``,
		`[log]`,
		`level = "DEBUG"`,
		`format = "json"`,
	)

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Profile)
	assert.Equal(t, "https://fms.example.com/fmi/data/vLatest/databases/Contacts", cfg.Service.BaseURL)
	assert.Equal(t, "admin", cfg.Service.Username)
	assert.Equal(t, 4, cfg.Scheduler.Concurrency)
	assert.Equal(t, 5*time.Millisecond, cfg.Scheduler.Delay)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Timeout)
	assert.Equal(t, "http://proxy.internal:3128", cfg.Transport.Proxy)
	assert.Equal(t, 0, cfg.Transport.MaxRedirects)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.NoError(t, cfg.RequireService())
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("SPOOL_SCHEDULER_CONCURRENCY", "8")
	t.Setenv("SPOOL_SERVICE_USERNAME", "robot")
	t.Setenv("SPOOL_SCHEDULER_TIMEOUT", "2m")

	path := writeConfig(t,
		`[service]`,
		`username = "admin"`,
		``,
		`[scheduler]`,
		`concurrency = 2`,
	)

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Scheduler.Concurrency)
	assert.Equal(t, "robot", cfg.Service.Username)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.Timeout)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	testCases := []struct {
		name    string
		lines   []string
		wantErr string
	}{
		{name: "zero concurrency is defaulted, negative is not", lines: []string{"[scheduler]", "concurrency = -1"}, wantErr: "Concurrency"},
		{name: "bad log level", lines: []string{"[log]", `level = "loud"`}, wantErr: "Level"},
		{name: "bad base url", lines: []string{"[service]", `base_url = "fms.example.com"`}, wantErr: "BaseURL"},
		{name: "profile with slash", lines: []string{`profile = "a/b"`}, wantErr: "Profile"},
		{name: "bad duration", lines: []string{"[scheduler]", `delay = "soon"`}, wantErr: "decode config"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("XDG_CONFIG_HOME", t.TempDir())

			_, err := Load(viper.New(), writeConfig(t, tc.lines...))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadFailsOnMissingExplicitFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoadHonoursBoundOverrides(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	v := viper.New()
	v.Set(KeyProfile, "ci")
	v.Set(KeyConcurrency, 3)

	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "ci", cfg.Profile)
	assert.Equal(t, 3, cfg.Scheduler.Concurrency)
}

func TestDirUsesXDGConfigHome(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)

	assert.Equal(t, filepath.Join(base, "sessionpool"), Dir())
}
