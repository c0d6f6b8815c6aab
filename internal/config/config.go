package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	envPrefix   = "SPOOL"
	appDirName  = "sessionpool"
	configName  = "config"
	configType  = "toml"
	DefaultName = "default"
)

// Keys are the viper keys, also reachable as SPOOL_<KEY> with dots replaced by underscores.
const (
	KeyProfile            = "profile"
	KeyBaseURL            = "service.base_url"
	KeySessionsPath       = "service.sessions_path"
	KeyUsername           = "service.username"
	KeyPasswordRef        = "service.password_ref"
	KeyConcurrency        = "scheduler.concurrency"
	KeyDelay              = "scheduler.delay"
	KeyTimeout            = "scheduler.timeout"
	KeyProxy              = "transport.proxy"
	KeyInsecureSkipVerify = "transport.insecure_skip_verify"
	KeyMaxRedirects       = "transport.max_redirects"
	KeyLogLevel           = "log.level"
	KeyLogFormat          = "log.format"
	KeySessionsFile       = "paths.sessions"
	KeySecretsDir         = "paths.secrets"
)

type Config struct {
	Profile   string          `mapstructure:"profile" validate:"required,excludesall=/"`
	Service   ServiceConfig   `mapstructure:"service"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Transport TransportConfig `mapstructure:"transport"`
	Log       LogConfig       `mapstructure:"log"`
	Paths     PathsConfig     `mapstructure:"paths"`
}

type ServiceConfig struct {
	// BaseURL is the database root the sessions path is resolved against.
	BaseURL      string `mapstructure:"base_url" validate:"omitempty,http_url"`
	SessionsPath string `mapstructure:"sessions_path" validate:"required"`
	Username     string `mapstructure:"username"`
	PasswordRef  string `mapstructure:"password_ref"`
}

type SchedulerConfig struct {
	Concurrency int           `mapstructure:"concurrency" validate:"gte=1,lte=1024"`
	Delay       time.Duration `mapstructure:"delay" validate:"gt=0"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

type TransportConfig struct {
	Proxy              string `mapstructure:"proxy" validate:"omitempty,url"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
	MaxRedirects       int    `mapstructure:"max_redirects" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

type PathsConfig struct {
	Sessions string `mapstructure:"sessions" validate:"required"`
	Secrets  string `mapstructure:"secrets" validate:"required"`
}

// Load reads configuration with precedence flags > SPOOL_* env > config file > defaults.
// Flags must already be bound to v. An empty configPath searches the default directory;
// a missing default file is not an error, a missing explicit file is.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	setupViper(v, configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	dir := Dir()
	v.SetDefault(KeyProfile, DefaultName)
	v.SetDefault(KeyBaseURL, "")
	v.SetDefault(KeySessionsPath, "sessions")
	v.SetDefault(KeyUsername, "")
	v.SetDefault(KeyPasswordRef, "")
	v.SetDefault(KeyConcurrency, 1)
	v.SetDefault(KeyDelay, "1ms")
	v.SetDefault(KeyTimeout, "0s")
	v.SetDefault(KeyProxy, "")
	v.SetDefault(KeyInsecureSkipVerify, false)
	v.SetDefault(KeyMaxRedirects, 10)
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeySessionsFile, filepath.Join(dir, "sessions.toml"))
	v.SetDefault(KeySecretsDir, filepath.Join(dir, "secrets"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	v.AddConfigPath(dir)
	v.SetConfigName(configName)
	v.SetConfigType(configType)
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// ApplyDefaults normalizes values that survive decoding empty.
func ApplyDefaults(cfg *Config) {
	cfg.Profile = strings.TrimSpace(cfg.Profile)
	if cfg.Profile == "" {
		cfg.Profile = DefaultName
	}
	if cfg.Service.SessionsPath == "" {
		cfg.Service.SessionsPath = "sessions"
	}
	cfg.Service.BaseURL = strings.TrimRight(cfg.Service.BaseURL, "/")
	if cfg.Scheduler.Concurrency == 0 {
		cfg.Scheduler.Concurrency = 1
	}
	if cfg.Scheduler.Delay == 0 {
		cfg.Scheduler.Delay = time.Millisecond
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if cfg.Log.Level == "" {
		cfg.Log.Level = "warn"
	}
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Paths.Sessions == "" {
		cfg.Paths.Sessions = filepath.Join(Dir(), "sessions.toml")
	}
	if cfg.Paths.Secrets == "" {
		cfg.Paths.Secrets = filepath.Join(Dir(), "secrets")
	}
}

func Validate(cfg *Config) error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			messages := make([]string, 0, len(fieldErrs))
			for _, fieldErr := range fieldErrs {
				messages = append(messages, fmt.Sprintf("%s failed %q", fieldErr.Namespace(), fieldErr.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(messages, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	return nil
}

// Dir is $XDG_CONFIG_HOME/sessionpool, falling back to ~/.config/sessionpool.
func Dir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, appDirName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", appDirName)
}

// RequireService reports the settings a request run needs but a credentials-only run does not.
func (c *Config) RequireService() error {
	var missing []string
	if c.Service.BaseURL == "" {
		missing = append(missing, KeyBaseURL)
	}
	if c.Service.Username == "" {
		missing = append(missing, KeyUsername)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing config %s", strings.Join(missing, ", "))
	}

	return nil
}
