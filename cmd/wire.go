package cmd

import (
	"fmt"
	"time"

	"github.com/bnema/sessionpool/internal/adapters/auth"
	statusadapter "github.com/bnema/sessionpool/internal/adapters/render/status"
	tomlrepo "github.com/bnema/sessionpool/internal/adapters/repo/toml"
	chainstore "github.com/bnema/sessionpool/internal/adapters/secrets/chain"
	httptransport "github.com/bnema/sessionpool/internal/adapters/transport/http"
	"github.com/bnema/sessionpool/internal/application"
	"github.com/bnema/sessionpool/internal/config"
	"github.com/bnema/sessionpool/internal/domain"
	"github.com/bnema/sessionpool/internal/logging"
	"github.com/bnema/sessionpool/internal/metrics"
	"github.com/bnema/sessionpool/internal/ports"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type app struct {
	cfg             *config.Config
	logger          zerolog.Logger
	service         *application.Service
	outcomeRenderer func([]application.Outcome, statusadapter.RenderOptions) (string, error)
	sessionRenderer func([]domain.Session, statusadapter.RenderOptions) (string, error)
	now             func() time.Time
}

// wireApp runs after flag parsing so bound flags take part in config precedence.
func wireApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.v, opts.configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("wire logger: %w", err)
	}

	repo, err := tomlrepo.NewSessionRepository(opts.v)
	if err != nil {
		return nil, fmt.Errorf("wire session repository: %w", err)
	}

	secretStore, err := chainstore.NewPassFirstWithFileFallback(cfg.Paths.Secrets)
	if err != nil {
		return nil, fmt.Errorf("wire secret store chain: %w", err)
	}

	logger.Debug().
		Str("profile", cfg.Profile).
		Str("sessions_file", repo.Path()).
		Msg("configuration loaded")

	return &app{
		cfg:             cfg,
		logger:          logger,
		service:         application.NewService(repo, secretStore, ports.SystemClock{}),
		outcomeRenderer: statusadapter.RenderOutcomes,
		sessionRenderer: statusadapter.RenderSessions,
		now:             time.Now,
	}, nil
}

func (a *app) passwordRef() string {
	if a.cfg.Service.PasswordRef != "" {
		return a.cfg.Service.PasswordRef
	}
	return application.PasswordRef(a.cfg.Profile)
}

// newPool builds the transport, the credential exchange and the pool they feed.
func (a *app) newPool(credentials domain.BasicCredentials, concurrency int, m *metrics.Metrics) (*application.Pool, error) {
	maxRedirects := a.cfg.Transport.MaxRedirects
	transport, err := httptransport.NewTransport(httptransport.Options{
		Proxy:              a.cfg.Transport.Proxy,
		InsecureSkipVerify: a.cfg.Transport.InsecureSkipVerify,
		MaxRedirects:       &maxRedirects,
	})
	if err != nil {
		return nil, fmt.Errorf("wire transport: %w", err)
	}

	exchange := auth.SessionExchange{
		API: auth.API{
			BaseURL:      a.cfg.Service.BaseURL,
			SessionsPath: a.cfg.Service.SessionsPath,
		},
		HTTPClient:     transport.Client(),
		RequestTimeout: a.cfg.Scheduler.Timeout,
		Now:            a.now,
	}

	return application.NewPool(application.PoolConfig{
		Concurrency: concurrency,
		Credentials: credentials,
		Store:       exchange,
		Transport:   transport,
		Defaults:    domain.CallOptions{Timeout: a.cfg.Scheduler.Timeout},
		Logger:      &a.logger,
		Metrics:     m,
	}), nil
}

func bindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if flag == nil {
		panic(fmt.Sprintf("flag for %s is not defined", key))
	}
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}
