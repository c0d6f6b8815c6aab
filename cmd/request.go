package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/url"
	"strings"
	"time"

	statusadapter "github.com/bnema/sessionpool/internal/adapters/render/status"
	"github.com/bnema/sessionpool/internal/application"
	"github.com/bnema/sessionpool/internal/config"
	"github.com/bnema/sessionpool/internal/domain"
	"github.com/bnema/sessionpool/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

const closeTimeout = 30 * time.Second

type requestOptions struct {
	query       []string
	headers     []string
	body        string
	repeat      int
	asJSON      bool
	showMetrics bool
	logout      bool
}

func newRequestCmd(opts *rootOptions) *cobra.Command {
	var reqOpts requestOptions

	cmd := &cobra.Command{
		Use:   "request <METHOD> <URL>",
		Short: "Send one or more requests through the session pool",
		Long: "request queues --repeat copies of the request, dispatches them over at most " +
			"--concurrency sessions in arrival order and prints one outcome per request. " +
			"A URL without a scheme is resolved against service.base_url.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, opts, args[0], args[1], reqOpts)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVar(&reqOpts.query, "query", nil, "Query parameter key=value (repeatable)")
	flags.StringArrayVar(&reqOpts.headers, "header", nil, "Request header key=value (repeatable)")
	flags.StringVar(&reqOpts.body, "body", "", "JSON object sent as the request body")
	flags.IntVar(&reqOpts.repeat, "repeat", 1, "Number of copies of the request to queue")
	flags.BoolVar(&reqOpts.asJSON, "json", false, "Render JSON output")
	flags.BoolVar(&reqOpts.showMetrics, "metrics", false, "Print scheduler metrics in Prometheus text format after the run")
	flags.BoolVar(&reqOpts.logout, "logout", false, "Revoke the sessions after the run instead of caching them")
	flags.Int("concurrency", 0, "Maximum number of sessions (overrides scheduler.concurrency)")
	flags.Duration("timeout", 0, "Per-request timeout (overrides scheduler.timeout)")
	bindFlag(opts.v, config.KeyConcurrency, flags.Lookup("concurrency"))
	bindFlag(opts.v, config.KeyTimeout, flags.Lookup("timeout"))

	return cmd
}

func runRequest(cmd *cobra.Command, opts *rootOptions, method, target string, reqOpts requestOptions) error {
	app, err := wireApp(cmd, opts)
	if err != nil {
		return err
	}
	if err := app.cfg.RequireService(); err != nil {
		return err
	}

	descriptors, err := buildDescriptors(method, target, app.cfg.Service.BaseURL, reqOpts)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	credentials, err := app.service.Credentials(ctx, app.cfg.Service.Username, app.passwordRef())
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)

	pool, err := app.newPool(credentials, app.cfg.Scheduler.Concurrency, m)
	if err != nil {
		return err
	}

	cached, err := app.service.LoadSessions(ctx, app.cfg.Profile)
	if err != nil {
		return err
	}
	if restored := pool.Restore(cached); restored > 0 {
		app.logger.Debug().Int("sessions", restored).Msg("restored cached sessions")
	}

	scheduler := application.NewScheduler(pool, application.SchedulerConfig{
		Delay:   app.cfg.Scheduler.Delay,
		Logger:  &app.logger,
		Metrics: m,
	})

	var outcomes []application.Outcome
	send := func(ctx context.Context) error {
		outcomes = application.RunAll(ctx, scheduler, descriptors)
		return nil
	}
	if reqOpts.asJSON {
		err = send(ctx)
	} else {
		err = runWithSpinner(ctx, cmd.ErrOrStderr(), fmt.Sprintf("Sending %d request(s)...", len(descriptors)), send)
	}

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if closeErr := scheduler.Close(closeCtx); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("close scheduler: %w", closeErr))
	}
	if err != nil {
		return err
	}

	if err := finishSessions(closeCtx, app, pool, reqOpts.logout); err != nil {
		return err
	}

	if err := writeOutcomes(cmd, app, outcomes, reqOpts.asJSON); err != nil {
		return err
	}

	if reqOpts.showMetrics {
		if err := writeMetrics(cmd.OutOrStdout(), registry); err != nil {
			return err
		}
	}

	if failed := application.Failed(outcomes); failed > 0 {
		return fmt.Errorf("%d of %d requests failed", failed, len(outcomes))
	}

	return nil
}

// finishSessions caches the pool for the next run, or revokes it when logout is set.
func finishSessions(ctx context.Context, app *app, pool *application.Pool, logout bool) error {
	if !logout {
		if err := app.service.SaveSessions(ctx, app.cfg.Profile, pool.Snapshot()); err != nil {
			return err
		}
		return nil
	}

	logoutErr := pool.Logout(ctx)
	if err := app.service.ClearSessions(ctx, app.cfg.Profile); err != nil {
		return errors.Join(logoutErr, err)
	}

	return logoutErr
}

func writeOutcomes(cmd *cobra.Command, app *app, outcomes []application.Outcome, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(outcomes)
	}

	rendered, err := app.outcomeRenderer(outcomes, statusadapter.RenderOptions{
		Now:     app.now(),
		Profile: app.cfg.Profile,
	})
	if err != nil {
		return fmt.Errorf("render outcomes: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

func writeMetrics(w io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	return nil
}

func buildDescriptors(method, target, baseURL string, opts requestOptions) ([]domain.Descriptor, error) {
	if opts.repeat < 1 {
		return nil, fmt.Errorf("--repeat must be at least 1, got %d", opts.repeat)
	}

	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return nil, errors.New("request method is required")
	}

	resolved, err := resolveURL(baseURL, target)
	if err != nil {
		return nil, err
	}

	query, err := parsePairs("--query", opts.query)
	if err != nil {
		return nil, err
	}
	header, err := parsePairs("--header", opts.headers)
	if err != nil {
		return nil, err
	}

	descriptors := make([]domain.Descriptor, 0, opts.repeat)
	for range opts.repeat {
		body, err := parseBody(opts.body)
		if err != nil {
			return nil, err
		}

		descriptors = append(descriptors, domain.Descriptor{
			Method: method,
			URL:    resolved,
			Header: maps.Clone(header),
			Query:  maps.Clone(query),
			Body:   body,
		})
	}

	return descriptors, nil
}

func resolveURL(baseURL, target string) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse request url: %w", err)
	}
	if parsed.IsAbs() {
		return parsed.String(), nil
	}

	base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return "", fmt.Errorf("parse service.base_url: %w", err)
	}

	return base.ResolveReference(&url.URL{Path: strings.TrimPrefix(parsed.Path, "/"), RawQuery: parsed.RawQuery}).String(), nil
}

func parsePairs(flag string, values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}

	pairs := make(map[string]string, len(values))
	for _, value := range values {
		key, val, ok := strings.Cut(value, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid %s %q, want key=value", flag, value)
		}
		pairs[strings.TrimSpace(key)] = val
	}

	return pairs, nil
}

func parseBody(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return nil, fmt.Errorf("parse --body: want a JSON object: %w", err)
	}

	return body, nil
}
