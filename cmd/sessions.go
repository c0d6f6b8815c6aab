package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	statusadapter "github.com/bnema/sessionpool/internal/adapters/render/status"
	"github.com/bnema/sessionpool/internal/domain"
	"github.com/spf13/cobra"
)

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect or drop the sessions cached between runs",
	}

	cmd.AddCommand(newSessionsListCmd(opts), newSessionsClearCmd(opts))

	return cmd
}

// sessionView is the JSON shape of a cached session. It never carries the token.
type sessionView struct {
	ID      string    `json:"id"`
	Issued  time.Time `json:"issued"`
	Expires time.Time `json:"expires"`
	Used    time.Time `json:"used"`
}

func newSessionsListCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List cached sessions that are still valid",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := wireApp(cmd, opts)
			if err != nil {
				return err
			}

			sessions, err := app.service.LoadSessions(cmd.Context(), app.cfg.Profile)
			if err != nil {
				return err
			}

			if asJSON {
				views := make([]sessionView, 0, len(sessions))
				for _, session := range sessions {
					views = append(views, sessionView{
						ID:      session.ID,
						Issued:  session.Issued,
						Expires: session.Expires,
						Used:    session.Used,
					})
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(views)
			}

			rendered, err := app.sessionRenderer(sessions, statusadapter.RenderOptions{
				Now:     app.now(),
				Profile: app.cfg.Profile,
			})
			if err != nil {
				return fmt.Errorf("render sessions: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func newSessionsClearCmd(opts *rootOptions) *cobra.Command {
	var logout bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget cached sessions, optionally revoking them on the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := wireApp(cmd, opts)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			sessions, err := app.service.LoadSessions(ctx, app.cfg.Profile)
			if err != nil {
				return err
			}

			var logoutErr error
			if logout && len(sessions) > 0 {
				if err := app.cfg.RequireService(); err != nil {
					return err
				}

				pool, err := app.newPool(domain.BasicCredentials{}, len(sessions), nil)
				if err != nil {
					return err
				}
				pool.Restore(sessions)
				logoutErr = pool.Logout(ctx)
			}

			if err := app.service.ClearSessions(ctx, app.cfg.Profile); err != nil {
				return errors.Join(logoutErr, err)
			}
			if logoutErr != nil {
				return logoutErr
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "cleared %d session(s) for profile %s\n", len(sessions), app.cfg.Profile)
			return err
		},
	}

	cmd.Flags().BoolVar(&logout, "logout", false, "Revoke each cached session on the service before forgetting it")

	return cmd
}
