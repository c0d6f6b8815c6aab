package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var errPasswordSource = errors.New("use exactly one of --password or --password-stdin")

func newCredentialsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "credentials",
		Aliases: []string{"creds"},
		Short:   "Manage the password used to log in sessions",
	}

	cmd.AddCommand(newCredentialsSetCmd(opts), newCredentialsRemoveCmd(opts))

	return cmd
}

func newCredentialsSetCmd(opts *rootOptions) *cobra.Command {
	var password string
	var fromStdin bool

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the profile password in the secret store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (password == "") == !fromStdin {
				return errPasswordSource
			}

			if fromStdin {
				read, err := readPassword(cmd.InOrStdin())
				if err != nil {
					return err
				}
				password = read
			}

			app, err := wireApp(cmd, opts)
			if err != nil {
				return err
			}

			if err := app.service.SetPassword(cmd.Context(), app.passwordRef(), password); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "stored password for profile %s\n", app.cfg.Profile)
			return err
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Password (visible in shell history; prefer --password-stdin)")
	cmd.Flags().BoolVar(&fromStdin, "password-stdin", false, "Read the password from the first line of stdin")

	return cmd
}

func newCredentialsRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove",
		Short: "Delete the profile password from the secret store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := wireApp(cmd, opts)
			if err != nil {
				return err
			}

			if err := app.service.RemovePassword(cmd.Context(), app.passwordRef()); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed password for profile %s\n", app.cfg.Profile)
			return err
		},
	}
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password from stdin: %w", err)
	}

	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("read password from stdin: empty input")
	}

	return password, nil
}
