package cmd

import (
	"github.com/bnema/sessionpool/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func Execute() error {
	return newRootCmd().Execute()
}

type rootOptions struct {
	v          *viper.Viper
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "spool",
		Short:         "spool: send requests through a pool of reusable service sessions",
		Long:          "spool queues requests against a token-authenticated data service, logs in at most --concurrency sessions, reuses them across runs and replaces any the service rejects.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/sessionpool/config.toml)")
	flags.String("profile", "", "Profile whose credentials and sessions are used")
	flags.String("log-level", "", "Log level: trace, debug, info, warn, error, disabled")
	flags.String("log-format", "", "Log format: console or json")
	bindFlag(opts.v, config.KeyProfile, flags.Lookup("profile"))
	bindFlag(opts.v, config.KeyLogLevel, flags.Lookup("log-level"))
	bindFlag(opts.v, config.KeyLogFormat, flags.Lookup("log-format"))

	rootCmd.AddCommand(
		newVersionCmd(),
		newCredentialsCmd(opts),
		newRequestCmd(opts),
		newSessionsCmd(opts),
	)

	return rootCmd
}
