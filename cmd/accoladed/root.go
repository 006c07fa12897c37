// accolade/cmd/accoladed/root.go

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rgehrsitz/accolade/pkg/config"
	"rgehrsitz/accolade/pkg/logging"
)

type rootOptions struct {
	configFile string
	v          *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: config.New()}

	cmd := &cobra.Command{
		Use:           "accoladed",
		Short:         "Accolade badge-awarding rule engine",
		Long:          `accoladed consumes events, evaluates badge rules against them and records the awards.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file path")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-output", "console", "log output (console, json, file)")
	flags.String("rules", "./rules", "rules directory")
	flags.String("ledger-url", "", "ledger database URL (sqlite:///path or postgres://...)")
	flags.String("archive-url", "", "archive database URL (sqlite:///path or postgres://...)")
	opts.bindFlag(cmd, "logging.level", "log-level")
	opts.bindFlag(cmd, "logging.output", "log-output")
	opts.bindFlag(cmd, "rules.directory", "rules")
	opts.bindFlag(cmd, "database.ledger_url", "ledger-url")
	opts.bindFlag(cmd, "database.archive_url", "archive-url")

	cmd.AddCommand(
		newServeCmd(opts),
		newCheckCmd(opts),
		newEvaluateCmd(opts),
		newMigrateCmd(opts),
	)
	return cmd
}

// bindFlag lets a persistent flag override key, but only when it was set
// on the command line.
func (o *rootOptions) bindFlag(cmd *cobra.Command, key, flag string) {
	if err := o.v.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

// load reads the configuration and configures logging from it.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.v, o.configFile)
	if err != nil {
		return nil, err
	}
	if err := logging.ConfigureLogger(cfg.Logging.Level, cfg.Logging.Output); err != nil {
		return nil, err
	}
	return cfg, nil
}
