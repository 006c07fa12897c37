// accolade/cmd/accoladed/serve.go

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rgehrsitz/accolade/pkg/config"
	"rgehrsitz/accolade/pkg/logging"
	"rgehrsitz/accolade/pkg/runtime"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Consume events and award badges",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().Bool("dashboard", false, "serve the HTTP dashboard")
	if err := opts.v.BindPFlag("dashboard.enabled", cmd.Flags().Lookup("dashboard")); err != nil {
		panic(err)
	}
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	deps, err := setupDependencies(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer deps.Close()

	engine, err := newEngine(cfg, deps)
	if err != nil {
		return err
	}
	if err := engine.Reload(ctx); err != nil {
		return err
	}

	if cfg.Rules.RefreshSchedule != "" {
		schedule, err := runtime.ParseSchedule(cfg.Rules.RefreshSchedule)
		if err != nil {
			return err
		}
		go engine.RunRefresh(ctx, schedule)
	}

	if cfg.Dashboard.Enabled {
		dashboard := runtime.NewDashboard(engine, cfg.Dashboard.Address)
		go func() {
			if err := dashboard.Start(ctx); err != nil {
				logging.LogError(logging.Logger, logging.NewError(logging.ErrorTypeRuntime, "dashboard stopped", err, nil))
			}
		}()
	}

	logging.Logger.Info().Str("transport", cfg.Transport.Backend).Strs("channels", cfg.Transport.Channels).
		Msg("Accolade engine started")
	err = engine.Run(ctx, deps.Transport)
	logging.Logger.Info().Msg("Shutting down Accolade engine")
	return err
}
