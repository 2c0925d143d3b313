package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/monlabs/monwatch/internal/api"
	"github.com/monlabs/monwatch/internal/config"
	"github.com/monlabs/monwatch/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API without collecting",
	Long: `Serve the read-only dashboard against an existing database, for
deployments where collection runs in a separate process or on a cron
schedule with --once.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		srv := api.NewServer(cfg, st, telemetry.NewMetricsRegistry())
		return srv.Start(ctx)
	},
}
