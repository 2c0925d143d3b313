package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/monlabs/monwatch/internal/alert"
	"github.com/monlabs/monwatch/internal/api"
	"github.com/monlabs/monwatch/internal/baseline"
	"github.com/monlabs/monwatch/internal/config"
	"github.com/monlabs/monwatch/internal/httpclient"
	"github.com/monlabs/monwatch/internal/models"
	"github.com/monlabs/monwatch/internal/output"
	"github.com/monlabs/monwatch/internal/pipeline"
	"github.com/monlabs/monwatch/internal/store"
	"github.com/monlabs/monwatch/internal/telemetry"
)

var (
	flagOnce    bool
	flagNoServe bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitor (daemon by default, --once for a single cycle)",
	RunE:  runMonitor,
}

func init() {
	runCmd.Flags().BoolVar(&flagOnce, "once", false, "run a single cycle and exit")
	runCmd.Flags().BoolVar(&flagNoServe, "no-serve", false, "disable the dashboard server in daemon mode")
}

// openStore selects the persistence backend from config: Postgres when
// a DSN is present, otherwise in-process memory (single-shot friendly,
// useless for baselines across runs).
func openStore(cfg *config.Config) (store.Store, error) {
	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		return store.Open(dsn)
	}
	log.Warn().Msg("no postgres_dsn configured, using in-memory store; history will not survive this process")
	return store.NewMemory(), nil
}

// openCounters selects the counter backend: Redis when configured so
// confirmation streaks survive restarts, otherwise the main store.
func openCounters(ctx context.Context, cfg *config.Config, st store.Store) (store.CounterStore, func(), error) {
	if addr := cfg.Storage.RedisAddr; addr != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		client, err := store.DialRedis(dialCtx, addr)
		if err != nil {
			return nil, nil, err
		}
		return store.NewRedisCounters(client, 0), func() { client.Close() }, nil
	}
	return st, func() {}, nil
}

func buildRunner(cfg *config.Config, st store.Store, counters store.CounterStore, metrics *telemetry.MetricsRegistry) *pipeline.Runner {
	pool := httpclient.NewClientPool(httpclient.ClientConfig{
		MaxConcurrency: cfg.CollectWorkers * 2,
		RequestTimeout: 15 * time.Second,
		UserAgent:      fmt.Sprintf("%s-monwatch/1.0", cfg.TokenSymbol),
	})

	collector := pipeline.NewCollector(cfg, pool)
	baselines := baseline.New(st, cfg.BaselineDays, cfg.VolumeWindowDays, cfg.MinBaselineSamples)
	alerts := alert.NewEngine(st, counters, cfg)
	return pipeline.NewRunner(cfg, st, collector, baselines, alerts, metrics)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	counters, closeCounters, err := openCounters(ctx, cfg, st)
	if err != nil {
		return err
	}
	defer closeCounters()

	metrics := telemetry.NewMetricsRegistry()
	runner := buildRunner(cfg, st, counters, metrics)

	console := output.NewConsole(os.Stdout, tz)
	jsonWriter := output.NewJSONWriter(cfg.OutputDir)
	runner.AddListener(console.Render)
	runner.AddListener(func(out *models.CycleOutput) {
		if err := jsonWriter.Write(out); err != nil {
			log.Error().Err(err).Msg("failed to write cycle artifact")
		}
	})

	if flagOnce {
		// single-shot: a failed cycle is a failed run
		_, err := runner.RunCycle(ctx)
		return err
	}

	if !flagNoServe {
		srv := api.NewServer(cfg, st, metrics)
		runner.AddListener(srv.OnCycle)
		go func() {
			if err := srv.Start(ctx); err != nil {
				log.Error().Err(err).Msg("dashboard server stopped")
			}
		}()
	}

	return runner.RunDaemon(ctx)
}
