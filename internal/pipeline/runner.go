package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/monlabs/monwatch/internal/alert"
	"github.com/monlabs/monwatch/internal/baseline"
	"github.com/monlabs/monwatch/internal/config"
	"github.com/monlabs/monwatch/internal/models"
	"github.com/monlabs/monwatch/internal/store"
	"github.com/monlabs/monwatch/internal/telemetry"
)

// CycleListener receives each completed cycle's output. Listeners must
// not block; the runner calls them synchronously between cycles.
type CycleListener func(*models.CycleOutput)

// Runner drives the collect-persist-baseline-detect sequence and the
// daemon schedule around it.
type Runner struct {
	cfg       *config.Config
	store     store.Store
	collector *Collector
	baselines *baseline.Engine
	alerts    *alert.Engine
	metrics   *telemetry.MetricsRegistry
	listeners []CycleListener
}

func NewRunner(cfg *config.Config, st store.Store, collector *Collector, baselines *baseline.Engine, alerts *alert.Engine, metrics *telemetry.MetricsRegistry) *Runner {
	return &Runner{
		cfg:       cfg,
		store:     st,
		collector: collector,
		baselines: baselines,
		alerts:    alerts,
		metrics:   metrics,
	}
}

// AddListener registers an output sink for completed cycles.
func (r *Runner) AddListener(fn CycleListener) {
	r.listeners = append(r.listeners, fn)
}

// RunCycle executes one full monitoring cycle. Partial failures inside
// a cycle degrade the output but only a storage-level failure makes the
// cycle itself fail.
func (r *Runner) RunCycle(ctx context.Context) (*models.CycleOutput, error) {
	started := time.Now()
	out, err := r.runCycle(ctx)
	elapsed := time.Since(started)

	r.metrics.CycleDuration.Observe(elapsed.Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.metrics.CyclesTotal.WithLabelValues(status).Inc()

	r.recordHeartbeat(ctx, status, err)

	if err != nil {
		return nil, err
	}

	log.Info().
		Dur("elapsed", elapsed).
		Int("venues", len(out.Snapshots)).
		Int("alerts", len(out.Alerts)).
		Msg("cycle complete")

	for _, fn := range r.listeners {
		fn(out)
	}
	return out, nil
}

func (r *Runner) runCycle(ctx context.Context) (*models.CycleOutput, error) {
	snapshots := r.collector.CollectAll(ctx)

	out := &models.CycleOutput{
		Timestamp: time.Now().UTC(),
		Token:     r.cfg.TokenSymbol,
		Snapshots: snapshots,
		Baselines: make(map[string]*models.BaselineValues, len(snapshots)),
	}

	snapshotIDs := make(map[string]int64, len(snapshots))
	for name, snap := range snapshots {
		for _, fe := range snap.Errors {
			r.metrics.FetchErrors.WithLabelValues(name, string(fe.Kind)).Inc()
		}
		if snap.MissingMarket {
			r.metrics.MissingMarkets.WithLabelValues(name).Inc()
		}

		id, err := r.store.SaveSnapshot(ctx, snap)
		if err != nil {
			return nil, fmt.Errorf("failed to persist %s snapshot: %w", name, err)
		}
		snapshotIDs[name] = id
		r.metrics.SnapshotsStored.Inc()
	}

	for name, snap := range snapshots {
		b, err := r.baselines.Compute(ctx, name, snap.Symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to compute %s baseline: %w", name, err)
		}
		if err := r.store.SaveBaseline(ctx, b); err != nil {
			return nil, fmt.Errorf("failed to persist %s baseline: %w", name, err)
		}
		out.Baselines[name] = b
	}

	for name, snap := range snapshots {
		alerts, err := r.alerts.Evaluate(ctx, snap, out.Baselines[name])
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate %s alerts: %w", name, err)
		}
		for _, a := range alerts {
			if err := r.store.SaveAlert(ctx, a, snapshotIDs[name]); err != nil {
				return nil, fmt.Errorf("failed to persist alert %s: %w", a.DedupeKey, err)
			}
			r.metrics.AlertsEmitted.WithLabelValues(a.Rule, a.Venue, a.Severity).Inc()
			log.Warn().
				Str("rule", a.Rule).
				Str("venue", a.Venue).
				Str("severity", a.Severity).
				Str("message", a.Message).
				Msg("alert emitted")
			out.Alerts = append(out.Alerts, a)
		}
	}

	return out, nil
}

// recordHeartbeat writes the liveness keys external monitors watch.
// Heartbeat failures are logged, never propagated: a dead heartbeat
// must not kill an otherwise healthy daemon.
func (r *Runner) recordHeartbeat(ctx context.Context, status string, cycleErr error) {
	states, err := r.store.GetRuntimeState(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to read runtime state")
		states = map[string]string{}
	}
	count, _ := strconv.ParseInt(states["cycle_count"], 10, 64)

	update := map[string]string{
		"last_cycle_ts":     time.Now().UTC().Format(time.RFC3339),
		"last_cycle_status": status,
		"cycle_count":       strconv.FormatInt(count+1, 10),
	}
	if cycleErr != nil {
		update["last_cycle_error"] = cycleErr.Error()
	} else {
		update["last_cycle_error"] = ""
	}

	if err := r.store.SetRuntimeState(ctx, update); err != nil {
		log.Error().Err(err).Msg("failed to write runtime state")
	}
}

// RunDaemon loops RunCycle on the configured interval until the context
// is cancelled. Cycle errors are logged and the schedule continues;
// shutdown happens only between cycles.
func (r *Runner) RunDaemon(ctx context.Context) error {
	log.Info().
		Dur("interval", r.cfg.CycleInterval()).
		Msg("daemon started")

	for {
		if _, err := r.RunCycle(ctx); err != nil {
			log.Error().Err(err).Msg("cycle failed")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("daemon stopping")
			return nil
		case <-time.After(r.cfg.CycleInterval()):
		}
	}
}
