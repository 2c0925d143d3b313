package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/monlabs/monwatch/internal/config"
	"github.com/monlabs/monwatch/internal/models"
	"github.com/monlabs/monwatch/internal/store"
)

// Engine runs every rule against one venue's snapshot and baseline.
// Counters may live in the main store or in Redis; dedupe history is
// always judged against the alert table.
type Engine struct {
	store      store.Store
	counters   store.CounterStore
	thresholds config.Thresholds
	threshold  int
	window     time.Duration
}

func NewEngine(st store.Store, counters store.CounterStore, cfg *config.Config) *Engine {
	if counters == nil {
		counters = st
	}
	return &Engine{
		store:      st,
		counters:   counters,
		thresholds: cfg.Thresholds,
		threshold:  cfg.ConsecutiveThreshold,
		window:     cfg.DedupeWindow(),
	}
}

// confirmConsecutive advances or resets the streak counter for key and
// reports whether the streak just reached the confirmation threshold.
// The counter resets on firing so a persisting condition re-arms.
func (e *Engine) confirmConsecutive(ctx context.Context, key string, conditionMet bool, snap *models.VenueSnapshot) (bool, error) {
	if !conditionMet {
		if err := e.counters.SetCounter(ctx, key, 0, snap.Timestamp); err != nil {
			return false, fmt.Errorf("failed to reset counter: %w", err)
		}
		return false, nil
	}

	current, err := e.counters.GetCounter(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read counter: %w", err)
	}
	next := current + 1
	if next >= e.threshold {
		if err := e.counters.SetCounter(ctx, key, 0, snap.Timestamp); err != nil {
			return false, fmt.Errorf("failed to reset counter: %w", err)
		}
		return true, nil
	}
	if err := e.counters.SetCounter(ctx, key, next, snap.Timestamp); err != nil {
		return false, fmt.Errorf("failed to advance counter: %w", err)
	}
	return false, nil
}

// Evaluate runs all rules for one snapshot, applying the dedupe window
// to candidates before returning them. Missing markets produce nothing.
// While the baseline is warming up only insufficient_liquidity can fire.
func (e *Engine) Evaluate(ctx context.Context, snap *models.VenueSnapshot, b *models.BaselineValues) ([]models.Alert, error) {
	if snap.MissingMarket {
		return nil, nil
	}

	var candidates []*models.Alert

	for _, check := range []func() (*models.Alert, error){
		func() (*models.Alert, error) { return e.checkDepthShrink(ctx, snap, b) },
		func() (*models.Alert, error) { return e.checkSpreadWiden(ctx, snap, b) },
		func() (*models.Alert, error) { return e.checkImpactCostUp(ctx, snap, b) },
	} {
		a, err := check()
		if err != nil {
			return nil, err
		}
		if a != nil {
			candidates = append(candidates, a)
		}
	}

	if a := e.checkInsufficientLiquidity(snap, *e.thresholds.InsufficientLiqGapPct); a != nil {
		candidates = append(candidates, a)
	}
	if a := e.checkVolumeSpike(snap, b); a != nil {
		candidates = append(candidates, a)
	}

	var alerts []models.Alert
	for _, a := range candidates {
		dup, err := e.store.IsDuplicateAlert(ctx, a.DedupeKey, e.window)
		if err != nil {
			return nil, fmt.Errorf("failed to check dedupe for %s: %w", a.DedupeKey, err)
		}
		if dup {
			log.Info().Str("dedupe_key", a.DedupeKey).Msg("alert suppressed by dedupe window")
			continue
		}
		alerts = append(alerts, *a)
	}
	return alerts, nil
}
