// Package baseline recomputes per-venue robust reference values from
// persisted snapshot history each cycle.
package baseline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/monlabs/monwatch/internal/models"
	"github.com/monlabs/monwatch/internal/store"
)

// Engine derives medians over the trailing baseline window and a volume
// mean over the (shorter) volume window. Baselines are recomputed from
// scratch every cycle; nothing is incremental.
type Engine struct {
	store            store.Store
	baselineDays     int
	volumeWindowDays int
	minSamples       int
}

func New(st store.Store, baselineDays, volumeWindowDays, minSamples int) *Engine {
	return &Engine{
		store:            st,
		baselineDays:     baselineDays,
		volumeWindowDays: volumeWindowDays,
		minSamples:       minSamples,
	}
}

// Compute builds the baseline for one venue from history. With fewer
// than minSamples usable rows the baseline stays warming_up, which
// suppresses the baseline-relative alert rules downstream.
func (e *Engine) Compute(ctx context.Context, venue, symbol string) (*models.BaselineValues, error) {
	rows, err := e.store.HistoricalSnapshots(ctx, venue, e.baselineDays)
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline history: %w", err)
	}

	b := &models.BaselineValues{
		Venue:       venue,
		Symbol:      symbol,
		Timestamp:   time.Now().UTC(),
		SampleCount: len(rows),
		WarmingUp:   true,
	}

	if len(rows) == 0 {
		log.Info().Str("venue", venue).Msg("no history, baseline warming up")
		return b, nil
	}

	if len(rows) < e.minSamples {
		log.Info().
			Str("venue", venue).
			Int("samples", len(rows)).
			Int("required", e.minSamples).
			Msg("insufficient samples, baseline warming up")
	} else {
		b.WarmingUp = false
	}

	var depthTotals, spreads, slips []float64
	for _, r := range rows {
		if r.Depth1PctBid != nil && r.Depth1PctAsk != nil {
			depthTotals = append(depthTotals, *r.Depth1PctBid+*r.Depth1PctAsk)
		}
		if r.SpreadBps != nil {
			spreads = append(spreads, *r.SpreadBps)
		}
		// worst direction wins
		if v := maxSlip(r.SlipBpsBuyN2, r.SlipBpsSellN2); v != nil {
			slips = append(slips, *v)
		}
	}
	b.Depth1PctMedian = Median(depthTotals)
	b.SpreadBpsMedian = Median(spreads)
	b.SlipBpsN2Median = Median(slips)

	volumes, err := e.store.RecentVolumes(ctx, venue, e.volumeWindowDays)
	if err != nil {
		return nil, fmt.Errorf("failed to load volume history: %w", err)
	}
	b.Volume24hMean = Mean(volumes)

	return b, nil
}

func maxSlip(buy, sell *float64) *float64 {
	switch {
	case buy == nil:
		return sell
	case sell == nil:
		return buy
	case *buy >= *sell:
		return buy
	default:
		return sell
	}
}
