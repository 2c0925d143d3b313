// Package alert evaluates the anomaly rules against each cycle's
// snapshots and baselines, with consecutive confirmation and dedupe.
package alert

import (
	"context"
	"fmt"

	"github.com/monlabs/monwatch/internal/models"
)

func depthTotal(snap *models.VenueSnapshot) *float64 {
	if snap.OrderBook == nil {
		return nil
	}
	return snap.OrderBook.DepthTotal1Pct()
}

func formatDepth(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("$%.0f", *v)
}

// checkDepthShrink fires when 1% total depth drops below the baseline
// median times depth_drop_mult, confirmed over consecutive cycles.
// Suppressed while warming up.
func (e *Engine) checkDepthShrink(ctx context.Context, snap *models.VenueSnapshot, b *models.BaselineValues) (*models.Alert, error) {
	if b.WarmingUp || snap.OrderBook == nil || b.Depth1PctMedian == nil {
		return nil, nil
	}
	current := depthTotal(snap)
	if current == nil {
		return nil, nil
	}

	threshold := *b.Depth1PctMedian * e.thresholds.DepthDropMult
	condition := *current < threshold
	key := models.DedupeKey(models.RuleDepthShrink, snap.Venue, snap.Symbol)

	fired, err := e.confirmConsecutive(ctx, key, condition, snap)
	if err != nil || !fired {
		return nil, err
	}

	return &models.Alert{
		Rule:     models.RuleDepthShrink,
		Venue:    snap.Venue,
		Symbol:   snap.Symbol,
		Severity: models.SeverityWarn,
		Message: fmt.Sprintf(
			"depth shrink: 1%% depth $%.0f < baseline $%.0f x %g = $%.0f [%d samples]",
			*current, *b.Depth1PctMedian, e.thresholds.DepthDropMult, threshold, b.SampleCount),
		ThresholdValue: models.Float(threshold),
		CurrentValue:   current,
		BaselineValue:  b.Depth1PctMedian,
		Timestamp:      snap.Timestamp,
		DedupeKey:      key,
	}, nil
}

// checkSpreadWiden fires when spread exceeds the baseline median times
// spread_mult, confirmed over consecutive cycles.
func (e *Engine) checkSpreadWiden(ctx context.Context, snap *models.VenueSnapshot, b *models.BaselineValues) (*models.Alert, error) {
	if b.WarmingUp || snap.OrderBook == nil || b.SpreadBpsMedian == nil {
		return nil, nil
	}
	current := snap.OrderBook.SpreadBps
	if current == nil {
		return nil, nil
	}

	threshold := *b.SpreadBpsMedian * e.thresholds.SpreadMult
	condition := *current > threshold
	key := models.DedupeKey(models.RuleSpreadWiden, snap.Venue, snap.Symbol)

	fired, err := e.confirmConsecutive(ctx, key, condition, snap)
	if err != nil || !fired {
		return nil, err
	}

	return &models.Alert{
		Rule:     models.RuleSpreadWiden,
		Venue:    snap.Venue,
		Symbol:   snap.Symbol,
		Severity: models.SeverityWarn,
		Message: fmt.Sprintf(
			"spread widen: %.1fbp > baseline %.1fbp x %g = %.1fbp [%d samples]",
			*current, *b.SpreadBpsMedian, e.thresholds.SpreadMult, threshold, b.SampleCount),
		ThresholdValue: models.Float(threshold),
		CurrentValue:   current,
		BaselineValue:  b.SpreadBpsMedian,
		Timestamp:      snap.Timestamp,
		DedupeKey:      key,
	}, nil
}

// checkImpactCostUp fires when the worse of the two large-notional slip
// estimates exceeds the baseline median times slip_mult, confirmed over
// consecutive cycles.
func (e *Engine) checkImpactCostUp(ctx context.Context, snap *models.VenueSnapshot, b *models.BaselineValues) (*models.Alert, error) {
	if b.WarmingUp || snap.OrderBook == nil || b.SlipBpsN2Median == nil {
		return nil, nil
	}

	ob := snap.OrderBook
	var current *float64
	for _, imp := range []*models.ImpactCostResult{ob.ImpactBuyN2, ob.ImpactSellN2} {
		if imp == nil || imp.SlipBps == nil {
			continue
		}
		if current == nil || *imp.SlipBps > *current {
			current = imp.SlipBps
		}
	}
	if current == nil {
		return nil, nil
	}

	threshold := *b.SlipBpsN2Median * e.thresholds.SlipMult
	condition := *current > threshold
	key := models.DedupeKey(models.RuleImpactCostUp, snap.Venue, snap.Symbol)

	fired, err := e.confirmConsecutive(ctx, key, condition, snap)
	if err != nil || !fired {
		return nil, err
	}

	return &models.Alert{
		Rule:     models.RuleImpactCostUp,
		Venue:    snap.Venue,
		Symbol:   snap.Symbol,
		Severity: models.SeverityWarn,
		Message: fmt.Sprintf(
			"impact cost up: slip_n2 %.1fbp > baseline %.1fbp x %g = %.1fbp | depth1%%=%s [%d samples]",
			*current, *b.SlipBpsN2Median, e.thresholds.SlipMult, threshold,
			formatDepth(depthTotal(snap)), b.SampleCount),
		ThresholdValue: models.Float(threshold),
		CurrentValue:   current,
		BaselineValue:  b.SlipBpsN2Median,
		Timestamp:      snap.Timestamp,
		DedupeKey:      key,
	}, nil
}

// checkInsufficientLiquidity fires immediately when any impact probe
// could not fill and the gap exceeds the configured percentage. It
// needs no baseline, no confirmation, and ignores warming_up. Probes
// are checked large notional first so the worst case wins.
func (e *Engine) checkInsufficientLiquidity(snap *models.VenueSnapshot, gapPct float64) *models.Alert {
	if snap.OrderBook == nil {
		return nil
	}
	ob := snap.OrderBook

	probes := []struct {
		label  string
		impact *models.ImpactCostResult
	}{
		{"buy_n2", ob.ImpactBuyN2},
		{"sell_n2", ob.ImpactSellN2},
		{"buy_n1", ob.ImpactBuyN1},
		{"sell_n1", ob.ImpactSellN1},
	}

	for _, p := range probes {
		if p.impact == nil || !p.impact.InsufficientLiquidity {
			continue
		}
		probeGap := 0.0
		if p.impact.TargetNotional > 0 {
			probeGap = p.impact.Shortfall / p.impact.TargetNotional * 100
		}
		if probeGap <= gapPct {
			continue
		}
		return &models.Alert{
			Rule:     models.RuleInsufficientLiquidity,
			Venue:    snap.Venue,
			Symbol:   snap.Symbol,
			Severity: models.SeverityCritical,
			Message: fmt.Sprintf(
				"insufficient liquidity (%s): target $%.0f, filled $%.0f, gap $%.0f (%.0f%%) | depth1%%=%s",
				p.label, p.impact.TargetNotional, p.impact.FilledNotional,
				p.impact.Shortfall, probeGap, formatDepth(depthTotal(snap))),
			ThresholdValue: models.Float(p.impact.TargetNotional * (1 - gapPct/100)),
			CurrentValue:   models.Float(p.impact.FilledNotional),
			Timestamp:      snap.Timestamp,
			DedupeKey:      models.DedupeKey(models.RuleInsufficientLiquidity, snap.Venue, snap.Symbol),
		}
	}
	return nil
}

// checkVolumeSpike fires when the 24h quote volume exceeds the volume
// window mean times volume_spike_mult. Informational only, no
// confirmation counter, suppressed while warming up.
func (e *Engine) checkVolumeSpike(snap *models.VenueSnapshot, b *models.BaselineValues) *models.Alert {
	if b.WarmingUp || snap.Ticker == nil || b.Volume24hMean == nil {
		return nil
	}
	volume := snap.Ticker.QuoteVolume24h
	if volume == nil {
		return nil
	}

	threshold := *b.Volume24hMean * e.thresholds.VolumeSpikeMult
	if *volume <= threshold {
		return nil
	}

	direction := "volume surge"
	if pct := snap.Ticker.PctChange24h; pct != nil {
		if *pct > 0 {
			direction = "volume surge, price up"
		} else if *pct < 0 {
			direction = "volume surge, price down"
		}
	}

	return &models.Alert{
		Rule:     models.RuleVolumeSpike,
		Venue:    snap.Venue,
		Symbol:   snap.Symbol,
		Severity: models.SeverityInfo,
		Message: fmt.Sprintf(
			"volume spike (%s): 24h volume $%.0f > mean $%.0f x %g = $%.0f [%d samples]",
			direction, *volume, *b.Volume24hMean, e.thresholds.VolumeSpikeMult, threshold, b.SampleCount),
		ThresholdValue: models.Float(threshold),
		CurrentValue:   volume,
		BaselineValue:  b.Volume24hMean,
		Timestamp:      snap.Timestamp,
		DedupeKey:      models.DedupeKey(models.RuleVolumeSpike, snap.Venue, snap.Symbol),
	}
}
