// Package calc holds the pure derived-metric functions. Everything here
// is deterministic and side-effect free: all metrics can be recomputed
// from a snapshot's retained raw levels and candles.
package calc

import (
	"math"

	"github.com/monlabs/monwatch/internal/models"
)

// Side selects an order-book side or trade direction.
type Side string

const (
	SideBid  Side = "bid"
	SideAsk  Side = "ask"
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trailing windows for the candle-derived metrics, in 1h bars.
const (
	volReturnWindow = 24
	atrWindow       = 24
)

// DepthWithinPct sums price*qty over levels whose price lies within pct
// percent of mid on the requested side. Bids count when price is at or
// above mid*(1-pct/100), asks when at or below mid*(1+pct/100). An empty
// book yields 0.
func DepthWithinPct(levels []models.BookLevel, mid, pct float64, side Side) float64 {
	total := 0.0
	switch side {
	case SideBid:
		lower := mid * (1 - pct/100.0)
		for _, lvl := range levels {
			if lvl.Price >= lower {
				total += lvl.Price * lvl.Qty
			}
		}
	case SideAsk:
		upper := mid * (1 + pct/100.0)
		for _, lvl := range levels {
			if lvl.Price <= upper {
				total += lvl.Price * lvl.Qty
			}
		}
	}
	return total
}

// ImpactCost simulates a market order of targetNotional against one book
// side, walking levels best price first. Each level is consumed fully if
// its notional fits the remaining target, otherwise partially at the
// level's price. Slippage is measured in basis points against mid:
// positive when the fill is worse than mid for the given direction.
func ImpactCost(levels []models.BookLevel, mid, targetNotional float64, side Side) models.ImpactCostResult {
	result := models.ImpactCostResult{TargetNotional: targetNotional}
	remaining := targetNotional
	totalCost := 0.0
	totalBase := 0.0

	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		levelNotional := lvl.Price * lvl.Qty
		if levelNotional <= remaining {
			totalCost += levelNotional
			totalBase += lvl.Qty
			remaining -= levelNotional
		} else {
			fillQty := remaining / lvl.Price
			totalCost += remaining
			totalBase += fillQty
			remaining = 0
		}
	}

	result.FilledNotional = targetNotional - remaining

	if totalBase > 0 {
		result.AvgFillPrice = models.Float(totalCost / totalBase)
	}
	if remaining > 0 {
		result.InsufficientLiquidity = true
		result.Shortfall = remaining
	}

	if result.AvgFillPrice != nil && mid > 0 {
		if side == SideBuy {
			result.SlipBps = models.Float((*result.AvgFillPrice - mid) / mid * 10000)
		} else {
			result.SlipBps = models.Float((mid - *result.AvgFillPrice) / mid * 10000)
		}
	}

	return result
}

// RealizedVolatility computes the sample standard deviation of natural-
// log returns over the most recent window of closes. Non-positive closes
// are skipped. Returns nil with fewer than two usable returns.
func RealizedVolatility(closes []float64) *float64 {
	if len(closes) < 2 {
		return nil
	}

	recent := closes
	if len(recent) > volReturnWindow+1 {
		recent = recent[len(recent)-(volReturnWindow+1):]
	}

	var returns []float64
	for i := 1; i < len(recent); i++ {
		if recent[i-1] > 0 && recent[i] > 0 {
			returns = append(returns, math.Log(recent[i]/recent[i-1]))
		}
	}
	if len(returns) < 2 {
		return nil
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	return models.Float(math.Sqrt(variance))
}

// ATRLike is the mean of |high-low| over the most recent window of
// candles. Returns nil for an empty window.
func ATRLike(candles []models.Candle) *float64 {
	recent := candles
	if len(recent) > atrWindow {
		recent = recent[len(recent)-atrWindow:]
	}
	if len(recent) == 0 {
		return nil
	}

	sum := 0.0
	for _, c := range recent {
		sum += math.Abs(c.High - c.Low)
	}
	return models.Float(sum / float64(len(recent)))
}

// PctChangeFromCandles computes the percentage move between the last
// close and the close hoursBack bars earlier. Returns nil with
// insufficient history or a non-positive reference close.
func PctChangeFromCandles(candles []models.Candle, hoursBack int) *float64 {
	if len(candles) < hoursBack+1 {
		return nil
	}

	current := candles[len(candles)-1].Close
	past := candles[len(candles)-1-hoursBack].Close
	if past <= 0 || current <= 0 {
		return nil
	}
	return models.Float((current - past) / past * 100)
}
