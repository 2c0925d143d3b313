package calc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monlabs/monwatch/internal/models"
)

func levels(pairs ...[2]float64) []models.BookLevel {
	out := make([]models.BookLevel, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, models.BookLevel{Price: p[0], Qty: p[1]})
	}
	return out
}

func TestDepthWithinPct(t *testing.T) {
	bids := levels([2]float64{100, 10}, [2]float64{99.5, 10}, [2]float64{98.5, 10})
	asks := levels([2]float64{100.5, 10}, [2]float64{101, 10}, [2]float64{102, 10})

	// 1% band around mid=100: bids >= 99, asks <= 101
	bidDepth := DepthWithinPct(bids, 100, 1.0, SideBid)
	askDepth := DepthWithinPct(asks, 100, 1.0, SideAsk)
	assert.InDelta(t, 100*10+99.5*10, bidDepth, 1e-9)
	assert.InDelta(t, 100.5*10+101*10, askDepth, 1e-9)

	// 2% band picks up the deeper levels
	assert.InDelta(t, 100*10+99.5*10+98.5*10, DepthWithinPct(bids, 100, 2.0, SideBid), 1e-9)

	assert.Zero(t, DepthWithinPct(nil, 100, 1.0, SideBid))
}

func TestImpactCostFullFillAtBest(t *testing.T) {
	asks := levels([2]float64{100, 50}, [2]float64{100.5, 50}, [2]float64{101, 50})

	r := ImpactCost(asks, 100, 1000, SideBuy)

	require.NotNil(t, r.AvgFillPrice)
	require.NotNil(t, r.SlipBps)
	assert.InDelta(t, 100.0, *r.AvgFillPrice, 1e-9)
	assert.InDelta(t, 0.0, *r.SlipBps, 1e-9)
	assert.InDelta(t, 1000.0, r.FilledNotional, 1e-9)
	assert.False(t, r.InsufficientLiquidity)
	assert.Zero(t, r.Shortfall)
}

func TestImpactCostWalksLevels(t *testing.T) {
	asks := levels([2]float64{100, 10}, [2]float64{100.5, 10}, [2]float64{101, 10})

	// consumes level one (1000), level two (1005), partial 45 at 101
	r := ImpactCost(asks, 100, 2050, SideBuy)

	require.NotNil(t, r.AvgFillPrice)
	require.NotNil(t, r.SlipBps)
	assert.InDelta(t, 2050.0, r.FilledNotional, 1e-9)
	assert.False(t, r.InsufficientLiquidity)

	wantBase := 10 + 10 + 45.0/101.0
	assert.InDelta(t, 2050.0/wantBase, *r.AvgFillPrice, 1e-9)
	assert.Greater(t, *r.SlipBps, 0.0)
}

func TestImpactCostInsufficientLiquidity(t *testing.T) {
	asks := levels([2]float64{100, 1}, [2]float64{101, 1})

	r := ImpactCost(asks, 100, 1000, SideBuy)

	assert.True(t, r.InsufficientLiquidity)
	assert.InDelta(t, 201.0, r.FilledNotional, 1e-9)
	assert.InDelta(t, 799.0, r.Shortfall, 1e-9)
	assert.InDelta(t, r.TargetNotional, r.FilledNotional+r.Shortfall, 1e-9)
}

func TestImpactCostSellSide(t *testing.T) {
	bids := levels([2]float64{99, 50}, [2]float64{98, 50})

	r := ImpactCost(bids, 100, 1000, SideSell)

	require.NotNil(t, r.SlipBps)
	// fill entirely at 99: (100-99)/100 = 100bp
	assert.InDelta(t, 100.0, *r.SlipBps, 1e-9)
}

func TestImpactCostEmptyBook(t *testing.T) {
	r := ImpactCost(nil, 100, 1000, SideBuy)
	assert.Nil(t, r.AvgFillPrice)
	assert.Nil(t, r.SlipBps)
	assert.True(t, r.InsufficientLiquidity)
	assert.InDelta(t, 1000.0, r.Shortfall, 1e-9)
}

func TestRealizedVolatilityFlatSeries(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 5.0
	}
	v := RealizedVolatility(closes)
	require.NotNil(t, v)
	assert.InDelta(t, 0.0, *v, 1e-12)
}

func TestRealizedVolatilityNeedsTwoReturns(t *testing.T) {
	assert.Nil(t, RealizedVolatility(nil))
	assert.Nil(t, RealizedVolatility([]float64{1.0}))
	assert.Nil(t, RealizedVolatility([]float64{1.0, 2.0}))

	// non-positive closes are skipped, leaving too few returns
	assert.Nil(t, RealizedVolatility([]float64{1.0, 0, 2.0, 0, 3.0}))
}

func TestRealizedVolatilityUsesTrailingWindow(t *testing.T) {
	// 50 closes; only the last 25 matter. Make the early ones wild and
	// the late ones flat: result must be zero.
	closes := make([]float64, 50)
	for i := 0; i < 25; i++ {
		closes[i] = float64(1 + i%7)
	}
	for i := 25; i < 50; i++ {
		closes[i] = 10.0
	}
	v := RealizedVolatility(closes)
	require.NotNil(t, v)
	assert.InDelta(t, 0.0, *v, 1e-12)
}

func candlesHL(pairs ...[2]float64) []models.Candle {
	out := make([]models.Candle, 0, len(pairs))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range pairs {
		out = append(out, models.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			High:     p[0],
			Low:      p[1],
			Close:    (p[0] + p[1]) / 2,
		})
	}
	return out
}

func TestATRLike(t *testing.T) {
	c := candlesHL([2]float64{105, 95}, [2]float64{108, 98}, [2]float64{106, 100})
	v := ATRLike(c)
	require.NotNil(t, v)
	assert.InDelta(t, (10.0+10.0+6.0)/3.0, *v, 1e-9)

	assert.Nil(t, ATRLike(nil))
}

func TestPctChangeFromCandles(t *testing.T) {
	candles := []models.Candle{
		{Close: 100}, {Close: 101}, {Close: 102}, {Close: 110},
	}

	v := PctChangeFromCandles(candles, 1)
	require.NotNil(t, v)
	assert.InDelta(t, (110.0-102.0)/102.0*100, *v, 1e-9)

	v = PctChangeFromCandles(candles, 3)
	require.NotNil(t, v)
	assert.InDelta(t, 10.0, *v, 1e-9)

	// insufficient history
	assert.Nil(t, PctChangeFromCandles(candles, 4))

	// non-positive reference close
	bad := []models.Candle{{Close: 0}, {Close: 110}}
	assert.Nil(t, PctChangeFromCandles(bad, 1))
}
