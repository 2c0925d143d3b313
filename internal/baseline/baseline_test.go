package baseline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monlabs/monwatch/internal/models"
	"github.com/monlabs/monwatch/internal/store"
)

func TestMedian(t *testing.T) {
	assert.Nil(t, Median(nil))

	v := Median([]float64{3, 1, 2})
	require.NotNil(t, v)
	assert.InDelta(t, 2.0, *v, 1e-9)

	v = Median([]float64{4, 1, 3, 2})
	require.NotNil(t, v)
	assert.InDelta(t, 2.5, *v, 1e-9)
}

func TestMean(t *testing.T) {
	assert.Nil(t, Mean(nil))

	v := Mean([]float64{1, 2, 6})
	require.NotNil(t, v)
	assert.InDelta(t, 3.0, *v, 1e-9)
}

func seedSnapshot(depthBid, depthAsk, spread, slipBuy, slipSell, volume float64) *models.VenueSnapshot {
	return &models.VenueSnapshot{
		Venue:     "binance",
		Symbol:    "MONUSDT",
		Timestamp: time.Now().UTC(),
		Ticker:    &models.Ticker{QuoteVolume24h: models.Float(volume)},
		OrderBook: &models.OrderBookMetrics{
			Depth1PctBid: models.Float(depthBid),
			Depth1PctAsk: models.Float(depthAsk),
			SpreadBps:    models.Float(spread),
			ImpactBuyN2:  &models.ImpactCostResult{SlipBps: models.Float(slipBuy)},
			ImpactSellN2: &models.ImpactCostResult{SlipBps: models.Float(slipSell)},
		},
	}
}

func TestComputeWarmingUpWithNoHistory(t *testing.T) {
	st := store.NewMemory()
	eng := New(st, 14, 7, 20)

	b, err := eng.Compute(context.Background(), "binance", "MONUSDT")
	require.NoError(t, err)
	assert.True(t, b.WarmingUp)
	assert.Zero(t, b.SampleCount)
	assert.Nil(t, b.Depth1PctMedian)
}

func TestComputeWarmingUpBelowMinSamples(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := st.SaveSnapshot(ctx, seedSnapshot(1000, 1000, 10, 5, 6, 50000))
		require.NoError(t, err)
	}

	eng := New(st, 14, 7, 20)
	b, err := eng.Compute(ctx, "binance", "MONUSDT")
	require.NoError(t, err)

	// medians are still computed, but warming_up blocks warn rules
	assert.True(t, b.WarmingUp)
	assert.Equal(t, 5, b.SampleCount)
	require.NotNil(t, b.Depth1PctMedian)
	assert.InDelta(t, 2000.0, *b.Depth1PctMedian, 1e-9)
}

func TestComputeMedians(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	spreads := []float64{10, 12, 14, 16, 18}
	for i := 0; i < 20; i++ {
		spread := spreads[i%len(spreads)]
		// worse of buy/sell slip enters the median series
		_, err := st.SaveSnapshot(ctx, seedSnapshot(1000, 2000, spread, 5, 8, 50000))
		require.NoError(t, err)
	}

	eng := New(st, 14, 7, 20)
	b, err := eng.Compute(ctx, "binance", "MONUSDT")
	require.NoError(t, err)

	assert.False(t, b.WarmingUp)
	assert.Equal(t, 20, b.SampleCount)

	require.NotNil(t, b.Depth1PctMedian)
	assert.InDelta(t, 3000.0, *b.Depth1PctMedian, 1e-9)

	require.NotNil(t, b.SpreadBpsMedian)
	assert.InDelta(t, 14.0, *b.SpreadBpsMedian, 1e-9)

	require.NotNil(t, b.SlipBpsN2Median)
	assert.InDelta(t, 8.0, *b.SlipBpsN2Median, 1e-9)

	require.NotNil(t, b.Volume24hMean)
	assert.InDelta(t, 50000.0, *b.Volume24hMean, 1e-9)
}

func TestComputeIgnoresMissingMarketRows(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	_, err := st.SaveSnapshot(ctx, seedSnapshot(1000, 1000, 10, 5, 6, 50000))
	require.NoError(t, err)
	_, err = st.SaveSnapshot(ctx, &models.VenueSnapshot{
		Venue: "binance", Symbol: "MONUSDT", Timestamp: time.Now().UTC(), MissingMarket: true,
	})
	require.NoError(t, err)

	eng := New(st, 14, 7, 20)
	b, err := eng.Compute(ctx, "binance", "MONUSDT")
	require.NoError(t, err)
	assert.Equal(t, 1, b.SampleCount)
}
