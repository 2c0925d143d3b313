package calc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monlabs/monwatch/internal/models"
)

func testBook() *models.OrderBook {
	return &models.OrderBook{
		Bids: levels([2]float64{99.5, 100}, [2]float64{99, 100}),
		Asks: levels([2]float64{100.5, 100}, [2]float64{101, 100}),
	}
}

func TestProcessOrderBookBasics(t *testing.T) {
	m := ProcessOrderBook(testBook(), 0, EnrichParams{Notional1: 1000, Notional2: 10000, RetainedLevels: 1})

	require.NotNil(t, m.BestBid)
	require.NotNil(t, m.BestAsk)
	require.NotNil(t, m.Mid)
	require.NotNil(t, m.SpreadBps)
	assert.InDelta(t, 99.5, *m.BestBid, 1e-9)
	assert.InDelta(t, 100.5, *m.BestAsk, 1e-9)
	assert.InDelta(t, 100.0, *m.Mid, 1e-9)
	assert.InDelta(t, 100.0, *m.SpreadBps, 1e-9)

	require.NotNil(t, m.ImpactBuyN1)
	require.NotNil(t, m.ImpactSellN2)
	assert.Len(t, m.RetainedLevels.Bids, 1)
	assert.Len(t, m.RetainedLevels.Asks, 1)
}

func TestProcessOrderBookPrefersTickerMid(t *testing.T) {
	// book mid is 100, ticker says 102: depth bands anchor on 102
	m := ProcessOrderBook(testBook(), 102, EnrichParams{Notional1: 1000, Notional2: 10000, RetainedLevels: 5})

	// 1% band around 102: bids >= 100.98 (none), asks <= 103.02 (both)
	require.NotNil(t, m.Depth1PctBid)
	require.NotNil(t, m.Depth1PctAsk)
	assert.InDelta(t, 0.0, *m.Depth1PctBid, 1e-9)
	assert.InDelta(t, 100.5*100+101*100, *m.Depth1PctAsk, 1e-9)
}

func TestProcessOrderBookOneSided(t *testing.T) {
	book := &models.OrderBook{Asks: levels([2]float64{100.5, 10})}
	m := ProcessOrderBook(book, 0, EnrichParams{Notional1: 1000, Notional2: 10000, RetainedLevels: 5})

	assert.Nil(t, m.BestBid)
	assert.Nil(t, m.Mid)
	assert.Nil(t, m.SpreadBps)
	// no mid and no ticker price: no depth or impact either
	assert.Nil(t, m.Depth1PctAsk)
	assert.Nil(t, m.ImpactBuyN1)
}

func TestEnrichSnapshotSkipsMissingMarket(t *testing.T) {
	snap := &models.VenueSnapshot{Venue: "binance", MissingMarket: true}
	EnrichSnapshot(snap, testBook(), nil, EnrichParams{Notional1: 1000, Notional2: 10000})
	assert.Nil(t, snap.OrderBook)
}

func TestEnrichSnapshotFillsPctChangeOnlyIfAbsent(t *testing.T) {
	candles := []models.Candle{{Close: 100}, {Close: 104}}
	snap := &models.VenueSnapshot{
		Venue:  "binance",
		Ticker: &models.Ticker{PctChange24h: models.Float(-3.0)},
	}

	EnrichSnapshot(snap, nil, candles, EnrichParams{})

	// venue-native 24h change survives; 1h is filled from candles
	require.NotNil(t, snap.Ticker.PctChange24h)
	assert.InDelta(t, -3.0, *snap.Ticker.PctChange24h, 1e-9)
	require.NotNil(t, snap.Ticker.PctChange1h)
	assert.InDelta(t, 4.0, *snap.Ticker.PctChange1h, 1e-9)
}

func TestEnrichSnapshotDerivesOINotional(t *testing.T) {
	snap := &models.VenueSnapshot{
		Venue:        "binance",
		Ticker:       &models.Ticker{LastPrice: models.Float(2.5)},
		OpenInterest: &models.OpenInterest{Contracts: models.Float(1000)},
	}

	EnrichSnapshot(snap, nil, nil, EnrichParams{})

	require.NotNil(t, snap.OpenInterest.ValueQuote)
	assert.InDelta(t, 2500.0, *snap.OpenInterest.ValueQuote, 1e-9)
}

func TestEnrichSnapshotKeepsVenueOINotional(t *testing.T) {
	snap := &models.VenueSnapshot{
		Venue:        "okx",
		Ticker:       &models.Ticker{LastPrice: models.Float(2.5)},
		OpenInterest: &models.OpenInterest{ValueQuote: models.Float(9999), Contracts: models.Float(1000)},
	}

	EnrichSnapshot(snap, nil, nil, EnrichParams{})

	assert.InDelta(t, 9999.0, *snap.OpenInterest.ValueQuote, 1e-9)
}
