package calc

import (
	"github.com/monlabs/monwatch/internal/models"
)

// EnrichParams carries the per-cycle calculation inputs from config.
type EnrichParams struct {
	Notional1      float64
	Notional2      float64
	RetainedLevels int
}

// ProcessOrderBook derives all order-book metrics from a normalized
// book. tickerMid is the last traded price used as the reference mid
// when positive; otherwise the book's own mid is used.
func ProcessOrderBook(book *models.OrderBook, tickerMid float64, p EnrichParams) *models.OrderBookMetrics {
	m := &models.OrderBookMetrics{}

	if len(book.Bids) > 0 {
		m.BestBid = models.Float(book.Bids[0].Price)
	}
	if len(book.Asks) > 0 {
		m.BestAsk = models.Float(book.Asks[0].Price)
	}

	if m.BestBid != nil && m.BestAsk != nil {
		mid := (*m.BestBid + *m.BestAsk) / 2
		m.Mid = models.Float(mid)
		if mid > 0 {
			m.SpreadBps = models.Float((*m.BestAsk - *m.BestBid) / mid * 10000)
		}
	}

	effectiveMid := tickerMid
	if effectiveMid <= 0 && m.Mid != nil {
		effectiveMid = *m.Mid
	}

	if effectiveMid > 0 {
		m.Depth1PctBid = models.Float(DepthWithinPct(book.Bids, effectiveMid, 1.0, SideBid))
		m.Depth1PctAsk = models.Float(DepthWithinPct(book.Asks, effectiveMid, 1.0, SideAsk))
		m.Depth2PctBid = models.Float(DepthWithinPct(book.Bids, effectiveMid, 2.0, SideBid))
		m.Depth2PctAsk = models.Float(DepthWithinPct(book.Asks, effectiveMid, 2.0, SideAsk))

		// asks ascend for buys, bids descend for sells
		buyN1 := ImpactCost(book.Asks, effectiveMid, p.Notional1, SideBuy)
		sellN1 := ImpactCost(book.Bids, effectiveMid, p.Notional1, SideSell)
		buyN2 := ImpactCost(book.Asks, effectiveMid, p.Notional2, SideBuy)
		sellN2 := ImpactCost(book.Bids, effectiveMid, p.Notional2, SideSell)
		m.ImpactBuyN1 = &buyN1
		m.ImpactSellN1 = &sellN1
		m.ImpactBuyN2 = &buyN2
		m.ImpactSellN2 = &sellN2
	}

	m.RetainedLevels = retainLevels(book, p.RetainedLevels)
	return m
}

func retainLevels(book *models.OrderBook, n int) *models.OrderBook {
	clip := func(levels []models.BookLevel) []models.BookLevel {
		if len(levels) > n {
			return levels[:n]
		}
		return levels
	}
	return &models.OrderBook{Bids: clip(book.Bids), Asks: clip(book.Asks)}
}

// ProcessCandles derives volatility and range metrics from a candle
// series.
func ProcessCandles(candles []models.Candle) *models.OhlcvMetrics {
	m := &models.OhlcvMetrics{CandleCount: len(candles)}
	if len(candles) == 0 {
		return m
	}

	closes := make([]float64, 0, len(candles))
	for _, c := range candles {
		closes = append(closes, c.Close)
	}
	m.RealizedVol24h = RealizedVolatility(closes)
	m.ATRLike24h = ATRLike(candles)
	return m
}

// EnrichSnapshot fills the derived-metric fields of a freshly collected
// snapshot from its raw book and candles. Missing-market snapshots pass
// through untouched. Ticker percentage changes are filled from candles
// only when the venue left them absent, and open-interest notional is
// derived from contracts when the venue reports contracts only.
func EnrichSnapshot(snap *models.VenueSnapshot, book *models.OrderBook, candles []models.Candle, p EnrichParams) {
	if snap.MissingMarket {
		return
	}

	if book != nil {
		tickerMid := 0.0
		if snap.Ticker != nil && snap.Ticker.LastPrice != nil {
			tickerMid = *snap.Ticker.LastPrice
		}
		snap.OrderBook = ProcessOrderBook(book, tickerMid, p)
	}

	if len(candles) > 0 {
		snap.Ohlcv = ProcessCandles(candles)

		// fill only if absent: venue-native ticker values win
		if snap.Ticker != nil {
			if snap.Ticker.PctChange1h == nil {
				snap.Ticker.PctChange1h = PctChangeFromCandles(candles, 1)
			}
			if snap.Ticker.PctChange24h == nil {
				snap.Ticker.PctChange24h = PctChangeFromCandles(candles, 24)
			}
		}
	}

	if oi := snap.OpenInterest; oi != nil && oi.ValueQuote == nil && oi.Contracts != nil {
		var price *float64
		if snap.Ticker != nil && snap.Ticker.LastPrice != nil {
			price = snap.Ticker.LastPrice
		} else if snap.OrderBook != nil && snap.OrderBook.Mid != nil {
			price = snap.OrderBook.Mid
		}
		if price != nil && *price > 0 {
			oi.ValueQuote = models.Float(*oi.Contracts * *price)
		}
	}
}
