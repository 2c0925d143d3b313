package venue

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/monlabs/monwatch/internal/httpclient"
	"github.com/monlabs/monwatch/internal/models"
)

// binance adapts the Binance USD-M perpetual futures public REST API.
// Order-book quantities are already base-asset units, so the base-unit
// multiplier is 1.0.
type binance struct {
	baseURL string
	pool    *httpclient.ClientPool
	breaker *gobreaker.CircuitBreaker
}

func newBinance(baseURL string, pool *httpclient.ClientPool) *binance {
	return &binance{
		baseURL: baseURL,
		pool:    pool,
		breaker: newBreaker("binance"),
	}
}

func (b *binance) Name() string { return "binance" }

func (b *binance) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.pool.GetJSON(ctx, b.baseURL, path, params, out)
	})
	return err
}

func (b *binance) Verify(ctx context.Context, symbol string) (bool, string) {
	var resp struct {
		Price string `json:"price"`
	}
	err := b.get(ctx, "/fapi/v1/ticker/price", url.Values{"symbol": {symbol}}, &resp)
	if err != nil {
		if kind := ClassifyError(err); kind == models.ErrNetwork || kind == models.ErrVenueTimeout {
			return false, fmt.Sprintf("network_error:%v", err)
		}
		return false, "symbol_not_found"
	}
	if resp.Price == "" {
		return false, "symbol_not_found"
	}
	return true, "ok"
}

func (b *binance) InstrumentMeta(ctx context.Context, symbol string) Meta {
	// qty is base asset already
	return Meta{
		BaseUnitMultiplier: 1.0,
		Raw:                map[string]interface{}{"venue": "binance", "base_unit_multiplier": 1.0},
	}
}

func (b *binance) Ticker(ctx context.Context, symbol string) (*models.Ticker, interface{}, error) {
	var raw struct {
		LastPrice          string `json:"lastPrice"`
		QuoteVolume        string `json:"quoteVolume"`
		PriceChangePercent string `json:"priceChangePercent"`
	}
	if err := b.get(ctx, "/fapi/v1/ticker/24hr", url.Values{"symbol": {symbol}}, &raw); err != nil {
		return nil, nil, fmt.Errorf("binance ticker: %w", err)
	}

	t := &models.Ticker{}
	if v, err := strconv.ParseFloat(raw.LastPrice, 64); err == nil {
		t.LastPrice = models.Float(v)
	}
	if v, err := strconv.ParseFloat(raw.QuoteVolume, 64); err == nil {
		t.QuoteVolume24h = models.Float(v)
	}
	if v, err := strconv.ParseFloat(raw.PriceChangePercent, 64); err == nil {
		t.PctChange24h = models.Float(v)
	}
	return t, raw, nil
}

func (b *binance) OrderBook(ctx context.Context, symbol string, depthLimit int, multiplier float64) (*models.OrderBook, interface{}, error) {
	var raw struct {
		Bids [][]interface{} `json:"bids"`
		Asks [][]interface{} `json:"asks"`
	}
	params := url.Values{"symbol": {symbol}, "limit": {strconv.Itoa(depthLimit)}}
	if err := b.get(ctx, "/fapi/v1/depth", params, &raw); err != nil {
		return nil, nil, fmt.Errorf("binance orderbook: %w", err)
	}

	m := MultiplierOrDefault("binance", multiplier)
	book := &models.OrderBook{
		Bids: NormalizeLevels(raw.Bids, m),
		Asks: NormalizeLevels(raw.Asks, m),
	}
	summary := map[string]interface{}{
		"bids_count": len(book.Bids),
		"asks_count": len(book.Asks),
		"multiplier": m,
	}
	return book, summary, nil
}

func (b *binance) Funding(ctx context.Context, symbol string) (*models.Funding, interface{}, error) {
	var raw struct {
		LastFundingRate string `json:"lastFundingRate"`
		NextFundingTime int64  `json:"nextFundingTime"`
	}
	if err := b.get(ctx, "/fapi/v1/premiumIndex", url.Values{"symbol": {symbol}}, &raw); err != nil {
		return nil, nil, fmt.Errorf("binance funding: %w", err)
	}

	f := &models.Funding{}
	if v, err := strconv.ParseFloat(raw.LastFundingRate, 64); err == nil {
		f.Rate = models.Float(v)
	}
	if raw.NextFundingTime > 0 {
		t := time.UnixMilli(raw.NextFundingTime).UTC()
		f.Time = &t
	}
	return f, raw, nil
}

func (b *binance) OpenInterest(ctx context.Context, symbol string) (*models.OpenInterest, interface{}, error) {
	var raw struct {
		OpenInterest string `json:"openInterest"`
	}
	if err := b.get(ctx, "/fapi/v1/openInterest", url.Values{"symbol": {symbol}}, &raw); err != nil {
		return nil, nil, fmt.Errorf("binance open interest: %w", err)
	}

	oi := &models.OpenInterest{}
	if v, err := strconv.ParseFloat(raw.OpenInterest, 64); err == nil {
		oi.Contracts = models.Float(v)
	}
	return oi, raw, nil
}

func (b *binance) Klines(ctx context.Context, symbol string, count int) ([]models.Candle, interface{}, error) {
	var raw [][]interface{}
	params := url.Values{
		"symbol":   {symbol},
		"interval": {"1h"},
		"limit":    {strconv.Itoa(count)},
	}
	if err := b.get(ctx, "/fapi/v1/klines", params, &raw); err != nil {
		return nil, nil, fmt.Errorf("binance klines: %w", err)
	}

	candles := parseCandles(raw, false)
	summary := map[string]interface{}{"timeframe": "1h", "candle_count": len(candles)}
	return candles, summary, nil
}

// parseCandles converts [ts, open, high, low, close, volume, ...] rows,
// skipping rows that do not parse. reversed means newest-first input.
func parseCandles(rows [][]interface{}, reversed bool) []models.Candle {
	candles := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		ts, ok := parseFloat(row[0])
		if !ok {
			continue
		}
		o, ok1 := parseFloat(row[1])
		h, ok2 := parseFloat(row[2])
		l, ok3 := parseFloat(row[3])
		c, ok4 := parseFloat(row[4])
		v, ok5 := parseFloat(row[5])
		if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
			continue
		}
		candles = append(candles, models.Candle{
			OpenTime: time.UnixMilli(int64(ts)).UTC(),
			Open:     o,
			High:     h,
			Low:      l,
			Close:    c,
			Volume:   v,
		})
	}
	if reversed {
		for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
			candles[i], candles[j] = candles[j], candles[i]
		}
	}
	return candles
}
