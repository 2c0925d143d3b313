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

// bybit adapts the Bybit linear perpetual public REST API. Order-book
// sizes are base-asset units, multiplier 1.0.
type bybit struct {
	baseURL string
	pool    *httpclient.ClientPool
	breaker *gobreaker.CircuitBreaker
}

func newBybit(baseURL string, pool *httpclient.ClientPool) *bybit {
	return &bybit{
		baseURL: baseURL,
		pool:    pool,
		breaker: newBreaker("bybit"),
	}
}

func (b *bybit) Name() string { return "bybit" }

func (b *bybit) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.pool.GetJSON(ctx, b.baseURL, path, params, out)
	})
	return err
}

// bybitListResult is the common result.list wrapper.
type bybitListResult struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []map[string]interface{} `json:"list"`
	} `json:"result"`
}

func (b *bybit) Verify(ctx context.Context, symbol string) (bool, string) {
	var resp bybitListResult
	params := url.Values{"category": {"linear"}, "symbol": {symbol}}
	err := b.get(ctx, "/v5/market/instruments-info", params, &resp)
	if err != nil {
		if kind := ClassifyError(err); kind == models.ErrNetwork || kind == models.ErrVenueTimeout {
			return false, fmt.Sprintf("network_error:%v", err)
		}
		return false, "symbol_not_found"
	}
	if len(resp.Result.List) == 0 {
		return false, "symbol_not_found"
	}
	return true, "ok"
}

func (b *bybit) InstrumentMeta(ctx context.Context, symbol string) Meta {
	// size is base asset already
	return Meta{
		BaseUnitMultiplier: 1.0,
		Raw:                map[string]interface{}{"venue": "bybit", "base_unit_multiplier": 1.0},
	}
}

func (b *bybit) Ticker(ctx context.Context, symbol string) (*models.Ticker, interface{}, error) {
	var resp bybitListResult
	params := url.Values{"category": {"linear"}, "symbol": {symbol}}
	if err := b.get(ctx, "/v5/market/tickers", params, &resp); err != nil {
		return nil, nil, fmt.Errorf("bybit ticker: %w", err)
	}
	if len(resp.Result.List) == 0 {
		return nil, nil, fmt.Errorf("bybit ticker: empty response (retCode=%d)", resp.RetCode)
	}

	d := resp.Result.List[0]
	t := &models.Ticker{}
	if v, ok := parseFloat(d["lastPrice"]); ok {
		t.LastPrice = models.Float(v)
	}
	if v, ok := parseFloat(d["turnover24h"]); ok {
		t.QuoteVolume24h = models.Float(v)
	}
	if v, ok := parseFloat(d["price24hPcnt"]); ok {
		t.PctChange24h = models.Float(v * 100)
	}
	return t, d, nil
}

func (b *bybit) OrderBook(ctx context.Context, symbol string, depthLimit int, multiplier float64) (*models.OrderBook, interface{}, error) {
	// orderbook caps limit at 200 for linear
	limit := depthLimit
	if limit > 200 {
		limit = 200
	}
	var resp struct {
		RetCode int `json:"retCode"`
		Result  struct {
			Bids [][]interface{} `json:"b"`
			Asks [][]interface{} `json:"a"`
		} `json:"result"`
	}
	params := url.Values{"category": {"linear"}, "symbol": {symbol}, "limit": {strconv.Itoa(limit)}}
	if err := b.get(ctx, "/v5/market/orderbook", params, &resp); err != nil {
		return nil, nil, fmt.Errorf("bybit orderbook: %w", err)
	}

	m := MultiplierOrDefault("bybit", multiplier)
	book := &models.OrderBook{
		Bids: NormalizeLevels(resp.Result.Bids, m),
		Asks: NormalizeLevels(resp.Result.Asks, m),
	}
	summary := map[string]interface{}{
		"bids_count": len(book.Bids),
		"asks_count": len(book.Asks),
		"multiplier": m,
	}
	return book, summary, nil
}

func (b *bybit) Funding(ctx context.Context, symbol string) (*models.Funding, interface{}, error) {
	var resp bybitListResult
	params := url.Values{"category": {"linear"}, "symbol": {symbol}, "limit": {"1"}}
	if err := b.get(ctx, "/v5/market/funding/history", params, &resp); err != nil {
		return nil, nil, fmt.Errorf("bybit funding: %w", err)
	}
	if len(resp.Result.List) == 0 {
		return nil, nil, fmt.Errorf("bybit funding: empty history")
	}

	d := resp.Result.List[0]
	f := &models.Funding{}
	if v, ok := parseFloat(d["fundingRate"]); ok {
		f.Rate = models.Float(v)
	}
	if ms, ok := parseFloat(d["fundingRateTimestamp"]); ok {
		t := time.UnixMilli(int64(ms)).UTC()
		f.Time = &t
	}
	return f, d, nil
}

func (b *bybit) OpenInterest(ctx context.Context, symbol string) (*models.OpenInterest, interface{}, error) {
	var resp bybitListResult
	params := url.Values{
		"category":     {"linear"},
		"symbol":       {symbol},
		"intervalTime": {"5min"},
		"limit":        {"1"},
	}
	if err := b.get(ctx, "/v5/market/open-interest", params, &resp); err != nil {
		return nil, nil, fmt.Errorf("bybit open interest: %w", err)
	}
	if len(resp.Result.List) == 0 {
		return nil, nil, fmt.Errorf("bybit open interest: empty history")
	}

	d := resp.Result.List[0]
	oi := &models.OpenInterest{}
	if v, ok := parseFloat(d["openInterest"]); ok {
		oi.Contracts = models.Float(v)
	}
	return oi, d, nil
}

func (b *bybit) Klines(ctx context.Context, symbol string, count int) ([]models.Candle, interface{}, error) {
	var resp struct {
		RetCode int `json:"retCode"`
		Result  struct {
			List [][]interface{} `json:"list"`
		} `json:"result"`
	}
	params := url.Values{
		"category": {"linear"},
		"symbol":   {symbol},
		"interval": {"60"},
		"limit":    {strconv.Itoa(count)},
	}
	if err := b.get(ctx, "/v5/market/kline", params, &resp); err != nil {
		return nil, nil, fmt.Errorf("bybit klines: %w", err)
	}

	// Bybit returns newest first
	candles := parseCandles(resp.Result.List, true)
	summary := map[string]interface{}{"timeframe": "1h", "candle_count": len(candles)}
	return candles, summary, nil
}
