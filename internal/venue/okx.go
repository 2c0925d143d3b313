package venue

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/monlabs/monwatch/internal/httpclient"
	"github.com/monlabs/monwatch/internal/models"
)

// okxFallbackURLs are the official alternate domains tried during
// endpoint resolution, in preference order after the app domain and the
// configured domain.
var okxFallbackURLs = []string{
	"https://app.okx.com",
	"https://my.okx.com",
	"https://www.okx.com",
}

// okx adapts the OKX perpetual swap public REST API. Order-book sizes
// are contract counts; the real base-asset quantity is sz*ctVal*ctMult,
// so InstrumentMeta must be consulted before any depth arithmetic.
//
// OKX serves its API from several regional domains and some are
// unreachable from some networks, so the adapter resolves a working
// base URL before each collection pass.
type okx struct {
	configuredURL string
	fallbackURLs  []string
	pool          *httpclient.ClientPool
	breaker       *gobreaker.CircuitBreaker

	mu       sync.Mutex
	resolved string
}

func newOKX(baseURL string, pool *httpclient.ClientPool) *okx {
	return &okx{
		configuredURL: baseURL,
		fallbackURLs:  okxFallbackURLs,
		pool:          pool,
		breaker:       newBreaker("okx"),
	}
}

func (o *okx) Name() string { return "okx" }

func (o *okx) base() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.resolved != "" {
		return o.resolved
	}
	return o.configuredURL
}

func (o *okx) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	return o.getFrom(ctx, o.base(), path, params, out)
}

func (o *okx) getFrom(ctx context.Context, base, path string, params url.Values, out interface{}) error {
	_, err := o.breaker.Execute(func() (interface{}, error) {
		return nil, o.pool.GetJSON(ctx, base, path, params, out)
	})
	return err
}

// candidateBaseURLs builds the resolution preference list: app domain
// first, then the configured domain, then the official fallbacks,
// deduplicated in order.
func (o *okx) candidateBaseURLs() []string {
	candidates := make([]string, 0, len(o.fallbackURLs)+1)
	if len(o.fallbackURLs) > 0 {
		candidates = append(candidates, o.fallbackURLs[0])
	}
	if o.configuredURL != "" {
		candidates = append(candidates, strings.TrimRight(o.configuredURL, "/"))
	}
	candidates = append(candidates, o.fallbackURLs...)

	seen := make(map[string]bool, len(candidates))
	uniq := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if !seen[c] {
			uniq = append(uniq, c)
			seen[c] = true
		}
	}
	return uniq
}

// ResolveEndpoint implements EndpointResolver. It tries each candidate
// base URL until one verifies the symbol, recording every attempt and
// its rejection reason for diagnostics.
func (o *okx) ResolveEndpoint(ctx context.Context, symbol string) (string, []ResolveAttempt, string, bool) {
	var attempts []ResolveAttempt
	finalReason := "network_error"

	for _, candidate := range o.candidateBaseURLs() {
		ok, reason := o.verifyAt(ctx, candidate, symbol)
		attempts = append(attempts, ResolveAttempt{BaseURL: candidate, Status: reason})
		if ok {
			o.mu.Lock()
			o.resolved = candidate
			o.mu.Unlock()
			return candidate, attempts, "ok", true
		}
		finalReason = reason
	}
	return "", attempts, finalReason, false
}

func (o *okx) verifyAt(ctx context.Context, base, symbol string) (bool, string) {
	var resp okxEnvelope
	params := url.Values{"instType": {"SWAP"}, "instId": {symbol}}
	err := o.getFrom(ctx, base, "/api/v5/public/instruments", params, &resp)
	if err != nil {
		if kind := ClassifyError(err); kind == models.ErrNetwork || kind == models.ErrVenueTimeout {
			return false, fmt.Sprintf("network_error:%v", err)
		}
		return false, fmt.Sprintf("verify_error:%v", err)
	}
	if len(resp.Data) == 0 {
		return false, "symbol_not_found"
	}
	return true, "ok"
}

func (o *okx) Verify(ctx context.Context, symbol string) (bool, string) {
	return o.verifyAt(ctx, o.base(), symbol)
}

// okxEnvelope is the common {code, msg, data} response wrapper.
type okxEnvelope struct {
	Code string                   `json:"code"`
	Msg  string                   `json:"msg"`
	Data []map[string]interface{} `json:"data"`
}

func (o *okx) InstrumentMeta(ctx context.Context, symbol string) Meta {
	var resp okxEnvelope
	params := url.Values{"instType": {"SWAP"}, "instId": {symbol}}
	err := o.get(ctx, "/api/v5/public/instruments", params, &resp)
	if err != nil || len(resp.Data) == 0 {
		log.Error().Err(err).Msg("okx instrument fetch failed, assuming multiplier 1.0")
		return Meta{BaseUnitMultiplier: 1.0, Raw: map[string]interface{}{"venue": "okx"}}
	}

	d := resp.Data[0]
	ctVal, ok1 := parseFloat(d["ctVal"])
	ctMult, ok2 := parseFloat(d["ctMult"])
	if !ok1 || !ok2 || ctVal <= 0 || ctMult <= 0 {
		log.Warn().Interface("instrument", d).Msg("okx contract value unavailable, assuming multiplier 1.0")
		return Meta{BaseUnitMultiplier: 1.0, Raw: map[string]interface{}{"venue": "okx", "instrument": d}}
	}

	mult := ctVal * ctMult
	log.Info().
		Float64("ct_val", ctVal).
		Float64("ct_mult", ctMult).
		Float64("multiplier", mult).
		Msg("okx instrument metadata resolved")
	return Meta{
		BaseUnitMultiplier: mult,
		Raw: map[string]interface{}{
			"venue":      "okx",
			"ct_val":     ctVal,
			"ct_mult":    ctMult,
			"ct_val_ccy": d["ctValCcy"],
		},
	}
}

func (o *okx) Ticker(ctx context.Context, symbol string) (*models.Ticker, interface{}, error) {
	var resp okxEnvelope
	if err := o.get(ctx, "/api/v5/market/ticker", url.Values{"instId": {symbol}}, &resp); err != nil {
		return nil, nil, fmt.Errorf("okx ticker: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, nil, fmt.Errorf("okx ticker: empty response (code=%s)", resp.Code)
	}

	d := resp.Data[0]
	t := &models.Ticker{}
	last, hasLast := parseFloat(d["last"])
	if hasLast {
		t.LastPrice = models.Float(last)
	}
	if v, ok := parseFloat(d["volCcy24h"]); ok {
		t.QuoteVolume24h = models.Float(v)
	}
	if open, ok := parseFloat(d["open24h"]); ok && open > 0 && hasLast {
		t.PctChange24h = models.Float((last - open) / open * 100)
	}
	return t, d, nil
}

func (o *okx) OrderBook(ctx context.Context, symbol string, depthLimit int, multiplier float64) (*models.OrderBook, interface{}, error) {
	// books caps sz at 400
	sz := depthLimit
	if sz > 400 {
		sz = 400
	}
	var resp struct {
		Code string `json:"code"`
		Data []struct {
			Bids [][]interface{} `json:"bids"`
			Asks [][]interface{} `json:"asks"`
		} `json:"data"`
	}
	params := url.Values{"instId": {symbol}, "sz": {strconv.Itoa(sz)}}
	if err := o.get(ctx, "/api/v5/market/books", params, &resp); err != nil {
		return nil, nil, fmt.Errorf("okx orderbook: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, nil, fmt.Errorf("okx orderbook: empty response (code=%s)", resp.Code)
	}

	m := MultiplierOrDefault("okx", multiplier)
	book := &models.OrderBook{
		Bids: NormalizeLevels(resp.Data[0].Bids, m),
		Asks: NormalizeLevels(resp.Data[0].Asks, m),
	}
	summary := map[string]interface{}{
		"bids_count": len(book.Bids),
		"asks_count": len(book.Asks),
		"multiplier": m,
	}
	return book, summary, nil
}

func (o *okx) Funding(ctx context.Context, symbol string) (*models.Funding, interface{}, error) {
	var resp okxEnvelope
	if err := o.get(ctx, "/api/v5/public/funding-rate", url.Values{"instId": {symbol}}, &resp); err != nil {
		return nil, nil, fmt.Errorf("okx funding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, nil, fmt.Errorf("okx funding: empty response (code=%s)", resp.Code)
	}

	d := resp.Data[0]
	f := &models.Funding{}
	if v, ok := parseFloat(d["fundingRate"]); ok {
		f.Rate = models.Float(v)
	}
	if ms, ok := parseFloat(d["fundingTime"]); ok {
		t := time.UnixMilli(int64(ms)).UTC()
		f.Time = &t
	}
	return f, d, nil
}

func (o *okx) OpenInterest(ctx context.Context, symbol string) (*models.OpenInterest, interface{}, error) {
	var resp okxEnvelope
	params := url.Values{"instType": {"SWAP"}, "instId": {symbol}}
	if err := o.get(ctx, "/api/v5/public/open-interest", params, &resp); err != nil {
		return nil, nil, fmt.Errorf("okx open interest: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, nil, fmt.Errorf("okx open interest: empty response (code=%s)", resp.Code)
	}

	d := resp.Data[0]
	oi := &models.OpenInterest{}
	if v, ok := parseFloat(d["oiUsd"]); ok {
		oi.ValueQuote = models.Float(v)
	}
	if v, ok := parseFloat(d["oi"]); ok {
		oi.Contracts = models.Float(v)
	}
	return oi, d, nil
}

func (o *okx) Klines(ctx context.Context, symbol string, count int) ([]models.Candle, interface{}, error) {
	var resp struct {
		Code string          `json:"code"`
		Data [][]interface{} `json:"data"`
	}
	params := url.Values{"instId": {symbol}, "bar": {"1H"}, "limit": {strconv.Itoa(count)}}
	if err := o.get(ctx, "/api/v5/market/candles", params, &resp); err != nil {
		return nil, nil, fmt.Errorf("okx klines: %w", err)
	}

	// OKX returns newest first
	candles := parseCandles(resp.Data, true)
	summary := map[string]interface{}{"timeframe": "1h", "candle_count": len(candles)}
	return candles, summary, nil
}
