package models

import (
	"fmt"
	"time"
)

// ErrorKind classifies a collection failure. Kinds are stable strings so
// they can be persisted and matched by downstream consumers.
type ErrorKind string

const (
	ErrUnsupportedVenue      ErrorKind = "unsupported_venue"
	ErrVerifyFailed          ErrorKind = "verify_failed"
	ErrSymbolNotFound        ErrorKind = "symbol_not_found"
	ErrNetwork               ErrorKind = "network_error"
	ErrVenueTimeout          ErrorKind = "venue_timeout"
	ErrHTTP                  ErrorKind = "http_error"
	ErrTickerFailed          ErrorKind = "ticker_failed"
	ErrOrderBookFailed       ErrorKind = "orderbook_failed"
	ErrFundingFailed         ErrorKind = "funding_failed"
	ErrOpenInterestFailed    ErrorKind = "open_interest_failed"
	ErrOHLCVFailed           ErrorKind = "ohlcv_failed"
	ErrMarketDataUnavailable ErrorKind = "market_data_unavailable"
)

// FieldError records one structured per-field collection failure on a
// snapshot. Failures never abort sibling fields.
type FieldError struct {
	Kind   ErrorKind `json:"kind"`
	Detail string    `json:"detail"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Ticker holds venue-reported last price and 24h statistics. Percentage
// changes may be filled later from candles if the venue omits them.
type Ticker struct {
	LastPrice      *float64 `json:"last_price,omitempty"`
	QuoteVolume24h *float64 `json:"quote_volume_24h,omitempty"`
	PctChange1h    *float64 `json:"pct_change_1h,omitempty"`
	PctChange24h   *float64 `json:"pct_change_24h,omitempty"`
}

// BookLevel is one normalized order-book level. Qty is always base-asset
// units; contract-quoted venues are converted before a level reaches here.
type BookLevel struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// OrderBook is the normalized two-sided book as fetched from a venue.
// Bids are sorted best (highest) first, asks best (lowest) first.
type OrderBook struct {
	Bids []BookLevel `json:"bids"`
	Asks []BookLevel `json:"asks"`
}

// ImpactCostResult is the outcome of simulating a market order of
// TargetNotional against one side of the book.
//
// Invariants: FilledNotional + Shortfall == TargetNotional, and
// InsufficientLiquidity is true iff Shortfall > 0.
type ImpactCostResult struct {
	AvgFillPrice          *float64 `json:"avg_fill_price,omitempty"`
	SlipBps               *float64 `json:"slip_bps,omitempty"`
	FilledNotional        float64  `json:"filled_notional"`
	TargetNotional        float64  `json:"target_notional"`
	InsufficientLiquidity bool     `json:"insufficient_liquidity"`
	Shortfall             float64  `json:"shortfall"`
}

// OrderBookMetrics carries best quotes, spread, cumulative depth and the
// four impact-cost simulations (buy/sell at the two configured notionals).
type OrderBookMetrics struct {
	BestBid         *float64 `json:"best_bid,omitempty"`
	BestAsk         *float64 `json:"best_ask,omitempty"`
	Mid             *float64 `json:"mid,omitempty"`
	SpreadBps       *float64 `json:"spread_bps,omitempty"`
	Depth1PctBid    *float64 `json:"depth_1pct_bid,omitempty"`
	Depth1PctAsk    *float64 `json:"depth_1pct_ask,omitempty"`
	Depth2PctBid    *float64 `json:"depth_2pct_bid,omitempty"`
	Depth2PctAsk    *float64 `json:"depth_2pct_ask,omitempty"`
	ImpactBuyN1     *ImpactCostResult `json:"impact_buy_n1,omitempty"`
	ImpactSellN1    *ImpactCostResult `json:"impact_sell_n1,omitempty"`
	ImpactBuyN2     *ImpactCostResult `json:"impact_buy_n2,omitempty"`
	ImpactSellN2    *ImpactCostResult `json:"impact_sell_n2,omitempty"`
	RetainedLevels  *OrderBook        `json:"retained_levels,omitempty"`
}

// DepthTotal1Pct returns bid+ask cumulative depth at 1%, or nil when
// either side is absent.
func (m *OrderBookMetrics) DepthTotal1Pct() *float64 {
	if m == nil || m.Depth1PctBid == nil || m.Depth1PctAsk == nil {
		return nil
	}
	total := *m.Depth1PctBid + *m.Depth1PctAsk
	return &total
}

// Funding holds the latest funding rate and its settlement time.
type Funding struct {
	Rate *float64   `json:"funding_rate,omitempty"`
	Time *time.Time `json:"funding_time,omitempty"`
}

// OpenInterest holds open interest in quote notional and/or contracts.
// Notional is derived from contracts and price when the venue reports
// only a contract count.
type OpenInterest struct {
	ValueQuote *float64 `json:"oi_value_quote,omitempty"`
	Contracts  *float64 `json:"oi_contracts,omitempty"`
}

// Candle is one OHLCV bar.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// OhlcvMetrics holds realized volatility and an ATR-like range measure
// derived from the trailing candle window. CandleCount is how many
// candles were actually available, which may be below the window.
type OhlcvMetrics struct {
	RealizedVol24h *float64 `json:"realized_vol_24h,omitempty"`
	ATRLike24h     *float64 `json:"atr_like_24h,omitempty"`
	CandleCount    int      `json:"candle_count"`
}

// VenueSnapshot is one sampling of one venue at one instant. Created by
// the collector, enriched once by the calculator, persisted once,
// immutable after that.
//
// Invariant: when MissingMarket is true, no derived-metric fields are set;
// a snapshot with at least a ticker or order book is never MissingMarket.
type VenueSnapshot struct {
	Venue         string                 `json:"venue"`
	Symbol        string                 `json:"symbol"`
	Timestamp     time.Time              `json:"ts_utc"`
	MissingMarket bool                   `json:"missing_market"`
	Ticker        *Ticker                `json:"ticker,omitempty"`
	OrderBook     *OrderBookMetrics      `json:"orderbook,omitempty"`
	Funding       *Funding               `json:"funding,omitempty"`
	OpenInterest  *OpenInterest          `json:"open_interest,omitempty"`
	Ohlcv         *OhlcvMetrics          `json:"ohlcv,omitempty"`
	Raw           map[string]interface{} `json:"raw,omitempty"`
	Errors        []FieldError           `json:"errors,omitempty"`
}

// AddError appends a structured error record to the snapshot.
func (s *VenueSnapshot) AddError(kind ErrorKind, detail string) {
	s.Errors = append(s.Errors, FieldError{Kind: kind, Detail: detail})
}

// SetRaw stores a raw diagnostic payload under key, lazily allocating
// the map.
func (s *VenueSnapshot) SetRaw(key string, v interface{}) {
	if s.Raw == nil {
		s.Raw = make(map[string]interface{})
	}
	s.Raw[key] = v
}

// BaselineValues is the per-venue robust reference point recomputed each
// cycle from persisted history. Never mutated after creation.
type BaselineValues struct {
	Venue               string    `json:"venue"`
	Symbol              string    `json:"symbol"`
	Timestamp           time.Time `json:"ts_utc"`
	Depth1PctMedian     *float64  `json:"depth_1pct_total_median,omitempty"`
	SpreadBpsMedian     *float64  `json:"spread_bps_median,omitempty"`
	SlipBpsN2Median     *float64  `json:"slip_bps_n2_median,omitempty"`
	Volume24hMean       *float64  `json:"volume_24h_mean,omitempty"`
	SampleCount         int       `json:"sample_count"`
	WarmingUp           bool      `json:"warming_up"`
}

// Severity levels for alerts.
const (
	SeverityInfo     = "info"
	SeverityWarn     = "warn"
	SeverityCritical = "critical"
)

// Rule identifiers. Dedupe keys are derived from these.
const (
	RuleDepthShrink           = "depth_shrink"
	RuleSpreadWiden           = "spread_widen"
	RuleImpactCostUp          = "impact_cost_up"
	RuleInsufficientLiquidity = "insufficient_liquidity"
	RuleVolumeSpike           = "volume_spike"
)

// Alert is one emitted anomaly. Immutable and append-only in storage.
type Alert struct {
	Rule          string    `json:"rule"`
	Venue         string    `json:"venue"`
	Symbol        string    `json:"symbol"`
	Severity      string    `json:"severity"`
	Message       string    `json:"message"`
	ThresholdValue *float64 `json:"threshold_value,omitempty"`
	CurrentValue   *float64 `json:"current_value,omitempty"`
	BaselineValue  *float64 `json:"baseline_value,omitempty"`
	Timestamp     time.Time `json:"ts_utc"`
	DedupeKey     string    `json:"dedupe_key"`
}

// DedupeKey builds the deterministic alert identity for a rule on a
// venue/symbol pair.
func DedupeKey(rule, venue, symbol string) string {
	return fmt.Sprintf("%s:%s:%s", rule, venue, symbol)
}

// CycleOutput is the full result of one monitoring cycle, handed to the
// output sinks (console, JSON file, dashboard).
type CycleOutput struct {
	Timestamp time.Time                  `json:"ts_utc"`
	Token     string                     `json:"token"`
	Snapshots map[string]*VenueSnapshot  `json:"snapshots"`
	Baselines map[string]*BaselineValues `json:"baselines"`
	Alerts    []Alert                    `json:"alerts"`
}

// Float returns a pointer to v. Convenience for optional metric fields.
func Float(v float64) *float64 { return &v }
