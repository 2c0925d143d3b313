// Package store provides the durable persistence contract consumed by
// the collector, baseline engine and alert engine, plus its Postgres,
// in-memory and Redis-backed implementations.
package store

import (
	"context"
	"time"

	"github.com/monlabs/monwatch/internal/models"
)

// SnapshotRow is the flattened, persisted form of a snapshot, as
// returned to the baseline engine and the dashboard. Optional metrics
// are nil when they were absent at sampling time.
type SnapshotRow struct {
	ID             int64      `db:"id" json:"id"`
	Timestamp      time.Time  `db:"ts_utc" json:"ts_utc"`
	Venue          string     `db:"venue" json:"venue"`
	Symbol         string     `db:"symbol" json:"symbol"`
	MissingMarket  bool       `db:"missing_market" json:"missing_market"`
	LastPrice      *float64   `db:"last_price" json:"last_price,omitempty"`
	QuoteVolume24h *float64   `db:"quote_volume_24h" json:"quote_volume_24h,omitempty"`
	PctChange1h    *float64   `db:"pct_change_1h" json:"pct_change_1h,omitempty"`
	PctChange24h   *float64   `db:"pct_change_24h" json:"pct_change_24h,omitempty"`
	BestBid        *float64   `db:"best_bid" json:"best_bid,omitempty"`
	BestAsk        *float64   `db:"best_ask" json:"best_ask,omitempty"`
	Mid            *float64   `db:"mid" json:"mid,omitempty"`
	SpreadBps      *float64   `db:"spread_bps" json:"spread_bps,omitempty"`
	Depth1PctBid   *float64   `db:"depth_1pct_bid" json:"depth_1pct_bid,omitempty"`
	Depth1PctAsk   *float64   `db:"depth_1pct_ask" json:"depth_1pct_ask,omitempty"`
	Depth2PctBid   *float64   `db:"depth_2pct_bid" json:"depth_2pct_bid,omitempty"`
	Depth2PctAsk   *float64   `db:"depth_2pct_ask" json:"depth_2pct_ask,omitempty"`
	SlipBpsBuyN1   *float64   `db:"slip_bps_buy_n1" json:"slip_bps_buy_n1,omitempty"`
	SlipBpsSellN1  *float64   `db:"slip_bps_sell_n1" json:"slip_bps_sell_n1,omitempty"`
	SlipBpsBuyN2   *float64   `db:"slip_bps_buy_n2" json:"slip_bps_buy_n2,omitempty"`
	SlipBpsSellN2  *float64   `db:"slip_bps_sell_n2" json:"slip_bps_sell_n2,omitempty"`
	AvgFillBuyN1   *float64   `db:"avg_fill_buy_n1" json:"avg_fill_buy_n1,omitempty"`
	AvgFillSellN1  *float64   `db:"avg_fill_sell_n1" json:"avg_fill_sell_n1,omitempty"`
	AvgFillBuyN2   *float64   `db:"avg_fill_buy_n2" json:"avg_fill_buy_n2,omitempty"`
	AvgFillSellN2  *float64   `db:"avg_fill_sell_n2" json:"avg_fill_sell_n2,omitempty"`
	InsufficientN1 bool       `db:"insufficient_liq_n1" json:"insufficient_liq_n1"`
	InsufficientN2 bool       `db:"insufficient_liq_n2" json:"insufficient_liq_n2"`
	FundingRate    *float64   `db:"funding_rate" json:"funding_rate,omitempty"`
	FundingTime    *time.Time `db:"funding_time" json:"funding_time,omitempty"`
	OIValueQuote   *float64   `db:"oi_value_quote" json:"oi_value_quote,omitempty"`
	OIContracts    *float64   `db:"oi_contracts" json:"oi_contracts,omitempty"`
	RealizedVol24h *float64   `db:"realized_vol_24h" json:"realized_vol_24h,omitempty"`
	ATRLike24h     *float64   `db:"atr_like_24h" json:"atr_like_24h,omitempty"`
	RawJSON        []byte     `db:"raw_json" json:"-"`
	Errors         []byte     `db:"errors" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// AlertRow is a persisted alert with its storage metadata. CreatedAt is
// the dedupe clock: suppression windows are judged by insertion time,
// not by the sampling timestamp.
type AlertRow struct {
	ID             int64     `db:"id" json:"id"`
	Timestamp      time.Time `db:"ts_utc" json:"ts_utc"`
	Rule           string    `db:"rule" json:"rule"`
	Venue          string    `db:"venue" json:"venue"`
	Symbol         string    `db:"symbol" json:"symbol"`
	Severity       string    `db:"severity" json:"severity"`
	Message        string    `db:"message" json:"message"`
	ThresholdValue *float64  `db:"threshold_value" json:"threshold_value,omitempty"`
	CurrentValue   *float64  `db:"current_value" json:"current_value,omitempty"`
	BaselineValue  *float64  `db:"baseline_value" json:"baseline_value,omitempty"`
	DedupeKey      string    `db:"dedupe_key" json:"dedupe_key"`
	SnapshotID     *int64    `db:"snapshot_id" json:"snapshot_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// CounterStore holds the consecutive-confirmation counters, keyed by
// rule:venue:symbol. Accesses are atomic read-then-upsert; keys never
// collide across venues or rules, so no cross-key locking is needed.
type CounterStore interface {
	GetCounter(ctx context.Context, key string) (int, error)
	SetCounter(ctx context.Context, key string, value int, last time.Time) error
}

// Store is the persistence collaborator contract. SaveSnapshot and
// SaveAlert append; everything else is a keyed idempotent-safe upsert
// or read.
type Store interface {
	CounterStore

	SaveSnapshot(ctx context.Context, snap *models.VenueSnapshot) (int64, error)

	// HistoricalSnapshots returns non-missing-market rows for a venue
	// within the trailing window, ascending by sample time.
	HistoricalSnapshots(ctx context.Context, venue string, trailingDays int) ([]SnapshotRow, error)

	// RecentVolumes returns the recorded 24h quote volumes for a venue
	// within the trailing window, ascending by sample time.
	RecentVolumes(ctx context.Context, venue string, trailingDays int) ([]float64, error)

	SaveBaseline(ctx context.Context, baseline *models.BaselineValues) error

	SaveAlert(ctx context.Context, alert models.Alert, snapshotID int64) error

	// IsDuplicateAlert reports whether an alert with the same dedupe
	// key was stored within the window, judged by insertion time.
	IsDuplicateAlert(ctx context.Context, dedupeKey string, window time.Duration) (bool, error)

	// RecentAlerts returns the newest stored alerts, newest first.
	RecentAlerts(ctx context.Context, limit int) ([]AlertRow, error)

	GetRuntimeState(ctx context.Context) (map[string]string, error)
	SetRuntimeState(ctx context.Context, states map[string]string) error

	Close() error
}
