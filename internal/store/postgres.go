package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/monlabs/monwatch/internal/models"
)

// Postgres implements Store on a PostgreSQL database.
type Postgres struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects to Postgres, applies the schema and returns the store.
func Open(dsn string) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	p := &Postgres{db: db, timeout: 10 * time.Second}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return p, nil
}

// NewPostgres wraps an existing connection, applying no schema. Used by
// tests with a mock driver.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db, timeout: 10 * time.Second}
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.timeout)
}

// SaveSnapshot flattens and appends one snapshot, returning its row id.
// The retained book levels survive in raw_json for audit; bulk candle
// data does not.
func (p *Postgres) SaveSnapshot(ctx context.Context, snap *models.VenueSnapshot) (int64, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	row := FlattenSnapshot(snap)

	rawJSON, err := json.Marshal(snap.Raw)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal raw payload: %w", err)
	}
	var errsJSON []byte
	if len(snap.Errors) > 0 {
		errsJSON, err = json.Marshal(snap.Errors)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal errors: %w", err)
		}
	}

	query := `
		INSERT INTO metrics_snapshot (
			ts_utc, venue, symbol, missing_market,
			last_price, quote_volume_24h, pct_change_1h, pct_change_24h,
			best_bid, best_ask, mid, spread_bps,
			depth_1pct_bid, depth_1pct_ask, depth_2pct_bid, depth_2pct_ask,
			slip_bps_buy_n1, slip_bps_sell_n1, slip_bps_buy_n2, slip_bps_sell_n2,
			avg_fill_buy_n1, avg_fill_sell_n1, avg_fill_buy_n2, avg_fill_sell_n2,
			insufficient_liq_n1, insufficient_liq_n2,
			funding_rate, funding_time, oi_value_quote, oi_contracts,
			realized_vol_24h, atr_like_24h, raw_json, errors
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26,
			$27, $28, $29, $30, $31, $32, $33, $34
		)
		RETURNING id`

	var id int64
	err = p.db.QueryRowxContext(ctx, query,
		row.Timestamp, row.Venue, row.Symbol, row.MissingMarket,
		row.LastPrice, row.QuoteVolume24h, row.PctChange1h, row.PctChange24h,
		row.BestBid, row.BestAsk, row.Mid, row.SpreadBps,
		row.Depth1PctBid, row.Depth1PctAsk, row.Depth2PctBid, row.Depth2PctAsk,
		row.SlipBpsBuyN1, row.SlipBpsSellN1, row.SlipBpsBuyN2, row.SlipBpsSellN2,
		row.AvgFillBuyN1, row.AvgFillSellN1, row.AvgFillBuyN2, row.AvgFillSellN2,
		row.InsufficientN1, row.InsufficientN2,
		row.FundingRate, row.FundingTime, row.OIValueQuote, row.OIContracts,
		row.RealizedVol24h, row.ATRLike24h, rawJSON, errsJSON,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return id, nil
}

func (p *Postgres) HistoricalSnapshots(ctx context.Context, venue string, trailingDays int) ([]SnapshotRow, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT * FROM metrics_snapshot
		WHERE venue = $1
		  AND missing_market = FALSE
		  AND ts_utc >= NOW() - ($2 || ' days')::interval
		ORDER BY ts_utc ASC`

	var rows []SnapshotRow
	if err := p.db.SelectContext(ctx, &rows, query, venue, trailingDays); err != nil {
		return nil, fmt.Errorf("failed to query historical snapshots: %w", err)
	}
	return rows, nil
}

func (p *Postgres) RecentVolumes(ctx context.Context, venue string, trailingDays int) ([]float64, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT quote_volume_24h FROM metrics_snapshot
		WHERE venue = $1
		  AND missing_market = FALSE
		  AND quote_volume_24h IS NOT NULL
		  AND ts_utc >= NOW() - ($2 || ' days')::interval
		ORDER BY ts_utc ASC`

	var volumes []float64
	if err := p.db.SelectContext(ctx, &volumes, query, venue, trailingDays); err != nil {
		return nil, fmt.Errorf("failed to query recent volumes: %w", err)
	}
	return volumes, nil
}

func (p *Postgres) SaveBaseline(ctx context.Context, b *models.BaselineValues) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO baselines (
			ts_utc, venue, symbol,
			depth_1pct_total_median, spread_bps_median,
			slip_bps_n2_median, volume_24h_mean,
			sample_count, warming_up
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := p.db.ExecContext(ctx, query,
		b.Timestamp, b.Venue, b.Symbol,
		b.Depth1PctMedian, b.SpreadBpsMedian,
		b.SlipBpsN2Median, b.Volume24hMean,
		b.SampleCount, b.WarmingUp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert baseline: %w", err)
	}
	return nil
}

func (p *Postgres) SaveAlert(ctx context.Context, alert models.Alert, snapshotID int64) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert payload: %w", err)
	}

	var snapID *int64
	if snapshotID > 0 {
		snapID = &snapshotID
	}

	query := `
		INSERT INTO alerts (
			ts_utc, rule, venue, symbol, severity, message,
			threshold_value, current_value, baseline_value,
			dedupe_key, payload_json, snapshot_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = p.db.ExecContext(ctx, query,
		alert.Timestamp, alert.Rule, alert.Venue, alert.Symbol,
		alert.Severity, alert.Message,
		alert.ThresholdValue, alert.CurrentValue, alert.BaselineValue,
		alert.DedupeKey, payload, snapID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

func (p *Postgres) IsDuplicateAlert(ctx context.Context, dedupeKey string, window time.Duration) (bool, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT COUNT(*) FROM alerts
		WHERE dedupe_key = $1
		  AND created_at >= NOW() - ($2 || ' seconds')::interval`

	var count int
	if err := p.db.GetContext(ctx, &count, query, dedupeKey, int(window.Seconds())); err != nil {
		return false, fmt.Errorf("failed to check alert dedupe: %w", err)
	}
	return count > 0, nil
}

func (p *Postgres) RecentAlerts(ctx context.Context, limit int) ([]AlertRow, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, ts_utc, rule, venue, symbol, severity, message,
		       threshold_value, current_value, baseline_value,
		       dedupe_key, snapshot_id, created_at
		FROM alerts
		ORDER BY created_at DESC
		LIMIT $1`

	var rows []AlertRow
	if err := p.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query recent alerts: %w", err)
	}
	return rows, nil
}

func (p *Postgres) GetCounter(ctx context.Context, key string) (int, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var count int
	err := p.db.GetContext(ctx, &count,
		`SELECT consecutive_count FROM alert_counters WHERE counter_key = $1`, key)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %w", key, err)
	}
	return count, nil
}

func (p *Postgres) SetCounter(ctx context.Context, key string, value int, last time.Time) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO alert_counters (counter_key, consecutive_count, last_ts_utc, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (counter_key) DO UPDATE SET
			consecutive_count = EXCLUDED.consecutive_count,
			last_ts_utc = EXCLUDED.last_ts_utc,
			updated_at = NOW()`

	if _, err := p.db.ExecContext(ctx, query, key, value, last); err != nil {
		return fmt.Errorf("failed to upsert counter %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) GetRuntimeState(ctx context.Context) (map[string]string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.db.QueryxContext(ctx, `SELECT state_key, state_value FROM runtime_state`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runtime state: %w", err)
	}
	defer rows.Close()

	states := make(map[string]string)
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan runtime state: %w", err)
		}
		states[key] = value.String
	}
	return states, rows.Err()
}

func (p *Postgres) SetRuntimeState(ctx context.Context, states map[string]string) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO runtime_state (state_key, state_value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (state_key) DO UPDATE SET
			state_value = EXCLUDED.state_value,
			updated_at = NOW()`

	for key, value := range states {
		if _, err := p.db.ExecContext(ctx, query, key, value); err != nil {
			return fmt.Errorf("failed to upsert runtime state %s: %w", key, err)
		}
	}
	return nil
}

// DumpTable reads an entire table for export. Table names are validated
// against the known schema, never interpolated from user input.
func (p *Postgres) DumpTable(ctx context.Context, table string) ([]string, [][]interface{}, error) {
	if !exportableTables[table] {
		return nil, nil, fmt.Errorf("unknown table: %s", table)
	}

	rows, err := p.db.QueryxContext(ctx, "SELECT * FROM "+table+" ORDER BY id ASC")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dump table %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out [][]interface{}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, vals)
	}
	return cols, out, rows.Err()
}

var exportableTables = map[string]bool{
	"metrics_snapshot": true,
	"baselines":        true,
	"alerts":           true,
	"alert_counters":   true,
	"runtime_state":    true,
}

// FlattenSnapshot projects a snapshot onto its persisted row shape.
func FlattenSnapshot(snap *models.VenueSnapshot) SnapshotRow {
	row := SnapshotRow{
		Timestamp:     snap.Timestamp,
		Venue:         snap.Venue,
		Symbol:        snap.Symbol,
		MissingMarket: snap.MissingMarket,
	}

	if tk := snap.Ticker; tk != nil {
		row.LastPrice = tk.LastPrice
		row.QuoteVolume24h = tk.QuoteVolume24h
		row.PctChange1h = tk.PctChange1h
		row.PctChange24h = tk.PctChange24h
	}

	if ob := snap.OrderBook; ob != nil {
		row.BestBid = ob.BestBid
		row.BestAsk = ob.BestAsk
		row.Mid = ob.Mid
		row.SpreadBps = ob.SpreadBps
		row.Depth1PctBid = ob.Depth1PctBid
		row.Depth1PctAsk = ob.Depth1PctAsk
		row.Depth2PctBid = ob.Depth2PctBid
		row.Depth2PctAsk = ob.Depth2PctAsk
		if ob.ImpactBuyN1 != nil {
			row.SlipBpsBuyN1 = ob.ImpactBuyN1.SlipBps
			row.AvgFillBuyN1 = ob.ImpactBuyN1.AvgFillPrice
			row.InsufficientN1 = row.InsufficientN1 || ob.ImpactBuyN1.InsufficientLiquidity
		}
		if ob.ImpactSellN1 != nil {
			row.SlipBpsSellN1 = ob.ImpactSellN1.SlipBps
			row.AvgFillSellN1 = ob.ImpactSellN1.AvgFillPrice
			row.InsufficientN1 = row.InsufficientN1 || ob.ImpactSellN1.InsufficientLiquidity
		}
		if ob.ImpactBuyN2 != nil {
			row.SlipBpsBuyN2 = ob.ImpactBuyN2.SlipBps
			row.AvgFillBuyN2 = ob.ImpactBuyN2.AvgFillPrice
			row.InsufficientN2 = row.InsufficientN2 || ob.ImpactBuyN2.InsufficientLiquidity
		}
		if ob.ImpactSellN2 != nil {
			row.SlipBpsSellN2 = ob.ImpactSellN2.SlipBps
			row.AvgFillSellN2 = ob.ImpactSellN2.AvgFillPrice
			row.InsufficientN2 = row.InsufficientN2 || ob.ImpactSellN2.InsufficientLiquidity
		}
	}

	if fd := snap.Funding; fd != nil {
		row.FundingRate = fd.Rate
		row.FundingTime = fd.Time
	}
	if oi := snap.OpenInterest; oi != nil {
		row.OIValueQuote = oi.ValueQuote
		row.OIContracts = oi.Contracts
	}
	if ov := snap.Ohlcv; ov != nil {
		row.RealizedVol24h = ov.RealizedVol24h
		row.ATRLike24h = ov.ATRLike24h
	}
	return row
}
