package store

// Schema creates the five monitor tables. All statements are idempotent
// so startup can always apply them.
const Schema = `
CREATE TABLE IF NOT EXISTS metrics_snapshot (
    id BIGSERIAL PRIMARY KEY,
    ts_utc TIMESTAMPTZ NOT NULL,
    venue TEXT NOT NULL,
    symbol TEXT NOT NULL,
    missing_market BOOLEAN NOT NULL DEFAULT FALSE,
    last_price DOUBLE PRECISION,
    quote_volume_24h DOUBLE PRECISION,
    pct_change_1h DOUBLE PRECISION,
    pct_change_24h DOUBLE PRECISION,
    best_bid DOUBLE PRECISION,
    best_ask DOUBLE PRECISION,
    mid DOUBLE PRECISION,
    spread_bps DOUBLE PRECISION,
    depth_1pct_bid DOUBLE PRECISION,
    depth_1pct_ask DOUBLE PRECISION,
    depth_2pct_bid DOUBLE PRECISION,
    depth_2pct_ask DOUBLE PRECISION,
    slip_bps_buy_n1 DOUBLE PRECISION,
    slip_bps_sell_n1 DOUBLE PRECISION,
    slip_bps_buy_n2 DOUBLE PRECISION,
    slip_bps_sell_n2 DOUBLE PRECISION,
    avg_fill_buy_n1 DOUBLE PRECISION,
    avg_fill_sell_n1 DOUBLE PRECISION,
    avg_fill_buy_n2 DOUBLE PRECISION,
    avg_fill_sell_n2 DOUBLE PRECISION,
    insufficient_liq_n1 BOOLEAN NOT NULL DEFAULT FALSE,
    insufficient_liq_n2 BOOLEAN NOT NULL DEFAULT FALSE,
    funding_rate DOUBLE PRECISION,
    funding_time TIMESTAMPTZ,
    oi_value_quote DOUBLE PRECISION,
    oi_contracts DOUBLE PRECISION,
    realized_vol_24h DOUBLE PRECISION,
    atr_like_24h DOUBLE PRECISION,
    raw_json JSONB,
    errors JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_snapshot_venue_ts
    ON metrics_snapshot(venue, ts_utc);

CREATE TABLE IF NOT EXISTS baselines (
    id BIGSERIAL PRIMARY KEY,
    ts_utc TIMESTAMPTZ NOT NULL,
    venue TEXT NOT NULL,
    symbol TEXT NOT NULL,
    depth_1pct_total_median DOUBLE PRECISION,
    spread_bps_median DOUBLE PRECISION,
    slip_bps_n2_median DOUBLE PRECISION,
    volume_24h_mean DOUBLE PRECISION,
    sample_count INTEGER NOT NULL DEFAULT 0,
    warming_up BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_baselines_venue_ts
    ON baselines(venue, ts_utc);

CREATE TABLE IF NOT EXISTS alerts (
    id BIGSERIAL PRIMARY KEY,
    ts_utc TIMESTAMPTZ NOT NULL,
    rule TEXT NOT NULL,
    venue TEXT NOT NULL,
    symbol TEXT NOT NULL,
    severity TEXT NOT NULL DEFAULT 'info',
    message TEXT,
    threshold_value DOUBLE PRECISION,
    current_value DOUBLE PRECISION,
    baseline_value DOUBLE PRECISION,
    dedupe_key TEXT NOT NULL,
    payload_json JSONB,
    snapshot_id BIGINT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_alerts_dedupe
    ON alerts(dedupe_key, created_at);

CREATE TABLE IF NOT EXISTS alert_counters (
    counter_key TEXT PRIMARY KEY,
    consecutive_count INTEGER NOT NULL DEFAULT 0,
    last_ts_utc TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS runtime_state (
    state_key TEXT PRIMARY KEY,
    state_value TEXT,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
