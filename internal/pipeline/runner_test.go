package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monlabs/monwatch/internal/alert"
	"github.com/monlabs/monwatch/internal/baseline"
	"github.com/monlabs/monwatch/internal/config"
	"github.com/monlabs/monwatch/internal/httpclient"
	"github.com/monlabs/monwatch/internal/models"
	"github.com/monlabs/monwatch/internal/store"
	"github.com/monlabs/monwatch/internal/telemetry"
)

// fakeBinance serves the full endpoint surface one collection needs.
func fakeBinance(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"price": "2.5"})
	})
	mux.HandleFunc("/fapi/v1/ticker/24hr", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"lastPrice": "2.5", "quoteVolume": "1000000", "priceChangePercent": "1.5",
		})
	})
	mux.HandleFunc("/fapi/v1/depth", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"bids": [][]string{{"2.49", "100000"}},
			"asks": [][]string{{"2.51", "100000"}},
		})
	})
	mux.HandleFunc("/fapi/v1/premiumIndex", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"lastFundingRate": "0.0001", "nextFundingTime": 1767225600000,
		})
	})
	mux.HandleFunc("/fapi/v1/openInterest", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"openInterest": "5000"})
	})
	mux.HandleFunc("/fapi/v1/klines", func(w http.ResponseWriter, r *http.Request) {
		rows := make([][]interface{}, 0, 30)
		for i := 0; i < 30; i++ {
			ts := 1767225600000 + int64(i)*3600000
			rows = append(rows, []interface{}{ts, "2.4", "2.6", "2.3", "2.5", "1000"})
		}
		json.NewEncoder(w).Encode(rows)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testRunnerConfig(baseURL string) *config.Config {
	return &config.Config{
		TokenSymbol:          "MON",
		ScheduleSeconds:      60,
		BaselineDays:         14,
		VolumeWindowDays:     7,
		OrderBookLevels:      100,
		Notional1:            10000,
		Notional2:            100000,
		KlineCount:           200,
		DedupeWindowSeconds:  3600,
		ConsecutiveThreshold: 3,
		MinBaselineSamples:   20,
		VenueTimeoutSeconds:  10,
		CollectWorkers:       2,
		Venues: map[string]config.VenueConfig{
			"binance": {Market: "usdm_perp", Symbol: "MONUSDT", BaseURL: baseURL},
		},
		Thresholds: config.Thresholds{
			DepthDropMult:         0.7,
			SpreadMult:            2.0,
			SlipMult:              2.0,
			VolumeSpikeMult:       2.0,
			InsufficientLiqGapPct: models.Float(10.0),
		},
	}
}

func newTestRunner(cfg *config.Config, st store.Store) *Runner {
	pool := httpclient.NewClientPool(httpclient.ClientConfig{MaxRetries: 1})
	collector := NewCollector(cfg, pool)
	baselines := baseline.New(st, cfg.BaselineDays, cfg.VolumeWindowDays, cfg.MinBaselineSamples)
	alerts := alert.NewEngine(st, nil, cfg)
	return NewRunner(cfg, st, collector, baselines, alerts, telemetry.NewMetricsRegistry())
}

func TestRunCycleEndToEnd(t *testing.T) {
	srv := fakeBinance(t)
	cfg := testRunnerConfig(srv.URL)
	st := store.NewMemory()
	runner := newTestRunner(cfg, st)

	var seen *models.CycleOutput
	runner.AddListener(func(out *models.CycleOutput) { seen = out })

	out, err := runner.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Same(t, out, seen)

	snap := out.Snapshots["binance"]
	require.NotNil(t, snap)
	assert.False(t, snap.MissingMarket)
	require.NotNil(t, snap.Ticker)
	require.NotNil(t, snap.Ticker.LastPrice)
	assert.InDelta(t, 2.5, *snap.Ticker.LastPrice, 1e-9)
	require.NotNil(t, snap.OrderBook)
	require.NotNil(t, snap.OrderBook.Mid)
	assert.InDelta(t, 2.5, *snap.OrderBook.Mid, 1e-9)
	require.NotNil(t, snap.Ohlcv)
	assert.NotNil(t, snap.Ohlcv.RealizedVol24h)

	// OI notional derived from contracts * last price
	require.NotNil(t, snap.OpenInterest)
	require.NotNil(t, snap.OpenInterest.ValueQuote)
	assert.InDelta(t, 12500.0, *snap.OpenInterest.ValueQuote, 1e-9)

	// persisted snapshot and baseline
	rows := st.Snapshots()
	require.Len(t, rows, 1)
	baselines := st.Baselines()
	require.Len(t, baselines, 1)
	assert.True(t, baselines[0].WarmingUp)

	// heartbeat keys
	states, err := st.GetRuntimeState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", states["last_cycle_status"])
	assert.Equal(t, "1", states["cycle_count"])
	assert.NotEmpty(t, states["last_cycle_ts"])
}

func TestRunCycleIncrementsCycleCount(t *testing.T) {
	srv := fakeBinance(t)
	st := store.NewMemory()
	runner := newTestRunner(testRunnerConfig(srv.URL), st)

	for i := 0; i < 3; i++ {
		_, err := runner.RunCycle(context.Background())
		require.NoError(t, err)
	}

	states, err := st.GetRuntimeState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3", states["cycle_count"])
}

func TestCollectUnsupportedVenue(t *testing.T) {
	cfg := testRunnerConfig("http://unused")
	cfg.Venues = map[string]config.VenueConfig{
		"kraken": {Market: "usdm_perp", Symbol: "MONUSD"},
	}
	collector := NewCollector(cfg, httpclient.NewClientPool(httpclient.ClientConfig{MaxRetries: 1}))

	snaps := collector.CollectAll(context.Background())
	require.Len(t, snaps, 1)
	snap := snaps["kraken"]
	require.NotNil(t, snap)
	assert.True(t, snap.MissingMarket)
	require.NotEmpty(t, snap.Errors)
	assert.Equal(t, models.ErrUnsupportedVenue, snap.Errors[0].Kind)
}

func TestCollectVerifyFailureIsMissingMarket(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := testRunnerConfig(srv.URL)
	collector := NewCollector(cfg, httpclient.NewClientPool(httpclient.ClientConfig{MaxRetries: 1}))

	snaps := collector.CollectAll(context.Background())
	snap := snaps["binance"]
	require.NotNil(t, snap)
	assert.True(t, snap.MissingMarket)
	require.NotEmpty(t, snap.Errors)
	assert.Equal(t, models.ErrSymbolNotFound, snap.Errors[0].Kind)
}

func TestCollectVenueTimeoutReplacesPartialSnapshot(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"price": "2.5"})
	})
	mux.HandleFunc("/fapi/v1/ticker/24hr", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"lastPrice": "2.5", "quoteVolume": "1000"})
	})
	mux.HandleFunc("/fapi/v1/depth", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"bids": [][]string{{"2.49", "10"}},
			"asks": [][]string{{"2.51", "10"}},
		})
	})
	// funding stalls until the venue deadline cancels the request
	mux.HandleFunc("/fapi/v1/premiumIndex", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := testRunnerConfig(srv.URL)
	cfg.VenueTimeoutSeconds = 1
	collector := NewCollector(cfg, httpclient.NewClientPool(httpclient.ClientConfig{MaxRetries: 1}))

	snaps := collector.CollectAll(context.Background())
	snap := snaps["binance"]
	require.NotNil(t, snap)

	// ticker and book landed before the stall, but the timed-out venue
	// must still yield a synthetic missing_market snapshot
	assert.True(t, snap.MissingMarket)
	assert.Nil(t, snap.Ticker)
	require.NotEmpty(t, snap.Errors)
	assert.Equal(t, models.ErrVenueTimeout, snap.Errors[0].Kind)
	assert.Contains(t, snap.Errors[0].Detail, "collect timeout after 1s")
}

func TestCollectPartialFieldFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"price": "2.5"})
	})
	mux.HandleFunc("/fapi/v1/ticker/24hr", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"lastPrice": "2.5", "quoteVolume": "1000"})
	})
	mux.HandleFunc("/fapi/v1/depth", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"bids": [][]string{{"2.49", "10"}},
			"asks": [][]string{{"2.51", "10"}},
		})
	})
	// funding, OI and klines 404
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := testRunnerConfig(srv.URL)
	collector := NewCollector(cfg, httpclient.NewClientPool(httpclient.ClientConfig{MaxRetries: 1}))

	snaps := collector.CollectAll(context.Background())
	snap := snaps["binance"]
	require.NotNil(t, snap)

	// ticker and book arrived, so the market is present despite failures
	assert.False(t, snap.MissingMarket)
	assert.NotNil(t, snap.Ticker)
	assert.NotNil(t, snap.OrderBook)
	assert.Nil(t, snap.Funding)

	kinds := make(map[models.ErrorKind]bool)
	for _, e := range snap.Errors {
		kinds[e.Kind] = true
	}
	assert.True(t, kinds[models.ErrFundingFailed])
	assert.True(t, kinds[models.ErrOpenInterestFailed])
	assert.True(t, kinds[models.ErrOHLCVFailed])
}
