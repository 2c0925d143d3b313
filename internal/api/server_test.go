package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monlabs/monwatch/internal/config"
	"github.com/monlabs/monwatch/internal/models"
	"github.com/monlabs/monwatch/internal/store"
	"github.com/monlabs/monwatch/internal/telemetry"
)

func testServer(t *testing.T) (*Server, *store.Memory) {
	t.Helper()
	cfg := &config.Config{Server: config.ServerConfig{Host: "127.0.0.1", Port: 0}}
	st := store.NewMemory()
	return NewServer(cfg, st, telemetry.NewMetricsRegistry()), st
}

func doRequest(srv *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.httpSrv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, st := testServer(t)
	require.NoError(t, st.SetRuntimeState(context.Background(), map[string]string{
		"last_cycle_status": "ok",
		"cycle_count":       "7",
	}))

	rec := doRequest(srv, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "7", body["cycle_count"])
}

func TestSummaryBeforeFirstCycle(t *testing.T) {
	srv, _ := testServer(t)
	rec := doRequest(srv, http.MethodGet, "/api/summary")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSummaryAfterCycle(t *testing.T) {
	srv, _ := testServer(t)
	srv.OnCycle(&models.CycleOutput{
		Timestamp: time.Now().UTC(),
		Token:     "MON",
		Snapshots: map[string]*models.VenueSnapshot{"binance": {Venue: "binance", Symbol: "MONUSDT"}},
	})

	rec := doRequest(srv, http.MethodGet, "/api/summary")
	assert.Equal(t, http.StatusOK, rec.Code)

	var out models.CycleOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "MON", out.Token)
	assert.Contains(t, out.Snapshots, "binance")
}

func TestSnapshotsRequiresVenue(t *testing.T) {
	srv, _ := testServer(t)
	rec := doRequest(srv, http.MethodGet, "/api/snapshots")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSnapshotsQuery(t *testing.T) {
	srv, st := testServer(t)
	_, err := st.SaveSnapshot(context.Background(), &models.VenueSnapshot{
		Venue: "binance", Symbol: "MONUSDT", Timestamp: time.Now().UTC(),
		Ticker: &models.Ticker{LastPrice: models.Float(2.5)},
	})
	require.NoError(t, err)

	rec := doRequest(srv, http.MethodGet, "/api/snapshots?venue=binance&days=7")
	assert.Equal(t, http.StatusOK, rec.Code)

	var rows []store.SnapshotRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "binance", rows[0].Venue)
}

func TestAlertsQuery(t *testing.T) {
	srv, st := testServer(t)
	require.NoError(t, st.SaveAlert(context.Background(), models.Alert{
		Rule: models.RuleVolumeSpike, Venue: "okx", Symbol: "MON-USDT-SWAP",
		Severity: models.SeverityInfo, DedupeKey: "volume_spike:okx:MON-USDT-SWAP",
		Timestamp: time.Now().UTC(),
	}, 0))

	rec := doRequest(srv, http.MethodGet, "/api/alerts?limit=10")
	assert.Equal(t, http.StatusOK, rec.Code)

	var rows []store.AlertRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, models.RuleVolumeSpike, rows[0].Rule)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	rec := doRequest(srv, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDPreserved(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/summary", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec := httptest.NewRecorder()
	srv.httpSrv.Handler.ServeHTTP(rec, req)
	assert.Equal(t, "fixed-id", rec.Header().Get("X-Request-ID"))
}
