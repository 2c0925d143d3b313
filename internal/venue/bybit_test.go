package venue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bybitServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	listResp := func(items ...map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{
			"retCode": 0,
			"result":  map[string]interface{}{"list": items},
		}
	}
	mux.HandleFunc("/v5/market/instruments-info", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "MONUSDT" {
			json.NewEncoder(w).Encode(listResp())
			return
		}
		json.NewEncoder(w).Encode(listResp(map[string]interface{}{"symbol": "MONUSDT"}))
	})
	mux.HandleFunc("/v5/market/tickers", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(listResp(map[string]interface{}{
			"lastPrice":    "2.5",
			"turnover24h":  "765432.1",
			"price24hPcnt": "-0.0325",
		}))
	})
	mux.HandleFunc("/v5/market/orderbook", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"retCode": 0,
			"result": map[string]interface{}{
				"b": [][]string{{"2.49", "100"}},
				"a": [][]string{{"2.51", "150"}},
			},
		})
	})
	mux.HandleFunc("/v5/market/funding/history", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(listResp(map[string]interface{}{
			"fundingRate":          "-0.0002",
			"fundingRateTimestamp": "1767225600000",
		}))
	})
	mux.HandleFunc("/v5/market/open-interest", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(listResp(map[string]interface{}{"openInterest": "54321"}))
	})
	mux.HandleFunc("/v5/market/kline", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"retCode": 0,
			"result": map[string]interface{}{
				"list": [][]interface{}{
					{"1767229200000", "2.50", "2.60", "2.45", "2.52", "900"},
					{"1767225600000", "2.40", "2.55", "2.35", "2.50", "1000"},
				},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBybitVerify(t *testing.T) {
	srv := bybitServer(t)
	b := newBybit(srv.URL, testPool())

	ok, _ := b.Verify(context.Background(), "MONUSDT")
	assert.True(t, ok)

	ok, reason := b.Verify(context.Background(), "NOPEUSDT")
	assert.False(t, ok)
	assert.Equal(t, "symbol_not_found", reason)
}

func TestBybitTickerScalesPct(t *testing.T) {
	srv := bybitServer(t)
	b := newBybit(srv.URL, testPool())

	tk, _, err := b.Ticker(context.Background(), "MONUSDT")
	require.NoError(t, err)
	require.NotNil(t, tk.PctChange24h)
	// bybit reports a fraction; canonical form is percent
	assert.InDelta(t, -3.25, *tk.PctChange24h, 1e-9)
	require.NotNil(t, tk.QuoteVolume24h)
	assert.InDelta(t, 765432.1, *tk.QuoteVolume24h, 1e-9)
}

func TestBybitOrderBookAndFunding(t *testing.T) {
	srv := bybitServer(t)
	b := newBybit(srv.URL, testPool())
	ctx := context.Background()

	book, _, err := b.OrderBook(ctx, "MONUSDT", 500, 1.0)
	require.NoError(t, err)
	require.Len(t, book.Bids, 1)
	assert.InDelta(t, 100.0, book.Bids[0].Qty, 1e-9)

	f, _, err := b.Funding(ctx, "MONUSDT")
	require.NoError(t, err)
	require.NotNil(t, f.Rate)
	assert.InDelta(t, -0.0002, *f.Rate, 1e-12)
	require.NotNil(t, f.Time)
}

func TestBybitKlinesReversed(t *testing.T) {
	srv := bybitServer(t)
	b := newBybit(srv.URL, testPool())

	candles, _, err := b.Klines(context.Background(), "MONUSDT", 200)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.True(t, candles[0].OpenTime.Before(candles[1].OpenTime))
}
