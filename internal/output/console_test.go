package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/monlabs/monwatch/internal/models"
)

func testCycle() *models.CycleOutput {
	healthy := &models.VenueSnapshot{
		Venue:     "binance",
		Symbol:    "MONUSDT",
		Timestamp: time.Now().UTC(),
		Ticker: &models.Ticker{
			LastPrice:      models.Float(2.5),
			QuoteVolume24h: models.Float(1_500_000),
			PctChange24h:   models.Float(-3.25),
		},
		OrderBook: &models.OrderBookMetrics{
			SpreadBps:    models.Float(8.0),
			Depth1PctBid: models.Float(40000),
			Depth1PctAsk: models.Float(60000),
			ImpactBuyN1:  &models.ImpactCostResult{SlipBps: models.Float(2.5)},
			ImpactBuyN2:  &models.ImpactCostResult{SlipBps: models.Float(12.0)},
			ImpactSellN2: &models.ImpactCostResult{SlipBps: models.Float(15.0)},
		},
		Funding: &models.Funding{Rate: models.Float(0.0001)},
		Ohlcv:   &models.OhlcvMetrics{RealizedVol24h: models.Float(0.042)},
	}
	missing := &models.VenueSnapshot{
		Venue: "okx", Symbol: "MON-USDT-SWAP", Timestamp: time.Now().UTC(), MissingMarket: true,
	}
	return &models.CycleOutput{
		Timestamp: time.Now().UTC(),
		Token:     "MON",
		Snapshots: map[string]*models.VenueSnapshot{"binance": healthy, "okx": missing},
		Baselines: map[string]*models.BaselineValues{
			"binance": {SampleCount: 25, WarmingUp: false},
			"okx":     {SampleCount: 3, WarmingUp: true},
		},
	}
}

func TestConsoleRender(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, time.UTC)
	c.Render(testCycle())
	got := buf.String()

	assert.Contains(t, got, "MON Monitor")
	assert.Contains(t, got, "BINANCE")
	// missing markets get a star and N/A cells
	assert.Contains(t, got, "OKX*")
	assert.Contains(t, got, "N/A")
	assert.Contains(t, got, "$2.50000")
	assert.Contains(t, got, "-3.25%")
	assert.Contains(t, got, "$1.5M")
	assert.Contains(t, got, "8.0bp")
	assert.Contains(t, got, "$100.0K")
	// worse of buy/sell n2 slip
	assert.Contains(t, got, "15.0bp")
	assert.Contains(t, got, "0.0100%")
	assert.Contains(t, got, "4.20%")
	assert.Contains(t, got, "ok(25)")
	assert.Contains(t, got, "warmup(3)")
	assert.Contains(t, got, "missing_market")
	assert.Contains(t, got, "Alerts: 0 (all clear)")
}

func TestConsoleRenderAlerts(t *testing.T) {
	out := testCycle()
	out.Alerts = []models.Alert{
		{Rule: models.RuleDepthShrink, Venue: "binance", Severity: models.SeverityWarn, Message: "depth shrink: ..."},
		{Rule: models.RuleInsufficientLiquidity, Venue: "okx", Severity: models.SeverityCritical, Message: "insufficient liquidity: ..."},
	}

	var buf bytes.Buffer
	NewConsole(&buf, nil).Render(out)
	got := buf.String()

	assert.Contains(t, got, "Alerts: 2")
	assert.Contains(t, got, "[ !]")
	assert.Contains(t, got, "[!!]")
	assert.Contains(t, got, "depth_shrink")
}

func TestVenueOrderIsStable(t *testing.T) {
	out := testCycle()
	first := strings.Join(venueOrder(out.Snapshots), ",")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, strings.Join(venueOrder(out.Snapshots), ","))
	}
	assert.Equal(t, "binance,okx", first)
}
