package venue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/monlabs/monwatch/internal/httpclient"
	"github.com/monlabs/monwatch/internal/models"
)

// Meta is instrument metadata needed before order-book normalization.
// BaseUnitMultiplier converts one venue-native quantity unit into
// base-asset units (1.0 for venues already quoting base asset).
type Meta struct {
	BaseUnitMultiplier float64
	Raw                map[string]interface{}
}

// ResolveAttempt records one candidate endpoint tried during resolution
// and why it was rejected (or "ok").
type ResolveAttempt struct {
	BaseURL string `json:"base_url"`
	Status  string `json:"verify_status"`
}

// Adapter translates one venue's public REST endpoints into the
// canonical shape. Every method returns the parsed value plus the raw
// payload for audit, or an error the collector records as a structured
// per-field failure.
type Adapter interface {
	Name() string

	// Verify reports whether the venue lists the symbol. A false return
	// carries a machine-readable reason such as "symbol_not_found" or
	// "network_error:...".
	Verify(ctx context.Context, symbol string) (bool, string)

	// InstrumentMeta fetches the base-unit multiplier for the symbol.
	// Implementations must not fail hard: a missing multiplier falls
	// back to 1.0 with a logged assumption.
	InstrumentMeta(ctx context.Context, symbol string) Meta

	Ticker(ctx context.Context, symbol string) (*models.Ticker, interface{}, error)
	OrderBook(ctx context.Context, symbol string, depthLimit int, multiplier float64) (*models.OrderBook, interface{}, error)
	Funding(ctx context.Context, symbol string) (*models.Funding, interface{}, error)
	OpenInterest(ctx context.Context, symbol string) (*models.OpenInterest, interface{}, error)
	Klines(ctx context.Context, symbol string, count int) ([]models.Candle, interface{}, error)
}

// EndpointResolver is implemented by adapters that must pick among
// several candidate network endpoints before any other call. Resolution
// tries candidates in preference order and adopts the first that
// verifies the symbol.
type EndpointResolver interface {
	ResolveEndpoint(ctx context.Context, symbol string) (resolved string, attempts []ResolveAttempt, reason string, ok bool)
}

// New constructs the adapter for a configured venue name.
func New(name, baseURL string, pool *httpclient.ClientPool) (Adapter, error) {
	switch name {
	case "binance":
		return newBinance(baseURL, pool), nil
	case "okx":
		return newOKX(baseURL, pool), nil
	case "bybit":
		return newBybit(baseURL, pool), nil
	default:
		return nil, fmt.Errorf("unsupported venue: %s", name)
	}
}

// newBreaker builds the per-venue circuit breaker shared by all of one
// adapter's requests. Five consecutive failures open the circuit for
// thirty seconds.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// ClassifyError maps a transport error to the snapshot error taxonomy.
// Retries have already happened inside the client; whatever arrives here
// is terminal for the field.
func ClassifyError(err error) models.ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrVenueTimeout
	}
	if code, ok := httpclient.IsStatusError(err); ok {
		if code == http.StatusNotFound {
			return models.ErrSymbolNotFound
		}
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
			return models.ErrHTTP
		}
	}
	return models.ErrNetwork
}

// VerifyReasonKind maps a verify rejection reason string to an error
// kind for the snapshot record.
func VerifyReasonKind(reason string) models.ErrorKind {
	switch {
	case strings.Contains(reason, "symbol_not_found"):
		return models.ErrSymbolNotFound
	case strings.Contains(reason, "network_error"), strings.Contains(reason, "timeout"):
		return models.ErrNetwork
	default:
		return models.ErrVerifyFailed
	}
}

// parseFloat accepts the string-or-number values exchange APIs return
// interchangeably.
func parseFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
