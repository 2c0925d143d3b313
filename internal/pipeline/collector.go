// Package pipeline orchestrates one monitoring cycle: concurrent
// per-venue collection, enrichment, persistence, baseline recompute,
// alert evaluation and output fan-out.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/monlabs/monwatch/internal/calc"
	"github.com/monlabs/monwatch/internal/config"
	"github.com/monlabs/monwatch/internal/httpclient"
	"github.com/monlabs/monwatch/internal/models"
	"github.com/monlabs/monwatch/internal/venue"
)

// Collector fans one cycle's collection out over a bounded worker pool.
// Venues never share failure: a panicking or timed-out venue yields a
// synthetic missing_market snapshot while the others proceed.
type Collector struct {
	cfg  *config.Config
	pool *httpclient.ClientPool
}

func NewCollector(cfg *config.Config, pool *httpclient.ClientPool) *Collector {
	return &Collector{cfg: cfg, pool: pool}
}

// CollectAll samples every configured venue concurrently and returns a
// snapshot per venue, enriched with derived metrics.
func (c *Collector) CollectAll(ctx context.Context) map[string]*models.VenueSnapshot {
	names := make([]string, 0, len(c.cfg.Venues))
	for name := range c.cfg.Venues {
		names = append(names, name)
	}

	workers := c.cfg.CollectWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(names) {
		workers = len(names)
	}

	log.Info().Int("venues", len(names)).Int("workers", workers).Msg("starting collection")

	jobs := make(chan string)
	results := make(map[string]*models.VenueSnapshot, len(names))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range jobs {
				snap := c.collectVenueSafe(ctx, name, c.cfg.Venues[name])
				mu.Lock()
				results[name] = snap
				mu.Unlock()
			}
		}()
	}
	for _, name := range names {
		jobs <- name
	}
	close(jobs)
	wg.Wait()

	for name, snap := range results {
		if snap.MissingMarket {
			log.Warn().
				Str("venue", name).
				Str("symbol", snap.Symbol).
				Interface("errors", truncateErrors(snap.Errors)).
				Msg("missing market")
		} else {
			log.Info().Str("venue", name).Msg("collection complete")
		}
	}
	return results
}

func truncateErrors(errs []models.FieldError) []models.FieldError {
	if len(errs) > 2 {
		return errs[:2]
	}
	return errs
}

// collectVenueSafe wraps one venue's collection with its deadline and
// panic isolation.
func (c *Collector) collectVenueSafe(ctx context.Context, name string, vc config.VenueConfig) (snap *models.VenueSnapshot) {
	vctx, cancel := context.WithTimeout(ctx, c.cfg.VenueTimeout())
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("venue", name).Interface("panic", r).Msg("collection panicked")
			snap = c.syntheticSnapshot(name, vc.Symbol, models.ErrNetwork, fmt.Sprintf("collect panic: %v", r))
		}
	}()

	snap = c.collectVenue(vctx, name, vc)

	// A venue that blows its deadline is unusable even when some fields
	// landed before the cutoff: partial data from a stalled venue would
	// poison baselines, so the whole snapshot is replaced.
	if vctx.Err() == context.DeadlineExceeded {
		log.Warn().Str("venue", name).Msg("collection deadline exceeded")
		snap = c.syntheticSnapshot(name, vc.Symbol, models.ErrVenueTimeout,
			fmt.Sprintf("collect timeout after %ds", c.cfg.VenueTimeoutSeconds))
	}
	return snap
}

func (c *Collector) syntheticSnapshot(name, symbol string, kind models.ErrorKind, detail string) *models.VenueSnapshot {
	snap := &models.VenueSnapshot{
		Venue:         name,
		Symbol:        symbol,
		Timestamp:     time.Now().UTC(),
		MissingMarket: true,
	}
	snap.AddError(kind, detail)
	return snap
}

// collectVenue performs the full per-venue sampling sequence: verify
// (with endpoint resolution where the venue needs it), instrument
// metadata, then the five market-data fetches. Field failures are
// recorded and never abort siblings.
func (c *Collector) collectVenue(ctx context.Context, name string, vc config.VenueConfig) *models.VenueSnapshot {
	started := time.Now()
	snap := &models.VenueSnapshot{
		Venue:     name,
		Symbol:    vc.Symbol,
		Timestamp: time.Now().UTC(),
	}

	adapter, err := venue.New(name, vc.BaseURL, c.pool)
	if err != nil {
		snap.AddError(models.ErrUnsupportedVenue, name)
		snap.MissingMarket = true
		return snap
	}

	if resolver, ok := adapter.(venue.EndpointResolver); ok {
		resolved, attempts, reason, resolvedOK := resolver.ResolveEndpoint(ctx, vc.Symbol)
		snap.SetRaw("attempted_base_urls", attempts)
		if !resolvedOK {
			log.Warn().Str("venue", name).Str("symbol", vc.Symbol).Str("reason", reason).
				Msg("endpoint resolution failed")
			snap.AddError(venue.VerifyReasonKind(reason),
				fmt.Sprintf("%s verify failed (%s)", name, reason))
			snap.MissingMarket = true
			snap.SetRaw("collect_latency_ms", time.Since(started).Milliseconds())
			return snap
		}
		snap.SetRaw("resolved_base_url", resolved)
	} else {
		ok, reason := adapter.Verify(ctx, vc.Symbol)
		if !ok {
			log.Warn().Str("venue", name).Str("symbol", vc.Symbol).Str("reason", reason).
				Msg("symbol not listed")
			snap.AddError(venue.VerifyReasonKind(reason),
				fmt.Sprintf("%s verify failed (%s)", name, reason))
			snap.MissingMarket = true
			snap.SetRaw("collect_latency_ms", time.Since(started).Milliseconds())
			return snap
		}
	}

	meta := adapter.InstrumentMeta(ctx, vc.Symbol)
	multiplier := venue.MultiplierOrDefault(name, meta.BaseUnitMultiplier)
	if meta.Raw != nil {
		snap.SetRaw("instrument", meta.Raw)
	}

	ticker, tickerRaw, err := adapter.Ticker(ctx, vc.Symbol)
	if err != nil {
		snap.AddError(models.ErrTickerFailed, fmt.Sprintf("%s ticker request failed: %v", name, err))
	} else {
		snap.Ticker = ticker
		snap.SetRaw("ticker", tickerRaw)
	}

	book, bookRaw, err := adapter.OrderBook(ctx, vc.Symbol, c.cfg.OrderBookLevels, multiplier)
	if err != nil {
		snap.AddError(models.ErrOrderBookFailed, fmt.Sprintf("%s orderbook request failed: %v", name, err))
		book = nil
	} else {
		snap.SetRaw("orderbook_raw", bookRaw)
	}

	funding, fundingRaw, err := adapter.Funding(ctx, vc.Symbol)
	if err != nil {
		snap.AddError(models.ErrFundingFailed, fmt.Sprintf("%s funding request failed: %v", name, err))
	} else {
		snap.Funding = funding
		snap.SetRaw("funding", fundingRaw)
	}

	oi, oiRaw, err := adapter.OpenInterest(ctx, vc.Symbol)
	if err != nil {
		snap.AddError(models.ErrOpenInterestFailed, fmt.Sprintf("%s open interest request failed: %v", name, err))
	} else {
		snap.OpenInterest = oi
		snap.SetRaw("open_interest", oiRaw)
	}

	candles, candlesRaw, err := adapter.Klines(ctx, vc.Symbol, c.cfg.KlineCount)
	if err != nil {
		snap.AddError(models.ErrOHLCVFailed, fmt.Sprintf("%s ohlcv request failed: %v", name, err))
	} else {
		snap.SetRaw("ohlcv_summary", map[string]interface{}{
			"count": len(candles), "raw_sample": candlesRaw,
		})
	}

	if snap.Ticker == nil && book == nil {
		snap.MissingMarket = true
		snap.AddError(models.ErrMarketDataUnavailable,
			fmt.Sprintf("%s ticker+orderbook both unavailable", name))
	}

	calc.EnrichSnapshot(snap, book, candles, calc.EnrichParams{
		Notional1:      c.cfg.Notional1,
		Notional2:      c.cfg.Notional2,
		RetainedLevels: 20,
	})

	snap.SetRaw("collect_latency_ms", time.Since(started).Milliseconds())
	return snap
}
