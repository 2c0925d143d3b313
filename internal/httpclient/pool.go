package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ClientConfig tunes the shared retrying HTTP pool.
type ClientConfig struct {
	MaxConcurrency int
	RequestTimeout time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	RateLimitRPS   float64
	UserAgent      string
}

// StatusError reports a non-retriable HTTP status. Retriable statuses
// (429 and 5xx) are retried internally and only surface after the
// attempt cap is exhausted.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

// IsStatusError reports whether err carries an HTTP status code, and if
// so which one.
func IsStatusError(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode, true
	}
	return 0, false
}

// ClientPool is a bounded-concurrency HTTP client with exponential
// backoff on transient failures. Retries block the calling goroutine
// during the backoff sleep.
type ClientPool struct {
	config    ClientConfig
	semaphore chan struct{}
	limiter   *rate.Limiter
	client    *http.Client
}

// NewClientPool builds a pool from config, filling unset fields with
// conservative defaults.
func NewClientPool(config ClientConfig) *ClientPool {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 15 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 2
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = time.Second
	}
	if config.BackoffMax <= 0 {
		config.BackoffMax = 15 * time.Second
	}

	var limiter *rate.Limiter
	if config.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimitRPS), int(config.RateLimitRPS)+1)
	}

	return &ClientPool{
		config:    config,
		semaphore: make(chan struct{}, config.MaxConcurrency),
		limiter:   limiter,
		client: &http.Client{
			Timeout: config.RequestTimeout,
		},
	}
}

// GetJSON performs a retrying GET against base+path with query params
// and decodes the response body into out.
func (cp *ClientPool) GetJSON(ctx context.Context, base, path string, params url.Values, out interface{}) error {
	u := base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := cp.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", u, err)
	}
	return nil
}

// Do executes the request with the pool's concurrency bound, rate limit
// and retry policy. Responses with retriable status codes (429, 5xx) are
// retried with exponential backoff; other non-2xx statuses return a
// *StatusError immediately.
func (cp *ClientPool) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	select {
	case cp.semaphore <- struct{}{}:
		defer func() { <-cp.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if cp.config.UserAgent != "" {
		req.Header.Set("User-Agent", cp.config.UserAgent)
	}

	if cp.limiter != nil {
		if err := cp.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var lastErr error
	for attempt := 0; attempt <= cp.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := cp.calculateBackoff(attempt)
			log.Debug().
				Dur("backoff", backoff).
				Int("attempt", attempt).
				Str("url", req.URL.String()).
				Msg("retrying HTTP request")

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := cp.client.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = err
			if isRetryableError(err) && ctx.Err() == nil {
				continue
			}
			return nil, lastErr
		}

		if isRetryableStatus(resp.StatusCode) {
			resp.Body.Close()
			lastErr = &StatusError{StatusCode: resp.StatusCode, URL: req.URL.String()}
			continue
		}

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, &StatusError{StatusCode: resp.StatusCode, URL: req.URL.String()}
		}

		return resp, nil
	}

	return nil, lastErr
}

func (cp *ClientPool) calculateBackoff(attempt int) time.Duration {
	backoff := cp.config.BackoffBase * time.Duration(1<<uint(attempt-1))
	if backoff > cp.config.BackoffMax {
		backoff = cp.config.BackoffMax
	}
	return backoff
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func isRetryableStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}
