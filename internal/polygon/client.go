package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sawpanic/equityrun/internal/metrics"
)

// ErrRateLimited is returned on HTTP 429 so callers can back off
// without inspecting status codes.
var ErrRateLimited = fmt.Errorf("vendor rate limited")

// Client is the market-data vendor HTTP client. All calls go through a
// token-bucket rate limiter and a circuit breaker; transient failures
// surface as errors for the caller's backoff loop, never as panics.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Registry
}

// New builds a vendor client.
func New(baseURL, apiKey string, timeout time.Duration, perSecond float64, burst int, m *metrics.Registry) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "vendor-http",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).
					Str("from", from.String()).Str("to", to.String()).
					Msg("Vendor breaker state changed")
			},
		}),
		metrics: m,
	}
}

// get performs one authenticated GET and decodes the JSON body into dst.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := c.breaker.Execute(func() (any, error) {
		u, err := url.Parse(c.baseURL + path)
		if err != nil {
			return nil, fmt.Errorf("invalid vendor URL: %w", err)
		}
		if query == nil {
			query = url.Values{}
		}
		query.Set("apiKey", c.apiKey)
		u.RawQuery = query.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.count(endpoint, "transport_error")
			return nil, fmt.Errorf("vendor request failed: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			c.count(endpoint, "rate_limited")
			io.Copy(io.Discard, resp.Body)
			return nil, ErrRateLimited
		case resp.StatusCode >= 500:
			c.count(endpoint, "server_error")
			io.Copy(io.Discard, resp.Body)
			return nil, fmt.Errorf("vendor returned %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			c.count(endpoint, "client_error")
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("vendor returned %d: %s", resp.StatusCode, body)
		}

		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			c.count(endpoint, "decode_error")
			return nil, fmt.Errorf("failed to decode vendor response: %w", err)
		}
		c.count(endpoint, "ok")
		return nil, nil
	})
	return err
}

func (c *Client) count(endpoint, result string) {
	if c.metrics != nil {
		c.metrics.VendorRequests.WithLabelValues(endpoint, result).Inc()
	}
}
