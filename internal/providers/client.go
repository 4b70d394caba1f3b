package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultBackoff retries three times starting at half a second.
var DefaultBackoff = BackoffConfig{
	MaxRetries:      3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

// ClientConfig bundles HTTP client and resilience settings.
type ClientConfig struct {
	Name    string
	Client  *http.Client
	Backoff BackoffConfig
	// RatePerSec limits outgoing requests; zero disables limiting.
	RatePerSec float64
	Observer   RequestObserver
}

// RequestObserver is told about the outcome of every request. Optional.
type RequestObserver interface {
	ObserveRequest(provider, outcome string, d time.Duration)
}

var (
	// ErrNoData means a feed answered but had nothing usable.
	ErrNoData = errors.New("no data")

	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errUnexpected    = errors.New("unexpected status code")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// Client is a resilient JSON-over-HTTP client shared by all feeds of one
// upstream. Requests are rate limited, retried with exponential backoff and
// guarded by a circuit breaker.
type Client struct {
	name     string
	http     *http.Client
	backoff  BackoffConfig
	circuit  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	observer RequestObserver
}

// NewClient creates a Client. A nil http client gets a 10s timeout.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Backoff == (BackoffConfig{}) {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Name == "" {
		cfg.Name = "provider"
	}

	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		burst := int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}

	return &Client{
		name:    cfg.Name,
		http:    cfg.Client,
		backoff: cfg.Backoff,
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
		}),
		limiter:  limiter,
		observer: cfg.Observer,
	}
}

// Name returns the upstream name used for the breaker and metrics.
func (c *Client) Name() string {
	return c.name
}

// GetJSON fetches url and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	return c.doJSON(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, v)
}

// PostJSON sends body as JSON to url and decodes the response into v.
func (c *Client) PostJSON(ctx context.Context, url string, body, v any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.doJSON(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, v)
}

func (c *Client) doJSON(ctx context.Context, buildRequest func() (*http.Request, error), v any) error {
	start := time.Now()
	resp, err := c.doRequestWithResilience(ctx, buildRequest)
	if err != nil {
		c.observe("error", start)
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		c.observe("malformed", start)
		return fmt.Errorf("%s: decode response: %w", c.name, err)
	}
	c.observe("ok", start)
	return nil
}

func (c *Client) observe(outcome string, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveRequest(c.name, outcome, time.Since(start))
	}
}

// doRequestWithResilience executes the HTTP request with rate limiting,
// retries, exponential backoff and a circuit breaker.
func (c *Client) doRequestWithResilience(
	ctx context.Context,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if c.http == nil {
		return nil, errNoHTTPClient
	}
	if c.backoff.MaxRetries < 0 || c.backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	var attempt int
	var lastErr error

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%s: rate limiter: %w", c.name, err)
			}
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}
		req = req.WithContext(ctx)

		result, err := c.circuit.Execute(func() (interface{}, error) {
			resp, execErr := c.http.Do(req)
			if execErr != nil {
				return nil, execErr
			}

			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return resp, nil
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				return nil, errRateLimited
			case resp.StatusCode >= 500:
				return nil, errServerError
			default:
				return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
			}
		})

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return resp, nil
		}

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w: %v", c.name, errCircuitOpen, err)
		}
		// Client errors will not improve on retry.
		if errors.Is(err, errUnexpected) {
			return nil, fmt.Errorf("%s: %w", c.name, err)
		}

		lastErr = err
		if attempt >= c.backoff.MaxRetries {
			return nil, fmt.Errorf("%s: giving up after %d attempts: %w", c.name, attempt+1, lastErr)
		}

		delay := c.backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > c.backoff.MaxInterval && c.backoff.MaxInterval > 0 {
			delay = c.backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}
