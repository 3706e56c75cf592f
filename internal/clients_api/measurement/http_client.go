package measurement

// Package measurement contains the client for an upstream measurement server
// This file contains the HTTP transport: rate limiting, circuit breaker,
// retries with jitter and request/response logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"battery-chart/internal/infra/log"
	"battery-chart/internal/infra/retry"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options tunes the client. Zero values take the defaults below.
type Options struct {
	Timeout         time.Duration
	MaxRetries      int
	RateLimit       float64 // requests per second
	Burst           int
	MaxResponseSize int64
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 5
	}
	if o.Burst <= 0 {
		o.Burst = 10
	}
	if o.MaxResponseSize <= 0 {
		o.MaxResponseSize = 10 * 1024 * 1024
	}
	return o
}

// Client talks to one upstream server. Safe for concurrent use.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	rateLimiter     *rate.Limiter
	circuitBreaker  *gobreaker.CircuitBreaker
	retryOpts       retry.Options
	maxResponseSize int64
}

func NewClient(baseURL string, opts Options) *Client {
	opts = opts.withDefaults()

	circuitBreaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "MeasurementAPI",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// a 4xx answer means the server is healthy
		IsSuccessful: func(err error) bool {
			return err == nil || !retry.IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.LogWarn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		rateLimiter:    rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst),
		circuitBreaker: circuitBreaker,
		retryOpts: retry.Options{
			MaxRetries: opts.MaxRetries,
			BaseDelay:  300 * time.Millisecond,
			MaxDelay:   5 * time.Second,
		},
		maxResponseSize: opts.MaxResponseSize,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}
}

// MakeRequest performs a GET on endpoint and returns the body of a 2xx response.
func (c *Client) MakeRequest(ctx context.Context, endpoint string) ([]byte, error) {
	requestID := log.GenerateRequestID()
	startTime := time.Now()

	var respBody []byte
	err := retry.Do(ctx, c.retryOpts, func(ctx context.Context) error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
		body, err := c.circuitBreaker.Execute(func() (interface{}, error) {
			return c.do(ctx, requestID, endpoint)
		})
		if err != nil {
			return err
		}
		respBody = body.([]byte)
		return nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.LogError("Circuit breaker rejected request", zap.String("request_id", requestID), zap.String("endpoint", endpoint), zap.Error(err))
		}
		return nil, err
	}

	log.LogDebug("Upstream request done",
		zap.String("request_id", requestID),
		zap.String("endpoint", endpoint),
		zap.Int64("duration_ms", time.Since(startTime).Milliseconds()))
	return respBody, nil
}

func (c *Client) do(ctx context.Context, requestID, endpoint string) ([]byte, error) {
	startTime := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "battery-chart/1.0")
	req.Header.Set("X-Request-ID", requestID)

	log.LogRequest(requestID, req.Method, endpoint, zap.String("url", req.URL.String()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.LogResponse(requestID, 0, time.Since(startTime).Milliseconds(), zap.String("endpoint", endpoint), zap.Error(err))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, retry.Transient(fmt.Errorf("failed to perform request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize))
	duration := time.Since(startTime).Milliseconds()
	if err != nil {
		log.LogResponse(requestID, resp.StatusCode, duration, zap.String("endpoint", endpoint), zap.Error(err))
		return nil, retry.Transient(fmt.Errorf("failed to read response: %w", err))
	}

	log.LogResponse(requestID, resp.StatusCode, duration, zap.String("endpoint", endpoint))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &retry.HTTPError{
			StatusCode: resp.StatusCode,
			Body:       respBody,
			RetryAfter: retry.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return respBody, nil
}
