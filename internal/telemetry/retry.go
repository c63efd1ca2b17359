package telemetry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryConfig defines retry behavior for metric export requests
type RetryConfig struct {
	MaxRetries      int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	RetryableErrors []int // HTTP status codes that should be retried
}

// DefaultRetryConfig keeps the total export time well under the flush timeout.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialDelay:    200 * time.Millisecond,
		MaxDelay:        2 * time.Second,
		BackoffFactor:   2.0,
		RetryableErrors: []int{429, 502, 503, 504},
	}
}

// retryingClient wraps an HTTP client with exponential backoff.
type retryingClient struct {
	client *http.Client
	retry  RetryConfig
}

func newRetryingClient(timeout time.Duration, retry RetryConfig) *retryingClient {
	return &retryingClient{client: &http.Client{Timeout: timeout}, retry: retry}
}

// Do executes req, retrying transport errors and retryable status codes.
// req must have GetBody set when it carries a body.
func (c *retryingClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.wait(req.Context(), attempt-1); err != nil {
				return nil, err
			}
		}

		reqClone := req.Clone(req.Context())
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			reqClone.Body = body
		}

		resp, err := c.client.Do(reqClone)
		if err != nil {
			lastErr = err
			log.Debug().
				Err(err).
				Int("attempt", attempt+1).
				Str("url", req.URL.String()).
				Msg("export request failed")
			continue
		}

		if c.shouldRetry(resp.StatusCode) && attempt < c.retry.MaxRetries {
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			log.Debug().
				Int("status", resp.StatusCode).
				Int("attempt", attempt+1).
				Str("url", req.URL.String()).
				Msg("export request returned retryable status")
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

func (c *retryingClient) wait(ctx context.Context, attempt int) error {
	t := time.NewTimer(c.calculateDelay(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *retryingClient) shouldRetry(statusCode int) bool {
	for _, code := range c.retry.RetryableErrors {
		if statusCode == code {
			return true
		}
	}
	return false
}

// calculateDelay calculates exponential backoff delay with ±25% jitter
func (c *retryingClient) calculateDelay(attempt int) time.Duration {
	delay := float64(c.retry.InitialDelay) * math.Pow(c.retry.BackoffFactor, float64(attempt))
	delay += delay * 0.25 * (2*rand.Float64() - 1)
	if delay > float64(c.retry.MaxDelay) {
		delay = float64(c.retry.MaxDelay)
	}
	return time.Duration(delay)
}
