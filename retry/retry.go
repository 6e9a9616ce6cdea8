/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package retry retries ingestion calls with capped exponential backoff.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/chainguard-dev/clog"
)

// Config configures how often and how long an ingestion call is retried.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	// 0 disables retrying.
	MaxRetries int
	// BaseBackoff is the wait before the first retry. It doubles per attempt.
	BaseBackoff time.Duration
	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration
	// MaxJitter is the upper bound of the random delay added to each backoff.
	MaxJitter time.Duration
}

// Validate checks that the configuration has valid values.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return errors.New("max retries cannot be negative")
	}
	if c.BaseBackoff < 0 {
		return errors.New("base backoff cannot be negative")
	}
	if c.MaxBackoff < 0 {
		return errors.New("max backoff cannot be negative")
	}
	if c.MaxJitter < 0 {
		return errors.New("max jitter cannot be negative")
	}
	return nil
}

// DefaultConfig returns the configuration used by the ingestion client.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  10 * time.Second,
		MaxJitter:   250 * time.Millisecond,
	}
}

// StatusError reports a non-2xx response from the ingestion API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("ingestion failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("ingestion failed with status %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether err is a rate limit, a server error, or a
// transport failure. Context cancellation is never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}

// RetryWithBackoff calls fn until it succeeds, returns an error isRetryable
// rejects, or the retries are exhausted.
func RetryWithBackoff[T any](ctx context.Context, cfg Config, operation string, isRetryable func(error) bool, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, lastErr = fn()
		if lastErr == nil {
			return result, nil
		}
		if !isRetryable(lastErr) {
			return result, lastErr
		}
		if attempt >= cfg.MaxRetries {
			break
		}

		backoff := min(cfg.BaseBackoff<<attempt, cfg.MaxBackoff)
		var jitter time.Duration
		if cfg.MaxJitter > 0 {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(cfg.MaxJitter)))
			if err == nil {
				jitter = time.Duration(n.Int64())
			}
		}

		clog.FromContext(ctx).With("operation", operation).
			With("attempt", attempt+1).
			With("max_retries", cfg.MaxRetries).
			With("backoff", backoff+jitter).
			With("error", lastErr.Error()).
			Warn("Ingestion call failed, retrying")

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(backoff + jitter):
		}
	}

	return result, fmt.Errorf("%s failed after %d retries: %w", operation, cfg.MaxRetries, lastErr)
}
