package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RetryConfig holds retry configuration for generation API calls.
type RetryConfig struct {
	MaxRetries        int           // Maximum number of retries (default: 3)
	InitialBackoff    time.Duration // Initial backoff duration (default: 1s)
	MaxBackoff        time.Duration // Maximum backoff duration (default: 30s)
	BackoffMultiplier float64       // Backoff multiplier (default: 2.0)
	Timeout           time.Duration // Per-attempt timeout (default: 60s)

	// MaxConcurrentCalls caps in-flight API calls (default: 3, 0 = unlimited)
	MaxConcurrentCalls int
}

// DefaultRetryConfig returns the standard retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:         3,
		InitialBackoff:     1 * time.Second,
		MaxBackoff:         30 * time.Second,
		BackoffMultiplier:  2.0,
		Timeout:            60 * time.Second,
		MaxConcurrentCalls: 3,
	}
}

// retryWithBackoff executes fn with bounded exponential backoff. Each
// attempt runs under its own timeout; non-retriable errors return
// immediately.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, operation string, fn func(context.Context) error) error {
	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetriableError(err) {
			return fmt.Errorf("%s failed: %w", operation, err)
		}
		if attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("%s canceled during backoff: %w", operation, ctx.Err())
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
	return fmt.Errorf("%s failed after %d retries: %w", operation, cfg.MaxRetries, lastErr)
}

// isRetriableError reports whether an API error is worth retrying.
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()

	// Rate limits (429) are retriable
	if strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit") {
		return true
	}

	// Server errors (5xx) are retriable
	if strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") {
		return true
	}

	// Network/connection errors are retriable
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "network") {
		return true
	}

	// Other 4xx client errors indicate bad requests that will not succeed
	// on retry.
	return false
}
