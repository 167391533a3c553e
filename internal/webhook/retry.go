package webhook

import (
	"math"
	"net/http"
	"time"

	"github.com/dandantas/renewer/internal/model"
)

// RetryStrategy handles exponential backoff retry logic
type RetryStrategy struct {
	config model.RetryConfig
}

// NewRetryStrategy creates a new retry strategy
func NewRetryStrategy(config model.RetryConfig) *RetryStrategy {
	config.SetDefaults()
	return &RetryStrategy{
		config: config,
	}
}

// CalculateDelay returns the wait before the next attempt.
// Formula: delay = min(initial_delay * (multiplier ^ (attempt-1)), max_delay).
// A server-provided retryAfter wins when it is longer.
func (rs *RetryStrategy) CalculateDelay(attempt int, retryAfter time.Duration) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delayMs := float64(rs.config.InitialDelayMs) * math.Pow(rs.config.Multiplier, float64(attempt-1))
	if delayMs > float64(rs.config.MaxDelayMs) {
		delayMs = float64(rs.config.MaxDelayMs)
	}

	delay := time.Duration(delayMs) * time.Millisecond
	if retryAfter > delay {
		maxDelay := time.Duration(rs.config.MaxDelayMs) * time.Millisecond
		if retryAfter > maxDelay {
			return maxDelay
		}
		return retryAfter
	}
	return delay
}

// ShouldRetry determines if a retry should be attempted
func (rs *RetryStrategy) ShouldRetry(attempt int, statusCode int, err error) bool {
	if attempt >= rs.config.MaxAttempts {
		return false
	}

	switch {
	case statusCode == 0 && err != nil:
		// network error
		return true
	case statusCode == http.StatusTooManyRequests:
		return true
	case statusCode >= 500:
		return true
	case statusCode >= 400:
		return false
	case statusCode >= 300:
		return true
	}

	return false
}

// MaxAttempts returns the maximum number of attempts
func (rs *RetryStrategy) MaxAttempts() int {
	return rs.config.MaxAttempts
}
