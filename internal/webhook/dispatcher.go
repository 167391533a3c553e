package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dandantas/renewer/internal/model"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned while the circuit breaker rejects deliveries
var ErrCircuitOpen = errors.New("circuit breaker is open")

// DispatcherConfig configures webhook delivery
type DispatcherConfig struct {
	Webhook       model.Webhook
	Timeout       time.Duration
	RatePerMinute int
	Breaker       BreakerConfig
}

// Attempt records a single delivery attempt
type Attempt struct {
	Number     int       `json:"number"`
	Timestamp  time.Time `json:"timestamp"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

// Delivery summarises all attempts made for one payload
type Delivery struct {
	Delivered bool      `json:"delivered"`
	Attempts  []Attempt `json:"attempts"`
}

// Dispatcher handles webhook delivery with rate limiting, retry logic and
// a circuit breaker
type Dispatcher struct {
	webhook        model.Webhook
	httpClient     *http.Client
	limiter        *rate.Limiter
	circuitBreaker *CircuitBreaker
}

// NewDispatcher creates a new webhook dispatcher
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 30
	}
	burst := cfg.RatePerMinute / 6
	if burst < 1 {
		burst = 1
	}
	cfg.Webhook.RetryConfig.SetDefaults()
	if cfg.Webhook.Method == "" {
		cfg.Webhook.Method = http.MethodPost
	}

	return &Dispatcher{
		webhook: cfg.Webhook,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:        rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), burst),
		circuitBreaker: NewCircuitBreaker(cfg.Breaker, nil),
	}
}

// Send posts the payload to the webhook with retry logic
func (d *Dispatcher) Send(ctx context.Context, payload Payload, traceID string) (*Delivery, error) {
	delivery := &Delivery{Attempts: make([]Attempt, 0, 1)}

	if !d.circuitBreaker.CanAttempt() {
		slog.Warn("Circuit breaker is open, skipping webhook delivery",
			"trace_id", traceID,
			"circuit_state", d.circuitBreaker.State().String(),
		)
		return delivery, ErrCircuitOpen
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return delivery, fmt.Errorf("failed to marshal payload: %w", err)
	}

	retryStrategy := NewRetryStrategy(d.webhook.RetryConfig)

	for attempt := 1; attempt <= retryStrategy.MaxAttempts(); attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return delivery, fmt.Errorf("rate limiter wait: %w", err)
		}

		result, retryAfter, err := d.deliver(ctx, body, attempt)
		delivery.Attempts = append(delivery.Attempts, result)

		if err == nil {
			slog.Debug("Webhook delivered successfully",
				"trace_id", traceID,
				"attempt", attempt,
				"status_code", result.StatusCode,
			)
			delivery.Delivered = true
			d.circuitBreaker.RecordSuccess()
			return delivery, nil
		}

		if !retryStrategy.ShouldRetry(attempt, result.StatusCode, err) {
			slog.Error("Webhook delivery failed, no retry",
				"trace_id", traceID,
				"attempt", attempt,
				"status_code", result.StatusCode,
				"error", result.Error,
			)
			d.circuitBreaker.RecordFailure()
			return delivery, fmt.Errorf("webhook delivery failed after %d attempts: %w", attempt, err)
		}

		delay := retryStrategy.CalculateDelay(attempt, retryAfter)
		slog.Warn("Webhook delivery failed, retrying",
			"trace_id", traceID,
			"attempt", attempt,
			"next_retry_ms", delay.Milliseconds(),
			"error", result.Error,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			d.circuitBreaker.RecordFailure()
			return delivery, ctx.Err()
		}
	}

	slog.Error("Webhook delivery failed after all retries",
		"trace_id", traceID,
		"attempts", retryStrategy.MaxAttempts(),
	)

	d.circuitBreaker.RecordFailure()
	return delivery, fmt.Errorf("webhook delivery failed after %d attempts", retryStrategy.MaxAttempts())
}

// deliver performs a single webhook delivery attempt
func (d *Dispatcher) deliver(ctx context.Context, body []byte, number int) (Attempt, time.Duration, error) {
	start := time.Now()
	attempt := Attempt{
		Number:    number,
		Timestamp: start.UTC(),
	}

	req, err := http.NewRequestWithContext(ctx, d.webhook.Method, d.webhook.URL, bytes.NewReader(body))
	if err != nil {
		attempt.Error = fmt.Sprintf("Failed to create request: %v", err)
		attempt.DurationMs = time.Since(start).Milliseconds()
		return attempt, 0, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range d.webhook.Headers {
		req.Header.Set(key, value)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		attempt.Error = fmt.Sprintf("Request failed: %v", err)
		attempt.DurationMs = time.Since(start).Milliseconds()
		return attempt, 0, err
	}
	defer resp.Body.Close()

	// Drain a little so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	attempt.StatusCode = resp.StatusCode
	attempt.DurationMs = time.Since(start).Milliseconds()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		attempt.Error = fmt.Sprintf("Webhook returned status %d", resp.StatusCode)
		return attempt, parseRetryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return attempt, 0, nil
}

// CircuitState returns the current circuit breaker state
func (d *Dispatcher) CircuitState() CircuitState {
	return d.circuitBreaker.State()
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
