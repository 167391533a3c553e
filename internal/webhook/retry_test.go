package webhook

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dandantas/renewer/internal/model"
)

func TestRetryStrategy_CalculateDelay(t *testing.T) {
	rs := NewRetryStrategy(model.RetryConfig{
		MaxAttempts:    5,
		InitialDelayMs: 1000,
		MaxDelayMs:     5000,
		Multiplier:     2,
	})

	assert.Equal(t, time.Duration(0), rs.CalculateDelay(0, 0))
	assert.Equal(t, 1*time.Second, rs.CalculateDelay(1, 0))
	assert.Equal(t, 2*time.Second, rs.CalculateDelay(2, 0))
	assert.Equal(t, 4*time.Second, rs.CalculateDelay(3, 0))
	assert.Equal(t, 5*time.Second, rs.CalculateDelay(4, 0), "capped at max delay")
	assert.Equal(t, 3*time.Second, rs.CalculateDelay(1, 3*time.Second), "retry-after wins when longer")
	assert.Equal(t, 5*time.Second, rs.CalculateDelay(1, time.Minute), "retry-after is capped too")
}

func TestRetryStrategy_ShouldRetry(t *testing.T) {
	rs := NewRetryStrategy(model.RetryConfig{MaxAttempts: 3})
	netErr := errors.New("connection refused")
	statusErr := errors.New("bad status")

	tests := []struct {
		name    string
		attempt int
		status  int
		err     error
		want    bool
	}{
		{"network error", 1, 0, netErr, true},
		{"server error", 1, http.StatusInternalServerError, statusErr, true},
		{"rate limited", 2, http.StatusTooManyRequests, statusErr, true},
		{"client error", 1, http.StatusNotFound, statusErr, false},
		{"redirect", 1, http.StatusFound, statusErr, true},
		{"attempts exhausted", 3, http.StatusBadGateway, statusErr, false},
		{"success", 1, http.StatusOK, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rs.ShouldRetry(tt.attempt, tt.status, tt.err))
		})
	}
}
