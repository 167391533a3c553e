package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 2, SuccessThreshold: 2, OpenTimeout: time.Minute}, clock)
	assert.Equal(t, StateClosed, cb.State())

	cb.RecordFailure()
	assert.True(t, cb.CanAttempt())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.CanAttempt())

	now = now.Add(time.Minute)
	assert.True(t, cb.CanAttempt())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State(), "a half-open failure reopens the circuit")

	now = now.Add(time.Minute)
	assert.True(t, cb.CanAttempt())
	cb.RecordSuccess()
	assert.Equal(t, StateHalfOpen, cb.State())
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{FailureThreshold: 2}, nil)

	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "closed", cb.State().String())
}
