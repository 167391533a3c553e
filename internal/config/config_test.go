package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.ScanInterval)
	assert.Equal(t, 5*time.Second, cfg.DispatchDelay)
	assert.Equal(t, 5*time.Minute, cfg.HeartbeatMaxAge)
	assert.Equal(t, 5*time.Minute, cfg.LockReleaseAfter)
	assert.Equal(t, 5*time.Minute, cfg.ErrorGracePeriod)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 60*time.Second, cfg.WatchdogInterval)
	assert.Equal(t, 3, cfg.WorkerMaxAttempts)
	assert.Equal(t, time.Minute, cfg.WorkerRetryBackoff)
	assert.Equal(t, 30*24*time.Hour, cfg.RenewalPeriod)
	assert.Equal(t, "exists", cfg.PortalStatusOperator)
	assert.False(t, cfg.AutomationEnabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SCAN_INTERVAL_SEC", "15")
	t.Setenv("SCANNER_ENABLED", "false")
	t.Setenv("RENEWAL_LOOKAHEAD_MINUTES", "120")
	t.Setenv("PORTAL_BASE_URL", "https://portal.example.com/")
	t.Setenv("PORTAL_USERNAME", "reseller")
	t.Setenv("PORTAL_PASSWORD", "secret")
	t.Setenv("WORKER_RETRY_BACKOFF_SEC", "90")

	cfg := Load()

	assert.Equal(t, 15*time.Second, cfg.ScanInterval)
	assert.False(t, cfg.ScannerEnabled)
	assert.Equal(t, 120, cfg.DefaultLookaheadMinutes)
	assert.Equal(t, "https://portal.example.com", cfg.PortalBaseURL)
	assert.True(t, cfg.AutomationEnabled())
	assert.Equal(t, 90*time.Second, cfg.WorkerRetryBackoff)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("WORKER_MAX_ATTEMPTS", "many")
	t.Setenv("PORTAL_HEADLESS", "maybe")

	cfg := Load()

	assert.Equal(t, 3, cfg.WorkerMaxAttempts)
	assert.True(t, cfg.PortalHeadless)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
