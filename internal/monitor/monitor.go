package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dandantas/renewer/internal/automation"
	"github.com/dandantas/renewer/internal/model"
	"github.com/dandantas/renewer/internal/notify"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Session is the part of the automation executor the monitor supervises
type Session interface {
	Login(ctx context.Context) error
	CheckLogin(ctx context.Context) (bool, error)
	Ping(ctx context.Context) error
	Restart(ctx context.Context, delay time.Duration) error
	Status(ctx context.Context) automation.Status
	ChallengePending() bool
}

// HealthStore persists the health snapshot
type HealthStore interface {
	Get(ctx context.Context) (*model.HealthRecord, error)
	Save(ctx context.Context, record *model.HealthRecord) error
}

// Config holds the monitor timings
type Config struct {
	HeartbeatInterval time.Duration
	WatchdogInterval  time.Duration
	RestartDelay      time.Duration
	// CheckTimeout bounds a single heartbeat or watchdog run
	CheckTimeout time.Duration
	// Logger receives cron's own messages
	Logger cron.Logger
}

const errChallengePending = "portal challenge pending, waiting for manual reset"

// Monitor runs the heartbeat and watchdog jobs against the executor session
type Monitor struct {
	cfg      Config
	session  Session
	store    HealthStore
	notifier notify.Notifier
	now      func() time.Time

	cron *cron.Cron

	mu       sync.Mutex
	restarts int
}

// NewMonitor creates a new health monitor
func NewMonitor(cfg Config, session Session, store HealthStore, notifier notify.Notifier) *Monitor {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.WatchdogInterval <= 0 {
		cfg.WatchdogInterval = time.Minute
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 2 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn))
	}

	return &Monitor{
		cfg:      cfg,
		session:  session,
		store:    store,
		notifier: notifier,
		now:      time.Now,
	}
}

// Start schedules the heartbeat and watchdog jobs. Neither job overlaps
// itself and a panic in one run is logged and recovered.
func (m *Monitor) Start(ctx context.Context) {
	if record, err := m.store.Get(ctx); err == nil && record != nil {
		m.mu.Lock()
		m.restarts = record.Restarts
		m.mu.Unlock()
	}

	m.cron = cron.New(
		cron.WithLogger(m.cfg.Logger),
		cron.WithChain(cron.Recover(m.cfg.Logger), cron.SkipIfStillRunning(m.cfg.Logger)),
	)
	m.cron.Schedule(cron.Every(m.cfg.HeartbeatInterval), cron.FuncJob(func() { m.Heartbeat(ctx) }))
	m.cron.Schedule(cron.Every(m.cfg.WatchdogInterval), cron.FuncJob(func() { m.Watchdog(ctx) }))
	m.cron.Start()

	slog.Info("Health monitor started",
		"heartbeat_interval", m.cfg.HeartbeatInterval,
		"watchdog_interval", m.cfg.WatchdogInterval,
	)
}

// Stop waits for running jobs and stops the schedule
func (m *Monitor) Stop(ctx context.Context) {
	if m.cron == nil {
		return
	}

	select {
	case <-m.cron.Stop().Done():
		slog.Info("Health monitor stopped")
	case <-ctx.Done():
		slog.Warn("Timeout waiting for health monitor jobs to complete")
	}
}

// Heartbeat re-checks the login state, tries one re-login when the session
// looks logged out, and always persists the snapshot. No login is attempted
// while a portal challenge is pending.
func (m *Monitor) Heartbeat(ctx context.Context) {
	traceID := uuid.New().String()
	ctx, cancel := context.WithTimeout(ctx, m.cfg.CheckTimeout)
	defer cancel()

	var lastErr string
	loggedIn, err := m.session.CheckLogin(ctx)
	switch {
	case err != nil:
		lastErr = err.Error()
		slog.Warn("Heartbeat could not check login", "trace_id", traceID, "error", err)
	case !loggedIn && m.session.ChallengePending():
		lastErr = errChallengePending
		slog.Warn("Portal session logged out, re-login paused by pending challenge", "trace_id", traceID)
	case !loggedIn:
		slog.Warn("Portal session logged out, attempting re-login", "trace_id", traceID)
		if err := m.session.Login(ctx); err != nil {
			lastErr = err.Error()
			m.handleLoginError(ctx, err, traceID)
		} else {
			loggedIn = true
			slog.Info("Re-login succeeded", "trace_id", traceID)
		}
	}

	m.saveSnapshot(ctx, loggedIn, lastErr, traceID)
}

// Watchdog verifies the browser responds and restarts it when it does not
func (m *Monitor) Watchdog(ctx context.Context) {
	traceID := uuid.New().String()
	ctx, cancel := context.WithTimeout(ctx, m.cfg.CheckTimeout)
	defer cancel()

	pingErr := m.session.Ping(ctx)
	if pingErr == nil {
		return
	}

	m.mu.Lock()
	m.restarts++
	restarts := m.restarts
	m.mu.Unlock()

	slog.Warn("Browser unresponsive, restarting",
		"trace_id", traceID,
		"restarts", restarts,
		"error", pingErr,
	)

	err := m.session.Restart(ctx, m.cfg.RestartDelay)
	switch {
	case err == nil:
		slog.Info("Browser restarted", "trace_id", traceID)
		m.saveSnapshot(ctx, true, "", traceID)
	case errors.Is(err, automation.ErrChallengeDetected):
		m.handleLoginError(ctx, err, traceID)
		m.saveSnapshot(ctx, false, err.Error(), traceID)
	default:
		slog.Error("Browser restart failed", "trace_id", traceID, "error", err)
		m.notifier.Notify(ctx, notify.RestartFailedAlert(err, restarts, traceID))
		m.saveSnapshot(ctx, false, err.Error(), traceID)
	}
}

// Restarts returns how many restarts the watchdog has triggered
func (m *Monitor) Restarts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restarts
}

func (m *Monitor) handleLoginError(ctx context.Context, err error, traceID string) {
	if errors.Is(err, automation.ErrChallengeDetected) {
		slog.Error("Login blocked by interactive challenge, manual action required",
			"trace_id", traceID,
			"error", err,
		)
		m.notifier.Notify(ctx, notify.ChallengeAlert(err.Error(), traceID))
		return
	}
	slog.Error("Re-login failed", "trace_id", traceID, "error", err)
}

func (m *Monitor) saveSnapshot(ctx context.Context, loggedIn bool, lastErr, traceID string) {
	status := m.session.Status(ctx)
	now := m.now()

	if lastErr == "" {
		lastErr = status.LastError
	}

	record := &model.HealthRecord{
		ID:            model.HealthRecordID,
		Active:        status.Active,
		LoggedIn:      status.Active && loggedIn,
		LastHeartbeat: now,
		CurrentURL:    status.CurrentURL,
		LastError:     lastErr,
		Restarts:      m.Restarts(),
		UpdatedAt:     now,
	}

	if err := m.store.Save(ctx, record); err != nil {
		slog.Error("Failed to save health record", "trace_id", traceID, "error", err)
	}
}
