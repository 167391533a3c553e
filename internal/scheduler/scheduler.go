package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dandantas/renewer/internal/model"
	"github.com/dandantas/renewer/internal/notify"
	"github.com/dandantas/renewer/internal/queue"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// AccountStore reads accounts
type AccountStore interface {
	ListAll(ctx context.Context) ([]model.Account, error)
	GetBySystemID(ctx context.Context, systemID string) (*model.Account, error)
}

// ClientStore reads clients linked to accounts
type ClientStore interface {
	ListLinked(ctx context.Context) ([]model.Client, error)
}

// SettingsStore reads the runtime renewal settings
type SettingsStore interface {
	GetRenewalSettings(ctx context.Context) (*model.RenewalSettings, error)
}

// HealthStore reads the automation health record
type HealthStore interface {
	Get(ctx context.Context) (*model.HealthRecord, error)
}

// StuckTaskFinder finds tasks claimed too long ago
type StuckTaskFinder interface {
	FindStuck(ctx context.Context, claimedBefore time.Time) ([]model.RenewalTask, error)
}

// Stores groups the scanner's read dependencies
type Stores struct {
	Accounts AccountStore
	Clients  ClientStore
	Settings SettingsStore
	Health   HealthStore
	Tasks    StuckTaskFinder
}

// Config holds the scanner timings
type Config struct {
	Interval           time.Duration
	DispatchDelay      time.Duration
	HeartbeatMaxAge    time.Duration
	ExpiringSoonWindow time.Duration
	StuckTaskAfter     time.Duration
}

// Option customises a Scanner
type Option func(*Scanner)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// WithSleep overrides the wait between dispatches
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scanner) { s.sleep = sleep }
}

// Scanner periodically finds accounts that need renewal and feeds them to
// the queue manager
type Scanner struct {
	cfg      Config
	queue    *queue.Manager
	stores   Stores
	notifier notify.Notifier

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScanner creates a new expiration scanner
func NewScanner(cfg Config, q *queue.Manager, stores Stores, notifier notify.Notifier, opts ...Option) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}

	s := &Scanner{
		cfg:      cfg,
		queue:    q,
		stores:   stores,
		notifier: notifier,
		now:      time.Now,
		sleep:    sleepContext,
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the scanner tick loop
func (s *Scanner) Start(ctx context.Context) {
	slog.Info("Starting expiration scanner",
		"scan_interval", s.cfg.Interval,
		"dispatch_delay", s.cfg.DispatchDelay,
	)

	s.ticker = time.NewTicker(s.cfg.Interval)
	s.queue.SetRunning(true)
	s.wg.Add(1)

	go s.run(ctx)
}

// Stop gracefully stops the scanner, waiting for an in-flight tick
func (s *Scanner) Stop(ctx context.Context) {
	slog.Info("Stopping expiration scanner")

	s.stopOnce.Do(func() { close(s.stopChan) })
	if s.ticker != nil {
		s.ticker.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Expiration scanner stopped")
	case <-ctx.Done():
		slog.Warn("Timeout waiting for scanner tick to complete")
	}

	s.queue.SetRunning(false)
}

// run is the main scanner loop
func (s *Scanner) run(ctx context.Context) {
	defer s.wg.Done()

	// Run immediately on start
	s.Tick(ctx)

	for {
		select {
		case <-s.ticker.C:
			s.Tick(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			slog.Info("Scanner context done")
			return
		}
	}
}

// Tick runs one scan. Panics are recovered so the next tick always runs.
func (s *Scanner) Tick(ctx context.Context) (record model.ScanRecord) {
	traceID := uuid.New().String()
	record.StartedAt = s.now()

	defer func() {
		if r := recover(); r != nil {
			record.Errors++
			slog.Error("Scanner tick panicked", "trace_id", traceID, "panic", r)
		}
		record.CompletedAt = s.now()
		next := cron.Every(s.cfg.Interval).Next(record.StartedAt)
		s.queue.RecordScan(record, next)

		slog.Info("Scanner tick completed",
			"trace_id", traceID,
			"eligible", record.Eligible,
			"dispatched", record.Dispatched,
			"errors", record.Errors,
			"duration_ms", record.CompletedAt.Sub(record.StartedAt).Milliseconds(),
		)
	}()

	s.queue.Cleanup()

	settings, err := s.stores.Settings.GetRenewalSettings(ctx)
	if err != nil {
		slog.Error("Failed to load renewal settings", "trace_id", traceID, "error", err)
		record.Errors++
		return record
	}
	if !settings.Enabled {
		slog.Info("Automatic renewal disabled, skipping scan", "trace_id", traceID)
		return record
	}
	if settings.DistributionMode == model.DistributionFixed {
		slog.Info("Distribution mode is fixed, skipping scan", "trace_id", traceID)
		return record
	}

	now := s.now()
	s.checkHealth(ctx, now, traceID)
	s.checkStuckTasks(ctx, now, traceID)

	accounts, err := s.stores.Accounts.ListAll(ctx)
	if err != nil {
		slog.Error("Failed to list accounts", "trace_id", traceID, "error", err)
		record.Errors++
		return record
	}
	clients, err := s.stores.Clients.ListLinked(ctx)
	if err != nil {
		slog.Error("Failed to list clients", "trace_id", traceID, "error", err)
		record.Errors++
		return record
	}

	lookahead := settings.Lookahead()
	eligible := Eligible(accounts, clients, lookahead, now)
	record.Eligible = len(eligible)

	work := make([]model.Account, 0, len(eligible))
	for i := range eligible {
		account := &eligible[i]
		item, added := s.queue.Enqueue(account, model.SourceScanner, uuid.New().String())
		if item == nil {
			slog.Debug("Account holds the renewing lock, skipping",
				"trace_id", traceID,
				"system_id", account.SystemID,
			)
			continue
		}
		if added {
			s.alertOnEnqueue(ctx, account, now, item.TraceID)
		}
		if item.Status == model.QueueStatusWaiting {
			work = append(work, *account)
		}
	}

	for i := range work {
		if i > 0 {
			if err := s.sleep(ctx, s.cfg.DispatchDelay); err != nil {
				slog.Warn("Scanner dispatch interrupted", "trace_id", traceID, "error", err)
				return record
			}
		}

		dispatched, err := s.dispatchOne(ctx, &work[i], lookahead)
		if err != nil {
			record.Errors++
			slog.Error("Failed to dispatch renewal",
				"trace_id", traceID,
				"system_id", work[i].SystemID,
				"error", err,
			)
			continue
		}
		if dispatched {
			record.Dispatched++
		}
	}

	return record
}

// Eligible returns the accounts due for renewal, expired first then soonest
// expiring. Accounts without an expiration and accounts with any client
// overdue for more than two days are left out.
func Eligible(accounts []model.Account, clients []model.Client, lookahead time.Duration, now time.Time) []model.Account {
	overdue := make(map[string]bool)
	for i := range clients {
		if clients[i].IsOverdue(now) {
			overdue[clients[i].SystemID] = true
		}
	}

	eligible := make([]model.Account, 0)
	for _, account := range accounts {
		if !account.HasExpiration() || overdue[account.SystemID] {
			continue
		}
		if isDue(&account, lookahead, now) {
			eligible = append(eligible, account)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i].ExpiresAt, eligible[j].ExpiresAt
		if !a.Equal(*b) {
			return a.Before(*b)
		}
		return eligible[i].SystemID < eligible[j].SystemID
	})

	return eligible
}

func isDue(account *model.Account, lookahead time.Duration, now time.Time) bool {
	return account.IsExpired(now) || account.MinutesUntilExpiration(now) <= lookahead.Minutes()
}

// dispatchOne re-reads the account so a renewal that landed between the scan
// and the dispatch is not repeated, then hands it to the queue manager
func (s *Scanner) dispatchOne(ctx context.Context, account *model.Account, lookahead time.Duration) (dispatched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during dispatch: %v", r)
			s.queue.MarkError(account.SystemID, err.Error())
		}
	}()

	fresh, err := s.stores.Accounts.GetBySystemID(ctx, account.SystemID)
	if err != nil {
		s.queue.MarkError(account.SystemID, err.Error())
		return false, fmt.Errorf("failed to refresh account: %w", err)
	}
	if !fresh.HasExpiration() || !isDue(fresh, lookahead, s.now()) {
		s.queue.Drop(account.SystemID)
		slog.Info("Account no longer due, dropped from queue", "system_id", account.SystemID)
		return false, nil
	}

	if _, err := s.queue.Dispatch(ctx, fresh); err != nil {
		if errors.Is(err, queue.ErrRenewalInProgress) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (s *Scanner) alertOnEnqueue(ctx context.Context, account *model.Account, now time.Time, traceID string) {
	switch {
	case account.IsExpired(now):
		s.notifier.Notify(ctx, notify.ExpiredAlert(account, traceID))
	case account.ExpiresAt.Sub(now) <= s.cfg.ExpiringSoonWindow:
		s.notifier.Notify(ctx, notify.ExpiringSoonAlert(account, now, traceID))
	}
}

func (s *Scanner) checkHealth(ctx context.Context, now time.Time, traceID string) {
	if s.stores.Health == nil {
		return
	}

	record, err := s.stores.Health.Get(ctx)
	if err != nil {
		slog.Error("Failed to read automation health", "trace_id", traceID, "error", err)
		return
	}

	if record.IsStale(now, s.cfg.HeartbeatMaxAge) {
		slog.Warn("Automation session is offline", "trace_id", traceID)
		s.notifier.Notify(ctx, notify.OfflineAlert(record, traceID))
	}
}

func (s *Scanner) checkStuckTasks(ctx context.Context, now time.Time, traceID string) {
	if s.stores.Tasks == nil || s.cfg.StuckTaskAfter <= 0 {
		return
	}

	tasks, err := s.stores.Tasks.FindStuck(ctx, now.Add(-s.cfg.StuckTaskAfter))
	if err != nil {
		slog.Error("Failed to find stuck tasks", "trace_id", traceID, "error", err)
		return
	}

	for i := range tasks {
		slog.Warn("Renewal task is stuck",
			"trace_id", tasks[i].Metadata.TraceID,
			"task_id", tasks[i].ID.Hex(),
			"system_id", tasks[i].SystemID,
		)
		s.notifier.Notify(ctx, notify.StuckAlert(&tasks[i], now))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
