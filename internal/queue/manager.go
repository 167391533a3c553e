package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dandantas/renewer/internal/database"
	"github.com/dandantas/renewer/internal/model"
)

var (
	// ErrRenewalInProgress is returned when the account holds the renewing lock
	ErrRenewalInProgress = errors.New("renewal already in progress")
	// ErrAccountNotFound is returned by ForceRenew for unknown accounts
	ErrAccountNotFound = errors.New("account not found")
	// ErrNotQueued is returned when dispatching an account with no queue item
	ErrNotQueued = errors.New("account is not queued")
)

// Outcome describes what a dispatch did with the durable task store
type Outcome string

const (
	OutcomeCreated      Outcome = "created"
	OutcomeDeduplicated Outcome = "deduplicated"
)

// TaskStore is the durable handoff the manager writes to
type TaskStore interface {
	FindActiveBySystemID(ctx context.Context, systemID string) (*model.RenewalTask, error)
	Create(ctx context.Context, task *model.RenewalTask) error
}

// AccountLookup resolves accounts for manual renewals
type AccountLookup interface {
	GetBySystemID(ctx context.Context, systemID string) (*model.Account, error)
}

// Config holds the manager timings
type Config struct {
	LockReleaseAfter time.Duration
	ErrorGracePeriod time.Duration
}

// Manager owns the in-memory renewal queue and the renewing lock set.
// Every check and the write it guards happen under mu.
type Manager struct {
	mu sync.Mutex

	items map[string]*model.RenewalQueueItem
	// locks maps system id to the time the lock releases itself
	locks map[string]time.Time

	running  bool
	lastScan *model.ScanRecord
	nextScan *time.Time

	tasks    TaskStore
	accounts AccountLookup
	cfg      Config
	now      func() time.Time
}

// NewManager creates a new queue manager
func NewManager(tasks TaskStore, accounts AccountLookup, cfg Config, now func() time.Time) *Manager {
	if cfg.LockReleaseAfter <= 0 {
		cfg.LockReleaseAfter = 5 * time.Minute
	}
	if cfg.ErrorGracePeriod <= 0 {
		cfg.ErrorGracePeriod = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}

	return &Manager{
		items:    make(map[string]*model.RenewalQueueItem),
		locks:    make(map[string]time.Time),
		tasks:    tasks,
		accounts: accounts,
		cfg:      cfg,
		now:      now,
	}
}

// Enqueue adds a waiting item for the account. It returns the existing item
// and false when the account is already queued, and nil and false while the
// account holds the renewing lock. Error items and completed items whose
// lock has lapsed are replaced without waiting for Cleanup.
func (m *Manager) Enqueue(account *model.Account, source, traceID string) (*model.RenewalQueueItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	if existing, ok := m.items[account.SystemID]; ok && !m.replaceableLocked(existing, now) {
		return copyItem(existing), false
	}
	if m.lockedLocked(account.SystemID, now) {
		return nil, false
	}

	item := &model.RenewalQueueItem{
		SystemID:            account.SystemID,
		Status:              model.QueueStatusWaiting,
		Source:              source,
		TraceID:             traceID,
		EstimatedExpiration: copyTime(account.ExpiresAt),
		AddedAt:             now,
	}
	m.items[account.SystemID] = item

	slog.Info("Account queued for renewal",
		"trace_id", traceID,
		"system_id", account.SystemID,
		"source", source,
	)

	return copyItem(item), true
}

func (m *Manager) replaceableLocked(item *model.RenewalQueueItem, now time.Time) bool {
	switch item.Status {
	case model.QueueStatusError:
		return true
	case model.QueueStatusCompleted:
		return !m.lockedLocked(item.SystemID, now)
	default:
		return false
	}
}

// MarkProcessing moves a waiting item to processing and takes the renewing lock
func (m *Manager) MarkProcessing(systemID string) (*model.RenewalQueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	item, ok := m.items[systemID]
	if !ok {
		return nil, ErrNotQueued
	}
	if m.lockedLocked(systemID, now) || item.Status != model.QueueStatusWaiting {
		return nil, ErrRenewalInProgress
	}

	item.Status = model.QueueStatusProcessing
	item.StartedAt = &now
	item.Error = ""
	m.locks[systemID] = now.Add(m.cfg.LockReleaseAfter)

	return copyItem(item), nil
}

// MarkCompleted marks the item completed and schedules the lock release
func (m *Manager) MarkCompleted(systemID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if item, ok := m.items[systemID]; ok {
		item.Status = model.QueueStatusCompleted
		item.CompletedAt = &now
	}
	m.locks[systemID] = now.Add(m.cfg.LockReleaseAfter)
}

// MarkError marks the item failed and drops the renewing lock
func (m *Manager) MarkError(systemID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if item, ok := m.items[systemID]; ok {
		item.Status = model.QueueStatusError
		item.Error = reason
		item.CompletedAt = &now
	}
	delete(m.locks, systemID)
}

// Release drops the renewing lock before its deadline, used when the
// executor reports completion. A completed item goes with it.
func (m *Manager) Release(systemID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.locks, systemID)
	if item, ok := m.items[systemID]; ok && item.Status == model.QueueStatusCompleted {
		delete(m.items, systemID)
	}
}

// Drop removes a waiting item that no longer needs renewal
func (m *Manager) Drop(systemID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item, ok := m.items[systemID]; ok && item.Status == model.QueueStatusWaiting {
		delete(m.items, systemID)
		return true
	}
	return false
}

// IsLocked reports whether the account holds the renewing lock
func (m *Manager) IsLocked(systemID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lockedLocked(systemID, m.now())
}

// Item returns a copy of the queue item for the account
func (m *Manager) Item(systemID string) (*model.RenewalQueueItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[systemID]
	if !ok {
		return nil, false
	}
	return copyItem(item), true
}

// Dispatch hands a queued account to the durable task store. An existing
// pending or claimed task is reused instead of creating a second one.
func (m *Manager) Dispatch(ctx context.Context, account *model.Account) (Outcome, error) {
	item, err := m.MarkProcessing(account.SystemID)
	if err != nil {
		return "", err
	}

	logger := slog.With("trace_id", item.TraceID, "system_id", account.SystemID)

	existing, err := m.tasks.FindActiveBySystemID(ctx, account.SystemID)
	if err != nil {
		m.MarkError(account.SystemID, err.Error())
		return "", fmt.Errorf("failed to check active task: %w", err)
	}
	if existing != nil {
		m.MarkCompleted(account.SystemID)
		logger.Info("Active renewal task exists, deferring to it",
			"task_id", existing.ID.Hex(),
			"task_status", existing.Status,
		)
		return OutcomeDeduplicated, nil
	}

	task := &model.RenewalTask{
		AccountID:   account.ID,
		SystemID:    account.SystemID,
		Credentials: account.Credentials,
		Status:      model.TaskStatusPending,
		CreatedAt:   m.now(),
		Metadata: model.TaskMetadata{
			TraceID:            item.TraceID,
			OriginalExpiration: copyTime(account.ExpiresAt),
			Source:             item.Source,
		},
	}

	if err := m.tasks.Create(ctx, task); err != nil {
		if errors.Is(err, database.ErrDuplicateTask) {
			m.MarkCompleted(account.SystemID)
			logger.Info("Renewal task created concurrently, deferring to it")
			return OutcomeDeduplicated, nil
		}
		m.MarkError(account.SystemID, err.Error())
		return "", fmt.Errorf("failed to create renewal task: %w", err)
	}

	m.MarkCompleted(account.SystemID)
	logger.Info("Renewal task created", "task_id", task.ID.Hex())

	return OutcomeCreated, nil
}

// ForceRenew queues and dispatches one account on demand. It honours the
// renewing lock but not the scanner's eligibility rules.
func (m *Manager) ForceRenew(ctx context.Context, systemID, traceID string) (*model.RenewalQueueItem, Outcome, error) {
	account, err := m.accounts.GetBySystemID(ctx, systemID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, "", ErrAccountNotFound
		}
		return nil, "", fmt.Errorf("failed to load account: %w", err)
	}

	if _, added := m.Enqueue(account, model.SourceManual, traceID); !added && m.IsLocked(systemID) {
		return nil, "", ErrRenewalInProgress
	}

	outcome, err := m.Dispatch(ctx, account)
	if err != nil {
		return nil, "", err
	}

	item, _ := m.Item(systemID)
	return item, outcome, nil
}

// Cleanup removes completed items and error items past their grace period.
// Waiting and processing items are never removed here.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0

	for id, item := range m.items {
		switch item.Status {
		case model.QueueStatusCompleted:
			delete(m.items, id)
			removed++
		case model.QueueStatusError:
			since := item.AddedAt
			if item.CompletedAt != nil {
				since = *item.CompletedAt
			}
			if now.Sub(since) >= m.cfg.ErrorGracePeriod {
				delete(m.items, id)
				removed++
			}
		}
	}

	for id, releaseAt := range m.locks {
		if !now.Before(releaseAt) {
			delete(m.locks, id)
		}
	}

	if removed > 0 {
		slog.Debug("Queue cleanup removed items", "removed", removed)
	}

	return removed
}

// Clear removes every item that is not processing. Locks are left alone.
func (m *Manager) Clear() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, item := range m.items {
		if item.Status == model.QueueStatusProcessing {
			continue
		}
		delete(m.items, id)
		removed++
	}

	return removed
}

// SetRunning records whether the scanner loop is running
func (m *Manager) SetRunning(running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = running
}

// RecordScan stores the latest scan and the next scheduled one
func (m *Manager) RecordScan(record model.ScanRecord, next time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastScan = &record
	m.nextScan = &next
}

// Snapshot returns the dashboard view: active items (processing first,
// then soonest expiration), counts for every status, and scan timing.
func (m *Manager) Snapshot() model.QueueSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	snapshot := model.QueueSnapshot{
		Running: m.running,
		Items:   make([]model.RenewalQueueItem, 0, len(m.items)),
		Counts: map[model.QueueStatus]int{
			model.QueueStatusWaiting:    0,
			model.QueueStatusProcessing: 0,
			model.QueueStatusCompleted:  0,
			model.QueueStatusError:      0,
		},
		Locked: make([]string, 0, len(m.locks)),
	}

	for _, item := range m.items {
		snapshot.Counts[item.Status]++
		if item.Status.IsActive() {
			snapshot.Items = append(snapshot.Items, *copyItem(item))
		}
	}
	sort.Slice(snapshot.Items, func(i, j int) bool {
		return activeLess(&snapshot.Items[i], &snapshot.Items[j])
	})

	for id := range m.locks {
		if m.lockedLocked(id, now) {
			snapshot.Locked = append(snapshot.Locked, id)
		}
	}
	sort.Strings(snapshot.Locked)

	if m.lastScan != nil {
		scan := *m.lastScan
		snapshot.LastScan = &scan
	}
	snapshot.NextScan = copyTime(m.nextScan)

	return snapshot
}

// lockedLocked must be called with mu held
func (m *Manager) lockedLocked(systemID string, now time.Time) bool {
	releaseAt, ok := m.locks[systemID]
	return ok && now.Before(releaseAt)
}

func activeLess(a, b *model.RenewalQueueItem) bool {
	if a.Status != b.Status {
		return a.Status == model.QueueStatusProcessing
	}
	switch {
	case a.EstimatedExpiration == nil && b.EstimatedExpiration == nil:
		return a.SystemID < b.SystemID
	case a.EstimatedExpiration == nil:
		return false
	case b.EstimatedExpiration == nil:
		return true
	case !a.EstimatedExpiration.Equal(*b.EstimatedExpiration):
		return a.EstimatedExpiration.Before(*b.EstimatedExpiration)
	}
	return a.SystemID < b.SystemID
}

func copyItem(item *model.RenewalQueueItem) *model.RenewalQueueItem {
	c := *item
	c.EstimatedExpiration = copyTime(item.EstimatedExpiration)
	c.StartedAt = copyTime(item.StartedAt)
	c.CompletedAt = copyTime(item.CompletedAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
