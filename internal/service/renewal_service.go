package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dandantas/renewer/internal/model"
	"github.com/dandantas/renewer/internal/notify"
	"github.com/dandantas/renewer/internal/queue"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrInvalidID is returned for malformed task identifiers
	ErrInvalidID = errors.New("invalid ID format")
	// ErrTaskNotClaimed is returned when completing a task nobody holds
	ErrTaskNotClaimed = errors.New("task is not claimed")
)

// TaskStore is the durable task collection as seen by the service
type TaskStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*model.RenewalTask, error)
	ClaimNext(ctx context.Context, workerID string, now time.Time) (*model.RenewalTask, error)
	Requeue(ctx context.Context, id primitive.ObjectID, reason, screenshot string, notBefore time.Time) error
	Finish(ctx context.Context, id primitive.ObjectID, status model.TaskStatus, reason, screenshot string, now time.Time) (*model.RenewalTask, error)
	List(ctx context.Context, filter bson.M, page, limit int) ([]model.RenewalTask, int64, error)
}

// AccountUpdater records a successful renewal on the account
type AccountUpdater interface {
	MarkRenewed(ctx context.Context, id primitive.ObjectID, newExpiration *time.Time, renewedAt time.Time) error
}

// Config holds the renewal service settings
type Config struct {
	MaxAttempts int
	// RenewalPeriod extends the expiration when the executor does not report one
	RenewalPeriod time.Duration
	// RetryBackoff delays a requeued task by this much per attempt made
	RetryBackoff time.Duration
}

// RenewalService handles queue operations and the durable task handoff
type RenewalService struct {
	queue    *queue.Manager
	tasks    TaskStore
	accounts AccountUpdater
	notifier notify.Notifier
	cfg      Config
	now      func() time.Time
}

// NewRenewalService creates a new renewal service
func NewRenewalService(q *queue.Manager, tasks TaskStore, accounts AccountUpdater, notifier notify.Notifier, cfg Config) *RenewalService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Minute
	}
	if cfg.RenewalPeriod <= 0 {
		cfg.RenewalPeriod = 30 * 24 * time.Hour
	}

	return &RenewalService{
		queue:    q,
		tasks:    tasks,
		accounts: accounts,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// QueueStatus returns the dashboard view of the queue
func (s *RenewalService) QueueStatus() model.QueueSnapshot {
	return s.queue.Snapshot()
}

// ForceRenew queues and dispatches an account immediately
func (s *RenewalService) ForceRenew(ctx context.Context, systemID, traceID string) (*model.RenewalQueueItem, queue.Outcome, error) {
	return s.queue.ForceRenew(ctx, systemID, traceID)
}

// ClearQueue removes every item that is not processing
func (s *RenewalService) ClearQueue() int {
	removed := s.queue.Clear()
	slog.Info("Renewal queue cleared", "removed", removed)
	return removed
}

// ListTasks retrieves durable tasks with filtering
func (s *RenewalService) ListTasks(ctx context.Context, status, systemID string, page, limit int) ([]model.TaskSummary, int64, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	if systemID != "" {
		filter["system_id"] = systemID
	}

	tasks, total, err := s.tasks.List(ctx, filter, page, limit)
	if err != nil {
		return nil, 0, err
	}

	summaries := make([]model.TaskSummary, len(tasks))
	for i, task := range tasks {
		summaries[i] = task.ToSummary()
	}

	return summaries, total, nil
}

// ClaimTask hands the oldest pending task to a worker. Returns nil when
// nothing is pending.
func (s *RenewalService) ClaimTask(ctx context.Context, workerID string) (*model.RenewalTask, error) {
	task, err := s.tasks.ClaimNext(ctx, workerID, s.now())
	if err != nil {
		return nil, err
	}
	if task != nil {
		slog.Info("Renewal task claimed",
			"trace_id", task.Metadata.TraceID,
			"task_id", task.ID.Hex(),
			"system_id", task.SystemID,
			"worker_id", workerID,
			"attempt", task.Attempts,
		)
	}
	return task, nil
}

// CompleteTask applies a result reported by an external worker
func (s *RenewalService) CompleteTask(ctx context.Context, id string, result model.TaskResult) (*model.RenewalTask, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}

	task, err := s.tasks.GetByID(ctx, objID)
	if err != nil {
		return nil, err
	}
	if task.Status != model.TaskStatusClaimed {
		return nil, ErrTaskNotClaimed
	}

	return s.Settle(ctx, task, result, false)
}

// Settle moves a claimed task on after an execution attempt. Successful
// renewals update the account, release the renewing lock and notify.
// Failures go back to pending until attempts run out or the failure is
// permanent, then the task fails and the queue item is marked error.
func (s *RenewalService) Settle(ctx context.Context, task *model.RenewalTask, result model.TaskResult, permanent bool) (*model.RenewalTask, error) {
	now := s.now()
	logger := slog.With(
		"trace_id", task.Metadata.TraceID,
		"task_id", task.ID.Hex(),
		"system_id", task.SystemID,
	)

	if result.Success {
		newExpiration := result.NewExpiration
		if newExpiration == nil {
			next := s.nextExpiration(task, now)
			newExpiration = &next
		}

		finished, err := s.tasks.Finish(ctx, task.ID, model.TaskStatusDone, "", "", now)
		if err != nil {
			return nil, fmt.Errorf("failed to finish task: %w", err)
		}

		if err := s.accounts.MarkRenewed(ctx, task.AccountID, newExpiration, now); err != nil {
			logger.Error("Failed to update renewed account", "error", err)
		}
		s.queue.Release(task.SystemID)

		logger.Info("Renewal completed", "new_expiration", newExpiration.Format(time.RFC3339))
		s.notifier.Notify(ctx, notify.SucceededAlert(finished, newExpiration))
		return finished, nil
	}

	reason := result.Error
	if reason == "" {
		reason = "renewal failed without detail"
	}

	if !permanent && task.Attempts < s.cfg.MaxAttempts {
		notBefore := now.Add(s.retryDelay(task.Attempts))
		if err := s.tasks.Requeue(ctx, task.ID, reason, result.Screenshot, notBefore); err != nil {
			return nil, fmt.Errorf("failed to requeue task: %w", err)
		}
		task.Status = model.TaskStatusPending
		task.LastError = reason
		task.Screenshot = result.Screenshot
		task.NotBefore = &notBefore
		task.ClaimedBy = ""
		task.ClaimedAt = nil

		logger.Warn("Renewal attempt failed, task requeued",
			"attempt", task.Attempts,
			"max_attempts", s.cfg.MaxAttempts,
			"retry_at", notBefore.Format(time.RFC3339),
			"error", reason,
		)
		return task, nil
	}

	finished, err := s.tasks.Finish(ctx, task.ID, model.TaskStatusFailed, reason, result.Screenshot, now)
	if err != nil {
		return nil, fmt.Errorf("failed to finish task: %w", err)
	}
	s.queue.MarkError(task.SystemID, reason)

	logger.Error("Renewal failed",
		"attempts", task.Attempts,
		"permanent", permanent,
		"screenshot", result.Screenshot,
		"error", reason,
	)
	s.notifier.Notify(ctx, notify.FailedAlert(finished, reason, result.Screenshot))
	return finished, nil
}

// retryDelay grows linearly with the attempts already made
func (s *RenewalService) retryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(attempts) * s.cfg.RetryBackoff
}

// nextExpiration extends from the later of now and the old expiration
func (s *RenewalService) nextExpiration(task *model.RenewalTask, now time.Time) time.Time {
	base := now
	if exp := task.Metadata.OriginalExpiration; exp != nil && exp.After(now) {
		base = *exp
	}
	return base.Add(s.cfg.RenewalPeriod)
}
