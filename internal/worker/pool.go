package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dandantas/renewer/internal/automation"
	"github.com/dandantas/renewer/internal/model"
	"github.com/google/uuid"
)

// TaskSource hands out claimed tasks and records their outcome
type TaskSource interface {
	ClaimTask(ctx context.Context, workerID string) (*model.RenewalTask, error)
	Settle(ctx context.Context, task *model.RenewalTask, result model.TaskResult, permanent bool) (*model.RenewalTask, error)
}

// Executor runs a renewal against the portal
type Executor interface {
	IsHealthy(ctx context.Context) bool
	Renew(ctx context.Context, task *model.RenewalTask) (model.TaskResult, error)
}

// Config holds worker pool settings
type Config struct {
	Workers      int
	PollInterval time.Duration
	// RenewTimeout bounds one executor run
	RenewTimeout time.Duration
}

// WorkerPool runs goroutines that poll for pending renewal tasks and drive
// the executor. The executor owns one browser session, so one worker is
// the usual setting.
type WorkerPool struct {
	cfg      Config
	tasks    TaskSource
	executor Executor
	instance string

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(cfg Config, tasks TaskSource, executor Executor) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.RenewTimeout <= 0 {
		cfg.RenewTimeout = 5 * time.Minute
	}

	return &WorkerPool{
		cfg:      cfg,
		tasks:    tasks,
		executor: executor,
		instance: uuid.New().String()[:8],
	}
}

// Start starts the worker pool
func (wp *WorkerPool) Start(ctx context.Context) {
	ctx, wp.cancel = context.WithCancel(ctx)

	slog.Info("Starting worker pool",
		"workers", wp.cfg.Workers,
		"poll_interval", wp.cfg.PollInterval,
	)

	for i := 0; i < wp.cfg.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, fmt.Sprintf("%s-%d", wp.instance, i))
	}
}

// Stop stops the worker pool and waits for in-flight jobs
func (wp *WorkerPool) Stop() {
	slog.Info("Stopping worker pool")

	if wp.cancel != nil {
		wp.cancel()
	}
	wp.wg.Wait()

	slog.Info("Worker pool stopped")
}

func (wp *WorkerPool) worker(ctx context.Context, id string) {
	defer wp.wg.Done()

	slog.Debug("Worker started", "worker_id", id)

	ticker := time.NewTicker(wp.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Worker stopped", "worker_id", id)
			return
		case <-ticker.C:
			// drain the backlog before waiting for the next tick
			for ctx.Err() == nil {
				result, err := wp.RunOnce(ctx, id)
				if err != nil {
					slog.Error("Worker poll failed", "worker_id", id, "error", err)
				}
				if result == nil {
					break
				}
			}
		}
	}
}

// RunOnce claims and processes at most one task. It returns nil when the
// executor is unhealthy or nothing is pending.
func (wp *WorkerPool) RunOnce(ctx context.Context, workerID string) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Worker panic recovered", "worker_id", workerID, "panic", r)
			result, err = nil, fmt.Errorf("worker panic: %v", r)
		}
	}()

	if !wp.executor.IsHealthy(ctx) {
		slog.Debug("Executor unhealthy, skipping poll", "worker_id", workerID)
		return nil, nil
	}

	task, err := wp.tasks.ClaimTask(ctx, workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	if task == nil {
		return nil, nil
	}

	res := wp.process(ctx, Job{Task: task, WorkerID: workerID})
	return &res, nil
}

func (wp *WorkerPool) process(ctx context.Context, job Job) Result {
	logger := slog.With(
		"trace_id", job.TraceID(),
		"worker_id", job.WorkerID,
		"system_id", job.Task.SystemID,
	)
	logger.Info("Worker processing renewal task",
		"task_id", job.Task.ID.Hex(),
		"attempt", job.Task.Attempts,
	)

	renewCtx, cancel := context.WithTimeout(ctx, wp.cfg.RenewTimeout)
	outcome, renewErr := wp.executor.Renew(renewCtx, job.Task)
	cancel()

	if renewErr != nil && outcome.Error == "" {
		outcome.Error = renewErr.Error()
	}
	permanent := errors.Is(renewErr, automation.ErrChallengeDetected)

	// settle on the parent context so a renew timeout still records the failure
	settled, err := wp.tasks.Settle(ctx, job.Task, outcome, permanent)

	result := Result{
		TaskID:    job.Task.ID.Hex(),
		SystemID:  job.Task.SystemID,
		Permanent: permanent,
		Error:     renewErr,
	}
	if err != nil {
		logger.Error("Failed to settle renewal task", "error", err)
		result.Error = errors.Join(renewErr, err)
		result.Status = job.Task.Status
		return result
	}
	result.Status = settled.Status

	logger.Debug("Renewal task settled", "status", settled.Status)
	return result
}
