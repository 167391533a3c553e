package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dandantas/renewer/internal/automation"
	"github.com/dandantas/renewer/internal/model"
)

type settleCall struct {
	result    model.TaskResult
	permanent bool
}

// fakeTasks hands out queued tasks and records settlements
type fakeTasks struct {
	mu       sync.Mutex
	pending  []*model.RenewalTask
	claimErr error
	settled  []settleCall
}

func (f *fakeTasks) ClaimTask(_ context.Context, workerID string) (*model.RenewalTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	if len(f.pending) == 0 {
		return nil, nil
	}
	task := f.pending[0]
	f.pending = f.pending[1:]
	task.Status = model.TaskStatusClaimed
	task.ClaimedBy = workerID
	task.Attempts++
	return task, nil
}

func (f *fakeTasks) Settle(_ context.Context, task *model.RenewalTask, result model.TaskResult, permanent bool) (*model.RenewalTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled = append(f.settled, settleCall{result: result, permanent: permanent})
	c := *task
	if result.Success {
		c.Status = model.TaskStatusDone
	} else if permanent {
		c.Status = model.TaskStatusFailed
	} else {
		c.Status = model.TaskStatusPending
	}
	return &c, nil
}

func (f *fakeTasks) settledCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.settled)
}

type fakeExecutor struct {
	healthy bool
	result  model.TaskResult
	err     error
	panics  bool
	calls   int
}

func (f *fakeExecutor) IsHealthy(context.Context) bool { return f.healthy }

func (f *fakeExecutor) Renew(_ context.Context, _ *model.RenewalTask) (model.TaskResult, error) {
	f.calls++
	if f.panics {
		panic("browser crashed")
	}
	return f.result, f.err
}

func newTask(systemID string) *model.RenewalTask {
	return &model.RenewalTask{
		ID:       primitive.NewObjectID(),
		SystemID: systemID,
		Status:   model.TaskStatusPending,
		Metadata: model.TaskMetadata{TraceID: "trace-" + systemID},
	}
}

func TestRunOnce_Success(t *testing.T) {
	tasks := &fakeTasks{pending: []*model.RenewalTask{newTask("sys-1")}}
	exec := &fakeExecutor{healthy: true, result: model.TaskResult{Success: true}}
	wp := NewWorkerPool(Config{}, tasks, exec)

	result, err := wp.RunOnce(context.Background(), "w-0")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "sys-1", result.SystemID)
	assert.Equal(t, model.TaskStatusDone, result.Status)
	assert.NoError(t, result.Error)
	require.Len(t, tasks.settled, 1)
	assert.True(t, tasks.settled[0].result.Success)
}

func TestRunOnce_SkipsWhileUnhealthy(t *testing.T) {
	tasks := &fakeTasks{pending: []*model.RenewalTask{newTask("sys-1")}}
	exec := &fakeExecutor{healthy: false}
	wp := NewWorkerPool(Config{}, tasks, exec)

	result, err := wp.RunOnce(context.Background(), "w-0")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Len(t, tasks.pending, 1, "task must stay pending")
	assert.Zero(t, exec.calls)
}

func TestRunOnce_NothingPending(t *testing.T) {
	wp := NewWorkerPool(Config{}, &fakeTasks{}, &fakeExecutor{healthy: true})

	result, err := wp.RunOnce(context.Background(), "w-0")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestRunOnce_ClaimError(t *testing.T) {
	wp := NewWorkerPool(Config{}, &fakeTasks{claimErr: errors.New("mongo down")}, &fakeExecutor{healthy: true})

	result, err := wp.RunOnce(context.Background(), "w-0")
	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestRunOnce_FailureClassification(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantPermanent bool
		wantStatus    model.TaskStatus
	}{
		{
			name:          "challenge fails immediately",
			err:           fmt.Errorf("accounts page shows .captcha: %w", automation.ErrChallengeDetected),
			wantPermanent: true,
			wantStatus:    model.TaskStatusFailed,
		},
		{
			name:       "unconfirmed renewal is retried",
			err:        fmt.Errorf("%w: no indicator", automation.ErrRenewalNotConfirmed),
			wantStatus: model.TaskStatusPending,
		},
		{
			name:       "closed session is retried",
			err:        automation.ErrSessionClosed,
			wantStatus: model.TaskStatusPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks := &fakeTasks{pending: []*model.RenewalTask{newTask("sys-1")}}
			exec := &fakeExecutor{healthy: true, err: tt.err, result: model.TaskResult{Screenshot: "/tmp/shot.png"}}
			wp := NewWorkerPool(Config{}, tasks, exec)

			result, err := wp.RunOnce(context.Background(), "w-0")
			require.NoError(t, err)
			require.NotNil(t, result)

			assert.Equal(t, tt.wantPermanent, result.Permanent)
			assert.Equal(t, tt.wantStatus, result.Status)
			require.Len(t, tasks.settled, 1)
			assert.Equal(t, tt.err.Error(), tasks.settled[0].result.Error)
			assert.Equal(t, "/tmp/shot.png", tasks.settled[0].result.Screenshot)
		})
	}
}

func TestRunOnce_RecoversPanic(t *testing.T) {
	tasks := &fakeTasks{pending: []*model.RenewalTask{newTask("sys-1")}}
	wp := NewWorkerPool(Config{}, tasks, &fakeExecutor{healthy: true, panics: true})

	result, err := wp.RunOnce(context.Background(), "w-0")
	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestWorkerPool_DrainsBacklog(t *testing.T) {
	tasks := &fakeTasks{pending: []*model.RenewalTask{newTask("sys-1"), newTask("sys-2"), newTask("sys-3")}}
	exec := &fakeExecutor{healthy: true, result: model.TaskResult{Success: true}}
	wp := NewWorkerPool(Config{PollInterval: 10 * time.Millisecond}, tasks, exec)

	wp.Start(context.Background())
	assert.Eventually(t, func() bool { return tasks.settledCount() == 3 }, time.Second, 5*time.Millisecond)
	wp.Stop()
}
