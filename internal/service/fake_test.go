package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dandantas/renewer/internal/database"
	"github.com/dandantas/renewer/internal/model"
	"github.com/dandantas/renewer/internal/notify"
)

// memoryTasks implements the task store for both the queue and the service
type memoryTasks struct {
	mu    sync.Mutex
	tasks []*model.RenewalTask
}

func (m *memoryTasks) FindActiveBySystemID(_ context.Context, systemID string) (*model.RenewalTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.SystemID == systemID && t.Active {
			return t, nil
		}
	}
	return nil, nil
}

func (m *memoryTasks) Create(_ context.Context, task *model.RenewalTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.SystemID == task.SystemID && t.Active {
			return database.ErrDuplicateTask
		}
	}
	task.ID = primitive.NewObjectID()
	task.Active = true
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *memoryTasks) GetByID(_ context.Context, id primitive.ObjectID) (*model.RenewalTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.ID == id {
			c := *t
			return &c, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *memoryTasks) ClaimNext(_ context.Context, workerID string, now time.Time) (*model.RenewalTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sort.SliceStable(m.tasks, func(i, j int) bool { return m.tasks[i].CreatedAt.Before(m.tasks[j].CreatedAt) })
	for _, t := range m.tasks {
		if t.Status == model.TaskStatusPending && (t.NotBefore == nil || !t.NotBefore.After(now)) {
			t.Status = model.TaskStatusClaimed
			t.ClaimedBy = workerID
			t.ClaimedAt = &now
			t.Attempts++
			c := *t
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memoryTasks) Requeue(_ context.Context, id primitive.ObjectID, reason, screenshot string, notBefore time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.ID == id && t.Status == model.TaskStatusClaimed {
			t.Status = model.TaskStatusPending
			t.LastError = reason
			t.Screenshot = screenshot
			t.NotBefore = &notBefore
			t.ClaimedBy = ""
			t.ClaimedAt = nil
			return nil
		}
	}
	return database.ErrNotFound
}

func (m *memoryTasks) Finish(_ context.Context, id primitive.ObjectID, status model.TaskStatus, reason, screenshot string, now time.Time) (*model.RenewalTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.ID == id && t.Active {
			t.Status = status
			t.Active = false
			t.CompletedAt = &now
			if reason != "" {
				t.LastError = reason
			}
			if screenshot != "" {
				t.Screenshot = screenshot
			}
			c := *t
			return &c, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *memoryTasks) List(_ context.Context, filter bson.M, page, limit int) ([]model.RenewalTask, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.RenewalTask
	for _, t := range m.tasks {
		if s, ok := filter["status"]; ok && string(t.Status) != s {
			continue
		}
		if s, ok := filter["system_id"]; ok && t.SystemID != s {
			continue
		}
		out = append(out, *t)
	}
	total := int64(len(out))
	start := (page - 1) * limit
	if start > len(out) {
		start = len(out)
	}
	end := start + limit
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (m *memoryTasks) get(systemID string) *model.RenewalTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.tasks) - 1; i >= 0; i-- {
		if m.tasks[i].SystemID == systemID {
			c := *m.tasks[i]
			return &c
		}
	}
	return nil
}

// memoryAccounts implements account lookup and renewal bookkeeping
type memoryAccounts struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
	renewed  map[primitive.ObjectID]time.Time
}

func newMemoryAccounts(accounts ...*model.Account) *memoryAccounts {
	m := &memoryAccounts{accounts: map[string]*model.Account{}, renewed: map[primitive.ObjectID]time.Time{}}
	for _, a := range accounts {
		if a.ID.IsZero() {
			a.ID = primitive.NewObjectID()
		}
		m.accounts[a.SystemID] = a
	}
	return m
}

func (m *memoryAccounts) GetBySystemID(_ context.Context, systemID string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[systemID]
	if !ok {
		return nil, database.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (m *memoryAccounts) MarkRenewed(_ context.Context, id primitive.ObjectID, newExpiration *time.Time, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renewed[id] = *newExpiration
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return true
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.sent))
	for i, n := range r.sent {
		out[i] = n.Type
	}
	return out
}
