package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TaskStatus is the durable handoff state of a renewal task
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusClaimed TaskStatus = "claimed"
	TaskStatusDone    TaskStatus = "done"
	TaskStatusFailed  TaskStatus = "failed"
)

// ActiveTaskStatuses are the statuses that block creation of another task
// for the same account.
var ActiveTaskStatuses = []TaskStatus{TaskStatusPending, TaskStatusClaimed}

// TaskMetadata carries correlation data for a task
type TaskMetadata struct {
	TraceID            string     `json:"trace_id" bson:"trace_id"`
	OriginalExpiration *time.Time `json:"original_expiration,omitempty" bson:"original_expiration,omitempty"`
	Source             string     `json:"source" bson:"source"`
}

// RenewalTask is the durable handoff record between the orchestrator and
// whichever process executes the renewal
type RenewalTask struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	AccountID   primitive.ObjectID `json:"account_id" bson:"account_id"`
	SystemID    string             `json:"system_id" bson:"system_id"`
	Credentials Credentials        `json:"credentials" bson:"credentials"`
	Status      TaskStatus         `json:"status" bson:"status"`
	Active      bool               `json:"-" bson:"active"` // true while pending or claimed; backs the unique partial index
	Attempts    int                `json:"attempts" bson:"attempts"`
	LastError   string             `json:"last_error,omitempty" bson:"last_error,omitempty"`
	Screenshot  string             `json:"screenshot,omitempty" bson:"screenshot,omitempty"`
	NotBefore   *time.Time         `json:"not_before,omitempty" bson:"not_before,omitempty"` // retry backoff; unclaimable until then
	ClaimedBy   string             `json:"claimed_by,omitempty" bson:"claimed_by,omitempty"`
	ClaimedAt   *time.Time         `json:"claimed_at,omitempty" bson:"claimed_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
	Metadata    TaskMetadata       `json:"metadata" bson:"metadata"`
}

// TaskSummary represents a task in list responses
type TaskSummary struct {
	ID          string `json:"id"`
	SystemID    string `json:"system_id"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	LastError   string `json:"last_error,omitempty"`
	TraceID     string `json:"trace_id"`
	Source      string `json:"source"`
	CreatedAt   string `json:"created_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// ToSummary converts RenewalTask to TaskSummary
func (t *RenewalTask) ToSummary() TaskSummary {
	var createdAt, completedAt string
	if !t.CreatedAt.IsZero() {
		createdAt = t.CreatedAt.Format(time.RFC3339)
	}
	if t.CompletedAt != nil {
		completedAt = t.CompletedAt.Format(time.RFC3339)
	}

	return TaskSummary{
		ID:          t.ID.Hex(),
		SystemID:    t.SystemID,
		Status:      string(t.Status),
		Attempts:    t.Attempts,
		LastError:   t.LastError,
		TraceID:     t.Metadata.TraceID,
		Source:      t.Metadata.Source,
		CreatedAt:   createdAt,
		CompletedAt: completedAt,
	}
}

// TaskResult is what an executor reports back for a claimed task
type TaskResult struct {
	Success       bool       `json:"success"`
	Error         string     `json:"error,omitempty"`
	Screenshot    string     `json:"screenshot,omitempty"`
	NewExpiration *time.Time `json:"new_expiration,omitempty"`
}
