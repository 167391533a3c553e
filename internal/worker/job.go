package worker

import (
	"github.com/dandantas/renewer/internal/model"
)

// Job is one claimed renewal task handed to a worker
type Job struct {
	Task     *model.RenewalTask
	WorkerID string
}

// TraceID returns the trace id carried by the task
func (j Job) TraceID() string {
	return j.Task.Metadata.TraceID
}

// Result is the outcome of processing one job
type Result struct {
	TaskID    string
	SystemID  string
	Status    model.TaskStatus
	Permanent bool
	Error     error
}
