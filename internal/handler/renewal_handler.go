package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dandantas/renewer/internal/database"
	"github.com/dandantas/renewer/internal/model"
	"github.com/dandantas/renewer/internal/queue"
	"github.com/dandantas/renewer/internal/service"
)

// RenewalService is what the renewal handlers need from the service layer
type RenewalService interface {
	QueueStatus() model.QueueSnapshot
	ForceRenew(ctx context.Context, systemID, traceID string) (*model.RenewalQueueItem, queue.Outcome, error)
	ClearQueue() int
	ListTasks(ctx context.Context, status, systemID string, page, limit int) ([]model.TaskSummary, int64, error)
	ClaimTask(ctx context.Context, workerID string) (*model.RenewalTask, error)
	CompleteTask(ctx context.Context, id string, result model.TaskResult) (*model.RenewalTask, error)
}

// RenewalHandler handles renewal queue and task handoff operations
type RenewalHandler struct {
	service RenewalService
}

// NewRenewalHandler creates a new renewal handler
func NewRenewalHandler(service RenewalService) *RenewalHandler {
	return &RenewalHandler{
		service: service,
	}
}

// ForceRenewResponse represents force-renew response
type ForceRenewResponse struct {
	TraceID string                  `json:"trace_id"`
	Outcome queue.Outcome           `json:"outcome"`
	Item    *model.RenewalQueueItem `json:"item,omitempty"`
}

// ClearQueueResponse represents clear-queue response
type ClearQueueResponse struct {
	Removed int `json:"removed"`
}

// TaskListResponse represents task list response
type TaskListResponse struct {
	Total   int64               `json:"total"`
	Page    int                 `json:"page"`
	Limit   int                 `json:"limit"`
	Results []model.TaskSummary `json:"results"`
}

// ClaimRequest represents task claim request
type ClaimRequest struct {
	WorkerID string `json:"worker_id"`
}

// ClaimResponse carries everything an external worker needs to run the
// renewal, credentials included
type ClaimResponse struct {
	TaskID             string     `json:"task_id"`
	SystemID           string     `json:"system_id"`
	Username           string     `json:"username"`
	Password           string     `json:"password"`
	TraceID            string     `json:"trace_id"`
	Attempt            int        `json:"attempt"`
	OriginalExpiration *time.Time `json:"original_expiration,omitempty"`
}

// CompleteRequest represents task completion request
type CompleteRequest struct {
	Success       bool       `json:"success"`
	Error         string     `json:"error,omitempty"`
	Screenshot    string     `json:"screenshot,omitempty"`
	NewExpiration *time.Time `json:"new_expiration,omitempty"`
}

// Queue handles GET /api/v1/renewals/queue
func (h *RenewalHandler) Queue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.QueueStatus())
}

// ForceRenew handles POST /api/v1/renewals/{system_id}/force
func (h *RenewalHandler) ForceRenew(w http.ResponseWriter, r *http.Request) {
	systemID := r.PathValue("system_id")
	if systemID == "" {
		writeError(w, http.StatusBadRequest, "system_id is required")
		return
	}

	traceID := requestTraceID(r)
	item, outcome, err := h.service.ForceRenew(r.Context(), systemID, traceID)
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrRenewalInProgress):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, queue.ErrAccountNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			slog.Error("Force renew failed", "trace_id", traceID, "system_id", systemID, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, ForceRenewResponse{
		TraceID: traceID,
		Outcome: outcome,
		Item:    item,
	})
}

// ClearQueue handles DELETE /api/v1/renewals/queue
func (h *RenewalHandler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ClearQueueResponse{Removed: h.service.ClearQueue()})
}

// ListTasks handles GET /api/v1/renewals/tasks
func (h *RenewalHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	systemID := r.URL.Query().Get("system_id")
	page := parseQueryInt(r, "page", 1)
	limit := parseQueryInt(r, "limit", 20)

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	// Enforce max limit
	if limit > 100 {
		limit = 100
	}

	summaries, total, err := h.service.ListTasks(r.Context(), status, systemID, page, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, TaskListResponse{
		Total:   total,
		Page:    page,
		Limit:   limit,
		Results: summaries,
	})
}

// ClaimTask handles POST /api/v1/renewals/tasks/claim
func (h *RenewalHandler) ClaimTask(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.WorkerID == "" {
		req.WorkerID = "external-" + requestTraceID(r)
	}

	task, err := h.service.ClaimTask(r.Context(), req.WorkerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, ClaimResponse{
		TaskID:             task.ID.Hex(),
		SystemID:           task.SystemID,
		Username:           task.Credentials.Username,
		Password:           task.Credentials.Password,
		TraceID:            task.Metadata.TraceID,
		Attempt:            task.Attempts,
		OriginalExpiration: task.Metadata.OriginalExpiration,
	})
}

// CompleteTask handles POST /api/v1/renewals/tasks/{id}/complete
func (h *RenewalHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	task, err := h.service.CompleteTask(r.Context(), r.PathValue("id"), model.TaskResult{
		Success:       req.Success,
		Error:         req.Error,
		Screenshot:    req.Screenshot,
		NewExpiration: req.NewExpiration,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidID):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, database.ErrNotFound):
			writeError(w, http.StatusNotFound, "Task not found")
		case errors.Is(err, service.ErrTaskNotClaimed):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, task.ToSummary())
}
