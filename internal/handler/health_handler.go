package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/dandantas/renewer/internal/model"
)

// Pinger checks database connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReader reads the automation health snapshot
type HealthReader interface {
	Get(ctx context.Context) (*model.HealthRecord, error)
}

// HealthHandler handles service health and readiness checks
type HealthHandler struct {
	db              Pinger
	automation      HealthReader
	heartbeatMaxAge time.Duration
	startTime       time.Time
	version         string
}

// NewHealthHandler creates a new health handler. automation may be nil when
// the in-process browser session is disabled.
func NewHealthHandler(db Pinger, automation HealthReader, heartbeatMaxAge time.Duration, version string) *HealthHandler {
	return &HealthHandler{
		db:              db,
		automation:      automation,
		heartbeatMaxAge: heartbeatMaxAge,
		startTime:       time.Now(),
		version:         version,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Timestamp     string `json:"timestamp"`
	MongoDB       string `json:"mongodb"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Ready         bool       `json:"ready"`
	MongoDB       string     `json:"mongodb"`
	Automation    string     `json:"automation"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
}

// Health returns the service health status
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	mongoStatus := "connected"
	if err := h.db.Ping(r.Context()); err != nil {
		mongoStatus = "disconnected"
	}

	response := HealthResponse{
		Status:        "healthy",
		Version:       h.version,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		MongoDB:       mongoStatus,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}

	writeJSON(w, http.StatusOK, response)
}

// Ready returns the service readiness status. Only MongoDB gates
// readiness; the automation state is reported for operators.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ready := true
	mongoStatus := "connected"

	if err := h.db.Ping(r.Context()); err != nil {
		ready = false
		mongoStatus = "disconnected"
	}

	response := ReadyResponse{
		Ready:      ready,
		MongoDB:    mongoStatus,
		Automation: "disabled",
	}

	if h.automation != nil && ready {
		record, err := h.automation.Get(r.Context())
		switch {
		case err != nil:
			response.Automation = "unknown"
		case record.IsStale(time.Now(), h.heartbeatMaxAge):
			response.Automation = "offline"
		default:
			response.Automation = "online"
		}
		if err == nil && record != nil {
			response.LastHeartbeat = &record.LastHeartbeat
		}
	}

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, response)
}
