package model

import "time"

// QueueStatus is the lifecycle state of an in-memory renewal queue item
type QueueStatus string

const (
	QueueStatusWaiting    QueueStatus = "waiting"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusError      QueueStatus = "error"
)

// IsActive reports whether the status still holds the account in the pipeline
func (s QueueStatus) IsActive() bool {
	return s == QueueStatusWaiting || s == QueueStatusProcessing
}

// Renewal sources
const (
	SourceScanner = "scanner"
	SourceManual  = "manual"
)

// RenewalQueueItem tracks one account's renewal attempt lifecycle
type RenewalQueueItem struct {
	SystemID            string      `json:"system_id"`
	Status              QueueStatus `json:"status"`
	Source              string      `json:"source"`
	TraceID             string      `json:"trace_id"`
	EstimatedExpiration *time.Time  `json:"estimated_expiration,omitempty"`
	AddedAt             time.Time   `json:"added_at"`
	StartedAt           *time.Time  `json:"started_at,omitempty"`
	CompletedAt         *time.Time  `json:"completed_at,omitempty"`
	Error               string      `json:"error,omitempty"`
}

// QueueSnapshot is the dashboard view of the renewal queue
type QueueSnapshot struct {
	Running  bool                `json:"running"`
	Items    []RenewalQueueItem  `json:"items"`
	Counts   map[QueueStatus]int `json:"counts"`
	Locked   []string            `json:"locked"`
	LastScan *ScanRecord         `json:"last_scan,omitempty"`
	NextScan *time.Time          `json:"next_scan,omitempty"`
}

// ScanRecord holds the timing of one scanner tick
type ScanRecord struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Eligible    int       `json:"eligible"`
	Dispatched  int       `json:"dispatched"`
	Errors      int       `json:"errors"`
}
