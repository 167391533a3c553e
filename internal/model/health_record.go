package model

import "time"

// HealthRecordID is the identifier of the singleton automation health document
const HealthRecordID = "executor"

// HealthRecord is the persisted liveness snapshot of the automation session
type HealthRecord struct {
	ID            string    `json:"id" bson:"_id"`
	Active        bool      `json:"active" bson:"active"`
	LoggedIn      bool      `json:"logged_in" bson:"logged_in"`
	LastHeartbeat time.Time `json:"last_heartbeat" bson:"last_heartbeat"`
	CurrentURL    string    `json:"current_url,omitempty" bson:"current_url,omitempty"`
	LastError     string    `json:"last_error,omitempty" bson:"last_error,omitempty"`
	Restarts      int       `json:"restarts" bson:"restarts"`
	UpdatedAt     time.Time `json:"updated_at" bson:"updated_at"`
}

// IsStale reports whether the automation session must be considered offline
func (h *HealthRecord) IsStale(now time.Time, maxAge time.Duration) bool {
	if h == nil || h.LastHeartbeat.IsZero() {
		return true
	}
	return now.Sub(h.LastHeartbeat) > maxAge || !h.Active || !h.LoggedIn
}
