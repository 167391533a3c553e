package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// overdueGrace is how long a client may stay past its due date before the
// linked account is excluded from automated renewal.
const overdueGrace = 48 * time.Hour

// Credentials holds the portal login for one account
type Credentials struct {
	Username string `json:"username" bson:"username"`
	Password string `json:"-" bson:"password"`
}

// Account represents one reseller subscription on the external portal ("system")
type Account struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SystemID      string             `json:"system_id" bson:"system_id"`
	Credentials   Credentials        `json:"credentials" bson:"credentials"`
	ExpiresAt     *time.Time         `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	ActiveSlots   int                `json:"active_slots" bson:"active_slots"`
	MaxSlots      int                `json:"max_slots" bson:"max_slots"`
	LastRenewedAt *time.Time         `json:"last_renewed_at,omitempty" bson:"last_renewed_at,omitempty"`
	UpdatedAt     time.Time          `json:"updated_at" bson:"updated_at"`
}

// HasExpiration reports whether an expiration timestamp is set
func (a *Account) HasExpiration() bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.IsZero()
}

// MinutesUntilExpiration returns the signed number of minutes until the
// account expires. Negative values mean the account is already expired.
func (a *Account) MinutesUntilExpiration(now time.Time) float64 {
	if !a.HasExpiration() {
		return 0
	}
	return a.ExpiresAt.Sub(now).Minutes()
}

// IsExpired reports whether the expiration timestamp is at or before now
func (a *Account) IsExpired(now time.Time) bool {
	return a.HasExpiration() && !a.ExpiresAt.After(now)
}

// Client represents a billed customer linked to an account
type Client struct {
	ID       primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name     string             `json:"name" bson:"name"`
	SystemID string             `json:"system_id" bson:"system_id"`
	DueDate  *time.Time         `json:"due_date,omitempty" bson:"due_date,omitempty"`
}

// IsOverdue reports whether the client's due date passed more than two days ago
func (c *Client) IsOverdue(now time.Time) bool {
	if c.DueDate == nil || c.DueDate.IsZero() {
		return false
	}
	return now.Sub(*c.DueDate) > overdueGrace
}
