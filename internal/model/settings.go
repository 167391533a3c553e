package model

import "time"

// RenewalSettingsID is the identifier of the singleton settings document
const RenewalSettingsID = "renewal"

// DistributionMode controls how accounts are handed out to clients
type DistributionMode string

const (
	DistributionAuto DistributionMode = "auto"
	// DistributionFixed freezes the account pool; automated renewal must not touch it.
	DistributionFixed DistributionMode = "fixed"
)

// RenewalSettings is the runtime configuration read by the scanner every tick
type RenewalSettings struct {
	ID               string           `json:"id" bson:"_id"`
	Enabled          bool             `json:"enabled" bson:"enabled"`
	LookaheadMinutes int              `json:"lookahead_minutes" bson:"lookahead_minutes"`
	DistributionMode DistributionMode `json:"distribution_mode" bson:"distribution_mode"`
	UpdatedAt        time.Time        `json:"updated_at" bson:"updated_at"`
}

// Lookahead returns the look-ahead window as a duration
func (s *RenewalSettings) Lookahead() time.Duration {
	return time.Duration(s.LookaheadMinutes) * time.Minute
}
