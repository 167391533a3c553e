package handler

import (
	"log/slog"
	"net/http"
)

// ChallengeResetter clears a pending portal challenge
type ChallengeResetter interface {
	ResetChallenge() bool
}

// AutomationHandler exposes operator actions on the portal session
type AutomationHandler struct {
	session ChallengeResetter
}

// NewAutomationHandler creates a new automation handler. session may be nil
// when the in-process browser session is disabled.
func NewAutomationHandler(session ChallengeResetter) *AutomationHandler {
	return &AutomationHandler{session: session}
}

// ChallengeResetResponse reports whether a challenge was pending
type ChallengeResetResponse struct {
	Cleared bool `json:"cleared"`
}

// ResetChallenge resumes automatic logins after an operator solved the
// portal challenge
func (h *AutomationHandler) ResetChallenge(w http.ResponseWriter, r *http.Request) {
	if h.session == nil {
		writeError(w, http.StatusNotFound, "portal automation is disabled")
		return
	}

	cleared := h.session.ResetChallenge()
	slog.Info("Portal challenge reset requested",
		"trace_id", requestTraceID(r),
		"cleared", cleared,
	)

	writeJSON(w, http.StatusOK, ChallengeResetResponse{Cleared: cleared})
}
