package notify

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/dandantas/renewer/internal/model"
	"github.com/dandantas/renewer/internal/webhook"
)

const timeLayout = "2006-01-02 15:04 MST"

// ExpiredAlert builds the alert for an account already past expiration
func ExpiredAlert(account *model.Account, traceID string) Notification {
	message := fmt.Sprintf("Account %s has expired", account.SystemID)
	embed := webhook.NewEmbed("Account expired", message, webhook.SeverityError).
		WithField("System", account.SystemID, true).
		WithField("Username", account.Credentials.Username, true).
		WithField("Expired at", formatTime(account.ExpiresAt), false)

	return Notification{
		Type:     TypeExpired,
		EntityID: account.SystemID,
		Message:  message,
		Embed:    &embed,
		TraceID:  traceID,
	}
}

// ExpiringSoonAlert builds the alert for an account about to expire
func ExpiringSoonAlert(account *model.Account, now time.Time, traceID string) Notification {
	minutes := int(math.Ceil(account.MinutesUntilExpiration(now)))
	message := fmt.Sprintf("Account %s expires in %d minutes", account.SystemID, minutes)
	embed := webhook.NewEmbed("Account expiring soon", message, webhook.SeverityWarning).
		WithField("System", account.SystemID, true).
		WithField("Minutes left", strconv.Itoa(minutes), true).
		WithField("Expires at", formatTime(account.ExpiresAt), false)

	return Notification{
		Type:     TypeExpiringSoon,
		EntityID: account.SystemID,
		Message:  message,
		Embed:    &embed,
		TraceID:  traceID,
	}
}

// OfflineAlert builds the alert for a stale or logged-out automation session
func OfflineAlert(record *model.HealthRecord, traceID string) Notification {
	message := "Renewal automation is offline"
	embed := webhook.NewEmbed("Automation offline", message, webhook.SeverityError)
	if record == nil {
		embed = embed.WithField("Heartbeat", "never", true)
	} else {
		embed = embed.
			WithField("Last heartbeat", formatTime(&record.LastHeartbeat), true).
			WithField("Active", strconv.FormatBool(record.Active), true).
			WithField("Logged in", strconv.FormatBool(record.LoggedIn), true).
			WithField("Last error", record.LastError, false)
	}

	return Notification{
		Type:     TypeAutomationOffline,
		EntityID: model.HealthRecordID,
		Message:  message,
		Embed:    &embed,
		TraceID:  traceID,
	}
}

// StuckAlert builds the alert for a task claimed too long ago
func StuckAlert(task *model.RenewalTask, now time.Time) Notification {
	message := fmt.Sprintf("Renewal for %s is stuck", task.SystemID)
	embed := webhook.NewEmbed("Renewal stuck", message, webhook.SeverityWarning).
		WithField("System", task.SystemID, true).
		WithField("Claimed by", task.ClaimedBy, true)
	if task.ClaimedAt != nil {
		embed = embed.WithField("Claimed for", now.Sub(*task.ClaimedAt).Round(time.Minute).String(), true)
	}

	return Notification{
		Type:     TypeRenewalStuck,
		EntityID: task.ID.Hex(),
		Message:  message,
		Embed:    &embed,
		TraceID:  task.Metadata.TraceID,
	}
}

// FailedAlert builds the alert for a renewal that exhausted its attempts
func FailedAlert(task *model.RenewalTask, reason, screenshot string) Notification {
	message := fmt.Sprintf("Renewal for %s failed", task.SystemID)
	embed := webhook.NewEmbed("Renewal failed", message, webhook.SeverityError).
		WithField("System", task.SystemID, true).
		WithField("Attempts", strconv.Itoa(task.Attempts), true).
		WithField("Error", reason, false).
		WithField("Screenshot", screenshot, false)

	return Notification{
		Type:     TypeRenewalFailed,
		EntityID: task.SystemID,
		Message:  message,
		Embed:    &embed,
		TraceID:  task.Metadata.TraceID,
	}
}

// SucceededAlert builds the confirmation sent after a renewal
func SucceededAlert(task *model.RenewalTask, newExpiration *time.Time) Notification {
	message := fmt.Sprintf("Account %s renewed", task.SystemID)
	embed := webhook.NewEmbed("Renewal succeeded", message, webhook.SeveritySuccess).
		WithField("System", task.SystemID, true).
		WithField("New expiration", formatTime(newExpiration), true)

	return Notification{
		Type:     TypeRenewalSucceeded,
		EntityID: task.SystemID,
		Message:  message,
		Embed:    &embed,
		TraceID:  task.Metadata.TraceID,
	}
}

// ChallengeAlert builds the alert raised when login hits an interactive challenge
func ChallengeAlert(detail, traceID string) Notification {
	message := "Portal login requires manual intervention"
	embed := webhook.NewEmbed("Login challenge detected", message, webhook.SeverityError).
		WithField("Detail", detail, false)

	return Notification{
		Type:     TypeAutomationChallenge,
		EntityID: model.HealthRecordID,
		Message:  message,
		Embed:    &embed,
		TraceID:  traceID,
	}
}

// RestartFailedAlert builds the alert raised when the watchdog cannot restart the browser
func RestartFailedAlert(err error, restarts int, traceID string) Notification {
	message := "Automation restart failed"
	embed := webhook.NewEmbed("Automation restart failed", message, webhook.SeverityError).
		WithField("Error", err.Error(), false).
		WithField("Restarts", strconv.Itoa(restarts), true)

	return Notification{
		Type:     TypeAutomationRestartFailed,
		EntityID: model.HealthRecordID,
		Message:  message,
		Embed:    &embed,
		TraceID:  traceID,
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
