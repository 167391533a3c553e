package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dandantas/renewer/internal/model"
	"github.com/dandantas/renewer/internal/webhook"
)

func TestExpiringSoonAlert(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	expires := now.Add(4*time.Minute + 10*time.Second)
	account := &model.Account{SystemID: "acc-1", ExpiresAt: &expires}

	n := ExpiringSoonAlert(account, now, "trace")

	assert.Equal(t, TypeExpiringSoon, n.Type)
	assert.Equal(t, "acc-1", n.EntityID)
	assert.Equal(t, "Account acc-1 expires in 5 minutes", n.Message)
	require.NotNil(t, n.Embed)
	assert.Equal(t, "5", n.Embed.Fields[1].Value)
}

func TestOfflineAlert_NoRecord(t *testing.T) {
	n := OfflineAlert(nil, "trace")

	assert.Equal(t, TypeAutomationOffline, n.Type)
	assert.Equal(t, model.HealthRecordID, n.EntityID)
	require.Len(t, n.Embed.Fields, 1)
	assert.Equal(t, "never", n.Embed.Fields[0].Value)
}

func TestStuckAlert_KeyedByTask(t *testing.T) {
	now := time.Now()
	claimed := now.Add(-20 * time.Minute)
	task := &model.RenewalTask{ID: primitive.NewObjectID(), SystemID: "acc-1", ClaimedAt: &claimed}

	n := StuckAlert(task, now)

	assert.Equal(t, task.ID.Hex(), n.EntityID)
	assert.Equal(t, "20m0s", n.Embed.Fields[len(n.Embed.Fields)-1].Value)
}

func TestFailedAlert_CarriesScreenshot(t *testing.T) {
	task := &model.RenewalTask{SystemID: "acc-1", Attempts: 3}

	n := FailedAlert(task, "button not found", "/tmp/shots/acc-1.png")

	assert.Equal(t, TypeRenewalFailed, n.Type)
	assert.Contains(t, n.Embed.Fields, fieldOf("Screenshot", "/tmp/shots/acc-1.png"))
}

func TestRestartFailedAlert(t *testing.T) {
	n := RestartFailedAlert(errors.New("chrome missing"), 4, "trace")

	assert.Equal(t, TypeAutomationRestartFailed, n.Type)
	assert.Equal(t, "chrome missing", n.Embed.Fields[0].Value)
}

func fieldOf(name, value string) webhook.Field {
	return webhook.Field{Name: name, Value: value}
}
