package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/dandantas/renewer/internal/model"
)

func TestClaimFilter_HonoursRetryBackoff(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	filter := claimFilter(now)

	assert.Equal(t, model.TaskStatusPending, filter["status"])
	or, ok := filter["$or"].(bson.A)
	require.True(t, ok)
	assert.Equal(t, bson.A{
		bson.M{"not_before": bson.M{"$exists": false}},
		bson.M{"not_before": bson.M{"$lte": now}},
	}, or)
}
