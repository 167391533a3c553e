package webhook

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPayload_StampsTimestampAndTruncates(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	embed := NewEmbed(strings.Repeat("t", 300), "desc", SeverityWarning).
		WithField("System", "acc-1", true).
		WithField("Empty", "", false).
		WithField("Error", strings.Repeat("e", 2000), false)

	payload := BuildPayload(strings.Repeat("c", 2500), "Renewer", &embed, at)

	assert.Equal(t, maxContentLength, utf8.RuneCountInString(payload.Content))
	require.Len(t, payload.Embeds, 1)
	got := payload.Embeds[0]
	assert.Equal(t, "2026-03-04T05:06:07Z", got.Timestamp)
	assert.Equal(t, maxTitleLength, utf8.RuneCountInString(got.Title))
	require.Len(t, got.Fields, 2, "empty field values are skipped")
	assert.Equal(t, maxFieldValueLength, utf8.RuneCountInString(got.Fields[1].Value))
	assert.Equal(t, SeverityWarning.Color(), got.Color)

	assert.Len(t, embed.Fields, 2, "building the payload does not mutate the embed")
	assert.Equal(t, 2000, len(embed.Fields[1].Value))
}

func TestBuildPayload_WithoutEmbed(t *testing.T) {
	payload := BuildPayload("plain", "", nil, time.Now())

	assert.Equal(t, "plain", payload.Content)
	assert.Empty(t, payload.Embeds)
}

func TestSeverity_Color(t *testing.T) {
	assert.NotEqual(t, SeverityInfo.Color(), SeverityError.Color())
	assert.Equal(t, SeverityInfo.Color(), Severity("unknown").Color())
}
