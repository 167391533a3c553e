package webhook

import (
	"time"
	"unicode/utf8"
)

// Channel limits for message parts; longer values are truncated.
const (
	maxContentLength     = 2000
	maxTitleLength       = 256
	maxDescriptionLength = 4096
	maxFieldNameLength   = 256
	maxFieldValueLength  = 1024
	maxFields            = 25
)

// Severity selects the embed color
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Color returns the embed color for the severity
func (s Severity) Color() int {
	switch s {
	case SeveritySuccess:
		return 0x2ECC71
	case SeverityWarning:
		return 0xF1C40F
	case SeverityError:
		return 0xE74C3C
	default:
		return 0x3498DB
	}
}

// Field is a name/value pair rendered inside an embed
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Footer is the small text under an embed
type Footer struct {
	Text string `json:"text"`
}

// Embed is the structured part of a webhook message
type Embed struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color"`
	Fields      []Field `json:"fields,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
	Footer      *Footer `json:"footer,omitempty"`
}

// NewEmbed creates an embed for the given severity
func NewEmbed(title, description string, severity Severity) Embed {
	return Embed{
		Title:       title,
		Description: description,
		Color:       severity.Color(),
	}
}

// WithField returns a copy of the embed with one more field appended.
// Empty values are skipped.
func (e Embed) WithField(name, value string, inline bool) Embed {
	if value == "" {
		return e
	}
	fields := make([]Field, len(e.Fields), len(e.Fields)+1)
	copy(fields, e.Fields)
	e.Fields = append(fields, Field{Name: name, Value: value, Inline: inline})
	return e
}

// Payload is the JSON body posted to the webhook
type Payload struct {
	Content  string  `json:"content"`
	Username string  `json:"username,omitempty"`
	Embeds   []Embed `json:"embeds,omitempty"`
}

// BuildPayload assembles a payload, stamping the embed timestamp and
// enforcing the channel's size limits
func BuildPayload(content, username string, embed *Embed, at time.Time) Payload {
	payload := Payload{
		Content:  truncate(content, maxContentLength),
		Username: username,
	}

	if embed != nil {
		e := *embed
		e.Title = truncate(e.Title, maxTitleLength)
		e.Description = truncate(e.Description, maxDescriptionLength)
		if len(e.Fields) > maxFields {
			e.Fields = e.Fields[:maxFields]
		}
		fields := make([]Field, len(e.Fields))
		for i, f := range e.Fields {
			fields[i] = Field{
				Name:   truncate(f.Name, maxFieldNameLength),
				Value:  truncate(f.Value, maxFieldValueLength),
				Inline: f.Inline,
			}
		}
		e.Fields = fields
		if e.Timestamp == "" {
			e.Timestamp = at.UTC().Format(time.RFC3339)
		}
		payload.Embeds = []Embed{e}
	}

	return payload
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
