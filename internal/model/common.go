package model

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// RetryConfig represents webhook retry configuration
type RetryConfig struct {
	MaxAttempts    int     `json:"max_attempts" yaml:"max_attempts"`
	InitialDelayMs int     `json:"initial_delay_ms" yaml:"initial_delay_ms"`
	MaxDelayMs     int     `json:"max_delay_ms" yaml:"max_delay_ms"`
	Multiplier     float64 `json:"multiplier" yaml:"multiplier"`
}

// SetDefaults sets default values for retry configuration
func (rc *RetryConfig) SetDefaults() {
	if rc.MaxAttempts == 0 {
		rc.MaxAttempts = 3
	}
	if rc.InitialDelayMs == 0 {
		rc.InitialDelayMs = 1000
	}
	if rc.MaxDelayMs == 0 {
		rc.MaxDelayMs = 30000
	}
	if rc.Multiplier == 0 {
		rc.Multiplier = 2.0
	}
}

// Webhook represents the notification channel endpoint
type Webhook struct {
	URL         string            `json:"url"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers,omitempty"`
	Username    string            `json:"username,omitempty"`
	RetryConfig RetryConfig       `json:"retry_config,omitempty"`
}

// Validate validates webhook configuration
func (w *Webhook) Validate() error {
	if w.URL == "" {
		return errors.New("webhook URL is required")
	}

	parsedURL, err := url.Parse(w.URL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return errors.New("webhook URL must start with http:// or https://")
	}

	if w.Method == "" {
		w.Method = "POST"
	}
	w.Method = strings.ToUpper(w.Method)

	w.RetryConfig.SetDefaults()

	return nil
}

// ProbeRule is a JSONPath check against a JSON document returned by the portal
type ProbeRule struct {
	Expression    string      `json:"expression" yaml:"expression"` // JSONPath expression
	Operator      string      `json:"operator" yaml:"operator"`     // eq, ne, gt, lt, contains, exists
	ExpectedValue interface{} `json:"expected_value,omitempty" yaml:"expected_value,omitempty"`
}

// Validate validates the probe rule
func (r *ProbeRule) Validate() error {
	if r.Expression == "" {
		return errors.New("probe expression is required")
	}

	validOperators := map[string]bool{
		"eq": true, "ne": true, "gt": true, "lt": true, "contains": true, "exists": true,
	}
	if r.Operator == "" {
		r.Operator = "exists"
	}
	if !validOperators[strings.ToLower(r.Operator)] {
		return fmt.Errorf("invalid operator: %s", r.Operator)
	}
	r.Operator = strings.ToLower(r.Operator)

	return nil
}
