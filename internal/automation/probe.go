package automation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dandantas/renewer/internal/evaluator"
	"github.com/dandantas/renewer/internal/model"
)

// Prober confirms a renewal out of band
type Prober interface {
	Check(ctx context.Context, username string) error
}

// StatusProbe fetches a JSON status document for the account and evaluates
// a JSONPath rule against it. The URL may contain {username}.
type StatusProbe struct {
	url        string
	rule       model.ProbeRule
	httpClient *http.Client
}

// NewStatusProbe creates a status probe
func NewStatusProbe(statusURL string, rule model.ProbeRule, timeout time.Duration) (*StatusProbe, error) {
	if statusURL == "" {
		return nil, fmt.Errorf("status URL is required")
	}
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("invalid probe rule: %w", err)
	}

	return &StatusProbe{
		url:  statusURL,
		rule: rule,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}, nil
}

// Check returns nil when the rule matches the account's status document
func (p *StatusProbe) Check(ctx context.Context, username string) error {
	target := strings.ReplaceAll(p.url, usernamePlaceholder, url.PathEscape(username))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	// Read response (limit to 1MB)
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return fmt.Errorf("failed to read status response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	result := evaluator.Evaluate(p.rule, body)
	if result.Error != "" {
		return fmt.Errorf("status rule failed: %s", result.Error)
	}
	if !result.Matched {
		return fmt.Errorf("status rule %s %s not matched, got %v", p.rule.Expression, p.rule.Operator, result.ExtractedValue)
	}

	slog.Debug("Status probe confirmed renewal", "username", username, "expression", p.rule.Expression)
	return nil
}
