package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Capability names what a strategy does to the page
type Capability string

const (
	CapabilityClick  Capability = "click"
	CapabilityFill   Capability = "fill"
	CapabilityDetect Capability = "detect"
	CapabilityText   Capability = "text"
	CapabilityProbe  Capability = "probe"
)

// Strategy is one way of achieving a step
type Strategy struct {
	Name       string
	Capability Capability
	Attempt    func(ctx context.Context) error
}

// Chain tries its strategies in order until one succeeds
type Chain struct {
	Name       string
	Strategies []Strategy
	// Timeout bounds each strategy; zero means the caller's context only
	Timeout time.Duration
}

// Run returns the name of the first strategy that succeeded. When all fail
// the error wraps ErrStrategiesExhausted and every individual cause.
func (c Chain) Run(ctx context.Context) (string, error) {
	if len(c.Strategies) == 0 {
		return "", fmt.Errorf("%s: no strategies configured: %w", c.Name, ErrStrategiesExhausted)
	}

	causes := make([]error, 0, len(c.Strategies))
	for _, s := range c.Strategies {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		err := c.attempt(ctx, s)
		if err == nil {
			slog.Debug("Strategy succeeded", "chain", c.Name, "strategy", s.Name, "capability", s.Capability)
			return s.Name, nil
		}
		if errors.Is(err, ErrChallengeDetected) {
			return "", err
		}
		causes = append(causes, fmt.Errorf("%s %s: %w", s.Capability, s.Name, err))
	}

	return "", fmt.Errorf("%s: %w", c.Name, errors.Join(append([]error{ErrStrategiesExhausted}, causes...)...))
}

func (c Chain) attempt(ctx context.Context, s Strategy) error {
	if c.Timeout <= 0 {
		return s.Attempt(ctx)
	}
	stepCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	return s.Attempt(stepCtx)
}

// ClickChain clicks the first selector that becomes visible
func ClickChain(name string, page Page, selectors []string, timeout time.Duration) Chain {
	chain := Chain{Name: name, Timeout: timeout}
	for _, sel := range selectors {
		sel := sel
		chain.Strategies = append(chain.Strategies, Strategy{
			Name:       sel,
			Capability: CapabilityClick,
			Attempt: func(ctx context.Context) error {
				if err := page.WaitVisible(ctx, sel); err != nil {
					return err
				}
				return page.Click(ctx, sel)
			},
		})
	}
	return chain
}

// FillChain types value into the first selector that becomes visible
func FillChain(name string, page Page, selectors []string, value string, timeout time.Duration) Chain {
	chain := Chain{Name: name, Timeout: timeout}
	for _, sel := range selectors {
		sel := sel
		chain.Strategies = append(chain.Strategies, Strategy{
			Name:       sel,
			Capability: CapabilityFill,
			Attempt: func(ctx context.Context) error {
				if err := page.WaitVisible(ctx, sel); err != nil {
					return err
				}
				return page.Fill(ctx, sel, value)
			},
		})
	}
	return chain
}

// DetectChain succeeds when any selector becomes visible
func DetectChain(name string, page Page, selectors []string, timeout time.Duration) Chain {
	chain := Chain{Name: name, Timeout: timeout}
	for _, sel := range selectors {
		sel := sel
		chain.Strategies = append(chain.Strategies, Strategy{
			Name:       sel,
			Capability: CapabilityDetect,
			Attempt: func(ctx context.Context) error {
				return page.WaitVisible(ctx, sel)
			},
		})
	}
	return chain
}

// TextStrategy succeeds when the page text contains any of the phrases
func TextStrategy(page Page, phrases []string) Strategy {
	return Strategy{
		Name:       "page text",
		Capability: CapabilityText,
		Attempt: func(ctx context.Context) error {
			if len(phrases) == 0 {
				return errors.New("no success phrases configured")
			}
			text, err := page.Text(ctx)
			if err != nil {
				return err
			}
			lower := strings.ToLower(text)
			for _, phrase := range phrases {
				if strings.Contains(lower, strings.ToLower(phrase)) {
					return nil
				}
			}
			return errors.New("no success phrase found")
		},
	}
}

// anyPresent reports whether any selector is on the page right now
func anyPresent(ctx context.Context, page Page, selectors []string) (string, bool) {
	for _, sel := range selectors {
		ok, err := page.Exists(ctx, sel)
		if err == nil && ok {
			return sel, true
		}
	}
	return "", false
}
