package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dandantas/renewer/internal/model"
)

// Config holds the portal location, credentials and timings
type Config struct {
	BaseURL       string
	LoginPath     string
	AccountsPath  string
	Username      string
	Password      string
	ScreenshotDir string
	// StepTimeout bounds each strategy attempt
	StepTimeout time.Duration
}

// Status is the executor's view of its own session
type Status struct {
	Active           bool
	LoggedIn         bool
	ChallengePending bool
	CurrentURL       string
	LastError        string
}

// Executor owns the single browser session against the portal. All page
// operations are serialised on mu; the portal cannot be driven by two
// sessions at once.
type Executor struct {
	cfg       Config
	selectors Selectors
	browser   Browser
	probe     Prober
	now       func() time.Time

	mu       sync.Mutex
	page     Page
	loggedIn bool
	lastErr  string
	// challenge latches after the portal answers with a CAPTCHA or
	// verification page; logins stay paused until ResetChallenge
	challenge bool
}

// NewExecutor creates an executor. probe may be nil.
func NewExecutor(cfg Config, selectors Selectors, browser Browser, probe Prober) *Executor {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 5 * time.Second
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.AccountsPath == "" {
		cfg.AccountsPath = "/accounts"
	}

	return &Executor{
		cfg:       cfg,
		selectors: selectors,
		browser:   browser,
		probe:     probe,
		now:       time.Now,
	}
}

// Start opens the browser and logs in
func (e *Executor) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.page == nil {
		page, err := e.browser.Open(ctx)
		if err != nil {
			e.lastErr = err.Error()
			return fmt.Errorf("failed to open browser: %w", err)
		}
		e.page = page
	}

	return e.loginLocked(ctx)
}

// Stop closes the browser
func (e *Executor) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.page = nil
	e.loggedIn = false
	if err := e.browser.Close(); err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

// Restart runs stop, waits delay, then start
func (e *Executor) Restart(ctx context.Context, delay time.Duration) error {
	if err := e.Stop(); err != nil {
		slog.Warn("Browser did not close cleanly", "error", err)
	}

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return ctx.Err()
	}

	return e.Start(ctx)
}

// Login signs in to the portal unless the session already is
func (e *Executor) Login(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loginLocked(ctx)
}

func (e *Executor) loginLocked(ctx context.Context) error {
	if e.page == nil {
		return ErrSessionClosed
	}
	if e.challenge {
		return fmt.Errorf("login paused until the challenge is cleared: %w", ErrChallengeDetected)
	}

	err := e.doLogin(ctx)
	e.loggedIn = err == nil
	if err != nil {
		e.lastErr = err.Error()
		if errors.Is(err, ErrChallengeDetected) {
			e.latchChallenge(err)
		}
		return err
	}
	e.lastErr = ""
	return nil
}

func (e *Executor) doLogin(ctx context.Context) error {
	if err := e.page.Navigate(ctx, e.cfg.BaseURL+e.cfg.LoginPath); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}

	if _, ok := anyPresent(ctx, e.page, e.selectors.LoggedIn); ok {
		return nil
	}
	if sel, ok := anyPresent(ctx, e.page, e.selectors.Challenge); ok {
		return fmt.Errorf("login page shows %s: %w", sel, ErrChallengeDetected)
	}

	steps := []Chain{
		FillChain("username field", e.page, e.selectors.LoginUsername, e.cfg.Username, e.cfg.StepTimeout),
		FillChain("password field", e.page, e.selectors.LoginPassword, e.cfg.Password, e.cfg.StepTimeout),
		ClickChain("login button", e.page, e.selectors.LoginSubmit, e.cfg.StepTimeout),
	}
	for _, step := range steps {
		if _, err := step.Run(ctx); err != nil {
			return err
		}
	}

	if _, err := DetectChain("logged-in indicator", e.page, e.selectors.LoggedIn, e.cfg.StepTimeout).Run(ctx); err != nil {
		if sel, ok := anyPresent(ctx, e.page, e.selectors.Challenge); ok {
			return fmt.Errorf("login answered with %s: %w", sel, ErrChallengeDetected)
		}
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	slog.Info("Logged in to portal")
	return nil
}

func (e *Executor) latchChallenge(cause error) {
	if !e.challenge {
		slog.Warn("Portal challenge detected, automatic logins paused until reset", "error", cause)
	}
	e.challenge = true
}

// ChallengePending reports whether logins are paused by a portal challenge
func (e *Executor) ChallengePending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.challenge
}

// ResetChallenge clears the challenge latch after an operator solved it
// in the portal. The next heartbeat or renewal logs in again.
func (e *Executor) ResetChallenge() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	was := e.challenge
	e.challenge = false
	if was {
		e.lastErr = ""
		slog.Info("Portal challenge cleared, automatic logins resumed")
	}
	return was
}

// CheckLogin re-evaluates whether the session is logged in
func (e *Executor) CheckLogin(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.page == nil {
		return false, ErrSessionClosed
	}

	location, err := e.page.Location(ctx)
	if err != nil {
		e.lastErr = err.Error()
		return false, fmt.Errorf("failed to read location: %w", err)
	}
	if location == "" || location == "about:blank" {
		if err := e.page.Navigate(ctx, e.cfg.BaseURL+e.cfg.AccountsPath); err != nil {
			e.lastErr = err.Error()
			return false, fmt.Errorf("failed to open accounts page: %w", err)
		}
	}

	_, e.loggedIn = anyPresent(ctx, e.page, e.selectors.LoggedIn)
	return e.loggedIn, nil
}

// Ping proves the browser process is connected and the page responds
func (e *Executor) Ping(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.page == nil {
		return ErrSessionClosed
	}
	if err := e.page.Ping(ctx); err != nil {
		e.lastErr = err.Error()
		return fmt.Errorf("page did not respond: %w", err)
	}
	return nil
}

// IsHealthy reports whether the session is open, logged in and responsive
func (e *Executor) IsHealthy(ctx context.Context) bool {
	e.mu.Lock()
	loggedIn := e.page != nil && e.loggedIn
	e.mu.Unlock()

	return loggedIn && e.Ping(ctx) == nil
}

// Status returns the session flags and the page location
func (e *Executor) Status(ctx context.Context) Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := Status{
		Active:           e.page != nil,
		LoggedIn:         e.page != nil && e.loggedIn,
		ChallengePending: e.challenge,
		LastError:        e.lastErr,
	}
	if e.page != nil {
		if location, err := e.page.Location(ctx); err == nil {
			status.CurrentURL = location
		}
	}
	return status
}

// Renew runs the renewal click-sequence for the task's account. On failure
// the result carries a screenshot path when one could be captured.
func (e *Executor) Renew(ctx context.Context, task *model.RenewalTask) (model.TaskResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	logger := slog.With("trace_id", task.Metadata.TraceID, "system_id", task.SystemID)

	if e.page == nil {
		return model.TaskResult{Error: ErrSessionClosed.Error()}, ErrSessionClosed
	}
	if !e.loggedIn {
		if err := e.loginLocked(ctx); err != nil {
			return e.fail(ctx, task, fmt.Errorf("failed to log in: %w", err))
		}
	}

	if err := e.renewSteps(ctx, task); err != nil {
		if errors.Is(err, ErrChallengeDetected) {
			e.loggedIn = false
			e.latchChallenge(err)
		}
		return e.fail(ctx, task, err)
	}

	logger.Info("Renewal confirmed on portal")
	e.lastErr = ""
	return model.TaskResult{Success: true}, nil
}

func (e *Executor) renewSteps(ctx context.Context, task *model.RenewalTask) error {
	username := task.Credentials.Username

	if err := e.page.Navigate(ctx, e.cfg.BaseURL+e.cfg.AccountsPath); err != nil {
		return fmt.Errorf("failed to open accounts page: %w", err)
	}
	if sel, ok := anyPresent(ctx, e.page, e.selectors.Challenge); ok {
		return fmt.Errorf("accounts page shows %s: %w", sel, ErrChallengeDetected)
	}
	if _, ok := anyPresent(ctx, e.page, e.selectors.LoggedIn); !ok {
		e.loggedIn = false
		return fmt.Errorf("session logged out before renewing: %w", ErrLoginFailed)
	}

	if sel, ok := anyPresent(ctx, e.page, e.selectors.SearchInput); ok {
		if err := e.page.Fill(ctx, sel, username); err != nil {
			return fmt.Errorf("failed to search account: %w", err)
		}
		if err := e.page.Submit(ctx, sel); err != nil {
			return fmt.Errorf("failed to submit search: %w", err)
		}
	}

	if _, err := ClickChain("renew button", e.page, ForUsername(e.selectors.RenewButton, username), e.cfg.StepTimeout).Run(ctx); err != nil {
		return err
	}

	// Confirmation modals are optional; native dialogs are accepted by the browser.
	if len(e.selectors.ConfirmButton) > 0 {
		if sel, err := ClickChain("confirm button", e.page, e.selectors.ConfirmButton, e.cfg.StepTimeout).Run(ctx); err == nil {
			slog.Debug("Confirmed renewal dialog", "selector", sel)
		}
	}

	verify := DetectChain("success check", e.page, e.selectors.SuccessIndicator, e.cfg.StepTimeout)
	verify.Strategies = append(verify.Strategies, TextStrategy(e.page, e.selectors.SuccessText))
	if e.probe != nil {
		verify.Strategies = append(verify.Strategies, Strategy{
			Name:       "status probe",
			Capability: CapabilityProbe,
			Attempt: func(ctx context.Context) error {
				return e.probe.Check(ctx, username)
			},
		})
	}
	if _, err := verify.Run(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRenewalNotConfirmed, err)
	}

	return nil
}

// fail captures a screenshot and builds the failed result
func (e *Executor) fail(ctx context.Context, task *model.RenewalTask, cause error) (model.TaskResult, error) {
	result := model.TaskResult{Error: cause.Error()}
	e.lastErr = cause.Error()

	path, err := e.captureScreenshot(ctx, task.SystemID)
	if err != nil {
		slog.Warn("Failed to capture screenshot",
			"trace_id", task.Metadata.TraceID,
			"system_id", task.SystemID,
			"error", err,
		)
	}
	result.Screenshot = path

	slog.Error("Renewal failed on portal",
		"trace_id", task.Metadata.TraceID,
		"system_id", task.SystemID,
		"screenshot", path,
		"error", cause,
	)

	return result, cause
}

func (e *Executor) captureScreenshot(ctx context.Context, systemID string) (string, error) {
	if e.cfg.ScreenshotDir == "" || e.page == nil {
		return "", nil
	}

	data, err := e.page.Screenshot(ctx)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(e.cfg.ScreenshotDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(e.cfg.ScreenshotDir, fmt.Sprintf("%s-%d.png", systemID, e.now().Unix()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}

	return path, nil
}
