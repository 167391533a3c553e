package automation

import "errors"

var (
	// ErrChallengeDetected means the portal showed an interactive challenge
	// (captcha or similar). The attempt must not be retried automatically.
	ErrChallengeDetected = errors.New("interactive challenge detected")
	// ErrStrategiesExhausted is returned when every candidate strategy failed
	ErrStrategiesExhausted = errors.New("all strategies exhausted")
	// ErrRenewalNotConfirmed is returned when no success signal was found after renewing
	ErrRenewalNotConfirmed = errors.New("renewal not confirmed")
	// ErrSessionClosed is returned when the browser session is not running
	ErrSessionClosed = errors.New("browser session is not running")
	// ErrLoginFailed is returned when credentials were submitted but the session stayed logged out
	ErrLoginFailed = errors.New("login failed")
)
