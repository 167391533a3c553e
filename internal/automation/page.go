package automation

import "context"

// Page is the subset of browser-tab operations the executor drives
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Exists reports whether the selector matches right now, without waiting
	Exists(ctx context.Context, selector string) (bool, error)
	// WaitVisible blocks until the selector is visible or ctx ends
	WaitVisible(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	// Submit presses Enter inside the selected element
	Submit(ctx context.Context, selector string) error
	Text(ctx context.Context) (string, error)
	Location(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	// Ping runs a trivial script to prove the tab still responds
	Ping(ctx context.Context) error
}

// Browser starts and stops the long-lived browser process
type Browser interface {
	Open(ctx context.Context) (Page, error)
	Close() error
}
