package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// ChromeConfig configures the headless browser
type ChromeConfig struct {
	ProfileDir    string
	Headless      bool
	ActionTimeout time.Duration
}

// ChromeBrowser runs Chrome through the DevTools protocol with a persistent
// profile directory so the portal login survives restarts
type ChromeBrowser struct {
	cfg ChromeConfig

	mu          sync.Mutex
	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc
}

// NewChromeBrowser creates a browser that is started by Open
func NewChromeBrowser(cfg ChromeConfig) *ChromeBrowser {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 15 * time.Second
	}
	return &ChromeBrowser{cfg: cfg}
}

// Open launches Chrome and returns its first tab
func (b *ChromeBrowser) Open(ctx context.Context) (Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.tabCancel != nil {
		return nil, errors.New("browser already open")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(b.cfg.ProfileDir),
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.WindowSize(1366, 900),
	)

	// The browser outlives the caller's context; it is torn down by Close.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			slog.Debug(fmt.Sprintf(format, args...), "component", "chromedp")
		}),
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			slog.Warn(fmt.Sprintf(format, args...), "component", "chromedp")
		}),
	)

	// First Run allocates the browser and must use the tab context itself.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if _, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			go func() {
				if err := chromedp.Run(tabCtx, page.HandleJavaScriptDialog(true)); err != nil {
					slog.Warn("Failed to accept dialog", "error", err)
				}
			}()
		}
	})

	b.allocCancel = allocCancel
	b.tabCancel = tabCancel

	slog.Info("Browser started", "profile_dir", b.cfg.ProfileDir, "headless", b.cfg.Headless)

	return &chromePage{ctx: tabCtx, timeout: b.cfg.ActionTimeout}, nil
}

// Close terminates the browser process
func (b *ChromeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tabCancel != nil {
		b.tabCancel()
		b.tabCancel = nil
	}
	if b.allocCancel != nil {
		b.allocCancel()
		b.allocCancel = nil
	}
	return nil
}

// chromePage implements Page on a chromedp tab context
type chromePage struct {
	ctx     context.Context
	timeout time.Duration
}

// run executes actions on the tab bounded by both the action timeout and ctx
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func queryOptions(selector string) []chromedp.QueryOption {
	if isXPath(selector) {
		return []chromedp.QueryOption{chromedp.BySearch}
	}
	return []chromedp.QueryOption{chromedp.ByQuery}
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromePage) Exists(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	opts := append(queryOptions(selector), chromedp.AtLeast(0))
	if err := p.run(ctx, chromedp.Nodes(selector, &nodes, opts...)); err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, queryOptions(selector)...))
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, queryOptions(selector)...))
}

func (p *chromePage) Fill(ctx context.Context, selector, value string) error {
	opts := queryOptions(selector)
	return p.run(ctx,
		chromedp.SetValue(selector, "", opts...),
		chromedp.SendKeys(selector, value, opts...),
	)
}

func (p *chromePage) Submit(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.SendKeys(selector, kb.Enter, queryOptions(selector)...))
}

func (p *chromePage) Text(ctx context.Context) (string, error) {
	var text string
	err := p.run(ctx, chromedp.Text("body", &text, chromedp.ByQuery))
	return text, err
}

func (p *chromePage) Location(ctx context.Context) (string, error) {
	var location string
	err := p.run(ctx, chromedp.Location(&location))
	return location, err
}

func (p *chromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

func (p *chromePage) Ping(ctx context.Context) error {
	var result int
	if err := p.run(ctx, chromedp.Evaluate(`1 + 1`, &result)); err != nil {
		return err
	}
	if result != 2 {
		return fmt.Errorf("unexpected ping result: %d", result)
	}
	return nil
}
