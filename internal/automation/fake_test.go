package automation

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var testSelectors = Selectors{
	LoginUsername:    []string{"#user"},
	LoginPassword:    []string{"#pass"},
	LoginSubmit:      []string{"#login-missing", "#login"},
	LoggedIn:         []string{".logout"},
	Challenge:        []string{".captcha"},
	SearchInput:      []string{"#search"},
	RenewButton:      []string{"#renew-{username}", "//tr[contains(., '{username}')]//button"},
	ConfirmButton:    []string{"#confirm"},
	SuccessIndicator: []string{".ok"},
	SuccessText:      []string{"renewed successfully"},
}

// fakePortal scripts what the page shows
type fakePortal struct {
	loggedIn             bool
	challengeOnLogin     bool
	challengeAfterSubmit bool
	// accountsPage lists selectors visible on the accounts page once logged in
	accountsPage []string
	// clickEffects lists selectors that appear after clicking a selector
	clickEffects map[string][]string
	text         string
}

// fakePage implements Page against a fakePortal
type fakePage struct {
	mu          sync.Mutex
	portal      *fakePortal
	url         string
	visible     map[string]bool
	filled      map[string]string
	clicks      []string
	submits     []string
	navigations []string
	pingErr     error
}

func newFakePage(portal *fakePortal) *fakePage {
	return &fakePage{portal: portal, visible: map[string]bool{}, filled: map[string]string{}}
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.url = url
	p.navigations = append(p.navigations, url)
	p.visible = map[string]bool{}

	if p.portal.loggedIn {
		p.visible[".logout"] = true
		if strings.HasSuffix(url, "/accounts") {
			for _, sel := range p.portal.accountsPage {
				p.visible[sel] = true
			}
		}
		return nil
	}

	if p.portal.challengeOnLogin {
		p.visible[".captcha"] = true
	}
	p.visible["#user"] = true
	p.visible["#pass"] = true
	p.visible["#login"] = true
	return nil
}

func (p *fakePage) Exists(_ context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible[selector], nil
}

func (p *fakePage) WaitVisible(ctx context.Context, selector string) error {
	if ok, _ := p.Exists(ctx, selector); ok {
		return nil
	}
	return errors.New("not visible: " + selector)
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.visible[selector] {
		return errors.New("not clickable: " + selector)
	}
	p.clicks = append(p.clicks, selector)

	if selector == "#login" {
		if p.portal.challengeAfterSubmit {
			p.visible[".captcha"] = true
		} else if p.filled["#pass"] != "" {
			p.portal.loggedIn = true
			p.visible[".logout"] = true
		}
	}
	for _, sel := range p.portal.clickEffects[selector] {
		p.visible[sel] = true
	}
	return nil
}

func (p *fakePage) Fill(_ context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible[selector] {
		return errors.New("not fillable: " + selector)
	}
	p.filled[selector] = value
	return nil
}

func (p *fakePage) Submit(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submits = append(p.submits, selector)
	return nil
}

func (p *fakePage) Text(context.Context) (string, error) {
	return p.portal.text, nil
}

func (p *fakePage) Location(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) {
	return []byte("\x89PNG"), nil
}

func (p *fakePage) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pingErr
}

// fakeBrowser hands out fake pages
type fakeBrowser struct {
	portal  *fakePortal
	opens   int
	closes  int
	openErr error
	last    *fakePage
}

func (b *fakeBrowser) Open(context.Context) (Page, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.opens++
	b.last = newFakePage(b.portal)
	return b.last, nil
}

func (b *fakeBrowser) Close() error {
	b.closes++
	return nil
}

type fakeProber struct{ err error }

func (f fakeProber) Check(context.Context, string) error { return f.err }
