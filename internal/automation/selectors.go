package automation

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// usernamePlaceholder is replaced with the account username in row-scoped selectors
const usernamePlaceholder = "{username}"

// Selectors lists candidate selectors per page element, tried in order.
// Selectors starting with "/" or "(" are XPath, everything else is CSS.
type Selectors struct {
	LoginUsername    []string `yaml:"login_username"`
	LoginPassword    []string `yaml:"login_password"`
	LoginSubmit      []string `yaml:"login_submit"`
	LoggedIn         []string `yaml:"logged_in"`
	Challenge        []string `yaml:"challenge"`
	SearchInput      []string `yaml:"search_input"`
	RenewButton      []string `yaml:"renew_button"`
	ConfirmButton    []string `yaml:"confirm_button"`
	SuccessIndicator []string `yaml:"success_indicator"`
	SuccessText      []string `yaml:"success_text"`
}

// DefaultSelectors returns the built-in selector catalog
func DefaultSelectors() Selectors {
	return Selectors{
		LoginUsername: []string{`input[name="username"]`, `input[name="email"]`, `input[type="email"]`, `#username`},
		LoginPassword: []string{`input[name="password"]`, `input[type="password"]`, `#password`},
		LoginSubmit:   []string{`button[type="submit"]`, `input[type="submit"]`, `//button[contains(., 'Login') or contains(., 'Sign in')]`},
		LoggedIn:      []string{`a[href*="logout"]`, `.user-menu`, `#logout`},
		Challenge: []string{
			`iframe[src*="recaptcha"]`,
			`iframe[src*="hcaptcha"]`,
			`.g-recaptcha`,
			`.cf-turnstile`,
			`#captcha`,
		},
		SearchInput: []string{`input[type="search"]`, `input[name="search"]`, `#search`},
		RenewButton: []string{
			`//tr[contains(., '{username}')]//button[contains(., 'Renew')]`,
			`//tr[contains(., '{username}')]//a[contains(., 'Renew')]`,
			`[data-username="{username}"] .renew`,
		},
		ConfirmButton:    []string{`.modal.show .btn-primary`, `.swal2-confirm`, `//button[contains(., 'Confirm')]`},
		SuccessIndicator: []string{`.alert-success`, `.toast-success`, `.swal2-success`},
		SuccessText:      []string{"renewed successfully", "successfully renewed", "renewal successful"},
	}
}

// LoadSelectors returns the default catalog overridden by the non-empty
// lists of the YAML file at path. An empty path returns the defaults.
func LoadSelectors(path string) (Selectors, error) {
	selectors := DefaultSelectors()
	if path == "" {
		return selectors, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Selectors{}, fmt.Errorf("failed to read selectors file: %w", err)
	}

	var override Selectors
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Selectors{}, fmt.Errorf("failed to parse selectors file: %w", err)
	}

	selectors.merge(override)
	if err := selectors.Validate(); err != nil {
		return Selectors{}, err
	}

	return selectors, nil
}

// Validate checks that every required element has at least one candidate
func (s Selectors) Validate() error {
	required := map[string][]string{
		"login_username":    s.LoginUsername,
		"login_password":    s.LoginPassword,
		"login_submit":      s.LoginSubmit,
		"logged_in":         s.LoggedIn,
		"renew_button":      s.RenewButton,
		"success_indicator": s.SuccessIndicator,
	}

	var errs []error
	for name, list := range required {
		if len(list) == 0 {
			errs = append(errs, fmt.Errorf("selector list %s is empty", name))
		}
	}
	return errors.Join(errs...)
}

// ForUsername returns the selectors with the username placeholder filled in
func ForUsername(selectors []string, username string) []string {
	escaped := strings.ReplaceAll(username, "'", "")
	out := make([]string, len(selectors))
	for i, sel := range selectors {
		out[i] = strings.ReplaceAll(sel, usernamePlaceholder, escaped)
	}
	return out
}

func (s *Selectors) merge(o Selectors) {
	pick := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = src
		}
	}
	pick(&s.LoginUsername, o.LoginUsername)
	pick(&s.LoginPassword, o.LoginPassword)
	pick(&s.LoginSubmit, o.LoginSubmit)
	pick(&s.LoggedIn, o.LoggedIn)
	pick(&s.Challenge, o.Challenge)
	pick(&s.SearchInput, o.SearchInput)
	pick(&s.RenewButton, o.RenewButton)
	pick(&s.ConfirmButton, o.ConfirmButton)
	pick(&s.SuccessIndicator, o.SuccessIndicator)
	pick(&s.SuccessText, o.SuccessText)
}

func isXPath(selector string) bool {
	return strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(")
}
