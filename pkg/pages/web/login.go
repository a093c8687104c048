package web

import (
	"context"
	"strings"

	"github.com/devicelab-dev/e2e-runner/pkg/assert"
	"github.com/devicelab-dev/e2e-runner/pkg/core"
)

// LoginPage is the sign-in form.
type LoginPage struct {
	s       Session
	baseURL string
}

// OpenLogin navigates to the login page and waits for the username field.
// The header, password field and submit button are checked as well; their
// absence is only a warning.
func OpenLogin(ctx context.Context, s Session, baseURL string) (*LoginPage, error) {
	a := s.Actions()
	baseURL = strings.TrimRight(baseURL, "/")
	if err := a.Navigate(ctx, baseURL+LoginPath); err != nil {
		return nil, err
	}
	if err := loadPage(ctx, s, "login page"); err != nil {
		return nil, err
	}
	if err := assert.Precondition(ctx, a, "login page", assert.Check{Description: "Username or email", Locator: usernameInput}); err != nil {
		a.Reporter.Error("Failed to load login page: %v", err)
		return nil, err
	}

	p := &LoginPage{s: s, baseURL: baseURL}
	if !p.IsLoaded(ctx) {
		a.Reporter.Warn("Login page might not be fully loaded")
	}
	return p, nil
}

// IsLoaded probes the login form elements once.
func (p *LoginPage) IsLoaded(ctx context.Context) bool {
	a := p.s.Actions()
	for _, loc := range []core.Locator{loginHeader, usernameInput, passwordInput, loginButton} {
		if !a.IsDisplayed(ctx, loc) {
			return false
		}
	}
	return true
}

// Login submits the credentials and returns the home page.
func (p *LoginPage) Login(ctx context.Context, email, password string) (*HomePage, error) {
	a := p.s.Actions()
	a.Reporter.Info("Logging in with email: %s", email)
	if err := a.Type(ctx, usernameInput, email, "email input"); err != nil {
		return nil, err
	}
	if err := a.Type(ctx, passwordInput, password, "Password input"); err != nil {
		return nil, err
	}
	if err := a.Click(ctx, loginButton, "Login button"); err != nil {
		return nil, err
	}
	return OpenHome(ctx, p.s, p.baseURL)
}

// loadPage waits for document.readyState and reports a failure as a
// precondition of the named page.
func loadPage(ctx context.Context, s Session, view string) error {
	a := s.Actions()
	a.Reporter.Info("Waiting for page to load completely")
	if err := a.WaitForPageLoad(ctx); err != nil {
		return &core.PreconditionError{View: view, Missing: []string{"document ready"}, Cause: err}
	}
	return nil
}
