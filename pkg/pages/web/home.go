package web

import (
	"context"
	"fmt"

	"github.com/devicelab-dev/e2e-runner/pkg/assert"
)

// HomePage is the signed-in landing page.
type HomePage struct {
	s       Session
	baseURL string
}

// OpenHome checks the navigation links of a signed-in page.
func OpenHome(ctx context.Context, s Session, baseURL string) (*HomePage, error) {
	if err := loadPage(ctx, s, "home page"); err != nil {
		return nil, err
	}
	err := assert.Precondition(ctx, s.Actions(), "home page",
		assert.Check{Description: "challengesLink", Locator: challengesLink},
		assert.Check{Description: "dashboardLink", Locator: dashboardLink},
		assert.Check{Description: "scoreboardLink", Locator: scoreboardLink},
	)
	if err != nil {
		return nil, err
	}
	return &HomePage{s: s, baseURL: baseURL}, nil
}

// NavigateToChallenges opens the challenge browser.
func (p *HomePage) NavigateToChallenges(ctx context.Context) (*ChallengesPage, error) {
	a := p.s.Actions()
	a.Reporter.Info("Navigating to Challenges page")
	if err := a.Click(ctx, challengesLink, "Challenges link"); err != nil {
		a.Reporter.Error("Failed to navigate to Challenges page: %v", err)
		return nil, fmt.Errorf("navigate to challenges page: %w", err)
	}
	return OpenChallenges(ctx, p.s, p.baseURL)
}

// Logout signs out through the profile menu.
func (p *HomePage) Logout(ctx context.Context) error {
	a := p.s.Actions()
	const step = "Logout Process"
	a.Reporter.StartStep(step)
	defer a.Reporter.EndStep(step)

	if err := a.Click(ctx, userProfileIcon, "User Profile Icon"); err != nil {
		a.Reporter.Fail("Logout failed: %v", err)
		return fmt.Errorf("logout: %w", err)
	}
	if err := a.Click(ctx, logoutLink, "Logout Button"); err != nil {
		a.Reporter.Fail("Logout failed: %v", err)
		return fmt.Errorf("logout: %w", err)
	}
	a.Reporter.Pass("Logout successful")
	return nil
}
