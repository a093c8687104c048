package web

import (
	"context"
	"fmt"
	"strings"

	"github.com/devicelab-dev/e2e-runner/pkg/assert"
	"github.com/devicelab-dev/e2e-runner/pkg/fixture"
)

// ChallengesPage is the challenge browser with its search filters.
type ChallengesPage struct {
	s       Session
	baseURL string
}

// OpenChallenges checks the search filters of the challenge browser.
func OpenChallenges(ctx context.Context, s Session, baseURL string) (*ChallengesPage, error) {
	if err := loadPage(ctx, s, "challenges page"); err != nil {
		return nil, err
	}
	err := assert.Precondition(ctx, s.Actions(), "challenges page",
		assert.Check{Description: "searchByID", Locator: searchByID},
		assert.Check{Description: "searchByCategory", Locator: searchByCategory},
		assert.Check{Description: "searchByDifficulty", Locator: searchByDifficulty},
		assert.Check{Description: "searchBySolved", Locator: searchBySolved},
		assert.Check{Description: "searchByOrder", Locator: searchByOrder},
	)
	if err != nil {
		return nil, err
	}
	s.Actions().Reporter.Info("Challenges page loaded successfully")
	return &ChallengesPage{s: s, baseURL: baseURL}, nil
}

// ClickCreateChallenge opens the creation form through the page link, the
// dropdown menu item or, when neither is shown, the direct URL.
func (p *ChallengesPage) ClickCreateChallenge(ctx context.Context) (*CreateChallengePage, error) {
	a := p.s.Actions()
	a.Reporter.Info("Clicking Create Challenge link")

	var err error
	switch {
	case a.IsDisplayed(ctx, createChallengeLink):
		err = a.Click(ctx, createChallengeLink, "Create Challenge link")
	case a.IsDisplayed(ctx, createChallengeMenuItem):
		err = a.Click(ctx, createChallengeMenuItem, "Create Challenge menu item")
	default:
		a.Reporter.Info("Menu item not found, trying to navigate directly")
		err = a.Navigate(ctx, p.baseURL+CreateChallengePath)
	}
	if err != nil {
		a.Reporter.Error("Failed to click Create Challenge link: %v", err)
		return nil, fmt.Errorf("open create challenge: %w", err)
	}
	return OpenCreateChallenge(ctx, p.s)
}

// CreateChallengePage is the challenge creation form.
type CreateChallengePage struct {
	s Session
}

// OpenCreateChallenge checks the creation form fields.
func OpenCreateChallenge(ctx context.Context, s Session) (*CreateChallengePage, error) {
	if err := loadPage(ctx, s, "create challenge page"); err != nil {
		return nil, err
	}
	s.Actions().Reporter.Info("Create Challenge Page loaded")
	err := assert.Precondition(ctx, s.Actions(), "create challenge page",
		assert.Check{Description: "Create Challenge header", Locator: createHeader},
		assert.Check{Description: "Event Title", Locator: eventSelect},
		assert.Check{Description: "Title Input", Locator: titleInput},
		assert.Check{Description: "Flag Input", Locator: flagInput},
		assert.Check{Description: "SubmitButton", Locator: submitButton},
		assert.Check{Description: "Description Textarea", Locator: descriptionTextarea},
	)
	if err != nil {
		return nil, err
	}
	return &CreateChallengePage{s: s}, nil
}

// CreateChallenge fills the form, uploads filePath when set and submits.
func (p *CreateChallengePage) CreateChallenge(ctx context.Context, c *fixture.Challenge, filePath string) (*ChallengeHomePage, error) {
	a := p.s.Actions()
	a.Reporter.Info("Creating new challenge with title: %s", c.Title)

	steps := []func() error{
		func() error { return a.Type(ctx, titleInput, c.Title, "Challenge title") },
		func() error { return a.Type(ctx, flagInput, c.Flag, "Challenge flag") },
		func() error { return a.Type(ctx, descriptionTextarea, c.Description, "Challenge description") },
		func() error { return a.Select(ctx, categoryDropdown, c.Category, "Challenge category") },
		func() error { return a.Select(ctx, pointsDropdown, c.Points, "Challenge points") },
		func() error { return a.Type(ctx, howToSolveTextarea, c.HowToSolve, "How to solve description") },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(filePath) != "" {
		a.UploadFile(ctx, fileUploadInput, filePath, "Challenge file")
	}
	return p.Submit(ctx)
}

// Submit posts the form and returns the new challenge's page.
func (p *CreateChallengePage) Submit(ctx context.Context) (*ChallengeHomePage, error) {
	a := p.s.Actions()
	a.Reporter.Info("Submitting new challenge")
	if err := a.Click(ctx, submitButton, "Submit challenge button"); err != nil {
		a.Reporter.Error("Failed to submit challenge: %v", err)
		return nil, fmt.Errorf("submit challenge: %w", err)
	}
	return OpenChallengeHome(ctx, p.s)
}
