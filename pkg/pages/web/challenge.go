package web

import (
	"context"
	"errors"

	"github.com/devicelab-dev/e2e-runner/pkg/assert"
	"github.com/devicelab-dev/e2e-runner/pkg/fixture"
)

// ChallengeHomePage shows one challenge.
type ChallengeHomePage struct {
	s Session
}

// OpenChallengeHome checks the challenge detail labels.
func OpenChallengeHome(ctx context.Context, s Session) (*ChallengeHomePage, error) {
	if err := loadPage(ctx, s, "challenge page"); err != nil {
		return nil, err
	}
	err := assert.Precondition(ctx, s.Actions(), "challenge page",
		assert.Check{Description: "challengeDescriptionLabel", Locator: challengeDescriptionLabel},
		assert.Check{Description: "challengePointLabel", Locator: challengePointsLabel},
		assert.Check{Description: "challengeCategoryLabel", Locator: challengeCategoryLabel},
	)
	if err != nil {
		return nil, err
	}
	s.Actions().Reporter.Info("Challenge page loaded successfully")
	return &ChallengeHomePage{s: s}, nil
}

// VerifyDetails compares the displayed fields with want and the uploaded
// file name. Mismatches are reported as failures; with strict they are also
// returned, joined.
func (p *ChallengeHomePage) VerifyDetails(ctx context.Context, want *fixture.Challenge, fileName string, strict bool) error {
	a := p.s.Actions()
	rep := a.Reporter
	return errors.Join(
		assert.CompareEquals(rep, "Challenge Title", want.Title, a.Read(ctx, challengeTitleLabel, "Challenge Title Label"), strict),
		assert.CompareEquals(rep, "Challenge Description", want.Description, a.Read(ctx, challengeDescriptionLabel, "Challenge Description Label"), strict),
		assert.CompareEquals(rep, "Challenge Points", want.Points, a.Read(ctx, challengePointsLabel, "Challenge Points Label"), strict),
		assert.CompareEquals(rep, "Challenge Category", want.Category, a.Read(ctx, challengeCategoryLabel, "Challenge Category Label"), strict),
		assert.CompareEquals(rep, "Challenge File Name", fileName, a.Read(ctx, challengeFileName, "Challenge FileName Label"), strict),
	)
}
