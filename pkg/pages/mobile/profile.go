package mobile

import (
	"context"
	"fmt"

	"github.com/devicelab-dev/e2e-runner/pkg/assert"
	"github.com/devicelab-dev/e2e-runner/pkg/core"
)

// LogoutScrollAttempts bounds the gestures spent on each settings entry.
const LogoutScrollAttempts = 10

var (
	profileContent      = resourceID("profileContent")
	shareStrategiesItem = resourceID("shareStrategiesButton")
	userVoiceItem       = resourceID("userVoiceButton")
	logoutItem          = resourceID("logoutTextView")
)

// ProfileScreen is the account settings list.
type ProfileScreen struct {
	s Session
}

// OpenProfileScreen requires the profile content container.
func OpenProfileScreen(ctx context.Context, s Session) (*ProfileScreen, error) {
	if err := assert.Precondition(ctx, s.Actions(), "profile screen", assert.Check{Description: "profile", Locator: profileContent}); err != nil {
		return nil, err
	}
	return &ProfileScreen{s: s}, nil
}

// Logout scrolls down past the intermediate settings to the logout entry
// and taps it.
func (p *ProfileScreen) Logout(ctx context.Context) error {
	a := p.s.Actions()
	a.Reporter.Info("Scrolling to Logout button and logging out")
	if _, err := a.WaitVisible(ctx, profileContent, "Profile content"); err != nil {
		return err
	}

	for _, target := range []struct {
		loc  core.Locator
		desc string
	}{
		{shareStrategiesItem, "shareStrategies button"},
		{userVoiceItem, "userVoice button"},
		{logoutItem, "Logout button"},
	} {
		a.Reporter.Info("Scrolling down to find: %s", target.desc)
		if _, err := a.ScrollUntilVisible(ctx, target.loc, LogoutScrollAttempts, target.desc); err != nil {
			return fmt.Errorf("scroll to logout: %w", err)
		}
	}
	return tap(ctx, a, logoutItem, "Logout button")
}
