// Package mobile holds the screen objects of the trading app.
package mobile

import (
	"context"
	"fmt"
	"time"

	"github.com/devicelab-dev/e2e-runner/pkg/assert"
	"github.com/devicelab-dev/e2e-runner/pkg/core"
	"github.com/devicelab-dev/e2e-runner/pkg/element"
)

// Session is what a screen needs from an automation session.
type Session interface {
	Actions() *element.Actions
}

// DigitPause separates passcode key taps.
var DigitPause = 200 * time.Millisecond

func resourceID(name string) core.Locator {
	return core.ID("com.exness.android.pa:id/" + name)
}

func navItem(title string) core.Locator {
	return core.XPathf("//*[@resource-id='com.exness.android.pa:id/bottom_navigation_item_title' and @text='%s']", title)
}

func digitButton(d rune) core.Locator {
	return core.XPathf("//*[@text='%c']", d)
}

var (
	signInButton  = resourceID("signInView")
	emailInput    = core.XPath("(//*[@resource-id='com.exness.android.pa:id/editText'])[1]")
	passwordInput = core.XPath("(//*[@resource-id='com.exness.android.pa:id/editText'])[2]")
	loginButton   = resourceID("signInButton")
	passcodeField = resourceID("passcode")
	notNowButton  = core.XPath("//*[@text='Not now']")
	accountsNav   = resourceID("bottom_navigation_item_icon")
	tradeNav      = navItem("Trade")
	profileNav    = navItem("Profile")
)

// tap clicks without scrolling; native screens are scrolled by gesture.
func tap(ctx context.Context, a *element.Actions, loc core.Locator, desc string) error {
	return a.Click(ctx, loc, desc, element.NoScroll())
}

// LoginScreen is the app's start screen and bottom navigation.
type LoginScreen struct {
	s Session
}

// OpenLoginScreen requires the accounts navigation item.
func OpenLoginScreen(ctx context.Context, s Session) (*LoginScreen, error) {
	if err := assert.Precondition(ctx, s.Actions(), "login screen", assert.Check{Description: "account", Locator: accountsNav}); err != nil {
		return nil, err
	}
	return &LoginScreen{s: s}, nil
}

// ClickSignIn opens the sign-in form.
func (l *LoginScreen) ClickSignIn(ctx context.Context) error {
	a := l.s.Actions()
	a.Reporter.Info("Clicking on Sign In button")
	return tap(ctx, a, signInButton, "Sign In Button")
}

// Login enters the credentials and submits them.
func (l *LoginScreen) Login(ctx context.Context, email, password string) error {
	a := l.s.Actions()
	a.Reporter.Info("Logging in with email: %s", email)
	if err := a.EnterData(ctx, emailInput, email, "Email"); err != nil {
		return err
	}
	if err := a.EnterData(ctx, passwordInput, password, "Password"); err != nil {
		return err
	}
	return tap(ctx, a, loginButton, "Login button")
}

// EnterPasscode taps each digit of passcode on the on-screen keypad.
func (l *LoginScreen) EnterPasscode(ctx context.Context, passcode string) error {
	a := l.s.Actions()
	a.Reporter.Info("Entering passcode")
	if _, err := a.WaitVisible(ctx, passcodeField, "Passcode field"); err != nil {
		return err
	}
	for _, d := range passcode {
		if err := tap(ctx, a, digitButton(d), fmt.Sprintf("Passcode digit %c", d)); err != nil {
			return err
		}
		if err := a.Pause(ctx, DigitPause); err != nil {
			return err
		}
	}
	return nil
}

// HandleSecurityPopup dismisses the biometrics prompt when it is shown.
func (l *LoginScreen) HandleSecurityPopup(ctx context.Context) error {
	a := l.s.Actions()
	a.Reporter.Info("Handling security popup: Clicking 'Not now'")
	if !a.IsDisplayed(ctx, notNowButton) {
		return nil
	}
	return tap(ctx, a, notNowButton, "Not now button")
}

// ReEnterPasscode confirms the passcode and dismisses the security popup.
func (l *LoginScreen) ReEnterPasscode(ctx context.Context, passcode string) error {
	l.s.Actions().Reporter.Info("Re-entering passcode for confirmation")
	if err := l.EnterPasscode(ctx, passcode); err != nil {
		return err
	}
	return l.HandleSecurityPopup(ctx)
}

// NavigateToTrade opens the Trade tab.
func (l *LoginScreen) NavigateToTrade(ctx context.Context) (*TradeScreen, error) {
	a := l.s.Actions()
	a.Reporter.Info("Navigating to Trade screen")
	if err := tap(ctx, a, tradeNav, "Trade navigation button"); err != nil {
		return nil, err
	}
	return &TradeScreen{s: l.s}, nil
}

// NavigateToProfile opens the Profile tab.
func (l *LoginScreen) NavigateToProfile(ctx context.Context) (*ProfileScreen, error) {
	a := l.s.Actions()
	a.Reporter.Info("Navigating to Profile screen")
	if err := tap(ctx, a, profileNav, "Profile navigation button"); err != nil {
		return nil, err
	}
	return OpenProfileScreen(ctx, l.s)
}
