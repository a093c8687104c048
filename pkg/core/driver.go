// Package core provides the automation protocol abstraction, error taxonomy
// and result types shared by every e2e-runner package.
package core

import (
	"fmt"
	"strings"
)

// Surface is the kind of UI a session automates.
type Surface string

// Surfaces.
const (
	SurfaceWeb    Surface = "web"
	SurfaceMobile Surface = "mobile"
)

// Locator strategies (W3C plus the Appium extensions the mobile driver understands).
const (
	ByXPath              = "xpath"
	ByCSS                = "css selector"
	ByID                 = "id"
	ByAccessibilityID    = "accessibility id"
	ByAndroidUIAutomator = "-android uiautomator"
)

// Locator describes how to resolve an element within a session.
type Locator struct {
	Strategy string `json:"strategy" yaml:"strategy"`
	Value    string `json:"value" yaml:"value"`
}

// XPath returns an xpath locator.
func XPath(expr string) Locator { return Locator{Strategy: ByXPath, Value: expr} }

// XPathf returns an xpath locator built from a format string.
func XPathf(format string, args ...interface{}) Locator {
	return XPath(fmt.Sprintf(format, args...))
}

// CSS returns a css selector locator.
func CSS(selector string) Locator { return Locator{Strategy: ByCSS, Value: selector} }

// ID returns an id locator (resource-id on Android).
func ID(id string) Locator { return Locator{Strategy: ByID, Value: id} }

// AccessibilityID returns an accessibility id locator.
func AccessibilityID(id string) Locator { return Locator{Strategy: ByAccessibilityID, Value: id} }

// AndroidUIAutomator returns a UiSelector locator.
func AndroidUIAutomator(selector string) Locator {
	return Locator{Strategy: ByAndroidUIAutomator, Value: selector}
}

// IsZero reports whether the locator has nothing to resolve.
func (l Locator) IsZero() bool {
	return strings.TrimSpace(l.Value) == ""
}

// Describe returns a human-readable representation of the locator.
func (l Locator) Describe() string {
	if l.IsZero() {
		return "<empty locator>"
	}
	return fmt.Sprintf("%s=%s", l.Strategy, l.Value)
}

// Element is a resolved, possibly stale, reference to a remote UI node.
// It is valid for a single interaction only; callers re-resolve by Locator.
type Element struct {
	ID          string
	Locator     Locator
	Description string
}

// ScrollDirection is the direction content should move.
type ScrollDirection string

// Scroll directions.
const (
	ScrollDown ScrollDirection = "down"
	ScrollUp   ScrollDirection = "up"
)

// ScrollGesture describes one scroll gesture over the visible area.
// Percent is the fraction of the scroll area to travel (0..1).
type ScrollGesture struct {
	Direction ScrollDirection
	Percent   float64
}

// DefaultScrollGesture scrolls down by 60% of the scroll area.
func DefaultScrollGesture() ScrollGesture {
	return ScrollGesture{Direction: ScrollDown, Percent: 0.6}
}

// Driver is the abstract remote automation capability set consumed by the
// synchronization engine and the interaction primitives.
// Implementations: appium (mobile), webdriver (browser), mock (tests).
type Driver interface {
	// FindElement resolves a single element. Returns an error matching
	// ErrNoSuchElement when nothing matches.
	FindElement(loc Locator) (string, error)
	FindElements(loc Locator) ([]string, error)
	FindChildElements(parentID string, loc Locator) ([]string, error)

	Click(elementID string) error
	// PointerClick clicks through the pointer-action input path.
	// Used to recover from intercepted clicks.
	PointerClick(elementID string) error
	Clear(elementID string) error
	SendKeys(elementID, text string) error
	// SendKeysToActive types into whatever element currently has focus.
	SendKeysToActive(text string) error

	Text(elementID string) (string, error)
	Attribute(elementID, name string) (string, error)
	IsDisplayed(elementID string) (bool, error)
	IsEnabled(elementID string) (bool, error)
	IsSelected(elementID string) (bool, error)

	ScrollIntoView(elementID string, alignTop bool) error
	Scroll(gesture ScrollGesture) error
	ExecuteScript(script string, args []interface{}) (interface{}, error)

	Navigate(url string) error
	// CurrentScreen returns the runtime screen identifier
	// (Android activity, iOS bundle, browser URL).
	CurrentScreen() (string, error)
	Screenshot() ([]byte, error)
	PlatformInfo() *PlatformInfo
	Quit() error
}

// Bounds represents element position and size
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the center point of the bounds
func (b Bounds) Center() (int, int) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// PlatformInfo contains device and platform details
type PlatformInfo struct {
	Platform     string `json:"platform"`               // ios, android, chrome, firefox...
	OSVersion    string `json:"osVersion,omitempty"`    // e.g., "17.0", "14"
	DeviceName   string `json:"deviceName,omitempty"`   // e.g., "Pixel 8"
	DeviceID     string `json:"deviceId,omitempty"`     // Unique device identifier
	SessionID    string `json:"sessionId,omitempty"`    // Remote session id
	ServerURL    string `json:"serverUrl,omitempty"`    // Automation endpoint
	ScreenWidth  int    `json:"screenWidth,omitempty"`  // Screen width in pixels
	ScreenHeight int    `json:"screenHeight,omitempty"` // Screen height in pixels
	AppID        string `json:"appId,omitempty"`        // Bundle ID / Package name
}

// IsMobile reports whether the platform is a mobile OS.
func (p *PlatformInfo) IsMobile() bool {
	if p == nil {
		return false
	}
	switch strings.ToLower(p.Platform) {
	case "android", "ios":
		return true
	}
	return false
}
