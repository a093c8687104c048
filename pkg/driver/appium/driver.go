package appium

import (
	"errors"
	"fmt"

	"github.com/devicelab-dev/e2e-runner/pkg/core"
	"github.com/devicelab-dev/e2e-runner/pkg/logger"
)

// Scroll area as fractions of the screen. The top band is left out so
// gestures do not start on status or navigation bars.
const (
	scrollAreaLeft   = 0.1
	scrollAreaTop    = 0.2
	scrollAreaWidth  = 0.8
	scrollAreaHeight = 0.6

	fallbackScreenW = 1080
	fallbackScreenH = 2400
	swipeDurationMs = 400
)

// Driver adapts an Appium Client to core.Driver.
type Driver struct {
	client    *Client
	serverURL string
}

// Open creates a session on the Appium server and returns the driver.
func Open(serverURL string, capabilities map[string]interface{}) (*Driver, error) {
	client := NewClient(serverURL)
	if err := client.Connect(capabilities); err != nil {
		return nil, err
	}
	logger.Info("Appium session %s created on %s (platform=%s)", client.SessionID(), serverURL, client.Platform())
	return NewDriver(client, serverURL), nil
}

// NewDriver wraps a connected client.
func NewDriver(client *Client, serverURL string) *Driver {
	return &Driver{client: client, serverURL: serverURL}
}

// Client returns the underlying protocol client.
func (d *Driver) Client() *Client {
	return d.client
}

func (d *Driver) FindElement(loc core.Locator) (string, error) {
	return d.client.FindElement(loc.Strategy, loc.Value)
}

func (d *Driver) FindElements(loc core.Locator) ([]string, error) {
	return d.client.FindElements(loc.Strategy, loc.Value)
}

func (d *Driver) FindChildElements(parentID string, loc core.Locator) ([]string, error) {
	return d.client.FindChildElements(parentID, loc.Strategy, loc.Value)
}

func (d *Driver) Click(elementID string) error {
	return d.client.ClickElement(elementID)
}

// PointerClick taps the element center through W3C touch actions.
func (d *Driver) PointerClick(elementID string) error {
	return d.client.TapElement(elementID)
}

func (d *Driver) Clear(elementID string) error {
	return d.client.ClearElement(elementID)
}

func (d *Driver) SendKeys(elementID, text string) error {
	return d.client.ElementSendKeys(elementID, text)
}

func (d *Driver) SendKeysToActive(text string) error {
	return d.client.SendKeys(text)
}

func (d *Driver) Text(elementID string) (string, error) {
	return d.client.GetElementText(elementID)
}

func (d *Driver) Attribute(elementID, name string) (string, error) {
	return d.client.GetElementAttribute(elementID, name)
}

func (d *Driver) IsDisplayed(elementID string) (bool, error) {
	return d.client.IsElementDisplayed(elementID)
}

func (d *Driver) IsEnabled(elementID string) (bool, error) {
	return d.client.IsElementEnabled(elementID)
}

func (d *Driver) IsSelected(elementID string) (bool, error) {
	return d.client.IsElementSelected(elementID)
}

// ScrollIntoView is unsupported in native contexts; use Scroll instead.
func (d *Driver) ScrollIntoView(elementID string, alignTop bool) error {
	return core.NewProtocolError(core.CodeUnsupported, "scrollIntoView in native context")
}

// Scroll issues one scroll gesture over the central screen area.
// Android uses mobile: scrollGesture, iOS uses mobile: scroll. A server
// without those commands gets a plain swipe.
func (d *Driver) Scroll(gesture core.ScrollGesture) error {
	w, h := d.client.ScreenSize()
	if w <= 0 || h <= 0 {
		w, h = fallbackScreenW, fallbackScreenH
	}
	if gesture.Direction == "" {
		gesture.Direction = core.ScrollDown
	}
	if gesture.Percent <= 0 {
		gesture.Percent = core.DefaultScrollGesture().Percent
	}

	var err error
	if d.client.Platform() == "ios" {
		_, err = d.client.ExecuteMobile("scroll", map[string]interface{}{
			"direction": string(gesture.Direction),
		})
	} else {
		_, err = d.client.ExecuteMobile("scrollGesture", scrollGestureArgs(w, h, gesture))
	}
	if err == nil || !isUnknownCommand(err) {
		return err
	}

	logger.Debug("mobile scroll unavailable (%v), falling back to swipe", err)
	x := w / 2
	span := int(float64(h) * scrollAreaHeight * gesture.Percent)
	mid := h / 2
	startY, endY := mid+span/2, mid-span/2
	if gesture.Direction == core.ScrollUp {
		startY, endY = endY, startY
	}
	return d.client.Swipe(x, startY, x, endY, swipeDurationMs)
}

func scrollGestureArgs(w, h int, gesture core.ScrollGesture) map[string]interface{} {
	return map[string]interface{}{
		"left":      int(float64(w) * scrollAreaLeft),
		"top":       int(float64(h) * scrollAreaTop),
		"width":     int(float64(w) * scrollAreaWidth),
		"height":    int(float64(h) * scrollAreaHeight),
		"direction": string(gesture.Direction),
		"percent":   gesture.Percent,
	}
}

func isUnknownCommand(err error) bool {
	var pe *core.ProtocolError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Code {
	case core.CodeUnknownCommand, core.CodeUnsupported, "unknown method":
		return true
	}
	return false
}

func (d *Driver) ExecuteScript(script string, args []interface{}) (interface{}, error) {
	return d.client.ExecuteScript(script, args)
}

// Navigate opens url as a deep link.
func (d *Driver) Navigate(url string) error {
	return d.client.OpenURL(url)
}

// CurrentScreen returns the foreground activity on Android and the active
// bundle id on iOS.
func (d *Driver) CurrentScreen() (string, error) {
	if d.client.Platform() == "ios" {
		return d.client.ActiveBundleID()
	}
	return d.client.CurrentActivity()
}

func (d *Driver) Screenshot() ([]byte, error) {
	return d.client.Screenshot()
}

// PlatformInfo describes the device from the negotiated capabilities.
func (d *Driver) PlatformInfo() *core.PlatformInfo {
	w, h := d.client.ScreenSize()
	appID := d.client.Capability("appPackage")
	if appID == "" {
		appID = d.client.Capability("bundleId")
	}
	deviceID := d.client.Capability("udid")
	if deviceID == "" {
		deviceID = d.client.Capability("deviceUDID")
	}
	return &core.PlatformInfo{
		Platform:     d.client.Platform(),
		OSVersion:    d.client.Capability("platformVersion"),
		DeviceName:   d.client.Capability("deviceName"),
		DeviceID:     deviceID,
		SessionID:    d.client.SessionID(),
		ServerURL:    d.serverURL,
		ScreenWidth:  w,
		ScreenHeight: h,
		AppID:        appID,
	}
}

// Quit deletes the session. Calling it twice is a no-op.
func (d *Driver) Quit() error {
	if err := d.client.Disconnect(); err != nil {
		return fmt.Errorf("delete appium session: %w", err)
	}
	return nil
}

var _ core.Driver = (*Driver)(nil)
