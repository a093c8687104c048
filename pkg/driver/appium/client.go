// Package appium implements core.Driver against an Appium server using the
// W3C WebDriver protocol.
package appium

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/devicelab-dev/e2e-runner/pkg/core"
)

// W3C WebDriver element identifier key (standard constant)
const w3cElementKey = "element-6066-11e4-a52e-4f735466cecf"

// Client handles HTTP communication with Appium server.
type Client struct {
	serverURL string
	sessionID string
	client    *http.Client
	platform  string // ios, android
	caps      map[string]interface{}
	screenW   int
	screenH   int

	// commandTimeout bounds every request except session creation.
	commandTimeout time.Duration
}

// NewClient creates a new Appium client.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: strings.TrimSuffix(serverURL, "/"),
		client: &http.Client{
			Timeout: 5 * time.Minute, // app install and first launch can be slow
		},
		commandTimeout: DefaultCommandTimeout,
	}
}

// DefaultCommandTimeout caps a single command once the session exists.
const DefaultCommandTimeout = 60 * time.Second

// SetCommandTimeout changes the per-command cap. Zero leaves only the
// client timeout.
func (c *Client) SetCommandTimeout(d time.Duration) {
	c.commandTimeout = d
}

// Connect creates a new session with the given capabilities.
func (c *Client) Connect(capabilities map[string]interface{}) error {
	body := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": capabilities,
		},
	}

	resp, err := c.post("/session", body)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	value, ok := resp["value"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("invalid session response")
	}

	c.sessionID, _ = value["sessionId"].(string)
	if c.sessionID == "" {
		return fmt.Errorf("no session ID in response")
	}

	c.caps = map[string]interface{}{}
	for k, v := range capabilities {
		c.caps[strings.TrimPrefix(k, "appium:")] = v
	}
	if caps, ok := value["capabilities"].(map[string]interface{}); ok {
		for k, v := range caps {
			c.caps[strings.TrimPrefix(k, "appium:")] = v
		}
	}
	if platform, ok := c.caps["platformName"].(string); ok {
		c.platform = strings.ToLower(platform)
	}

	c.fetchScreenSize()

	// Element lookups are polled by the caller; the server must not add its own waits.
	c.SetImplicitWait(0)
	if c.platform == "ios" {
		c.SetSettings(map[string]interface{}{
			"animationCoolOffTimeout": 0,
		})
	} else {
		c.SetSettings(map[string]interface{}{
			"waitForSelectorTimeout": 0,
		})
	}

	return nil
}

// Disconnect closes the session.
func (c *Client) Disconnect() error {
	if c.sessionID == "" {
		return nil
	}
	_, err := c.delete(c.sessionPath())
	c.sessionID = ""
	return err
}

// SessionID returns the active session id, empty when disconnected.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Platform returns the platform name (ios or android).
func (c *Client) Platform() string {
	return c.platform
}

// Capability returns a session capability without its appium: prefix.
func (c *Client) Capability(name string) string {
	v, ok := c.caps[name]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// ScreenSize returns the screen dimensions.
func (c *Client) ScreenSize() (int, int) {
	return c.screenW, c.screenH
}

func (c *Client) fetchScreenSize() {
	resp, err := c.get(c.sessionPath() + "/window/rect")
	if err != nil {
		return
	}
	if value, ok := resp["value"].(map[string]interface{}); ok {
		if w, ok := value["width"].(float64); ok {
			c.screenW = int(w)
		}
		if h, ok := value["height"].(float64); ok {
			c.screenH = int(h)
		}
	}
}

// Element Operations

// FindElement finds a single element.
func (c *Client) FindElement(strategy, value string) (string, error) {
	resp, err := c.post(c.sessionPath()+"/element", map[string]interface{}{
		"using": strategy,
		"value": value,
	})
	if err != nil {
		return "", err
	}
	return elementFromResponse(resp)
}

// FindElements finds multiple elements. No match is an empty result.
func (c *Client) FindElements(strategy, value string) ([]string, error) {
	resp, err := c.post(c.sessionPath()+"/elements", map[string]interface{}{
		"using": strategy,
		"value": value,
	})
	if err != nil {
		return nil, err
	}
	return elementsFromResponse(resp), nil
}

// FindChildElements finds elements below parentID.
func (c *Client) FindChildElements(parentID, strategy, value string) ([]string, error) {
	resp, err := c.post(c.elementPath(parentID)+"/elements", map[string]interface{}{
		"using": strategy,
		"value": value,
	})
	if err != nil {
		return nil, err
	}
	return elementsFromResponse(resp), nil
}

// ClickElement clicks an element.
func (c *Client) ClickElement(elementID string) error {
	_, err := c.post(c.elementPath(elementID)+"/click", nil)
	return err
}

// ClearElement clears an element's text.
func (c *Client) ClearElement(elementID string) error {
	_, err := c.post(c.elementPath(elementID)+"/clear", nil)
	return err
}

// ElementSendKeys types text into an element.
func (c *Client) ElementSendKeys(elementID, text string) error {
	_, err := c.post(c.elementPath(elementID)+"/value", map[string]interface{}{
		"text": text,
	})
	return err
}

// GetElementText returns element text.
func (c *Client) GetElementText(elementID string) (string, error) {
	resp, err := c.get(c.elementPath(elementID) + "/text")
	if err != nil {
		return "", err
	}
	text, _ := resp["value"].(string)
	return text, nil
}

// GetElementAttribute returns an element attribute.
func (c *Client) GetElementAttribute(elementID, name string) (string, error) {
	resp, err := c.get(c.elementPath(elementID) + "/attribute/" + name)
	if err != nil {
		return "", err
	}
	switch v := resp["value"].(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	default:
		return fmt.Sprint(v), nil
	}
}

// IsElementDisplayed checks if element is displayed.
func (c *Client) IsElementDisplayed(elementID string) (bool, error) {
	return c.boolValue(c.elementPath(elementID) + "/displayed")
}

// IsElementEnabled checks if element is enabled.
func (c *Client) IsElementEnabled(elementID string) (bool, error) {
	return c.boolValue(c.elementPath(elementID) + "/enabled")
}

// IsElementSelected checks if element is selected or checked.
func (c *Client) IsElementSelected(elementID string) (bool, error) {
	return c.boolValue(c.elementPath(elementID) + "/selected")
}

func (c *Client) boolValue(path string) (bool, error) {
	resp, err := c.get(path)
	if err != nil {
		return false, err
	}
	v, _ := resp["value"].(bool)
	return v, nil
}

// Gestures

func (c *Client) performTouchAction(actions []map[string]interface{}) error {
	_, err := c.post(c.sessionPath()+"/actions", map[string]interface{}{
		"actions": []map[string]interface{}{
			{
				"type":       "pointer",
				"id":         "finger1",
				"parameters": map[string]interface{}{"pointerType": "touch"},
				"actions":    actions,
			},
		},
	})
	return err
}

// TapElement performs a tap on an element using W3C touch actions with element origin.
func (c *Client) TapElement(elementID string) error {
	return c.performTouchAction([]map[string]interface{}{
		{
			"type":     "pointerMove",
			"duration": 0,
			"x":        0,
			"y":        0,
			"origin":   map[string]interface{}{w3cElementKey: elementID},
		},
		{"type": "pointerDown", "button": 0},
		{"type": "pause", "duration": 50},
		{"type": "pointerUp", "button": 0},
	})
}

// Swipe performs a swipe gesture.
func (c *Client) Swipe(startX, startY, endX, endY, durationMs int) error {
	return c.performTouchAction([]map[string]interface{}{
		{"type": "pointerMove", "duration": 0, "x": startX, "y": startY},
		{"type": "pointerDown", "button": 0},
		{"type": "pointerMove", "duration": durationMs, "x": endX, "y": endY},
		{"type": "pointerUp", "button": 0},
	})
}

// Text Input

// SendKeys sends text to the active element.
func (c *Client) SendKeys(text string) error {
	var keyActions []map[string]interface{}
	for _, ch := range text {
		keyActions = append(keyActions,
			map[string]interface{}{"type": "keyDown", "value": string(ch)},
			map[string]interface{}{"type": "keyUp", "value": string(ch)},
		)
	}

	_, err := c.post(c.sessionPath()+"/actions", map[string]interface{}{
		"actions": []map[string]interface{}{
			{
				"type":    "key",
				"id":      "keyboard",
				"actions": keyActions,
			},
		},
	})
	if err != nil {
		// Fallback: Appium element value endpoint
		_, err = c.post(c.sessionPath()+"/appium/element/active/value", map[string]interface{}{
			"text": text,
		})
	}
	return err
}

// App state

// CurrentActivity returns the foreground Android activity.
func (c *Client) CurrentActivity() (string, error) {
	resp, err := c.get(c.sessionPath() + "/appium/device/current_activity")
	if err != nil {
		return "", err
	}
	activity, _ := resp["value"].(string)
	return activity, nil
}

// ActiveBundleID returns the foreground iOS application bundle id.
func (c *Client) ActiveBundleID() (string, error) {
	v, err := c.ExecuteMobile("activeAppInfo", map[string]interface{}{})
	if err != nil {
		return "", err
	}
	if info, ok := v.(map[string]interface{}); ok {
		id, _ := info["bundleId"].(string)
		return id, nil
	}
	return "", nil
}

// Screenshot captures a screenshot.
func (c *Client) Screenshot() ([]byte, error) {
	resp, err := c.get(c.sessionPath() + "/screenshot")
	if err != nil {
		return nil, err
	}
	encoded, ok := resp["value"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid screenshot response")
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// OpenURL opens a URL (deep link) on the device.
func (c *Client) OpenURL(url string) error {
	_, err := c.post(c.sessionPath()+"/url", map[string]interface{}{
		"url": url,
	})
	return err
}

// SetImplicitWait sets the implicit wait timeout.
func (c *Client) SetImplicitWait(timeout time.Duration) error {
	_, err := c.post(c.sessionPath()+"/timeouts", map[string]interface{}{
		"implicit": timeout.Milliseconds(),
	})
	return err
}

// SetSettings updates Appium driver settings.
// For Android UiAutomator2: waitForIdleTimeout, waitForSelectorTimeout
// For iOS XCUITest: animationCoolOffTimeout, snapshotMaxDepth
func (c *Client) SetSettings(settings map[string]interface{}) error {
	_, err := c.post(c.sessionPath()+"/appium/settings", map[string]interface{}{
		"settings": settings,
	})
	return err
}

// ExecuteScript runs a script through the execute/sync endpoint.
func (c *Client) ExecuteScript(script string, args []interface{}) (interface{}, error) {
	if args == nil {
		args = []interface{}{}
	}
	resp, err := c.post(c.sessionPath()+"/execute/sync", map[string]interface{}{
		"script": script,
		"args":   args,
	})
	if err != nil {
		return nil, err
	}
	return resp["value"], nil
}

// ExecuteMobile executes a mobile: command.
func (c *Client) ExecuteMobile(command string, args map[string]interface{}) (interface{}, error) {
	return c.ExecuteScript("mobile: "+command, []interface{}{args})
}

// HTTP Helpers

func (c *Client) sessionPath() string {
	return "/session/" + c.sessionID
}

func (c *Client) elementPath(elementID string) string {
	return c.sessionPath() + "/element/" + elementID
}

func (c *Client) get(path string) (map[string]interface{}, error) {
	return c.request("GET", path, nil)
}

func (c *Client) post(path string, body interface{}) (map[string]interface{}, error) {
	if body == nil {
		body = map[string]interface{}{}
	}
	return c.request("POST", path, body)
}

func (c *Client) delete(path string) (map[string]interface{}, error) {
	return c.request("DELETE", path, nil)
}

func (c *Client) request(method, path string, body interface{}) (map[string]interface{}, error) {
	url := c.serverURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	ctx := context.Background()
	if c.commandTimeout > 0 && !(method == http.MethodPost && path == "/session") {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.commandTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, core.NewProtocolError(core.CodeUnknownError,
				fmt.Sprintf("%s %s: HTTP %d", method, path, resp.StatusCode))
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// W3C errors arrive as {"value": {"error": ..., "message": ...}}
	if errValue, ok := result["value"].(map[string]interface{}); ok {
		if errType, ok := errValue["error"].(string); ok {
			errMsg, _ := errValue["message"].(string)
			return result, core.NewProtocolError(errType, errMsg)
		}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return result, core.NewProtocolError(core.CodeUnknownError,
			fmt.Sprintf("%s %s: HTTP %d", method, path, resp.StatusCode))
	}

	return result, nil
}

func elementFromResponse(resp map[string]interface{}) (string, error) {
	value, ok := resp["value"].(map[string]interface{})
	if !ok {
		return "", core.NewProtocolError(core.CodeNoSuchElement, "empty element response")
	}
	id := extractElementID(value)
	if id == "" {
		return "", core.NewProtocolError(core.CodeNoSuchElement, "element id missing from response")
	}
	return id, nil
}

func elementsFromResponse(resp map[string]interface{}) []string {
	values, ok := resp["value"].([]interface{})
	if !ok {
		return nil
	}
	var ids []string
	for _, v := range values {
		if elem, ok := v.(map[string]interface{}); ok {
			if id := extractElementID(elem); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func extractElementID(value map[string]interface{}) string {
	// W3C format
	if id, ok := value[w3cElementKey].(string); ok {
		return id
	}
	// Legacy format
	if id, ok := value["ELEMENT"].(string); ok {
		return id
	}
	return ""
}
