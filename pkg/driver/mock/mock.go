// Package mock provides a scripted in-memory driver for testing without a
// real device or browser.
package mock

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/devicelab-dev/e2e-runner/pkg/core"
)

// Driver is a mock implementation of core.Driver for testing.
// Elements are keyed by locator value.
type Driver struct {
	// Configuration
	Config Config

	// OnScroll runs after every scroll gesture with the new gesture count.
	OnScroll func(d *Driver, gestures int)
	// Script answers ExecuteScript. Nil answers document.readyState with "complete".
	Script func(script string, args []interface{}) (interface{}, error)

	mu       sync.Mutex
	elements map[string]*Element
	byID     map[string]*Element
	nextID   int
	scrolls  int
	calls    []Call
	url      string
	active   strings.Builder
	quit     bool
}

// Config configures mock driver behavior.
type Config struct {
	// CallDelay adds artificial delay per call
	CallDelay time.Duration
	// Platform info to report
	Platform string
	DeviceID string
	// Screen is returned by CurrentScreen; the last navigated URL otherwise.
	Screen string
	// FindErr fails every lookup (transport failure).
	FindErr error
	// ScreenshotErr fails Screenshot.
	ScreenshotErr error
	// QuitErr fails Quit.
	QuitErr error
	// ScrollErr fails Scroll.
	ScrollErr error
}

// Element is a scripted UI node.
type Element struct {
	Text       string
	Value      string
	Attributes map[string]string
	Displayed  bool
	Enabled    bool
	Selected   bool

	// AppearAfter hides the element until this long after it was added.
	AppearAfter time.Duration
	// AppearAfterFinds hides the element for its first N lookups.
	AppearAfterFinds int
	// AppearAfterScrolls hides the element until N scroll gestures were issued.
	AppearAfterScrolls int
	// StaleFor makes the next N reads or clicks fail with a stale reference.
	StaleFor int
	// ClickErrs are returned by successive Click calls before clicks succeed.
	ClickErrs []error
	// PointerClickErr fails PointerClick.
	PointerClickErr error
	// SendKeysErr fails SendKeys.
	SendKeysErr error
	// OnClick runs after a successful click.
	OnClick func(d *Driver)

	id       string
	locator  core.Locator
	added    time.Time
	finds    int
	clicks   int
	parent   *Element
	children []*Element
}

// ID returns the element's remote id.
func (e *Element) ID() string { return e.id }

// Clicks returns how many clicks the element received.
func (e *Element) Clicks() int { return e.clicks }

// Call is one recorded driver invocation.
type Call struct {
	Method string
	Target string
}

// New creates a new mock driver.
func New(cfg Config) *Driver {
	if cfg.Platform == "" {
		cfg.Platform = "mock"
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = "mock-device"
	}
	return &Driver{
		Config:   cfg,
		elements: map[string]*Element{},
		byID:     map[string]*Element{},
	}
}

// Add registers el under loc and returns it. Displayed and Enabled default
// to true when the element is added with zero values for both.
func (d *Driver) Add(loc core.Locator, el *Element) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addLocked(loc, el)
}

// Visible registers a displayed, enabled element with text.
func (d *Driver) Visible(loc core.Locator, text string) *Element {
	return d.Add(loc, &Element{Text: text, Displayed: true, Enabled: true})
}

// AddSelect registers a select control with option children.
// The first option starts selected.
func (d *Driver) AddSelect(loc core.Locator, options ...string) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()

	sel := d.addLocked(loc, &Element{Displayed: true, Enabled: true})
	for i, text := range options {
		opt := &Element{Text: text, Displayed: true, Enabled: true, Selected: i == 0}
		opt.id = d.newID()
		opt.parent = sel
		opt.added = time.Now()
		d.byID[opt.id] = opt
		sel.children = append(sel.children, opt)
	}
	return sel
}

// Remove deletes the element registered under loc.
func (d *Driver) Remove(loc core.Locator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.elements[loc.Value]; ok {
		delete(d.byID, el.id)
		delete(d.elements, loc.Value)
	}
}

// Update mutates the element registered under loc while holding the lock.
func (d *Driver) Update(loc core.Locator, fn func(*Element)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.elements[loc.Value]; ok {
		fn(el)
	}
}

// Element returns the element registered under loc.
func (d *Driver) Element(loc core.Locator) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.elements[loc.Value]
}

func (d *Driver) addLocked(loc core.Locator, el *Element) *Element {
	if !el.Displayed && !el.Enabled && el.AppearAfter == 0 && el.AppearAfterFinds == 0 && el.AppearAfterScrolls == 0 {
		el.Displayed, el.Enabled = true, true
	}
	el.id = d.newID()
	el.locator = loc
	el.added = time.Now()
	d.elements[loc.Value] = el
	d.byID[el.id] = el
	return el
}

func (d *Driver) newID() string {
	d.nextID++
	return fmt.Sprintf("mock-%d", d.nextID)
}

func (d *Driver) record(method, target string) {
	d.calls = append(d.calls, Call{Method: method, Target: target})
	if d.Config.CallDelay > 0 {
		time.Sleep(d.Config.CallDelay)
	}
}

// Calls returns a copy of the recorded calls.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// Count returns how many times method was called.
func (d *Driver) Count(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Scrolls returns the number of scroll gestures issued.
func (d *Driver) Scrolls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scrolls
}

// ActiveText returns everything typed into the focused element.
func (d *Driver) ActiveText() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active.String()
}

// IsQuit reports whether Quit was called.
func (d *Driver) IsQuit() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.quit
}

func (d *Driver) present(el *Element) bool {
	if el.AppearAfter > 0 && time.Since(el.added) < el.AppearAfter {
		return false
	}
	if el.AppearAfterFinds > 0 && el.finds <= el.AppearAfterFinds {
		return false
	}
	if el.AppearAfterScrolls > 0 && d.scrolls < el.AppearAfterScrolls {
		return false
	}
	return true
}

func noSuchElement(loc core.Locator) error {
	return core.NewProtocolError(core.CodeNoSuchElement, "unable to locate "+loc.Describe())
}

func staleElement(id string) error {
	return core.NewProtocolError(core.CodeStaleElement, "element "+id+" is no longer attached")
}

func (d *Driver) lookup(id string) (*Element, error) {
	el, ok := d.byID[id]
	if !ok {
		return nil, staleElement(id)
	}
	if el.StaleFor > 0 {
		el.StaleFor--
		return nil, staleElement(id)
	}
	return el, nil
}

// FindElement resolves a single element.
func (d *Driver) FindElement(loc core.Locator) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("FindElement", loc.Value)

	if d.Config.FindErr != nil {
		return "", d.Config.FindErr
	}
	el, ok := d.elements[loc.Value]
	if !ok {
		return "", noSuchElement(loc)
	}
	el.finds++
	if !d.present(el) {
		return "", noSuchElement(loc)
	}
	return el.id, nil
}

// FindElements resolves every matching element; none is not an error.
func (d *Driver) FindElements(loc core.Locator) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("FindElements", loc.Value)

	if d.Config.FindErr != nil {
		return nil, d.Config.FindErr
	}
	el, ok := d.elements[loc.Value]
	if !ok {
		return nil, nil
	}
	el.finds++
	if !d.present(el) {
		return nil, nil
	}
	return []string{el.id}, nil
}

// FindChildElements matches option children. "./option" returns all of
// them; any other locator matches options whose text appears quoted in it.
func (d *Driver) FindChildElements(parentID string, loc core.Locator) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("FindChildElements", parentID+" "+loc.Value)

	parent, err := d.lookup(parentID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, c := range parent.children {
		if loc.Value == "./option" || strings.Contains(loc.Value, "'"+c.Text+"'") {
			ids = append(ids, c.id)
		}
	}
	return ids, nil
}

// Click clicks an element, consuming queued ClickErrs first.
func (d *Driver) Click(elementID string) error {
	d.mu.Lock()
	d.record("Click", elementID)
	el, err := d.lookup(elementID)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if len(el.ClickErrs) > 0 {
		err := el.ClickErrs[0]
		el.ClickErrs = el.ClickErrs[1:]
		d.mu.Unlock()
		return err
	}
	hook := d.clickLocked(el)
	d.mu.Unlock()

	if hook != nil {
		hook(d)
	}
	return nil
}

// PointerClick clicks through the pointer path.
func (d *Driver) PointerClick(elementID string) error {
	d.mu.Lock()
	d.record("PointerClick", elementID)
	el, err := d.lookup(elementID)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if el.PointerClickErr != nil {
		d.mu.Unlock()
		return el.PointerClickErr
	}
	hook := d.clickLocked(el)
	d.mu.Unlock()

	if hook != nil {
		hook(d)
	}
	return nil
}

func (d *Driver) clickLocked(el *Element) func(*Driver) {
	el.clicks++
	if el.parent != nil {
		for _, sib := range el.parent.children {
			sib.Selected = sib == el
		}
	}
	return el.OnClick
}

// Clear empties an element's value.
func (d *Driver) Clear(elementID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Clear", elementID)

	el, err := d.lookup(elementID)
	if err != nil {
		return err
	}
	el.Value = ""
	return nil
}

// SendKeys appends text to an element's value.
func (d *Driver) SendKeys(elementID, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SendKeys", elementID)

	el, err := d.lookup(elementID)
	if err != nil {
		return err
	}
	if el.SendKeysErr != nil {
		return el.SendKeysErr
	}
	el.Value += text
	return nil
}

// SendKeysToActive types into the focused element.
func (d *Driver) SendKeysToActive(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("SendKeysToActive", text)
	d.active.WriteString(text)
	return nil
}

// Text returns an element's text.
func (d *Driver) Text(elementID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Text", elementID)

	el, err := d.lookup(elementID)
	if err != nil {
		return "", err
	}
	return el.Text, nil
}

// Attribute returns an attribute; "value" falls back to the typed value.
func (d *Driver) Attribute(elementID, name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Attribute", elementID+" "+name)

	el, err := d.lookup(elementID)
	if err != nil {
		return "", err
	}
	if v, ok := el.Attributes[name]; ok {
		return v, nil
	}
	if name == "value" {
		return el.Value, nil
	}
	return "", nil
}

// IsDisplayed reports the element's visibility.
func (d *Driver) IsDisplayed(elementID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("IsDisplayed", elementID)

	el, err := d.lookup(elementID)
	if err != nil {
		return false, err
	}
	return el.Displayed, nil
}

// IsEnabled reports whether the element accepts input.
func (d *Driver) IsEnabled(elementID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("IsEnabled", elementID)

	el, err := d.lookup(elementID)
	if err != nil {
		return false, err
	}
	return el.Enabled, nil
}

// IsSelected reports the element's selection state.
func (d *Driver) IsSelected(elementID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("IsSelected", elementID)

	el, err := d.lookup(elementID)
	if err != nil {
		return false, err
	}
	return el.Selected, nil
}

// ScrollIntoView records the request.
func (d *Driver) ScrollIntoView(elementID string, alignTop bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ScrollIntoView", fmt.Sprintf("%s top=%t", elementID, alignTop))

	_, err := d.lookup(elementID)
	return err
}

// Scroll issues one gesture.
func (d *Driver) Scroll(gesture core.ScrollGesture) error {
	d.mu.Lock()
	d.record("Scroll", string(gesture.Direction))
	if d.Config.ScrollErr != nil {
		d.mu.Unlock()
		return d.Config.ScrollErr
	}
	d.scrolls++
	n := d.scrolls
	hook := d.OnScroll
	d.mu.Unlock()

	if hook != nil {
		hook(d, n)
	}
	return nil
}

// ExecuteScript answers through Script.
func (d *Driver) ExecuteScript(script string, args []interface{}) (interface{}, error) {
	d.mu.Lock()
	d.record("ExecuteScript", script)
	fn := d.Script
	d.mu.Unlock()

	if fn != nil {
		return fn(script, args)
	}
	if strings.Contains(script, "document.readyState") {
		return "complete", nil
	}
	return nil, nil
}

// Navigate records the URL.
func (d *Driver) Navigate(url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Navigate", url)
	d.url = url
	return nil
}

// CurrentScreen returns Config.Screen or the last navigated URL.
func (d *Driver) CurrentScreen() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("CurrentScreen", "")
	if d.Config.Screen != "" {
		return d.Config.Screen, nil
	}
	return d.url, nil
}

// Screenshot returns a mock PNG image.
func (d *Driver) Screenshot() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Screenshot", "")
	if d.Config.ScreenshotErr != nil {
		return nil, d.Config.ScreenshotErr
	}
	// Minimal valid PNG (1x1 transparent pixel)
	return []byte{
		0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, // PNG signature
		0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52, // IHDR chunk
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
		0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41,
		0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
		0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
		0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
		0x42, 0x60, 0x82,
	}, nil
}

// PlatformInfo returns mock platform info.
func (d *Driver) PlatformInfo() *core.PlatformInfo {
	return &core.PlatformInfo{
		Platform:     d.Config.Platform,
		DeviceID:     d.Config.DeviceID,
		DeviceName:   "Mock Device",
		OSVersion:    "1.0",
		SessionID:    "mock-session",
		ScreenWidth:  1080,
		ScreenHeight: 2400,
	}
}

// Quit ends the session. Calls after Quit still succeed.
func (d *Driver) Quit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Quit", "")
	if d.Config.QuitErr != nil {
		return d.Config.QuitErr
	}
	d.quit = true
	return nil
}

var _ core.Driver = (*Driver)(nil)
