package webdriver

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tebeka/selenium"

	"github.com/devicelab-dev/e2e-runner/pkg/core"
	"github.com/devicelab-dev/e2e-runner/pkg/logger"
)

// Legacy JSON wire protocol status codes still sent by older drivers.
const (
	legacyNoSuchElement = 7
	legacyStaleElement  = 10
)

// Driver adapts a selenium.WebDriver to core.Driver.
//
// Element ids handed out by the adapter are opaque handles. Handles are
// dropped on navigation, so a handle from the previous page reads as stale.
// Repeating a lookup also drops the handles its previous run produced, so
// polling does not grow the handle table.
type Driver struct {
	wd        selenium.WebDriver
	browser   Browser
	serverURL string
	stop      func() error

	mu       sync.Mutex
	elements map[string]selenium.WebElement
	lookups  map[string][]string // lookup key -> handles from its last run
	quit     bool
}

func newDriver(wd selenium.WebDriver, browser Browser, serverURL string, stop func() error) *Driver {
	return &Driver{
		wd:        wd,
		browser:   browser,
		serverURL: serverURL,
		stop:      stop,
		elements:  map[string]selenium.WebElement{},
		lookups:   map[string][]string{},
	}
}

func (d *Driver) configure(opts Options) error {
	if opts.PageLoad > 0 {
		if err := d.wd.SetPageLoadTimeout(time.Duration(opts.PageLoad) * time.Second); err != nil {
			return mapError(err)
		}
	}
	if err := d.wd.SetImplicitWaitTimeout(time.Duration(opts.ImplicitWait) * time.Second); err != nil {
		return mapError(err)
	}
	if opts.Width > 0 && opts.Height > 0 {
		if err := d.wd.ResizeWindow("", opts.Width, opts.Height); err != nil {
			logger.Warn("resize window to %dx%d: %v", opts.Width, opts.Height, err)
		}
		return nil
	}
	if err := d.wd.MaximizeWindow(""); err != nil {
		// Headless and some remote grids cannot maximize.
		logger.Debug("maximize window: %v", err)
	}
	return nil
}

// Browser returns the browser this session drives.
func (d *Driver) Browser() Browser {
	return d.browser
}

const (
	lookupOne      = "one"
	lookupAll      = "all"
	lookupChildren = "children"
)

func lookupKey(kind, parentID string, loc core.Locator) string {
	return kind + "\x00" + parentID + "\x00" + loc.Strategy + "\x00" + loc.Value
}

// register stores wes as the current result of lookup and drops the handles
// from its previous run.
func (d *Driver) register(lookup string, wes ...selenium.WebElement) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropLocked(lookup)
	ids := make([]string, 0, len(wes))
	for _, we := range wes {
		id := uuid.NewString()
		d.elements[id] = we
		ids = append(ids, id)
	}
	if len(ids) > 0 {
		d.lookups[lookup] = ids
	}
	return ids
}

// dropLocked forgets the handles of lookup and of every child lookup made
// under them.
func (d *Driver) dropLocked(lookup string) {
	ids := d.lookups[lookup]
	delete(d.lookups, lookup)
	for _, id := range ids {
		delete(d.elements, id)
		prefix := lookupChildren + "\x00" + id + "\x00"
		for key := range d.lookups {
			if strings.HasPrefix(key, prefix) {
				d.dropLocked(key)
			}
		}
	}
}

func (d *Driver) resetHandlesLocked() {
	d.elements = map[string]selenium.WebElement{}
	d.lookups = map[string][]string{}
}

func (d *Driver) element(id string) (selenium.WebElement, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	we, ok := d.elements[id]
	if !ok {
		return nil, core.NewProtocolError(core.CodeStaleElement, "unknown element handle "+id)
	}
	return we, nil
}

func (d *Driver) FindElement(loc core.Locator) (string, error) {
	we, err := d.wd.FindElement(loc.Strategy, loc.Value)
	if err != nil {
		return "", mapError(err)
	}
	return d.register(lookupKey(lookupOne, "", loc), we)[0], nil
}

func (d *Driver) FindElements(loc core.Locator) ([]string, error) {
	wes, err := d.wd.FindElements(loc.Strategy, loc.Value)
	if err != nil {
		if core.IsNotFound(mapError(err)) {
			return nil, nil
		}
		return nil, mapError(err)
	}
	return d.register(lookupKey(lookupAll, "", loc), wes...), nil
}

func (d *Driver) FindChildElements(parentID string, loc core.Locator) ([]string, error) {
	parent, err := d.element(parentID)
	if err != nil {
		return nil, err
	}
	wes, err := parent.FindElements(loc.Strategy, loc.Value)
	if err != nil {
		if core.IsNotFound(mapError(err)) {
			return nil, nil
		}
		return nil, mapError(err)
	}
	return d.register(lookupKey(lookupChildren, parentID, loc), wes...), nil
}

func (d *Driver) withElement(id string, fn func(selenium.WebElement) error) error {
	we, err := d.element(id)
	if err != nil {
		return err
	}
	return mapError(fn(we))
}

func (d *Driver) Click(elementID string) error {
	return d.withElement(elementID, func(we selenium.WebElement) error { return we.Click() })
}

// PointerClick clicks through the DOM, bypassing overlays that intercept
// the native click.
func (d *Driver) PointerClick(elementID string) error {
	return d.withElement(elementID, func(we selenium.WebElement) error {
		_, err := d.wd.ExecuteScript("arguments[0].click();", []interface{}{we})
		return err
	})
}

func (d *Driver) Clear(elementID string) error {
	return d.withElement(elementID, func(we selenium.WebElement) error { return we.Clear() })
}

func (d *Driver) SendKeys(elementID, text string) error {
	return d.withElement(elementID, func(we selenium.WebElement) error { return we.SendKeys(text) })
}

func (d *Driver) SendKeysToActive(text string) error {
	we, err := d.wd.ActiveElement()
	if err != nil {
		return mapError(err)
	}
	return mapError(we.SendKeys(text))
}

func (d *Driver) Text(elementID string) (string, error) {
	var text string
	err := d.withElement(elementID, func(we selenium.WebElement) error {
		var err error
		text, err = we.Text()
		return err
	})
	return text, err
}

func (d *Driver) Attribute(elementID, name string) (string, error) {
	var v string
	err := d.withElement(elementID, func(we selenium.WebElement) error {
		var err error
		v, err = we.GetAttribute(name)
		return err
	})
	return v, err
}

func (d *Driver) state(elementID string, fn func(selenium.WebElement) (bool, error)) (bool, error) {
	var v bool
	err := d.withElement(elementID, func(we selenium.WebElement) error {
		var err error
		v, err = fn(we)
		return err
	})
	return v, err
}

func (d *Driver) IsDisplayed(elementID string) (bool, error) {
	return d.state(elementID, selenium.WebElement.IsDisplayed)
}

func (d *Driver) IsEnabled(elementID string) (bool, error) {
	return d.state(elementID, selenium.WebElement.IsEnabled)
}

func (d *Driver) IsSelected(elementID string) (bool, error) {
	return d.state(elementID, selenium.WebElement.IsSelected)
}

func (d *Driver) ScrollIntoView(elementID string, alignTop bool) error {
	return d.withElement(elementID, func(we selenium.WebElement) error {
		_, err := d.wd.ExecuteScript("arguments[0].scrollIntoView(arguments[1]);", []interface{}{we, alignTop})
		return err
	})
}

// Scroll moves the window by Percent of the viewport height.
func (d *Driver) Scroll(gesture core.ScrollGesture) error {
	percent := gesture.Percent
	if percent <= 0 {
		percent = core.DefaultScrollGesture().Percent
	}
	if gesture.Direction == core.ScrollUp {
		percent = -percent
	}
	_, err := d.wd.ExecuteScript("window.scrollBy(0, arguments[0] * window.innerHeight);", []interface{}{percent})
	return mapError(err)
}

func (d *Driver) ExecuteScript(script string, args []interface{}) (interface{}, error) {
	if args == nil {
		args = []interface{}{}
	}
	v, err := d.wd.ExecuteScript(script, args)
	return v, mapError(err)
}

// Navigate loads url and invalidates every element handle.
func (d *Driver) Navigate(url string) error {
	if err := d.wd.Get(url); err != nil {
		return mapError(err)
	}
	d.mu.Lock()
	d.resetHandlesLocked()
	d.mu.Unlock()
	return nil
}

// CurrentScreen returns the current URL.
func (d *Driver) CurrentScreen() (string, error) {
	url, err := d.wd.CurrentURL()
	return url, mapError(err)
}

func (d *Driver) Screenshot() ([]byte, error) {
	data, err := d.wd.Screenshot()
	return data, mapError(err)
}

func (d *Driver) PlatformInfo() *core.PlatformInfo {
	return &core.PlatformInfo{
		Platform:   "web",
		DeviceName: string(d.browser),
		SessionID:  d.wd.SessionID(),
		ServerURL:  d.serverURL,
	}
}

// Quit ends the browser session and stops the local driver service, if any.
// Calling it twice is a no-op.
func (d *Driver) Quit() error {
	d.mu.Lock()
	if d.quit {
		d.mu.Unlock()
		return nil
	}
	d.quit = true
	d.resetHandlesLocked()
	d.mu.Unlock()

	err := mapError(d.wd.Quit())
	if d.stop != nil {
		if stopErr := d.stop(); stopErr != nil && err == nil {
			err = stopErr
		}
	}
	return err
}

// mapError converts selenium errors into core.ProtocolError so callers can
// classify them with errors.Is.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var se *selenium.Error
	if !errors.As(err, &se) {
		return err
	}
	code := se.Err
	if code == "" {
		switch se.LegacyCode {
		case legacyNoSuchElement:
			code = core.CodeNoSuchElement
		case legacyStaleElement:
			code = core.CodeStaleElement
		}
	}
	return core.NewProtocolError(code, se.Message)
}

var _ core.Driver = (*Driver)(nil)
