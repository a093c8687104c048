package webdriver

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tebeka/selenium"

	"github.com/devicelab-dev/e2e-runner/pkg/config"
	"github.com/devicelab-dev/e2e-runner/pkg/core"
)

// fakeWD implements the parts of selenium.WebDriver the adapter uses.
type fakeWD struct {
	selenium.WebDriver

	elements map[string]*fakeWE
	scripts  []string
	args     [][]interface{}
	url      string
	active   *fakeWE
	quits    int
	pageLoad time.Duration
	implicit time.Duration
	maxed    bool
	resized  [2]int
}

func newFakeWD() *fakeWD {
	return &fakeWD{elements: map[string]*fakeWE{}, active: &fakeWE{}}
}

func (f *fakeWD) FindElement(by, value string) (selenium.WebElement, error) {
	if we, ok := f.elements[value]; ok {
		return we, nil
	}
	return nil, &selenium.Error{Err: "no such element", Message: "Unable to locate " + value}
}

func (f *fakeWD) FindElements(by, value string) ([]selenium.WebElement, error) {
	if we, ok := f.elements[value]; ok {
		return []selenium.WebElement{we}, nil
	}
	return nil, nil
}

func (f *fakeWD) ExecuteScript(script string, args []interface{}) (interface{}, error) {
	f.scripts = append(f.scripts, script)
	f.args = append(f.args, args)
	return "complete", nil
}

func (f *fakeWD) Get(url string) error { f.url = url; return nil }
func (f *fakeWD) CurrentURL() (string, error) { return f.url, nil }
func (f *fakeWD) Screenshot() ([]byte, error) { return []byte("png"), nil }
func (f *fakeWD) SessionID() string { return "wd-session" }
func (f *fakeWD) Quit() error { f.quits++; return nil }
func (f *fakeWD) ActiveElement() (selenium.WebElement, error) { return f.active, nil }
func (f *fakeWD) SetPageLoadTimeout(d time.Duration) error { f.pageLoad = d; return nil }
func (f *fakeWD) SetImplicitWaitTimeout(d time.Duration) error { f.implicit = d; return nil }
func (f *fakeWD) MaximizeWindow(name string) error { f.maxed = true; return nil }
func (f *fakeWD) ResizeWindow(name string, width, height int) error { f.resized = [2]int{width, height}; return nil }

// fakeWE implements the parts of selenium.WebElement the adapter uses.
type fakeWE struct {
	selenium.WebElement

	text      string
	typed     string
	displayed bool
	clicks    int
	clickErr  error
	children  []selenium.WebElement
}

func (e *fakeWE) Click() error {
	if e.clickErr != nil {
		return e.clickErr
	}
	e.clicks++
	return nil
}
func (e *fakeWE) Text() (string, error) { return e.text, nil }
func (e *fakeWE) SendKeys(keys string) error { e.typed += keys; return nil }
func (e *fakeWE) Clear() error { e.typed = ""; return nil }
func (e *fakeWE) IsDisplayed() (bool, error) { return e.displayed, nil }
func (e *fakeWE) IsEnabled() (bool, error) { return true, nil }
func (e *fakeWE) IsSelected() (bool, error) { return false, nil }
func (e *fakeWE) GetAttribute(name string) (string, error) {
	return name + "-value", nil
}
func (e *fakeWE) FindElements(by, value string) ([]selenium.WebElement, error) {
	return e.children, nil
}

func TestParseBrowser(t *testing.T) {
	assert.Equal(t, Chrome, ParseBrowser(""))
	assert.Equal(t, Firefox, ParseBrowser(" FireFox "))
	assert.Equal(t, Edge, ParseBrowser("edge"))
	assert.Equal(t, Safari, ParseBrowser("safari"))
	assert.Equal(t, Chrome, ParseBrowser("opera"))
}

func TestCapabilities(t *testing.T) {
	caps := Capabilities(Options{Browser: Chrome, Headless: true})
	assert.Equal(t, "chrome", caps["browserName"])
	chromeCaps := fmt.Sprint(caps["goog:chromeOptions"])
	assert.Contains(t, chromeCaps, "--headless=new")
	assert.Contains(t, chromeCaps, "--remote-allow-origins=*")

	caps = Capabilities(Options{Browser: Edge, Headless: true})
	assert.Equal(t, "MicrosoftEdge", caps["browserName"])
	edge := caps["ms:edgeOptions"].(map[string]interface{})
	assert.Contains(t, edge["args"], "--headless")

	caps = Capabilities(Options{Browser: Safari})
	assert.Equal(t, "safari", caps["browserName"])
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.New()
	cfg.Set(config.WebBrowser, "firefox")
	cfg.Set(config.WebHeadless, "true")
	cfg.Set(config.WebWindowWidth, "1280")
	cfg.Set(config.WebWindowHeight, "800")

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, Firefox, opts.Browser)
	assert.True(t, opts.Headless)
	assert.Equal(t, config.DefaultDriverPort, opts.DriverPort)
	assert.Equal(t, config.DefaultPageLoadSeconds, opts.PageLoad)
	assert.Equal(t, 0, opts.ImplicitWait)
	assert.Equal(t, 1280, opts.Width)
}

func stubOpen(t *testing.T, wd *fakeWD) (stopped *bool) {
	t.Helper()
	origRemote, origStart := newRemote, startLocalDriver
	t.Cleanup(func() { newRemote, startLocalDriver = origRemote, origStart })

	s := false
	newRemote = func(caps selenium.Capabilities, url string) (selenium.WebDriver, error) {
		return wd, nil
	}
	startLocalDriver = func(opts Options) (string, func() error, error) {
		return "http://localhost:9515", func() error { s = true; return nil }, nil
	}
	return &s
}

func TestOpenLocalConfiguresAndStopsService(t *testing.T) {
	wd := newFakeWD()
	stopped := stubOpen(t, wd)

	d, err := Open(Options{Browser: Chrome, PageLoad: 60, ImplicitWait: 0})
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, wd.pageLoad)
	assert.Equal(t, time.Duration(0), wd.implicit)
	assert.True(t, wd.maxed)
	assert.Equal(t, "http://localhost:9515", d.PlatformInfo().ServerURL)

	require.NoError(t, d.Quit())
	require.NoError(t, d.Quit())
	assert.Equal(t, 1, wd.quits)
	assert.True(t, *stopped)
}

func TestOpenFixedViewport(t *testing.T) {
	wd := newFakeWD()
	stubOpen(t, wd)

	_, err := Open(Options{Browser: Chrome, Width: 1280, Height: 800})
	require.NoError(t, err)
	assert.Equal(t, [2]int{1280, 800}, wd.resized)
	assert.False(t, wd.maxed)
}

func TestOpenSafariNeedsRemote(t *testing.T) {
	stubOpen(t, newFakeWD())
	_, err := Open(Options{Browser: Safari})
	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, config.WebRemoteURL, cfgErr.Key)
}

func TestOpenRemoteFailureStopsNothing(t *testing.T) {
	origRemote := newRemote
	t.Cleanup(func() { newRemote = origRemote })
	newRemote = func(caps selenium.Capabilities, url string) (selenium.WebDriver, error) {
		return nil, &selenium.Error{Err: "session not created", Message: "chrome not reachable"}
	}

	_, err := Open(Options{Browser: Chrome, RemoteURL: "http://grid:4444/wd/hub"})
	var pe *core.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, core.CodeSessionNotCreated, pe.Code)
}

func TestDriverElementRoundTrip(t *testing.T) {
	wd := newFakeWD()
	btn := &fakeWE{text: "Login", displayed: true}
	wd.elements["//button"] = btn
	d := newDriver(wd, Chrome, "http://localhost:9515", nil)

	id, err := d.FindElement(core.XPath("//button"))
	require.NoError(t, err)

	text, err := d.Text(id)
	require.NoError(t, err)
	assert.Equal(t, "Login", text)

	shown, err := d.IsDisplayed(id)
	require.NoError(t, err)
	assert.True(t, shown)

	require.NoError(t, d.SendKeys(id, "abc"))
	assert.Equal(t, "abc", btn.typed)

	v, err := d.Attribute(id, "value")
	require.NoError(t, err)
	assert.Equal(t, "value-value", v)

	require.NoError(t, d.Click(id))
	assert.Equal(t, 1, btn.clicks)
}

func TestDriverFindMissingIsNotFound(t *testing.T) {
	d := newDriver(newFakeWD(), Chrome, "", nil)
	_, err := d.FindElement(core.XPath("//missing"))
	assert.True(t, core.IsNotFound(err))

	ids, err := d.FindElements(core.XPath("//missing"))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDriverNavigateInvalidatesHandles(t *testing.T) {
	wd := newFakeWD()
	wd.elements["//a"] = &fakeWE{text: "link"}
	d := newDriver(wd, Chrome, "", nil)

	id, err := d.FindElement(core.XPath("//a"))
	require.NoError(t, err)
	require.NoError(t, d.Navigate("https://ctf.example.com/home"))

	_, err = d.Text(id)
	assert.True(t, core.IsStale(err))

	url, err := d.CurrentScreen()
	require.NoError(t, err)
	assert.Equal(t, "https://ctf.example.com/home", url)
}

func TestDriverRepeatedLookupsReplaceHandles(t *testing.T) {
	wd := newFakeWD()
	wd.elements["//div[@id='spinner']"] = &fakeWE{}
	wd.elements["//select"] = &fakeWE{children: []selenium.WebElement{&fakeWE{text: "Web"}, &fakeWE{text: "Crypto"}}}
	d := newDriver(wd, Chrome, "", nil)

	first, err := d.FindElement(core.XPath("//div[@id='spinner']"))
	require.NoError(t, err)
	var last string
	for i := 0; i < 100; i++ {
		last, err = d.FindElement(core.XPath("//div[@id='spinner']"))
		require.NoError(t, err)
	}
	assert.Len(t, d.elements, 1)
	_, err = d.Text(first)
	assert.True(t, core.IsStale(err))
	_, err = d.Text(last)
	assert.NoError(t, err)

	sel, err := d.FindElement(core.XPath("//select"))
	require.NoError(t, err)
	_, err = d.FindChildElements(sel, core.XPath("./option"))
	require.NoError(t, err)
	assert.Len(t, d.elements, 4)

	// A new lookup of the parent also drops the options found under it.
	_, err = d.FindElement(core.XPath("//select"))
	require.NoError(t, err)
	assert.Len(t, d.elements, 2)
	assert.Len(t, d.lookups, 2)
}

func TestDriverClickInterceptedMapsToSentinel(t *testing.T) {
	wd := newFakeWD()
	wd.elements["//button"] = &fakeWE{clickErr: &selenium.Error{Err: "element click intercepted", Message: "overlay"}}
	d := newDriver(wd, Chrome, "", nil)

	id, err := d.FindElement(core.XPath("//button"))
	require.NoError(t, err)
	err = d.Click(id)
	assert.True(t, errors.Is(err, core.ErrClickIntercepted))

	require.NoError(t, d.PointerClick(id))
	assert.Equal(t, "arguments[0].click();", wd.scripts[len(wd.scripts)-1])
}

func TestDriverScrollAndScrollIntoView(t *testing.T) {
	wd := newFakeWD()
	wd.elements["//footer"] = &fakeWE{}
	d := newDriver(wd, Chrome, "", nil)

	require.NoError(t, d.Scroll(core.ScrollGesture{Direction: core.ScrollUp, Percent: 0.5}))
	assert.Equal(t, -0.5, wd.args[0][0])

	id, err := d.FindElement(core.XPath("//footer"))
	require.NoError(t, err)
	require.NoError(t, d.ScrollIntoView(id, false))
	assert.Contains(t, wd.scripts[1], "scrollIntoView")
	assert.Equal(t, false, wd.args[1][1])
}

func TestDriverChildElementsAndActive(t *testing.T) {
	wd := newFakeWD()
	opt := &fakeWE{text: "Web"}
	wd.elements["//select"] = &fakeWE{children: []selenium.WebElement{opt}}
	d := newDriver(wd, Chrome, "", nil)

	sel, err := d.FindElement(core.XPath("//select"))
	require.NoError(t, err)
	ids, err := d.FindChildElements(sel, core.XPath("./option"))
	require.NoError(t, err)
	require.Len(t, ids, 1)
	text, err := d.Text(ids[0])
	require.NoError(t, err)
	assert.Equal(t, "Web", text)

	require.NoError(t, d.SendKeysToActive("x"))
	assert.Equal(t, "x", wd.active.typed)
}

func TestMapError(t *testing.T) {
	assert.Nil(t, mapError(nil))

	plain := errors.New("connection refused")
	assert.Equal(t, plain, mapError(plain))

	err := mapError(&selenium.Error{LegacyCode: legacyStaleElement, Message: "detached"})
	assert.True(t, core.IsStale(err))

	err = mapError(fmt.Errorf("wrapped: %w", &selenium.Error{Err: "no such element"}))
	assert.True(t, core.IsNotFound(err))
}
