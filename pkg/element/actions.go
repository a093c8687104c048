// Package element holds the interaction primitives. Each primitive waits for
// its element through pkg/wait, performs one action and translates remote
// errors into the core error taxonomy.
package element

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/devicelab-dev/e2e-runner/pkg/core"
	"github.com/devicelab-dev/e2e-runner/pkg/metrics"
	"github.com/devicelab-dev/e2e-runner/pkg/report"
	"github.com/devicelab-dev/e2e-runner/pkg/retry"
	"github.com/devicelab-dev/e2e-runner/pkg/wait"
)

// Defaults for the pacing knobs.
const (
	DefaultKeyDelay      = 100 * time.Millisecond
	DefaultTypeSettle    = 500 * time.Millisecond
	DefaultScrollSettle  = 500 * time.Millisecond
	DefaultScrollAttempt = 10
)

// WebDriver key codes used for select-all erase.
const (
	keyControl   = "\uE009"
	keyBackspace = "\uE003"
)

// Actions performs interactions against one session's driver.
// Actions must not be shared between goroutines driving the same session.
type Actions struct {
	Driver   core.Driver
	Waiter   *wait.Waiter
	Reporter *report.Reporter
	Metrics  *metrics.Metrics

	// KeyDelay is the pause between humanlike keystrokes.
	KeyDelay time.Duration
	// TypeSettle is the pause after the last humanlike keystroke.
	TypeSettle time.Duration
	// ScrollSettle is the pause after each scroll gesture.
	ScrollSettle time.Duration
	// Gesture is the scroll used by ScrollUntilVisible.
	Gesture core.ScrollGesture
}

// New returns actions with default pacing.
func New(drv core.Driver, w *wait.Waiter, rep *report.Reporter, m *metrics.Metrics) *Actions {
	if w == nil {
		w = wait.New(wait.DefaultWebTimeout)
	}
	return &Actions{
		Driver:       drv,
		Waiter:       w,
		Reporter:     rep,
		Metrics:      m,
		KeyDelay:     DefaultKeyDelay,
		TypeSettle:   DefaultTypeSettle,
		ScrollSettle: DefaultScrollSettle,
		Gesture:      core.DefaultScrollGesture(),
	}
}

// Find waits for loc to be present.
func (a *Actions) Find(ctx context.Context, loc core.Locator, desc string, opts ...wait.Option) (core.Element, error) {
	return a.Waiter.Await(ctx, a.Driver, loc, wait.Present, desc, opts...)
}

// WaitVisible waits for loc to be displayed.
func (a *Actions) WaitVisible(ctx context.Context, loc core.Locator, desc string, opts ...wait.Option) (core.Element, error) {
	return a.Waiter.Await(ctx, a.Driver, loc, wait.Visible, desc, opts...)
}

type clickOptions struct {
	scroll   bool
	alignTop bool
	wait     []wait.Option
}

// ClickOption tunes Click.
type ClickOption func(*clickOptions)

// AlignTop scrolls the element to the top of the viewport before clicking.
func AlignTop() ClickOption {
	return func(o *clickOptions) { o.scroll, o.alignTop = true, true }
}

// AlignBottom scrolls the element to the bottom of the viewport before clicking.
func AlignBottom() ClickOption {
	return func(o *clickOptions) { o.scroll, o.alignTop = true, false }
}

// NoScroll clicks without scrolling the element into view.
func NoScroll() ClickOption {
	return func(o *clickOptions) { o.scroll = false }
}

// ClickWait passes wait options to the clickable wait.
func ClickWait(opts ...wait.Option) ClickOption {
	return func(o *clickOptions) { o.wait = append(o.wait, opts...) }
}

// Click waits for loc to be clickable, scrolls it into view and clicks it.
// An intercepted click is retried once through the pointer input path.
func (a *Actions) Click(ctx context.Context, loc core.Locator, desc string, opts ...ClickOption) error {
	o := clickOptions{scroll: true, alignTop: true}
	for _, opt := range opts {
		opt(&o)
	}

	el, err := a.Waiter.Await(ctx, a.Driver, loc, wait.Clickable, desc, o.wait...)
	if err != nil {
		a.Metrics.Interaction("click", err)
		return err
	}

	if o.scroll {
		if err := a.Driver.ScrollIntoView(el.ID, o.alignTop); err != nil {
			a.Reporter.Debug("scroll %s into view: %v", desc, err)
		}
	}

	err = a.Driver.Click(el.ID)
	if errors.Is(err, core.ErrClickIntercepted) {
		a.Reporter.Warn("Click on %s intercepted, retrying with pointer input", desc)
		err = a.Driver.PointerClick(el.ID)
	}
	a.Metrics.Interaction("click", err)
	if err != nil {
		ie := &core.InteractionError{Action: "click", Description: desc, Cause: err}
		a.Reporter.Error("%s", ie.Error())
		return ie
	}
	a.Reporter.Info("Clicked on %s", desc)
	return nil
}

// Type waits for loc to be visible, clears it and sends text.
func (a *Actions) Type(ctx context.Context, loc core.Locator, text, desc string) error {
	err := a.typeInto(ctx, loc, text, desc, false)
	a.Metrics.Interaction("type", err)
	return err
}

// EnterData clicks the field first, clears it, erases any leftover value
// with select-all and then sends text. For widgets that ignore Clear.
func (a *Actions) EnterData(ctx context.Context, loc core.Locator, text, desc string) error {
	err := a.typeInto(ctx, loc, text, desc, true)
	a.Metrics.Interaction("enter", err)
	return err
}

func (a *Actions) typeInto(ctx context.Context, loc core.Locator, text, desc string, focus bool) error {
	action := "type"
	if focus {
		action = "enter data"
	}
	fail := func(err error) error {
		ie := &core.InteractionError{Action: action, Description: desc, Cause: err}
		a.Reporter.Error("%s", ie.Error())
		return ie
	}

	el, err := a.Waiter.Await(ctx, a.Driver, loc, wait.Visible, desc)
	if err != nil {
		return fail(err)
	}
	if focus {
		if err := a.Driver.Click(el.ID); err != nil {
			return fail(err)
		}
	}
	if err := a.Driver.Clear(el.ID); err != nil {
		return fail(err)
	}
	if focus {
		if leftover, err := a.Driver.Attribute(el.ID, "value"); err == nil && leftover != "" {
			if err := a.Driver.SendKeys(el.ID, keyControl+"a"+keyControl+keyBackspace); err != nil {
				return fail(err)
			}
		}
	}
	if err := a.Driver.SendKeys(el.ID, text); err != nil {
		return fail(err)
	}
	a.Reporter.Info("Entered text in %s", desc)
	return nil
}

// TypeHumanlike sends value one keystroke at a time to the focused element,
// pausing KeyDelay between keys and TypeSettle after the last one.
func (a *Actions) TypeHumanlike(ctx context.Context, value, desc string) error {
	for _, r := range value {
		if err := a.Driver.SendKeysToActive(string(r)); err != nil {
			ie := &core.InteractionError{Action: "type", Description: desc, Cause: err}
			a.Metrics.Interaction("type_humanlike", ie)
			a.Reporter.Error("%s", ie.Error())
			return ie
		}
		if err := wait.Sleep(ctx, a.keyDelay()); err != nil {
			return &core.InteractionError{Action: "type", Description: desc, Cause: err}
		}
	}
	if err := wait.Sleep(ctx, a.typeSettle()); err != nil {
		return &core.InteractionError{Action: "type", Description: desc, Cause: err}
	}
	a.Metrics.Interaction("type_humanlike", nil)
	a.Reporter.Info("Typed %d keys into %s", len([]rune(value)), desc)
	return nil
}

// Read returns the trimmed text of loc. It never fails: a missing element or
// a repeated stale reference yields "".
func (a *Actions) Read(ctx context.Context, loc core.Locator, desc string, opts ...wait.Option) string {
	if loc.IsZero() {
		a.Reporter.Warn("Cannot read %s: no locator", desc)
		return ""
	}
	el, err := a.Waiter.Await(ctx, a.Driver, loc, wait.Present, desc, opts...)
	if err != nil {
		a.Reporter.Warn("Cannot read %s: %v", desc, err)
		return ""
	}

	text, err := a.textOf(ctx, el)
	if err != nil {
		a.Reporter.Warn("Cannot read %s: %v", desc, err)
		return ""
	}
	return strings.TrimSpace(text)
}

// textOf reads text, re-resolving once after a stale reference.
func (a *Actions) textOf(ctx context.Context, el core.Element) (string, error) {
	id := el.ID
	return retry.Value(ctx, a.staleOnce(), core.IsStale, func() (string, error) {
		text, err := a.Driver.Text(id)
		if core.IsStale(err) {
			if fresh, ferr := a.Driver.FindElement(el.Locator); ferr == nil {
				id = fresh
			}
		}
		return text, err
	})
}

// IsDisplayed probes loc once without waiting. A stale reference is retried
// exactly once; any other failure reports false.
func (a *Actions) IsDisplayed(ctx context.Context, loc core.Locator) bool {
	if loc.IsZero() {
		return false
	}
	var shown bool
	err := retry.Do(ctx, a.staleOnce(), core.IsStale, func() error {
		id, err := a.Driver.FindElement(loc)
		if err != nil {
			return err
		}
		shown, err = a.Driver.IsDisplayed(id)
		return err
	})
	if err != nil {
		return false
	}
	return shown
}

func (a *Actions) staleOnce() retry.Policy {
	p := retry.Once()
	p.OnRetry = func(int, error, time.Duration) { a.Metrics.StaleRetry() }
	return p
}

// Select chooses the option whose visible text is optionText.
func (a *Actions) Select(ctx context.Context, loc core.Locator, optionText, desc string) error {
	err := a.selectOption(ctx, loc, optionText, desc)
	a.Metrics.Interaction("select", err)
	return err
}

func (a *Actions) selectOption(ctx context.Context, loc core.Locator, optionText, desc string) error {
	el, err := a.Waiter.Await(ctx, a.Driver, loc, wait.Visible, desc)
	if err != nil {
		return &core.InteractionError{Action: "select", Description: desc, Cause: err}
	}

	optLoc := core.XPath("./option[normalize-space(.)=" + xpathLiteral(strings.TrimSpace(optionText)) + "]")
	ids, err := a.Driver.FindChildElements(el.ID, optLoc)
	if err != nil {
		return &core.InteractionError{Action: "select", Description: desc, Cause: err}
	}
	if len(ids) == 0 {
		nf := &core.ElementNotFoundError{Description: fmt.Sprintf("option %q of %s", optionText, desc), Locator: optLoc}
		a.Reporter.Fail("%s", nf.Error())
		return nf
	}
	if err := a.Driver.Click(ids[0]); err != nil {
		ie := &core.InteractionError{Action: "select", Description: desc, Cause: err}
		a.Reporter.Error("%s", ie.Error())
		return ie
	}
	a.Reporter.Info("Selected %q in %s", optionText, desc)
	return nil
}

// SelectedOption returns the visible text of the selected option of loc.
func (a *Actions) SelectedOption(ctx context.Context, loc core.Locator, desc string) (string, error) {
	el, err := a.Waiter.Await(ctx, a.Driver, loc, wait.Present, desc)
	if err != nil {
		return "", err
	}
	ids, err := a.Driver.FindChildElements(el.ID, core.XPath("./option"))
	if err != nil {
		return "", &core.InteractionError{Action: "read selection", Description: desc, Cause: err}
	}
	for _, id := range ids {
		selected, err := a.Driver.IsSelected(id)
		if err != nil {
			return "", &core.InteractionError{Action: "read selection", Description: desc, Cause: err}
		}
		if selected {
			text, err := a.Driver.Text(id)
			if err != nil {
				return "", &core.InteractionError{Action: "read selection", Description: desc, Cause: err}
			}
			return strings.TrimSpace(text), nil
		}
	}
	return "", nil
}

// UploadFile sends an absolute file path to a file input. It never fails:
// an empty or missing path and driver errors are reported as warnings.
func (a *Actions) UploadFile(ctx context.Context, loc core.Locator, path, desc string) {
	if strings.TrimSpace(path) == "" {
		a.Reporter.Info("No file to upload for %s", desc)
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if _, err := os.Stat(abs); err != nil {
		a.Reporter.Warn("File not found for %s: %s", desc, abs)
		return
	}

	el, err := a.Waiter.Await(ctx, a.Driver, loc, wait.Present, desc)
	if err != nil {
		a.Reporter.Warn("Cannot upload to %s: %v", desc, err)
		return
	}
	err = a.Driver.SendKeys(el.ID, abs)
	a.Metrics.Interaction("upload", err)
	if err != nil {
		a.Reporter.Warn("Upload to %s failed: %v", desc, err)
		return
	}
	a.Reporter.Info("Uploaded %s to %s", filepath.Base(abs), desc)
}

// ScrollUntilVisible checks loc and issues one scroll gesture per failed
// check, up to maxAttempts gestures, with a final check after the last one.
// maxAttempts <= 0 uses DefaultScrollAttempt.
func (a *Actions) ScrollUntilVisible(ctx context.Context, loc core.Locator, maxAttempts int, desc string) (core.Element, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultScrollAttempt
	}
	if loc.IsZero() {
		return core.Element{}, &core.ElementNotFoundError{Description: desc, Locator: loc}
	}

	gestures := 0
	var found string
	ok, err := retry.Until(ctx, retry.Constant(uint(maxAttempts+1), a.scrollSettle()), func() (bool, error) {
		id, visible, err := wait.Check(a.Driver, loc, wait.Visible)
		if err != nil && !wait.IsTransient(err) {
			return false, err
		}
		if err == nil && visible {
			found = id
			return true, nil
		}
		if gestures >= maxAttempts {
			return false, nil
		}
		if err := a.Driver.Scroll(a.gesture()); err != nil {
			return false, err
		}
		gestures++
		a.Metrics.ScrollGesture()
		a.Reporter.Debug("Scrolled %d/%d looking for %s", gestures, maxAttempts, desc)
		return false, nil
	})
	if err != nil {
		ie := &core.InteractionError{Action: "scroll to", Description: desc, Cause: err}
		a.Reporter.Error("%s", ie.Error())
		return core.Element{}, ie
	}
	if !ok {
		se := &core.ScrollExhaustedError{Description: desc, Locator: loc, Attempts: gestures}
		a.Reporter.Fail("%s", se.Error())
		return core.Element{}, se
	}
	a.Reporter.Info("%s visible after %d scroll gestures", desc, gestures)
	return core.Element{ID: found, Locator: loc, Description: desc}, nil
}

// Navigate loads url in the session.
func (a *Actions) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.Driver.Navigate(url); err != nil {
		ie := &core.InteractionError{Action: "navigate", Description: url, Cause: err}
		a.Reporter.Error("%s", ie.Error())
		return ie
	}
	a.Reporter.Info("Navigated to %s", url)
	return nil
}

// WaitForPageLoad waits for document.readyState to become "complete".
func (a *Actions) WaitForPageLoad(ctx context.Context, opts ...wait.Option) error {
	return a.Waiter.Until(ctx, "page load", func() (bool, error) {
		state, err := a.Driver.ExecuteScript("return document.readyState", nil)
		if err != nil {
			return false, err
		}
		return fmt.Sprint(state) == "complete", nil
	}, opts...)
}

// Pause sleeps for d unless ctx ends first.
func (a *Actions) Pause(ctx context.Context, d time.Duration) error {
	return wait.Sleep(ctx, d)
}

func (a *Actions) keyDelay() time.Duration {
	if a.KeyDelay > 0 {
		return a.KeyDelay
	}
	return DefaultKeyDelay
}

func (a *Actions) typeSettle() time.Duration {
	if a.TypeSettle > 0 {
		return a.TypeSettle
	}
	return DefaultTypeSettle
}

func (a *Actions) scrollSettle() time.Duration {
	if a.ScrollSettle > 0 {
		return a.ScrollSettle
	}
	return DefaultScrollSettle
}

func (a *Actions) gesture() core.ScrollGesture {
	if a.Gesture.Direction == "" {
		return core.DefaultScrollGesture()
	}
	return a.Gesture
}

// xpathLiteral quotes s for use inside an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
