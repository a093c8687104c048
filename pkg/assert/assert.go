// Package assert reports test checks as pass/fail events.
//
// Soft checks (ElementDisplayed, CompareEquals with strict=false) record a
// failure and let the test continue. Hard checks return an error.
package assert

import (
	"context"
	"fmt"

	"github.com/devicelab-dev/e2e-runner/pkg/core"
	"github.com/devicelab-dev/e2e-runner/pkg/element"
	"github.com/devicelab-dev/e2e-runner/pkg/report"
	"github.com/devicelab-dev/e2e-runner/pkg/wait"
)

// MismatchError is a failed strict comparison.
type MismatchError struct {
	What     string
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("expected %s to be %q but was %q", e.What, e.Expected, e.Actual)
}

func (e *MismatchError) Category() core.ErrorCategory { return core.ErrCategoryAssertion }

// Check is one element that must be visible.
type Check struct {
	Description string
	Locator     core.Locator
}

// ElementDisplayed waits for loc to become visible and records a pass or
// fail event. It never returns an error.
func ElementDisplayed(ctx context.Context, a *element.Actions, desc string, loc core.Locator, opts ...wait.Option) bool {
	_, err := a.WaitVisible(ctx, loc, desc, opts...)
	if err != nil {
		a.Reporter.Fail("Element '%s' is NOT displayed on the page", desc)
		return false
	}
	a.Reporter.Pass("Element '%s' is displayed on the page", desc)
	return true
}

// Displayed is ElementDisplayed returning the wait error.
func Displayed(ctx context.Context, a *element.Actions, desc string, loc core.Locator, opts ...wait.Option) error {
	if _, err := a.WaitVisible(ctx, loc, desc, opts...); err != nil {
		a.Reporter.Fail("Element '%s' is NOT displayed on the page", desc)
		return err
	}
	a.Reporter.Pass("Element '%s' is displayed on the page", desc)
	return nil
}

// Precondition checks every element and returns a *core.PreconditionError
// naming all that were not visible. The first failure's cause is kept.
func Precondition(ctx context.Context, a *element.Actions, view string, checks ...Check) error {
	var missing []string
	var cause error
	for _, c := range checks {
		if err := Displayed(ctx, a, c.Description, c.Locator); err != nil {
			missing = append(missing, c.Description)
			if cause == nil {
				cause = err
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &core.PreconditionError{View: view, Missing: missing, Cause: cause}
}

// CompareEquals records whether actual equals expected. A mismatch is a fail
// event; with strict it is also logged as an error and returned.
func CompareEquals[T comparable](rep *report.Reporter, what string, expected, actual T, strict bool) error {
	if expected == actual {
		rep.Pass("%s: %v", what, actual)
		return nil
	}
	mismatch := &MismatchError{What: what, Expected: fmt.Sprint(expected), Actual: fmt.Sprint(actual)}
	if strict {
		rep.Error("Expected '%s' was :-'%v'. But actual is '%v'", what, expected, actual)
		return mismatch
	}
	rep.Fail("%s failed: expected %v, got %v", what, expected, actual)
	return nil
}
