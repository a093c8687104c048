package mobile

import (
	"context"

	"github.com/devicelab-dev/e2e-runner/pkg/assert"
)

var (
	instrumentView = resourceID("instrumentView")
	priceView      = resourceID("priceView")
	nameView       = resourceID("nameView")
	percentView    = resourceID("percentView")
	sparkLine      = resourceID("sparkLine")
)

// TradeScreen lists instruments with their quotes.
type TradeScreen struct {
	s Session
}

// VerifyValuesDisplayed records a check for each quote field of the first
// instrument. It returns false when any field is missing.
func (t *TradeScreen) VerifyValuesDisplayed(ctx context.Context) bool {
	a := t.s.Actions()
	a.Reporter.Info("Checking if Trade screen is properly displayed")
	if !assert.ElementDisplayed(ctx, a, "instrumentView", instrumentView) {
		return false
	}
	ok := true
	for _, c := range []assert.Check{
		{Description: "priceView", Locator: priceView},
		{Description: "nameView", Locator: nameView},
		{Description: "percentView", Locator: percentView},
	} {
		if !assert.ElementDisplayed(ctx, a, c.Description, c.Locator) {
			ok = false
		}
	}
	if !a.IsDisplayed(ctx, sparkLine) {
		a.Reporter.Debug("sparkline graph not rendered")
	}
	return ok
}
