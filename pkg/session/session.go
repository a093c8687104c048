// Package session owns the automation sessions of one test process.
//
// A Manager caches at most one session per TargetKey and the handle of the
// local automation server. Every mutation of that state happens under the
// manager's single mutex, so concurrent callers asking for the same key get
// the same session and the server is started at most once.
package session

import (
	"strings"
	"time"

	"github.com/devicelab-dev/e2e-runner/pkg/config"
	"github.com/devicelab-dev/e2e-runner/pkg/core"
	"github.com/devicelab-dev/e2e-runner/pkg/element"
	"github.com/devicelab-dev/e2e-runner/pkg/metrics"
	"github.com/devicelab-dev/e2e-runner/pkg/report"
	"github.com/devicelab-dev/e2e-runner/pkg/wait"
)

// TargetKey identifies a session: the surface plus a browser kind or a
// mobile platform.
type TargetKey struct {
	Surface       core.Surface
	Discriminator string
}

// Key builds a normalized TargetKey.
func Key(surface core.Surface, discriminator string) TargetKey {
	return TargetKey{
		Surface:       core.Surface(strings.ToLower(strings.TrimSpace(string(surface)))),
		Discriminator: strings.ToLower(strings.TrimSpace(discriminator)),
	}
}

// WebKey is the key for a browser session.
func WebKey(browser string) TargetKey { return Key(core.SurfaceWeb, browser) }

// MobileKey is the key for a mobile session.
func MobileKey(platform string) TargetKey { return Key(core.SurfaceMobile, platform) }

// String renders the key as "surface:discriminator".
func (k TargetKey) String() string {
	return string(k.Surface) + ":" + k.Discriminator
}

// Session is a live automation session.
type Session struct {
	ID        string
	Key       TargetKey
	Driver    core.Driver
	CreatedAt time.Time
	// EntryPoint is the activity that launched the app, when known.
	EntryPoint string

	actions *element.Actions
}

// Actions returns the interaction primitives bound to this session.
func (s *Session) Actions() *element.Actions {
	return s.actions
}

func newActions(drv core.Driver, surface core.Surface, cfg *config.Properties, rep *report.Reporter, m *metrics.Metrics) *element.Actions {
	w := wait.ForSurface(cfg, surface)
	w.Reporter = rep
	w.Metrics = m
	return element.New(drv, w, rep, m)
}
