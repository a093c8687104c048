// Package launcher starts the mobile application by trying entry points in
// order until one opens.
//
// The candidate list is the preferred entry point (if any) followed by the
// fallbacks, with duplicates removed. Each candidate is tried once per
// Launch call; Launch keeps no state between calls.
package launcher

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/devicelab-dev/e2e-runner/pkg/config"
	"github.com/devicelab-dev/e2e-runner/pkg/core"
	"github.com/devicelab-dev/e2e-runner/pkg/device"
	"github.com/devicelab-dev/e2e-runner/pkg/driver/appium"
	"github.com/devicelab-dev/e2e-runner/pkg/metrics"
	"github.com/devicelab-dev/e2e-runner/pkg/report"
	"github.com/devicelab-dev/e2e-runner/pkg/server"
	"github.com/devicelab-dev/e2e-runner/pkg/wait"
)

const tracerName = "github.com/devicelab-dev/e2e-runner/pkg/launcher"

// Attempt records one entry point tried.
type Attempt = core.LaunchAttempt

// Config describes the application and where to launch it.
type Config struct {
	ServerURL           string
	Package             string
	PreferredEntryPoint string
	Fallbacks           []string
	DeviceName          string
	PlatformVersion     string
	// Settle is the pause after a successful open before the app is used.
	Settle time.Duration
}

// ConfigFromProperties reads the appium.android.* and launch.* keys.
func ConfigFromProperties(cfg *config.Properties, serverURL string) Config {
	return Config{
		ServerURL:           serverURL,
		Package:             cfg.String(config.AppiumAndroidPackage, config.DefaultAndroidPackage),
		PreferredEntryPoint: cfg.String(config.AppiumAndroidActivity, ""),
		Fallbacks:           cfg.List(config.AppiumAndroidFallbacks, config.DefaultAndroidFallbacks),
		DeviceName:          cfg.String(config.AppiumAndroidDevice, "Android Device"),
		PlatformVersion:     cfg.String(config.AppiumAndroidVersion, ""),
		Settle:              cfg.Seconds(config.LaunchSettleSeconds, config.DefaultSettleSeconds*time.Second),
	}
}

// OpenFunc opens a session with the given capabilities.
type OpenFunc func(ctx context.Context, serverURL string, caps map[string]interface{}) (core.Driver, error)

// Result is a successful launch.
type Result struct {
	Driver     core.Driver
	EntryPoint string
	Attempts   []Attempt
}

// Resolver launches the application.
type Resolver struct {
	Config Config
	// Open defaults to an Appium session.
	Open OpenFunc
	// Verify optionally checks the app after the settle delay. A failed
	// verification quits the session and counts as a failed attempt.
	Verify func(ctx context.Context, drv core.Driver) error
	// ServerProbe and DeviceProbe feed the failure diagnostics.
	ServerProbe func(ctx context.Context, serverURL string) bool
	DeviceProbe func(ctx context.Context) (bool, error)

	Reporter *report.Reporter
	Metrics  *metrics.Metrics
}

// New creates a resolver with the default Appium opener and probes.
func New(cfg Config, rep *report.Reporter, m *metrics.Metrics) *Resolver {
	return &Resolver{Config: cfg, Reporter: rep, Metrics: m}
}

// Candidates returns the entry points in the order they are tried.
func (r *Resolver) Candidates() []string {
	seen := map[string]bool{}
	var out []string
	add := func(ep string) {
		ep = strings.TrimSpace(ep)
		if ep == "" || seen[ep] {
			return
		}
		seen[ep] = true
		out = append(out, ep)
	}
	add(r.Config.PreferredEntryPoint)
	for _, ep := range r.Config.Fallbacks {
		add(ep)
	}
	return out
}

// Launch tries each candidate until one opens. baseCaps is not modified.
func (r *Resolver) Launch(ctx context.Context, baseCaps map[string]interface{}) (*Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "launcher.Launch",
		trace.WithAttributes(attribute.String("app.package", r.Config.Package)))
	defer span.End()

	rep := r.Reporter
	rep.Info("Connecting to mobile device and launching %s", r.Config.Package)
	if r.Config.PreferredEntryPoint != "" {
		rep.Info("Using app activity from config: %s", r.Config.PreferredEntryPoint)
	}

	candidates := r.Candidates()
	var attempts []Attempt
	for _, ep := range candidates {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return nil, fmt.Errorf("launch %s cancelled: %w", r.Config.Package, err)
		}

		drv, attempt := r.try(ctx, baseCaps, ep)
		attempts = append(attempts, attempt)
		r.Metrics.LaunchAttempt(attempt.Succeeded())
		if attempt.Succeeded() {
			rep.Info("Successfully launched %s with activity: %s", r.Config.Package, ep)
			span.SetAttributes(attribute.String("app.entry_point", ep), attribute.Int("launch.attempts", len(attempts)))
			return &Result{Driver: drv, EntryPoint: ep, Attempts: attempts}, nil
		}
		rep.Warn("Failed to launch with activity: %s", ep)
		rep.Warn("Error details: %v", attempt.Err)
	}

	exhausted := &core.LaunchExhaustedError{
		Attempts:    attempts,
		Diagnostics: r.diagnose(ctx),
	}
	rep.Error("%v", exhausted)
	rep.Info("Troubleshooting steps:")
	for i, step := range exhausted.Diagnostics.Troubleshooting() {
		rep.Info("%d. %s", i+1, step)
	}
	span.RecordError(exhausted)
	span.SetStatus(codes.Error, "all entry points failed")
	return nil, exhausted
}

func (r *Resolver) try(ctx context.Context, baseCaps map[string]interface{}, ep string) (core.Driver, Attempt) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "launcher.Attempt",
		trace.WithAttributes(attribute.String("app.entry_point", ep)))
	defer span.End()

	start := time.Now()
	caps := appium.CloneCapabilities(baseCaps)
	caps[appium.CapAppPackage] = r.Config.Package
	caps[appium.CapAppActivity] = ep

	fail := func(err error) (core.Driver, Attempt) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, Attempt{EntryPoint: ep, Err: err, Duration: time.Since(start)}
	}

	drv, err := r.open()(ctx, r.Config.ServerURL, caps)
	if err != nil {
		return fail(err)
	}

	if r.Config.Settle > 0 {
		if err := wait.Sleep(ctx, r.Config.Settle); err != nil {
			r.discard(drv, "interrupted settle")
			return fail(err)
		}
	}
	if r.Verify != nil {
		if err := r.Verify(ctx, drv); err != nil {
			r.discard(drv, "failed verification")
			return fail(fmt.Errorf("verify %s: %w", ep, err))
		}
	}
	return drv, Attempt{EntryPoint: ep, Duration: time.Since(start)}
}

// discard quits a session the attempt will not hand out. The attempt has
// already failed, so a quit error is only logged.
func (r *Resolver) discard(drv core.Driver, why string) {
	if err := drv.Quit(); err != nil {
		r.Reporter.Debug("quit after %s: %v", why, err)
	}
}

func (r *Resolver) open() OpenFunc {
	if r.Open != nil {
		return r.Open
	}
	return func(ctx context.Context, serverURL string, caps map[string]interface{}) (core.Driver, error) {
		d, err := appium.Open(serverURL, caps)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

func (r *Resolver) diagnose(ctx context.Context) core.LaunchDiagnostics {
	// Probes run even when ctx is done; they have their own short timeouts.
	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	d := core.LaunchDiagnostics{
		ServerURL:       r.Config.ServerURL,
		Package:         r.Config.Package,
		EntryPoints:     r.Candidates(),
		DeviceName:      r.Config.DeviceName,
		PlatformVersion: r.Config.PlatformVersion,
	}

	serverProbe := r.ServerProbe
	if serverProbe == nil {
		serverProbe = func(ctx context.Context, url string) bool {
			return server.StatusOK(ctx, &http.Client{Timeout: 2 * time.Second}, url)
		}
	}
	d.ServerReachable = serverProbe(probeCtx, r.Config.ServerURL)

	deviceProbe := r.DeviceProbe
	if deviceProbe == nil {
		adb := &device.ADB{}
		deviceProbe = adb.Connected
	}
	if ok, err := deviceProbe(probeCtx); err == nil {
		d.DeviceConnected = &ok
	} else {
		r.Reporter.Debug("device probe: %v", err)
	}
	return d
}
