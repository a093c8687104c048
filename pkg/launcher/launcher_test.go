package launcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/e2e-runner/pkg/config"
	"github.com/devicelab-dev/e2e-runner/pkg/core"
	"github.com/devicelab-dev/e2e-runner/pkg/driver/appium"
	"github.com/devicelab-dev/e2e-runner/pkg/driver/mock"
	"github.com/devicelab-dev/e2e-runner/pkg/metrics"
	"github.com/devicelab-dev/e2e-runner/pkg/report"
)

// fakeOpener succeeds only for the listed entry points and records the
// activity of every call.
type fakeOpener struct {
	succeed map[string]bool
	calls   []string
	caps    []map[string]interface{}
	drivers map[string]*mock.Driver
}

func newFakeOpener(ok ...string) *fakeOpener {
	f := &fakeOpener{succeed: map[string]bool{}, drivers: map[string]*mock.Driver{}}
	for _, ep := range ok {
		f.succeed[ep] = true
	}
	return f
}

func (f *fakeOpener) open(ctx context.Context, url string, caps map[string]interface{}) (core.Driver, error) {
	ep, _ := caps[appium.CapAppActivity].(string)
	f.calls = append(f.calls, ep)
	f.caps = append(f.caps, caps)
	if !f.succeed[ep] {
		return nil, core.NewProtocolError(core.CodeSessionNotCreated, "Activity "+ep+" does not exist")
	}
	d := mock.New(mock.Config{Platform: "android", Screen: ep})
	f.drivers[ep] = d
	return d, nil
}

func newResolver(cfg Config, f *fakeOpener) (*Resolver, *report.MemorySink, *metrics.Metrics) {
	sink := &report.MemorySink{}
	m := metrics.New()
	r := New(cfg, report.New(sink), m)
	r.Open = f.open
	r.ServerProbe = func(context.Context, string) bool { return false }
	r.DeviceProbe = func(context.Context) (bool, error) { return false, nil }
	return r, sink, m
}

func TestLaunchFallsThroughToSecondFallback(t *testing.T) {
	cfg := Config{
		ServerURL:           "http://127.0.0.1:4723/wd/hub",
		Package:             "com.example.app",
		PreferredEntryPoint: ".Broken",
		Fallbacks:           []string{".First", ".Second", ".Third"},
	}
	f := newFakeOpener(".Second", ".Third")
	r, _, m := newResolver(cfg, f)

	res, err := r.Launch(context.Background(), map[string]interface{}{"platformName": "Android"})
	require.NoError(t, err)

	assert.Equal(t, ".Second", res.EntryPoint)
	assert.Same(t, f.drivers[".Second"], res.Driver)
	assert.Equal(t, []string{".Broken", ".First", ".Second"}, f.calls)

	var failed, ok int
	for _, a := range res.Attempts {
		if a.Succeeded() {
			ok++
		} else {
			failed++
		}
	}
	assert.Equal(t, 2, failed)
	assert.Equal(t, 1, ok)

	summary := m.Summary()
	assert.Equal(t, 2.0, summary["launch_attempts_total{outcome=failure}"])
	assert.Equal(t, 1.0, summary["launch_attempts_total{outcome=ok}"])
}

func TestLaunchDoesNotModifyBaseCaps(t *testing.T) {
	f := newFakeOpener(".Main")
	r, _, _ := newResolver(Config{Package: "com.example.app", Fallbacks: []string{".Main"}}, f)
	base := map[string]interface{}{"platformName": "Android"}

	_, err := r.Launch(context.Background(), base)
	require.NoError(t, err)

	assert.NotContains(t, base, appium.CapAppActivity)
	require.Len(t, f.caps, 1)
	assert.Equal(t, "com.example.app", f.caps[0][appium.CapAppPackage])
	assert.Equal(t, "Android", f.caps[0]["platformName"])
}

func TestCandidates(t *testing.T) {
	tests := []struct {
		name      string
		preferred string
		fallbacks []string
		want      []string
	}{
		{"no preferred", "", []string{".A", ".B"}, []string{".A", ".B"}},
		{"preferred first", ".B", []string{".A", ".B"}, []string{".B", ".A"}},
		{"duplicates removed", ".A", []string{".A", " .A ", ".C", ".C"}, []string{".A", ".C"}},
		{"empty", "", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Resolver{Config: Config{PreferredEntryPoint: tt.preferred, Fallbacks: tt.fallbacks}}
			assert.Equal(t, tt.want, r.Candidates())
		})
	}
}

func TestLaunchPreferredNotRetried(t *testing.T) {
	f := newFakeOpener(".Other")
	r, _, _ := newResolver(Config{
		PreferredEntryPoint: ".Main",
		Fallbacks:           []string{".Main", ".Other"},
	}, f)

	res, err := r.Launch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ".Other", res.EntryPoint)
	assert.Equal(t, []string{".Main", ".Other"}, f.calls)
}

func TestLaunchExhausted(t *testing.T) {
	f := newFakeOpener()
	r, sink, _ := newResolver(Config{
		ServerURL:           "http://127.0.0.1:4723/wd/hub",
		Package:             "com.example.app",
		PreferredEntryPoint: ".Main",
		Fallbacks:           []string{".Alt"},
		DeviceName:          "Pixel",
		PlatformVersion:     "14",
	}, f)

	res, err := r.Launch(context.Background(), nil)
	require.Error(t, err)
	assert.Nil(t, res)

	var exhausted *core.LaunchExhaustedError
	require.True(t, errors.As(err, &exhausted))
	require.Len(t, exhausted.Attempts, 2)
	assert.Equal(t, ".Main", exhausted.Attempts[0].EntryPoint)
	assert.Equal(t, ".Alt", exhausted.Attempts[1].EntryPoint)
	for _, a := range exhausted.Attempts {
		assert.Error(t, a.Err)
	}

	d := exhausted.Diagnostics
	assert.False(t, d.ServerReachable)
	require.NotNil(t, d.DeviceConnected)
	assert.False(t, *d.DeviceConnected)
	assert.Equal(t, "com.example.app", d.Package)
	assert.Equal(t, []string{".Main", ".Alt"}, d.EntryPoints)
	assert.Equal(t, "Pixel", d.DeviceName)

	assert.True(t, errors.Is(err, &core.ProtocolError{Code: core.CodeSessionNotCreated}))
	assert.Equal(t, core.ErrCategoryApp, core.CategoryOf(err))
	assert.NotEmpty(t, sink.Messages(report.LevelError))
	assert.Contains(t, sink.Messages(report.LevelInfo), "Troubleshooting steps:")
}

func TestLaunchNoCandidates(t *testing.T) {
	f := newFakeOpener()
	r, _, _ := newResolver(Config{Package: "com.example.app"}, f)

	_, err := r.Launch(context.Background(), nil)
	var exhausted *core.LaunchExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Empty(t, exhausted.Attempts)
	assert.Empty(t, f.calls)
}

func TestLaunchDeviceProbeError(t *testing.T) {
	f := newFakeOpener()
	r, _, _ := newResolver(Config{Fallbacks: []string{".Main"}}, f)
	r.DeviceProbe = func(context.Context) (bool, error) { return false, errors.New("adb not found") }

	_, err := r.Launch(context.Background(), nil)
	var exhausted *core.LaunchExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Nil(t, exhausted.Diagnostics.DeviceConnected)
}

func TestLaunchVerifyFailureQuitsDriver(t *testing.T) {
	f := newFakeOpener(".Main", ".Alt")
	r, _, _ := newResolver(Config{Fallbacks: []string{".Main", ".Alt"}}, f)
	r.Verify = func(ctx context.Context, drv core.Driver) error {
		screen, err := drv.CurrentScreen()
		if err != nil {
			return err
		}
		if screen != ".Alt" {
			return fmt.Errorf("unexpected screen %s", screen)
		}
		return nil
	}

	res, err := r.Launch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ".Alt", res.EntryPoint)
	require.Len(t, res.Attempts, 2)
	assert.ErrorContains(t, res.Attempts[0].Err, "unexpected screen .Main")
	assert.True(t, f.drivers[".Main"].IsQuit())
	assert.False(t, f.drivers[".Alt"].IsQuit())
}

func TestLaunchDiscardLogsQuitFailure(t *testing.T) {
	gone := errors.New("session already gone")
	tests := []struct {
		name   string
		settle time.Duration
		verify func(context.Context, core.Driver) error
		cancel bool
		want   string
	}{
		{
			name:   "interrupted settle",
			settle: time.Hour,
			cancel: true,
			want:   "quit after interrupted settle: session already gone",
		},
		{
			name:   "failed verification",
			verify: func(context.Context, core.Driver) error { return errors.New("wrong screen") },
			want:   "quit after failed verification: session already gone",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			r, sink, _ := newResolver(Config{Fallbacks: []string{".Main"}, Settle: tt.settle}, newFakeOpener())
			r.Verify = tt.verify
			r.Open = func(context.Context, string, map[string]interface{}) (core.Driver, error) {
				if tt.cancel {
					cancel()
				}
				return mock.New(mock.Config{QuitErr: gone}), nil
			}

			_, err := r.Launch(ctx, nil)
			require.Error(t, err)
			assert.Contains(t, sink.Messages(report.LevelDebug), tt.want)
		})
	}
}

func TestLaunchSettles(t *testing.T) {
	f := newFakeOpener(".Main")
	r, _, _ := newResolver(Config{Fallbacks: []string{".Main"}, Settle: 50 * time.Millisecond}, f)

	start := time.Now()
	_, err := r.Launch(context.Background(), nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLaunchCancelled(t *testing.T) {
	f := newFakeOpener()
	r, _, _ := newResolver(Config{Fallbacks: []string{".Main", ".Alt"}}, f)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Launch(ctx, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, f.calls)
}

func TestLaunchStatelessAcrossCalls(t *testing.T) {
	f := newFakeOpener(".Alt")
	r, _, _ := newResolver(Config{PreferredEntryPoint: ".Main", Fallbacks: []string{".Alt"}}, f)

	_, err := r.Launch(context.Background(), nil)
	require.NoError(t, err)
	_, err = r.Launch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{".Main", ".Alt", ".Main", ".Alt"}, f.calls)
}

func TestConfigFromProperties(t *testing.T) {
	cfg := config.New()
	cfg.Set(config.AppiumAndroidActivity, ".Splash")
	cfg.Set(config.LaunchSettleSeconds, "2")

	c := ConfigFromProperties(cfg, "http://host:4723/wd/hub")
	assert.Equal(t, "http://host:4723/wd/hub", c.ServerURL)
	assert.Equal(t, config.DefaultAndroidPackage, c.Package)
	assert.Equal(t, ".Splash", c.PreferredEntryPoint)
	assert.Equal(t, config.DefaultAndroidFallbacks, c.Fallbacks)
	assert.Equal(t, 2*time.Second, c.Settle)
}
