package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/e2e-runner/pkg/config"
	"github.com/devicelab-dev/e2e-runner/pkg/core"
	"github.com/devicelab-dev/e2e-runner/pkg/driver/appium"
	"github.com/devicelab-dev/e2e-runner/pkg/driver/mock"
	"github.com/devicelab-dev/e2e-runner/pkg/driver/webdriver"
	"github.com/devicelab-dev/e2e-runner/pkg/launcher"
	"github.com/devicelab-dev/e2e-runner/pkg/metrics"
	"github.com/devicelab-dev/e2e-runner/pkg/report"
)

type fakeServer struct {
	mu      sync.Mutex
	running bool
	starts  int
	stops   int
	err     error
}

func (s *fakeServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	if s.err != nil {
		return s.err
	}
	s.running = true
	return nil
}

func (s *fakeServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.running = false
	return nil
}

func (s *fakeServer) URL() string { return "http://127.0.0.1:4723/wd/hub" }

func (s *fakeServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// countingBuilder hands out a new mock driver per call.
type countingBuilder struct {
	calls   atomic.Int32
	err     error
	drivers []*mock.Driver
	mu      sync.Mutex
}

func (b *countingBuilder) Build(ctx context.Context, key TargetKey, env Env) (*Built, error) {
	b.calls.Add(1)
	if b.err != nil {
		return nil, b.err
	}
	d := mock.New(mock.Config{Platform: key.Discriminator})
	b.mu.Lock()
	b.drivers = append(b.drivers, d)
	b.mu.Unlock()
	return &Built{Driver: d}, nil
}

func newTestManager(t *testing.T, cfg *config.Properties, opts ...Option) (*Manager, *report.MemorySink, *fakeServer) {
	t.Helper()
	if cfg == nil {
		cfg = config.New()
	}
	sink := &report.MemorySink{}
	srv := &fakeServer{}
	all := append([]Option{WithReporter(report.New(sink)), WithServer(srv), WithMetrics(metrics.New())}, opts...)
	return NewManager(cfg, all...), sink, srv
}

func TestKeyNormalization(t *testing.T) {
	assert.Equal(t, WebKey("chrome"), Key(" WEB ", " Chrome "))
	assert.Equal(t, "mobile:android", MobileKey("Android").String())
}

func TestGetSessionIsIdempotent(t *testing.T) {
	b := &countingBuilder{}
	m, _, _ := newTestManager(t, nil, WithBuilder(core.SurfaceWeb, b))
	ctx := context.Background()

	s1, err := m.GetSession(ctx, WebKey("chrome"))
	require.NoError(t, err)
	s2, err := m.GetSession(ctx, WebKey("CHROME"))
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Equal(t, int32(1), b.calls.Load())
	assert.NotEmpty(t, s1.ID)
	assert.NotNil(t, s1.Actions())
	assert.Equal(t, WebKey("chrome"), s1.Key)
}

func TestGetSessionConcurrentCreatesOnce(t *testing.T) {
	b := &countingBuilder{}
	m, _, _ := newTestManager(t, nil, WithBuilder(core.SurfaceWeb, b))

	const n = 16
	sessions := make([]*Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.GetSession(context.Background(), WebKey("firefox"))
			if err == nil {
				sessions[i] = s
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), b.calls.Load())
	for _, s := range sessions {
		assert.Same(t, sessions[0], s)
	}
}

func TestDistinctKeysGetDistinctSessions(t *testing.T) {
	b := &countingBuilder{}
	m, _, _ := newTestManager(t, nil, WithBuilder(core.SurfaceWeb, b))

	chrome, err := m.GetSession(context.Background(), WebKey("chrome"))
	require.NoError(t, err)
	firefox, err := m.GetSession(context.Background(), WebKey("firefox"))
	require.NoError(t, err)

	assert.NotSame(t, chrome, firefox)
	sessions := m.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "web:chrome", sessions[0].Key.String())
}

func TestGetSessionFailure(t *testing.T) {
	cause := errors.New("chromedriver not found")
	b := &countingBuilder{err: cause}
	m, sink, _ := newTestManager(t, nil, WithBuilder(core.SurfaceWeb, b))

	s, err := m.GetSession(context.Background(), WebKey("chrome"))
	assert.Nil(t, s)

	var sce *core.SessionCreationError
	require.True(t, errors.As(err, &sce))
	assert.Equal(t, "web:chrome", sce.Target)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, sink.Count(report.LevelError))
	assert.Empty(t, m.Sessions())

	// A failed creation is not cached.
	_, err = m.GetSession(context.Background(), WebKey("chrome"))
	require.Error(t, err)
	assert.Equal(t, int32(2), b.calls.Load())
}

func TestGetSessionNilDriver(t *testing.T) {
	m, _, _ := newTestManager(t, nil, WithBuilder(core.SurfaceWeb, BuilderFunc(
		func(context.Context, TargetKey, Env) (*Built, error) { return &Built{}, nil })))

	_, err := m.GetSession(context.Background(), WebKey("chrome"))
	var sce *core.SessionCreationError
	assert.True(t, errors.As(err, &sce))
}

func TestUnknownSurface(t *testing.T) {
	m, _, _ := newTestManager(t, nil)
	_, err := m.GetSession(context.Background(), Key("desktop", "x"))
	assert.ErrorContains(t, err, "no builder")
}

func TestDisposeSession(t *testing.T) {
	b := &countingBuilder{}
	m, _, _ := newTestManager(t, nil, WithBuilder(core.SurfaceWeb, b))

	// Unknown key is a no-op.
	m.DisposeSession(WebKey("edge"))

	s, err := m.GetSession(context.Background(), WebKey("chrome"))
	require.NoError(t, err)
	m.DisposeSession(WebKey("chrome"))
	assert.True(t, b.drivers[0].IsQuit())
	assert.Empty(t, m.Sessions())

	s2, err := m.GetSession(context.Background(), WebKey("chrome"))
	require.NoError(t, err)
	assert.NotSame(t, s, s2)
}

func TestDisposeToleratesDeadSession(t *testing.T) {
	dead := mock.New(mock.Config{QuitErr: core.ErrInvalidSession})
	m, sink, _ := newTestManager(t, nil, WithBuilder(core.SurfaceWeb, BuilderFunc(
		func(context.Context, TargetKey, Env) (*Built, error) { return &Built{Driver: dead}, nil })))

	_, err := m.GetSession(context.Background(), WebKey("chrome"))
	require.NoError(t, err)

	m.DisposeSession(WebKey("chrome"))
	assert.Empty(t, m.Sessions())
	assert.GreaterOrEqual(t, sink.Count(report.LevelWarn), 1)
}

func TestDisposeAllStopsStartedServer(t *testing.T) {
	cfg := config.New()
	cfg.Set(config.AppiumPlatform, "ios")
	mob := &MobileBuilder{Open: func(ctx context.Context, url string, caps map[string]interface{}) (core.Driver, error) {
		return mock.New(mock.Config{Platform: "ios"}), nil
	}}
	web := &countingBuilder{}
	m, _, srv := newTestManager(t, cfg, WithBuilder(core.SurfaceMobile, mob), WithBuilder(core.SurfaceWeb, web))

	ws, err := m.Web(context.Background())
	require.NoError(t, err)
	ms, err := m.Mobile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, srv.starts)

	m.DisposeAll()
	assert.Empty(t, m.Sessions())
	assert.True(t, ws.Driver.(*mock.Driver).IsQuit())
	assert.True(t, ms.Driver.(*mock.Driver).IsQuit())
	assert.Equal(t, 1, srv.stops)

	// Nothing left to stop.
	m.DisposeAll()
	assert.Equal(t, 1, srv.stops)
}

func TestDisposeAllWithoutServer(t *testing.T) {
	m, _, srv := newTestManager(t, nil, WithBuilder(core.SurfaceWeb, &countingBuilder{}))
	_, err := m.Web(context.Background())
	require.NoError(t, err)
	m.DisposeAll()
	assert.Equal(t, 0, srv.stops)
}

func TestMobileLocalServerStartedOnce(t *testing.T) {
	var urls []string
	mob := &MobileBuilder{Open: func(ctx context.Context, url string, caps map[string]interface{}) (core.Driver, error) {
		urls = append(urls, url)
		return mock.New(mock.Config{}), nil
	}}
	cfg := config.New()
	cfg.Set(config.LaunchSettleSeconds, "0")
	m, _, srv := newTestManager(t, cfg, WithBuilder(core.SurfaceMobile, mob))

	_, err := m.GetSession(context.Background(), MobileKey("ios"))
	require.NoError(t, err)
	_, err = m.GetSession(context.Background(), MobileKey("android"))
	require.NoError(t, err)

	assert.Equal(t, 1, srv.starts)
	assert.Equal(t, []string{srv.URL(), srv.URL()}, urls)
}

func TestMobileServerStartFailure(t *testing.T) {
	mob := &MobileBuilder{Open: func(context.Context, string, map[string]interface{}) (core.Driver, error) {
		t.Fatal("open should not be called")
		return nil, nil
	}}
	m, _, srv := newTestManager(t, nil, WithBuilder(core.SurfaceMobile, mob))
	srv.err = errors.New("appium not installed")

	_, err := m.Mobile(context.Background())
	var sce *core.SessionCreationError
	require.True(t, errors.As(err, &sce))
	assert.ErrorContains(t, err, "appium not installed")
}

func TestMobileRemoteSkipsLocalServer(t *testing.T) {
	var gotURL string
	mob := &MobileBuilder{Open: func(ctx context.Context, url string, caps map[string]interface{}) (core.Driver, error) {
		gotURL = url
		return mock.New(mock.Config{}), nil
	}}
	cfg := config.New()
	cfg.Set(config.AppiumRemote, "true")
	cfg.Set(config.AppiumRemoteURL, "http://grid:4723")
	cfg.Set(config.AppiumPlatform, "IOS")
	m, _, srv := newTestManager(t, cfg, WithBuilder(core.SurfaceMobile, mob))

	s, err := m.Mobile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://grid:4723/wd/hub", gotURL)
	assert.Equal(t, 0, srv.starts)
	assert.Equal(t, MobileKey("ios"), s.Key)
}

func TestRemoteAppiumURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"http://grid:4723", "http://grid:4723/wd/hub"},
		{"http://grid:4723/", "http://grid:4723/wd/hub"},
		{"http://grid:4723/wd/hub", "http://grid:4723/wd/hub"},
		{" http://grid:4723/wd/hub/ ", "http://grid:4723/wd/hub"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, remoteAppiumURL(tt.raw), tt.raw)
	}
}

func TestMobileAndroidUsesLaunchResolver(t *testing.T) {
	var activities []string
	mob := &MobileBuilder{
		Open: func(ctx context.Context, url string, caps map[string]interface{}) (core.Driver, error) {
			ep := caps[appium.CapAppActivity].(string)
			activities = append(activities, ep)
			if ep == ".Broken" {
				return nil, core.NewProtocolError(core.CodeSessionNotCreated, "no activity")
			}
			return mock.New(mock.Config{Platform: "android"}), nil
		},
		Resolver: func(r *launcher.Resolver) { r.Config.Settle = 0 },
	}
	cfg := config.New()
	cfg.Set(config.AppiumAndroidActivity, ".Broken")
	cfg.Set(config.AppiumAndroidFallbacks, ".Main,.Other")
	m, _, _ := newTestManager(t, cfg, WithBuilder(core.SurfaceMobile, mob))

	s, err := m.Mobile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ".Main", s.EntryPoint)
	assert.Equal(t, []string{".Broken", ".Main"}, activities)
}

func TestMobileUnsupportedPlatform(t *testing.T) {
	cfg := config.New()
	cfg.Set(config.AppiumRemote, "true")
	cfg.Set(config.AppiumPlatform, "windows")
	m, _, _ := newTestManager(t, cfg)

	_, err := m.Mobile(context.Background())
	var ce *core.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, config.AppiumPlatform, ce.Key)
}

func TestWebBuilderUsesKeyBrowser(t *testing.T) {
	var got webdriver.Options
	wb := &WebBuilder{Open: func(opts webdriver.Options) (core.Driver, error) {
		got = opts
		return mock.New(mock.Config{Platform: "web"}), nil
	}}
	cfg := config.New()
	cfg.Set(config.WebHeadless, "true")
	m, _, _ := newTestManager(t, cfg, WithBuilder(core.SurfaceWeb, wb))

	_, err := m.GetSession(context.Background(), WebKey("firefox"))
	require.NoError(t, err)
	assert.Equal(t, webdriver.Firefox, got.Browser)
	assert.True(t, got.Headless)
}
