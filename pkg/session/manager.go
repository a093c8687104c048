package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/devicelab-dev/e2e-runner/pkg/config"
	"github.com/devicelab-dev/e2e-runner/pkg/core"
	"github.com/devicelab-dev/e2e-runner/pkg/metrics"
	"github.com/devicelab-dev/e2e-runner/pkg/report"
	"github.com/devicelab-dev/e2e-runner/pkg/server"
)

const tracerName = "github.com/devicelab-dev/e2e-runner/pkg/session"

// LocalServer is the local automation server the manager starts lazily.
// *server.AppiumServer implements it.
type LocalServer interface {
	Start(ctx context.Context) error
	Stop() error
	URL() string
	IsRunning() bool
}

// Env is what a Builder may use while creating a session.
type Env struct {
	Config   *config.Properties
	Reporter *report.Reporter
	Metrics  *metrics.Metrics
	// LocalServerURL starts the local automation server on first use and
	// returns its URL. It must only be called from within Build.
	LocalServerURL func(ctx context.Context) (string, error)
}

// Built is a freshly opened driver.
type Built struct {
	Driver     core.Driver
	EntryPoint string
}

// Builder opens a driver for one surface.
type Builder interface {
	Build(ctx context.Context, key TargetKey, env Env) (*Built, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context, key TargetKey, env Env) (*Built, error)

// Build calls f.
func (f BuilderFunc) Build(ctx context.Context, key TargetKey, env Env) (*Built, error) {
	return f(ctx, key, env)
}

// Manager caches sessions by TargetKey.
type Manager struct {
	cfg      *config.Properties
	reporter *report.Reporter
	metrics  *metrics.Metrics
	builders map[core.Surface]Builder
	server   LocalServer

	mu            sync.Mutex
	sessions      map[TargetKey]*Session
	serverStarted bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithBuilder replaces the builder for a surface.
func WithBuilder(surface core.Surface, b Builder) Option {
	return func(m *Manager) { m.builders[surface] = b }
}

// WithServer sets the local automation server.
func WithServer(s LocalServer) Option {
	return func(m *Manager) { m.server = s }
}

// WithReporter sets the event reporter.
func WithReporter(r *report.Reporter) Option {
	return func(m *Manager) { m.reporter = r }
}

// WithMetrics sets the metrics collector.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager creates a manager with the web and mobile builders and a local
// Appium server read from cfg.
func NewManager(cfg *config.Properties, opts ...Option) *Manager {
	if cfg == nil {
		cfg = config.New()
	}
	m := &Manager{
		cfg: cfg,
		builders: map[core.Surface]Builder{
			core.SurfaceWeb:    &WebBuilder{},
			core.SurfaceMobile: &MobileBuilder{},
		},
		sessions: map[TargetKey]*Session{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.server == nil {
		m.server = server.FromConfig(cfg)
	}
	return m
}

// Config returns the manager's configuration.
func (m *Manager) Config() *config.Properties { return m.cfg }

// Web returns the session for the configured browser kind.
func (m *Manager) Web(ctx context.Context) (*Session, error) {
	return m.GetSession(ctx, WebKey(m.cfg.String(config.WebBrowser, config.DefaultBrowser)))
}

// Mobile returns the session for the configured mobile platform.
func (m *Manager) Mobile(ctx context.Context) (*Session, error) {
	return m.GetSession(ctx, MobileKey(m.cfg.String(config.AppiumPlatform, config.DefaultAppiumPlatform)))
}

// GetSession returns the live session for key, creating it on first use.
// Creation failures are returned as *core.SessionCreationError.
func (m *Manager) GetSession(ctx context.Context, key TargetKey) (*Session, error) {
	key = Key(key.Surface, key.Discriminator)

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[key]; ok {
		return s, nil
	}

	s, err := m.create(ctx, key)
	if err != nil {
		m.metrics.SessionFailed(key.String())
		m.reporter.Error("Failed to create %s session: %v", key, err)
		return nil, &core.SessionCreationError{Target: key.String(), Cause: err}
	}
	m.sessions[key] = s
	m.metrics.SessionCreated(key.String())
	m.reporter.Info("Session %s created for %s", s.ID, key)
	return s, nil
}

func (m *Manager) create(ctx context.Context, key TargetKey) (*Session, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "session.Create",
		trace.WithAttributes(attribute.String("session.target", key.String())))
	defer span.End()

	b, ok := m.builders[key.Surface]
	if !ok {
		err := fmt.Errorf("no builder for surface %q", key.Surface)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	built, err := b.Build(ctx, key, m.env())
	if err == nil && (built == nil || built.Driver == nil) {
		err = errors.New("builder returned no driver")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s := &Session{
		ID:         uuid.NewString(),
		Key:        key,
		Driver:     built.Driver,
		CreatedAt:  time.Now(),
		EntryPoint: built.EntryPoint,
	}
	s.actions = newActions(built.Driver, key.Surface, m.cfg, m.reporter, m.metrics)
	span.SetAttributes(attribute.String("session.id", s.ID))
	return s, nil
}

func (m *Manager) env() Env {
	return Env{
		Config:         m.cfg,
		Reporter:       m.reporter,
		Metrics:        m.metrics,
		LocalServerURL: m.ensureServerLocked,
	}
}

// ensureServerLocked starts the local server once. Callers hold m.mu.
func (m *Manager) ensureServerLocked(ctx context.Context) (string, error) {
	if m.server == nil {
		return "", errors.New("no local automation server configured")
	}
	if !m.server.IsRunning() {
		m.reporter.Info("Starting local automation server")
		if err := m.server.Start(ctx); err != nil {
			return "", err
		}
		m.serverStarted = true
	}
	return m.server.URL(), nil
}

// Sessions returns the live sessions ordered by key.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// DisposeSession quits and forgets the session for key. A key without a
// session is a no-op; quit failures are logged only.
func (m *Manager) DisposeSession(key TargetKey) {
	key = Key(key.Surface, key.Discriminator)

	m.mu.Lock()
	s, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()

	if ok {
		m.quit(s)
	}
}

// DisposeAll quits every session in parallel, then stops the local server
// if this manager started it. Failures are logged only.
func (m *Manager) DisposeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var g errgroup.Group
	for key, s := range m.sessions {
		g.Go(func() error { return m.quit(s) })
		delete(m.sessions, key)
	}
	if err := g.Wait(); err != nil {
		m.reporter.Warn("Some sessions did not close cleanly: %v", err)
	}

	if m.serverStarted && m.server != nil {
		if err := m.server.Stop(); err != nil && !errors.Is(err, server.ErrNotRunning) {
			m.reporter.Warn("Failed to stop local automation server: %v", err)
		}
		m.serverStarted = false
	}
}

func (m *Manager) quit(s *Session) error {
	m.metrics.SessionClosed()
	if err := s.Driver.Quit(); err != nil {
		m.reporter.Warn("Error closing %s session %s: %v", s.Key, s.ID, err)
		return fmt.Errorf("%s: %w", s.Key, err)
	}
	m.reporter.Info("Session %s closed for %s", s.ID, s.Key)
	return nil
}
