// Package suite runs test functions against managed sessions and collects
// their results.
package suite

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/e2e-runner/pkg/config"
	"github.com/devicelab-dev/e2e-runner/pkg/core"
	"github.com/devicelab-dev/e2e-runner/pkg/logger"
	"github.com/devicelab-dev/e2e-runner/pkg/metrics"
	"github.com/devicelab-dev/e2e-runner/pkg/report"
	"github.com/devicelab-dev/e2e-runner/pkg/session"
)

// TestFunc is one test body.
type TestFunc func(ctx context.Context, s *session.Session) error

// Suite owns the session manager for a run.
type Suite struct {
	Name          string
	Config        *config.Properties
	Manager       *session.Manager
	Reporter      *report.Reporter
	Metrics       *metrics.Metrics
	RunID         string
	ScreenshotDir string
	// ReportDir receives report.json on Close. Empty disables the file.
	ReportDir string

	mu     sync.Mutex
	result core.SuiteResult
	closed bool
}

// Option configures a Suite.
type Option func(*Suite)

// WithManager uses m instead of a manager built from the config.
func WithManager(m *session.Manager) Option {
	return func(s *Suite) { s.Manager = m }
}

// WithReporter sets the event reporter.
func WithReporter(r *report.Reporter) Option {
	return func(s *Suite) { s.Reporter = r }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Suite) { s.Metrics = m }
}

// WithScreenshotDir overrides where failure screenshots go.
func WithScreenshotDir(dir string) Option {
	return func(s *Suite) { s.ScreenshotDir = dir }
}

// WithReportDir overrides where report.json is written.
func WithReportDir(dir string) Option {
	return func(s *Suite) { s.ReportDir = dir }
}

// New creates a suite. Unset parts default to a logger-backed reporter,
// fresh metrics and a manager over cfg.
func New(name string, cfg *config.Properties, opts ...Option) *Suite {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Suite{
		Name:   name,
		Config: cfg,
		RunID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Reporter == nil {
		s.Reporter = report.New(report.LoggerSink{})
	}
	if s.Metrics == nil {
		s.Metrics = metrics.New()
	}
	if s.Manager == nil {
		s.Manager = session.NewManager(cfg, session.WithReporter(s.Reporter), session.WithMetrics(s.Metrics))
	}
	if s.ScreenshotDir == "" {
		s.ScreenshotDir = config.GetScreenshotDir()
	}
	s.result = core.SuiteResult{Name: name, RunID: s.RunID, StartTime: time.Now()}
	return s
}

// Run acquires the session for key and runs fn. On failure a screenshot is
// attached; a failed capture is logged and never replaces fn's error.
func (s *Suite) Run(ctx context.Context, name string, key session.TargetKey, fn TestFunc) error {
	rep := s.Reporter.With("test", name)
	rep.StartTest(name)
	res := core.TestResult{Name: name, Target: key.String(), Status: core.StatusRunning, StartTime: time.Now()}

	sess, err := s.Manager.GetSession(ctx, key)
	if err == nil {
		res.PlatformInfo = sess.Driver.PlatformInfo()
		err = call(ctx, sess, fn)
		if err != nil {
			s.capture(rep, sess, name, &res)
		}
	}
	if err != nil {
		rep.Fail("%s failed: %v", name, err)
	}

	res.Finish(err)
	rep.EndTest(name, res.Status.String())

	s.mu.Lock()
	s.result.Tests = append(s.result.Tests, res)
	s.mu.Unlock()
	return err
}

func call(ctx context.Context, sess *session.Session, fn TestFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("test panicked: %v", r)
		}
	}()
	return fn(ctx, sess)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func (s *Suite) capture(rep *report.Reporter, sess *session.Session, name string, res *core.TestResult) {
	file := fmt.Sprintf("%s_%s", unsafeChars.ReplaceAllString(name, "_"), time.Now().Format("20060102_150405"))
	att, err := core.CaptureScreenshot(sess.Driver, s.ScreenshotDir, file)
	if err != nil {
		rep.Warn("Failed to capture screenshot: %v", err)
		return
	}
	s.Metrics.ScreenshotTaken()
	res.Attachments = append(res.Attachments, att)
	rep.Info("Screenshot saved to: %s", att.Path)
}

// Result returns a summarized copy of the results so far.
func (s *Suite) Result() core.SuiteResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.result
	out.Tests = append([]core.TestResult(nil), s.result.Tests...)
	out.Duration = time.Since(out.StartTime)
	out.ComputeSummary()
	return out
}

// Close disposes every session, stops the local server when this run
// started it, logs the metrics summary and writes report.json.
// Calling Close again is a no-op.
func (s *Suite) Close() (*core.SuiteResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil
	}
	s.closed = true
	s.mu.Unlock()

	s.Manager.DisposeAll()
	for _, line := range s.Metrics.SummaryLines() {
		logger.Info("metric %s", line)
	}

	result := s.Result()
	s.Reporter.Info("Suite %s: %d passed, %d failed, %d errored of %d",
		s.Name, result.Passed, result.Failed, result.Errored, result.Total)
	if s.ReportDir == "" {
		return &result, nil
	}
	path, err := report.WriteSuiteResult(s.ReportDir, &result)
	if err != nil {
		return &result, fmt.Errorf("write suite report: %w", err)
	}
	s.Reporter.Info("Report written to %s", path)
	return &result, nil
}

// DefaultReportDir is <home>/test-output/<runID>.
func DefaultReportDir(runID string) string {
	return filepath.Join(config.GetHome(), "test-output", runID)
}
