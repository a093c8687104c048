// Package server manages a locally spawned Appium server process.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/devicelab-dev/e2e-runner/pkg/config"
	"github.com/devicelab-dev/e2e-runner/pkg/logger"
	"github.com/devicelab-dev/e2e-runner/pkg/retry"
)

const (
	// DefaultBasePath keeps the legacy /wd/hub prefix clients still use.
	DefaultBasePath = "/wd/hub"

	defaultStartupTimeout = 60 * time.Second
	defaultPoll           = 500 * time.Millisecond
	stopGrace             = 5 * time.Second
)

// ErrNotRunning is returned by Stop when no process was started.
var ErrNotRunning = errors.New("appium server is not running")

// CommandFunc builds the process to run. Tests replace it.
type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// AppiumServer runs `appium` (or `node <JSPath>`) on Address:Port.
type AppiumServer struct {
	Address        string
	Port           int
	BasePath       string
	JSPath         string
	StartupTimeout time.Duration
	Poll           time.Duration
	Command        CommandFunc

	mu     sync.Mutex
	cmd    *exec.Cmd
	done   chan struct{}
	cancel context.CancelFunc
	client *http.Client
}

// NewAppiumServer creates a server definition for address:port.
func NewAppiumServer(address string, port int) *AppiumServer {
	return &AppiumServer{
		Address:        address,
		Port:           port,
		BasePath:       DefaultBasePath,
		StartupTimeout: defaultStartupTimeout,
		Poll:           defaultPoll,
	}
}

// FromConfig reads appium.address, appium.port, appium.js.path and
// appium.server.startup.timeout. Without appium.js.path the newest nvm
// install is used, and failing that the appium binary on PATH.
func FromConfig(cfg *config.Properties) *AppiumServer {
	s := NewAppiumServer(
		cfg.String(config.AppiumAddress, config.DefaultAppiumAddress),
		cfg.Int(config.AppiumPort, config.DefaultAppiumPort),
	)
	s.JSPath = cfg.String(config.AppiumJSPath, "")
	if s.JSPath == "" {
		s.JSPath = DefaultJSPath()
	}
	s.StartupTimeout = cfg.Seconds(config.AppiumStartupTimeout, config.DefaultStartupSeconds*time.Second)
	return s
}

// URL is the client endpoint including the base path.
func (s *AppiumServer) URL() string {
	return fmt.Sprintf("http://%s:%d%s", s.Address, s.Port, s.BasePath)
}

// Args returns the server command line after the executable.
func (s *AppiumServer) Args() []string {
	return []string{
		"--address", s.Address,
		"--port", strconv.Itoa(s.Port),
		"--base-path", s.BasePath,
		"--session-override",
		"--log-level", "info",
	}
}

// IsRunning reports whether the spawned process is still alive.
func (s *AppiumServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

func (s *AppiumServer) runningLocked() bool {
	if s.cmd == nil || s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Start spawns the server and blocks until GET <URL>/status answers 200.
// It is a no-op when the process is already running.
func (s *AppiumServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runningLocked() {
		return nil
	}

	name, args := s.commandLine()
	procCtx, cancel := context.WithCancel(context.Background())
	command := s.Command
	if command == nil {
		command = exec.CommandContext
	}
	cmd := command(procCtx, name, args...)
	cmd.Stdout = logger.GetWriter()
	cmd.Stderr = logger.GetWriter()

	logger.Info("Starting Appium server: %s %v", name, args)
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start appium server: %w", err)
	}

	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()
	s.cmd, s.done, s.cancel = cmd, done, cancel

	if err := s.waitForStartup(ctx, done); err != nil {
		s.stopLocked()
		return err
	}
	logger.Info("Appium server started at %s", s.URL())
	return nil
}

func (s *AppiumServer) commandLine() (string, []string) {
	if s.JSPath != "" {
		return "node", append([]string{s.JSPath}, s.Args()...)
	}
	return "appium", s.Args()
}

func (s *AppiumServer) waitForStartup(ctx context.Context, done <-chan struct{}) error {
	timeout := s.StartupTimeout
	if timeout <= 0 {
		timeout = defaultStartupTimeout
	}
	poll := s.Poll
	if poll <= 0 {
		poll = defaultPoll
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	attempts := uint(timeout/poll) + 1
	ready, err := retry.Until(ctx, retry.Constant(attempts, poll), func() (bool, error) {
		select {
		case <-done:
			return false, errors.New("appium server exited during startup (see log file)")
		default:
		}
		return s.ready(ctx), nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("appium server not ready at %s within %s", s.URL(), timeout)
		}
		return err
	}
	if !ready {
		return fmt.Errorf("appium server not ready at %s within %s", s.URL(), timeout)
	}
	return nil
}

// Ready reports whether the status endpoint answers.
func (s *AppiumServer) Ready(ctx context.Context) bool {
	return s.ready(ctx)
}

func (s *AppiumServer) ready(ctx context.Context) bool {
	return StatusOK(ctx, s.httpClient(), s.URL())
}

func (s *AppiumServer) httpClient() *http.Client {
	if s.client == nil {
		s.client = &http.Client{Timeout: 2 * time.Second}
	}
	return s.client
}

// StatusOK reports whether GET <baseURL>/status returns 200.
func StatusOK(ctx context.Context, client *http.Client, baseURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/status", nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Stop terminates the process. Stopping a server that was never started
// returns ErrNotRunning.
func (s *AppiumServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return ErrNotRunning
	}
	s.stopLocked()
	logger.Info("Appium server stopped")
	return nil
}

func (s *AppiumServer) stopLocked() {
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Signal(os.Interrupt)
		select {
		case <-s.done:
		case <-time.After(stopGrace):
			s.cmd.Process.Kill()
			<-s.done
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.cmd, s.done, s.cancel = nil, nil, nil
}

// DefaultJSPath returns the newest nvm-installed Appium entry point, or ""
// when none is installed.
func DefaultJSPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return findJSPath(home)
}

func findJSPath(home string) string {
	pattern := filepath.Join(home, ".nvm", "versions", "node", "*", "lib", "node_modules", "appium", "build", "lib", "main.js")
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return matches[len(matches)-1]
}
