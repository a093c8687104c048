// Package cli provides the command-line interface for e2e-runner.
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	"github.com/devicelab-dev/e2e-runner/pkg/config"
	"github.com/devicelab-dev/e2e-runner/pkg/logger"
	"github.com/devicelab-dev/e2e-runner/pkg/metrics"
	"github.com/devicelab-dev/e2e-runner/pkg/report"
	"github.com/devicelab-dev/e2e-runner/pkg/session"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Configuration file, or directory holding Parameters/config.yaml",
		EnvVars: []string{"E2E_RUNNER_CONFIG"},
	},
	&cli.StringSliceFlag{
		Name:  "set",
		Usage: "Override a configuration key (key=value, repeatable)",
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"E2E_RUNNER_VERBOSE"},
	},
	&cli.StringFlag{
		Name:  "log-file",
		Usage: "Log file (default <home>/test-output/logs/e2e-runner.log)",
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// newManager builds the session manager used by commands. Tests replace it.
var newManager = func(cfg *config.Properties, rep *report.Reporter, m *metrics.Metrics) *session.Manager {
	return session.NewManager(cfg, session.WithReporter(rep), session.WithMetrics(m))
}

// NewApp builds the application writing to stdout and stderr.
func NewApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:    "e2e-runner",
		Usage:   "End-to-end UI automation for the web platform and the mobile app",
		Version: Version,
		Description: `e2e-runner manages WebDriver and Appium sessions for UI tests and
offers diagnostics for launching the mobile app.

Examples:
  e2e-runner launch --observe 10s
  e2e-runner --set appium.platform=android --set appium.remote=true launch
  e2e-runner server
  e2e-runner devices`,
		Flags:     GlobalFlags,
		Writer:    stdout,
		ErrWriter: stderr,
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") || os.Getenv("NO_COLOR") != "" {
				color.NoColor = true
			}
			return nil
		},
		Commands: []*cli.Command{
			launchCommand,
			serverCommand,
			devicesCommand,
		},
	}
}

// Execute runs the CLI. Exit codes from cli.Exit are applied by the app.
func Execute() {
	app := NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads --config (or the home directory) and applies --set.
func loadConfig(c *cli.Context) (*config.Properties, error) {
	var (
		cfg *config.Properties
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.LoadPath(path)
	} else {
		cfg, err = config.LoadFromDir(config.GetHome())
	}
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	for _, arg := range c.StringSlice("set") {
		if err := cfg.SetArg(arg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// setupLogging opens the log file. Failure only disables file logging.
func setupLogging(c *cli.Context) func() {
	path := c.String("log-file")
	if path == "" {
		path = filepath.Join(config.GetLogDir(), "e2e-runner.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		fmt.Fprintf(c.App.ErrWriter, "Warning: Failed to create log directory: %v\n", err)
		return func() {}
	}
	if err := logger.InitWithOptions(path, logger.Options{Verbose: c.Bool("verbose"), Level: zapcore.DebugLevel}); err != nil {
		fmt.Fprintf(c.App.ErrWriter, "Warning: Failed to initialize logger: %v\n", err)
		return func() {}
	}
	logger.Info("=== e2e-runner %s %s ===", Version, c.Command.Name)
	return logger.Close
}

// newReporter writes events to the log file and the terminal.
func newReporter(c *cli.Context) *report.Reporter {
	return report.New(report.LoggerSink{}, report.NewConsoleSink(c.App.Writer, c.Bool("verbose")))
}
