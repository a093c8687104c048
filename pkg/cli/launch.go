package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/e2e-runner/pkg/config"
	"github.com/devicelab-dev/e2e-runner/pkg/core"
	"github.com/devicelab-dev/e2e-runner/pkg/logger"
	"github.com/devicelab-dev/e2e-runner/pkg/metrics"
	"github.com/devicelab-dev/e2e-runner/pkg/session"
	"github.com/devicelab-dev/e2e-runner/pkg/wait"
)

var launchCommand = &cli.Command{
	Name:  "launch",
	Usage: "Launch the mobile app and print the screen it opened on",
	Description: `Resolve the app entry point the way a test run does, keep the session
open for the observation window and close it again.

Examples:
  e2e-runner launch
  e2e-runner launch --observe 30s
  e2e-runner --set appium.android.app.activity=.MainActivity launch`,
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:  "observe",
			Usage: "How long to keep the session open after launch",
			Value: 10 * time.Second,
		},
		&cli.StringFlag{
			Name:    "platform",
			Aliases: []string{"p"},
			Usage:   "Mobile platform (android, ios); defaults to appium.platform",
		},
	},
	Action: runLaunch,
}

func runLaunch(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer setupLogging(c)()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep := newReporter(c)
	m := metrics.New()
	mgr := newManager(cfg, rep, m)
	defer mgr.DisposeAll()

	platform := c.String("platform")
	if platform == "" {
		platform = cfg.String(config.AppiumPlatform, config.DefaultAppiumPlatform)
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Launching %s app...\n", platform)
	sess, err := mgr.GetSession(ctx, session.MobileKey(platform))
	if err != nil {
		printLaunchFailure(c.App.ErrWriter, err)
		return cli.Exit("", 1)
	}

	printLaunched(out, sess)

	observe := c.Duration("observe")
	logger.Debug("Observing %s session %s for %s", platform, sess.ID, observe)
	if observe > 0 {
		fmt.Fprintf(out, "Keeping the session open for %s (Ctrl+C to stop)\n", observe)
		if err := wait.Sleep(ctx, observe); err != nil {
			fmt.Fprintln(out, "Observation interrupted")
		}
	}
	printCurrentScreen(out, sess)
	fmt.Fprintln(out, "Closing session")
	return nil
}

func printLaunched(w io.Writer, sess *session.Session) {
	green := color.New(color.FgGreen, color.Bold)
	green.Fprintln(w, "App launched successfully")
	if sess.EntryPoint != "" {
		fmt.Fprintf(w, "  Entry point:    %s\n", sess.EntryPoint)
	}
	if info := sess.Driver.PlatformInfo(); info != nil {
		fmt.Fprintf(w, "  Platform:       %s %s\n", info.Platform, info.OSVersion)
		fmt.Fprintf(w, "  Device:         %s (%s)\n", info.DeviceName, info.DeviceID)
		fmt.Fprintf(w, "  Session:        %s\n", info.SessionID)
	}
}

// printCurrentScreen reports where the app settled after the observation window.
func printCurrentScreen(w io.Writer, sess *session.Session) {
	if screen, err := sess.Driver.CurrentScreen(); err == nil {
		fmt.Fprintf(w, "Current screen: %s\n", screen)
	} else {
		fmt.Fprintf(w, "Current screen: unavailable (%v)\n", err)
	}
}

func printLaunchFailure(w io.Writer, err error) {
	red := color.New(color.FgRed, color.Bold)
	red.Fprintln(w, "Failed to launch the app")

	var le *core.LaunchExhaustedError
	if !errors.As(err, &le) {
		fmt.Fprintf(w, "  %v\n", err)
		return
	}

	fmt.Fprintln(w, "\nAttempted entry points:")
	for _, a := range le.Attempts {
		fmt.Fprintf(w, "  - %s: %v\n", a.EntryPoint, a.Err)
	}

	d := le.Diagnostics
	reachable := "reachable"
	if !d.ServerReachable {
		reachable = "NOT reachable"
	}
	device := "unknown"
	if d.DeviceConnected != nil {
		device = "not connected"
		if *d.DeviceConnected {
			device = "connected"
		}
	}
	fmt.Fprintln(w, "\nDiagnostics:")
	fmt.Fprintf(w, "  Server:       %s (%s)\n", d.ServerURL, reachable)
	fmt.Fprintf(w, "  Package:      %s\n", d.Package)
	fmt.Fprintf(w, "  Entry points: %s\n", strings.Join(d.EntryPoints, ", "))
	fmt.Fprintf(w, "  Device:       %s %s (%s)\n", d.DeviceName, d.PlatformVersion, device)

	fmt.Fprintln(w, "\nTroubleshooting steps:")
	for i, step := range d.Troubleshooting() {
		fmt.Fprintf(w, "  %d. %s\n", i+1, step)
	}
}
