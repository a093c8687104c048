package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/e2e-runner/pkg/config"
	"github.com/devicelab-dev/e2e-runner/pkg/server"
)

// localServer is the subset of the Appium server the command drives.
type localServer interface {
	Start(ctx context.Context) error
	Stop() error
	URL() string
}

// newServer builds the local automation server. Tests replace it.
var newServer = func(cfg *config.Properties) localServer {
	return server.FromConfig(cfg)
}

var serverCommand = &cli.Command{
	Name:  "server",
	Usage: "Start the local Appium server and wait until interrupted",
	Description: `Start the automation server with the appium.* settings and keep it
running so tests with appium.remote=true can reuse it.

Examples:
  e2e-runner server
  e2e-runner --set appium.port=4725 server`,
	Action: runServer,
}

func runServer(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer setupLogging(c)()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := newServer(cfg)
	if err := srv.Start(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("start appium server: %v", err), 1)
	}
	fmt.Fprintf(c.App.Writer, "Appium server listening on %s (Ctrl+C to stop)\n", srv.URL())

	<-ctx.Done()
	fmt.Fprintln(c.App.Writer, "Stopping Appium server")
	if err := srv.Stop(); err != nil && !errors.Is(err, server.ErrNotRunning) {
		return fmt.Errorf("stop appium server: %w", err)
	}
	return nil
}
