package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/e2e-runner/pkg/config"
	"github.com/devicelab-dev/e2e-runner/pkg/device"
)

// adb is the device client used by commands. Tests replace it.
var adb = &device.ADB{}

var devicesCommand = &cli.Command{
	Name:  "devices",
	Usage: "List connected Android devices and whether the app is installed",
	Description: `Print every device adb reports as online with its model and OS
version, and check the configured app package on each.

Examples:
  e2e-runner devices
  e2e-runner --set appium.android.app.package=com.example devices`,
	Action: runDevices,
}

func runDevices(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()

	serials, err := adb.Devices(ctx)
	if err != nil {
		return cli.Exit(fmt.Sprintf("list devices: %v", err), 1)
	}
	out := c.App.Writer
	if len(serials) == 0 {
		fmt.Fprintln(out, "No devices connected")
		return cli.Exit("", 1)
	}

	pkg := cfg.String(config.AppiumAndroidPackage, config.DefaultAndroidPackage)
	for _, serial := range serials {
		d, err := adb.Device(ctx, serial)
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", serial, err)
			continue
		}
		info := d.Info(ctx)
		kind := "device"
		if info.IsEmulator {
			kind = "emulator"
		}
		installed := "not installed"
		if d.IsInstalled(ctx, pkg) {
			installed = "installed"
		}
		fmt.Fprintf(out, "%s  %s %s  Android %s (SDK %s)  %s  %s: %s\n",
			info.Serial, info.Brand, info.Model, info.Release, info.SDK, kind, pkg, installed)
	}
	return nil
}
