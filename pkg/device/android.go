// Package device queries Android devices through ADB. The launch resolver
// uses it to tell an unreachable server from a missing device.
package device

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ADB runs adb commands. The zero value looks adb up on PATH.
type ADB struct {
	Path string
	// Run executes adb; tests replace it.
	Run func(ctx context.Context, path string, args ...string) (string, error)
}

// AndroidDevice is one connected device.
type AndroidDevice struct {
	serial string
	adb    *ADB
}

// DeviceInfo contains basic device information.
type DeviceInfo struct {
	Serial     string
	Model      string
	SDK        string
	Release    string
	Brand      string
	IsEmulator bool
}

// Devices lists the serials of devices in the "device" state.
func (a *ADB) Devices(ctx context.Context) ([]string, error) {
	out, err := a.exec(ctx, "devices")
	if err != nil {
		return nil, err
	}
	return ParseDevices(out), nil
}

// Connected reports whether at least one device is attached and online.
func (a *ADB) Connected(ctx context.Context) (bool, error) {
	serials, err := a.Devices(ctx)
	if err != nil {
		return false, err
	}
	return len(serials) > 0, nil
}

// Device returns a handle for serial. An empty serial picks the first
// connected device.
func (a *ADB) Device(ctx context.Context, serial string) (*AndroidDevice, error) {
	if serial == "" {
		serials, err := a.Devices(ctx)
		if err != nil {
			return nil, fmt.Errorf("no device specified and auto-detect failed: %w", err)
		}
		if len(serials) == 0 {
			return nil, fmt.Errorf("no connected devices found")
		}
		serial = serials[0]
	}
	d := &AndroidDevice{serial: serial, adb: a}
	if !d.isConnected(ctx) {
		return nil, fmt.Errorf("device not found: %s", serial)
	}
	return d, nil
}

// ParseDevices extracts online serials from `adb devices` output.
func ParseDevices(out string) []string {
	var serials []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") || strings.HasPrefix(line, "*") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) >= 2 && parts[1] == "device" {
			serials = append(serials, parts[0])
		}
	}
	return serials
}

// Serial returns the device serial number.
func (d *AndroidDevice) Serial() string {
	return d.serial
}

// Shell executes a shell command on the device.
func (d *AndroidDevice) Shell(ctx context.Context, cmd string) (string, error) {
	return d.adb.exec(ctx, "-s", d.serial, "shell", cmd)
}

// IsInstalled checks whether pkg is installed.
func (d *AndroidDevice) IsInstalled(ctx context.Context, pkg string) bool {
	out, err := d.Shell(ctx, "pm list packages "+pkg)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "package:"+pkg {
			return true
		}
	}
	return false
}

// Info returns device information.
func (d *AndroidDevice) Info(ctx context.Context) DeviceInfo {
	info := DeviceInfo{Serial: d.serial}
	prop := func(name string) string {
		v, err := d.Shell(ctx, "getprop "+name)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(v)
	}
	info.Model = prop("ro.product.model")
	info.SDK = prop("ro.build.version.sdk")
	info.Release = prop("ro.build.version.release")
	info.Brand = prop("ro.product.brand")
	info.IsEmulator = prop("ro.kernel.qemu") == "1"
	return info
}

func (d *AndroidDevice) isConnected(ctx context.Context) bool {
	out, err := d.adb.exec(ctx, "-s", d.serial, "get-state")
	if err != nil {
		return false
	}
	return strings.TrimSpace(out) == "device"
}

func (a *ADB) exec(ctx context.Context, args ...string) (string, error) {
	path := a.Path
	if path == "" {
		found, err := findADB()
		if err != nil {
			return "", err
		}
		path = found
	}
	run := a.Run
	if run == nil {
		run = runADB
	}
	return run(ctx, path, args...)
}

func runADB(ctx context.Context, path string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := stderr.String()
		if errMsg == "" {
			errMsg = stdout.String()
		}
		return "", fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(errMsg))
	}
	return stdout.String(), nil
}

// findADB locates the ADB binary.
func findADB() (string, error) {
	if path, err := exec.LookPath("adb"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("adb not found in PATH; ensure Android SDK is installed")
}
