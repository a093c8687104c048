package appium

import (
	"os"
	"path/filepath"

	"github.com/devicelab-dev/e2e-runner/pkg/config"
	"github.com/devicelab-dev/e2e-runner/pkg/logger"
)

const vendorPrefix = "appium:"

// Capability names shared by the builders and the launch resolver.
const (
	CapAppPackage  = vendorPrefix + "appPackage"
	CapAppActivity = vendorPrefix + "appActivity"
	CapDeviceName  = vendorPrefix + "deviceName"
	CapPlatformVer = vendorPrefix + "platformVersion"
)

// AndroidCapabilities builds UiAutomator2 capabilities from configuration.
// The activity is left for the launch resolver to fill in.
func AndroidCapabilities(cfg *config.Properties) map[string]interface{} {
	caps := map[string]interface{}{
		"platformName":                        "Android",
		vendorPrefix + "automationName":       "UiAutomator2",
		CapDeviceName:                         cfg.String(config.AppiumAndroidDevice, "Android Device"),
		CapAppPackage:                         cfg.String(config.AppiumAndroidPackage, config.DefaultAndroidPackage),
		vendorPrefix + "newCommandTimeout":    cfg.Int(config.AppiumCommandTimeout, config.DefaultCommandTimeout),
		vendorPrefix + "autoGrantPermissions": cfg.Bool(config.AppiumAutoGrantPermissions, true),
		vendorPrefix + "noReset":              cfg.Bool(config.AppiumNoReset, true),
		vendorPrefix + "fullReset":            cfg.Bool(config.AppiumFullReset, false),
	}
	if v := cfg.String(config.AppiumAndroidVersion, ""); v != "" {
		caps[CapPlatformVer] = v
	}
	if app := appPath(cfg.String(config.AppiumAndroidAppPath, ""), "Android"); app != "" {
		caps[vendorPrefix+"app"] = app
	}
	return caps
}

// IOSCapabilities builds XCUITest capabilities from configuration.
func IOSCapabilities(cfg *config.Properties) map[string]interface{} {
	caps := map[string]interface{}{
		"platformName":                     "iOS",
		vendorPrefix + "automationName":    "XCUITest",
		CapDeviceName:                      cfg.String(config.AppiumIOSDevice, "iPhone Simulator"),
		vendorPrefix + "newCommandTimeout": cfg.Int(config.AppiumCommandTimeout, config.DefaultCommandTimeout),
		vendorPrefix + "autoAcceptAlerts":  true,
		vendorPrefix + "noReset":           cfg.Bool(config.AppiumNoReset, false),
		vendorPrefix + "fullReset":         cfg.Bool(config.AppiumFullReset, false),
	}
	if v := cfg.String(config.AppiumIOSVersion, ""); v != "" {
		caps[CapPlatformVer] = v
	}
	if app := appPath(cfg.String(config.AppiumIOSAppPath, ""), "iOS"); app != "" {
		caps[vendorPrefix+"app"] = app
	}
	if id := cfg.String(config.AppiumIOSBundleID, ""); id != "" {
		caps[vendorPrefix+"bundleId"] = id
	}
	if udid := cfg.String(config.AppiumIOSUDID, ""); udid != "" {
		caps[vendorPrefix+"udid"] = udid
	}
	return caps
}

// CloneCapabilities returns a shallow copy so callers can vary one entry
// per attempt.
func CloneCapabilities(caps map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(caps)+1)
	for k, v := range caps {
		out[k] = v
	}
	return out
}

func appPath(path, platform string) string {
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if _, err := os.Stat(abs); err != nil {
		logger.Warn("%s app file not found at path: %s", platform, path)
		return ""
	}
	return abs
}
