package config

// Recognized configuration keys.
const (
	WebBrowser         = "web.browser"
	WebHeadless        = "web.headless"
	WebURL             = "web.url"
	WebRemoteURL       = "web.remote.url"
	WebDriverPath      = "web.driver.path"
	WebDriverPort      = "web.driver.port"
	WebPageLoadTimeout = "web.page.load.timeout"
	WebImplicitWait    = "web.implicit.wait"
	WebExplicitTimeout = "web.timeout.explicit"
	WebWindowWidth     = "web.window.width"
	WebWindowHeight    = "web.window.height"
	WebUsername        = "web.username"
	WebPassword        = "web.password"

	AppiumRemote               = "appium.remote"
	AppiumRemoteURL            = "appium.remote.url"
	AppiumPlatform             = "appium.platform"
	AppiumAddress              = "appium.address"
	AppiumPort                 = "appium.port"
	AppiumJSPath               = "appium.js.path"
	AppiumStartupTimeout       = "appium.server.startup.timeout"
	AppiumAndroidDevice        = "appium.android.device"
	AppiumAndroidVersion       = "appium.android.version"
	AppiumAndroidAppPath       = "appium.android.app.path"
	AppiumAndroidPackage       = "appium.android.app.package"
	AppiumAndroidActivity      = "appium.android.app.activity"
	AppiumAndroidFallbacks     = "appium.android.app.fallback.activities"
	AppiumIOSDevice            = "appium.ios.device"
	AppiumIOSVersion           = "appium.ios.version"
	AppiumIOSAppPath           = "appium.ios.app.path"
	AppiumIOSBundleID          = "appium.ios.bundle.id"
	AppiumIOSUDID              = "appium.ios.udid"
	AppiumCommandTimeout       = "appium.command.timeout"
	AppiumNoReset              = "appium.no.reset"
	AppiumFullReset            = "appium.full.reset"
	AppiumAutoGrantPermissions = "appium.autoGrantPermissions"

	MobileExplicitTimeout = "mobile.timeout.explicit"
	MobileUsername        = "mobile.username"
	MobilePassword        = "mobile.password"
	MobilePasscode        = "mobile.passcode"

	LaunchSettleSeconds = "launch.settle.seconds"
	WaitPollMillis      = "wait.poll.millis"
)

// Defaults for keys whose absence has a defined meaning.
const (
	DefaultBrowser          = "chrome"
	DefaultDriverPort       = 9515
	DefaultPageLoadSeconds  = 60
	DefaultWebTimeoutSecs   = 10
	DefaultMobileTimeoutSec = 15
	DefaultAppiumRemoteURL  = "http://localhost:4723"
	DefaultAppiumPlatform   = "android"
	DefaultAppiumAddress    = "127.0.0.1"
	DefaultAppiumPort       = 4723
	DefaultStartupSeconds   = 60
	DefaultCommandTimeout   = 60
	DefaultAndroidPackage   = "com.exness.android.pa"
	DefaultSettleSeconds    = 5
	DefaultPollMillis       = 200
)

// DefaultAndroidFallbacks are the entry activities tried after the configured one.
var DefaultAndroidFallbacks = []string{
	"com.exness.features.entry.impl.presentation.EntryActivity",
	"com.exness.features.entry.impl.presentation.PremierEntryActivity",
}
