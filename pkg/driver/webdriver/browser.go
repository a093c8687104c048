// Package webdriver implements core.Driver for desktop browsers on top of
// github.com/tebeka/selenium.
package webdriver

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"github.com/tebeka/selenium/firefox"

	"github.com/devicelab-dev/e2e-runner/pkg/config"
	"github.com/devicelab-dev/e2e-runner/pkg/core"
	"github.com/devicelab-dev/e2e-runner/pkg/logger"
)

// Browser identifies a supported browser.
type Browser string

const (
	Chrome  Browser = "chrome"
	Firefox Browser = "firefox"
	Edge    Browser = "edge"
	Safari  Browser = "safari"
)

// ParseBrowser maps a configured browser name to a Browser. Unknown names
// fall back to Chrome with a warning.
func ParseBrowser(name string) Browser {
	switch b := Browser(strings.ToLower(strings.TrimSpace(name))); b {
	case Chrome, Firefox, Edge, Safari:
		return b
	case "":
		return Chrome
	default:
		logger.Warn("Browser '%s' not supported. Defaulting to Chrome", name)
		return Chrome
	}
}

// driverBinary is the local driver executable for each browser.
func (b Browser) driverBinary() string {
	switch b {
	case Firefox:
		return "geckodriver"
	case Edge:
		return "msedgedriver"
	case Safari:
		return "safaridriver"
	default:
		return "chromedriver"
	}
}

// Options is the browser session configuration.
type Options struct {
	Browser       Browser
	Headless      bool
	RemoteURL     string
	DriverPath    string
	DriverPort    int
	PageLoad      int // seconds
	ImplicitWait  int // seconds
	Width, Height int
}

// OptionsFromConfig reads web.* keys.
func OptionsFromConfig(cfg *config.Properties) Options {
	return Options{
		Browser:      ParseBrowser(cfg.String(config.WebBrowser, config.DefaultBrowser)),
		Headless:     cfg.Bool(config.WebHeadless, false),
		RemoteURL:    cfg.String(config.WebRemoteURL, ""),
		DriverPath:   cfg.String(config.WebDriverPath, ""),
		DriverPort:   cfg.Int(config.WebDriverPort, config.DefaultDriverPort),
		PageLoad:     cfg.Int(config.WebPageLoadTimeout, config.DefaultPageLoadSeconds),
		ImplicitWait: cfg.Int(config.WebImplicitWait, 0),
		Width:        cfg.Int(config.WebWindowWidth, 0),
		Height:       cfg.Int(config.WebWindowHeight, 0),
	}
}

// Capabilities builds the W3C capabilities for the configured browser.
func Capabilities(opts Options) selenium.Capabilities {
	caps := selenium.Capabilities{}
	switch opts.Browser {
	case Firefox:
		caps["browserName"] = "firefox"
		var args []string
		if opts.Headless {
			args = append(args, "--headless")
		}
		caps.AddFirefox(firefox.Capabilities{Args: args})
	case Edge:
		caps["browserName"] = "MicrosoftEdge"
		args := []string{"--start-maximized"}
		if opts.Headless {
			args = append(args, "--headless")
		}
		caps["ms:edgeOptions"] = map[string]interface{}{"args": args}
	case Safari:
		caps["browserName"] = "safari"
	default:
		caps["browserName"] = "chrome"
		args := []string{"--start-maximized", "--remote-allow-origins=*"}
		if opts.Headless {
			args = append(args, "--headless=new")
		}
		caps.AddChrome(chrome.Capabilities{Args: args})
	}
	return caps
}

// Hooks for tests.
var (
	newRemote        = selenium.NewRemote
	startLocalDriver = startService
)

// Open starts a browser session. Without a remote URL a local driver
// service is started on DriverPort and stopped again by Quit.
func Open(opts Options) (*Driver, error) {
	caps := Capabilities(opts)

	url := opts.RemoteURL
	var stop func() error
	if url == "" {
		if opts.Browser == Safari {
			return nil, &core.ConfigError{Key: config.WebRemoteURL,
				Reason: "safari requires a running safaridriver; set web.remote.url (e.g. safaridriver -p 4444)"}
		}
		var err error
		url, stop, err = startLocalDriver(opts)
		if err != nil {
			return nil, err
		}
	}

	logger.Info("Creating WebDriver for browser: %s (%s)", opts.Browser, url)
	wd, err := newRemote(caps, url)
	if err != nil {
		if stop != nil {
			stop()
		}
		return nil, mapError(err)
	}

	d := newDriver(wd, opts.Browser, url, stop)
	if err := d.configure(opts); err != nil {
		d.Quit()
		return nil, err
	}
	return d, nil
}

func startService(opts Options) (string, func() error, error) {
	path := opts.DriverPath
	if path == "" {
		found, err := exec.LookPath(opts.Browser.driverBinary())
		if err != nil {
			return "", nil, &core.ConfigError{Key: config.WebDriverPath,
				Reason: fmt.Sprintf("%s not found on PATH", opts.Browser.driverBinary())}
		}
		path = found
	}

	serviceOpts := []selenium.ServiceOption{selenium.Output(logger.GetWriter())}
	var (
		svc *selenium.Service
		err error
	)
	if opts.Browser == Firefox {
		svc, err = selenium.NewGeckoDriverService(path, opts.DriverPort, serviceOpts...)
	} else {
		// msedgedriver speaks the chromedriver command line.
		svc, err = selenium.NewChromeDriverService(path, opts.DriverPort, serviceOpts...)
	}
	if err != nil {
		return "", nil, fmt.Errorf("start %s: %w", path, err)
	}
	return fmt.Sprintf("http://localhost:%d", opts.DriverPort), svc.Stop, nil
}
