package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/devicelab-dev/e2e-runner/pkg/config"
	"github.com/devicelab-dev/e2e-runner/pkg/core"
	"github.com/devicelab-dev/e2e-runner/pkg/driver/appium"
	"github.com/devicelab-dev/e2e-runner/pkg/driver/webdriver"
	"github.com/devicelab-dev/e2e-runner/pkg/launcher"
	"github.com/devicelab-dev/e2e-runner/pkg/server"
)

// WebBuilder opens browser sessions from the web.* keys. The browser kind
// comes from the key's discriminator.
type WebBuilder struct {
	// Open defaults to webdriver.Open.
	Open func(opts webdriver.Options) (core.Driver, error)
}

// Build implements Builder.
func (b *WebBuilder) Build(ctx context.Context, key TargetKey, env Env) (*Built, error) {
	opts := webdriver.OptionsFromConfig(env.Config)
	if key.Discriminator != "" {
		opts.Browser = webdriver.ParseBrowser(key.Discriminator)
	}
	env.Reporter.Info("Initializing %s browser (headless=%t)", opts.Browser, opts.Headless)

	open := b.Open
	if open == nil {
		open = func(opts webdriver.Options) (core.Driver, error) {
			d, err := webdriver.Open(opts)
			if err != nil {
				return nil, err
			}
			return d, nil
		}
	}
	drv, err := open(opts)
	if err != nil {
		return nil, err
	}
	return &Built{Driver: drv}, nil
}

// MobileBuilder opens Appium sessions. Android goes through the launch
// resolver; iOS opens the configured bundle directly.
type MobileBuilder struct {
	// Open defaults to an Appium session.
	Open launcher.OpenFunc
	// Resolver customizes the Android launch resolver before use.
	Resolver func(r *launcher.Resolver)
}

// Build implements Builder.
func (b *MobileBuilder) Build(ctx context.Context, key TargetKey, env Env) (*Built, error) {
	if key.Discriminator != "android" && key.Discriminator != "ios" {
		return nil, &core.ConfigError{
			Key:    config.AppiumPlatform,
			Reason: fmt.Sprintf("unsupported platform %q (use android or ios)", key.Discriminator),
		}
	}
	url, err := b.serverURL(ctx, env)
	if err != nil {
		return nil, err
	}

	if key.Discriminator == "ios" {
		env.Reporter.Info("Connecting to iOS device at %s", url)
		drv, err := b.open()(ctx, url, appium.IOSCapabilities(env.Config))
		if err != nil {
			return nil, err
		}
		return &Built{Driver: drv}, nil
	}

	r := launcher.New(launcher.ConfigFromProperties(env.Config, url), env.Reporter, env.Metrics)
	r.Open = b.Open
	if b.Resolver != nil {
		b.Resolver(r)
	}
	res, err := r.Launch(ctx, appium.AndroidCapabilities(env.Config))
	if err != nil {
		return nil, err
	}
	return &Built{Driver: res.Driver, EntryPoint: res.EntryPoint}, nil
}

// serverURL picks the remote endpoint or starts the local server.
func (b *MobileBuilder) serverURL(ctx context.Context, env Env) (string, error) {
	if env.Config.Bool(config.AppiumRemote, false) {
		url := remoteAppiumURL(env.Config.String(config.AppiumRemoteURL, config.DefaultAppiumRemoteURL))
		env.Reporter.Info("Using remote Appium server: %s", url)
		return url, nil
	}
	if env.LocalServerURL == nil {
		return "", fmt.Errorf("local automation server unavailable; set %s", config.AppiumRemote)
	}
	return env.LocalServerURL(ctx)
}

// remoteAppiumURL appends the /wd/hub base path the local server also uses
// when the configured URL lacks it.
func remoteAppiumURL(raw string) string {
	url := strings.TrimRight(strings.TrimSpace(raw), "/")
	if !strings.HasSuffix(url, server.DefaultBasePath) {
		url += server.DefaultBasePath
	}
	return url
}

func (b *MobileBuilder) open() launcher.OpenFunc {
	if b.Open != nil {
		return b.Open
	}
	return func(ctx context.Context, url string, caps map[string]interface{}) (core.Driver, error) {
		d, err := appium.Open(url, caps)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}
