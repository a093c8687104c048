package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/e2e-runner/pkg/core"
)

const sampleYAML = `
web:
  browser: firefox
  headless: true
  url: https://ctf.example.com
  page:
    load:
      timeout: 30
appium:
  port: 4725
  remote: false
  android:
    app:
      package: com.example.app
      fallback:
        activities:
          - .EntryActivity
          - .PremierEntryActivity
wait:
  poll:
    millis: abc
`

func writeConfig(t *testing.T, dir, rel string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	return path
}

func TestLoad_FlattensNestedKeys(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml")

	p, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, p.Source())
	assert.Equal(t, "firefox", p.String(WebBrowser, DefaultBrowser))
	assert.True(t, p.Bool(WebHeadless, false))
	assert.Equal(t, 30*time.Second, p.Seconds(WebPageLoadTimeout, 60*time.Second))
	assert.Equal(t, 4725, p.Int(AppiumPort, DefaultAppiumPort))
	assert.False(t, p.Bool(AppiumRemote, true))
	assert.Equal(t, []string{".EntryActivity", ".PremierEntryActivity"},
		p.List(AppiumAndroidFallbacks, nil))
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("web: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDefaults_AbsentOrUnparsable(t *testing.T) {
	p := FromMap(map[string]interface{}{
		"wait":   map[string]interface{}{"poll": map[string]interface{}{"millis": "abc"}},
		"appium": map[string]interface{}{"port": "not-a-port", "remote": "maybe"},
	})

	assert.Equal(t, DefaultBrowser, p.String(WebBrowser, DefaultBrowser))
	assert.Equal(t, 200*time.Millisecond, p.Millis(WaitPollMillis, 200*time.Millisecond))
	assert.Equal(t, DefaultAppiumPort, p.Int(AppiumPort, DefaultAppiumPort))
	assert.True(t, p.Bool(AppiumRemote, true))
	assert.Equal(t, DefaultAndroidFallbacks, p.List(AppiumAndroidFallbacks, DefaultAndroidFallbacks))
}

func TestSeconds_DurationSyntax(t *testing.T) {
	p := New()
	p.Set(LaunchSettleSeconds, "1m30s")
	assert.Equal(t, 90*time.Second, p.Seconds(LaunchSettleSeconds, 5*time.Second))

	p.Set(LaunchSettleSeconds, "2.5")
	assert.Equal(t, 2500*time.Millisecond, p.Seconds(LaunchSettleSeconds, 5*time.Second))

	p.Set(LaunchSettleSeconds, "-1")
	assert.Equal(t, 5*time.Second, p.Seconds(LaunchSettleSeconds, 5*time.Second))
}

func TestLookupOrder(t *testing.T) {
	p := FromMap(map[string]interface{}{"web": map[string]interface{}{"browser": "firefox"}})
	env := map[string]string{}
	p.lookupEnv = func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	assert.Equal(t, "firefox", p.String(WebBrowser, ""))

	env["E2E_WEB_BROWSER"] = "edge"
	assert.Equal(t, "edge", p.String(WebBrowser, ""))

	require.NoError(t, p.SetArg("web.browser=safari"))
	assert.Equal(t, "safari", p.String(WebBrowser, ""))
}

func TestSetArg_Invalid(t *testing.T) {
	p := New()
	assert.Error(t, p.SetArg("novalue"))
	assert.Error(t, p.SetArg("=x"))
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "E2E_APPIUM_ANDROID_APP_PACKAGE", EnvName(AppiumAndroidPackage))
	assert.Equal(t, "E2E_WEB_PAGE_LOAD_TIMEOUT", EnvName(WebPageLoadTimeout))
}

func TestLoadFromDir(t *testing.T) {
	t.Run("parameters dir wins", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "Parameters/config.yaml")
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("web: {browser: edge}"), 0o644))

		p, err := LoadFromDir(dir)
		require.NoError(t, err)
		assert.Equal(t, "firefox", p.String(WebBrowser, ""))
	})

	t.Run("yml fallback", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "config.yml")

		p, err := LoadFromDir(dir)
		require.NoError(t, err)
		assert.Equal(t, "com.example.app", p.String(AppiumAndroidPackage, ""))
	})

	t.Run("empty dir", func(t *testing.T) {
		p, err := LoadFromDir(t.TempDir())
		require.NoError(t, err)
		assert.Empty(t, p.Keys())
	})
}

func TestLoadPath_File(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "custom.yaml")
	p, err := LoadPath(path)
	require.NoError(t, err)
	assert.Contains(t, p.Keys(), WebURL)
}

func TestRequire(t *testing.T) {
	p := New()
	p.lookupEnv = nil

	_, err := p.Require(WebURL)
	var cfgErr *core.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, WebURL, cfgErr.Key)

	p.Set(WebURL, "https://ctf.example.com")
	v, err := p.Require(WebURL)
	require.NoError(t, err)
	assert.Equal(t, "https://ctf.example.com", v)
}
