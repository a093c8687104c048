// Package config handles configuration for e2e-runner.
//
// Configuration is a flat map of dotted keys (web.browser, appium.port, ...)
// loaded from YAML. Every lookup takes a caller default used when the key is
// absent or its value cannot be converted.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/e2e-runner/pkg/core"
	"github.com/devicelab-dev/e2e-runner/pkg/logger"
)

// EnvPrefix prefixes environment overrides: web.browser -> E2E_WEB_BROWSER.
const EnvPrefix = "E2E_"

// Properties is the configuration source consulted by every component.
// Lookup order: Set overrides, then environment, then file values.
type Properties struct {
	mu        sync.RWMutex
	file      map[string]string
	overrides map[string]string
	lookupEnv func(string) (string, bool)
	source    string
}

// New returns empty properties that still honor environment overrides.
func New() *Properties {
	return &Properties{
		file:      map[string]string{},
		overrides: map[string]string{},
		lookupEnv: os.LookupEnv,
	}
}

// FromMap builds properties from a nested map, flattening to dotted keys.
func FromMap(m map[string]interface{}) *Properties {
	p := New()
	flatten("", m, p.file)
	return p
}

// Load loads configuration from a YAML file.
func Load(path string) (*Properties, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	p := FromMap(raw)
	p.source = path
	return p, nil
}

// LoadFromDir looks for Parameters/config.yaml, Parameters/config.yml,
// config.yaml or config.yml in the directory. Returns empty properties
// when none exists.
func LoadFromDir(dir string) (*Properties, error) {
	candidates := []string{
		filepath.Join(dir, "Parameters", "config.yaml"),
		filepath.Join(dir, "Parameters", "config.yml"),
		filepath.Join(dir, "config.yaml"),
		filepath.Join(dir, "config.yml"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	// No config file found, return empty config
	return New(), nil
}

// LoadPath loads a file directly or searches a directory.
func LoadPath(path string) (*Properties, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return LoadFromDir(path)
	}
	return Load(path)
}

// Source returns the file the properties were loaded from, if any.
func (p *Properties) Source() string {
	return p.source
}

// Set overrides a key for the rest of the process.
func (p *Properties) Set(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrides[normalizeKey(key)] = value
}

// SetArg applies a "key=value" override.
func (p *Properties) SetArg(arg string) error {
	key, value, ok := strings.Cut(arg, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("invalid override %q, expected key=value", arg)
	}
	p.Set(strings.TrimSpace(key), value)
	return nil
}

// Lookup returns the raw value for key and whether it was found.
func (p *Properties) Lookup(key string) (string, bool) {
	key = normalizeKey(key)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if v, ok := p.overrides[key]; ok {
		return v, true
	}
	if p.lookupEnv != nil {
		if v, ok := p.lookupEnv(EnvName(key)); ok {
			return v, true
		}
	}
	v, ok := p.file[key]
	return v, ok
}

// Has reports whether key has a non-empty value.
func (p *Properties) Has(key string) bool {
	v, ok := p.Lookup(key)
	return ok && strings.TrimSpace(v) != ""
}

// String returns the value for key or def when absent or empty.
func (p *Properties) String(key, def string) string {
	v, ok := p.Lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

// Int returns the value for key as an int, or def.
func (p *Properties) Int(key string, def int) int {
	v, ok := p.Lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	n, err := cast.ToIntE(strings.TrimSpace(v))
	if err != nil {
		logger.Warn("config %s=%q is not an integer, using %d", key, v, def)
		return def
	}
	return n
}

// Bool returns the value for key as a bool, or def.
func (p *Properties) Bool(key string, def bool) bool {
	v, ok := p.Lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	b, err := cast.ToBoolE(strings.TrimSpace(v))
	if err != nil {
		logger.Warn("config %s=%q is not a boolean, using %t", key, v, def)
		return def
	}
	return b
}

// Seconds reads an integer number of seconds, or def.
func (p *Properties) Seconds(key string, def time.Duration) time.Duration {
	return p.scaled(key, def, time.Second)
}

// Millis reads an integer number of milliseconds, or def.
func (p *Properties) Millis(key string, def time.Duration) time.Duration {
	return p.scaled(key, def, time.Millisecond)
}

func (p *Properties) scaled(key string, def, unit time.Duration) time.Duration {
	v, ok := p.Lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	v = strings.TrimSpace(v)
	n, err := cast.ToFloat64E(v)
	if err != nil {
		// Accept Go duration syntax ("1m30s") as well.
		if d, derr := cast.ToDurationE(v); derr == nil && d >= 0 {
			return d
		}
	}
	if err != nil || n < 0 {
		logger.Warn("config %s=%q is not a duration, using %s", key, v, def)
		return def
	}
	return time.Duration(n * float64(unit))
}

// List returns a comma-separated value as a trimmed slice, or def.
func (p *Properties) List(key string, def []string) []string {
	v, ok := p.Lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// Require returns the value for key or a config error when it is missing.
func (p *Properties) Require(key string) (string, error) {
	v := p.String(key, "")
	if v == "" {
		return "", &core.ConfigError{Key: key, Reason: "required value is missing"}
	}
	return v, nil
}

// Keys returns every key known from file or overrides, sorted.
func (p *Properties) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	seen := map[string]bool{}
	for k := range p.file {
		seen[k] = true
	}
	for k := range p.overrides {
		seen[k] = true
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EnvName returns the environment variable consulted for key.
func EnvName(key string) string {
	r := strings.NewReplacer(".", "_", "-", "_")
	return EnvPrefix + strings.ToUpper(r.Replace(normalizeKey(key)))
}

func normalizeKey(key string) string {
	return strings.TrimSpace(key)
}

func flatten(prefix string, in map[string]interface{}, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			flatten(key, val, out)
		case []interface{}:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, cast.ToString(item))
			}
			out[key] = strings.Join(parts, ",")
		case nil:
			out[key] = ""
		default:
			out[key] = cast.ToString(val)
		}
	}
}
