// Package fixture loads JSON test data. String values may contain ${...}
// expressions, evaluated once at load time (see package jsengine).
package fixture

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cast"

	"github.com/devicelab-dev/e2e-runner/pkg/config"
	"github.com/devicelab-dev/e2e-runner/pkg/jsengine"
	"github.com/devicelab-dev/e2e-runner/pkg/logger"
)

// Challenge is the data needed to create and verify a challenge.
type Challenge struct {
	Title       string
	Flag        string
	Description string
	Category    string
	Points      string
	HowToSolve  string
}

// Loader caches decoded files by path.
type Loader struct {
	engine *jsengine.Engine

	mu    sync.Mutex
	cache map[string]map[string]interface{}
}

// NewLoader returns a loader expanding expressions with engine. A nil
// engine gets a fresh one.
func NewLoader(engine *jsengine.Engine) *Loader {
	if engine == nil {
		engine = jsengine.New()
	}
	return &Loader{engine: engine, cache: map[string]map[string]interface{}{}}
}

// Load decodes the JSON object at path. Repeated loads of the same path
// return the cached object without reading the file again.
func (l *Loader) Load(path string) (map[string]interface{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if data, ok := l.cache[path]; ok {
		return data, nil
	}

	logger.Info("Loading JSON data from: %s", path)
	raw, err := os.ReadFile(path) //#nosec G304 -- test data path
	if err != nil {
		logger.Error("Failed to load JSON data from %s: %v", path, err)
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		logger.Error("Failed to load JSON data from %s: %v", path, err)
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	expanded, err := l.engine.ExpandValue(doc)
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w", path, err)
	}
	data := expanded.(map[string]interface{})

	l.cache[path] = data
	logger.Info("Successfully loaded JSON data from: %s", path)
	return data, nil
}

// LoadChallenge reads a challenge file. name is resolved under the JSON
// test data directory unless it is an existing path.
func (l *Loader) LoadChallenge(name string) (*Challenge, error) {
	path := name
	if _, err := os.Stat(path); err != nil {
		path = config.JSONPath(name)
	}
	data, err := l.Load(path)
	if err != nil {
		return nil, err
	}
	return &Challenge{
		Title:       cast.ToString(data["title"]),
		Flag:        cast.ToString(data["flag"]),
		Description: cast.ToString(data["description"]),
		Category:    cast.ToString(data["category"]),
		Points:      cast.ToString(data["points"]),
		HowToSolve:  cast.ToString(data["howToSolve"]),
	}, nil
}
