// Package jsengine evaluates ${...} expressions found in test data.
//
// Expressions run in a goja runtime with these globals:
//
//	env        process environment, e.g. ${env.CTF_USER}
//	vars       values registered with SetVariable, also exposed as globals
//	uuid()     random UUID string
//	now()      current time as RFC 3339
//	unique(s)  s with a short random suffix, for titles that must not collide
//	json(s)    parses a JSON string
//	console    log/warn/error routed to the process logger
package jsengine

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/devicelab-dev/e2e-runner/pkg/logger"
)

// Engine wraps a goja runtime. It is safe for concurrent use; evaluations
// are serialized.
type Engine struct {
	runtime   *goja.Runtime
	variables map[string]interface{}
	lookupEnv func() []string
	now       func() time.Time
	mu        sync.Mutex
}

// New creates an engine seeded with the current environment.
func New() *Engine {
	return newEngine(os.Environ, time.Now)
}

func newEngine(environ func() []string, now func() time.Time) *Engine {
	e := &Engine{
		runtime:   goja.New(),
		variables: make(map[string]interface{}),
		lookupEnv: environ,
		now:       now,
	}
	e.setupBuiltins()
	return e
}

func (e *Engine) setupBuiltins() {
	e.setupConsole()
	e.runtime.Set("env", e.envObject())
	e.runtime.Set("vars", e.variables)
	e.runtime.Set("json", e.jsonFunc())
	e.runtime.Set("uuid", func() string { return uuid.NewString() })
	e.runtime.Set("now", func() string { return e.now().UTC().Format(time.RFC3339) })
	e.runtime.Set("unique", func(prefix string) string {
		return prefix + "-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
	})
}

func (e *Engine) setupConsole() {
	makeConsoleFunc := func(log func(string, ...interface{})) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = fmt.Sprint(arg.Export())
			}
			log("js: %s", strings.Join(parts, " "))
			return goja.Undefined()
		}
	}

	console := e.runtime.NewObject()
	console.Set("log", makeConsoleFunc(logger.Info))
	console.Set("warn", makeConsoleFunc(logger.Warn))
	console.Set("error", makeConsoleFunc(logger.Error))
	e.runtime.Set("console", console)
}

func (e *Engine) envObject() map[string]interface{} {
	env := make(map[string]interface{})
	for _, kv := range e.lookupEnv() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// jsonFunc returns the json() helper function
func (e *Engine) jsonFunc() func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(e.runtime.NewTypeError("json requires 1 argument"))
		}

		str := call.Arguments[0].String()
		result, err := e.runtime.RunString(fmt.Sprintf("JSON.parse(%q)", str))
		if err != nil {
			panic(e.runtime.NewTypeError(fmt.Sprintf("invalid JSON: %v", err)))
		}
		return result
	}
}

// SetVariable makes value available as a global and as vars[name].
func (e *Engine) SetVariable(name string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.variables[name] = value
	e.runtime.Set(name, value)
	e.runtime.Set("vars", e.variables)
}

// SetVariables sets multiple variables
func (e *Engine) SetVariables(vars map[string]interface{}) {
	for k, v := range vars {
		e.SetVariable(k, v)
	}
}

// Eval evaluates a JavaScript expression and returns the result
func (e *Engine) Eval(script string) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.runtime.RunString(script)
	if err != nil {
		return nil, fmt.Errorf("JS eval error: %w", err)
	}
	return result.Export(), nil
}

// EvalString evaluates script and formats the result. undefined and null
// become "".
func (e *Engine) EvalString(script string) (string, error) {
	result, err := e.Eval(script)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	return fmt.Sprintf("%v", result), nil
}

// ExpandVariables replaces every ${...} in text with its evaluated value.
// Nested braces inside an expression are allowed. The first expression
// that fails to evaluate aborts the expansion.
func (e *Engine) ExpandVariables(text string) (string, error) {
	result := text
	start := 0

	for {
		idx := strings.Index(result[start:], "${")
		if idx == -1 {
			break
		}
		idx += start

		depth := 1
		end := idx + 2
		for end < len(result) && depth > 0 {
			if result[end] == '{' {
				depth++
			} else if result[end] == '}' {
				depth--
			}
			end++
		}

		if depth != 0 {
			// Unmatched brace, keep the text as is.
			start = idx + 2
			continue
		}

		expr := result[idx+2 : end-1]
		value, err := e.EvalString(expr)
		if err != nil {
			return "", fmt.Errorf("expand %q: %w", "${"+expr+"}", err)
		}

		result = result[:idx] + value + result[end:]
		start = idx + len(value)
	}

	return result, nil
}

// ExpandValue expands strings inside v, descending into maps and slices
// decoded from JSON. Other values are returned unchanged.
func (e *Engine) ExpandValue(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case string:
		if !strings.Contains(t, "${") {
			return t, nil
		}
		return e.ExpandVariables(t)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			expanded, err := e.ExpandValue(item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = expanded
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			expanded, err := e.ExpandValue(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = expanded
		}
		return out, nil
	default:
		return v, nil
	}
}
