package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/devicelab-dev/e2e-runner/pkg/logger"
)

// LoggerSink forwards events to the process log.
type LoggerSink struct{}

// Emit writes e through pkg/logger at the matching level.
func (LoggerSink) Emit(e Event) {
	msg := withFields(e)
	switch e.Level {
	case LevelDebug:
		logger.Debug("%s", msg)
	case LevelWarn:
		logger.Warn("%s", msg)
	case LevelError:
		logger.Error("%s", msg)
	case LevelPass:
		logger.Pass("%s", msg)
	case LevelFail:
		logger.Fail("%s", msg)
	default:
		logger.Info("%s", msg)
	}
}

// ConsoleSink prints colored events to a terminal.
type ConsoleSink struct {
	mu       sync.Mutex
	out      io.Writer
	minDebug bool
}

// NewConsoleSink writes to w (stdout when nil). Debug events are shown only when verbose.
func NewConsoleSink(w io.Writer, verbose bool) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleSink{out: w, minDebug: verbose}
}

var (
	colorPass = color.New(color.FgGreen)
	colorFail = color.New(color.FgRed)
	colorWarn = color.New(color.FgYellow)
	colorStep = color.New(color.FgBlue, color.Bold)
	colorDim  = color.New(color.Faint)
)

// Emit prints a single line for e.
func (c *ConsoleSink) Emit(e Event) {
	if e.Level == LevelDebug && !c.minDebug {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	label := strings.ToUpper(string(e.Level))
	line := fmt.Sprintf("%s [%-5s] %s", e.Time.Format("15:04:05"), label, withFields(e))
	switch e.Level {
	case LevelPass:
		colorPass.Fprintln(c.out, line)
	case LevelFail, LevelError:
		colorFail.Fprintln(c.out, line)
	case LevelWarn:
		colorWarn.Fprintln(c.out, line)
	case LevelStep:
		colorStep.Fprintln(c.out, line)
	case LevelDebug:
		colorDim.Fprintln(c.out, line)
	default:
		fmt.Fprintln(c.out, line)
	}
}

// MemorySink records events in order.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// Emit appends e.
func (m *MemorySink) Emit(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

// Events returns a copy of the recorded events.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Count returns how many events of the level were recorded.
func (m *MemorySink) Count(level Level) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Messages returns the messages recorded at level, in order.
func (m *MemorySink) Messages(level Level) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

// Reset drops recorded events.
func (m *MemorySink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

func withFields(e Event) string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+e.Fields[k])
	}
	return fmt.Sprintf("%s {%s}", e.Message, strings.Join(parts, " "))
}
