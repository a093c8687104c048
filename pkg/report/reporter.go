// Package report carries structured test events to log, console and memory sinks.
package report

import (
	"fmt"
	"sync"
	"time"
)

// Level is the severity of a report event.
type Level string

// Event levels. Pass and Fail mark the outcome of a check.
const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelPass  Level = "pass"
	LevelFail  Level = "fail"
	LevelStep  Level = "step"
)

// Event is one structured report entry.
type Event struct {
	Time    time.Time         `json:"time"`
	Level   Level             `json:"level"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Sink renders events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Reporter fans events out to its sinks.
// A nil *Reporter is valid and discards everything.
type Reporter struct {
	mu     sync.RWMutex
	sinks  []Sink
	fields map[string]string
	now    func() time.Time
}

// New returns a reporter writing to the given sinks. Nil sinks are skipped.
func New(sinks ...Sink) *Reporter {
	r := &Reporter{now: time.Now}
	for _, s := range sinks {
		if s != nil {
			r.sinks = append(r.sinks, s)
		}
	}
	return r
}

// AddSink attaches another sink.
func (r *Reporter) AddSink(s Sink) {
	if r == nil || s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

// With returns a reporter sharing the sinks that stamps fields on every event.
func (r *Reporter) With(key, value string) *Reporter {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	fields := make(map[string]string, len(r.fields)+1)
	for k, v := range r.fields {
		fields[k] = v
	}
	fields[key] = value
	return &Reporter{sinks: r.sinks, fields: fields, now: r.now}
}

// Emit sends one event to every sink.
func (r *Reporter) Emit(level Level, msg string) {
	if r == nil {
		return
	}
	r.mu.RLock()
	sinks := r.sinks
	fields := r.fields
	now := r.now
	r.mu.RUnlock()

	if now == nil {
		now = time.Now
	}
	e := Event{Time: now(), Level: level, Message: msg, Fields: fields}
	for _, s := range sinks {
		s.Emit(e)
	}
}

// Debug emits a debug event.
func (r *Reporter) Debug(format string, args ...interface{}) {
	r.Emit(LevelDebug, fmt.Sprintf(format, args...))
}

// Info emits an info event.
func (r *Reporter) Info(format string, args ...interface{}) {
	r.Emit(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn emits a warn event.
func (r *Reporter) Warn(format string, args ...interface{}) {
	r.Emit(LevelWarn, fmt.Sprintf(format, args...))
}

// Error emits an error event.
func (r *Reporter) Error(format string, args ...interface{}) {
	r.Emit(LevelError, fmt.Sprintf(format, args...))
}

// Pass emits a passed check.
func (r *Reporter) Pass(format string, args ...interface{}) {
	r.Emit(LevelPass, fmt.Sprintf(format, args...))
}

// Fail emits a failed check.
func (r *Reporter) Fail(format string, args ...interface{}) {
	r.Emit(LevelFail, fmt.Sprintf(format, args...))
}

// StartStep marks the start of a named step.
func (r *Reporter) StartStep(name string) {
	r.Emit(LevelStep, "BEGIN "+name)
}

// EndStep marks the end of a named step.
func (r *Reporter) EndStep(name string) {
	r.Emit(LevelStep, "END "+name)
}

// StartTest marks the start of a test method.
func (r *Reporter) StartTest(name string) {
	r.Emit(LevelStep, "START TEST "+name)
}

// EndTest marks the end of a test method with its status.
func (r *Reporter) EndTest(name, status string) {
	r.Emit(LevelStep, fmt.Sprintf("END TEST %s [%s]", name, status))
}
