// Package metrics exposes Prometheus collectors for sessions, waits,
// interactions and app launches. A nil *Metrics records nothing.
package metrics

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "e2e_runner"

// Outcome labels.
const (
	OutcomeOK      = "ok"
	OutcomeTimeout = "timeout"
	OutcomeFailure = "failure"
)

// Metrics holds the collectors registered on one registry.
type Metrics struct {
	reg prometheus.Gatherer

	sessionsCreated  *prometheus.CounterVec
	sessionFailures  *prometheus.CounterVec
	sessionsActive   prometheus.Gauge
	waits            *prometheus.CounterVec
	waitDuration     *prometheus.HistogramVec
	interactions     *prometheus.CounterVec
	staleRetries     prometheus.Counter
	scrollGestures   prometheus.Counter
	launchAttempts   *prometheus.CounterVec
	screenshotsTaken prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m, err := NewWithRegistry(prometheus.NewRegistry())
	if err != nil {
		// A fresh registry cannot hold duplicates.
		panic(err)
	}
	return m
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		reg: reg,
		sessionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Automation sessions created, by target.",
		}, []string{"target"}),
		sessionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "creation_failures_total",
			Help:      "Automation sessions that failed to start, by target.",
		}, []string{"target"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Automation sessions currently registered.",
		}),
		waits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wait",
			Name:      "total",
			Help:      "Wait conditions evaluated, by condition and outcome.",
		}, []string{"condition", "outcome"}),
		waitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "wait",
			Name:      "duration_seconds",
			Help:      "Time spent waiting for a condition.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		}, []string{"condition"}),
		interactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "element",
			Name:      "interactions_total",
			Help:      "Element interactions, by action and outcome.",
		}, []string{"action", "outcome"}),
		staleRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "element",
			Name:      "stale_retries_total",
			Help:      "Probes retried after a stale element reference.",
		}),
		scrollGestures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "element",
			Name:      "scroll_gestures_total",
			Help:      "Scroll gestures issued while searching for elements.",
		}),
		launchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "launch",
			Name:      "attempts_total",
			Help:      "Application launch attempts, by outcome.",
		}, []string{"outcome"}),
		screenshotsTaken: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "suite",
			Name:      "screenshots_total",
			Help:      "Failure screenshots captured.",
		}),
	}

	collectors := []prometheus.Collector{
		m.sessionsCreated, m.sessionFailures, m.sessionsActive,
		m.waits, m.waitDuration, m.interactions, m.staleRetries,
		m.scrollGestures, m.launchAttempts, m.screenshotsTaken,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Gatherer exposes the registry for scraping or inspection.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return nil
	}
	return m.reg
}

// SessionCreated records a new session for target.
func (m *Metrics) SessionCreated(target string) {
	if m == nil {
		return
	}
	m.sessionsCreated.WithLabelValues(target).Inc()
	m.sessionsActive.Inc()
}

// SessionFailed records a failed session start for target.
func (m *Metrics) SessionFailed(target string) {
	if m == nil {
		return
	}
	m.sessionFailures.WithLabelValues(target).Inc()
}

// SessionClosed records a disposed session.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

// ObserveWait records one wait with its condition, outcome and duration.
func (m *Metrics) ObserveWait(condition, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.waits.WithLabelValues(condition, outcome).Inc()
	m.waitDuration.WithLabelValues(condition).Observe(d.Seconds())
}

// Interaction records one element action.
func (m *Metrics) Interaction(action string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeFailure
	}
	m.interactions.WithLabelValues(action, outcome).Inc()
}

// StaleRetry records a probe retried after a stale reference.
func (m *Metrics) StaleRetry() {
	if m == nil {
		return
	}
	m.staleRetries.Inc()
}

// ScrollGesture records one scroll gesture.
func (m *Metrics) ScrollGesture() {
	if m == nil {
		return
	}
	m.scrollGestures.Inc()
}

// LaunchAttempt records one entry point attempt.
func (m *Metrics) LaunchAttempt(ok bool) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeFailure
	}
	m.launchAttempts.WithLabelValues(outcome).Inc()
}

// ScreenshotTaken records a captured failure screenshot.
func (m *Metrics) ScreenshotTaken() {
	if m == nil {
		return
	}
	m.screenshotsTaken.Inc()
}

// Summary returns counter totals keyed by metric name with labels appended,
// e.g. "wait_total{condition=visible,outcome=ok}". Histograms report their count.
func (m *Metrics) Summary() map[string]float64 {
	out := map[string]float64{}
	if m == nil || m.reg == nil {
		return out
	}
	families, err := m.reg.Gather()
	if err != nil {
		return out
	}
	for _, mf := range families {
		name := strings.TrimPrefix(mf.GetName(), namespace+"_")
		for _, metric := range mf.GetMetric() {
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, lp := range metric.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			sort.Strings(labels)
			key := name
			if len(labels) > 0 {
				key += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case metric.GetCounter() != nil:
				out[key] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[key] = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				out[key+"_count"] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

// SummaryLines renders Summary as sorted "key value" lines.
func (m *Metrics) SummaryLines() []string {
	s := m.Summary()
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+" "+strconv.FormatFloat(s[k], 'f', -1, 64))
	}
	return lines
}
