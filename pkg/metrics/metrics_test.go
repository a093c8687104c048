package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.SessionCreated("web:chrome")
	m.ObserveWait("visible", OutcomeOK, time.Second)
	m.Interaction("click", nil)
	m.ScrollGesture()
	m.LaunchAttempt(true)
	if len(m.Summary()) != 0 {
		t.Error("nil Summary() should be empty")
	}
	if m.Gatherer() != nil {
		t.Error("nil Gatherer() should be nil")
	}
}

func TestCounters(t *testing.T) {
	m := New()

	m.SessionCreated("web:chrome")
	m.SessionCreated("mobile:android")
	m.SessionClosed()
	m.SessionFailed("web:safari")
	m.ObserveWait("visible", OutcomeOK, 300*time.Millisecond)
	m.ObserveWait("visible", OutcomeTimeout, 2*time.Second)
	m.Interaction("click", nil)
	m.Interaction("type", errors.New("dead session"))
	m.StaleRetry()
	m.ScrollGesture()
	m.ScrollGesture()
	m.LaunchAttempt(false)
	m.LaunchAttempt(true)
	m.ScreenshotTaken()

	if got := testutil.ToFloat64(m.sessionsCreated.WithLabelValues("web:chrome")); got != 1 {
		t.Errorf("sessions created = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.sessionsActive); got != 1 {
		t.Errorf("sessions active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.waits.WithLabelValues("visible", OutcomeTimeout)); got != 1 {
		t.Errorf("timeouts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.interactions.WithLabelValues("type", OutcomeFailure)); got != 1 {
		t.Errorf("type failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.scrollGestures); got != 2 {
		t.Errorf("scroll gestures = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.launchAttempts.WithLabelValues(OutcomeFailure)); got != 1 {
		t.Errorf("failed launches = %v, want 1", got)
	}
}

func TestSummary(t *testing.T) {
	m := New()
	m.ScrollGesture()
	m.ObserveWait("clickable", OutcomeOK, time.Millisecond)

	s := m.Summary()
	if s["element_scroll_gestures_total"] != 1 {
		t.Errorf("summary = %v", s)
	}
	if s["wait_total{condition=clickable,outcome=ok}"] != 1 {
		t.Errorf("summary = %v", s)
	}
	if s["wait_duration_seconds{condition=clickable}_count"] != 1 {
		t.Errorf("summary = %v", s)
	}

	lines := m.SummaryLines()
	found := false
	for _, l := range lines {
		if l == "element_scroll_gestures_total 1" {
			found = true
		}
	}
	if !found {
		t.Errorf("SummaryLines() = %v", lines)
	}
}

func TestNewWithRegistry_Duplicate(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewWithRegistry(reg); err != nil {
		t.Fatalf("first registration error = %v", err)
	}
	if _, err := NewWithRegistry(reg); err == nil {
		t.Error("second registration on same registry should fail")
	}
}
