package core

import (
	"time"
)

// TestResult captures the outcome of one test method
type TestResult struct {
	// Identity
	Name   string `json:"name"`
	Target string `json:"target"` // Target key the test ran against

	// Platform info (captured once per test)
	PlatformInfo *PlatformInfo `json:"platformInfo,omitempty"`

	// Status
	Status   TestStatus    `json:"status"`
	Category ErrorCategory `json:"errorCategory,omitempty"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Error Details
	Error string `json:"error,omitempty"`

	// Debug Artifacts
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Finish stamps the duration, status and error fields from err.
func (r *TestResult) Finish(err error) {
	r.Duration = time.Since(r.StartTime)
	r.Status = StatusFor(err)
	r.Category = CategoryOf(err)
	if err != nil {
		r.Error = err.Error()
	}
}

// SuiteResult captures the complete outcome of one suite run
type SuiteResult struct {
	// Identity
	Name  string `json:"name"`
	RunID string `json:"runId"` // Unique execution ID (UUID)

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Results
	Tests []TestResult `json:"tests"`

	// Summary
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
	Skipped int `json:"skipped"`
}

// ComputeSummary calculates counts from the Tests slice
func (s *SuiteResult) ComputeSummary() {
	s.Total = len(s.Tests)
	s.Passed = 0
	s.Failed = 0
	s.Errored = 0
	s.Skipped = 0

	for _, t := range s.Tests {
		switch t.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusErrored:
			s.Errored++
		case StatusSkipped:
			s.Skipped++
		}
	}
}

// Success returns true if every test passed
func (s *SuiteResult) Success() bool {
	for _, t := range s.Tests {
		if t.Status != StatusPassed {
			return false
		}
	}
	return len(s.Tests) > 0
}
