package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// W3C WebDriver error codes the core reacts to.
const (
	CodeNoSuchElement     = "no such element"
	CodeStaleElement      = "stale element reference"
	CodeClickIntercepted  = "element click intercepted"
	CodeNotInteractable   = "element not interactable"
	CodeUnknownCommand    = "unknown command"
	CodeUnsupported       = "unsupported operation"
	CodeInvalidSession    = "invalid session id"
	CodeTimeout           = "timeout"
	CodeUnknownError      = "unknown error"
	CodeSessionNotCreated = "session not created"
)

// ProtocolError is an error reported by a remote automation endpoint.
// Two protocol errors match with errors.Is when their codes are equal.
type ProtocolError struct {
	Code    string
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on the error code only.
func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	if !ok {
		return false
	}
	return strings.EqualFold(e.Code, t.Code)
}

// Protocol error sentinels. Use with errors.Is.
var (
	ErrNoSuchElement    = &ProtocolError{Code: CodeNoSuchElement}
	ErrStaleElement     = &ProtocolError{Code: CodeStaleElement}
	ErrClickIntercepted = &ProtocolError{Code: CodeClickIntercepted}
	ErrUnsupported      = &ProtocolError{Code: CodeUnsupported}
	ErrInvalidSession   = &ProtocolError{Code: CodeInvalidSession}
)

// NewProtocolError builds a ProtocolError, normalizing the code.
func NewProtocolError(code, message string) *ProtocolError {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		code = CodeUnknownError
	}
	return &ProtocolError{Code: code, Message: message}
}

// IsNotFound reports whether err means "nothing matched the locator".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNoSuchElement)
}

// IsStale reports whether err is a stale element reference race.
func IsStale(err error) bool {
	return errors.Is(err, ErrStaleElement)
}

// Categorized is implemented by errors that carry an ErrorCategory.
type Categorized interface {
	Category() ErrorCategory
}

// CategoryOf returns the category of the first categorized error in the chain.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ErrCategoryNone
	}
	var c Categorized
	if errors.As(err, &c) {
		return c.Category()
	}
	return ErrCategoryUnknown
}

// ElementNotFoundError means a required element never resolved.
type ElementNotFoundError struct {
	Description string
	Locator     Locator
	Cause       error
}

func (e *ElementNotFoundError) Error() string {
	msg := fmt.Sprintf("element not found: %s (%s)", e.Description, e.Locator.Describe())
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *ElementNotFoundError) Unwrap() error           { return e.Cause }
func (e *ElementNotFoundError) Category() ErrorCategory { return ErrCategoryAssertion }

// WaitTimeoutError means a wait condition did not hold within its timeout.
type WaitTimeoutError struct {
	Description string
	Condition   string
	Locator     Locator
	Timeout     time.Duration
	LastErr     error // last observation before the deadline, may be nil
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %q to be %s (%s)",
		e.Timeout, e.Description, e.Condition, e.Locator.Describe())
}

func (e *WaitTimeoutError) Unwrap() error           { return e.LastErr }
func (e *WaitTimeoutError) Category() ErrorCategory { return ErrCategoryTimeout }

// WaitFailureError means polling was aborted by an unexpected error.
type WaitFailureError struct {
	Description string
	Condition   string
	Locator     Locator
	Cause       error
}

func (e *WaitFailureError) Error() string {
	return fmt.Sprintf("wait for %q to be %s failed: %v", e.Description, e.Condition, e.Cause)
}

func (e *WaitFailureError) Unwrap() error { return e.Cause }

func (e *WaitFailureError) Category() ErrorCategory {
	if c := CategoryOf(e.Cause); c != ErrCategoryUnknown {
		return c
	}
	return ErrCategoryConnection
}

// ScrollExhaustedError means a target stayed hidden after all scroll attempts.
type ScrollExhaustedError struct {
	Description string
	Locator     Locator
	Attempts    int
}

func (e *ScrollExhaustedError) Error() string {
	return fmt.Sprintf("%q not visible after %d scroll attempts (%s)",
		e.Description, e.Attempts, e.Locator.Describe())
}

func (e *ScrollExhaustedError) Category() ErrorCategory { return ErrCategoryAssertion }

// SessionCreationError means a session or its backing process could not start.
type SessionCreationError struct {
	Target string
	Cause  error
}

func (e *SessionCreationError) Error() string {
	return fmt.Sprintf("create session %s: %v", e.Target, e.Cause)
}

func (e *SessionCreationError) Unwrap() error           { return e.Cause }
func (e *SessionCreationError) Category() ErrorCategory { return ErrCategoryConnection }

// InteractionError wraps a failed action against a resolved element.
type InteractionError struct {
	Action      string
	Description string
	Cause       error
}

func (e *InteractionError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Action, e.Description, e.Cause)
}

func (e *InteractionError) Unwrap() error { return e.Cause }

func (e *InteractionError) Category() ErrorCategory {
	if c := CategoryOf(e.Cause); c != ErrCategoryUnknown {
		return c
	}
	return ErrCategoryConnection
}

// PreconditionError means a view's signature elements were not all visible.
type PreconditionError struct {
	View    string
	Missing []string
	Cause   error
}

func (e *PreconditionError) Error() string {
	msg := fmt.Sprintf("%s not ready: missing %s", e.View, strings.Join(e.Missing, ", "))
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *PreconditionError) Unwrap() error           { return e.Cause }
func (e *PreconditionError) Category() ErrorCategory { return ErrCategoryAssertion }

// LaunchAttempt records one entry point tried by the launch resolver.
type LaunchAttempt struct {
	EntryPoint string
	Err        error
	Duration   time.Duration
}

// Succeeded reports whether the attempt opened the application.
func (a LaunchAttempt) Succeeded() bool { return a.Err == nil }

// LaunchDiagnostics is the triage payload attached to a failed launch.
type LaunchDiagnostics struct {
	ServerURL       string
	ServerReachable bool
	Package         string
	EntryPoints     []string
	DeviceName      string
	PlatformVersion string
	// DeviceConnected is nil when connectivity could not be determined.
	DeviceConnected *bool
}

// Troubleshooting returns the ordered list of checks for a failed launch.
func (d LaunchDiagnostics) Troubleshooting() []string {
	server := "Verify the Appium server is running at " + d.ServerURL
	if !d.ServerReachable {
		server += " (currently unreachable)"
	}
	device := "Check the device or emulator is connected (adb devices)"
	if d.DeviceConnected != nil && !*d.DeviceConnected {
		device += " (no device detected)"
	}
	return []string{
		server,
		fmt.Sprintf("Verify the app is installed: adb shell pm list packages | grep %s", d.Package),
		device,
		fmt.Sprintf("Confirm device name %q and platform version %q match the running device", d.DeviceName, d.PlatformVersion),
		fmt.Sprintf("Verify package %q and entry points %s exist in the installed build", d.Package, strings.Join(d.EntryPoints, ", ")),
		"Review the appium.* keys in the configuration file",
		"Make sure the device is unlocked and not showing a system dialog",
	}
}

// LaunchExhaustedError means every entry point candidate failed.
type LaunchExhaustedError struct {
	Attempts    []LaunchAttempt
	Diagnostics LaunchDiagnostics
}

func (e *LaunchExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.EntryPoint, a.Err))
	}
	return fmt.Sprintf("failed to launch %s after %d attempts [%s]",
		e.Diagnostics.Package, len(e.Attempts), strings.Join(parts, "; "))
}

// Unwrap exposes every attempt's cause to errors.Is/As.
func (e *LaunchExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

func (e *LaunchExhaustedError) Category() ErrorCategory { return ErrCategoryApp }

// ConfigError means a required configuration key is missing or invalid.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

func (e *ConfigError) Category() ErrorCategory { return ErrCategoryConfig }
