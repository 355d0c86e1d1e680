// Package orcherr defines the orchestrator's error taxonomy and the rolling
// JSONL error log that every non-planning failure is appended to before it
// reaches the CLI layer.
package orcherr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error into one of the five taxonomy buckets plus the
// reap-specific ReapStuck kind.
type Kind string

const (
	KindPlanRejected     Kind = "PlanRejected"
	KindSpawnFailed      Kind = "SpawnFailed"
	KindRegistryConflict Kind = "RegistryConflict"
	KindTrackerError     Kind = "TrackerError"
	KindVerifyFailed     Kind = "VerifyFailed"
	KindReapStuck        Kind = "ReapStuck"
)

// Error is the structured record every orchestrator failure is surfaced as.
// Reason holds the fine-grained sub-code (e.g. "closed_issue",
// "PhaseNotComplete"); Message is the human-readable summary; Context
// carries key/value detail for the error log and CLI remediation hints.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Context map[string]string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with the given kind, reason and message.
func New(kind Kind, reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message}
}

// Wrap builds an Error around an existing cause.
func Wrap(kind Kind, reason string, cause error) *Error {
	msg := reason
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", reason, cause)
	}
	return &Error{Kind: kind, Reason: reason, Message: msg, Cause: cause}
}

// WithContext attaches key/value context and returns the same Error for
// chaining at the call site.
func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// Is lets errors.Is match on Kind+Reason without requiring the exact
// Message/Context/Cause to line up, so callers can write
// errors.Is(err, orcherr.New(orcherr.KindVerifyFailed, "PhaseNotComplete", "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	if t.Reason != "" && t.Reason != e.Reason {
		return false
	}
	return true
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
