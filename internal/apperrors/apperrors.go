// Package apperrors defines the error taxonomy shared across the engine.
//
// Every component surfaces failures as one of a fixed set of structured
// error codes rather than ad-hoc exception types, so callers at the
// boundary (the HTTP server, C10's event mapper) can map a failure to an
// HTTP status or an envelope without type-switching over every possible
// concrete error. Each type here implements Coder so a single
// errors.As-based switch in the server and in C10 covers all of them.
package apperrors

import "fmt"

// Coder is implemented by every error type in this package.
type Coder interface {
	error
	Code() string
}

// ConfigError indicates a problem with static configuration: a missing
// required API key, an unknown provider type, a missing prompt file where
// one is required. Fatal at startup, or at first use of the misconfigured
// component.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "config error: " + e.Reason }
func (e *ConfigError) Code() string  { return "config_error" }

// ValidationError indicates a bad request: an out-of-range setting, an
// empty personality list, a question over the length limit. Local to the
// call that produced it and always safe to return to the caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Reason
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}
func (e *ValidationError) Code() string { return "validation_error" }

// NotFoundError indicates the requested entity does not exist, or exists
// but is owned by a different user. The two cases are deliberately
// indistinguishable to the caller — returning a different error for
// "exists but not yours" would disclose the entity's existence.
type NotFoundError struct {
	Kind string // e.g. "debate"
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found: %s", e.Kind, e.ID) }
func (e *NotFoundError) Code() string  { return "not_found" }

// InsufficientCreditsError is surfaced as HTTP 402 at debate creation or
// stream start. Required, Available, and Shortfall are all in money.Micros
// scaled USD, kept as int64 here to avoid importing internal/money from
// the lowest-level error package.
type InsufficientCreditsError struct {
	RequiredMicros  int64
	AvailableMicros int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d (shortfall %d)",
		e.RequiredMicros, e.AvailableMicros, e.Shortfall())
}
func (e *InsufficientCreditsError) Code() string { return "insufficient_credits" }

// Shortfall is RequiredMicros - AvailableMicros, floored at 0.
func (e *InsufficientCreditsError) Shortfall() int64 {
	d := e.RequiredMicros - e.AvailableMicros
	if d < 0 {
		return 0
	}
	return d
}

// ProviderError wraps an upstream LLM call failure. It carries the
// provider name for attribution and the raw upstream message; wrapping the
// underlying error preserves the chain for %w-based errors.Is/As callers.
// A ProviderError from a personality turn or the synthesizer fails the
// whole debate; a consensus judge failure does not.
type ProviderError struct {
	Provider string
	Message  string
	Err      error

	// Source distinguishes a repository (persistence) failure surfaced
	// through this same error class from a genuine upstream LLM failure,
	// per spec's "distinguished by source=repository in details" rule.
	Source string
}

func (e *ProviderError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s error (%s): %s", e.Source, e.Provider, e.Message)
	}
	return fmt.Sprintf("provider error (%s): %s", e.Provider, e.Message)
}
func (e *ProviderError) Code() string  { return "provider_error" }
func (e *ProviderError) Unwrap() error { return e.Err }

// ParseError is produced only by the consensus judge when it cannot parse
// a JSON verdict out of the model's response. It is never surfaced to a
// caller — the judge downgrades it in place to a {false, reasoning}
// verdict — but it is a distinct type so tests can assert the judge
// actually hit the parse-failure path rather than some other bug.
type ParseError struct {
	Raw string
}

func (e *ParseError) Error() string { return "parse error: could not locate JSON verdict" }
func (e *ParseError) Code() string  { return "parse_error" }

// CancelledError is produced on cooperative cancellation (client
// disconnect or an explicit cancel call) and yields the terminal debate
// state "cancelled" rather than "failed".
type CancelledError struct {
	Reason string
}

func (e *CancelledError) Error() string {
	if e.Reason == "" {
		return "cancelled"
	}
	return "cancelled: " + e.Reason
}
func (e *CancelledError) Code() string { return "cancelled" }
