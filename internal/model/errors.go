package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the agent's failure taxonomy.
// Use errors.Is() to check against these.
var (
	// ErrConfig marks missing or invalid signing credentials. Fatal for the
	// run; never retried or suppressed.
	ErrConfig = errors.New("configuration error")

	// ErrNetwork marks an unexpected HTTP status or transport failure at any
	// fetch/settle/retry step. Terminates the run; not retried internally.
	ErrNetwork = errors.New("network error")

	// ErrMalformedInput marks deterministic, non-retryable input problems:
	// invalid selection indices, unsupported paywall protocol, malformed
	// 402 challenge bodies.
	ErrMalformedInput = errors.New("malformed input")

	// ErrInternal marks anything else, tagged with its originating operation.
	ErrInternal = errors.New("internal error")
)

// AgentError is the structured error returned from resolver, negotiator, and
// planner operations. Implements error and supports unwrapping, so callers
// can pattern-match with errors.Is()/errors.As() to decide propagate-vs-absorb.
type AgentError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Op         string `json:"-"` // Originating operation, not serialized
	StatusCode int    `json:"-"` // Suggested HTTP status, not serialized
	Err        error  `json:"-"` // Wrapped sentinel or cause, not serialized
}

func (e *AgentError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// NewConfigError reports a missing or unusable credential/setting.
func NewConfigError(op, reason string) *AgentError {
	return &AgentError{
		Code:       "CONFIG_ERROR",
		Message:    reason,
		Op:         op,
		StatusCode: 500,
		Err:        ErrConfig,
	}
}

// NewNetworkError reports an unexpected HTTP status or transport failure.
// detail typically carries the status code and a truncated body excerpt.
func NewNetworkError(op, detail string, cause error) *AgentError {
	err := error(ErrNetwork)
	if cause != nil {
		err = fmt.Errorf("%w: %v", ErrNetwork, cause)
	}
	return &AgentError{
		Code:       "NETWORK_ERROR",
		Message:    detail,
		Op:         op,
		StatusCode: 502,
		Err:        err,
	}
}

// NewValidationError reports invalid input for a named field.
func NewValidationError(op, field, reason string) *AgentError {
	return &AgentError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		Op:         op,
		StatusCode: 400,
		Err:        ErrMalformedInput,
	}
}

// NewChallengeError reports a malformed 402 challenge body.
func NewChallengeError(op, reason string) *AgentError {
	return &AgentError{
		Code:       "MALFORMED_CHALLENGE",
		Message:    reason,
		Op:         op,
		StatusCode: 502,
		Err:        ErrMalformedInput,
	}
}

// NewInternalError wraps an unexpected failure, tagged with its operation.
func NewInternalError(op string, cause error) *AgentError {
	return &AgentError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		Op:         op,
		StatusCode: 500,
		Err:        fmt.Errorf("%w: %v", ErrInternal, cause),
	}
}
