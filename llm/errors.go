package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode aligns vendor failures with HTTP status, retryability and
// fallback policy.
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "LLM_INVALID_REQUEST"
	ErrUnauthorized        ErrorCode = "LLM_UNAUTHORIZED"
	ErrForbidden           ErrorCode = "LLM_FORBIDDEN"
	ErrRateLimited         ErrorCode = "LLM_RATE_LIMITED"
	ErrModelOverloaded     ErrorCode = "LLM_MODEL_OVERLOADED"
	ErrUpstreamTimeout     ErrorCode = "LLM_UPSTREAM_TIMEOUT"
	ErrUpstreamError       ErrorCode = "LLM_UPSTREAM_ERROR"
	ErrProviderUnavailable ErrorCode = "LLM_PROVIDER_UNAVAILABLE"
)

// Error is the wire-level provider error. Retryable reflects the vendor
// status: auth and bad-request failures are terminal, everything else may be
// retried once via the fallback provider.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// MapHTTPError maps an upstream HTTP status to an *Error.
func MapHTTPError(status int, msg, provider string) *Error {
	code := ErrUpstreamError
	retryable := status >= 500

	switch status {
	case http.StatusUnauthorized:
		code = ErrUnauthorized
	case http.StatusForbidden:
		code = ErrForbidden
	case http.StatusTooManyRequests:
		code = ErrRateLimited
		retryable = true
	case http.StatusBadRequest:
		code = ErrInvalidRequest
	}

	return &Error{
		Code:       code,
		Message:    msg,
		HTTPStatus: status,
		Retryable:  retryable,
		Provider:   provider,
	}
}

// IsRetryable reports whether err may be retried on another provider.
// Auth and bad-request failures (400/401/403) are never retried; unknown
// error types are assumed transient (network level).
func IsRetryable(err error) bool {
	var le *Error
	if errors.As(err, &le) {
		switch le.HTTPStatus {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			return false
		}
		return le.Retryable || le.HTTPStatus == 0 || le.HTTPStatus >= 500
	}
	return true
}

// ConfigurationError reports missing or invalid provider/embedding
// configuration.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// ProviderNotFoundError is returned when a named provider is not registered
// or failed to initialize.
type ProviderNotFoundError struct {
	ProviderID string
}

func (e *ProviderNotFoundError) Error() string {
	return fmt.Sprintf("provider %q not found", e.ProviderID)
}

// Availability is the diagnostic snapshot for one known provider id,
// recorded whether or not the provider is configured.
type Availability struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
	Hint      string `json:"hint,omitempty"`
	EnvVar    string `json:"env_var,omitempty"`
}

// NoProviderConfiguredError means no known provider had usable credentials.
// It carries the full availability snapshot so the caller can report exactly
// what was checked and why each provider fell through.
type NoProviderConfiguredError struct {
	Snapshot map[string]Availability
}

func (e *NoProviderConfiguredError) Error() string {
	return fmt.Sprintf("no LLM provider configured (%d checked)", len(e.Snapshot))
}

// ModelIDMissingError means an explicit provider was requested without a
// model id and the provider has no configured default.
type ModelIDMissingError struct {
	ProviderID string
}

func (e *ModelIDMissingError) Error() string {
	return fmt.Sprintf("no model id given and provider %q has no default model", e.ProviderID)
}

// MethodNotSupportedError means an optional provider capability was required
// but not implemented.
type MethodNotSupportedError struct {
	ProviderID string
	Method     string
}

func (e *MethodNotSupportedError) Error() string {
	return fmt.Sprintf("provider %q does not support %s", e.ProviderID, e.Method)
}

// ModelSelectionFailedError means no embedding model could be resolved by
// any selection stage.
type ModelSelectionFailedError struct {
	Strategy string
}

func (e *ModelSelectionFailedError) Error() string {
	return fmt.Sprintf("embedding model selection failed (strategy %q, no fallback or default model)", e.Strategy)
}

// WrapProviderError attaches provider identity to an underlying vendor or
// network failure without losing the original for errors.As/Is.
func WrapProviderError(providerID string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("provider %s: %w", providerID, err)
}
