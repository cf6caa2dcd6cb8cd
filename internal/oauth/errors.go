package oauth

import (
	"errors"
	"fmt"

	pkgoauth "github.com/getgetleads/connect/pkg/oauth"
)

var (
	// ErrGuestMode is returned when a guest session tries to connect a
	// provider. Guest users have no backend account to own the connection.
	ErrGuestMode = errors.New("provider connections are not available in guest mode")

	// ErrInvalidState is returned when a callback carries a state that was
	// never issued, has expired, or was already consumed.
	ErrInvalidState = errors.New("invalid or expired authorization state")

	// ErrNotConnected is returned when no session exists for a provider.
	ErrNotConnected = errors.New("provider is not connected")

	// ErrReauthRequired is returned when a session cannot be refreshed and
	// the user must authorize again.
	ErrReauthRequired = errors.New("re-authorization required")

	// ErrInsufficientScope is matched by InsufficientScopeError.
	ErrInsufficientScope = errors.New("token lacks a required scope")
)

// ConfigurationError reports missing or invalid client configuration. It is
// a developer error and is not recoverable at runtime.
type ConfigurationError struct {
	Provider pkgoauth.Provider
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Provider == "" {
		return "oauth configuration error: " + e.Reason
	}
	return fmt.Sprintf("oauth configuration error for %s: %s", e.Provider, e.Reason)
}

// ProviderDeniedError is returned when the provider redirected back with an
// error, typically because the user declined consent.
type ProviderDeniedError struct {
	Provider    pkgoauth.Provider
	Code        string
	Description string
}

func (e *ProviderDeniedError) Error() string {
	msg := "authorization denied by provider: " + e.Code
	if e.Provider != "" {
		msg = fmt.Sprintf("authorization denied by %s: %s", e.Provider, e.Code)
	}
	if e.Description != "" {
		msg += " (" + e.Description + ")"
	}
	return msg
}

// ExchangeFailedError is returned when the backend could not turn an
// authorization code into tokens.
type ExchangeFailedError struct {
	Provider pkgoauth.Provider
	Cause    error
}

func (e *ExchangeFailedError) Error() string {
	return fmt.Sprintf("token exchange for %s failed: %v", e.Provider, e.Cause)
}

func (e *ExchangeFailedError) Unwrap() error {
	return e.Cause
}

// TransientError is returned when a refresh failed for a reason that may go
// away on retry. The session is left intact.
type TransientError struct {
	Provider pkgoauth.Provider
	Cause    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("temporary failure for %s: %v", e.Provider, e.Cause)
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

// InsufficientScopeError is returned when an authenticated API call was
// rejected because the token lacks a permission. The token itself is still
// valid and is kept.
type InsufficientScopeError struct {
	Provider pkgoauth.Provider
	// Required is the scope requested by the API, when it said so.
	Required string
}

func (e *InsufficientScopeError) Error() string {
	if e.Required == "" {
		return fmt.Sprintf("%s token lacks a required scope", e.Provider)
	}
	return fmt.Sprintf("%s token lacks required scope %q", e.Provider, e.Required)
}

// Is makes errors.Is(err, ErrInsufficientScope) match.
func (e *InsufficientScopeError) Is(target error) bool {
	return target == ErrInsufficientScope
}

// NeedsReconnect reports whether err should be shown to the user as a
// "connect" call-to-action rather than as an error.
func NeedsReconnect(err error) bool {
	if err == nil {
		return false
	}
	var denied *ProviderDeniedError
	return errors.Is(err, ErrNotConnected) ||
		errors.Is(err, ErrReauthRequired) ||
		errors.Is(err, ErrInsufficientScope) ||
		errors.Is(err, ErrInvalidState) ||
		errors.As(err, &denied)
}

func notConnected(provider pkgoauth.Provider) error {
	return fmt.Errorf("%s: %w", provider, ErrNotConnected)
}

func reauthRequired(provider pkgoauth.Provider, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", provider, ErrReauthRequired)
	}
	return fmt.Errorf("%s: %w: %w", provider, ErrReauthRequired, cause)
}
