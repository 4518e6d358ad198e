package remote

import (
	"errors"
	"fmt"
)

// ConfigurationError means the remote integration is not configured
// for this deployment. Sync is permanently disabled for the session
// and never retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("remote sync not configured: %s", e.Reason)
}

func IsConfigurationError(err error) bool {
	var configurationErr *ConfigurationError
	return errors.As(err, &configurationErr)
}

// AuthError means there is no active authenticated session. It is
// surfaced for re-authentication and never retried automatically.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("not authenticated: %s", e.Reason)
}

func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// NotFoundError means no remote save exists for the user yet. It is a
// valid outcome for a new user, not a failure.
type NotFoundError struct {
}

func (e *NotFoundError) Error() string {
	return "remote save not found"
}

func IsNotFound(err error) bool {
	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr)
}

// NetworkError is a transient failure. It is retried with backoff up
// to a cap. Any unclassified failure crossing the orchestrator
// boundary is normalized to a NetworkError so the state machine
// always has a defined transition.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func IsNetworkError(err error) bool {
	var networkErr *NetworkError
	return errors.As(err, &networkErr)
}
