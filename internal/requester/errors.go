package requester

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is wrapped by AuthorizationError.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRefreshRejected means the backend refused the refresh token itself.
	ErrRefreshRejected = errors.New("refresh token rejected")

	// ErrNoRefreshToken means there was nothing to refresh with.
	ErrNoRefreshToken = errors.New("no refresh token")

	// ErrAlreadyRetried marks a request that failed again after its one replay.
	ErrAlreadyRetried = errors.New("request already retried")

	// ErrRefreshAborted is delivered to waiters when the refresh call
	// panicked. Credentials are left as they were.
	ErrRefreshAborted = errors.New("refresh aborted")

	// ErrSessionInvalid is reported once the credentials have been cleared
	// after a failed refresh. The session layer treats it as a forced logout.
	ErrSessionInvalid = errors.New("session invalid")
)

// NetworkError is a transient failure talking to the backend. The refresh
// token may still be valid, so credentials are kept.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// AuthorizationError is returned to callers whose request still failed
// authorization after the refresh machinery had its chance.
type AuthorizationError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization failed: %s %s returned %d", e.Method, e.Path, e.StatusCode)
}

func (e *AuthorizationError) Unwrap() error {
	return ErrUnauthorized
}
