package shared

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Network errors
	ErrNetwork            = fmt.Errorf("network request failed")
	ErrTimeout            = fmt.Errorf("operation timed out")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Authentication errors
	ErrAuthFailed         = fmt.Errorf("authentication failed")
	ErrNotAuthenticated   = fmt.Errorf("not authenticated")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrAccountNotFound    = fmt.Errorf("account not found")
	ErrAlreadyExists      = fmt.Errorf("account already exists")
	ErrTokenExpired       = fmt.Errorf("access token expired")
	ErrRefreshFailed      = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken     = fmt.Errorf("no refresh token available")

	// Protocol errors
	ErrAPIRequest = fmt.Errorf("API request failed")
	ErrProtocol   = fmt.Errorf("unexpected response")

	// Track insertion stopped partway through a playlist
	ErrPartialFailure = fmt.Errorf("partial failure")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrTokenNotFound   = fmt.Errorf("token not found")
)

// PartialFailureError reports a chunked insertion that stopped after Added of Total items were written.
//
// Items already written stay in place; nothing is rolled back.
type PartialFailureError struct {
	Added int
	Total int
	Err   error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%v: added %d of %d tracks: %v", ErrPartialFailure, e.Added, e.Total, e.Err)
}

// Is matches [ErrPartialFailure].
func (e *PartialFailureError) Is(target error) bool {
	return target == ErrPartialFailure
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}

// Kind classifies err into the coarse families used for log fields.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPartialFailure):
		return "partial"
	case errors.Is(err, ErrNetwork), errors.Is(err, ErrTimeout), errors.Is(err, ErrServiceUnavailable):
		return "network"
	case errors.Is(err, ErrAuthFailed), errors.Is(err, ErrNotAuthenticated), errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrRefreshFailed), errors.Is(err, ErrNoRefreshToken), errors.Is(err, ErrMissingCredentials):
		return "auth"
	case errors.Is(err, ErrProtocol), errors.Is(err, ErrAPIRequest):
		return "protocol"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMissingArgument), errors.Is(err, ErrInvalidArgument):
		return "input"
	default:
		return "unknown"
	}
}
