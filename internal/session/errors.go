package session

import (
	"errors"

	"github.com/shehryarbajwa/giftcard-mini/pkg/models"
)

// Sentinel errors. They are wrapped with oops for code and context, so test
// with errors.Is.
var (
	// ErrAuthenticationFailed means the form could not be filled or the
	// result page never appeared.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrInvalidIdentifier covers malformed, unknown, consumed and unverified
	// identifiers alike.
	ErrInvalidIdentifier = errors.New("invalid or expired session identifier")
	// ErrExtractionFailed means the result page could not be read. The
	// session is torn down regardless.
	ErrExtractionFailed = errors.New("failed to extract result")
	// ErrResourceUnavailable means no browser page could be obtained.
	ErrResourceUnavailable = errors.New("browser resource unavailable")
	// ErrDuplicateIdentifier is returned by Store.Put for a live id.
	ErrDuplicateIdentifier = errors.New("duplicate session identifier")
	// ErrClosed is returned once the manager has shut down.
	ErrClosed = errors.New("session manager closed")
)

// oops codes attached to wrapped sentinels.
const (
	CodeAuthFailed          = "AUTH_FAILED"
	CodeInvalidIdentifier   = "INVALID_IDENTIFIER"
	CodeExtractionFailed    = "EXTRACTION_FAILED"
	CodeResourceUnavailable = "RESOURCE_UNAVAILABLE"
	CodeDuplicateIdentifier = "DUPLICATE_IDENTIFIER"
	CodeCancelled           = "CANCELLED"
	CodeClosed              = "MANAGER_CLOSED"
)

// StatusOf maps an auth outcome to the status reported to callers. Expected
// failures are "fail" and safe to retry; anything else is "error".
func StatusOf(err error) models.AuthStatus {
	switch {
	case err == nil:
		return models.AuthSuccess
	case errors.Is(err, ErrAuthenticationFailed),
		errors.Is(err, ErrResourceUnavailable),
		errors.Is(err, ErrInvalidIdentifier):
		return models.AuthFail
	default:
		return models.AuthError
	}
}
