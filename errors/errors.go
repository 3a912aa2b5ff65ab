package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	// ErrInvalidIdentity means a connection tried to act before a verified
	// handshake, or presented a token that does not verify.
	ErrInvalidIdentity = fmt.Errorf("invalid identity")

	// ErrUnknownMessage covers a missing message id as well as a soft-deleted
	// message when the operation requires a live one.
	ErrUnknownMessage = fmt.Errorf("unknown message")

	// ErrUnauthorized is returned for edit/delete from a non-sender.
	// Acks from a non-receiver are silently dropped instead.
	ErrUnauthorized = fmt.Errorf("unauthorized")

	// ErrStoreUnavailable wraps persistence failures. A send is never
	// acknowledged to its caller when the initial write did not commit.
	ErrStoreUnavailable = fmt.Errorf("store unavailable")

	ErrUnsupportedAttachment = fmt.Errorf("unsupported attachment type")
	ErrEmptyWords            = fmt.Errorf("no words have been found")
)

// MapToStatus translates the domain taxonomy for the HTTP surface.
func MapToStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnknownMessage):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidIdentity):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnsupportedAttachment):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
