// Package apperr defines the sentinel errors of the admission pipeline and
// their mapping to reply status codes.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrMalformed marks a message whose shape failed validation.
	ErrMalformed = errors.New("malformed message")
	// ErrUnauthorized covers both authentication and authorization failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTenantNotServed marks a target tenant this node does not host.
	ErrTenantNotServed = errors.New("tenant not served")
	// ErrConflict marks a message superseded by equal-or-newer existing state.
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks a delete of a nonexistent or already-deleted record.
	ErrNotFound = errors.New("not found")
)

// Status maps an error to the numeric reply code of the processing contract.
// Unclassified errors (storage failures and the like) map to 500 and are
// propagated to the caller unmodified.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusAccepted
	case errors.Is(err, ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrTenantNotServed):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
