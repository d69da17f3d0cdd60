package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes or socket
// reason codes without leaking infrastructure details.
var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyInState = errors.New("already in requested state")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrStoreFailure   = errors.New("store failure")
	ErrBadRequest     = errors.New("bad request")
	// ErrIndeterminate means a non-atomic bulk write failed part way and the
	// number of records actually changed is unknown.
	ErrIndeterminate = errors.New("indeterminate bulk result")
)

// Stable reason codes sent back to clients.
const (
	CodeNotFound       = "NOT_FOUND"
	CodeAlreadyInState = "ALREADY_IN_STATE"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeStoreFailure   = "STORE_FAILURE"
	CodeBadRequest     = "BAD_REQUEST"
	CodeIndeterminate  = "INDETERMINATE"
	CodeRateLimited    = "RATE_LIMITED"
	CodeUnknownEvent   = "UNKNOWN_EVENT"
)

// ReasonCode maps an error to its stable reason code. Anything not
// recognised is reported as a store failure.
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAlreadyInState):
		return CodeAlreadyInState
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrBadRequest):
		return CodeBadRequest
	case errors.Is(err, ErrIndeterminate):
		return CodeIndeterminate
	default:
		return CodeStoreFailure
	}
}
