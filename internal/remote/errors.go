// Package remote – error taxonomy for the remote API collaborator.
//
// Callers branch on three outcomes, mirroring the recovery policy of the
// data layer:
//   - ErrUnavailable (network error, timeout, 5xx): recoverable locally,
//     the caller falls back to the offline path.
//   - *ValidationError (400/422): a data-integrity failure; surfaced on
//     direct calls, flagged non-retryable on replay.
//   - *ConflictError (409): the server already holds conflicting state.
//     On a CREATE replay carrying an idempotency key this usually means a
//     timed-out write actually landed; the body may carry the existing
//     record for success-with-reconciliation.
package remote

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnavailable indicates the remote API could not be reached or answered
// with a server error. A timed-out request is indistinguishable from a
// failed one and maps here too.
var ErrUnavailable = errors.New("remote unavailable")

// ErrNotFound indicates the remote API answered 404 for the resource.
var ErrNotFound = errors.New("remote record not found")

// ValidationError is a non-retryable 4xx rejection of the request payload.
type ValidationError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("remote validation failed (%d): %s", e.Status, e.Message)
}

// ConflictError is a 409 rejection. Record holds the response body when the
// server returned the already-existing entity, so replays can reconcile
// against it instead of failing hard.
type ConflictError struct {
	Message string
	Record  json.RawMessage
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("remote conflict: %s", e.Message)
}
