package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Contact stores return these
// (optionally wrapped) and the contact service translates them into coded
// domain errors:
//   - ErrNotFound: no live (non-deleted) row matches
//   - ErrConflict: the backend aborted the transaction (serialization failure, deadlock)
//   - ErrInvalidState: a row is not in the state the operation requires
//   - ErrUnavailable: the backend cannot be reached or timed out
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
