// Package schederr holds the sentinel errors shared across the metadata
// store, chunk pool and scheduler.
package schederr

import "errors"

var (
	// ErrNoTask is the sentinel returned by reserve and steal when nothing
	// is available. Not a failure.
	ErrNoTask = errors.New("no task available")

	// ErrMetaMissing indicates corruption or a lost metadata-store entry
	// that should have existed (e.g. a refcount decrement against an
	// untracked id). Fatal to the run.
	ErrMetaMissing = errors.New("metadata store: entry missing")

	// ErrPoolMissing indicates a lost chunk handle in the off-heap pool.
	// Fatal to the run.
	ErrPoolMissing = errors.New("chunk pool: handle missing")

	// ErrUserThunkFailure wraps an error returned by a thunk's own
	// function. Fatal to the run; partial results may remain in the
	// metadata store but are not guaranteed consistent.
	ErrUserThunkFailure = errors.New("thunk function failed")

	// ErrPeerUnavailable indicates a peer's deque handle is invalid.
	// Stealing from that peer degrades to NoTask; the executor continues
	// with other peers.
	ErrPeerUnavailable = errors.New("peer unavailable")
)
