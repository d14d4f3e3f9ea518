package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolExhausted means the bounded wait for a free slot timed out.
	// Transient: the caller owns retry/backoff policy.
	ErrPoolExhausted = errors.New("browser pool exhausted: no instance became available before timeout")

	// ErrInvalidRelease means a double release or a release of an instance
	// this pool never checked out.
	ErrInvalidRelease = errors.New("released instance is not checked out of this pool")

	// ErrNoWorker means the context carries no worker identity, so there is
	// no pool to acquire from.
	ErrNoWorker = errors.New("context carries no worker identity")
)

// ShutdownError is returned when the calling worker's own pool has been shut
// down. It names the owner so operators can tell a locally intentional
// shutdown from a global outage; it is never caused by another worker's pool.
type ShutdownError struct {
	Worker WorkerID
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("browser pool for worker %q is shut down", e.Worker)
}

// LaunchError wraps an engine start failure. The slot is not consumed;
// callers may retry.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch browser: %v", e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
