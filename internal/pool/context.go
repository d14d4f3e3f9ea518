package pool

import "context"

// WorkerID identifies one long-lived worker goroutine. Goroutines have no
// accessible runtime identity, so the task layer brands each worker's
// context explicitly; everything keyed by WorkerID must stay on that
// worker's goroutine.
type WorkerID string

type workerKey struct{}

// NewWorkerContext returns a context carrying the worker's identity.
func NewWorkerContext(ctx context.Context, worker WorkerID) context.Context {
	return context.WithValue(ctx, workerKey{}, worker)
}

// WorkerFromContext extracts the worker identity, if any.
func WorkerFromContext(ctx context.Context) (WorkerID, bool) {
	worker, ok := ctx.Value(workerKey{}).(WorkerID)
	return worker, ok
}
