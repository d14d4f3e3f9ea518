package pool

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/newswatch/browserpool/internal/engine"
)

// Registry maps worker identity to that worker's pool. Insertion is the only
// cross-worker-contended operation; a worker only ever resolves its own
// entry, while the janitor and health reporter traverse read-only snapshots.
type Registry struct {
	limits   Limits
	launcher engine.Launcher
	log      *zap.Logger

	mu    sync.RWMutex
	pools map[WorkerID]*WorkerPool
}

func NewRegistry(limits Limits, launcher engine.Launcher, log *zap.Logger) *Registry {
	return &Registry{
		limits:   limits.withDefaults(),
		launcher: launcher,
		log:      log,
		pools:    make(map[WorkerID]*WorkerPool),
	}
}

// PoolFor returns the worker's pool, creating it on first use. Concurrent
// first use from many workers is safe; each worker gets exactly one pool.
func (r *Registry) PoolFor(worker WorkerID) *WorkerPool {
	r.mu.RLock()
	p, ok := r.pools[worker]
	r.mu.RUnlock()
	if ok {
		return p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pools[worker]; ok {
		return p
	}
	p = newWorkerPool(worker, r.limits, r.launcher, r.log)
	r.pools[worker] = p
	r.log.Debug("created worker pool", zap.String("worker", string(worker)))
	return p
}

// Snapshot returns a stable, read-only view of every known pool: counts and
// limits only, no engine handles, so the single-owner invariant survives
// cross-worker traversal.
func (r *Registry) Snapshot() []WorkerStats {
	r.mu.RLock()
	pools := make([]*WorkerPool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	r.mu.RUnlock()

	stats := make([]WorkerStats, 0, len(pools))
	for _, p := range pools {
		stats = append(stats, p.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Worker < stats[j].Worker })
	return stats
}

// EvictExpired runs eviction on one worker's pool, identified by the IDs a
// Snapshot returned. Unknown workers evict nothing.
func (r *Registry) EvictExpired(worker WorkerID) int {
	r.mu.RLock()
	p, ok := r.pools[worker]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	return p.EvictExpired()
}

// ShutdownWorker shuts down one worker's pool. Sibling pools are unaffected.
func (r *Registry) ShutdownWorker(worker WorkerID) {
	r.mu.RLock()
	p, ok := r.pools[worker]
	r.mu.RUnlock()
	if ok {
		p.Shutdown()
	}
}

// ShutdownAll shuts down every pool, one at a time. Used by the supervisor
// that owns all worker lifetimes during process teardown; there is no
// implicit exit-hook path to this.
func (r *Registry) ShutdownAll() {
	r.mu.RLock()
	pools := make([]*WorkerPool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	r.mu.RUnlock()

	for _, p := range pools {
		p.Shutdown()
	}
}
