package pool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newswatch/browserpool/internal/engine"
)

// Limits bounds one worker's browser processes.
type Limits struct {
	MaxPerWorker   int           // live processes per worker
	MaxAge         time.Duration // retirement age threshold
	MaxUsage       int           // retirement use-count threshold
	AcquireTimeout time.Duration // max wait for a free slot
}

// DefaultLimits mirrors the production scraper deployment.
func DefaultLimits() Limits {
	return Limits{
		MaxPerWorker:   2,
		MaxAge:         30 * time.Minute,
		MaxUsage:       50,
		AcquireTimeout: 5 * time.Second,
	}
}

func (l Limits) withDefaults() Limits {
	def := DefaultLimits()
	if l.MaxPerWorker <= 0 {
		l.MaxPerWorker = def.MaxPerWorker
	}
	if l.MaxAge <= 0 {
		l.MaxAge = def.MaxAge
	}
	if l.MaxUsage <= 0 {
		l.MaxUsage = def.MaxUsage
	}
	if l.AcquireTimeout <= 0 {
		l.AcquireTimeout = def.AcquireTimeout
	}
	return l
}

// WorkerPool owns the browser processes of exactly one worker. The worker
// alone acquires and releases; the janitor may evict idle instances from any
// goroutine because idle instances have no outstanding holder. The shutdown
// flag is local to this pool and never affects a sibling worker's pool.
type WorkerPool struct {
	worker   WorkerID
	limits   Limits
	launcher engine.Launcher
	log      *zap.Logger

	mu        sync.Mutex
	idle      []*Instance // LIFO: freshest engine state reused first
	active    map[uuid.UUID]*Instance
	launching int
	shutdown  bool

	// released carries a wake-up for a capacity waiter; buffered so a
	// release never blocks on a missing waiter.
	released chan struct{}
}

func newWorkerPool(worker WorkerID, limits Limits, launcher engine.Launcher, log *zap.Logger) *WorkerPool {
	return &WorkerPool{
		worker:   worker,
		limits:   limits.withDefaults(),
		launcher: launcher,
		log:      log.With(zap.String("worker", string(worker))),
		active:   make(map[uuid.UUID]*Instance),
		released: make(chan struct{}, 1),
	}
}

func (p *WorkerPool) Worker() WorkerID { return p.worker }

// total counts every slot the pool is responsible for, including launches in
// flight, so |idle|+|active|+|launching| never exceeds MaxPerWorker.
func (p *WorkerPool) total() int {
	return len(p.idle) + len(p.active) + p.launching
}

// Acquire returns an idle instance (most recently returned first), launches
// a new one below capacity, or waits up to the configured timeout for a
// release. It fails with ErrPoolExhausted on timeout, *ShutdownError once
// this pool has been shut down, and *LaunchError if the engine fails to
// start (the slot is returned).
func (p *WorkerPool) Acquire(ctx context.Context) (*Instance, error) {
	timeout := time.NewTimer(p.limits.AcquireTimeout)
	defer timeout.Stop()

	for {
		inst, expired, launch, err := p.tryAcquire()
		for _, dead := range expired {
			p.terminate(dead, "expired on acquire")
		}
		if len(expired) > 0 {
			p.notifyReleased()
		}
		if err != nil {
			return nil, err
		}
		if inst != nil {
			return inst, nil
		}
		if launch {
			return p.launch(ctx)
		}

		select {
		case <-p.released:
			// Capacity may have freed; retry.
		case <-timeout.C:
			return nil, ErrPoolExhausted
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// tryAcquire makes one non-blocking pass: pop a live idle instance, reserve
// a launch slot, or report that the caller must wait. Expired idle entries
// are handed back for termination outside the lock.
func (p *WorkerPool) tryAcquire() (inst *Instance, expired []*Instance, launch bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		return nil, nil, false, &ShutdownError{Worker: p.worker}
	}

	now := time.Now()
	for n := len(p.idle); n > 0; n = len(p.idle) {
		cand := p.idle[n-1]
		p.idle = p.idle[:n-1]
		if cand.expired(now, p.limits.MaxAge, p.limits.MaxUsage) {
			cand.state = StateRetiring
			expired = append(expired, cand)
			continue
		}
		cand.state = StateActive
		p.active[cand.id] = cand
		return cand, expired, false, nil
	}

	if p.total() < p.limits.MaxPerWorker {
		p.launching++
		return nil, expired, true, nil
	}
	return nil, expired, false, nil
}

// launch starts a new engine outside the lock; the reserved slot is given
// back on failure so a flaky launch never shrinks capacity.
func (p *WorkerPool) launch(ctx context.Context) (*Instance, error) {
	eng, err := p.launcher.Launch(ctx)

	p.mu.Lock()
	p.launching--
	if err != nil {
		p.mu.Unlock()
		p.notifyReleased()
		return nil, &LaunchError{Err: err}
	}
	if p.shutdown {
		p.mu.Unlock()
		if cerr := eng.Close(); cerr != nil {
			p.log.Warn("closing engine launched during shutdown", zap.Error(cerr))
		}
		p.notifyReleased()
		return nil, &ShutdownError{Worker: p.worker}
	}

	inst := newInstance(eng)
	inst.state = StateActive
	p.active[inst.id] = inst
	p.mu.Unlock()

	p.log.Info("launched browser instance",
		zap.String("instance", inst.id.String()),
		zap.Int("active", p.ActiveCount()))
	return inst, nil
}

// Release returns a checked-out instance. On success the instance goes back
// to the idle stack unless it crossed an age or usage limit; on failure it
// is always retired, since an engine that errored mid-operation may be in a
// corrupt state. Releasing an unowned or already-released instance returns
// ErrInvalidRelease.
func (p *WorkerPool) Release(inst *Instance, ok bool) error {
	if inst == nil {
		return ErrInvalidRelease
	}

	p.mu.Lock()
	if _, checkedOut := p.active[inst.id]; !checkedOut {
		p.mu.Unlock()
		return ErrInvalidRelease
	}
	delete(p.active, inst.id)

	now := time.Now()
	inst.usageCount++
	inst.lastUsed = now

	reason := ""
	switch {
	case !ok:
		reason = "failed use"
	case p.shutdown:
		reason = "pool shut down"
	case inst.expired(now, p.limits.MaxAge, p.limits.MaxUsage):
		reason = "age or usage limit"
	}

	if reason != "" {
		inst.state = StateRetiring
		p.mu.Unlock()
		p.terminate(inst, reason)
	} else {
		inst.state = StateIdle
		p.idle = append(p.idle, inst)
		p.mu.Unlock()
	}

	p.notifyReleased()
	return nil
}

// EvictExpired retires idle instances past their limits. Active instances
// are never touched: their holders retire them on release. Safe to call from
// any goroutine; idle instances have no outstanding handle.
func (p *WorkerPool) EvictExpired() int {
	now := time.Now()

	p.mu.Lock()
	var keep []*Instance
	var dead []*Instance
	for _, inst := range p.idle {
		if inst.expired(now, p.limits.MaxAge, p.limits.MaxUsage) {
			inst.state = StateRetiring
			dead = append(dead, inst)
		} else {
			keep = append(keep, inst)
		}
	}
	p.idle = keep
	p.mu.Unlock()

	for _, inst := range dead {
		p.terminate(inst, "janitor eviction")
	}
	if len(dead) > 0 {
		p.notifyReleased()
	}
	return len(dead)
}

// Shutdown marks this pool closed and terminates its idle instances. Active
// instances are retired by their holders on release, never reclaimed out
// from under them. Only this worker's pool is affected.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true
	drained := p.idle
	p.idle = nil
	for _, inst := range drained {
		inst.state = StateRetiring
	}
	p.mu.Unlock()

	for _, inst := range drained {
		p.terminate(inst, "pool shutdown")
	}
	p.notifyReleased()

	p.log.Info("worker pool shut down", zap.Int("idle_terminated", len(drained)))
}

// terminate closes the engine and logs failures; termination errors never
// propagate to unrelated callers.
func (p *WorkerPool) terminate(inst *Instance, reason string) {
	if err := inst.eng.Close(); err != nil {
		p.log.Warn("error terminating browser instance",
			zap.String("instance", inst.id.String()),
			zap.String("reason", reason),
			zap.Error(err))
	} else {
		p.log.Info("retired browser instance",
			zap.String("instance", inst.id.String()),
			zap.String("reason", reason),
			zap.Int("usage", inst.usageCount),
			zap.Duration("age", time.Since(inst.createdAt)))
	}
	inst.state = StateTerminated
}

func (p *WorkerPool) notifyReleased() {
	select {
	case p.released <- struct{}{}:
	default:
	}
}

func (p *WorkerPool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

func (p *WorkerPool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Stats is a point-in-time copy of the pool's accounting. It carries counts
// and limits only, never engine handles.
func (p *WorkerPool) Stats() WorkerStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := p.total()
	utilization := 0.0
	if p.limits.MaxPerWorker > 0 {
		utilization = float64(total) / float64(p.limits.MaxPerWorker) * 100
	}

	return WorkerStats{
		Worker:      p.worker,
		Active:      len(p.active),
		Idle:        len(p.idle),
		Launching:   p.launching,
		MaxBrowsers: p.limits.MaxPerWorker,
		Utilization: utilization,
		Shutdown:    p.shutdown,
	}
}

// WorkerStats reports one worker pool's accounting.
type WorkerStats struct {
	Worker      WorkerID `json:"worker_id"`
	Active      int      `json:"active"`
	Idle        int      `json:"idle"`
	Launching   int      `json:"launching"`
	MaxBrowsers int      `json:"max_browsers"`
	Utilization float64  `json:"utilization_percent"`
	Shutdown    bool     `json:"shutdown"`
}
