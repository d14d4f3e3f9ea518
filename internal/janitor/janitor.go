package janitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/newswatch/browserpool/internal/events"
	"github.com/newswatch/browserpool/internal/health"
	"github.com/newswatch/browserpool/internal/pool"
)

// Janitor periodically retires idle browsers that have outlived their age or
// usage limits. It only ever touches idle instances; active browsers are
// retired by their holders on release.
type Janitor struct {
	registry *pool.Registry
	store    *events.Store
	metrics  *health.Metrics
	interval time.Duration
	log      *zap.Logger
}

// SweepResult summarizes one pass across all worker pools.
type SweepResult struct {
	WorkersSwept int           `json:"workers_swept"`
	Retired      int           `json:"retired"`
	Duration     time.Duration `json:"duration"`
	ActiveAfter  int           `json:"active_after"`
	IdleAfter    int           `json:"idle_after"`
}

func New(registry *pool.Registry, store *events.Store, metrics *health.Metrics, interval time.Duration, log *zap.Logger) *Janitor {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Janitor{
		registry: registry,
		store:    store,
		metrics:  metrics,
		interval: interval,
		log:      log,
	}
}

// Start runs the sweep loop until the context is cancelled. Used when no
// distributed scheduler is configured.
func (j *Janitor) Start(ctx context.Context) error {
	j.log.Info("starting janitor", zap.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("janitor stopped")
			return ctx.Err()
		case <-ticker.C:
			j.Sweep(ctx, "ticker")
		}
	}
}

// Sweep evicts expired idle instances from every known pool. A failure in one
// pool never stops the pass; each pool is swept independently.
func (j *Janitor) Sweep(ctx context.Context, triggeredBy string) SweepResult {
	start := time.Now()

	before := j.registry.Snapshot()
	retired := 0
	for _, w := range before {
		n := j.registry.EvictExpired(w.Worker)
		if n > 0 {
			j.log.Info("janitor retired instances",
				zap.String("worker", string(w.Worker)),
				zap.Int("retired", n))
		}
		retired += n
	}

	after := j.registry.Snapshot()
	result := SweepResult{
		WorkersSwept: len(before),
		Retired:      retired,
		Duration:     time.Since(start),
	}
	for _, w := range after {
		result.ActiveAfter += w.Active
		result.IdleAfter += w.Idle
	}

	j.log.Info("janitor sweep complete",
		zap.Int("workers", result.WorkersSwept),
		zap.Int("retired", result.Retired),
		zap.Duration("took", result.Duration))

	if j.metrics != nil {
		j.metrics.SweepsTotal.Inc()
		j.metrics.RetiredTotal.Add(float64(retired))
		j.metrics.ObservePools(after)
	}

	if j.store != nil {
		ev := &events.SweepEvent{
			WorkersSwept: result.WorkersSwept,
			Retired:      result.Retired,
			DurationMS:   result.Duration.Milliseconds(),
			TriggeredBy:  triggeredBy,
			ActiveAfter:  result.ActiveAfter,
			IdleAfter:    result.IdleAfter,
		}
		if err := j.store.RecordSweep(ctx, ev); err != nil {
			j.log.Warn("failed to record sweep event", zap.Error(err))
		}
	}

	return result
}
