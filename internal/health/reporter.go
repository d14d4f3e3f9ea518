package health

import (
	"context"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"

	"github.com/newswatch/browserpool/internal/pool"
)

// Browser process names to count at the OS level. headless_shell is what
// Playwright's bundled Chromium runs as on Linux.
var browserProcessNames = []string{"chrome", "chromium", "headless_shell"}

// ProcessCounter enumerates OS-level browser processes. Replaceable in tests.
type ProcessCounter func(ctx context.Context) (int, error)

// Options configures the watchdog thresholds.
type Options struct {
	// WarnThreshold is the system-wide browser process count above which the
	// report is degraded regardless of pool accounting.
	WarnThreshold int
	// LeakTolerance is how far the observed count may exceed pool accounting
	// before it is flagged as a leak.
	LeakTolerance int
}

// Reporter aggregates pool statistics and cross-checks them against actual
// OS process counts. All reads are pure; the reporter never mutates pool
// state.
type Reporter struct {
	reg     *pool.Registry
	metrics *Metrics
	log     *zap.Logger
	opts    Options

	countProcesses ProcessCounter
}

func NewReporter(reg *pool.Registry, metrics *Metrics, log *zap.Logger, opts Options) *Reporter {
	if opts.WarnThreshold <= 0 {
		opts.WarnThreshold = 5
	}
	if opts.LeakTolerance < 0 {
		opts.LeakTolerance = 0
	}
	return &Reporter{
		reg:            reg,
		metrics:        metrics,
		log:            log,
		opts:           opts,
		countProcesses: CountBrowserProcesses,
	}
}

// SetProcessCounter swaps the OS enumeration, for tests.
func (r *Reporter) SetProcessCounter(fn ProcessCounter) {
	r.countProcesses = fn
}

// PoolStats is the aggregate view served to external monitoring.
type PoolStats struct {
	Workers        []pool.WorkerStats `json:"workers"`
	TotalActive    int                `json:"total_active"`
	TotalIdle      int                `json:"total_idle"`
	TotalLaunching int                `json:"total_launching"`
	GeneratedAt    time.Time          `json:"generated_at"`
}

// Stats reads the registry snapshot and refreshes gauges. No pool state is
// mutated.
func (r *Reporter) Stats() PoolStats {
	workers := r.reg.Snapshot()

	stats := PoolStats{
		Workers:     workers,
		GeneratedAt: time.Now(),
	}
	for _, w := range workers {
		stats.TotalActive += w.Active
		stats.TotalIdle += w.Idle
		stats.TotalLaunching += w.Launching
	}

	if r.metrics != nil {
		r.metrics.ObservePools(workers)
	}
	return stats
}

// ProcessReport is the result of one OS-level cross-check.
type ProcessReport struct {
	Observed      int       `json:"observed"`
	Accounted     int       `json:"accounted"`
	LeakTolerance int       `json:"leak_tolerance"`
	WarnThreshold int       `json:"warn_threshold"`
	Leaked        bool      `json:"leaked"`
	Degraded      bool      `json:"degraded"`
	CheckedAt     time.Time `json:"checked_at"`
}

// CheckProcesses compares the OS-level browser process count against the sum
// of all pools' accounting. Leaked means processes exist outside pool
// accounting beyond tolerance; Degraded additionally covers the system-wide
// warning threshold.
func (r *Reporter) CheckProcesses(ctx context.Context) (ProcessReport, error) {
	observed, err := r.countProcesses(ctx)
	if err != nil {
		return ProcessReport{}, err
	}

	accounted := 0
	for _, w := range r.reg.Snapshot() {
		accounted += w.Active + w.Idle + w.Launching
	}

	report := ProcessReport{
		Observed:      observed,
		Accounted:     accounted,
		LeakTolerance: r.opts.LeakTolerance,
		WarnThreshold: r.opts.WarnThreshold,
		Leaked:        observed > accounted+r.opts.LeakTolerance,
		CheckedAt:     time.Now(),
	}
	report.Degraded = report.Leaked || observed > r.opts.WarnThreshold

	if r.metrics != nil {
		r.metrics.ObservedProcesses.Set(float64(observed))
		if report.Leaked {
			r.metrics.LeakWarningsTotal.Inc()
		}
	}

	if report.Leaked {
		r.log.Warn("browser processes outside pool accounting",
			zap.Int("observed", observed),
			zap.Int("accounted", accounted),
			zap.Int("tolerance", r.opts.LeakTolerance))
	} else if report.Degraded {
		r.log.Warn("browser process count above warning threshold",
			zap.Int("observed", observed),
			zap.Int("threshold", r.opts.WarnThreshold))
	}

	return report, nil
}

// CountBrowserProcesses enumerates OS processes whose name matches a known
// browser engine.
func CountBrowserProcesses(ctx context.Context) (int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// Processes can exit between enumeration and inspection.
			continue
		}
		name = strings.ToLower(name)
		for _, needle := range browserProcessNames {
			if strings.Contains(name, needle) {
				count++
				break
			}
		}
	}
	return count, nil
}
