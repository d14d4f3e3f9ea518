package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newswatch/browserpool/internal/engine"
	"github.com/newswatch/browserpool/internal/pool"
)

type stubEngine struct {
	mu     sync.Mutex
	closed bool
}

func (e *stubEngine) NewContext(ctx context.Context, opts engine.ContextOptions) (engine.BrowsingContext, error) {
	return nil, errors.New("not used")
}

func (e *stubEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

type stubLauncher struct{}

func (stubLauncher) Launch(ctx context.Context) (engine.Engine, error) {
	return &stubEngine{}, nil
}

func testRegistry(t *testing.T) *pool.Registry {
	t.Helper()
	return pool.NewRegistry(pool.Limits{
		MaxPerWorker:   2,
		AcquireTimeout: 50 * time.Millisecond,
	}, stubLauncher{}, zap.NewNop())
}

func fixedCounter(n int, err error) ProcessCounter {
	return func(ctx context.Context) (int, error) { return n, err }
}

func TestReporter_StatsAggregatesPools(t *testing.T) {
	reg := testRegistry(t)
	ctx := context.Background()

	a := reg.PoolFor("worker-a")
	b := reg.PoolFor("worker-b")
	instA, err := a.Acquire(ctx)
	require.NoError(t, err)
	instB, err := b.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Release(instB, true))
	_ = instA

	metrics := NewMetrics(prometheus.NewRegistry())
	r := NewReporter(reg, metrics, zap.NewNop(), Options{})

	stats := r.Stats()
	require.Len(t, stats.Workers, 2)
	assert.Equal(t, 1, stats.TotalActive)
	assert.Equal(t, 1, stats.TotalIdle)
	assert.Equal(t, 0, stats.TotalLaunching)
	assert.False(t, stats.GeneratedAt.IsZero())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ActiveBrowsers))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.IdleBrowsers))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.WorkerPools))
}

func TestReporter_CheckProcesses(t *testing.T) {
	tests := []struct {
		name         string
		observed     int
		accounted    int // instances parked idle before the check
		opts         Options
		wantLeaked   bool
		wantDegraded bool
	}{
		{
			name:      "observed matches accounting",
			observed:  2,
			accounted: 2,
			opts:      Options{WarnThreshold: 5, LeakTolerance: 1},
		},
		{
			name:      "within tolerance",
			observed:  3,
			accounted: 2,
			opts:      Options{WarnThreshold: 5, LeakTolerance: 1},
		},
		{
			name:         "leak beyond tolerance",
			observed:     4,
			accounted:    2,
			opts:         Options{WarnThreshold: 5, LeakTolerance: 1},
			wantLeaked:   true,
			wantDegraded: true,
		},
		{
			name:         "above warn threshold without leak",
			observed:     6,
			accounted:    6,
			opts:         Options{WarnThreshold: 5, LeakTolerance: 1},
			wantDegraded: true,
		},
		{
			name:      "zero everywhere",
			observed:  0,
			accounted: 0,
			opts:      Options{WarnThreshold: 5, LeakTolerance: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := pool.NewRegistry(pool.Limits{
				MaxPerWorker:   10,
				AcquireTimeout: 50 * time.Millisecond,
			}, stubLauncher{}, zap.NewNop())

			ctx := context.Background()
			p := reg.PoolFor("worker-a")
			for i := 0; i < tt.accounted; i++ {
				inst, err := p.Acquire(ctx)
				require.NoError(t, err)
				require.NoError(t, p.Release(inst, true))
			}

			r := NewReporter(reg, nil, zap.NewNop(), tt.opts)
			r.SetProcessCounter(fixedCounter(tt.observed, nil))

			report, err := r.CheckProcesses(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.observed, report.Observed)
			assert.Equal(t, tt.accounted, report.Accounted)
			assert.Equal(t, tt.wantLeaked, report.Leaked)
			assert.Equal(t, tt.wantDegraded, report.Degraded)
		})
	}
}

func TestReporter_CheckProcessesCounterError(t *testing.T) {
	r := NewReporter(testRegistry(t), nil, zap.NewNop(), Options{})
	countErr := errors.New("proc enumeration failed")
	r.SetProcessCounter(fixedCounter(0, countErr))

	_, err := r.CheckProcesses(context.Background())
	assert.ErrorIs(t, err, countErr)
}

func TestReporter_LeakIncrementsMetric(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	r := NewReporter(testRegistry(t), metrics, zap.NewNop(), Options{WarnThreshold: 5, LeakTolerance: 0})
	r.SetProcessCounter(fixedCounter(3, nil))

	_, err := r.CheckProcesses(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.ObservedProcesses))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LeakWarningsTotal))
}

func TestReporter_DefaultThresholds(t *testing.T) {
	r := NewReporter(testRegistry(t), nil, zap.NewNop(), Options{WarnThreshold: 0, LeakTolerance: -1})
	assert.Equal(t, 5, r.opts.WarnThreshold)
	assert.Equal(t, 0, r.opts.LeakTolerance)
}
