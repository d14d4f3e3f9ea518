package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newswatch/browserpool/internal/events"
	"github.com/newswatch/browserpool/internal/pool"
)

func setupTestRouter(t *testing.T, reporter *Reporter, store *events.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), reporter, store)
	return r
}

func TestGetPoolStats(t *testing.T) {
	reg := testRegistry(t)
	p := reg.PoolFor("worker-a")
	inst, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Release(inst, true))

	reporter := NewReporter(reg, nil, zap.NewNop(), Options{})
	router := setupTestRouter(t, reporter, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/pool/stats", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var stats PoolStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Len(t, stats.Workers, 1)
	assert.Equal(t, pool.WorkerID("worker-a"), stats.Workers[0].Worker)
	assert.Equal(t, 1, stats.TotalIdle)
}

func TestCheckProcessesEndpoint(t *testing.T) {
	reporter := NewReporter(testRegistry(t), nil, zap.NewNop(), Options{WarnThreshold: 5, LeakTolerance: 0})
	reporter.SetProcessCounter(fixedCounter(2, nil))
	router := setupTestRouter(t, reporter, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/pool/processes", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var report ProcessReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 2, report.Observed)
	assert.True(t, report.Leaked)
}

func TestListSweeps(t *testing.T) {
	store, err := events.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.RecordSweep(context.Background(), &events.SweepEvent{
		Retired:     3,
		TriggeredBy: "ticker",
	}))

	reporter := NewReporter(testRegistry(t), nil, zap.NewNop(), Options{})
	router := setupTestRouter(t, reporter, store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/pool/sweeps?limit=5", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Sweeps []events.SweepEvent `json:"sweeps"`
		Total  int                 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Sweeps, 1)
	assert.Equal(t, 3, resp.Sweeps[0].Retired)
}

func TestListSweepsWithoutStore(t *testing.T) {
	reporter := NewReporter(testRegistry(t), nil, zap.NewNop(), Options{})
	router := setupTestRouter(t, reporter, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/pool/sweeps", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestListProcessChecks(t *testing.T) {
	store, err := events.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.RecordProcessCheck(context.Background(), &events.ProcessCheckEvent{
		Observed:  4,
		Accounted: 4,
	}))

	reporter := NewReporter(testRegistry(t), nil, zap.NewNop(), Options{})
	router := setupTestRouter(t, reporter, store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/pool/process-checks", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Checks []events.ProcessCheckEvent `json:"checks"`
		Total  int                        `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 4, resp.Checks[0].Observed)
}

// Guard against the reporter blocking the request path: stats must return
// promptly even with many pools.
func TestGetPoolStatsManyWorkers(t *testing.T) {
	reg := testRegistry(t)
	for i := 0; i < 20; i++ {
		reg.PoolFor(pool.WorkerID(string(rune('a' + i))))
	}
	reporter := NewReporter(reg, nil, zap.NewNop(), Options{})
	router := setupTestRouter(t, reporter, nil)

	done := make(chan struct{})
	go func() {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/pool/stats", nil)
		router.ServeHTTP(w, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stats endpoint blocked")
	}
}
