package health

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/newswatch/browserpool/internal/pool"
)

// Metrics exposes pool accounting to Prometheus.
type Metrics struct {
	ActiveBrowsers    prometheus.Gauge
	IdleBrowsers      prometheus.Gauge
	WorkerPools       prometheus.Gauge
	ObservedProcesses prometheus.Gauge

	RetiredTotal      prometheus.Counter
	SweepsTotal       prometheus.Counter
	LeakWarningsTotal prometheus.Counter
}

// NewMetrics registers pool metrics with the given registerer; nil selects
// the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ActiveBrowsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "browserpool_active_browsers",
			Help: "Browser instances currently checked out across all workers",
		}),
		IdleBrowsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "browserpool_idle_browsers",
			Help: "Browser instances idle in worker pools",
		}),
		WorkerPools: factory.NewGauge(prometheus.GaugeOpts{
			Name: "browserpool_worker_pools",
			Help: "Number of known worker pools",
		}),
		ObservedProcesses: factory.NewGauge(prometheus.GaugeOpts{
			Name: "browserpool_observed_os_processes",
			Help: "Browser processes observed at the OS level",
		}),
		RetiredTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "browserpool_retired_total",
			Help: "Browser instances retired by janitor sweeps",
		}),
		SweepsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "browserpool_sweeps_total",
			Help: "Janitor sweeps completed",
		}),
		LeakWarningsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "browserpool_leak_warnings_total",
			Help: "Process checks that found more OS processes than pool accounting",
		}),
	}
}

// ObservePools refreshes the gauges from a registry snapshot.
func (m *Metrics) ObservePools(workers []pool.WorkerStats) {
	active, idle := 0, 0
	for _, w := range workers {
		active += w.Active
		idle += w.Idle
	}
	m.ActiveBrowsers.Set(float64(active))
	m.IdleBrowsers.Set(float64(idle))
	m.WorkerPools.Set(float64(len(workers)))
}
