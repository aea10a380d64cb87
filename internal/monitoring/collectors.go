package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// collectors holds the Prometheus series owned by the monitoring module.
// Request and account counters live on the default registry; the module
// only adds maintenance job series on top of the runtime collectors.
type collectors struct {
	maintenanceRuns     *prometheus.CounterVec
	maintenanceDuration *prometheus.HistogramVec
	maintenanceLastRun  *prometheus.GaugeVec
}

func newCollectors(namespace string) *collectors {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "maintenance_runs_total",
		Help:      "Completed maintenance job runs by job and result",
	}, []string{"job", "result"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "maintenance_duration_seconds",
		Help:      "Wall-clock time spent per maintenance job run",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})

	lastRun := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "maintenance_last_success_timestamp",
		Help:      "Unix timestamp of each job's most recent successful run",
	}, []string{"job"})

	return &collectors{
		maintenanceRuns:     runs,
		maintenanceDuration: duration,
		maintenanceLastRun:  lastRun,
	}
}

func (c *collectors) all() []prometheus.Collector {
	return []prometheus.Collector{c.maintenanceRuns, c.maintenanceDuration, c.maintenanceLastRun}
}

// observeDuration records a duration in seconds on the supplied histogram observer.
func observeDuration(observer prometheus.Observer, d time.Duration) {
	if observer == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	observer.Observe(d.Seconds())
}
