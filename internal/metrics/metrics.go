// Package metrics exposes Prometheus instrumentation for the state
// store and the lock manager.
//
// All record methods are nil-safe: a nil *Collector disables
// instrumentation, so library packages take an optional collector
// without guarding every call site.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector aggregates the subsystem metrics.
type Collector struct {
	// Store counters
	jobsCreated        prometheus.Counter
	stepsCreated       prometheus.Counter
	statusUpdates      prometheus.Counter
	checkpointsWritten prometheus.Counter
	eventsLogged       prometheus.Counter
	rowsReclaimed      prometheus.Counter

	// Lock manager counters
	lockAcquired        prometheus.Counter
	lockConflicts       prometheus.Counter
	lockTakeovers       prometheus.Counter
	lockRefreshes       prometheus.Counter
	lockForceReleases   prometheus.Counter
	retriesExhausted    prometheus.Counter
	versionConflicts    prometheus.Counter
	activeLeases        prometheus.Gauge
	updateRetryAttempts prometheus.Histogram
}

// NewCollector creates a collector and registers its metrics with reg.
// Pass prometheus.DefaultRegisterer for production use; tests pass a
// fresh registry so parallel instances do not collide.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		jobsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "waymark_jobs_created_total",
			Help: "Total number of jobs created (idempotent duplicates excluded)",
		}),
		stepsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "waymark_steps_created_total",
			Help: "Total number of steps created (idempotent duplicates excluded)",
		}),
		statusUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "waymark_status_updates_total",
			Help: "Total number of committed job and step status updates",
		}),
		checkpointsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "waymark_checkpoints_written_total",
			Help: "Total number of checkpoints appended",
		}),
		eventsLogged: factory.NewCounter(prometheus.CounterOpts{
			Name: "waymark_events_logged_total",
			Help: "Total number of audit events appended",
		}),
		rowsReclaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "waymark_rows_reclaimed_total",
			Help: "Total number of expired checkpoint and artifact rows deleted",
		}),
		lockAcquired: factory.NewCounter(prometheus.CounterOpts{
			Name: "waymark_lock_acquired_total",
			Help: "Total number of successful lease acquisitions",
		}),
		lockConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "waymark_lock_conflicts_total",
			Help: "Total number of acquisitions rejected due to a live lease",
		}),
		lockTakeovers: factory.NewCounter(prometheus.CounterOpts{
			Name: "waymark_lock_takeovers_total",
			Help: "Total number of expired leases evicted by a new holder",
		}),
		lockRefreshes: factory.NewCounter(prometheus.CounterOpts{
			Name: "waymark_lock_refreshes_total",
			Help: "Total number of same-holder lease refreshes",
		}),
		lockForceReleases: factory.NewCounter(prometheus.CounterOpts{
			Name: "waymark_lock_force_releases_total",
			Help: "Total number of administrative force releases",
		}),
		retriesExhausted: factory.NewCounter(prometheus.CounterOpts{
			Name: "waymark_lock_retries_exhausted_total",
			Help: "Total number of update attempts that exhausted their retries",
		}),
		versionConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "waymark_lock_version_conflicts_total",
			Help: "Total number of commit-time version validation failures",
		}),
		activeLeases: factory.NewGauge(prometheus.GaugeOpts{
			Name: "waymark_lock_active_leases",
			Help: "Current number of live leases in the lock table",
		}),
		updateRetryAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "waymark_lock_update_attempts",
			Help:    "Attempts consumed per UpdateWithRetry call",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 13, 21},
		}),
	}
}

func (c *Collector) RecordJobCreated() {
	if c != nil {
		c.jobsCreated.Inc()
	}
}

func (c *Collector) RecordStepCreated() {
	if c != nil {
		c.stepsCreated.Inc()
	}
}

func (c *Collector) RecordStatusUpdate() {
	if c != nil {
		c.statusUpdates.Inc()
	}
}

func (c *Collector) RecordCheckpointWritten() {
	if c != nil {
		c.checkpointsWritten.Inc()
	}
}

func (c *Collector) RecordEventLogged() {
	if c != nil {
		c.eventsLogged.Inc()
	}
}

func (c *Collector) RecordRowsReclaimed(n int64) {
	if c != nil && n > 0 {
		c.rowsReclaimed.Add(float64(n))
	}
}

func (c *Collector) RecordLockAcquired() {
	if c != nil {
		c.lockAcquired.Inc()
	}
}

func (c *Collector) RecordLockConflict() {
	if c != nil {
		c.lockConflicts.Inc()
	}
}

func (c *Collector) RecordLockTakeover() {
	if c != nil {
		c.lockTakeovers.Inc()
	}
}

func (c *Collector) RecordLockRefresh() {
	if c != nil {
		c.lockRefreshes.Inc()
	}
}

func (c *Collector) RecordForceRelease() {
	if c != nil {
		c.lockForceReleases.Inc()
	}
}

func (c *Collector) RecordRetriesExhausted() {
	if c != nil {
		c.retriesExhausted.Inc()
	}
}

func (c *Collector) RecordVersionConflict() {
	if c != nil {
		c.versionConflicts.Inc()
	}
}

func (c *Collector) SetActiveLeases(n int) {
	if c != nil {
		c.activeLeases.Set(float64(n))
	}
}

func (c *Collector) ObserveUpdateAttempts(n int) {
	if c != nil {
		c.updateRetryAttempts.Observe(float64(n))
	}
}

// Handler returns the HTTP handler serving the default registry in
// Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr. Blocks until the listener fails.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
