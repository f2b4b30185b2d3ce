package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// lock acquisition latency - histogram to track p50/p90/p99
	// for blocking acquires this includes the whole poll wait
	// labels: lock_name (to see which locks are contended)
	LockAcquireDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cephlcm_lock_acquire_duration_seconds",
			Help:    "time taken to acquire a lock",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"lock_name"},
	)

	// lock acquisition counter - counts successes vs conflicts vs errors
	// use this to calculate contention: conflict / (success + conflict)
	LockAcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cephlcm_lock_acquire_total",
			Help: "total number of lock acquisition attempts",
		},
		[]string{"lock_name", "status"},
	)

	// lock release counter - should roughly match successful
	// acquisitions over time; owner mismatches show up as status=conflict
	LockReleaseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cephlcm_lock_release_total",
			Help: "total number of lock releases",
		},
		[]string{"lock_name", "status"},
	)

	// prolong counter - tracks lease extensions, both manual and from
	// the auto-prolong task
	LockProlongTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cephlcm_lock_prolong_total",
			Help: "total number of lease prolongations",
		},
		[]string{"lock_name", "status"},
	)

	// renewal failure counter - store errors inside the auto-prolong
	// loop; spikes mean the backing store is unreachable while locks
	// are still believed held
	RenewalFailureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cephlcm_lock_renewal_failure_total",
			Help: "total number of failed background lease renewals",
		},
		[]string{"lock_name"},
	)

	// currently held locks - gauge shows real-time held locks in this
	// process; useful for detecting lock leaks
	LocksHeld = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cephlcm_locks_held",
			Help: "current number of locks held by this process",
		},
	)

	// service uptime - always 1 when running
	// scrape failure = 0 in prometheus (service down)
	Up = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cephlcm_up",
			Help: "whether the service is up (always 1 when running)",
		},
	)
)

const (
	StatusSuccess  = "success"
	StatusConflict = "conflict"
	StatusError    = "error"
)

func init() {
	Up.Set(1)
}
