package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// AcquiresGranted tracks acquires that ended with the caller holding the lock.
	AcquiresGranted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sera_lock_acquires_granted_total",
		Help: "Total number of granted lock acquisitions",
	})
	// AcquireConflicts tracks acquires refused because another session held the lock.
	AcquireConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sera_lock_acquire_conflicts_total",
		Help: "Total number of lock acquisitions refused with a conflict",
	})
	// Renewals tracks successful heartbeat extensions.
	Renewals = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sera_lock_renewals_total",
		Help: "Total number of successful lock renewals",
	})
	// RenewalsRejected tracks heartbeats that arrived for missing, expired or foreign locks.
	RenewalsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sera_lock_renewals_rejected_total",
		Help: "Total number of lock renewals rejected because the lock was not held",
	})
	// Releases tracks locks dropped by their holder.
	Releases = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sera_lock_releases_total",
		Help: "Total number of locks released by their holder",
	})
	// ReleasesRejected tracks release attempts on locks the session did not own.
	ReleasesRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sera_lock_releases_rejected_total",
		Help: "Total number of lock releases rejected because the lock was not held",
	})
	// SweptLocks tracks rows removed by the background sweep.
	SweptLocks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sera_lock_swept_total",
		Help: "Total number of expired lock rows removed by the sweeper",
	})
	// StoreFailures tracks operations that failed because lock storage was unreachable.
	StoreFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sera_lock_store_failures_total",
		Help: "Total number of lock operations that failed against storage",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterCoordinatorMetrics registers the lock coordinator metrics on the
// provided registry.
func RegisterCoordinatorMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		AcquiresGranted,
		AcquireConflicts,
		Renewals,
		RenewalsRejected,
		Releases,
		ReleasesRejected,
		SweptLocks,
		StoreFailures,
	)
}
