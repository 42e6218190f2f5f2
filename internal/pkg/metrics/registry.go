package metrics

import "github.com/prometheus/client_golang/prometheus"

var registry = prometheus.NewRegistry()

// GetRegistry returns the process-wide metrics registry.
func GetRegistry() *prometheus.Registry {
	return registry
}

var (
	// Evaluations counts evaluation passes by wake source.
	Evaluations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tickloop",
		Name:      "evaluations_total",
		Help:      "Evaluation passes, labeled by wake source.",
	}, []string{"source"})

	// JobsFired counts fired jobs by wake source.
	JobsFired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tickloop",
		Name:      "jobs_fired_total",
		Help:      "Jobs that fired, labeled by wake source.",
	}, []string{"source"})

	// JobsSkipped counts skipped due jobs by skip reason.
	JobsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tickloop",
		Name:      "jobs_skipped_total",
		Help:      "Due jobs withheld by skip policy, labeled by reason.",
	}, []string{"reason"})

	// StoreWriteErrors counts failed persistence attempts.
	StoreWriteErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tickloop",
		Name:      "store_write_errors_total",
		Help:      "Persisted snapshot writes that failed.",
	})
)

func init() {
	registry.MustRegister(Evaluations, JobsFired, JobsSkipped, StoreWriteErrors)
}
