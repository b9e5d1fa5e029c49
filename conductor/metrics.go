package conductor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the prometheus collectors tracking conductor dispatch
// outcomes.
type Metrics struct {
	// The number of jobs this conductor has successfully claimed.
	jobsClaimed prometheus.Counter

	// The number of claimed jobs that were consumed (removed from the
	// board) after dispatch.
	jobsConsumed prometheus.Counter

	// The number of claimed jobs that were abandoned back to the board
	// for another conductor to retry.
	jobsAbandoned prometheus.Counter

	// The number of engine stage failures, partitioned by stage.
	stageFailures *prometheus.CounterVec
}

// NewMetrics creates the conductor collectors and registers them with reg.
// A nil registerer yields working but unregistered collectors, which is
// what tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		jobsClaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "poppy_conductor_jobs_claimed_total",
			Help: "The total number of jobs claimed by this conductor.",
		}),
		jobsConsumed: factory.NewCounter(prometheus.CounterOpts{
			Name: "poppy_conductor_jobs_consumed_total",
			Help: "The total number of dispatched jobs that were consumed.",
		}),
		jobsAbandoned: factory.NewCounter(prometheus.CounterOpts{
			Name: "poppy_conductor_jobs_abandoned_total",
			Help: "The total number of dispatched jobs that were abandoned for retry.",
		}),
		stageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "poppy_conductor_stage_failures_total",
			Help: "The total number of engine stage failures, partitioned by stage.",
		}, []string{"stage"}),
	}
}
