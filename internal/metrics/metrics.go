package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CommandsTotal counts processed bot commands by command name and outcome.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carpoolbot",
		Name:      "commands_total",
		Help:      "Processed bot commands by command and outcome.",
	}, []string{"command", "status"})

	// EngineOpDuration observes how long each engine operation takes,
	// transaction included.
	EngineOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "carpoolbot",
		Name:      "engine_op_duration_seconds",
		Help:      "Duration of engine operations, transaction included.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	// EventsDispatched counts notification events handed to the dispatcher
	// after commit.
	EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carpoolbot",
		Name:      "events_dispatched_total",
		Help:      "Notification events dispatched after commit, by kind.",
	}, []string{"kind"})

	// NotifyFailuresTotal counts notification deliveries that failed. State
	// changes are already committed at that point, so failures are logged and
	// counted, never retried into the transaction.
	NotifyFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "carpoolbot",
		Name:      "notify_failures_total",
		Help:      "Notification deliveries that failed after commit.",
	})
)

// TimeOp returns a stop function that records the elapsed time for op.
//
//	defer metrics.TimeOp("approve_request")()
func TimeOp(op string) func() {
	start := time.Now()
	return func() {
		EngineOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
