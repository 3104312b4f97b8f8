package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gigflow/apperr"
)

var (
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gigflow",
		Name:      "actions_total",
		Help:      "Engagement actions by outcome code.",
	}, []string{"action", "outcome"})

	ActionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gigflow",
		Name:      "action_duration_seconds",
		Help:      "Wall time of engagement actions including the refresh fetch.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"action"})

	RemoteRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gigflow",
		Name:      "remote_retries_total",
		Help:      "Retried calls to remote collaborators.",
	})

	SideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gigflow",
		Name:      "side_effect_failures_total",
		Help:      "Best-effort steps that failed without failing the action.",
	}, []string{"step"})
)

// ObserveAction records one action outcome. A nil error counts as "ok".
func ObserveAction(action string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.CodeOf(err))
	}
	ActionsTotal.WithLabelValues(action, outcome).Inc()
	ActionDuration.WithLabelValues(action).Observe(time.Since(started).Seconds())
}

func SideEffectFailed(step string) {
	SideEffectFailures.WithLabelValues(step).Inc()
}
