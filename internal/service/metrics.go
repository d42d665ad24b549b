package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics - счетчики Prometheus игрового движка.
type Metrics struct {
	SessionsStarted    *prometheus.CounterVec
	ChoicesApplied     *prometheus.CounterVec
	SnapshotRecoveries prometheus.Counter
}

// NewMetrics регистрирует метрики движка в переданном реестре.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cyoa_sessions_started_total",
			Help: "Number of game sessions started, by story.",
		}, []string{"story_id"}),
		ChoicesApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cyoa_choices_total",
			Help: "Number of choice submissions, by story and outcome.",
		}, []string{"story_id", "result"}),
		SnapshotRecoveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "cyoa_snapshot_recoveries_total",
			Help: "Number of sessions restarted after an unreadable snapshot.",
		}),
	}
}
