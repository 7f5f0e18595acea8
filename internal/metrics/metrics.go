// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "attendance"

var (
	Marks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "marks_total",
		Help:      "Ledger rows written, by status.",
	}, []string{"status"})

	Finalizes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "finalize_total",
		Help:      "Finalize runs committed.",
	})

	FinalizeFailedRows = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "finalize_failed_rows_total",
		Help:      "Rows a finalize could not write.",
	})

	FinalizeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "finalize_duration_seconds",
		Help:      "Wall time of finalize transactions.",
		Buckets:   prometheus.DefBuckets,
	})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification dispatch outcomes.",
	}, []string{"result"})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notification_deliveries_total",
		Help:      "Transport-level email deliveries, by result.",
	}, []string{"result"})

	Publishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mirror_publish_total",
		Help:      "Sheet mirror publish outcomes.",
	}, []string{"result"})

	SessionsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_issued_total",
		Help:      "Session tokens issued.",
	})
)

// Result labels.
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)
