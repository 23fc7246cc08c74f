package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the sync engine.
type Metrics struct {
	TicksRun     prometheus.Counter
	TicksSkipped prometheus.Counter

	EventsProcessed prometheus.Counter
	EventsFailed    prometheus.Counter

	ChecksReconciled *prometheus.CounterVec
	LeadsUpdated     prometheus.Counter

	CredentialResolutions *prometheus.CounterVec

	RemoteCallDuration *prometheus.HistogramVec
}

// New creates and registers all engine metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		TicksRun: promauto.NewCounter(prometheus.CounterOpts{
			Name: "concilia_ticks_run_total",
			Help: "Poll cycles that acquired the running guard and executed",
		}),
		TicksSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "concilia_ticks_skipped_total",
			Help: "Poll cycles skipped because a prior cycle was still running",
		}),
		EventsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "concilia_provisioning_events_processed_total",
			Help: "Provisioning events marked processed",
		}),
		EventsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "concilia_provisioning_events_failed_total",
			Help: "Provisioning events marked error",
		}),
		ChecksReconciled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "concilia_checks_reconciled_total",
			Help: "Compliance checks marked processed, by source pass",
		}, []string{"source"}),
		LeadsUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "concilia_leads_updated_total",
			Help: "Lead records whose compliance fields were mutated",
		}),
		CredentialResolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "concilia_credential_resolutions_total",
			Help: "Credential resolutions by path (tenant, fallback, none)",
		}, []string{"path"}),
		RemoteCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "concilia_remote_call_duration_seconds",
			Help:    "Latency of remote store calls",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
	}
}
