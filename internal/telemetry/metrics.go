package telemetry

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	PollsIssued      = prometheus.NewCounter(prometheus.CounterOpts{Name: "cardwizard_polls_total", Help: "Status polls issued"})
	PollErrors       = prometheus.NewCounter(prometheus.CounterOpts{Name: "cardwizard_poll_errors_total", Help: "Status polls that failed in transport or decoding"})
	SnapshotsApplied = prometheus.NewCounter(prometheus.CounterOpts{Name: "cardwizard_snapshots_applied_total", Help: "Snapshots delivered to the controller"})
	TasksCreated     = prometheus.NewCounter(prometheus.CounterOpts{Name: "cardwizard_tasks_created_total", Help: "Sub-task entries materialized by reconciliation"})
	TasksUpdated     = prometheus.NewCounter(prometheus.CounterOpts{Name: "cardwizard_tasks_updated_total", Help: "Sub-task entries whose displayed status changed"})
	ActivePollers    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "cardwizard_active_pollers", Help: "Poll loops currently running"})

	PhaseOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cardwizard_phase_outcomes_total", Help: "Terminal phase outcomes"}, []string{"phase", "outcome"})
	Corrections   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cardwizard_corrections_total", Help: "Human correction submissions"}, []string{"result"})
	Exports       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cardwizard_exports_total", Help: "Artifact export attempts"}, []string{"kind", "result"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			PollsIssued,
			PollErrors,
			SnapshotsApplied,
			TasksCreated,
			TasksUpdated,
			ActivePollers,
			PhaseOutcomes,
			Corrections,
			Exports,
		)
	})
	return promhttp.Handler()
}

// Router serves /healthz and /metrics for a standalone metrics listener.
func Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", Handler())
	return r
}
