// Package metrics exposes ingestion counters on the Prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RowsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "costplane_rows_ingested_total",
		Help: "Fact rows written, by source provider.",
	}, []string{"provider"})

	RowsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "costplane_rows_skipped_total",
		Help: "Rows dropped for unresolved mandatory dimensions, by source provider.",
	}, []string{"provider"})

	UploadsTransitioned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "costplane_uploads_transitioned_total",
		Help: "Upload status transitions, by target status.",
	}, []string{"status"})

	PollRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "costplane_poll_runs_total",
		Help: "Completed poll worker passes.",
	})

	PollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "costplane_poll_errors_total",
		Help: "Poll passes that reported at least one integration error.",
	})
)
