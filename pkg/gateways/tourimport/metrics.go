package tourimport

import (
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	runResultCompleted   = "completed"
	runResultCancelled   = "cancelled"
	runResultFailed      = "failed"
	runResultRejected    = "rejected"
	runResultNothingRead = "empty"
)

// Metrics counts processed files and runs.
type Metrics struct {
	files *prometheus.CounterVec
	runs  *prometheus.CounterVec
}

// NewMetrics creates the pipeline counters and registers them on reg when it
// is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		files: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tourimport_files_total",
				Help: "Files processed by the import pipeline, by outcome.",
			},
			[]string{"outcome"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tourimport_runs_total",
				Help: "Import pipeline runs, by result.",
			},
			[]string{"result"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.files, m.runs)
	}
	return m
}

func (m *Metrics) file(outcome entities.FileOutcome) {
	m.files.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) run(result string) {
	m.runs.WithLabelValues(result).Inc()
}
