package printer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/bambubridge/internal/model"
)

// Reconciliation result label values.
const (
	resultResolved   = "resolved"
	resultUnresolved = "unresolved"
	resultError      = "error"
)

var (
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bambubridge_printer_state_transitions_total",
			Help: "Total number of printer state transitions.",
		},
		[]string{"from", "to"},
	)

	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bambubridge_printer_jobs_total",
			Help: "Total number of print jobs closed, by final status.",
		},
		[]string{"status"},
	)

	reconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bambubridge_printer_reconciliations_total",
			Help: "Total number of telemetry reconciliations, by result.",
		},
		[]string{"result"},
	)

	progressGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bambubridge_printer_job_progress_percent",
			Help: "Progress of the active print job.",
		},
	)

	layerGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bambubridge_printer_job_current_layer",
			Help: "Current layer of the active print job.",
		},
	)

	workersGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bambubridge_printer_background_workers",
			Help: "Number of running state background goroutines.",
		},
	)

	temperatureGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bambubridge_printer_temperature_celsius",
			Help: "Last reported heater temperature by heater.",
		},
		[]string{"heater"},
	)

	hmsErrorsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bambubridge_printer_hms_errors",
			Help: "Number of active HMS errors reported by the printer.",
		},
	)
)

func init() {
	prometheus.MustRegister(transitionsTotal)
	prometheus.MustRegister(jobsTotal)
	prometheus.MustRegister(reconciliationsTotal)
	prometheus.MustRegister(progressGauge)
	prometheus.MustRegister(layerGauge)
	prometheus.MustRegister(workersGauge)
	prometheus.MustRegister(temperatureGauge)
	prometheus.MustRegister(hmsErrorsGauge)

	for _, from := range stateNames {
		for _, to := range stateNames {
			if from != to {
				transitionsTotal.WithLabelValues(from, to)
			}
		}
	}
	for _, status := range []string{model.StatusCompleted, model.StatusCancelled, model.StatusFailed} {
		jobsTotal.WithLabelValues(status)
	}
	for _, result := range []string{resultResolved, resultUnresolved, resultError} {
		reconciliationsTotal.WithLabelValues(result)
	}
}
