package device

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for command publish results.
const (
	resultOK           = "ok"
	resultFailed       = "failed"
	resultDisconnected = "disconnected"
)

var (
	reportsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bambubridge_device_reports_total",
			Help: "Total number of print reports merged from the printer.",
		},
	)

	reportDecodeErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bambubridge_device_report_decode_errors_total",
			Help: "Total number of printer reports that could not be decoded.",
		},
	)

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bambubridge_device_commands_total",
			Help: "Total number of commands handed to the transport, by command and result.",
		},
		[]string{"command", "result"},
	)

	connectedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bambubridge_device_connected",
			Help: "1 while the MQTT connection to the printer is open.",
		},
	)
)

func init() {
	prometheus.MustRegister(reportsTotal)
	prometheus.MustRegister(reportDecodeErrorsTotal)
	prometheus.MustRegister(commandsTotal)
	prometheus.MustRegister(connectedGauge)

	for _, cmd := range commands {
		commandsTotal.WithLabelValues(string(cmd), resultOK)
		commandsTotal.WithLabelValues(string(cmd), resultFailed)
		commandsTotal.WithLabelValues(string(cmd), resultDisconnected)
	}
}
