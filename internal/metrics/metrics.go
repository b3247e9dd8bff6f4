// Package metrics exposes Prometheus collectors for the surface host.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "uibridge_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "server"},
		},
		[]string{"date", "sha", "version"},
	)

	surfacesOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "uibridge_surfaces_opened_total",
			Help: "Number of surfaces attached to the host",
		},
	)

	surfacesClosed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "uibridge_surfaces_closed_total",
			Help: "Number of surfaces torn down",
		},
	)

	messagesInbound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uibridge_messages_inbound_total",
			Help: "Inbound surface messages by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	messagesOutbound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uibridge_messages_outbound_total",
			Help: "Outbound host messages by type",
		},
		[]string{"type"},
	)

	violationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "uibridge_protocol_violations_total",
			Help: "Frames dropped for identity mismatch or malformed shape",
		},
	)
)

// Inbound message outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeHandlerError = "handler_error"
	OutcomeUnhandled    = "unhandled"
)

// Register registers all collectors with the given registerer.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(buildInfo, surfacesOpened, surfacesClosed, messagesInbound, messagesOutbound, violationsDropped)
}

// SetServerBuildInfo records build metadata.
func SetServerBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// SurfaceOpened increments the opened-surfaces counter.
func SurfaceOpened() { surfacesOpened.Inc() }

// SurfaceClosed increments the closed-surfaces counter.
func SurfaceClosed() { surfacesClosed.Inc() }

// RecordInbound counts one inbound message.
func RecordInbound(msgType, outcome string) {
	messagesInbound.WithLabelValues(msgType, outcome).Inc()
}

// RecordOutbound counts one outbound message.
func RecordOutbound(msgType string) {
	messagesOutbound.WithLabelValues(msgType).Inc()
}

// RecordViolation counts one dropped frame.
func RecordViolation() { violationsDropped.Inc() }
