package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flowlb"

// Flow kinds reported in the "kind" label.
const (
	KindARP      = "arp"
	KindRedirect = "redirect"
)

// Install results reported in the "result" label.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics holds the balancer collectors, registered on their own
// registry.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	flowInstalls   *prometheus.CounterVec
	flowDeletes    *prometheus.CounterVec
	rotations      *prometheus.CounterVec
	currentBackend *prometheus.GaugeVec
}

// New creates and registers the balancer collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		flowInstalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "installs_total",
			Help:      "The number of flow install attempts by service, flow kind and result",
		}, []string{"service", "kind", "result"}),
		flowDeletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "deletes_total",
			Help:      "The number of explicit redirect flow deletions by service and result",
		}, []string{"service", "result"}),
		rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rotations_total",
			Help:      "The number of rotation cycles run by service",
		}, []string{"service"}),
		currentBackend: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_backend_info",
			Help:      "Set to 1 for the backend most recently selected for the service",
		}, []string{"service", "backend"}),
	}

	m.registry.MustRegister(
		m.flowInstalls,
		m.flowDeletes,
		m.rotations,
		m.currentBackend,
	)

	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// FlowInstalled records an install attempt.
func (m *Metrics) FlowInstalled(service string, kind string, err error) {
	if m == nil {
		return
	}
	m.flowInstalls.WithLabelValues(service, kind, result(err)).Inc()
}

// FlowDeleted records an explicit redirect flow deletion.
func (m *Metrics) FlowDeleted(service string, err error) {
	if m == nil {
		return
	}
	m.flowDeletes.WithLabelValues(service, result(err)).Inc()
}

// Rotated records a rotation cycle that selected the given backend.
func (m *Metrics) Rotated(service string, backend string) {
	if m == nil {
		return
	}
	m.rotations.WithLabelValues(service).Inc()
	m.currentBackend.DeletePartialMatch(prometheus.Labels{"service": service})
	m.currentBackend.WithLabelValues(service, backend).Set(1)
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
