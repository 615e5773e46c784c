// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for the I/O core.

package control

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hioload"

// Metrics bundles the collectors updated by the reactor, sockets, resolver and server.
type Metrics struct {
	reactorPasses     prometheus.Counter
	readyCallbacks    prometheus.Counter
	timeoutsFired     prometheus.Counter
	cancels           prometheus.Counter
	bytesSent         prometheus.Counter
	bytesReceived     prometheus.Counter
	resolverHits      prometheus.Counter
	resolverMisses    prometheus.Counter
	resolverFailures  prometheus.Counter
	connActive        prometheus.Gauge
	connInactive      prometheus.Gauge
	connAllocated     prometheus.Counter
	connRefused       prometheus.Counter
	handshakeFailures prometheus.Counter
}

func counter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

func gauge(subsystem, name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		reactorPasses:     counter("reactor", "dispatch_passes_total", "Number of reactor dispatch passes."),
		readyCallbacks:    counter("reactor", "ready_callbacks_total", "Readiness continuations fired."),
		timeoutsFired:     counter("reactor", "timeouts_total", "Continuations fired with a timeout status."),
		cancels:           counter("reactor", "cancels_total", "Interest cancellations."),
		bytesSent:         counter("socket", "sent_bytes_total", "Bytes written by sockets."),
		bytesReceived:     counter("socket", "received_bytes_total", "Bytes read by sockets."),
		resolverHits:      counter("resolver", "cache_hits_total", "Resolutions served from cache."),
		resolverMisses:    counter("resolver", "cache_misses_total", "Resolutions requiring a system lookup."),
		resolverFailures:  counter("resolver", "failures_total", "Resolutions that produced no usable address."),
		connActive:        gauge("server", "connections_active", "Connections currently in use."),
		connInactive:      gauge("server", "connections_inactive", "Pooled connections ready for reuse."),
		connAllocated:     counter("server", "connections_allocated_total", "Connection objects allocated."),
		connRefused:       counter("server", "connections_refused_total", "Connections refused over the cap."),
		handshakeFailures: counter("server", "handshake_failures_total", "TLS handshakes that failed."),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.reactorPasses, m.readyCallbacks, m.timeoutsFired, m.cancels,
		m.bytesSent, m.bytesReceived,
		m.resolverHits, m.resolverMisses, m.resolverFailures,
		m.connActive, m.connInactive, m.connAllocated, m.connRefused, m.handshakeFailures,
	}
}

func (m *Metrics) ReactorPass() {
	if m != nil {
		m.reactorPasses.Inc()
	}
}

func (m *Metrics) ReadyCallbacks(n int) {
	if m != nil && n > 0 {
		m.readyCallbacks.Add(float64(n))
	}
}

func (m *Metrics) TimeoutFired() {
	if m != nil {
		m.timeoutsFired.Inc()
	}
}

func (m *Metrics) Cancelled() {
	if m != nil {
		m.cancels.Inc()
	}
}

func (m *Metrics) BytesSent(n int) {
	if m != nil && n > 0 {
		m.bytesSent.Add(float64(n))
	}
}

func (m *Metrics) BytesReceived(n int) {
	if m != nil && n > 0 {
		m.bytesReceived.Add(float64(n))
	}
}

func (m *Metrics) ResolverHit() {
	if m != nil {
		m.resolverHits.Inc()
	}
}

func (m *Metrics) ResolverMiss() {
	if m != nil {
		m.resolverMisses.Inc()
	}
}

func (m *Metrics) ResolverFailure() {
	if m != nil {
		m.resolverFailures.Inc()
	}
}

// Pool records the current Active/Inactive set sizes.
func (m *Metrics) Pool(active, inactive int) {
	if m != nil {
		m.connActive.Set(float64(active))
		m.connInactive.Set(float64(inactive))
	}
}

func (m *Metrics) ConnectionAllocated() {
	if m != nil {
		m.connAllocated.Inc()
	}
}

func (m *Metrics) ConnectionRefused() {
	if m != nil {
		m.connRefused.Inc()
	}
}

func (m *Metrics) HandshakeFailed() {
	if m != nil {
		m.handshakeFailures.Inc()
	}
}
