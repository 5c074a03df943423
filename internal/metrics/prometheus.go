package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dkeye/panorama/internal/core"
)

// Collector exports session metrics on a dedicated registry so they do not
// interfere with the default global registry. It implements
// session.Observer.
type Collector struct {
	registry *prometheus.Registry

	sessionsActive    prometheus.Gauge
	sessionsTotal     *prometheus.CounterVec
	framesSent        *prometheus.CounterVec
	framesReceived    *prometheus.CounterVec
	queueRejected     prometheus.Counter
	handshakeFailures *prometheus.CounterVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "panorama",
			Name:      "sessions_active",
			Help:      "Number of sessions between handshake and close.",
		}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panorama",
			Name:      "sessions_total",
			Help:      "Closed sessions by outcome.",
		}, []string{"outcome"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panorama",
			Name:      "frames_sent_total",
			Help:      "Frames written by sender pumps, by kind.",
		}, []string{"kind"}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panorama",
			Name:      "frames_received_total",
			Help:      "Frames read by receiver pumps, by kind.",
		}, []string{"kind"}),
		queueRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "panorama",
			Name:      "queue_rejected_total",
			Help:      "Enqueue attempts refused because the outbound queue was full.",
		}),
		handshakeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panorama",
			Name:      "handshake_failures_total",
			Help:      "Failed opening handshakes by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		c.sessionsActive,
		c.sessionsTotal,
		c.framesSent,
		c.framesReceived,
		c.queueRejected,
		c.handshakeFailures,
	)
	return c
}

// Registry is exposed for registering additional collectors.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) SessionOpened() { c.sessionsActive.Inc() }

func (c *Collector) SessionClosed(o core.Outcome) {
	c.sessionsActive.Dec()
	c.sessionsTotal.WithLabelValues(o.Kind.String()).Inc()
}

func (c *Collector) FrameSent(k core.FrameKind) { c.framesSent.WithLabelValues(k.String()).Inc() }

func (c *Collector) FrameReceived(k core.FrameKind) {
	c.framesReceived.WithLabelValues(k.String()).Inc()
}

func (c *Collector) QueueRejected() { c.queueRejected.Inc() }

// HandshakeFailed records an upgrade that did not produce a session.
func (c *Collector) HandshakeFailed(reason string) {
	c.handshakeFailures.WithLabelValues(reason).Inc()
}

// Handler serves the registry in the Prometheus text exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
