// Package metrics exposes preview pipeline metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so several instances (one per test, or
// one per server) never clash on registration. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry  *prometheus.Registry
	startTime time.Time

	renders  *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration prometheus.Histogram
	clients  *prometheus.GaugeVec
}

func NewCollector() *Collector {
	c := &Collector{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linepreview_renders_total",
			Help: "Previews rendered, by message type.",
		}, []string{"type"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linepreview_render_failures_total",
			Help: "Previews replaced by a notice, by error kind.",
		}, []string{"kind"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "linepreview_render_duration_seconds",
			Help:    "Time from snippet lookup to finished page.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		clients: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "linepreview_live_clients",
			Help: "Connected live preview clients, by transport.",
		}, []string{"transport"}),
	}
	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "linepreview_uptime_seconds",
		Help: "Seconds since the collector was created.",
	}, func() float64 { return time.Since(c.startTime).Seconds() })

	c.registry.MustRegister(
		c.renders, c.failures, c.duration, c.clients, uptime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Uptime returns how long the collector has been running.
func (c *Collector) Uptime() time.Duration {
	if c == nil {
		return 0
	}
	return time.Since(c.startTime)
}

// ObserveRender records a successful render of the given message type.
func (c *Collector) ObserveRender(messageType string, d time.Duration) {
	if c == nil {
		return
	}
	c.renders.WithLabelValues(messageType).Inc()
	c.duration.Observe(d.Seconds())
}

// ObserveFailure records a render that ended in a notice.
func (c *Collector) ObserveFailure(kind string, d time.Duration) {
	if c == nil {
		return
	}
	c.failures.WithLabelValues(kind).Inc()
	c.duration.Observe(d.Seconds())
}

// ClientConnected adjusts the live client gauge; call the returned function
// when the client goes away.
func (c *Collector) ClientConnected(transport string) func() {
	if c == nil {
		return func() {}
	}
	g := c.clients.WithLabelValues(transport)
	g.Inc()
	return g.Dec
}

// Handler serves the registry in the Prometheus text exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
