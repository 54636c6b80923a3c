package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics captures gateway-level counters.
type Metrics interface {
	ObserveToolCall(tool, status string, d time.Duration)
	IncThreatBlocked(category string)
	IncAuditDropped()
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) ObserveToolCall(string, string, time.Duration) {}
func (Noop) IncThreatBlocked(string)                       {}
func (Noop) IncAuditDropped()                              {}

// Prom implements Metrics backed by Prometheus collectors on its own registry.
type Prom struct {
	registry      *prometheus.Registry
	toolCalls     *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec
	threatBlocked *prometheus.CounterVec
	auditDropped  prometheus.Counter
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and status",
		}, []string{"tool", "status"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool handler latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		threatBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threats_blocked_total",
			Help:      "Unsafe classifier verdicts by category",
		}, []string{"category"}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_dropped_total",
			Help:      "Audit records dropped because the buffer was full",
		}),
	}
	p.registry.MustRegister(p.toolCalls, p.toolDuration, p.threatBlocked, p.auditDropped)
	return p
}

func (p *Prom) ObserveToolCall(tool, status string, d time.Duration) {
	p.toolCalls.WithLabelValues(tool, status).Inc()
	p.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func (p *Prom) IncThreatBlocked(category string) {
	p.threatBlocked.WithLabelValues(category).Inc()
}

func (p *Prom) IncAuditDropped() {
	p.auditDropped.Inc()
}

func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
