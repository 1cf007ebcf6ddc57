// Package metrics provides Prometheus instrumentation for the application.
// This is part of the platform layer and contains no business logic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestDuration  *prometheus.HistogramVec
	InboundOutcomes      *prometheus.CounterVec
	OutboundSends        *prometheus.CounterVec
	NurturingTransitions *prometheus.CounterVec
	LeadsCreated         prometheus.Counter
}

// New creates a Metrics instance backed by its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		InboundOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wa_inbound_messages_total",
				Help: "Inbound WhatsApp webhook deliveries by outcome",
			},
			[]string{"outcome"},
		),
		OutboundSends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wa_outbound_sends_total",
				Help: "Outbound WhatsApp sends by kind and result",
			},
			[]string{"kind", "result"},
		),
		NurturingTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nurturing_transitions_total",
				Help: "Nurturing state transitions by target status and reason",
			},
			[]string{"status", "reason"},
		),
		LeadsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "leads_created_from_whatsapp_total",
			Help: "Leads created automatically from inbound WhatsApp messages",
		}),
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request latency using the matched route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Observe(time.Since(start).Seconds())
	}
}

// InboundOutcome counts one processed webhook delivery.
func (m *Metrics) InboundOutcome(outcome string) {
	if m == nil {
		return
	}
	m.InboundOutcomes.WithLabelValues(outcome).Inc()
}

// OutboundSend counts one outbound send attempt.
func (m *Metrics) OutboundSend(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.OutboundSends.WithLabelValues(kind, result).Inc()
}

// NurturingTransition counts a nurturing state change.
func (m *Metrics) NurturingTransition(status, reason string) {
	if m == nil {
		return
	}
	m.NurturingTransitions.WithLabelValues(status, reason).Inc()
}

// LeadCreated counts an automatically created lead.
func (m *Metrics) LeadCreated() {
	if m == nil {
		return
	}
	m.LeadsCreated.Inc()
}
