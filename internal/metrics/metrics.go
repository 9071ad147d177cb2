// Package metrics exposes server lifecycle events as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	eventbus "github.com/hanpama/gqlserve/internal/eventbus"
	events "github.com/hanpama/gqlserve/internal/events"
)

// Namespace prefixes every metric name.
const Namespace = "gqlserve"

// Metrics holds the collectors and the registry they are registered with.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	operationErrors   *prometheus.CounterVec
	streamPayloads    *prometheus.CounterVec
	unexpectedErrors  prometheus.Counter
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests served, by method, status class and response media type",
	}, []string{"method", "status_class", "media_type"})

	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Time to serve HTTP requests, including streamed responses",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "status_class"})

	m.operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "graphql",
		Name:      "operations_total",
		Help:      "GraphQL operations started, by operation type",
	}, []string{"operation_type"})

	m.operationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "graphql",
		Name:      "operation_duration_seconds",
		Help:      "Time until an operation produced its result or its stream",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation_type"})

	m.operationErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "graphql",
		Name:      "errors_total",
		Help:      "GraphQL errors returned, by operation type",
	}, []string{"operation_type"})

	m.streamPayloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "graphql",
		Name:      "stream_payloads_total",
		Help:      "Payloads delivered on streamed results",
	}, []string{"operation_type"})

	m.unexpectedErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "graphql",
		Name:      "unexpected_errors_total",
		Help:      "Errors masked before reaching the client",
	})

	m.registry.MustRegister(
		m.httpRequests, m.httpDuration,
		m.operations, m.operationDuration, m.operationErrors,
		m.streamPayloads, m.unexpectedErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry is the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WatchCache exports the hit and miss counts of a cache.
func (m *Metrics) WatchCache(name string, stats func() (hits, misses uint64)) {
	labels := prometheus.Labels{"cache": name}
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   Namespace,
			Subsystem:   "cache",
			Name:        "hits_total",
			Help:        "Cache lookups that found an entry",
			ConstLabels: labels,
		}, func() float64 { h, _ := stats(); return float64(h) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   Namespace,
			Subsystem:   "cache",
			Name:        "misses_total",
			Help:        "Cache lookups that found nothing",
			ConstLabels: labels,
		}, func() float64 { _, m := stats(); return float64(m) }),
	)
}

// Register subscribes the collectors to b. A nil bus registers nothing.
func (m *Metrics) Register(b *eventbus.Bus) (unsubscribe func()) {
	if b == nil {
		return func() {}
	}
	unsubs := []func(){
		eventbus.SubscribeTo(b, func(_ context.Context, e events.HTTPFinish) {
			class := statusClass(e.Status)
			m.httpRequests.WithLabelValues(e.Request.Method, class, e.MediaType).Inc()
			m.httpDuration.WithLabelValues(e.Request.Method, class).Observe(e.Duration.Seconds())
		}),
		eventbus.SubscribeTo(b, func(_ context.Context, e events.GraphQLStart) {
			m.operations.WithLabelValues(e.OperationType).Inc()
		}),
		eventbus.SubscribeTo(b, func(_ context.Context, e events.GraphQLFinish) {
			m.operationDuration.WithLabelValues(e.OperationType).Observe(e.Duration.Seconds())
			if len(e.Errors) > 0 {
				m.operationErrors.WithLabelValues(e.OperationType).Add(float64(len(e.Errors)))
			}
		}),
		eventbus.SubscribeTo(b, func(_ context.Context, e events.StreamFinish) {
			m.streamPayloads.WithLabelValues(e.OperationType).Add(float64(e.Payloads))
		}),
		eventbus.SubscribeTo(b, func(context.Context, events.UnexpectedError) {
			m.unexpectedErrors.Inc()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
