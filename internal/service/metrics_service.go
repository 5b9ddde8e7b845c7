package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bonjohen/cedar-terrace-sub001/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the lifecycle
// engine: HTTP traffic, cache behaviour, and domain counters.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	violationsDerived   *prometheus.CounterVec
	violationEvents     *prometheus.CounterVec
	noticesIssued       prometheus.Counter
	timelineTransitions *prometheus.CounterVec
	idempotentReplays   *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	violationsDerived := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "violations_derived_total",
		Help: "Violations opened by the deriver, by category",
	}, []string{"category"})

	violationEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "violation_events_total",
		Help: "Events appended to violation logs, by type",
	}, []string{"type"})

	noticesIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notices_issued_total",
		Help: "Notices issued",
	})

	timelineTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_transitions_total",
		Help: "Automatic transitions applied by the timeline evaluator",
	}, []string{"transition"})

	idempotentReplays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "idempotent_replays_total",
		Help: "Requests answered from the idempotency ledger",
	}, []string{"operation"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal, cacheHits, cacheMisses,
		violationsDerived, violationEvents, noticesIssued,
		timelineTransitions, idempotentReplays, goroutines,
	)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:            registry,
		handler:             handler,
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		cacheHits:           cacheHits,
		cacheMisses:         cacheMisses,
		violationsDerived:   violationsDerived,
		violationEvents:     violationEvents,
		noticesIssued:       noticesIssued,
		timelineTransitions: timelineTransitions,
		idempotentReplays:   idempotentReplays,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation counts a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ViolationDerived counts a newly opened violation.
func (m *MetricsService) ViolationDerived(category models.ViolationCategory) {
	if m == nil {
		return
	}
	m.violationsDerived.WithLabelValues(string(category)).Inc()
}

// ViolationEventApplied counts an appended event.
func (m *MetricsService) ViolationEventApplied(eventType models.ViolationEventType) {
	if m == nil {
		return
	}
	m.violationEvents.WithLabelValues(string(eventType)).Inc()
}

// NoticeIssued counts an issued notice.
func (m *MetricsService) NoticeIssued() {
	if m == nil {
		return
	}
	m.noticesIssued.Inc()
}

// TimelineTransition counts an automatic transition.
func (m *MetricsService) TimelineTransition(transition models.ViolationEventType) {
	if m == nil {
		return
	}
	m.timelineTransitions.WithLabelValues(string(transition)).Inc()
}

// IdempotentReplay counts a request served from the ledger.
func (m *MetricsService) IdempotentReplay(operation string) {
	if m == nil {
		return
	}
	m.idempotentReplays.WithLabelValues(operation).Inc()
}
