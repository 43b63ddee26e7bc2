package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the workflow
// API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	transitionTotal *prometheus.CounterVec
	overdueStages   prometheus.Counter
	overduePapers   prometheus.Counter
	notifyTotal     *prometheus.CounterVec
	scanDuration    prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
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

	transitionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_transitions_total",
		Help: "Workflow stage transitions by action",
	}, []string{"action"})

	overdueStages := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overdue_stages_detected_total",
		Help: "Stages found past their deadline by the overdue scanner",
	})

	overduePapers := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "overdue_papers_detected_total",
		Help: "Papers found past their deadline by the overdue scanner",
	})

	notifyTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_dispatched_total",
		Help: "Outbound notifications by type and outcome",
	}, []string{"type", "outcome"})

	scanDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "overdue_scan_duration_seconds",
		Help:    "Duration of overdue scan passes",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, transitionTotal, overdueStages, overduePapers, notifyTotal, scanDuration, cacheHits, cacheMisses, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		transitionTotal: transitionTotal,
		overdueStages:   overdueStages,
		overduePapers:   overduePapers,
		notifyTotal:     notifyTotal,
		scanDuration:    scanDuration,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
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

// RecordTransition counts a workflow transition by its audit action.
func (m *MetricsService) RecordTransition(action string) {
	if m == nil {
		return
	}
	m.transitionTotal.WithLabelValues(action).Inc()
}

// RecordOverdueStage counts a stage detected past its deadline.
func (m *MetricsService) RecordOverdueStage() {
	if m == nil {
		return
	}
	m.overdueStages.Inc()
}

// RecordOverduePaper counts a paper detected past its deadline.
func (m *MetricsService) RecordOverduePaper() {
	if m == nil {
		return
	}
	m.overduePapers.Inc()
}

// RecordNotification counts an outbound notification dispatch outcome.
func (m *MetricsService) RecordNotification(notificationType string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.notifyTotal.WithLabelValues(notificationType, outcome).Inc()
}

// ObserveScan records the duration of one overdue scan pass.
func (m *MetricsService) ObserveScan(duration time.Duration) {
	if m == nil || m.scanDuration == nil {
		return
	}
	m.scanDuration.Observe(duration.Seconds())
}

// RecordCacheOperation records a cache hit or miss.
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
