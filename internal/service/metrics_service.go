package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the scheduler
// worker: the ops-only HTTP surface, database query timing, and the
// Driver/GA run metrics (spec §4.6, §5).
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	dbQueryDuration *prometheus.HistogramVec

	driverRunCost     prometheus.Histogram
	driverRunDuration prometheus.Histogram
	driverRunsTotal   prometheus.Counter
	generationsTotal  *prometheus.CounterVec
	feederLessons     prometheus.Counter
}

// NewMetricsService registers the Prometheus collectors used by the
// scheduler worker.
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

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	driverRunCost := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "driver_run_cost",
		Help:    "Cost of the winning timetable persisted per day",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	driverRunDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "driver_run_duration_seconds",
		Help:    "Wall time spent searching and persisting one day's timetable",
		Buckets: prometheus.DefBuckets,
	})

	driverRunsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "driver_runs_total",
		Help: "Total number of days for which a timetable was persisted",
	})

	generationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "population_generations_total",
		Help: "Total GA searches run (one per driver iteration), labeled by outcome",
	}, []string{"outcome"})

	feederLessons := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feeder_lessons_total",
		Help: "Total placeholder feeder lessons synthesized after a run",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, dbQueryDuration,
		driverRunCost, driverRunDuration, driverRunsTotal, generationsTotal, feederLessons, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:          registry,
		handler:           handler,
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		dbQueryDuration:   dbQueryDuration,
		driverRunCost:     driverRunCost,
		driverRunDuration: driverRunDuration,
		driverRunsTotal:   driverRunsTotal,
		generationsTotal:  generationsTotal,
		feederLessons:     feederLessons,
	}
}

// Handler exposes the Prometheus HTTP handler for the /metrics route.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics for the worker's ops-only
// HTTP surface.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveDBQuery records database query timing for repository calls.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// ObserveDriverRun records the cost and wall time of a single day's
// persisted timetable (called from DriverService.runDay).
func (m *MetricsService) ObserveDriverRun(cost float64, duration time.Duration) {
	if m == nil {
		return
	}
	m.driverRunCost.Observe(cost)
	m.driverRunDuration.Observe(duration.Seconds())
	m.driverRunsTotal.Inc()
}

// ObserveGeneration records one completed GA search, labeled by whether it
// ran to its stopping condition or was cut short by context cancellation.
func (m *MetricsService) ObserveGeneration(outcome string) {
	if m == nil {
		return
	}
	m.generationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFeederLessons records how many placeholder lessons a feeder pass
// synthesized.
func (m *MetricsService) ObserveFeederLessons(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.feederLessons.Add(float64(count))
}
