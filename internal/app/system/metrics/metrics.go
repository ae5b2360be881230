// Package metrics defines the Prometheus collectors visadesk exports.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dalemusser/visadesk/internal/app/system/tasks"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Assignment outcomes.
const (
	OutcomeWeighted   = "weighted"
	OutcomeManual     = "manual"
	OutcomeUnassigned = "unassigned"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	casesSubmitted  *prometheus.CounterVec
	caseAssignments *prometheus.CounterVec
	orphansDeleted  prometheus.Counter
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	gatherer        prometheus.Gatherer
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in
// tests so runs do not collide on the default registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visadesk_http_requests_total",
			Help: "HTTP requests by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "visadesk_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		casesSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visadesk_cases_submitted_total",
			Help: "Cases submitted by clients, per brand.",
		}, []string{"brand"}),
		caseAssignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visadesk_case_assignments_total",
			Help: "Case assignments per brand and outcome (weighted, manual, unassigned).",
		}, []string{"brand", "outcome"}),
		orphansDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "visadesk_storage_orphans_deleted_total",
			Help: "Storage objects deleted after content stopped referencing them.",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visadesk_job_runs_total",
			Help: "Background job runs by job and result (ok, error, skipped).",
		}, []string{"job", "result"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "visadesk_job_duration_seconds",
			Help:    "Background job run time.",
			Buckets: []float64{.05, .25, 1, 5, 30, 120, 600},
		}, []string{"job"}),
		gatherer: reg,
	}
	reg.MustRegister(m.requests, m.duration, m.casesSubmitted, m.caseAssignments, m.orphansDeleted,
		m.jobRuns, m.jobDuration)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// CaseSubmitted counts one submission for brand (slug).
func (m *Metrics) CaseSubmitted(brand string) {
	if m == nil {
		return
	}
	m.casesSubmitted.WithLabelValues(brand).Inc()
}

// CaseAssigned counts one assignment outcome for brand (slug).
func (m *Metrics) CaseAssigned(brand, outcome string) {
	if m == nil {
		return
	}
	m.caseAssignments.WithLabelValues(brand, outcome).Inc()
}

// OrphansDeleted adds n deleted storage objects.
func (m *Metrics) OrphansDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.orphansDeleted.Add(float64(n))
}

// JobFinished records one background job run. It matches tasks.Observer.
func (m *Metrics) JobFinished(job string, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, tasks.ErrJobBusy):
		m.jobRuns.WithLabelValues(job, "skipped").Inc()
		return
	case err != nil:
		result = "error"
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
	m.jobDuration.WithLabelValues(job).Observe(took.Seconds())
}

// Middleware records request count and latency. The route label is the
// chi pattern ("/admin/cases/{id}"), not the raw path, so label
// cardinality stays bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
