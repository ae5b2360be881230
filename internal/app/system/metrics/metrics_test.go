package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/visadesk/internal/app/system/tasks"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	m := New(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/admin/cases/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/admin/cases/"+id, nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/admin/cases/{id}", "404"))
	if got != 3 {
		t.Errorf("requests{route=/admin/cases/{id},status=404} = %v, want 3", got)
	}
}

func TestDomainCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.CaseSubmitted("acme")
	m.CaseSubmitted("acme")
	m.CaseAssigned("acme", OutcomeWeighted)
	m.OrphansDeleted(2)
	m.OrphansDeleted(0)

	if got := testutil.ToFloat64(m.casesSubmitted.WithLabelValues("acme")); got != 2 {
		t.Errorf("cases_submitted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.caseAssignments.WithLabelValues("acme", OutcomeWeighted)); got != 1 {
		t.Errorf("case_assignments = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.orphansDeleted); got != 2 {
		t.Errorf("orphans_deleted = %v, want 2", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.CaseSubmitted("acme")
	m.CaseAssigned("acme", OutcomeManual)
	m.OrphansDeleted(1)

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
}

func TestHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.CaseSubmitted("acme")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `visadesk_cases_submitted_total{brand="acme"} 1`) {
		t.Errorf("metrics output missing counter:\n%s", rec.Body.String())
	}
}

func TestJobFinished(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.JobFinished("counter-audit", 20*time.Millisecond, nil)
	m.JobFinished("counter-audit", 5*time.Millisecond, errors.New("boom"))
	m.JobFinished("counter-audit", 0, tasks.ErrJobBusy)

	for result, want := range map[string]float64{"ok": 1, "error": 1, "skipped": 1} {
		if got := testutil.ToFloat64(m.jobRuns.WithLabelValues("counter-audit", result)); got != want {
			t.Errorf("job_runs{result=%s} = %v, want %v", result, got, want)
		}
	}
	// Skipped runs observe no duration.
	if got := testutil.CollectAndCount(m.jobDuration); got != 1 {
		t.Errorf("job_duration series = %d, want 1", got)
	}

	var nilM *Metrics
	nilM.JobFinished("counter-audit", time.Second, nil)
}
