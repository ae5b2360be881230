package bootstrap

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dalemusser/visadesk/internal/app/system/events"
	"github.com/dalemusser/visadesk/internal/app/system/mailer"
	"github.com/dalemusser/visadesk/internal/app/system/metrics"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/visadesk/internal/testutil"
	"github.com/dalemusser/waffle/config"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func buildTestHandler(t *testing.T) http.Handler {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	testutil.InsertBrand(t, db, "acme")

	reg := prometheus.NewRegistry()
	deps := DBDeps{
		MongoClient:   db.Client(),
		MongoDatabase: db,
		FileStorage:   testutil.NewMemStorage(),
		Mailer:        mailer.New(mailer.Config{}, logger),
		Events:        events.Nop{},
		Registry:      reg,
		Metrics:       metrics.New(reg),
	}
	appCfg := validConfig()
	appCfg.SessionKey = "test-session-key-0123456789abcdef0123456789"
	appCfg.SessionName = "visadesk-test"
	appCfg.SessionMaxAge = time.Hour
	appCfg.CSRFKey = "test-csrf-key-0123456789abcdef0123"
	appCfg.StorageLocalPath = t.TempDir()
	appCfg.StorageLocalURL = "/files"
	appCfg.DefaultBrandSlug = "acme"
	appCfg.RateLimitEnabled = true
	appCfg.RateLimitLoginAttempts = 5
	appCfg.RateLimitLoginWindow = time.Minute
	appCfg.RateLimitLoginLockout = time.Minute
	appCfg.MetricsEnabled = true
	appCfg.MetricsToken = "scrape-token"

	h, err := BuildHandler(&config.CoreConfig{Env: "test"}, appCfg, deps, logger)
	if err != nil {
		t.Fatalf("BuildHandler() error = %v", err)
	}
	return h
}

func serve(h http.Handler, req *http.Request) *testutil.ResponseRecorder {
	rec := testutil.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBuildHandler_PublicRoutes(t *testing.T) {
	h := buildTestHandler(t)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/common/brand", nil))
	rec.AssertStatus(t, http.StatusOK)
	var brand models.PublicBrand
	rec.DecodeJSON(t, &brand)
	if brand.Slug != "acme" {
		t.Errorf("brand slug = %q, want acme", brand.Slug)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/common/csrf", nil))
	rec.AssertStatus(t, http.StatusOK)
	if rec.Header().Get("X-CSRF-Token") == "" {
		t.Error("X-CSRF-Token header missing")
	}

	rec = serve(h, httptest.NewRequest(http.MethodOptions, "/common/quote", nil))
	rec.AssertStatus(t, http.StatusNoContent)

	serve(h, httptest.NewRequest(http.MethodGet, "/live", nil)).AssertStatus(t, http.StatusOK)
	serve(h, httptest.NewRequest(http.MethodGet, "/no-such-page", nil)).AssertStatus(t, http.StatusNotFound)
}

func TestBuildHandler_Gating(t *testing.T) {
	h := buildTestHandler(t)

	serve(h, httptest.NewRequest(http.MethodGet, "/admin/cases", nil)).AssertStatus(t, http.StatusUnauthorized)
	serve(h, httptest.NewRequest(http.MethodGet, "/user/applications", nil)).AssertStatus(t, http.StatusUnauthorized)

	// Cookie-authenticated writes need a CSRF token.
	serve(h, testutil.NewJSONRequest(t, http.MethodPost, "/user/auth/login",
		map[string]string{"email": "a@example.com", "password": "x"})).AssertStatus(t, http.StatusForbidden)

	serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil)).AssertStatus(t, http.StatusUnauthorized)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer scrape-token")
	rec := serve(h, req)
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "visadesk_http_requests_total")
}
