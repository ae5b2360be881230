// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"time"

	accountfeature "github.com/dalemusser/visadesk/internal/app/features/account"
	applicationsfeature "github.com/dalemusser/visadesk/internal/app/features/applications"
	auditlogfeature "github.com/dalemusser/visadesk/internal/app/features/auditlog"
	authapifeature "github.com/dalemusser/visadesk/internal/app/features/authapi"
	brandsfeature "github.com/dalemusser/visadesk/internal/app/features/brands"
	casesfeature "github.com/dalemusser/visadesk/internal/app/features/cases"
	catalogfeature "github.com/dalemusser/visadesk/internal/app/features/catalog"
	contentfeature "github.com/dalemusser/visadesk/internal/app/features/content"
	errorsfeature "github.com/dalemusser/visadesk/internal/app/features/errors"
	healthfeature "github.com/dalemusser/visadesk/internal/app/features/health"
	loafeature "github.com/dalemusser/visadesk/internal/app/features/loa"
	loadbalancerfeature "github.com/dalemusser/visadesk/internal/app/features/loadbalancer"
	messagesfeature "github.com/dalemusser/visadesk/internal/app/features/messages"
	notificationsfeature "github.com/dalemusser/visadesk/internal/app/features/notifications"
	reportsfeature "github.com/dalemusser/visadesk/internal/app/features/reports"
	stafffeature "github.com/dalemusser/visadesk/internal/app/features/staff"
	"github.com/dalemusser/visadesk/internal/app/store/audit"
	brandstore "github.com/dalemusser/visadesk/internal/app/store/brands"
	"github.com/dalemusser/visadesk/internal/app/store/ratelimit"
	userstore "github.com/dalemusser/visadesk/internal/app/store/users"
	"github.com/dalemusser/visadesk/internal/app/system/apicors"
	"github.com/dalemusser/visadesk/internal/app/system/auditlog"
	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/casenotify"
	"github.com/dalemusser/visadesk/internal/app/system/events"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/sso"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/dalemusser/waffle/pantry/fileserver"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed.
//
// The tree has three brand-scoped surfaces and a few machine endpoints:
//   - /common: anonymous storefront data (brand, catalog, CMS, quotes, CSRF token)
//   - /user:   client accounts, applications and their documents
//   - /admin:  the staff back office
//   - /health, /ready, /live, /metrics and local file serving
//
// Brand-scoped routes resolve the tenant first, then load the session so
// sessions belonging to another brand are dropped.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	db := deps.MongoDatabase

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	// Fresh user data on each request so role changes and disabled
	// accounts take effect immediately.
	sessionMgr.SetUserFetcher(userstore.NewFetcher(db, logger))
	sessionMgr.SetBrandResolver(tenant.BrandID)

	errLog := errorsfeature.NewErrorLogger(logger)

	auditLogger := auditlog.New(audit.New(db), logger, auditlog.Config{
		Auth:  appCfg.AuditLogAuth,
		Admin: appCfg.AuditLogAdmin,
	})

	emitter := events.NewEmitter(deps.Events, logger)
	notifier := casenotify.New(db, deps.Mailer, emitter, appCfg.BaseURL, logger)

	// Rate limiting for login attempts (nil if disabled)
	var rateLimitStore *ratelimit.Store
	if appCfg.RateLimitEnabled {
		rateLimitStore = ratelimit.New(db,
			appCfg.RateLimitLoginAttempts,
			appCfg.RateLimitLoginWindow,
			appCfg.RateLimitLoginLockout,
		)
	}

	// SSO backends, in the order that breaks ties.
	var verifiers []sso.Verifier
	if appCfg.SSOJWTSecret != "" {
		verifiers = append(verifiers, sso.NewJWT(appCfg.SSOJWTSecret, appCfg.SSOJWTIssuer))
	}
	if appCfg.GoogleClientID != "" && appCfg.GoogleClientSecret != "" {
		verifiers = append(verifiers, sso.NewGoogle(appCfg.GoogleClientID, appCfg.GoogleClientSecret))
	}
	ssoMulti := sso.NewMulti(appCfg.SSOTimeout, logger, verifiers...)
	if ssoMulti.Enabled() {
		logger.Info("SSO enabled", zap.Int("backends", len(verifiers)))
	}

	// Feature handlers
	authHandler := authapifeature.NewHandler(db, sessionMgr, rateLimitStore, ssoMulti, notifier, errLog, auditLogger, logger)
	accountHandler := accountfeature.NewHandler(db, errLog, auditLogger, logger)
	brandsHandler := brandsfeature.NewHandler(db, errLog, auditLogger, logger)
	catalogHandler := catalogfeature.NewHandler(db, errLog, auditLogger, logger)
	contentHandler := contentfeature.NewHandler(db, deps.FileStorage, appCfg.UploadMaxBytes, deps.Metrics, errLog, auditLogger, logger)
	lbHandler := loadbalancerfeature.NewHandler(db, errLog, auditLogger, logger)
	messagesHandler := messagesfeature.NewHandler(db, notifier, errLog, logger)
	notificationsHandler := notificationsfeature.NewHandler(db, errLog, logger)
	staffHandler := stafffeature.NewHandler(db, notifier, errLog, auditLogger, logger)
	reportsHandler := reportsfeature.NewHandler(db, errLog, logger)
	auditLogHandler := auditlogfeature.NewHandler(db, errLog, logger)

	loaHandler := loafeature.NewHandler(db, deps.FileStorage, appCfg.UploadMaxBytes, notifier, errLog, auditLogger, logger)
	loaHandler.SetDownloadTTL(appCfg.DownloadURLTTL)
	casesHandler := casesfeature.NewHandler(db, deps.FileStorage, notifier, deps.Metrics, errLog, auditLogger, logger)
	casesHandler.SetDownloadTTL(appCfg.DownloadURLTTL)
	applicationsHandler := applicationsfeature.NewHandler(db, deps.FileStorage, appCfg.UploadMaxBytes, notifier, deps.Metrics, errLog, auditLogger, logger)
	applicationsHandler.SetDownloadTTL(appCfg.DownloadURLTTL)

	r := chi.NewRouter()

	// ─────────────────────────────────────────────────────────────────────────────
	// Global Middleware (applies to ALL routes)
	// ─────────────────────────────────────────────────────────────────────────────

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	// Request timeout middleware: prevents requests from hanging indefinitely.
	r.Use(chimw.Timeout(30 * time.Second))

	// Request counts and latency by route pattern.
	r.Use(deps.Metrics.Middleware)

	// CORS middleware: must be early in the chain to handle preflight requests.
	r.Use(middleware.CORSFromConfig(coreCfg))

	// Security headers middleware: adds X-Frame-Options, X-Content-Type-Options, etc.
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))

	// CSRF protection for cookie-authenticated writes. Browsers fetch the
	// token from GET /common/csrf and send it back in X-CSRF-Token.
	csrfOpts := []csrf.Option{
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.CookieName("visadesk_csrf"),
		csrf.RequestHeader("X-CSRF-Token"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			logger.Warn("CSRF validation failed",
				zap.String("path", req.URL.Path),
				zap.String("method", req.Method),
				zap.String("reason", csrf.FailureReason(req).Error()),
			)
			jsonutil.Forbidden(w, "CSRF token invalid or missing")
		})),
	}
	// In dev mode, trust localhost origins for CSRF validation.
	if !secure {
		csrfOpts = append(csrfOpts, csrf.TrustedOrigins([]string{
			"localhost:8080",
			"localhost:3000",
			"127.0.0.1:8080",
			"127.0.0.1:3000",
		}))
	}
	if appCfg.SessionDomain != "" {
		csrfOpts = append(csrfOpts, csrf.Domain(appCfg.SessionDomain))
	}
	csrfProtect := csrf.Protect([]byte(appCfg.CSRFKey), csrfOpts...)

	brandMiddleware := tenant.Middleware(tenant.Config{
		PrimaryDomain:    appCfg.PrimaryDomain,
		MultiBrand:       appCfg.MultiBrand,
		DefaultBrandSlug: appCfg.DefaultBrandSlug,
		AllowHeader:      coreCfg.Env == "dev",
	}, brandstore.New(db), logger)

	// ─────────────────────────────────────────────────────────────────────────────
	// Machine endpoints (no brand, no session)
	// ─────────────────────────────────────────────────────────────────────────────

	healthHandler := healthfeature.NewHandler(deps.MongoClient, logger)
	if deps.Redis != nil {
		healthHandler.AddCheck("redis", deps.Redis.Ping)
	}
	r.Mount("/health", healthfeature.Routes(healthHandler))
	healthfeature.MountRootEndpoints(r, healthHandler)

	if appCfg.MetricsEnabled {
		r.With(auth.BearerToken(appCfg.MetricsToken, logger)).Handle("/metrics", deps.Metrics.Handler())
	}

	// Uploaded files (local storage only)
	if appCfg.StorageType == "local" || appCfg.StorageType == "" {
		r.Handle(appCfg.StorageLocalURL+"/*", fileserver.Handler(appCfg.StorageLocalURL, appCfg.StorageLocalPath))
	}

	// ─────────────────────────────────────────────────────────────────────────────
	// Public storefront: /common
	// Anonymous, permissive CORS, no CSRF (nothing here is cookie-authenticated).
	// ─────────────────────────────────────────────────────────────────────────────
	r.Route("/common", func(cr chi.Router) {
		cr.Use(apicors.Middleware())
		cr.Use(brandMiddleware)

		// The token is issued by csrf.Protect; this route only hands it out.
		cr.With(csrfProtect).Get("/csrf", func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-CSRF-Token", csrf.Token(req))
			jsonutil.OK(w, map[string]string{"csrf_token": csrf.Token(req)})
		})
		cr.Get("/brand", brandsHandler.Public)
		cr.Mount("/content", contentfeature.PublicRoutes(contentHandler))
		cr.Mount("/", catalogfeature.PublicRoutes(catalogHandler))
	})

	// ─────────────────────────────────────────────────────────────────────────────
	// Client surface: /user
	// ─────────────────────────────────────────────────────────────────────────────
	r.Route("/user", func(ur chi.Router) {
		ur.Use(brandMiddleware)
		ur.Use(sessionMgr.LoadSessionUser)
		ur.Use(csrfProtect)

		ur.Mount("/auth", authapifeature.UserRoutes(authHandler))
		ur.Mount("/applications", applicationsfeature.Routes(applicationsHandler, sessionMgr,
			loafeature.ClientRoutes(loaHandler),
			messagesfeature.ClientRoutes(messagesHandler),
		))
		ur.Mount("/notifications", notificationsfeature.Routes(notificationsHandler, sessionMgr))

		// Account and address book (clients only)
		ur.Group(func(gr chi.Router) {
			gr.Use(sessionMgr.RequireRole(models.RoleClient))
			gr.Mount("/", accountfeature.Routes(accountHandler))
		})
	})

	// ─────────────────────────────────────────────────────────────────────────────
	// Back office: /admin
	// Role gating lives in each feature's Routes.
	// ─────────────────────────────────────────────────────────────────────────────
	r.Route("/admin", func(ar chi.Router) {
		ar.Use(brandMiddleware)
		ar.Use(sessionMgr.LoadSessionUser)
		ar.Use(csrfProtect)

		ar.Mount("/auth", authapifeature.AdminRoutes(authHandler))

		// Cases and their chat
		ar.Mount("/cases", casesfeature.Routes(casesHandler, sessionMgr, messagesfeature.StaffRoutes(messagesHandler)))
		ar.Mount("/messages", messagesfeature.UnreadRoutes(messagesHandler, sessionMgr))
		ar.Mount("/notifications", notificationsfeature.Routes(notificationsHandler, sessionMgr))

		// People
		ar.Mount("/staff", stafffeature.Routes(staffHandler, sessionMgr))
		ar.Mount("/roles", stafffeature.RolesRoutes(sessionMgr))
		ar.Mount("/brands", brandsfeature.AdminRoutes(brandsHandler, sessionMgr))

		// Catalog
		ar.Mount("/countries", catalogfeature.CountryRoutes(catalogHandler, sessionMgr))
		ar.Mount("/country-access", catalogfeature.AccessRoutes(catalogHandler, sessionMgr))
		ar.Mount("/service-types", catalogfeature.TypeRoutes(catalogHandler, sessionMgr))
		ar.Mount("/service-levels", catalogfeature.LevelRoutes(catalogHandler, sessionMgr))
		ar.Mount("/country-pairs", catalogfeature.PairRoutes(catalogHandler, sessionMgr))

		// Homepage CMS, assignment weights and letters of authorization
		ar.Mount("/content", contentfeature.AdminRoutes(contentHandler, sessionMgr))
		ar.Mount("/load-balancer", loadbalancerfeature.Routes(lbHandler, sessionMgr))
		ar.Mount("/loas", loafeature.AdminRoutes(loaHandler, sessionMgr))

		// Reporting
		ar.Mount("/reports", reportsfeature.Routes(reportsHandler, sessionMgr))
		ar.Mount("/audit", auditlogfeature.Routes(auditLogHandler, sessionMgr))
	})

	r.NotFound(errorsfeature.NotFound)
	r.MethodNotAllowed(errorsfeature.MethodNotAllowed)

	return r, nil
}
