// Package applications is the client side of a case: the wizard draft,
// its quote, submission, cancellation and supporting documents.
package applications

import (
	"errors"
	"net/http"
	"time"

	errorsfeature "github.com/dalemusser/visadesk/internal/app/features/errors"
	casestore "github.com/dalemusser/visadesk/internal/app/store/cases"
	catalogstore "github.com/dalemusser/visadesk/internal/app/store/catalog"
	countrystore "github.com/dalemusser/visadesk/internal/app/store/countries"
	lbstore "github.com/dalemusser/visadesk/internal/app/store/loadbalancer"
	"github.com/dalemusser/visadesk/internal/app/system/auditlog"
	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/casenotify"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/metrics"
	"github.com/dalemusser/visadesk/internal/app/system/pricing"
	"github.com/dalemusser/visadesk/internal/app/system/uploads"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Handler struct {
	db        *mongo.Database
	cases     *casestore.Store
	countries *countrystore.Store
	catalog   *catalogstore.Store
	weights   *lbstore.Store
	pricing   *pricing.Service
	notifier  *casenotify.Notifier
	files     uploads.Store
	maxBytes  int64
	metrics   *metrics.Metrics
	errLog    *errorsfeature.ErrorLogger
	audit     *auditlog.Logger
	logger    *zap.Logger

	downloadTTL time.Duration
}

// NewHandler creates an applications Handler. m may be nil.
func NewHandler(db *mongo.Database, files uploads.Store, maxBytes int64, notifier *casenotify.Notifier, m *metrics.Metrics,
	errLog *errorsfeature.ErrorLogger, auditLogger *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		db:        db,
		cases:     casestore.New(db),
		countries: countrystore.New(db),
		catalog:   catalogstore.New(db),
		weights:   lbstore.New(db),
		pricing:   pricing.New(db),
		notifier:  notifier,
		files:     files,
		maxBytes:  maxBytes,
		metrics:   m,
		errLog:    errLog,
		audit:     auditLogger,
		logger:    logger,
	}
}

// SetDownloadTTL sets how long signed download links stay valid. Zero
// keeps uploads.DefaultDownloadTTL.
func (h *Handler) SetDownloadTTL(d time.Duration) {
	h.downloadTTL = d
}

// Routes is mounted at /user/applications. loas and messages serve the
// per-application sub-resources.
func Routes(h *Handler, sm *auth.SessionManager, loas, messages http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireRole(models.RoleClient))
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Patch("/", h.update)
		r.Delete("/", h.delete)
		r.Get("/quote", h.quote)
		r.Post("/submit", h.submit)
		r.Post("/cancel", h.cancel)
		r.Post("/documents", h.uploadDocument)
		r.Get("/documents/{docID}/download", h.downloadDocument)
		r.Delete("/documents/{docID}", h.deleteDocument)
		if loas != nil {
			r.Mount("/loas", loas)
		}
		if messages != nil {
			r.Mount("/messages", messages)
		}
	})
	return r
}

// writeCaseError maps case store errors. It reports false for anything
// unexpected.
func writeCaseError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, casestore.ErrNotFound):
		jsonutil.NotFound(w, "application not found")
	case errors.Is(err, casestore.ErrNotDraft),
		errors.Is(err, casestore.ErrStatusChanged),
		errors.Is(err, casestore.ErrClosed),
		errors.Is(err, models.ErrInvalidTransition):
		jsonutil.Conflict(w, err.Error())
	default:
		return false
	}
	return true
}

// writeChoiceError maps pricing failures for a service choice to status.
func writeChoiceError(w http.ResponseWriter, err error, status int) bool {
	switch {
	case errors.Is(err, pricing.ErrPairNotFound),
		errors.Is(err, models.ErrPairInactive),
		errors.Is(err, models.ErrOfferingUnavailable):
		jsonutil.Error(w, status, err.Error())
		return true
	}
	return false
}
