// Package cases is the staff side of a case: the filtered case list, the
// status machine, assignment, archiving, soft deletion and payment.
package cases

import (
	"context"
	"errors"
	"net/http"
	"time"

	errorsfeature "github.com/dalemusser/visadesk/internal/app/features/errors"
	casestore "github.com/dalemusser/visadesk/internal/app/store/cases"
	userstore "github.com/dalemusser/visadesk/internal/app/store/users"
	"github.com/dalemusser/visadesk/internal/app/system/auditlog"
	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/casenotify"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/metrics"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/app/system/uploads"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Handler struct {
	cases    *casestore.Store
	users    *userstore.Store
	notifier *casenotify.Notifier
	files    uploads.Store
	metrics  *metrics.Metrics
	errLog   *errorsfeature.ErrorLogger
	audit    *auditlog.Logger
	logger   *zap.Logger

	downloadTTL time.Duration
}

// NewHandler creates a cases Handler. m may be nil.
func NewHandler(db *mongo.Database, files uploads.Store, notifier *casenotify.Notifier, m *metrics.Metrics,
	errLog *errorsfeature.ErrorLogger, auditLogger *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		cases:    casestore.New(db),
		users:    userstore.New(db),
		notifier: notifier,
		files:    files,
		metrics:  m,
		errLog:   errLog,
		audit:    auditLogger,
		logger:   logger,
	}
}

// SetDownloadTTL sets how long signed download links stay valid. Zero
// keeps uploads.DefaultDownloadTTL.
func (h *Handler) SetDownloadTTL(d time.Duration) {
	h.downloadTTL = d
}

// Routes is mounted at /admin/cases. messages serves the per-case chat.
// Agents work their own cases; reassignment, archiving,
// deletion and payment need a manager.
func Routes(h *Handler, sm *auth.SessionManager, messages http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireStaff)
	r.Get("/", h.list)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Post("/status", h.setStatus)
		r.Get("/documents/{docID}/download", h.downloadDocument)
		// Any staff member who can see a case may delete or restore it.
		r.Delete("/", h.delete)
		r.Post("/restore", h.restore)
		if messages != nil {
			r.Mount("/messages", messages)
		}
		r.Group(func(r chi.Router) {
			r.Use(sm.RequireManager)
			r.Post("/assign", h.assign)
			r.Post("/archive", h.archive)
			r.Post("/unarchive", h.unarchive)
			r.Post("/payment", h.payment)
		})
	})
	return r
}

// writeCaseError maps case store errors. It reports false for anything
// unexpected.
func writeCaseError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, casestore.ErrNotFound):
		jsonutil.NotFound(w, "case not found")
	case errors.Is(err, casestore.ErrStatusChanged),
		errors.Is(err, casestore.ErrClosed),
		errors.Is(err, models.ErrInvalidTransition):
		jsonutil.Conflict(w, err.Error())
	case errors.Is(err, models.ErrUnknownStatus):
		jsonutil.BadRequest(w, err.Error())
	default:
		return false
	}
	return true
}

// isAgent reports whether su only sees the cases assigned to them.
func isAgent(su *auth.SessionUser) bool {
	return su.Role == models.RoleAgent
}

// visible reports whether su may see c. Drafts stay private to the
// client until they are submitted.
func visible(su *auth.SessionUser, c models.Case) bool {
	if c.Status == models.CaseDraft {
		return false
	}
	if isAgent(su) {
		return c.AssignedTo != nil && *c.AssignedTo == su.UserID()
	}
	return true
}

// load fetches the case named by {id}. Deleted cases are only returned
// when withDeleted is set.
func (h *Handler) load(ctx context.Context, w http.ResponseWriter, r *http.Request, withDeleted bool) (models.Case, bool) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	id, ok := jsonutil.ObjectID(w, "case id", chi.URLParam(r, "id"))
	if !ok {
		return models.Case{}, false
	}
	c, err := h.cases.Get(ctx, brand.ID, id)
	if err == nil && ((c.IsDeleted && !withDeleted) || !visible(su, c)) {
		err = casestore.ErrNotFound
	}
	if err != nil {
		if !writeCaseError(w, err) {
			h.errLog.Internal(w, r, "failed to load case", err)
		}
		return models.Case{}, false
	}
	return c, true
}

// caseView is a case with the statuses staff may move it to.
type caseView struct {
	models.Case
	NextStatuses []string `json:"next_statuses"`
	AssigneeName string   `json:"assignee_name,omitempty"`
}

func view(c models.Case) caseView {
	next := models.NextStatuses(c.Status)
	if next == nil || c.IsDeleted {
		next = []string{}
	}
	return caseView{Case: c, NextStatuses: next}
}
