// Package loa manages letters of authorization: PDFs staff upload for a
// brand, optionally attached to a case so the client can download them.
package loa

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	errorsfeature "github.com/dalemusser/visadesk/internal/app/features/errors"
	casestore "github.com/dalemusser/visadesk/internal/app/store/cases"
	loastore "github.com/dalemusser/visadesk/internal/app/store/loas"
	"github.com/dalemusser/visadesk/internal/app/system/auditlog"
	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/casenotify"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/uploads"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const maxNameLength = 200

type Handler struct {
	loas     *loastore.Store
	cases    *casestore.Store
	files    uploads.Store
	maxBytes int64
	notifier *casenotify.Notifier
	errLog   *errorsfeature.ErrorLogger
	audit    *auditlog.Logger
	logger   *zap.Logger

	downloadTTL time.Duration
}

func NewHandler(db *mongo.Database, files uploads.Store, maxBytes int64, notifier *casenotify.Notifier, errLog *errorsfeature.ErrorLogger, auditLogger *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		loas:     loastore.New(db),
		cases:    casestore.New(db),
		files:    files,
		maxBytes: maxBytes,
		notifier: notifier,
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

// AdminRoutes is mounted at /admin/loas.
func AdminRoutes(h *Handler, sm *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireStaff)
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Put("/{id}/file", h.replaceFile)
	r.Delete("/{id}", h.delete)
	r.Get("/{id}/download", h.download)
	return r
}

// ClientRoutes is mounted at /user/applications/{id}/loas.
func ClientRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.clientList)
	r.Get("/{loaID}/download", h.clientDownload)
	return r
}

func writeError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, loastore.ErrNotFound), errors.Is(err, casestore.ErrNotFound):
		jsonutil.NotFound(w, err.Error())
	default:
		return uploads.WriteError(w, err)
	}
	return true
}

// discard removes a stored object off the request path.
func (h *Handler) discard(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := h.files.Delete(context.WithoutCancel(ctx), path); err != nil {
		h.logger.Warn("failed to delete stored LOA", zap.String("path", path), zap.Error(err))
	}
}

// filename is the download name: the LOA name with a .pdf extension.
func filename(l models.LOA) string {
	name := strings.TrimSpace(l.Name)
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return name
}

// caseRef parses an optional case id and checks it belongs to the brand.
func (h *Handler) caseRef(ctx context.Context, brandID primitive.ObjectID, raw string) (*models.Case, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return nil, casestore.ErrNotFound
	}
	c, err := h.cases.Get(ctx, brandID, id)
	if err != nil {
		return nil, err
	}
	if c.IsDeleted {
		return nil, casestore.ErrNotFound
	}
	return &c, nil
}
