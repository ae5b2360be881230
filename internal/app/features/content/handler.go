// Package content serves the brand's CMS pages: a public read endpoint
// and the admin editor (replace, upload to a path, list).
package content

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	errorsfeature "github.com/dalemusser/visadesk/internal/app/features/errors"
	"github.com/dalemusser/visadesk/internal/app/store/audit"
	contentstore "github.com/dalemusser/visadesk/internal/app/store/content"
	"github.com/dalemusser/visadesk/internal/app/system/auditlog"
	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/cmsdoc"
	"github.com/dalemusser/visadesk/internal/app/system/htmlsanitize"
	"github.com/dalemusser/visadesk/internal/app/system/inputval"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/metrics"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/app/system/timeouts"
	"github.com/dalemusser/visadesk/internal/app/system/uploads"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Handler struct {
	store    *contentstore.Store
	files    uploads.Store
	maxBytes int64
	metrics  *metrics.Metrics
	errLog   *errorsfeature.ErrorLogger
	audit    *auditlog.Logger
	logger   *zap.Logger
}

// NewHandler creates a content Handler. m may be nil.
func NewHandler(db *mongo.Database, files uploads.Store, maxBytes int64, m *metrics.Metrics, errLog *errorsfeature.ErrorLogger, auditLogger *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		store:    contentstore.New(db),
		files:    files,
		maxBytes: maxBytes,
		metrics:  m,
		errLog:   errLog,
		audit:    auditLogger,
		logger:   logger,
	}
}

// PublicRoutes is mounted at /common/content.
func PublicRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.publicGet)
	r.Get("/{page}", h.publicGet)
	return r
}

// AdminRoutes is mounted at /admin/content.
func AdminRoutes(h *Handler, sm *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireManager)
	r.Get("/", h.list)
	r.Get("/{page}", h.adminGet)
	r.Put("/{page}", h.put)
	r.Post("/{page}/upload", h.upload)
	return r
}

// pageParam returns the page slug, defaulting to the homepage.
func pageParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	page := chi.URLParam(r, "page")
	if page == "" {
		return models.DefaultContentPage, true
	}
	if !inputval.IsSlug(page) {
		jsonutil.BadRequest(w, "invalid page")
		return "", false
	}
	return page, true
}

type pageResponse struct {
	Page      string         `json:"page"`
	Data      map[string]any `json:"data"`
	Version   int64          `json:"version"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`
}

func respond(c models.Content, page string) pageResponse {
	out := pageResponse{Page: page, Data: c.Data, Version: c.Version}
	if out.Data == nil {
		out.Data = map[string]any{}
	}
	if !c.UpdatedAt.IsZero() {
		t := c.UpdatedAt
		out.UpdatedAt = &t
	}
	return out
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "content get")
	defer cancel()

	c, err := h.store.Get(ctx, brand.ID, page)
	if err != nil && !errors.Is(err, contentstore.ErrNotFound) {
		h.errLog.Internal(w, r, "failed to load content", err)
		return
	}
	// A page nobody has edited yet is empty, not missing.
	jsonutil.OK(w, respond(c, page))
}

func (h *Handler) publicGet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=60")
	h.load(w, r)
}

func (h *Handler) adminGet(w http.ResponseWriter, r *http.Request) {
	h.load(w, r)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "content list")
	defer cancel()

	pages, err := h.store.ListPages(ctx, brand.ID)
	if err != nil {
		h.errLog.Internal(w, r, "failed to list content pages", err)
		return
	}
	jsonutil.OK(w, map[string]any{"pages": pages})
}

type putInput struct {
	Data    map[string]any `json:"data"`
	Version *int64         `json:"version"`
}

// put replaces a page. Managed objects the new document no longer
// references are deleted from storage.
func (h *Handler) put(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	var in putInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if in.Data == nil {
		jsonutil.ValidationError(w, map[string]string{"data": "Data is required."})
		return
	}
	data := cmsdoc.NormalizeDoc(in.Data)
	cmsdoc.SanitizeHTML(data, htmlsanitize.Rich)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "content put")
	defer cancel()

	uid := su.UserID()
	res, err := h.store.Put(ctx, brand.ID, page, data, in.Version, &uid)
	if errors.Is(err, contentstore.ErrVersionConflict) {
		jsonutil.Conflict(w, err.Error())
		return
	}
	if err != nil {
		h.errLog.Internal(w, r, "failed to save content", err)
		return
	}

	managed := uploads.Managed(h.files, uploads.Prefix(brand.ID, uploads.AreaContent))
	deleted := h.deleteObjects(ctx, brand.ID, cmsdoc.Orphans(res.Old.Data, res.New.Data, managed))

	h.audit.Admin(r, &brand.ID, &uid, nil, audit.EventContentUpdated, map[string]string{
		"page":    page,
		"version": itoa(res.New.Version),
		"orphans": itoa(int64(deleted)),
	})
	jsonutil.OK(w, respond(res.New, page))
}

// upload stores a file and writes its URL at the dotted path given in
// the "path" form field.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	if err := uploads.ParseForm(w, r, h.maxBytes); err != nil {
		if !uploads.WriteError(w, err) {
			jsonutil.BadRequest(w, err.Error())
		}
		return
	}
	path := r.FormValue("path")
	if _, err := cmsdoc.ParsePath(path); err != nil {
		jsonutil.ValidationError(w, map[string]string{"path": err.Error()})
		return
	}
	file, header, err := uploads.FormFile(r, "file")
	if err != nil {
		if !uploads.WriteError(w, err) {
			jsonutil.BadRequest(w, err.Error())
		}
		return
	}
	defer file.Close()

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.logger, "content upload")
	defer cancel()

	prefix := uploads.Prefix(brand.ID, uploads.AreaContent)
	stored, err := uploads.Save(ctx, h.files, prefix, file, header, uploads.ContentMedia(h.maxBytes))
	if err != nil {
		if uploads.WriteError(w, err) {
			return
		}
		h.errLog.Internal(w, r, "failed to store upload", err)
		return
	}

	uid := su.UserID()
	res, err := h.store.SetPath(ctx, brand.ID, page, path, stored.URL, &uid)
	if err != nil {
		h.deleteObjects(ctx, brand.ID, []string{stored.URL})
		switch {
		case errors.Is(err, cmsdoc.ErrBadPath), errors.Is(err, cmsdoc.ErrPathBlocked):
			jsonutil.ValidationError(w, map[string]string{"path": err.Error()})
		case errors.Is(err, contentstore.ErrVersionConflict):
			jsonutil.Conflict(w, err.Error())
		default:
			h.errLog.Internal(w, r, "failed to update content", err)
		}
		return
	}

	// The replaced value goes only if nothing else on the page uses it.
	if old, ok := cmsdoc.Get(res.Old.Data, path); ok {
		if s, isStr := old.(string); isStr && s != stored.URL && uploads.Managed(h.files, prefix)(s) && !cmsdoc.Contains(res.New.Data, s) {
			h.deleteObjects(ctx, brand.ID, []string{s})
		}
	}

	h.audit.Admin(r, &brand.ID, &uid, nil, audit.EventContentUpdated, map[string]string{
		"page":    page,
		"path":    path,
		"version": itoa(res.New.Version),
	})
	jsonutil.Created(w, map[string]any{
		"url":          stored.URL,
		"path":         path,
		"version":      res.New.Version,
		"content_type": stored.ContentType,
		"size":         stored.Size,
	})
}

// deleteObjects removes managed URLs from storage and returns how many
// went. Failures are logged; the page write already succeeded.
func (h *Handler) deleteObjects(ctx context.Context, brandID primitive.ObjectID, urls []string) int {
	prefix := uploads.Prefix(brandID, uploads.AreaContent)
	ctx = context.WithoutCancel(ctx)
	n := 0
	for _, u := range urls {
		p, ok := uploads.PathForURL(h.files, prefix, u)
		if !ok {
			continue
		}
		if err := h.files.Delete(ctx, p); err != nil {
			h.logger.Warn("failed to delete orphaned object",
				zap.String("brand_id", brandID.Hex()),
				zap.String("path", p),
				zap.Error(err))
			continue
		}
		n++
	}
	h.metrics.OrphansDeleted(n)
	return n
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
