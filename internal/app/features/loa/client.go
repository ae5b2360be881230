package loa

import (
	"net/http"

	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/app/system/timeouts"
	"github.com/dalemusser/visadesk/internal/app/system/uploads"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// ownCase loads the caller's case named by the {id} parameter.
func (h *Handler) ownCase(w http.ResponseWriter, r *http.Request) (models.Case, bool) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	id, ok := jsonutil.ObjectID(w, "application id", chi.URLParam(r, "id"))
	if !ok {
		return models.Case{}, false
	}
	c, err := h.cases.GetForClient(r.Context(), brand.ID, su.UserID(), id)
	if err != nil {
		if !writeError(w, err) {
			h.errLog.Internal(w, r, "failed to load application", err)
		}
		return models.Case{}, false
	}
	return c, true
}

func (h *Handler) clientList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "client loa list")
	defer cancel()
	r = r.WithContext(ctx)

	c, ok := h.ownCase(w, r)
	if !ok {
		return
	}
	list, err := h.loas.List(ctx, c.BrandID, &c.ID)
	if err != nil {
		h.errLog.Internal(w, r, "failed to list LOAs", err)
		return
	}
	jsonutil.OK(w, map[string]any{"loas": list})
}

func (h *Handler) clientDownload(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "client loa download")
	defer cancel()
	r = r.WithContext(ctx)

	c, ok := h.ownCase(w, r)
	if !ok {
		return
	}
	loaID, ok := jsonutil.ObjectID(w, "LOA id", chi.URLParam(r, "loaID"))
	if !ok {
		return
	}
	l, err := h.loas.Get(ctx, c.BrandID, loaID)
	if err != nil {
		if !writeError(w, err) {
			h.errLog.Internal(w, r, "failed to load LOA", err)
		}
		return
	}
	if l.CaseID == nil || *l.CaseID != c.ID {
		jsonutil.NotFound(w, "LOA not found")
		return
	}
	if err := uploads.Download(ctx, w, r, h.files, l.StoragePath, filename(l), h.downloadTTL); err != nil {
		h.errLog.Internal(w, r, "failed to serve LOA", err)
	}
}
