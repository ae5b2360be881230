package loa

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/dalemusser/visadesk/internal/app/store/audit"
	loastore "github.com/dalemusser/visadesk/internal/app/store/loas"
	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/app/system/timeouts"
	"github.com/dalemusser/visadesk/internal/app/system/uploads"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	var caseID *primitive.ObjectID
	if raw := query.Get(r, "case_id"); raw != "" {
		id, ok := jsonutil.ObjectID(w, "case_id", raw)
		if !ok {
			return
		}
		caseID = &id
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "loa list")
	defer cancel()

	list, err := h.loas.List(ctx, brand.ID, caseID)
	if err != nil {
		h.errLog.Internal(w, r, "failed to list LOAs", err)
		return
	}
	jsonutil.OK(w, map[string]any{"loas": list})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	id, ok := jsonutil.ObjectID(w, "LOA id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "loa get")
	defer cancel()

	l, err := h.loas.Get(ctx, brand.ID, id)
	if err != nil {
		if !writeError(w, err) {
			h.errLog.Internal(w, r, "failed to load LOA", err)
		}
		return
	}
	jsonutil.OK(w, l)
}

func cleanName(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && utf8.RuneCountInString(s) <= maxNameLength
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	if err := uploads.ParseForm(w, r, h.maxBytes); err != nil {
		if !uploads.WriteError(w, err) {
			jsonutil.BadRequest(w, err.Error())
		}
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

	name := r.FormValue("name")
	if strings.TrimSpace(name) == "" {
		name = strings.TrimSuffix(header.Filename, ".pdf")
	}
	name, ok := cleanName(name)
	if !ok {
		jsonutil.ValidationError(w, map[string]string{"name": "Name is required and must be at most 200 characters."})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.logger, "loa create")
	defer cancel()

	c, err := h.caseRef(ctx, brand.ID, r.FormValue("case_id"))
	if err != nil {
		if !writeError(w, err) {
			h.errLog.Internal(w, r, "failed to load case", err)
		}
		return
	}

	stored, err := uploads.Save(ctx, h.files, uploads.Prefix(brand.ID, uploads.AreaLOA), file, header, uploads.PDFOnly(h.maxBytes))
	if err != nil {
		if !uploads.WriteError(w, err) {
			h.errLog.Internal(w, r, "failed to store LOA", err)
		}
		return
	}

	rec := models.LOA{
		BrandID:     brand.ID,
		Name:        name,
		Description: strings.TrimSpace(r.FormValue("description")),
		StoragePath: stored.Path,
		URL:         stored.URL,
		ContentType: stored.ContentType,
		Size:        stored.Size,
		UploadedBy:  su.UserID(),
	}
	if c != nil {
		rec.CaseID = &c.ID
	}
	l, err := h.loas.Create(ctx, rec)
	if err != nil {
		h.discard(ctx, stored.Path)
		h.errLog.Internal(w, r, "failed to save LOA", err)
		return
	}

	if c != nil {
		h.notifier.LOAUploaded(ctx, *c, l, su.UserID())
	}
	uid := su.UserID()
	h.audit.Admin(r, &brand.ID, &uid, nil, audit.EventLOAUploaded, map[string]string{"loa_id": l.ID.Hex(), "name": l.Name})
	jsonutil.Created(w, l)
}

type metaPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	CaseID      *string `json:"case_id"` // "" detaches
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	id, ok := jsonutil.ObjectID(w, "LOA id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var in metaPatch
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	var upd loastore.MetaUpdate
	if in.Name != nil {
		name, ok := cleanName(*in.Name)
		if !ok {
			jsonutil.ValidationError(w, map[string]string{"name": "Name is required and must be at most 200 characters."})
			return
		}
		upd.Name = &name
	}
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		upd.Description = &d
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "loa update")
	defer cancel()

	var attached *models.Case
	if in.CaseID != nil {
		c, err := h.caseRef(ctx, brand.ID, *in.CaseID)
		if err != nil {
			if !writeError(w, err) {
				h.errLog.Internal(w, r, "failed to load case", err)
			}
			return
		}
		var ref *primitive.ObjectID
		if c != nil {
			ref = &c.ID
		}
		upd.CaseID = &ref
		attached = c
	}

	before, err := h.loas.Get(ctx, brand.ID, id)
	if err != nil {
		if !writeError(w, err) {
			h.errLog.Internal(w, r, "failed to load LOA", err)
		}
		return
	}
	l, err := h.loas.UpdateMeta(ctx, brand.ID, id, upd)
	if err != nil {
		if !writeError(w, err) {
			h.errLog.Internal(w, r, "failed to update LOA", err)
		}
		return
	}
	if attached != nil && (before.CaseID == nil || *before.CaseID != attached.ID) {
		su, _ := auth.CurrentUser(r)
		h.notifier.LOAUploaded(ctx, *attached, l, su.UserID())
	}
	jsonutil.OK(w, l)
}

func (h *Handler) replaceFile(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	id, ok := jsonutil.ObjectID(w, "LOA id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	if err := uploads.ParseForm(w, r, h.maxBytes); err != nil {
		if !uploads.WriteError(w, err) {
			jsonutil.BadRequest(w, err.Error())
		}
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

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.logger, "loa replace")
	defer cancel()

	if _, err := h.loas.Get(ctx, brand.ID, id); err != nil {
		if !writeError(w, err) {
			h.errLog.Internal(w, r, "failed to load LOA", err)
		}
		return
	}
	stored, err := uploads.Save(ctx, h.files, uploads.Prefix(brand.ID, uploads.AreaLOA), file, header, uploads.PDFOnly(h.maxBytes))
	if err != nil {
		if !uploads.WriteError(w, err) {
			h.errLog.Internal(w, r, "failed to store LOA", err)
		}
		return
	}
	old, err := h.loas.ReplaceFile(ctx, brand.ID, id, loastore.FileUpdate{
		StoragePath: stored.Path,
		URL:         stored.URL,
		ContentType: stored.ContentType,
		Size:        stored.Size,
		UploadedBy:  su.UserID(),
	})
	if err != nil {
		h.discard(ctx, stored.Path)
		if !writeError(w, err) {
			h.errLog.Internal(w, r, "failed to replace LOA file", err)
		}
		return
	}
	h.discard(ctx, old.StoragePath)

	l, err := h.loas.Get(ctx, brand.ID, id)
	if err != nil {
		h.errLog.Internal(w, r, "failed to reload LOA", err)
		return
	}
	if l.CaseID != nil {
		if c, err := h.cases.Get(ctx, brand.ID, *l.CaseID); err == nil && !c.IsDeleted {
			h.notifier.LOAUploaded(ctx, c, l, su.UserID())
		}
	}
	uid := su.UserID()
	h.audit.Admin(r, &brand.ID, &uid, nil, audit.EventLOAUploaded, map[string]string{"loa_id": l.ID.Hex(), "replaced": "true"})
	jsonutil.OK(w, l)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	id, ok := jsonutil.ObjectID(w, "LOA id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "loa delete")
	defer cancel()

	l, err := h.loas.Delete(ctx, brand.ID, id)
	if err != nil {
		if !writeError(w, err) {
			h.errLog.Internal(w, r, "failed to delete LOA", err)
		}
		return
	}
	h.discard(ctx, l.StoragePath)

	var actor *primitive.ObjectID
	if su, ok := auth.CurrentUser(r); ok {
		uid := su.UserID()
		actor = &uid
	}
	h.audit.Admin(r, &brand.ID, actor, nil, audit.EventLOADeleted, map[string]string{"loa_id": id.Hex(), "name": l.Name})
	jsonutil.NoContent(w)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	id, ok := jsonutil.ObjectID(w, "LOA id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "loa download")
	defer cancel()

	l, err := h.loas.Get(ctx, brand.ID, id)
	if err != nil {
		if !writeError(w, err) {
			h.errLog.Internal(w, r, "failed to load LOA", err)
		}
		return
	}
	if err := uploads.Download(ctx, w, r, h.files, l.StoragePath, filename(l), h.downloadTTL); err != nil {
		h.errLog.Internal(w, r, "failed to serve LOA", err)
	}
}
