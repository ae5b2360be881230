package catalog

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dalemusser/visadesk/internal/app/store/audit"
	catalogstore "github.com/dalemusser/visadesk/internal/app/store/catalog"
	"github.com/dalemusser/visadesk/internal/app/system/inputval"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/normalize"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/app/system/timeouts"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// writeCatalogError maps catalog store errors; it reports false for
// anything unexpected.
func writeCatalogError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, catalogstore.ErrNotFound):
		jsonutil.NotFound(w, err.Error())
	case errors.Is(err, catalogstore.ErrDuplicateSlug):
		jsonutil.Conflict(w, err.Error())
	default:
		return false
	}
	return true
}

func (h *Handler) catalogAudit(r *http.Request, brandID primitive.ObjectID, kind, id, action string) {
	h.audit.Admin(r, &brandID, actor(r), nil, audit.EventCatalogUpdated, map[string]string{kind: id, "action": action})
}

/*─────────────────────────────────────────────────────────────────────────────*
| Service types                                                               |
*─────────────────────────────────────────────────────────────────────────────*/

type typeInput struct {
	Name              string   `json:"name" validate:"required,max=100" label:"Name"`
	Slug              string   `json:"slug" validate:"required,slug" label:"Slug"`
	Kind              string   `json:"kind" validate:"required,oneof=visa passport" label:"Kind"`
	Description       string   `json:"description" validate:"max=2000" label:"Description"`
	RequiredDocuments []string `json:"required_documents"`
	IsActive          *bool    `json:"is_active"`
	SortOrder         int      `json:"sort_order"`
}

func cleanDocs(docs []string) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

func (h *Handler) listTypes(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	active, ok := boolParam(r, "active")
	if !ok {
		jsonutil.BadRequest(w, "invalid active")
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "service type list")
	defer cancel()

	list, err := h.catalog.ListTypes(ctx, brand.ID, active != nil && *active)
	if err != nil {
		h.errLog.Internal(w, r, "failed to list service types", err)
		return
	}
	jsonutil.OK(w, map[string]any{"service_types": list})
}

func (h *Handler) createType(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	var in typeInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	in.Name = normalize.Name(in.Name)
	in.Slug = normalize.Slug(in.Slug)
	in.Kind = strings.ToLower(strings.TrimSpace(in.Kind))
	if res := inputval.Validate(in); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "service type create")
	defer cancel()
	st, err := h.catalog.CreateType(ctx, models.ServiceType{
		BrandID:           brand.ID,
		Name:              in.Name,
		Slug:              in.Slug,
		Kind:              in.Kind,
		Description:       strings.TrimSpace(in.Description),
		RequiredDocuments: cleanDocs(in.RequiredDocuments),
		IsActive:          in.IsActive == nil || *in.IsActive,
		SortOrder:         in.SortOrder,
	})
	if err != nil {
		if !writeCatalogError(w, err) {
			h.errLog.Internal(w, r, "failed to create service type", err)
		}
		return
	}
	h.catalogAudit(r, brand.ID, "service_type", st.ID.Hex(), "create")
	jsonutil.Created(w, st)
}

type typePatch struct {
	Name              *string   `json:"name"`
	Slug              *string   `json:"slug"`
	Kind              *string   `json:"kind"`
	Description       *string   `json:"description"`
	RequiredDocuments *[]string `json:"required_documents"`
	IsActive          *bool     `json:"is_active"`
	SortOrder         *int      `json:"sort_order"`
}

func (p *typePatch) validate() map[string]string {
	errs := map[string]string{}
	if p.Name != nil {
		n := normalize.Name(*p.Name)
		if n == "" || len(n) > 100 {
			errs["name"] = "Name is required and must be at most 100 characters."
		}
		p.Name = &n
	}
	if p.Slug != nil {
		s := normalize.Slug(*p.Slug)
		if !inputval.IsSlug(s) {
			errs["slug"] = "Slug may only contain lowercase letters, digits and dashes."
		}
		p.Slug = &s
	}
	if p.Kind != nil {
		k := strings.ToLower(strings.TrimSpace(*p.Kind))
		if !models.IsValidKind(k) {
			errs["kind"] = "Kind must be one of: visa, passport."
		}
		p.Kind = &k
	}
	if p.Description != nil {
		d := strings.TrimSpace(*p.Description)
		p.Description = &d
	}
	if p.RequiredDocuments != nil {
		docs := cleanDocs(*p.RequiredDocuments)
		p.RequiredDocuments = &docs
	}
	return errs
}

func (h *Handler) updateType(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	id, ok := jsonutil.ObjectID(w, "service type id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var in typePatch
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if errs := in.validate(); len(errs) > 0 {
		jsonutil.ValidationError(w, errs)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "service type update")
	defer cancel()
	st, err := h.catalog.UpdateType(ctx, brand.ID, id, catalogstore.TypeUpdate{
		Name:              in.Name,
		Slug:              in.Slug,
		Kind:              in.Kind,
		Description:       in.Description,
		RequiredDocuments: in.RequiredDocuments,
		IsActive:          in.IsActive,
		SortOrder:         in.SortOrder,
	})
	if err != nil {
		if !writeCatalogError(w, err) {
			h.errLog.Internal(w, r, "failed to update service type", err)
		}
		return
	}
	h.catalogAudit(r, brand.ID, "service_type", id.Hex(), "update")
	jsonutil.OK(w, st)
}

func (h *Handler) deleteType(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	id, ok := jsonutil.ObjectID(w, "service type id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "service type delete")
	defer cancel()

	res, err := h.catalog.DeleteType(ctx, brand.ID, id)
	if err != nil {
		if !writeCatalogError(w, err) {
			h.errLog.Internal(w, r, "failed to delete service type", err)
		}
		return
	}
	h.catalogAudit(r, brand.ID, "service_type", id.Hex(), string(res))
	jsonutil.OK(w, map[string]string{"result": string(res)})
}

/*─────────────────────────────────────────────────────────────────────────────*
| Service levels                                                              |
*─────────────────────────────────────────────────────────────────────────────*/

type levelInput struct {
	Name           string `json:"name" validate:"required,max=100" label:"Name"`
	Slug           string `json:"slug" validate:"required,slug" label:"Slug"`
	ProcessingDays int    `json:"processing_days" validate:"min=1" label:"Processing days"`
	IsActive       *bool  `json:"is_active"`
	SortOrder      int    `json:"sort_order"`
}

func (h *Handler) listLevels(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	active, ok := boolParam(r, "active")
	if !ok {
		jsonutil.BadRequest(w, "invalid active")
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "service level list")
	defer cancel()

	list, err := h.catalog.ListLevels(ctx, brand.ID, active != nil && *active)
	if err != nil {
		h.errLog.Internal(w, r, "failed to list service levels", err)
		return
	}
	jsonutil.OK(w, map[string]any{"service_levels": list})
}

func (h *Handler) createLevel(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	var in levelInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	in.Name = normalize.Name(in.Name)
	in.Slug = normalize.Slug(in.Slug)
	res := inputval.Validate(in)
	if in.ProcessingDays < 1 {
		res.Add("processing_days", "Processing days must be at least 1.")
	}
	if res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "service level create")
	defer cancel()
	lvl, err := h.catalog.CreateLevel(ctx, models.ServiceLevel{
		BrandID:        brand.ID,
		Name:           in.Name,
		Slug:           in.Slug,
		ProcessingDays: in.ProcessingDays,
		IsActive:       in.IsActive == nil || *in.IsActive,
		SortOrder:      in.SortOrder,
	})
	if err != nil {
		if !writeCatalogError(w, err) {
			h.errLog.Internal(w, r, "failed to create service level", err)
		}
		return
	}
	h.catalogAudit(r, brand.ID, "service_level", lvl.ID.Hex(), "create")
	jsonutil.Created(w, lvl)
}

type levelPatch struct {
	Name           *string `json:"name"`
	Slug           *string `json:"slug"`
	ProcessingDays *int    `json:"processing_days"`
	IsActive       *bool   `json:"is_active"`
	SortOrder      *int    `json:"sort_order"`
}

func (h *Handler) updateLevel(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	id, ok := jsonutil.ObjectID(w, "service level id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var in levelPatch
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	errs := map[string]string{}
	if in.Name != nil {
		n := normalize.Name(*in.Name)
		if n == "" || len(n) > 100 {
			errs["name"] = "Name is required and must be at most 100 characters."
		}
		in.Name = &n
	}
	if in.Slug != nil {
		s := normalize.Slug(*in.Slug)
		if !inputval.IsSlug(s) {
			errs["slug"] = "Slug may only contain lowercase letters, digits and dashes."
		}
		in.Slug = &s
	}
	if in.ProcessingDays != nil && *in.ProcessingDays < 1 {
		errs["processing_days"] = "Processing days must be at least 1."
	}
	if len(errs) > 0 {
		jsonutil.ValidationError(w, errs)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "service level update")
	defer cancel()
	lvl, err := h.catalog.UpdateLevel(ctx, brand.ID, id, catalogstore.LevelUpdate{
		Name:           in.Name,
		Slug:           in.Slug,
		ProcessingDays: in.ProcessingDays,
		IsActive:       in.IsActive,
		SortOrder:      in.SortOrder,
	})
	if err != nil {
		if !writeCatalogError(w, err) {
			h.errLog.Internal(w, r, "failed to update service level", err)
		}
		return
	}
	h.catalogAudit(r, brand.ID, "service_level", id.Hex(), "update")
	jsonutil.OK(w, lvl)
}

func (h *Handler) deleteLevel(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	id, ok := jsonutil.ObjectID(w, "service level id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "service level delete")
	defer cancel()

	res, err := h.catalog.DeleteLevel(ctx, brand.ID, id)
	if err != nil {
		if !writeCatalogError(w, err) {
			h.errLog.Internal(w, r, "failed to delete service level", err)
		}
		return
	}
	h.catalogAudit(r, brand.ID, "service_level", id.Hex(), string(res))
	jsonutil.OK(w, map[string]string{"result": string(res)})
}
