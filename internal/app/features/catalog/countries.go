package catalog

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dalemusser/visadesk/internal/app/store/audit"
	countrystore "github.com/dalemusser/visadesk/internal/app/store/countries"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/normalize"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/app/system/timeouts"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
)

func (h *Handler) listCountries(w http.ResponseWriter, r *http.Request) {
	active, ok := boolParam(r, "active")
	if !ok {
		jsonutil.BadRequest(w, "invalid active")
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "country list")
	defer cancel()

	list, err := h.countries.List(ctx, active != nil && *active)
	if err != nil {
		h.errLog.Internal(w, r, "failed to list countries", err)
		return
	}
	jsonutil.OK(w, map[string]any{"countries": list})
}

type countryInput struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	IsActive *bool  `json:"is_active"`
}

func (h *Handler) createCountry(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	var in countryInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	code := normalize.CountryCode(in.Code)
	name := strings.TrimSpace(in.Name)
	errs := map[string]string{}
	if code == "" {
		errs["code"] = "Code must be a two-letter country code."
	}
	if name == "" || len(name) > 100 {
		errs["name"] = "Name is required and must be at most 100 characters."
	}
	if len(errs) > 0 {
		jsonutil.ValidationError(w, errs)
		return
	}
	active := in.IsActive == nil || *in.IsActive

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "country create")
	defer cancel()
	c, err := h.countries.Create(ctx, code, name, active)
	if errors.Is(err, countrystore.ErrDuplicate) {
		jsonutil.Conflict(w, err.Error())
		return
	}
	if err != nil {
		h.errLog.Internal(w, r, "failed to create country", err)
		return
	}
	h.audit.Admin(r, &brand.ID, actor(r), nil, audit.EventCatalogUpdated, map[string]string{"country": code, "action": "create"})
	jsonutil.Created(w, c)
}

type countryPatch struct {
	Name     *string `json:"name"`
	IsActive *bool   `json:"is_active"`
}

func (h *Handler) updateCountry(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	code := normalize.CountryCode(chi.URLParam(r, "code"))
	if code == "" {
		jsonutil.BadRequest(w, "invalid country code")
		return
	}
	var in countryPatch
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" || len(name) > 100 {
			jsonutil.ValidationError(w, map[string]string{"name": "Name is required and must be at most 100 characters."})
			return
		}
		in.Name = &name
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "country update")
	defer cancel()
	c, err := h.countries.Update(ctx, code, in.Name, in.IsActive)
	if errors.Is(err, countrystore.ErrNotFound) {
		jsonutil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		h.errLog.Internal(w, r, "failed to update country", err)
		return
	}
	h.audit.Admin(r, &brand.ID, actor(r), nil, audit.EventCatalogUpdated, map[string]string{"country": code, "action": "update"})
	jsonutil.OK(w, c)
}

// accessRow is one country with the brand's flags; countries without a
// stored row are closed on both sides.
type accessRow struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	IsActive     bool   `json:"is_active"`
	CanApplyFrom bool   `json:"can_apply_from"`
	CanApplyTo   bool   `json:"can_apply_to"`
}

func (h *Handler) getAccess(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "country access get")
	defer cancel()

	list, err := h.countries.List(ctx, false)
	if err != nil {
		h.errLog.Internal(w, r, "failed to list countries", err)
		return
	}
	access, err := h.countries.Access(ctx, brand.ID)
	if err != nil {
		h.errLog.Internal(w, r, "failed to load country access", err)
		return
	}
	rows := make([]accessRow, 0, len(list))
	for _, c := range list {
		a := access[c.Code]
		rows = append(rows, accessRow{
			Code:         c.Code,
			Name:         c.Name,
			IsActive:     c.IsActive,
			CanApplyFrom: a.CanApplyFrom,
			CanApplyTo:   a.CanApplyTo,
		})
	}
	jsonutil.OK(w, map[string]any{"access": rows})
}

type accessInput struct {
	Code         string `json:"code"`
	CanApplyFrom bool   `json:"can_apply_from"`
	CanApplyTo   bool   `json:"can_apply_to"`
}

func (h *Handler) putAccess(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	var in []accessInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	rows := make([]models.CountryAccess, 0, len(in))
	seen := map[string]bool{}
	for _, a := range in {
		code := normalize.CountryCode(a.Code)
		if code == "" {
			jsonutil.ValidationError(w, map[string]string{"code": "Invalid country code " + a.Code + "."})
			return
		}
		if seen[code] {
			jsonutil.ValidationError(w, map[string]string{"code": "Country " + code + " is listed more than once."})
			return
		}
		seen[code] = true
		rows = append(rows, models.CountryAccess{Code: code, CanApplyFrom: a.CanApplyFrom, CanApplyTo: a.CanApplyTo})
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.logger, "country access put")
	defer cancel()
	err := h.countries.SetAccess(ctx, brand.ID, rows)
	var unknown *countrystore.UnknownCodesError
	if errors.As(err, &unknown) {
		jsonutil.ValidationError(w, map[string]string{"code": err.Error()})
		return
	}
	if err != nil {
		h.errLog.Internal(w, r, "failed to save country access", err)
		return
	}
	h.audit.Admin(r, &brand.ID, actor(r), nil, audit.EventCountryAccessSet, map[string]string{"count": itoa(len(rows))})
	h.getAccess(w, r)
}

// publicCountries lists countries a client may pick on one side of the
// wizard.
func (h *Handler) publicCountries(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	side := query.Get(r, "side")
	if side != models.SideFrom && side != models.SideTo {
		jsonutil.BadRequest(w, "side must be from or to")
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "public countries")
	defer cancel()

	list, err := h.countries.Allowed(ctx, brand.ID, side)
	if err != nil {
		h.errLog.Internal(w, r, "failed to list allowed countries", err)
		return
	}
	type country struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}
	out := make([]country, 0, len(list))
	for _, c := range list {
		out = append(out, country{Code: c.Code, Name: c.Name})
	}
	jsonutil.OK(w, map[string]any{"countries": out})
}
