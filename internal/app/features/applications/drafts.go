package applications

import (
	"context"
	"net/http"
	"time"

	casestore "github.com/dalemusser/visadesk/internal/app/store/cases"
	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/normalize"
	"github.com/dalemusser/visadesk/internal/app/system/pricing"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/app/system/timeouts"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// choice names what the client wants to buy: a pair by id or by codes,
// and a service type and level.
type choice struct {
	PairID         *primitive.ObjectID `json:"pair_id"`
	From           string              `json:"from"`
	To             string              `json:"to"`
	ServiceTypeID  *primitive.ObjectID `json:"service_type_id"`
	ServiceLevelID *primitive.ObjectID `json:"service_level_id"`
}

func (c choice) touched() bool {
	return c.PairID != nil || c.From != "" || c.To != "" || c.ServiceTypeID != nil || c.ServiceLevelID != nil
}

// errForbiddenCountry is returned when brand access rules exclude a side.
type errForbiddenCountry struct{ code, side string }

func (e errForbiddenCountry) Error() string {
	return "applications " + e.side + " " + e.code + " are not accepted"
}

// resolve prices the choice, filling gaps from the current draft, and
// checks the brand accepts both countries.
func (h *Handler) resolve(ctx context.Context, brand *tenant.Info, in choice, current *models.Case) (pricing.Result, map[string]string, error) {
	req := pricing.Request{PairID: in.PairID, From: normalize.CountryCode(in.From), To: normalize.CountryCode(in.To)}
	errs := map[string]string{}
	if in.PairID == nil && in.From == "" && in.To == "" && current != nil {
		id := current.PairID
		req.PairID = &id
	}
	if req.PairID == nil && (req.From == "" || req.To == "") {
		errs["pair_id"] = "Choose a country pair by pair_id or from and to."
	}
	switch {
	case in.ServiceTypeID != nil:
		req.TypeID = *in.ServiceTypeID
	case current != nil:
		req.TypeID = current.ServiceTypeID
	default:
		errs["service_type_id"] = "Service type is required."
	}
	switch {
	case in.ServiceLevelID != nil:
		req.LevelID = *in.ServiceLevelID
	case current != nil:
		req.LevelID = current.ServiceLevelID
	default:
		errs["service_level_id"] = "Service level is required."
	}
	if len(errs) > 0 {
		return pricing.Result{}, errs, nil
	}

	res, err := h.pricing.Quote(ctx, brand.ID, brand.Currency, req)
	if err != nil {
		return pricing.Result{}, nil, err
	}
	for _, side := range []struct{ code, side string }{
		{res.Pair.FromCode, models.SideFrom},
		{res.Pair.ToCode, models.SideTo},
	} {
		ok, err := h.countries.IsAllowed(ctx, brand.ID, side.code, side.side)
		if err != nil {
			return pricing.Result{}, nil, err
		}
		if !ok {
			return pricing.Result{}, nil, errForbiddenCountry{side.code, side.side}
		}
	}
	return res, nil, nil
}

// writeResolveError answers the client errors resolve can return.
func writeResolveError(w http.ResponseWriter, err error) bool {
	if fc, ok := err.(errForbiddenCountry); ok {
		jsonutil.BadRequest(w, fc.Error())
		return true
	}
	return writeChoiceError(w, err, http.StatusBadRequest)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "application list")
	defer cancel()

	list, err := h.cases.ListForClient(ctx, brand.ID, su.UserID())
	if err != nil {
		h.errLog.Internal(w, r, "failed to list applications", err)
		return
	}
	jsonutil.OK(w, map[string]any{"applications": list})
}

// own loads the caller's application named by {id}.
func (h *Handler) own(ctx context.Context, w http.ResponseWriter, r *http.Request) (models.Case, bool) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	id, ok := jsonutil.ObjectID(w, "application id", chi.URLParam(r, "id"))
	if !ok {
		return models.Case{}, false
	}
	c, err := h.cases.GetForClient(ctx, brand.ID, su.UserID(), id)
	if err != nil {
		if !writeCaseError(w, err) {
			h.errLog.Internal(w, r, "failed to load application", err)
		}
		return models.Case{}, false
	}
	return c, true
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "application get")
	defer cancel()
	c, ok := h.own(ctx, w, r)
	if !ok {
		return
	}
	jsonutil.OK(w, c)
}

type draftInput struct {
	choice
	Applicant *models.ApplicantPatch `json:"applicant"`
	FormData  map[string]any         `json:"form_data"`
}

func (in *draftInput) validate(now time.Time) map[string]string {
	errs := validateFormData(in.FormData)
	if in.Applicant != nil {
		p := cleanPatch(*in.Applicant)
		in.Applicant = &p
		for k, v := range validateApplicant(p.Apply(models.Applicant{}), false, now) {
			errs[k] = v
		}
	}
	return errs
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	var in draftInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if errs := in.validate(time.Now()); len(errs) > 0 {
		jsonutil.ValidationError(w, errs)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "application create")
	defer cancel()

	res, errs, err := h.resolve(ctx, brand, in.choice, nil)
	if len(errs) > 0 {
		jsonutil.ValidationError(w, errs)
		return
	}
	if err != nil {
		if !writeResolveError(w, err) {
			h.errLog.Internal(w, r, "failed to price application", err)
		}
		return
	}

	c := models.Case{
		BrandID:        brand.ID,
		ClientID:       su.UserID(),
		ClientNameCI:   text.Fold(su.Name),
		PairID:         res.Pair.ID,
		FromCode:       res.Pair.FromCode,
		ToCode:         res.Pair.ToCode,
		ServiceTypeID:  res.Type.ID,
		ServiceLevelID: res.Level.ID,
		FormData:       in.FormData,
	}
	if in.Applicant != nil {
		c.Applicant = in.Applicant.Apply(models.Applicant{})
	}
	c, err = h.cases.CreateDraft(ctx, c)
	if err != nil {
		h.errLog.Internal(w, r, "failed to create application", err)
		return
	}
	jsonutil.Created(w, c)
}

// update is the wizard autosave. It only touches drafts.
func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	var in draftInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if errs := in.validate(time.Now()); len(errs) > 0 {
		jsonutil.ValidationError(w, errs)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "application update")
	defer cancel()
	c, ok := h.own(ctx, w, r)
	if !ok {
		return
	}
	if c.Status != models.CaseDraft {
		jsonutil.Conflict(w, casestore.ErrNotDraft.Error())
		return
	}

	upd := casestore.DraftUpdate{Applicant: in.Applicant, FormData: in.FormData}
	if in.choice.touched() {
		res, errs, err := h.resolve(ctx, brand, in.choice, &c)
		if len(errs) > 0 {
			jsonutil.ValidationError(w, errs)
			return
		}
		if err != nil {
			if !writeResolveError(w, err) {
				h.errLog.Internal(w, r, "failed to price application", err)
			}
			return
		}
		upd.Pair = &res.Pair
		upd.TypeID = &res.Type.ID
		upd.LevelID = &res.Level.ID
	}

	c, err := h.cases.UpdateDraft(ctx, brand.ID, su.UserID(), c.ID, upd)
	if err != nil {
		if !writeCaseError(w, err) {
			h.errLog.Internal(w, r, "failed to save application", err)
		}
		return
	}
	jsonutil.OK(w, c)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	id, ok := jsonutil.ObjectID(w, "application id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "application delete")
	defer cancel()

	if err := h.cases.DeleteDraft(ctx, brand.ID, su.UserID(), id); err != nil {
		if !writeCaseError(w, err) {
			h.errLog.Internal(w, r, "failed to delete application", err)
		}
		return
	}
	jsonutil.NoContent(w)
}

type quoteResponse struct {
	ServiceType  models.ServiceType  `json:"service_type"`
	ServiceLevel models.ServiceLevel `json:"service_level"`
	Quote        models.Quote        `json:"quote"`
	Frozen       bool                `json:"frozen"`
}

// quote prices a draft at today's fees. Submitted cases return the quote
// frozen at submission.
func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "application quote")
	defer cancel()
	c, ok := h.own(ctx, w, r)
	if !ok {
		return
	}

	if c.Quote != nil {
		out := quoteResponse{Quote: *c.Quote, Frozen: true}
		if st, err := h.catalog.GetType(ctx, brand.ID, c.ServiceTypeID); err == nil {
			out.ServiceType = st
		}
		if lvl, err := h.catalog.GetLevel(ctx, brand.ID, c.ServiceLevelID); err == nil {
			out.ServiceLevel = lvl
		}
		jsonutil.OK(w, out)
		return
	}

	pairID := c.PairID
	res, err := h.pricing.Quote(ctx, brand.ID, brand.Currency, pricing.Request{
		PairID: &pairID, TypeID: c.ServiceTypeID, LevelID: c.ServiceLevelID,
	})
	if err != nil {
		if !writeChoiceError(w, err, http.StatusConflict) {
			h.errLog.Internal(w, r, "failed to price application", err)
		}
		return
	}
	jsonutil.OK(w, quoteResponse{ServiceType: res.Type, ServiceLevel: res.Level, Quote: res.Quote})
}
