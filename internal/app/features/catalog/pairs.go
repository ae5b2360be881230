package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	pairstore "github.com/dalemusser/visadesk/internal/app/store/pairs"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/normalize"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/app/system/timeouts"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func writePairError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, pairstore.ErrNotFound):
		jsonutil.NotFound(w, err.Error())
	case errors.Is(err, pairstore.ErrDuplicate):
		jsonutil.Conflict(w, err.Error())
	case errors.Is(err, pairstore.ErrSameCountry), errors.Is(err, pairstore.ErrDuplicateOffering):
		jsonutil.BadRequest(w, err.Error())
	default:
		return false
	}
	return true
}

type offeringInput struct {
	ServiceTypeID  primitive.ObjectID `json:"service_type_id"`
	ServiceLevelID primitive.ObjectID `json:"service_level_id"`
	GovernmentFee  int64              `json:"government_fee"`
	ServiceFee     int64              `json:"service_fee"`
	IsActive       *bool              `json:"is_active"`
}

// errBadReference is a client error found while checking offerings.
type errBadReference struct{ msg string }

func (e errBadReference) Error() string { return e.msg }

// buildOfferings converts input rows and checks that every referenced type and
// level belongs to the brand.
func (h *Handler) buildOfferings(ctx context.Context, brandID primitive.ObjectID, in []offeringInput) ([]models.Offering, error) {
	out := make([]models.Offering, 0, len(in))
	typeIDs := make([]primitive.ObjectID, 0, len(in))
	levelIDs := make([]primitive.ObjectID, 0, len(in))
	for i, o := range in {
		if o.ServiceTypeID.IsZero() || o.ServiceLevelID.IsZero() {
			return nil, errBadReference{fmt.Sprintf("offering %d: service_type_id and service_level_id are required", i+1)}
		}
		if o.GovernmentFee < 0 || o.ServiceFee < 0 {
			return nil, errBadReference{fmt.Sprintf("offering %d: fees cannot be negative", i+1)}
		}
		out = append(out, models.Offering{
			ServiceTypeID:  o.ServiceTypeID,
			ServiceLevelID: o.ServiceLevelID,
			GovernmentFee:  o.GovernmentFee,
			ServiceFee:     o.ServiceFee,
			IsActive:       o.IsActive == nil || *o.IsActive,
		})
		typeIDs = append(typeIDs, o.ServiceTypeID)
		levelIDs = append(levelIDs, o.ServiceLevelID)
	}
	if err := pairstore.CheckOfferings(out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	types, err := h.catalog.TypesByID(ctx, brandID, typeIDs)
	if err != nil {
		return nil, err
	}
	levels, err := h.catalog.LevelsByID(ctx, brandID, levelIDs)
	if err != nil {
		return nil, err
	}
	for _, o := range out {
		if _, ok := types[o.ServiceTypeID]; !ok {
			return nil, errBadReference{"unknown service type " + o.ServiceTypeID.Hex()}
		}
		if _, ok := levels[o.ServiceLevelID]; !ok {
			return nil, errBadReference{"unknown service level " + o.ServiceLevelID.Hex()}
		}
	}
	return out, nil
}

// writeOfferingError handles the client errors offerings can return.
func writeOfferingError(w http.ResponseWriter, err error) bool {
	var ref errBadReference
	if errors.As(err, &ref) {
		jsonutil.BadRequest(w, ref.msg)
		return true
	}
	return writePairError(w, err)
}

func (h *Handler) listPairs(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	active, ok := boolParam(r, "active")
	if !ok {
		jsonutil.BadRequest(w, "invalid active")
		return
	}
	f := pairstore.Filter{
		From:   normalize.CountryCode(query.Get(r, "from")),
		To:     normalize.CountryCode(query.Get(r, "to")),
		Active: active,
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "pair list")
	defer cancel()

	list, err := h.pairs.List(ctx, brand.ID, f)
	if err != nil {
		h.errLog.Internal(w, r, "failed to list country pairs", err)
		return
	}
	if list == nil {
		list = []models.CountryPair{}
	}
	jsonutil.OK(w, map[string]any{"pairs": list})
}

func (h *Handler) getPair(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	id, ok := jsonutil.ObjectID(w, "pair id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "pair get")
	defer cancel()

	p, err := h.pairs.Get(ctx, brand.ID, id)
	if err != nil {
		if !writePairError(w, err) {
			h.errLog.Internal(w, r, "failed to load country pair", err)
		}
		return
	}
	jsonutil.OK(w, p)
}

type pairInput struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	IsActive  *bool           `json:"is_active"`
	Notes     string          `json:"notes"`
	Offerings []offeringInput `json:"offerings"`
}

func (h *Handler) createPair(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	var in pairInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	from := normalize.CountryCode(in.From)
	to := normalize.CountryCode(in.To)
	errs := map[string]string{}
	if from == "" {
		errs["from"] = "From must be a two-letter country code."
	}
	if to == "" {
		errs["to"] = "To must be a two-letter country code."
	}
	if len(in.Notes) > 2000 {
		errs["notes"] = "Notes must be at most 2000 characters."
	}
	if len(errs) > 0 {
		jsonutil.ValidationError(w, errs)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "pair create")
	defer cancel()

	names, err := h.countries.Names(ctx, []string{from, to})
	if err != nil {
		h.errLog.Internal(w, r, "failed to check countries", err)
		return
	}
	for _, code := range []string{from, to} {
		if _, ok := names[code]; !ok {
			jsonutil.BadRequest(w, "unknown country code "+code)
			return
		}
	}
	offerings, err := h.buildOfferings(ctx, brand.ID, in.Offerings)
	if err != nil {
		if !writeOfferingError(w, err) {
			h.errLog.Internal(w, r, "failed to check offerings", err)
		}
		return
	}

	p, err := h.pairs.Create(ctx, models.CountryPair{
		BrandID:   brand.ID,
		FromCode:  from,
		ToCode:    to,
		IsActive:  in.IsActive == nil || *in.IsActive,
		Notes:     strings.TrimSpace(in.Notes),
		Offerings: offerings,
	})
	if err != nil {
		if !writePairError(w, err) {
			h.errLog.Internal(w, r, "failed to create country pair", err)
		}
		return
	}
	h.catalogAudit(r, brand.ID, "pair", p.ID.Hex(), "create")
	jsonutil.Created(w, p)
}

type pairPatch struct {
	IsActive *bool   `json:"is_active"`
	Notes    *string `json:"notes"`
}

func (h *Handler) updatePair(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	id, ok := jsonutil.ObjectID(w, "pair id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var in pairPatch
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if in.Notes != nil {
		n := strings.TrimSpace(*in.Notes)
		if len(n) > 2000 {
			jsonutil.ValidationError(w, map[string]string{"notes": "Notes must be at most 2000 characters."})
			return
		}
		in.Notes = &n
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "pair update")
	defer cancel()
	p, err := h.pairs.Update(ctx, brand.ID, id, in.IsActive, in.Notes)
	if err != nil {
		if !writePairError(w, err) {
			h.errLog.Internal(w, r, "failed to update country pair", err)
		}
		return
	}
	h.catalogAudit(r, brand.ID, "pair", id.Hex(), "update")
	jsonutil.OK(w, p)
}

func (h *Handler) setOfferings(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	id, ok := jsonutil.ObjectID(w, "pair id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var in []offeringInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "pair offerings")
	defer cancel()
	offerings, err := h.buildOfferings(ctx, brand.ID, in)
	if err != nil {
		if !writeOfferingError(w, err) {
			h.errLog.Internal(w, r, "failed to check offerings", err)
		}
		return
	}
	p, err := h.pairs.SetOfferings(ctx, brand.ID, id, offerings)
	if err != nil {
		if !writePairError(w, err) {
			h.errLog.Internal(w, r, "failed to set offerings", err)
		}
		return
	}
	h.catalogAudit(r, brand.ID, "pair", id.Hex(), "offerings")
	jsonutil.OK(w, p)
}

func (h *Handler) deletePair(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	id, ok := jsonutil.ObjectID(w, "pair id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "pair delete")
	defer cancel()

	if err := h.pairs.Delete(ctx, brand.ID, id); err != nil {
		if !writePairError(w, err) {
			h.errLog.Internal(w, r, "failed to delete country pair", err)
		}
		return
	}
	h.catalogAudit(r, brand.ID, "pair", id.Hex(), "delete")
	jsonutil.NoContent(w)
}
