package catalog

import (
	"errors"
	"net/http"
	"sort"

	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/normalize"
	"github.com/dalemusser/visadesk/internal/app/system/pricing"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/app/system/timeouts"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type destination struct {
	PairID primitive.ObjectID `json:"pair_id"`
	Code   string             `json:"code"`
	Name   string             `json:"name"`
}

func (h *Handler) destinations(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	from := normalize.CountryCode(query.Get(r, "from"))
	if from == "" {
		jsonutil.BadRequest(w, "from must be a two-letter country code")
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "destinations")
	defer cancel()

	pairs, err := h.pairs.ActiveFrom(ctx, brand.ID, from)
	if err != nil {
		h.errLog.Internal(w, r, "failed to list destinations", err)
		return
	}
	codes := make([]string, 0, len(pairs))
	for _, p := range pairs {
		codes = append(codes, p.ToCode)
	}
	names, err := h.countries.Names(ctx, codes)
	if err != nil {
		h.errLog.Internal(w, r, "failed to load country names", err)
		return
	}

	out := make([]destination, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, destination{PairID: p.ID, Code: p.ToCode, Name: names[p.ToCode]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	jsonutil.OK(w, map[string]any{"from": from, "destinations": out})
}

func (h *Handler) offerings(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	from := normalize.CountryCode(query.Get(r, "from"))
	to := normalize.CountryCode(query.Get(r, "to"))
	if from == "" || to == "" {
		jsonutil.BadRequest(w, "from and to must be two-letter country codes")
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "offerings")
	defer cancel()

	list, err := h.pricing.Offers(ctx, brand.ID, brand.Currency, from, to)
	if errors.Is(err, pricing.ErrPairNotFound) {
		jsonutil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		h.errLog.Internal(w, r, "failed to list offerings", err)
		return
	}
	jsonutil.OK(w, map[string]any{"from": from, "to": to, "offerings": list})
}

type quoteInput struct {
	From           string             `json:"from"`
	To             string             `json:"to"`
	ServiceTypeID  primitive.ObjectID `json:"service_type_id"`
	ServiceLevelID primitive.ObjectID `json:"service_level_id"`
}

type quoteResponse struct {
	From         string              `json:"from"`
	To           string              `json:"to"`
	ServiceType  models.ServiceType  `json:"service_type"`
	ServiceLevel models.ServiceLevel `json:"service_level"`
	Quote        models.Quote        `json:"quote"`
}

// WriteQuoteError maps pricing failures to 404. It reports false for
// anything unexpected.
func WriteQuoteError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, pricing.ErrPairNotFound),
		errors.Is(err, models.ErrPairInactive),
		errors.Is(err, models.ErrOfferingUnavailable):
		jsonutil.NotFound(w, err.Error())
		return true
	}
	return false
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	var in quoteInput
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
	if in.ServiceTypeID.IsZero() {
		errs["service_type_id"] = "Service type is required."
	}
	if in.ServiceLevelID.IsZero() {
		errs["service_level_id"] = "Service level is required."
	}
	if len(errs) > 0 {
		jsonutil.ValidationError(w, errs)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "quote")
	defer cancel()
	res, err := h.pricing.Quote(ctx, brand.ID, brand.Currency, pricing.Request{
		From: from, To: to, TypeID: in.ServiceTypeID, LevelID: in.ServiceLevelID,
	})
	if err != nil {
		if !WriteQuoteError(w, err) {
			h.errLog.Internal(w, r, "failed to compute quote", err)
		}
		return
	}
	jsonutil.OK(w, quoteResponse{
		From:         from,
		To:           to,
		ServiceType:  res.Type,
		ServiceLevel: res.Level,
		Quote:        res.Quote,
	})
}
