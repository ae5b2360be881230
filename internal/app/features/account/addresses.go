package account

import (
	"errors"
	"net/http"
	"strings"

	addressstore "github.com/dalemusser/visadesk/internal/app/store/addresses"
	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/inputval"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/normalize"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/app/system/timeouts"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type addressInput struct {
	Label      string `json:"label" validate:"max=60" label:"Label"`
	Recipient  string `json:"recipient" validate:"required,max=120" label:"Recipient"`
	Line1      string `json:"line1" validate:"required,max=200" label:"Address line 1"`
	Line2      string `json:"line2" validate:"max=200" label:"Address line 2"`
	City       string `json:"city" validate:"required,max=100" label:"City"`
	Region     string `json:"region" validate:"max=100" label:"Region"`
	PostalCode string `json:"postal_code" validate:"required,max=20" label:"Postal code"`
	Country    string `json:"country" validate:"required,countrycode" label:"Country"`
	Phone      string `json:"phone" validate:"max=20" label:"Phone"`
	IsDefault  bool   `json:"is_default"`
}

func (in *addressInput) clean() {
	for _, p := range []*string{&in.Label, &in.Recipient, &in.Line1, &in.Line2, &in.City, &in.Region, &in.PostalCode} {
		*p = strings.TrimSpace(*p)
	}
	in.Country = strings.ToUpper(strings.TrimSpace(in.Country))
	in.Phone = normalize.Phone(in.Phone)
}

// addressPatch carries the fields of a PATCH; nil leaves a field alone.
type addressPatch struct {
	Label      *string `json:"label"`
	Recipient  *string `json:"recipient"`
	Line1      *string `json:"line1"`
	Line2      *string `json:"line2"`
	City       *string `json:"city"`
	Region     *string `json:"region"`
	PostalCode *string `json:"postal_code"`
	Country    *string `json:"country"`
	Phone      *string `json:"phone"`
}

// apply overlays the patch on a, returning the merged input to validate.
func (p addressPatch) apply(a models.Address) addressInput {
	in := addressInput{
		Label: a.Label, Recipient: a.Recipient, Line1: a.Line1, Line2: a.Line2,
		City: a.City, Region: a.Region, PostalCode: a.PostalCode, Country: a.Country, Phone: a.Phone,
	}
	pick := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	pick(&in.Label, p.Label)
	pick(&in.Recipient, p.Recipient)
	pick(&in.Line1, p.Line1)
	pick(&in.Line2, p.Line2)
	pick(&in.City, p.City)
	pick(&in.Region, p.Region)
	pick(&in.PostalCode, p.PostalCode)
	pick(&in.Country, p.Country)
	pick(&in.Phone, p.Phone)
	in.clean()
	return in
}

func (h *Handler) listAddresses(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "address list")
	defer cancel()

	list, err := h.addresses.List(ctx, su.UserID())
	if err != nil {
		h.errLog.Internal(w, r, "failed to list addresses", err)
		return
	}
	jsonutil.OK(w, map[string]any{"addresses": list})
}

func (h *Handler) createAddress(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)
	brand := tenant.MustBrand(r)
	var in addressInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	in.clean()
	if res := inputval.Validate(in); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "address create")
	defer cancel()
	a, err := h.addresses.Create(ctx, models.Address{
		BrandID:    brand.ID,
		UserID:     su.UserID(),
		Label:      in.Label,
		Recipient:  in.Recipient,
		Line1:      in.Line1,
		Line2:      in.Line2,
		City:       in.City,
		Region:     in.Region,
		PostalCode: in.PostalCode,
		Country:    in.Country,
		Phone:      in.Phone,
		IsDefault:  in.IsDefault,
	})
	if err != nil {
		h.errLog.Internal(w, r, "failed to create address", err)
		return
	}
	jsonutil.Created(w, a)
}

func (h *Handler) addressID(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	return jsonutil.ObjectID(w, "address id", chi.URLParam(r, "id"))
}

func (h *Handler) updateAddress(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)
	id, ok := h.addressID(w, r)
	if !ok {
		return
	}
	var p addressPatch
	if err := jsonutil.Decode(r, &p); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "address update")
	defer cancel()

	cur, err := h.addresses.Get(ctx, su.UserID(), id)
	if errors.Is(err, addressstore.ErrNotFound) {
		jsonutil.NotFound(w, "address not found")
		return
	}
	if err != nil {
		h.errLog.Internal(w, r, "failed to load address", err)
		return
	}

	in := p.apply(cur)
	if res := inputval.Validate(in); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}
	a, err := h.addresses.Update(ctx, su.UserID(), id, addressstore.Update{
		Label: &in.Label, Recipient: &in.Recipient, Line1: &in.Line1, Line2: &in.Line2,
		City: &in.City, Region: &in.Region, PostalCode: &in.PostalCode, Country: &in.Country, Phone: &in.Phone,
	})
	if errors.Is(err, addressstore.ErrNotFound) {
		jsonutil.NotFound(w, "address not found")
		return
	}
	if err != nil {
		h.errLog.Internal(w, r, "failed to update address", err)
		return
	}
	jsonutil.OK(w, a)
}

func (h *Handler) deleteAddress(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)
	id, ok := h.addressID(w, r)
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "address delete")
	defer cancel()

	err := h.addresses.Delete(ctx, su.UserID(), id)
	if errors.Is(err, addressstore.ErrNotFound) {
		jsonutil.NotFound(w, "address not found")
		return
	}
	if err != nil {
		h.errLog.Internal(w, r, "failed to delete address", err)
		return
	}
	jsonutil.NoContent(w)
}

func (h *Handler) setDefault(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)
	id, ok := h.addressID(w, r)
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "address default")
	defer cancel()

	err := h.addresses.SetDefault(ctx, su.UserID(), id)
	if errors.Is(err, addressstore.ErrNotFound) {
		jsonutil.NotFound(w, "address not found")
		return
	}
	if err != nil {
		h.errLog.Internal(w, r, "failed to set default address", err)
		return
	}
	a, err := h.addresses.Get(ctx, su.UserID(), id)
	if err != nil {
		h.errLog.Internal(w, r, "failed to load address", err)
		return
	}
	jsonutil.OK(w, a)
}
