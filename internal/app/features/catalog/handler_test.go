package catalog

import (
	"net/http"
	"testing"

	errorsfeature "github.com/dalemusser/visadesk/internal/app/features/errors"
	"github.com/dalemusser/visadesk/internal/app/store/audit"
	countrystore "github.com/dalemusser/visadesk/internal/app/store/countries"
	"github.com/dalemusser/visadesk/internal/app/system/auditlog"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/visadesk/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type fixture struct {
	db      *mongo.Database
	h       *Handler
	brand   *tenant.Info
	manager testutil.TestUser
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	al := auditlog.New(audit.New(db), logger, auditlog.Config{Auth: "all", Admin: "all"})
	brand := testutil.InsertBrand(t, db, "acme")

	ctx, cancel := testutil.TestContext()
	defer cancel()
	if _, err := countrystore.New(db).Seed(ctx, []models.Country{
		{Code: "US", Name: "United States"},
		{Code: "IN", Name: "India"},
		{Code: "BR", Name: "Brazil"},
		{Code: "FR", Name: "France"},
	}); err != nil {
		t.Fatalf("seed countries: %v", err)
	}

	return fixture{
		db:      db,
		h:       NewHandler(db, errorsfeature.NewErrorLogger(logger), al, logger),
		brand:   brand,
		manager: testutil.StaffUser(brand, models.RoleManager),
	}
}

func (f fixture) do(t *testing.T, fn http.HandlerFunc, method, target string, body any, params ...string) *testutil.ResponseRecorder {
	t.Helper()
	req := testutil.Request(t, method, target, body, f.brand, &f.manager)
	if len(params) > 0 {
		req = testutil.WithURLParams(req, params...)
	}
	rec := testutil.NewRecorder()
	fn(rec, req)
	return rec
}

func (f fixture) createType(t *testing.T, slug string) models.ServiceType {
	t.Helper()
	rec := f.do(t, f.h.createType, http.MethodPost, "/", map[string]any{
		"name": "Type " + slug, "slug": slug, "kind": "visa", "required_documents": []string{"Passport scan", " "},
	})
	rec.AssertStatus(t, http.StatusCreated)
	var st models.ServiceType
	rec.DecodeJSON(t, &st)
	return st
}

func (f fixture) createLevel(t *testing.T, slug string, days int) models.ServiceLevel {
	t.Helper()
	rec := f.do(t, f.h.createLevel, http.MethodPost, "/", map[string]any{
		"name": "Level " + slug, "slug": slug, "processing_days": days,
	})
	rec.AssertStatus(t, http.StatusCreated)
	var lvl models.ServiceLevel
	rec.DecodeJSON(t, &lvl)
	return lvl
}

func (f fixture) createPair(t *testing.T, from, to string, offerings []map[string]any) models.CountryPair {
	t.Helper()
	rec := f.do(t, f.h.createPair, http.MethodPost, "/", map[string]any{
		"from": from, "to": to, "offerings": offerings,
	})
	rec.AssertStatus(t, http.StatusCreated)
	var p models.CountryPair
	rec.DecodeJSON(t, &p)
	return p
}

func offering(st models.ServiceType, lvl models.ServiceLevel, gov, svc int64) map[string]any {
	return map[string]any{
		"service_type_id":  st.ID.Hex(),
		"service_level_id": lvl.ID.Hex(),
		"government_fee":   gov,
		"service_fee":      svc,
	}
}

func TestServiceTypes(t *testing.T) {
	f := setup(t)

	st := f.createType(t, "tourist")
	if len(st.RequiredDocuments) != 1 {
		t.Errorf("required_documents = %v, want blanks dropped", st.RequiredDocuments)
	}

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"duplicate slug", map[string]any{"name": "Again", "slug": "tourist", "kind": "visa"}, http.StatusConflict},
		{"bad kind", map[string]any{"name": "X", "slug": "x", "kind": "boat"}, http.StatusBadRequest},
		{"missing name", map[string]any{"slug": "y", "kind": "visa"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.do(t, f.h.createType, http.MethodPost, "/", tt.body).AssertStatus(t, tt.want)
		})
	}

	rec := f.do(t, f.h.updateType, http.MethodPatch, "/", map[string]any{"name": "Tourist Visa", "sort_order": 3}, "id", st.ID.Hex())
	rec.AssertStatus(t, http.StatusOK)
	var upd models.ServiceType
	rec.DecodeJSON(t, &upd)
	if upd.Name != "Tourist Visa" || upd.SortOrder != 3 || upd.Slug != "tourist" {
		t.Errorf("updated = %+v", upd)
	}

	f.do(t, f.h.updateType, http.MethodPatch, "/", map[string]any{"kind": "boat"}, "id", st.ID.Hex()).
		AssertStatus(t, http.StatusBadRequest)
	f.do(t, f.h.updateType, http.MethodPatch, "/", map[string]any{"name": "Z"}, "id", primitive.NewObjectID().Hex()).
		AssertStatus(t, http.StatusNotFound)
}

func TestServiceLevels_Validation(t *testing.T) {
	f := setup(t)
	f.createLevel(t, "standard", 10)

	f.do(t, f.h.createLevel, http.MethodPost, "/", map[string]any{"name": "Now", "slug": "now", "processing_days": 0}).
		AssertStatus(t, http.StatusBadRequest)
	f.do(t, f.h.createLevel, http.MethodPost, "/", map[string]any{"name": "Again", "slug": "standard", "processing_days": 3}).
		AssertStatus(t, http.StatusConflict)
}

func TestDelete_DeactivatesWhenReferenced(t *testing.T) {
	f := setup(t)
	st := f.createType(t, "tourist")
	lvl := f.createLevel(t, "standard", 10)
	spare := f.createLevel(t, "rush", 2)
	f.createPair(t, "US", "IN", []map[string]any{offering(st, lvl, 5000, 2500)})

	var res map[string]string
	rec := f.do(t, f.h.deleteLevel, http.MethodDelete, "/", nil, "id", lvl.ID.Hex())
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &res)
	if res["result"] != "deactivated" {
		t.Errorf("referenced level result = %q, want deactivated", res["result"])
	}

	rec = f.do(t, f.h.deleteLevel, http.MethodDelete, "/", nil, "id", spare.ID.Hex())
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &res)
	if res["result"] != "deleted" {
		t.Errorf("unreferenced level result = %q, want deleted", res["result"])
	}
}

func TestPairs_CreateRules(t *testing.T) {
	f := setup(t)
	st := f.createType(t, "tourist")
	lvl := f.createLevel(t, "standard", 10)
	f.createPair(t, "US", "IN", nil)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"duplicate pair", map[string]any{"from": "us", "to": "in"}, http.StatusConflict},
		{"same country", map[string]any{"from": "US", "to": "US"}, http.StatusBadRequest},
		{"unknown country", map[string]any{"from": "US", "to": "ZZ"}, http.StatusBadRequest},
		{"bad code", map[string]any{"from": "USA", "to": "IN"}, http.StatusBadRequest},
		{"duplicate offering", map[string]any{"from": "US", "to": "BR", "offerings": []map[string]any{
			offering(st, lvl, 1, 1), offering(st, lvl, 2, 2),
		}}, http.StatusBadRequest},
		{"foreign type", map[string]any{"from": "US", "to": "BR", "offerings": []map[string]any{
			{"service_type_id": primitive.NewObjectID().Hex(), "service_level_id": lvl.ID.Hex()},
		}}, http.StatusBadRequest},
		{"negative fee", map[string]any{"from": "US", "to": "BR", "offerings": []map[string]any{
			offering(st, lvl, -1, 0),
		}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.do(t, f.h.createPair, http.MethodPost, "/", tt.body).AssertStatus(t, tt.want)
		})
	}
}

func TestPairs_UpdateAndOfferings(t *testing.T) {
	f := setup(t)
	st := f.createType(t, "tourist")
	lvl := f.createLevel(t, "standard", 10)
	p := f.createPair(t, "US", "IN", nil)

	rec := f.do(t, f.h.setOfferings, http.MethodPut, "/", []map[string]any{offering(st, lvl, 100, 50)}, "id", p.ID.Hex())
	rec.AssertStatus(t, http.StatusOK)
	var got models.CountryPair
	rec.DecodeJSON(t, &got)
	if len(got.Offerings) != 1 || !got.Offerings[0].IsActive {
		t.Fatalf("offerings = %+v", got.Offerings)
	}

	rec = f.do(t, f.h.updatePair, http.MethodPatch, "/", map[string]any{"is_active": false, "notes": " seasonal "}, "id", p.ID.Hex())
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &got)
	if got.IsActive || got.Notes != "seasonal" {
		t.Errorf("after patch: active=%v notes=%q", got.IsActive, got.Notes)
	}

	var list struct {
		Pairs []models.CountryPair `json:"pairs"`
	}
	rec = f.do(t, f.h.listPairs, http.MethodGet, "/?active=true", nil)
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &list)
	if len(list.Pairs) != 0 {
		t.Errorf("active pairs = %d, want 0", len(list.Pairs))
	}

	f.do(t, f.h.deletePair, http.MethodDelete, "/", nil, "id", p.ID.Hex()).AssertStatus(t, http.StatusNoContent)
	f.do(t, f.h.getPair, http.MethodGet, "/", nil, "id", p.ID.Hex()).AssertStatus(t, http.StatusNotFound)
}

func TestCountryAccess(t *testing.T) {
	f := setup(t)

	body := []map[string]any{
		{"code": "us", "can_apply_from": true, "can_apply_to": false},
		{"code": "IN", "can_apply_from": false, "can_apply_to": true},
	}
	f.do(t, f.h.putAccess, http.MethodPut, "/", body).AssertStatus(t, http.StatusOK)

	f.do(t, f.h.putAccess, http.MethodPut, "/", []map[string]any{{"code": "ZZ", "can_apply_from": true}}).
		AssertStatus(t, http.StatusBadRequest)
	f.do(t, f.h.putAccess, http.MethodPut, "/", []map[string]any{{"code": "US"}, {"code": "us"}}).
		AssertStatus(t, http.StatusBadRequest)

	var out struct {
		Countries []models.Country `json:"countries"`
	}
	rec := f.do(t, f.h.publicCountries, http.MethodGet, "/?side=from", nil)
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &out)
	if len(out.Countries) != 1 || out.Countries[0].Code != "US" {
		t.Errorf("from countries = %+v", out.Countries)
	}

	f.do(t, f.h.publicCountries, http.MethodGet, "/?side=sideways", nil).AssertStatus(t, http.StatusBadRequest)
}

func TestPublicCatalog(t *testing.T) {
	f := setup(t)
	visa := f.createType(t, "tourist")
	std := f.createLevel(t, "standard", 10)
	rush := f.createLevel(t, "rush", 2)
	f.createPair(t, "US", "IN", []map[string]any{offering(visa, std, 5000, 2500), offering(visa, rush, 5000, 9000)})
	f.createPair(t, "US", "FR", nil)

	var dest struct {
		Destinations []destination `json:"destinations"`
	}
	rec := f.do(t, f.h.destinations, http.MethodGet, "/?from=us", nil)
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &dest)
	if len(dest.Destinations) != 2 || dest.Destinations[0].Name != "France" {
		t.Errorf("destinations = %+v", dest.Destinations)
	}

	f.do(t, f.h.updateLevel, http.MethodPatch, "/", map[string]any{"is_active": false}, "id", rush.ID.Hex()).
		AssertStatus(t, http.StatusOK)

	var offers struct {
		Offerings []struct {
			Total int64 `json:"total"`
		} `json:"offerings"`
	}
	rec = f.do(t, f.h.offerings, http.MethodGet, "/?from=US&to=IN", nil)
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &offers)
	if len(offers.Offerings) != 1 || offers.Offerings[0].Total != 7500 {
		t.Errorf("offerings = %+v, want one at 7500", offers.Offerings)
	}
	f.do(t, f.h.offerings, http.MethodGet, "/?from=US&to=BR", nil).AssertStatus(t, http.StatusNotFound)

	rec = f.do(t, f.h.quote, http.MethodPost, "/", map[string]any{
		"from": "US", "to": "IN", "service_type_id": visa.ID.Hex(), "service_level_id": std.ID.Hex(),
	})
	rec.AssertStatus(t, http.StatusOK)
	var q quoteResponse
	rec.DecodeJSON(t, &q)
	if q.Quote.Total != 7500 || q.Quote.Currency != models.DefaultCurrency {
		t.Errorf("quote = %+v", q.Quote)
	}

	f.do(t, f.h.quote, http.MethodPost, "/", map[string]any{
		"from": "US", "to": "IN", "service_type_id": visa.ID.Hex(), "service_level_id": rush.ID.Hex(),
	}).AssertStatus(t, http.StatusNotFound)
	f.do(t, f.h.quote, http.MethodPost, "/", map[string]any{"from": "US", "to": "IN"}).
		AssertStatus(t, http.StatusBadRequest)
}
