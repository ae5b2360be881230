package account

import (
	"net/http"
	"testing"

	errorsfeature "github.com/dalemusser/visadesk/internal/app/features/errors"
	"github.com/dalemusser/visadesk/internal/app/store/audit"
	"github.com/dalemusser/visadesk/internal/app/system/auditlog"
	"github.com/dalemusser/visadesk/internal/app/system/authutil"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/visadesk/internal/testutil"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type fixture struct {
	db    *mongo.Database
	h     *Handler
	brand *tenant.Info
	user  models.User
	tu    testutil.TestUser
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	al := auditlog.New(audit.New(db), logger, auditlog.Config{Auth: "all", Admin: "all"})
	brand := testutil.InsertBrand(t, db, "acme")
	u := testutil.InsertUser(t, db, brand, models.RoleClient, "ann@example.com")
	return fixture{
		db:    db,
		h:     NewHandler(db, errorsfeature.NewErrorLogger(logger), al, logger),
		brand: brand,
		user:  u,
		tu:    testutil.UserOf(u),
	}
}

func (f fixture) do(t *testing.T, fn http.HandlerFunc, method string, body any, params ...string) *testutil.ResponseRecorder {
	t.Helper()
	req := testutil.Request(t, method, "/", body, f.brand, &f.tu)
	if len(params) > 0 {
		req = testutil.WithURLParams(req, params...)
	}
	rec := testutil.NewRecorder()
	fn(rec, req)
	return rec
}

func TestAccount_GetAndUpdate(t *testing.T) {
	f := setup(t)

	rec := f.do(t, f.h.get, http.MethodGet, nil)
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "ann@example.com")

	rec = f.do(t, f.h.update, http.MethodPatch, map[string]string{"full_name": " Ann  Smith ", "phone": "+1 (555) 010-2030"})
	rec.AssertStatus(t, http.StatusOK)
	var u models.User
	rec.DecodeJSON(t, &u)
	if u.FullName != "Ann Smith" {
		t.Errorf("full_name = %q", u.FullName)
	}
	if u.Phone != "+15550102030" {
		t.Errorf("phone = %q", u.Phone)
	}

	f.do(t, f.h.update, http.MethodPatch, map[string]string{"full_name": "  "}).AssertStatus(t, http.StatusBadRequest)
}

func TestAccount_ChangePassword(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"wrong current", map[string]string{"current": "nope", "new": "brand-new-pass-1"}, http.StatusBadRequest},
		{"weak new", map[string]string{"current": testutil.DefaultPassword, "new": "x"}, http.StatusBadRequest},
		{"ok", map[string]string{"current": testutil.DefaultPassword, "new": "brand-new-pass-1"}, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.do(t, f.h.changePassword, http.MethodPost, tt.body).AssertStatus(t, tt.want)
		})
	}

	ctx, cancel := testutil.TestContext()
	defer cancel()
	u, err := f.h.users.GetByID(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !authutil.CheckPassword("brand-new-pass-1", *u.PasswordHash) {
		t.Error("new password not stored")
	}
	n, err := audit.New(f.db).Count(ctx, audit.QueryFilter{EventType: audit.EventPasswordChanged})
	if err != nil || n != 1 {
		t.Errorf("password_changed events = %d, err = %v", n, err)
	}
}

func address(line1 string, def bool) map[string]any {
	return map[string]any{
		"recipient":   "Ann Lee",
		"line1":       line1,
		"city":        "Springfield",
		"postal_code": "12345",
		"country":     "us",
		"is_default":  def,
	}
}

func TestAddresses(t *testing.T) {
	f := setup(t)

	rec := f.do(t, f.h.createAddress, http.MethodPost, address("1 Main St", false))
	rec.AssertStatus(t, http.StatusCreated)
	var first models.Address
	rec.DecodeJSON(t, &first)
	if !first.IsDefault {
		t.Error("first address should become the default")
	}
	if first.Country != "US" {
		t.Errorf("country = %q, want US", first.Country)
	}

	rec = f.do(t, f.h.createAddress, http.MethodPost, address("2 Side St", true))
	rec.AssertStatus(t, http.StatusCreated)
	var second models.Address
	rec.DecodeJSON(t, &second)

	var list struct {
		Addresses []models.Address `json:"addresses"`
	}
	f.do(t, f.h.listAddresses, http.MethodGet, nil).DecodeJSON(t, &list)
	defaults := 0
	for _, a := range list.Addresses {
		if a.IsDefault {
			defaults++
			if a.ID != second.ID {
				t.Errorf("default = %s, want %s", a.ID.Hex(), second.ID.Hex())
			}
		}
	}
	if defaults != 1 {
		t.Errorf("defaults = %d, want 1", defaults)
	}

	t.Run("patch merges", func(t *testing.T) {
		rec := f.do(t, f.h.updateAddress, http.MethodPatch, map[string]string{"city": "Shelbyville"}, "id", first.ID.Hex())
		rec.AssertStatus(t, http.StatusOK)
		var a models.Address
		rec.DecodeJSON(t, &a)
		if a.City != "Shelbyville" || a.Line1 != "1 Main St" {
			t.Errorf("address = %+v", a)
		}
	})

	t.Run("patch validates", func(t *testing.T) {
		f.do(t, f.h.updateAddress, http.MethodPatch, map[string]string{"country": "USA"}, "id", first.ID.Hex()).
			AssertStatus(t, http.StatusBadRequest)
	})

	t.Run("set default", func(t *testing.T) {
		rec := f.do(t, f.h.setDefault, http.MethodPost, nil, "id", first.ID.Hex())
		rec.AssertStatus(t, http.StatusOK)
		var a models.Address
		rec.DecodeJSON(t, &a)
		if !a.IsDefault {
			t.Error("expected default")
		}
	})

	t.Run("other user gets 404", func(t *testing.T) {
		other := testutil.UserOf(testutil.InsertUser(t, f.db, f.brand, models.RoleClient, "bob@example.com"))
		req := testutil.Request(t, http.MethodDelete, "/", nil, f.brand, &other)
		req = testutil.WithURLParams(req, "id", first.ID.Hex())
		rec := testutil.NewRecorder()
		f.h.deleteAddress(rec, req)
		rec.AssertStatus(t, http.StatusNotFound)
	})

	t.Run("delete default promotes another", func(t *testing.T) {
		f.do(t, f.h.deleteAddress, http.MethodDelete, nil, "id", first.ID.Hex()).AssertStatus(t, http.StatusNoContent)
		var list struct {
			Addresses []models.Address `json:"addresses"`
		}
		f.do(t, f.h.listAddresses, http.MethodGet, nil).DecodeJSON(t, &list)
		if len(list.Addresses) != 1 || !list.Addresses[0].IsDefault {
			t.Errorf("remaining = %+v", list.Addresses)
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		f.do(t, f.h.deleteAddress, http.MethodDelete, nil, "id", "zzz").AssertStatus(t, http.StatusBadRequest)
	})
}
